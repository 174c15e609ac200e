// Package fieldmap projects normalized OSM tags onto the columns of the POI
// table.
//
// The projection is driven by a fixed, priority-ordered alias table: each
// target column lists the tag keys that may populate it, most specific first.
// A column is emitted only when one of its aliases is present in the tag map
// AND the column exists in the probed column set, so the output can be handed
// to the store without any further filtering.
//
// Everything in this package is a pure function over its inputs. Absent data
// yields absent output keys; there are no error conditions.
package fieldmap

import "strings"

// Alias binds a target column to the tag keys that may populate it,
// in priority order (first present wins).
type Alias struct {
	Column string
	Tags   []string
}

// aliases is the projection table for POI columns.
//
// Order within Tags matters: the "contact:" namespace is the curated form on
// OSM and beats the bare key, which in turn beats legacy spellings.
var aliases = []Alias{
	{Column: "name", Tags: []string{"name", "name:en", "official_name", "alt_name"}},
	{Column: "description", Tags: []string{"description", "note"}},
	{Column: "phone", Tags: []string{"contact:phone", "phone", "telephone"}},
	{Column: "email", Tags: []string{"contact:email", "email"}},
	{Column: "website", Tags: []string{"contact:website", "website", "url"}},
	{Column: "brand", Tags: []string{"brand", "brand:en"}},
	{Column: "operator", Tags: []string{"operator"}},
	{Column: "opening_hours", Tags: []string{"opening_hours"}},
	{Column: "wheelchair", Tags: []string{"wheelchair"}},
	{Column: "cuisine", Tags: []string{"cuisine"}},
	{Column: "street", Tags: []string{"addr:street"}},
	{Column: "housenumber", Tags: []string{"addr:housenumber"}},
	{Column: "postcode", Tags: []string{"addr:postcode"}},
	{Column: "state", Tags: []string{"addr:state"}},
	{Column: "country", Tags: []string{"addr:country"}},
}

// cityAliases feed the special city rule; see Map.
var cityAliases = []string{"addr:city", "city"}

// categoryTags are the tag keys a category may be derived from, in priority
// order. The value of the first present key is looked up in categoryLabels.
var categoryTags = []string{"amenity", "shop", "tourism", "leisure", "historic"}

// categoryLabels maps raw tag values to the free-text categories the
// application displays. Values without an entry keep the raw tag value, so a
// new amenity type degrades to something informative rather than vanishing.
var categoryLabels = map[string]string{
	"cafe":        "Food",
	"restaurant":  "Food",
	"fast_food":   "Food",
	"bar":         "Nightlife",
	"pub":         "Nightlife",
	"hotel":       "Hotel",
	"hostel":      "Hotel",
	"guest_house": "Hotel",
	"motel":       "Hotel",
	"museum":      "Culture",
	"gallery":     "Culture",
	"attraction":  "Sightseeing",
	"viewpoint":   "Sightseeing",
	"monument":    "Sightseeing",
	"memorial":    "Sightseeing",
	"supermarket": "Shopping",
	"mall":        "Shopping",
	"park":        "Outdoors",
	"fuel":        "Services",
	"pharmacy":    "Services",
	"bank":        "Services",
}

// overflowColumn receives the raw tag blob verbatim when no alias matched at
// all, so an import of a feature with only exotic tags is not silently empty.
const overflowColumn = "raw_tags"

// Map projects tags onto the probed column set.
//
// Rules:
//   - Per alias entry: the first tag key present in tags wins; the column is
//     emitted only if probed contains it.
//   - City: addr:city or city populates the "city" column independently of
//     the generic table (two source aliases merged under one rule).
//   - Category: derived from the first present key in categoryTags, passed
//     through categoryLabels, emitted into a probed "category" column.
//   - Overflow: if no alias (including city and category) matched and probed
//     contains "raw_tags", rawBlob is stored verbatim under that column.
//
// Map never emits a key absent from probed.
func Map(tags map[string]string, probed map[string]bool, rawBlob string) map[string]string {
	out := map[string]string{}
	if len(tags) == 0 {
		if rawBlob != "" && probed[overflowColumn] {
			out[overflowColumn] = rawBlob
		}
		return out
	}

	for _, a := range aliases {
		if !probed[a.Column] {
			continue
		}
		for _, key := range a.Tags {
			if v, ok := tags[key]; ok && strings.TrimSpace(v) != "" {
				out[a.Column] = strings.TrimSpace(v)
				break
			}
		}
	}

	if probed["city"] {
		for _, key := range cityAliases {
			if v, ok := tags[key]; ok && strings.TrimSpace(v) != "" {
				out["city"] = strings.TrimSpace(v)
				break
			}
		}
	}

	if probed["category"] {
		if c := Category(tags); c != "" {
			out["category"] = c
		}
	}

	if len(out) == 0 && rawBlob != "" && probed[overflowColumn] {
		out[overflowColumn] = rawBlob
	}

	return out
}

// Category derives a display category from the feature tags.
//
// Returns "" when no category-bearing tag is present.
func Category(tags map[string]string) string {
	for _, key := range categoryTags {
		v, ok := tags[key]
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" || v == "yes" {
			continue
		}
		if label, ok := categoryLabels[v]; ok {
			return label
		}
		// Unknown value: present it readable rather than raw snake_case.
		return strings.ReplaceAll(v, "_", " ")
	}
	return ""
}
