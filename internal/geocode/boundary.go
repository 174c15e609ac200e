package geocode

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Boundary is one administrative polygon from the local store.
type Boundary struct {
	Name       string
	AdminLevel int
	geometry   orb.Geometry
}

// BoundaryStore answers point-in-polygon queries against administrative
// boundaries loaded from a GeoJSON FeatureCollection.
//
// The store is read-only after construction and safe for concurrent use.
// Features without a polygonal geometry or without a usable name are skipped
// at load time. Features whose admin_level property is missing or
// non-numeric are kept but marked unranked (AdminLevel 0); classification
// skips them.
type BoundaryStore struct {
	boundaries []Boundary
}

// LoadBoundaries reads a GeoJSON FeatureCollection from path.
func LoadBoundaries(path string) (*BoundaryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boundary file: %w", err)
	}
	return ParseBoundaries(data)
}

// ParseBoundaries builds a store from raw GeoJSON bytes.
func ParseBoundaries(data []byte) (*BoundaryStore, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse boundary geojson: %w", err)
	}

	s := &BoundaryStore{}
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}

		name := propString(f.Properties, "name")
		if name == "" {
			continue
		}

		s.boundaries = append(s.boundaries, Boundary{
			Name:       name,
			AdminLevel: propAdminLevel(f.Properties),
			geometry:   f.Geometry,
		})
	}
	return s, nil
}

// Len reports how many boundaries were loaded.
func (s *BoundaryStore) Len() int { return len(s.boundaries) }

// Containing returns every boundary whose polygon contains the point.
func (s *BoundaryStore) Containing(lat, lon float64) []Boundary {
	pt := orb.Point{lon, lat}
	var out []Boundary
	for _, b := range s.boundaries {
		if geometryContains(b.geometry, pt) {
			out = append(out, b)
		}
	}
	return out
}

func geometryContains(g orb.Geometry, pt orb.Point) bool {
	switch t := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(t, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(t, pt)
	}
	return false
}

// propString reads a string property, tolerating absent keys and non-string
// values.
func propString(props geojson.Properties, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// propAdminLevel reads the admin_level property.
//
// Upstream tagging is inconsistent: the level may arrive as a JSON number, a
// numeric string, or free text. Non-numeric values yield 0 (unranked), never
// an error.
func propAdminLevel(props geojson.Properties) int {
	v, ok := props["admin_level"]
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case float64:
		if t > 0 {
			return int(t)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
