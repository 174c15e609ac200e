// Package tagparse normalizes heterogeneous OSM tag blobs into a flat
// key/value map.
//
// Imported features carry their tags in one of several text encodings
// depending on which upstream produced them: a JSON object, an hstore-like
// list of quoted pairs ("key"=>"value"), a half-quoted variant (key=>"value"),
// or loose comma-separated k=v pairs. Normalize tries these in order and
// returns whatever it can recover.
//
// The package never returns an error: an unparsable blob degrades to an empty
// map and unparsable fragments inside a blob are silently dropped. Missing
// tag data is an acceptable outcome for the import pipeline; a hard failure
// here is not.
package tagparse

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Pre-compiled regexes avoid recompilation on every call.
var (
	// reQuotedPair matches hstore-style pairs: "key"=>"value".
	// Both sides may contain escaped quotes; we keep the lenient form used by
	// the upstream exports, which never escape inside values.
	reQuotedPair = regexp.MustCompile(`"([^"]+)"\s*=>\s*"([^"]*)"`)

	// reBarePair matches the half-quoted variant: key=>"value".
	// The key runs up to the arrow and must not itself be quoted (those are
	// handled by reQuotedPair first).
	reBarePair = regexp.MustCompile(`([A-Za-z0-9_:.\-]+)\s*=>\s*"([^"]*)"`)
)

// Normalize parses a raw tag blob into a key/value map.
//
// Tiers, first hit wins:
//
//  1. JSON object: if the blob decodes to an object, its members are returned
//     directly (values stringified).
//  2. Quoted hstore pairs: all "k"=>"v" matches accumulate into the map.
//  3. Half-quoted pairs: all k=>"v" matches accumulate into the map.
//  4. Loose pairs: the blob is split on commas (quote-aware, so commas inside
//     quoted values do not split a pair) and each segment is split on its
//     first '='; quotes and whitespace are trimmed from both sides.
//
// Empty or whitespace-only input yields an empty, non-nil map. Fragments that
// fit no tier are dropped.
func Normalize(raw string) map[string]string {
	out := map[string]string{}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out
	}

	if m, ok := parseJSONObject(raw); ok {
		return m
	}

	for _, p := range reQuotedPair.FindAllStringSubmatch(raw, -1) {
		out[p[1]] = p[2]
	}
	if len(out) > 0 {
		return out
	}

	for _, p := range reBarePair.FindAllStringSubmatch(raw, -1) {
		out[p[1]] = p[2]
	}
	if len(out) > 0 {
		return out
	}

	for _, seg := range splitQuoteAware(raw, ',') {
		k, v, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		k = trimQuotes(k)
		v = trimQuotes(v)
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// parseJSONObject attempts to decode raw as a JSON object with scalar values.
//
// Non-string scalars are stringified via json.Number semantics so that
// {"layer": 1} round-trips as "1" rather than "1.000000". Nested objects and
// arrays are dropped: tag values are flat strings by contract.
func parseJSONObject(raw string) (map[string]string, bool) {
	if !strings.HasPrefix(raw, "{") {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}

	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch t := v.(type) {
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case bool:
			if t {
				out[k] = "yes"
			} else {
				out[k] = "no"
			}
		case nil:
			// null tag values carry no information; drop them.
		default:
			// nested object/array: not a tag value.
		}
	}
	return out, true
}

// splitQuoteAware splits s on sep, ignoring separators that appear inside
// double-quoted substrings. A trailing unterminated quote swallows the rest
// of the input into the final segment, which matches how the upstream blobs
// are truncated in practice.
func splitQuoteAware(s string, sep byte) []string {
	var (
		parts    []string
		start    int
		inQuotes bool
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case sep:
			if !inQuotes {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// trimQuotes trims whitespace and then a single layer of surrounding single
// or double quotes.
func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	return strings.TrimSpace(s)
}
