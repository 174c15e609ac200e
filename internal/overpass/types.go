package overpass

import (
	"fmt"
	"strconv"
	"strings"
)

// Center is the centroid Overpass reports for ways and relations when the
// query asks for "out center".
type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Element is one feature in an Overpass response.
//
// Nodes carry lat/lon directly; ways and relations carry a Center instead.
// Use Coordinates to read either form.
type Element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat,omitempty"`
	Lon    float64           `json:"lon,omitempty"`
	Center *Center           `json:"center,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Response is the JSON envelope returned by Overpass-style endpoints.
type Response struct {
	Elements []Element `json:"elements"`
}

// Coordinates returns the element position, preferring direct lat/lon and
// falling back to the center point. ok is false when neither is present.
func (e *Element) Coordinates() (lat, lon float64, ok bool) {
	if e.Lat != 0 || e.Lon != 0 {
		return e.Lat, e.Lon, true
	}
	if e.Center != nil && (e.Center.Lat != 0 || e.Center.Lon != 0) {
		return e.Center.Lat, e.Center.Lon, true
	}
	return 0, 0, false
}

// ExternalID renders the stable identifier stored with imported rows,
// e.g. "node/240109189".
func (e *Element) ExternalID() string {
	return fmt.Sprintf("%s/%d", e.Type, e.ID)
}

// ParseExternalID splits an external id of the form "<kind>/<id>" into its
// parts. kind must be node, way or relation.
func ParseExternalID(s string) (kind string, id int64, err error) {
	kind, rest, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return "", 0, fmt.Errorf("external id %q: want <kind>/<id>", s)
	}
	switch kind {
	case "node", "way", "relation":
	default:
		return "", 0, fmt.Errorf("external id %q: unknown kind %q", s, kind)
	}
	id, err = strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("external id %q: bad numeric id", s)
	}
	return kind, id, nil
}

// QueryByID builds the Overpass QL query fetching a single feature with its
// tags and centroid.
func QueryByID(kind string, id int64) string {
	return fmt.Sprintf("[out:json][timeout:25];%s(%d);out center;", kind, id)
}
