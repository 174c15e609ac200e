// Package geocode resolves coordinates into city/state/country names.
//
// Resolution is a fallback chain: a local administrative-boundary store is
// consulted first (no network, no rate limits), and a remote reverse-geocoding
// call is made only when the local store is absent or yields nothing useful.
// Either source may be missing or broken; Resolve degrades to an empty Place
// and never reports an error, because missing location enrichment is an
// acceptable outcome for the import pipeline.
package geocode

import "context"

// Place is a resolved administrative location. Any field may be empty.
type Place struct {
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
}

// Empty reports whether nothing was resolved.
func (p Place) Empty() bool {
	return p.City == "" && p.State == "" && p.Country == ""
}

// Admin-level thresholds for classifying boundaries, kept from the original
// heuristic: country sits at level 2, states around 4, municipalities around
// 8. Tagging is inconsistent worldwide, so the bands are deliberately wide.
const (
	maxCountryLevel = 3
	maxStateLevel   = 6
)

// Resolver chains the local boundary store and the remote reverse geocoder.
// Either field may be nil.
type Resolver struct {
	Boundaries *BoundaryStore
	Remote     *NominatimClient
}

// Resolution sources, reported by ResolveSource.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
	SourceNone   = "none"
)

// Resolve maps a coordinate to a Place.
//
// The local store wins when it produces at least one classified field; the
// remote call is a fallback, not a merge. Failures on both paths yield the
// zero Place. Resolve never returns an error to its caller.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64) Place {
	p, _ := r.ResolveSource(ctx, lat, lon)
	return p
}

// ResolveSource is Resolve plus the source that produced the Place
// (SourceLocal, SourceRemote, or SourceNone), for instrumentation.
func (r *Resolver) ResolveSource(ctx context.Context, lat, lon float64) (Place, string) {
	if r == nil {
		return Place{}, SourceNone
	}

	if r.Boundaries != nil {
		if p := classify(r.Boundaries.Containing(lat, lon)); !p.Empty() {
			return p, SourceLocal
		}
	}

	if r.Remote != nil {
		if p, err := r.Remote.Reverse(ctx, lat, lon); err == nil && !p.Empty() {
			return p, SourceRemote
		}
	}

	return Place{}, SourceNone
}

// classify buckets containing boundaries into country/state/city by admin
// level.
//
// Within each bucket the most specific usable level wins: the highest level
// still within the band for country and state, the lowest level above the
// state band for city (so a municipality beats a suburb). Unranked
// boundaries (level 0) are skipped.
func classify(bs []Boundary) Place {
	var (
		p          Place
		countryLvl int
		stateLvl   int
		cityLvl    int
	)

	for _, b := range bs {
		lvl := b.AdminLevel
		if lvl <= 0 {
			continue
		}
		switch {
		case lvl <= maxCountryLevel:
			if countryLvl == 0 || lvl > countryLvl {
				countryLvl = lvl
				p.Country = CountryCode(b.Name)
			}
		case lvl <= maxStateLevel:
			if stateLvl == 0 || lvl > stateLvl {
				stateLvl = lvl
				p.State = b.Name
			}
		default:
			if cityLvl == 0 || lvl < cityLvl {
				cityLvl = lvl
				p.City = b.Name
			}
		}
	}
	return p
}
