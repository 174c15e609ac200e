// Command revgeo reverse-geocodes a single coordinate and prints the
// resolved place as JSON.
//
// It exercises exactly the resolution chain the importer uses (local
// boundary store first, remote Nominatim fallback), so an operator can check
// why an imported row got the location fields it did.
//
// Examples:
//
//	revgeo -lat 48.137 -lon 11.575 -boundaries boundaries.geojson
//	revgeo -lat 48.137 -lon 11.575 -nominatim https://nominatim.openstreetmap.org
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"planvoyage/internal/geocode"
)

func main() {
	var (
		flagLat        = flag.Float64("lat", 0, "latitude in decimal degrees")
		flagLon        = flag.Float64("lon", 0, "longitude in decimal degrees")
		flagBoundaries = flag.String("boundaries", "", "GeoJSON FeatureCollection of administrative polygons")
		flagNominatim  = flag.String("nominatim", "", "Nominatim-style base URL for the remote fallback")
		flagUserAgent  = flag.String("user-agent", "planvoyage-revgeo", "User-Agent for remote calls")
		flagTimeout    = flag.Duration("timeout", 10*time.Second, "overall timeout")
	)
	flag.Parse()

	if *flagLat < -90 || *flagLat > 90 || *flagLon < -180 || *flagLon > 180 {
		fmt.Fprintln(os.Stderr, "coordinates out of range")
		os.Exit(2)
	}
	if *flagBoundaries == "" && *flagNominatim == "" {
		fmt.Fprintln(os.Stderr, "need -boundaries and/or -nominatim")
		flag.Usage()
		os.Exit(2)
	}

	resolver := &geocode.Resolver{}
	if *flagBoundaries != "" {
		bs, err := geocode.LoadBoundaries(*flagBoundaries)
		if err != nil {
			log.Fatalf("boundaries: %v", err)
		}
		resolver.Boundaries = bs
	}
	if *flagNominatim != "" {
		resolver.Remote = &geocode.NominatimClient{
			BaseURL:   *flagNominatim,
			UserAgent: *flagUserAgent,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	place, source := resolver.ResolveSource(ctx, *flagLat, *flagLon)

	out := struct {
		geocode.Place
		Source string `json:"source"`
	}{Place: place, Source: source}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode: %v", err)
	}
}
