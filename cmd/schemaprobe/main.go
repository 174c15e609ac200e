// Command schemaprobe prints the live column set of the POI table.
//
// The importer discovers columns at call time and silently skips fields
// without one; this tool makes that discovery visible, so "why is phone
// empty" is answerable without reading database catalogs by hand. Unlike the
// importer, a probe failure here is loud.
//
// Output is one column name per line (sorted), or a JSON array with -json.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"planvoyage/internal/config"
	"planvoyage/internal/poistore"

	// register all backends with the poistore factory.
	_ "planvoyage/internal/poistore/all"
)

func main() {
	var (
		flagConfig  = flag.String("config", "configs/poimport.json", "pipeline config JSON path")
		flagTable   = flag.String("table", "", "table to probe; defaults to the configured table")
		flagJSON    = flag.Bool("json", false, "print a JSON array instead of lines")
		flagTimeout = flag.Duration("timeout", 15*time.Second, "overall timeout")
	)
	flag.Parse()

	f, err := os.Open(*flagConfig)
	if err != nil {
		log.Fatalf("open config: %v", err)
	}
	defer f.Close()

	var p config.Pipeline
	if err := json.NewDecoder(f).Decode(&p); err != nil {
		log.Fatalf("decode config: %v", err)
	}
	issues := config.Validate(p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasError(issues) {
		os.Exit(2)
	}

	table := *flagTable
	if table == "" {
		table = p.Storage.Table
	}

	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	store, err := poistore.New(ctx, poistore.Config{Kind: p.Storage.Kind, DSN: p.Storage.ExpandedDSN()})
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	cols, err := store.Columns(ctx, table)
	if err != nil {
		log.Fatalf("probe %s: %v", table, err)
	}
	sorted := poistore.SortedColumns(cols)

	if *flagJSON {
		enc := json.NewEncoder(os.Stdout)
		if err := enc.Encode(sorted); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}
	for _, c := range sorted {
		fmt.Println(c)
	}
}
