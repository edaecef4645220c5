package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.ngs.io/mom6-diags/internal/adapter/store/obs"
	"go.ngs.io/mom6-diags/internal/config"
	"go.ngs.io/mom6-diags/internal/synth"
)

func main() {
	// Command line flags
	outDir := flag.String("out", "./data/synth", "Output directory for the synthetic case")
	name := flag.String("name", "synthetic", "Case name used in history file names")
	years := flag.Int("years", 3, "Number of model years (one history file per year)")
	firstYear := flag.Int("first-year", 1, "Model year of the first history file")
	bias := flag.Float64("bias", 5.0, "Mixed layer depth bias of the model against the observations (m)")
	nx := flag.Int("nx", 36, "Zonal grid points")
	ny := flag.Int("ny", 18, "Meridional grid points")
	dropBLD := flag.Int("drop-oml-year", -1, "0-based year index whose history file omits oml (-1 keeps it)")
	workers := flag.Int("workers", 2, "compute.workers in the generated configuration")

	flag.Parse()

	if *years <= 0 {
		log.Fatalf("-years must be positive, got %d", *years)
	}
	if *nx < 2 || *ny < 2 {
		log.Fatalf("grid must be at least 2x2, got %dx%d", *nx, *ny)
	}

	g := synth.DefaultGrid()
	g.NX, g.NY = *nx, *ny

	opt := synth.CaseOptions{
		Name:      *name,
		Grid:      g,
		Years:     *years,
		FirstYear: *firstYear,
		Bias:      *bias,
	}
	if *dropBLD >= 0 {
		opt.DropVars = map[int][]string{*dropBLD: {"oml"}}
	}

	fmt.Printf("Generating synthetic MOM6 case %q\n", *name)
	fmt.Printf("Grid: %dx%d, years %04d-%04d, MLD bias %.2f m\n",
		g.NX, g.NY, *firstYear, *firstYear+*years-1, *bias)

	c, err := synth.WriteCase(*outDir, opt)
	if err != nil {
		log.Fatalf("Failed to write case: %v", err)
	}
	fmt.Printf("  Created: %s\n", c.Static)
	for _, p := range c.History {
		fmt.Printf("  Created: %s\n", p)
	}
	fmt.Printf("  Created: %s\n", c.Obs)

	catalog := &obs.Catalog{Datasets: map[string]obs.Entry{
		"synthetic": {
			Path:        filepath.Base(c.Obs),
			Description: "Synthetic monthly surface climatology",
			Variables:   map[string]string{"MLD": "mld", "SSH": "ssh"},
		},
	}}
	catalogPath := filepath.Join(*outDir, "catalog.yml")
	if err := catalog.Save(catalogPath); err != nil {
		log.Fatalf("Failed to write catalog: %v", err)
	}
	fmt.Printf("  Created: %s\n", catalogPath)

	cfg := config.Default()
	cfg.Case.Name = *name
	cfg.Case.Label = "synthetic"
	cfg.Avg.StartDate = fmt.Sprintf("%04d-01-01", *firstYear)
	cfg.Avg.EndDate = fmt.Sprintf("%04d-01-01", *firstYear+*years)
	cfg.Fnames.Basins = filepath.Base(c.Static)
	cfg.Obs.Catalog = "catalog.yml"
	cfg.Obs.Dataset = "synthetic"
	cfg.Compute.Workers = *workers
	cfg.Regions = map[string][]int{"South": {1}, "North": {2}}

	raw, err := cfg.Marshal()
	if err != nil {
		log.Fatalf("Failed to encode config: %v", err)
	}
	cfgPath := filepath.Join(*outDir, "diag_config.yml")
	if err := os.WriteFile(cfgPath, raw, 0o600); err != nil {
		log.Fatalf("Failed to write config: %v", err)
	}
	fmt.Printf("  Created: %s\n", cfgPath)

	fmt.Println("\nRun the diagnostics with:")
	fmt.Printf("  mom6diag run %s\n", cfgPath)
}
