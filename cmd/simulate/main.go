package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"pack_simulator/internal/config"
	"pack_simulator/internal/export"
	"pack_simulator/internal/metrics"
	"pack_simulator/internal/profile"
	"pack_simulator/internal/report"
	"pack_simulator/internal/sim"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (built-in defaults when empty)")
	profileKind := flag.String("profile", "synthetic", "current profile: synthetic, constant, pulse, cccv")
	currentA := flag.Float64("current", 60, "current amplitude in A for constant/pulse profiles")
	protocol := flag.String("protocol", "supercharger", "charging protocol for the cccv profile")
	seed := flag.Int64("seed", 42, "drive cycle seed for the synthetic profile")
	name := flag.String("name", "run", "run name for exports and the database")
	outDir := flag.String("out-dir", "output", "directory for CSV, JSON, plots and dashboard")
	dbPath := flag.String("db", "", "SQLite database path (skip persistence when empty)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}

	s, err := cfg.Build(nil)
	if err != nil {
		log.Fatalf("Failed to build simulator: %v", err)
	}

	p, err := buildProfile(*profileKind, &cfg, *currentA, *protocol, *seed)
	if err != nil {
		log.Fatalf("Failed to build profile: %v", err)
	}

	log.Printf("Running %s profile: %d samples over %.0f s", *profileKind, p.Len(), p.Duration())
	tr, err := s.Run(p)
	if err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}
	s.Complete()

	capacityAh := cfg.Cell.CapacityAh * float64(cfg.Pack.ParallelCells)
	m, err := metrics.Compute(tr, cfg.Thermal.MassKg, capacityAh)
	if err != nil {
		log.Fatalf("Failed to compute metrics: %v", err)
	}
	printMetrics(s.Summarize(), m)

	if err := writeOutputs(*outDir, *name, tr, m, &cfg); err != nil {
		log.Fatalf("Failed to write outputs: %v", err)
	}

	if *dbPath != "" {
		store, err := export.OpenStore(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer store.Close()

		id, err := store.SaveRun(*name, tr)
		if err != nil {
			log.Fatalf("Failed to save run: %v", err)
		}
		log.Printf("Saved run %d to %s", id, *dbPath)
	}
}

func buildProfile(kind string, cfg *config.Config, currentA float64, protocol string, seed int64) (sim.Profile, error) {
	switch kind {
	case "synthetic":
		peak := cfg.Pack.MaxCurrentA * 0.75
		rng := rand.New(rand.NewSource(seed))
		return profile.Synthetic(cfg.Sim.TotalS, cfg.Sim.DtS, peak, rng), nil
	case "constant":
		return profile.Constant(currentA, cfg.Sim.TotalS, cfg.Sim.DtS), nil
	case "pulse":
		return profile.Pulse(currentA, 0, 60, cfg.Sim.TotalS, cfg.Sim.DtS), nil
	case "cccv":
		ch, err := profile.ParamsFor(profile.Protocol(protocol), cfg.Pack)
		if err != nil {
			return sim.Profile{}, err
		}
		ch.SOCStart = cfg.Sim.InitialSOC
		return profile.CCCV(cfg.Cell, cfg.Pack, ch)
	default:
		return sim.Profile{}, fmt.Errorf("unknown profile kind %q", kind)
	}
}

func printMetrics(sum sim.Summary, m metrics.Metrics) {
	fmt.Println()
	fmt.Println("Run Summary")
	fmt.Printf("  Steps:        %d (%.0f s)\n", sum.Steps, sum.DurationS)
	fmt.Printf("  Energy:       %.1f Wh out, %.1f Wh in\n", sum.EnergyOutWh, sum.EnergyInWh)
	fmt.Printf("  SOC:          %.3f -> %.3f (used %.3f)\n", m.InitialSOC, m.FinalSOC, m.SOCUsed)
	fmt.Printf("  Voltage:      %.1f V min, %.1f V max, %.2f V sag\n", m.MinVoltageV, m.MaxVoltageV, m.VoltageSagV)
	fmt.Printf("  Temperature:  %.1f K peak (+%.1f K rise)\n", m.PeakTempK, m.TempRiseK)
	fmt.Printf("  Power:        %.0f W peak, %.0f W avg, %.1f W/kg\n", m.PeakPowerW, m.AvgPowerW, m.PowerDensityWKg)
	fmt.Printf("  C-rate:       %.2f avg, %.2f peak\n", m.CRateAvg, m.CRatePeak)
	fmt.Printf("  Throughput:   %.1f Ah (%.2f equivalent full cycles)\n", m.ThroughputAh, m.EquivalentFullCycles)
	if sum.Violations > 0 {
		fmt.Printf("  Violations:   %d flagged steps\n", sum.Violations)
	}
	fmt.Println()
}

func writeOutputs(dir, name string, tr *sim.Trace, m metrics.Metrics, cfg *config.Config) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	csvPath := filepath.Join(dir, name+".csv")
	if err := export.WriteCSVFile(csvPath, tr); err != nil {
		return err
	}
	log.Printf("Wrote %s", csvPath)

	meta := map[string]any{
		"name":           name,
		"series_cells":   cfg.Pack.SeriesCells,
		"parallel_cells": cfg.Pack.ParallelCells,
		"capacity_ah":    cfg.Cell.CapacityAh,
		"metrics":        m,
	}
	jsonPath := filepath.Join(dir, name+".json")
	if err := export.WriteJSONFile(jsonPath, tr, meta); err != nil {
		return err
	}
	log.Printf("Wrote %s", jsonPath)

	plots, err := report.SaveTracePlots(dir, tr)
	if err != nil {
		return err
	}
	for _, p := range plots {
		log.Printf("Wrote %s", p)
	}

	htmlPath := filepath.Join(dir, name+".html")
	if err := report.SaveDashboard(htmlPath, tr, name); err != nil {
		return err
	}
	log.Printf("Wrote %s", htmlPath)
	return nil
}
