package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"pack_simulator/internal/config"
	"pack_simulator/internal/export"
	"pack_simulator/internal/report"
	"pack_simulator/internal/sweep"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file for shared parameters")
	seriesList := flag.String("series", "32,40,48", "comma-separated series cell counts")
	parallelList := flag.String("parallel", "2,3,4", "comma-separated parallel cell counts")
	uaList := flag.String("ua", "4,8,12", "comma-separated cooling UA values in W/K")
	peakList := flag.String("peak", "60,120,180", "comma-separated peak currents in A")
	seed := flag.Int64("seed", 42, "base drive cycle seed")
	dbPath := flag.String("db", "", "SQLite database path (skip persistence when empty)")
	htmlPath := flag.String("html", "", "sweep scatter page path (skip when empty)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}

	grid, err := parseGrid(*seriesList, *parallelList, *uaList, *peakList)
	if err != nil {
		log.Fatalf("Invalid grid: %v", err)
	}

	sc := sweep.Config{
		Cell:    cfg.Cell,
		Pack:    cfg.Pack,
		Thermal: cfg.Thermal,
		Sim:     cfg.Sim,
		Seed:    *seed,
	}

	log.Printf("Sweeping %d grid points...", grid.Len())
	points, err := sweep.Run(sc, grid)
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}
	printPoints(points)

	if *dbPath != "" {
		store, err := export.OpenStore(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer store.Close()

		id, err := store.SaveSweep(points)
		if err != nil {
			log.Fatalf("Failed to save sweep: %v", err)
		}
		log.Printf("Saved sweep %d to %s", id, *dbPath)
	}

	if *htmlPath != "" {
		f, err := os.Create(*htmlPath)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", *htmlPath, err)
		}
		defer f.Close()
		if err := report.RenderSweep(f, points, "Design Sweep"); err != nil {
			log.Fatalf("Failed to render sweep page: %v", err)
		}
		log.Printf("Wrote %s", *htmlPath)
	}
}

func parseGrid(series, parallel, ua, peak string) (sweep.Grid, error) {
	ns, err := parseInts(series)
	if err != nil {
		return sweep.Grid{}, fmt.Errorf("series: %w", err)
	}
	np, err := parseInts(parallel)
	if err != nil {
		return sweep.Grid{}, fmt.Errorf("parallel: %w", err)
	}
	uas, err := parseFloats(ua)
	if err != nil {
		return sweep.Grid{}, fmt.Errorf("ua: %w", err)
	}
	peaks, err := parseFloats(peak)
	if err != nil {
		return sweep.Grid{}, fmt.Errorf("peak: %w", err)
	}

	g := sweep.Grid{SeriesCells: ns, ParallelCells: np, UAWPerK: uas, PeakCurrentA: peaks}
	return g, g.Validate()
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func printPoints(points []sweep.Point) {
	fmt.Println()
	fmt.Println("  Ns   Np    UA    Peak A   Peak T (K)    RTE %   Viol")
	for _, p := range points {
		rte := "    --"
		if !math.IsNaN(p.RTEPercent) {
			rte = fmt.Sprintf("%6.2f", p.RTEPercent)
		}
		viol := ""
		if p.ViolTemp {
			viol += "T"
		}
		if p.ViolSOC {
			viol += "S"
		}
		fmt.Printf("  %2ds  %2dp  %4.1f  %6.1f  %10.2f   %s   %s\n",
			p.SeriesCells, p.ParallelCells, p.UAWPerK, p.PeakCurrentA, p.PeakTempK, rte, viol)
	}
	fmt.Println()
}
