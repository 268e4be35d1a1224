package main

import (
	"flag"
	"fmt"
	"log"

	"pack_simulator/internal/cell"
	"pack_simulator/internal/config"
	"pack_simulator/internal/limits"
	"pack_simulator/internal/report"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (built-in defaults when empty)")
	tempC := flag.Float64("temp", 25, "cell temperature in °C")
	points := flag.Int("points", 21, "number of SOC points")
	plotPath := flag.String("plot", "", "power envelope plot path (skip when empty)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}

	ecm, err := cell.New(cfg.Cell)
	if err != nil {
		log.Fatalf("Failed to build cell model: %v", err)
	}

	tempK := *tempC + 273.15
	curve := limits.Curve(ecm, cfg.Pack, tempK, *points)

	fmt.Println()
	fmt.Printf("Power limits for %ds%dp pack at %.1f °C\n", cfg.Pack.SeriesCells, cfg.Pack.ParallelCells, *tempC)
	fmt.Println()
	fmt.Println("   SOC   Discharge A   Discharge kW    Charge A    Charge kW")
	for _, pl := range curve {
		fmt.Printf("  %4.2f   %11.1f   %12.2f   %9.1f   %10.2f\n",
			pl.SOC, pl.MaxDischargeA, pl.MaxDischargeW/1000, pl.MaxChargeA, pl.MaxChargeW/1000)
	}
	fmt.Println()

	if *plotPath != "" {
		if err := report.SaveLimitsPlot(*plotPath, curve); err != nil {
			log.Fatalf("Failed to save plot: %v", err)
		}
		log.Printf("Wrote %s", *plotPath)
	}
}
