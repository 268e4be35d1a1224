package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"

	"pack_simulator/internal/config"
	"pack_simulator/internal/profile"
	"pack_simulator/internal/sim"
	"pack_simulator/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (built-in defaults when empty)")
	frontendDir := flag.String("frontend-dir", "frontend/build", "directory containing frontend build")
	addr := flag.String("addr", ":8080", "listen address")
	seed := flag.Int64("seed", 42, "drive cycle seed")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}

	hub := ws.NewHub()
	bridge := ws.NewBridge(hub)

	s, err := cfg.Build(bridge)
	if err != nil {
		log.Fatalf("Failed to build simulator: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	p := profile.Synthetic(cfg.Sim.TotalS, cfg.Sim.DtS, cfg.Pack.MaxCurrentA*0.75, rng)

	player := sim.NewPlayer(s, p)
	bridge.SetPlayer(player)
	handler := ws.NewHandler(hub, player, &cfg, p)

	log.Printf("Pack: %ds%dp, %.1f Ah cells, %.0f s drive cycle",
		cfg.Pack.SeriesCells, cfg.Pack.ParallelCells, cfg.Cell.CapacityAh, p.Duration())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("/ws", handler)

	if _, err := os.Stat(*frontendDir); err == nil {
		log.Printf("Serving frontend from %s", *frontendDir)
		mux.Handle("/", http.FileServer(http.Dir(*frontendDir)))
	}

	log.Printf("Starting server on %s", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal(err)
	}
}
