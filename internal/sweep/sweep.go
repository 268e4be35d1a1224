// Package sweep runs a simulation per point of a pack design grid and
// collects thermal and efficiency outcomes for comparison.
package sweep

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"pack_simulator/internal/cell"
	"pack_simulator/internal/pack"
	"pack_simulator/internal/profile"
	"pack_simulator/internal/sim"
	"pack_simulator/internal/thermal"
)

// Grid enumerates the design axes. The cartesian product of all four lists
// is simulated.
type Grid struct {
	SeriesCells   []int     `yaml:"series_cells"`
	ParallelCells []int     `yaml:"parallel_cells"`
	UAWPerK       []float64 `yaml:"ua_w_per_k"`
	PeakCurrentA  []float64 `yaml:"peak_current_a"`
}

// Len returns the number of grid points.
func (g Grid) Len() int {
	return len(g.SeriesCells) * len(g.ParallelCells) * len(g.UAWPerK) * len(g.PeakCurrentA)
}

// Validate rejects empty axes.
func (g Grid) Validate() error {
	if g.Len() == 0 {
		return errors.New("sweep: every grid axis needs at least one value")
	}
	return nil
}

// Config carries the fixed parameters shared by all grid points.
type Config struct {
	Cell    cell.Params    `yaml:"cell"`
	Pack    pack.Params    `yaml:"pack"` // SOC window and current cap template
	Thermal thermal.Params `yaml:"thermal"`
	Sim     sim.Params     `yaml:"sim"`
	Seed    int64          `yaml:"seed"` // drive cycle seed, offset per point
}

// Point is the outcome of one grid point. RTEPercent is NaN when the round
// trip did not return to its starting SOC (for example because the SOC
// clamped at a bound mid-cycle).
type Point struct {
	SeriesCells   int     `json:"series_cells"`
	ParallelCells int     `json:"parallel_cells"`
	UAWPerK       float64 `json:"ua_w_per_k"`
	PeakCurrentA  float64 `json:"peak_current_a"`

	PeakTempK   float64 `json:"peak_temp_k"`
	RTEPercent  float64 `json:"rte_percent"`
	EnergyOutWh float64 `json:"energy_out_wh"`
	EnergyInWh  float64 `json:"energy_in_wh"`
	ViolTemp    bool    `json:"viol_temp"`
	ViolSOC     bool    `json:"viol_soc"`
}

// currentCap bounds the pack current by a per-branch rule of thumb.
func currentCap(np int, peakA float64) float64 {
	return math.Min(peakA, 300.0*float64(np))
}

// Run simulates every grid point concurrently and returns the points in
// grid order. Point failures are joined into a single error; successful
// points are still returned.
func Run(cfg Config, g Grid) ([]Point, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	points := make([]Point, g.Len())
	errs := make([]error, g.Len())

	var wg sync.WaitGroup
	idx := 0
	for _, ns := range g.SeriesCells {
		for _, np := range g.ParallelCells {
			for _, ua := range g.UAWPerK {
				for _, peak := range g.PeakCurrentA {
					wg.Add(1)
					go func(i, ns, np int, ua, peak float64) {
						defer wg.Done()
						points[i], errs[i] = runPoint(cfg, i, ns, np, ua, peak)
					}(idx, ns, np, ua, peak)
					idx++
				}
			}
		}
	}
	wg.Wait()

	return points, errors.Join(errs...)
}

func runPoint(cfg Config, i, ns, np int, ua, peak float64) (Point, error) {
	pt := Point{
		SeriesCells:   ns,
		ParallelCells: np,
		UAWPerK:       ua,
		PeakCurrentA:  peak,
		RTEPercent:    math.NaN(),
	}

	pp := cfg.Pack
	pp.SeriesCells = ns
	pp.ParallelCells = np
	pp.MaxCurrentA = currentCap(np, peak)

	tp := cfg.Thermal
	tp.UAWPerK = ua

	pk, err := pack.New(cfg.Cell, pp, pack.Options{}, nil)
	if err != nil {
		return pt, fmt.Errorf("sweep: point %ds%dp: %w", ns, np, err)
	}
	th, err := thermal.NewLumped(tp)
	if err != nil {
		return pt, fmt.Errorf("sweep: point %ds%dp: %w", ns, np, err)
	}
	s, err := sim.New(pk, th, cfg.Sim, nil)
	if err != nil {
		return pt, fmt.Errorf("sweep: point %ds%dp: %w", ns, np, err)
	}

	cycle := profile.Synthetic(cfg.Sim.TotalS, cfg.Sim.DtS, peak,
		rand.New(rand.NewSource(cfg.Seed+int64(i))))

	trace, err := s.Run(cycle)
	if err != nil {
		return pt, fmt.Errorf("sweep: point %ds%dp: %w", ns, np, err)
	}

	for _, r := range trace.Records() {
		pt.PeakTempK = math.Max(pt.PeakTempK, r.TempMaxK)
		if r.SOC < pp.MinSOC || r.SOC > pp.MaxSOC {
			pt.ViolSOC = true
		}
	}
	pt.ViolTemp = pt.PeakTempK > tp.TMaxK+1e-6

	rte, _, _, err := s.RoundTrip(cycle, cfg.Sim.InitialSOC)
	switch {
	case errors.Is(err, sim.ErrUndefinedMetric):
		// leave RTEPercent NaN
	case err != nil:
		return pt, fmt.Errorf("sweep: point %ds%dp: %w", ns, np, err)
	default:
		pt.RTEPercent = rte.RTEPercent
		pt.EnergyOutWh = rte.EnergyOutWh
		pt.EnergyInWh = rte.EnergyInWh
	}
	return pt, nil
}
