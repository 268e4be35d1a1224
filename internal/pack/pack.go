package pack

import (
	"fmt"
	"math"
	"math/rand"

	"pack_simulator/internal/cell"
)

// Params describes the series-parallel topology and operating window.
type Params struct {
	SeriesCells   int     `yaml:"series_cells"`
	ParallelCells int     `yaml:"parallel_cells"`
	MaxCurrentA   float64 `yaml:"max_current_a"`
	MinSOC        float64 `yaml:"min_soc"`
	MaxSOC        float64 `yaml:"max_soc"`
}

// DefaultParams returns a 40s3p pack with a 120 A limit.
func DefaultParams() Params {
	return Params{
		SeriesCells:   40,
		ParallelCells: 3,
		MaxCurrentA:   120.0,
		MinSOC:        0.1,
		MaxSOC:        0.9,
	}
}

// Validate reports the first invalid parameter, or nil.
func (p Params) Validate() error {
	if p.SeriesCells < 1 {
		return fmt.Errorf("pack: series_cells must be >= 1, got %d", p.SeriesCells)
	}
	if p.ParallelCells < 1 {
		return fmt.Errorf("pack: parallel_cells must be >= 1, got %d", p.ParallelCells)
	}
	if p.MaxCurrentA <= 0 {
		return fmt.Errorf("pack: max_current_a must be positive, got %g", p.MaxCurrentA)
	}
	if p.MinSOC < 0 || p.MaxSOC > 1 || p.MinSOC >= p.MaxSOC {
		return fmt.Errorf("pack: SOC window [%g, %g] must satisfy 0 <= min < max <= 1", p.MinSOC, p.MaxSOC)
	}
	return nil
}

// CellState is the per-cell electrical state, owned by the pack and mutated
// once per time step.
type CellState struct {
	SOC          float64
	V1V          float64
	ThroughputAh float64
}

// StepOutput is the aggregate result of advancing the whole pack one step.
// HeatPerNodeW is indexed by series position (summed across parallel
// branches) and is reused between steps; consumers must not retain it.
type StepOutput struct {
	VPackV            float64
	VCellMeanV        float64
	IPackA            float64
	ICellMeanA        float64
	SOCMean           float64
	SOCMin            float64
	SOCMax            float64
	HeatTotalW        float64
	HeatPerNodeW      []float64
	SOCClamped        bool
	BranchCurrentErrA float64
}

// Pack aggregates Ns series x Np parallel cells into one electrical state.
// Parallel branches share a common bus, so the pack voltage is Ns times the
// mean per-branch cell voltage; persistent branch imbalance comes from
// cell-to-cell variation, sampled once at construction.
type Pack struct {
	params Params
	base   cell.ECM

	// Indexed [branch][series].
	cells  [][]cell.ECM
	states [][]CellState

	// Pristine copy of the (possibly varied) cell params, restored on Reset
	// so a pack is a deterministic replayable unit even with aging enabled.
	pristine [][]cell.Params

	balancing *Balancing
	aging     *Aging

	varied bool

	// Scratch buffers reused across steps.
	heatPerNode  []float64
	branchShares []float64
}

// New builds a pack from a base cell. When opts.Variation is set, per-cell
// capacity and resistances are drawn once from rng (which must be non-nil)
// so imbalance is persistent and replayable for a fixed seed.
func New(base cell.Params, pp Params, opts Options, rng *rand.Rand) (*Pack, error) {
	if err := pp.Validate(); err != nil {
		return nil, err
	}
	baseECM, err := cell.New(base)
	if err != nil {
		return nil, err
	}
	if opts.Variation != nil {
		if err := opts.Variation.Validate(); err != nil {
			return nil, err
		}
		if rng == nil {
			return nil, fmt.Errorf("pack: variation requires an explicit seeded rand source")
		}
	}

	ns, np := pp.SeriesCells, pp.ParallelCells
	p := &Pack{
		params:       pp,
		base:         baseECM,
		cells:        make([][]cell.ECM, np),
		states:       make([][]CellState, np),
		pristine:     make([][]cell.Params, np),
		balancing:    opts.Balancing,
		aging:        opts.Aging,
		varied:       opts.Variation != nil,
		heatPerNode:  make([]float64, ns),
		branchShares: make([]float64, np),
	}

	for b := 0; b < np; b++ {
		p.cells[b] = make([]cell.ECM, ns)
		p.states[b] = make([]CellState, ns)
		p.pristine[b] = make([]cell.Params, ns)
		for i := 0; i < ns; i++ {
			cp := base
			if opts.Variation != nil {
				cp = opts.Variation.apply(base, rng)
			}
			ecm, err := cell.New(cp)
			if err != nil {
				return nil, fmt.Errorf("pack: varied cell [%d][%d]: %w", b, i, err)
			}
			p.cells[b][i] = ecm
			p.pristine[b][i] = cp
		}
	}
	return p, nil
}

// Params returns the pack topology parameters.
func (p *Pack) Params() Params { return p.params }

// Base returns the unvaried base cell model, used by limit queries.
func (p *Pack) Base() cell.ECM { return p.base }

// Ns returns the series cell count.
func (p *Pack) Ns() int { return p.params.SeriesCells }

// Np returns the parallel branch count.
func (p *Pack) Np() int { return p.params.ParallelCells }

// Reset sets every cell to the given SOC with a relaxed RC branch and
// restores pristine cell parameters.
func (p *Pack) Reset(initialSOC float64) {
	soc := clamp(initialSOC, 0, 1)
	for b := range p.states {
		for i := range p.states[b] {
			p.states[b][i] = CellState{SOC: soc}
			p.cells[b][i].Params = p.pristine[b][i]
		}
	}
}

// MeanState returns the mean SOC and RC-branch voltage across all cells.
func (p *Pack) MeanState() (soc, v1V float64) {
	var n float64
	for b := range p.states {
		for i := range p.states[b] {
			soc += p.states[b][i].SOC
			v1V += p.states[b][i].V1V
			n++
		}
	}
	return soc / n, v1V / n
}

// States returns the per-cell state grid indexed [branch][series]. The
// slices are owned by the pack; callers must not mutate them.
func (p *Pack) States() [][]CellState { return p.states }

// Step splits iPackA (positive = discharge) across parallel branches, runs
// every cell model, and aggregates terminal voltage and heat. nodeTempsK
// must have either one entry (lumped) or SeriesCells entries (per-node).
func (p *Pack) Step(iPackA, dtS float64, nodeTempsK []float64) (StepOutput, error) {
	ns, np := p.params.SeriesCells, p.params.ParallelCells
	if len(nodeTempsK) != 1 && len(nodeTempsK) != ns {
		return StepOutput{}, fmt.Errorf("pack: got %d thermal nodes, want 1 or %d", len(nodeTempsK), ns)
	}
	nodeTemp := func(i int) float64 {
		if len(nodeTempsK) == 1 {
			return nodeTempsK[0]
		}
		return nodeTempsK[i]
	}

	p.splitBranchCurrents(iPackA, nodeTempsK)

	out := StepOutput{
		IPackA:       iPackA,
		HeatPerNodeW: p.heatPerNode,
		SOCMin:       math.Inf(1),
		SOCMax:       math.Inf(-1),
	}
	for i := range p.heatPerNode {
		p.heatPerNode[i] = 0
	}

	var vBranchSum, socSum, iSum float64
	for b := 0; b < np; b++ {
		iBranch := iPackA * p.branchShares[b]
		iSum += iBranch

		var vString float64
		for i := 0; i < ns; i++ {
			st := &p.states[b][i]
			res := p.cells[b][i].Step(iBranch, dtS, st.V1V, nodeTemp(i), st.SOC)

			st.V1V = res.NextV1V
			st.SOC = res.NextSOC
			st.ThroughputAh += math.Abs(iBranch) * dtS / 3600.0

			vString += res.TerminalV
			p.heatPerNode[i] += res.HeatW
			out.HeatTotalW += res.HeatW
			socSum += res.NextSOC
			out.SOCMin = math.Min(out.SOCMin, res.NextSOC)
			out.SOCMax = math.Max(out.SOCMax, res.NextSOC)
			out.SOCClamped = out.SOCClamped || res.SOCClamped
		}
		vBranchSum += vString
	}

	out.BranchCurrentErrA = math.Abs(iSum - iPackA)
	out.VPackV = vBranchSum / float64(np)
	out.VCellMeanV = out.VPackV / float64(ns)
	out.ICellMeanA = iPackA / float64(np)
	out.SOCMean = socSum / float64(ns*np)

	if p.balancing != nil {
		p.applyBalancing(iPackA, dtS)
	}
	if p.aging != nil {
		p.applyAging(iPackA, dtS, nodeTempsK)
	}
	return out, nil
}

// splitBranchCurrents fills branchShares. Identical cells split equally;
// varied cells split in proportion to branch conductance so a low-resistance
// string persistently carries more current.
func (p *Pack) splitBranchCurrents(iPackA float64, nodeTempsK []float64) {
	np := p.params.ParallelCells
	if !p.varied {
		for b := range p.branchShares {
			p.branchShares[b] = 1.0 / float64(np)
		}
		return
	}

	var total float64
	for b := 0; b < np; b++ {
		var rString float64
		for i := range p.cells[b] {
			t := nodeTempsK[0]
			if len(nodeTempsK) > 1 {
				t = nodeTempsK[i]
			}
			r0, _ := p.cells[b][i].ResistancesAt(t)
			rString += r0
		}
		p.branchShares[b] = 1.0 / rString
		total += p.branchShares[b]
	}
	for b := range p.branchShares {
		p.branchShares[b] /= total
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
