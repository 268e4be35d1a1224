package pack

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pack_simulator/internal/cell"
)

func newTestPack(t *testing.T, pp Params) *Pack {
	t.Helper()
	p, err := New(cell.DefaultParams(), pp, Options{}, nil)
	require.NoError(t, err)
	p.Reset(0.8)
	return p
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	bad := DefaultParams()
	bad.SeriesCells = 0
	assert.Error(t, bad.Validate())

	bad = DefaultParams()
	bad.MinSOC = 0.9
	bad.MaxSOC = 0.1
	assert.Error(t, bad.Validate())

	bad = DefaultParams()
	bad.MaxSOC = 1.5
	assert.Error(t, bad.Validate())
}

func TestNew_RejectsVariationWithoutRand(t *testing.T) {
	v := DefaultVariation()
	_, err := New(cell.DefaultParams(), DefaultParams(), Options{Variation: &v}, nil)
	assert.Error(t, err)
}

func TestStep_EqualBranchSplit(t *testing.T) {
	pp := DefaultParams()
	pp.SeriesCells = 4
	pp.ParallelCells = 3
	p := newTestPack(t, pp)

	out, err := p.Step(30.0, 1.0, []float64{298.15})
	require.NoError(t, err)

	assert.InDelta(t, 10.0, out.ICellMeanA, 1e-12)
	assert.Less(t, out.BranchCurrentErrA, 1e-9)

	// All cells identical, all states equal
	states := p.States()
	for b := range states {
		for i := range states[b] {
			assert.InDelta(t, states[0][0].SOC, states[b][i].SOC, 1e-15)
			assert.InDelta(t, states[0][0].V1V, states[b][i].V1V, 1e-15)
		}
	}
}

func TestStep_PackVoltageIsSeriesSum(t *testing.T) {
	pp := DefaultParams()
	pp.SeriesCells = 6
	pp.ParallelCells = 2
	p := newTestPack(t, pp)

	out, err := p.Step(0, 1.0, []float64{298.15})
	require.NoError(t, err)

	// At rest, pack voltage is Ns * OCV(soc)
	want := 6 * p.Base().OCV(0.8)
	assert.InDelta(t, want, out.VPackV, 1e-9)
	assert.InDelta(t, out.VPackV/6, out.VCellMeanV, 1e-12)
}

func TestStep_ConcreteDischargeScenario(t *testing.T) {
	// 5 Ah cell, 96s4p, 20 A pack => 5 A per branch.
	// 1800 s at 5 A: dSOC = 5*1800/(3600*5) = 0.5, so 0.8 -> 0.3.
	cp := cell.DefaultParams()
	cp.CapacityAh = 5.0
	cp.R0Ohm = 0.002
	cp.R1Ohm = 0.001
	cp.C1F = 2500.0
	cp.VMin = 2.8
	cp.VMax = 4.25

	pp := Params{SeriesCells: 96, ParallelCells: 4, MaxCurrentA: 200, MinSOC: 0.0, MaxSOC: 1.0}
	p, err := New(cp, pp, Options{}, nil)
	require.NoError(t, err)
	p.Reset(0.8)

	var out StepOutput
	for i := 0; i < 1800; i++ {
		out, err = p.Step(20.0, 1.0, []float64{298.15})
		require.NoError(t, err)
	}
	assert.InDelta(t, 0.3, out.SOCMean, 1e-9)
	assert.False(t, out.SOCClamped)

	// Terminal voltage sits near Ns*(OCV(0.3) - I*R0 - V1), within the window
	assert.Greater(t, out.VPackV, 96*cp.VMin)
	assert.Less(t, out.VPackV, 96*cp.VMax)
	approx := 96 * (p.Base().OCV(0.3) - 5.0*cp.R0Ohm - 5.0*cp.R1Ohm)
	assert.InDelta(t, approx, out.VPackV, 0.5)
}

func TestStep_OverDischargeSetsClampFlag(t *testing.T) {
	cp := cell.DefaultParams()
	cp.CapacityAh = 5.0
	pp := Params{SeriesCells: 96, ParallelCells: 4, MaxCurrentA: 200, MinSOC: 0.0, MaxSOC: 1.0}
	p, err := New(cp, pp, Options{}, nil)
	require.NoError(t, err)
	p.Reset(0.8)

	// 50 A pack for 3600 s would drive per-cell SOC to 0.8 - 2.5
	clamped := false
	for i := 0; i < 3600; i++ {
		out, err := p.Step(50.0, 1.0, []float64{298.15})
		require.NoError(t, err)
		clamped = clamped || out.SOCClamped
	}
	assert.True(t, clamped)

	soc, _ := p.MeanState()
	assert.InDelta(t, 0.0, soc, 1e-12)
}

func TestStep_HeatAggregation(t *testing.T) {
	pp := DefaultParams()
	pp.SeriesCells = 3
	pp.ParallelCells = 2
	p := newTestPack(t, pp)

	out, err := p.Step(20.0, 1.0, []float64{298.15})
	require.NoError(t, err)

	require.Len(t, out.HeatPerNodeW, 3)
	var sum float64
	for _, q := range out.HeatPerNodeW {
		sum += q
		assert.Greater(t, q, 0.0)
	}
	assert.InDelta(t, out.HeatTotalW, sum, 1e-9)
}

func TestStep_RejectsBadThermalNodeCount(t *testing.T) {
	pp := DefaultParams()
	pp.SeriesCells = 4
	p := newTestPack(t, pp)

	_, err := p.Step(1.0, 1.0, []float64{298.15, 298.15})
	assert.Error(t, err)
}

func TestVariation_DeterministicForSeed(t *testing.T) {
	cp := cell.DefaultParams()
	pp := DefaultParams()
	pp.SeriesCells = 8
	pp.ParallelCells = 2
	v := DefaultVariation()

	build := func() *Pack {
		p, err := New(cp, pp, Options{Variation: &v}, v.Rand())
		require.NoError(t, err)
		p.Reset(0.6)
		return p
	}

	p1, p2 := build(), build()
	out1, err := p1.Step(24.0, 1.0, []float64{298.15})
	require.NoError(t, err)
	out2, err := p2.Step(24.0, 1.0, []float64{298.15})
	require.NoError(t, err)

	assert.Equal(t, out1.VPackV, out2.VPackV)
	assert.Equal(t, out1.SOCMean, out2.SOCMean)
}

func TestVariation_ConductanceSplitStillReconciles(t *testing.T) {
	v := DefaultVariation()
	pp := DefaultParams()
	pp.SeriesCells = 6
	pp.ParallelCells = 4
	p, err := New(cell.DefaultParams(), pp, Options{Variation: &v}, v.Rand())
	require.NoError(t, err)
	p.Reset(0.7)

	out, err := p.Step(40.0, 1.0, []float64{298.15})
	require.NoError(t, err)
	assert.Less(t, out.BranchCurrentErrA, 1e-9)

	// Varied resistances produce unequal branch shares
	shares := make(map[float64]bool)
	for _, s := range p.branchShares {
		shares[s] = true
	}
	assert.Greater(t, len(shares), 1)
}

func TestBalancing_BleedsHighCellAtIdle(t *testing.T) {
	b := DefaultBalancing()
	pp := DefaultParams()
	pp.SeriesCells = 3
	pp.ParallelCells = 1
	p, err := New(cell.DefaultParams(), pp, Options{Balancing: &b}, nil)
	require.NoError(t, err)
	p.Reset(0.5)
	p.states[0][1].SOC = 0.55

	for i := 0; i < 100; i++ {
		_, err := p.Step(0, 10.0, []float64{298.15})
		require.NoError(t, err)
	}
	assert.Less(t, p.states[0][1].SOC, 0.55)
	// Untouched cells keep their SOC
	assert.InDelta(t, 0.5, p.states[0][0].SOC, 1e-9)

	// No bleeding under load
	p.Reset(0.5)
	p.states[0][1].SOC = 0.55
	before := p.states[0][1].SOC
	_, err = p.Step(50.0, 1.0, []float64{298.15})
	require.NoError(t, err)
	// Only coulomb counting moved it, no extra bleed beyond the step's dSOC
	dsoc := 50.0 * 1.0 / (3600.0 * cell.DefaultParams().CapacityAh)
	assert.InDelta(t, before-dsoc, p.states[0][1].SOC, 1e-9)
}

func TestAging_FadesCapacityWithThroughput(t *testing.T) {
	a := DefaultAging()
	pp := DefaultParams()
	pp.SeriesCells = 2
	pp.ParallelCells = 1
	p, err := New(cell.DefaultParams(), pp, Options{Aging: &a}, nil)
	require.NoError(t, err)
	p.Reset(0.9)

	before := p.cells[0][0].Params.CapacityAh
	for i := 0; i < 1000; i++ {
		_, err := p.Step(3.0, 1.0, []float64{298.15})
		require.NoError(t, err)
	}
	after := p.cells[0][0].Params.CapacityAh
	assert.Less(t, after, before)
	assert.Greater(t, p.cells[0][0].Params.R0Ohm, cell.DefaultParams().R0Ohm)

	// Reset restores pristine parameters for deterministic replay
	p.Reset(0.9)
	assert.Equal(t, before, p.cells[0][0].Params.CapacityAh)
}

func TestReset_ClearsState(t *testing.T) {
	pp := DefaultParams()
	pp.SeriesCells = 2
	pp.ParallelCells = 2
	p := newTestPack(t, pp)

	for i := 0; i < 10; i++ {
		_, err := p.Step(12.0, 1.0, []float64{298.15})
		require.NoError(t, err)
	}
	p.Reset(0.4)
	soc, v1 := p.MeanState()
	assert.InDelta(t, 0.4, soc, 1e-12)
	assert.InDelta(t, 0.0, v1, 1e-12)
	assert.True(t, math.Abs(p.states[0][0].ThroughputAh) < 1e-12)
}
