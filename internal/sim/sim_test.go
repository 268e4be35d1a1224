package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pack_simulator/internal/cell"
	"pack_simulator/internal/pack"
	"pack_simulator/internal/thermal"
)

func constantProfile(currentA, durationS, dtS float64) Profile {
	n := int(durationS/dtS) + 1
	p := Profile{
		TimeS:    make([]float64, n),
		CurrentA: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		p.TimeS[i] = float64(i) * dtS
		p.CurrentA[i] = currentA
	}
	return p
}

func newTestSim(t *testing.T, cp cell.Params, pp pack.Params, sp Params) *Simulator {
	t.Helper()
	pk, err := pack.New(cp, pp, pack.Options{}, nil)
	require.NoError(t, err)
	th, err := thermal.NewLumped(thermal.DefaultParams())
	require.NoError(t, err)
	s, err := New(pk, th, sp, nil)
	require.NoError(t, err)
	return s
}

func defaultTestSim(t *testing.T) *Simulator {
	sp := DefaultParams()
	pp := pack.DefaultParams()
	pp.MinSOC, pp.MaxSOC = 0.0, 1.0
	return newTestSim(t, cell.DefaultParams(), pp, sp)
}

func TestNew_ValidatesConfiguration(t *testing.T) {
	pk, err := pack.New(cell.DefaultParams(), pack.DefaultParams(), pack.Options{}, nil)
	require.NoError(t, err)
	th, err := thermal.NewLumped(thermal.DefaultParams())
	require.NoError(t, err)

	bad := DefaultParams()
	bad.InitialSOC = 1.5
	_, err = New(pk, th, bad, nil)
	assert.Error(t, err)

	bad = DefaultParams()
	bad.DtS = -1
	_, err = New(pk, th, bad, nil)
	assert.Error(t, err)
}

func TestNew_RejectsUnstableThermalStep(t *testing.T) {
	pk, err := pack.New(cell.DefaultParams(), pack.DefaultParams(), pack.Options{}, nil)
	require.NoError(t, err)

	tp := thermal.DefaultParams()
	tp.MassKg = 0.001
	tp.CpJPerKgK = 1.0
	tp.UAWPerK = 10.0 // dt*UA/(m*Cp) = 10000 >> 2
	th, err := thermal.NewLumped(tp)
	require.NoError(t, err)

	_, err = New(pk, th, DefaultParams(), nil)
	assert.Error(t, err)
}

func TestNew_RejectsNodeCountMismatch(t *testing.T) {
	pk, err := pack.New(cell.DefaultParams(), pack.DefaultParams(), pack.Options{}, nil)
	require.NoError(t, err)

	// 5 nodes against a 40-series pack
	th, err := thermal.NewNetwork(thermal.DefaultParams(), thermal.NetworkParams{Nodes: 5, Mode: thermal.CoolingAir})
	require.NoError(t, err)
	_, err = New(pk, th, DefaultParams(), nil)
	assert.Error(t, err)
}

func TestRun_PhaseTransitions(t *testing.T) {
	s := defaultTestSim(t)
	assert.Equal(t, PhaseInitialized, s.Phase())

	trace, err := s.Run(constantProfile(10, 60, 1))
	require.NoError(t, err)
	assert.Equal(t, PhaseComplete, s.Phase())
	assert.Equal(t, 61, trace.Len())

	// A completed simulator refuses more work until reset
	_, err = s.Run(constantProfile(10, 60, 1))
	assert.Error(t, err)
	_, err = s.StepOne(100, 5)
	assert.Error(t, err)

	s.Reset(0.5)
	assert.Equal(t, PhaseInitialized, s.Phase())
}

func TestRun_ZeroCurrentIsIdempotent(t *testing.T) {
	s := defaultTestSim(t)
	trace, err := s.Run(constantProfile(0, 3600, 1))
	require.NoError(t, err)

	last, ok := trace.Last()
	require.True(t, ok)
	assert.InDelta(t, 0.8, last.SOC, 1e-9)
	assert.InDelta(t, thermal.DefaultParams().TAmbientK, last.TempK, 1e-9)
	assert.Zero(t, last.Flags)
}

func TestRun_SOCMonotoneUnderSignedCurrent(t *testing.T) {
	s := defaultTestSim(t)
	trace, err := s.Run(constantProfile(30, 600, 1))
	require.NoError(t, err)
	recs := trace.Records()
	for i := 1; i < len(recs); i++ {
		assert.Less(t, recs[i].SOC, recs[i-1].SOC, "SOC must fall during discharge")
	}

	s.Reset(0.2)
	trace, err = s.Run(constantProfile(-30, 600, 1))
	require.NoError(t, err)
	recs = trace.Records()
	for i := 1; i < len(recs); i++ {
		assert.Greater(t, recs[i].SOC, recs[i-1].SOC, "SOC must rise during charge")
	}
}

func TestRun_TemperatureRisesUnderLoad(t *testing.T) {
	s := defaultTestSim(t)
	trace, err := s.Run(constantProfile(90, 1200, 1))
	require.NoError(t, err)

	first := trace.Records()[0]
	last, _ := trace.Last()
	assert.Greater(t, last.TempK, first.TempK)
	assert.Greater(t, last.HeatW, 0.0)
}

func TestRun_EnergyConservation(t *testing.T) {
	// Integrated heat equals stored thermal energy plus rejected energy.
	tp := thermal.DefaultParams()
	pk, err := pack.New(cell.DefaultParams(), pack.DefaultParams(), pack.Options{}, nil)
	require.NoError(t, err)
	th, err := thermal.NewLumped(tp)
	require.NoError(t, err)
	s, err := New(pk, th, DefaultParams(), nil)
	require.NoError(t, err)

	const dt = 1.0
	profile := constantProfile(60, 900, dt)

	var heatIn, rejected float64
	prevTemp := tp.TAmbientK
	for i := range profile.TimeS {
		rejected += tp.UAWPerK * (prevTemp - tp.TAmbientK) * dt
		rec, err := s.StepOne(profile.TimeS[i], profile.CurrentA[i])
		require.NoError(t, err)
		heatIn += rec.HeatW * dt
		prevTemp = rec.TempK
	}
	stored := tp.MassKg * tp.CpJPerKgK * (prevTemp - tp.TAmbientK)
	// First sample acts over a ~zero interval; allow its heat in the budget.
	assert.InDelta(t, heatIn, stored+rejected, heatIn*1e-2+1)
}

func TestRun_FlagsOverTempAndContinues(t *testing.T) {
	tp := thermal.DefaultParams()
	tp.MassKg = 0.5 // tiny thermal mass heats fast
	pk, err := pack.New(cell.DefaultParams(), pack.DefaultParams(), pack.Options{}, nil)
	require.NoError(t, err)
	th, err := thermal.NewLumped(tp)
	require.NoError(t, err)
	s, err := New(pk, th, DefaultParams(), nil)
	require.NoError(t, err)

	trace, err := s.Run(constantProfile(120, 1800, 1))
	require.NoError(t, err)

	flagged := 0
	for _, r := range trace.Records() {
		if r.Flags.Has(FlagOverTemp) {
			flagged++
		}
	}
	assert.Greater(t, flagged, 0, "expected over-temperature flags")
	// The run still completed every step
	assert.Equal(t, 1801, trace.Len())
	assert.Equal(t, PhaseComplete, s.Phase())
}

func TestRun_FlagsSOCClamp(t *testing.T) {
	s := defaultTestSim(t)
	s.Reset(0.05)
	trace, err := s.Run(constantProfile(120, 3600, 1))
	require.NoError(t, err)
	assert.Greater(t, trace.Violations(), 0)

	last, _ := trace.Last()
	assert.True(t, last.Flags.Has(FlagSOCClamped))
	assert.InDelta(t, 0.0, last.SOC, 1e-9)
}

func TestRoundTrip_SOCReturnsAndRTEBounded(t *testing.T) {
	s := defaultTestSim(t)
	res, dis, chg, err := s.RoundTrip(constantProfile(30, 600, 1), 0.8)
	require.NoError(t, err)
	require.NotNil(t, dis)
	require.NotNil(t, chg)

	lastChg, _ := chg.Last()
	assert.InDelta(t, 0.8, lastChg.SOC, 1e-6)

	assert.Greater(t, res.RTEPercent, 0.0)
	assert.LessOrEqual(t, res.RTEPercent, 100.0)
	// With R0 > 0 some energy must be lost
	assert.Less(t, res.EnergyOutWh, res.EnergyInWh)
}

func TestRoundTrip_MismatchedSOCIsUndefined(t *testing.T) {
	s := defaultTestSim(t)
	// Start near empty so the discharge clamps at 0: the mirrored recharge
	// then overshoots the starting SOC and the metric is undefined.
	_, _, _, err := s.RoundTrip(constantProfile(120, 3600, 1), 0.05)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUndefinedMetric))
}

func TestRun_WithThermalNetwork(t *testing.T) {
	pp := pack.DefaultParams()
	pp.SeriesCells = 8
	pp.MinSOC, pp.MaxSOC = 0.0, 1.0
	pk, err := pack.New(cell.DefaultParams(), pp, pack.Options{}, nil)
	require.NoError(t, err)

	th, err := thermal.NewNetwork(thermal.DefaultParams(), thermal.NetworkParams{
		Nodes:           8,
		CellToCellWPerK: 0.5,
		Mode:            thermal.CoolingLiquid,
	})
	require.NoError(t, err)

	s, err := New(pk, th, DefaultParams(), nil)
	require.NoError(t, err)

	trace, err := s.Run(constantProfile(60, 600, 1))
	require.NoError(t, err)
	last, _ := trace.Last()
	assert.Greater(t, last.TempMaxK, thermal.DefaultParams().TAmbientK)
	assert.GreaterOrEqual(t, last.TempMaxK, last.TempK)
}

type recordingCallback struct {
	states    []State
	steps     []Record
	summaries []Summary
}

func (c *recordingCallback) OnState(s State)     { c.states = append(c.states, s) }
func (c *recordingCallback) OnStep(r Record)     { c.steps = append(c.steps, r) }
func (c *recordingCallback) OnSummary(s Summary) { c.summaries = append(c.summaries, s) }

func TestCallback_ReceivesLifecycleEvents(t *testing.T) {
	cb := &recordingCallback{}
	pp := pack.DefaultParams()
	pp.MinSOC, pp.MaxSOC = 0.0, 1.0
	pk, err := pack.New(cell.DefaultParams(), pp, pack.Options{}, nil)
	require.NoError(t, err)
	th, err := thermal.NewLumped(thermal.DefaultParams())
	require.NoError(t, err)
	s, err := New(pk, th, DefaultParams(), cb)
	require.NoError(t, err)

	_, err = s.Run(constantProfile(20, 60, 1))
	require.NoError(t, err)

	assert.Len(t, cb.steps, 61)
	require.Len(t, cb.summaries, 1)
	assert.Equal(t, 61, cb.summaries[0].Steps)
	assert.Greater(t, cb.summaries[0].EnergyOutWh, 0.0)

	// initialized, running, complete states at minimum
	var phases []Phase
	for _, st := range cb.states {
		phases = append(phases, st.Phase)
	}
	assert.Contains(t, phases, PhaseRunning)
	assert.Contains(t, phases, PhaseComplete)
}

func TestSummarize_Totals(t *testing.T) {
	s := defaultTestSim(t)
	_, err := s.Run(constantProfile(40, 300, 1))
	require.NoError(t, err)

	sum := s.Summarize()
	assert.Equal(t, 301, sum.Steps)
	assert.InDelta(t, 300, sum.DurationS, 1e-9)
	assert.Greater(t, sum.EnergyOutWh, 0.0)
	assert.InDelta(t, 0.0, sum.EnergyInWh, 1e-9)
	assert.LessOrEqual(t, sum.MinVoltageV, sum.MaxVoltageV)
}

func TestProfile_Validate(t *testing.T) {
	assert.Error(t, Profile{}.Validate())
	assert.Error(t, Profile{TimeS: []float64{0, 1}, CurrentA: []float64{1}}.Validate())
	assert.Error(t, Profile{TimeS: []float64{0, 0}, CurrentA: []float64{1, 1}}.Validate())
	assert.NoError(t, Profile{TimeS: []float64{0, 1}, CurrentA: []float64{1, 1}}.Validate())
}

func TestProfile_Mirror(t *testing.T) {
	p := Profile{TimeS: []float64{0, 1, 3}, CurrentA: []float64{5, 10, 20}}
	m := p.Mirror()
	require.NoError(t, m.Validate())
	assert.Equal(t, []float64{-20, -10, -5}, m.CurrentA)
	assert.InDelta(t, p.Duration(), m.Duration(), 1e-9)
	// Interval lengths are reversed: 2 then 1
	assert.InDelta(t, 2, m.TimeS[1]-m.TimeS[0], 1e-9)
	assert.InDelta(t, 1, m.TimeS[2]-m.TimeS[1], 1e-9)
}
