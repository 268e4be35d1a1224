package bms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pack_simulator/internal/sim"
)

func TestCheck_OK(t *testing.T) {
	p := NewProtection(DefaultLimits())
	res := p.Check(40*3.7, 50, 300, 40)

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 50.0, res.CurrentLimitA)
	assert.True(t, res.VoltageOK)
	assert.True(t, res.CurrentOK)
	assert.True(t, res.TemperatureOK)
}

func TestCheck_VoltageTrips(t *testing.T) {
	p := NewProtection(DefaultLimits())

	res := p.Check(40*2.9, 10, 300, 40)
	assert.Equal(t, StatusUnderVoltage, res.Status)
	assert.Zero(t, res.CurrentLimitA)
	assert.False(t, res.VoltageOK)

	res = p.Check(40*4.3, -10, 300, 40)
	assert.Equal(t, StatusOverVoltage, res.Status)
	assert.Zero(t, res.CurrentLimitA)
}

func TestCheck_VoltageHysteresis(t *testing.T) {
	p := NewProtection(DefaultLimits())

	res := p.Check(40*2.95, 10, 300, 40)
	require.Equal(t, StatusUnderVoltage, res.Status)

	// Recovered past the limit but inside the hysteresis band: still tripped
	res = p.Check(40*3.05, 10, 300, 40)
	assert.Equal(t, StatusUnderVoltage, res.Status)

	res = p.Check(40*3.15, 10, 300, 40)
	assert.Equal(t, StatusOK, res.Status)
}

func TestCheck_TemperatureHysteresis(t *testing.T) {
	p := NewProtection(DefaultLimits())

	require.Equal(t, StatusOverTemperature, p.Check(40*3.7, 10, 330, 40).Status)
	assert.Equal(t, StatusOverTemperature, p.Check(40*3.7, 10, 326, 40).Status)
	assert.Equal(t, StatusOK, p.Check(40*3.7, 10, 322, 40).Status)
}

func TestCheck_CurrentTrips(t *testing.T) {
	p := NewProtection(DefaultLimits())

	res := p.Check(40*3.7, 150, 300, 40)
	assert.Equal(t, StatusOverCurrentDischarge, res.Status)
	assert.Equal(t, 120.0, res.CurrentLimitA)
	assert.False(t, res.CurrentOK)

	res = p.Check(40*3.7, -150, 300, 40)
	assert.Equal(t, StatusOverCurrentCharge, res.Status)
	assert.Equal(t, -120.0, res.CurrentLimitA)

	res = p.Check(40*3.7, 600, 300, 40)
	assert.Equal(t, StatusShortCircuit, res.Status)
	assert.Zero(t, res.CurrentLimitA)
}

func TestApplyCurrentLimit(t *testing.T) {
	p := NewProtection(DefaultLimits())

	ok := p.Check(40*3.7, 50, 300, 40)
	assert.Equal(t, 80.0, ApplyCurrentLimit(80, ok))

	tripped := p.Check(40*3.7, 150, 300, 40)
	assert.Equal(t, 120.0, ApplyCurrentLimit(150, tripped))
}

func TestScanTrace(t *testing.T) {
	recs := []sim.Record{
		{VoltageV: 40 * 3.7, CurrentA: 50, TempMaxK: 300},
		{VoltageV: 40 * 3.7, CurrentA: 150, TempMaxK: 300},
		{VoltageV: 40 * 3.7, CurrentA: 50, TempMaxK: 330},
		{VoltageV: 40 * 3.7, CurrentA: 50, TempMaxK: 300},
	}
	p := NewProtection(DefaultLimits())
	statuses, trips := p.ScanTrace(sim.TraceFromRecords(recs), 40)

	require.Len(t, statuses, 4)
	assert.Equal(t, StatusOK, statuses[0])
	assert.Equal(t, StatusOverCurrentDischarge, statuses[1])
	assert.Equal(t, StatusOverTemperature, statuses[2])
	assert.Equal(t, StatusOK, statuses[3])
	assert.Equal(t, 2, trips)
}

func TestPassiveBalancer(t *testing.T) {
	b, err := NewPassiveBalancer(PassiveBalancerParams{
		ThresholdSOC: 0.05,
		CurrentA:     1.0,
		CapacityAh:   3.0,
		Enable:       true,
	})
	require.NoError(t, err)

	socs := []float64{0.9, 0.8, 0.7}
	voltages := []float64{4.0, 4.0, 4.0}
	lost := b.Balance(socs, voltages, 3600)

	assert.InDelta(t, 0.8, socs[0], 1e-12, "high cell bleeds down to the mean")
	assert.InDelta(t, 0.8, socs[1], 1e-12)
	assert.InDelta(t, 0.7, socs[2], 1e-12)
	assert.InDelta(t, 4.0, lost, 1e-12)
}

func TestPassiveBalancer_BelowThreshold(t *testing.T) {
	b, err := NewPassiveBalancer(PassiveBalancerParams{
		ThresholdSOC: 0.05,
		CurrentA:     1.0,
		CapacityAh:   3.0,
		Enable:       true,
	})
	require.NoError(t, err)

	socs := []float64{0.81, 0.80, 0.79}
	lost := b.Balance(socs, []float64{4, 4, 4}, 3600)
	assert.Zero(t, lost)
	assert.Equal(t, []float64{0.81, 0.80, 0.79}, socs)
}

func TestActiveBalancer(t *testing.T) {
	b := NewActiveBalancer(0.85)

	socs := []float64{0.9, 0.7}
	used := b.Balance(socs, []float64{4, 4}, []float64{3, 3}, 3600)

	assert.InDelta(t, 0.8, socs[0], 1e-12)
	// the transferred charge overshoots, so the low cell lands on the cap
	assert.InDelta(t, 0.85, socs[1], 1e-9)
	assert.InDelta(t, 5.0, used, 1e-12)

	// Nearly balanced cells are left alone
	socs = []float64{0.801, 0.80}
	used = b.Balance(socs, []float64{4, 4}, []float64{3, 3}, 3600)
	assert.Zero(t, used)
}
