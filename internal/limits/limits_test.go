package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pack_simulator/internal/cell"
	"pack_simulator/internal/pack"
)

func testFixture(t *testing.T) (cell.ECM, pack.Params) {
	t.Helper()
	ecm, err := cell.New(cell.DefaultParams())
	require.NoError(t, err)
	pp := pack.DefaultParams()
	pp.MaxCurrentA = 1e6 // effectively unbounded unless a test sets it
	return ecm, pp
}

func TestMaxDischargeCurrent_ZeroAtMinSOC(t *testing.T) {
	ecm, pp := testFixture(t)
	s := State{SOC: pp.MinSOC, TempK: 298.15}
	assert.Equal(t, 0.0, MaxDischargeCurrent(ecm, pp, s))
}

func TestMaxChargeCurrent_ZeroAtMaxSOC(t *testing.T) {
	ecm, pp := testFixture(t)
	s := State{SOC: pp.MaxSOC, TempK: 298.15}
	assert.Equal(t, 0.0, MaxChargeCurrent(ecm, pp, s))
}

func TestMaxDischargeCurrent_HitsVMinExactly(t *testing.T) {
	ecm, pp := testFixture(t)
	s := State{SOC: 0.5, V1V: 0.004, TempK: 298.15}

	iPack := MaxDischargeCurrent(ecm, pp, s)
	require.Greater(t, iPack, 0.0)

	// Applying the limit current drives terminal voltage to exactly V_min
	v := ecm.TerminalVoltage(iPack/float64(pp.ParallelCells), s.V1V, s.TempK, s.SOC)
	assert.InDelta(t, ecm.Params.VMin, v, 1e-9)
}

func TestMaxChargeCurrent_HitsVMaxExactly(t *testing.T) {
	ecm, pp := testFixture(t)
	s := State{SOC: 0.5, TempK: 298.15}

	iPack := MaxChargeCurrent(ecm, pp, s)
	require.Greater(t, iPack, 0.0)

	v := ecm.TerminalVoltage(-iPack/float64(pp.ParallelCells), s.V1V, s.TempK, s.SOC)
	assert.InDelta(t, ecm.Params.VMax, v, 1e-9)
}

func TestMaxDischargeCurrent_CappedByPackLimit(t *testing.T) {
	ecm, pp := testFixture(t)
	pp.MaxCurrentA = 50
	s := State{SOC: 0.8, TempK: 298.15}
	assert.Equal(t, 50.0, MaxDischargeCurrent(ecm, pp, s))
}

func TestMaxDischargeCurrent_ShrinksWhenCold(t *testing.T) {
	ecm, pp := testFixture(t)
	warm := MaxDischargeCurrent(ecm, pp, State{SOC: 0.5, TempK: 298.15})
	// Positive temperature coefficient: hotter means more resistance,
	// colder means less, so the limit grows when cold with this model.
	cold := MaxDischargeCurrent(ecm, pp, State{SOC: 0.5, TempK: 268.15})
	hot := MaxDischargeCurrent(ecm, pp, State{SOC: 0.5, TempK: 328.15})
	assert.Greater(t, cold, warm)
	assert.Less(t, hot, warm)
}

func TestCurve_EnvelopeShape(t *testing.T) {
	ecm, pp := testFixture(t)
	curve := Curve(ecm, pp, 298.15, 21)
	require.Len(t, curve, 21)

	// Endpoints sit on the SOC window
	assert.InDelta(t, pp.MinSOC, curve[0].SOC, 1e-12)
	assert.InDelta(t, pp.MaxSOC, curve[20].SOC, 1e-12)

	// No discharge headroom at the bottom, none for charge at the top
	assert.Equal(t, 0.0, curve[0].MaxDischargeA)
	assert.Equal(t, 0.0, curve[20].MaxChargeA)

	// Discharge capability grows with SOC, charge capability shrinks
	mid := curve[10]
	assert.Greater(t, mid.MaxDischargeA, curve[1].MaxDischargeA)
	assert.Greater(t, curve[1].MaxChargeA, mid.MaxChargeA)
	assert.Greater(t, mid.MaxDischargeW, 0.0)
	assert.Greater(t, mid.MaxChargeW, 0.0)
}
