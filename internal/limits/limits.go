// Package limits computes instantaneous safe current and power bounds for a
// pack. All queries are pure: they read a state snapshot and never touch the
// pack's internal state, so they are usable standalone by BMS or charging
// collaborators without running a simulation.
package limits

import (
	"math"

	"pack_simulator/internal/cell"
	"pack_simulator/internal/pack"
)

// State is the snapshot a limit query evaluates against: the representative
// per-cell electrical state at the current instant.
type State struct {
	SOC   float64
	V1V   float64
	TempK float64
}

// MaxDischargeCurrent returns the largest pack discharge current (A,
// positive) that keeps the per-cell terminal voltage at or above V_min,
// bounded by the SOC window and the configured pack current limit.
//
// Solving V = OCV(soc) - R0(T)*I_cell - V1 >= V_min for I_cell gives
// I_cell <= (OCV(soc) - V1 - V_min) / R0(T).
func MaxDischargeCurrent(ecm cell.ECM, pp pack.Params, s State) float64 {
	if s.SOC <= pp.MinSOC+1e-9 {
		return 0
	}
	r0, _ := ecm.ResistancesAt(s.TempK)
	iCell := (ecm.OCV(s.SOC) - s.V1V - ecm.Params.VMin) / r0
	if iCell <= 0 {
		return 0
	}
	return math.Min(iCell*float64(pp.ParallelCells), pp.MaxCurrentA)
}

// MaxChargeCurrent returns the largest pack charge current magnitude (A)
// that keeps the per-cell terminal voltage at or below V_max, bounded by the
// SOC window and the pack current limit.
func MaxChargeCurrent(ecm cell.ECM, pp pack.Params, s State) float64 {
	if s.SOC >= pp.MaxSOC-1e-9 {
		return 0
	}
	r0, _ := ecm.ResistancesAt(s.TempK)
	iCell := (ecm.Params.VMax - ecm.OCV(s.SOC) + s.V1V) / r0
	if iCell <= 0 {
		return 0
	}
	return math.Min(iCell*float64(pp.ParallelCells), pp.MaxCurrentA)
}

// PowerLimits holds the instantaneous power envelope at one SOC point.
// Both values are magnitudes in watts.
type PowerLimits struct {
	SOC           float64 `json:"soc"`
	MaxDischargeW float64 `json:"max_discharge_w"`
	MaxChargeW    float64 `json:"max_charge_w"`
	MaxDischargeA float64 `json:"max_discharge_a"`
	MaxChargeA    float64 `json:"max_charge_a"`
}

// AtSOC evaluates the power envelope at a single SOC, at the boundary
// voltage reached when the limit current is applied.
func AtSOC(ecm cell.ECM, pp pack.Params, tempK, soc float64) PowerLimits {
	ns := float64(pp.SeriesCells)
	np := float64(pp.ParallelCells)
	s := State{SOC: soc, TempK: tempK}

	iDis := MaxDischargeCurrent(ecm, pp, s)
	iChg := MaxChargeCurrent(ecm, pp, s)

	vDis := ns * ecm.TerminalVoltage(iDis/np, s.V1V, tempK, soc)
	vChg := ns * ecm.TerminalVoltage(-iChg/np, s.V1V, tempK, soc)

	return PowerLimits{
		SOC:           soc,
		MaxDischargeW: iDis * vDis,
		MaxChargeW:    iChg * vChg,
		MaxDischargeA: iDis,
		MaxChargeA:    iChg,
	}
}

// Curve sweeps the power envelope across an evenly spaced SOC grid with n
// points spanning the pack's SOC window.
func Curve(ecm cell.ECM, pp pack.Params, tempK float64, n int) []PowerLimits {
	if n < 2 {
		n = 2
	}
	out := make([]PowerLimits, n)
	span := pp.MaxSOC - pp.MinSOC
	for i := 0; i < n; i++ {
		soc := pp.MinSOC + span*float64(i)/float64(n-1)
		out[i] = AtSOC(ecm, pp, tempK, soc)
	}
	return out
}
