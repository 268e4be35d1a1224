package cell

import (
	"fmt"
	"math"
)

// Params holds the per-cell equivalent circuit constants. Values are
// immutable once a pack is built; aging adjusts copies, never the original.
type Params struct {
	CapacityAh     float64 `yaml:"capacity_ah"`
	R0Ohm          float64 `yaml:"r0_ohm"`
	R1Ohm          float64 `yaml:"r1_ohm"`
	C1F            float64 `yaml:"c1_f"`
	VMin           float64 `yaml:"v_min"`
	VMax           float64 `yaml:"v_max"`
	TRefK          float64 `yaml:"t_ref_k"`
	RTempCoeffPerK float64 `yaml:"r_temp_coeff_per_k"`
	OCVFloorV      float64 `yaml:"ocv_floor_v"`
	OCVCeilingV    float64 `yaml:"ocv_ceiling_v"`
}

// DefaultParams returns parameters for a generic 3 Ah NMC-like cell.
// Each call returns a fresh value.
func DefaultParams() Params {
	return Params{
		CapacityAh:     3.0,
		R0Ohm:          0.0025,
		R1Ohm:          0.0015,
		C1F:            2000.0,
		VMin:           3.0,
		VMax:           4.2,
		TRefK:          298.15,
		RTempCoeffPerK: 0.003,
		OCVFloorV:      3.0,
		OCVCeilingV:    4.2,
	}
}

// Validate reports the first invalid parameter combination, or nil.
func (p Params) Validate() error {
	if p.CapacityAh <= 0 {
		return fmt.Errorf("cell: capacity must be positive, got %g Ah", p.CapacityAh)
	}
	if p.R0Ohm <= 0 || p.R1Ohm <= 0 {
		return fmt.Errorf("cell: resistances must be positive, got R0=%g R1=%g", p.R0Ohm, p.R1Ohm)
	}
	if p.C1F <= 0 {
		return fmt.Errorf("cell: C1 must be positive, got %g F", p.C1F)
	}
	if p.VMin >= p.VMax {
		return fmt.Errorf("cell: V_min %g must be below V_max %g", p.VMin, p.VMax)
	}
	if p.OCVFloorV >= p.OCVCeilingV {
		return fmt.Errorf("cell: OCV floor %g must be below ceiling %g", p.OCVFloorV, p.OCVCeilingV)
	}
	return nil
}

// ECM is a first-order equivalent circuit model: series R0 plus one R1||C1
// branch, with an OCV(SOC) source. All methods are pure; the caller owns the
// SOC and RC-branch state.
type ECM struct {
	Params Params
}

// New returns a validated ECM.
func New(p Params) (ECM, error) {
	if err := p.Validate(); err != nil {
		return ECM{}, err
	}
	return ECM{Params: p}, nil
}

// OCV returns the open-circuit voltage at the given SOC. The curve is a
// smooth sigmoid-shaped polynomial, monotonically non-decreasing on [0,1],
// clipped to the configured floor/ceiling.
func (m ECM) OCV(soc float64) float64 {
	s := clamp(soc, 0, 1)
	v := 3.0 + 1.2*s + 0.3*math.Exp(-20.0*(1.0-s)) - 0.08*math.Exp(-20.0*s)
	return clamp(v, m.Params.OCVFloorV, m.Params.OCVCeilingV)
}

// ResistancesAt returns R0 and R1 scaled linearly with temperature offset
// from the reference temperature.
func (m ECM) ResistancesAt(tempK float64) (r0, r1 float64) {
	scale := 1.0 + m.Params.RTempCoeffPerK*(tempK-m.Params.TRefK)
	if scale < 0.05 {
		scale = 0.05 // resistance never vanishes, however cold
	}
	return m.Params.R0Ohm * scale, m.Params.R1Ohm * scale
}

// StepResult is the outcome of advancing a cell by one time step.
type StepResult struct {
	TerminalV  float64
	NextV1V    float64
	NextSOC    float64
	HeatW      float64
	SOCClamped bool
}

// Step advances the RC branch and SOC by dtS under current currentA
// (positive = discharge) at temperature tempK, and returns the terminal
// voltage and dissipated heat.
//
// The RC branch uses the exact exponential discretization of
// dV1/dt = I/C1 - V1/(R1*C1); SOC uses Coulomb counting. SOC driven outside
// [0,1] is clamped and flagged, not treated as fatal.
func (m ECM) Step(currentA, dtS, v1V, tempK, soc float64) StepResult {
	r0, r1 := m.ResistancesAt(tempK)
	tau := r1 * m.Params.C1F

	var nextV1 float64
	if tau > 1e-9 {
		e := math.Exp(-dtS / tau)
		nextV1 = e*v1V + (1.0-e)*(r1*currentA)
	} else {
		nextV1 = r1 * currentA
	}

	qAs := m.Params.CapacityAh * 3600.0
	nextSOC := soc - (currentA*dtS)/qAs
	clamped := nextSOC < 0 || nextSOC > 1
	nextSOC = clamp(nextSOC, 0, 1)

	vTerm := m.OCV(nextSOC) - r0*currentA - nextV1
	heatW := currentA*currentA*r0 + nextV1*nextV1/r1

	return StepResult{
		TerminalV:  vTerm,
		NextV1V:    nextV1,
		NextSOC:    nextSOC,
		HeatW:      heatW,
		SOCClamped: clamped,
	}
}

// TerminalVoltage returns the instantaneous terminal voltage without
// advancing any state. Used by the limits evaluator.
func (m ECM) TerminalVoltage(currentA, v1V, tempK, soc float64) float64 {
	r0, _ := m.ResistancesAt(tempK)
	return m.OCV(soc) - r0*currentA - v1V
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
