package sim

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"
)

// ErrUndefinedMetric is returned when a derived metric's precondition does
// not hold; the value is never silently approximated.
var ErrUndefinedMetric = errors.New("sim: metric undefined for this trace")

// socMatchTolerance is the allowed start/end SOC mismatch for a round trip.
const socMatchTolerance = 1e-6

// RTEResult is the outcome of a discharge-plus-recharge round trip.
// Immutable once returned.
type RTEResult struct {
	EnergyOutWh float64
	EnergyInWh  float64
	RTEPercent  float64
}

// RoundTrip discharges along the profile from initialSOC, recharges along
// the mirrored profile, and computes the round-trip efficiency. The SOC must
// return to its starting value within tolerance, otherwise the result is
// undefined and an error wrapping ErrUndefinedMetric is returned along with
// both traces for inspection.
func (s *Simulator) RoundTrip(p Profile, initialSOC float64) (RTEResult, *Trace, *Trace, error) {
	if err := p.Validate(); err != nil {
		return RTEResult{}, nil, nil, err
	}

	s.Reset(initialSOC)
	discharge, err := s.Run(p)
	if err != nil {
		return RTEResult{}, nil, nil, err
	}

	endSOC := initialSOC
	if last, ok := discharge.Last(); ok {
		endSOC = last.SOC
	}
	s.Reset(endSOC)
	recharge, err := s.Run(p.Mirror())
	if err != nil {
		return RTEResult{}, discharge, nil, err
	}

	finalSOC := endSOC
	if last, ok := recharge.Last(); ok {
		finalSOC = last.SOC
	}
	if math.Abs(finalSOC-initialSOC) > socMatchTolerance {
		return RTEResult{}, discharge, recharge, fmt.Errorf(
			"%w: round trip ended at SOC %.8f, started at %.8f", ErrUndefinedMetric, finalSOC, initialSOC)
	}

	energyOut, _ := traceEnergyWh(discharge.Records())
	_, energyIn := traceEnergyWh(recharge.Records())
	if energyIn <= 1e-9 {
		return RTEResult{}, discharge, recharge, fmt.Errorf(
			"%w: no energy consumed during recharge", ErrUndefinedMetric)
	}

	return RTEResult{
		EnergyOutWh: energyOut,
		EnergyInWh:  energyIn,
		RTEPercent:  100.0 * energyOut / energyIn,
	}, discharge, recharge, nil
}

// traceEnergyWh integrates delivered (positive power) and consumed (negative
// power) energy over a trace using trapezoidal quadrature.
func traceEnergyWh(recs []Record) (outWh, inWh float64) {
	if len(recs) < 2 {
		return 0, 0
	}
	t := make([]float64, len(recs))
	pos := make([]float64, len(recs))
	neg := make([]float64, len(recs))
	for i, r := range recs {
		t[i] = r.TimeS
		pos[i] = math.Max(r.PowerW, 0)
		neg[i] = math.Max(-r.PowerW, 0)
	}
	outWh = integrate.Trapezoidal(t, pos) / 3600.0
	inWh = integrate.Trapezoidal(t, neg) / 3600.0
	return outWh, inWh
}
