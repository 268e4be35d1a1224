package profile

import (
	"fmt"
	"math"

	"pack_simulator/internal/cell"
	"pack_simulator/internal/pack"
	"pack_simulator/internal/sim"
)

// Protocol identifies an EV charging standard. Protocols differ only in the
// power and current caps they impose on the CC-CV curve.
type Protocol string

const (
	ProtocolLevel1       Protocol = "level1"
	ProtocolLevel2       Protocol = "level2"
	ProtocolCHAdeMO      Protocol = "chademo"
	ProtocolCCS          Protocol = "ccs"
	ProtocolSupercharger Protocol = "supercharger"
)

// ChargingParams shapes a CC-CV charging curve.
type ChargingParams struct {
	Protocol      Protocol `yaml:"protocol"`
	MaxPowerKW    float64  `yaml:"max_power_kw"`
	MaxCurrentA   float64  `yaml:"max_current_a"`
	SOCStart      float64  `yaml:"soc_start"`
	SOCTarget     float64  `yaml:"soc_target"`
	CCPhaseSOC    float64  `yaml:"cc_phase_soc"`    // SOC where the constant-current phase ends
	CVStartSOC    float64  `yaml:"cv_start_soc"`    // SOC where the constant-voltage taper begins
	TaperCurrentA float64  `yaml:"taper_current_a"` // termination current
	DtS           float64  `yaml:"dt_s"`
}

// ParamsFor returns curve parameters for a known protocol.
func ParamsFor(p Protocol, pp pack.Params) (ChargingParams, error) {
	cp := ChargingParams{
		Protocol:      p,
		SOCStart:      0.1,
		SOCTarget:     0.8,
		CCPhaseSOC:    0.3,
		CVStartSOC:    0.8,
		TaperCurrentA: 10.0,
		DtS:           1.0,
	}
	switch p {
	case ProtocolLevel1:
		cp.MaxPowerKW, cp.MaxCurrentA = 1.4, 12
	case ProtocolLevel2:
		cp.MaxPowerKW, cp.MaxCurrentA = 19, 80
	case ProtocolCHAdeMO:
		cp.MaxPowerKW, cp.MaxCurrentA = 62.5, 125
	case ProtocolCCS:
		cp.MaxPowerKW = 350
		cp.MaxCurrentA = 350e3 / (float64(pp.SeriesCells) * 4.2)
		cp.CCPhaseSOC, cp.CVStartSOC = 0.6, 0.85
	case ProtocolSupercharger:
		cp.MaxPowerKW, cp.MaxCurrentA = 250, 400
		cp.CCPhaseSOC, cp.CVStartSOC = 0.5, 0.8
	default:
		return ChargingParams{}, fmt.Errorf("profile: unknown charging protocol %q", p)
	}
	return cp, nil
}

// CCCV generates a constant-current/constant-voltage charging profile:
// charge at the protocol's maximum current until the estimated pack voltage
// approaches the ceiling, then taper. Currents are negative (charging).
//
// The curve uses a linear OCV estimate rather than the full pack model, so
// it stands alone as a simulator input; the simulator applies the real
// electrical model when the profile is run.
func CCCV(cp cell.Params, pp pack.Params, ch ChargingParams) (sim.Profile, error) {
	if ch.SOCStart >= ch.SOCTarget {
		return sim.Profile{}, fmt.Errorf("profile: charging start SOC %g must be below target %g", ch.SOCStart, ch.SOCTarget)
	}
	if ch.DtS <= 0 {
		return sim.Profile{}, fmt.Errorf("profile: charging dt must be positive, got %g", ch.DtS)
	}

	maxICharge := -math.Abs(ch.MaxCurrentA)
	packVMax := float64(pp.SeriesCells) * cp.VMax

	var times, currents []float64
	soc := ch.SOCStart
	t := 0.0
	for soc < ch.SOCTarget {
		ocvCell := cp.OCVFloorV + (cp.OCVCeilingV-cp.OCVFloorV)*soc
		packVEst := float64(pp.SeriesCells) * ocvCell

		var iCharge float64
		switch {
		case soc < ch.CCPhaseSOC || packVEst < packVMax*0.95:
			iCharge = maxICharge
		case soc >= ch.CVStartSOC:
			iCharge = maxICharge * (1.0 - (soc-ch.CVStartSOC)/0.1)
			// Hold the termination current instead of tapering to zero so
			// the curve always reaches the target SOC.
			if iCharge > -ch.TaperCurrentA {
				iCharge = -ch.TaperCurrentA
			}
		default:
			transition := (soc - ch.CCPhaseSOC) / (ch.CVStartSOC - ch.CCPhaseSOC)
			iCharge = maxICharge * (1.0 - transition*0.5)
		}

		// Power cap: clip current so packV*|I| stays under the protocol limit
		if maxW := ch.MaxPowerKW * 1000; packVEst*math.Abs(iCharge) > maxW && packVEst > 0 {
			iCharge = -maxW / packVEst
		}

		times = append(times, t)
		currents = append(currents, iCharge)

		// Per-cell charge current moves SOC; parallel branches share it
		iCell := math.Abs(iCharge) / float64(pp.ParallelCells)
		soc = math.Min(ch.SOCTarget, soc+iCell*ch.DtS/(cp.CapacityAh*3600.0))
		t += ch.DtS

		if len(times) > 1<<22 {
			return sim.Profile{}, fmt.Errorf("profile: charging curve failed to converge (taper current too small?)")
		}
	}
	return sim.Profile{TimeS: times, CurrentA: currents}, nil
}

// ThermalThrottle scales a charging current for pack temperature: full
// current below the optimal temperature, linear derate up to the maximum,
// zero beyond it.
func ThermalThrottle(baseCurrentA, tempK, tOptimalK, tMaxK float64) float64 {
	switch {
	case tempK <= tOptimalK:
		return baseCurrentA
	case tempK >= tMaxK:
		return 0
	default:
		return baseCurrentA * (tMaxK - tempK) / (tMaxK - tOptimalK)
	}
}
