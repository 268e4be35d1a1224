package pack

import (
	"fmt"
	"math"
	"math/rand"

	"pack_simulator/internal/cell"
)

// Options bundles the optional pack behaviors. Nil fields disable the
// corresponding feature.
type Options struct {
	Variation *Variation
	Balancing *Balancing
	Aging     *Aging
}

// Variation describes cell-to-cell manufacturing spread. Scales are drawn
// once per cell at pack construction; they are never re-sampled during a run.
type Variation struct {
	StdCapacityFrac float64 `yaml:"std_capacity_frac"`
	StdR0Frac       float64 `yaml:"std_r0_frac"`
	StdR1Frac       float64 `yaml:"std_r1_frac"`
	Seed            int64   `yaml:"seed"`
}

// DefaultVariation returns a modest production spread.
func DefaultVariation() Variation {
	return Variation{
		StdCapacityFrac: 0.02,
		StdR0Frac:       0.05,
		StdR1Frac:       0.05,
		Seed:            123,
	}
}

// Validate rejects spreads wide enough to produce non-physical cells.
func (v Variation) Validate() error {
	for _, std := range []float64{v.StdCapacityFrac, v.StdR0Frac, v.StdR1Frac} {
		if std < 0 || std > 0.25 {
			return fmt.Errorf("pack: variation std %g outside [0, 0.25]", std)
		}
	}
	return nil
}

// Rand returns a rand source seeded from the variation seed.
func (v Variation) Rand() *rand.Rand {
	return rand.New(rand.NewSource(v.Seed))
}

func (v Variation) apply(base cell.Params, rng *rand.Rand) cell.Params {
	p := base
	p.CapacityAh *= positiveScale(rng, v.StdCapacityFrac)
	p.R0Ohm *= positiveScale(rng, v.StdR0Frac)
	p.R1Ohm *= positiveScale(rng, v.StdR1Frac)
	return p
}

// positiveScale draws 1 + N(0, std) floored well above zero so extreme tail
// samples cannot invert a parameter's sign.
func positiveScale(rng *rand.Rand, std float64) float64 {
	return math.Max(0.05, 1.0+rng.NormFloat64()*std)
}

// Balancing configures passive bleed balancing, applied only during
// low-current periods.
type Balancing struct {
	BleedCurrentA         float64 `yaml:"bleed_current_a"`
	IdleCurrentThresholdA float64 `yaml:"idle_current_threshold_a"`
	SOCOverDelta          float64 `yaml:"soc_over_delta"`
}

// DefaultBalancing returns typical passive balancer settings.
func DefaultBalancing() Balancing {
	return Balancing{
		BleedCurrentA:         0.2,
		IdleCurrentThresholdA: 2.0,
		SOCOverDelta:          0.01,
	}
}

// applyBalancing bleeds cells sitting above their branch mean SOC. Runs only
// while the pack is near idle.
func (p *Pack) applyBalancing(iPackA, dtS float64) {
	bp := p.balancing
	if math.Abs(iPackA) > bp.IdleCurrentThresholdA {
		return
	}
	for b := range p.states {
		var mean float64
		for i := range p.states[b] {
			mean += p.states[b][i].SOC
		}
		mean /= float64(len(p.states[b]))

		for i := range p.states[b] {
			st := &p.states[b][i]
			if st.SOC <= mean+bp.SOCOverDelta {
				continue
			}
			capAh := p.cells[b][i].Params.CapacityAh
			dsoc := bp.BleedCurrentA * dtS / (capAh * 3600.0)
			st.SOC = math.Max(0, st.SOC-dsoc)
		}
	}
}

// Aging models capacity fade and resistance growth per Ah of throughput,
// accelerated at elevated temperature.
type Aging struct {
	CapacityFadePerAh     float64 `yaml:"capacity_fade_per_ah"`
	ResistanceGrowthPerAh float64 `yaml:"resistance_growth_per_ah"`
	ThermalBeta           float64 `yaml:"thermal_beta"`
	TRefK                 float64 `yaml:"t_ref_k"`
	MinCapacityFraction   float64 `yaml:"min_capacity_fraction"`
	MaxResistanceScale    float64 `yaml:"max_resistance_scale"`
}

// DefaultAging returns a mild throughput-driven degradation model.
func DefaultAging() Aging {
	return Aging{
		CapacityFadePerAh:     2e-5,
		ResistanceGrowthPerAh: 3e-5,
		ThermalBeta:           0.04,
		TRefK:                 298.15,
		MinCapacityFraction:   0.7,
		MaxResistanceScale:    2.5,
	}
}

// accel is an Arrhenius-like temperature acceleration factor.
func (a Aging) accel(tempK float64) float64 {
	return math.Exp(a.ThermalBeta * (tempK - a.TRefK) / 10.0)
}

func (p *Pack) applyAging(iPackA, dtS float64, nodeTempsK []float64) {
	a := p.aging
	for b := range p.cells {
		iBranch := iPackA * p.branchShares[b]
		dAh := math.Abs(iBranch) * dtS / 3600.0
		if dAh == 0 {
			continue
		}
		for i := range p.cells[b] {
			t := nodeTempsK[0]
			if len(nodeTempsK) > 1 {
				t = nodeTempsK[i]
			}
			acc := a.accel(t)
			cp := &p.cells[b][i].Params
			pristine := p.pristine[b][i]

			cp.CapacityAh = math.Max(
				a.MinCapacityFraction*pristine.CapacityAh,
				cp.CapacityAh*(1.0-a.CapacityFadePerAh*acc*dAh),
			)
			cp.R0Ohm = math.Min(
				a.MaxResistanceScale*pristine.R0Ohm,
				cp.R0Ohm*(1.0+a.ResistanceGrowthPerAh*acc*dAh),
			)
			cp.R1Ohm = math.Min(
				a.MaxResistanceScale*pristine.R1Ohm,
				cp.R1Ohm*(1.0+a.ResistanceGrowthPerAh*0.5*acc*dAh),
			)
		}
	}
}
