package thermal

import "fmt"

// Params holds lumped thermal constants shared by both model variants.
type Params struct {
	MassKg    float64 `yaml:"mass_kg"`
	CpJPerKgK float64 `yaml:"cp_j_per_kgk"`
	UAWPerK   float64 `yaml:"ua_w_per_k"`
	TAmbientK float64 `yaml:"t_ambient_k"`
	TMaxK     float64 `yaml:"t_max_k"`
}

// DefaultParams returns constants for a small air-cooled pack.
func DefaultParams() Params {
	return Params{
		MassKg:    10.0,
		CpJPerKgK: 900.0,
		UAWPerK:   6.0,
		TAmbientK: 298.15,
		TMaxK:     328.15,
	}
}

// Validate reports the first invalid parameter, or nil.
func (p Params) Validate() error {
	if p.MassKg <= 0 {
		return fmt.Errorf("thermal: mass must be positive, got %g kg", p.MassKg)
	}
	if p.CpJPerKgK <= 0 {
		return fmt.Errorf("thermal: specific heat must be positive, got %g J/kgK", p.CpJPerKgK)
	}
	if p.UAWPerK < 0 {
		return fmt.Errorf("thermal: UA must be non-negative, got %g W/K", p.UAWPerK)
	}
	if p.TAmbientK <= 0 {
		return fmt.Errorf("thermal: ambient temperature must be positive, got %g K", p.TAmbientK)
	}
	return nil
}

// StableStep reports whether forward Euler is stable for the given step.
// The explicit integrator requires dt*UA/(m*Cp) < 2.
func (p Params) StableStep(dtS float64) bool {
	return dtS*p.UAWPerK < 2.0*p.MassKg*p.CpJPerKgK
}

// Model advances node temperatures given per-node heat input. Both variants
// are pure state machines over the temperature array: one Advance call per
// simulation step, no hidden memory.
type Model interface {
	// Advance integrates one forward-Euler step of length dtS with the given
	// per-node heat inputs (W) and returns the updated temperatures (K).
	// A heat slice shorter than NodeCount is treated as zero-padded.
	Advance(heatW []float64, dtS float64) []float64

	// Temperatures returns the current node temperatures. The returned slice
	// is owned by the model; callers must not mutate it.
	Temperatures() []float64

	// NodeCount returns the number of thermal nodes.
	NodeCount() int

	// Reset sets every node to the given temperature.
	Reset(tempK float64)

	// AmbientK returns the ambient/sink temperature.
	AmbientK() float64

	// StableStep reports whether forward Euler is stable for steps of dtS.
	StableStep(dtS float64) bool
}

// Lumped is a single-node model: mass*Cp*dT/dt = Q - UA*(T - T_ambient).
type Lumped struct {
	params Params
	temp   [1]float64
}

// NewLumped builds a lumped model at ambient temperature.
func NewLumped(p Params) (*Lumped, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	l := &Lumped{params: p}
	l.temp[0] = p.TAmbientK
	return l, nil
}

func (l *Lumped) Advance(heatW []float64, dtS float64) []float64 {
	var q float64
	for _, h := range heatW {
		q += h
	}
	p := l.params
	t := l.temp[0]
	dTdt := (q - p.UAWPerK*(t-p.TAmbientK)) / (p.MassKg * p.CpJPerKgK)
	l.temp[0] = t + dtS*dTdt
	return l.temp[:]
}

func (l *Lumped) Temperatures() []float64 { return l.temp[:] }
func (l *Lumped) NodeCount() int          { return 1 }
func (l *Lumped) AmbientK() float64       { return l.params.TAmbientK }

func (l *Lumped) Reset(tempK float64) { l.temp[0] = tempK }

func (l *Lumped) StableStep(dtS float64) bool { return l.params.StableStep(dtS) }
