package sim

import "fmt"

// Profile is an ordered sequence of (time, current) samples driving a run.
// Current is positive on discharge. Sample spacing may be uniform or not;
// each sample's current is applied over the interval since the previous one.
type Profile struct {
	TimeS    []float64
	CurrentA []float64
}

// Validate checks sample alignment and time monotonicity.
func (p Profile) Validate() error {
	if len(p.TimeS) == 0 {
		return fmt.Errorf("sim: empty profile")
	}
	if len(p.TimeS) != len(p.CurrentA) {
		return fmt.Errorf("sim: profile has %d time samples but %d current samples", len(p.TimeS), len(p.CurrentA))
	}
	for i := 1; i < len(p.TimeS); i++ {
		if p.TimeS[i] <= p.TimeS[i-1] {
			return fmt.Errorf("sim: profile time must be strictly increasing at index %d (%g -> %g)", i, p.TimeS[i-1], p.TimeS[i])
		}
	}
	return nil
}

// Len returns the number of samples.
func (p Profile) Len() int { return len(p.TimeS) }

// Duration returns the time span covered by the profile.
func (p Profile) Duration() float64 {
	if len(p.TimeS) == 0 {
		return 0
	}
	return p.TimeS[len(p.TimeS)-1] - p.TimeS[0]
}

// Mirror returns the negated, time-reversed profile: a discharge becomes
// the recharge that retraces it. The returned profile starts at the same
// origin time and covers the same duration.
func (p Profile) Mirror() Profile {
	n := len(p.TimeS)
	m := Profile{
		TimeS:    make([]float64, n),
		CurrentA: make([]float64, n),
	}
	if n == 0 {
		return m
	}
	t0 := p.TimeS[0]
	tEnd := p.TimeS[n-1]
	for i := 0; i < n; i++ {
		m.TimeS[i] = t0 + (tEnd - p.TimeS[n-1-i])
		m.CurrentA[i] = -p.CurrentA[n-1-i]
	}
	// Reversal maps the first sample onto itself; nudge duplicates apart to
	// keep time strictly increasing.
	for i := 1; i < n; i++ {
		if m.TimeS[i] <= m.TimeS[i-1] {
			m.TimeS[i] = m.TimeS[i-1] + 1e-9
		}
	}
	return m
}
