// Package profile generates current profiles that drive a simulation:
// synthetic drive cycles, constant and pulsed loads, and fast-charging
// protocol curves. All generators are pure functions of their inputs; the
// synthetic cycle takes an explicit seeded rand source for replayability.
package profile

import (
	"math"
	"math/rand"

	"pack_simulator/internal/sim"
)

// Constant returns a steady current applied for the given duration.
func Constant(currentA, totalS, dtS float64) sim.Profile {
	n := int(math.Round(totalS/dtS)) + 1
	p := sim.Profile{
		TimeS:    make([]float64, n),
		CurrentA: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		p.TimeS[i] = float64(i) * dtS
		p.CurrentA[i] = currentA
	}
	return p
}

// Pulse returns a square wave alternating between highA and lowA with the
// given period, starting high.
func Pulse(highA, lowA, periodS, totalS, dtS float64) sim.Profile {
	p := Constant(lowA, totalS, dtS)
	for i, t := range p.TimeS {
		if math.Mod(t, periodS) < periodS/2 {
			p.CurrentA[i] = highA
		}
	}
	return p
}

// Synthetic generates a UDDS-like drive cycle: a smoothed random walk of
// accelerations mapped to current, with idle stretches and regenerative
// braking pulses mixed in. Discharge is positive.
func Synthetic(totalS, dtS, peakCurrentA float64, rng *rand.Rand) sim.Profile {
	n := int(math.Round(totalS/dtS)) + 1

	acc := make([]float64, n)
	for i := range acc {
		acc[i] = rng.NormFloat64()
	}
	acc = movingAverage(acc, 25)
	for i := range acc {
		acc[i] = clamp(acc[i], -2.5, 3.0)
	}

	current := make([]float64, n)
	for i := range current {
		current[i] = peakCurrentA * acc[i] / 3.0
	}
	// Idling and braking regens
	for i := range current {
		if rng.Float64() < 0.25 {
			current[i] *= 0.15
		}
	}
	for i := range current {
		if rng.Float64() < 0.10 {
			current[i] = -0.5 * peakCurrentA * rng.Float64()
		}
	}
	current = movingAverage(current, 10)
	// Cycles begin and end at rest so a mirrored recharge retraces the SOC
	// path exactly.
	current[0] = 0
	current[n-1] = 0

	p := sim.Profile{
		TimeS:    make([]float64, n),
		CurrentA: current,
	}
	for i := range p.TimeS {
		p.TimeS[i] = float64(i) * dtS
	}
	return p
}

// movingAverage is a centered rolling mean with partial windows at the
// edges.
func movingAverage(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	half := window / 2
	for i := range xs {
		lo := max(0, i-half)
		hi := min(len(xs), i+half+1)
		var sum float64
		for j := lo; j < hi; j++ {
			sum += xs[j]
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
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
