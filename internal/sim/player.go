package sim

import (
	"sync"
	"time"
)

const tickInterval = 100 * time.Millisecond

// Player replays a profile through a simulator at a configurable multiple
// of real time, for live streaming. The underlying simulator stays single
// threaded: stepMu serializes all simulator access. Simulator callbacks may
// call back into the player's accessors, so mu is never held across a
// simulator call.
type Player struct {
	mu      sync.Mutex
	stepMu  sync.Mutex
	sim     *Simulator
	profile Profile

	speed   float64
	running bool
	idx     int
	simTime float64

	stopCh chan struct{}
}

// NewPlayer wraps a simulator and profile for paced playback.
func NewPlayer(s *Simulator, p Profile) *Player {
	start := 0.0
	if len(p.TimeS) > 0 {
		start = p.TimeS[0]
	}
	return &Player{
		sim:     s,
		profile: p,
		speed:   60,
		simTime: start,
	}
}

// State returns the playback position and the simulator phase.
func (pl *Player) State() State {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return State{Phase: pl.sim.Phase(), TimeS: pl.simTime, Step: pl.idx}
}

// Running reports whether the playback loop is active.
func (pl *Player) Running() bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.running
}

// Speed returns the playback speed multiplier.
func (pl *Player) Speed() float64 {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.speed
}

// SetSpeed sets the simulated-seconds-per-wall-second multiplier.
func (pl *Player) SetSpeed(speed float64) {
	if speed < 0.1 {
		speed = 0.1
	}
	if speed > 86400 {
		speed = 86400
	}
	pl.mu.Lock()
	pl.speed = speed
	pl.mu.Unlock()
}

// Restart rewinds playback to the start of the profile at the given SOC.
func (pl *Player) Restart(initialSOC float64) {
	pl.stepMu.Lock()
	pl.sim.Reset(initialSOC)
	pl.stepMu.Unlock()

	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.idx = 0
	if len(pl.profile.TimeS) > 0 {
		pl.simTime = pl.profile.TimeS[0]
	}
}

// Start begins the playback loop. No-op when already running or finished.
func (pl *Player) Start() {
	pl.mu.Lock()
	if pl.running || pl.sim.Phase() == PhaseComplete {
		pl.mu.Unlock()
		return
	}
	pl.running = true
	pl.stopCh = make(chan struct{})
	pl.mu.Unlock()

	go pl.loop()
}

// Pause stops the playback loop between steps.
func (pl *Player) Pause() {
	pl.mu.Lock()
	if !pl.running {
		pl.mu.Unlock()
		return
	}
	pl.running = false
	close(pl.stopCh)
	pl.mu.Unlock()
}

func (pl *Player) loop() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pl.stopCh:
			return
		case <-ticker.C:
			if pl.tick() {
				return
			}
		}
	}
}

// tick advances simulated time by one frame and feeds every profile sample
// that falls inside it. Returns true when the profile is exhausted. The
// simulator is only touched with mu released: its callbacks re-enter the
// player's accessors. stepMu keeps Restart from racing the steps.
func (pl *Player) tick() bool {
	pl.stepMu.Lock()
	defer pl.stepMu.Unlock()

	pl.mu.Lock()
	pl.simTime += tickInterval.Seconds() * pl.speed
	target := pl.simTime
	idx := pl.idx
	pl.mu.Unlock()

	failed := false
	for idx < pl.profile.Len() && pl.profile.TimeS[idx] <= target {
		tS, currentA := pl.profile.TimeS[idx], pl.profile.CurrentA[idx]
		idx++
		if _, err := pl.sim.StepOne(tS, currentA); err != nil {
			failed = true
			break
		}
	}

	done := idx >= pl.profile.Len()
	if done && !failed {
		pl.sim.Complete()
	}

	pl.mu.Lock()
	pl.idx = idx
	if done || failed {
		pl.running = false
	}
	pl.mu.Unlock()
	return done || failed
}
