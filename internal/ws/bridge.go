package ws

import (
	"log"

	"pack_simulator/internal/sim"
)

// Bridge implements sim.Callback and broadcasts simulation events to the
// WebSocket hub. Step records are forwarded at most once per sample; pacing
// is the player's job.
type Bridge struct {
	hub    *Hub
	player *sim.Player
}

// NewBridge wires a hub to a player. The player pointer may be set later
// via SetPlayer since the bridge must exist before the simulator is built.
func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub}
}

// SetPlayer attaches the player so state broadcasts can include playback
// speed.
func (b *Bridge) SetPlayer(pl *sim.Player) { b.player = pl }

func (b *Bridge) OnState(s sim.State) {
	payload := RunStatePayload{
		Phase: s.Phase.String(),
		TimeS: s.TimeS,
		Step:  s.Step,
	}
	if b.player != nil {
		payload.Speed = b.player.Speed()
		payload.Running = b.player.Running()
	}
	if err := b.hub.BroadcastEnvelope(TypeRunState, payload); err != nil {
		log.Printf("marshal run state: %v", err)
	}
}

func (b *Bridge) OnStep(r sim.Record) {
	if err := b.hub.BroadcastEnvelope(TypeRunStep, r); err != nil {
		log.Printf("marshal step record: %v", err)
	}
}

func (b *Bridge) OnSummary(s sim.Summary) {
	if err := b.hub.BroadcastEnvelope(TypeRunSummary, s); err != nil {
		log.Printf("marshal run summary: %v", err)
	}
}
