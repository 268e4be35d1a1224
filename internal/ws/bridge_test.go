package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pack_simulator/internal/config"
	"pack_simulator/internal/profile"
	"pack_simulator/internal/sim"
)

func newTestBridge() (*Bridge, *Client) {
	hub := NewHub()
	client := &Client{hub: hub, send: make(chan []byte, 256)}
	hub.Register(client)
	bridge := NewBridge(hub)
	return bridge, client
}

func receiveEnvelope(t *testing.T, c *Client) Envelope {
	t.Helper()
	msg := <-c.send
	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func TestBridge_OnState(t *testing.T) {
	bridge, client := newTestBridge()

	bridge.OnState(sim.State{
		Phase: sim.PhaseRunning,
		TimeS: 42.5,
		Step:  85,
	})

	env := receiveEnvelope(t, client)
	assert.Equal(t, TypeRunState, env.Type)

	var p RunStatePayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, sim.PhaseRunning.String(), p.Phase)
	assert.Equal(t, 42.5, p.TimeS)
	assert.Equal(t, 85, p.Step)
}

func TestBridge_OnStep(t *testing.T) {
	bridge, client := newTestBridge()

	bridge.OnStep(sim.Record{
		TimeS:    10,
		CurrentA: 30,
		VoltageV: 148.2,
		SOC:      0.75,
		TempK:    301.4,
		TempMaxK: 302.0,
		PowerW:   4446,
	})

	env := receiveEnvelope(t, client)
	assert.Equal(t, TypeRunStep, env.Type)

	var p StepPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, 10.0, p.TimeS)
	assert.InDelta(t, 148.2, p.VoltageV, 1e-9)
	assert.InDelta(t, 0.75, p.SOC, 1e-9)
}

func TestBridge_OnSummary(t *testing.T) {
	bridge, client := newTestBridge()

	bridge.OnSummary(sim.Summary{
		Steps:       1800,
		DurationS:   1800,
		EnergyOutWh: 620.5,
		EnergyInWh:  12.0,
		PeakTempK:   308.2,
		MinVoltageV: 140.1,
		MaxVoltageV: 158.9,
		FinalSOC:    0.31,
		Violations:  0,
	})

	env := receiveEnvelope(t, client)
	assert.Equal(t, TypeRunSummary, env.Type)

	var p SummaryPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, 1800, p.Steps)
	assert.InDelta(t, 620.5, p.EnergyOutWh, 1e-9)
	assert.InDelta(t, 0.31, p.FinalSOC, 1e-9)
	assert.Zero(t, p.Violations)
}

// Wires hub, bridge and player the way cmd/server does and plays a short
// profile through to completion. The bridge reads the player back from
// inside simulator callbacks, so every playback command has to go through
// without the player holding its own lock.
func TestBridge_LivePlaybackCompletes(t *testing.T) {
	cfg := config.Default()
	hub := NewHub()
	bridge := NewBridge(hub)

	s, err := cfg.Build(bridge)
	require.NoError(t, err)

	p := profile.Constant(30, 10, 1)
	player := sim.NewPlayer(s, p)
	bridge.SetPlayer(player)

	player.Restart(0.6) // fires a state broadcast through the bridge
	player.SetSpeed(86400)
	player.Start()

	deadline := time.Now().Add(2 * time.Second)
	for player.Running() {
		if time.Now().After(deadline) {
			t.Fatal("playback did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, sim.PhaseComplete, player.State().Phase)
	assert.Equal(t, p.Len(), s.Trace().Len())
}
