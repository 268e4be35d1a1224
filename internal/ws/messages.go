package ws

import (
	"encoding/json"

	"pack_simulator/internal/limits"
	"pack_simulator/internal/sim"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants
const (
	// Client -> Server
	TypeRunStart    = "run:start"
	TypeRunPause    = "run:pause"
	TypeRunSetSpeed = "run:set_speed"
	TypeRunRestart  = "run:restart"
	TypeLimitsQuery = "limits:query"

	// Server -> Client
	TypeRunState     = "run:state"
	TypeRunStep      = "run:step"
	TypeRunSummary   = "run:summary"
	TypeLimitsCurve  = "limits:curve"
	TypeConfigLoaded = "config:loaded"
)

// Client -> Server payloads

type SetSpeedPayload struct {
	Speed float64 `json:"speed"`
}

type RestartPayload struct {
	InitialSOC float64 `json:"initial_soc"`
}

type LimitsQueryPayload struct {
	TempK  float64 `json:"temp_k"`
	Points int     `json:"points"`
}

// Server -> Client payloads

type RunStatePayload struct {
	Phase   string  `json:"phase"`
	TimeS   float64 `json:"time_s"`
	Step    int     `json:"step"`
	Speed   float64 `json:"speed"`
	Running bool    `json:"running"`
}

// StepPayload reuses the trace record shape directly.
type StepPayload = sim.Record

// SummaryPayload reuses the run summary shape directly.
type SummaryPayload = sim.Summary

type LimitsCurvePayload struct {
	TempK  float64              `json:"temp_k"`
	Points []limits.PowerLimits `json:"points"`
}

type ConfigLoadedPayload struct {
	SeriesCells   int     `json:"series_cells"`
	ParallelCells int     `json:"parallel_cells"`
	CapacityAh    float64 `json:"capacity_ah"`
	MaxCurrentA   float64 `json:"max_current_a"`
	ThermalNodes  int     `json:"thermal_nodes"`
	ProfileS      float64 `json:"profile_s"`
}

// NewEnvelope marshals a typed payload into a wire message.
func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
