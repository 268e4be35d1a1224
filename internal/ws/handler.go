package ws

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"pack_simulator/internal/cell"
	"pack_simulator/internal/config"
	"pack_simulator/internal/limits"
	"pack_simulator/internal/sim"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler manages WebSocket connections and routes client commands to the
// player.
type Handler struct {
	hub     *Hub
	player  *sim.Player
	cfg     *config.Config
	profile sim.Profile
}

func NewHandler(hub *Hub, player *sim.Player, cfg *config.Config, profile sim.Profile) *Handler {
	return &Handler{hub: hub, player: player, cfg: cfg, profile: profile}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.hub.Register(client)
	go client.writePump()

	h.sendConfigLoaded(client)
	h.sendRunState(client)

	h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read error: %v", err)
			}
			return
		}
		h.handleMessage(c, msg)
	}
}

func (h *Handler) handleMessage(c *Client, msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		log.Printf("invalid message: %v", err)
		return
	}

	switch env.Type {
	case TypeRunStart:
		h.player.Start()
		h.broadcastRunState()

	case TypeRunPause:
		h.player.Pause()
		h.broadcastRunState()

	case TypeRunSetSpeed:
		var p SetSpeedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Printf("invalid set_speed payload: %v", err)
			return
		}
		h.player.SetSpeed(p.Speed)
		h.broadcastRunState()

	case TypeRunRestart:
		var p RestartPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Printf("invalid restart payload: %v", err)
			return
		}
		soc := p.InitialSOC
		if soc <= 0 || soc > 1 {
			soc = h.cfg.Sim.InitialSOC
		}
		h.player.Pause()
		h.player.Restart(soc)
		h.broadcastRunState()

	case TypeLimitsQuery:
		var p LimitsQueryPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Printf("invalid limits query payload: %v", err)
			return
		}
		h.sendLimitsCurve(c, p)

	default:
		log.Printf("unknown message type: %s", env.Type)
	}
}

func (h *Handler) sendLimitsCurve(c *Client, q LimitsQueryPayload) {
	tempK := q.TempK
	if tempK <= 0 {
		tempK = h.cfg.Thermal.TAmbientK
	}
	n := q.Points
	if n < 2 || n > 1000 {
		n = 50
	}

	ecm, err := cell.New(h.cfg.Cell)
	if err != nil {
		log.Printf("limits query: %v", err)
		return
	}
	curve := limits.Curve(ecm, h.cfg.Pack, tempK, n)

	msg, err := NewEnvelope(TypeLimitsCurve, LimitsCurvePayload{TempK: tempK, Points: curve})
	if err != nil {
		log.Printf("marshal limits curve: %v", err)
		return
	}
	c.trySend(msg)
}

func (h *Handler) sendConfigLoaded(c *Client) {
	nodes := 1
	if h.cfg.Network != nil {
		nodes = h.cfg.Network.Nodes
	}
	payload := ConfigLoadedPayload{
		SeriesCells:   h.cfg.Pack.SeriesCells,
		ParallelCells: h.cfg.Pack.ParallelCells,
		CapacityAh:    h.cfg.Cell.CapacityAh,
		MaxCurrentA:   h.cfg.Pack.MaxCurrentA,
		ThermalNodes:  nodes,
		ProfileS:      h.profile.Duration(),
	}
	msg, err := NewEnvelope(TypeConfigLoaded, payload)
	if err != nil {
		log.Printf("marshal config: %v", err)
		return
	}
	c.trySend(msg)
}

func (h *Handler) sendRunState(c *Client) {
	st := h.player.State()
	msg, err := NewEnvelope(TypeRunState, RunStatePayload{
		Phase:   st.Phase.String(),
		TimeS:   st.TimeS,
		Step:    st.Step,
		Speed:   h.player.Speed(),
		Running: h.player.Running(),
	})
	if err != nil {
		return
	}
	c.trySend(msg)
}

func (h *Handler) broadcastRunState() {
	st := h.player.State()
	err := h.hub.BroadcastEnvelope(TypeRunState, RunStatePayload{
		Phase:   st.Phase.String(),
		TimeS:   st.TimeS,
		Step:    st.Step,
		Speed:   h.player.Speed(),
		Running: h.player.Running(),
	})
	if err != nil {
		log.Printf("marshal run state: %v", err)
	}
}
