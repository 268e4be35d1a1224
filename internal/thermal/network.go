package thermal

import "fmt"

// CoolingMode selects the heat-rejection pathway. Modes only change the
// numeric sink conductance; the integration algorithm is identical.
type CoolingMode string

const (
	CoolingAir    CoolingMode = "air"
	CoolingFin    CoolingMode = "fin"
	CoolingPCM    CoolingMode = "pcm"
	CoolingLiquid CoolingMode = "liquid"
)

// sinkScale returns the multiplier applied to the base sink conductance.
func (m CoolingMode) sinkScale() float64 {
	switch m {
	case CoolingFin:
		return 2.5
	case CoolingPCM:
		return 4.0
	case CoolingLiquid:
		return 6.0
	default:
		return 1.0
	}
}

// NetworkParams configures the multi-node chain model.
type NetworkParams struct {
	Nodes            int         `yaml:"nodes"`
	CellToCellWPerK  float64     `yaml:"cell_to_cell_w_per_k"`
	Mode             CoolingMode `yaml:"mode"`
}

// Network is a 1D chain of thermal nodes. Each node exchanges heat with its
// immediate neighbors and with a common sink at ambient temperature:
//
//	m_i*Cp*dT_i/dt = Q_i - g_sink*(T_i - T_sink) - sum_j g_cc*(T_i - T_j)
//
// Node count typically equals the series cell count.
type Network struct {
	params      Params
	net         NetworkParams
	massPerNode float64
	gSink       float64
	temps       []float64
	dTdt        []float64 // scratch, reused across steps
}

// NewNetwork builds a chain network with the given node count; total thermal
// mass is divided evenly across nodes. All nodes start at ambient.
func NewNetwork(p Params, np NetworkParams) (*Network, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if np.Nodes < 1 {
		return nil, fmt.Errorf("thermal: network needs at least 1 node, got %d", np.Nodes)
	}
	if np.CellToCellWPerK < 0 {
		return nil, fmt.Errorf("thermal: cell-to-cell conductance must be non-negative, got %g", np.CellToCellWPerK)
	}
	n := &Network{
		params:      p,
		net:         np,
		massPerNode: p.MassKg / float64(np.Nodes),
		gSink:       p.UAWPerK * np.Mode.sinkScale(),
		temps:       make([]float64, np.Nodes),
		dTdt:        make([]float64, np.Nodes),
	}
	n.Reset(p.TAmbientK)
	return n, nil
}

func (n *Network) Advance(heatW []float64, dtS float64) []float64 {
	t := n.temps
	gcc := n.net.CellToCellWPerK
	mC := n.massPerNode * n.params.CpJPerKgK
	tSink := n.params.TAmbientK

	for i := range t {
		var q float64
		if i < len(heatW) {
			q = heatW[i]
		}
		var neighbors float64
		if i > 0 {
			neighbors += gcc * (t[i-1] - t[i])
		}
		if i < len(t)-1 {
			neighbors += gcc * (t[i+1] - t[i])
		}
		n.dTdt[i] = (q + neighbors + n.gSink*(tSink-t[i])) / mC
	}
	for i := range t {
		t[i] += dtS * n.dTdt[i]
	}
	return t
}

func (n *Network) Temperatures() []float64 { return n.temps }
func (n *Network) NodeCount() int          { return n.net.Nodes }
func (n *Network) AmbientK() float64       { return n.params.TAmbientK }

// StableStep bounds the fastest node dynamics: sink plus both neighbor
// conductances against the per-node thermal mass.
func (n *Network) StableStep(dtS float64) bool {
	g := n.gSink + 2.0*n.net.CellToCellWPerK
	return dtS*g < 2.0*n.massPerNode*n.params.CpJPerKgK
}

func (n *Network) Reset(tempK float64) {
	for i := range n.temps {
		n.temps[i] = tempK
	}
}
