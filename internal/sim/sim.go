package sim

import (
	"fmt"
	"math"

	"pack_simulator/internal/pack"
	"pack_simulator/internal/thermal"
)

// Params configures a simulation run.
type Params struct {
	DtS          float64 `yaml:"dt_s"`
	TotalS       float64 `yaml:"t_total_s"`
	InitialSOC   float64 `yaml:"initial_soc"`
	InitialTempK float64 `yaml:"initial_temp_k"` // 0 means start at ambient
	TempCeilingK float64 `yaml:"temp_ceiling_k"`
}

// DefaultParams returns a 30-minute run at 1 Hz from 80% SOC.
func DefaultParams() Params {
	return Params{
		DtS:          1.0,
		TotalS:       1800.0,
		InitialSOC:   0.8,
		TempCeilingK: 328.15,
	}
}

// Validate reports the first invalid parameter, or nil.
func (p Params) Validate() error {
	if p.DtS <= 0 {
		return fmt.Errorf("sim: dt must be positive, got %g", p.DtS)
	}
	if p.InitialSOC < 0 || p.InitialSOC > 1 {
		return fmt.Errorf("sim: initial SOC %g outside [0,1]", p.InitialSOC)
	}
	if p.InitialTempK < 0 {
		return fmt.Errorf("sim: initial temperature %g K is negative", p.InitialTempK)
	}
	if p.TempCeilingK <= 0 {
		return fmt.Errorf("sim: temperature ceiling must be positive, got %g", p.TempCeilingK)
	}
	return nil
}

// Flags marks anomalies observed while recording a step. A flagged step is
// still recorded; halting policy belongs to whoever reads the trace.
type Flags uint8

const (
	FlagSOCClamped Flags = 1 << iota
	FlagVoltageLow
	FlagVoltageHigh
	FlagOverTemp
	FlagNonPhysical
)

// Has reports whether all bits in f are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// Any reports whether any flag is set.
func (f Flags) Any() bool { return f != 0 }

// Record is one row of a simulation trace.
type Record struct {
	TimeS        float64 `json:"time_s"`
	CurrentA     float64 `json:"current_a"`
	VoltageV     float64 `json:"voltage_v"`
	CellVoltageV float64 `json:"cell_voltage_v"`
	SOC          float64 `json:"soc"`
	TempK        float64 `json:"temperature_k"`
	TempMaxK     float64 `json:"temperature_max_k"`
	PowerW       float64 `json:"power_w"`
	HeatW        float64 `json:"heat_w"`
	Flags        Flags   `json:"flags"`
}

// Trace is the append-only, time-ordered record of a run. Records are never
// mutated after being appended.
type Trace struct {
	records []Record
}

// TraceFromRecords wraps pre-computed records in a trace, for replays and
// loaders that did not produce them through a live run.
func TraceFromRecords(recs []Record) *Trace { return &Trace{records: recs} }

// Records returns the underlying rows. Callers must treat them as read-only.
func (t *Trace) Records() []Record { return t.records }

// Len returns the number of recorded steps.
func (t *Trace) Len() int { return len(t.records) }

// Last returns the most recent record, if any.
func (t *Trace) Last() (Record, bool) {
	if len(t.records) == 0 {
		return Record{}, false
	}
	return t.records[len(t.records)-1], true
}

// Violations counts records carrying any anomaly flag.
func (t *Trace) Violations() int {
	var n int
	for _, r := range t.records {
		if r.Flags.Any() {
			n++
		}
	}
	return n
}

// Phase is the simulator's lifecycle state.
type Phase int

const (
	PhaseInitialized Phase = iota
	PhaseRunning
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialized:
		return "initialized"
	case PhaseRunning:
		return "running"
	case PhaseComplete:
		return "complete"
	}
	return "unknown"
}

// State is a snapshot of run progress, broadcast to callbacks.
type State struct {
	Phase Phase   `json:"phase"`
	TimeS float64 `json:"time_s"`
	Step  int     `json:"step"`
}

// Summary holds run totals, emitted once a run completes.
type Summary struct {
	Steps       int     `json:"steps"`
	DurationS   float64 `json:"duration_s"`
	EnergyOutWh float64 `json:"energy_out_wh"`
	EnergyInWh  float64 `json:"energy_in_wh"`
	PeakTempK   float64 `json:"peak_temp_k"`
	MinVoltageV float64 `json:"min_voltage_v"`
	MaxVoltageV float64 `json:"max_voltage_v"`
	FinalSOC    float64 `json:"final_soc"`
	Violations  int     `json:"violations"`
}

// Callback receives simulation events. All methods are invoked from the
// stepping goroutine, one step at a time.
type Callback interface {
	OnState(State)
	OnStep(Record)
	OnSummary(Summary)
}

// Simulator drives a pack and a thermal model through a current profile one
// fixed step at a time, recording the full state trace. It is single
// threaded: each step depends on the previous one.
type Simulator struct {
	pack    *pack.Pack
	thermal thermal.Model
	params  Params
	cb      Callback

	phase Phase
	trace *Trace
	prevT float64
	step  int
}

// New validates the configuration and returns a simulator with the pack and
// thermal model reset to the initial conditions. Invalid values fail here,
// never mid-run.
func New(pk *pack.Pack, th thermal.Model, p Params, cb Callback) (*Simulator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if n := th.NodeCount(); n != 1 && n != pk.Ns() {
		return nil, fmt.Errorf("sim: thermal model has %d nodes, want 1 or %d", n, pk.Ns())
	}
	if !th.StableStep(p.DtS) {
		return nil, fmt.Errorf("sim: dt=%g s violates the explicit-Euler stability bound for this thermal model", p.DtS)
	}
	s := &Simulator{pack: pk, thermal: th, params: p, cb: cb}
	s.Reset(p.InitialSOC)
	return s, nil
}

// Reset rearms the simulator at the given SOC with a fresh trace.
func (s *Simulator) Reset(initialSOC float64) {
	s.pack.Reset(initialSOC)
	t0 := s.params.InitialTempK
	if t0 == 0 {
		t0 = s.thermal.AmbientK()
	}
	s.thermal.Reset(t0)
	s.phase = PhaseInitialized
	s.trace = &Trace{}
	s.prevT = 0
	s.step = 0
	s.notifyState()
}

// Phase returns the lifecycle phase.
func (s *Simulator) Phase() Phase { return s.phase }

// Trace returns the trace recorded so far.
func (s *Simulator) Trace() *Trace { return s.trace }

// Pack returns the simulated pack.
func (s *Simulator) Pack() *pack.Pack { return s.pack }

// StepOne applies one (time, current) sample: the current acts over the
// interval since the previous sample. The step always completes; anomalies
// are flagged on the record rather than aborting the run.
func (s *Simulator) StepOne(tS, currentA float64) (Record, error) {
	switch s.phase {
	case PhaseComplete:
		return Record{}, fmt.Errorf("sim: cannot step a completed run, Reset first")
	case PhaseInitialized:
		s.phase = PhaseRunning
		s.prevT = tS
		s.notifyState()
	}

	dt := tS - s.prevT
	if dt <= 0 {
		dt = 1e-9
	}
	s.prevT = tS

	out, err := s.pack.Step(currentA, dt, s.thermal.Temperatures())
	if err != nil {
		return Record{}, err
	}
	temps := s.thermal.Advance(out.HeatPerNodeW, dt)

	var meanT, maxT float64
	maxT = math.Inf(-1)
	for _, v := range temps {
		meanT += v
		maxT = math.Max(maxT, v)
	}
	meanT /= float64(len(temps))

	rec := Record{
		TimeS:        tS,
		CurrentA:     currentA,
		VoltageV:     out.VPackV,
		CellVoltageV: out.VCellMeanV,
		SOC:          out.SOCMean,
		TempK:        meanT,
		TempMaxK:     maxT,
		PowerW:       out.VPackV * currentA,
		HeatW:        out.HeatTotalW,
	}
	rec.Flags = s.flagAnomalies(rec, out)

	s.trace.records = append(s.trace.records, rec)
	s.step++
	if s.cb != nil {
		s.cb.OnStep(rec)
	}
	return rec, nil
}

func (s *Simulator) flagAnomalies(rec Record, out pack.StepOutput) Flags {
	var f Flags
	if out.SOCClamped {
		f |= FlagSOCClamped
	}
	vMinPack := float64(s.pack.Ns()) * s.pack.Base().Params.VMin
	vMaxPack := float64(s.pack.Ns()) * s.pack.Base().Params.VMax
	if rec.VoltageV < vMinPack {
		f |= FlagVoltageLow
	}
	if rec.VoltageV > vMaxPack {
		f |= FlagVoltageHigh
	}
	if rec.TempMaxK > s.params.TempCeilingK {
		f |= FlagOverTemp
	}
	if rec.TempMaxK <= 0 || rec.VoltageV < 0 ||
		math.IsNaN(rec.VoltageV) || math.IsInf(rec.VoltageV, 0) ||
		math.IsNaN(rec.TempMaxK) || math.IsInf(rec.TempMaxK, 0) {
		f |= FlagNonPhysical
	}
	return f
}

// Run drives the whole profile through the simulator and finalizes the
// trace. The simulator must be freshly initialized or reset.
func (s *Simulator) Run(p Profile) (*Trace, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if s.phase != PhaseInitialized {
		return nil, fmt.Errorf("sim: run requires an initialized simulator, currently %s", s.phase)
	}
	for i := range p.TimeS {
		if _, err := s.StepOne(p.TimeS[i], p.CurrentA[i]); err != nil {
			return nil, err
		}
	}
	s.Complete()
	return s.trace, nil
}

// Complete finalizes the trace and emits the run summary.
func (s *Simulator) Complete() {
	if s.phase == PhaseComplete {
		return
	}
	s.phase = PhaseComplete
	s.notifyState()
	if s.cb != nil {
		s.cb.OnSummary(s.Summarize())
	}
}

// Summarize computes run totals from the trace recorded so far.
func (s *Simulator) Summarize() Summary {
	recs := s.trace.records
	sum := Summary{
		Steps:       len(recs),
		PeakTempK:   math.Inf(-1),
		MinVoltageV: math.Inf(1),
		MaxVoltageV: math.Inf(-1),
	}
	if len(recs) == 0 {
		return Summary{}
	}
	sum.DurationS = recs[len(recs)-1].TimeS - recs[0].TimeS
	sum.FinalSOC = recs[len(recs)-1].SOC
	out, in := traceEnergyWh(recs)
	sum.EnergyOutWh = out
	sum.EnergyInWh = in
	for _, r := range recs {
		sum.PeakTempK = math.Max(sum.PeakTempK, r.TempMaxK)
		sum.MinVoltageV = math.Min(sum.MinVoltageV, r.VoltageV)
		sum.MaxVoltageV = math.Max(sum.MaxVoltageV, r.VoltageV)
		if r.Flags.Any() {
			sum.Violations++
		}
	}
	return sum
}

func (s *Simulator) notifyState() {
	if s.cb != nil {
		s.cb.OnState(State{Phase: s.phase, TimeS: s.prevT, Step: s.step})
	}
}
