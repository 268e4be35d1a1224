// Package bms implements battery management protection checks and cell
// balancing strategies on top of the pack model.
package bms

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"pack_simulator/internal/sim"
)

// Status is a protection status code.
type Status string

const (
	StatusOK                   Status = "ok"
	StatusUnderVoltage         Status = "under_voltage"
	StatusOverVoltage          Status = "over_voltage"
	StatusOverCurrentDischarge Status = "over_current_discharge"
	StatusOverCurrentCharge    Status = "over_current_charge"
	StatusOverTemperature      Status = "over_temperature"
	StatusUnderTemperature     Status = "under_temperature"
	StatusShortCircuit         Status = "short_circuit"
)

// Limits holds the protection thresholds. Voltage limits are per cell;
// current limits apply at the pack terminals.
type Limits struct {
	VMinV          float64 `yaml:"v_min_v"`
	VMaxV          float64 `yaml:"v_max_v"`
	IMaxDischargeA float64 `yaml:"i_max_discharge_a"`
	IMaxChargeA    float64 `yaml:"i_max_charge_a"`
	TMinK          float64 `yaml:"t_min_k"`
	TMaxK          float64 `yaml:"t_max_k"`
	ShortCircuitA  float64 `yaml:"short_circuit_a"`
	VoltageHystV   float64 `yaml:"voltage_hysteresis_v"`
	TempHystK      float64 `yaml:"temp_hysteresis_k"`
}

// DefaultLimits returns thresholds for a typical NMC pack: 3.0-4.2 V per
// cell, 120 A either direction, 0-55 °C.
func DefaultLimits() Limits {
	return Limits{
		VMinV:          3.0,
		VMaxV:          4.2,
		IMaxDischargeA: 120.0,
		IMaxChargeA:    120.0,
		TMinK:          273.15,
		TMaxK:          328.15,
		ShortCircuitA:  500.0,
		VoltageHystV:   0.1,
		TempHystK:      5.0,
	}
}

// Result is the outcome of a protection check.
type Result struct {
	Status        Status  `json:"status"`
	CurrentLimitA float64 `json:"current_limit_a"`
	VoltageOK     bool    `json:"voltage_ok"`
	CurrentOK     bool    `json:"current_ok"`
	TemperatureOK bool    `json:"temperature_ok"`
	Message       string  `json:"message"`
}

// Protection evaluates operating conditions against the limits. Voltage and
// temperature trips latch until the reading clears the threshold by the
// configured hysteresis, so a value hovering at a limit cannot oscillate
// the status.
type Protection struct {
	limits Limits
	last   Status
}

// NewProtection returns a protection checker in the OK state.
func NewProtection(limits Limits) *Protection {
	return &Protection{limits: limits, last: StatusOK}
}

// Limits returns the configured thresholds.
func (p *Protection) Limits() Limits { return p.limits }

// LastStatus returns the status from the most recent check.
func (p *Protection) LastStatus() Status { return p.last }

// Check evaluates pack voltage, current (positive discharge), and
// temperature. cells is the series cell count used to normalize the pack
// voltage to a per-cell value.
func (p *Protection) Check(voltageV, currentA, tempK float64, cells int) Result {
	if cells < 1 {
		cells = 1
	}
	vCell := voltageV / float64(cells)
	l := p.limits

	// Hysteresis: a latched voltage or temperature trip needs extra margin
	// to release.
	vMin, vMax := l.VMinV, l.VMaxV
	tMin, tMax := l.TMinK, l.TMaxK
	switch p.last {
	case StatusUnderVoltage:
		vMin += l.VoltageHystV
	case StatusOverVoltage:
		vMax -= l.VoltageHystV
	case StatusUnderTemperature:
		tMin += l.TempHystK
	case StatusOverTemperature:
		tMax -= l.TempHystK
	}

	res := Result{
		Status:        StatusOK,
		CurrentLimitA: currentA,
		VoltageOK:     vCell >= l.VMinV && vCell <= l.VMaxV,
		CurrentOK:     true,
		TemperatureOK: tempK >= l.TMinK && tempK <= l.TMaxK,
		Message:       "OK",
	}

	switch {
	case vCell < vMin:
		res.Status = StatusUnderVoltage
		res.CurrentLimitA = 0
		res.Message = fmt.Sprintf("under voltage: %.3fV < %gV", vCell, l.VMinV)
	case vCell > vMax:
		res.Status = StatusOverVoltage
		res.CurrentLimitA = 0
		res.Message = fmt.Sprintf("over voltage: %.3fV > %gV", vCell, l.VMaxV)
	case tempK > tMax:
		res.Status = StatusOverTemperature
		res.CurrentLimitA = 0
		res.Message = fmt.Sprintf("over temperature: %.2fK > %gK", tempK, l.TMaxK)
	case tempK < tMin:
		res.Status = StatusUnderTemperature
		res.CurrentLimitA = 0
		res.Message = fmt.Sprintf("under temperature: %.2fK < %gK", tempK, l.TMinK)
	case math.Abs(currentA) > l.ShortCircuitA:
		res.Status = StatusShortCircuit
		res.CurrentLimitA = 0
		res.CurrentOK = false
		res.Message = "short circuit detected"
	case currentA > l.IMaxDischargeA:
		res.Status = StatusOverCurrentDischarge
		res.CurrentLimitA = l.IMaxDischargeA
		res.CurrentOK = false
		res.Message = fmt.Sprintf("over current discharge: %.2fA > %gA", currentA, l.IMaxDischargeA)
	case currentA < -l.IMaxChargeA:
		res.Status = StatusOverCurrentCharge
		res.CurrentLimitA = -l.IMaxChargeA
		res.CurrentOK = false
		res.Message = fmt.Sprintf("over current charge: %.2fA > %gA", -currentA, l.IMaxChargeA)
	}

	p.last = res.Status
	return res
}

// ApplyCurrentLimit clips a requested current to the checker's verdict.
func ApplyCurrentLimit(requestedA float64, res Result) float64 {
	if res.Status == StatusOK {
		return requestedA
	}
	return res.CurrentLimitA
}

// ScanTrace replays a trace through the protection checker and returns the
// statuses per record plus a count of non-OK steps. The checker keeps its
// latched state across records, matching how a live BMS would see the run.
func (p *Protection) ScanTrace(tr *sim.Trace, cells int) ([]Status, int) {
	recs := tr.Records()
	statuses := make([]Status, len(recs))
	trips := 0
	for i, r := range recs {
		res := p.Check(r.VoltageV, r.CurrentA, r.TempMaxK, cells)
		statuses[i] = res.Status
		if res.Status != StatusOK {
			trips++
		}
	}
	return statuses, trips
}

// PassiveBalancerParams configures shunt-resistor balancing.
type PassiveBalancerParams struct {
	ThresholdSOC float64 `yaml:"threshold_soc"`
	CurrentA     float64 `yaml:"current_a"`
	CapacityAh   float64 `yaml:"capacity_ah"`
	Enable       bool    `yaml:"enable"`
}

// PassiveBalancer bleeds cells above the mean SOC through shunt resistors.
type PassiveBalancer struct {
	params PassiveBalancerParams
}

// NewPassiveBalancer validates and wraps the parameters.
func NewPassiveBalancer(p PassiveBalancerParams) (*PassiveBalancer, error) {
	if p.Enable && (p.CurrentA <= 0 || p.CapacityAh <= 0) {
		return nil, fmt.Errorf("bms: passive balancer needs positive current and capacity, got %gA %gAh", p.CurrentA, p.CapacityAh)
	}
	return &PassiveBalancer{params: p}, nil
}

// Balance discharges cells above the mean SOC in place and returns the
// energy dissipated in the shunts, in Wh. It is a no-op while the SOC
// standard deviation stays below the threshold.
func (b *PassiveBalancer) Balance(socs, voltages []float64, dtS float64) float64 {
	if !b.params.Enable || len(socs) == 0 {
		return 0
	}
	mean, std := stat.MeanStdDev(socs, nil)
	if math.IsNaN(std) || std < b.params.ThresholdSOC {
		return 0
	}

	dSOC := b.params.CurrentA * dtS / (b.params.CapacityAh * 3600.0)
	var lostWh float64
	for i, s := range socs {
		if s > mean+b.params.ThresholdSOC/2 {
			socs[i] = math.Max(mean, s-dSOC)
			lostWh += b.params.CurrentA * voltages[i] * dtS / 3600.0
		}
	}
	return lostWh
}

// ActiveBalancer shuttles charge from the highest-SOC cell to the lowest
// through a DC-DC stage with the given efficiency.
type ActiveBalancer struct {
	Efficiency float64
	PowerW     float64
}

// NewActiveBalancer uses a typical 5 W transfer stage.
func NewActiveBalancer(efficiency float64) *ActiveBalancer {
	return &ActiveBalancer{Efficiency: efficiency, PowerW: 5.0}
}

// Balance moves charge between the extreme cells in place and returns the
// energy drawn by the balancing electronics, in Wh. Differences under 2%
// SOC are left alone.
func (b *ActiveBalancer) Balance(socs, voltages, capacitiesAh []float64, dtS float64) float64 {
	if len(socs) < 2 {
		return 0
	}
	high, low := 0, 0
	for i, s := range socs {
		if s > socs[high] {
			high = i
		}
		if s < socs[low] {
			low = i
		}
	}
	if socs[high]-socs[low] < 0.02 {
		return 0
	}

	mean := stat.Mean(socs, nil)
	currentA := b.PowerW / voltages[high]
	dHigh := currentA * dtS / (capacitiesAh[high] * 3600.0)
	dLow := currentA * dtS * b.Efficiency / (capacitiesAh[low] * 3600.0)

	socs[high] = math.Max(mean, socs[high]-dHigh)
	socs[low] = math.Min(mean+0.05, socs[low]+dLow)

	return b.PowerW * dtS / 3600.0
}
