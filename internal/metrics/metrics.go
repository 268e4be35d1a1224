// Package metrics computes engineering summaries from simulation traces:
// energy throughput, power and thermal envelopes, C-rates, and equivalent
// full cycles.
package metrics

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"pack_simulator/internal/sim"
)

// ErrEmptyTrace is returned when a trace carries no records.
var ErrEmptyTrace = errors.New("metrics: trace is empty")

// Metrics aggregates the performance of a single simulated run.
type Metrics struct {
	EnergyThroughputWh float64 `json:"energy_throughput_wh"`
	RoundTripEffPct    float64 `json:"round_trip_efficiency_pct"`
	EnergyLossWh       float64 `json:"energy_loss_wh"`

	PeakPowerW       float64 `json:"peak_power_w"`
	AvgPowerW        float64 `json:"avg_power_w"`
	PowerDensityWKg  float64 `json:"power_density_w_per_kg"`

	PeakTempK float64 `json:"peak_temperature_k"`
	AvgTempK  float64 `json:"avg_temperature_k"`
	TempRiseK float64 `json:"temp_rise_k"`
	TempStdK  float64 `json:"temp_std_k"`

	MinVoltageV float64 `json:"min_voltage_v"`
	MaxVoltageV float64 `json:"max_voltage_v"`
	VoltageSagV float64 `json:"voltage_sag_v"`
	VoltageStdV float64 `json:"voltage_std_v"`

	PeakCurrentA float64 `json:"peak_current_a"`
	AvgCurrentA  float64 `json:"avg_current_a"`
	RMSCurrentA  float64 `json:"rms_current_a"`

	InitialSOC float64 `json:"initial_soc"`
	FinalSOC   float64 `json:"final_soc"`
	SOCUsed    float64 `json:"soc_used"`
	SOCMin     float64 `json:"soc_min"`
	SOCMax     float64 `json:"soc_max"`

	CapacityAh       float64 `json:"capacity_ah"`
	UsableCapacityAh float64 `json:"usable_capacity_ah"`
	CapacityUtilPct  float64 `json:"capacity_utilization_pct"`

	CRateAvg  float64 `json:"c_rate_avg"`
	CRatePeak float64 `json:"c_rate_peak"`

	EquivalentFullCycles float64 `json:"equivalent_full_cycles"`
	ThroughputAh         float64 `json:"throughput_ah"`
}

// Compute derives metrics from a trace. capacityAh is the pack capacity
// (parallel cells times cell capacity); packMassKg the total thermal mass.
func Compute(tr *sim.Trace, packMassKg, capacityAh float64) (Metrics, error) {
	recs := tr.Records()
	if len(recs) == 0 {
		return Metrics{}, ErrEmptyTrace
	}

	n := len(recs)
	times := make([]float64, n)
	discharge := make([]float64, n)
	charge := make([]float64, n)
	absCurrent := make([]float64, n)

	var m Metrics
	m.CapacityAh = capacityAh
	m.InitialSOC = recs[0].SOC
	m.FinalSOC = recs[n-1].SOC
	m.MinVoltageV = recs[0].VoltageV
	m.SOCMin, m.SOCMax = recs[0].SOC, recs[0].SOC

	var sumPower, sumCurrent, sumSqCurrent, sumTemp float64
	temps := make([]float64, n)
	volts := make([]float64, n)
	for i, r := range recs {
		times[i] = r.TimeS
		discharge[i] = math.Max(r.PowerW, 0)
		charge[i] = math.Min(r.PowerW, 0)
		absCurrent[i] = math.Abs(r.CurrentA)
		temps[i] = r.TempMaxK
		volts[i] = r.VoltageV

		sumPower += math.Abs(r.PowerW)
		sumCurrent += absCurrent[i]
		sumSqCurrent += r.CurrentA * r.CurrentA
		sumTemp += r.TempMaxK

		m.PeakPowerW = math.Max(m.PeakPowerW, math.Abs(r.PowerW))
		m.PeakCurrentA = math.Max(m.PeakCurrentA, absCurrent[i])
		m.PeakTempK = math.Max(m.PeakTempK, r.TempMaxK)
		m.MinVoltageV = math.Min(m.MinVoltageV, r.VoltageV)
		m.MaxVoltageV = math.Max(m.MaxVoltageV, r.VoltageV)
		m.SOCMin = math.Min(m.SOCMin, r.SOC)
		m.SOCMax = math.Max(m.SOCMax, r.SOC)
	}

	dischargeWh := 0.0
	chargeWh := 0.0
	if n > 1 {
		dischargeWh = integrate.Trapezoidal(times, discharge) / 3600.0
		chargeWh = integrate.Trapezoidal(times, charge) / 3600.0
		m.ThroughputAh = integrate.Trapezoidal(times, absCurrent) / 3600.0
	}
	m.EnergyThroughputWh = dischargeWh + chargeWh
	m.EnergyLossWh = math.Abs(chargeWh) - dischargeWh
	if math.Abs(chargeWh) > 1e-6 {
		m.RoundTripEffPct = 100.0 * dischargeWh / math.Abs(chargeWh)
	}

	m.AvgPowerW = sumPower / float64(n)
	m.PowerDensityWKg = m.PeakPowerW / math.Max(1e-6, packMassKg)

	m.AvgTempK = sumTemp / float64(n)
	m.TempRiseK = m.PeakTempK - recs[0].TempMaxK
	m.VoltageSagV = m.MaxVoltageV - m.MinVoltageV
	if n > 1 {
		m.TempStdK = stat.StdDev(temps, nil)
		m.VoltageStdV = stat.StdDev(volts, nil)
	}

	m.AvgCurrentA = sumCurrent / float64(n)
	m.RMSCurrentA = math.Sqrt(sumSqCurrent / float64(n))

	m.SOCUsed = math.Abs(m.FinalSOC - m.InitialSOC)
	socSpan := m.SOCMax - m.SOCMin
	m.UsableCapacityAh = capacityAh * socSpan
	m.CapacityUtilPct = 100.0 * m.SOCUsed / math.Max(1e-6, socSpan)

	m.CRateAvg = m.AvgCurrentA / math.Max(1e-6, capacityAh)
	m.CRatePeak = m.PeakCurrentA / math.Max(1e-6, capacityAh)
	m.EquivalentFullCycles = m.ThroughputAh / math.Max(1e-6, capacityAh)

	return m, nil
}

// Stats is a per-column statistical summary.
type Stats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	P25  float64 `json:"p25"`
	P50  float64 `json:"p50"`
	P75  float64 `json:"p75"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
}

// Summarize computes a statistical summary per trace column, keyed by the
// column names used in exports.
func Summarize(tr *sim.Trace) (map[string]Stats, error) {
	recs := tr.Records()
	if len(recs) == 0 {
		return nil, ErrEmptyTrace
	}

	cols := map[string][]float64{
		"current_a":         make([]float64, 0, len(recs)),
		"voltage_v":         make([]float64, 0, len(recs)),
		"soc":               make([]float64, 0, len(recs)),
		"temperature_k":     make([]float64, 0, len(recs)),
		"temperature_max_k": make([]float64, 0, len(recs)),
		"power_w":           make([]float64, 0, len(recs)),
		"heat_w":            make([]float64, 0, len(recs)),
	}
	for _, r := range recs {
		cols["current_a"] = append(cols["current_a"], r.CurrentA)
		cols["voltage_v"] = append(cols["voltage_v"], r.VoltageV)
		cols["soc"] = append(cols["soc"], r.SOC)
		cols["temperature_k"] = append(cols["temperature_k"], r.TempK)
		cols["temperature_max_k"] = append(cols["temperature_max_k"], r.TempMaxK)
		cols["power_w"] = append(cols["power_w"], r.PowerW)
		cols["heat_w"] = append(cols["heat_w"], r.HeatW)
	}

	out := make(map[string]Stats, len(cols))
	for name, xs := range cols {
		out[name] = describe(xs)
	}
	return out, nil
}

func describe(xs []float64) Stats {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	s := Stats{
		Mean: stat.Mean(xs, nil),
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		P25:  stat.Quantile(0.25, stat.Empirical, sorted, nil),
		P50:  stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P75:  stat.Quantile(0.75, stat.Empirical, sorted, nil),
		P95:  stat.Quantile(0.95, stat.Empirical, sorted, nil),
		P99:  stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
	if len(xs) > 1 {
		s.Std = stat.StdDev(xs, nil)
	}
	return s
}

// CycleLife holds a linear end-of-life projection from Ah throughput.
type CycleLife struct {
	CyclesCompleted    float64 `json:"cycles_completed"`
	CyclesToEOL        float64 `json:"cycles_to_eol"`
	RemainingCycles    float64 `json:"remaining_cycles"`
	CurrentCapacityPct float64 `json:"current_capacity_pct"`
	CapacityFadePct    float64 `json:"capacity_fade_pct"`
}

// EstimateCycleLife projects remaining life assuming a constant capacity
// fade per equivalent full cycle, down to the given fade limit.
func EstimateCycleLife(throughputAh, capacityAh, fadePerCyclePct, fadeLimitPct float64) CycleLife {
	completed := throughputAh / math.Max(1e-6, capacityAh)
	toEOL := fadeLimitPct / math.Max(1e-6, fadePerCyclePct)

	capPct := 100.0 - (completed/math.Max(1e-6, toEOL))*fadeLimitPct
	capPct = math.Max(0.0, math.Min(100.0, capPct))

	return CycleLife{
		CyclesCompleted:    completed,
		CyclesToEOL:        toEOL,
		RemainingCycles:    math.Max(0.0, toEOL-completed),
		CurrentCapacityPct: capPct,
		CapacityFadePct:    100.0 - capPct,
	}
}
