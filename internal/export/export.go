// Package export persists simulation traces: CSV and JSON files for
// ad-hoc analysis, and a SQLite store for keeping runs queryable.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"pack_simulator/internal/sim"
)

// csvHeader matches the JSON field names on sim.Record.
var csvHeader = []string{
	"time_s", "current_a", "voltage_v", "cell_voltage_v", "soc",
	"temperature_k", "temperature_max_k", "power_w", "heat_w", "flags",
}

// WriteCSV streams a trace as CSV with a header row.
func WriteCSV(w io.Writer, tr *sim.Trace) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	for _, r := range tr.Records() {
		row := []string{
			formatFloat(r.TimeS),
			formatFloat(r.CurrentA),
			formatFloat(r.VoltageV),
			formatFloat(r.CellVoltageV),
			formatFloat(r.SOC),
			formatFloat(r.TempK),
			formatFloat(r.TempMaxK),
			formatFloat(r.PowerW),
			formatFloat(r.HeatW),
			strconv.FormatUint(uint64(r.Flags), 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes a trace to path, creating parent directories.
func WriteCSVFile(path string, tr *sim.Trace) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer f.Close()
	if err := WriteCSV(f, tr); err != nil {
		return err
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// RunDocument is the JSON export shape: run metadata alongside the full
// trace.
type RunDocument struct {
	Metadata map[string]any `json:"metadata"`
	Records  []sim.Record   `json:"records"`
}

// WriteJSON writes a trace with metadata as indented JSON.
func WriteJSON(w io.Writer, tr *sim.Trace, metadata map[string]any) error {
	doc := RunDocument{Metadata: metadata, Records: tr.Records()}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("export: encode json: %w", err)
	}
	return nil
}

// WriteJSONFile writes the JSON document to path, creating parent
// directories.
func WriteJSONFile(path string, tr *sim.Trace, metadata map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer f.Close()
	if err := WriteJSON(f, tr, metadata); err != nil {
		return err
	}
	return f.Close()
}
