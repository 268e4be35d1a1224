package export

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"pack_simulator/internal/sim"
	"pack_simulator/internal/sweep"
)

const storeSchema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		steps INTEGER NOT NULL,
		violations INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_records (
		run_id INTEGER NOT NULL,
		time_s REAL NOT NULL,
		current_a REAL NOT NULL,
		voltage_v REAL NOT NULL,
		cell_voltage_v REAL NOT NULL,
		soc REAL NOT NULL,
		temperature_k REAL NOT NULL,
		temperature_max_k REAL NOT NULL,
		power_w REAL NOT NULL,
		heat_w REAL NOT NULL,
		flags INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);

	CREATE INDEX IF NOT EXISTS idx_run_records_run ON run_records(run_id, time_s);

	CREATE TABLE IF NOT EXISTS sweep_points (
		sweep_id INTEGER NOT NULL,
		series_cells INTEGER NOT NULL,
		parallel_cells INTEGER NOT NULL,
		ua_w_per_k REAL NOT NULL,
		peak_current_a REAL NOT NULL,
		peak_temp_k REAL NOT NULL,
		rte_percent REAL,
		energy_out_wh REAL NOT NULL,
		energy_in_wh REAL NOT NULL,
		viol_temp INTEGER NOT NULL,
		viol_soc INTEGER NOT NULL
	);
`

// Store keeps runs and sweep results in a SQLite database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the database at path and ensures the schema
// exists. Use ":memory:" for an in-memory store.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("export: open database: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("export: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun inserts a trace under the given name and returns its run id.
// Records go in inside one transaction.
func (s *Store) SaveRun(name string, tr *sim.Trace) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("export: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO runs (name, created_at, steps, violations)
		VALUES (?, ?, ?, ?)`,
		name, time.Now().UTC().Format(time.RFC3339), tr.Len(), tr.Violations(),
	)
	if err != nil {
		return 0, fmt.Errorf("export: insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("export: run id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO run_records
		(run_id, time_s, current_a, voltage_v, cell_voltage_v, soc,
		 temperature_k, temperature_max_k, power_w, heat_w, flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("export: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range tr.Records() {
		if _, err := stmt.Exec(runID, r.TimeS, r.CurrentA, r.VoltageV, r.CellVoltageV,
			r.SOC, r.TempK, r.TempMaxK, r.PowerW, r.HeatW, int64(r.Flags)); err != nil {
			return 0, fmt.Errorf("export: insert record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("export: commit: %w", err)
	}
	return runID, nil
}

// LoadTrace reads a stored run back as a trace, ordered by time.
func (s *Store) LoadTrace(runID int64) (*sim.Trace, error) {
	rows, err := s.db.Query(`
		SELECT time_s, current_a, voltage_v, cell_voltage_v, soc,
		       temperature_k, temperature_max_k, power_w, heat_w, flags
		FROM run_records WHERE run_id = ? ORDER BY time_s`, runID)
	if err != nil {
		return nil, fmt.Errorf("export: query records: %w", err)
	}
	defer rows.Close()

	var recs []sim.Record
	for rows.Next() {
		var r sim.Record
		var flags int64
		if err := rows.Scan(&r.TimeS, &r.CurrentA, &r.VoltageV, &r.CellVoltageV,
			&r.SOC, &r.TempK, &r.TempMaxK, &r.PowerW, &r.HeatW, &flags); err != nil {
			return nil, fmt.Errorf("export: scan record: %w", err)
		}
		r.Flags = sim.Flags(flags)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export: iterate records: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("export: run %d has no records", runID)
	}
	return sim.TraceFromRecords(recs), nil
}

// RunInfo summarizes a stored run.
type RunInfo struct {
	RunID      int64
	Name       string
	CreatedAt  string
	Steps      int
	Violations int
}

// ListRuns returns stored runs, newest first.
func (s *Store) ListRuns() ([]RunInfo, error) {
	rows, err := s.db.Query(`
		SELECT run_id, name, created_at, steps, violations
		FROM runs ORDER BY run_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("export: query runs: %w", err)
	}
	defer rows.Close()

	var infos []RunInfo
	for rows.Next() {
		var ri RunInfo
		if err := rows.Scan(&ri.RunID, &ri.Name, &ri.CreatedAt, &ri.Steps, &ri.Violations); err != nil {
			return nil, fmt.Errorf("export: scan run: %w", err)
		}
		infos = append(infos, ri)
	}
	return infos, rows.Err()
}

// SaveSweep stores sweep points under a fresh sweep id and returns it.
func (s *Store) SaveSweep(points []sweep.Point) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("export: begin: %w", err)
	}
	defer tx.Rollback()

	var sweepID int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(sweep_id), 0) + 1 FROM sweep_points`).Scan(&sweepID); err != nil {
		return 0, fmt.Errorf("export: next sweep id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sweep_points
		(sweep_id, series_cells, parallel_cells, ua_w_per_k, peak_current_a,
		 peak_temp_k, rte_percent, energy_out_wh, energy_in_wh, viol_temp, viol_soc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("export: prepare: %w", err)
	}
	defer stmt.Close()

	for _, pt := range points {
		rte := sql.NullFloat64{Float64: pt.RTEPercent, Valid: !isNaN(pt.RTEPercent)}
		if _, err := stmt.Exec(sweepID, pt.SeriesCells, pt.ParallelCells, pt.UAWPerK,
			pt.PeakCurrentA, pt.PeakTempK, rte, pt.EnergyOutWh, pt.EnergyInWh,
			boolInt(pt.ViolTemp), boolInt(pt.ViolSOC)); err != nil {
			return 0, fmt.Errorf("export: insert point: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("export: commit: %w", err)
	}
	return sweepID, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isNaN(v float64) bool { return v != v }
