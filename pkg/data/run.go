package data

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	RunModeSingle = "single"
	RunModeBatch  = "batch"
	RunModeCLI    = "cli"

	RunLimitDefault = 50

	// fixed width so that text ordering matches time ordering
	timeLayout = "2006-01-02T15:04:05.000000000Z"

	insertRunSQL = `INSERT INTO run (
			id,
			mode,
			source,
			model_version,
			row_count,
			default_count,
			threshold,
			mean_proba,
			created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectRunSQL = `SELECT
			id,
			mode,
			source,
			model_version,
			row_count,
			default_count,
			threshold,
			mean_proba,
			created_at
		FROM run
	`

	selectRunsSQL = selectRunSQL + `
		WHERE mode = COALESCE(?, mode)
		ORDER BY created_at DESC
		LIMIT ?
	`

	selectRunByIDSQL = selectRunSQL + `WHERE id = ?`
)

var RunModes = []string{RunModeSingle, RunModeBatch, RunModeCLI}

// Run is one scoring invocation.
type Run struct {
	ID           string    `json:"id" yaml:"id"`
	Mode         string    `json:"mode" yaml:"mode"`
	Source       string    `json:"source,omitempty" yaml:"source,omitempty"`
	ModelVersion string    `json:"model_version,omitempty" yaml:"modelVersion,omitempty"`
	Rows         int       `json:"rows" yaml:"rows"`
	Defaults     int       `json:"defaults" yaml:"defaults"`
	Threshold    float64   `json:"threshold" yaml:"threshold"`
	MeanProba    float64   `json:"mean_proba" yaml:"meanProba"`
	CreatedAt    time.Time `json:"created_at" yaml:"createdAt"`
}

// SaveRun persists r, assigning an ID and timestamp when they are empty.
func SaveRun(db *sql.DB, r *Run) error {
	if db == nil {
		return errDBNotInitialized
	}
	if r == nil {
		return errors.New("run is required")
	}
	if !Contains(RunModes, r.Mode) {
		return fmt.Errorf("invalid run mode: %s (permitted options: %v)", r.Mode, RunModes)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	stmt, err := db.Prepare(insertRunSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare run insert statement: %w", err)
	}
	defer stmt.Close()

	if _, err = stmt.Exec(r.ID, r.Mode, r.Source, r.ModelVersion, r.Rows, r.Defaults,
		r.Threshold, r.MeanProba, r.CreatedAt.UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// GetRuns returns the most recent runs, optionally filtered by mode.
func GetRuns(db *sql.DB, mode *string, limit int) ([]*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = RunLimitDefault
	}

	stmt, err := db.Prepare(selectRunsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare sql statement: %w", err)
	}
	defer stmt.Close()

	rows, err := stmt.Query(mode, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute run select statement: %w", err)
	}
	defer rows.Close()

	list := make([]*Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return list, nil
}

// GetRun returns a single run by ID or nil when it does not exist.
func GetRun(db *sql.DB, id string) (*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	row := db.QueryRow(selectRunByIDSQL, id)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	r := &Run{}
	var created string
	if err := s.Scan(&r.ID, &r.Mode, &r.Source, &r.ModelVersion, &r.Rows, &r.Defaults,
		&r.Threshold, &r.MeanProba, &created); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("invalid run timestamp %q: %w", created, err)
	}
	r.CreatedAt = t
	return r, nil
}
