// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package journal keeps a local SQLite record of the runs started by the
// automator, so an operator can find the instance of a past job.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	// SQLite driver (pure Go)
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusStarted     = "started"
	StatusProvisioned = "provisioned"
	StatusConnected   = "connected"
	StatusStaged      = "staged"
	StatusLaunched    = "launched"
	StatusFailed      = "failed"
	StatusCleanedUp   = "cleaned-up"
)

// ErrNotFound is returned by Get for an unknown run.
var ErrNotFound = errors.New("run not found")

// Run is one journal entry.
type Run struct {
	ID       string
	JobPath  string
	Instance string
	Address  string
	Status   string
	Error    string
	// JobSnapshot is the job description as it was when the run started.
	JobSnapshot string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Journal is a run journal backed by a SQLite database file.
type Journal struct {
	db    *sql.DB
	clock clock.Clock
}

// Open opens or creates the journal at path.
func Open(path string, clk clock.Clock) (*Journal, error) {
	if clk == nil {
		clk = clock.New()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cannot open journal %s: %w", path, err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot initialize journal %s: %w", path, err)
	}
	return &Journal{db: db, clock: clk}, nil
}

func initSchema(db *sql.DB) error {
	const createRuns = `
CREATE TABLE IF NOT EXISTS runs (
  id           TEXT PRIMARY KEY,
  job_path     TEXT,
  instance     TEXT,
  address      TEXT,
  status       TEXT,
  error        TEXT,
  job_snapshot TEXT,
  created_at   TEXT,
  updated_at   TEXT
);`
	_, err := db.Exec(createRuns)
	return err
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record inserts r, or updates every non-empty field of an existing run
// with the same ID.
func (j *Journal) Record(ctx context.Context, r Run) error {
	now := j.clock.Now().UTC().Format(time.RFC3339Nano)
	_, err := j.db.ExecContext(ctx, `
INSERT INTO runs (id, job_path, instance, address, status, error, job_snapshot, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  job_path     = COALESCE(NULLIF(excluded.job_path, ''), job_path),
  instance     = COALESCE(NULLIF(excluded.instance, ''), instance),
  address      = COALESCE(NULLIF(excluded.address, ''), address),
  status       = COALESCE(NULLIF(excluded.status, ''), status),
  error        = COALESCE(NULLIF(excluded.error, ''), error),
  job_snapshot = COALESCE(NULLIF(excluded.job_snapshot, ''), job_snapshot),
  updated_at   = excluded.updated_at`,
		r.ID, r.JobPath, r.Instance, r.Address, r.Status, r.Error, r.JobSnapshot, now, now)
	if err != nil {
		return fmt.Errorf("cannot record run %s: %w", r.ID, err)
	}
	return nil
}

// SetStatus updates the status of run id. msg is stored as the error when
// not empty.
func (j *Journal) SetStatus(ctx context.Context, id, status, msg string) error {
	return j.Record(ctx, Run{ID: id, Status: status, Error: msg})
}

const selectRuns = `SELECT id, job_path, instance, address, status, error, job_snapshot, created_at, updated_at FROM runs`

// Get returns run id.
func (j *Journal) Get(ctx context.Context, id string) (*Run, error) {
	row := j.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	r, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// List returns every run, oldest first.
func (j *Journal) List(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, selectRuns+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("cannot list runs: %w", err)
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(s scanner) (*Run, error) {
	var (
		r                  Run
		created, updated   sql.NullString
		jobPath, inst, adr sql.NullString
		status, errMsg     sql.NullString
		snapshot           sql.NullString
	)
	if err := s.Scan(&r.ID, &jobPath, &inst, &adr, &status, &errMsg, &snapshot, &created, &updated); err != nil {
		return nil, err
	}
	r.JobPath, r.Instance, r.Address = jobPath.String, inst.String, adr.String
	r.Status, r.Error, r.JobSnapshot = status.String, errMsg.String, snapshot.String
	var err error
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created.String); err != nil {
		return nil, fmt.Errorf("run %s has an invalid creation time: %w", r.ID, err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated.String); err != nil {
		return nil, fmt.Errorf("run %s has an invalid update time: %w", r.ID, err)
	}
	return &r, nil
}
