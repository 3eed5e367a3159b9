// Package sqlite stores decoded runs in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bft-labs/pixdaq/internal/domain"
	"github.com/bft-labs/pixdaq/internal/match"
)

//go:embed schema.sql
var schemaSQL string

// Store is a hit database.
type Store struct {
	*sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db}, nil
}

// RecordRun inserts or updates the run row for s.
func (st *Store) RecordRun(ctx context.Context, s domain.RunStatus) error {
	query := `
		INSERT INTO runs (run_id, prefix, phase, frames_written, bytes_written, reason, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			phase = excluded.phase,
			frames_written = excluded.frames_written,
			bytes_written = excluded.bytes_written,
			reason = excluded.reason,
			ended_at = excluded.ended_at
	`

	var ended any
	if !s.EndedAt.IsZero() {
		ended = s.EndedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := st.ExecContext(ctx, query,
		s.RunID, s.Prefix, s.Phase, s.FramesWritten, s.BytesWritten, s.Reason,
		s.StartedAt.UTC().Format(time.RFC3339Nano), ended)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// SaveHits replaces the stored hits of runID.
func (st *Store) SaveHits(ctx context.Context, runID string, hits []domain.HitRecord) error {
	return st.replace(ctx, "hits", runID, `
		INSERT INTO hits (run_id, readout, chip_id, payload, location, is_col, timestamp, tot_msb, tot_lsb, tot_total, tot_us, hittime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(hits), func(stmt *sql.Stmt, i int) error {
		h := hits[i]
		_, err := stmt.ExecContext(ctx, runID, h.Readout, h.ChipID, h.Payload, h.Location, h.IsCol,
			h.Timestamp, h.ToTMSB, h.ToTLSB, h.ToTTotal, h.ToTMicros, h.HitTime)
		return err
	})
}

// SavePixels replaces the stored pixel hits of runID.
func (st *Store) SavePixels(ctx context.Context, runID string, pixels []match.PixelHit) error {
	return st.replace(ctx, "pixels", runID, `
		INSERT INTO pixels (run_id, readout, col, row, timestamp, tot_us)
		VALUES (?, ?, ?, ?, ?, ?)
	`, len(pixels), func(stmt *sql.Stmt, i int) error {
		p := pixels[i]
		_, err := stmt.ExecContext(ctx, runID, p.Readout, p.Col, p.Row, p.Timestamp, p.ToTMicros)
		return err
	})
}

// CountHits returns the number of stored hits for runID.
func (st *Store) CountHits(ctx context.Context, runID string) (int, error) {
	var n int
	err := st.QueryRowContext(ctx, `SELECT COUNT(*) FROM hits WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// CountPixels returns the number of stored pixel hits for runID.
func (st *Store) CountPixels(ctx context.Context, runID string) (int, error) {
	var n int
	err := st.QueryRowContext(ctx, `SELECT COUNT(*) FROM pixels WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

func (st *Store) replace(ctx context.Context, table, runID, insert string, n int, exec func(*sql.Stmt, int) error) error {
	tx, err := st.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return tx.Commit()
}
