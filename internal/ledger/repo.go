package ledger

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/cardsync/internal/apperr"
)

const runColumns = `id, pass_id, started_at, finished_at, status, error,
	fetched, skipped, failed, created, updated, unchanged, renamed`

const entryColumns = `uid, path, action, disambiguated, checksum, error, run_id, synced_at`

// RecordRun stores a finished pass and upserts the per-contact entries in
// one transaction. A failed entry keeps the previously recorded path and
// checksum. Entries without a uid are skipped.
func (db *DB) RecordRun(run Run, entries []Entry) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.Exec(`
		INSERT INTO runs (pass_id, started_at, finished_at, status, error,
			fetched, skipped, failed, created, updated, unchanged, renamed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.PassID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Status, run.Error,
		run.Fetched, run.Skipped, run.Failed, run.Created, run.Updated, run.Unchanged, run.Renamed)
	if err != nil {
		return 0, fmt.Errorf("ledger: insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ledger: run id: %w", err)
	}

	if len(entries) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO contacts (` + entryColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(uid) DO UPDATE SET
				path          = CASE WHEN excluded.path = '' THEN contacts.path ELSE excluded.path END,
				checksum      = CASE WHEN excluded.path = '' THEN contacts.checksum ELSE excluded.checksum END,
				disambiguated = CASE WHEN excluded.path = '' THEN contacts.disambiguated ELSE excluded.disambiguated END,
				action        = excluded.action,
				error         = excluded.error,
				run_id        = excluded.run_id,
				synced_at     = excluded.synced_at
		`)
		if err != nil {
			return 0, fmt.Errorf("ledger: prepare contact upsert: %w", err)
		}
		defer stmt.Close()
		for _, e := range entries {
			if e.UID == "" {
				continue
			}
			syncedAt := e.SyncedAt
			if syncedAt.IsZero() {
				syncedAt = run.FinishedAt
			}
			if _, err := stmt.Exec(e.UID, e.Path, e.Action, e.Disambiguated, e.Checksum, e.Error, id, syncedAt.UTC()); err != nil {
				return 0, fmt.Errorf("ledger: upsert contact %s: %w", e.UID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ledger: commit: %w", err)
	}
	return id, nil
}

// LastRun returns the most recent pass or apperr.ErrNotFound.
func (db *DB) LastRun() (*Run, error) {
	row := db.conn.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY id DESC LIMIT 1`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: last run: %w", err)
	}
	return r, nil
}

// Runs returns up to limit passes, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan run: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Contacts returns a page of contact entries ordered by path, plus the
// total count.
func (db *DB) Contacts(limit, offset int) ([]Entry, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM contacts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ledger: count contacts: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+entryColumns+` FROM contacts ORDER BY path, uid LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ledger: contacts: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ledger: scan contact: %w", err)
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

// Contact returns the entry for uid or apperr.ErrNotFound.
func (db *DB) Contact(uid string) (*Entry, error) {
	row := db.conn.QueryRow(`SELECT `+entryColumns+` FROM contacts WHERE uid = ?`, uid)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: contact %s: %w", uid, err)
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	err := s.Scan(&r.ID, &r.PassID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Error,
		&r.Fetched, &r.Skipped, &r.Failed, &r.Created, &r.Updated, &r.Unchanged, &r.Renamed)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	err := s.Scan(&e.UID, &e.Path, &e.Action, &e.Disambiguated, &e.Checksum, &e.Error, &e.RunID, &e.SyncedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
