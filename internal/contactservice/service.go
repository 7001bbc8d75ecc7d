// Package contactservice exposes sync runs and synced contacts to the
// HTTP and MCP surfaces.
package contactservice

import (
	"context"
	"errors"
	"os"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/frontmatter"
	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/syncer"
)

// Runner is the part of syncer.Syncer the service drives.
type Runner interface {
	TryRun(ctx context.Context) (*syncer.Report, error)
	Running() bool
	LastReport() *syncer.Report
	PeoplePath() string
}

// Reader reads vault files.
type Reader interface {
	Read(path string) ([]byte, error)
	List(dir string) ([]models.NoteMetadata, error)
}

// Status describes the sync state of this process and of the ledger.
type Status struct {
	Running    bool           `json:"running"`
	PeoplePath string         `json:"people_path"`
	LastReport *syncer.Report `json:"last_report,omitempty"`
	LastRun    *ledger.Run    `json:"last_run,omitempty"`
}

// ContactDetail is a ledger entry enriched with the note as it is now.
type ContactDetail struct {
	ledger.Entry
	Fields  map[string]any `json:"fields,omitempty"`
	Content string         `json:"content"`
	Stale   bool           `json:"stale"`
}

// Service coordinates the syncer, the ledger and vault reads.
type Service struct {
	runner Runner
	ledger ledger.Ledger
	store  Reader
}

// NewService creates a new contact service.
func NewService(runner Runner, l ledger.Ledger, store Reader) *Service {
	return &Service{runner: runner, ledger: l, store: store}
}

// Sync starts a pass unless one is running (apperr.ErrConflict).
func (s *Service) Sync(ctx context.Context) (*syncer.Report, error) {
	return s.runner.TryRun(ctx)
}

// Status reports whether a pass is running and the most recent results.
func (s *Service) Status(_ context.Context) (*Status, error) {
	st := &Status{
		Running:    s.runner.Running(),
		PeoplePath: s.runner.PeoplePath(),
		LastReport: s.runner.LastReport(),
	}
	run, err := s.ledger.LastRun()
	switch {
	case err == nil:
		st.LastRun = run
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}
	return st, nil
}

// Runs returns recent passes, newest first.
func (s *Service) Runs(_ context.Context, limit int) ([]ledger.Run, error) {
	runs, err := s.ledger.Runs(limit)
	if err != nil {
		return nil, err
	}
	return nonNil(runs), nil
}

// ListContacts returns a page of synced contacts ordered by note path.
func (s *Service) ListContacts(_ context.Context, limit, offset int) ([]ledger.Entry, int, error) {
	entries, total, err := s.ledger.Contacts(limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return nonNil(entries), total, nil
}

// GetContact returns the contact with uid and its current note. A note
// that was moved or deleted since the last pass is reported as stale.
func (s *Service) GetContact(_ context.Context, uid string) (*ContactDetail, error) {
	entry, err := s.ledger.Contact(uid)
	if err != nil {
		return nil, err
	}
	detail := &ContactDetail{Entry: *entry}
	if entry.Path == "" {
		detail.Stale = true
		return detail, nil
	}

	data, err := s.store.Read(entry.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			detail.Stale = true
			return detail, nil
		}
		return nil, err
	}
	detail.Content = string(data)
	detail.Stale = frontmatter.SyncID(data) != uid
	if fields, err := frontmatter.Fields(data); err == nil {
		detail.Fields = fields
	}
	return detail, nil
}

// ListNotes lists every note currently in the people folder, synced or
// not.
func (s *Service) ListNotes(_ context.Context) ([]models.NoteMetadata, error) {
	notes, err := s.store.List(s.runner.PeoplePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.NoteMetadata{}, nil
		}
		return nil, err
	}
	return nonNil(notes), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
