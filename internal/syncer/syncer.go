// Package syncer runs a full contact sync pass: preconditions, fetch,
// filter, and sequential reconciliation of every contact.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/google/uuid"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/normalize"
	"github.com/starford/cardsync/internal/notepath"
	"github.com/starford/cardsync/internal/reconcile"
	"github.com/starford/cardsync/internal/storage"
)

// Credentials authenticate against the contact server.
type Credentials struct {
	Username string
	Password string
}

// Fetcher retrieves every contact of the remote directory.
type Fetcher interface {
	FetchContacts(ctx context.Context, creds Credentials) ([]vcard.Card, error)
}

// Store is the vault capability a pass needs.
type Store interface {
	reconcile.Store
	Mkdir(path string) error
}

// Recorder persists finished passes.
type Recorder interface {
	RecordRun(run ledger.Run, entries []ledger.Entry) (int64, error)
}

// Options are the user-facing sync settings.
type Options struct {
	ICloudUserName              string
	ICloudPassword              string
	PeoplePath                  string
	IncludeContactsWithoutNames bool
	IncludeContactInfoTagging   bool
}

// Syncer runs passes one at a time.
type Syncer struct {
	mu sync.Mutex // held for the whole pass

	opts     Options
	store    Store
	fetcher  Fetcher
	recorder Recorder
	notifier Notifier
	observer func(*Report)
	logger   *slog.Logger

	stateMu sync.RWMutex
	running bool
	last    *Report
}

// New creates a Syncer writing into store.
func New(store Store, fetcher Fetcher, opts Options, options ...Option) *Syncer {
	s := &Syncer{opts: opts, store: store, fetcher: fetcher}
	for _, o := range options {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.logger}
	}
	return s
}

// Run performs one pass, waiting for a running pass to finish first.
// The report is returned even when the pass fails.
func (s *Syncer) Run(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(ctx)
}

// TryRun performs one pass unless another is in progress, in which case it
// returns apperr.ErrConflict immediately.
func (s *Syncer) TryRun(ctx context.Context) (*Report, error) {
	if !s.mu.TryLock() {
		return nil, fmt.Errorf("syncer: pass already running: %w", apperr.ErrConflict)
	}
	defer s.mu.Unlock()
	return s.run(ctx)
}

// Running reports whether a pass is in progress.
func (s *Syncer) Running() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.running
}

// LastReport returns the report of the most recent pass in this process,
// or nil.
func (s *Syncer) LastReport() *Report {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.last
}

// PeoplePath is the normalized folder contact notes are written to.
func (s *Syncer) PeoplePath() string {
	return notepath.Normalize(s.opts.PeoplePath)
}

func (s *Syncer) run(ctx context.Context) (*Report, error) {
	s.setRunning(true)
	report := &Report{ID: uuid.NewString(), StartedAt: time.Now()}
	err := s.pass(ctx, report, s.logger.With(slog.String("pass", report.ID)))
	report.FinishedAt = time.Now()
	if err != nil {
		report.Error = err.Error()
	}
	s.record(report)

	s.stateMu.Lock()
	s.running = false
	s.last = report
	s.stateMu.Unlock()

	if s.observer != nil {
		s.observer(report)
	}
	return report, err
}

func (s *Syncer) pass(ctx context.Context, report *Report, logger *slog.Logger) error {
	peoplePath := s.PeoplePath()

	kind, err := s.store.Lookup(peoplePath)
	if err != nil {
		return fmt.Errorf("syncer: lookup people path: %w", err)
	}
	if kind == storage.KindFile {
		s.notify(NoticeError, MsgPeoplePathNotFolder)
		return fmt.Errorf("syncer: people path %q is a file: %w", peoplePath, apperr.ErrConfig)
	}

	creds := Credentials{
		Username: strings.TrimSpace(s.opts.ICloudUserName),
		Password: strings.TrimSpace(s.opts.ICloudPassword),
	}
	if creds.Username == "" || creds.Password == "" {
		s.notify(NoticeError, MsgInvalidCredentials)
		return fmt.Errorf("syncer: missing credentials: %w", apperr.ErrConfig)
	}

	if kind == storage.KindAbsent {
		if err := s.store.Mkdir(peoplePath); err != nil {
			return fmt.Errorf("syncer: create people folder: %w", err)
		}
		s.notify(NoticeInfo, fmt.Sprintf(MsgCreatedFolder, peoplePath))
	}

	s.notify(NoticeInfo, MsgStarting)

	cards, err := s.fetcher.FetchContacts(ctx, creds)
	if err != nil {
		s.notify(NoticeError, MsgFetchFailed)
		if !errors.Is(err, apperr.ErrTransport) {
			err = fmt.Errorf("%w: %w", apperr.ErrTransport, err)
		}
		return fmt.Errorf("syncer: fetch contacts: %w", err)
	}
	report.Fetched = len(cards)
	logger.Info("sync: contacts fetched", slog.Int("count", len(cards)))

	engine := reconcile.NewEngine(s.store, peoplePath, logger)
	normOpts := normalize.Options{IncludeContactInfoTagging: s.opts.IncludeContactInfoTagging}

	for _, card := range cards {
		if !s.opts.IncludeContactsWithoutNames && !normalize.HasName(card) {
			report.Skipped++
			continue
		}

		contact, err := normalize.Normalize(card, normOpts)
		if err != nil {
			contactFailed(logger, report, "", card.Value(vcard.FieldFormattedName), err)
			continue
		}
		out, err := engine.Reconcile(ctx, contact)
		if err != nil {
			contactFailed(logger, report, contact.UID, contact.Name, err)
			continue
		}
		report.add(out)
		logger.Debug("sync: contact reconciled",
			slog.String("uid", out.UID),
			slog.String("path", out.Path),
			slog.String("action", string(out.Action)))
	}

	s.notify(NoticeInfo, MsgCompleted)
	logger.Info("sync: completed",
		slog.Int("fetched", report.Fetched),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("renamed", report.Renamed))
	return nil
}

func contactFailed(logger *slog.Logger, report *Report, uid, name string, err error) {
	report.fail(uid, name, err)
	logger.Warn("sync: contact failed",
		slog.String("uid", uid),
		slog.String("name", name),
		slog.String("error", err.Error()))
}

func (s *Syncer) record(report *Report) {
	if s.recorder == nil {
		return
	}
	id, err := s.recorder.RecordRun(report.Run(), report.Entries())
	if err != nil {
		s.logger.Warn("sync: record run failed", slog.String("error", err.Error()))
		return
	}
	report.RunID = id
}

func (s *Syncer) notify(level NoticeLevel, msg string) {
	s.notifier.Notify(Notice{Level: level, Message: msg, Time: time.Now()})
}

func (s *Syncer) setRunning(v bool) {
	s.stateMu.Lock()
	s.running = v
	s.stateMu.Unlock()
}
