package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/checksum"
	"github.com/starford/cardsync/internal/frontmatter"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/notepath"
	"github.com/starford/cardsync/internal/storage"
)

// Action describes what happened to a contact note.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionRenamed   Action = "renamed"
)

// Outcome is the result of reconciling one contact.
type Outcome struct {
	UID           string `json:"uid"`
	Path          string `json:"path"`
	Action        Action `json:"action"`
	Disambiguated bool   `json:"disambiguated"`
	Checksum      string `json:"checksum"`
}

// Store is the subset of storage.Provider the engine needs.
type Store interface {
	Lookup(path string) (storage.Kind, error)
	Create(path string, content []byte) error
	Update(path string, fn storage.UpdateFunc) (bool, error)
	Move(oldPath, newPath string) error
}

// Engine reconciles contacts into one people folder. It holds no state
// between calls; every decision is taken against current storage.
type Engine struct {
	store      Store
	peoplePath string
	logger     *slog.Logger
}

// NewEngine creates an engine writing under peoplePath.
func NewEngine(store Store, peoplePath string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, peoplePath: notepath.Normalize(peoplePath), logger: logger}
}

// Reconcile brings the note of c up to date and reports where it ended up.
// Callers must not run two Reconcile calls concurrently on the same folder.
func (e *Engine) Reconcile(ctx context.Context, c models.Contact) (Outcome, error) {
	if c.UID == "" {
		return Outcome{}, fmt.Errorf("reconcile: %w", apperr.ErrMissingIdentifier)
	}
	paths := notepath.ForContact(e.peoplePath, c)

	canonical, err := e.store.Lookup(paths.Canonical)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: lookup %s: %w", paths.Canonical, err)
	}
	disambiguated, err := e.store.Lookup(paths.Disambiguated)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: lookup %s: %w", paths.Disambiguated, err)
	}

	decision := Decide(canonical, disambiguated)
	e.logger.DebugContext(ctx, "reconcile: decided",
		slog.String("uid", c.UID),
		slog.String("canonical", paths.Canonical),
		slog.String("canonical_kind", canonical.String()),
		slog.String("disambiguated_kind", disambiguated.String()),
		slog.String("decision", decision.String()))

	switch decision {
	case DecisionRenameThenUpdate:
		if err := e.store.Move(paths.Disambiguated, paths.Canonical); err != nil {
			return Outcome{}, fmt.Errorf("reconcile: rename %s: %w", paths.Disambiguated, err)
		}
		e.logger.InfoContext(ctx, "reconcile: collision resolved, note renamed",
			slog.String("uid", c.UID),
			slog.String("from", paths.Disambiguated),
			slog.String("to", paths.Canonical))
		out, err := e.upsertCanonical(ctx, c, paths, storage.KindFile)
		if err == nil && !out.Disambiguated {
			out.Action = ActionRenamed
		}
		return out, err

	case DecisionUpdateDisambiguated:
		return e.update(c, paths.Disambiguated, true)

	case DecisionCreateDisambiguated:
		e.logger.InfoContext(ctx, "reconcile: folder holds canonical name",
			slog.String("uid", c.UID),
			slog.String("path", paths.Canonical))
		return e.toDisambiguated(c, paths)

	default:
		return e.upsertCanonical(ctx, c, paths, canonical)
	}
}

// upsertCanonical creates or patches the canonical note. A note owned by
// another uid is left alone and c is written to the disambiguated path.
func (e *Engine) upsertCanonical(ctx context.Context, c models.Contact, paths notepath.Paths, kind storage.Kind) (Outcome, error) {
	if kind == storage.KindAbsent {
		out, err := e.create(c, paths.Canonical, false)
		if !errors.Is(err, apperr.ErrAlreadyExists) {
			return out, err
		}
	}

	out, err := e.update(c, paths.Canonical, false)
	if !errors.Is(err, apperr.ErrMismatch) {
		return out, err
	}
	e.logger.InfoContext(ctx, "reconcile: canonical name claimed by another contact",
		slog.String("uid", c.UID),
		slog.String("path", paths.Canonical),
		slog.String("fallback", paths.Disambiguated))
	return e.toDisambiguated(c, paths)
}

// toDisambiguated writes c at its disambiguated path, creating the note
// when absent.
func (e *Engine) toDisambiguated(c models.Contact, paths notepath.Paths) (Outcome, error) {
	kind, err := e.store.Lookup(paths.Disambiguated)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: lookup %s: %w", paths.Disambiguated, err)
	}
	switch kind {
	case storage.KindFolder:
		return Outcome{}, fmt.Errorf("reconcile: %s: %w", paths.Disambiguated, apperr.ErrFolderCollision)
	case storage.KindFile:
		return e.update(c, paths.Disambiguated, true)
	default:
		return e.create(c, paths.Disambiguated, true)
	}
}

func (e *Engine) create(c models.Contact, path string, disambiguated bool) (Outcome, error) {
	content, err := frontmatter.Render(c)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.store.Create(path, content); err != nil {
		return Outcome{}, fmt.Errorf("reconcile: create %s: %w", path, err)
	}
	return Outcome{
		UID:           c.UID,
		Path:          path,
		Action:        ActionCreated,
		Disambiguated: disambiguated,
		Checksum:      checksum.Sum(content),
	}, nil
}

// update patches the note at path. A SyncID owned by another uid, or a
// header that cannot be parsed, yields apperr.ErrMismatch and leaves the
// file untouched.
func (e *Engine) update(c models.Contact, path string, disambiguated bool) (Outcome, error) {
	var (
		mismatch bool
		final    []byte
	)
	written, err := e.store.Update(path, func(current []byte) ([]byte, error) {
		next, mm, err := frontmatter.Patch(current, c)
		if errors.Is(err, frontmatter.ErrInvalidHeader) {
			e.logger.Warn("reconcile: unreadable header, note left untouched",
				slog.String("path", path),
				slog.String("error", err.Error()))
			mismatch = true
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if mm {
			mismatch = true
			return nil, nil
		}
		final = next
		if bytes.Equal(next, current) {
			return nil, nil
		}
		return next, nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: update %s: %w", path, err)
	}
	if mismatch {
		return Outcome{}, fmt.Errorf("reconcile: %s: %w", path, apperr.ErrMismatch)
	}

	action := ActionUnchanged
	if written {
		action = ActionUpdated
	}
	return Outcome{
		UID:           c.UID,
		Path:          path,
		Action:        action,
		Disambiguated: disambiguated,
		Checksum:      checksum.Sum(final),
	}, nil
}
