package syncer

import (
	"time"

	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/reconcile"
)

// ContactError is a contact that could not be reconciled.
type ContactError struct {
	UID   string `json:"uid,omitempty"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

// Report summarizes one pass.
type Report struct {
	ID         string              `json:"id"`
	RunID      int64               `json:"run_id,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Error      string              `json:"error,omitempty"`
	Fetched    int                 `json:"fetched"`
	Skipped    int                 `json:"skipped"`
	Failed     int                 `json:"failed"`
	Created    int                 `json:"created"`
	Updated    int                 `json:"updated"`
	Unchanged  int                 `json:"unchanged"`
	Renamed    int                 `json:"renamed"`
	Outcomes   []reconcile.Outcome `json:"outcomes,omitempty"`
	Errors     []ContactError      `json:"errors,omitempty"`
}

func (r *Report) add(out reconcile.Outcome) {
	r.Outcomes = append(r.Outcomes, out)
	switch out.Action {
	case reconcile.ActionCreated:
		r.Created++
	case reconcile.ActionUpdated:
		r.Updated++
	case reconcile.ActionRenamed:
		r.Renamed++
	default:
		r.Unchanged++
	}
}

func (r *Report) fail(uid, name string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, ContactError{UID: uid, Name: name, Error: err.Error()})
}

// Run converts the report into a ledger row.
func (r *Report) Run() ledger.Run {
	status := ledger.StatusCompleted
	if r.Error != "" {
		status = ledger.StatusFailed
	}
	return ledger.Run{
		PassID:     r.ID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Status:     status,
		Error:      r.Error,
		Fetched:    r.Fetched,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		Created:    r.Created,
		Updated:    r.Updated,
		Unchanged:  r.Unchanged,
		Renamed:    r.Renamed,
	}
}

// Entries converts outcomes and contact errors into ledger entries.
func (r *Report) Entries() []ledger.Entry {
	out := make([]ledger.Entry, 0, len(r.Outcomes)+len(r.Errors))
	for _, o := range r.Outcomes {
		out = append(out, ledger.Entry{
			UID:           o.UID,
			Path:          o.Path,
			Action:        string(o.Action),
			Disambiguated: o.Disambiguated,
			Checksum:      o.Checksum,
			SyncedAt:      r.FinishedAt,
		})
	}
	for _, e := range r.Errors {
		out = append(out, ledger.Entry{
			UID:      e.UID,
			Action:   "failed",
			Error:    e.Error,
			SyncedAt: r.FinishedAt,
		})
	}
	return out
}
