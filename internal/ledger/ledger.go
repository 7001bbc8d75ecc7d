package ledger

import "time"

// Run status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one recorded sync pass.
type Run struct {
	ID         int64     `json:"id"`
	PassID     string    `json:"pass_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Fetched    int       `json:"fetched"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Unchanged  int       `json:"unchanged"`
	Renamed    int       `json:"renamed"`
}

// Entry is the last known state of one contact.
type Entry struct {
	UID           string    `json:"uid"`
	Path          string    `json:"path"`
	Action        string    `json:"action"`
	Disambiguated bool      `json:"disambiguated"`
	Checksum      string    `json:"checksum"`
	Error         string    `json:"error,omitempty"`
	RunID         int64     `json:"run_id"`
	SyncedAt      time.Time `json:"synced_at"`
}

// Ledger records sync history. It is write-mostly: the sync pass never
// consults it to decide where a contact goes.
type Ledger interface {
	RecordRun(run Run, entries []Entry) (int64, error)
	LastRun() (*Run, error)
	Runs(limit int) ([]Run, error)
	Contacts(limit, offset int) ([]Entry, int, error)
	Contact(uid string) (*Entry, error)
	Close() error
}

// Verify *DB satisfies Ledger at compile time.
var _ Ledger = (*DB)(nil)
