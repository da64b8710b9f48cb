package jobs

import "time"

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateComplete State = "complete"
)

// FailureRecord is one ledger entry: an item (or one of its assets) that was
// dispatched but did not complete successfully. Entries are removed only when
// a later attempt on the same item succeeds.
type FailureRecord struct {
	ID        string    `json:"id"`
	ItemID    int64     `json:"item_id"`
	ImageID   int64     `json:"image_id,omitempty"`
	ImageSrc  string    `json:"image_src,omitempty"`
	Error     string    `json:"error"`
	Retryable bool      `json:"retryable"`
	At        time.Time `json:"at"`
}

// Snapshot is a point-in-time read of the job state. done < total with a
// running state is a normal in-progress read, not an error.
type Snapshot struct {
	RunID      string          `json:"run_id,omitempty"`
	State      State           `json:"state"`
	Total      int             `json:"total"`
	Done       int             `json:"done"`
	Failed     int             `json:"failed"`
	Failures   []FailureRecord `json:"failures"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}
