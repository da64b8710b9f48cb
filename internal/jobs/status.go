package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the shared progress state for the current run: the single-flight
// gate, the counters, and the failure ledger. One mutex guards all of it so
// the gate check-and-set cannot race the counters.
type Status struct {
	mu         sync.Mutex
	runID      string
	state      State
	total      int
	done       int
	failed     int
	failures   []FailureRecord
	startedAt  time.Time
	finishedAt time.Time
}

func NewStatus() *Status {
	return &Status{state: StateIdle}
}

// TryStart claims the single-flight gate. It returns false while a run is
// already in progress. On success the counters are zeroed and, when
// clearLedger is set (full scans), the failure ledger is reset too. Retries
// keep the ledger so entries can be removed per item on success.
func (s *Status) TryStart(clearLedger bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return false
	}
	s.state = StateRunning
	s.runID = uuid.NewString()
	s.total = 0
	s.done = 0
	s.failed = 0
	s.startedAt = time.Now()
	s.finishedAt = time.Time{}
	if clearLedger {
		s.failures = nil
	}
	return true
}

func (s *Status) SetTotal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = n
}

func (s *Status) ItemSucceeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done++
}

// ItemFailed counts the item as done and failed, and appends its records to
// the ledger.
func (s *Status) ItemFailed(records ...FailureRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done++
	s.failed++
	s.failures = append(s.failures, records...)
}

// AppendFailures records failures without touching the counters. Used by
// single-item runs that happen alongside a bulk job they must not distort.
func (s *Status) AppendFailures(records ...FailureRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, records...)
}

// RemoveFailures drops every ledger entry for the given item.
func (s *Status) RemoveFailures(itemID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.failures[:0]
	for _, rec := range s.failures {
		if rec.ItemID != itemID {
			kept = append(kept, rec)
		}
	}
	s.failures = kept
}

func (s *Status) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateComplete
	s.finishedAt = time.Now()
}

func (s *Status) HasFailures() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failures) > 0
}

// Failures returns a copy of the current ledger.
func (s *Status) Failures() []FailureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FailureRecord(nil), s.failures...)
}

// Snapshot returns a consistent copy of the full job state. Safe to call at
// any time from any goroutine.
func (s *Status) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		RunID:    s.runID,
		State:    s.state,
		Total:    s.total,
		Done:     s.done,
		Failed:   s.failed,
		Failures: append([]FailureRecord(nil), s.failures...),
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	if !s.finishedAt.IsZero() {
		t := s.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}

func newFailureRecord(itemID, imageID int64, imageSrc string, err error) FailureRecord {
	return FailureRecord{
		ID:        uuid.NewString(),
		ItemID:    itemID,
		ImageID:   imageID,
		ImageSrc:  imageSrc,
		Error:     err.Error(),
		Retryable: true,
		At:        time.Now(),
	}
}
