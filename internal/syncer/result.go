package syncer

import (
	"errors"
	"fmt"
	"time"

	"github.com/BuzzLyutic/task-sync/internal/model"
)

// Phase identifies one step of a synchronization cycle.
type Phase int

const (
	PhaseProbe Phase = iota
	PhaseCreate
	PhaseMutate
	PhasePull
)

func (p Phase) String() string {
	switch p {
	case PhaseProbe:
		return "probe"
	case PhaseCreate:
		return "push_create"
	case PhaseMutate:
		return "push_mutate"
	case PhasePull:
		return "pull"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ErrOffline is matched by errors.Is for every OfflineError.
var ErrOffline = errors.New("offline")

// OfflineError reports that the server could not be reached at all. The cycle
// was aborted before anything was pushed.
type OfflineError struct {
	Err error
}

func (e *OfflineError) Error() string {
	return fmt.Sprintf("offline: %v", e.Err)
}

func (e *OfflineError) Unwrap() error { return e.Err }

func (e *OfflineError) Is(target error) bool { return target == ErrOffline }

// RecordFailure is a retryable failure for one record. ClientID is zero for
// failures that concern no single record (the pull request itself).
type RecordFailure struct {
	ClientID model.ClientID
	Phase    Phase
	Err      error
}

func (f RecordFailure) Error() string {
	if f.ClientID.IsZero() {
		return fmt.Sprintf("%s: %v", f.Phase, f.Err)
	}
	return fmt.Sprintf("%s %s: %v", f.Phase, f.ClientID, f.Err)
}

func (f RecordFailure) Unwrap() error { return f.Err }

// Result summarizes a synchronization cycle.
type Result struct {
	Created   int
	Updated   int
	Deleted   int
	Recreated int
	Pulled    int
	Skipped   int
	Removed   int

	Failures []RecordFailure
	// LastPhase is the last phase that ran.
	LastPhase Phase
	Duration  time.Duration
}

// Partial reports whether some records are still waiting for synchronization.
func (r *Result) Partial() bool {
	return len(r.Failures) > 0
}

// Err joins the per-record failures, nil when there are none.
func (r *Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Status is what the UI shows after a cycle.
func (r *Result) Status() string {
	if r.Partial() {
		return "pending synchronization"
	}
	return "synced"
}

func (r *Result) fail(id model.ClientID, phase Phase, err error) {
	r.Failures = append(r.Failures, RecordFailure{ClientID: id, Phase: phase, Err: err})
}
