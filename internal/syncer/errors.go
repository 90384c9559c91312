package syncer

import (
	"errors"
	"fmt"
)

// Stage identifies where in a sync cycle a failure occurred.
type Stage string

const (
	// StageFetch covers network/parsing failures reaching the campaign
	// source. Never fatal; the next tick is the retry mechanism.
	StageFetch Stage = "FETCHING"

	// StageDiff covers store reads while building the known-id baseline.
	// A failure here abandons the cycle before any write - it is never
	// treated as "everything is new".
	StageDiff Stage = "DIFFING"

	// StagePersist covers aggregate and per-donor writes. A failure here
	// suppresses the cycle's notification; already-inserted donors stay,
	// since re-inserting them next cycle is a no-op.
	StagePersist Stage = "PERSISTING"

	// StageNotify covers channel post failures. Persisted state is already
	// correct, so this is log-only and never a reason to reprocess.
	StageNotify Stage = "NOTIFYING"
)

// CycleError wraps a failure with the cycle stage it occurred in.
type CycleError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *CycleError) Unwrap() error {
	return e.Err
}

// StageOf returns the cycle stage of an error, or "" if the error did not
// come from a sync cycle. Uses errors.As to handle wrapped errors.
func StageOf(err error) Stage {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce.Stage
	}
	return ""
}
