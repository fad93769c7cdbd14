package service

import (
	"errors"
	"time"
)

// ErrSyncInProgress is returned when a cycle is requested while another one runs.
// The request is dropped, not queued
var ErrSyncInProgress = errors.New("sync already in progress")

// State is the phase of the sync session
type State string

const (
	StateIdle           State = "IDLE"
	StateAuthenticating State = "AUTHENTICATING"
	StatePulling        State = "PULLING"
	StatePushing        State = "PUSHING"
	StateError          State = "ERROR"
)

// Status is a point-in-time copy of the session
type Status struct {
	State             State
	ProgressCount     int
	TotalCount        int
	IsSyncing         bool
	LastSyncTimestamp time.Time
	LastErrorMessage  string
}
