package domain

import (
	"fmt"
	"time"
)

type StatusKind string

const (
	StatusIdle     StatusKind = "idle"
	StatusRunning  StatusKind = "running"
	StatusStopped  StatusKind = "stopped"
	StatusError    StatusKind = "error"
	StatusUpdating StatusKind = "updating"
)

// statusRank orders kinds for deterministic status sorting.
var statusRank = map[StatusKind]int{
	StatusIdle:     0,
	StatusRunning:  1,
	StatusStopped:  2,
	StatusError:    3,
	StatusUpdating: 4,
}

func (k StatusKind) Rank() int {
	return statusRank[k]
}

func (k StatusKind) Valid() bool {
	_, ok := statusRank[k]
	return ok
}

type RunningStatus struct {
	PID  int `json:"pid,omitempty"`
	Port int `json:"port,omitempty"`
}

type StoppedStatus struct {
	Reason string `json:"reason,omitempty"`
}

type ErrorStatus struct {
	Error      string `json:"error"`
	RetryCount int    `json:"retryCount"`
}

type UpdatingStatus struct {
	Progress int `json:"progress"`
}

// ServerStatus is a closed tagged variant: exactly the payload matching Kind
// is non-nil. Construct through the Idle/Running/Stopped/Error/Updating
// helpers so the invariant holds.
type ServerStatus struct {
	Kind     StatusKind      `json:"kind"`
	Since    time.Time       `json:"since"`
	Running  *RunningStatus  `json:"running,omitempty"`
	Stopped  *StoppedStatus  `json:"stopped,omitempty"`
	Error    *ErrorStatus    `json:"error,omitempty"`
	Updating *UpdatingStatus `json:"updating,omitempty"`
}

func Idle() ServerStatus {
	return ServerStatus{Kind: StatusIdle, Since: time.Now().UTC()}
}

func Running(pid, port int) ServerStatus {
	return ServerStatus{
		Kind:    StatusRunning,
		Since:   time.Now().UTC(),
		Running: &RunningStatus{PID: pid, Port: port},
	}
}

func Stopped(reason string) ServerStatus {
	return ServerStatus{
		Kind:    StatusStopped,
		Since:   time.Now().UTC(),
		Stopped: &StoppedStatus{Reason: reason},
	}
}

func Errored(message string, retryCount int) ServerStatus {
	return ServerStatus{
		Kind:  StatusError,
		Since: time.Now().UTC(),
		Error: &ErrorStatus{Error: message, RetryCount: retryCount},
	}
}

func Updating(progress int) ServerStatus {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return ServerStatus{
		Kind:     StatusUpdating,
		Since:    time.Now().UTC(),
		Updating: &UpdatingStatus{Progress: progress},
	}
}

func (s ServerStatus) Clone() ServerStatus {
	out := s
	if s.Running != nil {
		running := *s.Running
		out.Running = &running
	}
	if s.Stopped != nil {
		stopped := *s.Stopped
		out.Stopped = &stopped
	}
	if s.Error != nil {
		errored := *s.Error
		out.Error = &errored
	}
	if s.Updating != nil {
		updating := *s.Updating
		out.Updating = &updating
	}
	return out
}

// RetryCount returns the retry counter when in error status, zero otherwise.
func (s ServerStatus) RetryCount() int {
	if s.Kind == StatusError && s.Error != nil {
		return s.Error.RetryCount
	}
	return 0
}

// CanTransition reports whether the lifecycle allows moving from s.Kind to
// target. The updating state is reachable from anywhere and returns to any
// prior state on completion.
func (s ServerStatus) CanTransition(target StatusKind) bool {
	if !target.Valid() {
		return false
	}
	if target == StatusUpdating || s.Kind == StatusUpdating {
		return true
	}
	switch s.Kind {
	case StatusIdle, StatusStopped:
		return target == StatusRunning || target == StatusError
	case StatusError:
		return target == StatusRunning || target == StatusError
	case StatusRunning:
		return target == StatusStopped || target == StatusError
	default:
		return false
	}
}

// EnsureStartable enforces the start preconditions from the transition table:
// starts are legal from idle, stopped and error only, and an error status
// past its retry limit stays put.
func (s ServerStatus) EnsureStartable(retryLimit int) error {
	switch s.Kind {
	case StatusRunning:
		return ErrAlreadyRunning
	case StatusIdle, StatusStopped:
		return nil
	case StatusError:
		// retryLimit 0 means unlimited retries.
		if retryLimit > 0 && s.RetryCount() > retryLimit {
			return fmt.Errorf("%w: %d attempts", ErrRetryExhausted, s.RetryCount())
		}
		return nil
	default:
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, s.Kind)
	}
}

// EnsureStoppable enforces the stop precondition: only running servers stop.
func (s ServerStatus) EnsureStoppable() error {
	if s.Kind != StatusRunning {
		return ErrNotRunning
	}
	return nil
}
