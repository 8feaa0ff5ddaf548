// Package loading provides State, the result/progress union published by
// every fetch the orchestrator runs.
package loading

import (
	"encoding/json"
	"fmt"

	"github.com/kjstillabower/weather-dashboard/internal/weathererr"
)

// Kind is the active variant of a State.
type Kind int

const (
	KindIdle Kind = iota
	KindLoading
	KindSuccess
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindLoading:
		return "loading"
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Payload is the constraint on values carried by Success.
type Payload[T any] interface {
	Equal(T) bool
}

// State is a tagged union: Idle | Loading(progress?) | Success(T) | Failure(err).
// The zero value is Idle. Only the fields of the active variant are set.
type State[T Payload[T]] struct {
	kind        Kind
	progress    float64
	hasProgress bool
	value       T
	err         error
}

// Idle returns the Idle state.
func Idle[T Payload[T]]() State[T] {
	return State[T]{kind: KindIdle}
}

// InProgress returns Loading with no progress value.
func InProgress[T Payload[T]]() State[T] {
	return State[T]{kind: KindLoading}
}

// InProgressAt returns Loading with progress p, clamped to [0, 1].
func InProgressAt[T Payload[T]](p float64) State[T] {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return State[T]{kind: KindLoading, progress: p, hasProgress: true}
}

// Succeeded returns Success(v).
func Succeeded[T Payload[T]](v T) State[T] {
	return State[T]{kind: KindSuccess, value: v}
}

// Failed returns Failure(err). A nil err is recorded as weathererr.ErrUnknown.
func Failed[T Payload[T]](err error) State[T] {
	if err == nil {
		err = weathererr.ErrUnknown
	}
	return State[T]{kind: KindFailure, err: err}
}

func (s State[T]) Kind() Kind { return s.kind }

func (s State[T]) IsLoading() bool { return s.kind == KindLoading }

// Value returns the payload; ok is true iff the state is Success.
func (s State[T]) Value() (v T, ok bool) {
	if s.kind != KindSuccess {
		return v, false
	}
	return s.value, true
}

// Err returns the failure cause, nil unless the state is Failure.
func (s State[T]) Err() error {
	if s.kind != KindFailure {
		return nil
	}
	return s.err
}

// Progress returns the loading progress; ok is false unless the state is
// Loading with a progress value.
func (s State[T]) Progress() (p float64, ok bool) {
	if s.kind != KindLoading || !s.hasProgress {
		return 0, false
	}
	return s.progress, true
}

// Equal compares two states. Two failures are always equal, whatever their
// causes; see DESIGN.md.
func (s State[T]) Equal(o State[T]) bool {
	if s.kind != o.kind {
		return false
	}
	switch s.kind {
	case KindIdle:
		return true
	case KindLoading:
		if s.hasProgress != o.hasProgress {
			return false
		}
		return !s.hasProgress || s.progress == o.progress
	case KindSuccess:
		return s.value.Equal(o.value)
	case KindFailure:
		return true
	default:
		panic(fmt.Sprintf("loading: unhandled kind %v", s.kind))
	}
}

func (s State[T]) String() string {
	switch s.kind {
	case KindIdle:
		return "Idle"
	case KindLoading:
		if s.hasProgress {
			return fmt.Sprintf("Loading(%.1f)", s.progress)
		}
		return "Loading"
	case KindSuccess:
		return "Success"
	case KindFailure:
		return fmt.Sprintf("Failure(%v)", s.err)
	default:
		panic(fmt.Sprintf("loading: unhandled kind %v", s.kind))
	}
}

type stateJSON struct {
	Status   string     `json:"status"`
	Progress *float64   `json:"progress,omitempty"`
	Data     any        `json:"data,omitempty"`
	Error    *errorJSON `json:"error,omitempty"`
}

type errorJSON struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// MarshalJSON renders the state for the presentation adapter.
func (s State[T]) MarshalJSON() ([]byte, error) {
	out := stateJSON{Status: s.kind.String()}
	switch s.kind {
	case KindIdle:
	case KindLoading:
		if s.hasProgress {
			p := s.progress
			out.Progress = &p
		}
	case KindSuccess:
		out.Data = s.value
	case KindFailure:
		out.Error = &errorJSON{
			Kind:    weathererr.KindOf(s.err).String(),
			Message: s.err.Error(),
		}
	default:
		panic(fmt.Sprintf("loading: unhandled kind %v", s.kind))
	}
	return json.Marshal(out)
}
