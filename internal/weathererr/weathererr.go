// Package weathererr defines the error taxonomy shared by the API client,
// the location provider, and the orchestrator.
package weathererr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure. Kinds are compared by errors.Is.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidURL
	KindInvalidResponse
	KindInvalidData
	KindNetwork
	KindAPI
	KindNoLocationFound
	KindLocationServicesDisabled
	KindLocationPermissionDenied
)

func (k Kind) String() string {
	switch k {
	case KindInvalidURL:
		return "invalid_url"
	case KindInvalidResponse:
		return "invalid_response"
	case KindInvalidData:
		return "invalid_data"
	case KindNetwork:
		return "network"
	case KindAPI:
		return "api"
	case KindNoLocationFound:
		return "no_location_found"
	case KindLocationServicesDisabled:
		return "location_services_disabled"
	case KindLocationPermissionDenied:
		return "location_permission_denied"
	default:
		return "unknown"
	}
}

// Error carries a Kind plus an optional server message and cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidURL:
		return "Invalid URL. Please try again."
	case KindInvalidResponse:
		return "Invalid response from server. Please try again later."
	case KindInvalidData:
		return "The data received from the server was invalid. Please try again."
	case KindNetwork:
		if e.Err != nil {
			return "Network error: " + e.Err.Error()
		}
		return "Network error"
	case KindAPI:
		return "API error: " + e.Message
	case KindNoLocationFound:
		return "No location found. Please try a different search term."
	case KindLocationServicesDisabled:
		return "Location services are disabled. Please enable them in Settings."
	case KindLocationPermissionDenied:
		return "Location permission denied. Please update in Settings."
	default:
		return "An unknown error occurred. Please try again."
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error of the same Kind, so the
// package sentinels work with errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidURL               = &Error{Kind: KindInvalidURL}
	ErrInvalidResponse          = &Error{Kind: KindInvalidResponse}
	ErrInvalidData              = &Error{Kind: KindInvalidData}
	ErrNetwork                  = &Error{Kind: KindNetwork}
	ErrAPI                      = &Error{Kind: KindAPI}
	ErrNoLocationFound          = &Error{Kind: KindNoLocationFound}
	ErrLocationServicesDisabled = &Error{Kind: KindLocationServicesDisabled}
	ErrLocationPermissionDenied = &Error{Kind: KindLocationPermissionDenied}
	ErrUnknown                  = &Error{Kind: KindUnknown}
)

// New returns an error of the given kind wrapping cause (may be nil).
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// Network wraps a transport-level failure.
func Network(cause error) *Error {
	return &Error{Kind: KindNetwork, Err: cause}
}

// API builds an API error from a server-supplied or synthesized message.
func API(message string) *Error {
	return &Error{Kind: KindAPI, Message: message}
}

// APIStatus builds the API error used when the body carries no message.
func APIStatus(statusCode int) *Error {
	return API(fmt.Sprintf("Status code: %d", statusCode))
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
