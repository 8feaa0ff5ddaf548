// Package location tracks the device coordinate, turns authorization changes
// and source failures into events, and runs city searches.
package location

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// Authorization is the host platform's location permission state.
type Authorization int

const (
	AuthorizationNotDetermined Authorization = iota
	AuthorizationRestricted
	AuthorizationDenied
	AuthorizationGranted
)

func (a Authorization) String() string {
	switch a {
	case AuthorizationRestricted:
		return "restricted"
	case AuthorizationDenied:
		return "denied"
	case AuthorizationGranted:
		return "granted"
	default:
		return "not_determined"
	}
}

// ParseAuthorization accepts the names produced by String.
func ParseAuthorization(s string) (Authorization, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "not_determined", "notdetermined":
		return AuthorizationNotDetermined, nil
	case "restricted":
		return AuthorizationRestricted, nil
	case "denied":
		return AuthorizationDenied, nil
	case "granted", "authorized":
		return AuthorizationGranted, nil
	}
	return AuthorizationNotDetermined, fmt.Errorf("unknown authorization %q", s)
}

// Source is the host platform's location service. Fixes arrive only while
// updates are started.
type Source interface {
	Authorization() Authorization
	RequestPermission()
	StartUpdates()
	StopUpdates()
	Fixes() <-chan models.Coordinate
	Authorizations() <-chan Authorization
	Errors() <-chan error
}

var ErrNotUpdating = errors.New("location updates are not started")

// ManualSource is a Source fed in-process, by the HTTP adapter or by tests.
type ManualSource struct {
	mu                 sync.Mutex
	auth               Authorization
	updating           bool
	permissionRequests int

	fixes chan models.Coordinate
	auths chan Authorization
	errs  chan error
}

func NewManualSource(initial Authorization) *ManualSource {
	return &ManualSource{
		auth:  initial,
		fixes: make(chan models.Coordinate, 16),
		auths: make(chan Authorization, 4),
		errs:  make(chan error, 4),
	}
}

func (s *ManualSource) Authorization() Authorization {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

// RequestPermission only counts requests; the answer comes from SetAuthorization.
func (s *ManualSource) RequestPermission() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissionRequests++
}

func (s *ManualSource) PermissionRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permissionRequests
}

func (s *ManualSource) StartUpdates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updating = true
}

func (s *ManualSource) StopUpdates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updating = false
}

func (s *ManualSource) Updating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updating
}

func (s *ManualSource) Fixes() <-chan models.Coordinate       { return s.fixes }
func (s *ManualSource) Authorizations() <-chan Authorization { return s.auths }
func (s *ManualSource) Errors() <-chan error                 { return s.errs }

// PushFix delivers a coordinate. Returns ErrNotUpdating unless updates are started.
func (s *ManualSource) PushFix(coord models.Coordinate) error {
	if !s.Updating() {
		return ErrNotUpdating
	}
	s.fixes <- coord
	return nil
}

// SetAuthorization records a permission change and notifies the provider.
func (s *ManualSource) SetAuthorization(a Authorization) {
	s.mu.Lock()
	s.auth = a
	s.mu.Unlock()
	s.auths <- a
}

// Fail reports a source error such as weathererr.ErrLocationPermissionDenied.
func (s *ManualSource) Fail(err error) {
	s.errs <- err
}

var _ Source = (*ManualSource)(nil)
