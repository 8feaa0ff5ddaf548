// Package traffic keeps sliding windows of fetch outcomes per resource and of
// adapter rate-limit denials. Health reporting reads error rates from here.
package traffic

import (
	"sort"
	"sync"
	"time"
)

// maxAge bounds how long outcomes are retained.
const maxAge = 5 * time.Minute

var defaultTracker Tracker

// RecordSuccess records a successful fetch of resource.
func RecordSuccess(resource string) {
	defaultTracker.RecordSuccess(resource)
}

// RecordError records a failed fetch of resource (upstream error, timeout, decode).
func RecordError(resource string) {
	defaultTracker.RecordError(resource)
}

// RecordDenied records a rate-limit denial (429) on the adapter.
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// RecordErrorN records N error outcomes for resource. For synthetic error injection.
func RecordErrorN(resource string, n int) {
	defaultTracker.RecordErrorN(resource, n)
}

// RequestCount returns the number of outcomes (all resources + denied) within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// ErrorRate returns (errorCount, totalCount) across all resources within the window.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// ResourceErrorRates returns per-resource (errors, total) within the window.
func ResourceErrorRates(window time.Duration) map[string]Rate {
	return defaultTracker.ResourceErrorRates(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Rate is an error count over a total count of fetches.
type Rate struct {
	Errors int `json:"errors"`
	Total  int `json:"total"`
}

// Percent returns the error percentage, 0 when there were no fetches.
func (r Rate) Percent() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Errors) * 100 / float64(r.Total)
}

type outcomes struct {
	successTimes []time.Time
	errorTimes   []time.Time
}

// Tracker maintains sliding windows of outcome timestamps. The zero value is ready to use.
type Tracker struct {
	mu          sync.Mutex
	resources   map[string]*outcomes
	deniedTimes []time.Time
}

// RecordSuccess records a successful fetch of resource in the tracker.
func (t *Tracker) RecordSuccess(resource string) {
	t.record(resource, false, 1)
}

// RecordError records a failed fetch of resource in the tracker.
func (t *Tracker) RecordError(resource string) {
	t.record(resource, true, 1)
}

// RecordErrorN records N error outcomes atomically for synthetic error injection.
func (t *Tracker) RecordErrorN(resource string, n int) {
	t.record(resource, true, n)
}

// RecordDenied records a rate-limit denial (429) in the tracker.
func (t *Tracker) RecordDenied() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.deniedTimes = append(t.deniedTimes, now)
	t.pruneLocked(now)
}

func (t *Tracker) record(resource string, failed bool, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resources == nil {
		t.resources = make(map[string]*outcomes)
	}
	o := t.resources[resource]
	if o == nil {
		o = &outcomes{}
		t.resources[resource] = o
	}
	now := time.Now()
	slice := &o.successTimes
	if failed {
		slice = &o.errorTimes
	}
	for i := 0; i < n; i++ {
		*slice = append(*slice, now)
	}
	t.pruneLocked(now)
}

// RequestCount returns the total number of outcomes (all resources + denied) within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	n := countInWindow(t.deniedTimes, cutoff)
	for _, o := range t.resources {
		n += countInWindow(o.successTimes, cutoff) + countInWindow(o.errorTimes, cutoff)
	}
	return n
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.deniedTimes, time.Now().Add(-window))
}

// ErrorRate returns (errorCount, totalCount) across resources within the window.
// Denials are excluded.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	for _, r := range t.ResourceErrorRates(window) {
		errors += r.Errors
		total += r.Total
	}
	return errors, total
}

// ResourceErrorRates returns (errors, total) per resource within the window.
func (t *Tracker) ResourceErrorRates(window time.Duration) map[string]Rate {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	out := make(map[string]Rate, len(t.resources))
	for name, o := range t.resources {
		errCount := countInWindow(o.errorTimes, cutoff)
		out[name] = Rate{Errors: errCount, Total: errCount + countInWindow(o.successTimes, cutoff)}
	}
	return out
}

// Resources returns the names of resources with recorded outcomes, sorted.
func (t *Tracker) Resources() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.resources))
	for name := range t.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears all recorded outcomes from the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resources = nil
	t.deniedTimes = nil
}

// countInWindow counts timestamps that are not before the cutoff time.
func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked removes timestamps older than maxAge. Must be called with mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	for _, o := range t.resources {
		prune(&o.successTimes)
		prune(&o.errorTimes)
	}
	prune(&t.deniedTimes)
}
