// Package health tracks platform health signals in memory, evaluates them
// against the thresholds stored in health_metrics and opens incidents.
//
// The Tracker holds sliding windows of raw samples fed by the HTTP
// middleware and the batcher. The Monitor reads those windows on an
// interval; samples older than an hour are pruned on each evaluation.
package health

import (
	"strings"
	"sync"
	"time"

	"github.com/nextmonth/smartsite/internal/model"
)

// Retention is how long raw samples stay in the tracker.
const Retention = time.Hour

// Defaults applied when a metric threshold leaves a field unset.
const (
	DefaultErrorCount     = 5
	DefaultErrorWindow    = 300 * time.Second
	DefaultMaxLoadTime    = 3000.0
	DefaultSampleSize     = 10
	DefaultLoadTimeWindow = 10 * time.Minute
	DefaultFailureRate    = 0.1
	DefaultFailureWindow  = 600 * time.Second

	// expectedLogins is the login volume a window is measured against.
	expectedLogins = 10
)

type event struct {
	at      time.Time
	session string
}

type loadSample struct {
	event
	ms float64
}

type uploadSample struct {
	event
	ok bool
}

// Tracker keeps recent samples per signal.
type Tracker struct {
	mu            sync.Mutex
	apiErrors     map[string][]event
	loadTimes     []loadSample
	loginFailures []event
	uploads       []uploadSample

	now func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		apiErrors: make(map[string][]event),
		now:       time.Now,
	}
}

// TrackAPIError records a server error on route. Status codes below 500
// are ignored.
func (t *Tracker) TrackAPIError(route string, status int, session string) {
	if status < 500 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.apiErrors[route] = append(t.apiErrors[route], event{t.now(), session})
}

// TrackPageLoad records a page load time in milliseconds. Only dashboard
// pages are tracked.
func (t *Tracker) TrackPageLoad(page string, ms float64, session string) {
	if !strings.Contains(page, "dashboard") {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadTimes = append(t.loadTimes, loadSample{event{t.now(), session}, ms})
}

func (t *Tracker) TrackLoginFailure(session string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loginFailures = append(t.loginFailures, event{t.now(), session})
}

func (t *Tracker) TrackMediaUpload(ok bool, session string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uploads = append(t.uploads, uploadSample{event{t.now(), session}, ok})
}

// Prune drops samples recorded before cutoff and returns how many went.
func (t *Tracker) Prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for route, evs := range t.apiErrors {
		kept := keepAfter(evs, cutoff, func(e event) time.Time { return e.at })
		n += len(evs) - len(kept)
		if len(kept) == 0 {
			delete(t.apiErrors, route)
			continue
		}
		t.apiErrors[route] = kept
	}
	before := len(t.loadTimes) + len(t.loginFailures) + len(t.uploads)
	t.loadTimes = keepAfter(t.loadTimes, cutoff, func(s loadSample) time.Time { return s.at })
	t.loginFailures = keepAfter(t.loginFailures, cutoff, func(e event) time.Time { return e.at })
	t.uploads = keepAfter(t.uploads, cutoff, func(s uploadSample) time.Time { return s.at })
	n += before - len(t.loadTimes) - len(t.loginFailures) - len(t.uploads)
	return n
}

func keepAfter[T any](items []T, cutoff time.Time, at func(T) time.Time) []T {
	out := items[:0]
	for _, it := range items {
		if at(it).After(cutoff) {
			out = append(out, it)
		}
	}
	return out
}

// Reading is one evaluation of a metric.
type Reading struct {
	Value    float64
	Limit    float64 // the threshold number Value is compared to
	Exceeded bool
	Sessions int // distinct sessions among the samples used
	Details  map[string]any
}

// Read evaluates the named metric against th. Unknown names read as zero.
func (t *Tracker) Read(name string, th model.Threshold) Reading {
	switch name {
	case model.MetricAPIErrorRate:
		return t.readAPIErrors(th)
	case model.MetricDashboardLoadTime:
		return t.readLoadTimes(th)
	case model.MetricLoginFailureRate:
		return t.readLoginFailures(th)
	case model.MetricMediaUploadFailure:
		return t.readUploads(th)
	}
	return Reading{Details: map[string]any{}}
}

func window(seconds int, def time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return def
}

func (t *Tracker) readAPIErrors(th model.Threshold) Reading {
	limit := th.ErrorCount
	if limit <= 0 {
		limit = DefaultErrorCount
	}
	win := window(th.TimeWindow, DefaultErrorWindow)

	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-win)

	routes := th.Routes
	if len(routes) == 0 {
		for r := range t.apiErrors {
			routes = append(routes, r)
		}
	}
	sessions := map[string]struct{}{}
	perRoute := make(map[string]int, len(routes))
	total := 0
	for _, r := range routes {
		n := 0
		for _, e := range t.apiErrors[r] {
			if e.at.Before(cutoff) {
				continue
			}
			n++
			addSession(sessions, e.session)
		}
		perRoute[r] = n
		total += n
	}
	return Reading{
		Value:    float64(total),
		Limit:    limit,
		Exceeded: float64(total) >= limit,
		Sessions: len(sessions),
		Details: map[string]any{
			"routeDetails": perRoute,
			"timeWindow":   int(win.Seconds()),
			"threshold":    limit,
		},
	}
}

func (t *Tracker) readLoadTimes(th model.Threshold) Reading {
	limit := th.MaxLoadTime
	if limit <= 0 {
		limit = DefaultMaxLoadTime
	}
	size := th.SampleSize
	if size <= 0 {
		size = DefaultSampleSize
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-DefaultLoadTimeWindow)

	var recent []loadSample
	for _, s := range t.loadTimes {
		if !s.at.Before(cutoff) {
			recent = append(recent, s)
		}
	}
	if len(recent) > size {
		recent = recent[len(recent)-size:]
	}
	if len(recent) == 0 {
		return Reading{Limit: limit, Details: map[string]any{"sampleSize": 0, "averageLoadTime": 0.0, "threshold": limit}}
	}

	sessions := map[string]struct{}{}
	sum := 0.0
	for _, s := range recent {
		sum += s.ms
		addSession(sessions, s.session)
	}
	avg := sum / float64(len(recent))
	return Reading{
		Value:    avg,
		Limit:    limit,
		Exceeded: avg > limit,
		Sessions: len(sessions),
		Details:  map[string]any{"sampleSize": len(recent), "averageLoadTime": avg, "threshold": limit},
	}
}

func (t *Tracker) readLoginFailures(th model.Threshold) Reading {
	limit := th.FailureRate
	if limit <= 0 {
		limit = DefaultFailureRate
	}
	win := window(th.TimeWindow, DefaultFailureWindow)

	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-win)

	sessions := map[string]struct{}{}
	n := 0
	for _, e := range t.loginFailures {
		if e.at.Before(cutoff) {
			continue
		}
		n++
		addSession(sessions, e.session)
	}
	rate := float64(n) / expectedLogins
	return Reading{
		Value:    rate,
		Limit:    limit,
		Exceeded: rate > limit,
		Sessions: len(sessions),
		Details:  map[string]any{"failureCount": n, "timeWindow": int(win.Seconds()), "threshold": limit},
	}
}

func (t *Tracker) readUploads(th model.Threshold) Reading {
	limit := th.FailureRate
	if limit <= 0 {
		limit = DefaultFailureRate
	}
	win := window(th.TimeWindow, DefaultFailureWindow)

	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-win)

	sessions := map[string]struct{}{}
	count, failed := 0, 0
	for _, u := range t.uploads {
		if u.at.Before(cutoff) {
			continue
		}
		count++
		if !u.ok {
			failed++
			addSession(sessions, u.session)
		}
	}
	details := map[string]any{"uploadCount": count, "failureCount": failed, "timeWindow": int(win.Seconds()), "threshold": limit}
	if count == 0 {
		return Reading{Limit: limit, Details: details}
	}
	rate := float64(failed) / float64(count)
	return Reading{
		Value:    rate,
		Limit:    limit,
		Exceeded: rate > limit,
		Sessions: len(sessions),
		Details:  details,
	}
}

func addSession(set map[string]struct{}, id string) {
	if id != "" {
		set[id] = struct{}{}
	}
}
