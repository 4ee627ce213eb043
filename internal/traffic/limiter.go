// Package traffic bounds request volume per tenant and per caller IP using
// fixed minute and hour windows, independent of which tool is requested.
package traffic

import (
	"fmt"
	"sync"
	"time"
)

// SubjectKind identifies what a window counter is keyed on.
type SubjectKind string

const (
	SubjectTenant SubjectKind = "tenant"
	SubjectIP     SubjectKind = "ip"
)

// Granularity is a fixed window size.
type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
)

func (g Granularity) duration() time.Duration {
	if g == GranularityHour {
		return time.Hour
	}
	return time.Minute
}

// Ceilings holds the four independent limits. A ceiling <= 0 disables that
// check.
type Ceilings struct {
	TenantPerMinute int
	TenantPerHour   int
	IPPerMinute     int
	IPPerHour       int
}

// Decision is the outcome of one CheckAndRecord.
type Decision struct {
	Allowed    bool
	Scope      string        // denying check, e.g. "tenant/minute"
	RetryAfter time.Duration // how long until the denying window rolls over
}

type windowKey struct {
	kind SubjectKind
	id   string
	gran Granularity
}

type windowCounter struct {
	count       int
	windowStart time.Time
}

// Limiter counts requests in fixed windows. Fixed-window semantics mean a
// caller can burst up to twice the nominal rate across a window boundary;
// accepted approximation, not a bug.
//
// Counters are shared across every concurrent session of a tenant or IP, so
// all checks and increments for one request happen under a single mutex
// hold — two concurrent requests can never both observe count = ceiling-1
// and both pass.
type Limiter struct {
	mu       sync.Mutex
	ceilings Ceilings
	windows  map[windowKey]*windowCounter
	now      func() time.Time
}

// NewLimiter creates a limiter with no recorded traffic.
func NewLimiter(ceilings Ceilings) *Limiter {
	return &Limiter{
		ceilings: ceilings,
		windows:  make(map[windowKey]*windowCounter),
		now:      time.Now,
	}
}

// CheckAndRecord admits the request only if all four counters (tenant and IP,
// minute and hour) are under their ceilings, then charges all four in the
// same atomic step. On denial nothing is charged and the tightest failing
// scope is reported.
func (l *Limiter) CheckAndRecord(tenantID, callerIP string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	checks := []struct {
		kind    SubjectKind
		id      string
		gran    Granularity
		ceiling int
	}{
		{SubjectTenant, tenantID, GranularityMinute, l.ceilings.TenantPerMinute},
		{SubjectTenant, tenantID, GranularityHour, l.ceilings.TenantPerHour},
		{SubjectIP, callerIP, GranularityMinute, l.ceilings.IPPerMinute},
		{SubjectIP, callerIP, GranularityHour, l.ceilings.IPPerHour},
	}

	counters := make([]*windowCounter, 0, len(checks))
	for _, c := range checks {
		if c.ceiling <= 0 || c.id == "" {
			counters = append(counters, nil)
			continue
		}
		w := l.window(windowKey{c.kind, c.id, c.gran}, now)
		if w.count >= c.ceiling {
			return Decision{
				Allowed:    false,
				Scope:      fmt.Sprintf("%s/%s", c.kind, c.gran),
				RetryAfter: w.windowStart.Add(c.gran.duration()).Sub(now),
			}
		}
		counters = append(counters, w)
	}

	// All checks passed; charge every counter.
	for _, w := range counters {
		if w != nil {
			w.count++
		}
	}
	return Decision{Allowed: true}
}

// window returns the counter for a key, creating it lazily and rolling it
// over if the current time has crossed the window boundary.
func (l *Limiter) window(k windowKey, now time.Time) *windowCounter {
	w, ok := l.windows[k]
	if !ok {
		w = &windowCounter{windowStart: now}
		l.windows[k] = w
		return w
	}
	if !now.Before(w.windowStart.Add(k.gran.duration())) {
		w.count = 0
		w.windowStart = now
	}
	return w
}

// Evict drops counters whose window has rolled over at least once with no
// subsequent activity. Memory hygiene only — a stale entry is rolled over
// correctly on next access either way.
func (l *Limiter) Evict() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for k, w := range l.windows {
		if !now.Before(w.windowStart.Add(2 * k.gran.duration())) {
			delete(l.windows, k)
			evicted++
		}
	}
	return evicted
}

// StartJanitor runs Evict on the given interval until stop is closed.
func (l *Limiter) StartJanitor(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Evict()
			case <-stop:
				return
			}
		}
	}()
}
