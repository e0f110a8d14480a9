// Package latency times named operations and keeps a rolling window of recent
// durations per name.
package latency

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultWindow = 128

// Stats summarizes the rolling window of one operation.
type Stats struct {
	Name  string
	Last  time.Duration
	Mean  time.Duration
	Min   time.Duration
	Max   time.Duration
	Count int    // samples in the window
	Total uint64 // samples ever recorded
}

// Observer receives every recorded sample, e.g. to feed a histogram.
type Observer func(name string, d time.Duration)

type Option func(*Tracker)

func WithObserver(o Observer) Option { return func(t *Tracker) { t.observe = o } }

// WithClock replaces time.Now; tests use it to produce exact durations.
func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

// Tracker is safe for concurrent use. Stats readers load a published summary
// and never wait on Record.
type Tracker struct {
	window  int
	observe Observer
	now     func() time.Time

	mu     sync.RWMutex
	series map[string]*series
}

type series struct {
	mu    sync.Mutex
	ring  []time.Duration
	next  int
	n     int
	total uint64
	stats atomic.Pointer[Stats]
}

func New(window int, opts ...Option) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	t := &Tracker{window: window, now: time.Now, series: make(map[string]*series)}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Span is a running measurement. End records it; call it on every exit path,
// typically with defer.
type Span struct {
	t     *Tracker
	name  string
	start time.Time
}

// Measure starts timing name.
func (t *Tracker) Measure(name string) Span {
	return Span{t: t, name: name, start: t.now()}
}

// End records the elapsed time and returns it.
func (s Span) End() time.Duration {
	d := s.t.now().Sub(s.start)
	s.t.Record(s.name, d)
	return d
}

// Record adds one sample under name.
func (t *Tracker) Record(name string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	s := t.get(name)
	s.mu.Lock()
	s.ring[s.next] = d
	s.next = (s.next + 1) % len(s.ring)
	if s.n < len(s.ring) {
		s.n++
	}
	s.total++
	st := summarize(name, s.ring[:s.n], d, s.total)
	s.stats.Store(&st)
	s.mu.Unlock()

	if t.observe != nil {
		t.observe(name, d)
	}
}

// Stats returns the latest summary for name; false if nothing was recorded.
func (t *Tracker) Stats(name string) (Stats, bool) {
	t.mu.RLock()
	s, ok := t.series[name]
	t.mu.RUnlock()
	if !ok {
		return Stats{}, false
	}
	st := s.stats.Load()
	if st == nil {
		return Stats{}, false
	}
	return *st, true
}

// All returns the summaries of every tracked name, sorted by name.
func (t *Tracker) All() []Stats {
	t.mu.RLock()
	out := make([]Stats, 0, len(t.series))
	for _, s := range t.series {
		if st := s.stats.Load(); st != nil {
			out = append(out, *st)
		}
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *Tracker) get(name string) *series {
	t.mu.RLock()
	s, ok := t.series[name]
	t.mu.RUnlock()
	if ok {
		return s
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.series[name]; ok {
		return s
	}
	s = &series{ring: make([]time.Duration, t.window)}
	t.series[name] = s
	return s
}

func summarize(name string, window []time.Duration, last time.Duration, total uint64) Stats {
	st := Stats{Name: name, Last: last, Min: window[0], Max: window[0], Count: len(window), Total: total}
	var sum time.Duration
	for _, d := range window {
		sum += d
		if d < st.Min {
			st.Min = d
		}
		if d > st.Max {
			st.Max = d
		}
	}
	st.Mean = sum / time.Duration(len(window))
	return st
}
