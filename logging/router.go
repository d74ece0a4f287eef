package logging

import (
	"context"
	"errors"
	"log"
	"maps"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNoSinks is returned when a router is built without any usable sink.
var ErrNoSinks = errors.New("logging: router requires at least one sink")

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

// Router hands road and action events to sinks from a single dispatch
// goroutine. Publish never blocks the simulation tick: an event that does
// not fit in the inbox is counted and dropped.
type Router struct {
	cfg      Config
	inbox    chan Event
	runners  []*sinkRunner
	clock    Clock
	fallback *log.Logger
	stop     chan struct{}
	closed   atomic.Bool
	wg       sync.WaitGroup

	routed     atomic.Uint64
	dropped    atomic.Uint64
	filtered   atomic.Uint64
	nextReport atomic.Int64

	mu         sync.Mutex
	byCategory map[string]uint64
}

// RouterStats is served on /diagnostics.
type RouterStats struct {
	EventsTotal   uint64            `json:"eventsTotal"`
	DroppedTotal  uint64            `json:"droppedTotal"`
	FilteredTotal uint64            `json:"filteredTotal"`
	ByCategory    map[string]uint64 `json:"byCategory,omitempty"`
}

func NewRouter(cfg Config, clock Clock, fallback *log.Logger, namedSinks []NamedSink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	if fallback == nil {
		fallback = log.New(os.Stderr, "[logging] ", log.LstdFlags)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	backlog := min(max(cfg.QueueSize, 32), 1024)

	runners := make([]*sinkRunner, 0, len(namedSinks))
	for _, named := range namedSinks {
		if named.Sink == nil {
			continue
		}
		runners = append(runners, &sinkRunner{
			name:     named.Name,
			sink:     named.Sink,
			backlog:  make(chan Event, backlog),
			fallback: fallback,
		})
	}
	if len(runners) == 0 {
		return nil, ErrNoSinks
	}

	r := &Router{
		cfg:        cfg.clone(),
		inbox:      make(chan Event, cfg.QueueSize),
		runners:    runners,
		clock:      clock,
		fallback:   fallback,
		stop:       make(chan struct{}),
		byCategory: make(map[string]uint64),
	}
	r.wg.Add(1 + len(runners))
	go r.dispatch()
	for _, runner := range runners {
		go func() {
			defer r.wg.Done()
			runner.run()
		}()
	}
	return r, nil
}

func (r *Router) dispatch() {
	defer func() {
		for _, runner := range r.runners {
			close(runner.backlog)
		}
		r.wg.Done()
	}()
	for {
		select {
		case event := <-r.inbox:
			r.route(event)
		case <-r.stop:
			for {
				select {
				case event := <-r.inbox:
					r.route(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) route(event Event) {
	if event.Severity < r.cfg.LevelFor(event.Category) {
		r.filtered.Add(1)
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = mergeFields(event, r.cfg.Fields)
	r.routed.Add(1)
	r.mu.Lock()
	r.byCategory[event.Category]++
	r.mu.Unlock()
	for _, runner := range r.runners {
		runner.offer(event)
	}
}

func (r *Router) Publish(_ context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.inbox <- event:
	default:
		r.drop(event)
	}
}

// drop counts a rejected event and reports at most once per
// DropReportInterval on the fallback logger.
func (r *Router) drop(event Event) {
	r.dropped.Add(1)
	interval := r.cfg.DropReportInterval
	if interval <= 0 {
		interval = DefaultConfig().DropReportInterval
	}
	now := time.Now().UnixNano()
	next := r.nextReport.Load()
	if now < next {
		return
	}
	if r.nextReport.CompareAndSwap(next, now+interval.Nanoseconds()) {
		r.fallback.Printf("dropped %d events, latest type=%s tick=%d", r.dropped.Load(), event.Type, event.Tick)
	}
}

// Close stops dispatch, flushes queued events to the sinks and closes them.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.stop)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var errs []error
	for _, runner := range r.runners {
		if err := runner.sink.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Router) Stats() RouterStats {
	r.mu.Lock()
	byCategory := maps.Clone(r.byCategory)
	r.mu.Unlock()
	return RouterStats{
		EventsTotal:   r.routed.Load(),
		DroppedTotal:  r.dropped.Load(),
		FilteredTotal: r.filtered.Load(),
		ByCategory:    byCategory,
	}
}

func (r *Router) Sink(name string) Sink {
	for _, runner := range r.runners {
		if runner.name == name {
			return runner.sink
		}
	}
	return nil
}

// sinkRunner owns one sink. Writes are serialized on its goroutine and a
// failing sink is backed off without stalling the others.
type sinkRunner struct {
	name     string
	sink     Sink
	backlog  chan Event
	fallback *log.Logger
	failures int
	resumeAt time.Time
}

func (s *sinkRunner) offer(event Event) {
	select {
	case s.backlog <- cloneEvent(event):
	default:
		s.fallback.Printf("sink %s backlog full, dropping type=%s", s.name, event.Type)
	}
}

func (s *sinkRunner) run() {
	for event := range s.backlog {
		if wait := time.Until(s.resumeAt); s.failures > 0 && wait > 0 {
			time.Sleep(wait)
		}
		if err := s.sink.Write(event); err != nil {
			s.failures++
			delay := time.Duration(1<<min(s.failures, 5)) * time.Second
			s.resumeAt = time.Now().Add(delay)
			s.fallback.Printf("sink %s failed: %v (retry in %s)", s.name, err, delay)
			continue
		}
		s.failures = 0
	}
}
