package progress

import (
	"fmt"
	"sync"
	"time"

	"EcoCart/internal/domain"
)

// Reporter is the append-only narration of one pipeline run.
// Subscribers are pushed each event as it is emitted; Events returns the same
// sequence afterwards. Both views observe identical order.
type Reporter struct {
	emitMu sync.Mutex // serializes Emit so subscribers see events in order

	mu          sync.RWMutex
	events      []domain.ProgressEvent
	subscribers []func(domain.ProgressEvent)
	closed      bool
	now         func() time.Time
}

// NewReporter builds an empty reporter.
func NewReporter() *Reporter {
	return &Reporter{now: time.Now}
}

// Subscribe registers fn for every event emitted from now on.
// fn runs synchronously on the emitting goroutine and must not call Emit.
func (r *Reporter) Subscribe(fn func(domain.ProgressEvent)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// Emit appends an event. It returns false once the reporter is closed.
func (r *Reporter) Emit(stage domain.Stage, message string) bool {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	event := domain.ProgressEvent{
		Seq:       len(r.events) + 1,
		Stage:     stage,
		Message:   message,
		Timestamp: r.now().UTC(),
	}
	r.events = append(r.events, event)
	subscribers := append([]func(domain.ProgressEvent){}, r.subscribers...)
	r.mu.Unlock()

	for _, fn := range subscribers {
		fn(event)
	}
	return true
}

// Emitf is Emit with fmt formatting.
func (r *Reporter) Emitf(stage domain.Stage, format string, args ...any) bool {
	return r.Emit(stage, fmt.Sprintf(format, args...))
}

// Close stops accepting events; already recorded events stay readable.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Events returns a copy of every event recorded so far.
func (r *Reporter) Events() []domain.ProgressEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.ProgressEvent(nil), r.events...)
}

// Last returns the most recent event, if any.
func (r *Reporter) Last() (domain.ProgressEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.events) == 0 {
		return domain.ProgressEvent{}, false
	}
	return r.events[len(r.events)-1], true
}
