package events

import (
	"context"
	"sync"
)

// Recorder keeps published events in memory. Used when no broker is configured
// in development and by tests observing the dashboard.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

var _ Publisher = (*Recorder)(nil)

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

// FailWith makes subsequent publishes return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
