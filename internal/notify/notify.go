// Package notify collects transient user-facing messages until the next
// response carries them to the browser.
package notify

import "sync"

// Kind distinguishes success toasts from error toasts.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Toast is one transient message.
type Toast struct {
	Kind    Kind
	Message string
}

// Notifier receives toasts from the dashboard.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Queue is a Notifier that buffers toasts until drained.
type Queue struct {
	mu     sync.Mutex
	toasts []Toast
}

var _ Notifier = (*Queue)(nil)

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Success(msg string) {
	q.push(Toast{Kind: KindSuccess, Message: msg})
}

func (q *Queue) Error(msg string) {
	q.push(Toast{Kind: KindError, Message: msg})
}

func (q *Queue) push(t Toast) {
	q.mu.Lock()
	q.toasts = append(q.toasts, t)
	q.mu.Unlock()
}

// Drain returns every pending toast in arrival order and empties the queue.
func (q *Queue) Drain() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.toasts
	q.toasts = nil
	return out
}

// Len reports how many toasts are pending.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.toasts)
}
