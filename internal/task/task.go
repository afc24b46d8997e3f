// Package task runs one cancellable background job at a time and hands its
// progress to the caller through a polled message queue. The owning side
// never blocks on the worker: it drains whatever is available on a short
// interval until the terminal result message appears.
package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrBusy is returned by Start while another task is still running.
var ErrBusy = errors.New("a task is already running")

// MessageKind discriminates queue messages.
type MessageKind string

const (
	KindProgress MessageKind = "progress"
	KindError    MessageKind = "error"
	KindResult   MessageKind = "result"
)

// Message is one item on a task's queue. Exactly one KindResult message is
// emitted per task, always last, even when the task was cancelled or failed.
type Message struct {
	Kind      MessageKind `json:"kind"`
	Text      string      `json:"text,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Payload   any         `json:"payload,omitempty"`
}

// Error carries the error kind a failed job reports to its caller.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string { return e.Kind + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Job is the work a task performs. It must check ctx.Cancelled between
// units of work and may return a partial payload when cancelled.
type Job func(ctx *Context) (any, error)

// Context is the job's side of a running task.
type Context struct{ h *Handle }

// Cancelled reports whether the caller requested cancellation. Advisory:
// in-flight I/O is never interrupted, only the next unit of work is skipped.
func (c *Context) Cancelled() bool { return c.h.cancelled.Load() }

// Progress enqueues a human-readable status line.
func (c *Context) Progress(text string) {
	c.h.enqueue(Message{Kind: KindProgress, Text: text})
}

// Errorf enqueues a per-item error without failing the task.
func (c *Context) Errorf(kind, format string, args ...any) {
	c.h.enqueue(Message{Kind: KindError, ErrorKind: kind, Text: fmt.Sprintf(format, args...)})
}

// Handle identifies a started task and owns its message queue.
type Handle struct {
	ID   string
	Name string

	mu       sync.Mutex
	queue    []Message
	finished bool

	cancelled atomic.Bool
}

func (h *Handle) enqueue(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queue = append(h.queue, m)
	if m.Kind == KindResult {
		h.finished = true
	}
}

// Poll drains and returns whatever messages are currently queued.
func (h *Handle) Poll() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.queue
	h.queue = nil
	return msgs
}

// Cancel requests cooperative cancellation. The task still emits its
// terminal result, possibly with a partial payload.
func (h *Handle) Cancel() {
	h.cancelled.Store(true)
	slog.Info("task cancellation requested", "task", h.Name, "id", h.ID)
}

// Finished reports whether the terminal result has been enqueued.
func (h *Handle) Finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

// Follow polls h at interval, passing each progress and error message to
// fn, until the terminal result is seen. It returns the result payload.
func (h *Handle) Follow(interval time.Duration, fn func(Message)) any {
	for {
		for _, m := range h.Poll() {
			if m.Kind == KindResult {
				return m.Payload
			}
			if fn != nil {
				fn(m)
			}
		}
		time.Sleep(interval)
	}
}

// Runner enforces single-flight: at most one job runs at a time.
type Runner struct {
	mu      sync.Mutex
	current *Handle
}

// NewRunner returns an idle runner.
func NewRunner() *Runner { return &Runner{} }

// Start launches job on a background goroutine. It fails with ErrBusy when
// a previous task has not yet emitted its result.
func (r *Runner) Start(name string, job Job) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && !r.current.Finished() {
		return nil, ErrBusy
	}
	h := &Handle{ID: uuid.New().String(), Name: name}
	r.current = h
	go run(h, job)
	return h, nil
}

// Current returns the most recently started task, if any.
func (r *Runner) Current() *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func run(h *Handle, job Job) {
	slog.Info("task started", "task", h.Name, "id", h.ID)
	// A panicking job must still emit its terminal result, or the runner
	// would treat it as running forever and reject every later Start.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "task", h.Name, "id", h.ID, "panic", r)
			h.enqueue(Message{Kind: KindError, ErrorKind: "Failed", Text: fmt.Sprintf("panic: %v", r)})
			h.enqueue(Message{Kind: KindResult})
		}
	}()
	payload, err := job(&Context{h: h})
	if err != nil {
		kind := "Failed"
		var te *Error
		if errors.As(err, &te) {
			kind = te.Kind
		}
		slog.Error("task failed", "task", h.Name, "id", h.ID, "kind", kind, "error", err)
		h.enqueue(Message{Kind: KindError, ErrorKind: kind, Text: err.Error()})
		h.enqueue(Message{Kind: KindResult})
		return
	}
	slog.Info("task finished", "task", h.Name, "id", h.ID, "cancelled", h.cancelled.Load())
	h.enqueue(Message{Kind: KindResult, Payload: payload})
}
