// Package pending implements the pending-request table (spec §4.2): the
// map from request id to a waiter with a deadline, used both by the
// broker's router (as a best-effort analytics table for forwarded
// requests, never awaited) and by the MCP adapter (for every tool call).
package pending

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/figbridge/channelbroker/internal/protocol"
)

// ErrAlreadyRegistered is returned by Register/RegisterWithTimeout when id
// already has a live waiter.
var ErrAlreadyRegistered = errors.New("pending: request id already registered")

// Waiter is the bookkeeping entry for one outstanding request.
type Waiter struct {
	ID         string
	Command    string
	Deadline   time.Time
	LastActive time.Time
	resultCh   chan Outcome
}

// Outcome is delivered exactly once to a waiter's result channel.
type Outcome struct {
	Result json.RawMessage
	Err    *protocol.ErrorPayload
}

// Table is a single-writer-friendly, mutex-protected map of outstanding
// requests. Timer/sweep callbacks may only reject entries, never resolve
// them (spec §5), so a late reply can never race a timeout into a double
// resolution: Resolve and Reject both remove the entry under the same lock
// and a second call for the same id is a no-op.
type Table struct {
	mu      sync.Mutex
	waiters map[string]*entry

	defaultTimeout time.Duration
	progressExtend time.Duration
	stuckAge       time.Duration

	onResolved func(id string)
	onRejected func(id string, kind protocol.ErrorKind)

	stop     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	waiter   *Waiter
	deadline time.Time
	lastSeen time.Time
	done     chan Outcome
	timer    *time.Timer
}

// Options configures a Table's default timings (spec §4.2 defaults).
type Options struct {
	DefaultTimeout time.Duration // 30s
	ProgressExtend time.Duration // 60s
	StuckAge       time.Duration // 5m
	SweepInterval  time.Duration // periodic liveness sweep
	OnResolved     func(id string)
	OnRejected     func(id string, kind protocol.ErrorKind)
}

// New constructs a Table and starts its liveness sweep goroutine, modeled
// on the teacher's periodic nonce-cleanup pattern
// (ws/internal/shared's cleanupNonces/performNonceCleanup).
func New(opts Options) *Table {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	if opts.ProgressExtend <= 0 {
		opts.ProgressExtend = 60 * time.Second
	}
	if opts.StuckAge <= 0 {
		opts.StuckAge = 5 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}

	t := &Table{
		waiters:        make(map[string]*entry),
		defaultTimeout: opts.DefaultTimeout,
		progressExtend: opts.ProgressExtend,
		stuckAge:       opts.StuckAge,
		onResolved:     opts.OnResolved,
		onRejected:     opts.OnRejected,
		stop:           make(chan struct{}),
	}

	go t.sweepLoop(opts.SweepInterval)
	return t
}

// Register creates a new waiter for id with the table's default timeout.
// It fails if id is already present (spec §4.2).
func (t *Table) Register(id, command string) (*Waiter, error) {
	return t.RegisterWithTimeout(id, command, t.defaultTimeout)
}

// RegisterWithTimeout is Register with an explicit timeout.
func (t *Table) RegisterWithTimeout(id, command string, timeout time.Duration) (*Waiter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.waiters[id]; exists {
		return nil, ErrAlreadyRegistered
	}

	now := time.Now()
	done := make(chan Outcome, 1)
	w := &Waiter{ID: id, Command: command, Deadline: now.Add(timeout), LastActive: now, resultCh: done}

	e := &entry{waiter: w, deadline: w.Deadline, lastSeen: now, done: done}
	e.timer = time.AfterFunc(timeout, func() { t.expire(id) })
	t.waiters[id] = e

	return w, nil
}

// Wait blocks until the waiter resolves or rejects.
func (w *Waiter) Wait() Outcome {
	return <-w.resultCh
}

// Resolve fulfils a pending request with a result, removing it from the
// table. A resolve for an unknown (already-completed or never-registered)
// id is a no-op that returns false — this is how a late reply after a
// timeout is discarded. The table itself logs nothing.
func (t *Table) Resolve(id string, result json.RawMessage) bool {
	e, ok := t.remove(id)
	if !ok {
		return false
	}
	e.done <- Outcome{Result: result}
	if t.onResolved != nil {
		t.onResolved(id)
	}
	return true
}

// Reject fails a pending request with a structured error.
func (t *Table) Reject(id string, errPayload *protocol.ErrorPayload) bool {
	e, ok := t.remove(id)
	if !ok {
		return false
	}
	e.done <- Outcome{Err: errPayload}
	if t.onRejected != nil {
		var kind protocol.ErrorKind
		if errPayload != nil {
			kind = errPayload.Kind
		}
		t.onRejected(id, kind)
	}
	return true
}

func (t *Table) remove(id string) (*entry, bool) {
	t.mu.Lock()
	e, ok := t.waiters[id]
	if ok {
		delete(t.waiters, id)
	}
	t.mu.Unlock()

	if ok {
		e.timer.Stop()
	}
	return e, ok
}

// Extend resets id's deadline forward to progressExtend from now, never
// backward (spec §4.2, §4.7). Called when a progress_update for a known id
// arrives. A no-op for unknown ids.
func (t *Table) Extend(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.waiters[id]
	if !ok {
		return false
	}

	newDeadline := time.Now().Add(t.progressExtend)
	if newDeadline.Before(e.deadline) {
		return true // never reduce an existing deadline
	}

	remaining := time.Until(newDeadline)
	e.timer.Stop()
	e.timer = time.AfterFunc(remaining, func() { t.expire(id) })
	e.deadline = newDeadline
	e.lastSeen = time.Now()
	e.waiter.Deadline = newDeadline
	e.waiter.LastActive = e.lastSeen
	return true
}

// RejectAll rejects every outstanding waiter with the given error, used on
// connection close and on broker shutdown (spec §5).
func (t *Table) RejectAll(errPayload *protocol.ErrorPayload) {
	t.mu.Lock()
	ids := make([]string, 0, len(t.waiters))
	for id := range t.waiters {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.Reject(id, errPayload)
	}
}

// Len reports the number of outstanding waiters, for diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}

func (t *Table) expire(id string) {
	t.mu.Lock()
	e, ok := t.waiters[id]
	if ok {
		// A deadline extension may have installed a fresh timer for a
		// later time; only expire if this callback still matches the
		// live deadline.
		if time.Now().Before(e.deadline) {
			t.mu.Unlock()
			return
		}
		delete(t.waiters, id)
	}
	t.mu.Unlock()

	if !ok {
		return
	}

	e.done <- Outcome{Err: &protocol.ErrorPayload{Kind: protocol.ErrTimeout, Message: "request timed out"}}
	if t.onRejected != nil {
		t.onRejected(id, protocol.ErrTimeout)
	}
}

// sweepLoop periodically rejects entries that have gone stuck — no
// activity (registration or progress extension) within stuckAge — as a
// backstop beyond the normal per-entry timer (spec §4.2).
func (t *Table) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweepStuck()
		}
	}
}

func (t *Table) sweepStuck() {
	cutoff := time.Now().Add(-t.stuckAge)

	t.mu.Lock()
	var stuck []string
	for id, e := range t.waiters {
		if e.lastSeen.Before(cutoff) {
			stuck = append(stuck, id)
		}
	}
	t.mu.Unlock()

	for _, id := range stuck {
		t.Reject(id, &protocol.ErrorPayload{Kind: protocol.ErrTimeout, Message: "stuck request swept"})
	}
}

// Stop halts the background sweep goroutine.
func (t *Table) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}
