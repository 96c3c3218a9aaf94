package livequery

import (
	"fmt"
	"sync"

	"github.com/hyperengineering/habitstore/internal/query"
)

// DiffError reports misuse of a Controller. It indicates a programming error
// rather than a runtime condition.
type DiffError struct {
	Op     string
	Reason string
}

func (e *DiffError) Error() string {
	return "livequery: " + e.Op + ": " + e.Reason
}

// ErrNotFetched is returned by Recompute and Retarget before PerformFetch.
var ErrNotFetched = &DiffError{Op: "recompute", Reason: "PerformFetch has not been called"}

// Fetcher materializes a predicate into a snapshot.
type Fetcher func(p query.Predicate) (Snapshot, error)

// Batch is the atomic set of edits between two consecutive snapshots.
type Batch struct {
	Seq      uint64   `json:"seq"`
	Edits    []Edit   `json:"edits"`
	Snapshot Snapshot `json:"-"`
}

type state int

const (
	uninitialized state = iota
	fetched
)

// Controller holds the current result of one query intent.
type Controller struct {
	fetch Fetcher

	mu       sync.Mutex
	intent   query.Intent
	state    state
	snapshot Snapshot
	seq      uint64

	// deliverMu is taken before mu is released so batches reach
	// subscribers in the order they were computed.
	deliverMu sync.Mutex
	subsMu    sync.Mutex
	subs      map[uint64]func(Batch)
	nextSub   uint64
}

// NewController returns an uninitialized controller for intent.
func NewController(intent query.Intent, fetch Fetcher) *Controller {
	return &Controller{
		fetch:  fetch,
		intent: intent,
		subs:   make(map[uint64]func(Batch)),
	}
}

// Intent returns the intent currently tracked.
func (c *Controller) Intent() query.Intent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intent
}

// Snapshot returns the current result. It is empty before PerformFetch.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Fetched reports whether PerformFetch has succeeded.
func (c *Controller) Fetched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == fetched
}

// PerformFetch runs the query and stores the first snapshot. No batch is emitted.
// Calling it again re-establishes the snapshot without emitting edits.
func (c *Controller) PerformFetch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.fetch(query.Build(c.intent))
	if err != nil {
		return fmt.Errorf("perform fetch: %w", err)
	}
	c.snapshot = snap
	c.state = fetched
	return nil
}

// Recompute re-runs the query and emits the edits relative to the previous
// snapshot. An unchanged result emits nothing and returns an empty batch.
func (c *Controller) Recompute() (Batch, error) {
	c.mu.Lock()
	if c.state != fetched {
		c.mu.Unlock()
		return Batch{}, ErrNotFetched
	}
	return c.advance(c.intent)
}

// Retarget switches the controller to a new intent and emits the edits
// between the old and the new result.
func (c *Controller) Retarget(intent query.Intent) (Batch, error) {
	c.mu.Lock()
	if c.state != fetched {
		c.mu.Unlock()
		return Batch{}, &DiffError{Op: "retarget", Reason: ErrNotFetched.Reason}
	}
	return c.advance(intent)
}

// advance is called with mu held and releases it.
func (c *Controller) advance(intent query.Intent) (Batch, error) {
	snap, err := c.fetch(query.Build(intent))
	if err != nil {
		c.mu.Unlock()
		return Batch{}, fmt.Errorf("recompute: %w", err)
	}

	edits := Diff(c.snapshot, snap)
	c.snapshot = snap
	c.intent = intent
	if len(edits) == 0 {
		c.mu.Unlock()
		return Batch{Seq: c.seq, Snapshot: snap}, nil
	}
	c.seq++
	batch := Batch{Seq: c.seq, Edits: edits, Snapshot: snap}

	c.deliverMu.Lock()
	c.mu.Unlock()
	defer c.deliverMu.Unlock()

	for _, fn := range c.subscribers() {
		fn(batch)
	}
	return batch, nil
}

// Subscribe registers fn for every non-empty batch. Batches are delivered
// synchronously and in order; fn may read the controller but must not
// trigger a recompute of it. The returned func removes the subscription.
func (c *Controller) Subscribe(fn func(Batch)) (cancel func()) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			defer c.subsMu.Unlock()
			delete(c.subs, id)
		})
	}
}

func (c *Controller) subscribers() []func(Batch) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	out := make([]func(Batch), 0, len(c.subs))
	for id := uint64(0); id < c.nextSub; id++ {
		if fn, ok := c.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
