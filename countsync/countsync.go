// Package countsync keeps a device's in-progress counts in step with the
// backend. Numeric edits are applied optimistically and written behind a
// per-item debounce so a burst of keystrokes becomes one request; pulled
// toggles go out immediately and roll back if the write fails.
package countsync

import (
	"context"
	"sync"
	"time"
)

const DefaultDebounce = 500 * time.Millisecond

// EntryWriter is the transport the store writes through. The HTTP client
// and the test doubles both satisfy it.
type EntryWriter interface {
	WriteCount(ctx context.Context, sessionId int, itemId int, value *int) error
	WritePulled(ctx context.Context, sessionId int, itemId int, pulled bool) error
}

// EventKind classifies listener notifications.
type EventKind string

const (
	EventWriteFailed  EventKind = "write_failed"
	EventRolledBack   EventKind = "rolled_back"
	EventWriteFlushed EventKind = "write_flushed"
)

type Event struct {
	Kind   EventKind
	ItemId int
	Err    error
}

type pendingCount struct {
	timer    *time.Timer
	value    *int
	inFlight bool
	dirty    bool
}

// Store mirrors one session's editable fields. All methods are safe for
// concurrent use; a store is bound to a single session and must be
// Closed (and replaced) when the session changes.
type Store struct {
	mu        sync.Mutex
	sessionId int
	writer    EntryWriter
	debounce  time.Duration
	listener  func(Event)

	counts  map[int]*int
	pulled  map[int]bool
	pending map[int]*pendingCount
	// signalled whenever an in-flight count write settles, so Flush can
	// wait for the wire to clear before writing.
	settled *sync.Cond

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

type Option func(*Store)

func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// WithListener registers a callback for write failures and rollbacks.
// The callback runs on the store's write goroutines and must not block.
func WithListener(fn func(Event)) Option {
	return func(s *Store) { s.listener = fn }
}

func NewStore(sessionId int, writer EntryWriter, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		sessionId: sessionId,
		writer:    writer,
		debounce:  DefaultDebounce,
		counts:    map[int]*int{},
		pulled:    map[int]bool{},
		pending:   map[int]*pendingCount{},
		ctx:       ctx,
		cancel:    cancel,
	}
	s.settled = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) emit(e Event) {
	if s.listener != nil {
		s.listener(e)
	}
}

// Seed loads the server's current values without scheduling any writes.
func (s *Store) Seed(counts map[int]*int, pulled map[int]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for itemId, v := range counts {
		s.counts[itemId] = v
	}
	for itemId, p := range pulled {
		s.pulled[itemId] = p
	}
}

// Count returns the optimistic value for an item.
func (s *Store) Count(itemId int) *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[itemId]
}

func (s *Store) Pulled(itemId int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulled[itemId]
}

// SetCount records an edit optimistically and (re)arms the item's
// debounce timer. Only the latest value when the timer fires is written;
// earlier values in the burst are never sent.
func (s *Store) SetCount(itemId int, value *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.counts[itemId] = value
	p, ok := s.pending[itemId]
	if !ok {
		p = &pendingCount{}
		s.pending[itemId] = p
	}
	p.value = value

	if p.inFlight {
		// A write is on the wire; mark dirty so its completion
		// reschedules with the newer value.
		p.dirty = true
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(s.debounce, func() { s.fire(itemId) })
}

func (s *Store) fire(itemId int) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	p, ok := s.pending[itemId]
	if !ok || p.inFlight {
		s.mu.Unlock()
		return
	}
	p.inFlight = true
	p.dirty = false
	value := p.value
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		err := s.writer.WriteCount(s.ctx, s.sessionId, itemId, value)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		p.inFlight = false
		s.settled.Broadcast()
		if err != nil {
			// Keep the optimistic value; the listener decides whether
			// to retry or surface the failure.
			s.mu.Unlock()
			s.emit(Event{Kind: EventWriteFailed, ItemId: itemId, Err: err})
			return
		}
		if p.dirty {
			// Another edit landed mid-write; go again with the latest.
			p.dirty = false
			p.timer = time.AfterFunc(s.debounce, func() { s.fire(itemId) })
			s.mu.Unlock()
			return
		}
		delete(s.pending, itemId)
		s.mu.Unlock()
		s.emit(Event{Kind: EventWriteFlushed, ItemId: itemId})
	}()
}

// SetPulled flips the toggle optimistically and writes straight away.
// On failure the flag rolls back to its previous value.
func (s *Store) SetPulled(itemId int, pulled bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	previous := s.pulled[itemId]
	s.pulled[itemId] = pulled
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		err := s.writer.WritePulled(s.ctx, s.sessionId, itemId, pulled)
		if err == nil {
			return
		}
		s.mu.Lock()
		if !s.closed && s.pulled[itemId] == pulled {
			s.pulled[itemId] = previous
		}
		s.mu.Unlock()
		s.emit(Event{Kind: EventRolledBack, ItemId: itemId, Err: err})
	}()
}

// Flush writes every pending count immediately, bypassing the debounce.
// Used before a phase transition so the gate sees the latest values. Any
// write already on the wire is allowed to land first, so a stale value
// can never arrive at the server after the flushed one.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	for s.anyInFlightLocked() {
		s.settled.Wait()
	}
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	type flushItem struct {
		itemId int
		value  *int
		p      *pendingCount
	}
	var items []flushItem
	for itemId, p := range s.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		// Claim the item so a timer that already fired cannot start a
		// competing write while the flush is on the wire.
		p.inFlight = true
		p.dirty = false
		items = append(items, flushItem{itemId: itemId, value: p.value, p: p})
	}
	s.mu.Unlock()

	var firstErr error
	for _, item := range items {
		err := s.writer.WriteCount(ctx, s.sessionId, item.itemId, item.value)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return firstErr
		}
		item.p.inFlight = false
		s.settled.Broadcast()
		if err != nil {
			s.mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
			s.emit(Event{Kind: EventWriteFailed, ItemId: item.itemId, Err: err})
			continue
		}
		if item.p.dirty {
			// An edit landed mid-flush; leave it to the debounce.
			item.p.dirty = false
			item.p.timer = time.AfterFunc(s.debounce, func() { s.fire(item.itemId) })
			s.mu.Unlock()
			continue
		}
		delete(s.pending, item.itemId)
		s.mu.Unlock()
	}
	return firstErr
}

func (s *Store) anyInFlightLocked() bool {
	for _, p := range s.pending {
		if p.inFlight {
			return true
		}
	}
	return false
}

// Close cancels in-flight writes and stops every timer. Pending edits
// that never fired are dropped; call Flush first if they must land.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, p := range s.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	s.pending = map[int]*pendingCount{}
	s.settled.Broadcast()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
