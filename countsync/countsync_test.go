package countsync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/counts_backend/countsync"
)

type recordedWrite struct {
	itemId int
	value  *int
	pulled bool
	kind   string
}

// fakeWriter records every write and can be told to fail. With a gate
// set, count writes announce themselves on entered and then hold until
// the gate closes, so tests can keep a write "on the wire".
type fakeWriter struct {
	mu      sync.Mutex
	writes  []recordedWrite
	fail    error
	gate    chan struct{}
	entered chan struct{}
}

func (w *fakeWriter) WriteCount(ctx context.Context, sessionId int, itemId int, value *int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.gate != nil {
		select {
		case w.entered <- struct{}{}:
		default:
		}
		<-w.gate
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.writes = append(w.writes, recordedWrite{itemId: itemId, value: value, kind: "count"})
	return nil
}

func (w *fakeWriter) WritePulled(ctx context.Context, sessionId int, itemId int, pulled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.writes = append(w.writes, recordedWrite{itemId: itemId, pulled: pulled, kind: "pulled"})
	return nil
}

func (w *fakeWriter) countWrites() []recordedWrite {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := []recordedWrite{}
	for _, rec := range w.writes {
		if rec.kind == "count" {
			out = append(out, rec)
		}
	}
	return out
}

func (w *fakeWriter) setFail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail = err
}

func intPtr(v int) *int { return &v }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestDebounceCoalescesBurst(t *testing.T) {
	writer := &fakeWriter{}
	store := countsync.NewStore(1, writer, countsync.WithDebounce(30*time.Millisecond))
	defer store.Close()

	// Typing "1", "12", "123" quickly: only the final value goes out.
	store.SetCount(7, intPtr(1))
	store.SetCount(7, intPtr(12))
	store.SetCount(7, intPtr(123))

	waitFor(t, time.Second, func() bool { return len(writer.countWrites()) == 1 })

	writes := writer.countWrites()
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(writes))
	}
	if writes[0].value == nil || *writes[0].value != 123 {
		t.Fatalf("written value = %v, want 123", writes[0].value)
	}

	// The optimistic value was visible the whole time.
	if v := store.Count(7); v == nil || *v != 123 {
		t.Fatalf("optimistic value = %v, want 123", v)
	}
}

func TestDebounceSeparatePerItem(t *testing.T) {
	writer := &fakeWriter{}
	store := countsync.NewStore(1, writer, countsync.WithDebounce(20*time.Millisecond))
	defer store.Close()

	store.SetCount(1, intPtr(3))
	store.SetCount(2, intPtr(5))

	waitFor(t, time.Second, func() bool { return len(writer.countWrites()) == 2 })
}

func TestToggleRollsBackOnFailure(t *testing.T) {
	writer := &fakeWriter{}
	var events []countsync.Event
	var mu sync.Mutex
	store := countsync.NewStore(1, writer, countsync.WithListener(func(e countsync.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}))
	defer store.Close()

	writer.setFail(errors.New("wire down"))
	store.SetPulled(4, true)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	})

	if store.Pulled(4) {
		t.Fatal("pulled flag not rolled back after failed write")
	}
	mu.Lock()
	if events[0].Kind != countsync.EventRolledBack || events[0].ItemId != 4 {
		t.Fatalf("event = %+v, want rollback for item 4", events[0])
	}
	mu.Unlock()

	// Once the wire is back the toggle sticks.
	writer.setFail(nil)
	store.SetPulled(4, true)
	waitFor(t, time.Second, func() bool {
		writer.mu.Lock()
		defer writer.mu.Unlock()
		return len(writer.writes) == 1
	})
	if !store.Pulled(4) {
		t.Fatal("pulled flag lost after successful write")
	}
}

func TestCloseCancelsPendingWrites(t *testing.T) {
	writer := &fakeWriter{}
	store := countsync.NewStore(1, writer, countsync.WithDebounce(50*time.Millisecond))

	store.SetCount(1, intPtr(9))
	store.Close()

	// The debounce never fires after Close.
	time.Sleep(100 * time.Millisecond)
	if got := len(writer.countWrites()); got != 0 {
		t.Fatalf("writes after Close = %d, want 0", got)
	}

	// Edits after Close are ignored.
	store.SetCount(1, intPtr(10))
	time.Sleep(100 * time.Millisecond)
	if got := len(writer.countWrites()); got != 0 {
		t.Fatalf("writes after closed edit = %d, want 0", got)
	}
}

func TestFlushBypassesDebounce(t *testing.T) {
	writer := &fakeWriter{}
	store := countsync.NewStore(1, writer, countsync.WithDebounce(time.Hour))
	defer store.Close()

	store.SetCount(1, intPtr(2))
	store.SetCount(2, intPtr(3))

	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := len(writer.countWrites()); got != 2 {
		t.Fatalf("writes after Flush = %d, want 2", got)
	}
}

func TestFlushWaitsForInFlightWrite(t *testing.T) {
	writer := &fakeWriter{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	store := countsync.NewStore(1, writer, countsync.WithDebounce(10*time.Millisecond))
	defer store.Close()

	store.SetCount(5, intPtr(1))
	// The debounced write of 1 is now on the wire, held open by the gate.
	<-writer.entered

	// A newer value arrives while the stale write is still out.
	store.SetCount(5, intPtr(2))

	flushed := make(chan error, 1)
	go func() { flushed <- store.Flush(context.Background()) }()

	// Flush must not write while the stale value is on the wire;
	// otherwise the held write could land after it and win.
	time.Sleep(50 * time.Millisecond)
	if got := len(writer.countWrites()); got != 0 {
		t.Fatalf("writes while wire held = %d, want 0", got)
	}

	close(writer.gate)
	if err := <-flushed; err != nil {
		t.Fatalf("Flush: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(writer.countWrites()) == 2 })
	writes := writer.countWrites()
	if writes[0].value == nil || *writes[0].value != 1 ||
		writes[1].value == nil || *writes[1].value != 2 {
		t.Fatalf("write order = %v, %v; want the stale 1 then the flushed 2", writes[0].value, writes[1].value)
	}
}

func TestWriteFailureKeepsOptimisticValue(t *testing.T) {
	writer := &fakeWriter{}
	var events []countsync.Event
	var mu sync.Mutex
	store := countsync.NewStore(1, writer,
		countsync.WithDebounce(10*time.Millisecond),
		countsync.WithListener(func(e countsync.Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		}))
	defer store.Close()

	writer.setFail(errors.New("wire down"))
	store.SetCount(3, intPtr(8))

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	})
	mu.Lock()
	if events[0].Kind != countsync.EventWriteFailed {
		t.Fatalf("event kind = %s, want %s", events[0].Kind, countsync.EventWriteFailed)
	}
	mu.Unlock()

	// Numeric edits never roll back: the user's value stays on screen.
	if v := store.Count(3); v == nil || *v != 8 {
		t.Fatalf("optimistic value = %v, want 8", v)
	}
}
