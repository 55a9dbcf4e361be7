package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/eslzzyl/pixiv-bookmark-cache/internal/domain"
)

func TestOwnerLocks_TryAcquire(t *testing.T) {
	locks := NewOwnerLocks()

	if !locks.TryAcquire("a") {
		t.Fatal("first TryAcquire() = false, want true")
	}
	if locks.TryAcquire("a") {
		t.Error("second TryAcquire() = true, want false while held")
	}

	// Other owners are independent
	if !locks.TryAcquire("b") {
		t.Error("TryAcquire(b) = false, want true")
	}

	locks.Release("a")
	if !locks.TryAcquire("a") {
		t.Error("TryAcquire() after Release() = false, want true")
	}
}

func TestOwnerLocks_AcquireBlocksUntilReleased(t *testing.T) {
	locks := NewOwnerLocks()
	locks.TryAcquire("a")

	acquired := make(chan error, 1)
	go func() {
		acquired <- locks.Acquire(context.Background(), "a")
	}()

	select {
	case err := <-acquired:
		t.Fatalf("Acquire() returned %v while the lock was held", err)
	case <-time.After(50 * time.Millisecond):
	}

	locks.Release("a")

	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire() did not return after Release()")
	}

	if locks.TryAcquire("a") {
		t.Error("TryAcquire() = true while Acquire() holds the lock")
	}
}

func TestOwnerLocks_AcquireCancelled(t *testing.T) {
	locks := NewOwnerLocks()
	locks.TryAcquire("a")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := locks.Acquire(ctx, "a"); err != context.DeadlineExceeded {
		t.Errorf("Acquire() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestStateHub_DefaultsToIdle(t *testing.T) {
	hub := newStateHub()
	if st := hub.get("nobody"); st.Phase != domain.PhaseIdle {
		t.Errorf("get() phase = %v, want idle", st.Phase)
	}
}

func TestStateHub_SubscribeReceivesUpdates(t *testing.T) {
	hub := newStateHub()
	ch, cancel := hub.subscribe("a")
	defer cancel()

	hub.set("a", domain.SyncFetching(5))
	hub.set("a", domain.SyncCompleted())

	st := <-ch
	if st.Phase != domain.PhaseFetching || st.Fetched != 5 {
		t.Errorf("first update = %+v, want fetching with 5", st)
	}
	st = <-ch
	if st.Phase != domain.PhaseCompleted {
		t.Errorf("second update phase = %v, want completed", st.Phase)
	}

	// Updates for other owners are not delivered
	hub.set("b", domain.SyncDetecting())
	select {
	case st := <-ch:
		t.Errorf("received %+v for another owner", st)
	default:
	}
}

func TestStateHub_SlowSubscriberDropsOldest(t *testing.T) {
	hub := newStateHub()
	ch, cancel := hub.subscribe("a")
	defer cancel()

	// Overflow the buffer; set must never block
	for i := 0; i < subBuffer+10; i++ {
		hub.set("a", domain.SyncFetching(i))
	}
	hub.set("a", domain.SyncCompleted())

	// The terminal state is always retained
	var last domain.SyncState
	for {
		var ok bool
		select {
		case last, ok = <-ch:
			if !ok {
				t.Fatal("subscription channel closed")
			}
		default:
			if last.Phase != domain.PhaseCompleted {
				t.Errorf("last buffered phase = %v, want completed", last.Phase)
			}
			return
		}
	}
}
