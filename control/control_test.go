package control

import (
	"sync"
	"testing"
	"time"
)

// TestSendWakesWaiter verifies a blocked select is interrupted by Send.
func TestSendWakesWaiter(t *testing.T) {
	c := NewChannel()

	done := make(chan Signal, 1)
	go func() {
		<-c.Wake()
		done <- c.Collect()
	}()

	c.Send(Terminate)

	select {
	case got := <-done:
		if !got.Has(Terminate) {
			t.Fatalf("expected terminate in collected set, got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Send")
	}
}

// TestIdenticalSignalsCoalesce verifies two pings collapse into one
// wake-up and one observed signal.
func TestIdenticalSignalsCoalesce(t *testing.T) {
	c := NewChannel()

	c.Send(Ping)
	c.Send(Ping)

	<-c.Wake()
	if got := c.Collect(); got != Ping {
		t.Fatalf("expected exactly one pending ping, got %v", got)
	}

	// The second Send must not have queued a stale wake-up carrying
	// an empty set... a spurious wake is allowed, a spurious signal
	// is not.
	select {
	case <-c.Wake():
		if got := c.Collect(); got != 0 {
			t.Fatalf("expected empty set on coalesced wake, got %v", got)
		}
	default:
	}
}

// TestDistinctSignalsAllVisible verifies a Pause and a later Drop are
// both observed at the next check.
func TestDistinctSignalsAllVisible(t *testing.T) {
	c := NewChannel()

	c.Send(Pause)
	c.Send(Drop)

	<-c.Wake()
	got := c.Collect()
	if !got.Has(Pause) || !got.Has(Drop) {
		t.Fatalf("expected pause and drop pending, got %v", got)
	}
}

// TestCollectClearsPending verifies Collect is take-and-clear.
func TestCollectClearsPending(t *testing.T) {
	c := NewChannel()
	c.Send(Resume)

	if got := c.Collect(); got != Resume {
		t.Fatalf("expected resume, got %v", got)
	}
	if got := c.Collect(); got != 0 {
		t.Fatalf("expected empty set after collect, got %v", got)
	}
}

// TestSendNeverBlocks verifies senders are non-blocking even when the
// worker never drains the wake channel.
func TestSendNeverBlocks(t *testing.T) {
	c := NewChannel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Send(Pause)
				c.Send(Resume)
				c.Send(Ping)
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked with an undrained wake channel")
	}
}

// TestSignalString covers the log formatting helper.
func TestSignalString(t *testing.T) {
	if s := (Pause | Drop).String(); s != "pause|drop" {
		t.Fatalf("unexpected string: %q", s)
	}
	if s := Signal(0).String(); s != "none" {
		t.Fatalf("unexpected zero-set string: %q", s)
	}
}
