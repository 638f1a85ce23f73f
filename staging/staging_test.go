package staging

import (
	"bytes"
	"testing"
)

// TestReserveCommitConsume verifies the basic cursor discipline.
func TestReserveCommitConsume(t *testing.T) {
	b := New(8)

	w := b.Reserve(4)
	copy(w, []byte{1, 2, 3, 4})
	b.Commit(4)

	if b.Len() != 4 {
		t.Fatalf("expected 4 pending bytes, got %d", b.Len())
	}
	if !bytes.Equal(b.Bytes(), []byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected pending data: %v", b.Bytes())
	}

	b.Consume(2)
	if !bytes.Equal(b.Bytes(), []byte{3, 4}) {
		t.Fatalf("expected tail after consume, got %v", b.Bytes())
	}

	b.Consume(2)
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, got %d pending", b.Len())
	}
}

// TestReservePreservesPending verifies that growth does not invalidate
// data written but not yet consumed.
func TestReservePreservesPending(t *testing.T) {
	b := New(4)

	copy(b.Reserve(4), []byte{9, 8, 7, 6})
	b.Commit(4)

	// Forces a grow while 4 bytes are pending.
	w := b.Reserve(64)
	if len(w) < 64 {
		t.Fatalf("reserve returned %d writable bytes, want >= 64", len(w))
	}
	if !bytes.Equal(b.Bytes(), []byte{9, 8, 7, 6}) {
		t.Fatalf("pending data lost across growth: %v", b.Bytes())
	}
}

// TestGrowthIsGeometric verifies capacity at least doubles and never
// shrinks.
func TestGrowthIsGeometric(t *testing.T) {
	b := New(16)

	b.Reserve(17)
	if b.Cap() < 32 {
		t.Fatalf("expected capacity >= 32 after growth, got %d", b.Cap())
	}

	before := b.Cap()
	b.Commit(17)
	b.Consume(17)
	if b.Cap() != before {
		t.Fatalf("capacity changed during steady state: %d -> %d", before, b.Cap())
	}
}

// TestPartialConsumeCompacts verifies the unread tail stays contiguous
// and addressable from offset zero after a partial consume.
func TestPartialConsumeCompacts(t *testing.T) {
	b := New(8)
	copy(b.Reserve(6), []byte{1, 2, 3, 4, 5, 6})
	b.Commit(6)

	b.Consume(4)
	copy(b.Reserve(2), []byte{7, 8})
	b.Commit(2)

	if !bytes.Equal(b.Bytes(), []byte{5, 6, 7, 8}) {
		t.Fatalf("unexpected pending data after compaction: %v", b.Bytes())
	}
}

// TestReset discards pending data but keeps capacity.
func TestReset(t *testing.T) {
	b := New(4)
	copy(b.Reserve(4), []byte{1, 2, 3, 4})
	b.Commit(4)

	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("expected no pending data after reset, got %d", b.Len())
	}
	if b.Cap() != 4 {
		t.Fatalf("reset released capacity: got %d", b.Cap())
	}
}

// TestConsumeBeyondPendingPanics pins the misuse contract.
func TestConsumeBeyondPendingPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on consume beyond pending data")
		}
	}()
	New(4).Consume(1)
}
