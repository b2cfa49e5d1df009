package segbmap

import (
	"testing"

	"github.com/ssdfs/mkfs-go/internal/abi"
)

func TestNewSizing(t *testing.T) {
	b, err := New(128, 4096, 2048)
	if err != nil {
		t.Fatal(err)
	}
	if b.FragmentsCount() < 1 {
		t.Fatalf("FragmentsCount() = %d, want >= 1", b.FragmentsCount())
	}
}

func TestAllocateSkipsReservedAndReturnsFirstClean(t *testing.T) {
	b, err := New(64, 4096, 2048)
	if err != nil {
		t.Fatal(err)
	}
	b.MarkReserved([]uint64{0})

	id, err := b.Allocate(0, 64, abi.SegStateReserved)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("Allocate() = %d, want 1 (segment 0 already reserved)", id)
	}
	if b.State(1) != abi.SegStateReserved&0x3 {
		t.Fatalf("State(1) = %d, want reserved", b.State(1))
	}
}

func TestAllocateSequentialIDsAreDistinct(t *testing.T) {
	b, err := New(16, 4096, 2048)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[uint64]bool)
	next := uint64(0)
	for i := 0; i < 10; i++ {
		id, err := b.Allocate(next, 16, abi.SegStateReserved)
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("Allocate returned duplicate id %d", id)
		}
		seen[id] = true
		next = id + 1
	}
}

func TestAllocateOutOfSpace(t *testing.T) {
	b, err := New(4, 4096, 2048)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(0); i < 4; i++ {
		if _, err := b.Allocate(0, 4, abi.SegStateReserved); err != nil {
			t.Fatalf("unexpected out-of-space allocating item %d of 4: %v", i, err)
		}
	}
	if _, err := b.Allocate(0, 4, abi.SegStateReserved); err == nil {
		t.Fatal("expected out-of-space error once all 4 segments are reserved")
	}
}

func TestBuildFragmentsCoversEverySegment(t *testing.T) {
	b, err := New(200, 4096, 2048)
	if err != nil {
		t.Fatal(err)
	}
	b.MarkReserved([]uint64{0, 1, 2, 3, 4})

	frags := b.BuildFragments()
	if len(frags) != b.FragmentsCount() {
		t.Fatalf("BuildFragments returned %d fragments, want %d", len(frags), b.FragmentsCount())
	}
	for i, f := range frags {
		if len(f) <= abi.SegbmapFragmentHeaderSize {
			t.Fatalf("fragment %d has no body bytes beyond its header", i)
		}
	}
}
