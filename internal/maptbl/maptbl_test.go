package maptbl

import (
	"testing"

	"github.com/ssdfs/mkfs-go/internal/abi"
)

func newTestSizing(t *testing.T) *Sizing {
	t.Helper()
	s, err := NewSizing(4096, 8*1024*1024, 1024, 128, 0, false, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewSizingRejectsOverLimit(t *testing.T) {
	// segsCount tiny enough that even one maptbl PEB exceeds 10%.
	if _, err := NewSizing(4096, 8*1024*1024, 1<<30, 2, 0, false, 0, 0); err == nil {
		t.Fatal("expected invalid-argument error when maptbl would exceed 10% of segments")
	}
}

func TestMapLEBAssignsDistinctPEBsWithinPortion(t *testing.T) {
	s := newTestSizing(t)
	table := BuildPortions(s, 1024)

	seen := make(map[uint64]bool)
	for leb := uint64(0); leb < 16; leb++ {
		pebID, err := table.MapLEB(leb, abi.PEBTypeUserData, 0)
		if err != nil {
			t.Fatalf("MapLEB(%d): %v", leb, err)
		}
		if seen[pebID] {
			t.Fatalf("MapLEB(%d) returned PEB %d already assigned to another LEB", leb, pebID)
		}
		seen[pebID] = true
	}
}

func TestMapLEBUnknownLebErrors(t *testing.T) {
	s := newTestSizing(t)
	table := BuildPortions(s, 4)
	if _, err := table.MapLEB(10_000_000, abi.PEBTypeUserData, 0); err == nil {
		t.Fatal("expected invalid-argument error for an out-of-range LEB")
	}
}

func TestMarkPreEraseSetsState(t *testing.T) {
	s := newTestSizing(t)
	table := BuildPortions(s, 1024)

	if err := table.MarkPreErase(0, 5); err != nil {
		t.Fatal(err)
	}
	p := table.portions[0]
	for leb := uint64(0); leb <= 5; leb++ {
		st, i := p.stripeForLocalIndex(int(leb))
		if st.Descs[i].State != abi.PEBStatePreErase {
			t.Fatalf("LEB %d: state = %d, want PRE_ERASE", leb, st.Descs[i].State)
		}
	}
}

func TestBuildFragmentsStampsVerifiableCRC(t *testing.T) {
	s := newTestSizing(t)
	table := BuildPortions(s, 1024)
	table.MapLEB(0, abi.PEBTypeSuperblock, 0)

	frags := table.BuildFragments()
	if len(frags) == 0 {
		t.Fatal("BuildFragments returned no fragments")
	}
	// Every LEB table and PEB table page of every populated portion carries
	// its own CRC32 in its last 4 bytes.
	pageSize := int(s.PageSize)
	pagesPerPortion := s.PortionSize / pageSize
	for i, f := range frags {
		portions := len(table.portions) - i*s.PortionsPerFragment
		if portions > s.PortionsPerFragment {
			portions = s.PortionsPerFragment
		}
		for pg := 0; pg < portions*pagesPerPortion; pg++ {
			page := f[pg*pageSize : (pg+1)*pageSize]
			if crc32Of(page) != checksumTail(page) {
				t.Fatalf("fragment %d page %d: stamped CRC32 does not match recomputed checksum", i, pg)
			}
		}
	}
}

func checksumTail(buf []byte) uint32 {
	return uint32(buf[len(buf)-4]) | uint32(buf[len(buf)-3])<<8 | uint32(buf[len(buf)-2])<<16 | uint32(buf[len(buf)-1])<<24
}

func TestExtentsTableCoalescesContiguousRuns(t *testing.T) {
	extents, err := ExtentsTable([]uint64{5, 6, 7, 10}, []uint64{5, 6, 7, 10})
	if err != nil {
		t.Fatal(err)
	}
	if extents[0][0].StartID != 5 {
		t.Fatalf("first run start = %d, want 5", extents[0][0].StartID)
	}
}

func TestExtentsTableRejectsTooManyRuns(t *testing.T) {
	// 4 disjoint single-ID runs exceed the 3-entry cap.
	if _, err := ExtentsTable([]uint64{1, 3, 5, 7}, []uint64{1, 3, 5, 7}); err == nil {
		t.Fatal("expected invalid-argument error for more than 3 coalesced runs")
	}
}
