package superblock

import (
	"testing"

	"github.com/ssdfs/mkfs-go/internal/abi"
	"github.com/ssdfs/mkfs-go/internal/geometry"
	"github.com/ssdfs/mkfs-go/internal/maptblcache"
)

func testGeometry(t *testing.T) *geometry.Geometry {
	t.Helper()
	g, err := geometry.New(4096, 8*1024*1024, 8*1024*1024, 1024*1024*1024, 2, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestAllocationPolicyMatchesChainSlotsTimesReplicas(t *testing.T) {
	if got := AllocationPolicy(); got != 8 {
		t.Fatalf("AllocationPolicy() = %d, want 8 (4 chain slots * 2 replicas)", got)
	}
}

func TestPrepareFillsVolumeHeaderAndState(t *testing.T) {
	geo := testGeometry(t)
	l, err := Prepare(geo, Options{Label: "root", MigrationThreshold: 10}, 0, 0, 1_700_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if l.VH.NsegsLo != geo.SegsCount {
		t.Fatalf("VH.NsegsLo = %d, want %d", l.VH.NsegsLo, geo.SegsCount)
	}
	if l.VS.Nsegs != geo.SegsCount {
		t.Fatalf("VS.Nsegs = %d, want %d", l.VS.Nsegs, geo.SegsCount)
	}
	for slot := 0; slot < chainSlots; slot++ {
		for rep := 0; rep < replicas; rep++ {
			if l.VH.SBPebs[slot][rep].PebID != abi.Unmapped {
				t.Fatalf("VH.SBPebs[%d][%d] = %+v, want unmapped before SetPEBIDs", slot, rep, l.VH.SBPebs[slot][rep])
			}
		}
	}
	for i, cur := range l.VS.CurSegs {
		if cur != abi.Unmapped {
			t.Fatalf("VS.CurSegs[%d] = %d, want unmapped", i, cur)
		}
	}
	if l.RootInode == nil {
		t.Fatal("Prepare did not populate RootInode")
	}
}

func TestSetPEBIDsPropagatesIntoVolumeHeader(t *testing.T) {
	geo := testGeometry(t)
	l, err := Prepare(geo, Options{}, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	var segIDs, pebIDs [chainSlots][replicas]uint64
	for slot := 0; slot < chainSlots; slot++ {
		for rep := 0; rep < replicas; rep++ {
			segIDs[slot][rep] = uint64(slot*replicas + rep)
			pebIDs[slot][rep] = uint64(100 + slot*replicas + rep)
		}
	}
	l.SetPEBIDs(segIDs, pebIDs)

	for slot := 0; slot < chainSlots; slot++ {
		for rep := 0; rep < replicas; rep++ {
			got := l.VH.SBPebs[slot][rep]
			if got.LebID != segIDs[slot][rep] || got.PebID != pebIDs[slot][rep] {
				t.Fatalf("VH.SBPebs[%d][%d] = %+v, want {%d %d}", slot, rep, got, segIDs[slot][rep], pebIDs[slot][rep])
			}
			p := l.PEBs[slot][rep]
			if p.SegID != segIDs[slot][rep] || p.ID != pebIDs[slot][rep] {
				t.Fatalf("PEBs[%d][%d] SegID/ID = %d/%d, want %d/%d", slot, rep, p.SegID, p.ID, segIDs[slot][rep], pebIDs[slot][rep])
			}
		}
	}
}

func TestDefineLayoutAttachesMaptblCacheOnlyToChainCur(t *testing.T) {
	geo := testGeometry(t)
	l, err := Prepare(geo, Options{}, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	cache := maptblcache.New(geo.PageSize)
	cache.Insert(0, 5)
	cache.Insert(1, 6)

	if err := l.DefineLayout(geo.PageSize, cache); err != nil {
		t.Fatal(err)
	}

	for slot := 0; slot < chainSlots; slot++ {
		for rep := 0; rep < replicas; rep++ {
			p := l.PEBs[slot][rep]
			ext := p.Extents[abi.ExtentMaptblCache]
			if slot == ChainCur {
				if ext.BytesCount == 0 {
					t.Fatalf("chain_cur replica %d: maptbl cache extent is empty", rep)
				}
			} else if ext.BytesCount != 0 {
				t.Fatalf("slot %d replica %d: expected no maptbl cache payload, got %d bytes", slot, rep, ext.BytesCount)
			}
		}
	}
}

func TestCommitStampsVerifiableSegmentHeaders(t *testing.T) {
	geo := testGeometry(t)
	l, err := Prepare(geo, Options{}, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	cache := maptblcache.New(geo.PageSize)
	if err := l.DefineLayout(geo.PageSize, cache); err != nil {
		t.Fatal(err)
	}

	l.Commit(geo.PageSize, 123, 0)

	checkOff := abi.VolumeHeaderSize + 6 + 4
	for slot := 0; slot < chainSlots; slot++ {
		for rep := 0; rep < replicas; rep++ {
			buf := l.PEBs[slot][rep].Extents[abi.ExtentSegHeader].Buf
			if !abi.VerifyChecksum(buf, checkOff) {
				t.Fatalf("slot %d replica %d: segment header CRC32 does not verify", slot, rep)
			}
		}
	}
}

func TestRootInodeBytesIsInodeSized(t *testing.T) {
	geo := testGeometry(t)
	l, err := Prepare(geo, Options{}, 1000, 1000, 0)
	if err != nil {
		t.Fatal(err)
	}
	buf := l.RootInodeBytes()
	if len(buf) != abi.InodeSize {
		t.Fatalf("RootInodeBytes() length = %d, want %d", len(buf), abi.InodeSize)
	}
}
