package driver

import (
	"testing"

	"github.com/ssdfs/mkfs-go/internal/abi"
	"github.com/ssdfs/mkfs-go/internal/geometry"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	geo, err := geometry.New(4096, 1024*1024, 1024*1024, 256*1024*1024, 2, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	return Config{
		Geometry: geo,
		Label:    "test",
		Now:      func() uint64 { return 1_700_000_000 },
	}
}

func TestRunProducesOnePEBPerAllocatedSegment(t *testing.T) {
	cfg := testConfig(t)
	result, err := Run(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.PEBs) == 0 {
		t.Fatal("Run produced no PEBs")
	}
	// snapshot + superblock (8) + segbmap + maptbl fragments, at minimum.
	if len(result.PEBs) < 1+8 {
		t.Fatalf("Run produced %d PEBs, want at least the snapshot + 8 sb-chain PEBs", len(result.PEBs))
	}
}

func TestRunAssignsDistinctSegmentIDs(t *testing.T) {
	cfg := testConfig(t)
	result, err := Run(cfg)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[uint64]bool)
	for _, p := range result.PEBs {
		if seen[p.SegID] {
			t.Fatalf("segment ID %d allocated to more than one PEB", p.SegID)
		}
		seen[p.SegID] = true
	}
}

func TestRunEveryCommittedSegmentHeaderVerifies(t *testing.T) {
	cfg := testConfig(t)
	result, err := Run(cfg)
	if err != nil {
		t.Fatal(err)
	}
	checkOff := abi.VolumeHeaderSize + 6 + 4
	for i, p := range result.PEBs {
		buf := p.Extents[abi.ExtentSegHeader].Buf
		if len(buf) == 0 {
			t.Fatalf("PEB %d: seg-header extent is empty", i)
		}
		if !abi.VerifyChecksum(buf, checkOff) {
			t.Fatalf("PEB %d (seg %d): seg-header CRC32 does not verify", i, p.SegID)
		}
	}
}

func TestRunRejectsGeometryTooSmallForMetadata(t *testing.T) {
	geo, err := geometry.New(4096, geometry.MinEraseSize, geometry.MinEraseSize, geometry.MinEraseSize*4, 2, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{Geometry: geo, Now: func() uint64 { return 0 }}
	if _, err := Run(cfg); err == nil {
		t.Fatal("expected an out-of-space error when metadata cannot fit in a tiny volume")
	}
}
