package logbuilder

import (
	"testing"

	"github.com/ssdfs/mkfs-go/internal/abi"
)

const testPageSize = 4096

func buildSnapshotStylePEB(t *testing.T) *PEB {
	t.Helper()
	p := NewPEB(0, 0, 0, abi.SegTypeInitialSnapshot, true)

	if err := p.SetExtentStartOffset(abi.ExtentSegHeader, testPageSize); err != nil {
		t.Fatal(err)
	}
	p.DefineSegmentHeaderLayout()

	if err := p.SetExtentStartOffset(abi.ExtentLogFooter, testPageSize); err != nil {
		t.Fatal(err)
	}

	p.PreCommitSegmentHeader(abi.VolumeHeader{}, 1, 0)
	p.PreCommitLogFooter(abi.VolumeState{})

	metaBlks := p.CalculateMetadataBlks(testPageSize)
	p.CommitSegmentHeader(metaBlks)
	p.CommitLogFooter(metaBlks, testPageSize, 1, 0)
	p.FinalizeSegmentHeader()
	return p
}

func TestSetExtentStartOffsetAppliesBootRecordGap(t *testing.T) {
	p := buildSnapshotStylePEB(t)
	if got := p.Extents[abi.ExtentSegHeader].OffsetInPEB; got != BootRecordGap {
		t.Fatalf("initial-snapshot seg-header offset = %d, want %d (boot record gap)", got, BootRecordGap)
	}
}

func TestSegmentHeaderMaptblCacheOffsetIsPageAligned(t *testing.T) {
	p := NewPEB(5, 1, 0, abi.SegTypeSuperblock, false)
	if err := p.SetExtentStartOffset(abi.ExtentSegHeader, testPageSize); err != nil {
		t.Fatal(err)
	}
	p.DefineSegmentHeaderLayout()
	if err := p.SetExtentStartOffset(abi.ExtentMaptblCache, testPageSize); err != nil {
		t.Fatal(err)
	}
	off := p.Extents[abi.ExtentMaptblCache].OffsetInPEB
	if off%testPageSize != 0 {
		t.Fatalf("ExtentMaptblCache offset %d is not page-aligned", off)
	}
}

func TestFinalizeSegmentHeaderChecksumVerifies(t *testing.T) {
	p := buildSnapshotStylePEB(t)
	buf := p.Extents[abi.ExtentSegHeader].Buf
	checkOff := abi.VolumeHeaderSize + 6 + 4
	if !abi.VerifyChecksum(buf, checkOff) {
		t.Fatal("committed segment header's CRC32 does not verify")
	}
}

func TestValidateExtentsRejectsOverlap(t *testing.T) {
	p := NewPEB(0, 0, 0, abi.SegTypeSuperblock, false)
	p.Extents[abi.ExtentSegHeader] = Extent{OffsetInPEB: 0, BytesCount: 100}
	p.Extents[abi.ExtentBlockBitmap] = Extent{OffsetInPEB: 50, BytesCount: 10}
	if err := p.ValidateExtents(testPageSize, 8*1024*1024); err == nil {
		t.Fatal("expected an invariant error for overlapping extents")
	}
}

func TestValidateExtentsRejectsOutOfBounds(t *testing.T) {
	p := NewPEB(0, 0, 0, abi.SegTypeSuperblock, false)
	const eraseSize = 8 * 1024 * 1024
	p.Extents[abi.ExtentSegHeader] = Extent{OffsetInPEB: eraseSize - 10, BytesCount: 100}
	if err := p.ValidateExtents(testPageSize, eraseSize); err == nil {
		t.Fatal("expected an out-of-space error for an extent past erase_size")
	}
}

func TestAlignLogPages(t *testing.T) {
	got, err := AlignLogPages(5, 128, 128)
	if err != nil {
		t.Fatal(err)
	}
	if 128%got != 0 {
		t.Fatalf("AlignLogPages(5, 128, 128) = %d, does not divide 128", got)
	}
	if got < 8 {
		t.Fatalf("AlignLogPages(5, 128, 128) = %d, want >= used+3 = 8", got)
	}
}

func TestAlignLogPagesRejectsNoSlack(t *testing.T) {
	if _, err := AlignLogPages(127, 128, 128); err == nil {
		t.Fatal("expected error when used+3 exceeds pages_per_peb")
	}
}
