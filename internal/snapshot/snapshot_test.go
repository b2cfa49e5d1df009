package snapshot

import (
	"testing"

	"github.com/ssdfs/mkfs-go/internal/abi"
)

const testPageSize = 4096

func TestAllocationPolicyIsOneFixedSegment(t *testing.T) {
	if got := AllocationPolicy(); got != 1 {
		t.Fatalf("AllocationPolicy() = %d, want 1", got)
	}
}

func TestPrepareUsesFixedSegID(t *testing.T) {
	l := Prepare()
	if l.PEB.SegID != SegID {
		t.Fatalf("PEB.SegID = %d, want fixed SegID %d", l.PEB.SegID, SegID)
	}
	if !l.PEB.IsInitial {
		t.Fatal("initial-snapshot PEB must be marked IsInitial")
	}
}

func TestSetPEBIDRecordsAssignedPEB(t *testing.T) {
	l := Prepare()
	l.SetPEBID(42)
	if l.PEB.ID != 42 {
		t.Fatalf("PEB.ID = %d, want 42", l.PEB.ID)
	}
}

func TestCommitProducesVerifiableSegmentHeader(t *testing.T) {
	l := Prepare()
	l.SetPEBID(0)
	if err := l.DefineLayout(testPageSize); err != nil {
		t.Fatal(err)
	}
	l.Commit(abi.VolumeHeader{}, abi.VolumeState{}, testPageSize, 123, 0)

	buf := l.PEB.Extents[abi.ExtentSegHeader].Buf
	checkOff := abi.VolumeHeaderSize + 6 + 4
	if !abi.VerifyChecksum(buf, checkOff) {
		t.Fatal("initial-snapshot segment header CRC32 does not verify")
	}
	if l.PEB.Extents[abi.ExtentLogPayload].BytesCount != 0 {
		t.Fatal("initial-snapshot PEB must carry no payload")
	}
}
