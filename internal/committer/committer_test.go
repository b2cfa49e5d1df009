package committer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ssdfs/mkfs-go/internal/abi"
	"github.com/ssdfs/mkfs-go/internal/devops"
	"github.com/ssdfs/mkfs-go/internal/driver"
	"github.com/ssdfs/mkfs-go/internal/geometry"
)

func buildTestResult(t *testing.T) *driver.Result {
	t.Helper()
	geo, err := geometry.New(4096, 1024*1024, 1024*1024, 256*1024*1024, 2, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	result, err := driver.Run(driver.Config{
		Geometry: geo,
		Label:    "test",
		Now:      func() uint64 { return 1_700_000_000 },
	})
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestValidateAcceptsDriverOutput(t *testing.T) {
	if err := Validate(buildTestResult(t)); err != nil {
		t.Fatalf("Validate rejected a well-formed driver.Result: %v", err)
	}
}

func TestCommitWritesEveryPEBToARealFile(t *testing.T) {
	result := buildTestResult(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "image.ssdfs")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(int64(result.Geometry.VolumeSize)); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	dev, err := devops.Open(path, false)
	if err != nil {
		t.Fatal(err)
	}

	if err := Commit(dev, result, Options{SkipErase: true}); err != nil {
		t.Fatal(err)
	}
	if err := dev.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if uint64(len(raw)) != result.Geometry.VolumeSize {
		t.Fatalf("image size = %d, want %d", len(raw), result.Geometry.VolumeSize)
	}

	eraseSize := int64(result.Geometry.EraseSize)
	checkOff := abi.VolumeHeaderSize + 6 + 4
	for _, p := range result.PEBs {
		e := p.Extents[abi.ExtentSegHeader]
		start := p.ID*uint64(eraseSize) + uint64(e.OffsetInPEB)
		onDisk := raw[start : start+uint64(e.BytesCount)]
		if !abi.VerifyChecksum(onDisk, checkOff) {
			t.Fatalf("PEB %d (seg %d): on-disk seg-header CRC32 does not verify", p.ID, p.SegID)
		}
	}
}

func TestCommitErasesBeforeWritingWhenNotSkipped(t *testing.T) {
	result := buildTestResult(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "image.ssdfs")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	// Pre-fill with a non-zero pattern so a successful erase is observable.
	pattern := make([]byte, result.Geometry.VolumeSize)
	for i := range pattern {
		pattern[i] = 0xAA
	}
	if _, err := f.Write(pattern); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	dev, err := devops.Open(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := Commit(dev, result, Options{}); err != nil {
		t.Fatal(err)
	}
	if err := dev.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Bytes past the last written PEB's extents, inside an erased-but-
	// unwritten PEB, must no longer carry the 0xAA fill pattern.
	lastPEB := result.PEBs[len(result.PEBs)-1]
	tailOff := lastPEB.ID*uint64(result.Geometry.EraseSize) + uint64(result.Geometry.EraseSize) - 1
	if tailOff < uint64(len(raw)) && raw[tailOff] == 0xAA {
		t.Fatal("erase pass did not clear the fill pattern at the tail of the last PEB's erase block")
	}
}
