// Package snapshot implements the initial-snapshot subsystem (spec §4.2):
// one dedicated segment at the fixed segment ID 0, holding a single PEB
// with only a seg-header and log-footer, offset past the reserved
// boot-record gap.
package snapshot

import (
	"github.com/ssdfs/mkfs-go/internal/abi"
	"github.com/ssdfs/mkfs-go/internal/logbuilder"
)

// SegID is the fixed initial-snapshot segment ID (spec §3.2).
const SegID = 0

// Layout holds the single PEB this subsystem allocates.
type Layout struct {
	PEB *logbuilder.PEB
}

// AllocationPolicy reports how many segments this subsystem consumes: a
// fixed, single dedicated segment.
func AllocationPolicy() int { return 1 }

// Prepare allocates the subsystem's single PEB accumulator. The PEB's ID
// is unknown until segbmap/maptbl assign seg IDs in the validate phase;
// pebID is filled in later via SetPEBID.
func Prepare() *Layout {
	return &Layout{PEB: logbuilder.NewPEB(0, SegID, 0, abi.SegTypeInitialSnapshot, true)}
}

// SetPEBID records the PEB ID assigned during the shared validate phase.
func (l *Layout) SetPEBID(pebID uint64) {
	l.PEB.ID = pebID
}

// DefineLayout places the seg-header (past the boot-record gap) and
// log-footer extents; no payload, no block bitmap, no offset table, no
// block descriptors (spec §4.2).
func (l *Layout) DefineLayout(pageSize uint32) error {
	p := l.PEB
	if err := p.SetExtentStartOffset(abi.ExtentSegHeader, pageSize); err != nil {
		return err
	}
	p.DefineSegmentHeaderLayout()

	if err := p.SetExtentStartOffset(abi.ExtentLogFooter, pageSize); err != nil {
		return err
	}
	return nil
}

// Commit fills in the seg-header and footer content and stamps every
// checksum.
func (l *Layout) Commit(vh abi.VolumeHeader, vs abi.VolumeState, pageSize uint32, timestamp, cno uint64) {
	p := l.PEB
	p.PreCommitSegmentHeader(vh, timestamp, cno)
	p.PreCommitLogFooter(vs)

	metaBlks := p.CalculateMetadataBlks(pageSize)
	p.CommitSegmentHeader(metaBlks)
	p.CommitLogFooter(metaBlks, pageSize, timestamp, cno)
	p.FinalizeSegmentHeader()
}
