// Package logbuilder implements the common log builder (spec §4.1): given
// a PEB's role and a subset of its 9 extent slots, it assembles a
// self-describing log — segment header, block bitmap, offset table, block
// descriptors, optional payload, and a footer or partial-log header — with
// every extent from the maptbl-cache slot onward placed at a page-aligned
// offset and every checksummed record's CRC32 stamped.
package logbuilder

import (
	"golang.org/x/xerrors"

	"github.com/ssdfs/mkfs-go/internal/abi"
)

// BootRecordGap is the reserved boot-record area at the start of the
// initial-snapshot PEB (spec §3.2, §6.2).
const BootRecordGap = 1024

// Extent is one of the 9 fixed extent slots attached to a PEB (spec §3.2).
type Extent struct {
	Buf         []byte
	OffsetInPEB uint32
	BytesCount  uint32
}

func (e Extent) empty() bool { return e.BytesCount == 0 }

// PEB accumulates the extents of one physical erase block's log before it
// is committed to the device.
type PEB struct {
	ID          uint64
	SegID       uint64
	IndexInSeg  uint32
	SegType     uint16
	IsInitial   bool // true only for the fixed initial-snapshot PEB

	Extents [abi.ExtentKindCount]Extent

	Header SegmentHeader
	Footer LogFooter
}

// SegmentHeader and LogFooter are thin wrappers kept here (rather than in
// package abi) so logbuilder can track in-progress fill state alongside the
// plain on-disk record.
type SegmentHeader struct {
	Record abi.SegmentHeader
}

type LogFooter struct {
	Record    abi.LogFooter
	IsPartial bool
	Partial   abi.PartialLogHeader
}

// NewPEB allocates a PEB accumulator for segID/indexInSeg of segType.
func NewPEB(pebID, segID uint64, indexInSeg uint32, segType uint16, isInitial bool) *PEB {
	return &PEB{ID: pebID, SegID: segID, IndexInSeg: indexInSeg, SegType: segType, IsInitial: isInitial}
}

// SetExtentStartOffset sets offset_in_peb for kind to the first valid
// position: >= the end of the previous non-empty extent, and page-aligned
// if kind >= ExtentMaptblCache (spec §4.1). For the initial-snapshot PEB,
// the seg-header extent is additionally offset past BootRecordGap.
func (p *PEB) SetExtentStartOffset(kind abi.ExtentKind, pageSize uint32) error {
	prevEnd := uint32(0)
	for k := abi.ExtentKind(0); k < kind; k++ {
		e := p.Extents[k]
		if e.empty() {
			continue
		}
		end := e.OffsetInPEB + e.BytesCount
		if end > prevEnd {
			prevEnd = end
		}
	}

	offset := prevEnd
	if kind == abi.ExtentSegHeader && p.IsInitial {
		offset += BootRecordGap
	}
	if kind >= abi.ExtentMaptblCache {
		offset = alignUp(offset, pageSize)
	}

	e := p.Extents[kind]
	e.OffsetInPEB = offset
	p.Extents[kind] = e
	return nil
}

func alignUp(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	if v%align == 0 {
		return v
	}
	return v + (align - v%align)
}

// DefineSegmentHeaderLayout allocates the seg-header extent buffer (size =
// one segment-header record).
func (p *PEB) DefineSegmentHeaderLayout() {
	e := p.Extents[abi.ExtentSegHeader]
	e.Buf = make([]byte, abi.SegmentHeaderSize)
	e.BytesCount = abi.SegmentHeaderSize
	p.Extents[abi.ExtentSegHeader] = e
}

// PreCommitSegmentHeader copies vh into the seg-header buffer, stamps
// timestamp/checkpoint/segType, and seeds the migration IDs to
// {unknown, start} (spec §4.1).
func (p *PEB) PreCommitSegmentHeader(vh abi.VolumeHeader, timestamp, cno uint64) {
	p.Header.Record = abi.SegmentHeader{
		VH:              vh,
		Sig:             abi.Signature{Common: abi.MagicCommon, Key: abi.KeySegmentHeader},
		Rev:             abi.CurrentRevision,
		Timestamp:       timestamp,
		Cno:             cno,
		SegType:         p.SegType,
		MigrationPrevID: abi.MigrationUnknown,
		MigrationCurID:  abi.MigrationStart,
	}
}

// PreCommitBlockBitmap allocates and fills a block-bitmap extent for
// validBlks valid blocks out of the log's page capacity (spec §4.1
// "pre_commit_block_bitmap").
func (p *PEB) PreCommitBlockBitmap(validBlks int, capacityBlks int, pageSize uint32) {
	buf := abi.BuildBlockBitmap(validBlks, capacityBlks, int(pageSize))
	e := p.Extents[abi.ExtentBlockBitmap]
	e.Buf = buf
	e.BytesCount = uint32(len(buf))
	p.Extents[abi.ExtentBlockBitmap] = e
}

// PreCommitOffsetTable builds the block-to-offset-table header plus N
// physical-offset-table fragments (spec §4.1 "pre_commit_offset_table").
func (p *PEB) PreCommitOffsetTable(logicalByteOffset uint32, startLogicalBlk uint32, validBlks int, itemSize uint32, entriesPerFragment int) {
	buf := abi.BuildOffsetTable(startLogicalBlk, validBlks, logicalByteOffset, itemSize, entriesPerFragment)
	e := p.Extents[abi.ExtentOffsetTable]
	e.Buf = buf
	e.BytesCount = uint32(len(buf))
	p.Extents[abi.ExtentOffsetTable] = e
}

// PreCommitBlockDescriptors creates the chain of area block tables
// describing validBlks blocks of inodeID (spec §4.1
// "pre_commit_block_descriptors").
func (p *PEB) PreCommitBlockDescriptors(validBlks int, inodeID uint64, payloadOffset uint32, itemSize uint32, perFragment int) {
	buf := abi.BuildBlockDescriptorChain(validBlks, inodeID, payloadOffset, itemSize, perFragment)
	e := p.Extents[abi.ExtentBlockDescriptors]
	e.Buf = buf
	e.BytesCount = uint32(len(buf))
	p.Extents[abi.ExtentBlockDescriptors] = e
}

// SetPayload attaches an already-built payload buffer (used by the
// segment-bitmap and mapping-table subsystems to hand over their fragment
// buffers, and by the superblock subsystem for its maptbl-cache extent).
func (p *PEB) SetPayload(kind abi.ExtentKind, buf []byte) {
	e := p.Extents[kind]
	e.Buf = buf
	e.BytesCount = uint32(len(buf))
	p.Extents[kind] = e
}

// CalculateMetadataBlks derives the number of pages of metadata (every
// extent except the payload) this PEB's populated extents occupy.
func (p *PEB) CalculateMetadataBlks(pageSize uint32) uint32 {
	var maxEnd uint32
	for k := abi.ExtentKind(0); k < abi.ExtentKindCount; k++ {
		if k == abi.ExtentLogPayload {
			continue
		}
		e := p.Extents[k]
		if e.empty() {
			continue
		}
		end := e.OffsetInPEB + e.BytesCount
		if end > maxEnd {
			maxEnd = end
		}
	}
	return alignUp(maxEnd, pageSize) / pageSize
}

// CalculateLogPages derives the number of pages the whole log (including
// payload) occupies.
func (p *PEB) CalculateLogPages(pageSize uint32) uint32 {
	var maxEnd uint32
	for k := abi.ExtentKind(0); k < abi.ExtentKindCount; k++ {
		e := p.Extents[k]
		if e.empty() {
			continue
		}
		end := e.OffsetInPEB + e.BytesCount
		if end > maxEnd {
			maxEnd = end
		}
	}
	return alignUp(maxEnd, pageSize) / pageSize
}

// AlignLogPages applies the log-pages alignment rule (spec §4.1
// "Log-pages alignment"): advertised must divide pagesPerPEB, be >= used+3,
// and be capped at maxPages.
func AlignLogPages(used uint32, pagesPerPEB uint32, maxPages uint32) (uint32, error) {
	if used+3 > pagesPerPEB {
		return 0, xerrors.Errorf("invalid argument: log uses %d pages, cannot satisfy the +3 slack within %d pages per PEB", used, pagesPerPEB)
	}
	candidate := used + 3
	for candidate <= pagesPerPEB && pagesPerPEB%candidate != 0 {
		candidate++
	}
	if candidate > pagesPerPEB {
		candidate = pagesPerPEB
	}
	if candidate > maxPages {
		if maxPages < used+3 {
			return 0, xerrors.Errorf("invalid argument: log-max-pages ceiling %d is smaller than minimum usable %d", maxPages, used+3)
		}
		candidate = maxPages
	}
	return candidate, nil
}

// CommitSegmentHeader writes the segment type's log_pages, fills desc_array
// with metadata descriptors for every populated extent and for the log
// footer, and ORs the appropriate flag bits (spec §4.1
// "commit_segment_header"); FinalizeSegmentHeader then marshals the record
// and stamps its CRC32.
func (p *PEB) CommitSegmentHeader(logPages uint32) {
	h := &p.Header.Record
	h.LogPages = logPages

	var flags uint16
	set := func(kind abi.ExtentKind, flag uint16) {
		e := p.Extents[kind]
		if e.empty() {
			return
		}
		*h.Desc(kind) = abi.MetadataDescriptor{Offset: e.OffsetInPEB, Size: e.BytesCount}
		flags |= flag
	}

	set(abi.ExtentBlockBitmap, abi.LogHasBlkBmap)
	set(abi.ExtentOffsetTable, abi.LogHasOffsetTable)
	set(abi.ExtentBlockDescriptors, abi.LogHasBlkDescChain)
	set(abi.ExtentMaptblCache, abi.LogHasMaptblCache)
	set(abi.ExtentLogPayload, abi.LogHasColdPayload)

	// The footer (or partial-log header) is marshaled after this call, so
	// its descriptor is taken from its placed offset and its record size.
	footerSize := uint32(abi.LogFooterSize)
	if p.Footer.IsPartial {
		flags |= abi.LogIsPartial | abi.LogPartialHeaderInsteadFooter
		footerSize = abi.PartialLogHeaderSize
	} else {
		flags |= abi.LogHasFooter
	}
	*h.Desc(abi.ExtentLogFooter) = abi.MetadataDescriptor{Offset: p.Extents[abi.ExtentLogFooter].OffsetInPEB, Size: footerSize}

	h.SegFlags = flags
}

// PreCommitLogFooter seeds a volume-state snapshot into the footer (spec
// §4.1 "pre_commit_log_footer").
func (p *PEB) PreCommitLogFooter(vs abi.VolumeState) {
	p.Footer.Record = abi.LogFooter{
		VS:  vs,
		Sig: abi.Signature{Common: abi.MagicCommon, Key: abi.KeyLogFooter},
		Rev: abi.CurrentRevision,
	}
}

// MarkPartial switches this PEB to emit a partial-log header instead of a
// full footer, used by the segment-bitmap and mapping-table subsystems
// when full_log_pages > used_pages (spec §4.1).
func (p *PEB) MarkPartial() {
	p.Footer.IsPartial = true
}

// CommitLogFooter fills log_bytes, timestamps, and up to two backup
// metadata descriptors, and either marshals the full footer or a
// partial-log header into the ExtentLogFooter extent (spec §4.1
// "commit_log_footer").
func (p *PEB) CommitLogFooter(blksCount uint32, pageSize uint32, timestamp, cno uint64) {
	logBytes := blksCount * pageSize

	if p.Footer.IsPartial {
		partial := abi.PartialLogHeader{
			Sig:       abi.Signature{Common: abi.MagicCommon, Key: abi.KeyPartialLog},
			Rev:       abi.CurrentRevision,
			Timestamp: timestamp,
			Cno:       cno,
			SegType:   p.SegType,
			LogPages:  p.Header.Record.LogPages,
			LogBytes:  logBytes,
		}
		buf := make([]byte, abi.PartialLogHeaderSize)
		partial.Marshal(buf)
		e := p.Extents[abi.ExtentLogFooter]
		e.Buf = buf
		e.BytesCount = uint32(len(buf))
		p.Extents[abi.ExtentLogFooter] = e
		return
	}

	f := &p.Footer.Record
	f.Timestamp = timestamp
	f.Cno = cno
	f.LogBytes = logBytes

	if bb := p.Extents[abi.ExtentBlockBitmapBackup]; !bb.empty() {
		f.BlockBitmapBackup = abi.MetadataDescriptor{Offset: bb.OffsetInPEB, Size: bb.BytesCount}
	}
	if ot := p.Extents[abi.ExtentOffsetTableBackup]; !ot.empty() {
		f.OffsetTableBackup = abi.MetadataDescriptor{Offset: ot.OffsetInPEB, Size: ot.BytesCount}
	}

	buf := make([]byte, abi.LogFooterSize)
	f.Marshal(buf)
	e := p.Extents[abi.ExtentLogFooter]
	e.Buf = buf
	e.BytesCount = uint32(len(buf))
	p.Extents[abi.ExtentLogFooter] = e
}

// FinalizeSegmentHeader marshals the segment header record (after
// CommitSegmentHeader has set log_pages/flags/desc_array) into its extent
// buffer.
func (p *PEB) FinalizeSegmentHeader() {
	buf := make([]byte, abi.SegmentHeaderSize)
	p.Header.Record.Marshal(buf)
	e := p.Extents[abi.ExtentSegHeader]
	e.Buf = buf
	e.BytesCount = uint32(len(buf))
	p.Extents[abi.ExtentSegHeader] = e
}
