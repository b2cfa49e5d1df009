package abi

import "encoding/binary"

// Segment-header flag bits (desc_array presence flags), spec §4.1
// "commit_segment_header".
const (
	LogHasBlkBmap      = 1 << 0
	LogHasOffsetTable  = 1 << 1
	LogHasBlkDescChain = 1 << 2
	LogHasMaptblCache  = 1 << 3
	LogHasColdPayload  = 1 << 4
	LogHasFooter       = 1 << 5
	LogIsPartial       = 1 << 6
	LogPartialHeaderInsteadFooter = 1 << 7
)

// Log footer flag bits.
const (
	LogFooterHasSnapshotRules = 1 << 0
)

// Segment types (spec §3.2).
const (
	SegTypeInitialSnapshot = 1
	SegTypeSuperblock      = 2
	SegTypeSegbmap         = 3
	SegTypeMaptbl          = 4
	SegTypeUserData        = 5
)

// Migration IDs.
const (
	MigrationUnknown = 0
	MigrationStart   = 1
)

// ExtentKind indexes the 9 fixed extent descriptor slots per PEB (spec
// §3.2).
type ExtentKind int

const (
	ExtentSegHeader ExtentKind = iota
	ExtentBlockBitmap
	ExtentOffsetTable
	ExtentBlockDescriptors
	ExtentMaptblCache
	ExtentLogPayload
	ExtentLogFooter
	ExtentBlockBitmapBackup
	ExtentOffsetTableBackup
	ExtentKindCount
)

// SegmentHeaderSize is the fixed on-disk size of a segment header.
const SegmentHeaderSize = 0x800

// descArraySlots is the number of metadata descriptors carried in the
// segment header, one per extent kind except the header itself.
const descArraySlots = int(ExtentKindCount) - 1

// SegmentHeader opens every log: a copy of the volume header, a timestamp,
// checkpoint number and segment type, plus a descriptor array pointing at
// every populated region of the log.
type SegmentHeader struct {
	VH VolumeHeader

	Sig       Signature
	Rev       Revision
	Check     MetadataCheck

	Timestamp uint64
	Cno       uint64
	SegType   uint16
	SegFlags  uint16
	LogPages  uint32

	// MigrationPrevID/MigrationCurID are the {prev, cur} entries of
	// ssdfs_segment_header's peb_migration_id chain: the identification
	// number of the PEB in its migration sequence, seeded to
	// {unknown, start} by PreCommitSegmentHeader and otherwise left alone
	// until a real migration is scheduled.
	MigrationPrevID uint64
	MigrationCurID  uint64
	_               [8]byte

	DescArray [descArraySlots]MetadataDescriptor
}

const segmentHeaderFixedSize = VolumeHeaderSize + 6 + 4 + MetadataCheckSize +
	8 + 8 + 2 + 2 + 4 + 8 + 8 + 8 + descArraySlots*MetadataDescriptorSize

// Marshal writes the segment header into buf (at least SegmentHeaderSize
// bytes) and stamps its CRC32.
func (h *SegmentHeader) Marshal(buf []byte) {
	h.VH.Marshal(buf[0:VolumeHeaderSize])
	off := VolumeHeaderSize

	h.Sig.Put(buf[off:])
	off += 6
	h.Rev.Put(buf[off:])
	off += 4
	checkOff := off
	h.Check.Put(buf[off:])
	off += MetadataCheckSize

	binary.LittleEndian.PutUint64(buf[off:], h.Timestamp)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], h.Cno)
	off += 8
	binary.LittleEndian.PutUint16(buf[off:], h.SegType)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], h.SegFlags)
	off += 2
	binary.LittleEndian.PutUint32(buf[off:], h.LogPages)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], h.MigrationPrevID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], h.MigrationCurID)
	off += 8 + 8

	for i, d := range h.DescArray {
		d.Put(buf[off+i*MetadataDescriptorSize:])
	}
	off += descArraySlots * MetadataDescriptorSize

	StampChecksum(buf, off, checkOff)
}

// Desc returns a pointer to the descriptor slot for kind (everything except
// ExtentSegHeader itself, which has no descriptor pointing back at itself).
func (h *SegmentHeader) Desc(kind ExtentKind) *MetadataDescriptor {
	return &h.DescArray[int(kind)-1]
}

// LogFooterSize is the fixed on-disk size of a log footer.
const LogFooterSize = 0x800

// LogFooter closes a full log: a snapshot of the volume state, a
// timestamp/cno pair and up to two backup metadata descriptors (block
// bitmap backup, offset table backup).
type LogFooter struct {
	VS VolumeState

	Sig       Signature
	Rev       Revision
	Check     MetadataCheck

	Timestamp uint64
	Cno       uint64
	LogBytes  uint32
	Flags     uint32

	BlockBitmapBackup MetadataDescriptor
	OffsetTableBackup MetadataDescriptor
}

const logFooterFixedSize = VolumeStateSize + 6 + 4 + MetadataCheckSize + 8 + 8 + 4 + 4 + 2*MetadataDescriptorSize

func (f *LogFooter) Marshal(buf []byte) {
	f.VS.Marshal(buf[0:VolumeStateSize])
	off := VolumeStateSize

	f.Sig.Put(buf[off:])
	off += 6
	f.Rev.Put(buf[off:])
	off += 4
	checkOff := off
	f.Check.Put(buf[off:])
	off += MetadataCheckSize

	binary.LittleEndian.PutUint64(buf[off:], f.Timestamp)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], f.Cno)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], f.LogBytes)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], f.Flags)
	off += 4

	f.BlockBitmapBackup.Put(buf[off:])
	off += MetadataDescriptorSize
	f.OffsetTableBackup.Put(buf[off:])
	off += MetadataDescriptorSize

	StampChecksum(buf, off, checkOff)
}

// PartialLogHeaderSize is the fixed on-disk size of a partial-log header,
// used instead of a full footer when log_pages > pages actually used
// (segment bitmap and mapping-table logs).
const PartialLogHeaderSize = 0x400

// PartialLogHeader carries the essential seg-header and volume-state fields
// in one compact record for logs that do not fill their advertised
// log_pages.
type PartialLogHeader struct {
	Sig   Signature
	Rev   Revision
	Check MetadataCheck

	Timestamp uint64
	Cno       uint64
	SegType   uint16
	LogPages  uint32
	LogBytes  uint32

	VHSnapshot [32]byte // condensed volume-header fields, stamped verbatim
	VSSnapshot [32]byte // condensed volume-state fields, stamped verbatim
}

const partialLogHeaderFixedSize = 6 + 4 + MetadataCheckSize + 8 + 8 + 2 + 4 + 4 + 32 + 32

func (p *PartialLogHeader) Marshal(buf []byte) {
	off := 0
	p.Sig.Put(buf[off:])
	off += 6
	p.Rev.Put(buf[off:])
	off += 4
	checkOff := off
	p.Check.Put(buf[off:])
	off += MetadataCheckSize

	binary.LittleEndian.PutUint64(buf[off:], p.Timestamp)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], p.Cno)
	off += 8
	binary.LittleEndian.PutUint16(buf[off:], p.SegType)
	off += 2
	binary.LittleEndian.PutUint32(buf[off:], p.LogPages)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.LogBytes)
	off += 4

	copy(buf[off:off+32], p.VHSnapshot[:])
	off += 32
	copy(buf[off:off+32], p.VSSnapshot[:])
	off += 32

	StampChecksum(buf, off, checkOff)
}
