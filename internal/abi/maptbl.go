package abi

import "encoding/binary"

// PEB states (spec §4.5 "LEB -> PEB mapping" / "Bad / recovering PEBs").
const (
	PEBStateUnknown    = 0
	PEBStateUsing      = 1
	PEBStateBad        = 2
	PEBStateRecovering = 3
	PEBStatePreErase   = 4
)

// PEB types mirror a segment's metadata class.
const (
	PEBTypeUnknown        = 0
	PEBTypeInitialSnapshot = 1
	PEBTypeSuperblock      = 2
	PEBTypeSegbmap         = 3
	PEBTypeMaptbl          = 4
	PEBTypeUserData        = 5
)

// LebDescriptorSize is the fixed size of one LEB descriptor: 4 bytes per
// spec §4.5 sizing note.
const LebDescriptorSize = 4

// LebDescriptor maps one LEB to its PEB index within the owning portion.
// An index of InvalidID16 means "not yet mapped."
type LebDescriptor struct {
	PhysicalIndex uint16
	RelationIndex uint16
}

func (d LebDescriptor) Put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], d.PhysicalIndex)
	binary.LittleEndian.PutUint16(b[2:4], d.RelationIndex)
}

func (d *LebDescriptor) Get(b []byte) {
	d.PhysicalIndex = binary.LittleEndian.Uint16(b[0:2])
	d.RelationIndex = binary.LittleEndian.Uint16(b[2:4])
}

// LebTableFragmentHeaderSize is the fixed size of a LEB table's per-page
// header.
const LebTableFragmentHeaderSize = 24

// LebTableFragmentHeader opens one mempage of the LEB table.
type LebTableFragmentHeader struct {
	Sig           Signature
	FirstLeb      uint64
	LebsCount     uint32
	MappedLebs    uint32
	MigratingLebs uint32
	PortionID     uint16
	FragmentID    uint16
}

func (h LebTableFragmentHeader) Put(b []byte) {
	h.Sig.Put(b[0:6])
	binary.LittleEndian.PutUint64(b[8:16], h.FirstLeb)
	binary.LittleEndian.PutUint32(b[16:20], h.LebsCount)
	binary.LittleEndian.PutUint32(b[20:24], h.MappedLebs)
}

// PebDescriptorSize is the fixed size of one PEB descriptor: 8 bytes per
// spec §4.5 sizing note.
const PebDescriptorSize = 8

// PebDescriptor records one physical erase block's current role.
type PebDescriptor struct {
	State       uint8
	Type        uint8
	EraseCycles uint32
	_           uint16
}

func (d PebDescriptor) Put(b []byte) {
	b[0] = d.State
	b[1] = d.Type
	binary.LittleEndian.PutUint32(b[2:6], d.EraseCycles)
}

// PebTableFragmentHeaderSize is the fixed size of a PEB table stripe
// header.
const PebTableFragmentHeaderSize = 32

// PebTableFragmentFlagBadblk marks that this stripe contains at least one
// bad PEB.
const PebTableFragmentFlagBadblk = 1 << 0

// PebTableFragmentHeader opens one PEB-table stripe.
type PebTableFragmentHeader struct {
	Sig             Signature
	FirstPeb        uint64
	PebsCount       uint32
	LastSelectedPeb uint32
	ReservedPebs    uint32
	StripeID        uint16
	PortionID       uint16
	FragmentID      uint16
	Flags           uint16
	RecoverMonths   uint16
}

func (h PebTableFragmentHeader) Put(b []byte) {
	h.Sig.Put(b[0:6])
	binary.LittleEndian.PutUint64(b[8:16], h.FirstPeb)
	binary.LittleEndian.PutUint32(b[16:20], h.PebsCount)
	binary.LittleEndian.PutUint32(b[20:24], h.LastSelectedPeb)
	binary.LittleEndian.PutUint32(b[24:28], h.ReservedPebs)
	binary.LittleEndian.PutUint16(b[28:30], h.StripeID)
	binary.LittleEndian.PutUint16(b[30:32], h.Flags)
}

// MaptblSBHeaderSize is the fixed size of the maptbl summary recorded
// inside the superblock.
const MaptblSBHeaderSize = 48 + 3*2*rawExtentOnDiskSize

// MaptblSBHeader summarizes the PEB mapping table for the superblock.
type MaptblSBHeader struct {
	FragmentsCount      uint32
	FragmentBytes       uint32
	LebsCount           uint64
	PebsCount           uint64
	Flags               uint32
	LebsPerFragment     uint32
	PebsPerFragment     uint32
	PebsPerStripe       uint32
	StripesPerFragment  uint32
	Extents             [3][2]RawExtentOnDisk
}

// MaptblFlagHasCopy marks that the maptbl is replicated main+backup.
const MaptblFlagHasCopy = 1 << 0

// MaptblFlagCompressed marks that maptbl fragments are stored compressed.
const MaptblFlagCompressed = 1 << 1

func (h MaptblSBHeader) Put(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], h.FragmentsCount)
	binary.LittleEndian.PutUint32(b[4:8], h.FragmentBytes)
	binary.LittleEndian.PutUint64(b[8:16], h.LebsCount)
	binary.LittleEndian.PutUint64(b[16:24], h.PebsCount)
	binary.LittleEndian.PutUint32(b[24:28], h.Flags)
	binary.LittleEndian.PutUint32(b[28:32], h.LebsPerFragment)
	binary.LittleEndian.PutUint32(b[32:36], h.PebsPerFragment)
	binary.LittleEndian.PutUint32(b[36:40], h.PebsPerStripe)
	binary.LittleEndian.PutUint32(b[40:44], h.StripesPerFragment)
	off := 48
	for i := 0; i < 3; i++ {
		for c := 0; c < 2; c++ {
			h.Extents[i][c].Put(b[off:])
			off += rawExtentOnDiskSize
		}
	}
}
