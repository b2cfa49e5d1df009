package abi

import "encoding/binary"

// Volume-header / volume-state flag bits.
const (
	VHFlagZoned            = 1 << 0
	VHFlagUnalignedZone     = 1 << 1
	VHFlagZNSBasedVolume    = 1 << 2
)

// Feature-compat bits: which root B-trees are enabled.
const (
	FeatureHasInodesTree            = 1 << 0
	FeatureHasSharedExtentsTree     = 1 << 1
	FeatureHasSharedDictionaryTree  = 1 << 2
	FeatureHasSnapshotsTree         = 1 << 3
	FeatureHasInvalidatedExtentsTree = 1 << 4
)

// Feature-compat-ro bits: enabled compressors.
const (
	FeatureCompatROZlib = 1 << 0
	FeatureCompatROLzo  = 1 << 1
)

// Volume-state 'state' values.
const (
	StateValidFS = 1
)

// Errors-behavior values.
const (
	ErrorsContinue = 0
)

// SegPEBPair is a {leb_id, peb_id} pair, used throughout sb_pebs and the
// mapping-table cache.
type SegPEBPair struct {
	LebID uint64
	PebID uint64
}

const SegPEBPairSize = 16

func (p SegPEBPair) Put(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], p.LebID)
	binary.LittleEndian.PutUint64(b[8:16], p.PebID)
}

func (p *SegPEBPair) Get(b []byte) {
	p.LebID = binary.LittleEndian.Uint64(b[0:8])
	p.PebID = binary.LittleEndian.Uint64(b[8:16])
}

// Unmapped is the sentinel LEB/PEB ID meaning "not yet selected".
const Unmapped = ^uint64(0)

// VolumeHeaderSize is the fixed on-disk size of the volume header record.
const VolumeHeaderSize = 0x400

// VolumeHeader is the first record of every segment header; it mirrors the
// whole-volume geometry so that any single log is self-describing.
type VolumeHeader struct {
	Sig      Signature
	Rev      Revision
	Check    MetadataCheck
	Magic2   uint32 // secondary magic, reserved

	LogPageSize    uint8
	LogEraseSize   uint8
	LogSegSize     uint8
	LogPebsPerSeg  uint8

	MegabytesPerPEB uint32
	PebsPerSeg      uint32
	NsegsLo         uint64

	CreateTimestamp uint64
	CreateCno       uint64

	Flags uint32

	LebsPerPebIndex      uint8
	CreateThreadsPerSeg  uint8
	_                    [2]byte

	// Four B-tree descriptors: dentries, extents, xattrs, invalidated
	// extents (inodes tree descriptor lives in VolumeState alongside the
	// inodes root node because it is the primary tree).
	Dentries            BtreeDescriptor
	Extents             BtreeDescriptor
	Xattrs              BtreeDescriptor
	InvalidatedExtents   BtreeDescriptor

	// sb_pebs[chain][replica]: chain in {cur, next, reserved, prev},
	// replica in {main, backup}.
	SBPebs [4][2]SegPEBPair

	// maptbl.extents[3][2]: reserved extents table, main/backup columns,
	// at most 3 contiguous runs each (spec §9 open question).
	MaptblExtents [3][2]RawExtentOnDisk

	Reserved [0x400 - volumeHeaderFixedSize]byte
}

// RawExtentOnDisk is the on-disk form of a coalesced segment-ID run.
type RawExtentOnDisk struct {
	StartID uint64
	Len     uint32
	Type    uint32
}

const rawExtentOnDiskSize = 16

func (e RawExtentOnDisk) Put(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], e.StartID)
	binary.LittleEndian.PutUint32(b[8:12], e.Len)
	binary.LittleEndian.PutUint32(b[12:16], e.Type)
}

func (e *RawExtentOnDisk) Get(b []byte) {
	e.StartID = binary.LittleEndian.Uint64(b[0:8])
	e.Len = binary.LittleEndian.Uint32(b[8:12])
	e.Type = binary.LittleEndian.Uint32(b[12:16])
}

// SegExtentType marks a raw extent as describing a run of segment IDs.
const SegExtentType = 1

const volumeHeaderFixedSize = 6 /*sig*/ + 4 /*rev*/ + MetadataCheckSize + 4 +
	4 /*log sizes packed as 4 bytes*/ + 4 + 4 + 8 + 8 + 8 + 4 + 4 /*lebs_per_peb_index+threads+pad*/ +
	4*BtreeDescriptorSize + 4*2*SegPEBPairSize + 3*2*rawExtentOnDiskSize

// Marshal writes the volume header to buf, which must be at least
// VolumeHeaderSize bytes, and stamps its CRC32 checksum.
func (h *VolumeHeader) Marshal(buf []byte) {
	off := 0
	h.Sig.Put(buf[off:])
	off += 6
	h.Rev.Put(buf[off:])
	off += 4
	checkOff := off
	h.Check.Put(buf[off:])
	off += MetadataCheckSize
	binary.LittleEndian.PutUint32(buf[off:], h.Magic2)
	off += 4

	buf[off] = h.LogPageSize
	buf[off+1] = h.LogEraseSize
	buf[off+2] = h.LogSegSize
	buf[off+3] = h.LogPebsPerSeg
	off += 4

	binary.LittleEndian.PutUint32(buf[off:], h.MegabytesPerPEB)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.PebsPerSeg)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], h.NsegsLo)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], h.CreateTimestamp)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], h.CreateCno)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], h.Flags)
	off += 4

	buf[off] = h.LebsPerPebIndex
	buf[off+1] = h.CreateThreadsPerSeg
	off += 4

	h.Dentries.Put(buf[off:])
	off += BtreeDescriptorSize
	h.Extents.Put(buf[off:])
	off += BtreeDescriptorSize
	h.Xattrs.Put(buf[off:])
	off += BtreeDescriptorSize
	h.InvalidatedExtents.Put(buf[off:])
	off += BtreeDescriptorSize

	for c := 0; c < 4; c++ {
		for r := 0; r < 2; r++ {
			h.SBPebs[c][r].Put(buf[off:])
			off += SegPEBPairSize
		}
	}

	for i := 0; i < 3; i++ {
		for c := 0; c < 2; c++ {
			h.MaptblExtents[i][c].Put(buf[off:])
			off += rawExtentOnDiskSize
		}
	}

	StampChecksum(buf, off, checkOff)
}

// VolumeStateSize is the fixed on-disk size of the volume state record.
const VolumeStateSize = 0x400

// VolumeState is the second canonical record of the superblock: the
// mutable, checkpointed volume state as of its create_cno/timestamp.
type VolumeState struct {
	Sig   Signature
	Rev   Revision
	Check MetadataCheck

	Nsegs     uint64
	Timestamp uint64
	Cno       uint64
	State     uint16
	Errors    uint16

	UUID  [16]byte
	Label [16]byte

	CurSegs [12]uint64 // one per segment "type" slot, 0xFF...FF = none

	MigrationThreshold uint32
	FeatureCompat      uint32
	FeatureCompatRO     uint32

	InodesTree           Btree
	SharedExtentsTree     Btree
	SharedDictionaryTree  Btree
	SnapshotsTree         Btree

	OpenZones uint32

	// RootFolder is the root inode record, stored inline here rather than
	// through the inodes tree's root node (which has no inode-carrying
	// field), matching ssdfs_volume_state's dedicated root_folder member.
	RootFolder [InodeSize]byte

	Reserved [0x400 - volumeStateFixedSize]byte
}

const volumeStateFixedSize = 6 + 4 + MetadataCheckSize + 8 + 8 + 8 + 2 + 2 +
	16 + 16 + 12*8 + 4 + 4 + 4 + 4*BtreeSize + 4 + InodeSize

func (s *VolumeState) Marshal(buf []byte) {
	off := 0
	s.Sig.Put(buf[off:])
	off += 6
	s.Rev.Put(buf[off:])
	off += 4
	checkOff := off
	s.Check.Put(buf[off:])
	off += MetadataCheckSize

	binary.LittleEndian.PutUint64(buf[off:], s.Nsegs)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], s.Timestamp)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], s.Cno)
	off += 8
	binary.LittleEndian.PutUint16(buf[off:], s.State)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], s.Errors)
	off += 2

	copy(buf[off:off+16], s.UUID[:])
	off += 16
	copy(buf[off:off+16], s.Label[:])
	off += 16

	for i := 0; i < 12; i++ {
		binary.LittleEndian.PutUint64(buf[off:], s.CurSegs[i])
		off += 8
	}

	binary.LittleEndian.PutUint32(buf[off:], s.MigrationThreshold)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], s.FeatureCompat)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], s.FeatureCompatRO)
	off += 4

	s.InodesTree.Put(buf[off:])
	off += BtreeSize
	s.SharedExtentsTree.Put(buf[off:])
	off += BtreeSize
	s.SharedDictionaryTree.Put(buf[off:])
	off += BtreeSize
	s.SnapshotsTree.Put(buf[off:])
	off += BtreeSize

	binary.LittleEndian.PutUint32(buf[off:], s.OpenZones)
	off += 4

	copy(buf[off:off+InodeSize], s.RootFolder[:])
	off += InodeSize

	StampChecksum(buf, off, checkOff)
}
