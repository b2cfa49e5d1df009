package abi

import "encoding/binary"

// Segment states, 2 bits each (spec §4.4 "Item encoding"). using/used carry
// sub-type bits within the 2-bit field; bad/reserved are modeled as
// distinct states in the 3rd/4th code points the spec calls out
// (1000/1001), stored the same way as the others for this builder's
// purposes (only clean vs reserved is ever produced by mkfs).
const (
	SegStateClean    = 0x0
	SegStateUsing    = 0x1
	SegStateUsed     = 0x7
	SegStatePreDirty = 0x6
	SegStateDirty    = 0x4
	SegStateBad      = 0x8
	SegStateReserved = 0x9
)

// cleanByteTable is the 256-entry byte lookup table used to test "this byte
// contains at least one clean (2-bit == 00) segment item" in O(1), per
// Design Note §9 "Bitmap-as-byte-lookup table". This is a local scan
// optimization, not an ABI contract.
var cleanByteTable [256]bool

func init() {
	for b := 0; b < 256; b++ {
		for shift := uint(0); shift < 8; shift += 2 {
			if (b>>shift)&0x3 == SegStateClean {
				cleanByteTable[b] = true
				break
			}
		}
	}
}

// ByteHasCleanItem reports whether byte b encodes at least one clean
// (2-bit 00) segment item.
func ByteHasCleanItem(b byte) bool {
	return cleanByteTable[b]
}

// SegbmapFragmentHeaderSize is the fixed size of a segment-bitmap fragment
// header.
const SegbmapFragmentHeaderSize = 52

// SegbmapFragmentHeader opens one page-sized segment-bitmap fragment.
type SegbmapFragmentHeader struct {
	Sig           Signature
	FragmentIndex uint16
	PEBIndexInSeg uint16
	Flags         uint16
	Type          uint16
	FirstItemID   uint64
	SequenceID    uint16
	FragmentBytes uint32
	Check         MetadataCheck
	CountClean    uint32
	CountUsing    uint32
	CountUsed     uint32
	CountBad      uint32
}

func (h *SegbmapFragmentHeader) Marshal(buf []byte) {
	off := 0
	h.Sig.Put(buf[off:])
	off += 6
	binary.LittleEndian.PutUint16(buf[off:], h.FragmentIndex)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], h.PEBIndexInSeg)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], h.Flags)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], h.Type)
	off += 2
	binary.LittleEndian.PutUint64(buf[off:], h.FirstItemID)
	off += 8
	binary.LittleEndian.PutUint16(buf[off:], h.SequenceID)
	off += 2
	binary.LittleEndian.PutUint32(buf[off:], h.FragmentBytes)
	off += 4
	checkOff := off
	h.Check.Put(buf[off:])
	off += MetadataCheckSize
	binary.LittleEndian.PutUint32(buf[off:], h.CountClean)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.CountUsing)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.CountUsed)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.CountBad)
	off += 4

	StampChecksum(buf, off, checkOff)
}

// SegbmapSBHeaderSize is the fixed size of the segment-bitmap summary
// recorded inside the volume state / superblock.
const SegbmapSBHeaderSize = 16 + 3*2*rawExtentOnDiskSize

// SegbmapSBHeader summarizes the segment bitmap for the superblock: how
// many fragments, how many bytes, and the coalesced segment-ID runs that
// hold the segbmap's own PEBs (main/backup columns, ≤3 runs each — same
// 3-entry shape as the maptbl extents table).
type SegbmapSBHeader struct {
	FragmentsCount uint16
	Flags          uint16
	BmapBytes      uint32
	HasCopy        uint8
	_              [7]byte
	Extents        [3][2]RawExtentOnDisk
}

func (h SegbmapSBHeader) Put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], h.FragmentsCount)
	binary.LittleEndian.PutUint16(b[2:4], h.Flags)
	binary.LittleEndian.PutUint32(b[4:8], h.BmapBytes)
	b[8] = h.HasCopy
	off := 16
	for i := 0; i < 3; i++ {
		for c := 0; c < 2; c++ {
			h.Extents[i][c].Put(b[off:])
			off += rawExtentOnDiskSize
		}
	}
}
