package abi

import "encoding/binary"

// InvalidID16 is the U16_MAX sentinel meaning "invalid" / "no next
// fragment", per spec §4.1 "pre_commit_offset_table".
const InvalidID16 = 0xFFFF

// Blk2OffTableHeaderSize is the fixed size of a block-to-offset-table
// header.
const Blk2OffTableHeaderSize = 16

// Blk2OffTableHeader opens the offset-translation table: the first logical
// block translated (start_logical_blk) and a checksum covering the header
// plus every fragment that follows. The block count is not stored here;
// each fragment header carries its own entry count.
type Blk2OffTableHeader struct {
	Sig             Signature
	Check           MetadataCheck
	StartLogicalBlk uint32
}

const blk2OffHeaderFixedSize = 6 + MetadataCheckSize + 4

// PhysOffsetDescSize is the fixed size of one physical-offset descriptor.
const PhysOffsetDescSize = 12

// PhysOffsetDesc points one logical block at its physical placement inside
// the log's block-descriptor area.
type PhysOffsetDesc struct {
	LogicalBlk   uint16
	PEBIndex     uint16
	LogStartPage uint16
	LogArea      uint8
	PeBPage      uint32
}

func (d PhysOffsetDesc) Put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], d.LogicalBlk)
	binary.LittleEndian.PutUint16(b[2:4], d.PEBIndex)
	binary.LittleEndian.PutUint16(b[4:6], d.LogStartPage)
	b[6] = d.LogArea
	binary.LittleEndian.PutUint32(b[7:11], d.PeBPage)
}

// offsetFragmentHeaderSize is the size of the header that opens each
// physical-offset-table fragment: the next_fragment_off link (u16) and the
// fragment's entry count (u16), followed by its PhysOffsetDesc entries.
const offsetFragmentHeaderSize = 4

// BuildOffsetTable assembles the block-to-offset-table header followed by
// as many physical-offset-table fragments as needed to cover blockCount
// logical blocks starting at startLogicalBlk, each descriptor pointing at
// logicalByteOffset + blk*itemSize inside the block-descriptor area (spec
// §4.1 "pre_commit_offset_table").
func BuildOffsetTable(startLogicalBlk uint32, blockCount int, logicalByteOffset uint32, itemSize uint32, entriesPerFragment int) []byte {
	if entriesPerFragment <= 0 {
		entriesPerFragment = 1
	}
	fragCount := (blockCount + entriesPerFragment - 1) / entriesPerFragment
	if fragCount == 0 {
		fragCount = 1
	}

	fragSize := func(n int) int { return offsetFragmentHeaderSize + n*PhysOffsetDescSize }

	total := Blk2OffTableHeaderSize
	offsets := make([]int, fragCount)
	for f := 0; f < fragCount; f++ {
		offsets[f] = total
		remaining := blockCount - f*entriesPerFragment
		n := entriesPerFragment
		if remaining < n {
			n = remaining
		}
		total += fragSize(n)
	}

	buf := make([]byte, total)

	hdr := Blk2OffTableHeader{
		Sig:             Signature{Common: MagicCommon, Key: KeyOffsetTable},
		StartLogicalBlk: startLogicalBlk,
	}
	checkOff := 6
	hdr.Check.Put(buf[checkOff : checkOff+MetadataCheckSize]) // placeholder, stamped below after fragments
	binary.LittleEndian.PutUint32(buf[6+MetadataCheckSize:Blk2OffTableHeaderSize], hdr.StartLogicalBlk)
	hdr.Sig.Put(buf[0:6])

	blk := 0
	for f := 0; f < fragCount; f++ {
		base := offsets[f]
		remaining := blockCount - f*entriesPerFragment
		n := entriesPerFragment
		if remaining < n {
			n = remaining
		}
		nextOff := uint16(InvalidID16)
		if f < fragCount-1 {
			nextOff = uint16(offsets[f+1])
		}
		binary.LittleEndian.PutUint16(buf[base:base+2], nextOff)
		binary.LittleEndian.PutUint16(buf[base+2:base+4], uint16(n))

		for i := 0; i < n; i++ {
			desc := PhysOffsetDesc{
				LogicalBlk:   uint16(startLogicalBlk) + uint16(blk),
				LogStartPage: 0,
				LogArea:      uint8(ExtentBlockDescriptors),
				PeBPage:      logicalByteOffset + uint32(blk)*itemSize,
			}
			off := base + offsetFragmentHeaderSize + i*PhysOffsetDescSize
			desc.Put(buf[off : off+PhysOffsetDescSize])
			blk++
		}
	}

	StampChecksum(buf, total, checkOff)
	return buf
}

// TranslationExtentSize is the fixed size of one translation extent used by
// the mapping table's LEB range coalescing (reused for offset-table
// extents too, same {logical_blk, count, state} shape).
const TranslationExtentSize = 8

// TranslationExtent describes a contiguous run of logical blocks sharing a
// translation state.
type TranslationExtent struct {
	LogicalBlk uint32
	Count      uint16
	State      uint16
}

func (e TranslationExtent) Put(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], e.LogicalBlk)
	binary.LittleEndian.PutUint16(b[4:6], e.Count)
	binary.LittleEndian.PutUint16(b[6:8], e.State)
}
