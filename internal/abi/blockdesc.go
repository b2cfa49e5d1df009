package abi

import "encoding/binary"

// BlkStateOffsetSize is the fixed size of the state-offset sub-record
// embedded in every block descriptor.
const BlkStateOffsetSize = 8

// BlkStateOffset locates one block's content within a log: which log area,
// which migration generation, and the byte offset inside that area.
type BlkStateOffset struct {
	LogStartPage uint16
	LogArea      uint8
	MigrationID  uint8
	ByteOffset   uint32
}

func (s BlkStateOffset) Put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], s.LogStartPage)
	b[2] = s.LogArea
	b[3] = s.MigrationID
	binary.LittleEndian.PutUint32(b[4:8], s.ByteOffset)
}

// BlockDescriptorSize is the fixed size of one block descriptor.
const BlockDescriptorSize = 8 + 4 + 4 + BlkStateOffsetSize

// BlockDescriptor is one entry of the block-descriptor chain: which inode
// owns the block, its logical offset, and where its content physically
// lives.
type BlockDescriptor struct {
	InodeID          uint64
	LogicalOffsetPages uint32
	PEBIndex         uint32
	State            BlkStateOffset
}

func (d BlockDescriptor) Put(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], d.InodeID)
	binary.LittleEndian.PutUint32(b[8:12], d.LogicalOffsetPages)
	binary.LittleEndian.PutUint32(b[12:16], d.PEBIndex)
	d.State.Put(b[16:24])
}

// AreaBlockTableFragmentsMax is the maximum number of block-descriptor
// fragments a single area block table may describe before a NEXT_TABLE_DESC
// chains to the next table (spec §4.1: "up to 14 fragments").
const AreaBlockTableFragmentsMax = 14

// NextTableDescID marks the final slot of a non-terminal area block table
// as pointing to the next table rather than to block descriptors.
const NextTableDescID = 0xFFFFFFFE

// AreaBlockTableHeaderSize is the fixed size of an area block table header.
const AreaBlockTableHeaderSize = 8

// AreaBlockTable is one link in the block-descriptor chain: a header
// recording how many fragments (each up to K block descriptors) it holds,
// followed by those fragments' worth of BlockDescriptor records.
type AreaBlockTable struct {
	FragmentsCount uint16
	Flags          uint16
	NextTableOff   uint32
}

func (t AreaBlockTable) Put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], t.FragmentsCount)
	binary.LittleEndian.PutUint16(b[2:4], t.Flags)
	binary.LittleEndian.PutUint32(b[4:8], t.NextTableOff)
}

// BuildBlockDescriptorChain lays out valid-block descriptors (one per
// logical block in [0, validBlks)) for inodeID, chained through area block
// tables of at most perFragment*AreaBlockTableFragmentsMax descriptors
// each, per spec §4.1 "pre_commit_block_descriptors".
func BuildBlockDescriptorChain(validBlks int, inodeID uint64, payloadOffset uint32, itemSize uint32, perFragment int) []byte {
	if perFragment <= 0 {
		perFragment = 1
	}
	maxPerTable := perFragment * AreaBlockTableFragmentsMax
	tableCount := (validBlks + maxPerTable - 1) / maxPerTable
	if tableCount == 0 {
		tableCount = 1
	}

	tableSize := func(n int) int { return AreaBlockTableHeaderSize + n*BlockDescriptorSize }

	offsets := make([]int, tableCount)
	total := 0
	for t := 0; t < tableCount; t++ {
		offsets[t] = total
		remaining := validBlks - t*maxPerTable
		n := maxPerTable
		if remaining < n {
			n = remaining
		}
		total += tableSize(n)
	}

	buf := make([]byte, total)
	blk := 0
	for t := 0; t < tableCount; t++ {
		base := offsets[t]
		remaining := validBlks - t*maxPerTable
		n := maxPerTable
		if remaining < n {
			n = remaining
		}
		nextOff := uint32(0)
		if t < tableCount-1 {
			nextOff = uint32(offsets[t+1])
		}
		fragCount := (n + perFragment - 1) / perFragment
		if fragCount == 0 {
			fragCount = 1
		}
		hdr := AreaBlockTable{FragmentsCount: uint16(fragCount), NextTableOff: nextOff}
		hdr.Put(buf[base : base+AreaBlockTableHeaderSize])

		for i := 0; i < n; i++ {
			desc := BlockDescriptor{
				InodeID:            inodeID,
				LogicalOffsetPages: uint32(blk),
				PEBIndex:           0,
				State: BlkStateOffset{
					LogStartPage: 0,
					LogArea:      uint8(ExtentLogPayload),
					MigrationID:  MigrationStart,
					ByteOffset:   payloadOffset + uint32(blk)*itemSize,
				},
			}
			off := base + AreaBlockTableHeaderSize + i*BlockDescriptorSize
			desc.Put(buf[off : off+BlockDescriptorSize])
			blk++
		}
	}

	return buf
}
