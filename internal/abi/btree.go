package abi

import "encoding/binary"

// Btree node type values.
const (
	NodeTypeRoot = 1
)

// IndexKeySize is sizeof(ssdfs_btree_index_key) — the node-pointer width
// used to size node_ptr_size in every BtreeDescriptor.
const IndexKeySize = 16

// BtreeDescriptorSize is the fixed on-disk size of a B-tree descriptor.
const BtreeDescriptorSize = 32

// BtreeDescriptor fixes one root B-tree's static geometry: node size,
// index/item width, and the minimum index-area size reserved in every node.
type BtreeDescriptor struct {
	LogNodeSize      uint8
	PagesPerNode     uint8
	NodePtrSize      uint8
	_                uint8
	IndexSize        uint16
	ItemSize         uint16
	IndexAreaMinSize uint32
	Flags            uint32
	Reserved         [16]byte
}

func (d BtreeDescriptor) Put(b []byte) {
	b[0] = d.LogNodeSize
	b[1] = d.PagesPerNode
	b[2] = d.NodePtrSize
	binary.LittleEndian.PutUint16(b[4:6], d.IndexSize)
	binary.LittleEndian.PutUint16(b[6:8], d.ItemSize)
	binary.LittleEndian.PutUint32(b[8:12], d.IndexAreaMinSize)
	binary.LittleEndian.PutUint32(b[12:16], d.Flags)
	copy(b[16:32], d.Reserved[:])
}

func (d *BtreeDescriptor) Get(b []byte) {
	d.LogNodeSize = b[0]
	d.PagesPerNode = b[1]
	d.NodePtrSize = b[2]
	d.IndexSize = binary.LittleEndian.Uint16(b[4:6])
	d.ItemSize = binary.LittleEndian.Uint16(b[6:8])
	d.IndexAreaMinSize = binary.LittleEndian.Uint32(b[8:12])
	d.Flags = binary.LittleEndian.Uint32(b[12:16])
	copy(d.Reserved[:], b[16:32])
}

// RootNodeHeaderSize is the fixed size of a B-tree root node header.
const RootNodeHeaderSize = 16

// RootNodeHeader describes the root node of a freshly-initialized, empty
// B-tree: no items, no children, height 0.
type RootNodeHeader struct {
	Height        uint8
	ItemsCount    uint8
	Type          uint8
	_             uint8
	UpperNodeID   uint32
	NodesCount    uint32
	Flags         uint32
}

func (h RootNodeHeader) Put(b []byte) {
	b[0] = h.Height
	b[1] = h.ItemsCount
	b[2] = h.Type
	binary.LittleEndian.PutUint32(b[4:8], h.UpperNodeID)
	binary.LittleEndian.PutUint32(b[8:12], h.NodesCount)
	binary.LittleEndian.PutUint32(b[12:16], h.Flags)
}

func (h *RootNodeHeader) Get(b []byte) {
	h.Height = b[0]
	h.ItemsCount = b[1]
	h.Type = b[2]
	h.UpperNodeID = binary.LittleEndian.Uint32(b[4:8])
	h.NodesCount = binary.LittleEndian.Uint32(b[8:12])
	h.Flags = binary.LittleEndian.Uint32(b[12:16])
}

// InlineRootNodeSize is the fixed size of an inline root node record: the
// root header plus up to two child index-key slots, both set to "absent"
// (U32_MAX) for an empty tree.
const InlineRootNodeSize = RootNodeHeaderSize + 2*IndexKeySize

// InlineRootNode is the complete, self-contained root node stored directly
// in the superblock for a brand-new, empty B-tree.
type InlineRootNode struct {
	Header   RootNodeHeader
	Children [2]IndexKey
}

func (n InlineRootNode) Put(b []byte) {
	n.Header.Put(b[0:RootNodeHeaderSize])
	off := RootNodeHeaderSize
	for i := range n.Children {
		n.Children[i].Put(b[off : off+IndexKeySize])
		off += IndexKeySize
	}
}

// IndexKey is one node pointer inside a B-tree index node.
type IndexKey struct {
	NodeID uint32
	Hash   uint64
	Offset uint32 // reserved when absent
}

const childAbsent = 0xFFFFFFFF

// AbsentIndexKey is the "no such child" sentinel used by every empty root
// node's two child slots.
var AbsentIndexKey = IndexKey{NodeID: childAbsent, Hash: 0, Offset: childAbsent}

func (k IndexKey) Put(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], k.NodeID)
	binary.LittleEndian.PutUint64(b[4:12], k.Hash)
	binary.LittleEndian.PutUint32(b[12:16], k.Offset)
}

// BtreeSize is the fixed on-disk size of one root-tree record embedded in
// the volume state: the tree's own descriptor-independent counters plus its
// inline root node.
const BtreeSize = btreeCounterSize + InlineRootNodeSize

const btreeCounterSize = 32

// Btree is a root-tree record as embedded in VolumeState: allocation
// counters plus the tree's current inline root node.
type Btree struct {
	AllocatedItems   uint64
	FreeItems        uint64
	ItemsCapacity    uint64
	UpperAllocatedID uint32
	_                uint32
	Root             InlineRootNode
}

func (t Btree) Put(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], t.AllocatedItems)
	binary.LittleEndian.PutUint64(b[8:16], t.FreeItems)
	binary.LittleEndian.PutUint64(b[16:24], t.ItemsCapacity)
	binary.LittleEndian.PutUint32(b[24:28], t.UpperAllocatedID)
	t.Root.Put(b[btreeCounterSize : btreeCounterSize+InlineRootNodeSize])
}

// NewEmptyBtree builds the zero-item, zero-child root tree record shared by
// the shared-extents, shared-dictionary, snapshots and invalidated-extents
// trees (spec §4.3 "Other B-trees").
func NewEmptyBtree() Btree {
	return Btree{
		Root: InlineRootNode{
			Header: RootNodeHeader{Height: 0, ItemsCount: 0, Type: NodeTypeRoot, UpperNodeID: 0, NodesCount: 0},
			Children: [2]IndexKey{AbsentIndexKey, AbsentIndexKey},
		},
	}
}
