package abi

import "encoding/binary"

// MaptblCacheMagic is the 4-byte sentinel separating a cache fragment's
// LEB/PEB pair array from its per-pair state array.
const MaptblCacheMagic = 0x4d435253 // "SRCM"

// MaptblCacheHeaderSize is the fixed size of a mapping-table cache
// fragment's header.
const MaptblCacheHeaderSize = 32

// MaptblCacheHeader opens one page-sized cache fragment.
type MaptblCacheHeader struct {
	Sig        Signature
	SequenceID uint16
	Flags      uint16
	ItemsCount uint16
	BytesCount uint32
	StartLeb   uint64
	EndLeb     uint64
}

func (h MaptblCacheHeader) Put(b []byte) {
	h.Sig.Put(b[0:6])
	binary.LittleEndian.PutUint16(b[6:8], h.SequenceID)
	binary.LittleEndian.PutUint16(b[8:10], h.Flags)
	binary.LittleEndian.PutUint16(b[10:12], h.ItemsCount)
	binary.LittleEndian.PutUint32(b[12:16], h.BytesCount)
	binary.LittleEndian.PutUint64(b[16:24], h.StartLeb)
	binary.LittleEndian.PutUint64(b[24:32], h.EndLeb)
}

func (h *MaptblCacheHeader) Get(b []byte) {
	h.Sig.Get(b[0:6])
	h.SequenceID = binary.LittleEndian.Uint16(b[6:8])
	h.Flags = binary.LittleEndian.Uint16(b[8:10])
	h.ItemsCount = binary.LittleEndian.Uint16(b[10:12])
	h.BytesCount = binary.LittleEndian.Uint32(b[12:16])
	h.StartLeb = binary.LittleEndian.Uint64(b[16:24])
	h.EndLeb = binary.LittleEndian.Uint64(b[24:32])
}

// MaptblCachePebStateSize is the fixed size of one per-pair PEB-state
// record.
const MaptblCachePebStateSize = 4

// MaptblCachePebStateUnknownSharedIndex is the U8_MAX sentinel meaning
// "this PEB is not a shared/migrating PEB".
const MaptblCachePebStateUnknownSharedIndex = 0xFF

// MaptblCachePebState is the per-pair consistency/state record that follows
// the sentinel in a cache fragment.
type MaptblCachePebState struct {
	Consistency     uint8
	State           uint8
	Flags           uint8
	SharedPebIndex  uint8
}

func (s MaptblCachePebState) Put(b []byte) {
	b[0] = s.Consistency
	b[1] = s.State
	b[2] = s.Flags
	b[3] = s.SharedPebIndex
}

func (s *MaptblCachePebState) Get(b []byte) {
	s.Consistency = b[0]
	s.State = b[1]
	s.Flags = b[2]
	s.SharedPebIndex = b[3]
}
