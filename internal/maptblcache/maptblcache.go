// Package maptblcache implements the mapping-table cache subsystem (spec
// §4.6): one page per fragment, each holding a sorted LEB↔PEB pair array,
// a sentinel, and a per-pair state array, with insertion keeping every
// fragment sorted and evicting overflow to the next fragment.
package maptblcache

import (
	"github.com/ssdfs/mkfs-go/internal/abi"
)

// pair bundles a LEB/PEB mapping with its state record so insertion can
// move both together.
type pair struct {
	leb, peb uint64
	state    abi.MaptblCachePebState
}

// Cache is the in-memory mapping-table cache: an ordered list of
// page-sized fragments, each holding a sorted run of pairs.
type Cache struct {
	pageSize   uint32
	pairsPerPage int
	fragments  [][]pair
}

// New creates an empty cache sized for pageSize-byte fragments.
func New(pageSize uint32) *Cache {
	perPage := pairsPerFragment(pageSize)
	return &Cache{pageSize: pageSize, pairsPerPage: perPage, fragments: [][]pair{{}}}
}

func pairsPerFragment(pageSize uint32) int {
	avail := int(pageSize) - abi.MaptblCacheHeaderSize - 4 /*sentinel*/
	perPairBytes := abi.SegPEBPairSize + abi.MaptblCachePebStateSize
	n := avail / perPairBytes
	if n < 1 {
		n = 1
	}
	return n
}

// Insert adds a LEB->PEB pair in sorted order (spec §4.6 "Insertion keeps
// pairs sorted"), evicting the fragment's last entry into the next
// fragment if it is full, recursively, and creating a new fragment if the
// last one overflows.
func (c *Cache) Insert(leb, peb uint64) {
	c.insertAt(0, pair{leb: leb, peb: peb, state: abi.MaptblCachePebState{State: abi.PEBStateUsing, SharedPebIndex: abi.MaptblCachePebStateUnknownSharedIndex}})
}

func (c *Cache) insertAt(fragIdx int, p pair) {
	if fragIdx >= len(c.fragments) {
		c.fragments = append(c.fragments, nil)
	}
	frag := c.fragments[fragIdx]

	pos := 0
	for pos < len(frag) && frag[pos].leb < p.leb {
		pos++
	}
	frag = append(frag, pair{})
	copy(frag[pos+1:], frag[pos:])
	frag[pos] = p

	if len(frag) > c.pairsPerPage {
		overflow := frag[len(frag)-1]
		frag = frag[:len(frag)-1]
		c.fragments[fragIdx] = frag
		c.insertAt(fragIdx+1, overflow)
		return
	}
	c.fragments[fragIdx] = frag
}

// FragmentsCount reports how many page fragments the cache currently
// spans.
func (c *Cache) FragmentsCount() int { return len(c.fragments) }

// BuildFragments serializes every fragment into a page-sized, self
// contained buffer: header, sorted pair array, sentinel, state array
// (spec §4.6).
func (c *Cache) BuildFragments() [][]byte {
	out := make([][]byte, len(c.fragments))
	for i, frag := range c.fragments {
		buf := make([]byte, c.pageSize)

		var startLeb, endLeb uint64
		if len(frag) > 0 {
			startLeb = frag[0].leb
			endLeb = frag[len(frag)-1].leb
		}

		hdr := abi.MaptblCacheHeader{
			Sig:        abi.Signature{Common: abi.MagicCommon, Key: abi.KeyMaptblCache},
			SequenceID: uint16(i),
			ItemsCount: uint16(len(frag)),
			StartLeb:   startLeb,
			EndLeb:     endLeb,
		}

		pairsOff := abi.MaptblCacheHeaderSize
		for j, p := range frag {
			pp := abi.SegPEBPair{LebID: p.leb, PebID: p.peb}
			off := pairsOff + j*abi.SegPEBPairSize
			pp.Put(buf[off : off+abi.SegPEBPairSize])
		}

		sentinelOff := pairsOff + len(frag)*abi.SegPEBPairSize
		putU32(buf[sentinelOff:sentinelOff+4], abi.MaptblCacheMagic)

		statesOff := sentinelOff + 4
		for j, p := range frag {
			off := statesOff + j*abi.MaptblCachePebStateSize
			p.state.Put(buf[off : off+abi.MaptblCachePebStateSize])
		}

		bytesCount := statesOff + len(frag)*abi.MaptblCachePebStateSize
		hdr.BytesCount = uint32(bytesCount)
		hdr.Put(buf[0:abi.MaptblCacheHeaderSize])

		out[i] = buf
	}
	return out
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// TotalBytes returns sum(fragment.bytes_count) across all fragments, the
// quantity the superblock's maptbl-cache extent descriptor must advertise
// (spec §4.3, §8.1).
func (c *Cache) TotalBytes() uint32 {
	var total uint32
	for _, buf := range c.BuildFragments() {
		var hdr abi.MaptblCacheHeader
		hdr.Get(buf)
		total += hdr.BytesCount
	}
	return total
}
