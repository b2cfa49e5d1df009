// Package segbmap implements the segment bitmap subsystem (spec §4.4):
// fragment sizing, 2-bit-per-segment item states, and the
// first-clean-item allocation primitive every segment ID assignment goes
// through.
package segbmap

import (
	"golang.org/x/xerrors"

	"github.com/ssdfs/mkfs-go/internal/abi"
)

// MaxFragmentsPerChain caps the bitmap's fragment chain at 8 segments
// (spec §4.4 "The chain spans at most 8 segments").
const MaxFragmentsPerChain = 8

// maxFragmentFillRatio shrinks fragments-per-PEB to <=70% of pages-per-PEB
// when the naive count would overflow a PEB (spec §4.4).
const maxFragmentFillRatio = 0.70

// Bitmap holds the in-memory segment bitmap: one 2-bit item per segment,
// packed 4 per byte.
type Bitmap struct {
	nsegs         uint64
	bmapBytes     int
	fragmentsCount int
	fragmentBytes int // body bytes per fragment (bitmap payload only)
	pageSize      uint32

	body []byte // nsegs/4 bytes, logically sliced per fragment
}

// headerBytesPerFragment is the fixed SegbmapFragmentHeaderSize consumed by
// each fragment in addition to its bitmap body.
const headerBytesPerFragment = abi.SegbmapFragmentHeaderSize

// New sizes a segment bitmap for nsegs segments at pageSize fragments
// (spec §4.4 "Sizing"): bmap_bytes = ceil(nsegs/4); fragments_count sized
// so that fragments_count*header_bytes + bmap_bytes fits into
// fragments_count pages; if fragments-per-PEB would overflow a PEB it is
// shrunk to <=70% of pages_per_peb.
func New(nsegs uint64, pageSize uint32, pagesPerPEB uint32) (*Bitmap, error) {
	bmapBytes := int((nsegs + 3) / 4)

	fragmentsCount := 1
	for {
		usable := int(pageSize)*fragmentsCount - headerBytesPerFragment*fragmentsCount
		if usable >= bmapBytes || fragmentsCount >= MaxFragmentsPerChain*int(pagesPerPEB) {
			break
		}
		fragmentsCount++
	}

	maxFragsPerPEB := int(float64(pagesPerPEB) * maxFragmentFillRatio)
	if maxFragsPerPEB < 1 {
		maxFragsPerPEB = 1
	}
	if fragmentsCount > maxFragsPerPEB*MaxFragmentsPerChain {
		return nil, xerrors.Errorf("out of space: segment bitmap requires %d fragments, exceeding the %d-fragment chain limit", fragmentsCount, maxFragsPerPEB*MaxFragmentsPerChain)
	}

	fragmentBodyBytes := (bmapBytes + fragmentsCount - 1) / fragmentsCount

	return &Bitmap{
		nsegs:          nsegs,
		bmapBytes:      bmapBytes,
		fragmentsCount: fragmentsCount,
		fragmentBytes:  fragmentBodyBytes,
		pageSize:       pageSize,
		body:           make([]byte, bmapBytes),
	}, nil
}

// FragmentsCount reports how many page-sized fragments the bitmap spans.
func (b *Bitmap) FragmentsCount() int { return b.fragmentsCount }

// itemByte returns the byte index and bit shift for segment id.
func itemByte(id uint64) (int, uint) {
	return int(id / 4), uint(id%4) * 2
}

// SetState sets segment id's 2-bit state.
func (b *Bitmap) SetState(id uint64, state byte) {
	idx, shift := itemByte(id)
	b.body[idx] &^= 0x3 << shift
	b.body[idx] |= (state & 0x3) << shift
}

// State returns segment id's 2-bit state.
func (b *Bitmap) State(id uint64) byte {
	idx, shift := itemByte(id)
	return (b.body[idx] >> shift) & 0x3
}

// MarkReserved marks every segment in ids as reserved (spec §4.4: "All
// metadata-allocated segments are marked reserved").
func (b *Bitmap) MarkReserved(ids []uint64) {
	for _, id := range ids {
		b.SetState(id, abi.SegStateReserved&0x3)
	}
}

// Allocate implements the primary allocation operation (spec §4.4): find
// the first clean item in [start, max), flip it to newState, and return
// its ID. Returns an "out of space" error if no clean item exists.
func (b *Bitmap) Allocate(start, max uint64, newState byte) (uint64, error) {
	for id := start; id < max && id < b.nsegs; id++ {
		idx, _ := itemByte(id)
		if !abi.ByteHasCleanItem(b.body[idx]) {
			// Fast-skip the rest of a byte with no clean item at
			// all, landing on the next byte's first item.
			next := uint64(idx+1) * 4
			if next > id {
				id = next - 1
				continue
			}
		}
		if b.State(id) == abi.SegStateClean {
			b.SetState(id, newState&0x3)
			return id, nil
		}
	}
	return 0, xerrors.Errorf("out of space: segment bitmap has no clean item in [%d, %d)", start, max)
}

// BuildFragments dumps the in-memory bitmap into fragmentsCount page-sized,
// CRC32'd fragments, each carrying its header (peb/seg index within the
// chain, first item ID, counts) per spec §4.4.
func (b *Bitmap) BuildFragments() [][]byte {
	frags := make([][]byte, b.fragmentsCount)
	bodyPerFrag := b.fragmentBytes

	for i := 0; i < b.fragmentsCount; i++ {
		start := i * bodyPerFrag
		end := start + bodyPerFrag
		if end > len(b.body) {
			end = len(b.body)
		}
		bodyChunk := b.body[start:end]

		buf := make([]byte, headerBytesPerFragment+len(bodyChunk))
		counts := b.countStates(start, end)

		hdr := abi.SegbmapFragmentHeader{
			Sig:           abi.Signature{Common: abi.MagicCommon, Key: abi.KeySegbmap},
			FragmentIndex: uint16(i),
			FirstItemID:   uint64(start) * 4,
			SequenceID:    uint16(i),
			FragmentBytes: uint32(len(buf)),
			CountClean:    counts.clean,
			CountUsing:    counts.using,
			CountUsed:     counts.used,
			CountBad:      counts.bad,
		}
		hdr.Marshal(buf[:headerBytesPerFragment])
		copy(buf[headerBytesPerFragment:], bodyChunk)

		frags[i] = buf
	}
	return frags
}

type stateCounts struct{ clean, using, used, bad uint32 }

func (b *Bitmap) countStates(byteStart, byteEnd int) stateCounts {
	var c stateCounts
	for idx := byteStart; idx < byteEnd; idx++ {
		for shift := uint(0); shift < 8; shift += 2 {
			st := (b.body[idx] >> shift) & 0x3
			switch st {
			case abi.SegStateClean:
				c.clean++
			case abi.SegStateUsing & 0x3:
				c.using++
			case abi.SegStateUsed & 0x3:
				c.used++
			default:
				c.bad++
			}
		}
	}
	return c
}
