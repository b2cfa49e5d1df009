// Package geometry validates and derives the fixed integer geometry of an
// SSDFS volume: page size, erase size, segment size and the counts they
// imply, per the power-of-two constraints the on-disk format requires.
package geometry

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Bounds mirror the legal ranges named in the specification.
const (
	MinPageSize  = 4 * 1024
	MaxPageSize  = 32 * 1024
	MinEraseSize = 128 * 1024
	MaxEraseSize = 8 * 1024 * 1024
	MinSegSize   = 128 * 1024
	MaxSegSize   = 64 * 1024 * 1024 * 1024

	MinInodeSize = 256
	MaxInodeSize = 4096
)

// Geometry holds the five powers-of-two that define every on-disk offset,
// plus the values derived from them.
type Geometry struct {
	PageSize   uint32
	EraseSize  uint32
	SegSize    uint64
	VolumeSize uint64
	NANDDies   uint32

	PEBsPerSeg    uint32
	PagesPerPEB   uint32
	PEBsPerVolume uint64
	SegsCount     uint64

	Zoned        bool
	UnalignedZone bool
}

// errInvalid wraps an error as the spec's "invalid argument" kind.
func errInvalid(format string, args ...interface{}) error {
	return xerrors.Errorf("invalid argument: "+format, args...)
}

// isPowerOfTwo reports whether v is a nonzero power of two.
func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// Log2 returns log base 2 of v, which must be a power of two.
func Log2(v uint64) uint8 {
	var n uint8
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

// New validates page/erase/seg/volume sizes and nand_dies and derives the
// counts that the rest of the builder needs. zoned and zoneSize describe a
// zoned block device as reported by check_nand_geometry; on a zoned device
// seg_size is forced equal to erase_size (one zone per segment).
func New(pageSize, eraseSize uint32, segSize, volumeSize uint64, nandDies uint32, zoned bool, zoneSize uint64) (*Geometry, error) {
	if !isPowerOfTwo(uint64(pageSize)) || pageSize < MinPageSize || pageSize > MaxPageSize {
		return nil, errInvalid("page_size %d must be a power of two in [%d, %d]", pageSize, MinPageSize, MaxPageSize)
	}
	if !isPowerOfTwo(uint64(eraseSize)) || eraseSize < MinEraseSize || eraseSize > MaxEraseSize {
		return nil, errInvalid("erase_size %d must be a power of two in [%d, %d]", eraseSize, MinEraseSize, MaxEraseSize)
	}
	if eraseSize%pageSize != 0 {
		return nil, errInvalid("erase_size %d must be a multiple of page_size %d", eraseSize, pageSize)
	}
	if nandDies == 0 || nandDies%2 != 0 {
		// nand_dies is only ever used as an upper bound on create
		// threads per segment; odd counts are still rejected to match
		// the spec's "(>=1, even)" constraint.
		if nandDies != 1 {
			return nil, errInvalid("nand_dies %d must be even (or exactly 1)", nandDies)
		}
	}

	g := &Geometry{
		PageSize:  pageSize,
		EraseSize: eraseSize,
		NANDDies:  nandDies,
	}

	if zoned {
		g.Zoned = true
		effective := eraseSize
		if zoneSize != 0 {
			effective = uint32(zoneSize)
		}
		if !isPowerOfTwo(uint64(effective)) {
			g.UnalignedZone = true
		}
		segSize = uint64(effective)
		eraseSize = effective
		g.EraseSize = effective
	}

	if !isPowerOfTwo(segSize) || segSize < MinSegSize || segSize > MaxSegSize {
		return nil, errInvalid("seg_size %d must be a power of two in [%d, %d]", segSize, MinSegSize, MaxSegSize)
	}
	if segSize%uint64(eraseSize) != 0 {
		return nil, errInvalid("seg_size %d must be a multiple of erase_size %d", segSize, eraseSize)
	}
	g.SegSize = segSize
	g.PEBsPerSeg = uint32(segSize / uint64(eraseSize))
	g.PagesPerPEB = eraseSize / pageSize

	segBytes := segSize
	segsCount := volumeSize / segBytes
	if segsCount == 0 {
		return nil, errInvalid("volume_size %d is smaller than one segment (%d bytes)", volumeSize, segBytes)
	}
	g.SegsCount = segsCount
	g.VolumeSize = segsCount * segBytes
	g.PEBsPerVolume = segsCount * uint64(g.PEBsPerSeg)

	return g, nil
}

// sizeTable maps the fixed suffix set named in spec §6.1 to byte counts.
var sizeTable = []struct {
	suffix string
	mult   uint64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// ParseSize parses a byte count or a suffixed size token such as "4KB",
// "8MB" or "64GB". Bare integers are treated as a raw byte count.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errInvalid("empty size token")
	}
	for _, e := range sizeTable {
		if strings.HasSuffix(s, e.suffix) {
			numPart := strings.TrimSuffix(s, e.suffix)
			n, err := strconv.ParseUint(numPart, 10, 64)
			if err != nil {
				return 0, errInvalid("malformed size token %q: %v", s, err)
			}
			return n * e.mult, nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errInvalid("malformed size token %q: %v", s, err)
	}
	return n, nil
}

// ValidateInodeSize checks the -i flag's bounds (spec §6.1, supplemented
// from original_source/sbin/mkfs.ssdfs/options.c).
func ValidateInodeSize(size uint32) error {
	if size < MinInodeSize || size > MaxInodeSize {
		return errInvalid("inode_size %d out of range [%d, %d]", size, MinInodeSize, MaxInodeSize)
	}
	if !isPowerOfTwo(uint64(size)) {
		return errInvalid("inode_size %d must be a power of two", size)
	}
	return nil
}

// String renders a short human summary, used in -d diagnostics.
func (g *Geometry) String() string {
	return fmt.Sprintf("page=%d erase=%d seg=%d volume=%d pebs_per_seg=%d segs=%d zoned=%v",
		g.PageSize, g.EraseSize, g.SegSize, g.VolumeSize, g.PEBsPerSeg, g.SegsCount, g.Zoned)
}
