// Package maptbl implements the PEB mapping table subsystem (spec §4.5):
// portion/stripe sizing, LEB->PEB mapping, pre-erase marking, bad/
// recovering PEB handling, and the superblock's coalesced extents table.
package maptbl

import (
	"golang.org/x/xerrors"

	"github.com/ssdfs/mkfs-go/internal/abi"
)

// MaxMaptblSegmentsPercent caps the mapping table at 10% of all segments
// (spec §4.5 "At most 10% of all segments may be maptbl segments").
const MaxMaptblSegmentsPercent = 10

// Sizing holds every derived constant for one volume's mapping table.
type Sizing struct {
	PageSize  uint32
	EraseSize uint32

	LebDescPerMempage int
	PebDescPerStripe  int
	StripesPerPortion int

	LebTblPortionBytes int
	PebTblPortionBytes int
	PortionSize        int

	PortionsPerFragment int
	PortionsCount       int
	MaptblPEBs          int

	ReservedPct int
}

const lebTblHeaderBytes = abi.LebTableFragmentHeaderSize
const pebTblHeaderBytes = abi.PebTableFragmentHeaderSize

// NewSizing derives the mapping table's portion/stripe/fragment geometry
// for pebsPerVolume PEBs (spec §4.5 "Sizing"). userPortionsPerFragment is
// the -M portions_per_fragment override (0 = unset); zoned/pebsPerStripe
// select the zoned stripes_per_portion formula.
func NewSizing(pageSize, eraseSize uint32, pebsPerVolume uint64, segsCount uint64, userPortionsPerFragment int, zoned bool, pebsPerStripe uint64, reservedPct int) (*Sizing, error) {
	s := &Sizing{PageSize: pageSize, EraseSize: eraseSize, ReservedPct: reservedPct}

	const fragmentCRCTrailerBytes = 4
	s.LebDescPerMempage = (int(pageSize) - lebTblHeaderBytes - fragmentCRCTrailerBytes) / abi.LebDescriptorSize
	s.PebDescPerStripe = (int(pageSize) - pebTblHeaderBytes - fragmentCRCTrailerBytes) / abi.PebDescriptorSize

	// leb_desc_per_mempage is 2 x peb_desc_per_stripe by construction, so
	// stripes_per_portion (= leb_desc_per_mempage / peb_desc_per_stripe)
	// comes out to 2 stripes per portion (mapping_table.c's
	// maptbl_mkfs_allocation_policy).
	s.StripesPerPortion = s.LebDescPerMempage / s.PebDescPerStripe
	if s.StripesPerPortion < 1 {
		s.StripesPerPortion = 1
	}

	if zoned {
		if pebsPerStripe == 0 {
			pebsPerStripe = 1
		}
		s.StripesPerPortion = int((pebsPerVolume + pebsPerStripe - 1) / pebsPerStripe)
		if s.StripesPerPortion < 1 {
			s.StripesPerPortion = 1
		}
	}

	s.LebTblPortionBytes = int(pageSize) // one mempage per portion's LEB table
	s.PebTblPortionBytes = s.StripesPerPortion * int(pageSize)
	s.PortionSize = s.LebTblPortionBytes + s.PebTblPortionBytes

	if userPortionsPerFragment > 0 && userPortionsPerFragment*s.PortionSize <= int(eraseSize) {
		s.PortionsPerFragment = userPortionsPerFragment
	} else {
		s.PortionsPerFragment = int(eraseSize) / s.PortionSize
		if s.PortionsPerFragment < 1 {
			s.PortionsPerFragment = 1
		}
	}

	pebsPerPortion := uint64(s.LebDescPerMempage)
	if pebsPerPortion == 0 {
		pebsPerPortion = 1
	}
	s.PortionsCount = int((pebsPerVolume + pebsPerPortion - 1) / pebsPerPortion)
	if s.PortionsCount < 1 {
		s.PortionsCount = 1
	}

	s.MaptblPEBs = (s.PortionsCount + s.PortionsPerFragment - 1) / s.PortionsPerFragment
	if s.MaptblPEBs < 1 {
		s.MaptblPEBs = 1
	}

	maxSegs := segsCount * MaxMaptblSegmentsPercent / 100
	if uint64(s.MaptblPEBs) > maxSegs {
		return nil, xerrors.Errorf("invalid argument: maptbl requires %d PEBs, exceeding %d%% of %d segments", s.MaptblPEBs, MaxMaptblSegmentsPercent, segsCount)
	}

	return s, nil
}
