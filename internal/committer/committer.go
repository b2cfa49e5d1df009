// Package committer implements the image committer (spec §4.7): it
// validates a driver.Result's extent layout, optionally erases the
// device, writes every reserved PEB through a page-aligned staging
// buffer, and fsyncs.
package committer

import (
	"golang.org/x/xerrors"

	"github.com/ssdfs/mkfs-go/internal/abi"
	"github.com/ssdfs/mkfs-go/internal/devops"
	"github.com/ssdfs/mkfs-go/internal/driver"
	"github.com/ssdfs/mkfs-go/internal/logbuilder"
)

// Options controls the commit pass; SkipErase is set from the -K flag.
type Options struct {
	EraseWholeDevice bool
	SkipErase        bool
}

// Validate walks every PEB's populated extents, checking that offsets grow
// monotonically, fit within the PEB's erase block, and that no two PEBs'
// written page ranges collide (spec §4.7 "Pre-write validation", §8.1).
func Validate(result *driver.Result) error {
	geo := result.Geometry
	claimed := make(map[uint64]uint64) // global page index -> owning PEB ID

	for _, p := range result.PEBs {
		if err := p.ValidateExtents(geo.PageSize, geo.EraseSize); err != nil {
			return xerrors.Errorf("commit: PEB %d: %w", p.ID, err)
		}

		for k := range p.Extents {
			e := p.Extents[k]
			if e.BytesCount == 0 {
				continue
			}
			firstPage := uint64(p.ID)*uint64(geo.PagesPerPEB) + uint64(e.OffsetInPEB)/uint64(geo.PageSize)
			lastByte := e.OffsetInPEB + e.BytesCount - 1
			lastPage := uint64(p.ID)*uint64(geo.PagesPerPEB) + uint64(lastByte)/uint64(geo.PageSize)
			for page := firstPage; page <= lastPage; page++ {
				if owner, ok := claimed[page]; ok && owner != p.ID {
					return xerrors.Errorf("internal invariant: page %d claimed by both PEB %d and PEB %d", page, owner, p.ID)
				}
				claimed[page] = p.ID
			}
		}
	}
	return nil
}

// Commit erases (per opts) and writes every PEB in result to dev, then
// fsyncs (spec §4.7 "Erase" / "Write").
func Commit(dev devops.Device, result *driver.Result, opts Options) error {
	if err := Validate(result); err != nil {
		return err
	}

	geo := result.Geometry
	eraseSize := int64(geo.EraseSize)

	if !opts.SkipErase {
		if opts.EraseWholeDevice {
			for seg := uint64(0); seg < geo.SegsCount; seg++ {
				for i := uint32(0); i < geo.PEBsPerSeg; i++ {
					pebID := seg*uint64(geo.PEBsPerSeg) + uint64(i)
					if err := dev.Erase(int64(pebID)*eraseSize, eraseSize); err != nil {
						return xerrors.Errorf("i/o error: erase PEB %d: %w", pebID, err)
					}
				}
			}
		} else {
			for _, p := range result.PEBs {
				if err := dev.Erase(int64(p.ID)*eraseSize, eraseSize); err != nil {
					return xerrors.Errorf("i/o error: erase PEB %d: %w", p.ID, err)
				}
			}
		}
	}

	writeBuf := make([]byte, geo.PageSize)
	for _, p := range result.PEBs {
		if err := writePEB(dev, p, geo.PageSize, eraseSize, writeBuf); err != nil {
			return err
		}
	}

	if err := dev.Sync(); err != nil {
		return xerrors.Errorf("i/o error: sync: %w", err)
	}
	return nil
}

// writePEB writes each of p's populated extents to the device at
// peb_id*erase_size + offset_in_peb. writeBuf is a page-sized staging
// buffer: runs of extent bytes are copied into it and flushed with a
// single pwrite whenever it fills, so every device write lands on a
// page-aligned boundary (spec §4.7 "Write").
func writePEB(dev devops.Device, p *logbuilder.PEB, pageSize uint32, eraseSize int64, writeBuf []byte) error {
	base := int64(p.ID) * eraseSize

	bufStart := uint32(0) // offset_in_peb the staging buffer currently covers
	bufLen := 0

	flush := func() error {
		if bufLen == 0 {
			return nil
		}
		if err := dev.Write(base+int64(bufStart), writeBuf[:bufLen]); err != nil {
			return xerrors.Errorf("i/o error: write PEB %d at offset %d: %w", p.ID, bufStart, err)
		}
		bufLen = 0
		return nil
	}

	for k := abi.ExtentKind(0); k < abi.ExtentKindCount; k++ {
		e := p.Extents[k]
		if e.BytesCount == 0 {
			continue
		}

		if bufLen == 0 {
			bufStart = alignDown(e.OffsetInPEB, pageSize)
		} else if e.OffsetInPEB != bufStart+uint32(bufLen) {
			// Non-contiguous with the staged run: flush what's
			// pending and restart staging at this extent.
			if err := flush(); err != nil {
				return err
			}
			bufStart = alignDown(e.OffsetInPEB, pageSize)
		}

		srcOff := int(e.OffsetInPEB - bufStart)
		for written := 0; written < len(e.Buf); {
			room := len(writeBuf) - srcOff
			n := len(e.Buf) - written
			if n > room {
				n = room
			}
			copy(writeBuf[srcOff:srcOff+n], e.Buf[written:written+n])
			written += n
			bufLen = srcOff + n
			srcOff += n
			if bufLen == len(writeBuf) {
				if err := flush(); err != nil {
					return err
				}
				bufStart += uint32(len(writeBuf))
				srcOff = 0
			}
		}
	}

	return flush()
}

func alignDown(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	return v - v%align
}
