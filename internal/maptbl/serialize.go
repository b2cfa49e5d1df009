package maptbl

import (
	"encoding/binary"

	"golang.org/x/xerrors"

	"github.com/ssdfs/mkfs-go/internal/abi"
)

// BuildFragments serializes every portion (LEB table mempage followed by
// its stripes' PEB tables) into PortionsPerFragment-portion, PEB-sized
// fragment buffers, CRC32-ing each LEB/PEB table fragment (spec §4.5
// "Each LEB/PEB table fragment is CRC32'd.").
func (t *Table) BuildFragments() [][]byte {
	s := t.sizing
	portionsPerFragment := s.PortionsPerFragment

	var frags [][]byte
	for start := 0; start < len(t.portions); start += portionsPerFragment {
		end := start + portionsPerFragment
		if end > len(t.portions) {
			end = len(t.portions)
		}
		buf := make([]byte, int(s.EraseSize))
		off := 0
		for _, p := range t.portions[start:end] {
			lebBuf := buf[off : off+s.LebTblPortionBytes]
			for i := range lebBuf {
				lebBuf[i] = 0xFF
			}
			hdr := abi.LebTableFragmentHeader{
				Sig:        abi.Signature{Common: abi.MagicCommon, Key: abi.KeyMaptbl},
				FirstLeb:   p.FirstLeb,
				LebsCount:  uint32(p.LebsCount),
				MappedLebs: countMapped(p),
			}
			hdr.Put(lebBuf)
			for i, d := range p.LebDescs {
				descOff := abi.LebTableFragmentHeaderSize + i*abi.LebDescriptorSize
				if descOff+abi.LebDescriptorSize <= len(lebBuf) {
					d.Put(lebBuf[descOff : descOff+abi.LebDescriptorSize])
				}
			}
			stampFragmentCRC(lebBuf)
			off += s.LebTblPortionBytes

			for _, st := range p.Stripes {
				stBuf := buf[off : off+int(s.PageSize)]
				st.Header.Put(stBuf[:abi.PebTableFragmentHeaderSize])
				for i, d := range st.Descs {
					descOff := abi.PebTableFragmentHeaderSize + i*abi.PebDescriptorSize
					if descOff+abi.PebDescriptorSize <= len(stBuf) {
						d.Put(stBuf[descOff : descOff+abi.PebDescriptorSize])
					}
				}
				stampFragmentCRC(stBuf)
				off += int(s.PageSize)
			}
		}
		frags = append(frags, buf)
	}
	return frags
}

// BuildSBHeader summarizes the table for the superblock's maptbl record
// (spec §4.3, §4.5), given the coalesced extents already computed for this
// table's segment IDs.
func (t *Table) BuildSBHeader(lebsCount, pebsCount uint64, extents [3][2]abi.RawExtentOnDisk) abi.MaptblSBHeader {
	s := t.sizing
	h := abi.MaptblSBHeader{
		FragmentsCount:     uint32((s.PortionsCount + s.PortionsPerFragment - 1) / s.PortionsPerFragment),
		FragmentBytes:      uint32(s.EraseSize),
		LebsCount:          lebsCount,
		PebsCount:          pebsCount,
		Flags:              abi.MaptblFlagHasCopy,
		LebsPerFragment:    uint32(s.LebDescPerMempage * s.PortionsPerFragment),
		PebsPerFragment:    uint32(s.PebDescPerStripe * s.StripesPerPortion * s.PortionsPerFragment),
		PebsPerStripe:      uint32(s.PebDescPerStripe),
		StripesPerFragment: uint32(s.StripesPerPortion * s.PortionsPerFragment),
		Extents:            extents,
	}
	return h
}

func countMapped(p *Portion) uint32 {
	var n uint32
	for _, d := range p.LebDescs {
		if d.PhysicalIndex != abi.InvalidID16 {
			n++
		}
	}
	return n
}

func stampFragmentCRC(buf []byte) {
	// The leading 8 bytes of every LEB/PEB table fragment header carry
	// the signature; the checksum here covers the whole fragment with
	// no dedicated csum field to zero, matching the coarse per-fragment
	// CRC32 the spec describes for this subsystem's fragments (as
	// opposed to the {bytes,flags,csum} convention used by segment
	// headers and footers).
	sum := crc32Of(buf)
	binary.LittleEndian.PutUint32(buf[len(buf)-4:], sum)
}

func crc32Of(b []byte) uint32 {
	return abi.Crc32IEEE(b[:len(b)-4])
}

// ExtentsTable coalesces a sorted list of maptbl segment IDs into runs of
// {start_id, len} for the main (column 0) and backup (column 1) replica
// lists, capped at 3 entries per column (spec §4.5, §9 open question).
func ExtentsTable(mainSegIDs, backupSegIDs []uint64) ([3][2]abi.RawExtentOnDisk, error) {
	var out [3][2]abi.RawExtentOnDisk

	mainRuns := coalesce(mainSegIDs)
	backupRuns := coalesce(backupSegIDs)

	if len(mainRuns) > 3 || len(backupRuns) > 3 {
		return out, xerrors.Errorf("invalid argument: maptbl segment IDs do not coalesce into <=3 contiguous extents (main=%d backup=%d)", len(mainRuns), len(backupRuns))
	}

	for i, r := range mainRuns {
		out[i][0] = abi.RawExtentOnDisk{StartID: r.start, Len: uint32(r.len), Type: abi.SegExtentType}
	}
	for i, r := range backupRuns {
		out[i][1] = abi.RawExtentOnDisk{StartID: r.start, Len: uint32(r.len), Type: abi.SegExtentType}
	}
	return out, nil
}

type run struct {
	start uint64
	len   int
}

func coalesce(ids []uint64) []run {
	if len(ids) == 0 {
		return nil
	}
	var runs []run
	cur := run{start: ids[0], len: 1}
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1]+1 {
			cur.len++
			continue
		}
		runs = append(runs, cur)
		cur = run{start: ids[i], len: 1}
	}
	runs = append(runs, cur)
	return runs
}
