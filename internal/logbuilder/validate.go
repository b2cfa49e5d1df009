package logbuilder

import (
	"golang.org/x/xerrors"

	"github.com/ssdfs/mkfs-go/internal/abi"
)

// ValidateExtents checks a single PEB's invariants (spec §3.2, §8.1): every
// non-empty extent's offset is >= the end of the previous non-empty
// extent, extents from ExtentMaptblCache onward start page-aligned, and
// offset+bytes_count <= eraseSize.
func (p *PEB) ValidateExtents(pageSize, eraseSize uint32) error {
	var prevEnd uint32
	for k := abi.ExtentKind(0); k < abi.ExtentKindCount; k++ {
		e := p.Extents[k]
		if e.empty() {
			continue
		}
		if e.OffsetInPEB < prevEnd {
			return xerrors.Errorf("internal invariant: PEB %d extent %d starts at %d before previous extent ends at %d", p.ID, k, e.OffsetInPEB, prevEnd)
		}
		if k >= abi.ExtentMaptblCache && e.OffsetInPEB%pageSize != 0 {
			return xerrors.Errorf("internal invariant: PEB %d extent %d offset %d is not page-aligned", p.ID, k, e.OffsetInPEB)
		}
		end := e.OffsetInPEB + e.BytesCount
		if end > eraseSize {
			return xerrors.Errorf("out of space: PEB %d extent %d ends at %d beyond erase_size %d", p.ID, k, end, eraseSize)
		}
		prevEnd = end
	}
	return nil
}
