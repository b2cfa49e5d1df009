package maptbl

import (
	"golang.org/x/xerrors"

	"github.com/ssdfs/mkfs-go/internal/abi"
	"github.com/ssdfs/mkfs-go/internal/devops"
)

// Stripe is one PEB table within a portion: a header plus a flat array of
// PEB descriptors, and a used-bitmap tracking which descriptor slots are
// occupied.
type Stripe struct {
	Header  abi.PebTableFragmentHeader
	Descs   []abi.PebDescriptor
	UsedBmap []bool
	BadBmap  []bool
	RecoverBmap []bool
	DirtyBmap []bool
}

// Portion is one LEB-table-plus-stripes group (spec §3.4).
type Portion struct {
	Index       int
	FirstLeb    uint64
	LebsCount   int
	LebDescs    []abi.LebDescriptor
	Stripes     []Stripe
}

// Table is the whole in-memory mapping table.
type Table struct {
	sizing   *Sizing
	portions []*Portion
}

// BuildPortions allocates and initializes every portion for pebsPerVolume
// PEBs (spec §4.5 "Portion initialization"): LEB table mempages filled with
// 0xFF after a header, PEB table stripes zeroed with a header.
func BuildPortions(sizing *Sizing, pebsPerVolume uint64) *Table {
	t := &Table{sizing: sizing}

	remaining := pebsPerVolume
	var firstLeb uint64
	for idx := 0; idx < sizing.PortionsCount; idx++ {
		n := uint64(sizing.LebDescPerMempage)
		if remaining < n {
			n = remaining
		}

		p := &Portion{Index: idx, FirstLeb: firstLeb, LebsCount: int(n)}
		p.LebDescs = make([]abi.LebDescriptor, sizing.LebDescPerMempage)
		for i := range p.LebDescs {
			p.LebDescs[i] = abi.LebDescriptor{PhysicalIndex: abi.InvalidID16, RelationIndex: abi.InvalidID16}
		}

		p.Stripes = make([]Stripe, sizing.StripesPerPortion)
		firstPebInPortion := p.FirstLeb
		for si := range p.Stripes {
			pebsInStripe := sizing.PebDescPerStripe
			st := Stripe{
				Header: abi.PebTableFragmentHeader{
					Sig:          abi.Signature{Common: abi.MagicCommon, Key: abi.KeyMaptbl},
					FirstPeb:     firstPebInPortion,
					PebsCount:    uint32(pebsInStripe),
					ReservedPebs: uint32(sizing.ReservedPct * pebsInStripe / 100),
					StripeID:     uint16(si),
					PortionID:    uint16(idx),
					FragmentID:   uint16(si),
				},
				Descs:       make([]abi.PebDescriptor, pebsInStripe),
				UsedBmap:    make([]bool, pebsInStripe),
				BadBmap:     make([]bool, pebsInStripe),
				RecoverBmap: make([]bool, pebsInStripe),
				DirtyBmap:   make([]bool, pebsInStripe),
			}
			p.Stripes[si] = st
			firstPebInPortion += uint64(pebsInStripe)
		}

		t.portions = append(t.portions, p)
		remaining -= n
		firstLeb += n
	}

	return t
}

// portionAndIndex locates the portion and in-portion LEB-descriptor index
// for a global LEB ID.
func (t *Table) portionAndIndex(leb uint64) (*Portion, int, error) {
	for _, p := range t.portions {
		if leb >= p.FirstLeb && leb < p.FirstLeb+uint64(p.LebsCount) {
			return p, int(leb - p.FirstLeb), nil
		}
	}
	return nil, 0, xerrors.Errorf("invalid argument: LEB %d has no owning maptbl portion", leb)
}

// stripeForLocalIndex finds which stripe within p covers local index i.
func (p *Portion) stripeForLocalIndex(i int) (*Stripe, int) {
	for si := range p.Stripes {
		n := len(p.Stripes[si].Descs)
		if i < n {
			return &p.Stripes[si], i
		}
		i -= n
	}
	return nil, 0
}

// MapLEB maps leb to an unused PEB slot in its portion's stripes, stamping
// the PEB descriptor's type/state and the LEB descriptor's physical_index
// (spec §4.5 "LEB -> PEB mapping"). It returns the global PEB ID chosen.
func (t *Table) MapLEB(leb uint64, pebType uint8, firstLebOfVolume uint64) (uint64, error) {
	p, localIdx, err := t.portionAndIndex(leb)
	if err != nil {
		return 0, err
	}

	// Scan every stripe in the portion for the first unused slot,
	// starting at the stripe that covers localIdx.
	startStripe := len(p.Stripes) - 1
	for si, rest := 0, localIdx; si < len(p.Stripes); si++ {
		if rest < len(p.Stripes[si].Descs) {
			startStripe = si
			break
		}
		rest -= len(p.Stripes[si].Descs)
	}
	for offset := 0; offset < len(p.Stripes); offset++ {
		si := (startStripe + offset) % len(p.Stripes)
		st := &p.Stripes[si]
		for i, used := range st.UsedBmap {
			if used {
				continue
			}
			st.UsedBmap[i] = true
			st.Descs[i] = abi.PebDescriptor{State: abi.PEBStateUsing, Type: pebType}
			pebIndexInPortion := i
			for k := 0; k < si; k++ {
				pebIndexInPortion += len(p.Stripes[k].Descs)
			}
			p.LebDescs[localIdx] = abi.LebDescriptor{PhysicalIndex: uint16(pebIndexInPortion), RelationIndex: abi.InvalidID16}
			pebID := st.Header.FirstPeb + uint64(i)
			return pebID, nil
		}
	}
	return 0, xerrors.Errorf("out of space: maptbl portion %d has no free PEB slot for LEB %d", p.Index, leb)
}

// MarkPreErase marks every LEB from firstUnmapped through lastLeb as
// pre-erase: state=PRE_ERASE, type=unknown, dirty bit flipped (spec §4.5
// "Pre-erase marking"). Skipped by the driver when the whole device will
// be erased.
func (t *Table) MarkPreErase(firstUnmapped, lastLeb uint64) error {
	for leb := firstUnmapped; leb <= lastLeb; leb++ {
		p, localIdx, err := t.portionAndIndex(leb)
		if err != nil {
			return err
		}
		st, i := p.stripeForLocalIndex(localIdx % len(p.LebDescs))
		if st == nil {
			continue
		}
		st.Descs[i].State = abi.PEBStatePreErase
		st.Descs[i].Type = abi.PEBTypeUnknown
		st.DirtyBmap[i] = true
	}
	return nil
}

// ProbePEBHealth probes every unmapped PEB with dev.CheckPEB (when the
// backend supports it — MTD only) and stamps bad/recovering descriptors
// before any LEB->PEB mapping happens (spec §4.5 "Bad / recovering PEBs").
func (t *Table) ProbePEBHealth(dev devops.Device, eraseSize int64) error {
	for _, p := range t.portions {
		for si := range p.Stripes {
			st := &p.Stripes[si]
			for i := range st.Descs {
				if st.UsedBmap[i] {
					continue
				}
				pebID := st.Header.FirstPeb + uint64(i)
				result, err := dev.CheckPEB(int64(pebID)*eraseSize, eraseSize)
				if err != nil {
					return xerrors.Errorf("i/o error: check_peb for PEB %d: %w", pebID, err)
				}
				switch result {
				case devops.PEBBad:
					st.Descs[i] = abi.PebDescriptor{State: abi.PEBStateBad, EraseCycles: 0xFFFFFFFF}
					st.UsedBmap[i] = true
					st.BadBmap[i] = true
					st.Header.Flags |= abi.PebTableFragmentFlagBadblk
				case devops.PEBRecovering:
					st.Descs[i] = abi.PebDescriptor{State: abi.PEBStateRecovering}
					st.UsedBmap[i] = true
					st.RecoverBmap[i] = true
				}
			}
		}
	}
	return nil
}
