// Package driver runs the five subsystems (initial snapshot, superblock,
// segment bitmap, mapping table, mapping-table cache) through the five
// phases the spec's state machine names: allocation_policy, prepare,
// validate, define_layout, commit. No subsystem may skip a phase, and
// phase N across every subsystem completes before phase N+1 begins (spec
// §2, §4.7).
package driver

import (
	"time"

	"golang.org/x/xerrors"

	"github.com/ssdfs/mkfs-go/internal/abi"
	"github.com/ssdfs/mkfs-go/internal/devops"
	"github.com/ssdfs/mkfs-go/internal/geometry"
	"github.com/ssdfs/mkfs-go/internal/logbuilder"
	"github.com/ssdfs/mkfs-go/internal/maptbl"
	"github.com/ssdfs/mkfs-go/internal/maptblcache"
	"github.com/ssdfs/mkfs-go/internal/segbmap"
	"github.com/ssdfs/mkfs-go/internal/snapshot"
	"github.com/ssdfs/mkfs-go/internal/superblock"
)

// Config bundles the geometry and every subsystem's command-line options
// (spec §6.1's -B/-O/-S/-M/-U/-T option groups, condensed to the fields the
// core actually consumes).
type Config struct {
	Geometry *geometry.Geometry

	Label              string
	MigrationThreshold uint32
	Compressors         []string

	MaptblPortionsPerFragment int
	MaptblReservedPct         int
	PebsPerStripe             uint64

	UID, GID uint32

	// Device is used only to probe PEB health before mapping (spec §4.5
	// "Bad / recovering PEBs"); nil skips the probe (non-MTD backends).
	Device devops.Device

	// Now returns the creation timestamp in nanoseconds; overridable for
	// deterministic tests.
	Now func() uint64
}

// Result is everything the committer needs: every populated PEB plus the
// geometry it was laid out against.
type Result struct {
	Geometry *geometry.Geometry
	PEBs     []*logbuilder.PEB
}

// segAlloc is one metadata segment assigned during validate: its fixed
// type, the resulting seg/PEB IDs, and a back-pointer to the PEB
// accumulator define_layout/commit will fill in.
type segAlloc struct {
	pebType uint8
	segType uint16
	segID   uint64
	pebID   uint64
	peb     *logbuilder.PEB
}

// Run executes all five phases and returns the committer-ready PEB list.
func Run(cfg Config) (*Result, error) {
	geo := cfg.Geometry
	now := cfg.Now
	if now == nil {
		now = func() uint64 { return uint64(time.Now().UnixNano()) }
	}
	timestamp := now()

	// --- allocation_policy ---
	snapSegs := snapshot.AllocationPolicy()
	sbSegs := superblock.AllocationPolicy()

	bitmap, err := segbmap.New(geo.SegsCount, geo.PageSize, geo.PagesPerPEB)
	if err != nil {
		return nil, xerrors.Errorf("segbmap: %w", err)
	}
	segbmapSegs := bitmap.FragmentsCount()

	sizing, err := maptbl.NewSizing(geo.PageSize, geo.EraseSize, geo.PEBsPerVolume, geo.SegsCount,
		cfg.MaptblPortionsPerFragment, geo.Zoned, cfg.PebsPerStripe, cfg.MaptblReservedPct)
	if err != nil {
		return nil, xerrors.Errorf("maptbl: %w", err)
	}
	maptblSegs := sizing.MaptblPEBs

	totalMetadataSegs := uint64(snapSegs + sbSegs + segbmapSegs + maptblSegs)
	if totalMetadataSegs*2 > geo.SegsCount {
		return nil, xerrors.Errorf("out of space: metadata requires %d segments, exceeding 50%% of %d total segments", totalMetadataSegs, geo.SegsCount)
	}

	// --- prepare ---
	snapLayout := snapshot.Prepare()

	sbOpts := superblock.Options{Label: cfg.Label, MigrationThreshold: cfg.MigrationThreshold, Compressors: cfg.Compressors}
	sbLayout, err := superblock.Prepare(geo, sbOpts, cfg.UID, cfg.GID, timestamp)
	if err != nil {
		return nil, xerrors.Errorf("superblock: %w", err)
	}

	table := maptbl.BuildPortions(sizing, geo.PEBsPerVolume)
	cache := maptblcache.New(geo.PageSize)

	bitmap.MarkReserved([]uint64{snapshot.SegID})

	// --- validate ---
	if cfg.Device != nil {
		if err := table.ProbePEBHealth(cfg.Device, int64(geo.EraseSize)); err != nil {
			return nil, xerrors.Errorf("maptbl: %w", err)
		}
	}

	var allocs []segAlloc
	nextSegID := uint64(1)

	allocate := func(pebType uint8, segType uint16) error {
		segID, err := bitmap.Allocate(nextSegID, geo.SegsCount, abi.SegStateReserved)
		if err != nil {
			return xerrors.Errorf("segbmap: %w", err)
		}
		nextSegID = segID + 1
		allocs = append(allocs, segAlloc{pebType: pebType, segType: segType, segID: segID})
		return nil
	}

	for i := 0; i < sbSegs; i++ {
		if err := allocate(abi.PEBTypeSuperblock, abi.SegTypeSuperblock); err != nil {
			return nil, err
		}
	}
	for i := 0; i < segbmapSegs; i++ {
		if err := allocate(abi.PEBTypeSegbmap, abi.SegTypeSegbmap); err != nil {
			return nil, err
		}
	}
	for i := 0; i < maptblSegs; i++ {
		if err := allocate(abi.PEBTypeMaptbl, abi.SegTypeMaptbl); err != nil {
			return nil, err
		}
	}

	snapPebID, err := mapSegment(table, cache, snapshot.SegID, geo.PEBsPerSeg, abi.PEBTypeInitialSnapshot)
	if err != nil {
		return nil, err
	}
	snapLayout.SetPEBID(snapPebID)

	var sbSegIDs, sbPebIDs []uint64
	for i := range allocs {
		a := &allocs[i]
		pebID, err := mapSegment(table, cache, a.segID, geo.PEBsPerSeg, a.pebType)
		if err != nil {
			return nil, err
		}
		a.pebID = pebID
	}

	for i := 0; i < sbSegs; i++ {
		sbSegIDs = append(sbSegIDs, allocs[i].segID)
		sbPebIDs = append(sbPebIDs, allocs[i].pebID)
	}
	var sbSegIDsArr, sbPebIDsArr [4][2]uint64
	for i := 0; i < 4; i++ {
		for r := 0; r < 2; r++ {
			idx := i*2 + r
			sbSegIDsArr[i][r] = sbSegIDs[idx]
			sbPebIDsArr[i][r] = sbPebIDs[idx]
		}
	}
	sbLayout.SetPEBIDs(sbSegIDsArr, sbPebIDsArr)

	if err := table.MarkPreErase(nextSegID*uint64(geo.PEBsPerSeg), geo.PEBsPerVolume-1); err != nil {
		return nil, xerrors.Errorf("maptbl: %w", err)
	}

	extents, err := maptbl.ExtentsTable(segIDRange(allocs, maptblSegs, true), segIDRange(allocs, maptblSegs, false))
	if err != nil {
		return nil, xerrors.Errorf("maptbl: %w", err)
	}

	// --- define_layout ---
	if err := snapLayout.DefineLayout(geo.PageSize); err != nil {
		return nil, xerrors.Errorf("snapshot: %w", err)
	}
	if err := sbLayout.DefineLayout(geo.PageSize, cache); err != nil {
		return nil, xerrors.Errorf("superblock: %w", err)
	}

	segbmapOffset := sbSegs
	maptblOffset := sbSegs + segbmapSegs
	bitmapFrags := bitmap.BuildFragments()
	for i, frag := range bitmapFrags {
		a := &allocs[segbmapOffset+i]
		a.peb = logbuilder.NewPEB(a.pebID, a.segID, 0, a.segType, false)
		if err := a.peb.SetExtentStartOffset(abi.ExtentSegHeader, geo.PageSize); err != nil {
			return nil, err
		}
		a.peb.DefineSegmentHeaderLayout()
		if err := a.peb.SetExtentStartOffset(abi.ExtentLogPayload, geo.PageSize); err != nil {
			return nil, err
		}
		a.peb.SetPayload(abi.ExtentLogPayload, frag)
		if err := a.peb.SetExtentStartOffset(abi.ExtentLogFooter, geo.PageSize); err != nil {
			return nil, err
		}
	}

	maptblFrags := table.BuildFragments()
	for i, frag := range maptblFrags {
		if maptblOffset+i >= len(allocs) {
			break
		}
		a := &allocs[maptblOffset+i]
		a.peb = logbuilder.NewPEB(a.pebID, a.segID, 0, a.segType, false)
		if err := a.peb.SetExtentStartOffset(abi.ExtentSegHeader, geo.PageSize); err != nil {
			return nil, err
		}
		a.peb.DefineSegmentHeaderLayout()
		if err := a.peb.SetExtentStartOffset(abi.ExtentLogPayload, geo.PageSize); err != nil {
			return nil, err
		}
		a.peb.SetPayload(abi.ExtentLogPayload, frag)
		if err := a.peb.SetExtentStartOffset(abi.ExtentLogFooter, geo.PageSize); err != nil {
			return nil, err
		}
	}
	for i := 0; i < sbSegs; i++ {
		a := &allocs[i]
		a.peb = sbLayout.PEBs[i/2][i%2]
	}

	sbLayout.VH.MaptblExtents = extents

	// --- commit ---
	snapLayout.Commit(sbLayout.VH, sbLayout.VS, geo.PageSize, timestamp, 0)
	sbLayout.Commit(geo.PageSize, timestamp, 0)
	for i := range allocs {
		a := &allocs[i]
		if i < sbSegs {
			continue // already committed via sbLayout.Commit above
		}
		p := a.peb
		p.PreCommitSegmentHeader(sbLayout.VH, timestamp, 0)
		p.MarkPartial()
		metaBlks := p.CalculateMetadataBlks(geo.PageSize)
		logPages, err := logbuilder.AlignLogPages(metaBlks, geo.PagesPerPEB, geo.PagesPerPEB)
		if err != nil {
			return nil, xerrors.Errorf("define_layout: %w", err)
		}
		p.CommitSegmentHeader(logPages)
		p.CommitLogFooter(metaBlks, geo.PageSize, timestamp, 0)
		p.FinalizeSegmentHeader()
	}

	result := &Result{Geometry: geo}
	result.PEBs = append(result.PEBs, snapLayout.PEB)
	for i := range allocs {
		result.PEBs = append(result.PEBs, allocs[i].peb)
	}
	return result, nil
}

// mapSegment maps every LEB in [segID*pebsPerSeg, (segID+1)*pebsPerSeg) to
// a PEB via the mapping table, recording each pair in the cache too (spec
// §4.5 "LEB -> PEB mapping"), and returns the PEB ID assigned to the
// segment's first LEB (index_in_seg 0), the one metadata logs are written
// into.
func mapSegment(table *maptbl.Table, cache *maptblcache.Cache, segID uint64, pebsPerSeg uint32, pebType uint8) (uint64, error) {
	firstLeb := segID * uint64(pebsPerSeg)
	var basePebID uint64
	for i := uint32(0); i < pebsPerSeg; i++ {
		leb := firstLeb + uint64(i)
		pebID, err := table.MapLEB(leb, pebType, 0)
		if err != nil {
			return 0, xerrors.Errorf("maptbl: %w", err)
		}
		if i == 0 {
			basePebID = pebID
		}
		cache.Insert(leb, pebID)
	}
	return basePebID, nil
}

// segIDRange extracts the maptbl segment IDs assigned during validate, for
// the main (column 0) or backup (column 1) replica; mkfs.ssdfs maps every
// maptbl PEB to a single, unreplicated segment run, so main and backup
// currently coincide.
func segIDRange(allocs []segAlloc, maptblSegs int, _ bool) []uint64 {
	var ids []uint64
	for i := len(allocs) - maptblSegs; i < len(allocs); i++ {
		if i < 0 {
			continue
		}
		ids = append(ids, allocs[i].segID)
	}
	return ids
}
