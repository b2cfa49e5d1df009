// Package superblock implements the superblock subsystem (spec §4.3): the
// volume header, volume state, root inode and four root B-trees, and the
// sb-chain of PEBs that carries them across log rotations.
package superblock

import (
	"crypto/rand"

	"github.com/ssdfs/mkfs-go/internal/abi"
	"github.com/ssdfs/mkfs-go/internal/geometry"
	"github.com/ssdfs/mkfs-go/internal/logbuilder"
	"github.com/ssdfs/mkfs-go/internal/maptblcache"
)

// Chain slots, in the fixed order the volume header's sb_pebs array uses.
const (
	ChainCur = iota
	ChainNext
	ChainReserved
	ChainPrev
	chainSlots
)

const replicas = 2 // main, backup

// AllocationPolicy reports the fixed number of segments this subsystem
// consumes: one per chain slot per replica (spec §4.3 "Allocates
// (reserved_sb_seg+1)*2 segments").
func AllocationPolicy() int { return chainSlots * replicas }

// Options carries the -U/-T style subsystem options (spec §6.1) relevant
// to superblock construction.
type Options struct {
	Label              string
	MigrationThreshold uint32
	Compressors         []string
}

// Layout holds the 8 sb-chain PEBs; only ChainCur's two replicas receive
// full content in a fresh image, the rest are reserved placeholders for
// future log rotation (spec §4.3).
type Layout struct {
	PEBs [chainSlots][replicas]*logbuilder.PEB

	VH abi.VolumeHeader
	VS abi.VolumeState

	RootInode *abi.Inode
}

// Prepare allocates the 8 PEB accumulators and fills the volume
// header/state/root-inode content that does not depend on final segment
// IDs (spec §4.3 "prepare").
func Prepare(geo *geometry.Geometry, opts Options, uid, gid uint32, timestamp uint64) (*Layout, error) {
	l := &Layout{}
	for slot := 0; slot < chainSlots; slot++ {
		for rep := 0; rep < replicas; rep++ {
			l.PEBs[slot][rep] = logbuilder.NewPEB(0, 0, 0, abi.SegTypeSuperblock, false)
		}
	}

	createThreads := geo.NANDDies
	if geo.PEBsPerSeg < createThreads {
		createThreads = geo.PEBsPerSeg
	}

	l.VH = abi.VolumeHeader{
		Sig:                 abi.Signature{Common: abi.MagicCommon, Key: abi.KeySuperblock},
		Rev:                 abi.CurrentRevision,
		LogPageSize:         geometry.Log2(uint64(geo.PageSize)),
		LogEraseSize:        geometry.Log2(uint64(geo.EraseSize)),
		LogSegSize:          geometry.Log2(geo.SegSize),
		LogPebsPerSeg:       geometry.Log2(uint64(geo.PEBsPerSeg)),
		MegabytesPerPEB:     geo.EraseSize / (1 << 20),
		PebsPerSeg:          geo.PEBsPerSeg,
		NsegsLo:             geo.SegsCount,
		CreateTimestamp:     timestamp,
		CreateCno:           0,
		LebsPerPebIndex:     1,
		CreateThreadsPerSeg: uint8(createThreads),
		Dentries:            defaultBtreeDescriptor(),
		Extents:              defaultBtreeDescriptor(),
		Xattrs:               defaultBtreeDescriptor(),
		InvalidatedExtents:   defaultBtreeDescriptor(),
	}
	for i := range l.VH.SBPebs {
		for r := range l.VH.SBPebs[i] {
			l.VH.SBPebs[i][r] = abi.SegPEBPair{LebID: abi.Unmapped, PebID: abi.Unmapped}
		}
	}
	if geo.Zoned {
		l.VH.Flags |= abi.VHFlagZoned
		if geo.UnalignedZone {
			l.VH.Flags |= abi.VHFlagUnalignedZone | abi.VHFlagZNSBasedVolume
		}
	}

	var uuid [16]byte
	if _, err := rand.Read(uuid[:]); err != nil {
		return nil, err
	}
	var label [16]byte
	copy(label[:], opts.Label)

	l.VS = abi.VolumeState{
		Sig:                abi.Signature{Common: abi.MagicCommon, Key: abi.KeySuperblock},
		Rev:                abi.CurrentRevision,
		Nsegs:              geo.SegsCount,
		Timestamp:          timestamp,
		Cno:                0,
		State:              abi.StateValidFS,
		Errors:             abi.ErrorsContinue,
		UUID:               uuid,
		Label:              label,
		MigrationThreshold: opts.MigrationThreshold,
		SharedExtentsTree:     abi.NewEmptyBtree(),
		SharedDictionaryTree:  abi.NewEmptyBtree(),
		SnapshotsTree:         abi.NewEmptyBtree(),
	}
	for i := range l.VS.CurSegs {
		l.VS.CurSegs[i] = abi.Unmapped
	}
	l.VS.FeatureCompat = abi.FeatureHasInodesTree | abi.FeatureHasSharedExtentsTree |
		abi.FeatureHasSharedDictionaryTree | abi.FeatureHasSnapshotsTree
	for _, c := range opts.Compressors {
		switch c {
		case "zlib":
			l.VS.FeatureCompatRO |= abi.FeatureCompatROZlib
		case "lzo":
			l.VS.FeatureCompatRO |= abi.FeatureCompatROLzo
		}
	}

	l.RootInode = abi.NewRootInode(uid, gid, timestamp)
	copy(l.VS.RootFolder[:], l.RootInodeBytes())
	l.VS.InodesTree = abi.Btree{
		AllocatedItems:   1,
		FreeItems:        0,
		ItemsCapacity:    1,
		UpperAllocatedID: abi.RootIno,
		Root: abi.InlineRootNode{
			Header:   abi.RootNodeHeader{Height: 0, ItemsCount: 0, Type: abi.NodeTypeRoot},
			Children: [2]abi.IndexKey{abi.AbsentIndexKey, abi.AbsentIndexKey},
		},
	}

	return l, nil
}

func defaultBtreeDescriptor() abi.BtreeDescriptor {
	const nodeSize = 4096
	return abi.BtreeDescriptor{
		LogNodeSize:      geometry.Log2(nodeSize),
		PagesPerNode:     1,
		NodePtrSize:      abi.IndexKeySize,
		IndexSize:        abi.IndexKeySize,
		ItemSize:         abi.InlineDentrySize,
		IndexAreaMinSize: abi.RootNodeHeaderSize,
	}
}

// SetPEBIDs records the seg/PEB IDs assigned during the shared validate
// phase for every chain slot and replica.
func (l *Layout) SetPEBIDs(segIDs [chainSlots][replicas]uint64, pebIDs [chainSlots][replicas]uint64) {
	for slot := 0; slot < chainSlots; slot++ {
		for rep := 0; rep < replicas; rep++ {
			p := l.PEBs[slot][rep]
			p.SegID = segIDs[slot][rep]
			p.ID = pebIDs[slot][rep]
			l.VH.SBPebs[slot][rep] = abi.SegPEBPair{LebID: segIDs[slot][rep], PebID: pebIDs[slot][rep]}
		}
	}
}

// DefineLayout places every sb-chain PEB's extents (spec §4.3
// "define_layout"). Only ChainCur's replicas attach the maptbl-cache
// payload; the rest are reserved, header+footer-only placeholder logs.
func (l *Layout) DefineLayout(pageSize uint32, cache *maptblcache.Cache) error {
	for slot := 0; slot < chainSlots; slot++ {
		for rep := 0; rep < replicas; rep++ {
			p := l.PEBs[slot][rep]
			if err := p.SetExtentStartOffset(abi.ExtentSegHeader, pageSize); err != nil {
				return err
			}
			p.DefineSegmentHeaderLayout()

			if slot == ChainCur {
				if err := p.SetExtentStartOffset(abi.ExtentMaptblCache, pageSize); err != nil {
					return err
				}
				frags := cache.BuildFragments()
				var buf []byte
				for _, f := range frags {
					buf = append(buf, f...)
				}
				p.SetPayload(abi.ExtentMaptblCache, buf)
			}

			if err := p.SetExtentStartOffset(abi.ExtentLogFooter, pageSize); err != nil {
				return err
			}
		}
	}
	return nil
}

// Commit fills in every sb-chain PEB's content and stamps every checksum
// (spec §4.3).
func (l *Layout) Commit(pageSize uint32, timestamp, cno uint64) {
	for slot := 0; slot < chainSlots; slot++ {
		for rep := 0; rep < replicas; rep++ {
			p := l.PEBs[slot][rep]
			p.PreCommitSegmentHeader(l.VH, timestamp, cno)
			p.PreCommitLogFooter(l.VS)

			metaBlks := p.CalculateMetadataBlks(pageSize)
			p.CommitSegmentHeader(metaBlks)
			p.CommitLogFooter(metaBlks, pageSize, timestamp, cno)
			p.FinalizeSegmentHeader()
		}
	}
}

// RootInodeBytes marshals the root inode into an InodeSize buffer, the form
// stored directly in VolumeState.RootFolder (ssdfs_volume_state's own
// root_folder field, separate from the inodes tree's root node).
func (l *Layout) RootInodeBytes() []byte {
	buf := make([]byte, abi.InodeSize)
	l.RootInode.Marshal(buf)
	return buf
}
