package abi

import "encoding/binary"

// Inode private_flags bits.
const (
	InodeHasInlineDentries = 1 << 0
	InodeHasInlineExtents  = 1 << 1
	InodeHasXattr          = 1 << 2
)

// RootIno is the fixed inode number of the filesystem root directory.
const RootIno = 16

// InodeSize is the fixed on-disk size of an inline inode record.
const InodeSize = 0x100

// DirMode0755 is the root directory's mode: drwxr-xr-x.
const DirMode0755 = 0040755

// Inode is the fixed 256-byte inline inode record. Larger configured inode
// sizes (spec §6.1's -i flag, 256..4096) leave the remainder as explicit
// padding rather than growing this record, since the inline areas below are
// sized against the 256-byte layout.
type Inode struct {
	MagicRev     Signature
	Check        MetadataCheck
	Ino          uint64
	Mode         uint32
	Uid          uint32
	Gid          uint32
	Flags        uint32
	PrivateFlags uint32
	Size         uint64
	Atime        uint64
	Ctime        uint64
	Mtime        uint64
	DentriesCount uint32
	RefCount     uint32

	// Inline dentries area: "." and ".." for a fresh root directory.
	InlineDentries [2]InlineDentry
}

const inodeFixedSize = 6 + MetadataCheckSize + 8 + 4 + 4 + 4 + 4 + 4 + 8 + 8 + 8 + 8 + 4 + 4

// InlineDentrySize is the size of one inline directory-entry record.
const InlineDentrySize = 16

// InlineDentry is a compact directory entry used in the inline-dentries
// area of a small directory inode.
type InlineDentry struct {
	Ino      uint64
	NameLen  uint8
	FileType uint8
	_        [2]byte
	NameHash uint32
}

func (d InlineDentry) Put(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], d.Ino)
	b[8] = d.NameLen
	b[9] = d.FileType
	binary.LittleEndian.PutUint32(b[12:16], d.NameHash)
}

// DentryFileTypeDir marks a directory-typed inline dentry.
const DentryFileTypeDir = 2

// Marshal writes the inode, including its two inline dentries, to buf
// (which must be at least InodeSize bytes) and stamps its CRC32.
func (n *Inode) Marshal(buf []byte) {
	off := 0
	n.MagicRev.Put(buf[off:])
	off += 6
	checkOff := off
	n.Check.Put(buf[off:])
	off += MetadataCheckSize
	binary.LittleEndian.PutUint64(buf[off:], n.Ino)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], n.Mode)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], n.Uid)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], n.Gid)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], n.Flags)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], n.PrivateFlags)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], n.Size)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], n.Atime)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], n.Ctime)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], n.Mtime)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], n.DentriesCount)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], n.RefCount)
	off += 4

	for i := range n.InlineDentries {
		n.InlineDentries[i].Put(buf[off : off+InlineDentrySize])
		off += InlineDentrySize
	}

	StampChecksum(buf, off, checkOff)
}

// NewRootInode builds the root directory inode: "." and ".." both pointing
// at RootIno, mode 0755, owned by uid/gid (spec §4.3 "Root inode").
func NewRootInode(uid, gid uint32, timestamp uint64) *Inode {
	n := &Inode{
		MagicRev:      Signature{Common: MagicCommon, Key: 0x494e},
		Ino:           RootIno,
		Mode:          DirMode0755,
		Uid:           uid,
		Gid:           gid,
		PrivateFlags:  InodeHasInlineDentries,
		Atime:         timestamp,
		Ctime:         timestamp,
		Mtime:         timestamp,
		DentriesCount: 2,
		RefCount:      2,
	}
	n.InlineDentries[0] = InlineDentry{Ino: RootIno, NameLen: 1, FileType: DentryFileTypeDir}
	n.InlineDentries[1] = InlineDentry{Ino: RootIno, NameLen: 2, FileType: DentryFileTypeDir}
	return n
}

// XattrEntrySize is the fixed size of one inline extended-attribute entry.
const XattrEntrySize = 24

// XattrEntry is an inline extended attribute name/value descriptor.
type XattrEntry struct {
	NameLen  uint8
	ValueLen uint16
	Flags    uint8
	NameHash uint32
	Blob     [16]byte
}

func (x XattrEntry) Put(b []byte) {
	b[0] = x.NameLen
	binary.LittleEndian.PutUint16(b[1:3], x.ValueLen)
	b[3] = x.Flags
	binary.LittleEndian.PutUint32(b[4:8], x.NameHash)
	copy(b[8:24], x.Blob[:])
}
