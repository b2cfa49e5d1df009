// Package abi declares the fixed-size, little-endian on-disk record layouts
// of an SSDFS-style volume: the structures a mountable image must contain so
// that everything on the device is self-describing. Each record is a Go
// struct with a Marshal/Unmarshal pair operating on a raw byte slice,
// following the same manual binary.LittleEndian convention the teacher uses
// for its own on-disk inode and directory records.
package abi

import (
	"encoding/binary"
	"hash/crc32"
)

// Magic signatures. The common 4-byte signature plus a 2-byte per-record key
// identify every record's type before its version is even considered.
const (
	MagicCommon      = 0x53664453 // "SsDf" resp. little-endian u32
	KeySuperblock    = 0x3553
	KeySegmentHeader = 0x3348
	KeyLogFooter     = 0x3046
	KeyPartialLog    = 0x3050
	KeyBlockBitmap   = 0x4d42
	KeyOffsetTable   = 0x4f54
	KeySegbmap       = 0x4d53
	KeyMaptbl        = 0x544d
	KeyMaptblCache   = 0x434d
)

// Revision is the 2+2 byte major/minor version stamped into every record.
type Revision struct {
	Major uint16
	Minor uint16
}

func (r Revision) Put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], r.Major)
	binary.LittleEndian.PutUint16(b[2:4], r.Minor)
}

func (r *Revision) Get(b []byte) {
	r.Major = binary.LittleEndian.Uint16(b[0:2])
	r.Minor = binary.LittleEndian.Uint16(b[2:4])
}

// CurrentRevision is the on-disk format version this builder writes.
var CurrentRevision = Revision{Major: 1, Minor: 0}

// Signature is the common 4-byte + 2-byte magic pair every record opens
// with.
type Signature struct {
	Common uint32
	Key    uint16
}

func (s Signature) Put(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], s.Common)
	binary.LittleEndian.PutUint16(b[4:6], s.Key)
}

func (s *Signature) Get(b []byte) {
	s.Common = binary.LittleEndian.Uint32(b[0:4])
	s.Key = binary.LittleEndian.Uint16(b[4:6])
}

// Check-header flag bits.
const (
	CheckFlagCRC32   = 1 << 0
	CheckFlagHasCsum = 1 << 1
)

// MetadataCheck is the {bytes, flags, csum} trailer every checksummed
// record carries (spec §4.1 "CRC policy").
type MetadataCheck struct {
	Bytes uint16
	Flags uint16
	Csum  uint32
}

const MetadataCheckSize = 8

func (c MetadataCheck) Put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], c.Bytes)
	binary.LittleEndian.PutUint16(b[2:4], c.Flags)
	binary.LittleEndian.PutUint32(b[4:8], c.Csum)
}

func (c *MetadataCheck) Get(b []byte) {
	c.Bytes = binary.LittleEndian.Uint16(b[0:2])
	c.Flags = binary.LittleEndian.Uint16(b[2:4])
	c.Csum = binary.LittleEndian.Uint32(b[4:8])
}

// MetadataDescriptor is an on-disk {offset, size, check} pointer from a
// segment header or footer to one region of the log.
type MetadataDescriptor struct {
	Offset uint32
	Size   uint32
	Check  MetadataCheck
}

const MetadataDescriptorSize = 4 + 4 + MetadataCheckSize

func (d MetadataDescriptor) Put(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], d.Offset)
	binary.LittleEndian.PutUint32(b[4:8], d.Size)
	d.Check.Put(b[8:16])
}

func (d *MetadataDescriptor) Get(b []byte) {
	d.Offset = binary.LittleEndian.Uint32(b[0:4])
	d.Size = binary.LittleEndian.Uint32(b[4:8])
	d.Check.Get(b[8:16])
}

// RawExtent is a {leb_id, len, check} physical placement record.
type RawExtent struct {
	LebID uint64
	Len   uint32
	Check MetadataCheck
}

// StampChecksum computes the CRC32-LE checksum header fields over buf's
// leading n bytes, with the check field's csum zeroed during computation,
// and writes the resulting MetadataCheck at checkOff.
func StampChecksum(buf []byte, n int, checkOff int) {
	saved := make([]byte, MetadataCheckSize)
	copy(saved, buf[checkOff:checkOff+MetadataCheckSize])
	var zero [MetadataCheckSize]byte
	copy(buf[checkOff:checkOff+MetadataCheckSize], zero[:])
	sum := crc32.ChecksumIEEE(buf[:n])
	check := MetadataCheck{Bytes: uint16(n), Flags: CheckFlagCRC32, Csum: sum}
	check.Put(buf[checkOff : checkOff+MetadataCheckSize])
	_ = saved
}

// VerifyChecksum reports whether buf's stored check header at checkOff
// matches a freshly computed CRC32-LE over buf[:check.Bytes].
func VerifyChecksum(buf []byte, checkOff int) bool {
	var check MetadataCheck
	check.Get(buf[checkOff : checkOff+MetadataCheckSize])
	if int(check.Bytes) > len(buf) {
		return false
	}
	tmp := make([]byte, check.Bytes)
	copy(tmp, buf[:check.Bytes])
	var zero [MetadataCheckSize]byte
	copy(tmp[checkOff:checkOff+MetadataCheckSize], zero[:])
	return crc32.ChecksumIEEE(tmp) == check.Csum
}
