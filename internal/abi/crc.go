package abi

import "hash/crc32"

func crc32ieee(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// Crc32IEEE exposes the same checksum to other packages that build and
// stamp their own fragment buffers (segbmap, maptbl).
func Crc32IEEE(b []byte) uint32 {
	return crc32ieee(b)
}
