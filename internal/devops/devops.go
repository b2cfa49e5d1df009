// Package devops implements the device-operations abstraction the core
// reaches hardware through (spec §6.3): read, write, erase,
// check_nand_geometry, check_peb. Three concrete backends exist — MTD,
// raw block device, and zoned/ZNS — selected at Open time by examining the
// target's stat mode, per Design Note §9.
package devops

import (
	"os"

	"golang.org/x/xerrors"
)

// PEBCheckResult is the outcome of probing one PEB before mapping it (spec
// §6.3 item 5).
type PEBCheckResult int

const (
	PEBOK PEBCheckResult = iota
	PEBBad
	PEBRecovering
)

// Geometry is the subset of volume geometry the device layer verifies or
// corrects against the real hardware.
type Geometry struct {
	PageSize  uint32
	EraseSize uint32
	Zoned     bool
	ZoneSize  uint64
}

// Device is the capability abstraction every subsystem's commit phase and
// the final committer consume. Implementations must retry EINTR internally
// (spec §5).
type Device interface {
	// Read performs a pread at offset into buf, retrying on EINTR.
	Read(offset int64, buf []byte) error
	// Write performs a pwrite of buf at offset, retrying on EINTR. On
	// zoned media it opens the destination zone on first write into it.
	Write(offset int64, buf []byte) error
	// Erase erases [offset, offset+size) using the backend's discipline.
	Erase(offset int64, size int64) error
	// CheckNANDGeometry verifies/corrects geom against the real device.
	// It reports whether geom was modified (e.g. zone size mismatch).
	CheckNANDGeometry(geom *Geometry) (changed bool, err error)
	// CheckPEB probes one PEB's erase-health, when the backend supports
	// it (MTD only; other backends always report PEBOK).
	CheckPEB(offset int64, eraseSize int64) (PEBCheckResult, error)
	// Sync flushes the file's data to the backing store.
	Sync() error
	// Close releases the underlying file descriptor.
	Close() error
}

// kind enumerates the backend dispatched by Open.
type kind int

const (
	kindMTD kind = iota
	kindBlock
	kindZoned
	kindRegularFile
)

// mtdMajorDev is SSDFS_MTD_MAJOR_DEV from original_source/include/
// ssdfs_constants.h: the kernel major device number identifying an MTD
// character device.
const mtdMajorDev = 90

// Open dispatches to the correct backend by inspecting path's stat mode:
// character devices (opened as MTD; the major number is not checked),
// zoned block devices (BLKGETZONESZ succeeds with a nonzero result), plain
// block devices, or a regular or not-yet-existing file (treated as an
// image; openRegularFile stages a new one through renameio).
func Open(path string, force bool) (Device, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return openRegularFile(path)
		}
		return nil, xerrors.Errorf("i/o error: stat %s: %w", path, err)
	}

	mode := fi.Mode()
	switch {
	case mode&os.ModeCharDevice != 0:
		return openMTD(path)
	case mode&os.ModeDevice != 0:
		return openBlockOrZoned(path, force)
	case mode.IsRegular():
		return openRegularFile(path)
	default:
		return nil, xerrors.Errorf("invalid argument: %s is neither a device nor a regular file", path)
	}
}
