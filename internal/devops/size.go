package devops

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// Size reports the capacity in bytes of the target path: BLKGETSIZE64 for a
// block device, the MEMGETINFO size field for an MTD character device, or
// the plain file size for a regular file/image. mkfs.ssdfs has no volume-size
// flag (spec §6.1 takes exactly one positional argument): the volume is
// always sized from the target itself, so an image file must be
// preallocated (e.g. with truncate(1)) before mkfs.ssdfs runs against it.
func Size(path string) (uint64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, xerrors.Errorf("i/o error: stat %s: %w", path, err)
	}

	mode := fi.Mode()
	switch {
	case mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0:
		f, err := os.Open(path)
		if err != nil {
			return 0, xerrors.Errorf("i/o error: open %s: %w", path, err)
		}
		defer f.Close()
		var sz uint64
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), blkGetSize64, uintptr(unsafe.Pointer(&sz)))
		if errno != 0 {
			return 0, xerrors.Errorf("i/o error: BLKGETSIZE64 %s: %w", path, errno)
		}
		return sz, nil
	case mode&os.ModeCharDevice != 0:
		f, err := os.Open(path)
		if err != nil {
			return 0, xerrors.Errorf("i/o error: open %s: %w", path, err)
		}
		defer f.Close()
		var info mtdInfo
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), memGetInfo, uintptr(unsafe.Pointer(&info)))
		if errno != 0 {
			return 0, xerrors.Errorf("i/o error: MEMGETINFO %s: %w", path, errno)
		}
		return uint64(info.Size), nil
	default:
		if fi.Size() == 0 {
			return 0, xerrors.Errorf("invalid argument: %s is empty; preallocate the image before running mkfs.ssdfs", path)
		}
		return uint64(fi.Size()), nil
	}
}
