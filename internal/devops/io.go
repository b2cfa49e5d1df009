package devops

import (
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// pread issues unix.Pread in a loop, retrying transparently on EINTR (spec
// §5 "EINTR is retried transparently").
func pread(f *os.File, offset int64, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Pread(int(f.Fd()), buf, offset)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return xerrors.Errorf("i/o error: pread at %d: %w", offset, err)
		}
		if n == 0 {
			return xerrors.Errorf("i/o error: short read at %d", offset)
		}
		buf = buf[n:]
		offset += int64(n)
	}
	return nil
}

// pwrite issues unix.Pwrite in a loop, retrying transparently on EINTR.
func pwrite(f *os.File, offset int64, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Pwrite(int(f.Fd()), buf, offset)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return xerrors.Errorf("i/o error: pwrite at %d: %w", offset, err)
		}
		if n == 0 {
			return xerrors.Errorf("i/o error: short write at %d", offset)
		}
		buf = buf[n:]
		offset += int64(n)
	}
	return nil
}
