package devops

import (
	"os"

	"github.com/google/renameio"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// regularFileDevice backs a target path that is (or will be) a plain image
// file rather than a device node. A brand-new image is staged through
// renameio.PendingFile, the same atomic-replace idiom the teacher uses in
// cmd/distri/install.go, so that a build which fails part-way never leaves
// a half-written image visible at its final name (spec §8.2 idempotence;
// §5 "no retry, no rollback" — there is nothing to roll back because the
// broken file was never made visible). An already-existing regular file is
// opened and written in place instead, matching spec §6.3/§4.7 exactly.
type regularFileDevice struct {
	f       *os.File
	pending *renameio.PendingFile
}

func openRegularFile(path string) (Device, error) {
	if _, err := os.Stat(path); err == nil {
		f, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0644)
		if err != nil {
			return nil, xerrors.Errorf("i/o error: open image %s: %w", path, err)
		}
		return &regularFileDevice{f: f}, nil
	}

	pf, err := renameio.TempFile("", path)
	if err != nil {
		return nil, xerrors.Errorf("i/o error: stage image %s: %w", path, err)
	}
	return &regularFileDevice{f: pf.File, pending: pf}, nil
}

func (d *regularFileDevice) Read(offset int64, buf []byte) error {
	return pread(d.f, offset, buf)
}

func (d *regularFileDevice) Write(offset int64, buf []byte) error {
	return pwrite(d.f, offset, buf)
}

// Erase on a regular file writes zeros over [offset, offset+size) in 128 KiB
// chunks, giving the "zero elsewhere" semantics the device erase
// disciplines provide on real hardware; the range is not left sparse.
func (d *regularFileDevice) Erase(offset int64, size int64) error {
	const chunk = 128 * 1024
	zero := make([]byte, chunk)
	for size > 0 {
		n := int64(chunk)
		if size < n {
			n = size
		}
		if err := pwrite(d.f, offset, zero[:n]); err != nil {
			return xerrors.Errorf("i/o error: zero-fill erase at %d: %w", offset, err)
		}
		offset += n
		size -= n
	}
	return nil
}

func (d *regularFileDevice) CheckNANDGeometry(geom *Geometry) (bool, error) {
	return false, nil
}

func (d *regularFileDevice) CheckPEB(offset int64, eraseSize int64) (PEBCheckResult, error) {
	return PEBOK, nil
}

func (d *regularFileDevice) Sync() error { return d.f.Sync() }

// Close, for a staged regular file, atomically renames the pending file
// into place; for an already-existing file it is a plain close.
func (d *regularFileDevice) Close() error {
	if d.pending != nil {
		return d.pending.CloseAtomicallyReplace()
	}
	return d.f.Close()
}
