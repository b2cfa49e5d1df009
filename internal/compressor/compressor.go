// Package compressor implements the byte-oriented compressor interface the
// core calls through (spec §1, §6.1's -C flag): compression codec
// implementation itself is out of scope beyond "none" and "zlib", per the
// spec's explicit non-goal.
package compressor

import (
	"bytes"
	"compress/zlib"
	"io"

	"golang.org/x/xerrors"
)

// Type identifies an on-disk compression codec, matching the
// feature_compat_ro bits in internal/abi.
type Type uint8

const (
	None Type = iota
	Zlib
	Lzo
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Zlib:
		return "zlib"
	case Lzo:
		return "lzo"
	default:
		return "unknown"
	}
}

// ParseType maps the -C flag's value to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "none":
		return None, nil
	case "zlib":
		return Zlib, nil
	case "lzo":
		return Lzo, nil
	default:
		return None, xerrors.Errorf("invalid argument: unknown compressor %q", s)
	}
}

// Codec is the byte-oriented compressor interface the core consumes;
// subsystems never import compress/zlib directly, only this interface.
type Codec interface {
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte, sizeHint int) ([]byte, error)
}

// Lookup returns the Codec implementing t.
func Lookup(t Type) (Codec, error) {
	switch t {
	case None:
		return noneCodec{}, nil
	case Zlib:
		return zlibCodec{}, nil
	case Lzo:
		return nil, xerrors.Errorf("invalid argument: compressor %q is not implemented", t)
	default:
		return nil, xerrors.Errorf("invalid argument: unknown compressor type %d", t)
	}
}

type noneCodec struct{}

func (noneCodec) Compress(src []byte) ([]byte, error)              { return src, nil }
func (noneCodec) Decompress(src []byte, _ int) ([]byte, error)      { return src, nil }

// zlibCodec wraps stdlib compress/zlib, the same package the teacher's
// squashfs writer already imports for its (disabled) block-compression
// path.
type zlibCodec struct{}

func (zlibCodec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, xerrors.Errorf("zlib compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, xerrors.Errorf("zlib compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (zlibCodec) Decompress(src []byte, sizeHint int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, xerrors.Errorf("zlib decompress: %w", err)
	}
	defer r.Close()
	out := bytes.NewBuffer(make([]byte, 0, sizeHint))
	if _, err := io.Copy(out, r); err != nil {
		return nil, xerrors.Errorf("zlib decompress: %w", err)
	}
	return out.Bytes(), nil
}
