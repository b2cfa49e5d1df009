package compressor

import (
	"bytes"
	"testing"
)

func TestParseType(t *testing.T) {
	cases := []struct {
		in   string
		want Type
	}{
		{"", None},
		{"none", None},
		{"zlib", Zlib},
		{"lzo", Lzo},
	}
	for _, c := range cases {
		got, err := ParseType(c.in)
		if err != nil {
			t.Errorf("ParseType(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseType(%q) = %v, want %v", c.in, got, c.want)
		}
	}
	if _, err := ParseType("gzip"); err == nil {
		t.Error("expected error for unknown compressor")
	}
}

func TestNoneCodecRoundTrip(t *testing.T) {
	c, err := Lookup(None)
	if err != nil {
		t.Fatal(err)
	}
	src := []byte("hello ssdfs")
	compressed, err := c.Compress(src)
	if err != nil {
		t.Fatal(err)
	}
	decompressed, err := c.Decompress(compressed, len(src))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decompressed, src) {
		t.Fatalf("none codec round-trip = %q, want %q", decompressed, src)
	}
}

func TestZlibCodecRoundTrip(t *testing.T) {
	c, err := Lookup(Zlib)
	if err != nil {
		t.Fatal(err)
	}
	src := bytes.Repeat([]byte("ssdfs flash translation layer "), 64)
	compressed, err := c.Compress(src)
	if err != nil {
		t.Fatal(err)
	}
	if len(compressed) >= len(src) {
		t.Errorf("compressed size %d not smaller than input %d for repetitive data", len(compressed), len(src))
	}
	decompressed, err := c.Decompress(compressed, len(src))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decompressed, src) {
		t.Fatal("zlib codec round-trip mismatch")
	}
}

func TestLookupRejectsLzo(t *testing.T) {
	if _, err := Lookup(Lzo); err == nil {
		t.Fatal("expected error: lzo is not implemented")
	}
}
