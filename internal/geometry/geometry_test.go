package geometry

import "testing"

func TestNewRejectsNonPowerOfTwoPageSize(t *testing.T) {
	if _, err := New(4097, 8*1024*1024, 8*1024*1024, 1<<30, 1, false, 0); err == nil {
		t.Fatal("expected error for non-power-of-two page_size")
	}
}

func TestNewDerivesCounts(t *testing.T) {
	g, err := New(4*1024, 8*1024*1024, 8*1024*1024, 1<<30 /* 1 GiB */, 2, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if g.PEBsPerSeg != 1 {
		t.Errorf("PEBsPerSeg = %d, want 1 (seg_size == erase_size)", g.PEBsPerSeg)
	}
	if g.SegsCount != 128 {
		t.Errorf("SegsCount = %d, want 128", g.SegsCount)
	}
	if got := Log2(g.SegSize); got != 23 {
		t.Errorf("Log2(SegSize) = %d, want 23", got)
	}
}

func TestNewZonedOverridesEraseSize(t *testing.T) {
	g, err := New(4*1024, 8*1024*1024, 8*1024*1024, 1<<30, 1, true, 256*1024*1024)
	if err != nil {
		t.Fatal(err)
	}
	if g.EraseSize != 256*1024*1024 {
		t.Fatalf("EraseSize = %d, want 256MB (zone size overrides configured erase_size)", g.EraseSize)
	}
	if g.SegSize != uint64(g.EraseSize) {
		t.Fatalf("SegSize = %d, want == EraseSize on a zoned device", g.SegSize)
	}
}

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"4KB", 4 * 1024},
		{"8MB", 8 * 1024 * 1024},
		{"64GB", 64 * 1024 * 1024 * 1024},
		{"1024", 1024},
		{"512B", 512},
	}
	for _, c := range cases {
		got, err := ParseSize(c.in)
		if err != nil {
			t.Errorf("ParseSize(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseSizeRejectsMalformed(t *testing.T) {
	if _, err := ParseSize("4KBytes"); err == nil {
		t.Fatal("expected error for malformed size token")
	}
}

func TestValidateInodeSize(t *testing.T) {
	if err := ValidateInodeSize(256); err != nil {
		t.Errorf("256: %v", err)
	}
	if err := ValidateInodeSize(300); err == nil {
		t.Error("300 is not a power of two, expected error")
	}
	if err := ValidateInodeSize(128); err == nil {
		t.Error("128 is below MinInodeSize, expected error")
	}
}
