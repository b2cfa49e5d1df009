package main

import (
	"strings"
	"testing"

	"golang.org/x/xerrors"
)

func TestCompressorListDedupesAndDropsNone(t *testing.T) {
	got := compressorList("zlib", "zlib", "none", "", "LZO")
	want := []string{"zlib", "lzo"}
	if len(got) != len(want) {
		t.Fatalf("compressorList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("compressorList() = %v, want %v", got, want)
		}
	}
}

func TestCompressorListEmptyWhenAllNone(t *testing.T) {
	got := compressorList("none", "", "NONE")
	if len(got) != 0 {
		t.Fatalf("compressorList() = %v, want empty", got)
	}
}

func TestFrameOfExtractsSourceLineAndFunc(t *testing.T) {
	err := xerrors.Errorf("invalid argument: boom")
	file, line, fn := frameOf(err)
	if file == "?" || line == "?" || fn == "?" {
		t.Fatalf("frameOf(%v) = (%q, %q, %q), want a resolved frame", err, file, line, fn)
	}
	if !strings.HasSuffix(file, "main_test.go") {
		t.Fatalf("frameOf() file = %q, want it to end in main_test.go", file)
	}
}

func TestDiagnosticIncludesProgNameAndMessage(t *testing.T) {
	err := xerrors.Errorf("invalid argument: volume_size too small")
	got := diagnostic(err)
	if !strings.HasPrefix(got, progName+": ") {
		t.Fatalf("diagnostic() = %q, want it to start with %q", got, progName+": ")
	}
	if !strings.Contains(got, "volume_size too small") {
		t.Fatalf("diagnostic() = %q, want it to contain the wrapped message", got)
	}
}
