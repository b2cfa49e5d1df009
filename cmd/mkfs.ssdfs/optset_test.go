package main

import (
	"strings"
	"testing"
)

func TestParseOptsetEmpty(t *testing.T) {
	o := parseOptset("")
	if len(o) != 0 {
		t.Fatalf("parseOptset(\"\") = %v, want empty", o)
	}
}

func TestParseOptsetKeyValueAndBareKeys(t *testing.T) {
	o := parseOptset("has_copy,log_pages=32,compression=zlib")
	if !o.has("has_copy") {
		t.Fatal(`expected "has_copy" to be present as a bare key`)
	}
	if o.string("has_copy", "missing") != "" {
		t.Fatalf("bare key has_copy = %q, want empty string", o.string("has_copy", "missing"))
	}
	if got := o.int("log_pages", -1); got != 32 {
		t.Fatalf("log_pages = %d, want 32", got)
	}
	if got := o.string("compression", ""); got != "zlib" {
		t.Fatalf("compression = %q, want zlib", got)
	}
}

func TestOptsetDefaults(t *testing.T) {
	o := parseOptset("migration_threshold=5")
	if got := o.int("missing_key", 7); got != 7 {
		t.Fatalf("int() for a missing key = %d, want default 7", got)
	}
	if got := o.string("missing_key", "fallback"); got != "fallback" {
		t.Fatalf("string() for a missing key = %q, want default", got)
	}
}

func TestOptsetIntIgnoresMalformedValue(t *testing.T) {
	o := parseOptset("log_pages=not-a-number")
	if got := o.int("log_pages", 9); got != 9 {
		t.Fatalf("int() for a malformed value = %d, want default 9", got)
	}
}

func TestParseOptsetTrimsWhitespaceAroundEntries(t *testing.T) {
	o := parseOptset(" has_copy , log_pages=32 ")
	if !o.has("has_copy") {
		t.Fatal(`expected "has_copy" to be present after trimming`)
	}
	if got := o.int("log_pages", -1); got != 32 {
		t.Fatalf("log_pages = %d, want 32", got)
	}
}

func TestOptsetValidateAcceptsKnownKeys(t *testing.T) {
	o := parseOptset("has_copy,stripes_per_fragment=4,compression=zlib")
	if err := o.validate("maptbl", "has_copy", "stripes_per_fragment", "compression"); err != nil {
		t.Fatalf("validate() = %v, want nil", err)
	}
}

func TestOptsetValidateRejectsUnknownKey(t *testing.T) {
	o := parseOptset("has_copy,bogus_key=1")
	err := o.validate("maptbl", "has_copy", "compression")
	if err == nil {
		t.Fatal("validate() = nil, want an invalid argument error for bogus_key")
	}
	if got := err.Error(); !containsAll(got, "invalid argument", "maptbl", "bogus_key") {
		t.Fatalf("validate() error = %q, want it to name the group and offending key", got)
	}
}

func TestOptsetValidateRejectsAgainstEmptyAllowList(t *testing.T) {
	o := parseOptset("log_pages=32")
	if err := o.validate("btree"); err == nil {
		t.Fatal("validate() = nil, want rejection when no keys are allowed")
	}
}

func containsAll(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
