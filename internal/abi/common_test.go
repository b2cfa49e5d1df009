package abi

import "testing"

func TestSignatureRoundTrip(t *testing.T) {
	want := Signature{Common: MagicCommon, Key: KeySuperblock}
	buf := make([]byte, 6)
	want.Put(buf)

	var got Signature
	got.Get(buf)
	if got != want {
		t.Fatalf("Signature round-trip = %+v, want %+v", got, want)
	}
}

func TestMetadataDescriptorRoundTrip(t *testing.T) {
	want := MetadataDescriptor{
		Offset: 4096,
		Size:   8192,
		Check:  MetadataCheck{Bytes: 64, Flags: CheckFlagCRC32, Csum: 0xdeadbeef},
	}
	buf := make([]byte, MetadataDescriptorSize)
	want.Put(buf)

	var got MetadataDescriptor
	got.Get(buf)
	if got != want {
		t.Fatalf("MetadataDescriptor round-trip = %+v, want %+v", got, want)
	}
}

func TestStampAndVerifyChecksum(t *testing.T) {
	const checkOff = 16
	buf := make([]byte, checkOff+MetadataCheckSize+32)
	for i := range buf {
		buf[i] = byte(i)
	}
	// zero the check region before stamping so the test is not sensitive to
	// whatever non-zero filler preceded it
	for i := 0; i < MetadataCheckSize; i++ {
		buf[checkOff+i] = 0
	}

	StampChecksum(buf, len(buf), checkOff)
	if !VerifyChecksum(buf, checkOff) {
		t.Fatal("VerifyChecksum rejected a freshly stamped buffer")
	}

	buf[len(buf)-1] ^= 0xff
	if VerifyChecksum(buf, checkOff) {
		t.Fatal("VerifyChecksum accepted a corrupted buffer")
	}
}
