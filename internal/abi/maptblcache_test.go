package abi

import "testing"

func TestMaptblCacheHeaderRoundTrip(t *testing.T) {
	want := MaptblCacheHeader{
		Sig:        Signature{Common: MagicCommon, Key: KeyMaptblCache},
		SequenceID: 3,
		Flags:      0,
		ItemsCount: 42,
		BytesCount: 4096,
		StartLeb:   10,
		EndLeb:     51,
	}
	buf := make([]byte, MaptblCacheHeaderSize)
	want.Put(buf)

	var got MaptblCacheHeader
	got.Get(buf)
	if got != want {
		t.Fatalf("MaptblCacheHeader round-trip = %+v, want %+v", got, want)
	}
}

func TestMaptblCachePebStateRoundTrip(t *testing.T) {
	want := MaptblCachePebState{
		Consistency:    1,
		State:          PEBStateUsing,
		Flags:          0,
		SharedPebIndex: MaptblCachePebStateUnknownSharedIndex,
	}
	buf := make([]byte, MaptblCachePebStateSize)
	want.Put(buf)

	var got MaptblCachePebState
	got.Get(buf)
	if got != want {
		t.Fatalf("MaptblCachePebState round-trip = %+v, want %+v", got, want)
	}
}
