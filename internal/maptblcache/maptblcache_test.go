package maptblcache

import "testing"

func TestInsertKeepsSortedOrder(t *testing.T) {
	c := New(4096)
	for _, leb := range []uint64{5, 1, 3, 2, 4} {
		c.Insert(leb, leb*10)
	}
	frag := c.fragments[0]
	for i := 1; i < len(frag); i++ {
		if frag[i-1].leb >= frag[i].leb {
			t.Fatalf("fragment not sorted: %v", frag)
		}
	}
}

func TestInsertOverflowsToNextFragment(t *testing.T) {
	c := New(64) // small page forces a tiny pairsPerPage
	n := c.pairsPerPage*2 + 1
	for i := 0; i < n; i++ {
		c.Insert(uint64(i), uint64(i)*2)
	}
	if c.FragmentsCount() < 2 {
		t.Fatalf("FragmentsCount() = %d, want >= 2 after inserting %d pairs with %d per page", c.FragmentsCount(), n, c.pairsPerPage)
	}
}

func TestBuildFragmentsTotalBytesMatchesSumOfHeaders(t *testing.T) {
	c := New(4096)
	for i := uint64(0); i < 20; i++ {
		c.Insert(i, i+1000)
	}
	total := c.TotalBytes()

	var sum uint32
	for _, f := range c.BuildFragments() {
		var hdr abiLikeHeader
		hdr.bytesCount = getHeaderBytesCount(f)
		sum += hdr.bytesCount
	}
	if sum != total {
		t.Fatalf("sum(fragment bytes) = %d, want TotalBytes() = %d", sum, total)
	}
}

type abiLikeHeader struct{ bytesCount uint32 }

// getHeaderBytesCount reads MaptblCacheHeader.BytesCount directly off the
// wire, at the same offset abi.MaptblCacheHeader.Put writes it to
// (Sig(6)+SequenceID(2)+Flags(2)+ItemsCount(2) = offset 12).
func getHeaderBytesCount(buf []byte) uint32 {
	const off = 12
	return uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
}
