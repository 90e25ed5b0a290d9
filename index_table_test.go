package omap

import (
	"fmt"
	"testing"
)

func TestCalcTableLen(t *testing.T) {
	if got := calcTableLen(0, defaultMaxLoadFactor); got != minMapTableLen {
		t.Fatalf("calcTableLen(0) = %d, want %d", got, minMapTableLen)
	}
	for _, hint := range []int{1, 100, 1000, 10000, 1 << 20} {
		got := calcTableLen(hint, defaultMaxLoadFactor)
		if got&(got-1) != 0 {
			t.Fatalf("calcTableLen(%d) = %d is not a power of 2", hint, got)
		}
		if got < minMapTableLen {
			t.Fatalf("calcTableLen(%d) = %d below minimum", hint, got)
		}
		if hint > growThreshold(got, defaultMaxLoadFactor) {
			t.Fatalf("calcTableLen(%d) = %d cannot hold the hint under the load factor", hint, got)
		}
	}
}

func TestNextPowOf2(t *testing.T) {
	cases := map[int]int{
		0: 1, 1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 8: 8, 9: 16, 1000: 1024,
	}
	for in, want := range cases {
		if got := nextPowOf2(in); got != want {
			t.Fatalf("nextPowOf2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSWARHelpers(t *testing.T) {
	if got := markZeroBytes(0); got != metaMask {
		t.Fatalf("markZeroBytes(0) = %#x, want %#x", got, metaMask)
	}
	// a fully occupied meta word has no zero bytes
	full := broadcast(0x81)
	if got := markZeroBytes(full); got != 0 {
		t.Fatalf("markZeroBytes(full) = %#x, want 0", got)
	}
	// a word XORed with itself matches everywhere
	if got := markZeroBytes(full ^ broadcast(0x81)); got != metaMask {
		t.Fatalf("self-match = %#x, want %#x", got, metaMask)
	}

	if got := setByte(0, 0xAB, 2); got != 0xAB0000 {
		t.Fatalf("setByte = %#x, want 0xAB0000", got)
	}
	w := setByte(broadcast(0x81), emptyMetaSlot, 1)
	if got := firstMarkedByteIndex(markZeroBytes(w)); got != 1 {
		t.Fatalf("first empty slot = %d, want 1", got)
	}

	if firstMarkedByteIndex(0x80) != 0 ||
		firstMarkedByteIndex(0x8000) != 1 ||
		firstMarkedByteIndex(0x800000) != 2 {
		t.Fatal("firstMarkedByteIndex returned wrong byte index")
	}

	if h2(0) & ^metaSlotMask != 0 || h2(0)&metaSlotMask == 0 {
		t.Fatalf("h2(0) = %#x must only carry the marker bit", h2(0))
	}
}

func TestIndexGrowthKeepsAllEntries(t *testing.T) {
	const numEntries = 100000
	m := NewLinkedMapOf[string, int]()
	initialBuckets := m.BucketCount()
	for i := 0; i < numEntries; i++ {
		m.Store(fmt.Sprintf("key-%d", i), i)
	}
	if m.BucketCount() <= initialBuckets {
		t.Fatalf("table did not grow: %d", m.BucketCount())
	}
	for i := 0; i < numEntries; i++ {
		v, ok := m.Load(fmt.Sprintf("key-%d", i))
		if !ok || v != i {
			t.Fatalf("value lost during growth for %d: %v %v", i, v, ok)
		}
	}
	stats := m.Stats()
	if stats.Size != numEntries {
		t.Fatalf("stats size %d, want %d", stats.Size, numEntries)
	}
}

func TestIndexOverflowChains(t *testing.T) {
	// a truncated hash forces every key into a handful of chains
	m := NewLinkedMapOfWithHasher[int, int](func(key int, _ uintptr) uintptr {
		return uintptr(key % 2)
	}, nil)
	const numEntries = 500
	for i := 0; i < numEntries; i++ {
		m.Store(i, i)
	}
	stats := m.Stats()
	if stats.TotalBuckets <= stats.RootBuckets {
		t.Fatal("expected overflow buckets")
	}
	for i := 0; i < numEntries; i++ {
		if v, ok := m.Load(i); !ok || v != i {
			t.Fatalf("value lost in chain for %d: %v %v", i, v, ok)
		}
	}
	for i := 0; i < numEntries; i++ {
		if _, loaded := m.LoadAndDelete(i); !loaded {
			t.Fatalf("delete missed %d", i)
		}
	}
	if m.Size() != 0 {
		t.Fatalf("map is not empty: %d", m.Size())
	}
}
