package omap

import (
	"fmt"
	"math"
	"strings"
)

// Capacity tuning for the hash index. These knobs only affect the
// index; entries and their handles are untouched by any of them.

// BucketCount returns the number of root buckets in the hash index, or
// 0 for an unused map.
func (m *LinkedMapOf[K, V]) BucketCount() int {
	return len(m.buckets)
}

// LoadFactor returns the current fraction of index slot capacity in
// use. Overflow chaining can push it past MaxLoadFactor momentarily;
// the next insertion grows the table.
func (m *LinkedMapOf[K, V]) LoadFactor() float64 {
	if len(m.buckets) == 0 {
		return 0
	}
	return float64(m.Size()) / float64(len(m.buckets)*entriesPerBucket)
}

// MaxLoadFactor returns the load factor at which the index grows.
func (m *LinkedMapOf[K, V]) MaxLoadFactor() float64 {
	if m.maxLoad == 0 {
		return defaultMaxLoadFactor
	}
	return m.maxLoad
}

// SetMaxLoadFactor changes the grow threshold. Values above 1 are
// allowed; overflow chaining absorbs the extra density. SetMaxLoadFactor
// panics on non-positive values. If the map is already denser than the
// new threshold, the index grows immediately.
func (m *LinkedMapOf[K, V]) SetMaxLoadFactor(f float64) {
	if f <= 0 {
		panic("called SetMaxLoadFactor with a non-positive factor")
	}
	m.initSlow()
	m.maxLoad = f
	m.growAt = growThreshold(len(m.buckets), f)
	if m.Size() > m.growAt {
		m.Rehash(calcTableLen(m.Size(), f))
	}
}

// Rehash sets the root bucket count to at least n (rounded up to a
// power of 2) and no smaller than the map needs for its current size,
// then rebuilds the index. Entry handles remain valid.
func (m *LinkedMapOf[K, V]) Rehash(n int) {
	m.initSlow()
	newLen := max(nextPowOf2(n), calcTableLen(m.Size(), m.maxLoad), m.minTableLen)
	m.rehashTo(newLen)
}

// Reserve grows the index so that n entries fit without further
// growth. Entry handles remain valid.
func (m *LinkedMapOf[K, V]) Reserve(n int) {
	m.initSlow()
	m.Rehash(calcTableLen(n, m.maxLoad))
}

// Stats returns statistics for the hash index. Just like other map
// methods, this one is thread-unsafe and invokes no synchronization.
func (m *LinkedMapOf[K, V]) Stats() MapStats {
	stats := MapStats{
		TotalGrowths: m.totalGrowths,
		MinEntries:   math.MaxInt,
	}
	if len(m.buckets) == 0 {
		stats.MinEntries = 0
		return stats
	}
	stats.RootBuckets = len(m.buckets)
	for i := range m.buckets {
		nentries := 0
		for b := &m.buckets[i]; b != nil; b = b.next {
			stats.TotalBuckets++
			nentriesLocal := 0
			stats.Capacity += entriesPerBucket
			for markedw := b.meta & metaMask; markedw != 0; markedw &= markedw - 1 {
				idx := firstMarkedByteIndex(markedw)
				if b.entries[idx] != nil {
					stats.Size++
					nentriesLocal++
				}
			}
			nentries += nentriesLocal
			if nentriesLocal == 0 {
				stats.EmptyBuckets++
			}
		}
		if nentries < stats.MinEntries {
			stats.MinEntries = nentries
		}
		if nentries > stats.MaxEntries {
			stats.MaxEntries = nentries
		}
	}
	return stats
}

// MapStats is LinkedMapOf hash index statistics.
//
// Warning: map statistics are intended to be used for diagnostic
// purposes, not for production code. This means that breaking changes
// may be introduced into this struct even between minor releases.
type MapStats struct {
	// RootBuckets is the number of root buckets in the hash index.
	// Each bucket holds a few entry pointers.
	RootBuckets int
	// TotalBuckets is the total number of buckets in the hash index,
	// including root and their chained buckets.
	TotalBuckets int
	// EmptyBuckets is the number of buckets that hold no entries.
	EmptyBuckets int
	// Capacity is the total number of entry pointers that all buckets
	// can physically hold. This number does not consider the load
	// factor.
	Capacity int
	// Size is the exact number of entries indexed.
	Size int
	// MinEntries is the minimum number of entries per a chain of
	// buckets, i.e. a root bucket and its chained buckets.
	MinEntries int
	// MaxEntries is the maximum number of entries per a chain of
	// buckets, i.e. a root bucket and its chained buckets.
	MaxEntries int
	// TotalGrowths is the number of times the hash index grew.
	TotalGrowths int
}

// ToString returns string representation of map stats.
func (s *MapStats) ToString() string {
	var sb strings.Builder
	sb.WriteString("MapStats{\n")
	sb.WriteString(fmt.Sprintf("RootBuckets:  %d\n", s.RootBuckets))
	sb.WriteString(fmt.Sprintf("TotalBuckets: %d\n", s.TotalBuckets))
	sb.WriteString(fmt.Sprintf("EmptyBuckets: %d\n", s.EmptyBuckets))
	sb.WriteString(fmt.Sprintf("Capacity:     %d\n", s.Capacity))
	sb.WriteString(fmt.Sprintf("Size:         %d\n", s.Size))
	sb.WriteString(fmt.Sprintf("MinEntries:   %d\n", s.MinEntries))
	sb.WriteString(fmt.Sprintf("MaxEntries:   %d\n", s.MaxEntries))
	sb.WriteString(fmt.Sprintf("TotalGrowths: %d\n", s.TotalGrowths))
	sb.WriteString("}\n")
	return sb.String()
}
