package omap

import (
	"math/bits"
	"unsafe"
)

// The hash index maps a key to the *EntryOf holding it. It is a
// single-writer hash table in the cache-line bucket style: each bucket
// packs one meta byte per slot into a single uint64 word, so probing a
// bucket is a couple of SWAR operations instead of a slot-by-slot walk.
// Buckets overflow into a chain when full.
//
// The index never stores keys or values of its own. Slots hold entry
// pointers only, which is what makes entry handles immune to rehashing:
// a resize redistributes pointers across new buckets and moves nothing
// else.

const (
	// entriesPerBucket is calculated so that a bucket fits within a cache
	// line, capped at 8, the limit supported by the meta word.
	entriesPerBucket = min(8, (int(CacheLineSize)-int(unsafe.Sizeof(struct {
		meta uint64
		next unsafe.Pointer
	}{})))/int(unsafe.Sizeof(unsafe.Pointer(nil))))

	emptyMeta     uint64 = 0
	emptyMetaSlot uint8  = 0
	metaMask      uint64 = 0x8080808080808080 >> (64 - min(entriesPerBucket*8, 64))
	metaSlotMask  uint8  = 0x80
)

const (
	// defaultMaxLoadFactor is the fraction of slot capacity that triggers
	// a table grow during insertion. Tunable per map, see SetMaxLoadFactor.
	defaultMaxLoadFactor = 0.75
	// minMapTableLen is the minimum bucket count. The minimum map capacity
	// is minMapTableLen*entriesPerBucket.
	minMapTableLen = 8
)

// indexBucket is a single cache-line-sized bucket of the hash index.
type indexBucket[K comparable, V any] struct {
	meta    uint64 // one h2 byte per slot for SWAR lookups
	entries [entriesPerBucket]*EntryOf[K, V]
	next    *indexBucket[K, V]
}

// calcTableLen computes the bucket count needed to hold sizeHint entries
// without exceeding the load factor. The result is a power of 2.
func calcTableLen(sizeHint int, maxLoad float64) int {
	tableLen := minMapTableLen
	if sizeHint > int(float64(minMapTableLen*entriesPerBucket)*maxLoad) {
		tableLen = nextPowOf2(int((float64(sizeHint) / float64(entriesPerBucket)) / maxLoad))
	}
	return tableLen
}

// growThreshold is the entry count at which a table of tableLen buckets
// must grow.
func growThreshold(tableLen int, maxLoad float64) int {
	return int(float64(tableLen*entriesPerBucket) * maxLoad)
}

// findEntry locates the entry for key in the index, or nil.
func (m *LinkedMapOf[K, V]) findEntry(hash uintptr, key *K) *EntryOf[K, V] {
	h2w := broadcast(h2(hash))
	bidx := uintptr(len(m.buckets)-1) & h1(hash, m.intKey)
	for b := &m.buckets[bidx]; b != nil; b = b.next {
		for markedw := markZeroBytes(b.meta ^ h2w); markedw != 0; markedw &= markedw - 1 {
			idx := firstMarkedByteIndex(markedw)
			if e := b.entries[idx]; e != nil {
				if m.keysEqual(&e.Key, key) {
					return e
				}
			}
		}
	}
	return nil
}

// indexEntry registers an entry in the index, growing the table first if
// the new size would exceed the load factor. The entry must not already
// be present.
func (m *LinkedMapOf[K, V]) indexEntry(hash uintptr, e *EntryOf[K, V]) {
	if m.list.Len() > m.growAt {
		m.rehashTo(len(m.buckets) << 1)
		m.totalGrowths++
	}
	placeEntry(m.buckets, hash, m.intKey, e)
}

// unindex removes the mapping for key and returns the entry that was
// indexed, or nil if the key is absent.
func (m *LinkedMapOf[K, V]) unindex(hash uintptr, key *K) *EntryOf[K, V] {
	h2w := broadcast(h2(hash))
	bidx := uintptr(len(m.buckets)-1) & h1(hash, m.intKey)
	for b := &m.buckets[bidx]; b != nil; b = b.next {
		for markedw := markZeroBytes(b.meta ^ h2w); markedw != 0; markedw &= markedw - 1 {
			idx := firstMarkedByteIndex(markedw)
			if e := b.entries[idx]; e != nil {
				if m.keysEqual(&e.Key, key) {
					b.meta = setByte(b.meta, emptyMetaSlot, idx)
					b.entries[idx] = nil
					return e
				}
			}
		}
	}
	return nil
}

// rehashTo rebuilds the index with newLen buckets. Entry pointers are
// redistributed; the entries themselves, and therefore all handles held
// by callers, stay where they are.
func (m *LinkedMapOf[K, V]) rehashTo(newLen int) {
	newBuckets := make([]indexBucket[K, V], newLen)
	for i := range m.buckets {
		for b := &m.buckets[i]; b != nil; b = b.next {
			for markedw := b.meta & metaMask; markedw != 0; markedw &= markedw - 1 {
				idx := firstMarkedByteIndex(markedw)
				if e := b.entries[idx]; e != nil {
					hash := m.keyHash(noescape(unsafe.Pointer(&e.Key)), m.seed)
					placeEntry(newBuckets, hash, m.intKey, e)
				}
			}
		}
	}
	m.buckets = newBuckets
	m.growAt = growThreshold(newLen, m.maxLoad)
}

// placeEntry stores an entry pointer into the first free slot of its
// bucket chain, appending an overflow bucket when the chain is full.
func placeEntry[K comparable, V any](
	buckets []indexBucket[K, V],
	hash uintptr,
	intKey bool,
	e *EntryOf[K, V],
) {
	h2v := h2(hash)
	bidx := uintptr(len(buckets)-1) & h1(hash, intKey)
	b := &buckets[bidx]
	for {
		if emptyw := markZeroBytes(b.meta); emptyw != 0 {
			idx := firstMarkedByteIndex(emptyw)
			b.meta = setByte(b.meta, h2v, idx)
			b.entries[idx] = e
			return
		}
		if b.next == nil {
			nb := &indexBucket[K, V]{meta: setByte(emptyMeta, h2v, 0)}
			nb.entries[0] = e
			b.next = nb
			return
		}
		b = b.next
	}
}

// keysEqual compares two keys with the configured equality predicate,
// falling back to == when none was supplied.
func (m *LinkedMapOf[K, V]) keysEqual(a, b *K) bool {
	if m.keyEqual != nil {
		return m.keyEqual(noescape(unsafe.Pointer(a)), noescape(unsafe.Pointer(b)))
	}
	return *a == *b
}

// nextPowOf2 calculates the smallest power of 2 that is greater than or
// equal to n. Compatible with both 32-bit and 64-bit systems.
func nextPowOf2(n int) int {
	if n <= 0 {
		return 1
	}

	if bits.UintSize == 32 {
		v := uint32(n)
		v--
		v |= v >> 1
		v |= v >> 2
		v |= v >> 4
		v |= v >> 8
		v |= v >> 16
		v++
		return int(v)
	}

	v := uint64(n)
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	v++
	return int(v)
}

// h1 extracts the bucket index from a hash value. Integer keys use a
// small right shift so that runs of sequential keys spread across
// buckets at roughly the per-bucket capacity; hashed keys shift further
// since their high bits carry more entropy.
func h1(h uintptr, intKey bool) uintptr {
	if intKey {
		return h >> 2
	}
	return h >> 7
}

// h2 extracts the byte-level hash for in-bucket lookups. The marker bit
// distinguishes an occupied slot from an empty one.
func h2(h uintptr) uint8 {
	return uint8(h) | metaSlotMask
}

// broadcast replicates a byte value across all bytes of an uint64.
func broadcast(b uint8) uint64 {
	return 0x101010101010101 * uint64(b)
}

// firstMarkedByteIndex finds the index of the first marked byte in an
// uint64.
func firstMarkedByteIndex(w uint64) int {
	return bits.TrailingZeros64(w) >> 3
}

// markZeroBytes implements SWAR byte search: the result has the most
// significant bit of each byte set if that byte of w is zero, masked to
// the valid slot positions. May produce false positives (e.g. for
// 0x0100), so matches must be verified.
func markZeroBytes(w uint64) uint64 {
	return (w - 0x0101010101010101) & (^w) & metaMask
}

// setByte sets the byte at index idx in the uint64 w to the value b.
func setByte(w uint64, b uint8, idx int) uint64 {
	shift := idx << 3
	return (w &^ (0xff << shift)) | (uint64(b) << shift)
}
