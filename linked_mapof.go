package omap

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"unsafe"

	list "github.com/bahlo/generic-list-go"
)

// LinkedMapOf is a hash map that remembers the order in which keys were
// first inserted. Iteration always yields entries in that order:
// updating the value of an existing key never moves it, and deleting a
// key simply drops it from the sequence. Lookup, insertion and deletion
// are O(1) on average, like a plain map.
//
// The design pairs two structures. A doubly linked list owns the
// entries and defines the traversal order; a hash index maps each key
// to its entry for constant-time access. The two are kept in lockstep
// by every mutating operation, so the entry set and the index never
// disagree.
//
// Key features of LinkedMapOf:
//   - Deterministic first-insertion-order traversal, forward and backward
//   - Zero-value usability, with lazy initialization on first use
//   - Defaults to Go's built-in hash function; both the hash function and
//     the key equality predicate are customizable on creation
//   - Stable entry handles: a *EntryOf stays valid until that entry is
//     deleted, unaffected by growth of the hash index or by mutations of
//     other keys
//   - sync.Map-flavored method names (Load, Store, LoadOrStore,
//     LoadAndDelete, Range) plus an ordered surface (Oldest, Newest,
//     All, Backward)
//
// A LinkedMapOf is not safe for concurrent use. It performs no internal
// locking; callers that share one across goroutines must synchronize
// externally.
type LinkedMapOf[K comparable, V any] struct {
	list         *list.List[*EntryOf[K, V]]
	buckets      []indexBucket[K, V]
	growAt       int
	totalGrowths int
	seed         uintptr
	keyHash      hashFunc
	keyEqual     equalFunc
	valEqual     equalFunc
	maxLoad      float64
	minTableLen  int // WithPresize
	intKey       bool
}

// EntryOf is one stored key/value pair. It doubles as the map's entry
// handle and iterator: an entry obtained from LoadEntry, LoadOrStoreEntry,
// Oldest or Newest stays valid until that entry is deleted, and steps to
// its in-order neighbors via Next and Prev.
//
// Value may be modified in place through the entry pointer. Key must
// never be modified; it is the copy the hash index is built on.
type EntryOf[K comparable, V any] struct {
	Key   K
	Value V

	element *list.Element[*EntryOf[K, V]]
}

// Next returns the entry inserted after e, or nil if e is the newest
// entry or has been deleted.
func (e *EntryOf[K, V]) Next() *EntryOf[K, V] {
	if e == nil || e.element == nil {
		return nil
	}
	if el := e.element.Next(); el != nil {
		return el.Value
	}
	return nil
}

// Prev returns the entry inserted before e, or nil if e is the oldest
// entry or has been deleted.
func (e *EntryOf[K, V]) Prev() *EntryOf[K, V] {
	if e == nil || e.element == nil {
		return nil
	}
	if el := e.element.Prev(); el != nil {
		return el.Value
	}
	return nil
}

// MapConfig defines configurable LinkedMapOf options.
type MapConfig struct {
	sizeHint      int
	maxLoadFactor float64
}

// WithPresize configures a new LinkedMapOf instance with capacity enough
// to hold sizeHint entries without growing. If sizeHint is zero or
// negative, the value is ignored.
func WithPresize(sizeHint int) func(*MapConfig) {
	return func(c *MapConfig) {
		c.sizeHint = sizeHint
	}
}

// WithMaxLoadFactor configures the fraction of index capacity at which
// the hash index grows. Values above 1 are allowed; overflow chaining
// absorbs the extra density. Non-positive values are ignored.
func WithMaxLoadFactor(f float64) func(*MapConfig) {
	return func(c *MapConfig) {
		if f > 0 {
			c.maxLoadFactor = f
		}
	}
}

// NewLinkedMapOf creates a new LinkedMapOf instance. Direct
// initialization of the zero value is also supported.
//
// Parameters:
//   - WithPresize option for initial capacity
//   - WithMaxLoadFactor option for the grow threshold
func NewLinkedMapOf[K comparable, V any](
	options ...func(*MapConfig),
) *LinkedMapOf[K, V] {
	return NewLinkedMapOfWithHasher[K, V](nil, nil, options...)
}

// NewLinkedMapOfWithHasher creates a LinkedMapOf with a custom key hash
// function and key equality predicate.
//
// Parameters:
//   - keyHash: nil uses the built-in hasher
//   - keyEqual: nil uses the built-in == comparison. A non-nil keyEqual
//     must be consistent with keyHash: equal keys must hash identically.
func NewLinkedMapOfWithHasher[K comparable, V any](
	keyHash func(key K, seed uintptr) uintptr,
	keyEqual func(a, b K) bool,
	options ...func(*MapConfig),
) *LinkedMapOf[K, V] {
	m := &LinkedMapOf[K, V]{}
	m.Init(keyHash, keyEqual, options...)
	return m
}

// NewLinkedMapOfFromEntries creates a LinkedMapOf holding the given
// entries in range order. Duplicate keys collapse to their first
// occurrence's position with the last-listed value.
func NewLinkedMapOfFromEntries[K comparable, V any](
	entries ...EntryOf[K, V],
) *LinkedMapOf[K, V] {
	m := NewLinkedMapOf[K, V](WithPresize(len(entries)))
	m.FromEntries(entries...)
	return m
}

// Init prepares the LinkedMapOf, allowing a custom key hash function
// (keyHash) and key equality predicate (keyEqual).
//
// Notes:
//   - Init may only be called before the LinkedMapOf is used.
//   - If Init is not called, the map initializes itself with the default
//     configuration on first use.
func (m *LinkedMapOf[K, V]) Init(
	keyHash func(key K, seed uintptr) uintptr,
	keyEqual func(a, b K) bool,
	options ...func(*MapConfig),
) {
	var cfg MapConfig
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.maxLoadFactor == 0 {
		cfg.maxLoadFactor = defaultMaxLoadFactor
	}

	m.seed = uintptr(rand.Uint64())
	m.keyHash, m.valEqual, m.intKey = defaultHasher[K, V]()
	if keyHash != nil {
		m.keyHash = func(ptr unsafe.Pointer, seed uintptr) uintptr {
			return keyHash(*(*K)(ptr), seed)
		}
		m.intKey = false
	}
	if keyEqual != nil {
		m.keyEqual = func(ptr, ptr2 unsafe.Pointer) bool {
			return keyEqual(*(*K)(ptr), *(*K)(ptr2))
		}
	}

	m.maxLoad = cfg.maxLoadFactor
	m.minTableLen = calcTableLen(cfg.sizeHint, m.maxLoad)
	m.buckets = make([]indexBucket[K, V], m.minTableLen)
	m.growAt = growThreshold(m.minTableLen, m.maxLoad)
	m.list = list.New[*EntryOf[K, V]]()
}

func (m *LinkedMapOf[K, V]) initSlow() {
	if m.list == nil {
		m.Init(nil, nil)
	}
}

// Load retrieves the value for a key, compatible with `sync.Map`.
func (m *LinkedMapOf[K, V]) Load(key K) (value V, ok bool) {
	if m.list == nil {
		return
	}
	hash := m.keyHash(noescape(unsafe.Pointer(&key)), m.seed)
	if e := m.findEntry(hash, &key); e != nil {
		return e.Value, true
	}
	return
}

// LoadEntry retrieves the entry for a key, or nil if the key is absent.
// The returned entry is the key's stable handle; see EntryOf.
func (m *LinkedMapOf[K, V]) LoadEntry(key K) *EntryOf[K, V] {
	if m.list == nil {
		return nil
	}
	hash := m.keyHash(noescape(unsafe.Pointer(&key)), m.seed)
	return m.findEntry(hash, &key)
}

// HasKey checks if the key exists.
func (m *LinkedMapOf[K, V]) HasKey(key K) bool {
	return m.LoadEntry(key) != nil
}

// At returns the value for a key that must be present. It panics if the
// key is absent; use Load when absence is an expected outcome.
func (m *LinkedMapOf[K, V]) At(key K) V {
	if e := m.LoadEntry(key); e != nil {
		return e.Value
	}
	panic("called At with a key not present in the map")
}

// EqualRange returns the entry for key together with its in-order
// successor, or (nil, nil) if the key is absent. Since keys are unique
// the matched range is at most one entry; the form mirrors multi-valued
// containers.
func (m *LinkedMapOf[K, V]) EqualRange(key K) (lo, hi *EntryOf[K, V]) {
	lo = m.LoadEntry(key)
	if lo != nil {
		hi = lo.Next()
	}
	return
}

// LoadOrStoreEntry returns the existing entry for the key if present;
// otherwise it appends a new entry with the given value at the tail and
// returns it. The loaded result is true if the key was already present.
//
// This is the primitive the insertion-order guarantee rests on: an
// already-present key never produces a new entry, so its position never
// changes.
func (m *LinkedMapOf[K, V]) LoadOrStoreEntry(key K, value V) (e *EntryOf[K, V], loaded bool) {
	m.initSlow()
	hash := m.keyHash(noescape(unsafe.Pointer(&key)), m.seed)
	if e = m.findEntry(hash, &key); e != nil {
		return e, true
	}
	e = &EntryOf[K, V]{Key: key, Value: value}
	e.element = m.list.PushBack(e)
	m.indexEntry(hash, e)
	return e, false
}

// LoadOrStore returns the existing value for the key if present.
// Otherwise, it stores and returns the given value. The loaded result is
// true if the value was loaded, false if stored. Compatible with
// `sync.Map`.
func (m *LinkedMapOf[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	e, loaded := m.LoadOrStoreEntry(key, value)
	return e.Value, loaded
}

// LoadOrStoreFn is like LoadOrStore but computes the value to store only
// when the key is absent.
func (m *LinkedMapOf[K, V]) LoadOrStoreFn(key K, valueFn func() V) (actual V, loaded bool) {
	m.initSlow()
	hash := m.keyHash(noescape(unsafe.Pointer(&key)), m.seed)
	if e := m.findEntry(hash, &key); e != nil {
		return e.Value, true
	}
	e := &EntryOf[K, V]{Key: key, Value: valueFn()}
	e.element = m.list.PushBack(e)
	m.indexEntry(hash, e)
	return e.Value, false
}

// LoadOrCreateEntry returns the entry for the key, creating one holding
// the zero value at the tail when the key is absent. It is the indexing
// accessor: mutate the value in place through &e.Value. The loaded
// result distinguishes a found entry (true) from a created one (false).
func (m *LinkedMapOf[K, V]) LoadOrCreateEntry(key K) (e *EntryOf[K, V], loaded bool) {
	var zero V
	return m.LoadOrStoreEntry(key, zero)
}

// Store sets the value for a key, compatible with `sync.Map`. An
// existing key keeps its position in the insertion order; only its
// value changes.
func (m *LinkedMapOf[K, V]) Store(key K, value V) {
	m.Swap(key, value)
}

// Swap stores the value for a key and returns the previous value if
// any, compatible with `sync.Map`. An existing key keeps its position.
func (m *LinkedMapOf[K, V]) Swap(key K, value V) (previous V, loaded bool) {
	m.initSlow()
	hash := m.keyHash(noescape(unsafe.Pointer(&key)), m.seed)
	if e := m.findEntry(hash, &key); e != nil {
		previous = e.Value
		e.Value = value
		return previous, true
	}
	e := &EntryOf[K, V]{Key: key, Value: value}
	e.element = m.list.PushBack(e)
	m.indexEntry(hash, e)
	return
}

// Delete deletes the value for a key, compatible with `sync.Map`.
// Deleting an absent key is a no-op.
func (m *LinkedMapOf[K, V]) Delete(key K) {
	m.LoadAndDelete(key)
}

// LoadAndDelete deletes the value for a key, returning the previous
// value if any. The loaded result reports whether the key was present.
// Compatible with `sync.Map`.
//
// Removal unregisters the key from the hash index and unlinks its entry
// in one step, so no caller ever observes the two structures disagreeing.
func (m *LinkedMapOf[K, V]) LoadAndDelete(key K) (value V, loaded bool) {
	if m.list == nil {
		return
	}
	hash := m.keyHash(noescape(unsafe.Pointer(&key)), m.seed)
	e := m.unindex(hash, &key)
	if e == nil {
		return
	}
	m.list.Remove(e.element)
	e.element = nil
	return e.Value, true
}

// DeleteEntry deletes the given entry from the map. It reports whether
// the entry was removed; an entry that was already deleted is a no-op.
// The entry must belong to this map.
func (m *LinkedMapOf[K, V]) DeleteEntry(e *EntryOf[K, V]) bool {
	if e == nil || e.element == nil || m.list == nil {
		return false
	}
	hash := m.keyHash(noescape(unsafe.Pointer(&e.Key)), m.seed)
	if m.unindex(hash, &e.Key) == nil {
		return false
	}
	m.list.Remove(e.element)
	e.element = nil
	return true
}

// DeleteRange deletes the entries in [from, to), following insertion
// order, and returns the number deleted. A nil to deletes through the
// newest entry. DeleteRange panics if to is not reachable from from,
// which indicates the caller's range is invalid.
func (m *LinkedMapOf[K, V]) DeleteRange(from, to *EntryOf[K, V]) int {
	if from == nil {
		if to != nil {
			panic("called DeleteRange with an end entry not reachable from the start")
		}
		return 0
	}
	var n int
	for e := from; e != to; {
		if e == nil {
			panic("called DeleteRange with an end entry not reachable from the start")
		}
		next := e.Next()
		if m.DeleteEntry(e) {
			n++
		}
		e = next
	}
	return n
}

// Clear deletes all keys and values, compatible with `sync.Map`. The
// hash index shrinks back to its initial capacity. Entry handles
// obtained earlier are invalidated.
func (m *LinkedMapOf[K, V]) Clear() {
	if m.list == nil {
		return
	}
	for el := m.list.Front(); el != nil; el = el.Next() {
		el.Value.element = nil
	}
	m.list.Init()
	m.buckets = make([]indexBucket[K, V], m.minTableLen)
	m.growAt = growThreshold(m.minTableLen, m.maxLoad)
}

// SwapWith exchanges the entire contents and configuration of two maps
// in O(1). Entry handles keep working and resolve into the map that now
// holds them.
func (m *LinkedMapOf[K, V]) SwapWith(other *LinkedMapOf[K, V]) {
	*m, *other = *other, *m
}

// Size returns the number of key-value pairs in the map. This is an
// O(1) operation.
func (m *LinkedMapOf[K, V]) Size() int {
	if m.list == nil {
		return 0
	}
	return m.list.Len()
}

// IsZero checks if the map is empty.
func (m *LinkedMapOf[K, V]) IsZero() bool {
	return m.Size() == 0
}

// Oldest returns the first-inserted entry, or nil if the map is empty.
func (m *LinkedMapOf[K, V]) Oldest() *EntryOf[K, V] {
	if m.list == nil {
		return nil
	}
	if el := m.list.Front(); el != nil {
		return el.Value
	}
	return nil
}

// Newest returns the most recently inserted entry, or nil if the map is
// empty.
func (m *LinkedMapOf[K, V]) Newest() *EntryOf[K, V] {
	if m.list == nil {
		return nil
	}
	if el := m.list.Back(); el != nil {
		return el.Value
	}
	return nil
}

// RangeEntry iterates over all entries in insertion order.
//
// Notes:
//   - Never modify the Key in an entry under any circumstances.
//   - The entry being yielded may be deleted during iteration; entries
//     not yet visited must not be.
func (m *LinkedMapOf[K, V]) RangeEntry(yield func(e *EntryOf[K, V]) bool) {
	if m.list == nil {
		return
	}
	for el := m.list.Front(); el != nil; {
		next := el.Next()
		if !yield(el.Value) {
			return
		}
		el = next
	}
}

// Range iterates over all key-value pairs in insertion order,
// compatible with `sync.Map`.
func (m *LinkedMapOf[K, V]) Range(yield func(key K, value V) bool) {
	m.RangeEntry(func(e *EntryOf[K, V]) bool {
		return yield(e.Key, e.Value)
	})
}

// RangeKeys iterates over all keys in insertion order.
func (m *LinkedMapOf[K, V]) RangeKeys(yield func(key K) bool) {
	m.RangeEntry(func(e *EntryOf[K, V]) bool {
		return yield(e.Key)
	})
}

// RangeValues iterates over all values in insertion order.
func (m *LinkedMapOf[K, V]) RangeValues(yield func(value V) bool) {
	m.RangeEntry(func(e *EntryOf[K, V]) bool {
		return yield(e.Value)
	})
}

// RangeBackward iterates over all key-value pairs in reverse insertion
// order.
func (m *LinkedMapOf[K, V]) RangeBackward(yield func(key K, value V) bool) {
	if m.list == nil {
		return
	}
	for el := m.list.Back(); el != nil; {
		prev := el.Prev()
		if !yield(el.Value.Key, el.Value.Value) {
			return
		}
		el = prev
	}
}

// All is the iterator version for iterating over all key-value pairs in
// insertion order.
func (m *LinkedMapOf[K, V]) All() func(yield func(K, V) bool) {
	return m.Range
}

// Backward is the iterator version for iterating over all key-value
// pairs in reverse insertion order.
func (m *LinkedMapOf[K, V]) Backward() func(yield func(K, V) bool) {
	return m.RangeBackward
}

// Keys is the iterator version for iterating over all keys in insertion
// order.
func (m *LinkedMapOf[K, V]) Keys() func(yield func(K) bool) {
	return m.RangeKeys
}

// Values is the iterator version for iterating over all values in
// insertion order.
func (m *LinkedMapOf[K, V]) Values() func(yield func(V) bool) {
	return m.RangeValues
}

// ToMap collects all entries and returns a map[K]V.
func (m *LinkedMapOf[K, V]) ToMap() map[K]V {
	a := make(map[K]V, m.Size())
	m.RangeEntry(func(e *EntryOf[K, V]) bool {
		a[e.Key] = e.Value
		return true
	})
	return a
}

// FromMap imports key-value pairs from a standard Go map. The iteration
// order of source is unspecified, and so is the resulting insertion
// order of keys that were not already present.
func (m *LinkedMapOf[K, V]) FromMap(source map[K]V) {
	for k, v := range source {
		m.Store(k, v)
	}
}

// FromEntries stores the given entries in range order. Keys already
// present keep their position and take the new value; duplicates within
// entries collapse to the first occurrence's position with the
// last-listed value.
func (m *LinkedMapOf[K, V]) FromEntries(entries ...EntryOf[K, V]) {
	for i := range entries {
		m.Store(entries[i].Key, entries[i].Value)
	}
}

// Clone creates a deep copy of the map: same configuration, same
// entries in the same order. Entry handles of the original resolve into
// the original only.
func (m *LinkedMapOf[K, V]) Clone() *LinkedMapOf[K, V] {
	clone := &LinkedMapOf[K, V]{
		seed:        m.seed,
		keyHash:     m.keyHash,
		keyEqual:    m.keyEqual,
		valEqual:    m.valEqual,
		maxLoad:     m.maxLoad,
		minTableLen: m.minTableLen,
		intKey:      m.intKey,
	}
	if m.list == nil {
		return clone
	}
	tableLen := max(calcTableLen(m.Size(), m.maxLoad), m.minTableLen)
	clone.buckets = make([]indexBucket[K, V], tableLen)
	clone.growAt = growThreshold(tableLen, clone.maxLoad)
	clone.list = list.New[*EntryOf[K, V]]()
	m.RangeEntry(func(e *EntryOf[K, V]) bool {
		ce := &EntryOf[K, V]{Key: e.Key, Value: e.Value}
		ce.element = clone.list.PushBack(ce)
		hash := clone.keyHash(noescape(unsafe.Pointer(&ce.Key)), clone.seed)
		placeEntry(clone.buckets, hash, clone.intKey, ce)
		return true
	})
	return clone
}

// Equal reports whether two maps hold pairwise-equal (key, value)
// entries in the same insertion order. Two maps with equal contents in
// different orders are not equal. A nil or unused other compares equal
// to an empty map.
//
// Equal compares values with Go's built-in equality and panics if V is
// not a comparable type; use EqualFunc in that case.
func (m *LinkedMapOf[K, V]) Equal(other *LinkedMapOf[K, V]) bool {
	m.initSlow()
	if m.valEqual == nil {
		panic("called Equal when value is not of comparable type")
	}
	return m.EqualFunc(other, func(a, b V) bool {
		return m.valEqual(noescape(unsafe.Pointer(&a)), noescape(unsafe.Pointer(&b)))
	})
}

// EqualFunc is like Equal but compares values with valEq.
func (m *LinkedMapOf[K, V]) EqualFunc(other *LinkedMapOf[K, V], valEq func(a, b V) bool) bool {
	if other == nil {
		return m.Size() == 0
	}
	if m.Size() != other.Size() {
		return false
	}
	a, b := m.Oldest(), other.Oldest()
	for a != nil && b != nil {
		if !m.keysEqual(&a.Key, &b.Key) || !valEq(a.Value, b.Value) {
			return false
		}
		a, b = a.Next(), b.Next()
	}
	return a == nil && b == nil
}

// String implements the formatting output interface fmt.Stringer.
// Entries render in insertion order; output is capped at 1024 entries.
func (m *LinkedMapOf[K, V]) String() string {
	const limit = 1024
	var sb strings.Builder
	sb.WriteString("LinkedMapOf[")
	n := 0
	m.RangeEntry(func(e *EntryOf[K, V]) bool {
		if n > 0 {
			sb.WriteByte(' ')
		}
		_, _ = fmt.Fprintf(&sb, "%v:%v", e.Key, e.Value)
		n++
		return n < limit
	})
	sb.WriteByte(']')
	return sb.String()
}
