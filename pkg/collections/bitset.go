// Package collections holds the small containers the collector builds on.
package collections

import "math/bits"

// Bitset is a growable set of arena slot indexes, one bit per slot. Heap
// verification uses it as the visited set of its reachability walk.
type Bitset struct {
	words []uint64
	size  int
}

// NewBitset creates a bitset with room for indexes below size.
func NewBitset(size int) *Bitset {
	size = max(size, 64)
	return &Bitset{words: make([]uint64, (size+63)>>6), size: size}
}

func locate(i int) (int, uint64) {
	return i >> 6, 1 << uint(i&63)
}

// Set adds i, growing the set when needed. Negative indexes are ignored.
func (b *Bitset) Set(i int) {
	b.TestAndSet(i)
}

// TestAndSet adds i and reports whether it was already present.
func (b *Bitset) TestAndSet(i int) bool {
	if i < 0 {
		return false
	}
	w, m := locate(i)
	if w >= len(b.words) {
		b.words = append(b.words, make([]uint64, max(w+1, 2*len(b.words))-len(b.words))...)
	}
	b.size = max(b.size, i+1)
	had := b.words[w]&m != 0
	b.words[w] |= m
	return had
}

func (b *Bitset) Clear(i int) {
	if w, m := locate(i); i >= 0 && w < len(b.words) {
		b.words[w] &^= m
	}
}

func (b *Bitset) Test(i int) bool {
	w, m := locate(i)
	return i >= 0 && w < len(b.words) && b.words[w]&m != 0
}

// Count returns the number of members.
func (b *Bitset) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Size returns one past the highest index the set has room for.
func (b *Bitset) Size() int {
	return b.size
}

// Reset empties the set, keeping its storage.
func (b *Bitset) Reset() {
	clear(b.words)
}
