// Package internal holds helpers shared by the secureudp packages.
package internal

import (
	"hash/fnv"
	"sync"

	"github.com/riobard/go-bloom"
)

// Defaults sized for a receiver that remembers roughly the last million
// delivered nonces.
const (
	DefaultSlots    = 10
	DefaultCapacity = 1e6
	DefaultFPR      = 1e-6
)

// simply use Double FNV here as our Bloom Filter hash
func doubleFNV(b []byte) (uint64, uint64) {
	hx := fnv.New64()
	hx.Write(b)
	x := hx.Sum64()
	hy := fnv.New64a()
	hy.Write(b)
	y := hy.Sum64()
	return x, y
}

// BloomRing is a rotating set of Bloom filters. When the active slot is full
// the oldest slot is cleared and reused, so memory stays fixed and old
// entries are forgotten a slot at a time.
type BloomRing struct {
	slotCapacity int
	slotPosition int
	slotCount    int
	entryCounter int
	slots        []bloom.Filter
	mu           sync.RWMutex
}

// NewBloomRing spreads capacity entries over slot filters.
func NewBloomRing(slot, capacity int, falsePositiveRate float64) *BloomRing {
	if slot < 1 {
		slot = 1
	}
	r := &BloomRing{
		slotCapacity: capacity / slot,
		slotCount:    slot,
		slots:        make([]bloom.Filter, slot),
	}
	if r.slotCapacity < 1 {
		r.slotCapacity = 1
	}
	for i := 0; i < slot; i++ {
		r.slots[i] = bloom.New(r.slotCapacity, falsePositiveRate, doubleFNV)
	}
	return r
}

// Add records b.
func (r *BloomRing) Add(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(b)
}

func (r *BloomRing) add(b []byte) {
	slot := r.slots[r.slotPosition]
	if r.entryCounter >= r.slotCapacity {
		r.slotPosition = (r.slotPosition + 1) % r.slotCount
		slot = r.slots[r.slotPosition]
		slot.Reset()
		r.entryCounter = 0
	}
	r.entryCounter++
	slot.Add(b)
}

// Test reports whether b may have been added.
func (r *BloomRing) Test(b []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.test(b)
}

func (r *BloomRing) test(b []byte) bool {
	for _, s := range r.slots {
		if s.Test(b) {
			return true
		}
	}
	return false
}

// TestAndAdd reports whether b may have been added before and records it.
// The check and the insert happen under one lock.
func (r *BloomRing) TestAndAdd(b []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.test(b) {
		return true
	}
	r.add(b)
	return false
}
