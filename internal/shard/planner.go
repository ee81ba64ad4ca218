// Package shard partitions a document's pages into contiguous shards that
// can be rasterized in parallel.
package shard

import (
	"runtime"
	"sort"

	"github.com/shirou/gopsutil/v3/cpu"
)

// MaxKeys bounds the shard-key space and therefore the number of shards.
const MaxKeys = 25

// minPagesPerCore is the smallest share of pages that makes a core worth using.
const minPagesPerCore = 3

// Key identifies a shard. Keys only carry ordering: a lower key always holds
// lower page numbers.
type Key uint8

// Token renders the key as its filename prefix ("a" for key 0).
func (k Key) Token() string {
	return string(rune('a' + int(k)))
}

// Shard is a contiguous, ascending run of 1-based page numbers.
type Shard struct {
	Key   Key
	Pages []int
}

// First returns the first page of the shard.
func (s Shard) First() int {
	return s.Pages[0]
}

// Last returns the last page of the shard.
func (s Shard) Last() int {
	return s.Pages[len(s.Pages)-1]
}

// Plan decides whether a document is worth sharding and, if so, partitions
// it. ok is false ("do not shard") when the page count is unknown (<= 0) or
// when each core would get fewer than about three pages.
func Plan(pages, cores int) (shards []Shard, ok bool) {
	if pages <= 0 {
		return nil, false
	}
	c := capCores(cores)
	if float64(pages)/minPagesPerCore <= float64(c) {
		return nil, false
	}
	return Partition(pages, c), true
}

// Partition splits pages 1..pages into at most cores shards of near-equal
// size. Slots are filled from the last key down, consuming pages from the
// end of the document, so any shortfall lands on the lowest keys; empty
// slots are dropped.
func Partition(pages, cores int) []Shard {
	if pages <= 0 {
		return nil
	}
	c := capCores(cores)
	perCore := (pages + c - 1) / c

	slots := make([][]int, c)
	next := pages
	for k := c - 1; k >= 0; k-- {
		for i := 0; i < perCore && next >= 1; i++ {
			slots[k] = append(slots[k], next)
			next--
		}
	}

	shards := make([]Shard, 0, c)
	for k, slot := range slots {
		if len(slot) == 0 {
			continue
		}
		sort.Ints(slot)
		shards = append(shards, Shard{Key: Key(k), Pages: slot})
	}
	return shards
}

// CoreCount reports the number of physical cores, falling back to logical
// CPUs when the host does not expose a physical count.
func CoreCount() int {
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func capCores(cores int) int {
	if cores < 1 {
		return 1
	}
	if cores > MaxKeys {
		return MaxKeys
	}
	return cores
}
