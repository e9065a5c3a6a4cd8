package models

import (
	"sort"
)

type LotKey struct {
	Name     string
	Category ComponentCategory
	Location Location
}

// LotIndex holds lots in an arena with a per-key list of arena positions kept in FIFO order.
// It makes consumption order explicit instead of relying on row order from the database.
type LotIndex struct {
	arena []ComponentRecord
	index map[LotKey][]int
	keys  []LotKey
}

func NewLotIndex(lots []ComponentRecord) *LotIndex {
	idx := &LotIndex{index: make(map[LotKey][]int)}
	for _, lot := range lots {
		idx.Add(lot)
	}
	return idx
}

func lotBefore(a, b *ComponentRecord) bool {
	if !a.ReceivedAt.Equal(b.ReceivedAt) {
		return a.ReceivedAt.Before(b.ReceivedAt)
	}
	return a.ID < b.ID
}

// Add places lot in the arena and inserts its position into its key's FIFO list.
func (idx *LotIndex) Add(lot ComponentRecord) {
	pos := len(idx.arena)
	idx.arena = append(idx.arena, lot)
	key := lot.Key()
	positions, seen := idx.index[key]
	if !seen {
		idx.keys = append(idx.keys, key)
	}
	at := sort.Search(len(positions), func(i int) bool {
		return lotBefore(&idx.arena[pos], &idx.arena[positions[i]])
	})
	positions = append(positions, 0)
	copy(positions[at+1:], positions[at:])
	positions[at] = pos
	idx.index[key] = positions
}

// Keys returns keys in the order they were first seen.
func (idx *LotIndex) Keys() []LotKey {
	return idx.keys
}

// Lots returns pointers into the arena for key, oldest first. A later Add may invalidate them.
func (idx *LotIndex) Lots(key LotKey) []*ComponentRecord {
	positions := idx.index[key]
	out := make([]*ComponentRecord, 0, len(positions))
	for _, p := range positions {
		out = append(out, &idx.arena[p])
	}
	return out
}

// Merged returns the lots of all keys interleaved in FIFO order.
func (idx *LotIndex) Merged(keys ...LotKey) []*ComponentRecord {
	var out []*ComponentRecord
	for _, k := range keys {
		out = append(out, idx.Lots(k)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return lotBefore(out[i], out[j]) })
	return out
}

func (idx *LotIndex) Available(keys ...LotKey) int {
	total := 0
	for _, k := range keys {
		for _, p := range idx.index[k] {
			total += idx.arena[p].Quantity
		}
	}
	return total
}

// Newest returns the most recently received lot for key that still holds stock, or nil.
func (idx *LotIndex) Newest(key LotKey) *ComponentRecord {
	positions := idx.index[key]
	for i := len(positions) - 1; i >= 0; i-- {
		if lot := &idx.arena[positions[i]]; lot.Quantity > 0 {
			return lot
		}
	}
	return nil
}

// Find returns the arena copy of the lot with id under key, or nil.
func (idx *LotIndex) Find(key LotKey, id int) *ComponentRecord {
	for _, p := range idx.index[key] {
		if idx.arena[p].ID == id {
			return &idx.arena[p]
		}
	}
	return nil
}

func (idx *LotIndex) Len() int {
	return len(idx.arena)
}
