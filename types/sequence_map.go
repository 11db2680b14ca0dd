package types

import (
	"sync"
)

// SequenceMap hands out a monotonically increasing sequence per saga direction
// so saga ids never collide, even for identical deposits.
type SequenceMap struct {
	mu sync.Mutex
	// map direction -> next sequence
	sequenceMap map[Direction]uint64
}

func NewSequenceMap() *SequenceMap {
	return &SequenceMap{
		sequenceMap: map[Direction]uint64{},
	}
}

func (m *SequenceMap) Put(dir Direction, val uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequenceMap[dir] = val
}

func (m *SequenceMap) Next(dir Direction) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := m.sequenceMap[dir]
	m.sequenceMap[dir]++
	return result
}
