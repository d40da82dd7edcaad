package field

import "fmt"

// Map is a one-to-one assignment of point ids to workers. Each worker's
// local list is ordered; during frame execution the owner processes its
// points in exactly that order, which is how the partitioners enforce
// neighbor and obstruction dependencies. The replicated all-ids view is
// available to every worker through AllIDs.
type Map struct {
	workers int
	owner   []int
	local   [][]int
}

// NewMap builds a map over n points from explicit per-worker local lists.
// The lists must partition {0..n-1} exactly: every id appears in exactly
// one list.
func NewMap(n int, local [][]int) (*Map, error) {
	if n <= 0 {
		return nil, fmt.Errorf("map requires at least one point, got %d", n)
	}
	if len(local) == 0 {
		return nil, fmt.Errorf("map requires at least one worker")
	}
	owner := make([]int, n)
	for i := range owner {
		owner[i] = -1
	}
	total := 0
	for w, ids := range local {
		for _, id := range ids {
			if id < 0 || id >= n {
				return nil, fmt.Errorf("worker %d holds out-of-range id %d (n=%d)", w, id, n)
			}
			if owner[id] != -1 {
				return nil, fmt.Errorf("id %d assigned to both worker %d and worker %d", id, owner[id], w)
			}
			owner[id] = w
			total++
		}
	}
	if total != n {
		return nil, fmt.Errorf("local lists hold %d ids, want %d", total, n)
	}
	return &Map{workers: len(local), owner: owner, local: local}, nil
}

// DefaultMap assigns ids to workers in contiguous blocks of near-equal
// size, preserving ascending id order within each block. This is the
// assignment used when no partitioner applies.
func DefaultMap(n, workers int) (*Map, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("map requires at least one worker, got %d", workers)
	}
	local := make([][]int, workers)
	chunk := n / workers
	rem := n % workers
	next := 0
	for w := 0; w < workers; w++ {
		size := chunk
		if w < rem {
			size++
		}
		ids := make([]int, 0, size)
		for i := 0; i < size; i++ {
			ids = append(ids, next)
			next++
		}
		local[w] = ids
	}
	return NewMap(n, local)
}

// Workers returns the number of workers the map distributes over.
func (m *Map) Workers() int { return m.workers }

// NumPoints returns the number of point ids the map covers.
func (m *Map) NumPoints() int { return len(m.owner) }

// Owner returns the worker that owns id.
func (m *Map) Owner(id int) int { return m.owner[id] }

// Local returns worker w's ordered local id list. The returned slice is
// shared; callers must not modify it.
func (m *Map) Local(w int) []int { return m.local[w] }

// AllIDs returns the replicated view: every id in ascending order.
func (m *Map) AllIDs() []int {
	ids := make([]int, len(m.owner))
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// LocalIndex returns a lookup from global id to the slot index in its
// owner's local list.
func (m *Map) LocalIndex() []int {
	idx := make([]int, len(m.owner))
	for w := 0; w < m.workers; w++ {
		for slot, id := range m.local[w] {
			idx[id] = slot
		}
	}
	return idx
}
