package field

import "fmt"

// Store holds the per-point scalar fields for one frame plus a snapshot of
// the previous frame's values. All fields exist for every point; integer
// valued fields (STATUS_FLAG, ITERATIONS, NEIGHBOR_ID) are stored as
// float64 like the rest.
type Store struct {
	n    int
	cur  map[Name][]float64
	prev map[Name][]float64
}

// NewStore creates a store for n points. Coordinates, displacements and
// strains start at zero; SIGMA, MATCH and GAMMA start at the Unsolved
// sentinel; NEIGHBOR_ID starts at NoNeighbor; STATUS_FLAG starts at -1
// meaning no status has been recorded yet.
func NewStore(n int) *Store {
	s := &Store{
		n:    n,
		cur:  make(map[Name][]float64, len(allNames)),
		prev: make(map[Name][]float64, len(allNames)),
	}
	for _, name := range allNames {
		s.cur[name] = make([]float64, n)
		s.prev[name] = make([]float64, n)
	}
	for _, name := range []Name{Sigma, Match, Gamma, StatusFlag, NeighborID} {
		fill(s.cur[name], Unsolved)
		fill(s.prev[name], Unsolved)
	}
	return s
}

func fill(v []float64, x float64) {
	for i := range v {
		v[i] = x
	}
}

// NumPoints returns the number of point slots in the store.
func (s *Store) NumPoints() int { return s.n }

// Value returns the current-frame value of the named field for slot i.
func (s *Store) Value(i int, name Name) float64 {
	return s.cur[name][i]
}

// SetValue sets the current-frame value of the named field for slot i.
func (s *Store) SetValue(i int, name Name, v float64) {
	s.cur[name][i] = v
}

// PrevValue returns the previous-frame snapshot of the named field for
// slot i.
func (s *Store) PrevValue(i int, name Name) float64 {
	return s.prev[name][i]
}

// SetPrevValue sets the previous-frame snapshot of the named field for
// slot i.
func (s *Store) SetPrevValue(i int, name Name, v float64) {
	s.prev[name][i] = v
}

// Snapshot copies all of slot i's current values into the previous-frame
// buffer. Called before committing a new solution when a projection method
// needs the prior frame's state.
func (s *Store) Snapshot(i int) {
	for _, name := range allNames {
		s.prev[name][i] = s.cur[name][i]
	}
}

// CopySlot copies every field (current and previous buffers) for one slot
// from another store. Used by Push and Pull to move values between the
// replicated and partitioned stores.
func (s *Store) CopySlot(dst int, src *Store, srcSlot int) {
	for _, name := range allNames {
		s.cur[name][dst] = src.cur[name][srcSlot]
		s.prev[name][dst] = src.prev[name][srcSlot]
	}
}

// Partitioned builds one store per worker sized to the worker's local list
// in m.
func Partitioned(m *Map) []*Store {
	parts := make([]*Store, m.Workers())
	for w := 0; w < m.Workers(); w++ {
		parts[w] = NewStore(len(m.Local(w)))
	}
	return parts
}

// Push copies values for every point from the replicated store into the
// partitioned store of the point's owner. Local slot order follows the
// owner's local list in m.
func Push(all *Store, m *Map, parts []*Store) error {
	if err := checkSync(all, m, parts); err != nil {
		return fmt.Errorf("field push: %w", err)
	}
	for w := 0; w < m.Workers(); w++ {
		for slot, id := range m.Local(w) {
			parts[w].CopySlot(slot, all, id)
		}
	}
	return nil
}

// Pull copies values for every point from its owner's partitioned store
// back into the replicated store, producing the merged global snapshot.
func Pull(all *Store, m *Map, parts []*Store) error {
	if err := checkSync(all, m, parts); err != nil {
		return fmt.Errorf("field pull: %w", err)
	}
	for w := 0; w < m.Workers(); w++ {
		for slot, id := range m.Local(w) {
			all.CopySlot(id, parts[w], slot)
		}
	}
	return nil
}

func checkSync(all *Store, m *Map, parts []*Store) error {
	if all.NumPoints() != m.NumPoints() {
		return fmt.Errorf("store holds %d points but map holds %d", all.NumPoints(), m.NumPoints())
	}
	if len(parts) != m.Workers() {
		return fmt.Errorf("%d partitioned stores for %d workers", len(parts), m.Workers())
	}
	for w, p := range parts {
		if p.NumPoints() != len(m.Local(w)) {
			return fmt.Errorf("worker %d store holds %d slots but owns %d points", w, p.NumPoints(), len(m.Local(w)))
		}
	}
	return nil
}
