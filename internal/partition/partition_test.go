package partition

import (
	"testing"

	"github.com/dyluth/speckle/pkg/field"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDependencyNoObstructionsKeepsDefaultMap(t *testing.T) {
	m, err := Dependency(6, 2, nil)
	require.NoError(t, err)

	want, err := field.DefaultMap(6, 2)
	require.NoError(t, err)
	assert.Equal(t, want.Local(0), m.Local(0))
	assert.Equal(t, want.Local(1), m.Local(1))
}

func TestDependencyPartitionsExactly(t *testing.T) {
	tests := []struct {
		name         string
		n            int
		workers      int
		obstructions map[int][]int
	}{
		{
			name:         "single group",
			n:            4,
			workers:      2,
			obstructions: map[int][]int{0: {1}},
		},
		{
			name:    "two groups plus eligible",
			n:       8,
			workers: 3,
			obstructions: map[int][]int{
				0: {1},
				2: {1},
				5: {6},
			},
		},
		{
			name:    "chained blockers share a group",
			n:       10,
			workers: 4,
			obstructions: map[int][]int{
				1: {2, 3},
				4: {3},
				7: {8, 9},
			},
		},
		{
			name:         "everything grouped",
			n:            3,
			workers:      2,
			obstructions: map[int][]int{0: {1}, 2: {1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Dependency(tt.n, tt.workers, tt.obstructions)
			require.NoError(t, err)

			assertExactPartition(t, m, tt.n)

			// Every occluder of a point must live in that point's local
			// list, on the same worker.
			for id, blockers := range tt.obstructions {
				for _, b := range blockers {
					assert.Equal(t, m.Owner(id), m.Owner(b),
						"point %d and its occluder %d must be co-located", id, b)
				}
			}
		})
	}
}

func TestGroupsEqualConnectedComponents(t *testing.T) {
	obstructions := map[int][]int{
		0: {1},
		2: {1},
		4: {5},
		7: {8, 9},
		9: {6},
	}
	n := 11

	groups, err := Groups(n, obstructions)
	require.NoError(t, err)

	want := connectedComponents(n, obstructions)
	assert.Equal(t, want, groups)
}

func TestGroupsRejectBadEntries(t *testing.T) {
	tests := []struct {
		name         string
		n            int
		obstructions map[int][]int
		errMsg       string
	}{
		{name: "out of range point", n: 3, obstructions: map[int][]int{5: {0}}, errMsg: "out-of-range id 5"},
		{name: "out of range blocker", n: 3, obstructions: map[int][]int{0: {7}}, errMsg: "out-of-range blocker 7"},
		{name: "self blocking", n: 3, obstructions: map[int][]int{1: {1}}, errMsg: "lists itself"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Groups(tt.n, tt.obstructions)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDependencyLocalOrderPutsUnblockedFirst(t *testing.T) {
	// Points 0 and 2 are blocked by 1; point 4 is blocked by 5. Point 3 is
	// eligible. On every worker the unblocked ids must precede the blocked
	// ones so an occluder is always solved before the points it hides.
	obstructions := map[int][]int{
		0: {1},
		2: {1},
		4: {5},
	}
	m, err := Dependency(6, 2, obstructions)
	require.NoError(t, err)

	// Group {0,1,2} round-robins to worker 0, group {4,5} to worker 1,
	// then eligible id 3 lands on the emptier worker 1.
	assert.Equal(t, []int{1, 0, 2}, m.Local(0))
	assert.Equal(t, []int{5, 3, 4}, m.Local(1))
}

func TestDependencyBalancesEligiblePoints(t *testing.T) {
	obstructions := map[int][]int{0: {1}}
	m, err := Dependency(10, 3, obstructions)
	require.NoError(t, err)

	// Group {0,1} goes to worker 0; eligible ids fill the two empty
	// workers until counts level out, then ties resolve to the lowest
	// worker index. Blocked id 0 sorts behind worker 0's unblocked ids.
	assert.Equal(t, []int{1, 6, 9, 0}, m.Local(0))
	assert.Equal(t, []int{2, 4, 7}, m.Local(1))
	assert.Equal(t, []int{3, 5, 8}, m.Local(2))
}

func TestSeedChainsStartAtSeedAndChainBackward(t *testing.T) {
	tests := []struct {
		name      string
		neighbors []int
	}{
		{name: "two chains", neighbors: []int{field.NoNeighbor, 0, 1, field.NoNeighbor, 3}},
		{name: "single chain", neighbors: []int{field.NoNeighbor, 0, 1, 2}},
		{name: "all seeds", neighbors: []int{field.NoNeighbor, field.NoNeighbor, field.NoNeighbor}},
		{name: "three chains", neighbors: []int{field.NoNeighbor, 0, field.NoNeighbor, 2, 3, field.NoNeighbor, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := len(tt.neighbors)
			m, err := Seed(n, 1, tt.neighbors, nil)
			require.NoError(t, err)
			assertExactPartition(t, m, n)

			// Walk the single local list: every chain must open at a seed
			// and every later id must name the preceding id as neighbor.
			list := m.Local(0)
			require.NotEmpty(t, list)
			for i, id := range list {
				if tt.neighbors[id] == field.NoNeighbor {
					continue // chain start
				}
				require.Greater(t, i, 0, "list must open with a seed")
				assert.Equal(t, list[i-1], tt.neighbors[id],
					"id %d must follow its neighbor in the local list", id)
			}
			assert.Equal(t, field.NoNeighbor, tt.neighbors[list[0]])
		})
	}
}

func TestSeedRoundRobinsWholeChains(t *testing.T) {
	// Chains built from the high end: {3,4} then {0,1,2}.
	neighbors := []int{field.NoNeighbor, 0, 1, field.NoNeighbor, 3}
	m, err := Seed(5, 2, neighbors, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 4}, m.Local(0))
	assert.Equal(t, []int{0, 1, 2}, m.Local(1))
}

func TestSeedFallsBackToDependencyWithObstructions(t *testing.T) {
	neighbors := []int{field.NoNeighbor, 0, 1, field.NoNeighbor, 3, 4}
	obstructions := map[int][]int{0: {1}, 4: {5}}

	seedMap, err := Seed(6, 2, neighbors, obstructions)
	require.NoError(t, err)
	depMap, err := Dependency(6, 2, obstructions)
	require.NoError(t, err)

	for w := 0; w < 2; w++ {
		assert.Equal(t, depMap.Local(w), seedMap.Local(w))
	}
}

func TestSeedWithoutNeighborsKeepsDefaultMap(t *testing.T) {
	m, err := Seed(4, 2, nil, nil)
	require.NoError(t, err)

	want, err := field.DefaultMap(4, 2)
	require.NoError(t, err)
	assert.Equal(t, want.Local(0), m.Local(0))
	assert.Equal(t, want.Local(1), m.Local(1))
}

func TestSeedRejectsShortNeighborList(t *testing.T) {
	_, err := Seed(5, 2, []int{field.NoNeighbor, 0}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holds 2 entries, want 5")
}

func assertExactPartition(t *testing.T, m *field.Map, n int) {
	t.Helper()
	seen := make(map[int]int)
	for w := 0; w < m.Workers(); w++ {
		for _, id := range m.Local(w) {
			seen[id]++
		}
	}
	require.Len(t, seen, n)
	for id, count := range seen {
		require.Equal(t, 1, count, "id %d assigned %d times", id, count)
	}
}

// connectedComponents is an independent union-find reference used to check
// Groups against the mathematical definition.
func connectedComponents(n int, obstructions map[int][]int) [][]int {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}
	inGraph := make(map[int]bool)
	for id, blockers := range obstructions {
		inGraph[id] = true
		for _, b := range blockers {
			inGraph[b] = true
			union(id, b)
		}
	}
	members := make(map[int][]int)
	for id := 0; id < n; id++ {
		if inGraph[id] {
			root := find(id)
			members[root] = append(members[root], id)
		}
	}
	var groups [][]int
	for _, g := range members {
		groups = append(groups, g)
	}
	// Ascending members, groups by smallest member (ids already ascend).
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			if groups[j][0] < groups[i][0] {
				groups[i], groups[j] = groups[j], groups[i]
			}
		}
	}
	return groups
}
