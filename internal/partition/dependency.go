// Package partition builds the point-to-worker distribution maps that
// encode obstruction and seeding dependencies. Both partitioners produce a
// one-to-one field.Map whose local list order is a processing order: any
// point another point depends on (an occluder, or a neighbor used for
// initialization) appears earlier in the same worker's list.
package partition

import (
	"fmt"
	"log"
	"sort"

	"github.com/dyluth/speckle/pkg/field"
)

// Dependency builds the distribution map for runs with obstructed points.
// obstructions maps a point id to the ids that occlude it. All points in
// one obstruction group land on the same worker, ordered so that occluders
// come before the points they block. Points outside any group are spread
// for balance. With no obstructions the default map stands.
func Dependency(n, workers int, obstructions map[int][]int) (*field.Map, error) {
	if len(obstructions) == 0 {
		return field.DefaultMap(n, workers)
	}

	groups, err := Groups(n, obstructions)
	if err != nil {
		return nil, err
	}
	log.Printf("[Partition] built %d obstruction group(s) over %d points", len(groups), n)

	grouped := make(map[int]bool)
	for _, g := range groups {
		for _, id := range g {
			grouped[id] = true
		}
	}

	// Whole groups round-robin so a group is never split.
	local := make([][]int, workers)
	for gi, g := range groups {
		w := gi % workers
		local[w] = append(local[w], g...)
	}

	// Remaining eligible ids go one at a time to the emptiest worker.
	for id := 0; id < n; id++ {
		if grouped[id] {
			continue
		}
		w := 0
		for cand := 1; cand < workers; cand++ {
			if len(local[cand]) < len(local[w]) {
				w = cand
			}
		}
		local[w] = append(local[w], id)
	}

	// Two-tier local order: unblocked ids first, then blocked ids. This
	// assumes the obstruction relation has depth one; a blocker that is
	// itself blocked is not reordered beyond this.
	blocked := make(map[int]bool, len(obstructions))
	for id, blockers := range obstructions {
		if len(blockers) > 0 {
			blocked[id] = true
		}
	}
	for w := range local {
		local[w] = twoTier(local[w], blocked)
	}

	return field.NewMap(n, local)
}

// Groups computes the obstruction groups: the connected components of the
// undirected graph induced by the occludes relation. A point and all of
// its listed blockers always share a group; the component is grown by
// re-scanning every obstruction entry for ids already in the group until
// no entry adds a new member. Members are returned in ascending id order,
// groups in ascending order of their smallest member.
func Groups(n int, obstructions map[int][]int) ([][]int, error) {
	keys := make([]int, 0, len(obstructions))
	for id, blockers := range obstructions {
		if id < 0 || id >= n {
			return nil, fmt.Errorf("obstruction entry for out-of-range id %d (n=%d)", id, n)
		}
		for _, b := range blockers {
			if b < 0 || b >= n {
				return nil, fmt.Errorf("id %d lists out-of-range blocker %d (n=%d)", id, b, n)
			}
			if b == id {
				return nil, fmt.Errorf("id %d lists itself as a blocker", id)
			}
		}
		keys = append(keys, id)
	}
	sort.Ints(keys)

	visited := make(map[int]bool)
	var groups [][]int
	for _, root := range keys {
		if visited[root] {
			continue
		}
		members := map[int]bool{root: true}
		for _, b := range obstructions[root] {
			members[b] = true
		}
		for grew := true; grew; {
			grew = false
			for _, id := range keys {
				touches := members[id]
				if !touches {
					for _, b := range obstructions[id] {
						if members[b] {
							touches = true
							break
						}
					}
				}
				if !touches {
					continue
				}
				if !members[id] {
					members[id] = true
					grew = true
				}
				for _, b := range obstructions[id] {
					if !members[b] {
						members[b] = true
						grew = true
					}
				}
			}
		}
		group := make([]int, 0, len(members))
		for id := range members {
			visited[id] = true
			group = append(group, id)
		}
		sort.Ints(group)
		groups = append(groups, group)
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups, nil
}

func twoTier(ids []int, blocked map[int]bool) []int {
	ordered := make([]int, 0, len(ids))
	for _, id := range ids {
		if !blocked[id] {
			ordered = append(ordered, id)
		}
	}
	for _, id := range ids {
		if blocked[id] {
			ordered = append(ordered, id)
		}
	}
	return ordered
}
