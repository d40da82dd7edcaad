package partition

import (
	"fmt"
	"log"

	"github.com/dyluth/speckle/pkg/field"
)

// Seed builds the distribution map for neighbor-chain initialization.
// neighbors[i] is the id whose committed solution seeds point i, or
// field.NoNeighbor when i is itself a seed. Each chain lands whole on one
// worker, ordered seed first so a point's neighbor is always solved before
// the point itself.
//
// When obstructions are configured the chain ordering is abandoned:
// keeping an obstruction group together takes precedence, so the seed map
// is the Dependency map. A nil neighbors slice yields the default map.
func Seed(n, workers int, neighbors []int, obstructions map[int][]int) (*field.Map, error) {
	if len(obstructions) > 0 {
		log.Printf("[Partition] WARNING: obstructions are configured, seed ordering is " +
			"abandoned in favor of the obstruction distribution")
		return Dependency(n, workers, obstructions)
	}
	if neighbors == nil {
		return field.DefaultMap(n, workers)
	}
	if len(neighbors) != n {
		return nil, fmt.Errorf("neighbor list holds %d entries, want %d", len(neighbors), n)
	}

	chains := buildChains(neighbors)
	log.Printf("[Partition] built %d seed chain(s) over %d points", len(chains), n)

	local := make([][]int, workers)
	for ci, chain := range chains {
		w := ci % workers
		local[w] = append(local[w], chain...)
	}
	return field.NewMap(n, local)
}

// buildChains scans ids from highest to lowest, accumulating until a seed
// sentinel closes the chain. Chains are reversed before returning so the
// seed comes first and every later id follows the point it chains to.
func buildChains(neighbors []int) [][]int {
	var chains [][]int
	var chain []int
	for i := len(neighbors) - 1; i >= 0; i-- {
		chain = append(chain, i)
		if neighbors[i] == field.NoNeighbor {
			chains = append(chains, reverse(chain))
			chain = nil
		}
	}
	// Ids below the lowest seed close out as a final chain.
	if len(chain) > 0 {
		chains = append(chains, reverse(chain))
	}
	return chains
}

func reverse(ids []int) []int {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids
}
