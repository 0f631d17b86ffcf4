package hclust

import (
	"math"

	"github.com/cockroachdb/errors"
)

// Method selects how the distance between two clusters is derived from the
// pairwise distances of their members.
type Method int

const (
	// Average uses the mean distance over all cross-cluster member pairs.
	Average Method = iota
	// Single uses the minimum cross-cluster member pair distance.
	Single
	// Complete uses the maximum cross-cluster member pair distance.
	Complete
)

// String returns the method name as used in configuration and logs.
func (m Method) String() string {
	switch m {
	case Average:
		return "average"
	case Single:
		return "single"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// ParseMethod converts a configuration string into a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "average", "":
		return Average, nil
	case "single":
		return Single, nil
	case "complete":
		return Complete, nil
	default:
		return Average, errors.Newf("hclust: unknown linkage method %q", s)
	}
}

// Merge records one agglomeration step. Left and Right are the ids of the
// merged clusters with Left < Right; ids below the observation count denote
// leaves, higher ids refer to earlier merges. Size is the total number of
// observations in the new cluster.
type Merge struct {
	Left     int     `json:"left_id"`
	Right    int     `json:"right_id"`
	Distance float64 `json:"distance"`
	Size     int     `json:"member_count"`
}

// Tree is the result of clustering N observations: N-1 merges, with merge i
// creating cluster id N+i.
type Tree struct {
	N      int
	Merges []Merge
}

// Root returns the id of the final cluster containing every observation.
func (t *Tree) Root() int { return t.N + len(t.Merges) - 1 }

// Cluster agglomerates the observations of dm into a single tree. Each step
// merges the pair of active clusters with the smallest inter-cluster
// distance; when several pairs are tied the one with the lowest (left, right)
// id pair wins, which makes the merge sequence fully deterministic for a
// given matrix. Inter-cluster distances are always derived from the original
// pairwise matrix, never from previously merged distances, so the result is
// independent of merge history.
func Cluster(dm *DistMatrix, method Method) (*Tree, error) {
	n := dm.Len()
	if n < 2 {
		return nil, errors.Newf("hclust: need at least 2 observations, got %d", n)
	}

	members := make(map[int][]int, 2*n-1)
	for i := 0; i < n; i++ {
		members[i] = []int{i}
	}

	// Active cluster ids, ascending. New ids only ever exceed existing ones,
	// so appending after each merge keeps the order sorted.
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}

	// Distances between active clusters where at least one side is a merged
	// cluster. Leaf-leaf distances are read from dm directly.
	merged := make(map[uint64]float64)
	dist := func(a, b int) float64 {
		if a < n && b < n {
			return dm.At(a, b)
		}
		return merged[pairKey(a, b)]
	}

	tree := &Tree{N: n, Merges: make([]Merge, 0, n-1)}
	next := n
	for len(ids) > 1 {
		// Scanning ids in ascending (x, y) order with a strict < comparison
		// selects the lowest id pair among ties.
		bi, bj := -1, -1
		best := math.Inf(1)
		for x := 0; x < len(ids); x++ {
			for y := x + 1; y < len(ids); y++ {
				if d := dist(ids[x], ids[y]); d < best {
					best, bi, bj = d, ids[x], ids[y]
				}
			}
		}

		mi, mj := members[bi], members[bj]
		tree.Merges = append(tree.Merges, Merge{
			Left:     bi,
			Right:    bj,
			Distance: best,
			Size:     len(mi) + len(mj),
		})

		union := make([]int, 0, len(mi)+len(mj))
		union = append(union, mi...)
		union = append(union, mj...)
		members[next] = union
		delete(members, bi)
		delete(members, bj)

		active := ids[:0]
		for _, id := range ids {
			if id == bi || id == bj {
				if id >= n {
					for _, other := range ids {
						delete(merged, pairKey(id, other))
					}
				}
				continue
			}
			active = append(active, id)
		}
		ids = active

		for _, id := range ids {
			merged[pairKey(id, next)] = linkDistance(dm, members[id], union, method)
		}
		ids = append(ids, next)
		next++
	}
	return tree, nil
}

// linkDistance derives the distance between two clusters from the pairwise
// distances of their members.
func linkDistance(dm *DistMatrix, a, b []int, method Method) float64 {
	switch method {
	case Single:
		min := math.Inf(1)
		for _, i := range a {
			for _, j := range b {
				if d := dm.At(i, j); d < min {
					min = d
				}
			}
		}
		return min
	case Complete:
		max := math.Inf(-1)
		for _, i := range a {
			for _, j := range b {
				if d := dm.At(i, j); d > max {
					max = d
				}
			}
		}
		return max
	default:
		sum := 0.0
		for _, i := range a {
			for _, j := range b {
				sum += dm.At(i, j)
			}
		}
		return sum / float64(len(a)*len(b))
	}
}

func pairKey(a, b int) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(a)<<32 | uint64(b)
}
