package domain

import (
	"fmt"
	"slices"
)

// Weights is a binary, symmetric contiguity relation over a fixed, ordered
// set of regions. Index i in every per-region slice refers to IDs()[i].
type Weights struct {
	ids       []string
	index     map[string]int
	neighbors [][]int
}

// NewWeights builds a relation from an adjacency list keyed by region id.
// Every pair is stored in both directions and self-pairs are ignored, so a
// one-sided list is enough. Ids in adjacency that are not in ids are an
// error; ids without an entry become islands.
func NewWeights(ids []string, adjacency map[string][]string) (*Weights, error) {
	w := &Weights{
		ids:       slices.Clone(ids),
		index:     make(map[string]int, len(ids)),
		neighbors: make([][]int, len(ids)),
	}
	for i, id := range ids {
		if id == "" {
			return nil, &DegenerateInputError{Reason: fmt.Sprintf("empty region id at position %d", i)}
		}
		if _, dup := w.index[id]; dup {
			return nil, &DegenerateInputError{RegionID: id, Reason: "duplicate region id"}
		}
		w.index[id] = i
	}

	sets := make([]map[int]struct{}, len(ids))
	for i := range sets {
		sets[i] = make(map[int]struct{})
	}
	for id, nbrs := range adjacency {
		i, ok := w.index[id]
		if !ok {
			return nil, &DimensionMismatchError{Values: len(adjacency), Regions: len(ids), Detail: fmt.Sprintf("unknown region %q in adjacency", id)}
		}
		for _, nid := range nbrs {
			j, ok := w.index[nid]
			if !ok {
				return nil, &DimensionMismatchError{Values: len(adjacency), Regions: len(ids), Detail: fmt.Sprintf("unknown neighbour %q of region %q", nid, id)}
			}
			if i == j {
				continue
			}
			sets[i][j] = struct{}{}
			sets[j][i] = struct{}{}
		}
	}
	for i, set := range sets {
		nbrs := make([]int, 0, len(set))
		for j := range set {
			nbrs = append(nbrs, j)
		}
		slices.Sort(nbrs)
		w.neighbors[i] = nbrs
	}
	return w, nil
}

// Len is the number of regions.
func (w *Weights) Len() int { return len(w.ids) }

// IDs returns region ids in index order.
func (w *Weights) IDs() []string { return slices.Clone(w.ids) }

// ID returns the region id at index i.
func (w *Weights) ID(i int) string { return w.ids[i] }

// Index returns the position of a region id.
func (w *Weights) Index(id string) (int, bool) {
	i, ok := w.index[id]
	return i, ok
}

// Neighbors returns the sorted neighbour indices of region i, excluding i.
// The returned slice must not be modified.
func (w *Weights) Neighbors(i int) []int { return w.neighbors[i] }

// NeighborIDs returns the neighbour ids of a region, or nil for unknown ids.
func (w *Weights) NeighborIDs(id string) []string {
	i, ok := w.index[id]
	if !ok {
		return nil
	}
	out := make([]string, len(w.neighbors[i]))
	for k, j := range w.neighbors[i] {
		out[k] = w.ids[j]
	}
	return out
}

// Cardinality is the neighbour count of region i, excluding i itself.
func (w *Weights) Cardinality(i int) int { return len(w.neighbors[i]) }

// AreNeighbors reports whether two regions share a boundary.
func (w *Weights) AreNeighbors(a, b string) bool {
	i, ok := w.index[a]
	if !ok {
		return false
	}
	j, ok := w.index[b]
	if !ok {
		return false
	}
	_, found := slices.BinarySearch(w.neighbors[i], j)
	return found
}

// Islands returns the ids of regions without neighbours.
func (w *Weights) Islands() []string {
	var out []string
	for i, nbrs := range w.neighbors {
		if len(nbrs) == 0 {
			out = append(out, w.ids[i])
		}
	}
	return out
}

// IsSymmetric verifies that every neighbour pair is recorded both ways.
func (w *Weights) IsSymmetric() bool {
	for i, nbrs := range w.neighbors {
		for _, j := range nbrs {
			if _, found := slices.BinarySearch(w.neighbors[j], i); !found {
				return false
			}
		}
	}
	return true
}

// MeanNeighbors is the average neighbour count.
func (w *Weights) MeanNeighbors() float64 {
	if len(w.neighbors) == 0 {
		return 0
	}
	total := 0
	for _, nbrs := range w.neighbors {
		total += len(nbrs)
	}
	return float64(total) / float64(len(w.neighbors))
}
