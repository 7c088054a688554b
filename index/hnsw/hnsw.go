// Package hnsw implements a Hierarchical Navigable Small World graph for
// approximate nearest neighbor search over caller-assigned IDs.
package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/chemvec/chemvec/distance"
	"github.com/chemvec/chemvec/index"
	"github.com/chemvec/chemvec/internal/queue"
)

const (
	// layerNormalizationBase is the base constant for the exponential layer
	// probability distribution.
	layerNormalizationBase = 1.0

	// mmax0Multiplier is the multiplier for maximum connections at layer 0.
	mmax0Multiplier = 2

	minimumM = 2

	// DefaultM is the default number of bidirectional links per node.
	DefaultM = 8

	// DefaultEFConstruction is the default candidate list size during
	// insertion.
	DefaultEFConstruction = 100
)

// Compile-time check
var _ index.Index = (*Graph)(nil)

// Options represents the options for configuring a Graph.
type Options struct {
	// Dimension is the vector dimensionality. Required.
	Dimension int

	// M is the number of bidirectional links per node.
	M int

	// EFConstruction is the candidate list size during insertion.
	EFConstruction int

	// Heuristic enables diversity-aware neighbor selection.
	Heuristic bool

	// Metric selects the distance function.
	Metric distance.Metric

	// RandomSeed fixes level assignment for reproducible graphs.
	RandomSeed *int64
}

// DefaultOptions holds the default Graph options.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	Heuristic:      true,
	Metric:         distance.MetricCosine,
}

type node struct {
	id     uint64 // external ID
	vector []float32
	conns  [][]uint32 // connections per layer, as internal indexes
}

func (n *node) level() int { return len(n.conns) - 1 }

// Graph is an HNSW index. All methods are safe for concurrent use; searches
// proceed under a shared lock, mutations under an exclusive one.
type Graph struct {
	mu sync.RWMutex

	opts     Options
	distFunc distance.Func

	nodes      []*node           // internal index -> node
	byID       map[uint64]uint32 // external ID -> internal index
	tombstones *bitset.BitSet    // internal indexes of deleted nodes
	live       int

	entry    int // internal index of the entry point, -1 when empty
	maxLevel int

	maxConns  int
	maxConns0 int
	levelMult float64

	rng *rand.Rand
}

// New creates an empty Graph.
func New(optFns ...func(o *Options)) (*Graph, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("hnsw: dimension must be positive, got %d", opts.Dimension)
	}

	if opts.M < minimumM {
		opts.M = minimumM
	}
	if opts.EFConstruction <= 0 {
		opts.EFConstruction = DefaultEFConstruction
	}

	distFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if opts.RandomSeed != nil {
		rng = rand.New(rand.NewSource(*opts.RandomSeed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Graph{
		opts:       opts,
		distFunc:   distFunc,
		byID:       make(map[uint64]uint32),
		tombstones: bitset.New(1024),
		entry:      -1,
		maxLevel:   -1,
		maxConns:   opts.M,
		maxConns0:  mmax0Multiplier * opts.M,
		levelMult:  layerNormalizationBase / math.Log(float64(opts.M)),
		rng:        rng,
	}, nil
}

// Insert adds a vector under the given external ID. Re-inserting a live ID
// is a no-op; re-inserting a deleted ID revives the existing node.
func (g *Graph) Insert(id uint64, v []float32) error {
	if len(v) == 0 {
		return index.ErrEmptyVector
	}
	if len(v) != g.opts.Dimension {
		return &index.ErrDimensionMismatch{Expected: g.opts.Dimension, Actual: len(v)}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if idx, ok := g.byID[id]; ok {
		if g.tombstones.Test(uint(idx)) {
			g.tombstones.Clear(uint(idx))
			g.live++
		}
		return nil
	}

	level := g.randomLevel()
	n := &node{
		id:     id,
		vector: slices.Clone(v),
		conns:  make([][]uint32, level+1),
	}

	idx := uint32(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.byID[id] = idx
	g.live++

	if g.entry < 0 {
		g.entry = int(idx)
		g.maxLevel = level
		return nil
	}

	g.link(idx, n)

	if level > g.maxLevel {
		g.maxLevel = level
		g.entry = int(idx)
	}
	return nil
}

// link wires a freshly appended node into the graph.
func (g *Graph) link(idx uint32, n *node) {
	currIdx := uint32(g.entry)
	currDist := g.distFunc(n.vector, g.nodes[currIdx].vector)

	// Greedy descent through the layers above the node's level.
	for level := g.maxLevel; level > n.level(); level-- {
		currIdx, currDist = g.greedyStep(n.vector, currIdx, currDist, level)
	}

	for level := min(n.level(), g.maxLevel); level >= 0; level-- {
		results := g.searchLayer(n.vector, currIdx, currDist, level, g.opts.EFConstruction, true)

		if best, ok := results.Min(); ok {
			currIdx = uint32(best.Node)
			currDist = best.Distance
		}

		maxConns := g.maxConns
		if level == 0 {
			maxConns = g.maxConns0
		}

		neighbors := g.selectNeighbors(results, maxConns)
		n.conns[level] = neighbors

		for _, neighborIdx := range neighbors {
			g.addConnection(neighborIdx, idx, level)
		}
	}
}

// greedyStep walks a single layer greedily until no neighbor improves on the
// current distance.
func (g *Graph) greedyStep(q []float32, currIdx uint32, currDist float32, level int) (uint32, float32) {
	for changed := true; changed; {
		changed = false
		for _, nextIdx := range g.connections(currIdx, level) {
			nextDist := g.distFunc(q, g.nodes[nextIdx].vector)
			if nextDist < currDist {
				currIdx = nextIdx
				currDist = nextDist
				changed = true
			}
		}
	}
	return currIdx, currDist
}

func (g *Graph) connections(idx uint32, level int) []uint32 {
	n := g.nodes[idx]
	if level > n.level() {
		return nil
	}
	return n.conns[level]
}

// addConnection adds a backlink from source to target, pruning the source's
// neighborhood when it exceeds the connection limit.
func (g *Graph) addConnection(sourceIdx, targetIdx uint32, level int) {
	source := g.nodes[sourceIdx]
	if level > source.level() {
		return
	}

	conns := source.conns[level]
	if slices.Contains(conns, targetIdx) {
		return
	}

	maxConns := g.maxConns
	if level == 0 {
		maxConns = g.maxConns0
	}

	if len(conns) < maxConns {
		source.conns[level] = append(conns, targetIdx)
		return
	}

	candidates := queue.NewMax(len(conns) + 1)
	for _, c := range conns {
		candidates.Push(queue.Item{Node: uint64(c), Distance: g.distFunc(source.vector, g.nodes[c].vector)})
	}
	candidates.Push(queue.Item{Node: uint64(targetIdx), Distance: g.distFunc(source.vector, g.nodes[targetIdx].vector)})

	source.conns[level] = g.selectNeighbors(candidates, maxConns)
}

// searchLayer explores a single layer ef-bounded and returns a max-heap of
// the best candidates found. Tombstoned nodes are always traversed; with
// includeDeleted they also enter the result heap, so insertion can link a
// new node through a fully deleted neighborhood instead of leaving it
// unreachable.
func (g *Graph) searchLayer(q []float32, epIdx uint32, epDist float32, level int, ef int, includeDeleted bool) *queue.PriorityQueue {
	visited := bitset.New(uint(len(g.nodes)))
	visited.Set(uint(epIdx))

	candidates := queue.NewMin(ef)
	candidates.Push(queue.Item{Node: uint64(epIdx), Distance: epDist})

	results := queue.NewMax(ef)
	if includeDeleted || !g.tombstones.Test(uint(epIdx)) {
		results.Push(queue.Item{Node: uint64(epIdx), Distance: epDist})
	}

	for candidates.Len() > 0 {
		curr, _ := candidates.Pop()

		if results.Len() >= ef {
			worst, _ := results.Top()
			if curr.Distance > worst.Distance {
				break
			}
		}

		for _, nextIdx := range g.connections(uint32(curr.Node), level) {
			if visited.Test(uint(nextIdx)) {
				continue
			}
			visited.Set(uint(nextIdx))

			nextDist := g.distFunc(q, g.nodes[nextIdx].vector)

			if results.Len() >= ef {
				worst, _ := results.Top()
				if nextDist > worst.Distance {
					continue
				}
			}

			candidates.Push(queue.Item{Node: uint64(nextIdx), Distance: nextDist})

			if includeDeleted || !g.tombstones.Test(uint(nextIdx)) {
				results.Push(queue.Item{Node: uint64(nextIdx), Distance: nextDist})
				if results.Len() > ef {
					_, _ = results.Pop()
				}
			}
		}
	}

	return results
}

// selectNeighbors drains the candidate heap and picks up to m neighbors.
func (g *Graph) selectNeighbors(candidates *queue.PriorityQueue, m int) []uint32 {
	if g.opts.Heuristic && candidates.Len() > m {
		return g.selectNeighborsHeuristic(candidates, m)
	}
	return g.selectNeighborsSimple(candidates, m)
}

func (g *Graph) selectNeighborsSimple(candidates *queue.PriorityQueue, m int) []uint32 {
	for candidates.Len() > m {
		_, _ = candidates.Pop()
	}

	res := make([]uint32, candidates.Len())
	for i := candidates.Len() - 1; i >= 0; i-- {
		item, _ := candidates.Pop()
		res[i] = uint32(item.Node)
	}
	return res
}

// selectNeighborsHeuristic keeps candidates that are closer to the source
// than to any already selected neighbor, preserving neighborhood diversity.
func (g *Graph) selectNeighborsHeuristic(candidates *queue.PriorityQueue, m int) []uint32 {
	// Drain worst-to-best, then walk best-to-worst.
	sorted := make([]queue.Item, candidates.Len())
	for i := len(sorted) - 1; i >= 0; i-- {
		sorted[i], _ = candidates.Pop()
	}

	result := make([]uint32, 0, m)
	for _, cand := range sorted {
		if len(result) >= m {
			break
		}

		candVec := g.nodes[cand.Node].vector

		good := true
		for _, selected := range result {
			if g.distFunc(candVec, g.nodes[selected].vector) < cand.Distance {
				good = false
				break
			}
		}
		if good {
			result = append(result, uint32(cand.Node))
		}
	}

	// Fill up with the closest skipped candidates.
	for _, cand := range sorted {
		if len(result) >= m {
			break
		}
		if !slices.Contains(result, uint32(cand.Node)) {
			result = append(result, uint32(cand.Node))
		}
	}

	return result
}

// KNNSearch returns up to k nearest neighbors of q, ordered by ascending
// distance with ties broken by ascending ID.
func (g *Graph) KNNSearch(q []float32, k int, ef int) ([]index.SearchResult, error) {
	if k < 1 {
		return nil, index.ErrInvalidK
	}
	if len(q) == 0 {
		return nil, index.ErrEmptyVector
	}
	if len(q) != g.opts.Dimension {
		return nil, &index.ErrDimensionMismatch{Expected: g.opts.Dimension, Actual: len(q)}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.entry < 0 || g.live == 0 {
		return nil, nil
	}

	if ef < k {
		ef = k
	}

	currIdx := uint32(g.entry)
	currDist := g.distFunc(q, g.nodes[currIdx].vector)
	for level := g.maxLevel; level > 0; level-- {
		currIdx, currDist = g.greedyStep(q, currIdx, currDist, level)
	}

	results := g.searchLayer(q, currIdx, currDist, 0, ef, false)
	for results.Len() > k {
		_, _ = results.Pop()
	}

	res := make([]index.SearchResult, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		item, _ := results.Pop()
		res[i] = index.SearchResult{ID: g.nodes[item.Node].id, Distance: item.Distance}
	}

	slices.SortFunc(res, func(a, b index.SearchResult) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})

	return res, nil
}

// Delete tombstones the node for the given ID. The node stays in the graph
// for navigation but is excluded from results. Deleting an absent ID is a
// no-op.
func (g *Graph) Delete(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx, ok := g.byID[id]
	if !ok || g.tombstones.Test(uint(idx)) {
		return
	}
	g.tombstones.Set(uint(idx))
	g.live--
}

// Contains reports whether the ID is live in the index.
func (g *Graph) Contains(id uint64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, ok := g.byID[id]
	return ok && !g.tombstones.Test(uint(idx))
}

// Len returns the number of live vectors.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.live
}

// Dimension returns the vector dimensionality.
func (g *Graph) Dimension() int {
	return g.opts.Dimension
}

func (g *Graph) randomLevel() int {
	return int(math.Floor(-math.Log(g.rng.Float64()) * g.levelMult))
}
