package partitions

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/ugrefine/element"
	"github.com/notargets/ugrefine/mesh"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// PartitionBuilder constructs partitions from mesh connectivity
type PartitionBuilder struct {
	// Mesh connectivity
	Mesh *MeshConnectivity

	// Partitioning parameters
	NumPartitions       int // Number of ranks; derived from TargetPartitionSize when zero
	TargetPartitionSize int // Desired elements per partition
	Strategy            PartitionStrategy
}

// MeshConnectivity provides the level-0 topology needed for partitioning
type MeshConnectivity struct {
	NumElements int
	Geometries  []element.ElementGeometry
	GIDs        []int64

	// Face connectivity, boundary faces reference the element itself
	EToE [][]int
}

// NewMeshConnectivity extracts the level-0 connectivity of mg
func NewMeshConnectivity(mg *mesh.MultiGrid) *MeshConnectivity {
	elems := mg.Level(0).Elements()
	mc := &MeshConnectivity{
		NumElements: len(elems),
		Geometries:  make([]element.ElementGeometry, len(elems)),
		GIDs:        make([]int64, len(elems)),
		EToE:        make([][]int, len(elems)),
	}
	index := make(map[*mesh.Element]int, len(elems))
	for k, e := range elems {
		index[e] = k
	}
	for k, e := range elems {
		mc.Geometries[k] = e.Geometry
		mc.GIDs[k] = e.GID
		mc.EToE[k] = make([]int, len(e.Nb))
		for f, nb := range e.Nb {
			mc.EToE[k][f] = k
			if j, ok := index[nb]; ok {
				mc.EToE[k][f] = j
			}
		}
	}
	return mc
}

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	// Simple strategies
	BlockPartition PartitionStrategy = iota // Consecutive elements
	RoundRobin                              // Distribute cyclically

	// Graph-based strategies
	GraphPartition // Breadth first graph growing over face neighbors
)

func (s PartitionStrategy) String() string {
	return [...]string{"block", "roundrobin", "graph"}[s]
}

// ParseStrategy converts a strategy name back to its value
func ParseStrategy(name string) (PartitionStrategy, error) {
	for s := BlockPartition; s <= GraphPartition; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown partition strategy %q", name)
}

// BuildPartitions creates a partition layout from mesh connectivity
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.Mesh == nil || pb.Mesh.NumElements == 0 {
		return nil, fmt.Errorf("no elements to partition")
	}
	// Determine number of partitions needed
	numPartitions := pb.calculateNumPartitions()
	if numPartitions > pb.Mesh.NumElements {
		return nil, fmt.Errorf("%d partitions for %d elements", numPartitions, pb.Mesh.NumElements)
	}

	// Partition the elements
	eToP := pb.partitionElements(numPartitions)

	// Create partition structures
	partitions := pb.createPartitions(eToP, numPartitions)

	kpartMax := pb.calculateKpartMax(partitions)
	for i := range partitions {
		partitions[i].MaxElements = kpartMax
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalElements: pb.Mesh.NumElements,
		NumPartitions: numPartitions,
		EToP:          eToP,
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	return layout, nil
}

// calculateNumPartitions determines the partition count
func (pb *PartitionBuilder) calculateNumPartitions() int {
	if pb.NumPartitions > 0 {
		return pb.NumPartitions
	}
	numPartitions := 1
	if pb.TargetPartitionSize > 0 {
		numPartitions = int(math.Ceil(float64(pb.Mesh.NumElements) / float64(pb.TargetPartitionSize)))
	}
	if numPartitions < 1 {
		numPartitions = 1
	}
	return numPartitions
}

// partitionElements assigns elements to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) []int {
	eToP := make([]int, pb.Mesh.NumElements)

	switch pb.Strategy {
	case RoundRobin:
		for i := 0; i < pb.Mesh.NumElements; i++ {
			eToP[i] = i % numPartitions
		}

	case GraphPartition:
		return pb.growPartitions(numPartitions)

	default:
		elementsPerPartition := int(math.Ceil(float64(pb.Mesh.NumElements) / float64(numPartitions)))
		for i := 0; i < pb.Mesh.NumElements; i++ {
			eToP[i] = i / elementsPerPartition
			if eToP[i] >= numPartitions {
				eToP[i] = numPartitions - 1
			}
		}
	}

	return eToP
}

// sortedGraph visits neighbors in id order so partitions are reproducible
type sortedGraph struct{ *simple.UndirectedGraph }

func (g sortedGraph) From(id int64) graph.Nodes {
	nodes := graph.NodesOf(g.UndirectedGraph.From(id))
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
	return iterator.NewOrderedNodes(nodes)
}

// growPartitions grows each partition breadth first from its lowest
// unassigned element until it reaches its share, so partitions are face
// connected where the mesh allows it. The last partition takes the rest.
func (pb *PartitionBuilder) growPartitions(numPartitions int) []int {
	K := pb.Mesh.NumElements
	eToP := make([]int, K)
	for i := range eToP {
		eToP[i] = -1
	}
	g := simple.NewUndirectedGraph()
	for k := 0; k < K; k++ {
		g.AddNode(simple.Node(k))
	}
	for k, nbs := range pb.Mesh.EToE {
		for _, j := range nbs {
			if j > k {
				g.SetEdge(g.NewEdge(simple.Node(k), simple.Node(j)))
			}
		}
	}

	next, assigned := 0, 0
	for p := 0; p < numPartitions; p++ {
		// share of the elements still unassigned
		target := int(math.Ceil(float64(K-assigned) / float64(numPartitions-p)))
		if p == numPartitions-1 {
			target = K
		}
		count := 0
		for count < target {
			for next < K && eToP[next] >= 0 {
				next++
			}
			if next == K {
				break
			}
			bfs := traverse.BreadthFirst{
				Traverse: func(e graph.Edge) bool {
					return eToP[e.From().ID()] < 0 || eToP[e.To().ID()] < 0
				},
			}
			bfs.Walk(sortedGraph{g}, simple.Node(next), func(n graph.Node, _ int) bool {
				if count == target {
					return true
				}
				if eToP[n.ID()] < 0 {
					eToP[n.ID()] = p
					count++
					assigned++
				}
				return false
			})
		}
	}
	return eToP
}

// createPartitions builds partition structures from element assignments
func (pb *PartitionBuilder) createPartitions(eToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)
	for i := range partitions {
		partitions[i] = Partition{ID: i}
	}

	for elem, part := range eToP {
		partitions[part].Elements = append(partitions[part].Elements, elem)
		if pb.Mesh.Geometries != nil {
			partitions[part].Geometries = append(partitions[part].Geometries, pb.Mesh.Geometries[elem])
		}
		partitions[part].NumElements++
	}

	for i := range partitions {
		partitions[i].TypeGroups = pb.createElementGroups(&partitions[i])
	}

	return partitions
}

// createElementGroups organizes elements by shape within a partition
func (pb *PartitionBuilder) createElementGroups(p *Partition) []ElementGroup {
	if len(p.Geometries) == 0 {
		return nil
	}

	typeCounts := make(map[element.ElementGeometry][]int)
	for i, g := range p.Geometries {
		typeCounts[g] = append(typeCounts[g], i)
	}
	geoms := make([]element.ElementGeometry, 0, len(typeCounts))
	for g := range typeCounts {
		geoms = append(geoms, g)
	}
	sort.Slice(geoms, func(i, j int) bool { return geoms[i] < geoms[j] })

	groups := make([]ElementGroup, 0, len(typeCounts))
	currentIndex := 0
	for _, g := range geoms {
		indices := typeCounts[g]
		groups = append(groups, ElementGroup{
			Geometry:   g,
			StartIndex: currentIndex,
			Count:      len(indices),
			LocalIDs:   indices,
		})
		currentIndex += len(indices)
	}

	return groups
}

// calculateKpartMax finds maximum elements across all partitions
func (pb *PartitionBuilder) calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	return kpartMax
}

// PartitionStatistics computes load balance metrics
func (layout *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: layout.NumPartitions,
		MinElements:   math.MaxInt32,
		MaxElements:   0,
		AvgElements:   float64(layout.TotalElements) / float64(layout.NumPartitions),
	}

	for _, p := range layout.Partitions {
		if p.NumElements < stats.MinElements {
			stats.MinElements = p.NumElements
		}
		if p.NumElements > stats.MaxElements {
			stats.MaxElements = p.NumElements
		}
	}

	stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements

	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinElements   int
	MaxElements   int
	AvgElements   float64
	Imbalance     float64 // MaxElements / AvgElements
}

// CutFaces counts the interior faces whose elements lie in different
// partitions, each face once
func (layout *PartitionLayout) CutFaces(mc *MeshConnectivity) int {
	n := 0
	for k, nbs := range mc.EToE {
		for _, j := range nbs {
			if j > k && layout.EToP[j] != layout.EToP[k] {
				n++
			}
		}
	}
	return n
}
