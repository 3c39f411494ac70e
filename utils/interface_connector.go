package utils

import (
	"fmt"
)

// SharedObject is an object of one partition that other partitions hold
// copies of
type SharedObject struct {
	GID   int64
	Procs []int // other partitions holding a copy
}

// InterfaceConnector manages pick and place indices for the objects
// shared between partitions
type InterfaceConnector struct {
	NumPartitions int

	// Input, per partition in local order
	Objects [][]SharedObject

	// Partition mappings
	GlobalToLocal []map[int64]int // [partition][gid] → local index

	// Pick/Place indices per partition
	PickIndices  [][]PickBuffer  // [sourcePartition][targetPartition]
	PlaceIndices [][]PlaceBuffer // [targetPartition][sourcePartition]

	// Dangling counts proc entries naming a partition that holds no copy
	Dangling int
}

// PickBuffer contains indices for gathering values to send
type PickBuffer struct {
	Indices         []int // Local object indices
	TargetPartition int
}

// PlaceBuffer contains indices for scattering received values
type PlaceBuffer struct {
	Indices         []int // Local object indices
	SourcePartition int
}

// NewInterfaceConnector creates a connector from the shared object lists
// of all partitions
func NewInterfaceConnector(objects [][]SharedObject) (*InterfaceConnector, error) {
	if len(objects) == 0 {
		return nil, fmt.Errorf("no partitions")
	}
	ic := &InterfaceConnector{
		NumPartitions: len(objects),
		Objects:       objects,
	}

	if err := ic.buildPartitionMappings(); err != nil {
		return nil, err
	}
	ic.initializeBuffers()
	if err := ic.BuildIndices(); err != nil {
		return nil, err
	}
	return ic, nil
}

// buildPartitionMappings maps global ids to local object indices
func (ic *InterfaceConnector) buildPartitionMappings() error {
	ic.GlobalToLocal = make([]map[int64]int, ic.NumPartitions)
	for p, objs := range ic.Objects {
		ic.GlobalToLocal[p] = make(map[int64]int, len(objs))
		for i, o := range objs {
			if j, dup := ic.GlobalToLocal[p][o.GID]; dup {
				return fmt.Errorf("partition %d: object %d listed at %d and %d", p, o.GID, j, i)
			}
			ic.GlobalToLocal[p][o.GID] = i
		}
	}
	return nil
}

// initializeBuffers creates empty pick and place buffer structures
func (ic *InterfaceConnector) initializeBuffers() {
	ic.PickIndices = make([][]PickBuffer, ic.NumPartitions)
	ic.PlaceIndices = make([][]PlaceBuffer, ic.NumPartitions)
	for p := 0; p < ic.NumPartitions; p++ {
		ic.PickIndices[p] = make([]PickBuffer, ic.NumPartitions)
		ic.PlaceIndices[p] = make([]PlaceBuffer, ic.NumPartitions)
		for q := 0; q < ic.NumPartitions; q++ {
			ic.PickIndices[p][q] = PickBuffer{TargetPartition: q}
			ic.PlaceIndices[p][q] = PlaceBuffer{SourcePartition: q}
		}
	}
}

// BuildIndices pairs every shared object of a partition with its copy on
// each holder. Pick and place lists of a partition pair are built in the
// same order, so position k of both refers to the same object.
func (ic *InterfaceConnector) BuildIndices() error {
	ic.Dangling = 0
	for p, objs := range ic.Objects {
		for i, o := range objs {
			for _, q := range o.Procs {
				if q < 0 || q >= ic.NumPartitions || q == p {
					return fmt.Errorf("partition %d: object %d names invalid partition %d", p, o.GID, q)
				}
				j, ok := ic.GlobalToLocal[q][o.GID]
				if !ok {
					ic.Dangling++
					continue
				}
				ic.PickIndices[p][q].Indices = append(ic.PickIndices[p][q].Indices, i)
				ic.PlaceIndices[q][p].Indices = append(ic.PlaceIndices[q][p].Indices, j)
			}
		}
	}
	return nil
}

// GetPickIndices returns pick indices for sending from source to target partition
func (ic *InterfaceConnector) GetPickIndices(sourcePartition, targetPartition int) []int {
	if sourcePartition < 0 || sourcePartition >= ic.NumPartitions ||
		targetPartition < 0 || targetPartition >= ic.NumPartitions {
		return nil
	}
	return ic.PickIndices[sourcePartition][targetPartition].Indices
}

// GetPlaceIndices returns place indices for target partition receiving from source
func (ic *InterfaceConnector) GetPlaceIndices(targetPartition, sourcePartition int) []int {
	if targetPartition < 0 || targetPartition >= ic.NumPartitions ||
		sourcePartition < 0 || sourcePartition >= ic.NumPartitions {
		return nil
	}
	return ic.PlaceIndices[targetPartition][sourcePartition].Indices
}

// Verify checks index validity, correspondence, symmetry and conservation
func (ic *InterfaceConnector) Verify() error {
	// Verify 1: Local validity - all indices are within bounds
	for p := 0; p < ic.NumPartitions; p++ {
		n := len(ic.Objects[p])
		for q := 0; q < ic.NumPartitions; q++ {
			for _, idx := range ic.PickIndices[p][q].Indices {
				if idx < 0 || idx >= n {
					return fmt.Errorf("invalid pick index %d for partition %d (max %d)", idx, p, n-1)
				}
			}
			for _, idx := range ic.PlaceIndices[p][q].Indices {
				if idx < 0 || idx >= n {
					return fmt.Errorf("invalid place index %d for partition %d (max %d)", idx, p, n-1)
				}
			}
		}
	}

	// Verify 2: Correspondence - pick and place refer to the same object
	for p := 0; p < ic.NumPartitions; p++ {
		for q := 0; q < ic.NumPartitions; q++ {
			pick := ic.PickIndices[p][q].Indices
			place := ic.PlaceIndices[q][p].Indices
			if len(pick) != len(place) {
				return fmt.Errorf("length mismatch: pick[%d][%d]=%d, place[%d][%d]=%d",
					p, q, len(pick), q, p, len(place))
			}
			for k := range pick {
				a, b := ic.Objects[p][pick[k]].GID, ic.Objects[q][place[k]].GID
				if a != b {
					return fmt.Errorf("pick[%d][%d][%d] is object %d, place is object %d", p, q, k, a, b)
				}
			}
		}
	}

	// Verify 3: Symmetry - a copy on q implies q knows the copy on p
	for p := 0; p < ic.NumPartitions; p++ {
		for q := p + 1; q < ic.NumPartitions; q++ {
			if a, b := len(ic.PickIndices[p][q].Indices), len(ic.PickIndices[q][p].Indices); a != b {
				return fmt.Errorf("asymmetric interface: %d objects %d→%d, %d objects %d→%d", a, p, q, b, q, p)
			}
		}
	}

	// Verify 4: Conservation - every proc entry is a pick or dangling
	totalPicks, totalProcs := 0, 0
	for p := 0; p < ic.NumPartitions; p++ {
		for q := 0; q < ic.NumPartitions; q++ {
			totalPicks += len(ic.PickIndices[p][q].Indices)
		}
		for _, o := range ic.Objects[p] {
			totalProcs += len(o.Procs)
		}
	}
	if totalPicks+ic.Dangling != totalProcs {
		return fmt.Errorf("conservation error: %d picks + %d dangling != %d proc entries",
			totalPicks, ic.Dangling, totalProcs)
	}
	return nil
}
