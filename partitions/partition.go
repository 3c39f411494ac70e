package partitions

import (
	"fmt"

	"github.com/notargets/ugrefine/element"
)

// Partition represents the level-0 elements one rank owns
type Partition struct {
	// Unique identifier for this partition, also the rank that owns it
	ID int

	// Element membership
	Elements    []int // Level-0 element indices in this partition
	NumElements int   // Actual number of elements
	MaxElements int   // KpartMax of the layout

	// Mixed element support
	Geometries []element.ElementGeometry // Shape of each element
	TypeGroups []ElementGroup            // Grouped by shape
}

// ElementGroup represents elements of the same shape within a partition
type ElementGroup struct {
	Geometry   element.ElementGeometry
	StartIndex int   // Starting position in the grouped order
	Count      int   // Number of elements of this shape
	LocalIDs   []int // Indices within the partition
}

// PartitionLayout manages the complete mesh decomposition
type PartitionLayout struct {
	// All partitions in the mesh
	Partitions []Partition

	// Global sizing information
	KpartMax      int // max(NumElements) across all partitions
	TotalElements int // Sum of all actual elements across partitions
	NumPartitions int // Total number of partitions

	// Element to partition mapping
	EToP []int // Length TotalElements: element k belongs to partition EToP[k]
}

// GetPartition returns the partition containing element k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("%d partitions stored, NumPartitions %d", len(pl.Partitions), pl.NumPartitions)
	}
	if len(pl.EToP) != pl.TotalElements {
		return fmt.Errorf("EToP length %d != TotalElements %d", len(pl.EToP), pl.TotalElements)
	}
	// Verify KpartMax
	actualMax, total := 0, 0
	for i, p := range pl.Partitions {
		if p.ID != i {
			return fmt.Errorf("partition %d stored at %d", p.ID, i)
		}
		if p.NumElements > actualMax {
			actualMax = p.NumElements
		}
		if p.MaxElements != pl.KpartMax {
			return fmt.Errorf("partition %d: MaxElements %d != KpartMax %d",
				p.ID, p.MaxElements, pl.KpartMax)
		}
		for _, k := range p.Elements {
			if pl.GetPartition(k) != p.ID {
				return fmt.Errorf("partition %d lists element %d owned by %d", p.ID, k, pl.GetPartition(k))
			}
		}
		total += p.NumElements
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	if total != pl.TotalElements {
		return fmt.Errorf("partitions hold %d elements, TotalElements %d", total, pl.TotalElements)
	}
	return nil
}
