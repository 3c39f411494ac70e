package refine

import "errors"

var (
	// ErrOverflow is returned before any mutation when the marked elements
	// would not fit in the object budget. The multigrid is unchanged.
	ErrOverflow = errors.New("refine: predicted object count exceeds capacity")
	// ErrPartitioning is returned before any mutation when a family of
	// elements is split across ranks. The multigrid is unchanged.
	ErrPartitioning = errors.New("refine: invalid partitioning")
	// ErrCorrupted wraps every failure after the pass started to mutate the
	// hierarchy. The multigrid is flagged and must be discarded.
	ErrCorrupted = errors.New("refine: multigrid corrupted")

	ErrNoRule           = errors.New("refine: no rule for pattern")
	ErrSonCount         = errors.New("refine: son count does not match rule")
	ErrNeighborMismatch = errors.New("refine: son sides do not match across father side")

	// User input validation, no mutation performed
	ErrInvalidRule = errors.New("refine: invalid rule id")
	ErrNotLeaf     = errors.New("refine: element is not a leaf")
)
