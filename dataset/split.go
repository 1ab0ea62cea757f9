package dataset

import "github.com/fedopt-io/fedopt/model"

// Split partitions batches into an adaptation set and a held-out set. The
// split is positional, so the same input always yields the same partition.
// At least one batch lands on each side whenever len(batches) > 1.
func Split(batches []model.Batch, holdoutFraction float64) (adapt, holdout []model.Batch) {
	if len(batches) == 0 {
		return nil, nil
	}
	if len(batches) == 1 {
		return batches, nil
	}

	if holdoutFraction < 0 {
		holdoutFraction = 0
	}
	if holdoutFraction > 1 {
		holdoutFraction = 1
	}

	n := int(float64(len(batches)) * holdoutFraction)
	if n < 1 {
		n = 1
	}
	if n >= len(batches) {
		n = len(batches) - 1
	}

	cut := len(batches) - n

	return batches[:cut], batches[cut:]
}

// NumExamples sums the example counts of the given batches.
func NumExamples(batches []model.Batch) uint64 {
	var n uint64
	for _, b := range batches {
		n += uint64(b.Len())
	}

	return n
}
