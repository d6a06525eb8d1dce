package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrSplitTooSmall means one side of the split would be empty.
var ErrSplitTooSmall = errors.New("not enough rows to split")

// TrainTestSplit shuffles items with a seeded permutation and holds out
// ceil(len(items) * testRatio) of them. The same seed and input always give
// the same split.
func TrainTestSplit[T any](items []T, testRatio float64, seed int64) (train, test []T, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio must be in (0, 1), got %v", testRatio)
	}
	n := len(items)
	nTest := int(math.Ceil(float64(n) * testRatio))
	if nTest >= n {
		return nil, nil, fmt.Errorf("%w: %d rows with test ratio %v", ErrSplitTooSmall, n, testRatio)
	}

	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(n)
	test = make([]T, 0, nTest)
	train = make([]T, 0, n-nTest)
	for i, idx := range indices {
		if i < nTest {
			test = append(test, items[idx])
		} else {
			train = append(train, items[idx])
		}
	}
	return train, test, nil
}
