package ml

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Metrics summarises regression quality on a hold-out set.
type Metrics struct {
	R2   float64 `json:"r2"`
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
}

// Evaluate scores predictions against the observed targets.
func Evaluate(predicted, actual []float64) (Metrics, error) {
	if len(predicted) == 0 {
		return Metrics{}, errors.New("nothing to evaluate")
	}
	if len(predicted) != len(actual) {
		return Metrics{}, errors.New("predicted and actual size mismatch")
	}
	var absSum, sqSum float64
	for i := range predicted {
		diff := predicted[i] - actual[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
	}
	n := float64(len(predicted))
	r2 := stat.RSquaredFrom(predicted, actual, nil)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		// constant target: R² is undefined
		r2 = 0
	}
	return Metrics{
		R2:   r2,
		MAE:  absSum / n,
		RMSE: math.Sqrt(sqSum / n),
	}, nil
}
