package ml

import "errors"

// Errors returned by pipelines and their stages.
var (
	ErrNotFitted     = errors.New("model not fitted")
	ErrMissingColumn = errors.New("missing column")
)

// Row is one record of named feature values, the tabular shape a Pipeline
// is trained on and predicts from.
type Row map[string]float64

// Transformer is a single-column preprocessing stage. Fit learns its
// parameters; Transform must not mutate the receiver or its input.
type Transformer interface {
	Kind() string
	Fit(values []float64) error
	Transform(values []float64) ([]float64, error)
}

// Regressor is the terminal estimator of a Pipeline.
type Regressor interface {
	Kind() string
	Fit(features [][]float64, targets []float64) error
	Predict(features []float64) (float64, error)
}

// Predictor is the read-only view of a fitted pipeline that serving needs.
type Predictor interface {
	Predict(rows []Row) ([]float64, error)
}
