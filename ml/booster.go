package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// KindGradientBoosting tags the regressor in a saved artifact.
const KindGradientBoosting = "gradient_boosting"

// BoosterConfig holds the hyperparameters of GradientBoostedRegressor.
type BoosterConfig struct {
	NEstimators     int     `json:"n_estimators"`
	LearningRate    float64 `json:"learning_rate"`
	MaxDepth        int     `json:"max_depth"`
	Subsample       float64 `json:"subsample"`
	ColsampleByTree float64 `json:"colsample_bytree"`
	Lambda          float64 `json:"reg_lambda"`
	MinChildWeight  float64 `json:"min_child_weight"`
	Seed            int64   `json:"seed"`
}

// DefaultBoosterConfig returns 100 depth-3 trees at learning rate 0.1 with
// 0.8 row and column sampling.
func DefaultBoosterConfig() BoosterConfig {
	return BoosterConfig{
		NEstimators:     100,
		LearningRate:    0.1,
		MaxDepth:        3,
		Subsample:       0.8,
		ColsampleByTree: 0.8,
		Lambda:          1,
		MinChildWeight:  1,
		Seed:            42,
	}
}

func (c BoosterConfig) validate() error {
	switch {
	case c.NEstimators <= 0:
		return fmt.Errorf("n_estimators must be positive, got %d", c.NEstimators)
	case c.LearningRate <= 0:
		return fmt.Errorf("learning_rate must be positive, got %v", c.LearningRate)
	case c.MaxDepth <= 0:
		return fmt.Errorf("max_depth must be positive, got %d", c.MaxDepth)
	case c.Subsample <= 0 || c.Subsample > 1:
		return fmt.Errorf("subsample must be in (0, 1], got %v", c.Subsample)
	case c.ColsampleByTree <= 0 || c.ColsampleByTree > 1:
		return fmt.Errorf("colsample_bytree must be in (0, 1], got %v", c.ColsampleByTree)
	case c.Lambda < 0 || c.MinChildWeight < 0:
		return errors.New("reg_lambda and min_child_weight must not be negative")
	}
	return nil
}

// GradientBoostedRegressor fits an additive ensemble of shallow regression
// trees to squared error, starting from the mean target.
type GradientBoostedRegressor struct {
	Config      BoosterConfig    `json:"config"`
	BaseScore   float64          `json:"base_score"`
	NumFeatures int              `json:"num_features"`
	Trees       []RegressionTree `json:"trees"`
}

// NewGradientBoostedRegressor returns an unfitted regressor.
func NewGradientBoostedRegressor(config BoosterConfig) *GradientBoostedRegressor {
	return &GradientBoostedRegressor{Config: config}
}

func (m *GradientBoostedRegressor) Kind() string { return KindGradientBoosting }

// Fit grows Config.NEstimators trees, each on a fresh row and column sample.
func (m *GradientBoostedRegressor) Fit(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	if err := m.Config.validate(); err != nil {
		return err
	}
	numFeatures := len(features[0])
	if numFeatures == 0 {
		return errors.New("no feature columns")
	}
	for i, row := range features {
		if len(row) != numFeatures {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), numFeatures)
		}
	}

	n := len(targets)
	rnd := rand.New(rand.NewSource(m.Config.Seed))
	base := stat.Mean(targets, nil)
	preds := make([]float64, n)
	for i := range preds {
		preds[i] = base
	}

	grad := make([]float64, n)
	hess := make([]float64, n)
	trees := make([]RegressionTree, 0, m.Config.NEstimators)
	for round := 0; round < m.Config.NEstimators; round++ {
		for i := range grad {
			grad[i] = preds[i] - targets[i]
			hess[i] = 1
		}
		builder := &treeBuilder{
			features:       features,
			grad:           grad,
			hess:           hess,
			columns:        sampleColumns(rnd, numFeatures, m.Config.ColsampleByTree),
			maxDepth:       m.Config.MaxDepth,
			lambda:         m.Config.Lambda,
			minChildWeight: m.Config.MinChildWeight,
			eta:            m.Config.LearningRate,
		}
		tree := RegressionTree{Nodes: builder.build(sampleRows(rnd, n, m.Config.Subsample), 0)}
		for i, row := range features {
			delta, err := tree.Predict(row)
			if err != nil {
				return fmt.Errorf("round %d: %w", round, err)
			}
			preds[i] += delta
		}
		trees = append(trees, tree)
	}

	m.BaseScore = base
	m.NumFeatures = numFeatures
	m.Trees = trees
	return nil
}

// Predict sums the base score and every tree output.
func (m *GradientBoostedRegressor) Predict(features []float64) (float64, error) {
	if len(m.Trees) == 0 {
		return 0, ErrNotFitted
	}
	if len(features) != m.NumFeatures {
		return 0, fmt.Errorf("got %d features, want %d", len(features), m.NumFeatures)
	}
	out := m.BaseScore
	for i := range m.Trees {
		delta, err := m.Trees[i].Predict(features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		out += delta
	}
	return out, nil
}

func (m *GradientBoostedRegressor) validate() error {
	if len(m.Trees) == 0 {
		return ErrNotFitted
	}
	if m.NumFeatures < 1 {
		return fmt.Errorf("num_features must be positive, got %d", m.NumFeatures)
	}
	for i := range m.Trees {
		if err := m.Trees[i].validate(m.NumFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// sampleRows keeps each row with probability ratio, never returning an
// empty sample.
func sampleRows(rnd *rand.Rand, n int, ratio float64) []int {
	rows := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if ratio >= 1 || rnd.Float64() < ratio {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, rnd.Intn(n))
	}
	return rows
}

func sampleColumns(rnd *rand.Rand, n int, ratio float64) []int {
	k := int(math.Round(float64(n) * ratio))
	if k < 1 {
		k = 1
	}
	if k >= n {
		cols := make([]int, n)
		for i := range cols {
			cols[i] = i
		}
		return cols
	}
	perm := rnd.Perm(n)
	cols := perm[:k]
	sort.Ints(cols)
	return cols
}
