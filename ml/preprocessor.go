package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Stage kinds as written in a saved artifact.
const (
	KindWinsorizer     = "winsorizer"
	KindMedianImputer  = "median_imputer"
	KindStandardScaler = "standard_scaler"
)

var errNoObserved = errors.New("no observed values")

// Winsorizer caps both tails at Fold interquartile ranges beyond the
// quartiles. Missing values pass through untouched.
type Winsorizer struct {
	Fold   float64 `json:"fold"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
	Fitted bool    `json:"fitted"`
}

// NewWinsorizer returns an unfitted winsorizer; a non-positive fold means 1.5.
func NewWinsorizer(fold float64) *Winsorizer {
	if fold <= 0 {
		fold = 1.5
	}
	return &Winsorizer{Fold: fold}
}

func (w *Winsorizer) Kind() string { return KindWinsorizer }

// Fit computes the quartile fences from the observed values.
func (w *Winsorizer) Fit(values []float64) error {
	sorted := observed(values)
	if len(sorted) == 0 {
		return fmt.Errorf("%s: %w", w.Kind(), errNoObserved)
	}
	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	w.Lower = q1 - w.Fold*iqr
	w.Upper = q3 + w.Fold*iqr
	w.Fitted = true
	return nil
}

func (w *Winsorizer) validate() error {
	if !w.Fitted {
		return ErrNotFitted
	}
	if math.IsNaN(w.Lower) || math.IsNaN(w.Upper) || w.Lower > w.Upper {
		return fmt.Errorf("invalid bounds [%v, %v]", w.Lower, w.Upper)
	}
	return nil
}

func (w *Winsorizer) Transform(values []float64) ([]float64, error) {
	if !w.Fitted {
		return nil, fmt.Errorf("%s: %w", w.Kind(), ErrNotFitted)
	}
	out := make([]float64, len(values))
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			out[i] = v
		case v < w.Lower:
			out[i] = w.Lower
		case v > w.Upper:
			out[i] = w.Upper
		default:
			out[i] = v
		}
	}
	return out, nil
}

// MedianImputer replaces missing values with the training median.
type MedianImputer struct {
	Median float64 `json:"median"`
	Fitted bool    `json:"fitted"`
}

// NewMedianImputer returns an unfitted imputer.
func NewMedianImputer() *MedianImputer { return &MedianImputer{} }

func (m *MedianImputer) Kind() string { return KindMedianImputer }

func (m *MedianImputer) Fit(values []float64) error {
	sorted := observed(values)
	if len(sorted) == 0 {
		return fmt.Errorf("%s: %w", m.Kind(), errNoObserved)
	}
	m.Median = median(sorted)
	m.Fitted = true
	return nil
}

func (m *MedianImputer) validate() error {
	if !m.Fitted {
		return ErrNotFitted
	}
	if math.IsNaN(m.Median) {
		return errors.New("median is NaN")
	}
	return nil
}

func (m *MedianImputer) Transform(values []float64) ([]float64, error) {
	if !m.Fitted {
		return nil, fmt.Errorf("%s: %w", m.Kind(), ErrNotFitted)
	}
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			v = m.Median
		}
		out[i] = v
	}
	return out, nil
}

// StandardScaler centers on the training mean and divides by the
// population standard deviation. A constant column is only centered.
type StandardScaler struct {
	Mean   float64 `json:"mean"`
	Scale  float64 `json:"scale"`
	Fitted bool    `json:"fitted"`
}

// NewStandardScaler returns an unfitted scaler.
func NewStandardScaler() *StandardScaler { return &StandardScaler{} }

func (s *StandardScaler) Kind() string { return KindStandardScaler }

func (s *StandardScaler) Fit(values []float64) error {
	sorted := observed(values)
	if len(sorted) == 0 {
		return fmt.Errorf("%s: %w", s.Kind(), errNoObserved)
	}
	mean, std := stat.PopMeanStdDev(sorted, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	s.Mean = mean
	s.Scale = std
	s.Fitted = true
	return nil
}

func (s *StandardScaler) validate() error {
	if !s.Fitted {
		return ErrNotFitted
	}
	if s.Scale == 0 || math.IsNaN(s.Scale) || math.IsNaN(s.Mean) {
		return fmt.Errorf("invalid mean %v or scale %v", s.Mean, s.Scale)
	}
	return nil
}

func (s *StandardScaler) Transform(values []float64) ([]float64, error) {
	if !s.Fitted {
		return nil, fmt.Errorf("%s: %w", s.Kind(), ErrNotFitted)
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - s.Mean) / s.Scale
	}
	return out, nil
}
