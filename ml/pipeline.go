package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Pipeline applies an ordered list of single-column transforms to one
// feature and feeds the result to a regressor. Once fitted it is read-only
// and safe for concurrent Predict calls.
type Pipeline struct {
	feature   string
	stages    []Transformer
	regressor Regressor
	fitted    bool
}

// NewPipeline chains stages in order in front of regressor, all reading the
// single column feature.
func NewPipeline(feature string, regressor Regressor, stages ...Transformer) *Pipeline {
	return &Pipeline{
		feature:   feature,
		stages:    stages,
		regressor: regressor,
	}
}

// NewDefaultPipeline caps outliers at 1.5 IQR, imputes the median, scales
// to unit variance and boosts trees on the result.
func NewDefaultPipeline(feature string, config BoosterConfig) *Pipeline {
	return NewPipeline(feature,
		NewGradientBoostedRegressor(config),
		NewWinsorizer(1.5),
		NewMedianImputer(),
		NewStandardScaler(),
	)
}

// Feature is the input column name.
func (p *Pipeline) Feature() string { return p.feature }

func (p *Pipeline) Fitted() bool { return p.fitted }

// Fit fits every stage in order on the output of the previous one, then
// the regressor. Nothing outside rows and targets is consulted.
func (p *Pipeline) Fit(rows []Row, targets []float64) error {
	if len(rows) == 0 {
		return errors.New("no rows to fit")
	}
	if len(rows) != len(targets) {
		return errors.New("rows and targets size mismatch")
	}
	if p.regressor == nil {
		return errors.New("pipeline has no regressor")
	}
	values, err := p.column(rows)
	if err != nil {
		return err
	}
	for _, stage := range p.stages {
		if err := stage.Fit(values); err != nil {
			return fmt.Errorf("fit %s: %w", stage.Kind(), err)
		}
		if values, err = stage.Transform(values); err != nil {
			return fmt.Errorf("transform %s: %w", stage.Kind(), err)
		}
	}
	if err := p.regressor.Fit(toMatrix(values), targets); err != nil {
		return fmt.Errorf("fit %s: %w", p.regressor.Kind(), err)
	}
	p.fitted = true
	return nil
}

// Predict transforms the feature column through every stage and returns
// one raw prediction per row.
func (p *Pipeline) Predict(rows []Row) ([]float64, error) {
	if !p.fitted {
		return nil, ErrNotFitted
	}
	values, err := p.column(rows)
	if err != nil {
		return nil, err
	}
	for _, stage := range p.stages {
		if values, err = stage.Transform(values); err != nil {
			return nil, fmt.Errorf("transform %s: %w", stage.Kind(), err)
		}
	}
	out := make([]float64, len(values))
	for i, v := range values {
		if out[i], err = p.regressor.Predict([]float64{v}); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return out, nil
}

func (p *Pipeline) column(rows []Row) ([]float64, error) {
	values := make([]float64, len(rows))
	for i, row := range rows {
		v, ok := row[p.feature]
		if !ok {
			return nil, fmt.Errorf("row %d: %w %q", i, ErrMissingColumn, p.feature)
		}
		values[i] = v
	}
	return values, nil
}

func toMatrix(values []float64) [][]float64 {
	matrix := make([][]float64, len(values))
	for i, v := range values {
		matrix[i] = []float64{v}
	}
	return matrix
}

type pipelineDocument struct {
	Feature   string          `json:"feature"`
	Stages    []componentSpec `json:"stages"`
	Regressor componentSpec   `json:"regressor"`
}

type componentSpec struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// MarshalJSON encodes a fitted pipeline as a self-describing document.
func (p *Pipeline) MarshalJSON() ([]byte, error) {
	if !p.fitted {
		return nil, ErrNotFitted
	}
	doc := pipelineDocument{Feature: p.feature}
	for _, stage := range p.stages {
		spec, err := encodeComponent(stage.Kind(), stage)
		if err != nil {
			return nil, err
		}
		doc.Stages = append(doc.Stages, spec)
	}
	spec, err := encodeComponent(p.regressor.Kind(), p.regressor)
	if err != nil {
		return nil, err
	}
	doc.Regressor = spec
	return json.Marshal(doc)
}

// UnmarshalJSON decodes and validates a document written by MarshalJSON.
func (p *Pipeline) UnmarshalJSON(data []byte) error {
	var doc pipelineDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Feature == "" {
		return errors.New("pipeline document has no feature")
	}
	stages := make([]Transformer, 0, len(doc.Stages))
	for i, spec := range doc.Stages {
		stage, err := decodeStage(spec)
		if err != nil {
			return fmt.Errorf("stage %d: %w", i, err)
		}
		stages = append(stages, stage)
	}
	regressor, err := decodeRegressor(doc.Regressor)
	if err != nil {
		return fmt.Errorf("regressor: %w", err)
	}
	*p = Pipeline{
		feature:   doc.Feature,
		stages:    stages,
		regressor: regressor,
		fitted:    true,
	}
	return nil
}

func encodeComponent(kind string, v any) (componentSpec, error) {
	params, err := json.Marshal(v)
	if err != nil {
		return componentSpec{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	return componentSpec{Kind: kind, Params: params}, nil
}

// checkedTransformer is a stage that can verify its decoded parameters.
type checkedTransformer interface {
	Transformer
	validate() error
}

func decodeStage(spec componentSpec) (Transformer, error) {
	var stage checkedTransformer
	switch spec.Kind {
	case KindWinsorizer:
		stage = &Winsorizer{}
	case KindMedianImputer:
		stage = &MedianImputer{}
	case KindStandardScaler:
		stage = &StandardScaler{}
	default:
		return nil, fmt.Errorf("unsupported stage %q", spec.Kind)
	}
	if err := json.Unmarshal(spec.Params, stage); err != nil {
		return nil, fmt.Errorf("decode %s: %w", spec.Kind, err)
	}
	if err := stage.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Kind, err)
	}
	return stage, nil
}

func decodeRegressor(spec componentSpec) (Regressor, error) {
	switch spec.Kind {
	case KindGradientBoosting:
		model := &GradientBoostedRegressor{}
		if err := json.Unmarshal(spec.Params, model); err != nil {
			return nil, fmt.Errorf("decode %s: %w", spec.Kind, err)
		}
		if err := model.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Kind, err)
		}
		if model.NumFeatures != 1 {
			return nil, fmt.Errorf("%s: pipeline feeds one feature, model expects %d", spec.Kind, model.NumFeatures)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported regressor %q", spec.Kind)
	}
}

// Save writes the fitted pipeline to path, replacing any previous file
// only once the new one is complete.
func (p *Pipeline) Save(path string) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
