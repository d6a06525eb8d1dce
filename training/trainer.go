// Package training turns a raw productivity CSV into a saved model
// artifact.
package training

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"productivity/db"
	"productivity/ml"
	"productivity/pipeline"
)

// Config describes one training run.
type Config struct {
	Source     string
	Encoding   string
	Department string
	TestRatio  float64
	Seed       int64
	ModelPath  string
	Booster    ml.BoosterConfig
}

// Result summarises a finished run.
type Result struct {
	Pipeline  *ml.Pipeline
	TrainRows int
	TestRows  int
	Rejected  int
	Metrics   ml.Metrics
	ModelPath string
	RunID     int64
}

// RunRecorder persists finished runs; *db.Store implements it.
type RunRecorder interface {
	SaveTrainingRun(ctx context.Context, run db.TrainingRun) (int64, error)
}

// Trainer wires loading, cleaning, fitting and persistence together.
type Trainer struct {
	logger   *zap.Logger
	recorder RunRecorder
}

// NewTrainer returns a trainer; recorder may be nil to skip the run log.
func NewTrainer(logger *zap.Logger, recorder RunRecorder) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{logger: logger, recorder: recorder}
}

// Run loads cfg.Source and trains on it.
func (t *Trainer) Run(ctx context.Context, cfg Config) (*Result, error) {
	records, err := pipeline.Load(ctx, cfg.Source, cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	t.logger.Info("dataset loaded", zap.String("source", cfg.Source), zap.Int("records", len(records)))
	return t.Train(ctx, cfg, records)
}

// Train fits, evaluates and saves a pipeline on already loaded records.
func (t *Trainer) Train(ctx context.Context, cfg Config, records []pipeline.Record) (*Result, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	department := cfg.Department
	if department == "" {
		department = pipeline.DefaultDepartment
	}
	if cfg.Booster == (ml.BoosterConfig{}) {
		cfg.Booster = ml.DefaultBoosterConfig()
		cfg.Booster.Seed = cfg.Seed
	}

	cleaner := pipeline.NewDataCleaner()
	cleaned, issues := cleaner.Clean(records)
	for _, issue := range issues {
		t.logger.Warn("record rejected",
			zap.String("rule", issue.Rule),
			zap.Int("row", issue.Row),
			zap.String("reason", issue.Message))
	}

	subset := pipeline.FilterDepartment(cleaned, department)
	if len(subset) == 0 {
		return nil, fmt.Errorf("%w: department %q", pipeline.ErrEmptyDataset, department)
	}

	train, test, err := ml.TrainTestSplit(subset, cfg.TestRatio, cfg.Seed)
	if err != nil {
		return nil, err
	}
	t.logger.Info("dataset split",
		zap.String("department", department),
		zap.Int("train_rows", len(train)),
		zap.Int("test_rows", len(test)),
		zap.Int64("seed", cfg.Seed))

	trainRows, trainTargets := toRows(train)
	model := ml.NewDefaultPipeline(pipeline.ColumnIncentive, cfg.Booster)
	if err := model.Fit(trainRows, trainTargets); err != nil {
		return nil, fmt.Errorf("fit pipeline: %w", err)
	}

	testRows, testTargets := toRows(test)
	predicted, err := model.Predict(testRows)
	if err != nil {
		return nil, fmt.Errorf("predict hold-out: %w", err)
	}
	metrics, err := ml.Evaluate(predicted, testTargets)
	if err != nil {
		return nil, err
	}
	t.logger.Info("hold-out evaluation",
		zap.Float64("r2", metrics.R2),
		zap.Float64("mae", metrics.MAE),
		zap.Float64("rmse", metrics.RMSE))

	if err := model.Save(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	if err := verifyArtifact(cfg.ModelPath, testRows, predicted); err != nil {
		return nil, err
	}
	t.logger.Info("model saved", zap.String("path", cfg.ModelPath))

	result := &Result{
		Pipeline:  model,
		TrainRows: len(train),
		TestRows:  len(test),
		Rejected:  len(issues),
		Metrics:   metrics,
		ModelPath: cfg.ModelPath,
	}
	if t.recorder != nil {
		id, err := t.recorder.SaveTrainingRun(ctx, db.TrainingRun{
			ModelName:  ml.KindGradientBoosting,
			Department: department,
			Source:     cfg.Source,
			TrainRows:  result.TrainRows,
			TestRows:   result.TestRows,
			R2:         metrics.R2,
			MAE:        metrics.MAE,
			RMSE:       metrics.RMSE,
			ModelPath:  cfg.ModelPath,
		})
		if err != nil {
			return nil, fmt.Errorf("record training run: %w", err)
		}
		result.RunID = id
	}
	return result, nil
}

// verifyArtifact reloads the saved file and requires identical predictions.
func verifyArtifact(path string, rows []ml.Row, want []float64) error {
	loaded, err := ml.LoadModel(path)
	if err != nil {
		return fmt.Errorf("reload model: %w", err)
	}
	got, err := loaded.Predict(rows)
	if err != nil {
		return fmt.Errorf("reload model: %w", err)
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("reloaded model differs at row %d: %v != %v", i, got[i], want[i])
		}
	}
	return nil
}

func toRows(records []pipeline.Record) ([]ml.Row, []float64) {
	rows := make([]ml.Row, len(records))
	targets := make([]float64, len(records))
	for i, rec := range records {
		rows[i] = ml.Row{pipeline.ColumnIncentive: rec.Incentive}
		targets[i] = rec.ActualProductivity
	}
	return rows, targets
}
