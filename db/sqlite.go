package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// TrainingRun is one row of the training log.
type TrainingRun struct {
	ID         int64     `json:"id"`
	ModelName  string    `json:"model_name"`
	Department string    `json:"department"`
	Source     string    `json:"source"`
	TrainRows  int       `json:"train_rows"`
	TestRows   int       `json:"test_rows"`
	R2         float64   `json:"r2"`
	MAE        float64   `json:"mae"`
	RMSE       float64   `json:"rmse"`
	ModelPath  string    `json:"model_path"`
	TrainedAt  time.Time `json:"trained_at"`
}

// Store records training runs in SQLite.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    model_name VARCHAR(50) NOT NULL,
    department VARCHAR(50) NOT NULL,
    source TEXT NOT NULL,
    train_rows INTEGER NOT NULL,
    test_rows INTEGER NOT NULL,
    r2 REAL,
    mae REAL,
    rmse REAL,
    model_path TEXT NOT NULL,
    trained_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_training_log_trained_at ON training_log(trained_at);
`

// Open creates the database file and its parent directory if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create schema failed: %w", err)
	}
	return &Store{db: database}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTrainingRun inserts run and returns its id.
func (s *Store) SaveTrainingRun(ctx context.Context, run TrainingRun) (int64, error) {
	if run.TrainedAt.IsZero() {
		run.TrainedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log
            (model_name, department, source, train_rows, test_rows, r2, mae, rmse, model_path, trained_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ModelName, run.Department, run.Source, run.TrainRows, run.TestRows,
		run.R2, run.MAE, run.RMSE, run.ModelPath, run.TrainedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert training run: %w", err)
	}
	return res.LastInsertId()
}

// RecentTrainingRuns returns up to limit runs, newest first.
func (s *Store) RecentTrainingRuns(ctx context.Context, limit int) ([]TrainingRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, model_name, department, source, train_rows, test_rows, r2, mae, rmse, model_path, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query training runs: %w", err)
	}
	defer rows.Close()

	var runs []TrainingRun
	for rows.Next() {
		var run TrainingRun
		if err := rows.Scan(&run.ID, &run.ModelName, &run.Department, &run.Source,
			&run.TrainRows, &run.TestRows, &run.R2, &run.MAE, &run.RMSE,
			&run.ModelPath, &run.TrainedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
