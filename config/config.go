// Package config loads the YAML configuration shared by the server, the
// trainer and the form UI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// DefaultPath is the config file looked up when no --config flag is given.
const DefaultPath = "config.yaml"

// DefaultDatasetURL is the published garments worker productivity dataset.
const DefaultDatasetURL = "https://raw.githubusercontent.com/Alyxx-The-Sniper/Grament_production_analyis/refs/heads/main/garments_worker_productivity.csv"

// Config is the shared configuration of the API, the trainer and the UI.
type Config struct {
	Http struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Model struct {
		Path string `yaml:"path"`
	} `yaml:"model"`
	Training struct {
		Source     string  `yaml:"source"`
		Encoding   string  `yaml:"encoding"`
		Department string  `yaml:"department"`
		TestRatio  float64 `yaml:"test_ratio"`
		Seed       int64   `yaml:"seed"`
		Booster    struct {
			NEstimators     int     `yaml:"n_estimators"`
			LearningRate    float64 `yaml:"learning_rate"`
			MaxDepth        int     `yaml:"max_depth"`
			Subsample       float64 `yaml:"subsample"`
			ColsampleByTree float64 `yaml:"colsample_bytree"`
		} `yaml:"booster"`
	} `yaml:"training"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	UI struct {
		Port   int    `yaml:"port"`
		APIURL string `yaml:"api_url"`
	} `yaml:"ui"`
	Log struct {
		Level      string `yaml:"level"`
		Encoding   string `yaml:"encoding"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
}

// Default returns a config with every field set to its default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path. With no path it reads config.yaml, falling back to
// ../config.yaml when the binary is run from inside cmd/, and to the
// defaults when neither exists. A missing explicit file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			alt := filepath.Join("..", path)
			if !fileExists(alt) {
				return Default(), nil
			}
			path = alt
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values that would make training or serving meaningless.
func (c *Config) Validate() error {
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		return fmt.Errorf("training.test_ratio must be in (0, 1), got %v", c.Training.TestRatio)
	}
	if c.Training.Booster.Subsample <= 0 || c.Training.Booster.Subsample > 1 {
		return fmt.Errorf("training.booster.subsample must be in (0, 1], got %v", c.Training.Booster.Subsample)
	}
	if c.Training.Booster.ColsampleByTree <= 0 || c.Training.Booster.ColsampleByTree > 1 {
		return fmt.Errorf("training.booster.colsample_bytree must be in (0, 1], got %v", c.Training.Booster.ColsampleByTree)
	}
	if c.Http.Port <= 0 || c.UI.Port <= 0 {
		return errors.New("http.port and ui.port must be positive")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Http.Port == 0 {
		c.Http.Port = 8000
	}
	if len(c.Http.AllowedOrigins) == 0 {
		c.Http.AllowedOrigins = []string{"*"}
	}
	if c.Http.MaxBodyBytes == 0 {
		c.Http.MaxBodyBytes = 1 << 20
	}
	if c.Model.Path == "" {
		c.Model.Path = "./models/model_1.json"
	}
	if c.Training.Source == "" {
		c.Training.Source = DefaultDatasetURL
	}
	if c.Training.Encoding == "" {
		c.Training.Encoding = "utf-8"
	}
	if c.Training.Department == "" {
		c.Training.Department = "sewing"
	}
	if c.Training.TestRatio == 0 {
		c.Training.TestRatio = 0.2
	}
	if c.Training.Seed == 0 {
		c.Training.Seed = 42
	}
	b := &c.Training.Booster
	if b.NEstimators == 0 {
		b.NEstimators = 100
	}
	if b.LearningRate == 0 {
		b.LearningRate = 0.1
	}
	if b.MaxDepth == 0 {
		b.MaxDepth = 3
	}
	if b.Subsample == 0 {
		b.Subsample = 0.8
	}
	if b.ColsampleByTree == 0 {
		b.ColsampleByTree = 0.8
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/training.db"
	}
	if c.UI.Port == 0 {
		c.UI.Port = 8501
	}
	if c.UI.APIURL == "" {
		c.UI.APIURL = "http://127.0.0.1:8000"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "json"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
