package ml

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadModel reads a pipeline written by Pipeline.Save.
func LoadModel(path string) (*Pipeline, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var p Pipeline
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	return &p, nil
}
