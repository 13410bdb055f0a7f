// Package models - Registry of loaded classification models and their label vocabularies.
package models

import (
	"fmt"

	"github.com/nvr-ai/go-classify/inference"
)

// Config describes how to load one model.
type Config struct {
	// WeightsPath is the compiled model file.
	WeightsPath string `json:"weights" yaml:"weights" mapstructure:"weights"`
	// LabelsPath is the label file, one class per line.
	LabelsPath string `json:"labels" yaml:"labels" mapstructure:"labels"`
	// InputSide is the square input edge length in pixels.
	InputSide int `json:"input_side" yaml:"input_side" mapstructure:"input_side"`
	// ExpectsDetectionOutput flags a detection-style model. Only classifier
	// decoding is implemented, so the flag is reported and otherwise ignored.
	ExpectsDetectionOutput bool `json:"detection_output" yaml:"detection_output" mapstructure:"detection_output"`
	// Backend selects the runtime; inferred from the weights extension when empty.
	Backend inference.Backend `json:"backend,omitempty" yaml:"backend,omitempty" mapstructure:"backend"`
	// Threads is the engine thread-pool hint; 0 uses the registry default.
	Threads int `json:"threads,omitempty" yaml:"threads,omitempty" mapstructure:"threads"`
	// Quantization overrides output quantization for runtimes that do not carry it.
	Quantization *inference.Quantization `json:"quantization,omitempty" yaml:"quantization,omitempty" mapstructure:"quantization"`
}

// Validate checks the fields that can be verified without touching the filesystem.
func (c Config) Validate() error {
	if c.WeightsPath == "" {
		return fmt.Errorf("weights path is required")
	}
	if c.LabelsPath == "" {
		return fmt.Errorf("labels path is required")
	}
	if c.InputSide <= 0 {
		return fmt.Errorf("input side must be positive, got %d", c.InputSide)
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must not be negative, got %d", c.Threads)
	}
	if q := c.Quantization; q != nil && q.Scale <= 0 {
		return fmt.Errorf("quantization scale must be positive, got %v", q.Scale)
	}
	_, err := c.ResolveBackend()
	return err
}

// ResolveBackend returns the configured backend or the one implied by the weights file.
func (c Config) ResolveBackend() (inference.Backend, error) {
	if c.Backend != "" {
		return inference.ParseBackend(string(c.Backend))
	}
	return inference.BackendFromPath(c.WeightsPath)
}
