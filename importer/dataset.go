// Package importer reads datasets and pipeline descriptions from YAML
// files and exposes datasets as pipeline sources.
package importer

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Dataset is the content of a dataset file. A dataset either carries static
// Series, or one set of series per animation frame.
type Dataset struct {
	Name       string         `yaml:"name" validate:"required"`
	Attributes map[string]any `yaml:"attributes"`
	Series     []Series       `yaml:"series" validate:"dive"`
	Frames     []Frame        `yaml:"frames" validate:"dive"`
}

// Series is one named list of values.
type Series struct {
	Name   string    `yaml:"name" validate:"required"`
	Values []float64 `yaml:"values"`
}

// Frame holds the series of one animation frame.
type Frame struct {
	Series []Series `yaml:"series" validate:"dive"`
}

var datasetValidate = validator.New()

// ParseDataset decodes and validates dataset YAML.
func ParseDataset(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decoding dataset: %w", err)
	}
	if err := datasetValidate.Struct(&ds); err != nil {
		return nil, fmt.Errorf("invalid dataset: %w", err)
	}
	if len(ds.Series) > 0 && len(ds.Frames) > 0 {
		return nil, fmt.Errorf("invalid dataset %q: series and frames are mutually exclusive", ds.Name)
	}
	return &ds, nil
}

// ReadDataset reads a dataset file.
func ReadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ds, err := ParseDataset(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Animated reports whether the dataset has per-frame data.
func (d *Dataset) Animated() bool {
	return len(d.Frames) > 0
}

// frameAt clamps t to the available frames.
func (d *Dataset) frameAt(t int) int {
	switch {
	case t < 0:
		return 0
	case t >= len(d.Frames):
		return len(d.Frames) - 1
	default:
		return t
	}
}
