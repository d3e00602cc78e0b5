package importer

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pumped-fn/pipeflow"
	"github.com/pumped-fn/pipeflow/modifiers"
)

// PipelineFile describes a pipeline: the dataset it starts from and the
// stages applied to it. Only parameters and topology are stored; caches are
// always rebuilt after loading.
type PipelineFile struct {
	Name    string      `yaml:"name" validate:"required"`
	Dataset string      `yaml:"dataset" validate:"required"`
	Stages  []StageDesc `yaml:"stages" validate:"dive"`
	// Times are the animation times evaluated by default.
	Times []int `yaml:"times"`
}

// StageDesc describes one stage.
type StageDesc struct {
	Kind     string         `yaml:"kind" validate:"required"`
	Name     string         `yaml:"name"`
	Disabled bool           `yaml:"disabled"`
	Params   map[string]any `yaml:"params"`
}

// ReadPipelineFile reads a pipeline description. A relative dataset path is
// resolved against the directory of the description.
func ReadPipelineFile(path string) (*PipelineFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pf PipelineFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("%s: decoding pipeline: %w", path, err)
	}
	if err := datasetValidate.Struct(&pf); err != nil {
		return nil, fmt.Errorf("%s: invalid pipeline: %w", path, err)
	}
	if !filepath.IsAbs(pf.Dataset) {
		pf.Dataset = filepath.Join(filepath.Dir(path), pf.Dataset)
	}
	return &pf, nil
}

// Build creates the pipeline in scene, reading the dataset through cache
// and creating modifiers from reg.
func (f *PipelineFile) Build(scene *pipeflow.Scene, reg *modifiers.Registry, cache *FileCache) (*pipeflow.PipelineObject, *FileSource, error) {
	src := NewFileSource(cache, f.Dataset)
	p := scene.NewPipeline(f.Name, src)

	for i, desc := range f.Stages {
		m, err := reg.Build(desc.Kind, desc.Params)
		if err != nil {
			p.Close()
			return nil, nil, fmt.Errorf("stage %d: %w", i, err)
		}
		var opts []pipeflow.StageOption
		if desc.Name != "" {
			opts = append(opts, pipeflow.WithStageName(desc.Name))
		}
		if desc.Disabled {
			opts = append(opts, pipeflow.Disabled())
		}
		p.AppendStage(scene.NewStage(m, opts...))
	}
	return p, src, nil
}
