package importer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/pumped-fn/pipeflow"
	"github.com/pumped-fn/pipeflow/modifiers"
)

// FileSource serves a dataset file as the root of a pipeline. Static
// datasets are valid at all times; animated ones yield one frame per time
// point, clamped to the available frames.
//
// Like the rest of the evaluation API, FileSource is driven from a single
// goroutine. Watch delivers file changes through the scene's dispatcher.
type FileSource struct {
	cache *FileCache
	path  string

	// the state built from dataset for frame; reused so that downstream
	// caches see stable object identities
	state    pipeflow.FlowState
	hasState bool
	built    *Dataset
	frame    int

	observers pipeflow.Observers
}

// NewFileSource creates a source reading path through cache.
func NewFileSource(cache *FileCache, path string) *FileSource {
	return &FileSource{cache: cache, path: path, frame: -1}
}

func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Evaluate(t pipeflow.TimePoint) pipeflow.FlowState {
	ds, err := s.cache.Load(s.path)
	if err != nil {
		state := pipeflow.EmptyFlowState()
		state.SetStatus(pipeflow.ErrorStatus(err))
		return state
	}

	frame := -1
	if ds.Animated() {
		frame = ds.frameAt(int(t))
	}
	if s.hasState && s.built == ds && s.frame == frame {
		return s.state
	}

	state := buildState(ds, frame)
	s.state = state
	s.hasState = true
	s.built = ds
	s.frame = frame
	return state
}

func buildState(ds *Dataset, frame int) pipeflow.FlowState {
	validity := pipeflow.InfiniteInterval()
	series := ds.Series
	if frame >= 0 {
		series = ds.Frames[frame].Series
		validity = frameValidity(frame, len(ds.Frames))
	}

	state := pipeflow.NewFlowState(validity)
	for _, sr := range series {
		state.AddObject(modifiers.NewPoints(sr.Name, sr.Values...))
	}
	state.SetAttribute("dataset", ds.Name)
	for k, v := range ds.Attributes {
		state.SetAttribute(k, v)
	}
	state.SetStatus(pipeflow.Info(fmt.Sprintf("loaded %s", ds.Name)))
	return state
}

// frameValidity extends the first and last frame to the ends of the time
// axis, matching the clamping in Dataset.frameAt.
func frameValidity(frame, frames int) pipeflow.ValidityInterval {
	start, end := pipeflow.TimePoint(frame), pipeflow.TimePoint(frame)
	if frame == 0 {
		start = pipeflow.TimeNegativeInfinity
	}
	if frame == frames-1 {
		end = pipeflow.TimePositiveInfinity
	}
	return pipeflow.NewInterval(start, end)
}

func (s *FileSource) EvaluateAsync(t pipeflow.TimePoint) *pipeflow.Future {
	return pipeflow.CompletedFuture(s.Evaluate(t))
}

func (s *FileSource) Subscribe(fn func(pipeflow.Event)) func() {
	return s.observers.Subscribe(fn)
}

// Reload drops the cached dataset and notifies subscribers.
func (s *FileSource) Reload() {
	s.cache.Invalidate(s.path)
	s.hasState = false
	s.built = nil
	s.frame = -1
	s.observers.Emit(pipeflow.Event{Kind: pipeflow.EventTargetChanged, Origin: s})
}

// Watch reloads the source whenever the file is written or replaced. Reloads
// are posted to d and run when the driver drains it. Watching stops when ctx
// ends.
func (s *FileSource) Watch(ctx context.Context, d *pipeflow.Dispatcher, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	target, err := filepath.Abs(s.path)
	if err != nil {
		watcher.Close()
		return err
	}
	// Watch the directory: editors often replace files instead of writing
	// them in place.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", s.path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					logger.Debug("dataset changed", "path", s.path, "op", event.Op.String())
					d.Post(s.Reload)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("dataset watcher error", "path", s.path, "error", err)
			}
		}
	}()
	return nil
}
