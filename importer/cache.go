package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// FileCache holds parsed datasets by path. Concurrent loads of the same
// path share one read. Pass the cache to the sources that need it; there is
// no package-level instance.
type FileCache struct {
	mu      sync.RWMutex
	entries map[string]*Dataset
	group   singleflight.Group

	reads int
}

func NewFileCache() *FileCache {
	return &FileCache{entries: make(map[string]*Dataset)}
}

func cacheKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Load returns the dataset at path, reading it on first use.
func (c *FileCache) Load(path string) (*Dataset, error) {
	key := cacheKey(path)

	c.mu.RLock()
	ds, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return ds, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		ds, err := ReadDataset(path)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = ds
		c.reads++
		c.mu.Unlock()
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Dataset), nil
}

// LoadAll loads the given paths concurrently, at most limit at a time.
func (c *FileCache) LoadAll(ctx context.Context, paths []string, limit int) (map[string]*Dataset, error) {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	var mu sync.Mutex
	out := make(map[string]*Dataset, len(paths))
	for _, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ds, err := c.Load(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			mu.Lock()
			out[path] = ds
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Invalidate forgets the dataset at path so the next Load reads it again.
func (c *FileCache) Invalidate(path string) {
	key := cacheKey(path)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.group.Forget(key)
}

// Reads returns how many files were actually read.
func (c *FileCache) Reads() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reads
}
