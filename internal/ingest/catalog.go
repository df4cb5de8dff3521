package ingest

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/524D/mzheat/internal/surface"
)

// ErrUnknownFile means no result was added for the file key
var ErrUnknownFile = errors.New("ingest: unknown file")

// Catalog holds the results of the files of a batch, by file key
type Catalog struct {
	mu      sync.RWMutex
	results map[string]*Result
}

// NewCatalog returns an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{results: make(map[string]*Result)}
}

// Add stores the result of a file, replacing an earlier result for the key
func (c *Catalog) Add(fileKey string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[fileKey] = r
}

// Keys returns the sorted file keys
func (c *Catalog) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.results))
	for k := range c.results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Result returns the result of a file
func (c *Catalog) Result(fileKey string) (*Result, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[fileKey]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownFile, fileKey)
	}
	return r, nil
}

// Surface returns the intensity surface of a file
func (c *Catalog) Surface(fileKey string) (*surface.Grid, error) {
	r, err := c.Result(fileKey)
	if err != nil {
		return nil, err
	}
	return r.Surface, nil
}

// MS2Surface returns the MS2 surface of a file
func (c *Catalog) MS2Surface(fileKey string) (*surface.Grid, error) {
	r, err := c.Result(fileKey)
	if err != nil {
		return nil, err
	}
	return r.MS2Surface, nil
}

// SurfaceIn returns the cached slice of the intensity surface that covers b
func (c *Catalog) SurfaceIn(fileKey string, b surface.Bounds) (*surface.Grid, error) {
	g, err := c.Surface(fileKey)
	if err != nil {
		return nil, err
	}
	return g.SliceBounds(b)
}

// MS2SurfaceIn returns the cached slice of the MS2 surface that covers b
func (c *Catalog) MS2SurfaceIn(fileKey string, b surface.Bounds) (*surface.Grid, error) {
	g, err := c.MS2Surface(fileKey)
	if err != nil {
		return nil, err
	}
	return g.SliceBounds(b)
}
