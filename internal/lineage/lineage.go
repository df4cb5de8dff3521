// Package lineage keeps track of the scans of one run and resolves the
// retention time and precursor m/z of fragment scans through their parents.
package lineage

import (
	"errors"
	"fmt"
	"math"
)

// MaxDepth limits the length of a parent chain
const MaxDepth = 64

// ErrCycle means a parent chain loops back onto itself or is deeper than MaxDepth
var ErrCycle = errors.New("lineage: cyclic or too deep parent chain")

// Record holds what we know about a single scan
type Record struct {
	ID            string
	MSLevel       int
	RetentionTime float64 // seconds, NaN unless observed on an MS1 scan
	PrecursorMz   float64 // NaN unless MS level >= 2
	ParentID      string  // empty if unknown
}

// Registry maps scan IDs to their records. A Registry holds the state of
// a single file and is not safe for concurrent use.
type Registry struct {
	scans map[string]*Record
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{scans: make(map[string]*Record)}
}

// Len returns the number of recorded scans
func (r *Registry) Len() int {
	return len(r.scans)
}

// Record returns the record for scan id
func (r *Registry) Record(id string) (Record, bool) {
	rec, ok := r.scans[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// RecordScan adds a scan. Recording an ID again replaces the earlier scan.
func (r *Registry) RecordScan(id string, msLevel int, parentID string) {
	r.scans[id] = &Record{
		ID:            id,
		MSLevel:       msLevel,
		RetentionTime: math.NaN(),
		PrecursorMz:   math.NaN(),
		ParentID:      parentID,
	}
}

// RecordRetentionTime sets the retention time of an MS1 scan. It is
// ignored for unknown scans and for other MS levels.
func (r *Registry) RecordRetentionTime(id string, seconds float64) {
	rec, ok := r.scans[id]
	if !ok || rec.MSLevel != 1 {
		return
	}
	rec.RetentionTime = seconds
}

// RecordPrecursor sets the precursor m/z of a scan with MS level >= 2
func (r *Registry) RecordPrecursor(id string, mz float64) {
	rec, ok := r.scans[id]
	if !ok || rec.MSLevel < 2 {
		return
	}
	rec.PrecursorMz = mz
}

// ResolveRetentionTime returns the retention time of the scan, or of its
// nearest ancestor that has one. It returns NaN when no scan of the chain
// has a retention time.
func (r *Registry) ResolveRetentionTime(id string) (float64, error) {
	return r.resolve(id, func(rec *Record) float64 { return rec.RetentionTime })
}

// ResolveMz returns the precursor m/z of the scan or its nearest ancestor
func (r *Registry) ResolveMz(id string) (float64, error) {
	return r.resolve(id, func(rec *Record) float64 { return rec.PrecursorMz })
}

func (r *Registry) resolve(id string, value func(*Record) float64) (float64, error) {
	visited := make(map[string]bool)
	for depth := 0; id != ""; depth++ {
		if visited[id] || depth >= MaxDepth {
			return math.NaN(), fmt.Errorf("%w at scan %q", ErrCycle, id)
		}
		visited[id] = true
		rec, ok := r.scans[id]
		if !ok {
			break
		}
		if v := value(rec); !math.IsNaN(v) {
			return v, nil
		}
		id = rec.ParentID
	}
	return math.NaN(), nil
}
