// Package ingest turns the spectra of an mzML stream into an intensity
// surface and an MS2 surface
package ingest

import (
	"fmt"
	"log"
	"math"

	"github.com/524D/mzheat/internal/config"
	"github.com/524D/mzheat/internal/lineage"
	"github.com/524D/mzheat/internal/metrics"
	"github.com/524D/mzheat/internal/mzml"
	"github.com/524D/mzheat/internal/quality"
	"github.com/524D/mzheat/internal/surface"
	"github.com/524D/mzheat/internal/threshold"
)

// Stats is a running summary of accepted peak intensities
type Stats struct {
	Count int
	Min   float64
	Max   float64
	mean  float64
	m2    float64
}

// Add adds a value (Welford's algorithm)
func (s *Stats) Add(v float64) {
	if s.Count == 0 || v < s.Min {
		s.Min = v
	}
	if s.Count == 0 || v > s.Max {
		s.Max = v
	}
	s.Count++
	d := v - s.mean
	s.mean += d / float64(s.Count)
	s.m2 += d * (v - s.mean)
}

// Mean returns the mean, 0 if there are no values
func (s Stats) Mean() float64 {
	return s.mean
}

// StdDev returns the sample standard deviation, 0 for less than two values
func (s Stats) StdDev() float64 {
	if s.Count < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.Count-1))
}

// Summary holds the diagnostics of one file
type Summary struct {
	RunID         string
	TotalMS1Scans int
	// MS1WithoutRT counts MS1 scans that were skipped for lack of a retention time
	MS1WithoutRT     int
	PeaksRejected    int
	PeaksOutOfBounds int
	Intensity        Stats
	TotalMSnScans    int
	MS2Marked        int
	// MS2Unresolved counts MSn scans without inherited retention time or precursor m/z
	MS2Unresolved  int
	MS2OutOfBounds int
	MS2Unscored    int
	Quality        quality.Range
}

type options struct {
	logger  *log.Logger
	metrics *metrics.Recorder
	scorer  quality.Scorer
}

// Option configures an Engine
type Option func(*options)

// WithLogger sets the logger for the per-file diagnostics
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics counts scans and peaks in r
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}

// WithScorer writes normalized quality scores to the MS2 surface instead
// of a constant marker
func WithScorer(s quality.Scorer) Option {
	return func(o *options) { o.scorer = s }
}

// Engine accumulates the spectra of a single file. It implements
// mzml.ScanHandler.
type Engine struct {
	opts    options
	policy  threshold.Policy
	primary *surface.Grid
	ms2     *surface.Grid
	scans   *lineage.Registry
	lastMS1 string
	summary Summary
}

// NewEngine returns an engine with empty surfaces for the configured bounds
func NewEngine(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		policy:  policy,
		primary: surface.New(cfg.Bounds(), false),
		ms2:     surface.New(cfg.Bounds(), true),
		scans:   lineage.NewRegistry(),
	}
	for _, o := range opts {
		o(&e.opts)
	}
	return e, nil
}

// Surface returns the intensity surface
func (e *Engine) Surface() *surface.Grid { return e.primary }

// MS2Surface returns the MS2 surface
func (e *Engine) MS2Surface() *surface.Grid { return e.ms2 }

// Summary returns the diagnostics so far
func (e *Engine) Summary() Summary { return e.summary }

// Lineage returns the scans seen so far
func (e *Engine) Lineage() *lineage.Registry { return e.scans }

// HandleSpectrum records the scan and writes it to the surfaces
func (e *Engine) HandleSpectrum(s *mzml.Spectrum) error {
	level := s.Level()
	e.opts.metrics.Scan(level)
	if level == 1 {
		e.scans.RecordScan(s.ID, level, "")
		e.lastMS1 = s.ID
		if !math.IsNaN(s.RetentionTime) {
			e.scans.RecordRetentionTime(s.ID, s.RetentionTime)
		}
		return e.addMS1(s)
	}

	parent := e.lastMS1
	if len(s.Precursors) > 0 && s.Precursors[0].SpectrumRef != "" {
		parent = s.Precursors[0].SpectrumRef
	}
	e.scans.RecordScan(s.ID, level, parent)
	if len(s.Precursors) > 0 {
		if mz := s.Precursors[0].Mz(); !math.IsNaN(mz) {
			e.scans.RecordPrecursor(s.ID, mz)
		}
	}
	return e.addMSn(s)
}

func (e *Engine) addMS1(s *mzml.Spectrum) error {
	e.summary.TotalMS1Scans++
	rt, err := e.scans.ResolveRetentionTime(s.ID)
	if err != nil {
		return fmt.Errorf("scan %q: %w", s.ID, err)
	}
	if math.IsNaN(rt) {
		e.summary.MS1WithoutRT++
		e.opts.metrics.MS1WithoutRT()
		return nil
	}
	row := e.primary.RTBin(rt)
	list := threshold.NewPeakList(s.Peaks)
	accepted, rejected, outOfBounds := 0, 0, 0
	for _, p := range s.Peaks {
		if !e.policy.Accept(list, p) {
			rejected++
			continue
		}
		col := e.primary.MzBin(p.Mz)
		if row < 0 || col < 0 {
			outOfBounds++
			continue
		}
		e.primary.Accumulate(row, col, p.Intens)
		e.summary.Intensity.Add(p.Intens)
		accepted++
	}
	e.summary.PeaksRejected += rejected
	e.summary.PeaksOutOfBounds += outOfBounds
	e.opts.metrics.Peaks(accepted, rejected, outOfBounds)
	return nil
}

func (e *Engine) addMSn(s *mzml.Spectrum) error {
	e.summary.TotalMSnScans++
	rt, err := e.scans.ResolveRetentionTime(s.ID)
	if err != nil {
		return fmt.Errorf("scan %q: %w", s.ID, err)
	}
	mz, err := e.scans.ResolveMz(s.ID)
	if err != nil {
		return fmt.Errorf("scan %q: %w", s.ID, err)
	}
	if math.IsNaN(rt) || math.IsNaN(mz) {
		e.summary.MS2Unresolved++
		return nil
	}
	row, col := e.ms2.RTBin(rt), e.ms2.MzBin(mz)
	if row < 0 || col < 0 {
		e.summary.MS2OutOfBounds++
		return nil
	}
	value := 1.0
	if e.opts.scorer != nil {
		raw := e.opts.scorer.Score(s.ID, s.Peaks)
		if math.IsNaN(raw) {
			e.summary.MS2Unscored++
			return nil
		}
		e.summary.Quality.Observe(raw)
		value = e.summary.Quality.Normalize(raw)
	}
	// A higher value already in the cell stays
	if e.ms2.At(row, col) > value {
		return nil
	}
	e.ms2.Set(row, col, value)
	e.summary.MS2Marked++
	e.opts.metrics.MS2Mark()
	return nil
}

// logSummary reports the unusable scans and peaks of the file
func (e *Engine) logSummary(fileKey string) {
	l := e.opts.logger
	if l == nil {
		return
	}
	s := &e.summary
	l.Printf("%s: %d MS1 scans, %d MSn scans, %d peaks accumulated (intensity min %g max %g mean %g sd %g)",
		fileKey, s.TotalMS1Scans, s.TotalMSnScans, s.Intensity.Count,
		s.Intensity.Min, s.Intensity.Max, s.Intensity.Mean(), s.Intensity.StdDev())
	if s.MS1WithoutRT > 0 {
		l.Printf("%s: WARNING: %d MS1 scans without retention time skipped", fileKey, s.MS1WithoutRT)
	}
	if s.PeaksOutOfBounds > 0 {
		l.Printf("%s: WARNING: %d peaks outside the surface bounds", fileKey, s.PeaksOutOfBounds)
	}
	if s.MS2Unresolved > 0 {
		l.Printf("%s: WARNING: %d MSn scans without retention time or precursor m/z", fileKey, s.MS2Unresolved)
	}
}
