// Package quality scores spectra for the MS2 surface. The scores of one file
// are normalized against their observed range.
package quality

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/524D/mzheat/internal/mzml"
)

// Scorer returns the raw score of a spectrum, NaN if it can't be scored
type Scorer interface {
	Score(scanID string, peaks []mzml.Peak) float64
}

// ScorerFunc adapts a function to a Scorer
type ScorerFunc func(scanID string, peaks []mzml.Peak) float64

// Score calls f
func (f ScorerFunc) Score(scanID string, peaks []mzml.Peak) float64 {
	return f(scanID, peaks)
}

var (
	// ErrUnknownScorer is returned by New for names it doesn't know
	ErrUnknownScorer = errors.New("quality: unknown scorer")
	// ErrNoIdentifications means the identification scorer has no scores
	ErrNoIdentifications = errors.New("quality: identification scorer needs identification scores")
)

// Names lists the scorers that New can create
func Names() []string {
	return []string{"tic", "peak-count", "snr", "identification"}
}

// New returns the scorer with the given name. The identification scorer
// looks the scan up in scores, which maps scan IDs to e-values.
func New(name string, scores map[string]float64) (Scorer, error) {
	switch name {
	case "tic":
		return ScorerFunc(ticScore), nil
	case "peak-count":
		return ScorerFunc(peakCount), nil
	case "snr":
		return ScorerFunc(signalToNoise), nil
	case "identification":
		if scores == nil {
			return nil, ErrNoIdentifications
		}
		return identification(scores), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownScorer, name)
}

func intensities(peaks []mzml.Peak) []float64 {
	intens := make([]float64, len(peaks))
	for i, p := range peaks {
		intens[i] = p.Intens
	}
	return intens
}

// ticScore is the log10 of the total ion current
func ticScore(_ string, peaks []mzml.Peak) float64 {
	tic := floats.Sum(intensities(peaks))
	if tic <= 0 {
		return math.NaN()
	}
	return math.Log10(tic)
}

func peakCount(_ string, peaks []mzml.Peak) float64 {
	return float64(len(peaks))
}

// signalToNoise divides the base peak by the mean intensity plus one
// standard deviation
func signalToNoise(_ string, peaks []mzml.Peak) float64 {
	if len(peaks) < 2 {
		return math.NaN()
	}
	intens := intensities(peaks)
	mean, std := stat.MeanStdDev(intens, nil)
	noise := mean + std
	if noise <= 0 {
		return math.NaN()
	}
	return floats.Max(intens) / noise
}

type identification map[string]float64

// Score is -log10 of the e-value of the best identification of the scan
func (id identification) Score(scanID string, _ []mzml.Peak) float64 {
	e, ok := id[scanID]
	if !ok || e <= 0 {
		return math.NaN()
	}
	return -math.Log10(e)
}

// Range tracks the minimum and maximum of the raw scores of one file
type Range struct {
	Min   float64
	Max   float64
	Count int
}

// Observe adds a raw score to the range. NaN scores are ignored.
func (r *Range) Observe(raw float64) {
	if math.IsNaN(raw) {
		return
	}
	if r.Count == 0 || raw < r.Min {
		r.Min = raw
	}
	if r.Count == 0 || raw > r.Max {
		r.Max = raw
	}
	r.Count++
}

// Normalize maps a raw score onto the observed range. When min and max have
// the same sign the range is |max|-|min|, otherwise |min|+|max|. A zero range
// gives 0.
func (r *Range) Normalize(raw float64) float64 {
	var span float64
	if (r.Min < 0) == (r.Max < 0) {
		span = math.Abs(r.Max) - math.Abs(r.Min)
	} else {
		span = math.Abs(r.Min) + math.Abs(r.Max)
	}
	if span == 0 {
		return 0
	}
	return (raw - r.Min) / span
}
