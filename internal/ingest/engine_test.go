package ingest

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/stat"

	"github.com/524D/mzheat/internal/config"
	"github.com/524D/mzheat/internal/lineage"
	"github.com/524D/mzheat/internal/mzml"
	"github.com/524D/mzheat/internal/quality"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.RTMin, cfg.RTMax = 0, 600
	cfg.MzMin, cfg.MzMax = 100, 200
	cfg.Threshold = "accept-all"
	return cfg
}

type cell struct {
	Row, Col int
	V        float64
}

func cells(fn func(func(row, col int, v float64))) []cell {
	var c []cell
	fn(func(row, col int, v float64) { c = append(c, cell{row, col, v}) })
	return c
}

func TestRunTwoPeaks(t *testing.T) {
	doc := testMzML(t,
		testScan{id: "scan=1", level: 1, rt: 300, peaks: []mzml.Peak{{Mz: 150, Intens: 5}, {Mz: 151, Intens: 15}}},
		testScan{id: "scan=2", level: 2, rt: math.NaN(), ref: "scan=1", precMz: 150.5},
	)
	var logBuf bytes.Buffer
	res, err := Run(context.Background(), "two_peaks", strings.NewReader(doc), testConfig(),
		WithLogger(log.New(&logBuf, "", 0)))
	if err != nil {
		t.Fatalf("Run: error return %v", err)
	}
	g := res.Surface
	if g.Rows() != 6001 || g.Cols() != 6001 {
		t.Errorf("Run: %dx%d surface, should be 6001x6001", g.Rows(), g.Cols())
	}
	row := g.RTBin(300)
	want := []cell{{row, g.MzBin(150), 5}, {row, g.MzBin(151), 15}}
	if diff := cmp.Diff(want, cells(g.NonZero)); diff != "" {
		t.Errorf("surface mismatch (-want +got):\n%s", diff)
	}
	ms2 := res.MS2Surface
	wantMS2 := []cell{{ms2.RTBin(300), ms2.MzBin(150.5), 1}}
	if diff := cmp.Diff(wantMS2, cells(ms2.NonZero)); diff != "" {
		t.Errorf("MS2 surface mismatch (-want +got):\n%s", diff)
	}

	s := res.Summary
	if s.RunID != "ingest_run" || s.TotalMS1Scans != 1 || s.MS1WithoutRT != 0 ||
		s.TotalMSnScans != 1 || s.MS2Marked != 1 {
		t.Errorf("Summary: %+v", s)
	}
	if s.Intensity.Count != 2 || s.Intensity.Min != 5 || s.Intensity.Max != 15 || s.Intensity.Mean() != 10 {
		t.Errorf("Summary: intensity %+v, mean %v", s.Intensity, s.Intensity.Mean())
	}
	if !strings.Contains(logBuf.String(), "two_peaks: 1 MS1 scans") {
		t.Errorf("Run: log %q doesn't report the scans", logBuf.String())
	}
}

func TestEngineMS1(t *testing.T) {
	cfg := testConfig()
	cfg.Threshold, cfg.ThresholdValue = "absolute-intensity", 10
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: error return %v", err)
	}
	scans := []testScan{
		{id: "a", level: 1, rt: math.NaN(), peaks: []mzml.Peak{{Mz: 150, Intens: 100}}},
		{id: "b", level: 1, rt: 10, peaks: []mzml.Peak{
			{Mz: 150, Intens: 100}, {Mz: 150.001, Intens: 50}, // same bin
			{Mz: 160, Intens: 5},   // rejected
			{Mz: 250, Intens: 100}, // out of bounds
		}},
		{id: "c", level: 1, rt: 700, peaks: []mzml.Peak{{Mz: 150, Intens: 100}}}, // out of bounds
	}
	for _, s := range scans {
		if err := e.HandleSpectrum(s.spectrum()); err != nil {
			t.Fatalf("HandleSpectrum(%s): error return %v", s.id, err)
		}
	}
	g := e.Surface()
	if v := g.At(g.RTBin(10), g.MzBin(150)); v != 150 {
		t.Errorf("accumulated %v, should be 150", v)
	}
	if g.Sum() != 150 {
		t.Errorf("Sum: %v, should be 150", g.Sum())
	}
	s := e.Summary()
	if s.TotalMS1Scans != 3 || s.MS1WithoutRT != 1 || s.PeaksRejected != 1 || s.PeaksOutOfBounds != 2 {
		t.Errorf("Summary: %+v", s)
	}
	if s.Intensity.Count != 2 {
		t.Errorf("Summary: %d intensities, should be 2", s.Intensity.Count)
	}
}

func TestEngineMS2Lineage(t *testing.T) {
	e, err := NewEngine(testConfig())
	if err != nil {
		t.Fatalf("NewEngine: error return %v", err)
	}
	scans := []testScan{
		{id: "ms1", level: 1, rt: 120.5},
		{id: "ms2-ref", level: 2, rt: 121, ref: "ms1", precMz: 150},      // own RT is not used
		{id: "ms2-noref", level: 2, rt: math.NaN(), precMz: 160},         // parent is the last MS1 scan
		{id: "ms3", level: 3, rt: math.NaN(), ref: "ms2-ref", precMz: 170}, // RT through two levels
		{id: "ms2-orphan", level: 2, rt: math.NaN(), ref: "absent", precMz: 180},
		{id: "ms2-out", level: 2, rt: math.NaN(), ref: "ms1", precMz: 250},
	}
	for _, s := range scans {
		if err := e.HandleSpectrum(s.spectrum()); err != nil {
			t.Fatalf("HandleSpectrum(%s): error return %v", s.id, err)
		}
	}
	rt, _ := e.Lineage().ResolveRetentionTime("ms2-ref")
	if rt != 120.5 {
		t.Errorf("ResolveRetentionTime: %v, should be 120.5", rt)
	}
	rt, _ = e.Lineage().ResolveRetentionTime("ms2-orphan")
	if !math.IsNaN(rt) {
		t.Errorf("ResolveRetentionTime: %v, should be NaN", rt)
	}
	g := e.MS2Surface()
	row := g.RTBin(120.5)
	want := []cell{{row, g.MzBin(150), 1}, {row, g.MzBin(160), 1}, {row, g.MzBin(170), 1}}
	if diff := cmp.Diff(want, cells(g.NonZero)); diff != "" {
		t.Errorf("MS2 surface mismatch (-want +got):\n%s", diff)
	}
	s := e.Summary()
	if s.TotalMSnScans != 5 || s.MS2Marked != 3 || s.MS2Unresolved != 1 || s.MS2OutOfBounds != 1 {
		t.Errorf("Summary: %+v", s)
	}
	if e.Surface().Sum() != 0 {
		t.Errorf("MS2 scans changed the intensity surface")
	}
}

func TestEngineQuality(t *testing.T) {
	raw := map[string]float64{"q1": 10, "q2": 20, "q3": 15, "q4": math.NaN()}
	scorer := quality.ScorerFunc(func(id string, _ []mzml.Peak) float64 { return raw[id] })
	e, err := NewEngine(testConfig(), WithScorer(scorer))
	if err != nil {
		t.Fatalf("NewEngine: error return %v", err)
	}
	if err := e.HandleSpectrum(testScan{id: "ms1", level: 1, rt: 60}.spectrum()); err != nil {
		t.Fatalf("HandleSpectrum: error return %v", err)
	}
	g := e.MS2Surface()
	row, col := g.RTBin(60), g.MzBin(150)
	// q1 has a zero range and scores 0, q2 scores 1, q3 scores 0.5 and
	// doesn't overwrite the higher value
	wantCell := []float64{0, 1, 1, 1}
	for i, id := range []string{"q1", "q2", "q3", "q4"} {
		s := testScan{id: id, level: 2, rt: math.NaN(), ref: "ms1", precMz: 150}
		if err := e.HandleSpectrum(s.spectrum()); err != nil {
			t.Fatalf("HandleSpectrum(%s): error return %v", id, err)
		}
		if v := g.At(row, col); v != wantCell[i] {
			t.Errorf("after %s: cell %v, should be %v", id, v, wantCell[i])
		}
	}
	s := e.Summary()
	if s.MS2Marked != 2 || s.MS2Unscored != 1 {
		t.Errorf("Summary: %+v", s)
	}
	if s.Quality != (quality.Range{Min: 10, Max: 20, Count: 3}) {
		t.Errorf("Summary: quality range %+v", s.Quality)
	}
}

func TestRunCycle(t *testing.T) {
	doc := testMzML(t,
		testScan{id: "a", level: 2, rt: math.NaN(), ref: "b", precMz: 150},
		testScan{id: "b", level: 2, rt: math.NaN(), ref: "a", precMz: 150},
	)
	_, err := Run(context.Background(), "cycle", strings.NewReader(doc), testConfig())
	var fe *mzml.FormatError
	if !errors.As(err, &fe) || !errors.Is(err, lineage.ErrCycle) {
		t.Errorf("Run: error return %v, should be a FormatError wrapping ErrCycle", err)
	}
}

func TestRunErrors(t *testing.T) {
	doc := testMzML(t, testScan{id: "a", level: 1, rt: 1, peaks: []mzml.Peak{{Mz: 150, Intens: 1}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, "canceled", strings.NewReader(doc), testConfig())
	if !errors.Is(err, ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Errorf("Run: error return %v, should be ErrCanceled", err)
	}

	cfg := testConfig()
	cfg.MzMax = cfg.MzMin
	if _, err := Run(context.Background(), "bad", strings.NewReader(doc), cfg); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("Run: error return %v, should match config.ErrInvalid", err)
	}

	_, err = Run(context.Background(), "truncated", strings.NewReader(doc[:len(doc)/2]), testConfig())
	var fe *mzml.FormatError
	if !errors.As(err, &fe) {
		t.Errorf("Run: error return %v, should be a FormatError", err)
	}
}

func TestStats(t *testing.T) {
	values := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	var s Stats
	for _, v := range values {
		s.Add(v)
	}
	mean, std := stat.MeanStdDev(values, nil)
	if math.Abs(s.Mean()-mean) > 1e-12 || math.Abs(s.StdDev()-std) > 1e-12 {
		t.Errorf("Stats: mean %v sd %v, should be %v and %v", s.Mean(), s.StdDev(), mean, std)
	}
	if s.Min != 1 || s.Max != 9 || s.Count != 8 {
		t.Errorf("Stats: %+v", s)
	}
	var one Stats
	one.Add(7)
	if one.StdDev() != 0 || one.Mean() != 7 {
		t.Errorf("Stats: single value mean %v sd %v", one.Mean(), one.StdDev())
	}
}
