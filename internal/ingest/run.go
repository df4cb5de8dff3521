package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/524D/mzheat/internal/config"
	"github.com/524D/mzheat/internal/lineage"
	"github.com/524D/mzheat/internal/mzml"
	"github.com/524D/mzheat/internal/surface"
)

// ErrCanceled is returned when the context of Run is done before the end
// of the stream. The error also wraps the context error.
var ErrCanceled = errors.New("ingest: canceled")

// Result holds the surfaces of one file. The surfaces are read-only.
type Result struct {
	Summary    Summary
	Surface    *surface.Grid
	MS2Surface *surface.Grid
}

// Run ingests a complete mzML stream with a fresh engine. The fileKey is
// only used in log messages.
func Run(ctx context.Context, fileKey string, r io.Reader, cfg config.Config, opts ...Option) (*Result, error) {
	e, err := NewEngine(cfg, opts...)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	d := mzml.NewDispatcher(nil, e)
	if err := d.Run(ctx, r); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("%s: %w: %w", fileKey, ErrCanceled, err)
		}
		if errors.Is(err, lineage.ErrCycle) {
			err = &mzml.FormatError{Offset: d.InputOffset(), Element: "spectrum", Err: err}
		}
		return nil, fmt.Errorf("%s: %w", fileKey, err)
	}
	e.opts.metrics.ObserveIngest(time.Since(start))
	e.summary.RunID = d.RunID()
	e.logSummary(fileKey)
	return &Result{
		Summary:    e.summary,
		Surface:    e.primary,
		MS2Surface: e.ms2,
	}, nil
}
