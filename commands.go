package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/524D/mzheat/internal/config"
	"github.com/524D/mzheat/internal/export/sqlite"
	"github.com/524D/mzheat/internal/ingest"
	"github.com/524D/mzheat/internal/metrics"
	"github.com/524D/mzheat/internal/mzidentml"
	"github.com/524D/mzheat/internal/quality"
	"github.com/524D/mzheat/internal/source"
	"github.com/524D/mzheat/internal/surface"
	"github.com/524D/mzheat/internal/threshold"
)

// Command line parameters
type params struct {
	configFile     string
	rt             string
	mz             string
	threshold      string
	thresholdValue float64
	quality        string
	mzid           string
	verbose        bool
	quiet          bool

	// surface
	dbFile      string
	metricsAddr string

	// slice
	rtWindow string
	mzWindow string
	ms2      bool
	outFile  string

	opener source.Opener
}

func newRootCmd() *cobra.Command {
	par := &params{}
	rootCmd := &cobra.Command{
		Use:   progName,
		Short: "mzheat - intensity surfaces of mzML files",
		Long: `mzheat reads mzML files in a single pass and accumulates the peaks of
the MS1 spectra into a retention time by m/z intensity surface with bins
of 0.1 s and 0.1 m/z. A second surface marks the precursors of the MS2
spectra, optionally with a quality score.

Inputs are local files, "-" for stdin or s3://bucket/key objects,
optionally gzipped.`,
		Version:       progVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&par.configFile, "config", "", "JSON configuration `file`, flags override its values")
	pf.StringVar(&par.rt, "rt", "", "retention time `range` in seconds of the surface, e.g. 0:3600")
	pf.StringVar(&par.mz, "mz", "", "m/z `range` of the surface, e.g. 300:1500")
	pf.StringVar(&par.threshold, "threshold", "", "peak threshold `method`: "+strings.Join(threshold.MethodNames(), ", "))
	pf.Float64Var(&par.thresholdValue, "threshold-value", 0, "value of the threshold method (percentage of TIC or intensity)")
	pf.StringVar(&par.quality, "quality", "", "MS2 quality `scorer`: "+strings.Join(quality.Names(), ", ")+" (default constant marker)")
	pf.StringVar(&par.mzid, "mzid", "", "mzIdentML `file` for the identification scorer")
	pf.BoolVar(&par.verbose, "verbose", false, "Print more verbose progress information")
	pf.BoolVar(&par.quiet, "quiet", false, "Don't print any output except for errors")

	surfaceCmd := &cobra.Command{
		Use:   "surface <file|s3://bucket/key>...",
		Short: "Compute the surfaces of mzML files",
		Long: `Compute the surfaces of mzML files, one after the other, and print a
summary per file.

Examples:
  # Summary of two files with a 5% of TIC threshold
  mzheat surface --threshold percent-of-tic --threshold-value 5 a.mzML b.mzML.gz

  # Store the surfaces in SQLite and serve metrics while running
  mzheat surface --db surfaces.db --metrics-addr :9090 s3://bucket/run1.mzML`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return par.runSurface(cmd, args)
		},
	}
	surfaceCmd.Flags().StringVar(&par.dbFile, "db", "", "SQLite `file` to store summaries and surfaces in")
	surfaceCmd.Flags().StringVar(&par.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on `address` while running")

	sliceCmd := &cobra.Command{
		Use:   "slice <file|s3://bucket/key>",
		Short: "Write a window of a surface as CSV",
		Long: `Compute the surfaces of one mzML file and write the non-zero cells of
a retention time and m/z window as CSV with columns rt, mz and value. The
rt and mz columns hold the lower edge of the bin.

Example:
  mzheat slice --rt-window 600:660 --mz-window 400:450 -o window.csv run1.mzML`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return par.runSlice(cmd, args[0])
		},
	}
	sliceCmd.Flags().StringVar(&par.rtWindow, "rt-window", "", "retention time `range` of the window (default whole surface)")
	sliceCmd.Flags().StringVar(&par.mzWindow, "mz-window", "", "m/z `range` of the window (default whole surface)")
	sliceCmd.Flags().BoolVar(&par.ms2, "ms2", false, "slice the MS2 surface")
	sliceCmd.Flags().StringVarP(&par.outFile, "out", "o", "", "output `file` (default stdout)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show software version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			v := progVersion
			if v == `Unknown` {
				v = `Unknown
Please build this program with -ldflags "-X main.progVersion=<version>" so that the version is shown here.`
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", progName, v)
		},
	}

	rootCmd.AddCommand(surfaceCmd, sliceCmd, versionCmd)
	return rootCmd
}

func (par *params) verbosity() int {
	switch {
	case par.quiet:
		return infoSilent
	case par.verbose:
		return infoVerbose
	}
	return infoDefault
}

// loadConfig layers the flags that were set over the configuration file
// or the defaults
func (par *params) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if par.configFile != "" {
		f, err := os.Open(par.configFile)
		if err != nil {
			return cfg, err
		}
		cfg, err = config.Load(f)
		f.Close()
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", par.configFile, err)
		}
	}
	var err error
	if cfg.RTMin, cfg.RTMax, err = parseFloat64Range(par.rt, cfg.RTMin, cfg.RTMax); err != nil {
		return cfg, fmt.Errorf("--rt: %w", err)
	}
	if cfg.MzMin, cfg.MzMax, err = parseFloat64Range(par.mz, cfg.MzMin, cfg.MzMax); err != nil {
		return cfg, fmt.Errorf("--mz: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("threshold") {
		cfg.Threshold = par.threshold
	}
	if flags.Changed("threshold-value") {
		cfg.ThresholdValue = par.thresholdValue
	}
	if flags.Changed("quality") {
		cfg.Quality = par.quality
	}
	if flags.Changed("mzid") {
		cfg.IdentFile = par.mzid
		if cfg.Quality == "" {
			cfg.Quality = "identification"
		}
	}
	return cfg, cfg.Validate()
}

// ingestOptions returns the engine options for cfg. The identification
// file is read here, once for all inputs.
func (par *params) ingestOptions(ctx context.Context, cmd *cobra.Command, cfg config.Config,
	rec *metrics.Recorder) ([]ingest.Option, error) {
	opts := []ingest.Option{ingest.WithMetrics(rec)}
	if par.verbosity() != infoSilent {
		opts = append(opts, ingest.WithLogger(log.New(cmd.ErrOrStderr(), "", log.LstdFlags)))
	}
	if cfg.Quality == "" {
		return opts, nil
	}
	var scores map[string]float64
	if cfg.Quality == "identification" {
		rc, err := par.opener.Open(ctx, cfg.IdentFile)
		if err != nil {
			return nil, err
		}
		mzID, err := mzidentml.Read(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.IdentFile, err)
		}
		if scores, err = mzID.SpectrumScores(cfg.ScoreAccessions...); err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.IdentFile, err)
		}
		if par.verbosity() == infoVerbose {
			log.Printf("%d identifications, %d scored spectra in %s",
				mzID.NumIdents(), len(scores), cfg.IdentFile)
		}
	}
	scorer, err := quality.New(cfg.Quality, scores)
	if err != nil {
		return nil, err
	}
	return append(opts, ingest.WithScorer(scorer)), nil
}

// ingestFile computes the surfaces of one input
func (par *params) ingestFile(ctx context.Context, uri string, cfg config.Config,
	opts []ingest.Option) (string, *ingest.Result, error) {
	start := time.Now()
	fileKey := source.FileKey(uri)
	rc, err := par.opener.Open(ctx, uri)
	if err != nil {
		return fileKey, nil, err
	}
	defer rc.Close()
	res, err := ingest.Run(ctx, fileKey, rc, cfg, opts...)
	if err != nil {
		return fileKey, nil, err
	}
	if par.verbosity() == infoVerbose {
		log.Printf("Processing %s took %v", uri, time.Since(start))
	}
	return fileKey, res, nil
}

func (par *params) runSurface(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := par.loadConfig(cmd)
	if err != nil {
		return err
	}
	var rec *metrics.Recorder
	if par.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		rec = metrics.New(reg)
		stop, err := serveMetrics(par.metricsAddr, reg)
		if err != nil {
			return err
		}
		defer stop()
	}
	opts, err := par.ingestOptions(ctx, cmd, cfg, rec)
	if err != nil {
		return err
	}
	var db *sqlite.Writer
	if par.dbFile != "" {
		if db, err = sqlite.NewWriter(par.dbFile); err != nil {
			return err
		}
		defer db.Close()
	}

	catalog := ingest.NewCatalog()
	for _, uri := range args {
		fileKey, res, err := par.ingestFile(ctx, uri, cfg, opts)
		if err != nil {
			return err
		}
		catalog.Add(fileKey, res)
		if par.verbosity() != infoSilent {
			printSummary(cmd.OutOrStdout(), fileKey, res)
		}
		if db == nil {
			continue
		}
		if err := db.WriteRun(fileKey, res.Summary, cfg); err != nil {
			return err
		}
		for _, g := range []*surface.Grid{res.Surface, res.MS2Surface} {
			if err := db.WriteSurface(fileKey, g); err != nil {
				return err
			}
		}
	}
	if db != nil && par.verbosity() == infoVerbose {
		log.Printf("%d files stored in %s", len(catalog.Keys()), db.Path())
	}
	return nil
}

// serveMetrics serves reg on addr until stop is called
func serveMetrics(addr string, reg *prometheus.Registry) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()
	return func() { srv.Close() }, nil
}

func printSummary(w io.Writer, fileKey string, res *ingest.Result) {
	s := res.Summary
	fmt.Fprintf(w, "%s (run %s)\n", fileKey, s.RunID)
	fmt.Fprintf(w, "  surface:          %dx%d bins, key %s\n", res.Surface.Rows(), res.Surface.Cols(), res.Surface.Key())
	fmt.Fprintf(w, "  MS1 scans:        %d (%d without retention time)\n", s.TotalMS1Scans, s.MS1WithoutRT)
	fmt.Fprintf(w, "  peaks:            %d accumulated, %d rejected, %d out of bounds\n",
		s.Intensity.Count, s.PeaksRejected, s.PeaksOutOfBounds)
	fmt.Fprintf(w, "  total intensity:  %g\n", res.Surface.Sum())
	fmt.Fprintf(w, "  MSn scans:        %d (%d marked, %d unresolved, %d out of bounds, %d unscored)\n",
		s.TotalMSnScans, s.MS2Marked, s.MS2Unresolved, s.MS2OutOfBounds, s.MS2Unscored)
}

func (par *params) runSlice(cmd *cobra.Command, uri string) (retErr error) {
	ctx := cmd.Context()
	cfg, err := par.loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := par.ingestOptions(ctx, cmd, cfg, nil)
	if err != nil {
		return err
	}
	fileKey, res, err := par.ingestFile(ctx, uri, cfg, opts)
	if err != nil {
		return err
	}
	catalog := ingest.NewCatalog()
	catalog.Add(fileKey, res)

	var b surface.Bounds
	full := res.Surface.Bounds()
	if b.RTMin, b.RTMax, err = parseFloat64Range(par.rtWindow, full.RTMin, full.RTMax); err != nil {
		return fmt.Errorf("--rt-window: %w", err)
	}
	if b.MzMin, b.MzMax, err = parseFloat64Range(par.mzWindow, full.MzMin, full.MzMax); err != nil {
		return fmt.Errorf("--mz-window: %w", err)
	}
	var g *surface.Grid
	if par.ms2 {
		g, err = catalog.MS2SurfaceIn(fileKey, b)
	} else {
		g, err = catalog.SurfaceIn(fileKey, b)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if par.outFile != "" {
		f, err := os.Create(par.outFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := f.Close(); err != nil && retErr == nil {
				retErr = err
			}
		}()
		out = f
	}
	return writeCSV(out, g)
}

// writeCSV writes the non-zero cells of g with the lower bin edges
func writeCSV(w io.Writer, g *surface.Grid) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"rt", "mz", "value"}); err != nil {
		return err
	}
	var err error
	g.NonZero(func(row, col int, v float64) {
		if err != nil {
			return
		}
		err = cw.Write([]string{
			strconv.FormatFloat(g.RowRT(row), 'f', 4, 64),
			strconv.FormatFloat(g.ColMz(col), 'f', 4, 64),
			strconv.FormatFloat(v, 'g', -1, 64),
		})
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
