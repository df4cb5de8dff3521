// Package sqlite writes surfaces and their diagnostics to an SQLite database
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/524D/mzheat/internal/config"
	"github.com/524D/mzheat/internal/ingest"
	"github.com/524D/mzheat/internal/surface"
)

// Writer handles writing surfaces to an SQLite database file. Writing the
// same file key again replaces the earlier rows.
type Writer struct {
	db   *sql.DB
	path string
}

// NewWriter opens or creates the database
func NewWriter(path string) (*Writer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	w := &Writer{db: db, path: path}
	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		file_key TEXT PRIMARY KEY,
		run_id TEXT,
		config TEXT,
		total_ms1 INTEGER,
		ms1_without_rt INTEGER,
		peaks_rejected INTEGER,
		peaks_out_of_bounds INTEGER,
		intensity_count INTEGER,
		intensity_min DOUBLE,
		intensity_max DOUBLE,
		intensity_mean DOUBLE,
		intensity_sd DOUBLE,
		total_msn INTEGER,
		ms2_marked INTEGER,
		ms2_unresolved INTEGER,
		created TEXT
	);

	CREATE TABLE IF NOT EXISTS surfaces (
		file_key TEXT NOT NULL,
		ms2 BOOL NOT NULL,
		surface_key TEXT,
		n_rows INTEGER,
		n_cols INTEGER,
		rt_min DOUBLE,
		rt_max DOUBLE,
		mz_min DOUBLE,
		mz_max DOUBLE,
		rt_bin_width DOUBLE,
		mz_bin_width DOUBLE,
		PRIMARY KEY (file_key, ms2)
	);

	CREATE TABLE IF NOT EXISTS cells (
		file_key TEXT NOT NULL,
		ms2 BOOL NOT NULL,
		rt_bin INTEGER NOT NULL,
		mz_bin INTEGER NOT NULL,
		value DOUBLE,
		PRIMARY KEY (file_key, ms2, rt_bin, mz_bin)
	);
	`
	if _, err := w.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// WriteRun stores the summary and configuration of a file
func (w *Writer) WriteRun(fileKey string, s ingest.Summary, cfg config.Config) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.db.Exec(`INSERT INTO runs VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(file_key) DO UPDATE SET run_id=excluded.run_id, config=excluded.config,
		total_ms1=excluded.total_ms1, ms1_without_rt=excluded.ms1_without_rt,
		peaks_rejected=excluded.peaks_rejected, peaks_out_of_bounds=excluded.peaks_out_of_bounds,
		intensity_count=excluded.intensity_count, intensity_min=excluded.intensity_min,
		intensity_max=excluded.intensity_max, intensity_mean=excluded.intensity_mean,
		intensity_sd=excluded.intensity_sd, total_msn=excluded.total_msn,
		ms2_marked=excluded.ms2_marked, ms2_unresolved=excluded.ms2_unresolved, created=excluded.created`,
		fileKey, s.RunID, string(cfgJSON), s.TotalMS1Scans, s.MS1WithoutRT,
		s.PeaksRejected, s.PeaksOutOfBounds, s.Intensity.Count, s.Intensity.Min, s.Intensity.Max,
		s.Intensity.Mean(), s.Intensity.StdDev(), s.TotalMSnScans, s.MS2Marked, s.MS2Unresolved,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write run %s: %w", fileKey, err)
	}
	return nil
}

// WriteSurface stores the header and the non-zero cells of a surface in
// one transaction
func (w *Writer) WriteSurface(fileKey string, g *surface.Grid) (retErr error) {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	b := g.Bounds()
	if _, err := tx.Exec(`INSERT INTO surfaces VALUES(?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(file_key, ms2) DO UPDATE SET surface_key=excluded.surface_key,
		n_rows=excluded.n_rows, n_cols=excluded.n_cols, rt_min=excluded.rt_min, rt_max=excluded.rt_max,
		mz_min=excluded.mz_min, mz_max=excluded.mz_max,
		rt_bin_width=excluded.rt_bin_width, mz_bin_width=excluded.mz_bin_width`,
		fileKey, g.MS2(), g.Key(), g.Rows(), g.Cols(), b.RTMin, b.RTMax, b.MzMin, b.MzMax,
		g.RTBinWidth(), g.MzBinWidth()); err != nil {
		return fmt.Errorf("failed to write surface %s: %w", fileKey, err)
	}
	if _, err := tx.Exec(`DELETE FROM cells WHERE file_key=? AND ms2=?`, fileKey, g.MS2()); err != nil {
		return fmt.Errorf("failed to clear cells of %s: %w", fileKey, err)
	}
	stmt, err := tx.Prepare(`INSERT INTO cells VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	g.NonZero(func(row, col int, v float64) {
		if err != nil {
			return
		}
		_, err = stmt.Exec(fileKey, g.MS2(), row, col, v)
	})
	if err != nil {
		return fmt.Errorf("failed to write cells of %s: %w", fileKey, err)
	}
	return tx.Commit()
}

// Path returns the database path
func (w *Writer) Path() string { return w.path }

// Close closes the database
func (w *Writer) Close() error {
	return w.db.Close()
}
