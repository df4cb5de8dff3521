// Package config holds the parameters of a surface computation
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/524D/mzheat/internal/quality"
	"github.com/524D/mzheat/internal/surface"
	"github.com/524D/mzheat/internal/threshold"
)

// ErrInvalid is matched by every configuration error
var ErrInvalid = errors.New("config: invalid configuration")

// Error reports the fields of a configuration that are invalid
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration in %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrInvalid) true for configuration errors
func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}

// Config holds the plain values that determine a surface. Retention times
// are in seconds.
type Config struct {
	RTMin          float64 `json:"rtMin"`
	RTMax          float64 `json:"rtMax"`
	MzMin          float64 `json:"mzMin"`
	MzMax          float64 `json:"mzMax"`
	Threshold      string  `json:"threshold"`
	ThresholdValue float64 `json:"thresholdValue"`
	// Quality is the name of the MS2 quality scorer, empty for a constant marker
	Quality string `json:"quality,omitempty"`
	// IdentFile is the mzIdentML file used by the identification scorer
	IdentFile string `json:"identFile,omitempty"`
	// ScoreAccessions are the CV terms of the identification score, in order of preference
	ScoreAccessions []string `json:"scoreAccessions,omitempty"`
}

// Default returns the configuration used when nothing is specified
func Default() Config {
	return Config{
		RTMin:          0,
		RTMax:          600,
		MzMin:          100,
		MzMax:          1100,
		Threshold:      threshold.AcceptAll.String(),
		ThresholdValue: 0,
	}
}

// Load reads a JSON configuration. Fields missing from the JSON keep
// their default value.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	d := json.NewDecoder(r)
	d.DisallowUnknownFields()
	if err := d.Decode(&cfg); err != nil {
		return cfg, &Error{Field: "file", Message: err.Error()}
	}
	return cfg, nil
}

// Validate checks the bounds and the strategy names
func (c Config) Validate() error {
	var errs []string
	checkRange := func(name string, min, max float64) {
		switch {
		case math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0):
			errs = append(errs, name+" range must be finite")
		case min < 0:
			errs = append(errs, name+" minimum must not be negative")
		case min >= max:
			errs = append(errs, fmt.Sprintf("%s minimum %g must be less than maximum %g", name, min, max))
		}
	}
	checkRange("retention time", c.RTMin, c.RTMax)
	checkRange("m/z", c.MzMin, c.MzMax)
	if _, err := threshold.ParseMethod(c.Threshold); err != nil {
		errs = append(errs, fmt.Sprintf("unknown threshold method %q (valid: %s)",
			c.Threshold, strings.Join(threshold.MethodNames(), ", ")))
	}
	if c.Quality != "" {
		known := false
		for _, n := range quality.Names() {
			known = known || n == c.Quality
		}
		if !known {
			errs = append(errs, fmt.Sprintf("unknown quality scorer %q (valid: %s)",
				c.Quality, strings.Join(quality.Names(), ", ")))
		}
		if c.Quality == "identification" && c.IdentFile == "" {
			errs = append(errs, "identification scorer needs an identification file")
		}
	}
	if len(errs) > 0 {
		return &Error{Field: "Config", Message: strings.Join(errs, "; ")}
	}
	return nil
}

// Bounds returns the surface bounds of the configuration
func (c Config) Bounds() surface.Bounds {
	return surface.Bounds{RTMin: c.RTMin, RTMax: c.RTMax, MzMin: c.MzMin, MzMax: c.MzMax}
}

// Policy returns the threshold policy of the configuration
func (c Config) Policy() (threshold.Policy, error) {
	m, err := threshold.ParseMethod(c.Threshold)
	if err != nil {
		return threshold.Policy{}, &Error{Field: "threshold", Message: err.Error()}
	}
	return threshold.Policy{Method: m, Value: c.ThresholdValue}, nil
}
