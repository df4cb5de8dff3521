package main

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrRangeSpec = errors.New("invalid range specified")

var rangeRE = regexp.MustCompile(`^\s*([-+]?[0-9]*\.?[0-9]*(?:[eE][-+]?[0-9]+)?)\s*:\s*([-+]?[0-9]*\.?[0-9]*(?:[eE][-+]?[0-9]+)?)\s*$`)

// Parse string like "-12.01e1:+6" into 2 values, -120.1 and 6.0
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12.01e1:"), the default is assigned
func parseFloat64Range(r string, min float64, max float64) (
	float64, float64, error) {
	if strings.TrimSpace(r) == "" {
		return min, max, nil
	}
	m := rangeRE.FindStringSubmatch(r)
	if m == nil {
		return min, max, fmt.Errorf("%w: %q, should be <min>:<max>", ErrRangeSpec, r)
	}
	minOut := min
	maxOut := max
	var err error
	if m[1] != "" {
		if minOut, err = strconv.ParseFloat(m[1], 64); err != nil {
			return min, max, fmt.Errorf("%w: %q: %w", ErrRangeSpec, r, err)
		}
	}
	if m[2] != "" {
		if maxOut, err = strconv.ParseFloat(m[2], 64); err != nil {
			return min, max, fmt.Errorf("%w: %q: %w", ErrRangeSpec, r, err)
		}
	}
	if minOut > maxOut {
		return maxOut, maxOut, fmt.Errorf("%w: %q, minimum above maximum", ErrRangeSpec, r)
	}
	return minOut, maxOut, nil
}
