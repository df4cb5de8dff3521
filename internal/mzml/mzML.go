package mzml

import (
	"errors"
	"fmt"
	"math"
)

// Peak contains the actual ms peak info
type Peak struct {
	Mz     float64
	Intens float64
}

// CVParam contains values and attributes of a mzML Controlled Vocabulary term
// (http://www.peptideatlas.org/tmp/mzML1.1.0.html)
type CVParam struct {
	Accession     string
	Name          string
	Value         string
	CvRef         string
	UnitAccession string
	UnitName      string
}

// Precursor holds the precursor info of a spectrum that we use
type Precursor struct {
	// SpectrumRef is the id of the spectrum the precursor was selected from,
	// empty if the file doesn't specify it
	SpectrumRef string
	// SelectedIonMz is the m/z of the first selected ion, NaN if absent
	SelectedIonMz float64
	// IsolationTargetMz is the isolation window target m/z, NaN if absent
	IsolationTargetMz float64
}

// Mz returns the best available precursor m/z: the selected ion m/z,
// or the isolation window target if no selected ion was reported
func (p Precursor) Mz() float64 {
	if !math.IsNaN(p.SelectedIonMz) {
		return p.SelectedIonMz
	}
	return p.IsolationTargetMz
}

// Spectrum is the transient content of a single <spectrum> element. It is
// handed to a ScanHandler when the element closes. Handlers should not keep
// the peak list after the callback returns.
type Spectrum struct {
	Index              int
	ID                 string
	DefaultArrayLength int
	MSLevel            int     // 0 if the file doesn't specify it
	RetentionTime      float64 // seconds, NaN if absent
	TotalIonCurrent    float64 // NaN if absent
	Centroid           bool
	Precursors         []Precursor
	Peaks              []Peak
}

func newSpectrum() *Spectrum {
	return &Spectrum{
		RetentionTime:   math.NaN(),
		TotalIonCurrent: math.NaN(),
	}
}

// Level returns the MS level, guessing MS1 when the file doesn't specify it
func (s *Spectrum) Level() int {
	if s.MSLevel == 0 {
		return 1
	}
	return s.MSLevel
}

// CV terms that the matchers act on
const (
	cvMSLevel            = `MS:1000511`
	cvMS1Spectrum        = `MS:1000579`
	cvMSnSpectrum        = `MS:1000580`
	cvCentroidSpectrum   = `MS:1000127`
	cvTotalIonCurrent    = `MS:1000285`
	cvScanStartTime      = `MS:1000016`
	cvSelectedIonMz      = `MS:1000744`
	cvIsolationTargetMz  = `MS:1000827`
	cvZlibCompression    = `MS:1000574`
	cvMzArray            = `MS:1000514`
	cvIntensityArray     = `MS:1000515`
	cv64BitFloat         = `MS:1000523`
	cv32BitFloat         = `MS:1000521`
	unitMinute           = `UO:0000031`
	unitMinuteDeprecated = `MS:1000038`
)

var (
	// ErrUnbalanced means an end tag doesn't match the element on top of the stack
	ErrUnbalanced = errors.New("mzML: unbalanced element nesting")
	// ErrUnsupportedCompression means the binary data uses a compression we can't decode
	ErrUnsupportedCompression = errors.New("mzML: compression type not supported")
	// ErrArrayLength means a binary array holds a different number of values than the spectrum
	ErrArrayLength = errors.New("mzML: binary array length mismatch")
)

// FormatError reports a malformed or unreadable mzML stream. Input offset
// is the byte offset reported by the XML decoder when the error was detected.
type FormatError struct {
	Offset  int64
	Element string
	Err     error
}

func (e *FormatError) Error() string {
	if e.Element != "" {
		return fmt.Sprintf("mzML format error at offset %d (<%s>): %v", e.Offset, e.Element, e.Err)
	}
	return fmt.Sprintf("mzML format error at offset %d: %v", e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
