package mzml

import (
	"context"
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
)

// Matcher is the capability set of an element handler. The dispatcher
// pushes a fresh matcher for every registered start element.
type Matcher interface {
	Enter(attrs []xml.Attr) error
	Attribute(p CVParam) error
	Characters(text []byte) error
	Finalize() error
}

type frame struct {
	name string
	kind Kind
	m    Matcher
}

// parseState is shared by all matchers of one dispatcher run
type parseState struct {
	ctx     context.Context
	handler ScanHandler
	stack   []frame
	groups  map[string][]CVParam
	runID   string
}

// nearest returns the matcher of the given kind closest to the top of the stack
func (st *parseState) nearest(kind Kind) Matcher {
	for i := len(st.stack) - 1; i >= 0; i-- {
		if st.stack[i].kind == kind {
			return st.stack[i].m
		}
	}
	return nil
}

func (st *parseState) spectrum() *spectrumMatcher {
	sm, _ := st.nearest(KindSpectrum).(*spectrumMatcher)
	return sm
}

func (st *parseState) precursor() *precursorMatcher {
	pm, _ := st.nearest(KindPrecursor).(*precursorMatcher)
	return pm
}

func newMatcher(kind Kind, st *parseState) Matcher {
	switch kind {
	case KindRun:
		return &runMatcher{st: st}
	case KindSpectrum:
		return &spectrumMatcher{st: st}
	case KindScan:
		return &scanMatcher{st: st}
	case KindPrecursor:
		return &precursorMatcher{st: st}
	case KindIsolationWindow:
		return &isolationWindowMatcher{st: st}
	case KindSelectedIon:
		return &selectedIonMatcher{st: st, mz: math.NaN()}
	case KindBinaryDataArray:
		return &arrayMatcher{st: st}
	case KindBinary:
		return &binaryMatcher{st: st}
	case KindParamGroup:
		return &paramGroupMatcher{st: st}
	}
	// KindStructural, KindChromatogram
	return structural{}
}

func attrValue(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func parseFloat(p CVParam) (float64, error) {
	v, err := strconv.ParseFloat(p.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q for %s: %w", p.Value, p.Accession, err)
	}
	return v, nil
}

// structural matchers only open a scope
type structural struct{}

func (structural) Enter([]xml.Attr) error  { return nil }
func (structural) Attribute(CVParam) error { return nil }
func (structural) Characters([]byte) error { return nil }
func (structural) Finalize() error         { return nil }

type runMatcher struct {
	structural
	st *parseState
}

func (m *runMatcher) Enter(attrs []xml.Attr) error {
	m.st.runID = attrValue(attrs, "id")
	return nil
}

type spectrumMatcher struct {
	structural
	st   *parseState
	spec *Spectrum
}

func (m *spectrumMatcher) Enter(attrs []xml.Attr) error {
	// Cancellation is checked once per scan
	if err := m.st.ctx.Err(); err != nil {
		return escape{err}
	}
	m.spec = newSpectrum()
	m.spec.ID = attrValue(attrs, "id")
	var err error
	if s := attrValue(attrs, "index"); s != "" {
		if m.spec.Index, err = strconv.Atoi(s); err != nil {
			return fmt.Errorf("invalid spectrum index %q: %w", s, err)
		}
	}
	if s := attrValue(attrs, "defaultArrayLength"); s != "" {
		if m.spec.DefaultArrayLength, err = strconv.Atoi(s); err != nil {
			return fmt.Errorf("invalid defaultArrayLength %q: %w", s, err)
		}
	}
	return nil
}

func (m *spectrumMatcher) Attribute(p CVParam) error {
	switch p.Accession {
	case cvMSLevel:
		msLevel, err := strconv.Atoi(p.Value)
		if err != nil {
			return fmt.Errorf("invalid ms level %q: %w", p.Value, err)
		}
		m.spec.MSLevel = msLevel
	case cvMS1Spectrum:
		if m.spec.MSLevel == 0 {
			m.spec.MSLevel = 1
		}
	case cvMSnSpectrum:
		if m.spec.MSLevel == 0 {
			m.spec.MSLevel = 2
		}
	case cvCentroidSpectrum:
		m.spec.Centroid = true
	case cvTotalIonCurrent:
		tic, err := parseFloat(p)
		if err != nil {
			return err
		}
		m.spec.TotalIonCurrent = tic
	}
	return nil
}

func (m *spectrumMatcher) Finalize() error {
	if m.st.handler == nil {
		return nil
	}
	if err := m.st.handler.HandleSpectrum(m.spec); err != nil {
		return escape{err}
	}
	return nil
}

// scanMatcher picks up the retention time of the first scan of a spectrum
type scanMatcher struct {
	structural
	st *parseState
}

func (m *scanMatcher) Attribute(p CVParam) error {
	if p.Accession != cvScanStartTime {
		return nil
	}
	sm := m.st.spectrum()
	if sm == nil || !math.IsNaN(sm.spec.RetentionTime) {
		return nil
	}
	rt, err := parseFloat(p)
	if err != nil {
		return err
	}
	// Check if the retention time is in minutes, otherwise assume it's seconds
	if p.UnitAccession == unitMinute || p.UnitAccession == unitMinuteDeprecated {
		rt *= 60
	}
	sm.spec.RetentionTime = rt
	return nil
}

type precursorMatcher struct {
	structural
	st *parseState
	p  Precursor
}

func (m *precursorMatcher) Enter(attrs []xml.Attr) error {
	m.p = Precursor{
		SpectrumRef:       attrValue(attrs, "spectrumRef"),
		SelectedIonMz:     math.NaN(),
		IsolationTargetMz: math.NaN(),
	}
	return nil
}

func (m *precursorMatcher) Finalize() error {
	if sm := m.st.spectrum(); sm != nil {
		sm.spec.Precursors = append(sm.spec.Precursors, m.p)
	}
	return nil
}

type isolationWindowMatcher struct {
	structural
	st *parseState
}

func (m *isolationWindowMatcher) Attribute(p CVParam) error {
	if p.Accession != cvIsolationTargetMz {
		return nil
	}
	pm := m.st.precursor()
	if pm == nil {
		return nil
	}
	mz, err := parseFloat(p)
	if err != nil {
		return err
	}
	pm.p.IsolationTargetMz = mz
	return nil
}

type selectedIonMatcher struct {
	structural
	st *parseState
	mz float64
}

func (m *selectedIonMatcher) Attribute(p CVParam) error {
	if p.Accession != cvSelectedIonMz {
		return nil
	}
	mz, err := parseFloat(p)
	if err != nil {
		return err
	}
	m.mz = mz
	return nil
}

// Finalize stores the m/z of the first selected ion in the precursor
func (m *selectedIonMatcher) Finalize() error {
	pm := m.st.precursor()
	if pm != nil && math.IsNaN(pm.p.SelectedIonMz) {
		pm.p.SelectedIonMz = m.mz
	}
	return nil
}

type arrayMatcher struct {
	structural
	st      *parseState
	format  ArrayFormat
	payload []byte
}

func (m *arrayMatcher) Attribute(p CVParam) error {
	m.format.apply(p)
	return nil
}

func (m *arrayMatcher) Finalize() error {
	// Chromatogram arrays don't belong to a spectrum
	if m.st.nearest(KindChromatogram) != nil {
		return nil
	}
	sm := m.st.spectrum()
	if sm == nil || (!m.format.MzArray && !m.format.IntensArray) {
		return nil
	}
	values, err := DecodeBinary(m.payload, m.format)
	if err != nil {
		return err
	}
	sm.spec.Peaks, err = fillPeaks(sm.spec.Peaks, values, m.format)
	return err
}

// binaryMatcher collects the encoded text, which may arrive in several pieces
type binaryMatcher struct {
	structural
	st   *parseState
	text []byte
}

func (m *binaryMatcher) Characters(text []byte) error {
	m.text = append(m.text, text...)
	return nil
}

func (m *binaryMatcher) Finalize() error {
	if am, ok := m.st.nearest(KindBinaryDataArray).(*arrayMatcher); ok {
		am.payload = m.text
	}
	return nil
}

// paramGroupMatcher records a referenceableParamGroup so that
// referenceableParamGroupRef elements can be expanded later
type paramGroupMatcher struct {
	structural
	st *parseState
	id string
}

func (m *paramGroupMatcher) Enter(attrs []xml.Attr) error {
	m.id = attrValue(attrs, "id")
	if _, ok := m.st.groups[m.id]; !ok {
		m.st.groups[m.id] = nil
	}
	return nil
}

func (m *paramGroupMatcher) Attribute(p CVParam) error {
	m.st.groups[m.id] = append(m.st.groups[m.id], p)
	return nil
}
