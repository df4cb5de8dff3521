package mzml

import (
	"context"
	"encoding/xml"
	"errors"
	"io"

	"golang.org/x/net/html/charset"
)

// ScanHandler receives every spectrum when its element closes
type ScanHandler interface {
	HandleSpectrum(s *Spectrum) error
}

// ScanHandlerFunc adapts a function to a ScanHandler
type ScanHandlerFunc func(s *Spectrum) error

// HandleSpectrum calls f(s)
func (f ScanHandlerFunc) HandleSpectrum(s *Spectrum) error {
	return f(s)
}

// escape carries errors that must reach the caller of Run unwrapped,
// i.e. cancellation and errors returned by the ScanHandler
type escape struct{ err error }

func (e escape) Error() string { return e.err.Error() }
func (e escape) Unwrap() error { return e.err }

// Dispatcher reads an mzML stream in a single pass. Registered elements are
// kept on a stack of matchers; cvParam elements and character data are
// routed to the matcher on top of the stack.
type Dispatcher struct {
	registry *Registry
	st       parseState
	dec      *xml.Decoder
}

// NewDispatcher creates a dispatcher that calls handler for each spectrum.
// A nil registry means DefaultRegistry().
func NewDispatcher(registry *Registry, handler ScanHandler) *Dispatcher {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Dispatcher{
		registry: registry,
		st:       parseState{handler: handler},
	}
}

// RunID returns the id attribute of the <run> element of the last stream
func (d *Dispatcher) RunID() string {
	return d.st.runID
}

// InputOffset returns the input stream byte offset of the current decoder
// position, 0 before Run is called
func (d *Dispatcher) InputOffset() int64 {
	if d.dec == nil {
		return 0
	}
	return d.dec.InputOffset()
}

// Run consumes the stream to the end. Format problems are returned as
// *FormatError; cancellation of ctx and handler errors are returned as is.
func (d *Dispatcher) Run(ctx context.Context, reader io.Reader) error {
	d.st.ctx = ctx
	d.st.stack = d.st.stack[:0]
	d.st.groups = make(map[string][]CVParam)
	d.st.runID = ""

	dec := xml.NewDecoder(reader)
	dec.CharsetReader = charset.NewReaderLabel
	d.dec = dec

	for {
		t, tokenErr := dec.Token()
		if tokenErr != nil {
			if tokenErr == io.EOF {
				break
			}
			return &FormatError{Offset: dec.InputOffset(), Err: tokenErr}
		}
		var err error
		var name string
		switch t := t.(type) {
		case xml.StartElement:
			name = t.Name.Local
			err = d.start(t)
		case xml.EndElement:
			name = t.Name.Local
			err = d.end(t)
		case xml.CharData:
			if len(d.st.stack) > 0 {
				err = d.top().Characters(t)
			}
		}
		if err != nil {
			var esc escape
			if errors.As(err, &esc) {
				return esc.err
			}
			return &FormatError{Offset: dec.InputOffset(), Element: name, Err: err}
		}
	}
	if len(d.st.stack) > 0 {
		return &FormatError{Offset: dec.InputOffset(), Element: d.st.stack[len(d.st.stack)-1].name,
			Err: ErrUnbalanced}
	}
	return nil
}

func (d *Dispatcher) top() Matcher {
	return d.st.stack[len(d.st.stack)-1].m
}

func (d *Dispatcher) start(t xml.StartElement) error {
	switch t.Name.Local {
	case "cvParam":
		if len(d.st.stack) == 0 {
			return nil
		}
		return d.top().Attribute(cvParamFromAttrs(t.Attr))
	case "referenceableParamGroupRef":
		if len(d.st.stack) == 0 {
			return nil
		}
		for _, p := range d.st.groups[attrValue(t.Attr, "ref")] {
			if err := d.top().Attribute(p); err != nil {
				return err
			}
		}
		return nil
	}
	e, ok := d.registry.lookup(t.Name.Local)
	if !ok {
		return nil
	}
	m := newMatcher(e.kind, &d.st)
	// Push before Enter, so nested elements see their parents on the stack
	d.st.stack = append(d.st.stack, frame{name: t.Name.Local, kind: e.kind, m: m})
	return m.Enter(t.Attr)
}

func (d *Dispatcher) end(t xml.EndElement) error {
	e, ok := d.registry.lookup(t.Name.Local)
	if !ok {
		return nil
	}
	n := len(d.st.stack)
	if n == 0 || d.st.stack[n-1].name != t.Name.Local {
		return ErrUnbalanced
	}
	f := d.st.stack[n-1]
	d.st.stack = d.st.stack[:n-1]
	if !e.persist {
		return nil
	}
	return f.m.Finalize()
}

func cvParamFromAttrs(attrs []xml.Attr) CVParam {
	var p CVParam
	for _, a := range attrs {
		switch a.Name.Local {
		case "accession":
			p.Accession = a.Value
		case "name":
			p.Name = a.Value
		case "value":
			p.Value = a.Value
		case "cvRef":
			p.CvRef = a.Value
		case "unitAccession":
			p.UnitAccession = a.Value
		case "unitName":
			p.UnitName = a.Value
		}
	}
	return p
}
