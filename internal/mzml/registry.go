package mzml

// Kind identifies the matcher variant that handles an element
type Kind int

const (
	// KindStructural elements only open a scope, they have no behavior
	KindStructural Kind = iota
	KindRun
	KindSpectrum
	KindScan
	KindPrecursor
	KindIsolationWindow
	KindSelectedIon
	KindBinaryDataArray
	KindBinary
	KindParamGroup
	KindChromatogram
)

var kindNames = [...]string{
	KindStructural:      "structural",
	KindRun:             "run",
	KindSpectrum:        "spectrum",
	KindScan:            "scan",
	KindPrecursor:       "precursor",
	KindIsolationWindow: "isolationWindow",
	KindSelectedIon:     "selectedIon",
	KindBinaryDataArray: "binaryDataArray",
	KindBinary:          "binary",
	KindParamGroup:      "referenceableParamGroup",
	KindChromatogram:    "chromatogram",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

type entry struct {
	kind    Kind
	persist bool // Finalize is only called for persisting elements
}

// Registry maps element names to matcher kinds. Elements that are not
// registered are skipped by the dispatcher.
type Registry struct {
	entries map[string]entry
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register binds an element name to a matcher kind. When persist is false
// the element is structural: it is pushed and popped, but never finalized.
func (r *Registry) Register(name string, kind Kind, persist bool) {
	r.entries[name] = entry{kind: kind, persist: persist}
}

// Registered reports whether a matcher is registered for the element name
func (r *Registry) Registered(name string) bool {
	_, ok := r.entries[name]
	return ok
}

func (r *Registry) lookup(name string) (entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// DefaultRegistry returns the registry for the part of mzML that
// we read: spectra with their retention time, precursors and peaks
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("run", KindRun, false)
	r.Register("spectrumList", KindStructural, false)
	r.Register("spectrum", KindSpectrum, true)
	r.Register("scanList", KindStructural, false)
	r.Register("scan", KindScan, false)
	r.Register("scanWindowList", KindStructural, false)
	r.Register("precursorList", KindStructural, false)
	r.Register("precursor", KindPrecursor, true)
	r.Register("isolationWindow", KindIsolationWindow, false)
	r.Register("selectedIonList", KindStructural, false)
	r.Register("selectedIon", KindSelectedIon, true)
	r.Register("activation", KindStructural, false)
	r.Register("binaryDataArrayList", KindStructural, false)
	r.Register("binaryDataArray", KindBinaryDataArray, true)
	r.Register("binary", KindBinary, true)
	r.Register("chromatogramList", KindStructural, false)
	r.Register("chromatogram", KindChromatogram, false)
	r.Register("referenceableParamGroupList", KindStructural, false)
	r.Register("referenceableParamGroup", KindParamGroup, false)
	return r
}
