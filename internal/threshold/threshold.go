// Package threshold decides which peaks of a spectrum are accumulated
package threshold

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/524D/mzheat/internal/mzml"
)

// Method selects the acceptance rule of a Policy
type Method int

const (
	// PercentOfTIC accepts peaks with at least Value percent of the total ion current
	PercentOfTIC Method = iota
	// AbsoluteIntensity accepts peaks with an intensity of at least Value
	AbsoluteIntensity
	// AcceptAll accepts every peak
	AcceptAll
	// RejectIntense accepts peaks with an intensity below Value
	RejectIntense
)

var methodNames = map[Method]string{
	PercentOfTIC:      "percent-of-tic",
	AbsoluteIntensity: "absolute-intensity",
	AcceptAll:         "accept-all",
	RejectIntense:     "reject-intense",
}

// ErrUnknownMethod is returned by ParseMethod for names it doesn't know
var ErrUnknownMethod = errors.New("threshold: unknown method")

func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod returns the method with the given name
func ParseMethod(name string) (Method, error) {
	for m, s := range methodNames {
		if s == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownMethod, name)
}

// MethodNames lists the valid method names
func MethodNames() []string {
	return []string{"percent-of-tic", "absolute-intensity", "accept-all", "reject-intense"}
}

// Policy is a threshold method with its value
type Policy struct {
	Method Method
	Value  float64
}

// PeakList wraps the peaks of one spectrum so that the total ion current
// is only computed once
type PeakList struct {
	Peaks []mzml.Peak
	tic   float64
	done  bool
}

// NewPeakList returns a peak list for p
func NewPeakList(p []mzml.Peak) *PeakList {
	return &PeakList{Peaks: p}
}

// TIC returns the sum of the intensities
func (l *PeakList) TIC() float64 {
	if !l.done {
		intens := make([]float64, len(l.Peaks))
		for i, p := range l.Peaks {
			intens[i] = p.Intens
		}
		l.tic = floats.Sum(intens)
		l.done = true
	}
	return l.tic
}

// Accept reports whether peak p of list l passes the policy
func (pol Policy) Accept(l *PeakList, p mzml.Peak) bool {
	switch pol.Method {
	case PercentOfTIC:
		return p.Intens >= pol.Value/100*l.TIC()
	case AbsoluteIntensity:
		return p.Intens >= pol.Value
	case RejectIntense:
		return p.Intens < pol.Value
	}
	return true
}
