package ingest

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/524D/mzheat/internal/mzml"
)

type testScan struct {
	id     string
	level  int
	rt     float64 // NaN to leave out the scan start time
	ref    string
	precMz float64
	peaks  []mzml.Peak
}

// testMzML writes a minimal mzML document with 64-bit zlib compressed arrays
func testMzML(t testing.TB, scans ...testScan) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString(`<mzML xmlns="http://psi.hupo.org/ms/mzml" version="1.1.0"><run id="ingest_run"><spectrumList>` + "\n")
	for i, s := range scans {
		fmt.Fprintf(&b, `<spectrum index="%d" id="%s" defaultArrayLength="%d">`+"\n", i, s.id, len(s.peaks))
		fmt.Fprintf(&b, `<cvParam cvRef="MS" accession="MS:1000511" name="ms level" value="%d"/>`+"\n", s.level)
		b.WriteString("<scanList><scan>")
		if !math.IsNaN(s.rt) {
			fmt.Fprintf(&b, `<cvParam cvRef="MS" accession="MS:1000016" name="scan start time" value="%g" unitAccession="UO:0000010"/>`, s.rt)
		}
		b.WriteString("</scan></scanList>\n")
		if s.level > 1 {
			if s.ref != "" {
				fmt.Fprintf(&b, `<precursorList><precursor spectrumRef="%s">`, s.ref)
			} else {
				b.WriteString(`<precursorList><precursor>`)
			}
			fmt.Fprintf(&b, `<selectedIonList><selectedIon><cvParam cvRef="MS" accession="MS:1000744" value="%g"/></selectedIon></selectedIonList>`, s.precMz)
			b.WriteString("</precursor></precursorList>\n")
		}
		b.WriteString("<binaryDataArrayList>\n")
		for _, mz := range []bool{true, false} {
			enc, err := mzml.EncodeBinary(s.peaks, true, true, mz)
			if err != nil {
				t.Fatalf("EncodeBinary: %v", err)
			}
			array := "MS:1000515"
			if mz {
				array = "MS:1000514"
			}
			fmt.Fprintf(&b, `<binaryDataArray><cvParam accession="MS:1000523"/><cvParam accession="MS:1000574"/><cvParam accession="%s"/><binary>%s</binary></binaryDataArray>`+"\n", array, enc)
		}
		b.WriteString("</binaryDataArrayList></spectrum>\n")
	}
	b.WriteString("</spectrumList></run></mzML>\n")
	return b.String()
}

// spectrum returns the spectrum that the dispatcher would produce for s
func (s testScan) spectrum() *mzml.Spectrum {
	sp := &mzml.Spectrum{
		ID:              s.id,
		MSLevel:         s.level,
		RetentionTime:   s.rt,
		TotalIonCurrent: math.NaN(),
		Peaks:           s.peaks,
	}
	if s.level > 1 {
		sp.Precursors = []mzml.Precursor{{SpectrumRef: s.ref, SelectedIonMz: s.precMz, IsolationTargetMz: math.NaN()}}
	}
	return sp
}
