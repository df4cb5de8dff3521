package mzml

import (
	"fmt"
	"strings"
	"testing"
)

// testSpectrum describes a spectrum for the synthetic mzML files used in tests
type testSpectrum struct {
	id          string
	msLevel     int
	rt          float64 // seconds, omitted if 0
	rtMinutes   bool
	spectrumRef string // precursor spectrumRef for MS2, omitted if empty
	precMz      float64
	peaks       []Peak
	zlib        bool
	bits64      bool
}

func writeBinaryArray(t testing.TB, b *strings.Builder, peaks []Peak, zlib, bits64, mz bool) {
	t.Helper()
	enc, err := EncodeBinary(peaks, zlib, bits64, mz)
	if err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	fmt.Fprintf(b, "<binaryDataArray encodedLength=\"%d\">\n", len(enc))
	if bits64 {
		b.WriteString(`<cvParam cvRef="MS" accession="MS:1000523" name="64-bit float" value=""/>` + "\n")
	} else {
		b.WriteString(`<cvParam cvRef="MS" accession="MS:1000521" name="32-bit float" value=""/>` + "\n")
	}
	if zlib {
		b.WriteString(`<cvParam cvRef="MS" accession="MS:1000574" name="zlib compression" value=""/>` + "\n")
	} else {
		b.WriteString(`<cvParam cvRef="MS" accession="MS:1000576" name="no compression" value=""/>` + "\n")
	}
	if mz {
		b.WriteString(`<cvParam cvRef="MS" accession="MS:1000514" name="m/z array" value="" unitCvRef="MS" unitAccession="MS:1000040" unitName="m/z"/>` + "\n")
	} else {
		b.WriteString(`<cvParam cvRef="MS" accession="MS:1000515" name="intensity array" value="" unitCvRef="MS" unitAccession="MS:1000131" unitName="number of detector counts"/>` + "\n")
	}
	fmt.Fprintf(b, "<binary>%s</binary>\n</binaryDataArray>\n", enc)
}

// buildMzML returns a small but structurally complete mzML document
func buildMzML(t testing.TB, specs []testSpectrum) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>
<indexedmzML xmlns="http://psi.hupo.org/ms/mzml">
<mzML xmlns="http://psi.hupo.org/ms/mzml" version="1.1.0">
<cvList count="1"><cv id="MS" fullName="Proteomics Standards Initiative Mass Spectrometry Ontology"/></cvList>
<fileDescription><fileContent><cvParam cvRef="MS" accession="MS:1000579" name="MS1 spectrum" value=""/></fileContent></fileDescription>
<run id="test_run" defaultInstrumentConfigurationRef="IC1">
`)
	fmt.Fprintf(&b, "<spectrumList count=\"%d\" defaultDataProcessingRef=\"pwiz\">\n", len(specs))
	for i, s := range specs {
		fmt.Fprintf(&b, "<spectrum index=\"%d\" id=\"%s\" defaultArrayLength=\"%d\">\n", i, s.id, len(s.peaks))
		fmt.Fprintf(&b, "<cvParam cvRef=\"MS\" accession=\"MS:1000511\" name=\"ms level\" value=\"%d\"/>\n", s.msLevel)
		b.WriteString(`<cvParam cvRef="MS" accession="MS:1000127" name="centroid spectrum" value=""/>` + "\n")
		b.WriteString("<scanList count=\"1\">\n")
		b.WriteString(`<cvParam cvRef="MS" accession="MS:1000795" name="no combination" value=""/>` + "\n")
		b.WriteString("<scan>\n")
		if s.rt != 0 {
			if s.rtMinutes {
				fmt.Fprintf(&b, "<cvParam cvRef=\"MS\" accession=\"MS:1000016\" name=\"scan start time\" value=\"%g\" unitCvRef=\"UO\" unitAccession=\"UO:0000031\" unitName=\"minute\"/>\n", s.rt/60)
			} else {
				fmt.Fprintf(&b, "<cvParam cvRef=\"MS\" accession=\"MS:1000016\" name=\"scan start time\" value=\"%g\" unitCvRef=\"UO\" unitAccession=\"UO:0000010\" unitName=\"second\"/>\n", s.rt)
			}
		}
		b.WriteString("<scanWindowList count=\"1\"><scanWindow>")
		b.WriteString(`<cvParam cvRef="MS" accession="MS:1000501" name="scan window lower limit" value="100"/>`)
		b.WriteString("</scanWindow></scanWindowList>\n</scan>\n</scanList>\n")
		if s.msLevel >= 2 {
			b.WriteString("<precursorList count=\"1\">\n")
			if s.spectrumRef != "" {
				fmt.Fprintf(&b, "<precursor spectrumRef=\"%s\">\n", s.spectrumRef)
			} else {
				b.WriteString("<precursor>\n")
			}
			fmt.Fprintf(&b, "<isolationWindow><cvParam cvRef=\"MS\" accession=\"MS:1000827\" name=\"isolation window target m/z\" value=\"%g\"/></isolationWindow>\n", s.precMz)
			fmt.Fprintf(&b, "<selectedIonList count=\"1\"><selectedIon><cvParam cvRef=\"MS\" accession=\"MS:1000744\" name=\"selected ion m/z\" value=\"%g\"/></selectedIon></selectedIonList>\n", s.precMz)
			b.WriteString(`<activation><cvParam cvRef="MS" accession="MS:1000133" name="collision-induced dissociation" value=""/></activation>` + "\n")
			b.WriteString("</precursor>\n</precursorList>\n")
		}
		fmt.Fprintf(&b, "<binaryDataArrayList count=\"2\">\n")
		writeBinaryArray(t, &b, s.peaks, s.zlib, s.bits64, true)
		writeBinaryArray(t, &b, s.peaks, s.zlib, s.bits64, false)
		b.WriteString("</binaryDataArrayList>\n</spectrum>\n")
	}
	b.WriteString("</spectrumList>\n</run>\n</mzML>\n<indexList count=\"0\"/>\n</indexedmzML>\n")
	return b.String()
}

// collect returns a handler that keeps a copy of all spectra
func collect(out *[]Spectrum) ScanHandler {
	return ScanHandlerFunc(func(s *Spectrum) error {
		*out = append(*out, *s)
		return nil
	})
}
