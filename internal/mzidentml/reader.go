package mzidentml

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"

	"golang.org/x/net/html/charset"
)

// Read reads mzIdentML content from io.reader
func Read(reader io.Reader) (MzIdentML, error) {
	var mzIdentML MzIdentML
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	err := d.Decode(&mzIdentML.content)
	if err != nil {
		return mzIdentML, err
	}
	mzIdentML.buildPepIndex()
	mzIdentML.buildIdentList()
	return mzIdentML, nil
}

func (m *MzIdentML) buildPepIndex() {
	m.pepID2Idx = make(map[string]int, len(m.content.Peptide))
	for i, p := range m.content.Peptide {
		m.pepID2Idx[p.ID] = i
	}
}

func (m *MzIdentML) buildIdentList() {
	m.identList = m.identList[:0]
	for i := range m.content.SpectrumIdentificationResult {
		for j := range m.content.SpectrumIdentificationResult[i].SpectrumIdentificationItem {
			m.identList = append(m.identList, identRef{resultIdx: i, itemIdx: j})
		}
	}
}

// NumIdents returns the total number of identifications in the mzIdentML file
// Note that for some spectra, multiple identifications may be present
// The identifications can be accessed using the Ident() method, which takes
// an index as argument. The index runs from 0 to NumIdents()-1
func (m *MzIdentML) NumIdents() int {
	return len(m.identList)
}

// Ident returns a spectrum identification from the mzIdentML file.
// Parameter i is the index of the identification to return. The index runs
// from 0 to NumIdents()-1
func (m *MzIdentML) Ident(i int) (Identification, error) {
	var ident Identification

	if i < 0 || i >= len(m.identList) {
		return ident, ErrInvalidIdentIndex
	}
	result := &m.content.SpectrumIdentificationResult[m.identList[i].resultIdx]
	item := &result.SpectrumIdentificationItem[m.identList[i].itemIdx]

	pepIdx, ok := m.pepID2Idx[item.PeptideRef]
	if !ok {
		return ident, fmt.Errorf("%w %q", ErrUnknownPeptide, item.PeptideRef)
	}
	pep := &m.content.Peptide[pepIdx]
	ident.PepSeq = pep.PeptideSequence
	ident.PepID = pep.ID
	for _, mod := range pep.Modification {
		ident.ModMass += mod.MonoisotopicMassDelta
	}
	ident.Charge = item.ChargeState
	ident.Rank = item.Rank
	ident.SpecID = result.SpectrumID

	rt, err := retentionTime(result.CvPar)
	if err != nil {
		return ident, err
	}
	ident.RetentionTime = rt
	// The scores are in the CV terms of the item
	ident.Cv = append(ident.Cv, item.CvPar...)
	return ident, nil
}

// retentionTime returns the retention time in seconds, or -1 if absent.
// There are multiple CV terms that can be used to report the
// retention time. In order of decreasing preference we use:
// 1. MS:1000016 - scan start time
// 2. MS:1000894 - retention time
// 3. MS:1000826 - elution time
// 4. MS:1001114 - retention time (deprecated)
func retentionTime(cvs []CVParam) (float64, error) {
	rt := float64(-1)
	prio := math.MaxInt32
	for _, cv := range cvs {
		p := 0
		switch cv.Accession {
		case "MS:1000016":
			p = 1
		case "MS:1000894":
			p = 2
		case "MS:1000826":
			p = 3
		case "MS:1001114":
			p = 4
		}
		if p == 0 || p >= prio {
			continue
		}
		v, err := strconv.ParseFloat(cv.Value, 64)
		if err != nil {
			return -1, fmt.Errorf("mzIdentML: invalid retention time %q: %w", cv.Value, err)
		}
		// Check if the retention time is in minutes, otherwise assume it's seconds
		if cv.UnitAccession == "UO:0000031" || cv.UnitAccession == "MS:1000038" {
			v *= 60
		}
		prio = p
		rt = v
	}
	return rt, nil
}

// SpectrumScores returns the best (lowest) score per spectrum ID. For each
// identification the first of the accessions that is present is used. Without
// accessions, the common e-value style scores are tried.
func (m *MzIdentML) SpectrumScores(accessions ...string) (map[string]float64, error) {
	if len(accessions) == 0 {
		accessions = []string{CvMSGFSpecEValue, CvMSGFEValue, CvMascotExpectation,
			CvXTandemExpectation, CvPSMLevelQValue}
	}
	scores := make(map[string]float64)
	for i := range m.content.SpectrumIdentificationResult {
		result := &m.content.SpectrumIdentificationResult[i]
		for j := range result.SpectrumIdentificationItem {
			v, ok, err := firstScore(result.SpectrumIdentificationItem[j].CvPar, accessions)
			if err != nil {
				return nil, fmt.Errorf("spectrum %q: %w", result.SpectrumID, err)
			}
			if !ok {
				continue
			}
			if best, seen := scores[result.SpectrumID]; !seen || v < best {
				scores[result.SpectrumID] = v
			}
		}
	}
	return scores, nil
}

func firstScore(cvs []CVParam, accessions []string) (float64, bool, error) {
	for _, acc := range accessions {
		for _, cv := range cvs {
			if cv.Accession != acc {
				continue
			}
			v, err := strconv.ParseFloat(cv.Value, 64)
			if err != nil {
				return 0, false, fmt.Errorf("mzIdentML: invalid score %q for %s: %w", cv.Value, acc, err)
			}
			return v, true, nil
		}
	}
	return 0, false, nil
}
