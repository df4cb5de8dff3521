package mzidentml

import (
	"encoding/xml"
	"errors"
)

// Types for parsing mzIdentML

// MzIdentML holds only the part of mzIdentML files
// in which we are interrested: the spectrum identifications and their scores
type MzIdentML struct {
	pepID2Idx map[string]int
	identList []identRef
	content   mzIdentMLContent
}

type identRef struct {
	resultIdx int // Index into SpectrumIdentificationResult
	itemIdx   int // Index into SpectrumIdentificationItem
}

// Identification is a single peptide-spectrum match
type Identification struct {
	PepSeq        string
	PepID         string
	Charge        int
	ModMass       float64
	SpecID        string
	RetentionTime float64 // seconds, -1 if the file doesn't report it
	Rank          int
	Cv            []CVParam
}

// CVParam is a controlled vocabulary term of an identification. The search
// engine scores are reported this way.
type CVParam struct {
	Accession     string `xml:"accession,attr"`
	Name          string `xml:"name,attr"`
	Value         string `xml:"value,attr"`
	UnitAccession string `xml:"unitAccession,attr"`
}

type mzIdentMLContent struct {
	XMLName                      xml.Name                       `xml:"MzIdentML"`
	Peptide                      []peptide                      `xml:"SequenceCollection>Peptide"`
	SpectrumIdentificationResult []spectrumIdentificationResult `xml:"DataCollection>AnalysisData>SpectrumIdentificationList>SpectrumIdentificationResult"`
}

type peptide struct {
	ID              string `xml:"id,attr"`
	PeptideSequence string
	Modification    []modification
}

type modification struct {
	// Note: monoisotopicMassDelta is optional according the the schema, but
	// appears to be no other way to determine mass shift
	MonoisotopicMassDelta float64 `xml:"monoisotopicMassDelta,attr"`
}

type spectrumIdentificationResult struct {
	SpectrumID                 string `xml:"spectrumID,attr"`
	SpectrumIdentificationItem []spectrumIdentificationItem
	CvPar                      []CVParam `xml:"cvParam"`
}

type spectrumIdentificationItem struct {
	ChargeState int       `xml:"chargeState,attr"`
	PeptideRef  string    `xml:"peptide_ref,attr"`
	Rank        int       `xml:"rank,attr"`
	CvPar       []CVParam `xml:"cvParam"`
}

// Score accessions, in the order used when no accessions are given to
// SpectrumScores. All of them are "lower is better".
const (
	CvMascotExpectation  = `MS:1001172`
	CvXTandemExpectation = `MS:1001330`
	CvMSGFEValue         = `MS:1002053`
	CvMSGFSpecEValue     = `MS:1002052`
	CvPSMLevelQValue     = `MS:1002054`
)

var (
	// ErrInvalidIdentIndex means the identification index is out of range
	ErrInvalidIdentIndex = errors.New("mzIdentML: invalid identification index")
	// ErrUnknownPeptide means an identification refers to a missing peptide
	ErrUnknownPeptide = errors.New("mzIdentML: unknown peptide reference")
)
