package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ArrayFormat describes how a binaryDataArray is encoded
//
// CV Terms for binary data compression
// MS:1000574 zlib compression
// MS:1000576 No Compression
// MS:1002312 MS-Numpress linear prediction compression
// MS:1002313 MS-Numpress positive integer compression
// MS:1002314 MS-Numpress short logged float compression
// MS:1002746 MS-Numpress linear prediction compression followed by zlib compression
// MS:1002747 MS-Numpress positive integer compression followed by zlib compression
// MS:1002748 MS-Numpress short logged float compression followed by zlib compression
//
// CV Terms for binary data array types
// MS:1000514 m/z array
// MS:1000515 intensity array
//
// CV Terms for binary-data-type
// MS:1000521 32-bit float
// MS:1000523 64-bit float
type ArrayFormat struct {
	Zlib        bool
	Bits64      bool
	MzArray     bool
	IntensArray bool
	// Unsupported holds the accession of a compression we can't decode
	Unsupported string
}

// apply updates the format from a single CV term
func (f *ArrayFormat) apply(cvParam CVParam) {
	switch cvParam.Accession {
	case cvZlibCompression:
		f.Zlib = true
	case cvMzArray:
		f.MzArray = true
	case cvIntensityArray:
		f.IntensArray = true
	case cv64BitFloat:
		f.Bits64 = true
	case cv32BitFloat:
		f.Bits64 = false
	case `MS:1002312`, `MS:1002313`, `MS:1002314`,
		`MS:1002746`, `MS:1002747`, `MS:1002748`:
		// MS-Numpress compression types
		f.Unsupported = cvParam.Accession
	}
}

// DecodeBinary decodes a base64 encoded binary array into float64 values
func DecodeBinary(encoded []byte, format ArrayFormat) ([]float64, error) {
	if format.Unsupported != "" {
		return nil, fmt.Errorf("%w (CV term %s)", ErrUnsupportedCompression, format.Unsupported)
	}
	encoded = bytes.TrimSpace(encoded)
	data := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(data, encoded)
	if err != nil {
		return nil, err
	}
	data = data[:n]
	if format.Zlib {
		z, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer z.Close()
		d, err := io.ReadAll(z)
		if err != nil {
			return nil, err
		}
		data = d
	}
	var values []float64
	if format.Bits64 {
		cnt := len(data) / 8
		values = make([]float64, cnt)
		for i := 0; i < cnt; i++ {
			bits := binary.LittleEndian.Uint64(data[i*8:])
			values[i] = math.Float64frombits(bits)
		}
	} else {
		cnt := len(data) / 4
		values = make([]float64, cnt)
		for i := 0; i < cnt; i++ {
			bits := binary.LittleEndian.Uint32(data[i*4:])
			values[i] = float64(math.Float32frombits(bits))
		}
	}
	return values, nil
}

// fillPeaks copies decoded values into the m/z or intensity field of the peaks.
// The peak slice grows when the array is longer than defaultArrayLength said.
func fillPeaks(p []Peak, values []float64, format ArrayFormat) ([]Peak, error) {
	// We are only interrested in mz and intensity
	if !format.MzArray && !format.IntensArray {
		return p, nil
	}
	if len(p) != 0 && len(p) != len(values) {
		return p, fmt.Errorf("%w: %d values, expected %d", ErrArrayLength, len(values), len(p))
	}
	if len(p) == 0 {
		p = make([]Peak, len(values))
	}
	if format.MzArray {
		for i, v := range values {
			p[i].Mz = v
		}
	} else {
		for i, v := range values {
			p[i].Intens = v
		}
	}
	return p, nil
}

// EncodeBinary encodes the m/z values (mzArray true) or intensities of
// the peaks as a base64 string
func EncodeBinary(p []Peak, zlibCompression bool, bits64 bool, mzArray bool) (
	string, error) {

	var data []byte
	var rawUncompressed []byte

	// Some code duplication below in order to optimize loops
	if bits64 {
		// Allocate room for uncompressed binary data
		rawUncompressed = make([]byte, len(p)*8)
		if mzArray {
			for i, peak := range p {
				u64bits := math.Float64bits(peak.Mz)
				binary.LittleEndian.PutUint64(rawUncompressed[(8*i):], u64bits)
			}
		} else {
			for i, peak := range p {
				u64bits := math.Float64bits(peak.Intens)
				binary.LittleEndian.PutUint64(rawUncompressed[(8*i):], u64bits)
			}
		}
	} else {
		rawUncompressed = make([]byte, len(p)*4)
		if mzArray {
			for i, peak := range p {
				u32bits := math.Float32bits(float32(peak.Mz))
				binary.LittleEndian.PutUint32(rawUncompressed[(4*i):], u32bits)
			}
		} else {
			for i, peak := range p {
				u32bits := math.Float32bits(float32(peak.Intens))
				binary.LittleEndian.PutUint32(rawUncompressed[(4*i):], u32bits)
			}
		}
	}
	if zlibCompression {
		var b bytes.Buffer
		z := zlib.NewWriter(&b)
		if _, err := z.Write(rawUncompressed); err != nil {
			return "", err
		}
		// zlib writer must explicitly be closed here, otherwise result is invalid
		if err := z.Close(); err != nil {
			return "", err
		}
		data = b.Bytes()
	} else {
		data = rawUncompressed
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
