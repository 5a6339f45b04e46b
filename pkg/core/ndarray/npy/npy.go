// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package npy reads and writes ndarray.Array values in NumPy's .npy file format (version 1.0).
//
// It is the format of the dataset cache snapshots, so they can also be opened with `numpy.load`.
package npy

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/isic2018/pkg/core/ndarray"
	"github.com/gomlx/isic2018/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// Magic string that starts every .npy file.
const Magic = "\x93NUMPY"

// Extension used by .npy files.
const Extension = ".npy"

// Load reads a .npy file.
//
// The header is checked against the file size before any memory is allocated for the data, so a
// corrupt or truncated file returns an error.
func Load(filePath string) (*ndarray.Array, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npy file %q", filePath)
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat .npy file %q", filePath)
	}
	r := bufio.NewReader(f)
	h, err := readHeader(r)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading array from %q", filePath)
	}
	available := info.Size() - h.length
	if available < 0 || int64(h.size) > available/int64(h.dtype.Size()) {
		return nil, errors.Errorf("loading array from %q: file has %d bytes of data, but shape %v of %s requires %d elements",
			filePath, max(available, 0), h.dimensions, h.dtype, h.size)
	}
	a, err := readData(r, h)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading array from %q", filePath)
	}
	return a, nil
}

// Save writes the array to filePath in .npy format.
//
// The contents are first written to a temporary file in the same directory, and then renamed,
// so filePath either doesn't exist or holds a complete array.
func Save(a *ndarray.Array, filePath string) error {
	err := fsutil.WriteFileAtomic(filePath, func(w io.Writer) error {
		return Write(a, w)
	})
	if err != nil {
		return errors.WithMessagef(err, "saving array %s to %q", a, filepath.Base(filePath))
	}
	return nil
}

// header of a .npy file.
type header struct {
	dtype        dtypes.DType
	byteOrder    binary.ByteOrder
	dimensions   []int
	size         int // Number of elements.
	fortranOrder bool
	length       int64 // Bytes up to the start of the data, including magic, version and header length.
}

// Read an array in .npy format from r.
func Read(r io.Reader) (*ndarray.Array, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	return readData(r, h)
}

func readHeader(r io.Reader) (*header, error) {
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, errors.Wrapf(err, "failed to read magic string")
	}
	if string(magic) != Magic {
		return nil, errors.Errorf("invalid .npy file format: magic string mismatch")
	}

	version := make([]byte, 2)
	if _, err := io.ReadFull(r, version); err != nil {
		return nil, errors.Wrapf(err, "failed to read version")
	}

	var headerLen uint32
	preambleLen := int64(len(Magic) + 2)
	switch {
	case version[0] == 1:
		var lenBytes [2]byte
		if _, err := io.ReadFull(r, lenBytes[:]); err != nil {
			return nil, errors.Wrapf(err, "failed to read header length (v1.0)")
		}
		headerLen = uint32(binary.LittleEndian.Uint16(lenBytes[:]))
		preambleLen += 2
	case version[0] >= 2:
		var lenBytes [4]byte
		if _, err := io.ReadFull(r, lenBytes[:]); err != nil {
			return nil, errors.Wrapf(err, "failed to read header length (v2.0+)")
		}
		headerLen = binary.LittleEndian.Uint32(lenBytes[:])
		if headerLen > 0xFFFF {
			return nil, errors.Errorf("header length %d exceeds uint16 max", headerLen)
		}
		preambleLen += 4
	default:
		return nil, errors.Errorf("unsupported .npy version: %d.%d", version[0], version[1])
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, errors.Wrapf(err, "failed to read header")
	}
	descr, dimensions, fortranOrder, err := parseHeader(string(headerBytes))
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to parse .npy header")
	}
	h := &header{
		dimensions:   dimensions,
		fortranOrder: fortranOrder,
		length:       preambleLen + int64(headerLen),
	}
	if h.dtype, h.byteOrder, err = fromNpyDescr(descr); err != nil {
		return nil, err
	}
	if h.size, err = ndarray.NumElements(dimensions); err != nil {
		return nil, errors.WithMessagef(err, "invalid shape in .npy header")
	}
	if h.size > math.MaxInt/h.dtype.Size() {
		return nil, errors.Errorf("shape %v of %s in .npy header is too large", dimensions, h.dtype)
	}
	return h, nil
}

func readData(r io.Reader, h *header) (*ndarray.Array, error) {
	a, err := ndarray.FromDType(h.dtype, h.dimensions...)
	if err != nil {
		return nil, err
	}
	flat := a.FlatAny()
	if !h.fortranOrder || len(h.dimensions) <= 1 {
		// Row-major (C-order) is what ndarray uses: read values directly.
		if flatBytes, ok := flat.([]uint8); ok {
			_, err = io.ReadFull(r, flatBytes)
		} else {
			err = binary.Read(r, h.byteOrder, flat)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s array data", a)
		}
		return a, nil
	}

	elementSize := a.ElementSize()
	fortranData := make([]byte, a.Size()*elementSize)
	if _, err = io.ReadFull(r, fortranData); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s array data (expected %d bytes)", a, len(fortranData))
	}
	cData := make([]byte, len(fortranData))
	if err = FortranToCLayout(elementSize, h.dimensions, fortranData, cData); err != nil {
		return nil, err
	}
	if err = binary.Read(bytes.NewReader(cData), h.byteOrder, flat); err != nil {
		return nil, errors.Wrapf(err, "failed to convert %s array data", a)
	}
	return a, nil
}

// FortranToCLayout copies column-major (Fortran) ordered data to row-major (C) order.
func FortranToCLayout(elementSize int, dims []int, fortranData []byte, cData []byte) error {
	if elementSize <= 0 {
		return errors.Errorf("elementSize must be positive, got %d", elementSize)
	}
	totalElements := 1
	for _, d := range dims {
		totalElements *= d
	}
	expectedBytes := totalElements * elementSize
	if len(fortranData) != expectedBytes {
		return errors.Errorf("fortranData has incorrect size: got %d bytes, want %d", len(fortranData), expectedBytes)
	}
	if len(cData) != expectedBytes {
		return errors.Errorf("cData has incorrect size: got %d bytes, want %d", len(cData), expectedBytes)
	}
	if totalElements == 0 {
		return nil
	}

	coordinates := make([]int, len(dims))
	for cIndex := 0; cIndex < totalElements; cIndex++ {
		// Coordinates from the row-major index.
		tempIndex := cIndex
		for i := len(dims) - 1; i >= 0; i-- {
			coordinates[i] = tempIndex % dims[i]
			tempIndex /= dims[i]
		}

		// Column-major index from the coordinates.
		fortranIndex := 0
		multiplier := 1
		for i := range dims {
			fortranIndex += coordinates[i] * multiplier
			multiplier *= dims[i]
		}

		srcOffset := fortranIndex * elementSize
		dstOffset := cIndex * elementSize
		copy(cData[dstOffset:dstOffset+elementSize], fortranData[srcOffset:srcOffset+elementSize])
	}
	return nil
}

var (
	reDescr   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	reFortran = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	reShape   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// parseHeader extracts descr, shape and fortran_order from the .npy header dictionary.
// Example: "{'descr': '<u1', 'fortran_order': False, 'shape': (10, 64, 64, 3), }"
func parseHeader(header string) (descr string, shape []int, fortranOrder bool, err error) {
	mDescr := reDescr.FindStringSubmatch(header)
	if len(mDescr) < 2 {
		err = errors.Errorf("could not find 'descr' in header: %q", header)
		return
	}
	descr = mDescr[1]

	mFortran := reFortran.FindStringSubmatch(header)
	if len(mFortran) < 2 {
		err = errors.Errorf("could not find 'fortran_order' in header: %q", header)
		return
	}
	fortranOrder = mFortran[1] == "True"

	mShape := reShape.FindStringSubmatch(header)
	if len(mShape) < 2 {
		err = errors.Errorf("could not find 'shape' in header: %q", header)
		return
	}
	shape = []int{}
	for _, p := range strings.Split(mShape[1], ",") {
		p = strings.TrimSpace(p)
		if p == "" { // Trailing comma, as in "(10,)", or scalar "()".
			continue
		}
		val, pErr := strconv.Atoi(p)
		if pErr != nil {
			err = errors.Wrapf(pErr, "invalid shape value %q in header", p)
			return
		}
		shape = append(shape, val)
	}
	return
}

// fromNpyDescr converts a NumPy descr string (e.g. "<u1") to a dtype and its byte order.
func fromNpyDescr(descr string) (dtypes.DType, binary.ByteOrder, error) {
	var byteOrder binary.ByteOrder = binary.LittleEndian
	kind := descr
	if len(kind) > 0 {
		switch kind[0] {
		case '>':
			byteOrder = binary.BigEndian
			kind = kind[1:]
		case '<', '|', '=':
			kind = kind[1:]
		}
	}
	switch kind {
	case "i1":
		return dtypes.Int8, byteOrder, nil
	case "u1":
		return dtypes.Uint8, byteOrder, nil
	case "i2":
		return dtypes.Int16, byteOrder, nil
	case "u2":
		return dtypes.Uint16, byteOrder, nil
	case "i4":
		return dtypes.Int32, byteOrder, nil
	case "u4":
		return dtypes.Uint32, byteOrder, nil
	case "i8":
		return dtypes.Int64, byteOrder, nil
	case "u8":
		return dtypes.Uint64, byteOrder, nil
	case "f4":
		return dtypes.Float32, byteOrder, nil
	case "f8":
		return dtypes.Float64, byteOrder, nil
	}
	return dtypes.InvalidDType, nil, errors.Errorf("unsupported NumPy dtype %q", descr)
}

// toNpyDescr converts a dtype to a little-endian NumPy descr string.
func toNpyDescr(dtype dtypes.DType) (string, error) {
	switch dtype {
	case dtypes.Int8:
		return "|i1", nil
	case dtypes.Uint8:
		return "|u1", nil
	case dtypes.Int16:
		return "<i2", nil
	case dtypes.Uint16:
		return "<u2", nil
	case dtypes.Int32:
		return "<i4", nil
	case dtypes.Uint32:
		return "<u4", nil
	case dtypes.Int64:
		return "<i8", nil
	case dtypes.Uint64:
		return "<u8", nil
	case dtypes.Float32:
		return "<f4", nil
	case dtypes.Float64:
		return "<f8", nil
	}
	return "", errors.Errorf("unsupported dtype %s for .npy", dtype)
}

// Write the array to w in .npy version 1.0 format, little-endian and C order.
func Write(a *ndarray.Array, w io.Writer) error {
	descr, err := toNpyDescr(a.DType())
	if err != nil {
		return err
	}

	// Python tuple syntax: "()" for scalars, "(N,)" for rank 1.
	dims := a.Dimensions()
	var shapeTuple string
	switch len(dims) {
	case 0:
		shapeTuple = "()"
	case 1:
		shapeTuple = fmt.Sprintf("(%d,)", dims[0])
	default:
		dimsStr := make([]string, len(dims))
		for i, dim := range dims {
			dimsStr[i] = strconv.Itoa(dim)
		}
		shapeTuple = fmt.Sprintf("(%s)", strings.Join(dimsStr, ", "))
	}

	// Preamble (magic + version + header length = 10 bytes) plus header must be a multiple of 16,
	// with the header terminated by a newline.
	var headerBuf bytes.Buffer
	headerBuf.WriteString(fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shapeTuple))
	for (10+headerBuf.Len()+1)%16 != 0 {
		headerBuf.WriteByte(' ')
	}
	headerBuf.WriteByte('\n')

	var preamble [10]byte
	copy(preamble[:], Magic)
	preamble[6], preamble[7] = 1, 0
	binary.LittleEndian.PutUint16(preamble[8:], uint16(headerBuf.Len()))
	if _, err = w.Write(preamble[:]); err != nil {
		return errors.Wrapf(err, "failed to write .npy preamble")
	}
	if _, err = w.Write(headerBuf.Bytes()); err != nil {
		return errors.Wrapf(err, "failed to write .npy header")
	}

	if flat, ok := a.FlatAny().([]uint8); ok {
		_, err = w.Write(flat)
	} else {
		err = binary.Write(w, binary.LittleEndian, a.FlatAny())
	}
	if err != nil {
		return errors.Wrapf(err, "failed to write %s array data", a)
	}
	return nil
}
