package cdf

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/samcharles93/gocdf/internal/logger"
	"github.com/samcharles93/gocdf/pkg/epochs"
)

const cdfCopyright = "Common Data Format (CDF)\n" +
	"https://cdf.gsfc.nasa.gov\n" +
	"Space Physics Data Facility\n" +
	"NASA/Goddard Space Flight Center\n" +
	"Greenbelt, Maryland 20771 USA"

// Writer states.
const (
	stateOpen = iota
	stateDirty
	stateClosed
	statePoisoned
)

// FileSpec configures a file created by Create.
type FileSpec struct {
	// Majority selects the stored record order. Zero means row-major.
	Majority Majority
	// Encoding selects the data encoding. Zero or HostEncoding resolve
	// to the platform's native encoding.
	Encoding Encoding
	// Checksum appends an md5 trailer at close.
	Checksum bool
	// Compress, when 1..9, rewrites the whole payload as a single
	// gzip CCR at close when that makes the file smaller.
	Compress int
	// RDimSizes declares the file-wide rVariable dimensions.
	RDimSizes []int
	// Logger receives writer warnings. Nil discards them.
	Logger logger.Logger
}

// VarSpec describes a variable passed to WriteVar.
type VarSpec struct {
	Name      string
	DataType  DataType
	NumElems  int
	DimSizes  []int
	DimVarys  []bool
	RecVary   bool
	RVariable bool
	Sparse    SparseMode
	// Compress is the gzip level for variable data, 0 for none.
	Compress       int
	BlockingFactor int
	Pad            any
}

// Writer builds a version 3 CDF file. Records are appended as write
// calls arrive and chain offsets are patched in place; Close finalizes
// the GDR, applies file-level compression, and appends the checksum.
type Writer struct {
	mu    sync.Mutex
	f     *os.File
	path  string
	log   logger.Logger
	state int

	majority Majority
	encoding Encoding
	order    binary.ByteOrder
	checksum bool
	compress int
	rDims    []int

	gdrOffset int64
	eof       int64

	attrs    map[string]*attrSlot
	attrList []string
	vars     map[string]*varSlot
	numZ     int32
	numR     int32
	lastZVDR int64
	lastRVDR int64
	rMaxRec  int32
}

type attrSlot struct {
	offset int64
	num    int32
	scope  int32
	ngr    int32
	nz     int32
	maxGr  int32
	maxZ   int32
	lastGr int64
	lastZ  int64
}

type varSlot struct {
	offset   int64
	num      int32
	z        bool
	dataType DataType
	numElems int32
}

// Create truncates path and starts a new CDF file with the CDR and GDR
// skeletons in place.
func Create(path string, spec FileSpec) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		f:        f,
		path:     path,
		log:      spec.Logger,
		majority: spec.Majority,
		encoding: spec.Encoding.Resolve(),
		checksum: spec.Checksum,
		compress: spec.Compress,
		rDims:    append([]int(nil), spec.RDimSizes...),
		attrs:    make(map[string]*attrSlot),
		vars:     make(map[string]*varSlot),
		rMaxRec:  -1,
	}
	if w.majority == 0 {
		w.majority = RowMajor
	}
	if w.encoding == 0 {
		w.encoding = HostEncoding.Resolve()
	}
	if w.order, err = w.encoding.ByteOrder(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if w.compress < 0 || w.compress > 9 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: file compression level %d", ErrBadSpec, w.compress)
	}

	if err := w.writeSkeleton(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeSkeleton() error {
	if err := writeFull(w.f, magicV3); err != nil {
		return err
	}
	if err := writeFull(w.f, magicUncompressed); err != nil {
		return err
	}
	w.eof = 8

	flags := int32(cdrFlagSingleFile)
	if w.majority == RowMajor {
		flags |= cdrFlagRowMajor
	}
	if w.checksum {
		flags |= cdrFlagChecksum | cdrFlagChecksumMD5
	}

	cdr := newRecordBuf(recCDR).
		i64(0). // GDRoffset, patched below
		i32(3).
		i32(7).
		i32(int32(w.encoding)).
		i32(flags).
		i32(0).
		i32(0).
		i32(0). // increment
		i32(2).
		i32(-1).
		name(cdfCopyright).
		finish()
	cdrOffset, err := w.appendRecord(cdr)
	if err != nil {
		return err
	}

	gdr := newRecordBuf(recGDR).
		i64(0).  // rVDRhead
		i64(0).  // zVDRhead
		i64(0).  // ADRhead
		i64(0).  // eof, patched at close
		i32(0).  // NrVars
		i32(0).  // NumAttr
		i32(-1). // rMaxRec
		i32(int32(len(w.rDims))).
		i32(0). // NzVars
		i64(0). // UIRhead
		i32(0). // rfuC
		i32(leapTableCDF).
		i32(-1) // rfuE
	for _, d := range w.rDims {
		gdr.i32(int32(d))
	}
	if w.gdrOffset, err = w.appendRecord(gdr.finish()); err != nil {
		return err
	}
	return w.patchI64(cdrOffset+12, w.gdrOffset)
}

func writeFull(f *os.File, p []byte) error {
	for len(p) > 0 {
		n, err := f.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// appendRecord writes a finished record at the current end of file and
// returns its offset.
func (w *Writer) appendRecord(b []byte) (int64, error) {
	off := w.eof
	if _, err := w.f.WriteAt(b, off); err != nil {
		return 0, err
	}
	w.eof += int64(len(b))
	return off, nil
}

func (w *Writer) patchI64(off, v int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	_, err := w.f.WriteAt(b[:], off)
	return err
}

func (w *Writer) patchI32(off int64, v int32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	_, err := w.f.WriteAt(b[:], off)
	return err
}

func (w *Writer) writable() error {
	switch w.state {
	case stateClosed:
		return ErrClosed
	case statePoisoned:
		return fmt.Errorf("%w: writer poisoned by earlier error", ErrClosed)
	default:
		return nil
	}
}

// poison records a failed mutation; only Close is legal afterwards.
func (w *Writer) poison(err error) error {
	w.state = statePoisoned
	if w.log != nil {
		w.log.Error("cdf writer poisoned", "path", w.path, "error", err)
	}
	return err
}

// WriteGlobalAttrs creates one global attribute per map key, with the
// inner maps giving entry values keyed by entry number.
func (w *Writer) WriteGlobalAttrs(attrs map[string]map[int]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writable(); err != nil {
		return err
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		slot, err := w.ensureAttr(name, 1)
		if err != nil {
			return w.poison(err)
		}
		nums := make([]int, 0, len(attrs[name]))
		for num := range attrs[name] {
			nums = append(nums, num)
		}
		sort.Ints(nums)
		for _, num := range nums {
			if err := w.writeEntry(slot, int32(num), false, attrs[name][num]); err != nil {
				return w.poison(fmt.Errorf("attribute %q entry %d: %w", name, num, err))
			}
		}
	}
	w.state = stateDirty
	return nil
}

// WriteVariableAttrs attaches variable-scope attribute entries. The
// inner maps are keyed by variable name; every named variable must
// already exist.
func (w *Writer) WriteVariableAttrs(attrs map[string]map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writable(); err != nil {
		return err
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		slot, err := w.ensureAttr(name, 2)
		if err != nil {
			return w.poison(err)
		}
		varNames := make([]string, 0, len(attrs[name]))
		for vn := range attrs[name] {
			varNames = append(varNames, vn)
		}
		sort.Strings(varNames)
		for _, vn := range varNames {
			vs, ok := w.vars[vn]
			if !ok {
				return w.poison(fmt.Errorf("%w: variable %q for attribute %q", ErrNotFound, vn, name))
			}
			if err := w.writeEntry(slot, vs.num, vs.z, attrs[name][vn]); err != nil {
				return w.poison(fmt.Errorf("attribute %q of %q: %w", name, vn, err))
			}
		}
	}
	w.state = stateDirty
	return nil
}

// ensureAttr finds or creates the ADR for name. Reuse with a different
// scope is an error.
func (w *Writer) ensureAttr(name string, scope int32) (*attrSlot, error) {
	if slot, ok := w.attrs[name]; ok {
		if slot.scope != scope {
			return nil, fmt.Errorf("%w: attribute %q has scope %d", ErrExists, name, slot.scope)
		}
		return slot, nil
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty attribute name", ErrBadSpec)
	}

	num := int32(len(w.attrs))
	adr := newRecordBuf(recADR).
		i64(0). // ADRnext
		i64(0). // AgrEDRhead
		i32(scope).
		i32(num).
		i32(0).  // NgrEntries
		i32(-1). // MAXgrEntry
		i32(0).  // rfuA
		i64(0).  // AzEDRhead
		i32(0).  // NzEntries
		i32(-1). // MAXzEntry
		i32(-1). // rfuE
		name(name).
		finish()
	off, err := w.appendRecord(adr)
	if err != nil {
		return nil, err
	}

	if len(w.attrList) == 0 {
		if err := w.patchI64(w.gdrOffset+28, off); err != nil {
			return nil, err
		}
	} else {
		prev := w.attrs[w.attrList[len(w.attrList)-1]]
		if err := w.patchI64(prev.offset+12, off); err != nil {
			return nil, err
		}
	}
	if err := w.patchI32(w.gdrOffset+48, num+1); err != nil {
		return nil, err
	}

	slot := &attrSlot{offset: off, num: num, scope: scope, maxGr: -1, maxZ: -1}
	w.attrs[name] = slot
	w.attrList = append(w.attrList, name)
	return slot, nil
}

// writeEntry appends one AEDR and links it into the attribute's g/r or
// z chain.
func (w *Writer) writeEntry(slot *attrSlot, entryNum int32, z bool, value any) error {
	dt, numElems, numStrings, valBytes, err := w.encodeEntryValue(value)
	if err != nil {
		return err
	}

	typ := recAgrEDR
	if z {
		typ = recAzEDR
	}
	aedr := newRecordBuf(typ).
		i64(0). // AEDRnext
		i32(slot.num).
		i32(int32(dt)).
		i32(entryNum).
		i32(numElems).
		i32(numStrings).
		i32(0).
		i32(0).
		i32(-1).
		i32(-1).
		raw(valBytes).
		finish()
	off, err := w.appendRecord(aedr)
	if err != nil {
		return err
	}

	if z {
		if slot.lastZ == 0 {
			if err := w.patchI64(slot.offset+48, off); err != nil {
				return err
			}
		} else if err := w.patchI64(slot.lastZ+12, off); err != nil {
			return err
		}
		slot.lastZ = off
		slot.nz++
		if entryNum > slot.maxZ {
			slot.maxZ = entryNum
		}
		if err := w.patchI32(slot.offset+56, slot.nz); err != nil {
			return err
		}
		return w.patchI32(slot.offset+60, slot.maxZ)
	}

	if slot.lastGr == 0 {
		if err := w.patchI64(slot.offset+20, off); err != nil {
			return err
		}
	} else if err := w.patchI64(slot.lastGr+12, off); err != nil {
		return err
	}
	slot.lastGr = off
	slot.ngr++
	if entryNum > slot.maxGr {
		slot.maxGr = entryNum
	}
	if err := w.patchI32(slot.offset+36, slot.ngr); err != nil {
		return err
	}
	return w.patchI32(slot.offset+40, slot.maxGr)
}

// encodeEntryValue infers the CDF data type of an attribute entry value
// and renders its bytes. An explicit Entry pins the type.
func (w *Writer) encodeEntryValue(value any) (dt DataType, numElems, numStrings int32, b []byte, err error) {
	if e, ok := value.(Entry); ok {
		if e.DataType.IsString() {
			s, serr := entryString(e.Value)
			if serr != nil {
				return 0, 0, 0, nil, serr
			}
			return e.DataType, int32(len(s.joined)), int32(s.count), []byte(s.joined), nil
		}
		b, n, berr := encodeValues(e.Value, e.DataType, 1, w.order)
		if berr != nil {
			return 0, 0, 0, nil, berr
		}
		return e.DataType, int32(n), 1, b, nil
	}

	switch v := value.(type) {
	case string, []string:
		s, serr := entryString(v)
		if serr != nil {
			return 0, 0, 0, nil, serr
		}
		return CHAR, int32(len(s.joined)), int32(s.count), []byte(s.joined), nil
	case int:
		return w.numericEntry(INT4, int32(v))
	case []int:
		conv := make([]int32, len(v))
		for i := range v {
			conv[i] = int32(v[i])
		}
		return w.numericEntry(INT4, conv)
	case int8, []int8:
		return w.numericEntry(INT1, v)
	case int16, []int16:
		return w.numericEntry(INT2, v)
	case int32, []int32:
		return w.numericEntry(INT4, v)
	case int64, []int64:
		return w.numericEntry(INT8, v)
	case uint8, []uint8:
		return w.numericEntry(UINT1, v)
	case uint16, []uint16:
		return w.numericEntry(UINT2, v)
	case uint32, []uint32:
		return w.numericEntry(UINT4, v)
	case float32, []float32:
		return w.numericEntry(REAL4, v)
	case float64, []float64:
		return w.numericEntry(REAL8, v)
	case epochs.Epoch, []epochs.Epoch:
		return w.numericEntry(EPOCH, v)
	case epochs.Epoch16, []epochs.Epoch16:
		return w.numericEntry(EPOCH16, v)
	case epochs.TT2000, []epochs.TT2000:
		return w.numericEntry(TT2000, v)
	default:
		return 0, 0, 0, nil, fmt.Errorf("%w: attribute value of type %T", ErrBadSpec, value)
	}
}

func (w *Writer) numericEntry(dt DataType, v any) (DataType, int32, int32, []byte, error) {
	b, n, err := encodeValues(v, dt, 1, w.order)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	return dt, int32(n), 1, b, nil
}

type entryStr struct {
	joined string
	count  int
}

func entryString(v any) (entryStr, error) {
	switch s := v.(type) {
	case string:
		if s == "" {
			s = " "
		}
		return entryStr{joined: s, count: 1}, nil
	case []string:
		if len(s) == 0 {
			return entryStr{}, fmt.Errorf("%w: empty string list", ErrBadSpec)
		}
		return entryStr{joined: joinEntryStrings(s), count: len(s)}, nil
	default:
		return entryStr{}, fmt.Errorf("%w: string entry of type %T", ErrBadSpec, v)
	}
}

// WriteVar creates a variable, attaches its attributes, and writes its
// records. data holds whole records in row-major element order; it may
// be nil to create an empty variable.
func (w *Writer) WriteVar(spec VarSpec, attrs map[string]any, data any) error {
	return w.writeVar(spec, attrs, nil, data)
}

// WriteVarSparse creates a sparse variable whose physical records sit
// at the given record numbers. records and the record count of data
// must match.
func (w *Writer) WriteVarSparse(spec VarSpec, attrs map[string]any, records []int, data any) error {
	if spec.Sparse == NoSparse {
		return fmt.Errorf("%w: sparse write needs a sparse mode", ErrBadSpec)
	}
	return w.writeVar(spec, attrs, records, data)
}

func (w *Writer) writeVar(spec VarSpec, attrs map[string]any, sparseRecs []int, data any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writable(); err != nil {
		return err
	}
	if err := w.writeVarLocked(spec, attrs, sparseRecs, data); err != nil {
		return w.poison(err)
	}
	w.state = stateDirty
	return nil
}

func (w *Writer) writeVarLocked(spec VarSpec, attrs map[string]any, sparseRecs []int, data any) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: empty variable name", ErrBadSpec)
	}
	if _, ok := w.vars[spec.Name]; ok {
		return fmt.Errorf("%w: variable %q", ErrExists, spec.Name)
	}
	if !spec.DataType.Valid() {
		return fmt.Errorf("%w: data type %d", ErrBadSpec, spec.DataType)
	}
	if spec.Compress < 0 || spec.Compress > 9 {
		return fmt.Errorf("%w: compression level %d", ErrBadSpec, spec.Compress)
	}

	dims := spec.DimSizes
	if spec.RVariable {
		dims = w.rDims
	}
	varys := spec.DimVarys
	if varys == nil {
		varys = make([]bool, len(dims))
		for i := range varys {
			varys[i] = true
		}
	}
	if len(varys) != len(dims) {
		return fmt.Errorf("%w: %d dimension variances for %d dimensions", ErrBadSpec, len(varys), len(dims))
	}

	numElems := spec.NumElems
	if numElems < 1 {
		numElems = 1
	}
	if spec.DataType.IsString() && spec.NumElems < 1 {
		numElems = inferStringElems(data)
	}

	valuesPerRec := 1
	for i, d := range dims {
		if d < 1 {
			return fmt.Errorf("%w: dimension size %d", ErrBadSpec, d)
		}
		if varys[i] {
			valuesPerRec *= d
		}
	}
	valueSize := spec.DataType.Size()
	if spec.DataType.IsString() {
		valueSize *= numElems
	}
	recBytes := valueSize * valuesPerRec

	var raw []byte
	numRecords := 0
	if data != nil {
		var count int
		var err error
		raw, count, err = encodeValues(data, spec.DataType, numElems, w.order)
		if err != nil {
			return err
		}
		if count%valuesPerRec != 0 {
			return fmt.Errorf("%w: %d values do not divide into records of %d", ErrBadSpec, count, valuesPerRec)
		}
		numRecords = count / valuesPerRec
	}
	if sparseRecs != nil && numRecords != len(sparseRecs) {
		return fmt.Errorf("%w: %d records for %d sparse record numbers", ErrBadSpec, numRecords, len(sparseRecs))
	}
	if w.majority == ColumnMajor && !spec.DataType.IsString() {
		rowShape := varyShape(dims, varys)
		if len(rowShape) > 1 {
			transposeToColumn(raw, numRecords, rowShape, spec.DataType.Size())
		}
	}

	var padBytes []byte
	if spec.Pad != nil {
		b, n, err := encodeValues(spec.Pad, spec.DataType, numElems, w.order)
		if err != nil {
			return fmt.Errorf("pad value: %w", err)
		}
		if n != 1 {
			return fmt.Errorf("%w: pad value must be a single value", ErrBadSpec)
		}
		padBytes = b
	}

	flags := int32(0)
	if spec.RecVary {
		flags |= vdrFlagRecVary
	}
	if padBytes != nil {
		flags |= vdrFlagPadPresent
	}
	if spec.Compress > 0 {
		flags |= vdrFlagCompressed
	}

	maxRec := int32(numRecords - 1)
	if sparseRecs != nil && numRecords > 0 {
		maxRec = int32(sparseRecs[numRecords-1])
	}
	if !spec.RecVary && numRecords > 0 {
		maxRec = 0
	}

	z := !spec.RVariable
	num := w.numZ
	if !z {
		num = w.numR
	}

	typ := recZVDR
	if !z {
		typ = recRVDR
	}
	vdr := newRecordBuf(typ).
		i64(0). // VDRnext
		i32(int32(spec.DataType)).
		i32(maxRec).
		i64(0). // VXRhead, patched below
		i64(0). // VXRtail
		i32(flags).
		i32(int32(spec.Sparse)).
		i32(0).
		i32(-1).
		i32(-1).
		i32(int32(numElems)).
		i32(num).
		i64(-1). // CPRorSPRoffset, patched when compressed
		i32(int32(spec.BlockingFactor)).
		name(spec.Name)
	if z {
		vdr.i32(int32(len(dims)))
		for _, d := range dims {
			vdr.i32(int32(d))
		}
	}
	for _, vary := range varys {
		if vary {
			vdr.i32(-1)
		} else {
			vdr.i32(0)
		}
	}
	if padBytes != nil {
		vdr.raw(padBytes)
	}
	vdrOffset, err := w.appendRecord(vdr.finish())
	if err != nil {
		return err
	}

	if err := w.linkVDR(vdrOffset, z, maxRec); err != nil {
		return err
	}
	slot := &varSlot{offset: vdrOffset, num: num, z: z,
		dataType: spec.DataType, numElems: int32(numElems)}
	w.vars[spec.Name] = slot

	if spec.Compress > 0 {
		cpr := newRecordBuf(recCPR).
			i32(gzipCompression).
			i32(0).
			i32(1).
			i32(int32(spec.Compress)).
			finish()
		cprOffset, err := w.appendRecord(cpr)
		if err != nil {
			return err
		}
		if err := w.patchI64(vdrOffset+72, cprOffset); err != nil {
			return err
		}
	}

	if numRecords > 0 {
		var err error
		if sparseRecs != nil {
			err = w.writeVarDataSparse(vdrOffset, raw, recBytes, sparseRecs, spec.Compress)
		} else {
			err = w.writeVarData(vdrOffset, raw, recBytes, numRecords, spec.Compress, spec.BlockingFactor)
		}
		if err != nil {
			return err
		}
	}

	if attrs != nil {
		names := make([]string, 0, len(attrs))
		for name := range attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			aslot, err := w.ensureAttr(name, 2)
			if err != nil {
				return err
			}
			if err := w.writeEntry(aslot, num, z, attrs[name]); err != nil {
				return fmt.Errorf("attribute %q of %q: %w", name, spec.Name, err)
			}
		}
	}
	return nil
}

func inferStringElems(data any) int {
	n := 1
	switch v := data.(type) {
	case string:
		if len(v) > n {
			n = len(v)
		}
	case []string:
		for _, s := range v {
			if len(s) > n {
				n = len(s)
			}
		}
	}
	return n
}

func varyShape(dims []int, varys []bool) []int {
	var out []int
	for i, d := range dims {
		if varys[i] {
			out = append(out, d)
		}
	}
	return out
}

// transposeToColumn rewrites each record from row-major input order to
// the column-major element order stored on disk.
func transposeToColumn(buf []byte, n int, dims []int, valueSize int) {
	total := 1
	for _, d := range dims {
		total *= d
	}
	recBytes := total * valueSize
	tmp := make([]byte, recBytes)
	idx := make([]int, len(dims))
	for rec := 0; rec < n; rec++ {
		src := buf[rec*recBytes : (rec+1)*recBytes]
		for flat := 0; flat < total; flat++ {
			rem := flat
			for j := len(dims) - 1; j >= 0; j-- {
				idx[j] = rem % dims[j]
				rem /= dims[j]
			}
			colOff, stride := 0, 1
			for j := 0; j < len(dims); j++ {
				colOff += idx[j] * stride
				stride *= dims[j]
			}
			copy(tmp[colOff*valueSize:(colOff+1)*valueSize], src[flat*valueSize:(flat+1)*valueSize])
		}
		copy(src, tmp)
	}
}

func (w *Writer) linkVDR(off int64, z bool, maxRec int32) error {
	if z {
		if w.numZ == 0 {
			if err := w.patchI64(w.gdrOffset+20, off); err != nil {
				return err
			}
		} else if err := w.patchI64(w.lastZVDR+12, off); err != nil {
			return err
		}
		w.lastZVDR = off
		w.numZ++
		return w.patchI32(w.gdrOffset+60, w.numZ)
	}
	if w.numR == 0 {
		if err := w.patchI64(w.gdrOffset+12, off); err != nil {
			return err
		}
	} else if err := w.patchI64(w.lastRVDR+12, off); err != nil {
		return err
	}
	w.lastRVDR = off
	w.numR++
	if err := w.patchI32(w.gdrOffset+44, w.numR); err != nil {
		return err
	}
	if maxRec > w.rMaxRec {
		w.rMaxRec = maxRec
		return w.patchI32(w.gdrOffset+52, w.rMaxRec)
	}
	return nil
}

// writeVarData emits the records of a non-sparse variable. Uncompressed
// data goes out as one VVR; compressed data is blocked, each block kept
// as a CVVR only when the deflated form is smaller.
func (w *Writer) writeVarData(vdrOffset int64, raw []byte, recBytes, numRecords, level, blocking int) error {
	if level == 0 {
		off, err := w.appendRecord(newRecordBuf(recVVR).raw(raw).finish())
		if err != nil {
			return err
		}
		return w.writeVXRChain(vdrOffset, []vxrEntry{{0, int32(numRecords - 1), off}})
	}

	if blocking < 1 {
		blocking = (65536 + recBytes - 1) / recBytes
		if err := w.patchI32(vdrOffset+80, int32(blocking)); err != nil {
			return err
		}
	}
	if blocking > numRecords {
		blocking = numRecords
	}

	var entries []vxrEntry
	for first := 0; first < numRecords; first += blocking {
		last := min(first+blocking, numRecords) - 1
		block := raw[first*recBytes : (last+1)*recBytes]
		deflated, err := gzipDeflate(block, level)
		if err != nil {
			return err
		}
		var rec []byte
		if len(deflated) < len(block) {
			rec = newRecordBuf(recCVVR).
				i32(0).
				i64(int64(len(deflated))).
				raw(deflated).
				finish()
		} else {
			rec = newRecordBuf(recVVR).raw(block).finish()
		}
		off, err := w.appendRecord(rec)
		if err != nil {
			return err
		}
		entries = append(entries, vxrEntry{int32(first), int32(last), off})
	}
	return w.writeVXRChain(vdrOffset, entries)
}

// writeVarDataSparse emits one VVR per run of consecutive record
// numbers.
func (w *Writer) writeVarDataSparse(vdrOffset int64, raw []byte, recBytes int, records []int, level int) error {
	for i := 1; i < len(records); i++ {
		if records[i] <= records[i-1] {
			return fmt.Errorf("%w: sparse record numbers must be strictly increasing", ErrBadSpec)
		}
	}

	var entries []vxrEntry
	for i := 0; i < len(records); {
		j := i
		for j+1 < len(records) && records[j+1] == records[j]+1 {
			j++
		}
		block := raw[i*recBytes : (j+1)*recBytes]
		var rec []byte
		if level > 0 {
			deflated, err := gzipDeflate(block, level)
			if err != nil {
				return err
			}
			if len(deflated) < len(block) {
				rec = newRecordBuf(recCVVR).
					i32(0).
					i64(int64(len(deflated))).
					raw(deflated).
					finish()
			}
		}
		if rec == nil {
			rec = newRecordBuf(recVVR).raw(block).finish()
		}
		off, err := w.appendRecord(rec)
		if err != nil {
			return err
		}
		entries = append(entries, vxrEntry{int32(records[i]), int32(records[j]), off})
		i = j + 1
	}
	return w.writeVXRChain(vdrOffset, entries)
}

type vxrEntry struct {
	first int32
	last  int32
	off   int64
}

// writeVXRChain writes leaf VXRs of up to vxrLeafEntries entries each,
// builds level VXRs over them when more than vxrLevelEntries leaves
// accumulate, and patches the VDR head and tail.
func (w *Writer) writeVXRChain(vdrOffset int64, entries []vxrEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var leaves []vxrEntry
	for i := 0; i < len(entries); i += vxrLeafEntries {
		group := entries[i:min(i+vxrLeafEntries, len(entries))]
		off, err := w.writeVXR(group, vxrLeafEntries)
		if err != nil {
			return err
		}
		leaves = append(leaves, vxrEntry{group[0].first, group[len(group)-1].last, off})
	}

	for len(leaves) > vxrLevelEntries {
		var parents []vxrEntry
		for i := 0; i < len(leaves); i += vxrLevelEntries {
			group := leaves[i:min(i+vxrLevelEntries, len(leaves))]
			off, err := w.writeVXR(group, vxrLevelEntries)
			if err != nil {
				return err
			}
			parents = append(parents, vxrEntry{group[0].first, group[len(group)-1].last, off})
		}
		leaves = parents
	}

	for i := 0; i+1 < len(leaves); i++ {
		if err := w.patchI64(leaves[i].off+12, leaves[i+1].off); err != nil {
			return err
		}
	}
	if err := w.patchI64(vdrOffset+28, leaves[0].off); err != nil {
		return err
	}
	return w.patchI64(vdrOffset+36, leaves[len(leaves)-1].off)
}

func (w *Writer) writeVXR(group []vxrEntry, fanout int) (int64, error) {
	vxr := newRecordBuf(recVXR).
		i64(0). // VXRnext
		i32(int32(fanout)).
		i32(int32(len(group)))
	for i := 0; i < fanout; i++ {
		if i < len(group) {
			vxr.i32(group[i].first)
		} else {
			vxr.i32(-1)
		}
	}
	for i := 0; i < fanout; i++ {
		if i < len(group) {
			vxr.i32(group[i].last)
		} else {
			vxr.i32(-1)
		}
	}
	for i := 0; i < fanout; i++ {
		if i < len(group) {
			vxr.i64(group[i].off)
		} else {
			vxr.i64(-1)
		}
	}
	return w.appendRecord(vxr.finish())
}

// Close finalizes the GDR, applies file-level compression, appends the
// md5 trailer, and closes the file. It is idempotent. A poisoned
// writer closes without flushing a valid file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == stateClosed {
		return nil
	}
	if w.state == statePoisoned {
		w.state = stateClosed
		err := w.f.Close()
		_ = os.Remove(w.path)
		return err
	}
	w.state = stateClosed

	if err := w.patchI64(w.gdrOffset+36, w.eof); err != nil {
		_ = w.f.Close()
		return err
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return err
	}

	if w.compress > 0 {
		if err := w.compressFile(); err != nil {
			_ = w.f.Close()
			return err
		}
	}
	if w.checksum {
		if err := w.appendChecksum(); err != nil {
			_ = w.f.Close()
			return err
		}
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// compressFile rewrites the file as magic + CCR + CPR. The rewrite goes
// through a temp file in the same directory, then renames over the
// target.
func (w *Writer) compressFile() error {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	deflated, err := gzipDeflate(raw[8:], w.compress)
	if err != nil {
		return err
	}
	if len(deflated) >= len(raw)-8 {
		if w.log != nil {
			w.log.Debug("file-level compression skipped, no size win", "path", w.path)
		}
		return nil
	}

	ccr := newRecordBuf(recCCR).
		i64(0). // CPRoffset, patched below
		i64(int64(len(raw) - 8)).
		i32(0).
		raw(deflated).
		finish()
	cpr := newRecordBuf(recCPR).
		i32(gzipCompression).
		i32(0).
		i32(1).
		i32(int32(w.compress)).
		finish()
	cprOffset := int64(8 + len(ccr))
	binary.BigEndian.PutUint64(ccr[12:], uint64(cprOffset))

	tmp := filepath.Join(filepath.Dir(w.path), "."+uuid.NewString()+".cdf.tmp")
	tf, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	cleanup := func() {
		_ = tf.Close()
		_ = os.Remove(tmp)
	}
	for _, chunk := range [][]byte{magicV3, magicCompressed, ccr, cpr} {
		if err := writeFull(tf, chunk); err != nil {
			cleanup()
			return err
		}
	}
	if err := tf.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tf.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, w.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	// Reopen so the checksum pass appends to the compressed file.
	f, err := os.OpenFile(w.path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	_ = w.f.Close()
	w.f = f
	return nil
}

func (w *Writer) appendChecksum() error {
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	h := md5.New()
	if _, err := io.Copy(h, w.f); err != nil {
		return err
	}
	if _, err := w.f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	return writeFull(w.f, h.Sum(nil))
}
