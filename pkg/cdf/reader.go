package cdf

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/samcharles93/gocdf/internal/logger"
)

var (
	magicV3           = []byte{0xcd, 0xf3, 0x00, 0x01}
	magicV2           = []byte{0xcd, 0xf2, 0x60, 0x02}
	magicUncompressed = []byte{0x00, 0x00, 0xff, 0xff}
	magicCompressed   = []byte{0xcc, 0xcc, 0x00, 0x01}
)

// Reader provides read access to a version 3 CDF file. The record
// tables are built once at open time and are immutable afterwards, so
// a Reader is safe for concurrent reads.
type Reader struct {
	path    string
	data    []byte
	mmapped bool
	log     logger.Logger

	cdr      cdrRecord
	gdr      gdrRecord
	order    binary.ByteOrder
	majority Majority

	compressed  bool
	checksummed bool
	checksumErr error

	zVars     []vdrRecord
	rVars     []vdrRecord
	attrs     []attribute
	varIndex  map[string]varRef
	attrIndex map[string]int
}

type varRef struct {
	z   bool
	idx int
}

// attribute couples an ADR with its decoded entry chains. gEntries
// holds g-entries for global attributes and r-entries for variable
// attributes; zEntries holds z-entries.
type attribute struct {
	adr      adrRecord
	gEntries map[int]aedrRecord
	zEntries map[int]aedrRecord
}

// OpenOption configures Open.
type OpenOption func(*Reader)

// WithLogger routes open-time and read-time warnings to l.
func WithLogger(l logger.Logger) OpenOption {
	return func(r *Reader) { r.log = l }
}

// Open maps path read-only, validates its magic and checksum, and
// builds the record tables. File-level compressed files are inflated
// into a scratch image first. The returned Reader must be closed.
func Open(path string, opts ...OpenOption) (*Reader, error) {
	r := &Reader{path: path}
	for _, opt := range opts {
		opt(r)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < 16 {
		return nil, fmt.Errorf("%w: file too small", ErrBadMagic)
	}
	if size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: file too large to map", ErrBadRecord)
	}
	size := int(size64)

	raw, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		r.data = raw
		r.mmapped = true
	} else {
		if r.data, err = readAllAt(f, size); err != nil {
			return nil, err
		}
	}

	if err := r.parseImage(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func readAllAt(rd io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := rd.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

func (r *Reader) parseImage() error {
	raw := r.data
	if !bytes.Equal(raw[:4], magicV3) {
		if bytes.Equal(raw[:4], magicV2) {
			return fmt.Errorf("%w: version 2 file", ErrUnsupportedVersion)
		}
		return ErrBadMagic
	}

	switch {
	case bytes.Equal(raw[4:8], magicUncompressed):
	case bytes.Equal(raw[4:8], magicCompressed):
		r.compressed = true
		if err := r.inflateImage(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown compression marker", ErrBadMagic)
	}

	cdr, err := parseCDR(r.data, 8)
	if err != nil {
		return err
	}
	r.cdr = cdr
	if cdr.version != 3 {
		return fmt.Errorf("%w: CDR declares version %d.%d", ErrUnsupportedVersion, cdr.version, cdr.release)
	}
	if cdr.flags&cdrFlagSingleFile == 0 {
		return ErrMultiFormat
	}
	if r.order, err = cdr.encoding.ByteOrder(); err != nil {
		return fmt.Errorf("%w: encoding code %d", ErrUnsupportedEncoding, cdr.encoding)
	}
	r.majority = ColumnMajor
	if cdr.flags&cdrFlagRowMajor != 0 {
		r.majority = RowMajor
	}

	// The md5 trailer covers the on-disk bytes, compressed or not, with
	// the final 16 bytes excluded. A mismatch leaves the metadata
	// readable and surfaces on the first data read.
	if cdr.flags&cdrFlagChecksum != 0 {
		r.checksummed = true
		if err := r.validateChecksum(); err != nil {
			r.checksumErr = err
			if r.log != nil {
				r.log.Warn("cdf checksum mismatch", "path", r.path)
			}
		}
	}

	gdr, err := parseGDR(r.data, cdr.gdrOffset)
	if err != nil {
		return err
	}
	r.gdr = gdr

	if err := r.loadVariables(); err != nil {
		return err
	}
	return r.loadAttributes()
}

// inflateImage rebuilds the logical file image from the CCR that
// follows the magic of a file-compressed CDF.
func (r *Reader) inflateImage() error {
	ccr, err := parseCCR(r.data, 8)
	if err != nil {
		return err
	}
	cpr, err := parseCPR(r.data, ccr.cprOffset)
	if err != nil {
		return err
	}
	if cpr.cType != gzipCompression {
		return fmt.Errorf("%w: file compression type %d", ErrUnsupportedCompress, cpr.cType)
	}
	payload, err := gzipInflate(ccr.payload)
	if err != nil {
		return fmt.Errorf("%w: file-level CCR: %v", ErrCompression, err)
	}
	if int64(len(payload)) != ccr.uSize {
		return fmt.Errorf("%w: CCR inflated to %d bytes, declared %d", ErrBadRecord, len(payload), ccr.uSize)
	}

	image := make([]byte, 0, 8+len(payload))
	image = append(image, magicV3...)
	image = append(image, magicUncompressed...)
	image = append(image, payload...)

	r.rawRelease()
	r.data = image
	return nil
}

// validateChecksum verifies the md5 trailer against the original file
// bytes, which for compressed files are not the bytes of r.data.
func (r *Reader) validateChecksum() error {
	raw := r.data
	if r.compressed {
		var err error
		if raw, err = os.ReadFile(r.path); err != nil {
			return err
		}
	}
	if len(raw) < 16 {
		return ErrChecksum
	}
	sum := md5.Sum(raw[:len(raw)-16])
	if !bytes.Equal(sum[:], raw[len(raw)-16:]) {
		return ErrChecksum
	}
	return nil
}

func (r *Reader) loadVariables() error {
	r.varIndex = make(map[string]varRef)

	load := func(head int64, want int32, z bool) ([]vdrRecord, error) {
		var out []vdrRecord
		for off := head; off != 0; {
			vdr, err := parseVDR(r.data, off, r.gdr.rDims)
			if err != nil {
				return nil, err
			}
			if vdr.z != z {
				return nil, fmt.Errorf("%w: VDR kind mismatch at offset %d", ErrBadRecord, off)
			}
			out = append(out, vdr)
			off = vdr.next
			if len(out) > int(want) {
				return nil, fmt.Errorf("%w: variable chain longer than GDR count %d", ErrBadRecord, want)
			}
		}
		if len(out) != int(want) {
			return nil, fmt.Errorf("%w: variable chain has %d records, GDR declares %d", ErrBadRecord, len(out), want)
		}
		return out, nil
	}

	var err error
	if r.zVars, err = load(r.gdr.zVDRHead, r.gdr.numZVars, true); err != nil {
		return err
	}
	if r.rVars, err = load(r.gdr.rVDRHead, r.gdr.numRVars, false); err != nil {
		return err
	}
	for i := range r.zVars {
		r.varIndex[r.zVars[i].name] = varRef{z: true, idx: i}
	}
	for i := range r.rVars {
		if _, ok := r.varIndex[r.rVars[i].name]; !ok {
			r.varIndex[r.rVars[i].name] = varRef{z: false, idx: i}
		}
	}
	return nil
}

func (r *Reader) loadAttributes() error {
	r.attrIndex = make(map[string]int)
	for off := r.gdr.adrHead; off != 0; {
		adr, err := parseADR(r.data, off)
		if err != nil {
			return err
		}
		att := attribute{
			adr:      adr,
			gEntries: make(map[int]aedrRecord),
			zEntries: make(map[int]aedrRecord),
		}
		if err := loadEntryChain(r.data, adr.agrEDRHead, att.gEntries); err != nil {
			return err
		}
		if err := loadEntryChain(r.data, adr.azEDRHead, att.zEntries); err != nil {
			return err
		}
		r.attrIndex[adr.name] = len(r.attrs)
		r.attrs = append(r.attrs, att)
		off = adr.next
		if len(r.attrs) > int(r.gdr.numAttrs) {
			return fmt.Errorf("%w: attribute chain longer than GDR count %d", ErrBadRecord, r.gdr.numAttrs)
		}
	}
	if len(r.attrs) != int(r.gdr.numAttrs) {
		return fmt.Errorf("%w: attribute chain has %d records, GDR declares %d", ErrBadRecord, len(r.attrs), r.gdr.numAttrs)
	}
	return nil
}

func loadEntryChain(data []byte, head int64, into map[int]aedrRecord) error {
	for off := head; off != 0; {
		aedr, err := parseAEDR(data, off)
		if err != nil {
			return err
		}
		into[int(aedr.num)] = aedr
		off = aedr.next
	}
	return nil
}

// Close releases the mapping or scratch image. It is safe to call more
// than once.
func (r *Reader) Close() error {
	if r == nil || r.data == nil {
		return nil
	}
	err := r.rawRelease()
	r.data = nil
	return err
}

func (r *Reader) rawRelease() error {
	if r.mmapped {
		r.mmapped = false
		return unix.Munmap(r.data)
	}
	return nil
}

// Info summarizes the file-level metadata.
type Info struct {
	Path       string
	Version    string
	Encoding   Encoding
	Majority   Majority
	Compressed bool
	Checksum   bool
	LeapTable  int32
	Copyright  string
	ZVariables []string
	RVariables []string
	Attributes []string
}

// Info reports the file-level metadata. It never touches variable data
// and succeeds even when the checksum is bad.
func (r *Reader) Info() Info {
	info := Info{
		Path:       r.path,
		Version:    fmt.Sprintf("%d.%d.%d", r.cdr.version, r.cdr.release, r.cdr.increment),
		Encoding:   r.cdr.encoding,
		Majority:   r.majority,
		Compressed: r.compressed,
		Checksum:   r.checksummed,
		LeapTable:  r.gdr.leapLast,
		Copyright:  r.cdr.copyright,
	}
	for i := range r.zVars {
		info.ZVariables = append(info.ZVariables, r.zVars[i].name)
	}
	for i := range r.rVars {
		info.RVariables = append(info.RVariables, r.rVars[i].name)
	}
	for i := range r.attrs {
		info.Attributes = append(info.Attributes, r.attrs[i].adr.name)
	}
	return info
}

// VarInfo describes one variable.
type VarInfo struct {
	Name             string
	Num              int
	Z                bool
	DataType         DataType
	NumElems         int
	DimSizes         []int
	DimVarys         []bool
	RecVary          bool
	MaxRec           int
	Sparse           SparseMode
	Compressed       bool
	CompressionLevel int
	BlockingFactor   int
	Pad              any
}

func (r *Reader) varInfo(v *vdrRecord) VarInfo {
	info := VarInfo{
		Name:           v.name,
		Num:            int(v.num),
		Z:              v.z,
		DataType:       v.dataType,
		NumElems:       int(v.numElems),
		DimSizes:       append([]int(nil), v.dimSizes...),
		DimVarys:       append([]bool(nil), v.dimVarys...),
		RecVary:        v.flags&vdrFlagRecVary != 0,
		MaxRec:         int(v.maxRec),
		Sparse:         SparseMode(v.sRecords),
		Compressed:     v.flags&vdrFlagCompressed != 0,
		BlockingFactor: int(v.blocking),
	}
	if info.Compressed && v.cprOff > 0 {
		if cpr, err := parseCPR(r.data, v.cprOff); err == nil && len(cpr.parms) > 0 {
			info.CompressionLevel = int(cpr.parms[0])
		}
	}
	if pad := r.padBytes(v); pad != nil {
		if val, err := decodeValues(pad, v.dataType, int(v.numElems), 1, r.order); err == nil {
			info.Pad = scalarOf(val)
		}
	}
	return info
}

// VarInq looks a variable up by name, preferring zVariables on a name
// collision.
func (r *Reader) VarInq(name string) (VarInfo, error) {
	v, err := r.lookupVar(name)
	if err != nil {
		return VarInfo{}, err
	}
	return r.varInfo(v), nil
}

// VarInqNum looks a variable up by number within its kind.
func (r *Reader) VarInqNum(num int, z bool) (VarInfo, error) {
	vars := r.rVars
	if z {
		vars = r.zVars
	}
	for i := range vars {
		if int(vars[i].num) == num {
			return r.varInfo(&vars[i]), nil
		}
	}
	return VarInfo{}, fmt.Errorf("%w: variable number %d", ErrNotFound, num)
}

func (r *Reader) lookupVar(name string) (*vdrRecord, error) {
	ref, ok := r.varIndex[name]
	if !ok {
		return nil, fmt.Errorf("%w: variable %q", ErrNotFound, name)
	}
	if ref.z {
		return &r.zVars[ref.idx], nil
	}
	return &r.rVars[ref.idx], nil
}

// AttInfo describes one attribute.
type AttInfo struct {
	Name       string
	Num        int
	Global     bool
	NumEntries int
	MaxEntry   int
}

// AttInq looks an attribute up by name.
func (r *Reader) AttInq(name string) (AttInfo, error) {
	i, ok := r.attrIndex[name]
	if !ok {
		return AttInfo{}, fmt.Errorf("%w: attribute %q", ErrNotFound, name)
	}
	return r.attInfo(&r.attrs[i]), nil
}

// AttInqNum looks an attribute up by number.
func (r *Reader) AttInqNum(num int) (AttInfo, error) {
	for i := range r.attrs {
		if int(r.attrs[i].adr.num) == num {
			return r.attInfo(&r.attrs[i]), nil
		}
	}
	return AttInfo{}, fmt.Errorf("%w: attribute number %d", ErrNotFound, num)
}

func (r *Reader) attInfo(a *attribute) AttInfo {
	info := AttInfo{
		Name:   a.adr.name,
		Num:    int(a.adr.num),
		Global: a.adr.scope == 1,
	}
	if info.Global {
		info.NumEntries = int(a.adr.ngrEntries)
		info.MaxEntry = int(a.adr.maxGrEntry)
	} else {
		info.NumEntries = int(a.adr.ngrEntries + a.adr.nzEntries)
		info.MaxEntry = int(max(a.adr.maxGrEntry, a.adr.maxZEntry))
	}
	return info
}

// Entry is one attribute entry value.
type Entry struct {
	DataType   DataType
	NumElems   int
	NumStrings int
	Value      any
}

func (r *Reader) decodeEntry(e aedrRecord) (Entry, error) {
	out := Entry{
		DataType:   e.dataType,
		NumElems:   int(e.numElems),
		NumStrings: int(e.numStrings),
	}
	count := int(e.numElems)
	numElems := 1
	if e.dataType.IsString() {
		count = 1
		numElems = int(e.numElems)
	}
	val, err := decodeValues(e.value, e.dataType, numElems, count, r.order)
	if err != nil {
		return out, err
	}
	if e.dataType.IsString() {
		s := val.([]string)[0]
		if e.numStrings > 1 {
			out.Value = splitEntryStrings(s)
			return out, nil
		}
		out.Value = s
		return out, nil
	}
	out.Value = scalarOf(val)
	return out, nil
}

// AttGet returns one entry of an attribute: by entry number for global
// attributes, by variable number for variable attributes.
func (r *Reader) AttGet(name string, entry int) (Entry, error) {
	i, ok := r.attrIndex[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: attribute %q", ErrNotFound, name)
	}
	a := &r.attrs[i]
	if e, ok := a.zEntries[entry]; ok {
		return r.decodeEntry(e)
	}
	if e, ok := a.gEntries[entry]; ok {
		return r.decodeEntry(e)
	}
	return Entry{}, fmt.Errorf("%w: attribute %q entry %d", ErrNotFound, name, entry)
}

// GlobalAttsGet returns every global attribute, each as its entries
// keyed by entry number.
func (r *Reader) GlobalAttsGet() (map[string]map[int]Entry, error) {
	out := make(map[string]map[int]Entry)
	for i := range r.attrs {
		a := &r.attrs[i]
		if a.adr.scope != 1 {
			continue
		}
		entries := make(map[int]Entry, len(a.gEntries))
		for num, e := range a.gEntries {
			dec, err := r.decodeEntry(e)
			if err != nil {
				return nil, fmt.Errorf("attribute %q entry %d: %w", a.adr.name, num, err)
			}
			entries[num] = dec
		}
		out[a.adr.name] = entries
	}
	return out, nil
}

// VarAttsGet returns the variable-scope attribute entries attached to
// the named variable.
func (r *Reader) VarAttsGet(name string) (map[string]Entry, error) {
	v, err := r.lookupVar(name)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Entry)
	for i := range r.attrs {
		a := &r.attrs[i]
		if a.adr.scope == 1 {
			continue
		}
		entries := a.gEntries
		if v.z {
			entries = a.zEntries
		}
		e, ok := entries[int(v.num)]
		if !ok {
			continue
		}
		dec, err := r.decodeEntry(e)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.adr.name, err)
		}
		out[a.adr.name] = dec
	}
	return out, nil
}

func scalarOf(val any) any {
	switch x := val.(type) {
	case []int8:
		if len(x) == 1 {
			return x[0]
		}
	case []int16:
		if len(x) == 1 {
			return x[0]
		}
	case []int32:
		if len(x) == 1 {
			return x[0]
		}
	case []int64:
		if len(x) == 1 {
			return x[0]
		}
	case []uint8:
		if len(x) == 1 {
			return x[0]
		}
	case []uint16:
		if len(x) == 1 {
			return x[0]
		}
	case []uint32:
		if len(x) == 1 {
			return x[0]
		}
	case []float32:
		if len(x) == 1 {
			return x[0]
		}
	case []float64:
		if len(x) == 1 {
			return x[0]
		}
	case []string:
		if len(x) == 1 {
			return x[0]
		}
	}
	return val
}
