package cdf

import (
	"encoding/binary"
	"fmt"
)

// Internal record type codes.
const (
	recCDR    int32 = 1
	recGDR    int32 = 2
	recRVDR   int32 = 3
	recADR    int32 = 4
	recAgrEDR int32 = 5
	recVXR    int32 = 6
	recVVR    int32 = 7
	recZVDR   int32 = 8
	recAzEDR  int32 = 9
	recCCR    int32 = 10
	recCPR    int32 = 11
	recSPR    int32 = 12
	recCVVR   int32 = 13
	recUIR    int32 = 14
)

const (
	cdrFlagRowMajor    = 1 << 0
	cdrFlagSingleFile  = 1 << 1
	cdrFlagChecksum    = 1 << 2
	cdrFlagChecksumMD5 = 1 << 3

	vdrFlagRecVary    = 1 << 0
	vdrFlagPadPresent = 1 << 1
	vdrFlagCompressed = 1 << 2

	// gzipCompression is the only supported compression algorithm code.
	// RLE (1), Huffman (2) and adaptive Huffman (3) are recognized but
	// rejected.
	gzipCompression int32 = 5

	// vxrLeafEntries and vxrLevelEntries are the fan-outs emitted for
	// leaf and branch index records. Readers accept any fan-out.
	vxrLeafEntries  = 7
	vxrLevelEntries = 3

	leapTableCDF = 20170101
)

// recordHeader reads the {size, type} prefix shared by every internal
// record and bounds-checks the declared size against the image.
func recordHeader(data []byte, off int64) (size int64, typ int32, err error) {
	if off < 0 || off+12 > int64(len(data)) {
		return 0, 0, fmt.Errorf("%w: record header at offset %d past image end", ErrBadRecord, off)
	}
	size = int64(binary.BigEndian.Uint64(data[off:]))
	typ = int32(binary.BigEndian.Uint32(data[off+8:]))
	if size < 12 || off+size > int64(len(data)) {
		return 0, 0, fmt.Errorf("%w: record at offset %d declares size %d", ErrBadRecord, off, size)
	}
	return size, typ, nil
}

func expectRecord(data []byte, off int64, want ...int32) (int64, int32, error) {
	size, typ, err := recordHeader(data, off)
	if err != nil {
		return 0, 0, err
	}
	for _, w := range want {
		if typ == w {
			return size, typ, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: record type %d at offset %d, want %v", ErrBadRecord, typ, off, want)
}

type cdrRecord struct {
	gdrOffset int64
	version   int32
	release   int32
	increment int32
	encoding  Encoding
	flags     int32
	copyright string
}

func parseCDR(data []byte, off int64) (cdrRecord, error) {
	var r cdrRecord
	if _, _, err := expectRecord(data, off, recCDR); err != nil {
		return r, err
	}
	c := newCursor(data, off+12)
	var err error
	if r.gdrOffset, err = c.readI64(); err != nil {
		return r, err
	}
	if r.version, err = c.readI32(); err != nil {
		return r, err
	}
	if r.release, err = c.readI32(); err != nil {
		return r, err
	}
	enc, err := c.readI32()
	if err != nil {
		return r, err
	}
	r.encoding = Encoding(enc)
	if r.flags, err = c.readI32(); err != nil {
		return r, err
	}
	if err = c.skip(8); err != nil { // rfuA, rfuB
		return r, err
	}
	if r.increment, err = c.readI32(); err != nil {
		return r, err
	}
	if err = c.skip(8); err != nil { // identifier, rfuE
		return r, err
	}
	r.copyright, err = c.readName()
	return r, err
}

type gdrRecord struct {
	rVDRHead int64
	zVDRHead int64
	adrHead  int64
	eof      int64
	numRVars int32
	numAttrs int32
	rMaxRec  int32
	numZVars int32
	leapLast int32
	rDims    []int
}

func parseGDR(data []byte, off int64) (gdrRecord, error) {
	var r gdrRecord
	if _, _, err := expectRecord(data, off, recGDR); err != nil {
		return r, err
	}
	c := newCursor(data, off+12)
	var err error
	if r.rVDRHead, err = c.readI64(); err != nil {
		return r, err
	}
	if r.zVDRHead, err = c.readI64(); err != nil {
		return r, err
	}
	if r.adrHead, err = c.readI64(); err != nil {
		return r, err
	}
	if r.eof, err = c.readI64(); err != nil {
		return r, err
	}
	if r.numRVars, err = c.readI32(); err != nil {
		return r, err
	}
	if r.numAttrs, err = c.readI32(); err != nil {
		return r, err
	}
	if r.rMaxRec, err = c.readI32(); err != nil {
		return r, err
	}
	rNumDims, err := c.readI32()
	if err != nil {
		return r, err
	}
	if r.numZVars, err = c.readI32(); err != nil {
		return r, err
	}
	if err = c.skip(12); err != nil { // UIRhead, rfuC
		return r, err
	}
	if r.leapLast, err = c.readI32(); err != nil {
		return r, err
	}
	if err = c.skip(4); err != nil { // rfuE
		return r, err
	}
	if rNumDims < 0 || rNumDims > 64 {
		return r, fmt.Errorf("%w: GDR declares %d rVariable dimensions", ErrBadRecord, rNumDims)
	}
	r.rDims = make([]int, rNumDims)
	for i := range r.rDims {
		d, err := c.readI32()
		if err != nil {
			return r, err
		}
		r.rDims[i] = int(d)
	}
	return r, nil
}

type adrRecord struct {
	offset     int64
	next       int64
	agrEDRHead int64
	azEDRHead  int64
	scope      int32
	num        int32
	ngrEntries int32
	maxGrEntry int32
	nzEntries  int32
	maxZEntry  int32
	name       string
}

func parseADR(data []byte, off int64) (adrRecord, error) {
	r := adrRecord{offset: off}
	if _, _, err := expectRecord(data, off, recADR); err != nil {
		return r, err
	}
	c := newCursor(data, off+12)
	var err error
	if r.next, err = c.readI64(); err != nil {
		return r, err
	}
	if r.agrEDRHead, err = c.readI64(); err != nil {
		return r, err
	}
	if r.scope, err = c.readI32(); err != nil {
		return r, err
	}
	if r.num, err = c.readI32(); err != nil {
		return r, err
	}
	if r.ngrEntries, err = c.readI32(); err != nil {
		return r, err
	}
	if r.maxGrEntry, err = c.readI32(); err != nil {
		return r, err
	}
	if err = c.skip(4); err != nil { // rfuA
		return r, err
	}
	if r.azEDRHead, err = c.readI64(); err != nil {
		return r, err
	}
	if r.nzEntries, err = c.readI32(); err != nil {
		return r, err
	}
	if r.maxZEntry, err = c.readI32(); err != nil {
		return r, err
	}
	if err = c.skip(4); err != nil { // rfuE
		return r, err
	}
	r.name, err = c.readName()
	return r, err
}

type aedrRecord struct {
	next       int64
	attrNum    int32
	dataType   DataType
	num        int32
	numElems   int32
	numStrings int32
	value      []byte
}

func parseAEDR(data []byte, off int64) (aedrRecord, error) {
	var r aedrRecord
	size, _, err := expectRecord(data, off, recAgrEDR, recAzEDR)
	if err != nil {
		return r, err
	}
	c := newCursor(data, off+12)
	if r.next, err = c.readI64(); err != nil {
		return r, err
	}
	if r.attrNum, err = c.readI32(); err != nil {
		return r, err
	}
	dt, err := c.readI32()
	if err != nil {
		return r, err
	}
	r.dataType = DataType(dt)
	if r.num, err = c.readI32(); err != nil {
		return r, err
	}
	if r.numElems, err = c.readI32(); err != nil {
		return r, err
	}
	if r.numStrings, err = c.readI32(); err != nil {
		return r, err
	}
	if err = c.skip(16); err != nil { // rfuB..rfuE
		return r, err
	}
	r.value, err = c.readN(int(size - 56))
	return r, err
}

type vdrRecord struct {
	offset   int64
	next     int64
	dataType DataType
	maxRec   int32
	vxrHead  int64
	vxrTail  int64
	flags    int32
	sRecords int32
	numElems int32
	num      int32
	cprOff   int64
	blocking int32
	name     string
	z        bool
	dimSizes []int
	dimVarys []bool
	pad      []byte
}

// parseVDR decodes a zVDR or rVDR. rVariables inherit the GDR's
// dimension sizes, with per-dimension variance from the record.
func parseVDR(data []byte, off int64, rDims []int) (vdrRecord, error) {
	r := vdrRecord{offset: off}
	size, typ, err := expectRecord(data, off, recZVDR, recRVDR)
	if err != nil {
		return r, err
	}
	r.z = typ == recZVDR
	c := newCursor(data, off+12)
	if r.next, err = c.readI64(); err != nil {
		return r, err
	}
	dt, err := c.readI32()
	if err != nil {
		return r, err
	}
	r.dataType = DataType(dt)
	if !r.dataType.Valid() {
		return r, fmt.Errorf("%w: variable data type %d", ErrBadRecord, dt)
	}
	if r.maxRec, err = c.readI32(); err != nil {
		return r, err
	}
	if r.vxrHead, err = c.readI64(); err != nil {
		return r, err
	}
	if r.vxrTail, err = c.readI64(); err != nil {
		return r, err
	}
	if r.flags, err = c.readI32(); err != nil {
		return r, err
	}
	if r.sRecords, err = c.readI32(); err != nil {
		return r, err
	}
	if err = c.skip(12); err != nil { // rfuB, rfuC, rfuF
		return r, err
	}
	if r.numElems, err = c.readI32(); err != nil {
		return r, err
	}
	if r.num, err = c.readI32(); err != nil {
		return r, err
	}
	if r.cprOff, err = c.readI64(); err != nil {
		return r, err
	}
	if r.blocking, err = c.readI32(); err != nil {
		return r, err
	}
	if r.name, err = c.readName(); err != nil {
		return r, err
	}

	if r.z {
		zNumDims, err := c.readI32()
		if err != nil {
			return r, err
		}
		if zNumDims < 0 || zNumDims > 64 {
			return r, fmt.Errorf("%w: zVariable %q declares %d dimensions", ErrBadRecord, r.name, zNumDims)
		}
		r.dimSizes = make([]int, zNumDims)
		for i := range r.dimSizes {
			d, err := c.readI32()
			if err != nil {
				return r, err
			}
			r.dimSizes[i] = int(d)
		}
	} else {
		r.dimSizes = append([]int(nil), rDims...)
	}

	r.dimVarys = make([]bool, len(r.dimSizes))
	for i := range r.dimVarys {
		v, err := c.readI32()
		if err != nil {
			return r, err
		}
		r.dimVarys[i] = v != 0
	}

	if r.flags&vdrFlagPadPresent != 0 {
		padLen := r.dataType.Size()
		if r.dataType.IsString() {
			padLen *= int(r.numElems)
		}
		if int64(c.off)+int64(padLen) > off+size {
			return r, fmt.Errorf("%w: pad value of variable %q overruns record", ErrBadRecord, r.name)
		}
		if r.pad, err = c.readN(padLen); err != nil {
			return r, err
		}
	}
	return r, nil
}

type vxrRecord struct {
	next    int64
	nUsed   int32
	first   []int32
	last    []int32
	offsets []int64
}

func parseVXR(data []byte, off int64) (vxrRecord, error) {
	var r vxrRecord
	if _, _, err := expectRecord(data, off, recVXR); err != nil {
		return r, err
	}
	c := newCursor(data, off+12)
	var err error
	if r.next, err = c.readI64(); err != nil {
		return r, err
	}
	nEntries, err := c.readI32()
	if err != nil {
		return r, err
	}
	if r.nUsed, err = c.readI32(); err != nil {
		return r, err
	}
	if nEntries < 0 || r.nUsed < 0 || r.nUsed > nEntries {
		return r, fmt.Errorf("%w: VXR at offset %d has %d/%d entries", ErrBadRecord, off, r.nUsed, nEntries)
	}
	r.first = make([]int32, nEntries)
	r.last = make([]int32, nEntries)
	r.offsets = make([]int64, nEntries)
	for i := range r.first {
		if r.first[i], err = c.readI32(); err != nil {
			return r, err
		}
	}
	for i := range r.last {
		if r.last[i], err = c.readI32(); err != nil {
			return r, err
		}
	}
	for i := range r.offsets {
		if r.offsets[i], err = c.readI64(); err != nil {
			return r, err
		}
	}
	return r, nil
}

type cprRecord struct {
	cType int32
	parms []int32
}

func parseCPR(data []byte, off int64) (cprRecord, error) {
	var r cprRecord
	if _, _, err := expectRecord(data, off, recCPR); err != nil {
		return r, err
	}
	c := newCursor(data, off+12)
	var err error
	if r.cType, err = c.readI32(); err != nil {
		return r, err
	}
	if err = c.skip(4); err != nil { // rfuA
		return r, err
	}
	pCount, err := c.readI32()
	if err != nil {
		return r, err
	}
	if pCount < 0 || pCount > 16 {
		return r, fmt.Errorf("%w: CPR at offset %d declares %d parameters", ErrBadRecord, off, pCount)
	}
	r.parms = make([]int32, pCount)
	for i := range r.parms {
		if r.parms[i], err = c.readI32(); err != nil {
			return r, err
		}
	}
	return r, nil
}

type ccrRecord struct {
	cprOffset int64
	uSize     int64
	payload   []byte
}

func parseCCR(data []byte, off int64) (ccrRecord, error) {
	var r ccrRecord
	size, _, err := expectRecord(data, off, recCCR)
	if err != nil {
		return r, err
	}
	c := newCursor(data, off+12)
	if r.cprOffset, err = c.readI64(); err != nil {
		return r, err
	}
	if r.uSize, err = c.readI64(); err != nil {
		return r, err
	}
	if err = c.skip(4); err != nil { // rfuA
		return r, err
	}
	r.payload, err = c.readN(int(size - 32))
	return r, err
}

// vvrPayload returns the raw record bytes of a VVR, or the inflated
// bytes of a CVVR, at the given offset.
func vvrPayload(data []byte, off int64) ([]byte, error) {
	size, typ, err := expectRecord(data, off, recVVR, recCVVR)
	if err != nil {
		return nil, err
	}
	if typ == recVVR {
		return data[off+12 : off+size], nil
	}
	c := newCursor(data, off+12)
	if err = c.skip(4); err != nil { // rfuA
		return nil, err
	}
	cSize, err := c.readI64()
	if err != nil {
		return nil, err
	}
	if cSize < 0 || int64(c.off)+cSize > off+size {
		return nil, fmt.Errorf("%w: CVVR at offset %d declares %d compressed bytes", ErrBadRecord, off, cSize)
	}
	raw, err := c.readN(int(cSize))
	if err != nil {
		return nil, err
	}
	out, err := gzipInflate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: CVVR at offset %d: %v", ErrCompression, off, err)
	}
	return out, nil
}
