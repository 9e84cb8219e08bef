package cdf

import (
	"fmt"
	"math"
	"sort"

	"github.com/samcharles93/gocdf/pkg/epochs"
)

// VarData is the result of a variable read.
type VarData struct {
	Name        string
	DataType    DataType
	NumElems    int
	Shape       []int
	FirstRecord int
	LastRecord  int
	NumRecords  int
	Values      any
	// PhysicalRecords lists the record numbers physically present in
	// the file within the returned window; for non-sparse variables it
	// is nil.
	PhysicalRecords []int
}

type varOpts struct {
	hasRange  bool
	first     int
	last      int
	hasTime   bool
	timeStart any
	timeEnd   any
	epochVar  string
	rangeOnly bool
}

// VarOption adjusts a VarGet call.
type VarOption func(*varOpts)

// WithRecordRange restricts the read to records [first, last]. The
// window is clamped to the written range. Record ranges win over time
// ranges when both are given.
func WithRecordRange(first, last int) VarOption {
	return func(o *varOpts) {
		o.hasRange = true
		o.first, o.last = first, last
	}
}

// WithTimeRange restricts the read to records whose epoch falls within
// [start, end]. The epoch variable is taken from WithEpochVar or the
// variable's DEPEND_0 attribute. A nil bound is open.
func WithTimeRange(start, end any) VarOption {
	return func(o *varOpts) {
		o.hasTime = true
		o.timeStart, o.timeEnd = start, end
	}
}

// WithEpochVar names the epoch variable used for time-range selection.
func WithEpochVar(name string) VarOption {
	return func(o *varOpts) { o.epochVar = name }
}

// RecordRangeOnly returns record numbers and shape without decoding
// any values.
func RecordRangeOnly() VarOption {
	return func(o *varOpts) { o.rangeOnly = true }
}

type vxrLeaf struct {
	first int
	last  int
	off   int64
}

// collectLeaves flattens a VXR tree into its leaf entries in record
// order. Branch nodes are detected by the record type at the entry's
// target offset, so any tree depth is accepted. A VXR reached twice is
// rejected as malformed.
func (r *Reader) collectLeaves(head int64) ([]vxrLeaf, error) {
	var out []vxrLeaf
	seen := make(map[int64]bool)
	var walk func(off int64) error
	walk = func(off int64) error {
		for off != 0 {
			if seen[off] {
				return fmt.Errorf("%w: VXR at offset %d reached twice", ErrBadRecord, off)
			}
			seen[off] = true
			vxr, err := parseVXR(r.data, off)
			if err != nil {
				return err
			}
			for i := 0; i < int(vxr.nUsed); i++ {
				target := vxr.offsets[i]
				_, typ, err := recordHeader(r.data, target)
				if err != nil {
					return err
				}
				if typ == recVXR {
					if err := walk(target); err != nil {
						return err
					}
					continue
				}
				out = append(out, vxrLeaf{
					first: int(vxr.first[i]),
					last:  int(vxr.last[i]),
					off:   target,
				})
			}
			off = vxr.next
		}
		return nil
	}
	if err := walk(head); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].first < out[j].first })
	return out, nil
}

func (r *Reader) padBytes(v *vdrRecord) []byte {
	if v.flags&vdrFlagPadPresent != 0 && v.pad != nil {
		return v.pad
	}
	return v.dataType.DefaultPadBytes(int(v.numElems), r.order)
}

func recordSize(v *vdrRecord) (bytes, valuesPerRec int) {
	valuesPerRec = 1
	for i, d := range v.dimSizes {
		if v.dimVarys[i] {
			valuesPerRec *= d
		}
	}
	valueSize := v.dataType.Size()
	if v.dataType.IsString() {
		valueSize *= int(v.numElems)
	}
	return valueSize * valuesPerRec, valuesPerRec
}

func varyDims(v *vdrRecord) []int {
	var out []int
	for i, d := range v.dimSizes {
		if v.dimVarys[i] {
			out = append(out, d)
		}
	}
	return out
}

// VarGet reads a variable's records. Without options it returns every
// written record. Data comes back row-major regardless of the file's
// stored majority.
func (r *Reader) VarGet(name string, opts ...VarOption) (*VarData, error) {
	if r.checksumErr != nil {
		return nil, r.checksumErr
	}
	v, err := r.lookupVar(name)
	if err != nil {
		return nil, err
	}

	var o varOpts
	for _, opt := range opts {
		opt(&o)
	}

	first, last := 0, int(v.maxRec)
	switch {
	case o.hasRange:
		first, last = o.first, o.last
	case o.hasTime:
		first, last, err = r.timeWindow(v, &o)
		if err != nil {
			return nil, err
		}
	}
	if first < 0 {
		first = 0
	}
	if last > int(v.maxRec) {
		last = int(v.maxRec)
	}

	out := &VarData{
		Name:     v.name,
		DataType: v.dataType,
		NumElems: int(v.numElems),
		Shape:    varyDims(v),
	}
	recBytes, valuesPerRec := recordSize(v)

	if v.flags&vdrFlagRecVary == 0 {
		// A non-varying variable has a single physical record that
		// stands for every virtual one.
		leaves, err := r.collectLeaves(v.vxrHead)
		if err != nil {
			return nil, err
		}
		if len(leaves) == 0 {
			return out, nil
		}
		payload, err := vvrPayload(r.data, leaves[0].off)
		if err != nil {
			return nil, err
		}
		if len(payload) < recBytes {
			return nil, fmt.Errorf("%w: variable %q record short", ErrBadRecord, v.name)
		}
		out.NumRecords = 1
		if o.rangeOnly {
			return out, nil
		}
		return r.finishRead(out, v, payload[:recBytes], 1, valuesPerRec)
	}

	if int(v.maxRec) < 0 || first > last {
		return out, nil
	}
	out.FirstRecord, out.LastRecord = first, last
	n := last - first + 1

	leaves, err := r.collectLeaves(v.vxrHead)
	if err != nil {
		return nil, err
	}

	sparse := SparseMode(v.sRecords) != NoSparse
	if sparse {
		for _, leaf := range leaves {
			for rec := leaf.first; rec <= leaf.last; rec++ {
				if rec >= first && rec <= last {
					out.PhysicalRecords = append(out.PhysicalRecords, rec)
				}
			}
		}
	}
	out.NumRecords = n
	if o.rangeOnly {
		return out, nil
	}

	buf := make([]byte, n*recBytes)
	if err := r.fillRecords(buf, v, leaves, first, last, recBytes); err != nil {
		return nil, err
	}
	return r.finishRead(out, v, buf, n, valuesPerRec)
}

// fillRecords assembles the byte image of records [first, last],
// synthesizing sparse gaps per the variable's policy.
func (r *Reader) fillRecords(buf []byte, v *vdrRecord, leaves []vxrLeaf, first, last, recBytes int) error {
	pad := r.padBytes(v)
	mode := SparseMode(v.sRecords)

	fillGap := func(from, to int, prev []byte) {
		src := pad
		if mode == PrevSparse && prev != nil {
			src = prev
		}
		for rec := from; rec <= to; rec++ {
			if rec < first || rec > last {
				continue
			}
			copy(buf[(rec-first)*recBytes:], src)
		}
	}

	next := first
	var prev []byte
	for _, leaf := range leaves {
		if leaf.first > last && mode == NoSparse {
			break
		}
		if leaf.first > next {
			if mode == NoSparse {
				return fmt.Errorf("%w: variable %q missing records %d-%d", ErrBadRecord, v.name, next, leaf.first-1)
			}
			fillGap(next, leaf.first-1, prev)
		}
		count := leaf.last - leaf.first + 1
		payload, err := vvrPayload(r.data, leaf.off)
		if err != nil {
			return err
		}
		if len(payload) < count*recBytes {
			return fmt.Errorf("%w: variable %q segment at offset %d short", ErrBadRecord, v.name, leaf.off)
		}
		for rec := leaf.first; rec <= leaf.last; rec++ {
			seg := payload[(rec-leaf.first)*recBytes : (rec-leaf.first+1)*recBytes]
			if rec >= first && rec <= last {
				copy(buf[(rec-first)*recBytes:], seg)
			}
		}
		prev = payload[(count-1)*recBytes : count*recBytes]
		if leaf.last+1 > next {
			next = leaf.last + 1
		}
		if next > last && mode == NoSparse {
			break
		}
	}
	if next <= last {
		if mode == NoSparse {
			return fmt.Errorf("%w: variable %q missing records %d-%d", ErrBadRecord, v.name, next, last)
		}
		fillGap(next, last, prev)
	}
	return nil
}

func (r *Reader) finishRead(out *VarData, v *vdrRecord, buf []byte, n, valuesPerRec int) (*VarData, error) {
	if r.majority == ColumnMajor && len(out.Shape) > 1 && !v.dataType.IsString() {
		valueSize := v.dataType.Size()
		transposeRecords(buf, n, out.Shape, valueSize)
	}
	val, err := decodeValues(buf, v.dataType, int(v.numElems), n*valuesPerRec, r.order)
	if err != nil {
		return nil, err
	}
	out.Values = val
	return out, nil
}

// transposeRecords rewrites each record from column-major to row-major
// element order in place.
func transposeRecords(buf []byte, n int, dims []int, valueSize int) {
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
			copy(tmp[flat*valueSize:(flat+1)*valueSize], src[colOff*valueSize:(colOff+1)*valueSize])
		}
		copy(src, tmp)
	}
}

// timeWindow resolves a time-range option to a record window using the
// epoch variable named in the options or the variable's DEPEND_0.
func (r *Reader) timeWindow(v *vdrRecord, o *varOpts) (int, int, error) {
	name := o.epochVar
	if name == "" {
		atts, err := r.VarAttsGet(v.name)
		if err != nil {
			return 0, 0, err
		}
		dep, ok := atts["DEPEND_0"]
		if !ok {
			return 0, 0, fmt.Errorf("%w: variable %q has no DEPEND_0 attribute", ErrNotFound, v.name)
		}
		s, ok := dep.Value.(string)
		if !ok {
			return 0, 0, fmt.Errorf("%w: DEPEND_0 of %q is not a string", ErrBadRecord, v.name)
		}
		name = s
	}
	first, last, ok, err := r.EpochRange(name, o.timeStart, o.timeEnd)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, -1, nil
	}
	return first, last, nil
}

// EpochRange reads the named epoch variable and returns the inclusive
// window [first, last] of records whose value lies within [start, end].
// A nil bound is open. ok is false when no records match.
func (r *Reader) EpochRange(name string, start, end any) (first, last int, ok bool, err error) {
	if r.checksumErr != nil {
		return 0, 0, false, r.checksumErr
	}
	v, err := r.lookupVar(name)
	if err != nil {
		return 0, 0, false, err
	}
	if !v.dataType.IsEpoch() {
		return 0, 0, false, fmt.Errorf("%w: variable %q is %s, not an epoch type", ErrBadSpec, name, v.dataType)
	}
	data, err := r.VarGet(name)
	if err != nil {
		return 0, 0, false, err
	}

	var lo, hi int
	switch vals := data.Values.(type) {
	case []epochs.Epoch:
		s, e := epochs.Epoch(-math.MaxFloat64), epochs.Epoch(math.MaxFloat64)
		if start != nil {
			sv, err := epochSlice(start)
			if err != nil {
				return 0, 0, false, err
			}
			s = sv[0]
		}
		if end != nil {
			ev, err := epochSlice(end)
			if err != nil {
				return 0, 0, false, err
			}
			e = ev[0]
		}
		lo, hi = epochs.RangeEpoch(vals, s, e)
	case []epochs.Epoch16:
		s := epochs.Epoch16{Seconds: -math.MaxFloat64}
		e := epochs.Epoch16{Seconds: math.MaxFloat64}
		if start != nil {
			sv, err := epoch16Slice(start)
			if err != nil {
				return 0, 0, false, err
			}
			s = sv[0]
		}
		if end != nil {
			ev, err := epoch16Slice(end)
			if err != nil {
				return 0, 0, false, err
			}
			e = ev[0]
		}
		lo, hi = epochs.RangeEpoch16(vals, s, e)
	case []epochs.TT2000:
		s, e := epochs.TT2000(math.MinInt64), epochs.TT2000(math.MaxInt64)
		if start != nil {
			sv, err := tt2000Slice(start)
			if err != nil {
				return 0, 0, false, err
			}
			s = sv[0]
		}
		if end != nil {
			ev, err := tt2000Slice(end)
			if err != nil {
				return 0, 0, false, err
			}
			e = ev[0]
		}
		lo, hi = epochs.RangeTT2000(vals, s, e)
	default:
		return 0, 0, false, fmt.Errorf("%w: variable %q values", ErrBadSpec, name)
	}
	if lo >= hi {
		return 0, 0, false, nil
	}
	return lo, hi - 1, true, nil
}
