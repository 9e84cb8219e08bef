package cdf

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/samcharles93/gocdf/pkg/epochs"
)

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.cdf")
}

func newWriter(t *testing.T, path string, spec FileSpec) *Writer {
	t.Helper()
	w, err := Create(path, spec)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	return w
}

func closeWriter(t *testing.T, w *Writer) {
	t.Helper()
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
}

func openReader(t *testing.T, path string) *Reader {
	t.Helper()
	r, err := Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func hourlyEpochs(t *testing.T, n int) []epochs.Epoch {
	t.Helper()
	out := make([]epochs.Epoch, n)
	for i := range out {
		e, err := epochs.ComputeEpoch(epochs.Components{
			Year: 2020, Month: 1, Day: 1, Hour: i,
		})
		if err != nil {
			t.Fatalf("epoch %d: %v", i, err)
		}
		out[i] = e
	}
	return out
}

func TestRoundTripDataTypes(t *testing.T) {
	t.Parallel()

	eps := hourlyEpochs(t, 4)
	eps16 := make([]epochs.Epoch16, 4)
	for i := range eps16 {
		e, err := epochs.ComputeEpoch16(epochs.Components{
			Year: 2020, Month: 1, Day: 1, Hour: i,
		})
		if err != nil {
			t.Fatalf("epoch16 %d: %v", i, err)
		}
		eps16[i] = e
	}
	tts := make([]epochs.TT2000, 4)
	for i := range tts {
		tt, err := epochs.ComputeTT2000(epochs.Components{
			Year: 2020, Month: 1, Day: 1, Hour: i,
		})
		if err != nil {
			t.Fatalf("tt2000 %d: %v", i, err)
		}
		tts[i] = tt
	}

	vars := []struct {
		spec VarSpec
		data any
	}{
		{VarSpec{Name: "counts_i1", DataType: INT1, RecVary: true}, []int8{-3, 0, 5, 100}},
		{VarSpec{Name: "levels_u1", DataType: UINT1, RecVary: true}, []uint8{0, 1, 254, 9}},
		{VarSpec{Name: "ranges_i2", DataType: INT2, RecVary: true}, []int16{-32767, -1, 0, 1200}},
		{VarSpec{Name: "flags_u2", DataType: UINT2, RecVary: true}, []uint16{0, 7, 65534, 12}},
		{VarSpec{Name: "ids_i4", DataType: INT4, RecVary: true}, []int32{-2147483647, -1, 0, 42}},
		{VarSpec{Name: "masks_u4", DataType: UINT4, RecVary: true}, []uint32{0, 4294967294, 16, 1}},
		{VarSpec{Name: "ticks_i8", DataType: INT8, RecVary: true}, []int64{-9223372036854775807, 0, 1, 1234567890123}},
		{VarSpec{Name: "ratios_f4", DataType: FLOAT, RecVary: true}, []float32{-1.5, 0, 0.25, 3.75}},
		{VarSpec{Name: "values_f8", DataType: DOUBLE, RecVary: true}, []float64{-1.0e30, 0, 2.5, 99.125}},
		{VarSpec{Name: "labels", DataType: CHAR, NumElems: 5, RecVary: true}, []string{"alpha", "gamma", "delta", "omega"}},
		{VarSpec{Name: "Epoch", DataType: EPOCH, RecVary: true}, eps},
		{VarSpec{Name: "Epoch16", DataType: EPOCH16, RecVary: true}, eps16},
		{VarSpec{Name: "tt", DataType: TT2000, RecVary: true}, tts},
	}

	path := tempPath(t)
	w := newWriter(t, path, FileSpec{})
	for _, v := range vars {
		if err := w.WriteVar(v.spec, nil, v.data); err != nil {
			t.Fatalf("write %s: %v", v.spec.Name, err)
		}
	}
	closeWriter(t, w)

	r := openReader(t, path)
	info := r.Info()
	if info.Version != "3.7.0" {
		t.Fatalf("version: got %q", info.Version)
	}
	if info.Majority != RowMajor {
		t.Fatalf("majority: got %s", info.Majority)
	}
	if len(info.ZVariables) != len(vars) {
		t.Fatalf("z variables: got %d, want %d", len(info.ZVariables), len(vars))
	}
	if info.Compressed || info.Checksum {
		t.Fatalf("unexpected compressed=%v checksum=%v", info.Compressed, info.Checksum)
	}

	for _, v := range vars {
		data, err := r.VarGet(v.spec.Name)
		if err != nil {
			t.Fatalf("read %s: %v", v.spec.Name, err)
		}
		if data.NumRecords != 4 || data.FirstRecord != 0 || data.LastRecord != 3 {
			t.Fatalf("%s window: %d records [%d, %d]", v.spec.Name, data.NumRecords, data.FirstRecord, data.LastRecord)
		}
		if data.DataType != v.spec.DataType {
			t.Fatalf("%s data type: got %s, want %s", v.spec.Name, data.DataType, v.spec.DataType)
		}
		if !reflect.DeepEqual(data.Values, v.data) {
			t.Fatalf("%s values: got %v, want %v", v.spec.Name, data.Values, v.data)
		}
	}

	inq, err := r.VarInq("labels")
	if err != nil {
		t.Fatalf("inquire labels: %v", err)
	}
	if !inq.Z || inq.NumElems != 5 || !inq.RecVary || inq.MaxRec != 3 {
		t.Fatalf("labels info: %+v", inq)
	}
}

func TestRVariableRoundTrip(t *testing.T) {
	t.Parallel()

	path := tempPath(t)
	w := newWriter(t, path, FileSpec{RDimSizes: []int{3}})
	data := []float32{1, 2, 3, 4, 5, 6}
	if err := w.WriteVar(VarSpec{
		Name:      "grid",
		DataType:  FLOAT,
		RecVary:   true,
		RVariable: true,
	}, nil, data); err != nil {
		t.Fatalf("write grid: %v", err)
	}
	closeWriter(t, w)

	r := openReader(t, path)
	info := r.Info()
	if len(info.RVariables) != 1 || info.RVariables[0] != "grid" {
		t.Fatalf("r variables: %v", info.RVariables)
	}
	if len(info.ZVariables) != 0 {
		t.Fatalf("unexpected z variables: %v", info.ZVariables)
	}

	inq, err := r.VarInq("grid")
	if err != nil {
		t.Fatalf("inquire grid: %v", err)
	}
	if inq.Z || !reflect.DeepEqual(inq.DimSizes, []int{3}) {
		t.Fatalf("grid info: %+v", inq)
	}

	got, err := r.VarGet("grid")
	if err != nil {
		t.Fatalf("read grid: %v", err)
	}
	if !reflect.DeepEqual(got.Shape, []int{3}) || got.NumRecords != 2 {
		t.Fatalf("grid window: shape=%v records=%d", got.Shape, got.NumRecords)
	}
	if !reflect.DeepEqual(got.Values, data) {
		t.Fatalf("grid values: got %v", got.Values)
	}
}

func TestNonRecordVarying(t *testing.T) {
	t.Parallel()

	path := tempPath(t)
	w := newWriter(t, path, FileSpec{})
	if err := w.WriteVar(VarSpec{Name: "baseline", DataType: DOUBLE}, nil, 3.5); err != nil {
		t.Fatalf("write baseline: %v", err)
	}
	closeWriter(t, w)

	r := openReader(t, path)
	inq, err := r.VarInq("baseline")
	if err != nil {
		t.Fatalf("inquire: %v", err)
	}
	if inq.RecVary {
		t.Fatalf("expected rec_vary false: %+v", inq)
	}

	got, err := r.VarGet("baseline")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.NumRecords != 1 || got.FirstRecord != 0 || got.LastRecord != 0 {
		t.Fatalf("window: %+v", got)
	}
	if !reflect.DeepEqual(got.Values, []float64{3.5}) {
		t.Fatalf("values: %v", got.Values)
	}
}

func TestColumnMajorRoundTrip(t *testing.T) {
	t.Parallel()

	path := tempPath(t)
	w := newWriter(t, path, FileSpec{Majority: ColumnMajor})
	data := []int32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	if err := w.WriteVar(VarSpec{
		Name:     "matrix",
		DataType: INT4,
		DimSizes: []int{2, 3},
		RecVary:  true,
	}, nil, data); err != nil {
		t.Fatalf("write matrix: %v", err)
	}
	closeWriter(t, w)

	r := openReader(t, path)
	if r.Info().Majority != ColumnMajor {
		t.Fatalf("majority: got %s", r.Info().Majority)
	}
	got, err := r.VarGet("matrix")
	if err != nil {
		t.Fatalf("read matrix: %v", err)
	}
	if !reflect.DeepEqual(got.Shape, []int{2, 3}) || got.NumRecords != 2 {
		t.Fatalf("matrix window: shape=%v records=%d", got.Shape, got.NumRecords)
	}
	// Reads come back in row-major element order regardless of the
	// stored majority.
	if !reflect.DeepEqual(got.Values, data) {
		t.Fatalf("matrix values: got %v", got.Values)
	}
}

func TestCompressedVariable(t *testing.T) {
	t.Parallel()

	data := make([]float64, 120)
	for i := range data {
		data[i] = float64(i % 10)
	}

	path := tempPath(t)
	w := newWriter(t, path, FileSpec{})
	if err := w.WriteVar(VarSpec{
		Name:           "wave",
		DataType:       DOUBLE,
		RecVary:        true,
		Compress:       6,
		BlockingFactor: 16,
	}, nil, data); err != nil {
		t.Fatalf("write wave: %v", err)
	}
	closeWriter(t, w)

	r := openReader(t, path)
	inq, err := r.VarInq("wave")
	if err != nil {
		t.Fatalf("inquire wave: %v", err)
	}
	if !inq.Compressed || inq.CompressionLevel != 6 {
		t.Fatalf("compression info: %+v", inq)
	}

	got, err := r.VarGet("wave")
	if err != nil {
		t.Fatalf("read wave: %v", err)
	}
	if got.NumRecords != len(data) {
		t.Fatalf("records: got %d, want %d", got.NumRecords, len(data))
	}
	if !reflect.DeepEqual(got.Values, data) {
		t.Fatalf("wave values differ")
	}
}

func TestFileCompressionRoundTrip(t *testing.T) {
	t.Parallel()

	data := make([]int32, 200)
	for i := range data {
		data[i] = int32(i % 4)
	}

	path := tempPath(t)
	w := newWriter(t, path, FileSpec{Compress: 6, Checksum: true})
	if err := w.WriteVar(VarSpec{Name: "steps", DataType: INT4, RecVary: true}, nil, data); err != nil {
		t.Fatalf("write steps: %v", err)
	}
	if err := w.WriteGlobalAttrs(map[string]map[int]any{
		"Source": {0: "synthetic"},
	}); err != nil {
		t.Fatalf("global attrs: %v", err)
	}
	closeWriter(t, w)

	r := openReader(t, path)
	info := r.Info()
	if !info.Compressed || !info.Checksum {
		t.Fatalf("expected compressed checksummed file: %+v", info)
	}

	got, err := r.VarGet("steps")
	if err != nil {
		t.Fatalf("read steps: %v", err)
	}
	if !reflect.DeepEqual(got.Values, data) {
		t.Fatalf("steps values differ")
	}

	e, err := r.AttGet("Source", 0)
	if err != nil {
		t.Fatalf("attribute: %v", err)
	}
	if e.Value != "synthetic" {
		t.Fatalf("attribute value: %v", e.Value)
	}
}

func TestGlobalAttributes(t *testing.T) {
	t.Parallel()

	path := tempPath(t)
	w := newWriter(t, path, FileSpec{})
	if err := w.WriteGlobalAttrs(map[string]map[int]any{
		"Title":  {0: "calibration run"},
		"Counts": {0: 42, 1: 3.5},
		"Notes":  {0: []string{"first pass", "second pass"}},
	}); err != nil {
		t.Fatalf("global attrs: %v", err)
	}
	closeWriter(t, w)

	r := openReader(t, path)
	atts, err := r.GlobalAttsGet()
	if err != nil {
		t.Fatalf("read attrs: %v", err)
	}
	if len(atts) != 3 {
		t.Fatalf("attr count: %d", len(atts))
	}
	if got := atts["Title"][0].Value; got != "calibration run" {
		t.Fatalf("Title: %v", got)
	}
	if got := atts["Counts"][0].Value; got != int32(42) {
		t.Fatalf("Counts[0]: %v (%T)", got, got)
	}
	if got := atts["Counts"][1].Value; got != 3.5 {
		t.Fatalf("Counts[1]: %v (%T)", got, got)
	}
	notes := atts["Notes"][0]
	if notes.NumStrings != 2 {
		t.Fatalf("Notes num strings: %d", notes.NumStrings)
	}
	if !reflect.DeepEqual(notes.Value, []string{"first pass", "second pass"}) {
		t.Fatalf("Notes value: %v", notes.Value)
	}

	if _, err := r.AttGet("Counts", 7); err == nil {
		t.Fatal("expected error for missing entry")
	}
}

func TestVariableAttributes(t *testing.T) {
	t.Parallel()

	path := tempPath(t)
	w := newWriter(t, path, FileSpec{})
	if err := w.WriteVar(VarSpec{Name: "Temperature", DataType: DOUBLE, RecVary: true},
		map[string]any{"UNITS": "C", "VALIDMIN": -50.0}, []float64{20, 21}); err != nil {
		t.Fatalf("write Temperature: %v", err)
	}
	if err := w.WriteVariableAttrs(map[string]map[string]any{
		"LABLAXIS": {"Temperature": "Temp"},
	}); err != nil {
		t.Fatalf("variable attrs: %v", err)
	}
	closeWriter(t, w)

	r := openReader(t, path)
	atts, err := r.VarAttsGet("Temperature")
	if err != nil {
		t.Fatalf("read var attrs: %v", err)
	}
	if atts["UNITS"].Value != "C" {
		t.Fatalf("UNITS: %v", atts["UNITS"].Value)
	}
	if atts["VALIDMIN"].Value != -50.0 {
		t.Fatalf("VALIDMIN: %v", atts["VALIDMIN"].Value)
	}
	if atts["LABLAXIS"].Value != "Temp" {
		t.Fatalf("LABLAXIS: %v", atts["LABLAXIS"].Value)
	}

	globals, err := r.GlobalAttsGet()
	if err != nil {
		t.Fatalf("global attrs: %v", err)
	}
	if len(globals) != 0 {
		t.Fatalf("variable attrs leaked into global scope: %v", globals)
	}
}
