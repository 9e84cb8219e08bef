package cdf

import (
	"bytes"
	"errors"
	"os"
	"reflect"
	"testing"
)

func writeSeries(t *testing.T, path string, n int) {
	t.Helper()
	w := newWriter(t, path, FileSpec{})
	if err := w.WriteVar(VarSpec{Name: "Epoch", DataType: EPOCH, RecVary: true},
		nil, hourlyEpochs(t, n)); err != nil {
		t.Fatalf("write Epoch: %v", err)
	}
	temps := make([]float64, n)
	for i := range temps {
		temps[i] = 20.0 + float64(i)
	}
	if err := w.WriteVar(VarSpec{Name: "Temperature", DataType: DOUBLE, RecVary: true},
		map[string]any{"DEPEND_0": "Epoch"}, temps); err != nil {
		t.Fatalf("write Temperature: %v", err)
	}
	if err := w.WriteVar(VarSpec{Name: "Humidity", DataType: DOUBLE, RecVary: true},
		nil, temps); err != nil {
		t.Fatalf("write Humidity: %v", err)
	}
	closeWriter(t, w)
}

func TestRecordWindows(t *testing.T) {
	t.Parallel()

	path := tempPath(t)
	writeSeries(t, path, 8)
	r := openReader(t, path)

	cases := []struct {
		name        string
		first, last int
		wantFirst   int
		wantLast    int
		want        []float64
	}{
		{"interior", 2, 4, 2, 4, []float64{22, 23, 24}},
		{"clamp high", 5, 100, 5, 7, []float64{25, 26, 27}},
		{"clamp low", -3, 1, 0, 1, []float64{20, 21}},
		{"single", 6, 6, 6, 6, []float64{26}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.VarGet("Temperature", WithRecordRange(tc.first, tc.last))
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if got.FirstRecord != tc.wantFirst || got.LastRecord != tc.wantLast {
				t.Fatalf("window: [%d, %d], want [%d, %d]", got.FirstRecord, got.LastRecord, tc.wantFirst, tc.wantLast)
			}
			if got.NumRecords != len(tc.want) {
				t.Fatalf("records: %d, want %d", got.NumRecords, len(tc.want))
			}
			if !reflect.DeepEqual(got.Values, tc.want) {
				t.Fatalf("values: %v, want %v", got.Values, tc.want)
			}
		})
	}

	t.Run("range only", func(t *testing.T) {
		got, err := r.VarGet("Temperature", WithRecordRange(2, 4), RecordRangeOnly())
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if got.Values != nil {
			t.Fatalf("expected no values, got %v", got.Values)
		}
		if got.NumRecords != 3 || got.FirstRecord != 2 || got.LastRecord != 4 {
			t.Fatalf("window: %+v", got)
		}
	})

	t.Run("inverted", func(t *testing.T) {
		got, err := r.VarGet("Temperature", WithRecordRange(6, 3))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if got.NumRecords != 0 || got.Values != nil {
			t.Fatalf("expected empty result: %+v", got)
		}
	})
}

func TestSparseRecords(t *testing.T) {
	t.Parallel()

	path := tempPath(t)
	w := newWriter(t, path, FileSpec{})
	records := []int{0, 1, 5}
	data := []float64{1, 2, 3}
	if err := w.WriteVarSparse(VarSpec{
		Name:     "gaps_pad",
		DataType: DOUBLE,
		RecVary:  true,
		Sparse:   PadSparse,
		Pad:      99.0,
	}, nil, records, data); err != nil {
		t.Fatalf("write gaps_pad: %v", err)
	}
	if err := w.WriteVarSparse(VarSpec{
		Name:     "gaps_prev",
		DataType: DOUBLE,
		RecVary:  true,
		Sparse:   PrevSparse,
	}, nil, records, data); err != nil {
		t.Fatalf("write gaps_prev: %v", err)
	}
	closeWriter(t, w)

	r := openReader(t, path)

	inq, err := r.VarInq("gaps_pad")
	if err != nil {
		t.Fatalf("inquire: %v", err)
	}
	if inq.Sparse != PadSparse || inq.MaxRec != 5 {
		t.Fatalf("gaps_pad info: %+v", inq)
	}
	if inq.Pad != 99.0 {
		t.Fatalf("pad: %v", inq.Pad)
	}

	got, err := r.VarGet("gaps_pad")
	if err != nil {
		t.Fatalf("read gaps_pad: %v", err)
	}
	if got.NumRecords != 6 {
		t.Fatalf("records: %d", got.NumRecords)
	}
	if !reflect.DeepEqual(got.PhysicalRecords, []int{0, 1, 5}) {
		t.Fatalf("physical records: %v", got.PhysicalRecords)
	}
	if want := []float64{1, 2, 99, 99, 99, 3}; !reflect.DeepEqual(got.Values, want) {
		t.Fatalf("pad fill: %v, want %v", got.Values, want)
	}

	got, err = r.VarGet("gaps_prev")
	if err != nil {
		t.Fatalf("read gaps_prev: %v", err)
	}
	if want := []float64{1, 2, 2, 2, 2, 3}; !reflect.DeepEqual(got.Values, want) {
		t.Fatalf("prev fill: %v, want %v", got.Values, want)
	}

	got, err = r.VarGet("gaps_pad", WithRecordRange(2, 5))
	if err != nil {
		t.Fatalf("read window: %v", err)
	}
	if !reflect.DeepEqual(got.PhysicalRecords, []int{5}) {
		t.Fatalf("windowed physical records: %v", got.PhysicalRecords)
	}
	if want := []float64{99, 99, 99, 3}; !reflect.DeepEqual(got.Values, want) {
		t.Fatalf("windowed values: %v, want %v", got.Values, want)
	}
}

func TestTimeSelection(t *testing.T) {
	t.Parallel()

	path := tempPath(t)
	writeSeries(t, path, 10)
	r := openReader(t, path)

	got, err := r.VarGet("Temperature",
		WithTimeRange("2020-01-01T03:00:00.000", "2020-01-01T05:00:00.000"))
	if err != nil {
		t.Fatalf("time read: %v", err)
	}
	if got.FirstRecord != 3 || got.LastRecord != 5 {
		t.Fatalf("window: [%d, %d]", got.FirstRecord, got.LastRecord)
	}
	if want := []float64{23, 24, 25}; !reflect.DeepEqual(got.Values, want) {
		t.Fatalf("values: %v", got.Values)
	}

	// Humidity has no DEPEND_0, so the epoch variable must be named.
	if _, err := r.VarGet("Humidity", WithTimeRange("2020-01-01T03:00:00.000", nil)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound without DEPEND_0, got %v", err)
	}
	got, err = r.VarGet("Humidity",
		WithTimeRange("2020-01-01T08:00:00.000", nil), WithEpochVar("Epoch"))
	if err != nil {
		t.Fatalf("epoch var read: %v", err)
	}
	if got.FirstRecord != 8 || got.LastRecord != 9 {
		t.Fatalf("open-ended window: [%d, %d]", got.FirstRecord, got.LastRecord)
	}

	got, err = r.VarGet("Temperature", WithTimeRange("2021-01-01T00:00:00.000", nil))
	if err != nil {
		t.Fatalf("out-of-range read: %v", err)
	}
	if got.NumRecords != 0 {
		t.Fatalf("expected no records, got %d", got.NumRecords)
	}

	got, err = r.VarGet("Temperature",
		WithRecordRange(0, 1),
		WithTimeRange("2020-01-01T03:00:00.000", "2020-01-01T05:00:00.000"))
	if err != nil {
		t.Fatalf("combined read: %v", err)
	}
	if got.FirstRecord != 0 || got.LastRecord != 1 {
		t.Fatalf("record range should win: [%d, %d]", got.FirstRecord, got.LastRecord)
	}

	first, last, ok, err := r.EpochRange("Epoch", "2020-01-01T03:00:00.000", "2020-01-01T05:00:00.000")
	if err != nil {
		t.Fatalf("epoch range: %v", err)
	}
	if !ok || first != 3 || last != 5 {
		t.Fatalf("epoch range: [%d, %d] ok=%v", first, last, ok)
	}
	if _, _, ok, err = r.EpochRange("Epoch", "2021-01-01T00:00:00.000", nil); err != nil || ok {
		t.Fatalf("expected no match, ok=%v err=%v", ok, err)
	}
	if _, _, _, err = r.EpochRange("Temperature", nil, nil); !errors.Is(err, ErrBadSpec) {
		t.Fatalf("expected ErrBadSpec for non-epoch variable, got %v", err)
	}
}

func TestChecksumValidation(t *testing.T) {
	t.Parallel()

	const canary = "checksum-canary-0123456789"

	write := func(t *testing.T) string {
		path := tempPath(t)
		w := newWriter(t, path, FileSpec{Checksum: true})
		if err := w.WriteVar(VarSpec{Name: "marker", DataType: CHAR, RecVary: true},
			nil, []string{canary}); err != nil {
			t.Fatalf("write marker: %v", err)
		}
		closeWriter(t, w)
		return path
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		r := openReader(t, write(t))
		if !r.Info().Checksum {
			t.Fatal("expected checksum flag")
		}
		got, err := r.VarGet("marker")
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !reflect.DeepEqual(got.Values, []string{canary}) {
			t.Fatalf("values: %v", got.Values)
		}
	})

	t.Run("corrupted", func(t *testing.T) {
		t.Parallel()
		path := write(t)
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read file: %v", err)
		}
		idx := bytes.Index(raw, []byte(canary))
		if idx < 0 || idx >= len(raw)-16 {
			t.Fatalf("canary not found in payload")
		}
		raw[idx] ^= 0xFF
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}

		r := openReader(t, path)
		info := r.Info()
		if info.Version != "3.7.0" || len(info.ZVariables) != 1 {
			t.Fatalf("metadata should survive a bad checksum: %+v", info)
		}
		if _, err := r.VarGet("marker"); !errors.Is(err, ErrChecksum) {
			t.Fatalf("expected ErrChecksum, got %v", err)
		}
		if _, _, _, err := r.EpochRange("marker", nil, nil); !errors.Is(err, ErrChecksum) {
			t.Fatalf("expected ErrChecksum from EpochRange, got %v", err)
		}
	})
}

func TestOpenRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := tempPath(t)
	if err := os.WriteFile(path, []byte("this is not a cdf file at all"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(path); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}

	short := tempPath(t)
	if err := os.WriteFile(short, []byte{0xcd, 0xf3}, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(short); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic for short file, got %v", err)
	}
}

func TestLookupErrors(t *testing.T) {
	t.Parallel()

	path := tempPath(t)
	writeSeries(t, path, 3)
	r := openReader(t, path)

	if _, err := r.VarGet("Nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("VarGet: %v", err)
	}
	if _, err := r.VarInq("Nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("VarInq: %v", err)
	}
	if _, err := r.AttGet("Nope", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AttGet: %v", err)
	}
	if _, err := r.VarInqNum(99, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("VarInqNum: %v", err)
	}
}

func TestWriterErrors(t *testing.T) {
	t.Parallel()

	t.Run("duplicate name poisons", func(t *testing.T) {
		t.Parallel()
		w := newWriter(t, tempPath(t), FileSpec{})
		defer func() { _ = w.Close() }()
		if err := w.WriteVar(VarSpec{Name: "v", DataType: INT4, RecVary: true}, nil, []int32{1}); err != nil {
			t.Fatalf("first write: %v", err)
		}
		if err := w.WriteVar(VarSpec{Name: "v", DataType: INT4, RecVary: true}, nil, []int32{2}); !errors.Is(err, ErrExists) {
			t.Fatalf("expected ErrExists, got %v", err)
		}
		if err := w.WriteVar(VarSpec{Name: "w", DataType: INT4, RecVary: true}, nil, []int32{3}); !errors.Is(err, ErrClosed) {
			t.Fatalf("expected poisoned writer, got %v", err)
		}
	})

	t.Run("string overflow", func(t *testing.T) {
		t.Parallel()
		w := newWriter(t, tempPath(t), FileSpec{})
		defer func() { _ = w.Close() }()
		err := w.WriteVar(VarSpec{Name: "s", DataType: CHAR, NumElems: 3, RecVary: true}, nil, []string{"toolong"})
		if !errors.Is(err, ErrBadSpec) {
			t.Fatalf("expected ErrBadSpec, got %v", err)
		}
	})

	t.Run("sparse needs mode", func(t *testing.T) {
		t.Parallel()
		w := newWriter(t, tempPath(t), FileSpec{})
		defer func() { _ = w.Close() }()
		err := w.WriteVarSparse(VarSpec{Name: "s", DataType: DOUBLE, RecVary: true},
			nil, []int{0}, []float64{1})
		if !errors.Is(err, ErrBadSpec) {
			t.Fatalf("expected ErrBadSpec, got %v", err)
		}
	})

	t.Run("sparse count mismatch", func(t *testing.T) {
		t.Parallel()
		w := newWriter(t, tempPath(t), FileSpec{})
		defer func() { _ = w.Close() }()
		err := w.WriteVarSparse(VarSpec{Name: "s", DataType: DOUBLE, RecVary: true, Sparse: PadSparse},
			nil, []int{0, 4}, []float64{1})
		if !errors.Is(err, ErrBadSpec) {
			t.Fatalf("expected ErrBadSpec, got %v", err)
		}
	})

	t.Run("write after close", func(t *testing.T) {
		t.Parallel()
		w := newWriter(t, tempPath(t), FileSpec{})
		closeWriter(t, w)
		err := w.WriteVar(VarSpec{Name: "v", DataType: INT4, RecVary: true}, nil, []int32{1})
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	})

	t.Run("bad compression level", func(t *testing.T) {
		t.Parallel()
		if _, err := Create(tempPath(t), FileSpec{Compress: 12}); !errors.Is(err, ErrBadSpec) {
			t.Fatalf("expected ErrBadSpec, got %v", err)
		}
	})
}
