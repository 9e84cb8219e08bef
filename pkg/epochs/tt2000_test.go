package epochs

import (
	"testing"
	"time"
)

func TestComputeTT2000J2000(t *testing.T) {
	t.Parallel()

	got, err := ComputeTT2000(Components{Year: 2000, Month: 1, Day: 1, Hour: 12})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got != 64184000000 {
		t.Fatalf("got %d want 64184000000", got)
	}

	c := got.Breakdown()
	want := Components{Year: 2000, Month: 1, Day: 1, Hour: 12}
	if c != want {
		t.Fatalf("breakdown got %+v want %+v", c, want)
	}
}

func TestTT2000LeapSecond(t *testing.T) {
	t.Parallel()

	inside := Components{Year: 2016, Month: 12, Day: 31, Hour: 23, Minute: 59,
		Second: 60, Millisecond: 500}
	v, err := ComputeTT2000(inside)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	got := v.Breakdown()
	if got != inside {
		t.Fatalf("breakdown got %+v want %+v", got, inside)
	}
	if s := v.Encode(); s != "2016-12-31T23:59:60.500000000" {
		t.Fatalf("encode got %q", s)
	}

	before := Components{Year: 2016, Month: 12, Day: 31, Hour: 23, Minute: 59,
		Second: 59, Millisecond: 999, Microsecond: 999, Nanosecond: 999}
	bv, err := ComputeTT2000(before)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if bc := bv.Breakdown(); bc != before {
		t.Fatalf("breakdown got %+v want %+v", bc, before)
	}

	after := Components{Year: 2017, Month: 1, Day: 1}
	av, err := ComputeTT2000(after)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if av-v != 500000000 {
		t.Fatalf("leap second span got %d ns want 500000000", av-v)
	}
}

func TestTT2000Sentinels(t *testing.T) {
	t.Parallel()

	fill := Components{Year: 9999, Month: 12, Day: 31, Hour: 23, Minute: 59,
		Second: 59, Millisecond: 999, Microsecond: 999, Nanosecond: 999}
	v, err := ComputeTT2000(fill)
	if err != nil {
		t.Fatalf("compute fill: %v", err)
	}
	if v != FilledTT2000 {
		t.Fatalf("got %d want fill sentinel", v)
	}
	if c := v.Breakdown(); c != fill {
		t.Fatalf("fill breakdown got %+v", c)
	}

	pad := Components{Month: 1, Day: 1}
	v, err = ComputeTT2000(Components{Day: 1})
	if err != nil {
		t.Fatalf("compute pad: %v", err)
	}
	if v != PadTT2000 {
		t.Fatalf("got %d want pad sentinel", v)
	}
	if c := v.Breakdown(); c != pad {
		t.Fatalf("pad breakdown got %+v", c)
	}
}

func TestTT2000OutOfRange(t *testing.T) {
	t.Parallel()

	if _, err := ComputeTT2000(Components{Year: 1500, Month: 6, Day: 1}); err != ErrOutOfRange {
		t.Fatalf("got %v want ErrOutOfRange", err)
	}
	if _, err := ComputeTT2000(Components{Year: 2500, Month: 6, Day: 1}); err != ErrOutOfRange {
		t.Fatalf("got %v want ErrOutOfRange", err)
	}
}

func TestTT2000Pre1972(t *testing.T) {
	t.Parallel()

	c := Components{Year: 1970, Month: 6, Day: 15, Hour: 12}
	v, err := ComputeTT2000(c)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	got := v.Breakdown()
	if got.Year != 1970 || got.Month != 6 || got.Day != 15 ||
		got.Hour != 12 || got.Minute != 0 || got.Second != 0 {
		t.Fatalf("breakdown got %+v", got)
	}
}

func TestLeapSecondsFromYMD(t *testing.T) {
	t.Parallel()

	if off := leapSecondsFromYMD(2016, 12, 31); off != 36.0 {
		t.Fatalf("2016-12-31 got %v want 36", off)
	}
	if off := leapSecondsFromYMD(2017, 1, 1); off != 37.0 {
		t.Fatalf("2017-01-01 got %v want 37", off)
	}
	if off := leapSecondsFromYMD(1972, 1, 1); off != 10.0 {
		t.Fatalf("1972-01-01 got %v want 10", off)
	}
	if off := leapSecondsFromYMD(1959, 6, 1); off != 0.0 {
		t.Fatalf("1959-06-01 got %v want 0", off)
	}

	drift := leapSecondsFromYMD(1970, 6, 15)
	if drift < 8.3 || drift > 8.6 {
		t.Fatalf("1970-06-15 got %v want rubber-second offset near 8.4", drift)
	}
}

func TestParseTT2000(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want Components
	}{
		{
			name: "iso",
			in:   "2016-12-31T23:59:60.500000000",
			want: Components{Year: 2016, Month: 12, Day: 31, Hour: 23,
				Minute: 59, Second: 60, Millisecond: 500},
		},
		{
			name: "legacy",
			in:   "01-Jan-2000 12:00:00.000.000.000",
			want: Components{Year: 2000, Month: 1, Day: 1, Hour: 12},
		},
		{
			name: "short fraction",
			in:   "2010-03-04T05:06:07.89",
			want: Components{Year: 2010, Month: 3, Day: 4, Hour: 5,
				Minute: 6, Second: 7, Millisecond: 890},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTT2000(tc.in)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			want, err := ComputeTT2000(tc.want)
			if err != nil {
				t.Fatalf("compute: %v", err)
			}
			if got != want {
				t.Fatalf("got %d want %d", got, want)
			}
		})
	}

	for _, bad := range []string{"", "garbage", "2000-01-01", "2000-01-01T25:cc:00.0"} {
		if _, err := ParseTT2000(bad); err == nil {
			t.Fatalf("parse %q: want error", bad)
		}
	}
}

func TestTT2000EncodeRoundTrip(t *testing.T) {
	t.Parallel()

	v, err := ComputeTT2000(Components{Year: 2008, Month: 2, Day: 29, Hour: 13,
		Minute: 7, Second: 41, Millisecond: 123, Microsecond: 456, Nanosecond: 789})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if s := v.Encode(); s != "2008-02-29T13:07:41.123456789" {
		t.Fatalf("encode got %q", s)
	}
	if s := v.EncodeLegacy(); s != "29-Feb-2008 13:07:41.123.456.789" {
		t.Fatalf("legacy got %q", s)
	}
	back, err := ParseTT2000(v.Encode())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if back != v {
		t.Fatalf("round trip got %d want %d", back, v)
	}
	back, err = ParseTT2000(v.EncodeLegacy())
	if err != nil {
		t.Fatalf("parse legacy: %v", err)
	}
	if back != v {
		t.Fatalf("legacy round trip got %d want %d", back, v)
	}
}

func TestTT2000Time(t *testing.T) {
	t.Parallel()

	v, err := ComputeTT2000(Components{Year: 2016, Month: 12, Day: 31, Hour: 23,
		Minute: 59, Second: 60, Millisecond: 500})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	want := time.Date(2017, 1, 1, 0, 0, 0, 500000000, time.UTC)
	if got := v.Time(); !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestRangeTT2000(t *testing.T) {
	t.Parallel()

	mk := func(day int) TT2000 {
		v, err := ComputeTT2000(Components{Year: 2020, Month: 1, Day: day})
		if err != nil {
			t.Fatalf("compute: %v", err)
		}
		return v
	}
	sorted := []TT2000{mk(1), mk(2), mk(3), mk(4), mk(5)}

	lo, hi := RangeTT2000(sorted, mk(2), mk(4))
	if lo != 1 || hi != 4 {
		t.Fatalf("got [%d,%d) want [1,4)", lo, hi)
	}
	lo, hi = RangeTT2000(sorted, mk(6), mk(9))
	if lo != 5 || hi != 5 {
		t.Fatalf("empty window got [%d,%d)", lo, hi)
	}
}
