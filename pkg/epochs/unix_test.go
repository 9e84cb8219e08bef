package epochs

import (
	"math"
	"testing"
)

func TestUnixRoundTrip(t *testing.T) {
	t.Parallel()

	const sec = 1199145600.25 // 2008-01-01T00:00:00.250

	ep, err := UnixToEpoch(sec)
	if err != nil {
		t.Fatalf("UnixToEpoch: %v", err)
	}
	if got := ep.Encode(); got != "2008-01-01T00:00:00.250" {
		t.Fatalf("epoch encode = %q", got)
	}
	if got := ep.Unix(); got != sec {
		t.Fatalf("epoch unix = %v, want %v", got, sec)
	}

	e16, err := UnixToEpoch16(sec)
	if err != nil {
		t.Fatalf("UnixToEpoch16: %v", err)
	}
	if got := e16.Unix(); got != sec {
		t.Fatalf("epoch16 unix = %v, want %v", got, sec)
	}

	tt, err := UnixToTT2000(sec)
	if err != nil {
		t.Fatalf("UnixToTT2000: %v", err)
	}
	if got := tt.Unix(); got != sec {
		t.Fatalf("tt2000 unix = %v, want %v", got, sec)
	}
}

func TestUnixMicrosecondPrecision(t *testing.T) {
	t.Parallel()

	tt, err := ComputeTT2000(Components{
		Year: 2010, Month: 6, Day: 1, Hour: 12,
		Millisecond: 123, Microsecond: 456, Nanosecond: 789,
	})
	if err != nil {
		t.Fatalf("ComputeTT2000: %v", err)
	}
	if got := math.Floor(tt.Unix()); got != 1275393600 {
		t.Fatalf("whole seconds = %v, want 1275393600", got)
	}
	// Nanoseconds below the microsecond are truncated.
	micros := int64(math.Round(tt.Unix()*1e6)) % 1000000
	if micros != 123456 {
		t.Fatalf("microseconds = %d, want 123456", micros)
	}
}

func TestUnixFillSentinels(t *testing.T) {
	t.Parallel()

	if !math.IsNaN(FillEpoch.Unix()) {
		t.Fatal("FillEpoch.Unix not NaN")
	}
	if !math.IsNaN(FillEpoch16().Unix()) {
		t.Fatal("FillEpoch16.Unix not NaN")
	}
	if !math.IsNaN(FilledTT2000.Unix()) {
		t.Fatal("FilledTT2000.Unix not NaN")
	}
}
