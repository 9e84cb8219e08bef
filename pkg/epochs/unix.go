package epochs

import (
	"math"
	"time"
)

// Unix conversions carry microsecond precision in a float64 second
// count. Finer sub-second detail held by Epoch16 or TT2000 values is
// truncated on the way out.

// Unix returns seconds since 1970-01-01T00:00:00 UTC. The fill
// sentinel maps to NaN.
func (e Epoch) Unix() float64 {
	if e.IsFill() {
		return math.NaN()
	}
	return float64(e.Time().UnixMicro()) / 1e6
}

// Unix returns seconds since 1970-01-01T00:00:00 UTC, truncated to
// microseconds. The fill sentinel maps to NaN.
func (e Epoch16) Unix() float64 {
	if e.IsFill() {
		return math.NaN()
	}
	return float64(e.Time().UnixMicro()) / 1e6
}

// Unix returns seconds since 1970-01-01T00:00:00 UTC, truncated to
// microseconds. Instants inside an inserted leap second collapse onto
// the following second. The fill sentinel maps to NaN.
func (t TT2000) Unix() float64 {
	if t == FilledTT2000 {
		return math.NaN()
	}
	return float64(t.Time().UnixMicro()) / 1e6
}

// unixComponents breaks a Unix second count into UTC components with
// microsecond precision.
func unixComponents(sec float64) Components {
	ut := time.UnixMicro(int64(math.Round(sec * 1e6))).UTC()
	c := Components{
		Year:   ut.Year(),
		Month:  int(ut.Month()),
		Day:    ut.Day(),
		Hour:   ut.Hour(),
		Minute: ut.Minute(),
		Second: ut.Second(),
	}
	nsec := ut.Nanosecond()
	c.Millisecond = nsec / 1000000
	c.Microsecond = nsec / 1000 % 1000
	return c
}

// UnixToEpoch converts a Unix second count to a CDF_EPOCH value.
// Sub-millisecond detail is dropped.
func UnixToEpoch(sec float64) (Epoch, error) {
	return ComputeEpoch(unixComponents(sec))
}

// UnixToEpoch16 converts a Unix second count to a CDF_EPOCH16 value
// with microsecond precision.
func UnixToEpoch16(sec float64) (Epoch16, error) {
	return ComputeEpoch16(unixComponents(sec))
}

// UnixToTT2000 converts a Unix second count to a CDF_TIME_TT2000
// value. Leap seconds cannot be named on the Unix scale, so inserted
// seconds are unreachable from this path.
func UnixToTT2000(sec float64) (TT2000, error) {
	return ComputeTT2000(unixComponents(sec))
}
