// Package epochs implements the three CDF time scales and conversions
// between raw values, calendar components, and encoded strings.
//
// CDF_EPOCH is milliseconds since 0000-01-01T00:00:00, carried as a
// float64. CDF_EPOCH16 splits the same origin into whole seconds and
// picoseconds within the second, two float64s. CDF_TIME_TT2000 is
// nanoseconds since J2000 on Terrestrial Time, an int64, and is the
// only scale that knows about leap seconds.
package epochs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/samcharles93/gocdf/internal/logger"
)

var (
	ErrBadComponents = errors.New("epochs: invalid date/time components")
	ErrOutOfRange    = errors.New("epochs: value outside representable range")
	ErrBadString     = errors.New("epochs: unparsable date/time string")
)

// Epoch is a CDF_EPOCH value: milliseconds since year 0.
type Epoch float64

// Epoch16 is a CDF_EPOCH16 value: seconds since year 0 plus picoseconds
// within the second. The two halves are stored as separate doubles on
// the wire.
type Epoch16 struct {
	Seconds     float64
	Picoseconds float64
}

// TT2000 is a CDF_TIME_TT2000 value: nanoseconds since
// 2000-01-01T12:00:00 TT, leap seconds included.
type TT2000 int64

// Components holds a broken-down UTC instant. Epoch uses fields down to
// Millisecond, TT2000 down to Nanosecond, Epoch16 down to Picosecond.
type Components struct {
	Year        int
	Month       int
	Day         int
	Hour        int
	Minute      int
	Second      int
	Millisecond int
	Microsecond int
	Nanosecond  int
	Picosecond  int
}

const (
	// FillEpoch is the sentinel stored for missing CDF_EPOCH values.
	FillEpoch Epoch = -1.0e31

	// FilledTT2000 is the sentinel stored for missing TT2000 values.
	FilledTT2000 TT2000 = -9223372036854775808

	// PadTT2000 is the default pad value for TT2000 variables.
	PadTT2000 TT2000 = -9223372036854775807
)

// FillEpoch16 reports the sentinel stored for missing CDF_EPOCH16 values.
func FillEpoch16() Epoch16 { return Epoch16{Seconds: -1.0e31, Picoseconds: -1.0e31} }

// IsFill reports whether e is the CDF_EPOCH fill sentinel.
func (e Epoch) IsFill() bool { return float64(e) == -1.0e31 }

// IsFill reports whether e is the CDF_EPOCH16 fill sentinel.
func (e Epoch16) IsFill() bool { return e.Seconds == -1.0e31 && e.Picoseconds == -1.0e31 }

const (
	julianDateJ2000At12h = 2451545
	j2000Since0AD12hSec  = 63113904000

	secInNanoSecs  = int64(1000000000)
	dTInNanoSecs   = int64(32184000000)
	dayInNanoSecs  = int64(86400000000000)
	hourInNanoSecs = int64(3600000000000)
	minInNanoSecs  = int64(60000000000)
	t12hInNanoSecs = int64(43200000000000)

	// Julian days for 1707-09-22 and 2292-04-11, the valid TT2000 span.
	julianDayMin = 2344793
	julianDayMax = 2558297
)

var monthToken = [12]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

var (
	sinkMu sync.RWMutex
	sink   logger.Logger
)

// SetLogger installs the sink used for leap-table staleness warnings.
// The zero state discards warnings.
func SetLogger(l logger.Logger) {
	sinkMu.Lock()
	sink = l
	sinkMu.Unlock()
}

func warn(msg string, args ...any) {
	sinkMu.RLock()
	l := sink
	sinkMu.RUnlock()
	if l != nil {
		l.Warn(msg, args...)
	}
}

// julianDay computes the Julian day number for a Gregorian calendar date.
func julianDay(y, m, d int) int {
	a1 := 7 * (y + (m+9)/12) / 4
	a2 := 3 * ((y+(m-9)/7)/100 + 1) / 4
	a3 := 275 * m / 9
	return 367*y - a1 - a2 + a3 + d + 1721029
}

// daysSince0AD converts a calendar date to days since year 0, honoring
// the month==0 day-of-year convention.
func daysSince0AD(y, m, d int) int {
	if m == 0 {
		return julianDay(y, 1, 1) + (d - 1) - 1721060
	}
	if m < 0 {
		y--
		m = 13 + m
	}
	return julianDay(y, m, d) - 1721060
}

// calendarFromDays inverts daysSince0AD-style day counts using the
// standard integer Julian calendar algorithm. day 0 is 0000-01-01.
func calendarFromDays(dayAD int64) (year, month, day int) {
	l := 1721060 + 68569 + dayAD
	n := 4 * l / 146097
	l = l - (146097*n+3)/4
	i := 4000 * (l + 1) / 1461001
	l = l - 1461*i/4 + 31
	j := 80 * l / 2447
	k := l - 2447*j/80
	l = j / 11
	j = j + 2 - 12*l
	i = 100*(n-49) + i + l
	return int(i), int(j), int(k)
}

func pad2(n int) string { return fmt.Sprintf("%02d", n) }
func pad3(n int) string { return fmt.Sprintf("%03d", n) }
func pad4(n int) string { return fmt.Sprintf("%04d", n) }
