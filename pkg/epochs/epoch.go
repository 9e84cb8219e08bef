package epochs

import (
	"math"
	"time"
)

// ComputeEpoch converts UTC components to a CDF_EPOCH value. The fill
// components (9999-12-31T23:59:59.999) map to FillEpoch. When hour,
// minute and second are all zero the millisecond field is taken as
// milliseconds within the day.
func ComputeEpoch(c Components) (Epoch, error) {
	if c.Year == 9999 && c.Month == 12 && c.Day == 31 && c.Hour == 23 &&
		c.Minute == 59 && c.Second == 59 && c.Millisecond == 999 {
		return FillEpoch, nil
	}
	if c.Year < 0 || c.Year > 9999 {
		return 0, ErrBadComponents
	}
	days := daysSince0AD(c.Year, c.Month, c.Day)
	if days < 1 {
		return 0, ErrBadComponents
	}
	var msecInDay int
	if c.Hour == 0 && c.Minute == 0 && c.Second == 0 {
		msecInDay = c.Millisecond
	} else {
		msecInDay = 3600000*c.Hour + 60000*c.Minute + 1000*c.Second + c.Millisecond
	}
	return Epoch(86400000.0*float64(days) + float64(msecInDay)), nil
}

// Breakdown converts the value to UTC components. The fill sentinel
// breaks down to 9999-12-31T23:59:59.999.
func (e Epoch) Breakdown() Components {
	if e.IsFill() {
		return Components{Year: 9999, Month: 12, Day: 31, Hour: 23, Minute: 59,
			Second: 59, Millisecond: 999}
	}
	v := float64(e)
	esec := math.Abs(v) / 1000.0
	c := calcFromJulian(esec, 0)
	c.Millisecond = int(math.Mod(math.Abs(v), 1000.0))
	c.Microsecond, c.Nanosecond, c.Picosecond = 0, 0, 0
	return c
}

// Encode renders the value as yyyy-mm-ddThh:mm:ss.mmm.
func (e Epoch) Encode() string {
	c := e.Breakdown()
	return pad4(c.Year) + "-" + pad2(c.Month) + "-" + pad2(c.Day) +
		"T" + pad2(c.Hour) + ":" + pad2(c.Minute) + ":" + pad2(c.Second) +
		"." + pad3(c.Millisecond)
}

// EncodeLegacy renders the value as dd-Mon-yyyy hh:mm:ss.mmm.
func (e Epoch) EncodeLegacy() string {
	c := e.Breakdown()
	return pad2(c.Day) + "-" + monthToken[c.Month-1] + "-" + pad4(c.Year) +
		" " + pad2(c.Hour) + ":" + pad2(c.Minute) + ":" + pad2(c.Second) +
		"." + pad3(c.Millisecond)
}

// ParseEpoch parses either Encode or EncodeLegacy output.
func ParseEpoch(s string) (Epoch, error) {
	c, frac, err := parseStamp(s)
	if err != nil {
		return 0, err
	}
	ms, _, _, _, err := splitFraction(frac, 3)
	if err != nil {
		return 0, err
	}
	c.Millisecond = ms
	return ComputeEpoch(c)
}

// RangeEpoch returns the half-open index window [lo, hi) of values in
// the sorted slice that fall within [start, end].
func RangeEpoch(sorted []Epoch, start, end Epoch) (lo, hi int) {
	lo = searchIndex(len(sorted), func(i int) bool { return sorted[i] >= start })
	hi = searchIndex(len(sorted), func(i int) bool { return sorted[i] > end })
	return lo, hi
}

// Time converts the value to a time.Time in UTC with millisecond
// precision.
func (e Epoch) Time() time.Time {
	c := e.Breakdown()
	return c.Time()
}

// ComputeEpoch16 converts UTC components to a CDF_EPOCH16 value. The
// fill components map to the fill sentinel. Sub-second overflow or
// underflow carries into the seconds half.
func ComputeEpoch16(c Components) (Epoch16, error) {
	if c.Year == 9999 && c.Month == 12 && c.Day == 31 && c.Hour == 23 &&
		c.Minute == 59 && c.Second == 59 && c.Millisecond == 999 &&
		c.Microsecond == 999 && c.Nanosecond == 999 && c.Picosecond == 999 {
		return FillEpoch16(), nil
	}
	if c.Year < 0 || c.Year > 9999 {
		return Epoch16{}, ErrBadComponents
	}
	days := daysSince0AD(c.Year, c.Month, c.Day)
	if days < 0 {
		return Epoch16{}, ErrBadComponents
	}
	secs := 86400.0*float64(days) + 3600.0*float64(c.Hour) +
		60.0*float64(c.Minute) + float64(c.Second)
	pico := float64(c.Picosecond) + 1000.0*float64(c.Nanosecond) +
		1000000.0*float64(c.Microsecond) + 1000000000.0*float64(c.Millisecond)

	const psPerSec = 1.0e12
	if pico < 0.0 || pico >= psPerSec {
		carry := math.Floor(pico / psPerSec)
		secs += carry
		pico -= carry * psPerSec
	}
	if secs < 0.0 {
		return Epoch16{}, ErrBadComponents
	}
	return Epoch16{Seconds: secs, Picoseconds: pico}, nil
}

// Breakdown converts the value to UTC components. The fill sentinel
// breaks down to 9999-12-31T23:59:59.999999999999.
func (e Epoch16) Breakdown() Components {
	if e.IsFill() {
		return Components{Year: 9999, Month: 12, Day: 31, Hour: 23, Minute: 59,
			Second: 59, Millisecond: 999, Microsecond: 999, Nanosecond: 999,
			Picosecond: 999}
	}
	return calcFromJulian(math.Abs(e.Seconds), math.Abs(e.Picoseconds))
}

// Encode renders the value as yyyy-mm-ddThh:mm:ss.mmmuuunnnppp.
func (e Epoch16) Encode() string {
	c := e.Breakdown()
	return pad4(c.Year) + "-" + pad2(c.Month) + "-" + pad2(c.Day) +
		"T" + pad2(c.Hour) + ":" + pad2(c.Minute) + ":" + pad2(c.Second) +
		"." + pad3(c.Millisecond) + pad3(c.Microsecond) + pad3(c.Nanosecond) + pad3(c.Picosecond)
}

// EncodeLegacy renders the value as dd-Mon-yyyy hh:mm:ss.mmm.uuu.nnn.ppp.
func (e Epoch16) EncodeLegacy() string {
	c := e.Breakdown()
	return pad2(c.Day) + "-" + monthToken[c.Month-1] + "-" + pad4(c.Year) +
		" " + pad2(c.Hour) + ":" + pad2(c.Minute) + ":" + pad2(c.Second) +
		"." + pad3(c.Millisecond) + "." + pad3(c.Microsecond) +
		"." + pad3(c.Nanosecond) + "." + pad3(c.Picosecond)
}

// ParseEpoch16 parses either Encode or EncodeLegacy output.
func ParseEpoch16(s string) (Epoch16, error) {
	c, frac, err := parseStamp(s)
	if err != nil {
		return Epoch16{}, err
	}
	ms, us, ns, ps, err := splitFraction(frac, 12)
	if err != nil {
		return Epoch16{}, err
	}
	c.Millisecond, c.Microsecond, c.Nanosecond, c.Picosecond = ms, us, ns, ps
	return ComputeEpoch16(c)
}

// Less reports whether e sorts before other.
func (e Epoch16) Less(other Epoch16) bool {
	if e.Seconds != other.Seconds {
		return e.Seconds < other.Seconds
	}
	return e.Picoseconds < other.Picoseconds
}

// RangeEpoch16 returns the half-open index window [lo, hi) of values in
// the sorted slice that fall within [start, end].
func RangeEpoch16(sorted []Epoch16, start, end Epoch16) (lo, hi int) {
	lo = searchIndex(len(sorted), func(i int) bool { return !sorted[i].Less(start) })
	hi = searchIndex(len(sorted), func(i int) bool { return end.Less(sorted[i]) })
	return lo, hi
}

// Time converts the value to a time.Time in UTC with microsecond
// precision.
func (e Epoch16) Time() time.Time {
	c := e.Breakdown()
	c.Nanosecond, c.Picosecond = 0, 0
	return c.Time()
}

// Time converts the value to a time.Time in UTC. Instants inside an
// inserted leap second are normalized forward by the time package.
func (t TT2000) Time() time.Time {
	c := t.Breakdown()
	return c.Time()
}

// Time assembles the components into a time.Time in UTC.
func (c Components) Time() time.Time {
	nsec := c.Millisecond*1000000 + c.Microsecond*1000 + c.Nanosecond
	return time.Date(c.Year, time.Month(c.Month), c.Day,
		c.Hour, c.Minute, c.Second, nsec, time.UTC)
}

// calcFromJulian splits absolute seconds since year 0 plus picoseconds
// within the second into calendar components.
func calcFromJulian(esec, efra float64) Components {
	minuteCE := esec / 60.0
	hourCE := minuteCE / 60.0
	dayCE := hourCE / 24.0

	y, m, d := calendarFromDays(int64(dayCE))

	c := Components{Year: y, Month: m, Day: d}
	c.Hour = int(math.Mod(hourCE, 24.0))
	c.Minute = int(math.Mod(minuteCE, 60.0))
	c.Second = int(math.Mod(esec, 60.0))

	c.Picosecond = int(math.Mod(efra, 1000.0))
	efra /= 1000.0
	c.Nanosecond = int(math.Mod(efra, 1000.0))
	efra /= 1000.0
	c.Microsecond = int(math.Mod(efra, 1000.0))
	efra /= 1000.0
	c.Millisecond = int(efra)
	return c
}
