package epochs

// ComputeTT2000 converts UTC components to a TT2000 value.
//
// The fill components (9999-12-31T23:59:59.999999999) and the pad
// components (0000-01-01T00:00:00.000000000) map to their sentinels
// without leap-second correction. Dates outside 1707-09-22 to
// 2292-04-11 return ErrOutOfRange.
func ComputeTT2000(c Components) (TT2000, error) {
	if c.Month == 0 {
		c.Month = 1
	}
	if c.Year == 9999 && c.Month == 12 && c.Day == 31 && c.Hour == 23 &&
		c.Minute == 59 && c.Second == 59 && c.Millisecond == 999 &&
		c.Microsecond == 999 && c.Nanosecond == 999 {
		return FilledTT2000, nil
	}
	if c.Year == 0 && c.Month == 1 && c.Day == 1 && c.Hour == 0 &&
		c.Minute == 0 && c.Second == 0 && c.Millisecond == 0 &&
		c.Microsecond == 0 && c.Nanosecond == 0 {
		return PadTT2000, nil
	}

	jd := julianDay(c.Year, c.Month, c.Day)
	if jd < julianDayMin || jd > julianDayMax {
		return 0, ErrOutOfRange
	}
	warnIfStale(c.Year, c.Month, c.Day)

	leap := leapSecondsFromYMD(c.Year, c.Month, c.Day)

	subDay := int64(c.Hour)*hourInNanoSecs +
		int64(c.Minute)*minInNanoSecs +
		int64(c.Second)*secInNanoSecs +
		int64(c.Millisecond)*1000000 +
		int64(c.Microsecond)*1000 +
		int64(c.Nanosecond)

	ns := int64(jd-julianDateJ2000At12h)*dayInNanoSecs + subDay
	t2 := int64(leap * float64(secInNanoSecs))
	if ns < 0 {
		ns += t2
		ns += dTInNanoSecs
		ns -= t12hInNanoSecs
	} else {
		ns -= t12hInNanoSecs
		ns += t2
		ns += dTInNanoSecs
	}
	return TT2000(ns), nil
}

// Breakdown converts a TT2000 value back to UTC components, including
// the second-60 reconstruction for instants inside an inserted leap
// second. The sentinels break down to their defining components.
func (t TT2000) Breakdown() Components {
	if t == FilledTT2000 {
		return Components{Year: 9999, Month: 12, Day: 31, Hour: 23, Minute: 59,
			Second: 59, Millisecond: 999, Microsecond: 999, Nanosecond: 999}
	}
	if t == PadTT2000 {
		return Components{Month: 1, Day: 1}
	}

	ns := int64(t)
	leap, insideLeap := leapSecondsFromJ2000(ns)

	var secs, nans int64
	if ns > 0 {
		secs = ns / secInNanoSecs
		nans = ns % secInNanoSecs
		secs += 43200 - 32
		nans -= 184000000
	} else {
		adj := ns + t12hInNanoSecs - dTInNanoSecs
		secs = adj / secInNanoSecs
		nans = adj - secs*secInNanoSecs
	}
	if nans < 0 {
		nans += secInNanoSecs
		secs--
	}
	t2 := secs*secInNanoSecs + nans

	var c Components
	if leap > 0 {
		secs -= int64(leap)
		epoch := int64(j2000Since0AD12hSec) + secs
		if insideLeap {
			epoch--
		}
		c = componentsFromEpochSeconds(epoch)
		if insideLeap {
			c.Second++
		}
	} else {
		// Pre-1972: iterate because the offset depends on the calendar
		// date being solved for.
		epoch := int64(j2000Since0AD12hSec) + secs
		c = componentsFromEpochSeconds(epoch)
		for range 3 {
			c.Nanosecond = int(nans)
			got, err := ComputeTT2000(c)
			if err != nil || int64(got) == int64(t) {
				break
			}
			dat0 := leapSecondsFromYMD(c.Year, c.Month, c.Day)
			tmpx := t2 - int64(dat0*float64(secInNanoSecs))
			tmpy := tmpx / secInNanoSecs
			nans = tmpx - tmpy*secInNanoSecs
			if nans < 0 {
				nans += secInNanoSecs
				tmpy--
			}
			c = componentsFromEpochSeconds(tmpy + int64(j2000Since0AD12hSec))
		}
	}

	c.Millisecond = int(nans / 1000000)
	rem := nans - int64(c.Millisecond)*1000000
	c.Microsecond = int(rem / 1000)
	c.Nanosecond = int(rem - int64(c.Microsecond)*1000)
	return c
}

// componentsFromEpochSeconds splits seconds since year 0 into calendar
// date and time of day.
func componentsFromEpochSeconds(epoch int64) Components {
	minAD, secAD := epoch/60, epoch%60
	hourAD, minAD := minAD/60, minAD%60
	dayAD, hourAD := hourAD/24, hourAD%24
	y, m, d := calendarFromDays(dayAD)
	return Components{
		Year: y, Month: m, Day: d,
		Hour: int(hourAD), Minute: int(minAD), Second: int(secAD),
	}
}

// Encode renders the value as an ISO 8601 string with nanosecond
// precision: yyyy-mm-ddThh:mm:ss.mmmuuunnn.
func (t TT2000) Encode() string {
	c := t.Breakdown()
	return pad4(c.Year) + "-" + pad2(c.Month) + "-" + pad2(c.Day) +
		"T" + pad2(c.Hour) + ":" + pad2(c.Minute) + ":" + pad2(c.Second) +
		"." + pad3(c.Millisecond) + pad3(c.Microsecond) + pad3(c.Nanosecond)
}

// EncodeLegacy renders the value in the dd-Mon-yyyy form:
// dd-Mon-yyyy hh:mm:ss.mmm.uuu.nnn.
func (t TT2000) EncodeLegacy() string {
	c := t.Breakdown()
	return pad2(c.Day) + "-" + monthToken[c.Month-1] + "-" + pad4(c.Year) +
		" " + pad2(c.Hour) + ":" + pad2(c.Minute) + ":" + pad2(c.Second) +
		"." + pad3(c.Millisecond) + "." + pad3(c.Microsecond) + "." + pad3(c.Nanosecond)
}

// ParseTT2000 parses either Encode or EncodeLegacy output back to a
// TT2000 value.
func ParseTT2000(s string) (TT2000, error) {
	c, frac, err := parseStamp(s)
	if err != nil {
		return 0, err
	}
	ms, us, ns, _, err := splitFraction(frac, 9)
	if err != nil {
		return 0, err
	}
	c.Millisecond, c.Microsecond, c.Nanosecond = ms, us, ns
	return ComputeTT2000(c)
}

// RangeTT2000 returns the half-open index window [lo, hi) of values in
// the sorted slice that fall within [start, end].
func RangeTT2000(sorted []TT2000, start, end TT2000) (lo, hi int) {
	lo = searchIndex(len(sorted), func(i int) bool { return sorted[i] >= start })
	hi = searchIndex(len(sorted), func(i int) bool { return sorted[i] > end })
	return lo, hi
}

func searchIndex(n int, f func(int) bool) int {
	lo, hi := 0, n
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if f(mid) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}
