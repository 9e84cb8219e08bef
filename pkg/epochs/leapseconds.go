package epochs

import "sync"

// LeapTableLastUpdated is the date of the newest leap-second entry,
// encoded as yyyymmdd. The cdf writer records the same date in the GDR
// of every file it creates.
const LeapTableLastUpdated = 20170101

// leapRow is one entry of the compiled-in leap second table. Rows before
// 1972 model the rubber-second era: the effective offset is
// off + (JD - 2400000.5 - base) * drift.
type leapRow struct {
	year, month, day int
	off              float64
	base             float64
	drift            float64
}

// numEra1 is the number of rubber-second rows at the head of the table.
const numEra1 = 14

var leapTable = []leapRow{
	{1960, 1, 1, 1.4178180, 37300.0, 0.0012960},
	{1961, 1, 1, 1.4228180, 37300.0, 0.0012960},
	{1961, 8, 1, 1.3728180, 37300.0, 0.0012960},
	{1962, 1, 1, 1.8458580, 37665.0, 0.0011232},
	{1963, 11, 1, 1.9458580, 37665.0, 0.0011232},
	{1964, 1, 1, 3.2401300, 38761.0, 0.0012960},
	{1964, 4, 1, 3.3401300, 38761.0, 0.0012960},
	{1964, 9, 1, 3.4401300, 38761.0, 0.0012960},
	{1965, 1, 1, 3.5401300, 38761.0, 0.0012960},
	{1965, 3, 1, 3.6401300, 38761.0, 0.0012960},
	{1965, 7, 1, 3.7401300, 38761.0, 0.0012960},
	{1965, 9, 1, 3.8401300, 38761.0, 0.0012960},
	{1966, 1, 1, 4.3131700, 39126.0, 0.0025920},
	{1968, 2, 1, 4.2131700, 39126.0, 0.0025920},
	{1972, 1, 1, 10.0, 0, 0},
	{1972, 7, 1, 11.0, 0, 0},
	{1973, 1, 1, 12.0, 0, 0},
	{1974, 1, 1, 13.0, 0, 0},
	{1975, 1, 1, 14.0, 0, 0},
	{1976, 1, 1, 15.0, 0, 0},
	{1977, 1, 1, 16.0, 0, 0},
	{1978, 1, 1, 17.0, 0, 0},
	{1979, 1, 1, 18.0, 0, 0},
	{1980, 1, 1, 19.0, 0, 0},
	{1981, 7, 1, 20.0, 0, 0},
	{1982, 7, 1, 21.0, 0, 0},
	{1983, 7, 1, 22.0, 0, 0},
	{1985, 7, 1, 23.0, 0, 0},
	{1988, 1, 1, 24.0, 0, 0},
	{1990, 1, 1, 25.0, 0, 0},
	{1991, 1, 1, 26.0, 0, 0},
	{1992, 7, 1, 27.0, 0, 0},
	{1993, 7, 1, 28.0, 0, 0},
	{1994, 7, 1, 29.0, 0, 0},
	{1996, 1, 1, 30.0, 0, 0},
	{1997, 7, 1, 31.0, 0, 0},
	{1999, 1, 1, 32.0, 0, 0},
	{2006, 1, 1, 33.0, 0, 0},
	{2009, 1, 1, 34.0, 0, 0},
	{2012, 7, 1, 35.0, 0, 0},
	{2015, 7, 1, 36.0, 0, 0},
	{2017, 1, 1, 37.0, 0, 0},
}

var (
	nstOnce sync.Once
	nst     []int64

	staleOnce sync.Once
)

// leapSecondsFromYMD returns the TAI-UTC offset in effect on the given
// calendar date, including the pre-1972 drift terms.
func leapSecondsFromYMD(year, month, day int) float64 {
	j := -1
	m := 12*year + month
	for i := len(leapTable) - 1; i >= 0; i-- {
		if m >= 12*leapTable[i].year+leapTable[i].month {
			j = i
			break
		}
	}
	if j == -1 {
		return 0.0
	}
	da := leapTable[j].off
	if j < numEra1 {
		jda := julianDay(year, month, day)
		da += (float64(jda) - 2400000.5 - leapTable[j].base) * leapTable[j].drift
	}
	return da
}

// nanoSecondTable lazily builds the TT2000 value at which each post-1972
// table row takes effect. Rubber-second rows are pinned to the minimum
// TT2000 value, so every pre-1972 instant matches the last of them.
func nanoSecondTable() []int64 {
	nstOnce.Do(func() {
		nst = make([]int64, len(leapTable))
		for i := range leapTable {
			if i < numEra1 {
				nst[i] = int64(FilledTT2000)
				continue
			}
			r := leapTable[i]
			v, err := ComputeTT2000(Components{Year: r.year, Month: r.month, Day: r.day})
			if err != nil {
				nst[i] = int64(FilledTT2000)
				continue
			}
			nst[i] = int64(v)
		}
	})
	return nst
}

// leapSecondsFromJ2000 returns the whole-second TAI-UTC offset at the
// given TT2000 instant and whether the instant falls inside an inserted
// leap second (a UTC second numbered 60).
func leapSecondsFromJ2000(ns int64) (float64, bool) {
	table := nanoSecondTable()
	j := -1
	for i := len(table) - 1; i >= 0; i-- {
		if ns >= table[i] {
			j = i
			break
		}
	}
	inside := j >= numEra1-1 && j < len(table)-1 && ns+secInNanoSecs >= table[j+1]
	if j <= numEra1 {
		// Instants before 1972-07-01 resolve through the calendar-date path.
		return 0.0, inside
	}
	return leapTable[j].off, inside
}

// warnIfStale logs once per process when a conversion runs past the
// table's validity window.
func warnIfStale(year, month, day int) {
	last := leapTable[len(leapTable)-1]
	if 12*year+month <= 12*last.year+last.month {
		return
	}
	staleOnce.Do(func() {
		warn("leap second table may be stale for requested date",
			"date", fmt3(year, month, day),
			"table_last_updated", LeapTableLastUpdated)
	})
}

func fmt3(y, m, d int) string {
	return pad4(y) + "-" + pad2(m) + "-" + pad2(d)
}
