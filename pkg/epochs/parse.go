package epochs

import "strings"

// parseStamp splits a date/time string in either the ISO form
// yyyy-mm-ddThh:mm:ss.frac or the legacy form dd-Mon-yyyy hh:mm:ss.frac
// into calendar components plus the raw fraction digits. Dots inside a
// legacy fraction are stripped so the caller sees contiguous digits.
func parseStamp(s string) (Components, string, error) {
	var c Components
	date, clock, ok := strings.Cut(s, "T")
	legacy := false
	if !ok {
		date, clock, ok = strings.Cut(s, " ")
		if !ok {
			return c, "", ErrBadString
		}
		legacy = true
	}

	dp := strings.Split(date, "-")
	if len(dp) != 3 {
		return c, "", ErrBadString
	}
	var err error
	if legacy {
		if c.Day, err = atoi(dp[0]); err != nil {
			return c, "", err
		}
		if c.Month = monthFromToken(dp[1]); c.Month == 0 {
			return c, "", ErrBadString
		}
		if c.Year, err = atoi(dp[2]); err != nil {
			return c, "", err
		}
	} else {
		if c.Year, err = atoi(dp[0]); err != nil {
			return c, "", err
		}
		if c.Month, err = atoi(dp[1]); err != nil {
			return c, "", err
		}
		if c.Day, err = atoi(dp[2]); err != nil {
			return c, "", err
		}
	}

	hms, frac, _ := strings.Cut(clock, ".")
	tp := strings.Split(hms, ":")
	if len(tp) != 3 {
		return c, "", ErrBadString
	}
	if c.Hour, err = atoi(tp[0]); err != nil {
		return c, "", err
	}
	if c.Minute, err = atoi(tp[1]); err != nil {
		return c, "", err
	}
	if c.Second, err = atoi(tp[2]); err != nil {
		return c, "", err
	}

	frac = strings.ReplaceAll(frac, ".", "")
	return c, frac, nil
}

// splitFraction validates the fraction digits and scales them to the
// requested precision: 3 digits yield milliseconds only, 9 add micro
// and nanoseconds, 12 add picoseconds. Shorter input is right-padded
// with zeros.
func splitFraction(frac string, digits int) (ms, us, ns, ps int, err error) {
	if len(frac) > digits {
		return 0, 0, 0, 0, ErrBadString
	}
	for len(frac) < digits {
		frac += "0"
	}
	if ms, err = atoi(frac[0:3]); err != nil {
		return 0, 0, 0, 0, err
	}
	if digits >= 9 {
		if us, err = atoi(frac[3:6]); err != nil {
			return 0, 0, 0, 0, err
		}
		if ns, err = atoi(frac[6:9]); err != nil {
			return 0, 0, 0, 0, err
		}
	}
	if digits >= 12 {
		if ps, err = atoi(frac[9:12]); err != nil {
			return 0, 0, 0, 0, err
		}
	}
	return ms, us, ns, ps, nil
}

func atoi(s string) (int, error) {
	if s == "" {
		return 0, ErrBadString
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, ErrBadString
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

func monthFromToken(tok string) int {
	for i, m := range monthToken {
		if strings.EqualFold(tok, m) {
			return i + 1
		}
	}
	return 0
}
