package sd2

import (
	"strconv"
	"strings"
	"time"
)

// Date is the payload of a resolved temporal.date Object.
type Date struct {
	Year, Month, Day int
}

// ClockTime is the payload of a resolved temporal.time Object.
type ClockTime struct {
	Hour, Minute, Second, Nanosecond int
}

// Period is the payload of a resolved temporal.period Object, already
// normalized (weeks folded into days).
type Period struct {
	Years, Months, Days int
}

// DefaultTemporalRegistry returns a fresh registry with the five built-in
// temporal constructors registered, grounded on daios-ai-msg's builtin_time
// handlers: those call straight into the stdlib "time" package rather than
// a third-party date/time library, and none of the retrieved repos import
// one either, so this registry does the same (see DESIGN.md).
func DefaultTemporalRegistry() *ConstructorRegistry {
	reg := NewRegistry()
	reg.Register("date", QualifiedName{"temporal", "date"}, handleDate)
	reg.Register("time", QualifiedName{"temporal", "time"}, handleTime)
	reg.Register("instant", QualifiedName{"temporal", "instant"}, handleInstant)
	reg.Register("duration", QualifiedName{"temporal", "duration"}, handleDuration)
	reg.Register("period", QualifiedName{"temporal", "period"}, handlePeriod)
	return reg
}

// singleStringArg extracts the one required String argument every temporal
// handler takes, whether invoked as a positional or named constructor call.
func singleStringArg(ctx *ConstructorContext) (string, *Error) {
	var v Value
	switch {
	case len(ctx.Positional) == 1:
		v = ctx.Positional[0]
	case len(ctx.Named) == 1:
		v = ctx.Named[0].Value
	default:
		return "", ctx.Errorf(ErrTemporalParse, "%s expects a single string argument", ctx.InvokeName)
	}
	s, ok := v.(StringValue)
	if !ok {
		return "", ctx.Errorf(ErrTemporalParse, "%s expects a string argument", ctx.InvokeName)
	}
	return s.Value, nil
}

func isASCIIDigit(c byte) bool { return c >= '0' && c <= '9' }

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isASCIIDigit(s[i]) {
			return false
		}
	}
	return true
}

func daysInMonth(year, month int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	case 2:
		if isLeapYear(year) {
			return 29
		}
		return 28
	}
	return 0
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// parseCalendarDate validates and parses the YYYY-MM-DD shape used by both
// "date" and the date half of "instant".
func parseCalendarDate(s string) (Date, bool) {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return Date{}, false
	}
	if !allDigits(s[0:4]) || !allDigits(s[5:7]) || !allDigits(s[8:10]) {
		return Date{}, false
	}
	year, _ := strconv.Atoi(s[0:4])
	month, _ := strconv.Atoi(s[5:7])
	day, _ := strconv.Atoi(s[8:10])
	if month < 1 || month > 12 {
		return Date{}, false
	}
	if day < 1 || day > daysInMonth(year, month) {
		return Date{}, false
	}
	return Date{Year: year, Month: month, Day: day}, true
}

// parseClockTime validates and parses HH:MM:SS(.fraction), returning the
// fractional-digit count so callers can enforce the 9-digit ceiling (E3003)
// before treating an overlong fraction as a shape failure (E3001).
func parseClockTime(s string) (ClockTime, int, bool) {
	if len(s) < 8 || s[2] != ':' || s[5] != ':' {
		return ClockTime{}, 0, false
	}
	if !allDigits(s[0:2]) || !allDigits(s[3:5]) || !allDigits(s[6:8]) {
		return ClockTime{}, 0, false
	}
	hour, _ := strconv.Atoi(s[0:2])
	minute, _ := strconv.Atoi(s[3:5])
	second, _ := strconv.Atoi(s[6:8])

	fracDigits := 0
	nanos := 0
	rest := s[8:]
	if rest != "" {
		if rest[0] != '.' || len(rest) == 1 || !allDigits(rest[1:]) {
			return ClockTime{}, 0, false
		}
		frac := rest[1:]
		fracDigits = len(frac)
		if fracDigits <= 9 {
			padded := frac + strings.Repeat("0", 9-fracDigits)
			nanos, _ = strconv.Atoi(padded)
		}
	}
	if hour > 23 || minute > 59 || second > 59 {
		return ClockTime{}, fracDigits, false
	}
	return ClockTime{Hour: hour, Minute: minute, Second: second, Nanosecond: nanos}, fracDigits, true
}

func handleDate(ctx *ConstructorContext) (any, *Error) {
	s, err := singleStringArg(ctx)
	if err != nil {
		return nil, err
	}
	d, ok := parseCalendarDate(s)
	if !ok {
		return nil, ctx.Errorf(ErrTemporalParse, "invalid date %q", s)
	}
	return d, nil
}

func handleTime(ctx *ConstructorContext) (any, *Error) {
	s, err := singleStringArg(ctx)
	if err != nil {
		return nil, err
	}
	ct, fracDigits, ok := parseClockTime(s)
	if fracDigits > 9 {
		return nil, ctx.Errorf(ErrTemporalFraction, "fractional seconds in %q exceed 9 digits", s)
	}
	if !ok {
		return nil, ctx.Errorf(ErrTemporalParse, "invalid time %q", s)
	}
	return ct, nil
}

func handleInstant(ctx *ConstructorContext) (any, *Error) {
	s, err := singleStringArg(ctx)
	if err != nil {
		return nil, err
	}

	idx := strings.IndexByte(s, 'T')
	if idx < 0 {
		return nil, ctx.Errorf(ErrTemporalParse, "instant %q is missing the T separator", s)
	}
	datePart, rest := s[:idx], s[idx+1:]

	var offsetText string
	var timePart string
	switch {
	case strings.HasSuffix(rest, "Z"):
		timePart, offsetText = rest[:len(rest)-1], "Z"
	case len(rest) >= 6 && (rest[len(rest)-6] == '+' || rest[len(rest)-6] == '-'):
		timePart, offsetText = rest[:len(rest)-6], rest[len(rest)-6:]
	default:
		return nil, ctx.Errorf(ErrTemporalParse, "instant %q must end with Z or a numeric offset", s)
	}

	d, dok := parseCalendarDate(datePart)
	ct, fracDigits, tok := parseClockTime(timePart)
	if fracDigits > 9 {
		return nil, ctx.Errorf(ErrTemporalFraction, "fractional seconds in %q exceed 9 digits", s)
	}
	if !dok || !tok {
		return nil, ctx.Errorf(ErrTemporalParse, "invalid instant %q", s)
	}

	loc := time.UTC
	if offsetText != "Z" {
		sign := 1
		if offsetText[0] == '-' {
			sign = -1
		}
		if len(offsetText) != 6 || offsetText[3] != ':' || !allDigits(offsetText[1:3]) || !allDigits(offsetText[4:6]) {
			return nil, ctx.Errorf(ErrTemporalParse, "invalid offset in instant %q", s)
		}
		oh, _ := strconv.Atoi(offsetText[1:3])
		om, _ := strconv.Atoi(offsetText[4:6])
		loc = time.FixedZone(offsetText, sign*(oh*3600+om*60))
	}

	return time.Date(d.Year, time.Month(d.Month), d.Day, ct.Hour, ct.Minute, ct.Second, ct.Nanosecond, loc), nil
}

// scanUnit reads a run of digits followed by one unit letter starting at s[i].
// It returns the parsed value, the unit letter, the position past it, and
// whether a well-formed digits+letter pair was found at all.
func scanUnit(s string, i int) (value int, unit byte, next int, ok bool) {
	start := i
	for i < len(s) && isASCIIDigit(s[i]) {
		i++
	}
	if i == start || i >= len(s) {
		return 0, 0, start, false
	}
	v, _ := strconv.Atoi(s[start:i])
	return v, s[i], i + 1, true
}

func handleDuration(ctx *ConstructorContext) (any, *Error) {
	s, err := singleStringArg(ctx)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(s, "P") {
		return nil, ctx.Errorf(ErrTemporalParse, "duration %q must start with P", s)
	}
	rest := s[1:]

	datePart := rest
	timePart := ""
	hasTime := false
	if idx := strings.IndexByte(rest, 'T'); idx >= 0 {
		datePart, timePart, hasTime = rest[:idx], rest[idx+1:], true
	}

	found := false
	var days int64
	i := 0
	for i < len(datePart) {
		v, unit, next, ok := scanUnit(datePart, i)
		if !ok {
			return nil, ctx.Errorf(ErrTemporalParse, "malformed duration %q", s)
		}
		switch unit {
		case 'D':
			days = int64(v)
			found = true
		case 'Y', 'M', 'W':
			return nil, ctx.Errorf(ErrTemporalBadCalendar, "duration %q may not carry a %c component before T", s, unit)
		default:
			return nil, ctx.Errorf(ErrTemporalParse, "malformed duration %q", s)
		}
		i = next
	}

	var hours, minutes int64
	var seconds int64
	var nanos int64
	if hasTime {
		i = 0
		sawH, sawM, sawS := false, false, false
		for i < len(timePart) {
			start := i
			for i < len(timePart) && (isASCIIDigit(timePart[i]) || timePart[i] == '.') {
				i++
			}
			if i == start || i >= len(timePart) {
				return nil, ctx.Errorf(ErrTemporalParse, "malformed duration %q", s)
			}
			numText := timePart[start:i]
			unit := timePart[i]
			i++
			switch unit {
			case 'H':
				if sawH || sawM || sawS || strings.Contains(numText, ".") {
					return nil, ctx.Errorf(ErrTemporalParse, "malformed duration %q", s)
				}
				v, convErr := strconv.ParseInt(numText, 10, 64)
				if convErr != nil {
					return nil, ctx.Errorf(ErrTemporalParse, "malformed duration %q", s)
				}
				hours = v
				sawH, found = true, true
			case 'M':
				if sawM || sawS || strings.Contains(numText, ".") {
					return nil, ctx.Errorf(ErrTemporalParse, "malformed duration %q", s)
				}
				v, convErr := strconv.ParseInt(numText, 10, 64)
				if convErr != nil {
					return nil, ctx.Errorf(ErrTemporalParse, "malformed duration %q", s)
				}
				minutes = v
				sawM, found = true, true
			case 'S':
				if sawS {
					return nil, ctx.Errorf(ErrTemporalParse, "malformed duration %q", s)
				}
				whole := numText
				frac := ""
				if dot := strings.IndexByte(numText, '.'); dot >= 0 {
					whole, frac = numText[:dot], numText[dot+1:]
				}
				if whole == "" || !allDigits(whole) {
					return nil, ctx.Errorf(ErrTemporalParse, "malformed duration %q", s)
				}
				if len(frac) > 9 {
					return nil, ctx.Errorf(ErrTemporalParse, "fractional seconds in duration %q exceed 9 digits", s)
				}
				v, _ := strconv.ParseInt(whole, 10, 64)
				seconds = v
				if frac != "" {
					padded := frac + strings.Repeat("0", 9-len(frac))
					nanos, _ = strconv.ParseInt(padded, 10, 64)
				}
				sawS, found = true, true
			default:
				return nil, ctx.Errorf(ErrTemporalParse, "malformed duration %q", s)
			}
		}
	}

	if !found {
		return nil, ctx.Errorf(ErrTemporalEmptyUnit, "duration %q has no components", s)
	}

	total := days*86_400_000_000_000 +
		hours*3600_000_000_000 +
		minutes*60_000_000_000 +
		seconds*1_000_000_000 +
		nanos
	return time.Duration(total), nil
}

func handlePeriod(ctx *ConstructorContext) (any, *Error) {
	s, err := singleStringArg(ctx)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(s, "P") {
		return nil, ctx.Errorf(ErrTemporalParse, "period %q must start with P", s)
	}
	rest := s[1:]
	if strings.ContainsAny(rest, "TH") || strings.ContainsRune(rest, 'S') {
		return nil, ctx.Errorf(ErrTemporalBadClock, "period %q may not carry a time section", s)
	}

	const rankY, rankM, rankW, rankD = 0, 1, 2, 3
	lastRank := -1
	var years, months, weeks, days int
	found := false
	i := 0
	for i < len(rest) {
		v, unit, next, ok := scanUnit(rest, i)
		if !ok {
			return nil, ctx.Errorf(ErrTemporalParse, "malformed period %q", s)
		}
		var rank int
		switch unit {
		case 'Y':
			rank, years = rankY, v
		case 'M':
			rank, months = rankM, v
		case 'W':
			rank, weeks = rankW, v
		case 'D':
			rank, days = rankD, v
		default:
			return nil, ctx.Errorf(ErrTemporalParse, "malformed period %q", s)
		}
		if rank <= lastRank {
			return nil, ctx.Errorf(ErrTemporalParse, "period %q has components out of order", s)
		}
		lastRank = rank
		found = true
		i = next
	}

	if !found {
		return nil, ctx.Errorf(ErrTemporalEmptyUnit, "period %q has no components", s)
	}

	return Period{Years: years, Months: months, Days: days + weeks*7}, nil
}
