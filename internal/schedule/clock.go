package schedule

import (
	"strconv"
	"strings"
)

const (
	// DefaultWindowStart is 08:00.
	DefaultWindowStart = 8 * 60
	// DefaultWindowLength covers 08:00-21:00.
	DefaultWindowLength = 13 * 60
)

// ParseClock converts "HH:MM" or "HH:MM:SS" (24-hour) into minutes since
// midnight. Seconds are validated and then dropped. field names the input
// in the returned *ParseError.
func ParseClock(field, s string) (int, error) {
	fail := &ParseError{Kind: KindInvalidTime, Record: -1, Field: field, Value: s}

	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fail
	}

	h, ok := clockField(parts[0], 1, 23)
	if !ok {
		return 0, fail
	}
	m, ok := clockField(parts[1], 2, 59)
	if !ok {
		return 0, fail
	}
	if len(parts) == 3 {
		if _, ok := clockField(parts[2], 2, 59); !ok {
			return 0, fail
		}
	}
	return h*60 + m, nil
}

// clockField parses an all-digit field of minDigits..2 digits within [0, max].
func clockField(s string, minDigits, max int) (int, bool) {
	if len(s) < minDigits || len(s) > 2 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > max {
		return 0, false
	}
	return n, true
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	h, m := minutes/60, minutes%60
	return twoDigits(h) + ":" + twoDigits(m)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// Window is the visible clock range of the grid, in minutes.
type Window struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// Offset returns minutes relative to the window start; negative before it.
func (w Window) Offset(minutesSinceMidnight int) int {
	return minutesSinceMidnight - w.Start
}

// ToFraction clamps minutes to [0, Length] and scales it to [0, 1].
func (w Window) ToFraction(minutes int) float64 {
	if w.Length <= 0 {
		return 0
	}
	if minutes < 0 {
		minutes = 0
	}
	if minutes > w.Length {
		minutes = w.Length
	}
	return float64(minutes) / float64(w.Length)
}

// End is the exclusive end of the window, minutes since midnight.
func (w Window) End() int {
	return w.Start + w.Length
}
