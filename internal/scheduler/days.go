package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/inrcare/backend/internal/store"
)

var dayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// weekdayFromToken resolves one day token: a lowercase English weekday name
// or a digit 1-7 with 1=saturday, matching the app's Saturday-first week.
func weekdayFromToken(tok string) (time.Weekday, bool) {
	if wd, ok := dayNames[tok]; ok {
		return wd, true
	}
	if n, err := strconv.Atoi(tok); err == nil && n >= 1 && n <= 7 {
		return time.Weekday((n + 5) % 7), true
	}
	return 0, false
}

// MatchesDay reports whether the comma-joined day set contains today.
// The sentinel token "everyday" matches any weekday; unknown tokens are
// ignored rather than failing the whole set.
func MatchesDay(days string, today time.Weekday) bool {
	for _, tok := range strings.Split(days, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		if tok == store.EveryDay {
			return true
		}
		if wd, ok := weekdayFromToken(tok); ok && wd == today {
			return true
		}
	}
	return false
}

// ParseClock converts a well-formed "HH:MM" into minutes since midnight.
// The format is strict: exactly two digits, a colon, two digits.
// time.Parse is too lenient here (it accepts "8:00").
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("malformed reminder time %q", s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("malformed reminder time %q", s)
		}
	}
	hh, _ := strconv.Atoi(s[:2])
	mm, _ := strconv.Atoi(s[3:])
	if hh > 23 || mm > 59 {
		return 0, fmt.Errorf("reminder time %q out of range", s)
	}
	return hh*60 + mm, nil
}
