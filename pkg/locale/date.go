// pkg/locale/date.go
package locale

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the storage format of every date column
	DateLayout = "2006-01-02"
	// MonthLayout is the storage format of derived month columns
	MonthLayout = "2006-01"

	excelSerialMin = 1
	excelSerialMax = 60000
)

// Excel counts days from 1899-12-30 (the 1900 leap year bug shifts the epoch by one day)
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var (
	isoDatePattern   = regexp.MustCompile(`^\d{4}[-/]\d{2}[-/]\d{2}$`)
	monthYearPattern = regexp.MustCompile(`^(\d{2})/(\d{4})$`)
	brSlashPattern   = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	brDashPattern    = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)
)

// Permissive fallbacks, tried after every strict shape failed
var (
	monthFirstLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		time.RFC3339,
		"2006/01/02 15:04:05",
		"2006-1-2",
		"1/2/2006",
		"1/2/2006 15:04:05",
		"1/2/2006 15:04",
		"1-2-2006",
		"Jan 2, 2006",
		"2 Jan 2006",
		"January 2, 2006",
		"2 January 2006",
		"20060102",
	}

	dayFirstLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		time.RFC3339,
		"2006/01/02 15:04:05",
		"2006-1-2",
		"2/1/2006",
		"2/1/2006 15:04:05",
		"2/1/2006 15:04",
		"2-1-2006",
		"02/01/06",
		"02.01.2006",
		"2 Jan 2006",
		"2 January 2006",
		"20060102",
	}

	// Revenue report formats, tried strictly in this order
	legacyLayouts = []string{
		"2/1/2006",
		"2006-1-2",
		"2-1-2006",
		"2/1/06",
		"20060102",
	}
)

// ParseDate resolves a date cell by shape before falling back to a
// permissive month-first parse. ISO text is never read day-first.
func ParseDate(text string) (time.Time, bool) {
	return parseDate(text, monthFirstLayouts)
}

// ParseDateDayFirst is ParseDate with a day-first permissive fallback, used
// by reports exported with Brazilian short dates.
func ParseDateDayFirst(text string) (time.Time, bool) {
	return parseDate(text, dayFirstLayouts)
}

// ParseLegacyDate tries the revenue report layouts in order and then the
// general ParseDate rules.
func ParseLegacyDate(text string) (time.Time, bool) {
	s := strings.TrimSpace(text)
	if isMissingToken(s) {
		return time.Time{}, false
	}
	if t, ok := tryLayouts(s, legacyLayouts); ok {
		return t, true
	}
	return ParseDate(s)
}

// FormatDate renders a date in storage format
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatMonth renders the year and month of a date
func FormatMonth(t time.Time) string {
	return t.Format(MonthLayout)
}

func parseDate(text string, fallback []string) (time.Time, bool) {
	s := strings.TrimSpace(text)
	if isMissingToken(s) {
		return time.Time{}, false
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if v >= excelSerialMin && v <= excelSerialMax {
			return excelEpoch.AddDate(0, 0, int(math.Floor(v))), true
		}
	}

	switch {
	case isoDatePattern.MatchString(s):
		return parseExact(DateLayout, strings.ReplaceAll(s, "/", "-"))
	case monthYearPattern.MatchString(s):
		m := monthYearPattern.FindStringSubmatch(s)
		return parseExact(DateLayout, m[2]+"-"+m[1]+"-01")
	case brSlashPattern.MatchString(s):
		return parseExact("02/01/2006", s)
	case brDashPattern.MatchString(s):
		return parseExact("02-01-2006", s)
	}

	return tryLayouts(s, fallback)
}

func parseExact(layout, s string) (time.Time, bool) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, false
	}
	return truncateDay(t), true
}

func tryLayouts(s string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), true
		}
	}
	return time.Time{}, false
}

// truncateDay keeps the wall-clock calendar date and drops time and zone
func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func isMissingToken(s string) bool {
	switch strings.ToLower(s) {
	case "", "-", "nat", "nan", "none":
		return true
	}
	return false
}
