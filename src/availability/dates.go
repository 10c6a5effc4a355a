package availability

import (
	"fmt"
	"strings"
	"time"

	model "github.com/cowin-monitor/src/model"
)

// isoDateFormat is what HTML date inputs produce.
const isoDateFormat = "2006-01-02"

// FormatDate renders t the way the API expects it.
func FormatDate(t time.Time) string {
	return t.Format(model.DateFormat)
}

// ParseDate accepts DD-MM-YYYY or YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{model.DateFormat, isoDateFormat} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected DD-MM-YYYY", s)
}

// NormalizeDate parses s and formats it as DD-MM-YYYY.
func NormalizeDate(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return FormatDate(t), nil
}

// StepDate moves a DD-MM-YYYY date by days.
func StepDate(date string, days int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return FormatDate(t.AddDate(0, 0, days)), nil
}

// Tomorrow is the calendar day after now, in now's location.
func Tomorrow(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

// WeeklyDates returns weeks dates, seven days apart, starting at base.
func WeeklyDates(base time.Time, weeks int) []string {
	dates := make([]string, 0, weeks)
	for i := 0; i < weeks; i++ {
		dates = append(dates, FormatDate(base.AddDate(0, 0, i*daysPerWeek)))
	}
	return dates
}
