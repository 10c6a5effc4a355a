package availability

import (
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	model "github.com/cowin-monitor/src/model"
)

var collation = language.English

// SortByName orders centers by name with a locale-aware comparison. Centers
// sharing a name keep a fixed order by id so the result does not depend on
// the input order.
func SortByName(centers []model.Center) {
	// A Collator is not safe for concurrent use.
	col := collate.New(collation)
	sort.SliceStable(centers, func(i, j int) bool {
		if c := col.CompareString(centers[i].Name, centers[j].Name); c != 0 {
			return c < 0
		}
		return centers[i].CenterID < centers[j].CenterID
	})
}

// SortSessionsByDate orders sessions by calendar date. Sessions with an
// unreadable date go last in their original order.
func SortSessionsByDate(sessions []model.Session) {
	parsed := make(map[string]time.Time, len(sessions))
	for _, s := range sessions {
		if t, err := time.Parse(model.DateFormat, s.Date); err == nil {
			parsed[s.Date] = t
		}
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		ti, okI := parsed[sessions[i].Date]
		tj, okJ := parsed[sessions[j].Date]
		switch {
		case okI && okJ:
			return ti.Before(tj)
		case okI:
			return true
		default:
			return false
		}
	})
}
