package availability

import (
	"context"

	model "github.com/cowin-monitor/src/model"
)

// Mode selects how a dataset was built and therefore how a center's
// availability is judged.
type Mode int

const (
	// SingleDay datasets come from one calendar lookup.
	SingleDay Mode = iota
	// ByCenter datasets merge several weekly lookups into one record per center.
	ByCenter
)

func (m Mode) String() string {
	switch m {
	case SingleDay:
		return "single-day"
	case ByCenter:
		return "by-center"
	default:
		return "unknown"
	}
}

// CenterSource supplies the raw centers of a district for the week starting
// at date (DD-MM-YYYY).
type CenterSource interface {
	Centers(ctx context.Context, districtID, date string) ([]model.Center, error)
}

// Dataset is the full, unfiltered result of one fetch action. It is replaced
// on every fetch and never modified afterwards.
type Dataset struct {
	Mode       Mode
	DistrictID string
	// Date is the requested day in SingleDay mode and the first projected day
	// (tomorrow) in ByCenter mode.
	Date    string
	RunID   string
	Centers []model.Center
}
