package availability

import (
	"fmt"
	"strings"

	model "github.com/cowin-monitor/src/model"
)

type FeeFilter int

const (
	AnyFee FeeFilter = iota
	OnlyFree
	OnlyPaid
)

func (f FeeFilter) String() string {
	switch f {
	case OnlyFree:
		return "free"
	case OnlyPaid:
		return "paid"
	default:
		return "any"
	}
}

func ParseFeeFilter(s string) (FeeFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "all":
		return AnyFee, nil
	case "free", "onlyfree":
		return OnlyFree, nil
	case "paid", "onlypaid":
		return OnlyPaid, nil
	default:
		return AnyFee, fmt.Errorf("unknown fee filter %q", s)
	}
}

// AgeFilter matches the lead session's minimum age tier.
type AgeFilter int

const (
	AnyAge AgeFilter = iota
	Only18
	Only45
)

func (a AgeFilter) String() string {
	switch a {
	case Only18:
		return "18+"
	case Only45:
		return "45+"
	default:
		return "any"
	}
}

func ParseAgeFilter(s string) (AgeFilter, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "+") {
	case "", "any", "all":
		return AnyAge, nil
	case "18":
		return Only18, nil
	case "45":
		return Only45, nil
	default:
		return AnyAge, fmt.Errorf("unknown age filter %q", s)
	}
}

func (a AgeFilter) limit() int {
	switch a {
	case Only18:
		return 18
	case Only45:
		return 45
	default:
		return 0
	}
}

// FilterState holds every display filter. The zero value filters nothing.
type FilterState struct {
	Fee           FeeFilter
	Age           AgeFilter
	Vaccine       string
	Search        string
	AvailableOnly bool
}

// Result is the displayed list and its counters.
type Result struct {
	Centers      []model.Center
	Available    int
	NotAvailable int
}

type predicate func(model.Center) bool

func (f FilterState) predicates(mode Mode) []predicate {
	var preds []predicate

	switch f.Fee {
	case OnlyFree:
		preds = append(preds, func(c model.Center) bool { return c.FeeType == model.FeeTypeFree })
	case OnlyPaid:
		preds = append(preds, func(c model.Center) bool { return c.FeeType == model.FeeTypePaid })
	}

	if limit := f.Age.limit(); limit != 0 {
		preds = append(preds, func(c model.Center) bool { return LeadSession(c).MinAgeLimit == limit })
	}

	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		preds = append(preds, func(c model.Center) bool {
			return strings.Contains(strings.ToLower(c.Name), search) ||
				strings.Contains(strings.ToLower(c.Pincode), search)
		})
	}

	if vaccine := strings.TrimSpace(f.Vaccine); vaccine != "" {
		preds = append(preds, func(c model.Center) bool { return strings.EqualFold(LeadSession(c).Vaccine, vaccine) })
	}

	if f.AvailableOnly {
		preds = append(preds, func(c model.Center) bool { return RepresentativeCapacity(c, mode) > 0 })
	}
	return preds
}

// ApplyFilters reduces dataset to the centers matching filters, sorted by
// name, and counts how many of them are available. The dataset is left
// untouched and the returned centers are copies.
func ApplyFilters(dataset Dataset, filters FilterState) Result {
	preds := filters.predicates(dataset.Mode)

	result := Result{Centers: make([]model.Center, 0, len(dataset.Centers))}
next:
	for _, c := range dataset.Centers {
		for _, keep := range preds {
			if !keep(c) {
				continue next
			}
		}
		result.Centers = append(result.Centers, c.Clone())
	}
	SortByName(result.Centers)

	for _, c := range result.Centers {
		if RepresentativeCapacity(c, dataset.Mode) > 0 {
			result.Available++
		} else {
			result.NotAvailable++
		}
	}
	return result
}
