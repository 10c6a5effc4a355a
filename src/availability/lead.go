package availability

import (
	model "github.com/cowin-monitor/src/model"
)

// LeadSession returns the session that represents c wherever a single value
// is shown or compared: fee, vaccine, age tier and single-day capacity. It is
// the first session. A center without sessions is treated as having one with
// no capacity, no vaccine and the default age tier.
func LeadSession(c model.Center) model.Session {
	if len(c.Sessions) == 0 {
		return model.Session{MinAgeLimit: model.DefaultMinAgeLimit}
	}
	return c.Sessions[0]
}

// RepresentativeCapacity is the lead session's capacity in SingleDay mode and
// the total over every merged session in ByCenter mode.
func RepresentativeCapacity(c model.Center, mode Mode) int {
	if mode != ByCenter {
		return LeadSession(c).AvailableCapacity
	}

	total := 0
	for _, s := range c.Sessions {
		total += s.AvailableCapacity
	}
	return total
}
