package bot

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cowin-monitor/src/availability"
	"github.com/cowin-monitor/src/coordinator"
	model "github.com/cowin-monitor/src/model"
)

const (
	// centersPerMessage keeps short lists readable.
	centersPerMessage = 5
	// maxMessageRunes is Telegram's limit on the text of one message.
	maxMessageRunes = 4096
)

const noMatches = "No centers match the selected filters."

// RenderView turns a view into one summary message followed by the centers.
// A message holds at most centersPerMessage centers and maxMessageRunes
// characters; a center too long for one message is split at line breaks.
func RenderView(v coordinator.View) []string {
	messages := []string{renderSummary(v)}
	if v.NoMatches() {
		return append(messages, noMatches)
	}

	var (
		chunk []string
		size  int
		count int
	)
	flush := func() {
		if len(chunk) > 0 {
			messages = append(messages, strings.Join(chunk, "\n"))
		}
		chunk, size, count = nil, 0, 0
	}
	add := func(part string) {
		n := utf8.RuneCountInString(part)
		if len(chunk) > 0 && size+1+n > maxMessageRunes {
			flush()
		}
		if len(chunk) > 0 {
			size++
		}
		chunk = append(chunk, part)
		size += n
	}

	for _, c := range v.Centers {
		text := renderCenter(c, v.Mode)
		if count == centersPerMessage || (len(chunk) > 0 && size+2+utf8.RuneCountInString(text) > maxMessageRunes) {
			flush()
		}
		if len(chunk) > 0 {
			// Blank line between centers.
			add("")
		}
		for _, line := range splitLongLines(strings.Split(text, "\n")) {
			add(line)
		}
		count++
	}
	flush()
	return messages
}

// splitLongLines cuts any line longer than maxMessageRunes.
func splitLongLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		runes := []rune(line)
		for len(runes) > maxMessageRunes {
			out = append(out, string(runes[:maxMessageRunes]))
			runes = runes[maxMessageRunes:]
		}
		out = append(out, string(runes))
	}
	return out
}

func renderSummary(v coordinator.View) string {
	var b strings.Builder
	switch v.Mode {
	case availability.ByCenter:
		fmt.Fprintf(&b, "Projection for district %s from %s (%d weeks)\n", v.DistrictID, v.Date, availability.ProjectionWeeks)
	default:
		fmt.Fprintf(&b, "Availability for district %s on %s\n", v.DistrictID, v.Date)
	}
	fmt.Fprintf(&b, "Available: %d | Not available: %d\n", v.Available, v.NotAvailable)
	b.WriteString(renderFilters(v.Filters))
	if v.DayStepVisible {
		b.WriteString("\n/prev and /next move one day")
	}
	return b.String()
}

func renderFilters(f availability.FilterState) string {
	parts := []string{
		"fee " + f.Fee.String(),
		"age " + f.Age.String(),
	}
	if f.Vaccine != "" {
		parts = append(parts, "vaccine "+f.Vaccine)
	}
	if f.Search != "" {
		parts = append(parts, fmt.Sprintf("search %q", f.Search))
	}
	if f.AvailableOnly {
		parts = append(parts, "available only")
	}
	return "Filters: " + strings.Join(parts, ", ")
}

func renderCenter(c model.Center, mode availability.Mode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", c.Name, c.Pincode)
	if c.BlockName != "" || c.DistrictName != "" {
		fmt.Fprintf(&b, "   %s\n", strings.Trim(c.BlockName+", "+c.DistrictName, ", "))
	}
	fmt.Fprintf(&b, "   Fee: %s%s", c.FeeType, renderFees(c.VaccineFees))

	if mode == availability.ByCenter {
		fmt.Fprintf(&b, "\n   Total available: %d", availability.RepresentativeCapacity(c, mode))
		for _, s := range c.Sessions {
			fmt.Fprintf(&b, "\n   %s: %d (%s, %d+)", s.Date, s.AvailableCapacity, vaccineName(s.Vaccine), s.MinAgeLimit)
		}
		return b.String()
	}

	lead := availability.LeadSession(c)
	fmt.Fprintf(&b, "\n   Vaccine: %s | Age: %d+", vaccineName(lead.Vaccine), lead.MinAgeLimit)
	fmt.Fprintf(&b, "\n   Available: %d (dose 1: %d, dose 2: %d)", lead.AvailableCapacity, lead.AvailableCapacityDose1, lead.AvailableCapacityDose2)
	if c.From != "" && c.To != "" {
		fmt.Fprintf(&b, "\n   Hours: %s - %s", c.From, c.To)
	}
	return b.String()
}

func renderFees(fees map[string]string) string {
	if len(fees) == 0 {
		return ""
	}
	names := make([]string, 0, len(fees))
	for name := range fees {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s ₹%s", name, fees[name]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func vaccineName(v string) string {
	if v == "" {
		return "unspecified"
	}
	return v
}

func renderStates(states []model.State) string {
	lines := make([]string, 0, len(states)+1)
	lines = append(lines, "Pick a state with /state <id>:")
	for _, s := range states {
		lines = append(lines, fmt.Sprintf("%d  %s", s.StateID, s.StateName))
	}
	return strings.Join(lines, "\n")
}

func renderDistricts(districts []model.District) string {
	lines := make([]string, 0, len(districts)+1)
	lines = append(lines, "Pick a district with /district <id>:")
	for _, d := range districts {
		lines = append(lines, fmt.Sprintf("%d  %s", d.DistrictID, d.DistrictName))
	}
	return strings.Join(lines, "\n")
}
