// Package messages renders core views as chat text.
package messages

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"babylog/internal/models"
)

const (
	TryAgainLater = "Something went wrong, please try again later."
	NoGroup       = "You are not in a group yet. Send /start."
	NothingToUndo = "Nothing to undo."
	NameTaken     = "That group name is already taken."
	GroupNotFound = "No such group."

	timeLayout = "Jan 2 15:04"
)

// View renders a user view as of now.
func View(v models.UserView, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", displayName(v.Name), english.Plural(len(v.Members), "member", "members"))

	b.WriteString("\nBottles\n")
	entries := v.RecentEntries
	if n := v.Prefs.BottlesToShow; n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	if len(entries) == 0 {
		b.WriteString("  none yet\n")
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "  %s  %d ml  (%s)\n",
			models.LocalTime(e.At, v.HourOffset).Format(timeLayout), e.AmountML, humanize.RelTime(e.At, now, "ago", "from now"))
	}

	b.WriteString("\nDiapers\n")
	poops := v.RecentPoops
	if n := v.Prefs.PoopsToShow; n > 0 && len(poops) > n {
		poops = poops[:n]
	}
	if len(poops) == 0 {
		b.WriteString("  none yet\n")
	}
	for _, p := range poops {
		fmt.Fprintf(&b, "  %s  (%s)", models.LocalTime(p.At, v.HourOffset).Format(timeLayout), humanize.RelTime(p.At, now, "ago", "from now"))
		if p.Note != "" {
			fmt.Fprintf(&b, "  %s", p.Note)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// DayTotals aggregates one local calendar day.
type DayTotals struct {
	Day     string // 2006-01-02 in group local time
	Bottles int
	TotalML int
	Diapers int
	AvgML   int
}

// Totals groups stats by local day, newest day first.
func Totals(st models.UserStats) []DayTotals {
	byDay := map[string]*DayTotals{}
	get := func(t time.Time) *DayTotals {
		day := models.LocalTime(t, st.HourOffset).Format(time.DateOnly)
		d, ok := byDay[day]
		if !ok {
			d = &DayTotals{Day: day}
			byDay[day] = d
		}
		return d
	}
	for _, e := range st.Entries {
		d := get(e.At)
		d.Bottles++
		d.TotalML += e.AmountML
	}
	for _, p := range st.PoopEvents {
		get(p.At).Diapers++
	}

	res := make([]DayTotals, 0, len(byDay))
	for _, d := range byDay {
		if d.Bottles > 0 {
			d.AvgML = d.TotalML / d.Bottles
		}
		res = append(res, *d)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Day > res[j].Day })
	return res
}

// Stats renders per-day totals for the stats window.
func Stats(st models.UserStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Last %s\n", english.Plural(st.Days, "day", "days"))
	days := Totals(st)
	if len(days) == 0 {
		b.WriteString("  nothing logged\n")
		return b.String()
	}
	total := 0
	for _, d := range days {
		total += d.TotalML
		fmt.Fprintf(&b, "  %s  %s, %s ml (avg %d), %s\n",
			d.Day, english.Plural(d.Bottles, "bottle", "bottles"), humanize.Comma(int64(d.TotalML)), d.AvgML,
			english.Plural(d.Diapers, "diaper", "diapers"))
	}
	fmt.Fprintf(&b, "Total: %s ml\n", humanize.Comma(int64(total)))
	return b.String()
}

func displayName(name string) string {
	if models.IsPersonalName(name) {
		return "Personal log"
	}
	return name
}
