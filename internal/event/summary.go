package event

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"slices"
	"time"
)

const (
	InfoActive        = "active"
	InfoForcesArrival = "forces_arrival_at_scene"

	summaryTimeLayout = "2006-01-02 15:04"
)

// WriteSummary renders the report for one channel. Reports are listed by date
// time, then by name.
func WriteSummary(w io.Writer, channel string, events []Event, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b Event) int {
		if c := cmp.Compare(a.DateTime, b.DateTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	active, forces := 0, 0
	for _, e := range sorted {
		if e.Flag(InfoActive) {
			active++
		}
		if e.Flag(InfoForcesArrival) {
			forces++
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Channel %s\n", channel)
	fmt.Fprintf(bw, "Stats:\nTotal: %d\nActive: %d\nForces arrival at scene: %d\n\n", len(sorted), active, forces)
	fmt.Fprintf(bw, "Event Reports:\n\n")
	for i, e := range sorted {
		fmt.Fprintf(bw, "Report_%d:\n", i+1)
		fmt.Fprintf(bw, "\tcity: %s\n", e.City)
		fmt.Fprintf(bw, "\tdate time: %s\n", time.Unix(e.DateTime, 0).In(loc).Format(summaryTimeLayout))
		fmt.Fprintf(bw, "\tevent name: %s\n", e.Name)
		fmt.Fprintf(bw, "\tsummary: %s\n\n", e.Summary())
	}
	return bw.Flush()
}
