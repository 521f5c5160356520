package timeline

import "sort"

// Assemble merges normalized events into chronologically ordered rows. The
// sort is stable, so events sharing a timestamp keep their normalization
// order and repeated runs on identical input produce identical grouping.
// Events with bit-identical timestamps collapse into one row; an empty input
// yields an empty timeline, not an error.
func Assemble(events []TimelineEvent) []TimelineRow {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]TimelineEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	rows := make([]TimelineRow, 0, len(sorted))
	for _, ev := range sorted {
		n := len(rows)
		if n > 0 && rows[n-1].Timestamp.Equal(ev.Timestamp) {
			rows[n-1].Events = append(rows[n-1].Events, ev)
			continue
		}
		rows = append(rows, TimelineRow{
			Timestamp: ev.Timestamp,
			Events:    []TimelineEvent{ev},
		})
	}
	return rows
}

// Flatten returns the events of the given rows in row order, used by the
// flat events listing endpoint.
func Flatten(rows []TimelineRow) []TimelineEvent {
	var out []TimelineEvent
	for _, row := range rows {
		out = append(out, row.Events...)
	}
	return out
}
