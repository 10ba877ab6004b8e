package metrics

import "sort"

// ErrorCount is one row of the error breakdown.
type ErrorCount struct {
	Kind  string
	Count int
}

// FlattenErrors converts the kind->count map into rows sorted by descending
// count, then by kind for stability.
func FlattenErrors(errors map[string]int) []ErrorCount {
	if len(errors) == 0 {
		return nil
	}
	rows := make([]ErrorCount, 0, len(errors))
	for kind, count := range errors {
		rows = append(rows, ErrorCount{Kind: kind, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Kind < rows[j].Kind
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// SortedPayloads returns payload names ordered by descending total.
func SortedPayloads(payloads map[string]PayloadStats) []string {
	names := make([]string, 0, len(payloads))
	for name := range payloads {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if payloads[names[i]].Total == payloads[names[j]].Total {
			return names[i] < names[j]
		}
		return payloads[names[i]].Total > payloads[names[j]].Total
	})
	return names
}
