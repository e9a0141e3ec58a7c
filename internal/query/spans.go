package query

import (
	"cmp"
	"slices"

	"github.com/tinytelemetry/tailview/internal/model"
)

// ConsolidateSpans sorts spans by start and merges overlapping or touching
// highlight ranges. Replacement spans are kept as they are since their text
// cannot be merged. The input slice is not modified.
func ConsolidateSpans(spans []model.Span) []model.Span {
	if len(spans) == 0 {
		return nil
	}
	sorted := slices.Clone(spans)
	slices.SortStableFunc(sorted, func(a, b model.Span) int {
		return cmp.Compare(a.Start, b.Start)
	})

	out := make([]model.Span, 0, len(sorted))
	for _, s := range sorted {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Replacement == nil && s.Replacement == nil && s.Start <= last.End {
				last.End = max(last.End, s.End)
				continue
			}
		}
		out = append(out, s)
	}
	return out
}
