package output

import "fmt"

// TruncationWarning describes a truncated result.
type TruncationWarning struct {
	Shown          int    `json:"shown"`
	Total          int    `json:"total"`
	Message        string `json:"message"`
	SuggestSummary bool   `json:"suggestSummary,omitempty"`
}

// Truncate returns at most limit items and a warning when items were dropped.
// A non-positive limit means DefaultMaxItems. The limit is capped at
// AbsoluteMaxItems.
func Truncate[T any](items []T, limit int) ([]T, *TruncationWarning) {
	limit = EffectiveLimit(limit, 0)
	total := len(items)
	if total <= limit {
		return items, nil
	}

	return items[:limit], &TruncationWarning{
		Shown:   limit,
		Total:   total,
		Message: fmt.Sprintf("Output truncated. Showing %d of %d items. Use namespace or a smaller context list for complete results.", limit, total),
	}
}

// TruncateContexts is Truncate for the context dimension.
func TruncateContexts[T any](contexts []T, limit int) ([]T, *TruncationWarning) {
	limit = EffectiveContextLimit(limit, 0)
	total := len(contexts)
	if total <= limit {
		return contexts, nil
	}

	return contexts[:limit], &TruncationWarning{
		Shown:   limit,
		Total:   total,
		Message: fmt.Sprintf("Context results truncated. Showing %d of %d contexts. Pass contexts to select specific ones.", limit, total),
	}
}

// EffectiveLimit combines a per-request limit with the configured one. The
// smaller positive value wins and the result never exceeds AbsoluteMaxItems.
func EffectiveLimit(requestLimit, configLimit int) int {
	return effective(requestLimit, configLimit, DefaultMaxItems, AbsoluteMaxItems)
}

// EffectiveContextLimit is EffectiveLimit for the number of contexts.
func EffectiveContextLimit(requestLimit, configLimit int) int {
	return effective(requestLimit, configLimit, DefaultMaxContexts, AbsoluteMaxContexts)
}

func effective(requested, configured, def, absolute int) int {
	limit := requested
	switch {
	case limit <= 0 && configured <= 0:
		limit = def
	case limit <= 0:
		limit = configured
	case configured > 0 && configured < limit:
		limit = configured
	}
	return min(limit, absolute)
}
