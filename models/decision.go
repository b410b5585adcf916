package models

// Reason explains which branch of the selection policy produced a pair.
type Reason string

const (
	// ReasonHighestVolume: no recent post history, the top pair by volume wins.
	ReasonHighestVolume Reason = "highest_volume"
	// ReasonRecentRotation: the highest-volume pair that was posted recently
	// but is not the very last post.
	ReasonRecentRotation Reason = "recent_rotation"
	// ReasonFallback: history existed but no pair qualified.
	ReasonFallback Reason = "fallback"
	// ReasonNone: the cycle degraded and produced no pair.
	ReasonNone Reason = "none"
)

// Decision is the outcome of one selection cycle.
type Decision struct {
	CycleID string   `json:"cycle_id"`
	Pair    string   `json:"pair"`
	Symbol  string   `json:"symbol,omitempty"`
	Base    string   `json:"base,omitempty"`
	Reason  Reason   `json:"reason"`
	Latest  string   `json:"latest,omitempty"`
	Ranked  []string `json:"ranked,omitempty"`
	Recent  []string `json:"recent,omitempty"`
}

// Empty reports whether the cycle produced nothing to post.
func (d Decision) Empty() bool {
	return d.Pair == ""
}
