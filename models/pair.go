package models

import (
	"sort"
	"time"
)

// VolumeRecord is a single OHLCV row. Only the pair and its volume matter
// for ranking.
type VolumeRecord struct {
	PairSymbol string  `json:"pair_symbol" bson:"pair_symbol" db:"pair_symbol"`
	PairBase   string  `json:"pair_base" bson:"pair_base" db:"pair_base"`
	Volume     float64 `json:"volume" bson:"volume" db:"volume"`
}

// PostRecord is a prior bot post. Pair is already in SYMBOL-BASE form.
type PostRecord struct {
	Pair string    `json:"pair" bson:"pair" db:"pair"`
	Time time.Time `json:"time" bson:"time" db:"time"`
}

// PairSet is an unordered set of pair identifiers.
type PairSet map[string]struct{}

// NewPairSet builds a set from the given identifiers.
func NewPairSet(pairs ...string) PairSet {
	s := make(PairSet, len(pairs))
	for _, p := range pairs {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether pair is a member. A nil set has no members.
func (s PairSet) Has(pair string) bool {
	_, ok := s[pair]
	return ok
}

// Add inserts pair and reports whether it was new.
func (s PairSet) Add(pair string) bool {
	if _, ok := s[pair]; ok {
		return false
	}
	s[pair] = struct{}{}
	return true
}

// Sorted returns the members in lexical order, for logs and output.
func (s PairSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
