package model

import "fmt"

// LongTokenRange represents a token range (Start, End] on the ring.
// A range with Start >= End wraps around the end of the token space.
type LongTokenRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// NewLongTokenRange creates a token range
func NewLongTokenRange(start, end int64) LongTokenRange {
	return LongTokenRange{Start: start, End: end}
}

// IsWrapAround checks if the range crosses the end of the token space
func (r LongTokenRange) IsWrapAround() bool {
	return r.Start >= r.End
}

// Contains checks if the token falls inside the range
func (r LongTokenRange) Contains(token int64) bool {
	if r.IsWrapAround() {
		return token > r.Start || token <= r.End
	}
	return token > r.Start && token <= r.End
}

// String returns the range as (start,end]
func (r LongTokenRange) String() string {
	return fmt.Sprintf("(%d,%d]", r.Start, r.End)
}

// Host represents a replica node
type Host struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// String returns the host id and address
func (h Host) String() string {
	if h.Address == "" {
		return h.ID
	}
	return h.ID + "@" + h.Address
}
