package account

// Grid is the grid-wide energy total.
// It equals the sum of every account's EnergyBalance and is only changed by the
// Store in the same step as the matching balance change.
type Grid struct {
	total int64
}

// Total returns the current aggregate.
func (g Grid) Total() int64 { return g.total }
