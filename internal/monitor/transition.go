package monitor

import "productchecker/internal/catalog"

// PreviousStock is the in-stock flag of the latest prior observation, a
// product that was never observed counts as out of stock.
func PreviousStock(latest catalog.Observation, found bool) bool {
	return found && latest.InStock
}

// IsRestock reports the out of stock -> in stock edge.
func IsRestock(previous bool, current catalog.Observation) bool {
	return !previous && current.InStock
}
