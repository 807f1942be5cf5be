package monitor

import (
	"time"

	"productchecker/internal/catalog"
	"productchecker/internal/extract"
)

// Record builds the observation of product for the facts extracted at now.
// It does not persist anything.
func Record(product catalog.Product, facts extract.Facts, now time.Time) catalog.Observation {
	return catalog.Observation{
		ProductID: product.ID,
		InStock:   facts.InStock,
		Price:     facts.Price,
		CheckedAt: now,
	}
}
