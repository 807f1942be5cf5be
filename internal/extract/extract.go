// Package extract turns retailer product pages into structured facts.
//
// Every retailer is described by a Strategy: ordered fallback rules for each
// field. Extraction never fails, fields that cannot be found resolve to
// Unavailable (brand, model) or an invalid price.
package extract

import (
	"database/sql"

	"github.com/PuerkitoBio/goquery"
)

// Unavailable is the value of brand and model when no rule matched.
const Unavailable = "Unavailable"

type Facts struct {
	Brand   string
	Model   string
	InStock bool
	// Price is invalid when no price could be parsed, it is never zero in
	// that case.
	Price sql.NullFloat64
}

// Degraded lists the fields that resolved to their sentinel.
func (f Facts) Degraded() []string {
	var fields []string
	if f.Brand == Unavailable {
		fields = append(fields, "brand")
	}
	if f.Model == Unavailable {
		fields = append(fields, "model")
	}
	if !f.Price.Valid {
		fields = append(fields, "price")
	}
	return fields
}

func unavailableFacts() Facts {
	return Facts{
		Brand: Unavailable,
		Model: Unavailable,
	}
}

type Strategy struct {
	Brand []Rule
	Model []Rule
	// Price candidates are parsed with ParsePrice, the first parsable one wins.
	Price []Rule
	// AddToCart selectors, the product is in stock if any of them match.
	AddToCart []string
}

func (s Strategy) Extract(doc *goquery.Document) Facts {
	facts := unavailableFacts()
	if brand, ok := FirstOf(doc, s.Brand); ok {
		facts.Brand = brand
	}
	if model, ok := FirstOf(doc, s.Model); ok {
		facts.Model = model
	}
	facts.InStock = AnyPresent(doc, s.AddToCart)
	for _, rule := range s.Price {
		text, ok := rule(doc)
		if !ok {
			continue
		}
		if value, ok := ParsePrice(text); ok {
			facts.Price = sql.NullFloat64{Float64: value, Valid: true}
			break
		}
	}
	return facts
}

// unsupported is used for retailers without a strategy, it always yields
// sentinel facts.
var unsupported = Strategy{}
