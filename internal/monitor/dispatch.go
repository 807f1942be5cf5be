package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"productchecker/internal/catalog"
	"productchecker/internal/components/assert"
	"productchecker/internal/components/telemetry"
	"productchecker/internal/notify"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const report_dispatch_sent = "dispatch.sent"

type OwnerSource interface {
	GetOwner(ctx context.Context, productID int64) (catalog.NotificationPrefs, error)
}

var pricePrinter = message.NewPrinter(language.English)

// FormatPrice renders a price as "$1,234.56", or "Unknown" when absent.
func FormatPrice(price sql.NullFloat64) string {
	if !price.Valid {
		return "Unknown"
	}
	return pricePrinter.Sprintf("$%.2f", price.Float64)
}

// RestockEvent builds the notification sent when product comes back in stock.
func RestockEvent(product catalog.Product, obs catalog.Observation) notify.Event {
	return notify.Event{
		Title:       fmt.Sprintf("Product in Stock: %s", product.Alias),
		Description: product.Model,
		URL:         product.URL,
		Fields: []notify.Field{
			{Name: "Stock", Value: "Yes"},
			{Name: "Price", Value: FormatPrice(obs.Price)},
		},
	}
}

type Dispatcher struct {
	owners OwnerSource
	sink   notify.Sink
	tel    telemetry.API
}

func NewDispatcher(owners OwnerSource, sink notify.Sink, tel telemetry.API) *Dispatcher {
	assert.NotNil(owners, "owners")
	assert.NotNil(sink, "sink")
	assert.NotNil(tel, "telemetry")

	return &Dispatcher{
		owners: owners,
		sink:   sink,
		tel:    telemetry.NewScopedAPI("dispatcher", tel),
	}
}

// MaybeNotify sends a restock event for obs if it is the out of stock -> in
// stock edge and the owner of the product has notifications turned on. The
// boolean reports whether an event was delivered. Delivery errors are
// returned, not reported.
func (d *Dispatcher) MaybeNotify(ctx context.Context, product catalog.Product, obs catalog.Observation, previousInStock bool) (bool, error) {
	if !IsRestock(previousInStock, obs) {
		return false, nil
	}

	prefs, err := d.owners.GetOwner(ctx, product.ID)
	if err != nil {
		return false, fmt.Errorf("notification prefs: %w", err)
	}
	if !prefs.Active() {
		return false, nil
	}

	err = d.sink.Notify(ctx, prefs.Endpoint.String, RestockEvent(product, obs))
	if err != nil {
		return false, fmt.Errorf("notify: %w", err)
	}
	d.tel.ReportDebug(
		report_dispatch_sent,
		slog.Int64("product_id", product.ID),
		slog.String("retailer", product.Retailer),
	)
	return true, nil
}
