package monitor

import (
	"context"
	"errors"
	"fmt"

	"productchecker/internal/catalog"
	"productchecker/internal/components/assert"
	"productchecker/internal/extract"
)

var ErrUnsupportedRetailer = errors.New("unsupported retailer")

type ProductStore interface {
	GetAccount(ctx context.Context, username string) (catalog.Account, error)
	AddProduct(ctx context.Context, product catalog.NewProduct) (catalog.Product, error)
}

// Registrar adds products to the catalog, resolving their brand and model
// from a single fetch of the product page.
type Registrar struct {
	store    ProductStore
	fetcher  Fetcher
	registry extract.Registry
}

func NewRegistrar(store ProductStore, fetcher Fetcher, registry extract.Registry) Registrar {
	assert.NotNil(store, "store")
	assert.NotNil(fetcher, "fetcher")
	return Registrar{store: store, fetcher: fetcher, registry: registry}
}

func (r Registrar) unsupported(tag string) error {
	if suggestion, ok := r.registry.Suggest(tag); ok {
		return fmt.Errorf("%w: %q (did you mean %q?)", ErrUnsupportedRetailer, tag, suggestion)
	}
	return fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedRetailer, tag, r.registry.Tags())
}

// Register tracks url for the account under alias. The url must belong to a
// supported retailer and be reachable.
func (r Registrar) Register(ctx context.Context, username, alias, url string) (catalog.Product, error) {
	tag, err := extract.RetailerTag(url)
	if err != nil {
		return catalog.Product{}, err
	}
	if !r.registry.Supported(tag) {
		return catalog.Product{}, r.unsupported(tag)
	}

	account, err := r.store.GetAccount(ctx, username)
	if err != nil {
		return catalog.Product{}, err
	}

	page, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return catalog.Product{}, err
	}
	facts := r.registry.Extract(tag, page.Body)

	return r.store.AddProduct(ctx, catalog.NewProduct{
		AccountID: account.ID,
		Alias:     alias,
		Brand:     facts.Brand,
		Model:     facts.Model,
		Retailer:  tag,
		URL:       url,
	})
}
