// Package monitor runs the product monitoring loop: every pass fetches each
// tracked product, records what was extracted and notifies owners of
// products that came back in stock.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"productchecker/internal/catalog"
	"productchecker/internal/components/assert"
	"productchecker/internal/components/chrono"
	"productchecker/internal/components/telemetry"
	"productchecker/internal/extract"
	"productchecker/internal/fetcher"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	report_pass_list          = "pass.list-products"
	report_pass_frequency     = "pass.frequency"
	report_product_fetch      = "product.fetch"
	report_product_degraded   = "product.extract-degraded"
	report_product_record     = "product.record"
	report_product_notify     = "product.notify"
	report_product_panic      = "product.panic"
	report_pass_observations  = "pass.observations"
	report_pass_notifications = "pass.notifications"
)

const DefaultFrequency = 60 * time.Second

type Catalog interface {
	OwnerSource
	ListDistinctProducts(ctx context.Context) ([]catalog.Product, error)
	RecordObservation(ctx context.Context, obs catalog.Observation) (catalog.Recorded, error)
	GetCheckFrequency(ctx context.Context) (time.Duration, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetcher.Page, error)
}

type Extractor interface {
	Extract(tag string, body []byte) extract.Facts
}

// Notifier decides whether a freshly recorded observation is worth a
// notification and sends it.
type Notifier interface {
	MaybeNotify(ctx context.Context, product catalog.Product, obs catalog.Observation, previousInStock bool) (bool, error)
}

type Options struct {
	// DefaultFrequency is used until a valid frequency has been read from
	// the catalog.
	DefaultFrequency time.Duration
}

// PassReport summarizes a single pass over every product.
type PassReport struct {
	ID        string
	Started   time.Time
	Duration  time.Duration
	Frequency time.Duration

	Products       int
	Recorded       int
	FetchFailures  int
	StoreFailures  int
	Notified       int
	NotifyFailures int
	// Panics counts products whose pipeline panicked.
	Panics int
	// Interrupted is set when the context ended the pass early.
	Interrupted bool
}

type metrics struct {
	observations  metric.Int64Counter
	fetchFailures metric.Int64Counter
	notifications metric.Int64Counter
	passDuration  metric.Float64Histogram
}

func newMetrics() metrics {
	meter := otel.Meter("productchecker/internal/monitor")
	observations, _ := meter.Int64Counter("observations_recorded")
	fetchFailures, _ := meter.Int64Counter("fetch_failures")
	notifications, _ := meter.Int64Counter("notifications_sent")
	passDuration, _ := meter.Float64Histogram("pass_duration", metric.WithUnit("s"))
	return metrics{
		observations:  observations,
		fetchFailures: fetchFailures,
		notifications: notifications,
		passDuration:  passDuration,
	}
}

type Scheduler struct {
	catalog    Catalog
	fetcher    Fetcher
	extractor  Extractor
	dispatcher Notifier
	time       chrono.TimeAPI
	tel        telemetry.API
	metrics    metrics

	defaultFrequency time.Duration
	lastFrequency    time.Duration
}

func NewScheduler(
	opts Options,
	catalog Catalog,
	fetcher Fetcher,
	extractor Extractor,
	dispatcher Notifier,
	time chrono.TimeAPI,
	tel telemetry.API,
) *Scheduler {
	assert.NotNil(catalog, "catalog")
	assert.NotNil(fetcher, "fetcher")
	assert.NotNil(extractor, "extractor")
	assert.NotNil(dispatcher, "dispatcher")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "telemetry")

	if opts.DefaultFrequency <= 0 {
		opts.DefaultFrequency = DefaultFrequency
	}

	return &Scheduler{
		catalog:          catalog,
		fetcher:          fetcher,
		extractor:        extractor,
		dispatcher:       dispatcher,
		time:             time,
		tel:              telemetry.NewScopedAPI("scheduler", tel),
		metrics:          newMetrics(),
		defaultFrequency: opts.DefaultFrequency,
	}
}

// frequency reads the check frequency, falling back to the last value read
// successfully and then to the default.
func (s *Scheduler) frequency(ctx context.Context) time.Duration {
	freq, err := s.catalog.GetCheckFrequency(ctx)
	if err == nil {
		s.lastFrequency = freq
		return freq
	}

	fallback := s.defaultFrequency
	if s.lastFrequency > 0 {
		fallback = s.lastFrequency
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		s.tel.ReportWarning(report_pass_frequency, err, slog.Duration("fallback", fallback))
	}
	return fallback
}

// Delay is how long to wait after a pass that took elapsed before starting
// the next one.
func Delay(frequency, elapsed time.Duration) time.Duration {
	return max(0, frequency-elapsed)
}

func productAttrs(report *PassReport, p catalog.Product) []any {
	return []any{
		slog.String("pass_id", report.ID),
		slog.Int64("product_id", p.ID),
		slog.String("retailer", p.Retailer),
	}
}

// checkProduct runs fetch -> extract -> record -> notify for one product.
func (s *Scheduler) checkProduct(ctx context.Context, product catalog.Product, report *PassReport) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		report.Panics++
		s.tel.ReportBroken(
			report_product_panic,
			append(productAttrs(report, product), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))...,
		)
	}()

	page, err := s.fetcher.Fetch(ctx, product.URL)
	if err != nil {
		report.FetchFailures++
		s.metrics.fetchFailures.Add(ctx, 1)
		s.tel.ReportWarning(report_product_fetch, append(productAttrs(report, product), err)...)
		return
	}

	facts := s.extractor.Extract(product.Retailer, page.Body)
	if degraded := facts.Degraded(); len(degraded) > 0 {
		s.tel.ReportWarning(
			report_product_degraded,
			append(
				productAttrs(report, product),
				slog.Any("fields", degraded),
				slog.Int("status", page.StatusCode),
			)...,
		)
	}

	recorded, err := s.catalog.RecordObservation(ctx, Record(product, facts, s.time.Now()))
	if err != nil {
		report.StoreFailures++
		s.tel.ReportBroken(report_product_record, append(productAttrs(report, product), err)...)
		return
	}
	report.Recorded++
	s.metrics.observations.Add(ctx, 1)

	previous := PreviousStock(recorded.Previous, recorded.HadPrevious)
	sent, err := s.dispatcher.MaybeNotify(ctx, product, recorded.Observation, previous)
	if err != nil {
		report.NotifyFailures++
		s.tel.ReportWarning(report_product_notify, append(productAttrs(report, product), err)...)
		return
	}
	if sent {
		report.Notified++
		s.metrics.notifications.Add(ctx, 1)
	}
}

func passID() string {
	id, err := random.String(8)
	if err != nil {
		return "unknown"
	}
	return id
}

// RunPass checks every product once, sequentially. A failure on one product
// never stops the pass, cancelling ctx stops it before the next product.
func (s *Scheduler) RunPass(ctx context.Context) PassReport {
	report := PassReport{
		ID:        passID(),
		Started:   s.time.Now(),
		Frequency: s.frequency(ctx),
	}
	products, err := s.catalog.ListDistinctProducts(ctx)
	if err != nil {
		s.tel.ReportBroken(report_pass_list, err, slog.String("pass_id", report.ID))
	}
	report.Products = len(products)

	for _, product := range products {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}
		s.checkProduct(ctx, product, &report)
	}

	report.Duration = s.time.Now().Sub(report.Started)
	s.metrics.passDuration.Record(ctx, report.Duration.Seconds())
	s.tel.ReportCount(report_pass_observations, int64(report.Recorded))
	s.tel.ReportCount(report_pass_notifications, int64(report.Notified))
	s.tel.ReportDebug(
		"pass finished",
		slog.String("pass_id", report.ID),
		slog.Int("products", report.Products),
		slog.Int("fetch_failures", report.FetchFailures),
		slog.Int("store_failures", report.StoreFailures),
		slog.Int("notify_failures", report.NotifyFailures),
		slog.Int("panics", report.Panics),
		slog.Duration("duration", report.Duration),
	)
	return report
}

// Run starts a pass immediately and then keeps passes `frequency` apart
// (measured start to start) until ctx is cancelled. Passes never overlap,
// a pass that takes longer than the frequency is followed by the next one
// right away.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		report := s.RunPass(ctx)
		if ctx.Err() != nil {
			return nil
		}
		err := s.time.Sleep(ctx, Delay(report.Frequency, report.Duration))
		if err != nil {
			return nil
		}
	}
}
