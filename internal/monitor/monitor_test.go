package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"productchecker/internal/catalog"
	"productchecker/internal/components/chrono"
	"productchecker/internal/components/db"
	"productchecker/internal/components/telemetry"
	"productchecker/internal/extract"
	"productchecker/internal/fetcher"
	"productchecker/internal/notify"
	"productchecker/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const webhook = "https://discord.com/api/webhooks/1/abc"

func bestbuyPage(inStock bool, price string) string {
	button := ""
	if inStock {
		button = `<button class="btn btn-primary btn-lg btn-block btn-leading-ficon add-to-cart-button">Add to Cart</button>`
	}
	priceDiv := ""
	if price != "" {
		priceDiv = fmt.Sprintf(`<div class="priceView-hero-price priceView-customer-price"><span>%s</span></div>`, price)
	}
	return fmt.Sprintf(`<html><body>
<a class="btn btn-link v-medium btn-brand-link">Sony</a>
<h1 class="heading-5 v-fw-regular">Sony - 65" Class BRAVIA XR</h1>
%s
%s
</body></html>`, priceDiv, button)
}

type fakeResponse struct {
	body string
	err  error
}

type fakeFetcher struct {
	mutex     sync.Mutex
	responses map[string][]fakeResponse
	last      map[string]fakeResponse
	calls     []string
	callTimes []time.Time

	clock *chrono.FakeTime
	// took is added to the clock on every fetch
	took    time.Duration
	onFetch func(url string)
	// panics makes every fetch of the url panic
	panics map[string]bool
}

func newFakeFetcher(clock *chrono.FakeTime) *fakeFetcher {
	return &fakeFetcher{
		responses: map[string][]fakeResponse{},
		last:      map[string]fakeResponse{},
		panics:    map[string]bool{},
		clock:     clock,
	}
}

// respond queues responses for url. Each fetch consumes one response, once
// the queue is empty the last consumed response is served again.
func (f *fakeFetcher) respond(url string, responses ...fakeResponse) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.responses[url] = append(f.responses[url], responses...)
}

func (f *fakeFetcher) next(url string) fakeResponse {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls = append(f.calls, url)
	f.callTimes = append(f.callTimes, f.clock.Now())

	queue := f.responses[url]
	if len(queue) == 0 {
		return f.last[url]
	}
	f.responses[url] = queue[1:]
	f.last[url] = queue[0]
	return queue[0]
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (fetcher.Page, error) {
	res := f.next(url)
	if f.onFetch != nil {
		f.onFetch(url)
	}
	f.clock.Advance(f.took)
	if f.panics[url] {
		panic("malformed response for " + url)
	}
	if res.err != nil {
		return fetcher.Page{}, &fetcher.FetchError{URL: url, Err: res.err}
	}
	return fetcher.Page{URL: url, StatusCode: 200, Body: []byte(res.body)}, nil
}

type sentEvent struct {
	endpoint string
	event    notify.Event
}

type recordingSink struct {
	mutex sync.Mutex
	sent  []sentEvent
	err   error
}

func (s *recordingSink) Notify(_ context.Context, endpoint string, event notify.Event) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentEvent{endpoint: endpoint, event: event})
	return nil
}

func (s *recordingSink) count() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.sent)
}

// flakyCatalog lets tests fail individual catalog operations.
type flakyCatalog struct {
	catalog.Store
	frequencyErr error
	recordErr    error
}

func (c *flakyCatalog) GetCheckFrequency(ctx context.Context) (time.Duration, error) {
	if c.frequencyErr != nil {
		return 0, c.frequencyErr
	}
	return c.Store.GetCheckFrequency(ctx)
}

func (c *flakyCatalog) RecordObservation(ctx context.Context, obs catalog.Observation) (catalog.Recorded, error) {
	if c.recordErr != nil {
		return catalog.Recorded{}, c.recordErr
	}
	return c.Store.RecordObservation(ctx, obs)
}

type env struct {
	db        *sql.DB
	store     catalog.Store
	catalog   *flakyCatalog
	clock     *chrono.FakeTime
	fetcher   *fakeFetcher
	sink      *recordingSink
	tel       *telemetry.MemoryAPI
	scheduler *Scheduler
	account   catalog.Account
}

func setup(t *testing.T) *env {
	database := testutil.SetupDB(t, testutil.DBParams{Schema: db.Schema})
	clock := chrono.NewFakeTime(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	tel := &telemetry.MemoryAPI{}
	store := catalog.NewStore(database, clock, tel)
	flaky := &flakyCatalog{Store: store}
	fake := newFakeFetcher(clock)
	sink := &recordingSink{}

	account, err := store.CreateAccount(context.Background(), catalog.NewAccount{
		Username: "alice",
		Prefs: catalog.NotificationPrefs{
			Endpoint: sql.NullString{String: webhook, Valid: true},
			Enabled:  true,
		},
	})
	require.NoError(t, err)

	scheduler := NewScheduler(
		Options{DefaultFrequency: 30 * time.Second},
		flaky,
		fake,
		extract.DefaultRegistry(),
		NewDispatcher(flaky, sink, tel),
		clock,
		tel,
	)

	return &env{
		db:        database,
		store:     store,
		catalog:   flaky,
		clock:     clock,
		fetcher:   fake,
		sink:      sink,
		tel:       tel,
		scheduler: scheduler,
		account:   account,
	}
}

func (e *env) addProduct(t *testing.T, alias, url string) catalog.Product {
	t.Helper()
	product, err := e.store.AddProduct(context.Background(), catalog.NewProduct{
		AccountID: e.account.ID,
		Alias:     alias,
		Brand:     "Sony",
		Model:     `Sony - 65" Class BRAVIA XR`,
		Retailer:  "bestbuy",
		URL:       url,
	})
	require.NoError(t, err)
	return product
}

func (e *env) history(t *testing.T, product catalog.Product) []catalog.Observation {
	t.Helper()
	history, err := e.store.History(context.Background(), product.ID, 1000)
	require.NoError(t, err)
	return history
}

// countReports counts the reports of any kind recorded under id.
func countReports(tel *telemetry.MemoryAPI, id string) int {
	n := 0
	for _, r := range tel.Reports("") {
		if r.ID == id {
			n++
		}
	}
	return n
}

func page(inStock bool, price string) fakeResponse {
	return fakeResponse{body: bestbuyPage(inStock, price)}
}

func TestEachPassRecordsOneObservationPerProduct(t *testing.T) {
	e := setup(t)
	tv := e.addProduct(t, "tv", "https://www.bestbuy.com/site/tv/1.p")
	gpu := e.addProduct(t, "gpu", "https://www.bestbuy.com/site/gpu/2.p")
	e.fetcher.respond(tv.URL, page(false, "$499.99"))
	e.fetcher.respond(gpu.URL, page(false, ""))

	const passes = 4
	for i := 0; i < passes; i++ {
		report := e.scheduler.RunPass(context.Background())
		require.Equal(t, 2, report.Products)
		require.Equal(t, 2, report.Recorded)
		require.False(t, report.Interrupted)
		e.clock.Advance(time.Minute)
	}

	require.Len(t, e.history(t, tv), passes)
	require.Len(t, e.history(t, gpu), passes)
	require.Equal(t, []string{tv.URL, gpu.URL}, e.fetcher.calls[:2])
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		name string
		// seed is stored as existing history before any pass runs
		seed []bool
		// passes is the stock state seen on each pass
		passes []bool
		// notifyAt lists the passes that must send a notification
		notifyAt []int
	}{
		{name: "false then true", seed: []bool{false}, passes: []bool{true}, notifyAt: []int{0}},
		{name: "true then true", seed: []bool{true}, passes: []bool{true}, notifyAt: nil},
		{name: "false false true", seed: []bool{false}, passes: []bool{false, true}, notifyAt: []int{1}},
		{name: "never observed counts as out of stock", passes: []bool{true}, notifyAt: []int{0}},
		{name: "stays in stock", passes: []bool{false, true, true, true}, notifyAt: []int{1}},
		{name: "flapping", passes: []bool{true, false, true, false}, notifyAt: []int{0, 2}},
		{name: "out of stock", seed: []bool{true}, passes: []bool{false, false}, notifyAt: nil},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := setup(t)
			product := e.addProduct(t, "tv", "https://www.bestbuy.com/site/tv/1.p")
			ctx := context.Background()

			for _, inStock := range c.seed {
				_, err := e.store.AppendObservation(ctx, catalog.Observation{
					ProductID: product.ID,
					InStock:   inStock,
					CheckedAt: e.clock.Now(),
				})
				require.NoError(t, err)
				e.clock.Advance(time.Minute)
			}

			var notifiedAt []int
			for i, inStock := range c.passes {
				e.fetcher.respond(product.URL, page(inStock, "$10.00"))
				before := e.sink.count()
				report := e.scheduler.RunPass(ctx)
				require.Equal(t, 1, report.Recorded)
				if e.sink.count() > before {
					require.Equal(t, 1, report.Notified)
					notifiedAt = append(notifiedAt, i)
				}
				e.clock.Advance(time.Minute)
			}
			require.Equal(t, c.notifyAt, notifiedAt)
		})
	}
}

func TestNotificationEvent(t *testing.T) {
	e := setup(t)
	product := e.addProduct(t, "tv", "https://www.bestbuy.com/site/tv/1.p")
	e.fetcher.respond(product.URL, page(true, "$1,234.56"))

	e.scheduler.RunPass(context.Background())

	require.Len(t, e.sink.sent, 1)
	require.Equal(t, webhook, e.sink.sent[0].endpoint)
	want := notify.Event{
		Title:       "Product in Stock: tv",
		Description: `Sony - 65" Class BRAVIA XR`,
		URL:         product.URL,
		Fields: []notify.Field{
			{Name: "Stock", Value: "Yes"},
			{Name: "Price", Value: "$1,234.56"},
		},
	}
	if diff := cmp.Diff(want, e.sink.sent[0].event); diff != "" {
		t.Fatalf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestNoNotificationWhenDisabled(t *testing.T) {
	e := setup(t)
	product := e.addProduct(t, "tv", "https://www.bestbuy.com/site/tv/1.p")
	e.fetcher.respond(product.URL, page(true, "$10.00"))

	_, err := e.store.SetNotificationPrefs(context.Background(), "alice", catalog.NotificationPrefs{
		Endpoint: sql.NullString{String: webhook, Valid: true},
		Enabled:  false,
	})
	require.NoError(t, err)

	report := e.scheduler.RunPass(context.Background())
	require.Equal(t, 1, report.Recorded)
	require.Zero(t, report.Notified)
	require.Zero(t, e.sink.count())
}

func TestBestbuyScenario(t *testing.T) {
	e := setup(t)
	product := e.addProduct(t, "tv", "https://www.bestbuy.com/site/tv/1.p")
	ctx := context.Background()
	_, err := e.store.AppendObservation(ctx, catalog.Observation{ProductID: product.ID, CheckedAt: e.clock.Now()})
	require.NoError(t, err)
	e.clock.Advance(time.Minute)

	e.fetcher.respond(product.URL, page(true, "$499.99"), page(false, ""))

	e.scheduler.RunPass(ctx)
	latest, _, err := e.store.GetLatestObservation(ctx, product.ID)
	require.NoError(t, err)
	require.True(t, latest.InStock)
	require.Equal(t, sql.NullFloat64{Float64: 499.99, Valid: true}, latest.Price)
	require.Equal(t, 1, e.sink.count())

	e.clock.Advance(time.Minute)
	e.scheduler.RunPass(ctx)
	latest, _, err = e.store.GetLatestObservation(ctx, product.ID)
	require.NoError(t, err)
	require.False(t, latest.InStock)
	require.False(t, latest.Price.Valid)
	require.Equal(t, 1, e.sink.count())
}

func TestFetchFailureSkipsOnlyThatProduct(t *testing.T) {
	e := setup(t)
	broken := e.addProduct(t, "broken", "https://www.bestbuy.com/site/broken/1.p")
	working := e.addProduct(t, "working", "https://www.bestbuy.com/site/working/2.p")
	e.fetcher.respond(broken.URL, fakeResponse{err: errors.New("dial tcp: i/o timeout")})
	e.fetcher.respond(working.URL, page(false, "$5.00"))

	report := e.scheduler.RunPass(context.Background())
	require.Equal(t, 1, report.FetchFailures)
	require.Equal(t, 1, report.Recorded)
	require.Empty(t, e.history(t, broken))
	require.Len(t, e.history(t, working), 1)
	require.True(t, e.tel.Has("warning", "scheduler.product.fetch"))
}

func TestStoreFailureContinues(t *testing.T) {
	e := setup(t)
	e.addProduct(t, "a", "https://www.bestbuy.com/site/a/1.p")
	e.addProduct(t, "b", "https://www.bestbuy.com/site/b/2.p")
	e.catalog.recordErr = errors.New("database is locked")

	report := e.scheduler.RunPass(context.Background())
	require.Equal(t, 2, report.StoreFailures)
	require.Len(t, e.fetcher.calls, 2)
	require.True(t, e.tel.Has("broken", "scheduler.product.record"))
}

func TestNotifyFailureKeepsObservation(t *testing.T) {
	e := setup(t)
	product := e.addProduct(t, "tv", "https://www.bestbuy.com/site/tv/1.p")
	e.fetcher.respond(product.URL, page(true, "$10.00"))
	e.sink.err = errors.New("webhook unreachable")

	report := e.scheduler.RunPass(context.Background())
	require.Equal(t, 1, report.NotifyFailures)
	require.Zero(t, report.Notified)
	require.Len(t, e.history(t, product), 1)
	require.Equal(t, 1, countReports(e.tel, "scheduler.product.notify"))
	require.Empty(t, e.tel.Reports("broken"))
}

func TestDegradedExtractionIsRecorded(t *testing.T) {
	e := setup(t)
	product := e.addProduct(t, "tv", "https://www.bestbuy.com/site/tv/1.p")
	e.fetcher.respond(product.URL, fakeResponse{body: "<html><body>Access Denied</body></html>"})

	report := e.scheduler.RunPass(context.Background())
	require.Equal(t, 1, report.Recorded)
	history := e.history(t, product)
	require.Len(t, history, 1)
	require.False(t, history[0].InStock)
	require.False(t, history[0].Price.Valid)
	require.True(t, e.tel.Has("warning", "scheduler.product.extract-degraded"))
}

func TestDelay(t *testing.T) {
	require.Equal(t, 55*time.Second, Delay(60*time.Second, 5*time.Second))
	require.Equal(t, time.Duration(0), Delay(60*time.Second, 90*time.Second))
	require.Equal(t, time.Duration(0), Delay(60*time.Second, 60*time.Second))
}

func runPasses(t *testing.T, e *env, passes int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleeps := 0
	e.clock.OnSleep = func(time.Duration) {
		sleeps++
		if sleeps == passes {
			cancel()
		}
	}
	require.NoError(t, e.scheduler.Run(ctx))
}

func TestRunPacing(t *testing.T) {
	cases := []struct {
		name      string
		took      time.Duration
		wantSleep time.Duration
		wantGap   time.Duration
	}{
		{name: "short pass", took: 5 * time.Second, wantSleep: 55 * time.Second, wantGap: 60 * time.Second},
		{name: "overrunning pass", took: 90 * time.Second, wantSleep: 0, wantGap: 90 * time.Second},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := setup(t)
			product := e.addProduct(t, "tv", "https://www.bestbuy.com/site/tv/1.p")
			e.fetcher.respond(product.URL, page(false, ""))
			e.fetcher.took = c.took
			require.NoError(t, e.store.SetCheckFrequency(context.Background(), 60*time.Second))

			runPasses(t, e, 3)

			require.Equal(t, []time.Duration{c.wantSleep, c.wantSleep, c.wantSleep}, e.clock.Sleeps())
			require.Len(t, e.fetcher.callTimes, 3)
			for i := 1; i < len(e.fetcher.callTimes); i++ {
				require.Equal(t, c.wantGap, e.fetcher.callTimes[i].Sub(e.fetcher.callTimes[i-1]))
			}
		})
	}
}

func TestRunPicksUpNewFrequency(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	require.NoError(t, e.store.SetCheckFrequency(ctx, 60*time.Second))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sleeps := 0
	e.clock.OnSleep = func(time.Duration) {
		sleeps++
		if sleeps == 2 {
			cancel()
			return
		}
		// written while the scheduler waits, read by the next pass
		require.NoError(t, e.store.SetCheckFrequency(ctx, 120*time.Second))
	}
	require.NoError(t, e.scheduler.Run(runCtx))
	require.Equal(t, []time.Duration{60 * time.Second, 120 * time.Second}, e.clock.Sleeps())
}

func TestFrequencyFallback(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	report := e.scheduler.RunPass(ctx)
	require.Equal(t, 30*time.Second, report.Frequency)
	require.False(t, e.tel.Has("warning", "scheduler.pass.frequency"))

	require.NoError(t, e.store.SetCheckFrequency(ctx, 90*time.Second))
	report = e.scheduler.RunPass(ctx)
	require.Equal(t, 90*time.Second, report.Frequency)

	e.catalog.frequencyErr = errors.New("database is locked")
	report = e.scheduler.RunPass(ctx)
	require.Equal(t, 90*time.Second, report.Frequency)
	require.True(t, e.tel.Has("warning", "scheduler.pass.frequency"))

	e.catalog.frequencyErr = nil
	_, err := e.db.Exec("update check_frequency set seconds = 5")
	require.NoError(t, err)
	report = e.scheduler.RunPass(ctx)
	require.Equal(t, 90*time.Second, report.Frequency)
}

func TestCancellationBetweenProducts(t *testing.T) {
	e := setup(t)
	first := e.addProduct(t, "a", "https://www.bestbuy.com/site/a/1.p")
	e.addProduct(t, "b", "https://www.bestbuy.com/site/b/2.p")
	e.addProduct(t, "c", "https://www.bestbuy.com/site/c/3.p")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.fetcher.onFetch = func(string) { cancel() }

	report := e.scheduler.RunPass(ctx)
	require.True(t, report.Interrupted)
	require.Equal(t, []string{first.URL}, e.fetcher.calls)
}

func TestRunReturnsWhenCancelled(t *testing.T) {
	e := setup(t)
	e.addProduct(t, "a", "https://www.bestbuy.com/site/a/1.p")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.scheduler.Run(ctx))
	require.Empty(t, e.fetcher.calls)
	require.Empty(t, e.clock.Sleeps())
}

func TestFormatPrice(t *testing.T) {
	require.Equal(t, "$1,234.56", FormatPrice(sql.NullFloat64{Float64: 1234.56, Valid: true}))
	require.Equal(t, "$499.99", FormatPrice(sql.NullFloat64{Float64: 499.99, Valid: true}))
	require.Equal(t, "Unknown", FormatPrice(sql.NullFloat64{}))
}

func TestRegister(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	registrar := NewRegistrar(e.store, e.fetcher, extract.DefaultRegistry())

	url := "https://www.bestbuy.com/site/sony-bravia/6429434.p?skuId=6429434"
	e.fetcher.respond(url, page(true, "$499.99"))
	product, err := registrar.Register(ctx, "alice", "tv", url)
	require.NoError(t, err)
	require.Equal(t, "Sony", product.Brand)
	require.Equal(t, `Sony - 65" Class BRAVIA XR`, product.Model)
	require.Equal(t, "bestbuy", product.Retailer)

	_, err = registrar.Register(ctx, "alice", "tv again", url)
	require.ErrorIs(t, err, catalog.ErrDuplicate)

	_, err = registrar.Register(ctx, "alice", "mixer", "https://www.walmart.com/ip/123")
	require.ErrorIs(t, err, ErrUnsupportedRetailer)

	_, err = registrar.Register(ctx, "alice", "typo", "https://www.amazom.com/dp/123")
	require.ErrorContains(t, err, `did you mean "amazon"`)

	_, err = registrar.Register(ctx, "nobody", "tv", "https://www.bestbuy.com/site/x/1.p")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	down := "https://www.amazon.com/dp/B0863TXGM3"
	e.fetcher.respond(down, fakeResponse{err: errors.New("connection refused")})
	_, err = registrar.Register(ctx, "alice", "headphones", down)
	var fetchErr *fetcher.FetchError
	require.ErrorAs(t, err, &fetchErr)

	blocked := "https://www.amazon.com/dp/B000000000"
	e.fetcher.respond(blocked, fakeResponse{body: "<html>captcha</html>"})
	product, err = registrar.Register(ctx, "alice", "blocked", blocked)
	require.NoError(t, err)
	require.Equal(t, extract.Unavailable, product.Brand)
}

func TestPanicSkipsOnlyThatProduct(t *testing.T) {
	e := setup(t)
	broken := e.addProduct(t, "broken", "https://www.bestbuy.com/site/broken/1.p")
	working := e.addProduct(t, "working", "https://www.bestbuy.com/site/working/2.p")
	e.fetcher.panics[broken.URL] = true
	e.fetcher.respond(working.URL, page(true, "$5.00"))

	report := e.scheduler.RunPass(context.Background())
	require.Equal(t, 1, report.Panics)
	require.Equal(t, 1, report.Recorded)
	require.Equal(t, 1, report.Notified)
	require.Empty(t, e.history(t, broken))
	require.Len(t, e.history(t, working), 1)
	require.True(t, e.tel.Has("broken", "scheduler.product.panic"))

	runPasses(t, e, 2)
	require.Len(t, e.history(t, working), 3)
}

func TestNewSchedulerRequiresDispatcher(t *testing.T) {
	e := setup(t)
	newScheduler := func(dispatcher Notifier) func() {
		return func() {
			NewScheduler(Options{}, e.catalog, e.fetcher, extract.DefaultRegistry(), dispatcher, e.clock, e.tel)
		}
	}
	require.Panics(t, newScheduler(nil))
	require.Panics(t, newScheduler((*Dispatcher)(nil)))
	require.NotPanics(t, newScheduler(NewDispatcher(e.catalog, e.sink, e.tel)))
}
