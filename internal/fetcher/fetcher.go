// Package fetcher downloads retailer product pages.
package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"productchecker/internal/components/assert"
	"productchecker/internal/components/telemetry"
	"productchecker/lib/restyutil"
	libtelemetry "productchecker/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_fetch  = "fetch"
	report_gunzip = "gunzip"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Page is the raw result of a fetch. Non-2xx responses are pages too, the
// status code is kept so the caller can decide what to make of it.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// FetchError is returned when no response could be obtained at all (dns,
// tls, timeouts, refused connections).
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Options struct {
	Timeout time.Duration
	// RequestsPerSecond limits outgoing requests, 0 disables the limit.
	RequestsPerSecond float64
	UserAgent         string
	// DumpDir, if set, receives a transcript of every response.
	DumpDir string
}

type Fetcher struct {
	http *resty.Client
	tel  telemetry.API
}

func New(opts Options, tel telemetry.API) (*Fetcher, error) {
	assert.NotNil(tel, "telemetry")
	tel = telemetry.NewScopedAPI("fetcher", tel)

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	httpClient := resty.New()
	// retailers must see every fetch as a fresh visit
	httpClient.SetCookieJar(nil)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	httpClient.SetHeaders(map[string]string{
		"User-Agent":      opts.UserAgent,
		"Accept-Language": "en-US,en;q=0.5",
		"Accept-Encoding": "gzip",
		"DNT":             "1",
	})
	httpClient.SetTimeout(opts.Timeout)

	if opts.RequestsPerSecond > 0 {
		// burst of 1 spaces requests evenly
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel)
	libtelemetry.TraceResty(httpClient, "productchecker.fetcher")

	if opts.DumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(opts.DumpDir)
		if err != nil {
			return nil, fmt.Errorf("create dump dir: %w", err)
		}
		restyutil.DumpResponses(httpClient, output)
	}

	return &Fetcher{http: httpClient, tel: tel}, nil
}

var gzipMagic = []byte{0x1f, 0x8b}

// decodeBody undoes gzip content encoding when the transport did not already.
func decodeBody(body []byte) ([]byte, error) {
	if !bytes.HasPrefix(body, gzipMagic) {
		return body, nil
	}
	reader, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// Fetch performs a single GET of url, without retries and without carrying
// cookies over from earlier fetches.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Page, error) {
	res, err := f.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return Page{}, &FetchError{URL: url, Err: err}
	}

	body, err := decodeBody(res.Body())
	if err != nil {
		f.tel.ReportWarning(report_gunzip, err, slog.String("url", url))
		body = res.Body()
	}

	f.tel.ReportDebug(
		report_fetch,
		slog.String("url", url),
		slog.Int("status", res.StatusCode()),
		slog.Int("bytes", len(body)),
	)
	return Page{
		URL:        url,
		StatusCode: res.StatusCode(),
		Body:       body,
	}, nil
}
