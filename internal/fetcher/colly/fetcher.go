// Package collyfetcher implements listing.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/ntanasko/floorsync/internal/listing"
)

// Listing sites commonly reject default Go user agents, so requests
// carry a realistic browser header set.
const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptHeader         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptLanguageHeader = "en-US,en;q=0.5"

	// Bodies under this size are almost always a block page or an empty
	// shell; extraction on them yields zero records, which run stats make
	// visible, so this only warns.
	suspiciousBodyBytes = 1000
)

// FetchError is a terminal fetch failure after the retry was exhausted.
type FetchError struct {
	URL    string
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// RetryWait is the pause before the single retry.
	RetryWait time.Duration
}

// Fetcher implements listing.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	logger        *zap.Logger
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		logger:        logger,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET, retrying exactly once with identical
// parameters before surfacing a FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (listing.Page, error) {
	page, err := f.fetchOnce(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return listing.Page{}, &FetchError{URL: url, Reason: "canceled", Err: ctx.Err()}
		}
		f.logger.Warn("first fetch attempt failed, retrying",
			zap.String("url", url),
			zap.Error(err),
		)
		if f.cfg.RetryWait > 0 {
			select {
			case <-time.After(f.cfg.RetryWait):
			case <-ctx.Done():
				return listing.Page{}, &FetchError{URL: url, Reason: "canceled", Err: ctx.Err()}
			}
		}
		page, err = f.fetchOnce(ctx, url)
	}
	if err != nil {
		f.logger.Error("fetch failed after retry", zap.String("url", url), zap.Error(err))
		return listing.Page{}, &FetchError{URL: url, Reason: err.Error(), Err: err}
	}

	f.logger.Info("fetched page",
		zap.String("url", url),
		zap.Int("status_code", page.StatusCode),
		zap.Int("bytes", len(page.Body)),
		zap.Duration("dur", page.Duration),
	)
	if len(page.Body) < suspiciousBodyBytes {
		f.logger.Warn("response body is suspiciously short",
			zap.String("url", url),
			zap.Int("bytes", len(page.Body)),
		)
	}
	return page, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (listing.Page, error) {
	var (
		result   listing.Page
		fetchErr error
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(newHTTPTransport())

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHeader)
		r.Headers.Set("Accept-Language", acceptLanguageHeader)
	})
	collector.OnResponse(func(r *colly.Response) {
		result = listing.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("http %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return listing.Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return listing.Page{}, fmt.Errorf("visit failed: %w", err)
		}
		if fetchErr != nil {
			return listing.Page{}, fmt.Errorf("response failed: %w", fetchErr)
		}
		return result, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
