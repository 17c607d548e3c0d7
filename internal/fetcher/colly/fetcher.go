// Package collyfetcher implements scan.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/xenlix/aeoscan/internal/scan"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxBodySize = 5 << 20
	defaultUserAgent   = "aeoscan/1.0 (+https://xenlix.com/scanner)"
)

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

// Fetcher retrieves a single page for analysis. Scans never follow links,
// so each Fetch is one GET with redirects handled by the transport.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET and returns the page body and final URL
// after redirects.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (scan.FetchResult, error) {
	var (
		result   scan.FetchResult
		fetchErr error
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = true
	collector.MaxBodySize = f.cfg.MaxBodySize
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = scan.FetchResult{
			HTML:       string(r.Body),
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return scan.FetchResult{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return result, fmt.Errorf("fetch failed: %w", err)
		}
		if fetchErr != nil {
			return result, fmt.Errorf("fetch response failed: %w", fetchErr)
		}
	}

	if result.StatusCode >= 400 {
		return result, fmt.Errorf("fetch returned status %d", result.StatusCode)
	}
	return result, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
