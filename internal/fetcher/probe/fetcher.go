// Package probe implements a plain-HTTP fetch using gocolly.
//
// The probe is the cheap first pass of a claim crawl: if the claim code is
// already present in the raw markup there is no need to pay for a browser.
// A probe can only ever produce a positive answer; pages that render their
// content client-side still go through the headless fetcher.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/sedamusic/claim-verifier/internal/claims"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements claims.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	// The claim target is a single page its owner asked us to fetch, so
	// robots.txt semantics do not apply here.
	c.IgnoreRobotsTxt = true
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET and returns the raw markup.
func (f *Fetcher) Fetch(ctx context.Context, url string) (claims.FetchResult, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		result   claims.FetchResult
		fetchErr error
	)
	start := time.Now()
	collector.OnResponse(func(r *colly.Response) {
		result = claims.FetchResult{
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Markup:     string(r.Body),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("probe fetch %s: %w", url, err)
	})

	if err := collector.Visit(url); err != nil {
		return claims.FetchResult{}, fmt.Errorf("probe visit %s: %w", url, err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return claims.FetchResult{}, fmt.Errorf("probe canceled: %w", err)
	}
	if fetchErr != nil {
		return claims.FetchResult{}, fetchErr
	}
	if result.StatusCode == 0 {
		return claims.FetchResult{}, fmt.Errorf("probe fetch %s: no response", url)
	}
	return result, nil
}
