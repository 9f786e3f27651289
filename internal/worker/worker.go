// Package worker implements the claim-crawl execution loop.
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sedamusic/claim-verifier/internal/claims"
	"github.com/sedamusic/claim-verifier/internal/metrics"
	"github.com/sedamusic/claim-verifier/internal/page"
)

// Pacer throttles outbound fetches per target host.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Config controls Worker behavior.
type Config struct {
	SnapshotPrefix string
	CacheTTL       time.Duration
	AttemptTimeout time.Duration
}

// Worker consumes crawl tasks and decides whether the claim code is present
// on the target page. Verdicts go back through the CrawlCompleter; the worker
// never writes request rows itself.
type Worker struct {
	queue     claims.Queue
	cache     claims.PageCache
	snapshots claims.SnapshotStore
	completer claims.CrawlCompleter
	probe     claims.Fetcher
	headless  claims.Fetcher
	pacer     Pacer
	retry     *claims.RetryPolicy
	clock     claims.Clock
	cfg       Config
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New constructs a Worker. probe and pacer are optional; headless is not.
func New(
	queue claims.Queue,
	cache claims.PageCache,
	snapshots claims.SnapshotStore,
	completer claims.CrawlCompleter,
	probe claims.Fetcher,
	headless claims.Fetcher,
	pacer Pacer,
	retry *claims.RetryPolicy,
	clock claims.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if retry == nil {
		retry = claims.NewRetryPolicy(0, 0, 0)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	return &Worker{
		queue:     queue,
		cache:     cache,
		snapshots: snapshots,
		completer: completer,
		probe:     probe,
		headless:  headless,
		pacer:     pacer,
		retry:     retry,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// Run blocks, consuming tasks until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued crawl task",
			zap.String("request_id", task.RequestID),
			zap.String("url", task.TargetURL),
		)
		metrics.CrawlStarted()
		w.processTask(ctx, task)
		metrics.CrawlFinished()
	}
}

func (w *Worker) processTask(ctx context.Context, task claims.CrawlTask) {
	code := strings.TrimSpace(task.ClaimCode)
	if code == "" {
		// The state machine guarantees a well-formed code; refuse to
		// "find" an empty needle anyway.
		w.complete(ctx, task, false, claims.CrawlerResponse{
			LastError: "empty claim code",
		})
		return
	}

	if done := w.tryCache(ctx, task, code); done {
		return
	}

	if w.pacer != nil {
		if err := w.pacer.Wait(ctx, task.TargetURL); err != nil {
			w.logger.Warn("pacer wait aborted",
				zap.String("request_id", task.RequestID), zap.Error(err))
			return
		}
	}

	if matched := w.tryProbe(ctx, task, code); matched {
		return
	}

	w.crawlHeadless(ctx, task, code)
}

// tryCache serves the verdict from the page cache when a live entry exists.
// A hit settles the task either way: the cache exists to avoid re-fetching.
func (w *Worker) tryCache(ctx context.Context, task claims.CrawlTask, code string) bool {
	if w.cache == nil {
		return false
	}
	entry, ok, err := w.cache.Get(ctx, task.TargetURL, w.clock.Now())
	if err != nil {
		w.logger.Warn("page cache lookup failed",
			zap.String("request_id", task.RequestID), zap.Error(err))
		return false
	}
	metrics.ObserveCacheLookup(ok)
	if !ok {
		return false
	}
	matched := page.ContainsCode(entry.Content, code)
	resp := claims.CrawlerResponse{Matched: matched}
	if matched {
		resp.MatchedIn = claims.MatchedInCache
	} else {
		resp.LastError = "claim code not found in cached page text"
	}
	w.complete(ctx, task, matched, resp)
	return true
}

// tryProbe does one plain HTTP fetch and settles the task only on a positive
// match in the raw markup. Failures and negatives fall through to headless.
func (w *Worker) tryProbe(ctx context.Context, task claims.CrawlTask, code string) bool {
	if w.probe == nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, w.cfg.AttemptTimeout)
	defer cancel()

	res, err := w.probe.Fetch(probeCtx, task.TargetURL)
	if err != nil {
		metrics.ObserveCrawlAttempt("probe", "error")
		w.logger.Debug("probe fetch failed, promoting to headless",
			zap.String("request_id", task.RequestID), zap.Error(err))
		return false
	}
	metrics.ObserveCrawlAttempt("probe", "ok")
	metrics.ObserveFetchDuration("probe", res.Duration)
	if !page.ContainsCode(res.Markup, code) {
		return false
	}

	text, err := page.ExtractText(res.Markup)
	if err != nil {
		w.logger.Warn("text extraction failed, caching raw markup",
			zap.String("request_id", task.RequestID), zap.Error(err))
		text = res.Markup
	}
	w.cachePut(ctx, task, text)
	uri := w.snapshot(ctx, task, res.Markup)
	w.complete(ctx, task, true, claims.CrawlerResponse{
		Attempts:    1,
		Matched:     true,
		MatchedIn:   claims.MatchedInMarkup,
		DurationMs:  res.Duration.Milliseconds(),
		SnapshotURI: uri,
	})
	return true
}

func (w *Worker) crawlHeadless(ctx context.Context, task claims.CrawlTask, code string) {
	var (
		res      claims.FetchResult
		lastErr  error
		attempts int
	)
	for attempt := 0; attempt < w.retry.MaxAttempts(); attempt++ {
		if attempt > 0 {
			if err := w.sleep(ctx, w.retry.Backoff(attempt-1)); err != nil {
				w.logger.Warn("backoff interrupted",
					zap.String("request_id", task.RequestID), zap.Error(err))
				return
			}
		}
		attempts++
		res, lastErr = w.fetchOnce(ctx, task.TargetURL)
		if lastErr == nil {
			break
		}
		metrics.ObserveCrawlAttempt("headless", "error")
		w.logger.Warn("headless fetch attempt failed",
			zap.String("request_id", task.RequestID),
			zap.Int("attempt", attempts),
			zap.Error(lastErr),
		)
		if !w.retry.ShouldRetry(lastErr, attempt) {
			break
		}
	}

	if lastErr != nil {
		w.complete(ctx, task, false, claims.CrawlerResponse{
			Attempts:     attempts,
			LastError:    lastErr.Error(),
			UsedHeadless: true,
		})
		return
	}
	metrics.ObserveCrawlAttempt("headless", "ok")
	metrics.ObserveFetchDuration("headless", res.Duration)

	text := res.Text
	if text == "" {
		extracted, err := page.ExtractText(res.Markup)
		if err != nil {
			w.logger.Warn("text extraction failed, using raw markup",
				zap.String("request_id", task.RequestID), zap.Error(err))
			extracted = res.Markup
		}
		text = extracted
	}

	// Cache before evaluating the match so a failure downstream never
	// wastes the fetch.
	w.cachePut(ctx, task, text)
	uri := w.snapshot(ctx, task, res.Markup)

	resp := claims.CrawlerResponse{
		Attempts:     attempts,
		UsedHeadless: true,
		DurationMs:   res.Duration.Milliseconds(),
		SnapshotURI:  uri,
	}
	switch {
	case page.ContainsCode(res.Markup, code):
		resp.Matched = true
		resp.MatchedIn = claims.MatchedInMarkup
	case page.ContainsCode(text, code):
		resp.Matched = true
		resp.MatchedIn = claims.MatchedInText
	default:
		resp.LastError = "claim code not found on rendered page"
	}
	w.complete(ctx, task, resp.Matched, resp)
}

func (w *Worker) fetchOnce(ctx context.Context, url string) (claims.FetchResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.AttemptTimeout)
	defer cancel()

	res, err := w.headless.Fetch(attemptCtx, url)
	if err != nil {
		return claims.FetchResult{}, fmt.Errorf("headless fetch: %w", err)
	}
	return res, nil
}

func (w *Worker) cachePut(ctx context.Context, task claims.CrawlTask, content string) {
	if w.cache == nil {
		return
	}
	now := w.clock.Now()
	err := w.cache.Put(ctx, claims.PageCacheEntry{
		URL:       task.TargetURL,
		Content:   content,
		CrawledAt: now,
		ExpiresAt: now.Add(w.cfg.CacheTTL),
	})
	if err != nil {
		w.logger.Warn("page cache put failed",
			zap.String("request_id", task.RequestID), zap.Error(err))
	}
}

func (w *Worker) snapshot(ctx context.Context, task claims.CrawlTask, markup string) string {
	if w.snapshots == nil || markup == "" {
		return ""
	}
	path := w.snapshotPath(task.RequestID)
	uri, err := w.snapshots.Put(ctx, path, "text/html; charset=utf-8", []byte(markup))
	if err != nil {
		w.logger.Warn("snapshot store failed",
			zap.String("request_id", task.RequestID), zap.Error(err))
		return ""
	}
	return uri
}

func (w *Worker) snapshotPath(requestID string) string {
	prefix := strings.Trim(w.cfg.SnapshotPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s.html", requestID)
	}
	return fmt.Sprintf("%s/%s.html", prefix, requestID)
}

func (w *Worker) complete(ctx context.Context, task claims.CrawlTask, matched bool, resp claims.CrawlerResponse) {
	if err := w.completer.CompleteCrawl(ctx, task.RequestID, matched, resp); err != nil {
		w.logger.Error("crawl completion failed",
			zap.String("request_id", task.RequestID),
			zap.Bool("matched", matched),
			zap.Error(err),
		)
		return
	}
	w.logger.Info("crawl completed",
		zap.String("request_id", task.RequestID),
		zap.Bool("matched", matched),
		zap.String("matched_in", resp.MatchedIn),
		zap.Int("attempts", resp.Attempts),
	)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
