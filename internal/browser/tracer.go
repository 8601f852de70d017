// Package browser drives Chrome through the DevTools protocol and feeds its
// network and page events into the resource graph engine.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edgecomet/pagegraph/internal/common/configtypes"
	"github.com/edgecomet/pagegraph/internal/common/urlutil"
	"github.com/edgecomet/pagegraph/internal/graph"
)

// Result is the outcome of tracing one page
type Result struct {
	TraceID        string
	URL            string
	Snapshot       *graph.Snapshot
	Duration       time.Duration
	TimedOut       bool
	Requests       int
	BrowserVersion string
}

// Tracer owns one Chrome process and traces pages one tab at a time
type Tracer struct {
	cfg            *configtypes.PagegraphConfig
	metrics        graph.Metrics
	logger         *zap.Logger
	allocCtx       context.Context
	allocCancel    context.CancelFunc
	browserCtx     context.Context
	browserCancel  context.CancelFunc
	browserVersion string
}

// NewTracer launches Chrome. metrics may be nil.
func NewTracer(cfg *configtypes.PagegraphConfig, metrics graph.Metrics, logger *zap.Logger) (*Tracer, error) {
	t := &Tracer{
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}

	headless := cfg.Chrome.Headless == nil || *cfg.Chrome.Headless
	opts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-sync", true),
	}
	if cfg.Chrome.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.Chrome.ExecPath))
	}
	if cfg.Chrome.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.Chrome.UserAgent))
	}

	allocatorOpts := append(chromedp.DefaultExecAllocatorOptions[:], opts...)
	t.allocCtx, t.allocCancel = chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	t.browserCtx, t.browserCancel = chromedp.NewContext(t.allocCtx)

	if err := chromedp.Run(t.browserCtx); err != nil {
		t.Close()
		return nil, fmt.Errorf("%w: %w", ErrBrowserStart, err)
	}

	if err := chromedp.Run(t.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, product, _, _, _, err := browser.GetVersion().Do(ctx)
		if err != nil {
			return err
		}
		t.browserVersion = product
		return nil
	})); err != nil {
		logger.Warn("Failed to capture browser version", zap.Error(err))
	}

	logger.Info("Chrome started",
		zap.Bool("headless", headless),
		zap.String("version", t.browserVersion))
	return t, nil
}

func (t *Tracer) BrowserVersion() string {
	return t.browserVersion
}

// Close terminates Chrome
func (t *Tracer) Close() {
	if t.browserCancel != nil {
		t.browserCancel()
	}
	if t.allocCancel != nil {
		t.allocCancel()
	}
}

// Trace loads pageURL in a fresh tab and returns the resource graph of the
// document it ends up showing. The page counts as settled once no load event
// fired for the configured settle time. Hitting the timeout is not an error:
// whatever was recorded by then is returned with TimedOut set.
func (t *Tracer) Trace(ctx context.Context, pageURL string) (*Result, error) {
	if err := urlutil.ValidateTarget(pageURL, t.cfg.Chrome.AllowPrivate); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}

	start := time.Now()
	traceID := uuid.NewString()
	log := t.logger.With(zap.String("trace_id", traceID), zap.String("url", pageURL))

	tabCtx, tabCancel := chromedp.NewContext(t.browserCtx)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	tab := NewTab(traceID, "about:blank")
	collector := graph.NewCollector(tab, log, t.collectorOptions()...)
	unsubscribe := collector.SubscribeNewContext(func(c graph.Context) {
		log.Debug("Tracking new document", zap.String("document_url", c.URL()))
	})
	defer unsubscribe()

	fetchBody := func(id network.RequestID) ([]byte, error) {
		bodyCtx, cancel := context.WithTimeout(tabCtx, 10*time.Second)
		defer cancel()

		var body []byte
		err := chromedp.Run(bodyCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			body, err = network.GetResponseBody(id).Do(ctx)
			return err
		}))
		return body, err
	}
	mapper := newEventMapper(tab, collector, fetchBody, log)
	chromedp.ListenTarget(tabCtx, mapper.handle)

	timeout := t.cfg.Chrome.Timeout.ToDuration()
	settle := t.cfg.Chrome.Settle.ToDuration()
	timedOut := false

	err := chromedp.Run(tabCtx,
		network.Enable(),
		page.Enable(),
		t.emulate(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errorText, _, err := page.Navigate(pageURL).Do(ctx)
			if err != nil {
				return errors.Join(ErrNavigateFailed, err)
			}
			if errorText != "" {
				return fmt.Errorf("%w: %s", ErrNavigateFailed, errorText)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			timedOut = waitSettled(ctx, mapper.loads, timeout-time.Since(start), settle)
			return nil
		}),
	)
	if ctx.Err() != nil {
		return nil, fmt.Errorf("trace cancelled: %w", ctx.Err())
	}
	if err != nil {
		return nil, err
	}

	mapper.wait()
	snap := collector.Snapshot(tab)
	collector.Release(tab)
	if snap == nil {
		return nil, ErrNoSnapshot
	}

	result := &Result{
		TraceID:        traceID,
		URL:            pageURL,
		Snapshot:       snap,
		Duration:       time.Since(start),
		TimedOut:       timedOut,
		Requests:       mapper.requestCount(),
		BrowserVersion: t.browserVersion,
	}
	log.Info("Trace completed",
		zap.String("document_url", snap.DocumentURL),
		zap.String("earliest_source", snap.EarliestSource),
		zap.Int("resources", len(snap.Resources)),
		zap.Int("requests", result.Requests),
		zap.Bool("timed_out", timedOut),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (t *Tracer) collectorOptions() []graph.Option {
	var opts []graph.Option
	if maxAge := t.cfg.Tracker.MaxAge.ToDuration(); maxAge > 0 {
		opts = append(opts, graph.WithMaxAge(maxAge))
	}
	if t.cfg.Capture.MaxBodyBytes > 0 && t.cfg.Capture.ChunkSize > 0 {
		opts = append(opts, graph.WithBodyLimits(t.cfg.Capture.MaxBodyBytes, t.cfg.Capture.ChunkSize))
	}
	if t.cfg.Tracker.SweepOnCommit != nil {
		opts = append(opts, graph.WithSweepOnCommit(*t.cfg.Tracker.SweepOnCommit))
	}
	if t.metrics != nil {
		opts = append(opts, graph.WithMetrics(t.metrics))
	}
	return opts
}

func (t *Tracer) emulate() chromedp.Action {
	vp := t.cfg.Chrome.Viewport
	return emulation.SetDeviceMetricsOverride(int64(vp.Width), int64(vp.Height), 1.0, vp.Width < 768)
}

// waitSettled waits for the first load event and then until no further load
// event fires for settle. It reports whether the budget ran out first.
func waitSettled(ctx context.Context, loads <-chan struct{}, budget, settle time.Duration) bool {
	if budget <= 0 {
		return true
	}
	deadline := time.NewTimer(budget)
	defer deadline.Stop()

	select {
	case <-loads:
	case <-deadline.C:
		return true
	case <-ctx.Done():
		return true
	}

	quiet := time.NewTimer(settle)
	defer quiet.Stop()
	for {
		select {
		case <-loads:
			quiet.Reset(settle)
		case <-quiet.C:
			return false
		case <-deadline.C:
			return true
		case <-ctx.Done():
			return true
		}
	}
}
