package pdf

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromiumConfig holds settings for the headless Chromium renderer.
type ChromiumConfig struct {
	// RemoteURL is a CDP WebSocket endpoint. If empty, a local Chromium
	// instance is launched.
	RemoteURL string
	// Timeout bounds a single conversion.
	Timeout time.Duration
}

// ChromiumConverter implements domain.DocumentConverter by rendering
// markdown to HTML and printing it through headless Chromium. The browser
// process is shared; each conversion runs in its own tab.
type ChromiumConverter struct {
	mu          sync.Mutex
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
	timeout     time.Duration
	logger      *slog.Logger
}

// NewChromiumConverter launches (or connects to) the browser.
func NewChromiumConverter(cfg ChromiumConfig, logger *slog.Logger) (*ChromiumConverter, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &ChromiumConverter{timeout: cfg.Timeout, logger: logger}

	var allocCtx context.Context
	if cfg.RemoteURL != "" {
		allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		logger.Info("pdf renderer connecting to remote browser", "url", cfg.RemoteURL)
	} else {
		opts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
		copy(opts, chromedp.DefaultExecAllocatorOptions[:])
		opts = append(opts,
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		allocCtx, c.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		logger.Info("pdf renderer launching local browser")
	}

	c.browserCtx, c.browserStop = chromedp.NewContext(allocCtx)

	// Start the browser eagerly so a broken environment fails at boot.
	startDone := make(chan error, 1)
	go func() { startDone <- chromedp.Run(c.browserCtx) }()
	select {
	case err := <-startDone:
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-time.After(cfg.Timeout):
		c.Close()
		return nil, fmt.Errorf("start browser: timed out after %v", cfg.Timeout)
	}

	return c, nil
}

// Convert implements domain.DocumentConverter.
func (c *ChromiumConverter) Convert(ctx context.Context, markdown string) ([]byte, error) {
	html, err := renderHTML(markdown, documentTitle(markdown))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	browserCtx := c.browserCtx
	c.mu.Unlock()
	if browserCtx == nil {
		return nil, fmt.Errorf("pdf renderer is closed")
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.timeout)
	defer cancelTimeout()

	// Stop early if the caller's context ends first.
	go func() {
		select {
		case <-ctx.Done():
			cancelTimeout()
		case <-tabCtx.Done():
		}
	}()

	var pdf []byte
	err = chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithMarginTop(0.5).
				WithMarginBottom(0.5).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}

	c.logger.Debug("rendered pdf", "bytes", len(pdf))
	return pdf, nil
}

// Close shuts down the browser process.
func (c *ChromiumConverter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browserStop != nil {
		c.browserStop()
		c.browserStop = nil
		c.browserCtx = nil
	}
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocCancel = nil
	}
	return nil
}

// documentTitle lifts the first heading line for the HTML title.
func documentTitle(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, "#"); ok {
			return strings.TrimSpace(strings.TrimLeft(rest, "#"))
		}
	}
	return "Interview Prep"
}
