// Package capture renders a candidate preview page to PNG with headless
// Chromium.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	appLog "weekplan/internal/log"
)

// Default viewport for a weekly preview.
const (
	DefaultWidth   = 1200
	DefaultHeight  = 900
	DefaultTimeout = 30 * time.Second
)

// Options defines parameters for a preview capture.
type Options struct {
	// BaseURL is the web server root, e.g. "http://127.0.0.1:8080".
	BaseURL string
	// Index selects the candidate schedule rendered at /preview/{index}.
	Index int

	// OutputPath is where the PNG screenshot is written.
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used. Width is also passed to the
	// page as the layout viewport width.
	Width  int
	Height int

	// Username and Password are sent as HTTP basic auth when set.
	Username string
	Password string

	// Timeout bounds the entire capture. If zero, DefaultTimeout is used.
	Timeout time.Duration
}

// PreviewURL returns the page URL captured for opts.
func PreviewURL(opts Options) (string, error) {
	if opts.BaseURL == "" {
		return "", errors.New("capture: base URL is required")
	}
	if opts.Index < 0 {
		return "", fmt.Errorf("capture: invalid candidate index %d", opts.Index)
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("capture: base URL: %w", err)
	}
	u = u.JoinPath("preview", strconv.Itoa(opts.Index))
	if opts.Width > 0 {
		q := u.Query()
		q.Set("width", strconv.Itoa(opts.Width))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// PreviewPNG navigates headless Chromium to the preview page of one
// candidate, waits for `[data-ready="true"]` and writes a full-page PNG.
func PreviewPNG(parentCtx context.Context, opts Options) error {
	if opts.OutputPath == "" {
		return errors.New("capture: output path is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	target, err := PreviewURL(opts)
	if err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
	}
	if opts.Username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		tasks = append(tasks,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Authorization": "Basic " + token}),
		)
	}
	tasks = append(tasks,
		chromedp.Navigate(target),
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	)

	start := time.Now()
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if dir := filepath.Dir(opts.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
	}
	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	appLog.Info("capture completed", "index", opts.Index, "path", opts.OutputPath, "bytes", len(png), "elapsed", time.Since(start).String())
	return nil
}
