// Package browser drives Chrome through chromedp for page verification.
package browser

import "github.com/chromedp/chromedp"

// Config controls how Chrome is started
type Config struct {
	Headless  bool
	Width     int64
	Height    int64
	ExecPath  string
	NoSandbox bool
	UserAgent string
}

// Options returns chromedp allocator options for a verification session.
// All sessions should use this so captures stay comparable between runs.
func Options(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),

		// Keep rendering stable between captures
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("force-color-profile", "srgb"),
		chromedp.Flag("font-render-hinting", "none"),

		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	if cfg.Width > 0 && cfg.Height > 0 {
		opts = append(opts, chromedp.WindowSize(int(cfg.Width), int(cfg.Height)))
	}

	if cfg.Headless {
		opts = append(opts, chromedp.Flag("disable-gpu", true))
	}

	// Containers usually run Chrome as root, which requires this
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	return opts
}
