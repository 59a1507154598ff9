package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/tabide/pagecheck/internal/types"
)

// Launcher starts browser sessions for runs
type Launcher interface {
	Launch(ctx context.Context, run *types.Run) (Session, error)
}

// Session is one browser process owned by a run
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab
type Page interface {
	SetViewport(ctx context.Context, vp types.Viewport) error
	Navigate(ctx context.Context, url string) (status int64, err error)
	Click(ctx context.Context, q types.Query) error
	Check(ctx context.Context, q types.Query) error
	WaitVisible(ctx context.Context, q types.Query, visible bool) error
	IsVisible(ctx context.Context, q types.Query) (bool, error)
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	Close() error
}

// Chrome launches a local Chrome through chromedp
type Chrome struct {
	ExecPath  string
	NoSandbox bool
	UserAgent string
}

// Launch starts Chrome for run and prepares every page it opens with the
// run's cookies and local storage.
func (c *Chrome) Launch(ctx context.Context, run *types.Run) (Session, error) {
	opts := Options(Config{
		Headless:  run.Headless,
		Width:     run.Viewport.Width,
		Height:    run.Viewport.Height,
		ExecPath:  c.ExecPath,
		NoSandbox: c.NoSandbox,
		UserAgent: c.UserAgent,
	})

	// The browser outlives cancellation of ctx until Close so cleanup and
	// the error screenshot still have a target to talk to.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run with no actions starts the browser
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	initScript, err := localStorageScript(run.LocalStorage)
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	return &chromeSession{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		baseURL:       run.BaseURL,
		cookies:       run.Cookies,
		initScript:    initScript,
	}, nil
}

type chromeSession struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	baseURL    string
	cookies    []types.Cookie
	initScript string

	closeOnce sync.Once
	closeErr  error
	marks     atomic.Int64
}

// NewPage opens a fresh tab
func (s *chromeSession) NewPage(ctx context.Context) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	p := &chromePage{ctx: tabCtx, cancel: tabCancel, session: s}

	// The first Run creates the target and binds it to the context it was
	// given, so it must not be a short-lived derived one.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	setup := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if s.initScript == "" {
				return nil
			}
			_, err := cdppage.AddScriptToEvaluateOnNewDocument(s.initScript).Do(ctx)
			return err
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range s.cookies {
				params := network.SetCookie(c.Name, c.Value)
				if c.Domain != "" {
					params = params.WithDomain(c.Domain).WithPath(cookiePath(c.Path))
				} else {
					params = params.WithURL(s.baseURL)
				}
				if err := params.Do(ctx); err != nil {
					return fmt.Errorf("failed to set cookie %s: %w", c.Name, err)
				}
			}
			return nil
		}),
	}

	if err := p.run(ctx, setup...); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to prepare page: %w", err)
	}
	return p, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		// Cancel asks Chrome to exit gracefully before the process is killed
		s.closeErr = chromedp.Cancel(s.browserCtx)
		s.browserCancel()
		s.allocCancel()
	})
	return s.closeErr
}

func (s *chromeSession) nextMark() string {
	return fmt.Sprintf("t%d", s.marks.Add(1))
}

type chromePage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	session *chromeSession
}

// scoped derives a chromedp context for this tab that also ends when the
// caller's ctx does, carrying the caller's cause.
func (p *chromePage) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancelCause(p.ctx)
	stop := context.AfterFunc(ctx, func() {
		cancel(context.Cause(ctx))
	})
	return runCtx, func() {
		stop()
		cancel(nil)
	}
}

// run executes actions on the tab under ctx
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := p.scoped(ctx)
	defer cancel()
	return callerErr(ctx, chromedp.Run(runCtx, actions...))
}

// callerErr reports why the caller's ctx ended when chromedp only saw its
// scoped context being cancelled.
func callerErr(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil || errors.Is(err, ctx.Err()) {
		return err
	}
	return fmt.Errorf("%w (%v)", context.Cause(ctx), err)
}

func (p *chromePage) SetViewport(ctx context.Context, vp types.Viewport) error {
	scale := vp.Scale
	if scale == 0 {
		scale = 1
	}
	return p.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetDeviceMetricsOverride(vp.Width, vp.Height, scale, vp.Mobile).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetTouchEmulationEnabled(vp.Mobile).Do(ctx)
		}),
	)
}

func (p *chromePage) Navigate(ctx context.Context, url string) (int64, error) {
	runCtx, cancel := p.scoped(ctx)
	defer cancel()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		return 0, callerErr(ctx, err)
	}
	if resp == nil {
		// Same-document navigations have no response
		return 0, nil
	}
	return resp.Status, nil
}

func (p *chromePage) Click(ctx context.Context, q types.Query) error {
	mark := p.session.nextMark()
	return p.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return waitFor(ctx, q, true, mark)
		}),
		chromedp.Click(markSelector(mark), chromedp.ByQuery, chromedp.NodeVisible),
	)
}

func (p *chromePage) Check(ctx context.Context, q types.Query) error {
	mark := p.session.nextMark()
	var state probeResult
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := waitFor(ctx, q, true, mark); err != nil {
			return err
		}
		var err error
		state, err = probe(ctx, q, mark)
		return err
	}))
	if err != nil {
		return err
	}
	if state.Checked {
		return nil
	}

	return p.run(ctx,
		chromedp.Click(markSelector(mark), chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return waitChecked(ctx, q)
		}),
	)
}

func (p *chromePage) WaitVisible(ctx context.Context, q types.Query, visible bool) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return waitFor(ctx, q, visible, "")
	}))
}

func (p *chromePage) IsVisible(ctx context.Context, q types.Query) (bool, error) {
	var res probeResult
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		res, err = probe(ctx, q, "")
		return err
	}))
	if err != nil {
		return false, err
	}
	return res.Visible, nil
}

func (p *chromePage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	var action chromedp.Action
	if fullPage {
		// Quality 100 keeps the capture PNG
		action = chromedp.FullScreenshot(&buf, 100)
	} else {
		action = chromedp.CaptureScreenshot(&buf)
	}
	if err := p.run(ctx, action); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

func markSelector(mark string) string {
	return fmt.Sprintf(`[%s=%q]`, TargetAttr, mark)
}

func cookiePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// localStorageScript returns JS that seeds local storage before page scripts
// run. Keys are sorted so the script is stable.
func localStorageScript(entries map[string]string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("try {\n")
	for _, k := range keys {
		kJSON, err := json.Marshal(k)
		if err != nil {
			return "", err
		}
		vJSON, err := json.Marshal(entries[k])
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\twindow.localStorage.setItem(%s, %s);\n", kJSON, vJSON)
	}
	b.WriteString("} catch (e) {}\n")
	return b.String(), nil
}
