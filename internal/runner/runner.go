// Package runner executes verification runs step by step in one browser
// session and writes their screenshots.
package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tabide/pagecheck/internal/browser"
	"github.com/tabide/pagecheck/internal/types"
)

// ErrorScreenshotTimeout bounds the best-effort capture taken after a failure
const ErrorScreenshotTimeout = 10 * time.Second

// Runner executes runs against a browser
type Runner struct {
	launcher browser.Launcher
}

// New creates a runner that opens sessions with launcher
func New(launcher browser.Launcher) *Runner {
	return &Runner{launcher: launcher}
}

// Run executes every step of run in order. The returned result is non-nil
// whenever the run got past validation, including on failure. The browser
// session is closed before Run returns.
func (r *Runner) Run(ctx context.Context, run *types.Run) (*types.RunResult, error) {
	if err := run.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run %s: %w", run.Name, err)
	}

	result := &types.RunResult{
		ID:         uuid.NewString(),
		Name:       run.Name,
		BaseURL:    run.BaseURL,
		OutputDir:  run.OutputDir,
		StartedAt:  time.Now(),
		StepsTotal: len(run.Steps),
		Artifacts:  []string{},
	}

	log.Printf("[runner] Starting run %s (%d steps) against %s", run.Name, len(run.Steps), run.BaseURL)

	session, err := r.launcher.Launch(ctx, run)
	if err != nil {
		stepErr := &StepError{Index: -1, Kind: KindBrowser, Err: err}
		return r.finish(result, stepErr), stepErr
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Printf("[runner] Failed to close browser: %v", err)
		}
	}()

	var page browser.Page
	var viewport *types.Viewport
	closePage := func() {
		if page != nil {
			page.Close()
			page = nil
			viewport = nil
		}
	}
	defer closePage()

	abort := func(i int, step types.Step, started time.Time, err error) (*types.RunResult, error) {
		r.recordStep(result, i, step, "", started, err)
		log.Printf("[runner] Step %d (%s) failed: %v", i, step.Name, err)
		result.ErrorScreenshot = r.captureError(ctx, run, page, i, step)
		r.finish(result, err)
		log.Printf("[runner] Run %s failed after %d of %d steps", run.Name, result.StepsCompleted, result.StepsTotal)
		return result, err
	}

	for i, step := range run.Steps {
		started := time.Now()

		if page == nil || run.IsolateSteps {
			closePage()
			page, err = session.NewPage(ctx)
			if err != nil {
				page = nil
				return abort(i, step, started, &StepError{Index: i, Step: step.Name, Kind: KindBrowser, Err: err})
			}
		}

		want := run.Viewport
		if step.Viewport != nil {
			want = *step.Viewport
		}
		if viewport == nil || *viewport != want {
			if err := page.SetViewport(ctx, want); err != nil {
				return abort(i, step, started, &StepError{Index: i, Step: step.Name, Kind: KindBrowser, Err: fmt.Errorf("failed to set viewport: %w", err)})
			}
			viewport = &want
		}

		shot, err := r.runStep(ctx, run, page, i, step)
		if err != nil {
			return abort(i, step, started, err)
		}
		r.recordStep(result, i, step, shot, started, nil)

		result.StepsCompleted++
		if shot != "" {
			result.Artifacts = append(result.Artifacts, shot)
			log.Printf("[runner] Step %d (%s) passed in %v, screenshot: %s", i, step.Name, time.Since(started).Round(time.Millisecond), shot)
		} else {
			log.Printf("[runner] Step %d (%s) passed in %v", i, step.Name, time.Since(started).Round(time.Millisecond))
		}
	}

	r.finish(result, nil)
	log.Printf("[runner] Run %s passed: %d steps, %d screenshots in %v",
		run.Name, result.StepsCompleted, len(result.Artifacts), result.Duration().Round(time.Millisecond))
	return result, nil
}

// runStep performs navigate, actions, wait, assertions and screenshot for
// one step. It returns the screenshot path written, if any.
func (r *Runner) runStep(ctx context.Context, run *types.Run, page browser.Page, i int, step types.Step) (string, error) {
	fail := func(kind ErrorKind, err error) (string, error) {
		return "", &StepError{Index: i, Step: step.Name, Kind: kind, Err: err}
	}

	if step.URL != "" {
		target, err := run.StepURL(step)
		if err != nil {
			return fail(KindNavigation, err)
		}

		navCtx, cancel := withTimeout(ctx, run.NavTimeout.Duration)
		status, err := page.Navigate(navCtx, target)
		cancel()
		if err != nil {
			return fail(KindNavigation, fmt.Errorf("failed to navigate to %s: %w", target, err))
		}
		if status >= 400 {
			log.Printf("[runner] Step %d (%s): %s returned HTTP %d", i, step.Name, target, status)
		}
	}

	for j, action := range step.Actions {
		actCtx, cancel := withTimeout(ctx, run.WaitTimeout.Duration)
		var err error
		switch action.Kind {
		case types.ActionClick:
			err = page.Click(actCtx, action.Target)
		case types.ActionCheck:
			err = page.Check(actCtx, action.Target)
		default:
			err = fmt.Errorf("unknown action kind %q", action.Kind)
		}
		cancel()
		if err != nil {
			return fail(KindAction, fmt.Errorf("action %d (%s %s): %w", j, action.Kind, action.Target, err))
		}
	}

	if err := r.wait(ctx, run, page, step.Wait); err != nil {
		return fail(KindWait, err)
	}

	for j, a := range step.Assertions {
		visible, err := page.IsVisible(ctx, a.Query)
		if err != nil {
			return fail(KindAssertion, fmt.Errorf("assertion %d: %w", j, err))
		}
		if visible != a.ExpectVisible() {
			want := "visible"
			if !a.ExpectVisible() {
				want = "hidden"
			}
			return fail(KindAssertion, fmt.Errorf("%w: expected %s to be %s", ErrAssertionFailed, a.Query, want))
		}
	}

	if step.Screenshot == nil {
		return "", nil
	}

	path := run.ResolvePath(step.Screenshot.Path)
	if err := writeScreenshot(ctx, page, path, step.Screenshot.FullPage); err != nil {
		return fail(KindScreenshot, err)
	}
	return path, nil
}

// wait applies a step's wait condition. A fixed delay always sleeps for its
// full duration.
func (r *Runner) wait(ctx context.Context, run *types.Run, page browser.Page, w types.Wait) error {
	if w.Delay.Duration > 0 {
		return sleep(ctx, w.Delay.Duration)
	}
	if w.For == nil {
		return nil
	}

	timeout := w.Timeout.Duration
	if timeout == 0 {
		timeout = run.WaitTimeout.Duration
	}
	waitCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	return page.WaitVisible(waitCtx, *w.For, !w.Hidden)
}

func (r *Runner) recordStep(result *types.RunResult, i int, step types.Step, shot string, started time.Time, err error) {
	sr := types.StepResult{
		Index:      i,
		Name:       step.Name,
		URL:        step.URL,
		Status:     types.StatusPassed,
		Screenshot: shot,
		Duration:   time.Since(started),
	}
	if err != nil {
		sr.Status = types.StatusFailed
		sr.Error = err.Error()
	}
	result.Steps = append(result.Steps, sr)
}

// captureError takes the best-effort diagnostic screenshot. Its own failure
// is only logged.
func (r *Runner) captureError(ctx context.Context, run *types.Run, page browser.Page, i int, step types.Step) string {
	if page == nil {
		return ""
	}

	// Still capture when the run was cancelled
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ErrorScreenshotTimeout)
	defer cancel()

	path := run.ResolvePath(types.ErrorScreenshotName(i, step.Name))
	if err := writeScreenshot(shotCtx, page, path, false); err != nil {
		log.Printf("[runner] Could not capture error screenshot: %v", err)
		return ""
	}
	log.Printf("[runner] Error screenshot: %s", path)
	return path
}

func (r *Runner) finish(result *types.RunResult, err error) *types.RunResult {
	result.FinishedAt = time.Now()
	if err != nil {
		result.Status = types.StatusFailed
		result.Error = err.Error()
	} else {
		result.Status = types.StatusPassed
	}
	return result
}

func writeScreenshot(ctx context.Context, page browser.Page, path string, fullPage bool) error {
	buf, err := page.Screenshot(ctx, fullPage)
	if err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for screenshot: %w", err)
	}

	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to write screenshot to file: %w", err)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
