package types

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrNoSteps is returned when a run has nothing to do
var ErrNoSteps = errors.New("run has no steps")

// Validate checks that a query sets exactly one locator
func (q Query) Validate() error {
	set := 0
	for _, s := range []string{q.Selector, q.Role, q.Text} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("query must set exactly one of selector, role or text (got %d)", set)
	}
	if q.Name != "" && q.Role == "" {
		return fmt.Errorf("query name %q requires a role", q.Name)
	}
	if q.Nth < -1 {
		return fmt.Errorf("query nth must be >= -1, got %d", q.Nth)
	}
	return nil
}

// Validate checks that both dimensions are positive
func (v Viewport) Validate() error {
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("viewport must have positive width and height, got %dx%d", v.Width, v.Height)
	}
	if v.Scale < 0 {
		return fmt.Errorf("viewport scale must not be negative, got %v", v.Scale)
	}
	return nil
}

// Validate checks a run before any browser is started
func (r *Run) Validate() error {
	if len(r.Steps) == 0 {
		return ErrNoSteps
	}

	if err := r.Viewport.Validate(); err != nil {
		return err
	}

	u, err := url.Parse(r.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base url %q: %w", r.BaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base url %q must be an absolute http(s) url", r.BaseURL)
	}

	if r.NavTimeout.Duration < 0 || r.WaitTimeout.Duration < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	screenshots := make(map[string]string)
	for i, step := range r.Steps {
		label := step.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}

		if i == 0 && step.URL == "" {
			return fmt.Errorf("step %s: first step must navigate somewhere", label)
		}
		if r.IsolateSteps && step.URL == "" {
			return fmt.Errorf("step %s: isolated steps each need a url", label)
		}
		if strings.HasPrefix(step.URL, "//") {
			return fmt.Errorf("step %s: url %q has no scheme", label, step.URL)
		}
		if step.Viewport != nil {
			if err := step.Viewport.Validate(); err != nil {
				return fmt.Errorf("step %s: %w", label, err)
			}
		}

		for j, a := range step.Actions {
			if a.Kind != ActionClick && a.Kind != ActionCheck {
				return fmt.Errorf("step %s: action %d: unknown kind %q", label, j, a.Kind)
			}
			if err := a.Target.Validate(); err != nil {
				return fmt.Errorf("step %s: action %d: %w", label, j, err)
			}
		}

		if step.Wait.Delay.Duration < 0 || step.Wait.Timeout.Duration < 0 {
			return fmt.Errorf("step %s: wait durations must not be negative", label)
		}
		if step.Wait.For == nil && (step.Wait.Hidden || step.Wait.Timeout.Duration > 0) {
			return fmt.Errorf("step %s: wait sets hidden or timeout without for", label)
		}
		if step.Wait.For != nil {
			if step.Wait.Delay.Duration > 0 {
				return fmt.Errorf("step %s: wait sets both delay and for", label)
			}
			if err := step.Wait.For.Validate(); err != nil {
				return fmt.Errorf("step %s: wait: %w", label, err)
			}
		}

		for j, a := range step.Assertions {
			if err := a.Query.Validate(); err != nil {
				return fmt.Errorf("step %s: assertion %d: %w", label, j, err)
			}
		}

		if step.Screenshot != nil {
			if step.Screenshot.Path == "" {
				return fmt.Errorf("step %s: screenshot path is empty", label)
			}
			key := r.ResolvePath(step.Screenshot.Path)
			if prev, ok := screenshots[key]; ok {
				return fmt.Errorf("step %s: screenshot %s already written by step %s", label, step.Screenshot.Path, prev)
			}
			screenshots[key] = label
		}
	}

	// A failing step's diagnostic capture must not replace a declared one
	for i, step := range r.Steps {
		key := r.ResolvePath(ErrorScreenshotName(i, step.Name))
		if prev, ok := screenshots[key]; ok {
			return fmt.Errorf("step %s: screenshot %s is reserved for the error capture of step #%d", prev, filepath.Base(key), i)
		}
	}

	return nil
}

// ErrorScreenshotName is the file name used for the diagnostic capture of a
// failed step
func ErrorScreenshotName(i int, step string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, step)
	if name == "" {
		return fmt.Sprintf("error_%02d.png", i)
	}
	return fmt.Sprintf("error_%02d_%s.png", i, name)
}

// ResolvePath places a relative artifact path under the run's output directory
func (r *Run) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(r.OutputDir, p)
}

// StepURL joins the base url and a step's path
func (r *Run) StepURL(step Step) (string, error) {
	base, err := url.Parse(r.BaseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(step.URL)
	if err != nil {
		return "", fmt.Errorf("invalid step url %q: %w", step.URL, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if ref.Host != "" {
		return "", fmt.Errorf("step url %q has a host but no scheme", step.URL)
	}

	// Keep any base path prefix (e.g. an app served under /planner).
	joined := *base
	basePath := base.Path
	if len(basePath) > 0 && basePath[len(basePath)-1] == '/' {
		basePath = basePath[:len(basePath)-1]
	}
	refPath := ref.Path
	if refPath != "" && refPath[0] != '/' {
		refPath = "/" + refPath
	}
	joined.Path = basePath + refPath
	if joined.Path == "" {
		joined.Path = "/"
	}
	joined.RawQuery = ref.RawQuery
	joined.Fragment = ref.Fragment
	return joined.String(), nil
}
