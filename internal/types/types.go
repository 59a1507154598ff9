package types

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("15s", "500ms") in TOML, YAML and JSON.
type Duration struct {
	time.Duration
}

// D wraps a time.Duration
func D(d time.Duration) Duration {
	return Duration{Duration: d}
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// Viewport is the simulated browser window used when rendering a page
type Viewport struct {
	Width  int64   `toml:"width" yaml:"width" json:"width"`
	Height int64   `toml:"height" yaml:"height" json:"height"`
	Scale  float64 `toml:"scale,omitempty" yaml:"scale,omitempty" json:"scale,omitempty"`
	Mobile bool    `toml:"mobile,omitempty" yaml:"mobile,omitempty" json:"mobile,omitempty"`
}

// IsZero reports whether no viewport was configured
func (v Viewport) IsZero() bool {
	return v.Width == 0 && v.Height == 0
}

// Query locates an element on a rendered page. Exactly one of Selector, Role
// or Text is set.
type Query struct {
	Selector string `toml:"selector,omitempty" yaml:"selector,omitempty" json:"selector,omitempty"`
	Role     string `toml:"role,omitempty" yaml:"role,omitempty" json:"role,omitempty"`
	Name     string `toml:"name,omitempty" yaml:"name,omitempty" json:"name,omitempty"`
	Text     string `toml:"text,omitempty" yaml:"text,omitempty" json:"text,omitempty"`

	// Exact disables case-insensitive substring matching of Name/Text.
	Exact bool `toml:"exact,omitempty" yaml:"exact,omitempty" json:"exact,omitempty"`
	// Regex treats Name/Text as a JavaScript regular expression.
	Regex bool `toml:"regex,omitempty" yaml:"regex,omitempty" json:"regex,omitempty"`
	// Nth picks among matches: 0 is the first, -1 the last.
	Nth int `toml:"nth,omitempty" yaml:"nth,omitempty" json:"nth,omitempty"`
}

// IsZero reports whether the query has no locator
func (q Query) IsZero() bool {
	return q.Selector == "" && q.Role == "" && q.Text == ""
}

func (q Query) String() string {
	var s string
	switch {
	case q.Selector != "":
		s = fmt.Sprintf("selector %q", q.Selector)
	case q.Role != "" && q.Name != "":
		s = fmt.Sprintf("role %s named %q", q.Role, q.Name)
	case q.Role != "":
		s = fmt.Sprintf("role %s", q.Role)
	default:
		s = fmt.Sprintf("text %q", q.Text)
	}
	switch {
	case q.Nth == -1:
		s += " (last)"
	case q.Nth > 0:
		s += fmt.Sprintf(" (#%d)", q.Nth)
	}
	return s
}

// Wait is a step's readiness condition: a fixed delay, or a query that must
// become visible (or hidden) within Timeout.
type Wait struct {
	Delay   Duration `toml:"delay,omitempty" yaml:"delay,omitempty" json:"delay,omitempty"`
	For     *Query   `toml:"for,omitempty" yaml:"for,omitempty" json:"for,omitempty"`
	Hidden  bool     `toml:"hidden,omitempty" yaml:"hidden,omitempty" json:"hidden,omitempty"`
	Timeout Duration `toml:"timeout,omitempty" yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Assertion checks that a query's visibility matches Visible
type Assertion struct {
	Query   Query `toml:"query" yaml:"query" json:"query"`
	Visible *bool `toml:"visible,omitempty" yaml:"visible,omitempty" json:"visible,omitempty"`
}

// ExpectVisible returns the expected visibility, defaulting to true
func (a Assertion) ExpectVisible() bool {
	return a.Visible == nil || *a.Visible
}

// ActionKind names an interaction performed on a page
type ActionKind string

const (
	ActionClick ActionKind = "click"
	ActionCheck ActionKind = "check"
)

// Action is an interaction performed after navigation and before the wait
type Action struct {
	Kind   ActionKind `toml:"kind" yaml:"kind" json:"kind"`
	Target Query      `toml:"target" yaml:"target" json:"target"`
}

// Screenshot is where and how a step's capture is written
type Screenshot struct {
	Path     string `toml:"path" yaml:"path" json:"path"`
	FullPage bool   `toml:"full_page,omitempty" yaml:"full_page,omitempty" json:"full_page,omitempty"`
}

// Step is one ordered unit of verification work
type Step struct {
	Name       string      `toml:"name" yaml:"name" json:"name"`
	URL        string      `toml:"url,omitempty" yaml:"url,omitempty" json:"url,omitempty"`
	Viewport   *Viewport   `toml:"viewport,omitempty" yaml:"viewport,omitempty" json:"viewport,omitempty"`
	Actions    []Action    `toml:"actions,omitempty" yaml:"actions,omitempty" json:"actions,omitempty"`
	Wait       Wait        `toml:"wait,omitempty" yaml:"wait,omitempty" json:"wait,omitempty"`
	Assertions []Assertion `toml:"assertions,omitempty" yaml:"assertions,omitempty" json:"assertions,omitempty"`
	Screenshot *Screenshot `toml:"screenshot,omitempty" yaml:"screenshot,omitempty" json:"screenshot,omitempty"`
}

// Cookie is pre-seeded into the browser before the first navigation
type Cookie struct {
	Name   string `toml:"name" yaml:"name" json:"name"`
	Value  string `toml:"value" yaml:"value" json:"value"`
	Domain string `toml:"domain,omitempty" yaml:"domain,omitempty" json:"domain,omitempty"`
	Path   string `toml:"path,omitempty" yaml:"path,omitempty" json:"path,omitempty"`
}

// Run is an ordered sequence of steps executed in one browser session
type Run struct {
	Name         string   `toml:"name" yaml:"name" json:"name"`
	BaseURL      string   `toml:"base_url" yaml:"base_url" json:"base_url"`
	Viewport     Viewport `toml:"viewport" yaml:"viewport" json:"viewport"`
	Headless     bool     `toml:"headless" yaml:"headless" json:"headless"`
	OutputDir    string   `toml:"output_dir" yaml:"output_dir" json:"output_dir"`
	NavTimeout   Duration `toml:"nav_timeout" yaml:"nav_timeout" json:"nav_timeout"`
	WaitTimeout  Duration `toml:"wait_timeout" yaml:"wait_timeout" json:"wait_timeout"`
	IsolateSteps bool     `toml:"isolate_steps,omitempty" yaml:"isolate_steps,omitempty" json:"isolate_steps,omitempty"`
	Cookies      []Cookie `toml:"cookies,omitempty" yaml:"cookies,omitempty" json:"cookies,omitempty"`
	Steps        []Step   `toml:"steps" yaml:"steps" json:"steps"`

	// LocalStorage entries are written before every document loads.
	LocalStorage map[string]string `toml:"local_storage,omitempty" yaml:"local_storage,omitempty" json:"local_storage,omitempty"`
}

// Status is the outcome of a run or step
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// StepResult records what happened to a single step
type StepResult struct {
	Index      int           `json:"index"`
	Name       string        `json:"name"`
	URL        string        `json:"url,omitempty"`
	Status     Status        `json:"status"`
	Screenshot string        `json:"screenshot,omitempty"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// RunResult summarizes a finished run
type RunResult struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	BaseURL         string       `json:"base_url"`
	OutputDir       string       `json:"output_dir"`
	Status          Status       `json:"status"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
	StepsTotal      int          `json:"steps_total"`
	StepsCompleted  int          `json:"steps_completed"`
	Steps           []StepResult `json:"steps"`
	Artifacts       []string     `json:"artifacts"`
	ErrorScreenshot string       `json:"error_screenshot,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// Passed reports whether every step completed
func (r *RunResult) Passed() bool {
	return r.Status == StatusPassed
}

// Duration is the wall time of the run
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
