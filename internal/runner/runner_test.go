package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabide/pagecheck/internal/browser"
	"github.com/tabide/pagecheck/internal/types"
)

// fakeBrowser records every call made through the browser interfaces in order
type fakeBrowser struct {
	mu     sync.Mutex
	calls  []string
	closed int
	pages  int

	launchErr error
	// never lists queries that WaitVisible never sees
	never map[string]bool
	// hidden lists queries IsVisible reports as not visible
	hidden map[string]bool
	// shotErr fails every screenshot
	shotErr error
	// outputDir is checked for the previous screenshot before each navigation
	outputDir string
	seen      []string
	navAt     []time.Time
}

func (f *fakeBrowser) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeBrowser) Launch(ctx context.Context, run *types.Run) (browser.Session, error) {
	f.record("launch")
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	return &fakeSession{b: f}, nil
}

type fakeSession struct {
	b *fakeBrowser
}

func (s *fakeSession) NewPage(ctx context.Context) (browser.Page, error) {
	s.b.record("newpage")
	s.b.mu.Lock()
	s.b.pages++
	s.b.mu.Unlock()
	return &fakePage{b: s.b}, nil
}

func (s *fakeSession) Close() error {
	s.b.record("close")
	s.b.mu.Lock()
	s.b.closed++
	s.b.mu.Unlock()
	return nil
}

type fakePage struct {
	b *fakeBrowser
}

func (p *fakePage) SetViewport(ctx context.Context, vp types.Viewport) error {
	p.b.record("viewport %dx%d", vp.Width, vp.Height)
	return nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) (int64, error) {
	if p.b.outputDir != "" {
		entries, _ := os.ReadDir(p.b.outputDir)
		p.b.mu.Lock()
		p.b.seen = append(p.b.seen, fmt.Sprintf("%d", len(entries)))
		p.b.mu.Unlock()
	}
	p.b.mu.Lock()
	p.b.navAt = append(p.b.navAt, time.Now())
	p.b.mu.Unlock()
	p.b.record("navigate %s", url)
	return 200, nil
}

func (p *fakePage) Click(ctx context.Context, q types.Query) error {
	p.b.record("click %s", q)
	return nil
}

func (p *fakePage) Check(ctx context.Context, q types.Query) error {
	p.b.record("check %s", q)
	return nil
}

func (p *fakePage) WaitVisible(ctx context.Context, q types.Query, visible bool) error {
	p.b.record("wait %s visible=%v", q, visible)
	if p.b.never[q.String()] {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (p *fakePage) IsVisible(ctx context.Context, q types.Query) (bool, error) {
	p.b.record("visible %s", q)
	return !p.b.hidden[q.String()], nil
}

func (p *fakePage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	p.b.record("screenshot full=%v", fullPage)
	if p.b.shotErr != nil {
		return nil, p.b.shotErr
	}
	return []byte("\x89PNG fake"), nil
}

func (p *fakePage) Close() error {
	return nil
}

func testRun(t *testing.T) *types.Run {
	t.Helper()
	return &types.Run{
		Name:        "test",
		BaseURL:     "http://localhost:3000",
		Viewport:    types.Viewport{Width: 1280, Height: 800, Scale: 1},
		Headless:    true,
		OutputDir:   t.TempDir(),
		NavTimeout:  types.Duration{Duration: time.Second},
		WaitTimeout: types.Duration{Duration: 50 * time.Millisecond},
	}
}

func heading(name string) *types.Query {
	return &types.Query{Role: "heading", Name: name}
}

func TestRunExecutesStepsInOrder(t *testing.T) {
	run := testRun(t)
	run.Steps = []types.Step{
		{
			Name:       "home",
			URL:        "/",
			Wait:       types.Wait{For: heading("start")},
			Screenshot: &types.Screenshot{Path: "home.png"},
		},
		{
			Name:    "next",
			Actions: []types.Action{{Kind: types.ActionClick, Target: types.Query{Role: "button", Name: "Next"}}},
			Wait:    types.Wait{For: heading("second")},
			Assertions: []types.Assertion{
				{Query: types.Query{Text: "loading"}},
			},
			Screenshot: &types.Screenshot{Path: "next.png", FullPage: true},
		},
	}

	fb := &fakeBrowser{}
	result, err := New(fb).Run(context.Background(), run)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, []string{
		"launch",
		"newpage",
		"viewport 1280x800",
		"navigate http://localhost:3000/",
		`wait role heading named "start" visible=true`,
		"screenshot full=false",
		`click role button named "Next"`,
		`wait role heading named "second" visible=true`,
		`visible text "loading"`,
		"screenshot full=true",
		"close",
	}, fb.calls)

	assert.True(t, result.Passed())
	assert.Equal(t, 2, result.StepsCompleted)
	assert.Equal(t, 2, result.StepsTotal)
	assert.Equal(t, []string{
		filepath.Join(run.OutputDir, "home.png"),
		filepath.Join(run.OutputDir, "next.png"),
	}, result.Artifacts)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, types.StatusPassed, result.Steps[1].Status)
	assert.NotEmpty(t, result.ID)

	for _, a := range result.Artifacts {
		assert.FileExists(t, a)
	}
}

func TestRunScreenshotWrittenBeforeNextStep(t *testing.T) {
	run := testRun(t)
	run.Steps = []types.Step{
		{Name: "a", URL: "/a", Screenshot: &types.Screenshot{Path: "a.png"}},
		{Name: "b", URL: "/b", Screenshot: &types.Screenshot{Path: "b.png"}},
		{Name: "c", URL: "/c"},
	}

	fb := &fakeBrowser{outputDir: run.OutputDir}
	_, err := New(fb).Run(context.Background(), run)
	require.NoError(t, err)

	// Directory entries seen at each navigation
	assert.Equal(t, []string{"0", "1", "2"}, fb.seen)
}

func TestRunWaitTimeoutAborts(t *testing.T) {
	run := testRun(t)
	run.Steps = []types.Step{
		{Name: "home", URL: "/", Screenshot: &types.Screenshot{Path: "home.png"}},
		{Name: "stuck", URL: "/stuck", Wait: types.Wait{For: heading("never")}},
		{Name: "after", URL: "/after", Screenshot: &types.Screenshot{Path: "after.png"}},
	}

	fb := &fakeBrowser{never: map[string]bool{`role heading named "never"`: true}}
	result, err := New(fb).Run(context.Background(), run)
	require.Error(t, err)
	require.NotNil(t, result)

	assert.Equal(t, KindWait, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Index)
	assert.Equal(t, "stuck", se.Step)

	assert.False(t, result.Passed())
	assert.Equal(t, 1, result.StepsCompleted)
	assert.NotContains(t, fb.calls, "navigate http://localhost:3000/after")
	assert.NoFileExists(t, filepath.Join(run.OutputDir, "after.png"))

	assert.Equal(t, 1, fb.closed)
	assert.Equal(t, "close", fb.calls[len(fb.calls)-1])

	assert.Equal(t, filepath.Join(run.OutputDir, "error_01_stuck.png"), result.ErrorScreenshot)
	assert.FileExists(t, result.ErrorScreenshot)
	assert.NotContains(t, result.Artifacts, result.ErrorScreenshot)
}

func TestRunStepWaitTimeoutOverridesRun(t *testing.T) {
	run := testRun(t)
	run.WaitTimeout = types.Duration{Duration: time.Hour}
	run.Steps = []types.Step{
		{Name: "stuck", URL: "/", Wait: types.Wait{For: heading("never"), Timeout: types.Duration{Duration: 20 * time.Millisecond}}},
	}

	fb := &fakeBrowser{never: map[string]bool{`role heading named "never"`: true}}
	start := time.Now()
	_, err := New(fb).Run(context.Background(), run)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunFixedDelayWaitsFullDuration(t *testing.T) {
	run := testRun(t)
	run.Steps = []types.Step{
		{Name: "a", URL: "/a", Wait: types.Wait{Delay: types.D(150 * time.Millisecond)}},
		{Name: "b", URL: "/b"},
	}

	fb := &fakeBrowser{}
	result, err := New(fb).Run(context.Background(), run)
	require.NoError(t, err)
	assert.True(t, result.Passed())

	require.Len(t, fb.navAt, 2)
	assert.GreaterOrEqual(t, fb.navAt[1].Sub(fb.navAt[0]), 150*time.Millisecond)
	assert.NotContains(t, fb.calls, "wait")
}

func TestRunWaitHiddenPassedToPage(t *testing.T) {
	run := testRun(t)
	run.Steps = []types.Step{{
		Name: "loaded",
		URL:  "/",
		Wait: types.Wait{For: &types.Query{Text: "loading"}, Hidden: true},
	}}

	fb := &fakeBrowser{}
	_, err := New(fb).Run(context.Background(), run)
	require.NoError(t, err)
	assert.Contains(t, fb.calls, `wait text "loading" visible=false`)
}

func TestRunRejectsScreenshotNamedLikeErrorCapture(t *testing.T) {
	run := testRun(t)
	run.Steps = []types.Step{
		{Name: "a", URL: "/a", Screenshot: &types.Screenshot{Path: "error_01_b.png"}},
		{Name: "b", URL: "/b", Wait: types.Wait{For: heading("never")}},
	}

	fb := &fakeBrowser{never: map[string]bool{`role heading named "never"`: true}}
	result, err := New(fb).Run(context.Background(), run)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Empty(t, fb.calls)
	assert.NoFileExists(t, filepath.Join(run.OutputDir, "error_01_b.png"))
}

func TestRunAssertionFailure(t *testing.T) {
	run := testRun(t)
	run.Steps = []types.Step{
		{
			Name:       "home",
			URL:        "/",
			Assertions: []types.Assertion{{Query: types.Query{Text: "Loading"}}},
			Screenshot: &types.Screenshot{Path: "home.png"},
		},
	}

	fb := &fakeBrowser{hidden: map[string]bool{`text "Loading"`: true}}
	result, err := New(fb).Run(context.Background(), run)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAssertionFailed)
	assert.Equal(t, KindAssertion, KindOf(err))
	assert.Equal(t, 0, result.StepsCompleted)
	assert.Empty(t, result.Artifacts)
	assert.Equal(t, 1, fb.closed)
}

func TestRunExpectHidden(t *testing.T) {
	hidden := false
	run := testRun(t)
	run.Steps = []types.Step{
		{
			Name:       "home",
			URL:        "/",
			Assertions: []types.Assertion{{Query: types.Query{Text: "Error"}, Visible: &hidden}},
		},
	}

	fb := &fakeBrowser{hidden: map[string]bool{`text "Error"`: true}}
	result, err := New(fb).Run(context.Background(), run)
	require.NoError(t, err)
	assert.True(t, result.Passed())
}

func TestRunLaunchFailure(t *testing.T) {
	run := testRun(t)
	run.Steps = []types.Step{{Name: "home", URL: "/"}}

	fb := &fakeBrowser{launchErr: errors.New("chrome not found")}
	result, err := New(fb).Run(context.Background(), run)
	require.Error(t, err)
	require.NotNil(t, result)

	assert.Equal(t, KindBrowser, KindOf(err))
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, -1, se.Index)
	assert.Equal(t, types.StatusFailed, result.Status)
	assert.Equal(t, 0, fb.closed)
	assert.Empty(t, result.ErrorScreenshot)
}

func TestRunInvalidRunStartsNoBrowser(t *testing.T) {
	run := testRun(t)

	fb := &fakeBrowser{}
	result, err := New(fb).Run(context.Background(), run)
	require.ErrorIs(t, err, types.ErrNoSteps)
	assert.Nil(t, result)
	assert.Empty(t, fb.calls)
}

func TestRunScreenshotFailureStillCloses(t *testing.T) {
	run := testRun(t)
	run.Steps = []types.Step{
		{Name: "home", URL: "/", Screenshot: &types.Screenshot{Path: "home.png"}},
	}

	fb := &fakeBrowser{shotErr: errors.New("capture failed")}
	result, err := New(fb).Run(context.Background(), run)
	require.Error(t, err)
	assert.Equal(t, KindScreenshot, KindOf(err))
	assert.Empty(t, result.ErrorScreenshot)
	assert.Equal(t, 1, fb.closed)
}

func TestRunQueryVariantsWriteDistinctArtifacts(t *testing.T) {
	run := testRun(t)
	run.Steps = []types.Step{
		{Name: "basic", URL: "/travel-info/Paris?categories=basic", Screenshot: &types.Screenshot{Path: "travel_info_paris_basic.png"}},
		{Name: "safety", URL: "/travel-info/Paris?categories=safety", Screenshot: &types.Screenshot{Path: "travel_info_paris_safety.png"}},
	}

	fb := &fakeBrowser{}
	result, err := New(fb).Run(context.Background(), run)
	require.NoError(t, err)
	require.Len(t, result.Artifacts, 2)
	assert.NotEqual(t, result.Artifacts[0], result.Artifacts[1])
	assert.Contains(t, fb.calls, "navigate http://localhost:3000/travel-info/Paris?categories=basic")
	assert.Contains(t, fb.calls, "navigate http://localhost:3000/travel-info/Paris?categories=safety")
}

func TestRunViewportChangesPerStep(t *testing.T) {
	run := testRun(t)
	mobile := types.Viewport{Width: 390, Height: 844, Scale: 3, Mobile: true}
	run.Steps = []types.Step{
		{Name: "desktop", URL: "/"},
		{Name: "mobile", URL: "/", Viewport: &mobile},
		{Name: "mobile-again", URL: "/travel-info", Viewport: &mobile},
	}

	fb := &fakeBrowser{}
	_, err := New(fb).Run(context.Background(), run)
	require.NoError(t, err)

	var viewports []string
	for _, c := range fb.calls {
		if len(c) > 8 && c[:8] == "viewport" {
			viewports = append(viewports, c)
		}
	}
	assert.Equal(t, []string{"viewport 1280x800", "viewport 390x844"}, viewports)
}

func TestRunIsolateSteps(t *testing.T) {
	run := testRun(t)
	run.IsolateSteps = true
	run.Steps = []types.Step{
		{Name: "a", URL: "/a"},
		{Name: "b", URL: "/b"},
		{Name: "c", URL: "/c"},
	}

	fb := &fakeBrowser{}
	_, err := New(fb).Run(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, 3, fb.pages)
	assert.Equal(t, 1, fb.closed)
}

func TestRunCancelledContext(t *testing.T) {
	run := testRun(t)
	run.Steps = []types.Step{
		{Name: "slow", URL: "/", Wait: types.Wait{Delay: types.Duration{Duration: time.Hour}}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	fb := &fakeBrowser{}
	result, err := New(fb).Run(ctx, run)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fb.closed)
	// The diagnostic capture ignores the cancelled parent
	assert.NotEmpty(t, result.ErrorScreenshot)
}
