package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabide/pagecheck/internal/browser"
	"github.com/tabide/pagecheck/internal/types"
)

const wizardPage = `<!DOCTYPE html>
<html lang="ja">
<head><meta charset="utf-8"><title>planner</title></head>
<body>
<main id="app"></main>
<script>
  const app = document.getElementById('app');
  // Render late so waits have something to wait for
  setTimeout(() => {
    app.innerHTML = '<h1>行き先は<br>決まっていますか？</h1>' +
      '<button id="undecided">決まっていない</button>' +
      '<p id="consent">' + (localStorage.getItem('cookie_consent_accepted') || 'missing') + '</p>';
    document.getElementById('undecided').addEventListener('click', () => {
      app.innerHTML = '<h2>どんな旅行に行きたいですか？</h2>' +
        '<label><input type="checkbox"> 未定</label>' +
        '<label><input type="checkbox"> 未定</label>';
    });
  }, 200);
</script>
</body>
</html>`

func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome installed")
	return ""
}

func chromeRun(t *testing.T, baseURL string) *types.Run {
	t.Helper()
	return &types.Run{
		Name:         "chrome",
		BaseURL:      baseURL,
		Viewport:     types.Viewport{Width: 800, Height: 600, Scale: 1},
		Headless:     true,
		OutputDir:    t.TempDir(),
		NavTimeout:   types.D(20 * time.Second),
		WaitTimeout:  types.D(5 * time.Second),
		LocalStorage: map[string]string{"cookie_consent_accepted": "true"},
	}
}

func newChromeRunner(t *testing.T) *Runner {
	t.Helper()
	return New(&browser.Chrome{
		ExecPath:  findChrome(t),
		NoSandbox: os.Geteuid() == 0,
	})
}

func TestChromeWizardFlow(t *testing.T) {
	r := newChromeRunner(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(wizardPage))
	}))
	defer srv.Close()

	run := chromeRun(t, srv.URL)
	run.Steps = []types.Step{
		{
			Name:       "initial",
			URL:        "/",
			Wait:       types.Wait{For: &types.Query{Role: "heading", Name: "行き先は 決まっていますか？", Exact: true}},
			Assertions: []types.Assertion{{Query: types.Query{Selector: "#consent"}}},
			Screenshot: &types.Screenshot{Path: "initial.png"},
		},
		{
			Name:    "region",
			Actions: []types.Action{{Kind: types.ActionClick, Target: types.Query{Role: "button", Name: "決まっていない"}}},
			Wait:    types.Wait{For: &types.Query{Role: "heading", Name: "どんな旅行"}},
		},
		{
			Name: "checks",
			Actions: []types.Action{
				{Kind: types.ActionCheck, Target: types.Query{Role: "checkbox", Name: "未定"}},
				{Kind: types.ActionCheck, Target: types.Query{Role: "checkbox", Name: "未定", Nth: -1}},
			},
			Screenshot: &types.Screenshot{Path: "checks.png", FullPage: true},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := r.Run(ctx, run)
	require.NoError(t, err)
	assert.True(t, result.Passed())
	assert.Equal(t, 3, result.StepsCompleted)

	for _, name := range []string{"initial.png", "checks.png"} {
		data, err := os.ReadFile(filepath.Join(run.OutputDir, name))
		require.NoError(t, err)
		assert.Equal(t, []byte("\x89PNG"), data[:4])
	}
}

func TestChromeLocalStorageSeeded(t *testing.T) {
	r := newChromeRunner(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(wizardPage))
	}))
	defer srv.Close()

	run := chromeRun(t, srv.URL)
	run.Steps = []types.Step{{
		Name: "consent",
		URL:  "/",
		Wait: types.Wait{For: &types.Query{Text: "true", Exact: true}},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_, err := r.Run(ctx, run)
	require.NoError(t, err)
}

func TestChromeNeverRenderingElement(t *testing.T) {
	r := newChromeRunner(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`<!DOCTYPE html><html><body><h1>Home</h1></body></html>`))
	}))
	defer srv.Close()

	run := chromeRun(t, srv.URL)
	run.WaitTimeout = types.D(500 * time.Millisecond)
	run.Steps = []types.Step{
		{Name: "home", URL: "/", Wait: types.Wait{For: &types.Query{Role: "heading", Name: "Home"}}},
		{Name: "never", URL: "/", Wait: types.Wait{For: &types.Query{Text: "never rendered"}}},
		{Name: "after", URL: "/", Screenshot: &types.Screenshot{Path: "after.png"}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := r.Run(ctx, run)
	require.Error(t, err)
	assert.Equal(t, KindWait, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, result.StepsCompleted)
	assert.NoFileExists(t, filepath.Join(run.OutputDir, "after.png"))
	assert.FileExists(t, result.ErrorScreenshot)
}

func TestChromeRoleQuerySkipsHiddenMatches(t *testing.T) {
	r := newChromeRunner(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`<!DOCTYPE html><html><body>
<h1 style="display:none">Home</h1>
<div aria-hidden="true"><h1>Home</h1></div>
<h1>Home</h1>
</body></html>`))
	}))
	defer srv.Close()

	run := chromeRun(t, srv.URL)
	run.WaitTimeout = types.D(2 * time.Second)
	run.Steps = []types.Step{{
		Name:       "home",
		URL:        "/",
		Wait:       types.Wait{For: &types.Query{Role: "heading", Name: "Home", Exact: true}},
		Assertions: []types.Assertion{{Query: types.Query{Role: "heading", Name: "Home", Exact: true, Nth: -1}}},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := r.Run(ctx, run)
	require.NoError(t, err)
	assert.True(t, result.Passed())
}
