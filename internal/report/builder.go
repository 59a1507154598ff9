// Package report renders run results as an HTML screenshot gallery for manual
// review and as short summaries for notifications.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/tabide/pagecheck/internal/types"
)

// IndexFile is the gallery written into a run's output directory
const IndexFile = "index.html"

// Builder renders run results
type Builder struct {
	template *template.Template
}

// New creates a new report builder
func New() (*Builder, error) {
	tmpl, err := template.New("report").Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Builder{template: tmpl}, nil
}

// Summary is a rendered run result ready for sending
type Summary struct {
	Subject   string
	HTMLBody  string
	PlainBody string
}

// ReportData is the template data structure
type ReportData struct {
	Title    string
	Date     string
	Name     string
	BaseURL  string
	Passed   bool
	Error    string
	Duration string
	Steps    []StepData
	Stats    StatsData

	// ErrorImage is relative to the output directory, or absolute in e-mail
	ErrorImage string
	// Email lists screenshot paths instead of embedding images
	Email bool
}

// StepData represents a step in the report template
type StepData struct {
	Index    int
	Name     string
	URL      string
	Passed   bool
	Error    string
	Duration string

	// Image is relative to the output directory, or absolute in e-mail
	Image string
}

// StatsData contains run statistics
type StatsData struct {
	Total       int
	Completed   int
	Screenshots int
}

// Build writes the gallery for result into its output directory.
// Returns the path to index.html.
func (b *Builder) Build(result *types.RunResult) (string, error) {
	if result.OutputDir == "" {
		return "", fmt.Errorf("run %s has no output directory", result.Name)
	}

	html, err := b.render(b.data(result))
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(result.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	path := filepath.Join(result.OutputDir, IndexFile)
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// Summarize renders result as a notification message
func (b *Builder) Summarize(result *types.RunResult) (*Summary, error) {
	data := b.data(result)

	// Mail clients cannot resolve the gallery's relative image links
	data.Email = true
	data.ErrorImage = absolute(result.ErrorScreenshot)
	for i, s := range result.Steps {
		data.Steps[i].Image = absolute(s.Screenshot)
	}

	html, err := b.render(data)
	if err != nil {
		return nil, err
	}

	status := "passed"
	if !result.Passed() {
		status = "FAILED"
	}

	return &Summary{
		Subject:   fmt.Sprintf("pagecheck: %s %s (%d/%d steps)", result.Name, status, result.StepsCompleted, result.StepsTotal),
		HTMLBody:  html,
		PlainBody: buildPlainText(data),
	}, nil
}

func (b *Builder) data(result *types.RunResult) ReportData {
	data := ReportData{
		Title:      fmt.Sprintf("%s - %s", result.Name, statusWord(result.Passed())),
		Date:       result.StartedAt.Format("Monday, January 2 15:04:05"),
		Name:       result.Name,
		BaseURL:    result.BaseURL,
		Passed:     result.Passed(),
		Error:      result.Error,
		Duration:   result.Duration().Round(time.Millisecond).String(),
		ErrorImage: relative(result.OutputDir, result.ErrorScreenshot),
		Steps:      make([]StepData, len(result.Steps)),
		Stats: StatsData{
			Total:       result.StepsTotal,
			Completed:   result.StepsCompleted,
			Screenshots: len(result.Artifacts),
		},
	}

	for i, s := range result.Steps {
		data.Steps[i] = StepData{
			Index:    s.Index,
			Name:     s.Name,
			URL:      s.URL,
			Passed:   s.Status == types.StatusPassed,
			Error:    s.Error,
			Duration: s.Duration.Round(time.Millisecond).String(),
			Image:    relative(result.OutputDir, s.Screenshot),
		}
	}
	return data
}

func (b *Builder) render(data ReportData) (string, error) {
	var htmlBuf bytes.Buffer
	if err := b.template.Execute(&htmlBuf, data); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return htmlBuf.String(), nil
}

func statusWord(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

// relative makes an artifact path usable from index.html
func relative(dir, path string) string {
	if path == "" {
		return ""
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func absolute(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func buildPlainText(data ReportData) string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("%s\n%s\n%s\n\n", data.Title, data.Date, data.BaseURL))

	for _, s := range data.Steps {
		mark := "ok  "
		if !s.Passed {
			mark = "FAIL"
		}
		buf.WriteString(fmt.Sprintf("%s %d. %s (%s)\n", mark, s.Index, s.Name, s.Duration))
		if s.Error != "" {
			buf.WriteString(fmt.Sprintf("     %s\n", s.Error))
		}
	}

	buf.WriteString(fmt.Sprintf("\n%d of %d steps completed, %d screenshots\n",
		data.Stats.Completed, data.Stats.Total, data.Stats.Screenshots))
	if data.ErrorImage != "" {
		buf.WriteString(fmt.Sprintf("Error screenshot: %s\n", data.ErrorImage))
	}

	return buf.String()
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 1100px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        .container { background: white; border-radius: 8px; padding: 20px; }
        h1 { margin-bottom: 5px; }
        h1.passed { color: #1a7f37; }
        h1.failed { color: #cf222e; }
        .date { color: #666; margin-bottom: 20px; }
        .error { background: #ffebe9; color: #cf222e; padding: 10px; border-radius: 6px; white-space: pre-wrap; }
        .step { border-bottom: 1px solid #eee; padding: 15px 0; }
        .step:last-child { border-bottom: none; }
        .name { font-weight: bold; color: #333; }
        .url { color: #666; font-family: monospace; }
        .badge { padding: 2px 8px; border-radius: 12px; font-size: 12px; margin-left: 5px; }
        .badge.passed { background: #dafbe1; color: #1a7f37; }
        .badge.failed { background: #ffebe9; color: #cf222e; }
        .shot img { max-width: 100%; border: 1px solid #ddd; margin-top: 8px; }
        .footer { margin-top: 20px; padding-top: 15px; border-top: 1px solid #eee; color: #999; font-size: 12px; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <h1 class="{{if .Passed}}passed{{else}}failed{{end}}">{{.Title}}</h1>
        <div class="date">{{.Date}} · {{.BaseURL}} · {{.Duration}}</div>

        {{if .Error}}<div class="error">{{.Error}}</div>{{end}}

        {{range .Steps}}
        <div class="step">
            <div class="name">{{.Index}}. {{.Name}}
                <span class="badge {{if .Passed}}passed{{else}}failed{{end}}">{{if .Passed}}passed{{else}}failed{{end}}</span>
            </div>
            {{if .URL}}<div class="url">{{.URL}}</div>{{end}}
            {{if .Error}}<div class="error">{{.Error}}</div>{{end}}
            {{if .Image}}{{if $.Email}}<div class="url">Screenshot: {{.Image}}</div>{{else}}<div class="shot"><a href="{{.Image}}"><img src="{{.Image}}" alt="{{.Name}}"></a></div>{{end}}{{end}}
        </div>
        {{end}}

        {{if .ErrorImage}}
        <div class="step">
            <div class="name">Error screenshot</div>
            {{if .Email}}<div class="url">{{.ErrorImage}}</div>{{else}}<div class="shot"><a href="{{.ErrorImage}}"><img src="{{.ErrorImage}}" alt="error"></a></div>{{end}}
        </div>
        {{end}}

        <div class="footer">
            {{.Stats.Completed}} of {{.Stats.Total}} steps · {{.Stats.Screenshots}} screenshots · Generated by pagecheck
        </div>
    </div>
</body>
</html>`
