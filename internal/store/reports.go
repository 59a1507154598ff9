package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tabide/pagecheck/internal/types"
)

// ReportsDir is where JSON reports are kept inside an output directory
const ReportsDir = "reports"

// reportFilename creates a timestamped filename for a run's report
func reportFilename(r *types.RunResult) string {
	name := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(r.Name)
	return r.StartedAt.Format("2006-01-02T15-04-05.000") + "_" + name + ".json"
}

// SaveReport writes result as JSON under dir/reports.
// Returns the path to the saved file.
func SaveReport(dir string, result *types.RunResult) (string, error) {
	reportDir := filepath.Join(dir, ReportsDir)
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}

	path := filepath.Join(reportDir, reportFilename(result))

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return path, nil
}

// LatestReport loads the most recent report in dir/reports.
// Returns the result and the path it was loaded from.
func LatestReport(dir string) (*types.RunResult, string, error) {
	reportDir := filepath.Join(dir, ReportsDir)

	entries, err := os.ReadDir(reportDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("no reports in %s", dir)
		}
		return nil, "", err
	}

	// os.ReadDir sorts by name, which is chronological for our timestamps
	var latest string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			latest = entry.Name()
		}
	}
	if latest == "" {
		return nil, "", fmt.Errorf("no reports in %s", dir)
	}

	path := filepath.Join(reportDir, latest)
	result, err := LoadReport(path)
	if err != nil {
		return nil, "", err
	}
	return result, path, nil
}

// LoadReport reads a report from a specific file path
func LoadReport(path string) (*types.RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var result types.RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &result, nil
}
