package app

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/tabide/pagecheck/internal/browser"
	"github.com/tabide/pagecheck/internal/config"
	"github.com/tabide/pagecheck/internal/runner"
	"github.com/tabide/pagecheck/internal/store"
	"github.com/tabide/pagecheck/internal/types"
)

// LoadConfig reads the user config, creating the default one on first run.
// It falls back to defaults when the file cannot be read.
func LoadConfig() *config.Config {
	cfg, err := config.Load()
	if err == nil {
		return cfg
	}

	if os.IsNotExist(err) {
		// First run - create default config
		cfg = config.Default()
		if err := cfg.Save(); err != nil {
			log.Printf("Warning: could not save default config: %v", err)
		} else {
			path, _ := config.ConfigPath()
			log.Printf("Created default config at: %s", path)
		}
		return cfg
	}

	log.Printf("Warning: could not load config: %v (using defaults)", err)
	return config.Default()
}

// LoadRuns resolves which suites to run. Files given explicitly win, then
// the suites listed in cfg, then the user's suite file, then the built-in
// travel planner suite.
func LoadRuns(cfg *config.Config, files []string) ([]*types.Run, error) {
	if len(files) == 0 {
		files = cfg.Suites
	}

	if len(files) == 0 {
		path, err := config.SuitePath()
		if err == nil {
			if _, err := os.Stat(path); err == nil {
				files = []string{path}
			}
		}
	}

	if len(files) == 0 {
		log.Println("[app] Using built-in travel planner suite")
		return []*types.Run{config.DefaultSuite()}, nil
	}

	runs := make([]*types.Run, 0, len(files))
	names := make(map[string]string)
	for _, f := range files {
		run, err := config.LoadSuite(f)
		if err != nil {
			return nil, err
		}
		if prev, ok := names[run.Name]; ok {
			return nil, fmt.Errorf("suites %s and %s are both named %q", prev, f, run.Name)
		}
		names[run.Name] = f
		runs = append(runs, run)
	}

	// Suites sharing an output directory each get a subdirectory
	dirs := make(map[string]int)
	for _, run := range runs {
		dirs[filepath.Clean(run.OutputDir)]++
	}
	for _, run := range runs {
		if dirs[filepath.Clean(run.OutputDir)] > 1 {
			run.OutputDir = filepath.Join(run.OutputDir, run.Name)
		}
	}
	return runs, nil
}

// Open wires an App for cfg: a Chrome launcher, the history store when
// enabled and the notifier when configured. The returned func releases them.
func Open(cfg *config.Config) (*App, func(), error) {
	launcher := &browser.Chrome{
		ExecPath:  cfg.Browser.ExecPath,
		NoSandbox: cfg.Browser.NoSandbox,
	}

	var st *store.Store
	if cfg.History.Enabled {
		path, err := cfg.HistoryPath()
		if err != nil {
			return nil, nil, err
		}
		st, err = store.New(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open history %s: %w", path, err)
		}
	}

	closeStore := func() {
		if st != nil {
			st.Close()
		}
	}

	n, err := NotifierFromConfig(cfg)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	a, err := New(cfg, runner.New(launcher), st, n)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return a, closeStore, nil
}
