// Command pagecheck drives a headless browser through the travel planner and
// writes a screenshot for every checkpoint. It exits non-zero when any suite
// fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/tabide/pagecheck/internal/app"
)

// fileList collects a repeatable -config flag
type fileList []string

func (f *fileList) String() string {
	return strings.Join(*f, ",")
}

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	os.Exit(run())
}

func run() int {
	var files fileList
	flag.Var(&files, "config", "suite file (.toml, .yaml); repeat to run several suites")
	parallel := flag.Int("parallel", 0, "suites to run at once (default from config)")
	headful := flag.Bool("headful", false, "show the browser window")
	baseURL := flag.String("base-url", "", "override every suite's base url")
	outDir := flag.String("out", "", "override every suite's output directory")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "Usage: pagecheck [-config FILE]... [-parallel N] [-headful]")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := app.LoadConfig()

	runs, err := app.LoadRuns(cfg, files)
	if err != nil {
		log.Printf("Failed to load suites: %v", err)
		return 1
	}

	for _, r := range runs {
		if *headful {
			r.Headless = false
		}
		if *baseURL != "" {
			r.BaseURL = *baseURL
		}
		if *outDir != "" {
			r.OutputDir = *outDir
			if len(runs) > 1 {
				r.OutputDir = filepath.Join(*outDir, r.Name)
			}
		}
	}

	if *parallel < 1 {
		*parallel = cfg.Parallel
	}

	a, closeApp, err := app.Open(cfg)
	if err != nil {
		log.Printf("Failed to start: %v", err)
		return 1
	}
	defer closeApp()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("pagecheck starting %d suite(s)...", len(runs))

	results, err := a.RunSuites(ctx, runs, *parallel)
	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Printf("%-24s %-6s %d/%d steps  %s\n", r.Name, r.Status, r.StepsCompleted, r.StepsTotal, r.OutputDir)
	}
	if err != nil {
		log.Printf("Verification failed: %v", err)
		return 1
	}

	log.Println("All suites passed")
	return 0
}
