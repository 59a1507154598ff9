// Command pcheck is a dev CLI for pagecheck maintenance and debugging tasks.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/pkg/browser"

	"github.com/tabide/pagecheck/internal/app"
	browseropts "github.com/tabide/pagecheck/internal/browser"
	"github.com/tabide/pagecheck/internal/config"
	"github.com/tabide/pagecheck/internal/scheduler"
	"github.com/tabide/pagecheck/internal/store"
	"github.com/tabide/pagecheck/internal/suite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	var err error

	switch os.Args[1] {
	case "init":
		err = runInit(args)
	case "watch":
		err = runWatch(args)
	case "history":
		err = runHistory(args)
	case "inspect":
		err = runInspect(args)
	case "open":
		if len(args) < 1 {
			fmt.Println("Usage: pcheck open <config|cache|suite|report> [dir]")
			os.Exit(1)
		}
		err = runOpen(args[0], args[1:])
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func printUsage() {
	fmt.Println("Usage: pcheck <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init [-force] [-o FILE]     Write the built-in suite as an editable TOML file")
	fmt.Println("  watch [-config FILE]...     Run suites on the configured cron schedule")
	fmt.Println("  history [-n N] [RUN_ID]     List recent runs, or the steps of one run")
	fmt.Println("  inspect [URL]               Open the target app in a visible browser")
	fmt.Println("  open config                 Open config file in default editor")
	fmt.Println("  open suite                  Open the user suite file")
	fmt.Println("  open cache                  Open cache directory in file explorer")
	fmt.Println("  open report [DIR]           Open the latest screenshot gallery")
}

// fileList collects a repeatable -config flag
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	out := fs.String("o", "", "where to write the suite (default: user suite path)")
	force := fs.Bool("force", false, "overwrite an existing file")
	fs.Parse(args)

	path := *out
	if path == "" {
		var err error
		if path, err = config.SuitePath(); err != nil {
			return err
		}
	}

	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}

	if err := config.SaveSuite(path, config.DefaultSuite()); err != nil {
		return fmt.Errorf("failed to write suite: %w", err)
	}
	log.Printf("Wrote default suite to: %s", path)

	// Creates config.toml on first use
	app.LoadConfig()
	return nil
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	var files fileList
	fs.Var(&files, "config", "suite file; repeat for several suites")
	schedule := fs.String("schedule", "", "cron schedule (default from config)")
	fs.Parse(args)

	cfg := app.LoadConfig()
	if *schedule != "" {
		cfg.Watch.Schedule = *schedule
	}

	runs, err := app.LoadRuns(cfg, files)
	if err != nil {
		return err
	}

	a, closeApp, err := app.Open(cfg)
	if err != nil {
		return err
	}
	defer closeApp()

	s, err := scheduler.New(cfg.Watch.Timezone)
	if err != nil {
		return err
	}

	// Each tick re-reads the config and suite files so edits apply without a
	// restart. A broken edit keeps the previous suites.
	job := func(ctx context.Context) error {
		if err := a.ReloadConfig(); err != nil {
			log.Printf("Keeping previous config: %v", err)
		}
		if fresh, err := app.LoadRuns(a.Config(), files); err != nil {
			log.Printf("Keeping previous suites: %v", err)
		} else {
			runs = fresh
		}
		_, err := a.RunSuites(ctx, runs, a.Config().Parallel)
		return err
	}

	if err := s.AddRunJob("suites", cfg.Watch.Schedule, job); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.RunNow(ctx, "suites", job); err != nil {
		log.Printf("Initial run failed: %v", err)
	}

	s.Start(ctx)
	for _, j := range s.ListJobs() {
		log.Printf("Next run of %s at %s", j.Name, j.NextRun.Format(time.RFC1123))
	}

	<-ctx.Done()
	<-s.Stop().Done()
	log.Println("Watch stopped")
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("n", 20, "number of runs to list")
	fs.Parse(args)

	cfg := app.LoadConfig()
	path, err := cfg.HistoryPath()
	if err != nil {
		return err
	}

	st, err := store.New(path)
	if err != nil {
		return err
	}
	defer st.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if fs.NArg() > 0 {
		steps, err := st.RunSteps(fs.Arg(0))
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			return fmt.Errorf("no steps recorded for run %s", fs.Arg(0))
		}
		fmt.Fprintln(w, "#\tSTEP\tSTATUS\tDURATION\tSCREENSHOT\tERROR")
		for _, step := range steps {
			fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%s\t%s\n", step.Index, step.Name, step.Status,
				step.Duration.Round(time.Millisecond), step.Screenshot, step.Error)
		}
		return nil
	}

	runs, err := st.RecentRuns(*limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ID\tSUITE\tSTATUS\tSTEPS\tSTARTED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%v\n", r.ID, r.Name, r.Status,
			r.StepsCompleted, r.StepsTotal, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Duration().Round(time.Millisecond))
	}
	return nil
}

// runInspect opens the target app with the same browser options the suites
// use, so layouts can be checked by hand.
func runInspect(args []string) error {
	target := suite.DefaultBaseURL
	if len(args) > 0 {
		target = args[0]
	}

	cfg := app.LoadConfig()
	run := config.DefaultRun()

	log.Printf("Opening %s with verification browser options...", target)

	opts := browseropts.Options(browseropts.Config{
		Headless:  false, // visible so you can look around
		Width:     run.Viewport.Width,
		Height:    run.Viewport.Height,
		ExecPath:  cfg.Browser.ExecPath,
		NoSandbox: cfg.Browser.NoSandbox,
	})

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	err := chromedp.Run(ctx,
		chromedp.Navigate(target),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}

	fmt.Println("Press Enter to close the browser...")
	bufio.NewReader(os.Stdin).ReadString('\n')

	log.Println("Done.")
	return nil
}

func runOpen(target string, args []string) error {
	var path string
	var err error

	switch target {
	case "config":
		path, err = config.ConfigPath()
	case "suite":
		path, err = config.SuitePath()
	case "cache":
		path, err = config.CacheDir()
	case "report":
		return openReport(args)
	default:
		return fmt.Errorf("unknown target: %s", target)
	}

	if err != nil {
		return fmt.Errorf("failed to get path: %w", err)
	}

	return browser.OpenFile(path)
}

func openReport(args []string) error {
	dir := config.DefaultRun().OutputDir
	if len(args) > 0 {
		dir = args[0]
	}

	cfg := app.LoadConfig()
	cfg.History.Enabled = false
	cfg.Email.Enabled = false

	a, closeApp, err := app.Open(cfg)
	if err != nil {
		return err
	}
	defer closeApp()

	return a.ViewLastReport(dir)
}
