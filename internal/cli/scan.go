package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/runnerr0/linktrail/internal/scan"
)

// Execute implements the go-flags Commander interface for ScanCommand.
func (c *ScanCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()
	return c.run(ctx, a.scanService(nil))
}

func (c *ScanCommand) run(ctx context.Context, svc *scan.Service) error {
	rep, err := svc.Run(ctx, scan.RunOptions{Full: c.Full})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	if c.jsonOutput() {
		return printJSON(rep)
	}
	printScanReport(rep)
	return nil
}

func printScanReport(rep *scan.Report) {
	took := rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond)
	fmt.Printf("Scan %s finished in %s\n", shortID(rep.ID), took)

	fmt.Printf("Sources: %d", len(rep.Sources))
	if rep.Failed > 0 {
		fmt.Printf(" (%d failed)", rep.Failed)
	}
	fmt.Println()
	for _, s := range rep.Sources {
		if s.Failed() {
			fmt.Printf("  FAIL  %-28s %s\n", s.Source, s.Error)
			continue
		}
		fmt.Printf("  ok    %-28s %s %s\n", s.Source, formatNumber(int64(s.Observations)), plural(s.Observations, "url", "urls"))
	}

	r := rep.Reconcile
	fmt.Printf("Links:   %d created, %d updated, %d unchanged", r.Created, r.Updated, r.Unchanged)
	if r.Trashed > 0 {
		fmt.Printf(", %d in trash", r.Trashed)
	}
	fmt.Println()
	fmt.Printf("Skipped: %d invalid, %d filtered\n", r.SkippedInvalid, r.SkippedFiltered)
	fmt.Printf("Visits:  +%s", formatNumber(r.VisitsAdded))
	if r.CounterResets > 0 {
		fmt.Printf(" (%d %s reset)", r.CounterResets, plural(r.CounterResets, "counter", "counters"))
	}
	fmt.Println()

	for _, e := range rep.FilterErrors {
		fmt.Printf("warning: %s\n", e)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Execute implements the go-flags Commander interface for WatchCommand.
func (c *WatchCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	interval := a.cfg.Scan.Interval()
	if c.Interval > 0 {
		interval = time.Duration(c.Interval) * time.Second
	}
	schedule := a.cfg.Scan.Schedule
	if c.Schedule != "" {
		schedule = c.Schedule
	}

	sched, err := scan.NewScheduler(a.scanService(nil), scan.SchedulerOptions{
		Interval:   interval,
		Schedule:   schedule,
		RunOnStart: true,
		OnReport:   c.report,
	}, a.log)
	if err != nil {
		return err
	}

	go triggerOnEnter(sched)
	return sched.Run(ctx)
}

func (c *WatchCommand) report(rep *scan.Report, err error) {
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
		}
		return
	}
	if c.jsonOutput() {
		_ = printJSON(rep)
		return
	}
	r := rep.Reconcile
	fmt.Printf("%s  %d sources (%d failed)  +%d links  %d updated  +%s visits\n",
		rep.FinishedAt.Local().Format("15:04:05"), len(rep.Sources), rep.Failed,
		r.Created, r.Updated, formatNumber(r.VisitsAdded))
}

// triggerOnEnter requests a scan for every line read from stdin.
func triggerOnEnter(sched *scan.Scheduler) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if !sched.Trigger() {
			fmt.Println("scan already queued")
		}
	}
}
