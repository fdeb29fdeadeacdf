package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/windoliver/ThreatWeaver/pkg/adapters"
	"github.com/windoliver/ThreatWeaver/pkg/approval"
	"github.com/windoliver/ThreatWeaver/pkg/engine"
	"github.com/windoliver/ThreatWeaver/pkg/jsonutil"
	"github.com/windoliver/ThreatWeaver/pkg/metrics"
	"github.com/windoliver/ThreatWeaver/pkg/notify"
	"github.com/windoliver/ThreatWeaver/pkg/plan"
	"github.com/windoliver/ThreatWeaver/pkg/policy"
	"github.com/windoliver/ThreatWeaver/pkg/sandbox"
	"github.com/windoliver/ThreatWeaver/pkg/ui"
	"github.com/windoliver/ThreatWeaver/pkg/workspace"
)

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	planName := fs.String("plan", "recon", "built-in plan name")
	planFile := fs.String("plan-file", "", "YAML plan file (overrides -plan)")
	target := fs.String("target", "", "target domain, IP, or URL (required)")
	team := fs.String("team", envOr("THREATWEAVER_TEAM", "default"), "team namespace for workspace paths")
	workDir := fs.String("workspace", envOr("THREATWEAVER_WORKSPACE", "./workspace"), "workspace store directory")
	approvalDir := fs.String("approvals", envOr("THREATWEAVER_APPROVALS", "./approvals"), "approval store directory")
	policyScript := fs.String("policy-script", "", "Tengo decision-policy script")
	maxConcurrent := fs.Int("max-concurrent", sandbox.DefaultMaxConcurrent, "sandbox admission ceiling")
	metricsAddr := fs.String("metrics", "", "Prometheus scrape address (e.g. :9090)")
	webhookURL := fs.String("webhook", envOr("THREATWEAVER_WEBHOOK", ""), "approval event webhook URL")
	slackURL := fs.String("slack", envOr("THREATWEAVER_SLACK_WEBHOOK", ""), "Slack incoming webhook URL")
	jsonOut := fs.Bool("json", false, "print the full report as JSON")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Parse(args)

	if *target == "" {
		fmt.Fprintln(os.Stderr, "run: -target is required")
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	p, err := loadPlan(*planName, *planFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return 2
	}

	ws, err := workspace.NewFSStore(*workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return 1
	}
	astore, err := approval.NewFileStore(*approvalDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return 1
	}

	dispatcher := notify.NewDispatcher(logger)
	dispatcher.Register(notify.NewSlogHook(logger))
	if *webhookURL != "" {
		dispatcher.Register(notify.NewWebhookHook(*webhookURL, notify.WebhookOptions{}))
	}
	if *slackURL != "" {
		dispatcher.Register(notify.NewSlackHook(*slackURL, notify.SlackOptions{}))
	}
	gate := approval.NewGate(astore, dispatcher, logger)

	var collector *metrics.Collector
	execOpts := []sandbox.Option{sandbox.WithLogger(logger)}
	if *metricsAddr != "" {
		collector = metrics.NewCollector()
		if err := collector.Serve(*metricsAddr); err != nil {
			fmt.Fprintf(os.Stderr, "run: %v\n", err)
			return 1
		}
		defer collector.Close(context.Background())
		execOpts = append(execOpts, sandbox.WithMonitor(collector))

		// Seed the pending gauge from the durable store, then track
		// gate events.
		if pending, err := gate.Pending(context.Background()); err == nil {
			collector.SetPendingApprovals(len(pending))
		}
		dispatcher.Register(metrics.NewApprovalHook(collector))
	}

	var pol policy.Policy = policy.Rules{Logger: logger}
	if *policyScript != "" {
		pol, err = policy.LoadScript(*policyScript)
		if err != nil {
			fmt.Fprintf(os.Stderr, "run: %v\n", err)
			return 2
		}
	}

	executor := sandbox.NewExecutor(sandbox.NewLocalProvider("", logger), *maxConcurrent, execOpts...)
	eng, err := engine.New(engine.Config{
		Executor: executor,
		Store:    ws,
		Registry: adapters.NewRegistry(),
		Gate:     gate,
		Policy:   pol,
		Team:     *team,
		Metrics:  collector,
		Logger:   logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := eng.Run(ctx, p, *target)
	if report == nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", runErr)
		return 1
	}

	if *jsonOut {
		data, err := jsonutil.MarshalIndent(report, "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "run: encode report: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	} else {
		printReport(report)
	}

	// Completed-with-failures still exits zero; only an abort is an
	// operational failure of the orchestrator itself.
	if report.State == engine.StateAborted {
		return 1
	}
	return 0
}

func loadPlan(name, file string) (*plan.Plan, error) {
	if file != "" {
		return plan.Load(file)
	}
	return plan.Builtin(name)
}

func printReport(r *engine.Report) {
	fmt.Println(ui.TitleStyle.Render(" ThreatWeaver "))
	fmt.Printf("%s %s  %s %s  %s %s\n",
		ui.HeaderStyle.Render("run:"), r.RunID,
		ui.HeaderStyle.Render("target:"), r.Target,
		ui.HeaderStyle.Render("state:"), ui.StatusStyle(string(r.State)).Render(string(r.State)))
	if r.Error != "" {
		fmt.Println(ui.ErrorStyle.Render("error: " + r.Error))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-12s %-10s %9s %9s %10s\n",
		"STEP", "TOOL", "STATUS", "FINDINGS", "ATTEMPTS", "DURATION")
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "%-12s %-12s %-10s %9d %9d %10s\n",
			s.ID, s.Tool, ui.StatusStyle(string(s.Status)).Render(string(s.Status)),
			s.Findings, s.Attempts, s.Duration.Round(time.Millisecond))
	}
	fmt.Println(ui.BoxStyle.Render(strings.TrimRight(b.String(), "\n")))

	if r.Handoff != nil {
		fmt.Printf("%s %d findings", ui.HeaderStyle.Render("handoff:"), len(r.Handoff.Findings))
		if len(r.Handoff.Prioritized) > 0 {
			fmt.Printf(", %d prioritized", len(r.Handoff.Prioritized))
		}
		fmt.Println()
	}
	if r.Diff != nil {
		fmt.Printf("%s +%d new, %d unchanged, -%d removed (%.1f%%) → %s\n",
			ui.HeaderStyle.Render("diff:"),
			len(r.Diff.New), len(r.Diff.Unchanged), len(r.Diff.Removed),
			r.Diff.GrowthPercent, r.Diff.Recommendation)
	}
}
