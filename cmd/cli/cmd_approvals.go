package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/windoliver/ThreatWeaver/pkg/approval"
	"github.com/windoliver/ThreatWeaver/pkg/ui"
)

func cmdApprovals(args []string) int {
	fs := flag.NewFlagSet("approvals", flag.ExitOnError)
	list := fs.Bool("list", false, "list pending requests")
	approveID := fs.String("approve", "", "approve the request with this id")
	rejectID := fs.String("reject", "", "reject the request with this id")
	reason := fs.String("reason", "", "reason for a rejection")
	decidedBy := fs.String("by", envOr("USER", "operator"), "decider identity for the audit record")
	sweep := fs.Bool("sweep", false, "expire overdue pending requests")
	approvalDir := fs.String("approvals", envOr("THREATWEAVER_APPROVALS", "./approvals"), "approval store directory")
	fs.Parse(args)

	store, err := approval.NewFileStore(*approvalDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "approvals: %v\n", err)
		return 1
	}
	gate := approval.NewGate(store, nil, slog.Default())
	ctx := context.Background()

	switch {
	case *approveID != "":
		r, err := gate.Decide(ctx, *approveID, true, *decidedBy, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "approvals: %v\n", err)
			return 1
		}
		fmt.Printf("%s %s\n", ui.SuccessStyle.Render("approved"), r.ID)
		return 0

	case *rejectID != "":
		r, err := gate.Decide(ctx, *rejectID, false, *decidedBy, *reason)
		if err != nil {
			fmt.Fprintf(os.Stderr, "approvals: %v\n", err)
			return 1
		}
		fmt.Printf("%s %s\n", ui.ErrorStyle.Render("rejected"), r.ID)
		return 0

	case *sweep:
		expired, err := gate.ExpireOverdue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "approvals: %v\n", err)
			return 1
		}
		fmt.Printf("expired %d overdue request(s)\n", len(expired))
		return 0

	default:
		_ = list // -list is the default action
		pending, err := gate.Pending(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "approvals: %v\n", err)
			return 1
		}
		if len(pending) == 0 {
			fmt.Println(ui.MutedStyle.Render("no pending approvals"))
			return 0
		}
		for _, r := range pending {
			left := time.Until(r.ExpiresAt).Round(time.Second)
			fmt.Printf("%s  %s  %s  %s\n",
				r.ID,
				ui.SeverityStyle(riskToSeverity(r.RiskLevel)).Render(r.RiskLevel),
				r.Title,
				ui.MutedStyle.Render(fmt.Sprintf("expires in %s", left)))
		}
		return 0
	}
}

func riskToSeverity(risk string) string {
	switch risk {
	case "CRITICAL":
		return "critical"
	case "HIGH":
		return "high"
	case "MEDIUM":
		return "medium"
	case "LOW":
		return "low"
	}
	return ""
}
