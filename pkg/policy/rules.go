package policy

import (
	"context"
	"log/slog"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/handoff"
	"github.com/windoliver/ThreatWeaver/pkg/plan"
)

// Rules is the default rule-based policy. It prunes steps whose input
// can no longer exist:
//
//   - once live-host probing has run and found nothing, vulnerability
//     scanning and exploitation are dropped
//   - once vulnerability scanning has run and produced neither
//     vulnerabilities nor injection points, sqlmap is dropped
//
// Everything else passes through untouched.
type Rules struct {
	Logger *slog.Logger
}

var _ Policy = Rules{}

func (r Rules) Decide(_ context.Context, state *handoff.State, rem *plan.Remaining) (*plan.Remaining, error) {
	ran := make(map[string]bool)
	for _, s := range rem.Executed() {
		ran[s.Tool] = true
	}

	noLiveHosts := ran["httpx"] && state.CountByKind(finding.KindLiveHost) == 0
	noInjectables := ran["nuclei"] &&
		state.CountByKind(finding.KindVulnerability) == 0 &&
		state.CountByKind(finding.KindInjectionPoint) == 0

	var tail []plan.Step
	var dropped []string
	for _, s := range rem.Upcoming() {
		switch {
		case noLiveHosts && (s.Tool == "nuclei" || s.Tool == "sqlmap"):
			dropped = append(dropped, s.ID)
		case noInjectables && s.Tool == "sqlmap":
			dropped = append(dropped, s.ID)
		default:
			tail = append(tail, s)
		}
	}
	if len(dropped) == 0 {
		return rem, nil
	}
	if r.Logger != nil {
		r.Logger.Info("policy pruned steps", "steps", dropped,
			"live_hosts", state.CountByKind(finding.KindLiveHost))
	}
	if err := rem.Replace(tail); err != nil {
		return nil, err
	}
	return rem, nil
}
