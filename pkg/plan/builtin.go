package plan

import (
	"fmt"
	"sort"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
)

func boolPtr(b bool) *bool { return &b }

// Recon returns the baseline reconnaissance plan: enumerate subdomains,
// probe which of them are live, then service-scan the live hosts.
func Recon() *Plan {
	return &Plan{
		Name:        "recon",
		Description: "Subdomain enumeration, live-host probing and service discovery",
		Steps: []Step{
			{ID: "enumerate", Tool: "subfinder"},
			{ID: "probe", Tool: "httpx", Input: InputRule{Kind: finding.KindSubdomain, FromStep: "enumerate"}},
			{ID: "portscan", Tool: "nmap", Input: InputRule{Kind: finding.KindLiveHost, FromStep: "probe"}, Retries: 1},
		},
	}
}

// FullAssessment extends recon with vulnerability scanning and a
// sensitive exploitation step that always requires approval. The
// exploit step consumes the URLs nuclei flagged as vulnerable.
func FullAssessment() *Plan {
	p := Recon()
	p.Name = "full-assessment"
	p.Description = "Recon plus vulnerability scanning and gated exploitation"
	p.Steps = append(p.Steps,
		Step{ID: "vulnscan", Tool: "nuclei", Input: InputRule{Kind: finding.KindLiveHost}, Retries: 1},
		Step{ID: "exploit", Tool: "sqlmap", Sensitive: boolPtr(true),
			Input: InputRule{Kind: finding.KindVulnerability, FromStep: "vulnscan", Use: "url"}},
	)
	return p
}

var builtins = map[string]func() *Plan{
	"recon":           Recon,
	"full-assessment": FullAssessment,
}

// Builtin returns a fresh copy of a named built-in plan.
func Builtin(name string) (*Plan, error) {
	fn, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown plan %q", finding.ErrConfiguration, name)
	}
	return fn(), nil
}

// BuiltinNames lists the built-in plan names, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
