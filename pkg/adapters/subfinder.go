package adapters

import (
	"strings"
	"time"

	"github.com/windoliver/ThreatWeaver/pkg/duration"
	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/tooling"
)

const subfinderOut = "subdomains.txt"

// Subfinder enumerates subdomains of the run target. Output is a plain
// newline-separated list.
type Subfinder struct{}

var _ tooling.Adapter = Subfinder{}

func (Subfinder) Name() string { return "subfinder" }

func (Subfinder) Template(in tooling.Input) tooling.ToolConfig {
	out := in.OutputFile
	if out == "" {
		out = subfinderOut
	}
	return tooling.ToolConfig{
		Name:            "subfinder",
		Image:           "projectdiscovery/subfinder:latest",
		Command:         "subfinder",
		Args:            []string{"-d", in.Target, "-o", out, "-silent"},
		OutputFiles:     []string{out},
		Timeout:         duration.ToolEnumeration,
		CPULimit:        1.0,
		MemoryLimitMB:   1024,
		NetworkIsolated: true,
	}
}

func (a Subfinder) Normalize(res tooling.ExecutionResult) []finding.Finding {
	data := output(res, subfinderOut)
	if data == nil {
		for _, v := range res.Outputs {
			data = v
			break
		}
	}
	now := time.Now().UTC()
	var out []finding.Finding
	for _, line := range lines(data) {
		sub := strings.ToLower(strings.TrimSuffix(line, "."))
		if strings.ContainsAny(sub, " \t") || !strings.Contains(sub, ".") {
			continue
		}
		out = append(out, finding.Finding{
			Kind:         finding.KindSubdomain,
			Value:        sub,
			Severity:     finding.Info,
			Host:         sub,
			Tool:         a.Name(),
			DiscoveredAt: now,
		})
	}
	return out
}
