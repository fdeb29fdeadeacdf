package adapters

import (
	"regexp"
	"strings"
	"time"

	"github.com/windoliver/ThreatWeaver/pkg/duration"
	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/tooling"
)

const sqlmapOutDir = "results"

// SQLMap confirms and exploits SQL injection on a target URL. It is
// always sensitive: exploitation touches data, so the engine gates it
// behind human approval. Findings are scraped from the tool's log
// output, which is the only stable machine-readable surface it offers.
type SQLMap struct{}

var _ tooling.Adapter = SQLMap{}

func (SQLMap) Name() string { return "sqlmap" }

func (SQLMap) Template(in tooling.Input) tooling.ToolConfig {
	target := in.Target
	if len(in.Values) > 0 {
		target = in.Values[0]
	}
	return tooling.ToolConfig{
		Name:    "sqlmap",
		Image:   "pberba/sqlmap:latest",
		Command: "sqlmap",
		Args: []string{
			"-u", target,
			"--batch",
			"--random-agent",
			"--output-dir", sqlmapOutDir,
			"--dump",
			"--threads", "5",
		},
		Timeout:       duration.ToolScanning,
		CPULimit:      2.0,
		MemoryLimitMB: 2048,
		// Exploitation needs to reach the target.
		NetworkIsolated: false,
		Sensitive:       true,
		RiskLevel:       "HIGH",
	}
}

var (
	sqlmapURL       = regexp.MustCompile(`URL '([^']+)'`)
	sqlmapParameter = regexp.MustCompile(`(?m)^Parameter: (\S+) \(([^)]+)\)`)
	sqlmapType      = regexp.MustCompile(`(?m)^\s+Type: (.+)$`)
)

func (a SQLMap) Normalize(res tooling.ExecutionResult) []finding.Finding {
	text := res.Stdout
	for _, data := range res.Outputs {
		text += "\n" + string(data)
	}
	if !strings.Contains(text, "Parameter:") {
		return nil
	}

	url := ""
	if m := sqlmapURL.FindStringSubmatch(text); m != nil {
		url = m[1]
	}

	now := time.Now().UTC()
	var out []finding.Finding
	seen := make(map[string]bool)
	params := sqlmapParameter.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range params {
		param := text[loc[2]:loc[3]]
		place := text[loc[4]:loc[5]]

		// Injection types listed under this parameter, up to the next.
		end := len(text)
		if i+1 < len(params) {
			end = params[i+1][0]
		}
		var types []string
		for _, tm := range sqlmapType.FindAllStringSubmatch(text[loc[1]:end], -1) {
			types = append(types, strings.TrimSpace(tm[1]))
		}

		value := param + " (" + place + ")"
		if url != "" {
			value = url + "#" + value
		}
		if seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, finding.Finding{
			Kind:         finding.KindInjectionPoint,
			Value:        value,
			Severity:     finding.Critical,
			URL:          url,
			Evidence:     strings.Join(types, "; "),
			Tool:         a.Name(),
			DiscoveredAt: now,
			Metadata: map[string]string{
				"parameter": param,
				"place":     place,
			},
		})
	}
	return out
}
