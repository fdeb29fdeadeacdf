package adapters

import (
	"time"

	"github.com/windoliver/ThreatWeaver/pkg/duration"
	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/jsonutil"
	"github.com/windoliver/ThreatWeaver/pkg/tooling"
)

const (
	nucleiIn  = "targets.txt"
	nucleiOut = "findings.jsonl"
)

// Nuclei template-scans live hosts for known vulnerabilities. Output is
// JSONL, one matched template per line.
type Nuclei struct{}

var _ tooling.Adapter = Nuclei{}

func (Nuclei) Name() string { return "nuclei" }

func (Nuclei) Template(in tooling.Input) tooling.ToolConfig {
	inFile, outFile := in.InputFile, in.OutputFile
	if inFile == "" {
		inFile = nucleiIn
	}
	if outFile == "" {
		outFile = nucleiOut
	}
	return tooling.ToolConfig{
		Name:    "nuclei",
		Image:   "projectdiscovery/nuclei:latest",
		Command: "nuclei",
		Args: []string{
			"-l", inFile,
			"-o", outFile,
			"-json",
			"-silent",
			"-severity", "critical,high,medium",
		},
		OutputFiles:     []string{outFile},
		Timeout:         duration.ToolScanning,
		CPULimit:        2.0,
		MemoryLimitMB:   4096,
		NetworkIsolated: true,
		RiskLevel:       "MEDIUM",
	}
}

type nucleiRecord struct {
	TemplateID string `json:"template-id"`
	Info       struct {
		Name     string `json:"name"`
		Severity string `json:"severity"`
	} `json:"info"`
	Host      string `json:"host"`
	MatchedAt string `json:"matched-at"`
}

func (a Nuclei) Normalize(res tooling.ExecutionResult) []finding.Finding {
	data := output(res, nucleiOut)
	if data == nil {
		for _, v := range res.Outputs {
			data = v
			break
		}
	}
	now := time.Now().UTC()
	var out []finding.Finding
	for _, line := range lines(data) {
		var rec nucleiRecord
		if err := jsonutil.Unmarshal([]byte(line), &rec); err != nil || rec.TemplateID == "" {
			continue
		}
		matched := rec.MatchedAt
		if matched == "" {
			matched = rec.Host
		}
		out = append(out, finding.Finding{
			Kind:         finding.KindVulnerability,
			Value:        rec.TemplateID + "@" + matched,
			Severity:     finding.ParseSeverity(rec.Info.Severity),
			Host:         rec.Host,
			URL:          matched,
			Template:     rec.TemplateID,
			Evidence:     rec.Info.Name,
			Tool:         a.Name(),
			DiscoveredAt: now,
		})
	}
	return out
}
