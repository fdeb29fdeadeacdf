package adapters

import (
	"time"

	"github.com/windoliver/ThreatWeaver/pkg/duration"
	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/jsonutil"
	"github.com/windoliver/ThreatWeaver/pkg/tooling"
)

const (
	httpxIn  = "targets.txt"
	httpxOut = "live.jsonl"
)

// HTTPX probes a host list for live HTTP services. Output is JSONL,
// one probe result per line.
type HTTPX struct{}

var _ tooling.Adapter = HTTPX{}

func (HTTPX) Name() string { return "httpx" }

func (HTTPX) Template(in tooling.Input) tooling.ToolConfig {
	inFile, outFile := in.InputFile, in.OutputFile
	if inFile == "" {
		inFile = httpxIn
	}
	if outFile == "" {
		outFile = httpxOut
	}
	return tooling.ToolConfig{
		Name:    "httpx",
		Image:   "projectdiscovery/httpx:latest",
		Command: "httpx",
		Args: []string{
			"-l", inFile,
			"-o", outFile,
			"-json",
			"-silent",
			"-tech-detect",
			"-status-code",
		},
		OutputFiles:     []string{outFile},
		Timeout:         duration.ToolProbing,
		CPULimit:        2.0,
		MemoryLimitMB:   2048,
		NetworkIsolated: true,
	}
}

// httpxRecord is the subset of httpx's JSON output the normalizer uses.
type httpxRecord struct {
	URL        string   `json:"url"`
	Host       string   `json:"host"`
	Input      string   `json:"input"`
	StatusCode int      `json:"status_code"`
	Tech       []string `json:"tech"`
	WebServer  string   `json:"webserver"`
}

func (a HTTPX) Normalize(res tooling.ExecutionResult) []finding.Finding {
	data := output(res, httpxOut)
	if data == nil {
		for _, v := range res.Outputs {
			data = v
			break
		}
	}
	now := time.Now().UTC()
	var out []finding.Finding
	for _, line := range lines(data) {
		var rec httpxRecord
		if err := jsonutil.Unmarshal([]byte(line), &rec); err != nil || rec.URL == "" {
			continue
		}
		host := rec.Host
		if host == "" {
			host = rec.Input
		}
		out = append(out, finding.Finding{
			Kind:         finding.KindLiveHost,
			Value:        rec.URL,
			Severity:     finding.Info,
			Host:         host,
			URL:          rec.URL,
			StatusCode:   rec.StatusCode,
			Technologies: rec.Tech,
			Tool:         a.Name(),
			DiscoveredAt: now,
		})
		for _, tech := range rec.Tech {
			out = append(out, finding.Finding{
				Kind:         finding.KindTechnology,
				Value:        tech,
				Severity:     finding.Info,
				Host:         host,
				URL:          rec.URL,
				Tool:         a.Name(),
				DiscoveredAt: now,
			})
		}
	}
	return out
}
