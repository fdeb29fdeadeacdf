package adapters

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/windoliver/ThreatWeaver/pkg/duration"
	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/tooling"
)

const nmapOut = "scan.xml"

// Nmap scans a target for open ports with service and version
// detection. Output is nmap's XML report.
type Nmap struct{}

var _ tooling.Adapter = Nmap{}

func (Nmap) Name() string { return "nmap" }

func (Nmap) Template(in tooling.Input) tooling.ToolConfig {
	out := in.OutputFile
	if out == "" {
		out = nmapOut
	}
	target := in.Target
	if len(in.Values) > 0 {
		target = strings.Join(in.Values, " ")
	}
	return tooling.ToolConfig{
		Name:    "nmap",
		Image:   "instrumentisto/nmap:latest",
		Command: "nmap",
		Args: append([]string{
			"-sV",
			"-sC",
			"-T4",
			"-oX", out,
			"--max-retries", "2",
			"--host-timeout", "30m",
		}, strings.Fields(target)...),
		OutputFiles:     []string{out},
		Timeout:         duration.ToolScanning,
		CPULimit:        2.0,
		MemoryLimitMB:   2048,
		NetworkIsolated: true,
	}
}

// Minimal mapping of nmap's XML report.
type nmapRun struct {
	Hosts []nmapHost `xml:"host"`
}

type nmapHost struct {
	Status struct {
		State string `xml:"state,attr"`
	} `xml:"status"`
	Addresses []struct {
		Addr string `xml:"addr,attr"`
		Type string `xml:"addrtype,attr"`
	} `xml:"address"`
	Hostnames []struct {
		Name string `xml:"name,attr"`
	} `xml:"hostnames>hostname"`
	Ports []nmapPort `xml:"ports>port"`
}

type nmapPort struct {
	Protocol string `xml:"protocol,attr"`
	PortID   int    `xml:"portid,attr"`
	State    struct {
		State string `xml:"state,attr"`
	} `xml:"state"`
	Service struct {
		Name    string `xml:"name,attr"`
		Product string `xml:"product,attr"`
		Version string `xml:"version,attr"`
	} `xml:"service"`
}

func (h nmapHost) name() string {
	if len(h.Hostnames) > 0 && h.Hostnames[0].Name != "" {
		return h.Hostnames[0].Name
	}
	for _, a := range h.Addresses {
		if a.Addr != "" {
			return a.Addr
		}
	}
	return ""
}

func (a Nmap) Normalize(res tooling.ExecutionResult) []finding.Finding {
	data := output(res, nmapOut)
	if data == nil {
		for _, v := range res.Outputs {
			data = v
			break
		}
	}
	var run nmapRun
	if err := xml.Unmarshal(data, &run); err != nil {
		return nil
	}
	now := time.Now().UTC()
	var out []finding.Finding
	for _, host := range run.Hosts {
		if host.Status.State != "up" {
			continue
		}
		name := host.name()
		if name == "" {
			continue
		}
		for _, port := range host.Ports {
			if port.State.State != "open" {
				continue
			}
			evidence := port.Service.Product
			if port.Service.Version != "" {
				evidence += " " + port.Service.Version
			}
			out = append(out, finding.Finding{
				Kind:         finding.KindOpenPort,
				Value:        fmt.Sprintf("%s:%d", name, port.PortID),
				Severity:     finding.Info,
				Host:         name,
				Port:         port.PortID,
				Service:      port.Service.Name,
				Evidence:     strings.TrimSpace(evidence),
				Tool:         a.Name(),
				DiscoveredAt: now,
			})
		}
	}
	return out
}
