// Package finding defines the normalized unit of discovered information
// produced by tool adapters, together with the severity scale and the
// error taxonomy shared across the orchestration core.
//
// A Finding is an immutable value object. Adapters produce them from raw
// tool output; the engine appends them to the active handoff state in
// strict step order; the diff layer compares them across runs by Key().
package finding

import "time"

// Kind categorizes what a finding describes.
// All values are lowercase strings so they survive JSON round trips
// unchanged for the CRUD layer.
type Kind string

const (
	// KindSubdomain is a discovered subdomain (subfinder).
	KindSubdomain Kind = "subdomain"

	// KindLiveHost is a live HTTP/HTTPS endpoint (httpx).
	KindLiveHost Kind = "live-host"

	// KindOpenPort is an open port with an identified service (nmap).
	KindOpenPort Kind = "open-port"

	// KindEndpoint is a discovered URL path worth probing further.
	KindEndpoint Kind = "endpoint"

	// KindTechnology is a detected technology or framework.
	KindTechnology Kind = "technology"

	// KindVulnerability is a confirmed or suspected vulnerability (nuclei).
	KindVulnerability Kind = "vulnerability"

	// KindInjectionPoint is a parameter confirmed injectable (sqlmap).
	KindInjectionPoint Kind = "injection-point"
)

// IsValid reports whether k is a recognized finding kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindSubdomain, KindLiveHost, KindOpenPort, KindEndpoint,
		KindTechnology, KindVulnerability, KindInjectionPoint:
		return true
	}
	return false
}

// Finding is one normalized unit of discovered information.
// Only the fields relevant to the Kind are set; the rest stay zero.
type Finding struct {
	// ID uniquely identifies this finding within its run.
	ID string `json:"id"`

	// Kind categorizes the finding.
	Kind Kind `json:"kind"`

	// Value is the primary discovered value: the subdomain, the URL,
	// the "host:port" pair, the template id, the injectable parameter.
	Value string `json:"value"`

	// Severity of the finding. Discovery kinds default to Info.
	Severity Severity `json:"severity"`

	// Host the finding was observed on, if any.
	Host string `json:"host,omitempty"`

	// Port for open-port findings.
	Port int `json:"port,omitempty"`

	// Service identified on the port (e.g. "https", "ssh").
	Service string `json:"service,omitempty"`

	// URL for live-host, endpoint, and vulnerability findings.
	URL string `json:"url,omitempty"`

	// StatusCode returned by a live host probe.
	StatusCode int `json:"status_code,omitempty"`

	// Technologies detected alongside the finding (e.g. probing).
	Technologies []string `json:"technologies,omitempty"`

	// Template is the scanner template/check that fired (nuclei).
	Template string `json:"template,omitempty"`

	// Evidence is proof supporting the finding.
	Evidence string `json:"evidence,omitempty"`

	// Tool names the adapter that produced the finding.
	Tool string `json:"tool"`

	// StepID references the plan step that ran the tool.
	StepID string `json:"step_id,omitempty"`

	// DiscoveredAt is when the adapter normalized the finding.
	DiscoveredAt time.Time `json:"discovered_at"`

	// Metadata carries adapter-specific extras for reporting.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Key returns the identity used for cross-run diffing: two findings with
// the same key describe the same discovered fact regardless of which run
// observed it.
func (f Finding) Key() string {
	return string(f.Kind) + "|" + f.Value
}
