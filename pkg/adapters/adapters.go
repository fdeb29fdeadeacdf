// Package adapters provides the built-in tool adapters: subfinder,
// httpx, nmap, nuclei, and sqlmap. Each pairs an immutable invocation
// template with a total normalization function.
package adapters

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/windoliver/ThreatWeaver/pkg/tooling"
)

// RegisterAll registers every built-in adapter into reg.
func RegisterAll(reg *tooling.Registry) {
	reg.Register(Subfinder{})
	reg.Register(HTTPX{})
	reg.Register(Nmap{})
	reg.Register(Nuclei{})
	reg.Register(SQLMap{})
}

// NewRegistry returns a registry with every built-in adapter.
func NewRegistry() *tooling.Registry {
	reg := tooling.NewRegistry()
	RegisterAll(reg)
	return reg
}

// output returns the first declared output present in the result, or
// nil when the tool produced nothing.
func output(res tooling.ExecutionResult, path string) []byte {
	return res.Outputs[path]
}

// lines iterates non-empty trimmed lines of data.
func lines(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
