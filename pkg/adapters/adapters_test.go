package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
	"github.com/windoliver/ThreatWeaver/pkg/tooling"
)

func TestNewRegistryHasAllTools(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	assert.Equal(t, []string{"httpx", "nmap", "nuclei", "sqlmap", "subfinder"}, reg.Names())
}

func TestTemplatesValidate(t *testing.T) {
	t.Parallel()
	in := tooling.Input{Target: "example.com", Values: []string{"https://a.example.com"}}
	reg := NewRegistry()
	for _, name := range reg.Names() {
		a, err := reg.Lookup(name)
		require.NoError(t, err)
		cfg := a.Template(in)
		assert.NoError(t, cfg.Validate(), name)
		assert.Equal(t, name, cfg.Name)
	}
}

func TestSubfinderNormalize(t *testing.T) {
	t.Parallel()
	res := tooling.ExecutionResult{
		Success: true,
		Outputs: map[string][]byte{
			"subdomains.txt": []byte("www.example.com\nAPI.Example.Com\n\nnot a domain\nmail.example.com.\n"),
		},
	}
	fs := Subfinder{}.Normalize(res)
	require.Len(t, fs, 3)
	assert.Equal(t, "www.example.com", fs[0].Value)
	assert.Equal(t, "api.example.com", fs[1].Value, "lowercased")
	assert.Equal(t, "mail.example.com", fs[2].Value, "trailing dot stripped")
	for _, f := range fs {
		assert.Equal(t, finding.KindSubdomain, f.Kind)
		assert.Equal(t, "subfinder", f.Tool)
	}
}

func TestSubfinderNormalizeEmpty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Subfinder{}.Normalize(tooling.ExecutionResult{}))
}

func TestHTTPXNormalize(t *testing.T) {
	t.Parallel()
	out := `{"url":"https://www.example.com","host":"www.example.com","status_code":200,"tech":["nginx","React"]}
garbage line
{"url":"https://api.example.com","input":"api.example.com","status_code":401,"webserver":"envoy"}
`
	res := tooling.ExecutionResult{
		Success: true,
		Outputs: map[string][]byte{"live.jsonl": []byte(out)},
	}
	fs := HTTPX{}.Normalize(res)

	var hosts, techs []finding.Finding
	for _, f := range fs {
		switch f.Kind {
		case finding.KindLiveHost:
			hosts = append(hosts, f)
		case finding.KindTechnology:
			techs = append(techs, f)
		}
	}
	require.Len(t, hosts, 2)
	assert.Equal(t, "https://www.example.com", hosts[0].Value)
	assert.Equal(t, 200, hosts[0].StatusCode)
	assert.Equal(t, "api.example.com", hosts[1].Host, "falls back to input")
	require.Len(t, techs, 2)
	assert.Equal(t, "nginx", techs[0].Value)
}

func TestNmapNormalize(t *testing.T) {
	t.Parallel()
	report := `<?xml version="1.0"?>
<nmaprun>
  <host>
    <status state="up"/>
    <address addr="93.184.216.34" addrtype="ipv4"/>
    <hostnames><hostname name="www.example.com"/></hostnames>
    <ports>
      <port protocol="tcp" portid="443">
        <state state="open"/>
        <service name="https" product="nginx" version="1.25"/>
      </port>
      <port protocol="tcp" portid="22">
        <state state="filtered"/>
        <service name="ssh"/>
      </port>
    </ports>
  </host>
  <host>
    <status state="down"/>
    <address addr="93.184.216.35" addrtype="ipv4"/>
  </host>
</nmaprun>`
	res := tooling.ExecutionResult{
		Success: true,
		Outputs: map[string][]byte{"scan.xml": []byte(report)},
	}
	fs := Nmap{}.Normalize(res)
	require.Len(t, fs, 1, "only open ports on live hosts")
	assert.Equal(t, "www.example.com:443", fs[0].Value)
	assert.Equal(t, 443, fs[0].Port)
	assert.Equal(t, "https", fs[0].Service)
	assert.Equal(t, "nginx 1.25", fs[0].Evidence)
}

func TestNmapNormalizeMalformed(t *testing.T) {
	t.Parallel()
	res := tooling.ExecutionResult{Outputs: map[string][]byte{"scan.xml": []byte("<nmaprun")}}
	assert.Empty(t, Nmap{}.Normalize(res))
}

func TestNucleiNormalize(t *testing.T) {
	t.Parallel()
	out := `{"template-id":"CVE-2021-44228","info":{"name":"Log4j RCE","severity":"critical"},"host":"https://www.example.com","matched-at":"https://www.example.com/api"}
{"template-id":"tech-detect","info":{"name":"Tech","severity":"bogus"},"host":"https://api.example.com"}
not json
`
	res := tooling.ExecutionResult{
		Success: true,
		Outputs: map[string][]byte{"findings.jsonl": []byte(out)},
	}
	fs := Nuclei{}.Normalize(res)
	require.Len(t, fs, 2)
	assert.Equal(t, finding.Critical, fs[0].Severity)
	assert.Equal(t, "CVE-2021-44228", fs[0].Template)
	assert.Equal(t, "https://www.example.com/api", fs[0].URL)
	assert.Equal(t, finding.Info, fs[1].Severity, "unknown severity defaults")
}

func TestSQLMapTemplateIsGated(t *testing.T) {
	t.Parallel()
	cfg := SQLMap{}.Template(tooling.Input{Values: []string{"https://example.com/item?id=1"}})
	assert.True(t, cfg.Sensitive)
	assert.Equal(t, "HIGH", cfg.RiskLevel)
	assert.False(t, cfg.NetworkIsolated)
	assert.Contains(t, cfg.Args, "https://example.com/item?id=1")
}

func TestSQLMapNormalize(t *testing.T) {
	t.Parallel()
	log := `[12:00:01] [INFO] testing connection to the target URL 'https://example.com/item?id=1'
sqlmap identified the following injection point(s) with a total of 46 HTTP(s) requests:
---
Parameter: id (GET)
    Type: boolean-based blind
    Title: AND boolean-based blind - WHERE or HAVING clause
    Payload: id=1 AND 6853=6853
    Type: time-based blind
    Title: MySQL >= 5.0.12 AND time-based blind (query SLEEP)
    Payload: id=1 AND (SELECT 9023 FROM (SELECT(SLEEP(5)))x)
---
`
	res := tooling.ExecutionResult{Success: true, Stdout: log}
	fs := SQLMap{}.Normalize(res)
	require.Len(t, fs, 1)
	f := fs[0]
	assert.Equal(t, finding.KindInjectionPoint, f.Kind)
	assert.Equal(t, finding.Critical, f.Severity)
	assert.Equal(t, "https://example.com/item?id=1", f.URL)
	assert.Equal(t, "id", f.Metadata["parameter"])
	assert.Contains(t, f.Evidence, "boolean-based blind")
	assert.Contains(t, f.Evidence, "time-based blind")
}

func TestSQLMapNormalizeNoFindings(t *testing.T) {
	t.Parallel()
	res := tooling.ExecutionResult{Success: true, Stdout: "all tested parameters do not appear to be injectable"}
	assert.Empty(t, SQLMap{}.Normalize(res))
}
