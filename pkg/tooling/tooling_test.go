package tooling

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windoliver/ThreatWeaver/pkg/finding"
)

type stubAdapter struct{ name string }

func (s stubAdapter) Name() string { return s.name }

func (s stubAdapter) Template(in Input) ToolConfig {
	return ToolConfig{Name: s.name, Command: s.name, Args: []string{in.Target}, Timeout: time.Minute}
}

func (s stubAdapter) Normalize(res ExecutionResult) []finding.Finding { return nil }

func TestRegistryLookup(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Register(stubAdapter{name: "subfinder"})
	reg.Register(stubAdapter{name: "httpx"})

	a, err := reg.Lookup("subfinder")
	require.NoError(t, err)
	assert.Equal(t, "subfinder", a.Name())

	_, err = reg.Lookup("ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, finding.ErrUnknownTool))

	assert.Equal(t, []string{"httpx", "subfinder"}, reg.Names())
}

func TestRegistryDuplicatePanics(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Register(stubAdapter{name: "nmap"})
	assert.Panics(t, func() { reg.Register(stubAdapter{name: "nmap"}) })
}

func TestToolConfigValidate(t *testing.T) {
	t.Parallel()
	valid := ToolConfig{Name: "nmap", Command: "nmap", Timeout: time.Hour}
	require.NoError(t, valid.Validate())

	cases := []ToolConfig{
		{Command: "nmap", Timeout: time.Hour},
		{Name: "nmap", Timeout: time.Hour},
		{Name: "nmap", Command: "nmap"},
	}
	for _, cfg := range cases {
		err := cfg.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, finding.ErrConfiguration))
	}
}

func TestToolConfigWithDefaults(t *testing.T) {
	t.Parallel()
	cfg := ToolConfig{Name: "x", Command: "x"}.WithDefaults()
	assert.Equal(t, 1*time.Hour, cfg.Timeout)
	assert.Equal(t, 2.0, cfg.CPULimit)
	assert.Equal(t, 4096, cfg.MemoryLimitMB)

	custom := ToolConfig{Name: "x", Command: "x", Timeout: time.Minute, CPULimit: 1, MemoryLimitMB: 512}.WithDefaults()
	assert.Equal(t, time.Minute, custom.Timeout)
	assert.Equal(t, 1.0, custom.CPULimit)
	assert.Equal(t, 512, custom.MemoryLimitMB)
}
