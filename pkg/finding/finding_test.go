package finding

import (
	"errors"
	"fmt"
	"testing"
)

func TestSeverityScoreOrdering(t *testing.T) {
	t.Parallel()
	order := []Severity{Info, Low, Medium, High, Critical}
	for i := 1; i < len(order); i++ {
		if order[i].Score() <= order[i-1].Score() {
			t.Fatalf("%s should outrank %s", order[i], order[i-1])
		}
	}
}

func TestParseSeverity(t *testing.T) {
	t.Parallel()
	cases := map[string]Severity{
		"critical": Critical,
		"high":     High,
		"info":     Info,
		"bogus":    Info,
		"":         Info,
	}
	for raw, want := range cases {
		if got := ParseSeverity(raw); got != want {
			t.Errorf("ParseSeverity(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestFindingKey(t *testing.T) {
	t.Parallel()
	a := Finding{Kind: KindSubdomain, Value: "api.example.com", Tool: "subfinder"}
	b := Finding{Kind: KindSubdomain, Value: "api.example.com", Tool: "amass"}
	if a.Key() != b.Key() {
		t.Fatal("same kind+value must yield the same key regardless of tool")
	}
	c := Finding{Kind: KindLiveHost, Value: "api.example.com"}
	if a.Key() == c.Key() {
		t.Fatal("different kinds must yield different keys")
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want Classification
	}{
		{nil, ClassNone},
		{ErrUnknownTool, ClassConfiguration},
		{ErrConfiguration, ClassConfiguration},
		{ErrTimeout, ClassTimeout},
		{ErrResourceExhausted, ClassResourceExhausted},
		{ErrUnavailable, ClassUnavailable},
		{errors.New("connection reset"), ClassRetryable},
		{fmt.Errorf("wrap: %w", ErrTimeout), ClassTimeout},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestIsStepRetryable(t *testing.T) {
	t.Parallel()
	if !ClassRetryable.IsStepRetryable() || !ClassResourceExhausted.IsStepRetryable() {
		t.Fatal("transient classes must be retryable")
	}
	for _, c := range []Classification{ClassTimeout, ClassConfiguration, ClassUnavailable, ClassNone} {
		if c.IsStepRetryable() {
			t.Errorf("%s must not be step-retryable", c)
		}
	}
}
