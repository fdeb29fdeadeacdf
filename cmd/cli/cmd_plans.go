package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/windoliver/ThreatWeaver/pkg/plan"
	"github.com/windoliver/ThreatWeaver/pkg/ui"
)

func cmdPlans(args []string) int {
	fs := flag.NewFlagSet("plans", flag.ExitOnError)
	fs.Parse(args)

	for _, name := range plan.BuiltinNames() {
		p, err := plan.Builtin(name)
		if err != nil {
			continue
		}
		fmt.Printf("%s  %s\n", ui.HeaderStyle.Render(p.Name), ui.MutedStyle.Render(p.Description))
		var steps []string
		for _, s := range p.Steps {
			label := s.Tool
			if s.SensitiveOr(false) {
				label += ui.WarnStyle.Render(" (gated)")
			}
			steps = append(steps, label)
		}
		fmt.Printf("  %s\n", strings.Join(steps, " -> "))
	}
	return 0
}
