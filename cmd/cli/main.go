// Command threatweaver orchestrates sandboxed security tools through
// workflow plans with human approval gates.
package main

import (
	"fmt"
	"os"
)

const usageText = `threatweaver - security tool orchestration

Usage:
  threatweaver run -plan <name> -target <host> [flags]
  threatweaver approvals [-list | -approve <id> | -reject <id> -reason <text> | -sweep]
  threatweaver plans

Run 'threatweaver <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	var code int
	switch os.Args[1] {
	case "run":
		code = cmdRun(os.Args[2:])
	case "approvals":
		code = cmdApprovals(os.Args[2:])
	case "plans":
		code = cmdPlans(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usageText)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usageText)
		code = 2
	}
	os.Exit(code)
}

// envOr returns the environment value for key, or def when unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
