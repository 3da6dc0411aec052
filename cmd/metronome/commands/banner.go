package commands

import (
	"fmt"

	"github.com/teranos/metronome/logger"
	"github.com/teranos/metronome/sym"
	"github.com/teranos/metronome/version"
)

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(verbosity int, dbPath string) {
	// ANSI escape codes
	cyan := "\033[36m"
	green := "\033[32m"
	yellow := "\033[33m"
	blue := "\033[34m"
	magenta := "\033[35m"
	white := "\033[37m"
	bold := "\033[1m"
	reset := "\033[0m"

	versionInfo := version.Get()

	fmt.Printf("\n%s%s", cyan, bold)
	fmt.Printf("   ╔═══════════════════════════════════════════════════╗\n")
	fmt.Printf("   ║                                                   ║\n")
	fmt.Printf("   ║         %s▲%s                                         ║\n", white, reset+cyan+bold)
	fmt.Printf("   ║        %s╱│╲%s       %sM E T R O N O M E%s                ║\n", white, reset+cyan+bold, white, reset+cyan+bold)
	fmt.Printf("   ║       %s╱ │ ╲%s                                       ║\n", white, reset+cyan+bold)
	fmt.Printf("   ║      %s╱  %s●%s  ╲%s     cluster-wide job scheduler       ║\n", white, magenta, white, reset+cyan+bold)
	fmt.Printf("   ║     %s╱   │   ╲%s    one node per trigger, no drift   ║\n", white, reset+cyan+bold)
	fmt.Printf("   ║    %s╱    │    ╲%s                                    ║\n", white, reset+cyan+bold)
	fmt.Printf("   ║   %s▕─────┴─────▏%s                                   ║\n", white, reset+cyan+bold)
	fmt.Printf("   ║                                                   ║\n")
	fmt.Printf("   ║   %s%s%s Schedule   %s%s%s Trigger   %s%s%s Apply   %s%s%s Store     ║\n",
		green, sym.Sched, reset+cyan+bold,
		yellow, sym.Trigger, reset+cyan+bold,
		magenta, sym.Manifest, reset+cyan+bold,
		blue, sym.DB, reset+cyan+bold)
	fmt.Printf("   ║                                                   ║\n")
	fmt.Printf("   ╚═══════════════════════════════════════════════════╝%s\n\n", reset)

	fmt.Printf("%s%s┌─ Metronome Info ────────────────────────────────────┐%s\n", green, bold, reset)
	fmt.Printf("%s│%s Version:   %s (commit %s)\n", green, reset, versionInfo.Version, versionInfo.Short())
	fmt.Printf("%s│%s Built:     %s\n", green, reset, versionInfo.BuildTime)
	fmt.Printf("%s│%s Verbosity: %s\n", green, reset, logger.LevelName(verbosity))
	if dbPath != "" {
		fmt.Printf("%s│%s Database:  %s\n", green, reset, dbPath)
	}
	fmt.Printf("%s└─────────────────────────────────────────────────────┘%s\n", green, reset)

	fmt.Printf("\n%s%s✨ Triggers fire on the beat; leases keep them exclusive%s\n", yellow, bold, reset)
	fmt.Printf("%s💡 Press Ctrl+C to stop%s\n\n", blue, reset)
}
