// Package sym defines canonical symbols for metronome CLI output and
// system markers. These symbols are stable across CLI, logs, and
// documentation; changing a glyph changes every surface that prints it.
package sym

// Subsystem symbols. Each top-level CLI command prints its glyph so
// interleaved output stays attributable at a glance.
const (
	Sched    = "♩" // scheduler daemon, the beat that fires triggers
	Trigger  = "✦" // trigger operations, temporal markers
	Manifest = "⊞" // manifest apply, declaring definitions
	Config   = "≡" // configuration and system settings
	DB       = "⊔" // database/storage layer
)

// Daemon lifecycle symbols.
const (
	DaemonUp   = "✿" // graceful startup with lease recovery
	DaemonDown = "❀" // graceful shutdown returning claimed work
)

// Trigger status glyphs, keyed by the stored status string.
var statusGlyphs = map[string]string{
	"runnable": "○", // waiting to become due
	"running":  "●", // a node holds the lease
	"paused":   "‖", // suspended by an operator
	"complete": "✓", // no further execution
	"error":    "✗", // parked until reset
}

// StatusGlyph returns the glyph for a trigger or execution status.
// Unknown statuses get a neutral marker rather than an error; status
// strings come from the database and display must not fail on them.
func StatusGlyph(status string) string {
	if g, ok := statusGlyphs[status]; ok {
		return g
	}
	return "·"
}

// SymbolToCommand maps glyph strings to their CLI command equivalents.
var SymbolToCommand = map[string]string{
	Sched:    "start",
	Trigger:  "trigger",
	Manifest: "apply",
	Config:   "config",
	DB:       "db",
}

// CommandToSymbol maps CLI commands to their canonical glyph strings.
var CommandToSymbol = map[string]string{
	"start":   Sched,
	"trigger": Trigger,
	"apply":   Manifest,
	"config":  Config,
	"db":      DB,
}

// CommandDescriptions provides human-readable explanations for help text.
var CommandDescriptions = map[string]string{
	"start":   "Scheduler — claim and execute due triggers",
	"trigger": "Trigger — inspect and manage job triggers",
	"apply":   "Apply — declare job definitions from a manifest",
	"config":  "Configuration — system settings and state",
	"db":      "Database — storage statistics and diagnostics",
}
