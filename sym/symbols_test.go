package sym

import (
	"testing"
	"unicode/utf8"
)

func TestSymbolToCommandAndCommandToSymbolAreBidirectional(t *testing.T) {
	for symbol, cmd := range SymbolToCommand {
		got, ok := CommandToSymbol[cmd]
		if !ok {
			t.Errorf("SymbolToCommand has %q → %q, but CommandToSymbol has no entry for %q", symbol, cmd, cmd)
			continue
		}
		if got != symbol {
			t.Errorf("bidirectional mismatch: SymbolToCommand[%q] = %q, but CommandToSymbol[%q] = %q", symbol, cmd, cmd, got)
		}
	}

	for cmd, symbol := range CommandToSymbol {
		got, ok := SymbolToCommand[symbol]
		if !ok {
			t.Errorf("CommandToSymbol has %q → %q, but SymbolToCommand has no entry for %q", cmd, symbol, symbol)
			continue
		}
		if got != cmd {
			t.Errorf("bidirectional mismatch: CommandToSymbol[%q] = %q, but SymbolToCommand[%q] = %q", cmd, symbol, symbol, got)
		}
	}
}

func TestMapsHaveSameSize(t *testing.T) {
	if len(SymbolToCommand) != len(CommandToSymbol) {
		t.Errorf("map size mismatch: SymbolToCommand has %d entries, CommandToSymbol has %d",
			len(SymbolToCommand), len(CommandToSymbol))
	}
}

func TestCommandDescriptionsCoversAllCommands(t *testing.T) {
	for cmd := range CommandToSymbol {
		if _, ok := CommandDescriptions[cmd]; !ok {
			t.Errorf("CommandDescriptions missing entry for command %q", cmd)
		}
	}
}

func TestCommandDescriptionsHasNoExtraEntries(t *testing.T) {
	for cmd := range CommandDescriptions {
		if _, ok := CommandToSymbol[cmd]; !ok {
			t.Errorf("CommandDescriptions has entry for %q which is not in CommandToSymbol", cmd)
		}
	}
}

func TestStatusGlyphKnownStatuses(t *testing.T) {
	for _, status := range []string{"runnable", "running", "paused", "complete", "error"} {
		if g := StatusGlyph(status); g == "" || g == "·" {
			t.Errorf("StatusGlyph(%q) = %q, want a dedicated glyph", status, g)
		}
	}
}

func TestStatusGlyphUnknownStatusGetsNeutralMarker(t *testing.T) {
	if g := StatusGlyph("exploded"); g != "·" {
		t.Errorf("StatusGlyph(\"exploded\") = %q, want neutral marker", g)
	}
}

func TestSymbolsAreValidUnicode(t *testing.T) {
	for symbol := range SymbolToCommand {
		if !utf8.ValidString(symbol) {
			t.Errorf("symbol %q is not valid UTF-8", symbol)
		}
		if utf8.RuneCountInString(symbol) == 0 {
			t.Errorf("symbol for command %q is empty", SymbolToCommand[symbol])
		}
	}
	for status, glyph := range statusGlyphs {
		if !utf8.ValidString(glyph) {
			t.Errorf("status glyph for %q is not valid UTF-8", status)
		}
	}
}
