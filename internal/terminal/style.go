package terminal

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiGreen  = "\033[32m"
	ansiRed    = "\033[31m"
	ansiBlue   = "\033[34m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"

	clearSequence = "\033[H\033[2J"
)

// Style decides whether output carries ANSI escape sequences.
type Style struct {
	Color bool
}

// Plain disables all escape sequences.
var Plain = Style{}

// DetectStyle resolves a color mode ("auto", "always", "never") against f.
func DetectStyle(mode string, f *os.File) Style {
	switch strings.ToLower(mode) {
	case "always":
		return Style{Color: true}
	case "never":
		return Plain
	}
	if f == nil || os.Getenv("NO_COLOR") != "" {
		return Plain
	}
	fd := f.Fd()
	return Style{Color: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

func (s Style) paint(text string, codes ...string) string {
	if !s.Color || len(codes) == 0 {
		return text
	}
	return strings.Join(codes, "") + text + ansiReset
}
