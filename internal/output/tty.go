package output

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI codes used when color is enabled.
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

// IsTerminal reports whether w writes to an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NewAuto creates a Writer with color enabled when out is a terminal
// and NO_COLOR is unset.
func NewAuto(out io.Writer) *Writer {
	return &Writer{
		out:      out,
		useColor: IsTerminal(out) && os.Getenv("NO_COLOR") == "",
	}
}

// colorize wraps msg in the ANSI code when color is enabled.
func (w *Writer) colorize(code, msg string) string {
	if !w.useColor {
		return msg
	}
	return code + msg + colorReset
}
