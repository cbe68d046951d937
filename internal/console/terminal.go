package console

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// ANSI styles used by the console.
const (
	styleReset   = "\033[0m"
	styleInfo    = "\033[38;2;152;251;152m"
	styleSuccess = "\033[38;2;60;179;113m"
	styleWarn    = "\033[1;33m"
	styleError   = "\033[1;31m"
	styleMenu    = "\033[1;36m"
	styleBanner  = "\033[38;2;218;112;214m"
)

// TerminalOutput wraps f so ANSI colours render on every platform and
// reports whether f is an interactive terminal worth colouring.
func TerminalOutput(f *os.File) (io.Writer, bool) {
	tty := isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	if !tty {
		return f, false
	}
	return colorable.NewColorable(f), true
}
