package output

import (
	"os"

	"golang.org/x/term"
)

// IsTTY checks if stdout is a terminal
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
