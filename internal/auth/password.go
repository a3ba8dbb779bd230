package auth

import (
	"fmt"
	"io"

	"golang.org/x/term"
)

var readPassword = term.ReadPassword

// TerminalPasswordReader reads a password from the terminal fd with echo
// disabled, writing the prompt to out.
func TerminalPasswordReader(fd int, out io.Writer) PasswordReader {
	return func(prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		password, err := readPassword(fd)
		// Start a new line after the hidden input.
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(password), nil
	}
}
