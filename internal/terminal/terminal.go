// Package terminal provides small helpers for interactive prompts.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrEmptyInput is returned when the user submits nothing.
var ErrEmptyInput = errors.New("no input provided")

// IsInteractive reports whether stdin is attached to a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ReadSecret prompts on stderr and reads one line without echo when stdin is
// a terminal. Piped input is read as a plain line.
func ReadSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return ReadLine(os.Stdin)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return nonEmpty(string(b))
}

// ReadLine reads a single line from r.
func ReadLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return nonEmpty(line)
}

func nonEmpty(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyInput
	}
	return s, nil
}

// LinesUsed reports how many terminal rows textLength characters occupy at
// the given width.
func LinesUsed(textLength, width int) int {
	if width <= 0 {
		width = 80
	}
	n := int(math.Ceil(float64(textLength) / float64(width)))
	if n < 1 {
		n = 1
	}
	return n
}

// ClearPreviousLines erases the prompt and input the user just submitted,
// including the empty line left by Enter.
func ClearPreviousLines(textLength int) {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	n := LinesUsed(textLength, width) + 1
	for i := 0; i < n; i++ {
		fmt.Print("\r\x1b[2K")
		if i < n-1 {
			fmt.Print("\x1b[1A")
		}
	}
}
