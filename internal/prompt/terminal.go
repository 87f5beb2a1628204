package prompt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	"golang.org/x/term"
)

// Terminal is the interactive Prompter backed by the controlling terminal.
// Line input goes through liner, secrets through term.ReadPassword.
type Terminal struct {
	line *liner.State
	out  io.Writer

	// readSecret reads one line without echo.
	readSecret func() (string, error)
}

// NewTerminal takes over stdin. Close must be called to restore the terminal.
func NewTerminal() *Terminal {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &Terminal{
		line: line,
		out:  os.Stdout,
		readSecret: func() (string, error) {
			b, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stdout)
			return string(b), err
		},
	}
}

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (t *Terminal) Close() error {
	return t.line.Close()
}

func (t *Terminal) prompt(text, def string) (string, error) {
	var (
		s   string
		err error
	)
	if def != "" {
		s, err = t.line.PromptWithSuggestion(text, def, -1)
	} else {
		s, err = t.line.Prompt(text)
	}
	if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
		return "", ErrAborted
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

func (t *Terminal) Input(title, def string) (string, error) {
	for {
		s, err := t.prompt(title+": ", def)
		if err != nil {
			return "", err
		}
		if s == "" {
			s = def
		}
		if s != "" {
			t.line.AppendHistory(s)
			return s, nil
		}
		color.New(color.FgYellow).Fprintln(t.out, "A value is required.")
	}
}

func (t *Terminal) Password(title string) (string, error) {
	return readNewPassword(t.out, title, func(text string) (string, error) {
		fmt.Fprint(t.out, text)
		return t.readSecret()
	})
}

// readNewPassword asks for a secret until a non-empty value is entered twice.
func readNewPassword(out io.Writer, title string, read func(prompt string) (string, error)) (string, error) {
	warn := color.New(color.FgYellow)
	for {
		first, err := read(title + ": ")
		if err != nil {
			return "", err
		}
		if first == "" {
			warn.Fprintln(out, "The password cannot be empty.")
			continue
		}
		second, err := read(title + " (again): ")
		if err != nil {
			return "", err
		}
		if first != second {
			warn.Fprintln(out, "The passwords do not match.")
			continue
		}
		return first, nil
	}
}

func (t *Terminal) Confirm(question string, def bool) (bool, error) {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	for {
		s, err := t.prompt(fmt.Sprintf("%s %s ", question, hint), "")
		if err != nil {
			return false, err
		}
		if ok, valid := parseYesNo(s, def); valid {
			return ok, nil
		}
		color.New(color.FgYellow).Fprintln(t.out, "Please answer yes or no.")
	}
}

func parseYesNo(s string, def bool) (answer bool, valid bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, true
	case "y", "yes":
		return true, true
	case "n", "no":
		return false, true
	}
	return false, false
}

func (t *Terminal) Select(title string, options []string, def int) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("%s: nothing to choose from", title)
	}
	bold := color.New(color.Bold)
	bold.Fprintln(t.out, title)
	for i, o := range options {
		marker := " "
		if i == def {
			marker = "*"
		}
		fmt.Fprintf(t.out, " %s %d) %s\n", marker, i+1, o)
	}
	for {
		s, err := t.prompt("Choice: ", strconv.Itoa(def+1))
		if err != nil {
			return 0, err
		}
		if idx, ok := parseChoice(s, len(options), def); ok {
			return idx, nil
		}
		color.New(color.FgYellow).Fprintf(t.out, "Enter a number between 1 and %d.\n", len(options))
	}
}

// parseChoice turns a 1-based answer into an index; an empty answer yields def.
func parseChoice(s string, n, def int) (int, bool) {
	if s == "" {
		return def, def >= 0 && def < n
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < 1 || i > n {
		return 0, false
	}
	return i - 1, true
}
