package system

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"arch-setup/internal/logger"
)

// Command describes a single process invocation.
type Command struct {
	Name  string
	Args  []string
	Env   []string  // appended to the current environment
	Stdin io.Reader // optional, e.g. a passphrase for cryptsetup

	// Interactive attaches the process to the terminal instead of capturing output.
	Interactive bool
}

// String renders the command line the way it would be typed in a shell.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is what a finished process left behind. Output holds stdout only,
// callers parse it as data.
type Result struct {
	ExitCode int
	Output   []byte
	Stderr   []byte
}

// CommandError reports a process that ran but exited non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Output   []byte
	Stderr   []byte
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("failed to run command: %s (exit status %d)", e.Command, e.ExitCode)
}

// Executor runs external processes. Everything in arch-setup that shells out
// goes through it, which is what lets tests replace the shell with a recorder.
type Executor interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ProcessExecutor is the real Executor backed by os/exec.
type ProcessExecutor struct {
	logWriter io.Writer
	mu        sync.Mutex
}

// NewExecutor returns an Executor that streams captured output to logWriter.
// A nil logWriter discards the live output; it is still captured in the Result.
func NewExecutor(logWriter io.Writer) *ProcessExecutor {
	if logWriter == nil {
		logWriter = io.Discard
	}
	return &ProcessExecutor{logWriter: logWriter}
}

// Run starts the command, waits for it and converts a non-zero exit into a
// *CommandError. Errors that prevent the process from starting are returned as is;
// a process killed because ctx ended yields ctx.Err(), wrapped.
func (e *ProcessExecutor) Run(ctx context.Context, c Command) (*Result, error) {
	logger.Debug("[DEBUG] Running command: %s\n", c.String())

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	if c.Interactive {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		runErr := cmd.Run()
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", c.String(), err)
		}
		code, err := exitCode(runErr)
		if err != nil {
			return nil, err
		}
		if code != 0 {
			return &Result{ExitCode: code}, &CommandError{Command: c.String(), ExitCode: code}
		}
		return &Result{}, nil
	}

	if c.Stdin != nil {
		cmd.Stdin = c.Stdin
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	var stdout, stderr bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.stream(stdoutPipe, "stdout", &stdout)
	}()
	go func() {
		defer wg.Done()
		e.stream(stderrPipe, "stderr", &stderr)
	}()

	// Pipes must be drained before Wait closes them.
	wg.Wait()
	waitErr := cmd.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", c.String(), err)
	}
	code, err := exitCode(waitErr)
	if err != nil {
		return nil, err
	}

	res := &Result{ExitCode: code, Output: stdout.Bytes(), Stderr: stderr.Bytes()}
	if code != 0 {
		return res, &CommandError{Command: c.String(), ExitCode: code, Output: res.Output, Stderr: res.Stderr}
	}
	return res, nil
}

// stream copies r line by line to the log writer, prefixed, and into buf.
// Lines of any length are accepted and r is always read to the end, so the
// child never blocks on a full pipe.
func (e *ProcessExecutor) stream(r io.Reader, prefix string, buf *bytes.Buffer) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			e.mu.Lock()
			fmt.Fprintf(e.logWriter, "%s: %s\n", prefix, line)
			e.mu.Unlock()
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
		if err == nil {
			continue
		}
		if err != io.EOF {
			logger.Debug("[DEBUG] Reading %s: %v\n", prefix, err)
			io.Copy(io.Discard, r)
		}
		return
	}
}

// exitCode extracts an exit code from a command error.
// Returns (code, nil) for ExitError, (0, err) for other errors, (0, nil) for nil.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, err
}

// RequireTools reports every tool from the list that is not on PATH.
func RequireTools(tools ...string) error {
	var missing []string
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required tools not found in PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}
