package system

import (
	"context"
	"io"
	"strings"
	"sync"
)

// FakeExecutor records commands instead of running them. Responses are looked up
// by the first registered prefix of the rendered command line that matches.
type FakeExecutor struct {
	mu        sync.Mutex
	Commands  []Command
	Stdins    []string
	responses []fakeResponse
}

type fakeResponse struct {
	prefix string
	code   int
	output string
	err    error
}

// Respond makes every command whose rendered line starts with prefix exit with
// code and print output.
func (f *FakeExecutor) Respond(prefix string, code int, output string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{prefix: prefix, code: code, output: output})
}

// Fail makes every command whose rendered line starts with prefix fail to start.
func (f *FakeExecutor) Fail(prefix string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{prefix: prefix, err: err})
}

// Run implements Executor.
func (f *FakeExecutor) Run(_ context.Context, c Command) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Commands = append(f.Commands, c)
	stdin := ""
	if c.Stdin != nil {
		b, _ := io.ReadAll(c.Stdin)
		stdin = string(b)
	}
	f.Stdins = append(f.Stdins, stdin)

	line := c.String()
	for _, r := range f.responses {
		if !strings.HasPrefix(line, r.prefix) {
			continue
		}
		if r.err != nil {
			return nil, r.err
		}
		res := &Result{ExitCode: r.code, Output: []byte(r.output)}
		if r.code != 0 {
			return res, &CommandError{Command: line, ExitCode: r.code, Output: res.Output}
		}
		return res, nil
	}
	return &Result{}, nil
}

// Lines returns every recorded command rendered as a shell line.
func (f *FakeExecutor) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, 0, len(f.Commands))
	for _, c := range f.Commands {
		lines = append(lines, c.String())
	}
	return lines
}
