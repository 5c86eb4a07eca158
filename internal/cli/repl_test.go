package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type fakeExec struct {
	calls []string
	err   error
}

func (f *fakeExec) record(s string) error {
	f.calls = append(f.calls, s)
	return f.err
}

func (f *fakeExec) Projects(ctx context.Context) error       { return f.record("projects") }
func (f *fakeExec) Use(ctx context.Context, id string) error { return f.record("use " + id) }
func (f *fakeExec) NewProject(ctx context.Context) error     { return f.record("newproject") }
func (f *fakeExec) List(ctx context.Context, c string) error { return f.record("list " + c) }
func (f *fakeExec) New(ctx context.Context, c string) error  { return f.record("new " + c) }
func (f *fakeExec) Edit(ctx context.Context, c, id string) error {
	return f.record("edit " + c + " " + id)
}
func (f *fakeExec) Delete(ctx context.Context, c, id string) error {
	return f.record("delete " + c + " " + id)
}
func (f *fakeExec) Move(ctx context.Context, c string, from, to int) error {
	return f.record(fmt.Sprintf("move %s %d %d", c, from, to))
}
func (f *fakeExec) Settings(ctx context.Context, args []string) error {
	return f.record(strings.TrimSpace("settings " + strings.Join(args, " ")))
}

func stubPrint(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	origPrint := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, fmt.Sprint(a...))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = origPrint })
	return &lines
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	stubPrint(t)

	input := strings.NewReader(strings.Join([]string{
		"help",
		"projects",
		"use p1",
		"newproject",
		"list scenes",
		"l locations",
		"new characters",
		"edit scenes s1",
		"delete scenes s1",
		"move scenes 0 2",
		"settings",
		"settings aspectRatio 1:1",
		"",
		"exit",
		"projects",
	}, "\n"))

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, bufio.NewReader(input))

	want := []string{
		"projects",
		"use p1",
		"newproject",
		"list scenes",
		"list locations",
		"new characters",
		"edit scenes s1",
		"delete scenes s1",
		"move scenes 0 2",
		"settings",
		"settings aspectRatio 1:1",
	}
	if strings.Join(exec.calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls mismatch:\n got %v\nwant %v", exec.calls, want)
	}
}

func TestRunREPL_UsageAndQuit(t *testing.T) {
	lines := stubPrint(t)

	input := strings.NewReader("use\nedit scenes\nmove scenes a b\nfoobar\nquit\n")
	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewReader(input))

	if len(exec.calls) != 0 {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
	out := strings.Join(*lines, "\n")
	for _, want := range []string{"Usage: use <id>", "Usage: edit <collection> <id>", "Usage: move", "Unknown command:foobar", "Bye!"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunREPL_ReportsErrorsAndContinues(t *testing.T) {
	lines := stubPrint(t)

	exec := &fakeExec{err: errors.New("boom")}
	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewReader(strings.NewReader("projects\nlist scenes")))

	if len(exec.calls) != 2 {
		t.Fatalf("expected both commands to run, got %v", exec.calls)
	}
	if !strings.Contains(strings.Join(*lines, "\n"), "Error:boom") {
		t.Fatalf("error not reported: %v", *lines)
	}
}
