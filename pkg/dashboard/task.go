package dashboard

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
	"time"
)

// TaskStatus represents runtime state.
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskRunning
	TaskSuccess
	TaskFailed
	TaskSkipped
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskSuccess:
		return "passed"
	case TaskFailed:
		return "failed"
	case TaskSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Done reports whether the task reached a terminal state.
func (s TaskStatus) Done() bool {
	return s == TaskSuccess || s == TaskFailed || s == TaskSkipped
}

const (
	defaultBufferLines = 50000

	// ExitCommandNotFound mirrors the shell's code for a missing executable.
	ExitCommandNotFound = 127

	// ExitInterrupted is reported when a task is stopped by cancellation.
	ExitInterrupted = 130

	// SignalTimeout is how long a cancelled process group gets before SIGKILL.
	SignalTimeout = 2 * time.Second
)

// StepFunc is an in-process step. Output written to out is captured like a
// command's stdout.
type StepFunc func(ctx context.Context, out io.Writer) error

// TaskSpec describes one step: either an external command (Argv) or a
// built-in function (Func).
type TaskSpec struct {
	Group string
	Name  string
	Argv  []string
	Func  StepFunc
	Dir   string
}

// Command returns the display form used for formatter matching.
func (s TaskSpec) Command() string {
	if len(s.Argv) == 0 {
		return "builtin " + strings.ToLower(s.Name)
	}
	return strings.Join(s.Argv, " ")
}

// Task represents execution state. Fields are written by the runner
// goroutine only; readers use the accessor methods.
type Task struct {
	Spec TaskSpec

	mu         sync.Mutex
	status     TaskStatus
	exitCode   int
	startedAt  time.Time
	finishedAt time.Time
	output     []string
	err        error
}

// TaskUpdate describes runtime changes for TUI/non-tty.
type TaskUpdate struct {
	Index    int
	Status   TaskStatus
	Line     string
	ExitCode int
}

// StartTasks runs the tasks one after another and streams updates. After
// the first failure, or once ctx is done, the remaining tasks are skipped.
// The update channel is closed when every task is in a terminal state.
func StartTasks(ctx context.Context, specs []TaskSpec) ([]*Task, <-chan TaskUpdate) {
	updates := make(chan TaskUpdate)
	tasks := make([]*Task, len(specs))
	for i, spec := range specs {
		tasks[i] = &Task{Spec: spec, status: TaskPending, exitCode: -1}
	}

	go func() {
		defer close(updates)
		halted := false
		for i, task := range tasks {
			if halted || ctx.Err() != nil {
				task.skip()
				updates <- TaskUpdate{Index: i, Status: TaskSkipped, ExitCode: -1}
				continue
			}
			runTask(ctx, i, task, updates)
			if task.Status() == TaskFailed {
				halted = true
			}
		}
	}()

	return tasks, updates
}

func runTask(ctx context.Context, index int, task *Task, updates chan<- TaskUpdate) {
	task.start()
	updates <- TaskUpdate{Index: index, Status: TaskRunning}

	emit := func(line string) {
		task.appendLine(line)
		updates <- TaskUpdate{Index: index, Status: TaskRunning, Line: line}
	}

	var code int
	var err error
	if task.Spec.Func != nil {
		code, err = runFunc(ctx, task.Spec, emit)
	} else {
		code, err = runCommand(ctx, task.Spec, emit)
	}

	task.finish(code, err)
	updates <- TaskUpdate{Index: index, Status: task.Status(), ExitCode: code}
}

func runCommand(ctx context.Context, spec TaskSpec, emit func(string)) (int, error) {
	if len(spec.Argv) == 0 {
		return 1, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return interruptProcessGroup(cmd) }
	cmd.WaitDelay = SignalTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 1, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 1, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if IsCommandNotFound(err) {
			return ExitCommandNotFound, err
		}
		return 1, err
	}

	merged := make(chan string)
	var streamsWG sync.WaitGroup
	streamsWG.Add(2)
	go readStream(&streamsWG, stdout, merged)
	go readStream(&streamsWG, stderr, merged)
	go func() {
		streamsWG.Wait()
		close(merged)
	}()

	for line := range merged {
		emit(line)
	}

	err = cmd.Wait()
	if err == nil {
		return 0, nil
	}
	if ctx.Err() != nil {
		return ExitInterrupted, fmt.Errorf("%s: %w", spec.Argv[0], ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return code, err
		}
	}
	return 1, err
}

// exitCoder lets built-in steps pick their own exit code.
type exitCoder interface {
	ExitCode() int
}

func runFunc(ctx context.Context, spec TaskSpec, emit func(string)) (int, error) {
	w := &lineWriter{emit: emit}
	err := spec.Func(ctx, w)
	w.flush()
	if err == nil {
		return 0, nil
	}
	var ec exitCoder
	if errors.As(err, &ec) && ec.ExitCode() > 0 {
		return ec.ExitCode(), err
	}
	return 1, err
}

// lineWriter turns writes into complete lines.
type lineWriter struct {
	emit func(string)
	buf  bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line: keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		w.emit(strings.TrimRight(line, "\r\n"))
	}
}

func (w *lineWriter) flush() {
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

// MaxLineBytes caps a captured output line. Longer lines are cut and
// marked with TruncatedSuffix; the rest of the stream is still read.
const MaxLineBytes = 1024 * 1024

// TruncatedSuffix marks a line cut at MaxLineBytes.
const TruncatedSuffix = " [line truncated]"

// readStream emits r line by line until EOF. It never stops reading
// early, so a child writing oversized lines cannot block on a full pipe.
func readStream(wg *sync.WaitGroup, r io.Reader, merged chan<- string) {
	defer wg.Done()
	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	truncated := false
	for {
		chunk, more, err := br.ReadLine()
		if err != nil {
			return
		}
		if room := MaxLineBytes - len(line); len(chunk) > room {
			line = append(line, chunk[:room]...)
			truncated = true
		} else {
			line = append(line, chunk...)
		}
		if more {
			continue
		}
		text := string(line)
		if truncated {
			text += TruncatedSuffix
		}
		merged <- text
		line, truncated = line[:0], false
	}
}

// IsCommandNotFound checks if the error indicates the command was not found.
func IsCommandNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "executable file not found") ||
		strings.Contains(errStr, "no such file or directory")
}

func (t *Task) start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = TaskRunning
	t.startedAt = time.Now()
}

func (t *Task) skip() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = TaskSkipped
}

func (t *Task) finish(code int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishedAt = time.Now()
	t.exitCode = code
	t.err = err
	if code == 0 && err == nil {
		t.status = TaskSuccess
	} else {
		t.status = TaskFailed
	}
}

func (t *Task) appendLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.output = append(t.output, line)
	if len(t.output) > defaultBufferLines {
		t.output = t.output[len(t.output)-defaultBufferLines:]
	}
}

// Status returns the current state.
func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// ExitCode is -1 until the task finishes.
func (t *Task) ExitCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitCode
}

// Err returns the error the step finished with, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// StartedAt returns when the task began running, zero if it never did.
func (t *Task) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// GetOutput returns a copy of the output lines.
func (t *Task) GetOutput() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([]string, len(t.output))
	copy(result, t.output)
	return result
}

// Duration returns elapsed time.
func (t *Task) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt.IsZero() {
		return 0
	}
	if t.finishedAt.IsZero() {
		return time.Since(t.startedAt)
	}
	return t.finishedAt.Sub(t.startedAt)
}
