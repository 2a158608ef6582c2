package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ExitStatus describes how the analyzer process terminated.
type ExitStatus struct {
	// Code is the exit code, or -1 if the process was killed by a signal.
	Code int

	// Signal is a human-readable description when the process died from a
	// signal (e.g. "signal: killed"); empty otherwise.
	Signal string

	// Err is the error returned by Wait, if any.
	Err error
}

// ProcessConfig defines how to start the analyzer process.
type ProcessConfig struct {
	// Command is the executable to run (typically the pike binary).
	Command string

	// Args are command-line arguments (typically the analyzer script path).
	Args []string

	// Env are additional environment variables.
	Env map[string]string

	// WorkDir is the working directory (defaults to the current directory).
	WorkDir string
}

// Process spawns and supervises exactly one analyzer process and provides
// line-oriented bidirectional text I/O. It carries no request/response
// correlation logic; that lives in Bridge.
//
// Stdout is read by a dedicated goroutine that reassembles complete lines
// before publishing them, so a JSON payload split across OS-level reads is
// always delivered as one line. Stderr is captured the same way but is
// purely diagnostic and never parsed as protocol data.
type Process struct {
	config ProcessConfig
	logger *zap.Logger

	mu    sync.Mutex // guards cmd/stdin and serializes writes
	cmd   *exec.Cmd
	stdin io.WriteCloser

	running   atomic.Bool
	startedAt time.Time

	lines  chan string
	stderr chan string
	exitCh chan ExitStatus
	done   chan struct{} // closed once the process has exited
}

// NewProcess creates a process wrapper (not yet started).
func NewProcess(config ProcessConfig, logger *zap.Logger) *Process {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Process{
		config: config,
		logger: logger,
	}
}

// Start launches the analyzer process and begins reading its output.
// A launch failure (executable not found, permission denied) is reported
// synchronously as a *SpawnError; anything that goes wrong after a
// successful spawn is reported only via the exit channel.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return ErrAlreadyRunning
	}

	cmd := exec.CommandContext(ctx, p.config.Command, p.config.Args...)

	cmd.Env = os.Environ()
	for k, v := range p.config.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if p.config.WorkDir != "" {
		cmd.Dir = p.config.WorkDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &SpawnError{Command: p.config.Command, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return &SpawnError{Command: p.config.Command, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return &SpawnError{Command: p.config.Command, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return &SpawnError{Command: p.config.Command, Err: err}
	}

	p.cmd = cmd
	p.stdin = stdin
	p.startedAt = time.Now()
	p.lines = make(chan string, 64)
	p.stderr = make(chan string, 16)
	p.exitCh = make(chan ExitStatus, 1)
	p.done = make(chan struct{})
	p.running.Store(true)

	go p.readLines(stdout, p.lines)
	go p.readLines(stderr, p.stderr)
	go p.wait()

	p.logger.Debug("analyzer process started",
		zap.String("command", p.config.Command),
		zap.Int("pid", cmd.Process.Pid))

	return nil
}

// readLines reads r until EOF, publishing one complete line at a time.
// bufio.Reader reassembles lines split across OS-level reads, and
// ReadString imposes no token size limit, so arbitrarily large single-line
// JSON payloads arrive whole.
func (p *Process) readLines(r io.Reader, out chan<- string) {
	defer close(out)

	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if trimmed := strings.TrimRight(line, "\r\n"); trimmed != "" {
			out <- trimmed
		}
		if err != nil {
			return
		}
	}
}

// wait blocks until the process exits and delivers the exit status
// exactly once.
func (p *Process) wait() {
	err := p.cmd.Wait()

	status := ExitStatus{}
	if err != nil {
		status.Err = err
		if ee, ok := err.(*exec.ExitError); ok {
			status.Code = ee.ExitCode()
			if status.Code == -1 {
				status.Signal = ee.ProcessState.String()
			}
		} else {
			status.Code = -1
		}
	}

	p.running.Store(false)
	close(p.done)
	p.exitCh <- status
}

// WriteLine writes one newline-terminated line to the process's stdin.
// Writes are serialized under a mutex and issued as a single Write call,
// so concurrent senders can never interleave partial lines.
func (p *Process) WriteLine(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.Load() || p.stdin == nil {
		return ErrNotRunning
	}

	if _, err := io.WriteString(p.stdin, line+"\n"); err != nil {
		return fmt.Errorf("write to analyzer: %w", err)
	}
	return nil
}

// Lines returns the channel of complete stdout lines. It is closed when
// the process's stdout reaches EOF.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// StderrLines returns the channel of stderr lines. Diagnostic only.
func (p *Process) StderrLines() <-chan string {
	return p.stderr
}

// Exit returns a channel that delivers the exit status exactly once when
// the process terminates, whether by normal exit, signal, or crash.
func (p *Process) Exit() <-chan ExitStatus {
	return p.exitCh
}

// Running reports whether the process is currently alive.
func (p *Process) Running() bool {
	return p.running.Load()
}

// PID returns the OS process id, or 0 if never started.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Uptime returns how long the process has been running.
func (p *Process) Uptime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		return 0
	}
	return time.Since(p.startedAt)
}

// Stop terminates the process: stdin is closed so the analyzer can exit on
// its own, and after grace the process is killed if still alive. Calling
// Stop on an already-stopped process is a no-op.
func (p *Process) Stop(grace time.Duration) error {
	p.mu.Lock()
	cmd := p.cmd
	stdin := p.stdin
	done := p.done
	p.stdin = nil
	p.mu.Unlock()

	if cmd == nil || done == nil {
		return nil
	}

	if stdin != nil {
		stdin.Close()
	}

	select {
	case <-done:
		return nil
	case <-time.After(grace):
	}

	p.logger.Warn("analyzer did not exit within grace period; killing",
		zap.Duration("grace", grace))

	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-done
	return nil
}
