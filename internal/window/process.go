package window

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/anmitsu/go-shlex"
)

// killedExitCode is reported when the browser ignored SIGTERM and was killed.
const killedExitCode = 128 + int(syscall.SIGKILL)

// maxLineLength bounds a buffered output line before it is logged as is.
const maxLineLength = 64 * 1024

// Process runs one window's browser process.
type Process struct {
	id      string
	command string
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// gracefulTimeout is how long the browser gets to exit after SIGTERM.
	gracefulTimeout time.Duration
}

// NewProcess creates a process for command. Nothing runs until Run.
func NewProcess(id, command string, logger *slog.Logger) *Process {
	ctx, cancel := context.WithCancel(context.Background())
	return &Process{
		id:              id,
		command:         command,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
		gracefulTimeout: 5 * time.Second,
	}
}

// Command returns the command line.
func (p *Process) Command() string {
	return p.command
}

// Shutdown asks a running process to exit. Safe to call more than once.
func (p *Process) Shutdown() {
	p.cancel()
}

// Run starts the process and blocks until it exits. After Shutdown the
// browser receives SIGTERM and is killed if still running after the
// graceful timeout. Run returns the exit code, 128+signal when the process
// died from a signal, and 1 when it could not be started.
func (p *Process) Run() int {
	args, err := splitCommand(p.command)
	if err != nil {
		p.logger.Error("Invalid window command", "command", p.command, "error", err)
		return 1
	}

	stdout := &lineLogger{logger: p.logger, source: "stdout"}
	stderr := &lineLogger{logger: p.logger, source: "stderr"}

	cmd := exec.CommandContext(p.ctx, args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		p.logger.Debug("Sending SIGTERM to process", "pid", cmd.Process.Pid)
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = p.gracefulTimeout

	if err := cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "command", p.command, "error", err)
		return 1
	}
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid)

	waitErr := cmd.Wait()
	stdout.flush()
	stderr.flush()

	code := exitCode(cmd.ProcessState)
	switch {
	case code == killedExitCode && p.ctx.Err() != nil:
		p.logger.Warn("Process ignored SIGTERM and was killed", "timeout", p.gracefulTimeout)
	case waitErr != nil && cmd.ProcessState == nil:
		p.logger.Error("Process wait failed", "error", waitErr)
	case errors.Is(waitErr, exec.ErrWaitDelay):
		p.logger.Debug("Process output still open after exit")
	}
	p.logger.Info("Process exited", "exit_code", code)
	return code
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return 1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

// splitCommand splits a command line with POSIX shell quoting rules.
func splitCommand(command string) ([]string, error) {
	args, err := shlex.Split(command, true)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	return args, nil
}

// lineLogger writes browser output to the debug log one line at a time.
type lineLogger struct {
	logger *slog.Logger
	source string
	buf    []byte
}

func (l *lineLogger) Write(b []byte) (int, error) {
	l.buf = append(l.buf, b...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[:i])
		l.buf = l.buf[i+1:]
	}
	if len(l.buf) >= maxLineLength {
		l.flush()
	}
	return len(b), nil
}

func (l *lineLogger) flush() {
	if len(l.buf) > 0 {
		l.emit(l.buf)
		l.buf = nil
	}
}

func (l *lineLogger) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) > 0 {
		l.logger.Debug(string(line), "source", l.source)
	}
}
