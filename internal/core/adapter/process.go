package adapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/aidb-dev/aidb/internal/aidberr"
	"github.com/aidb-dev/aidb/internal/models"
	"github.com/creack/pty"
)

// ManagedProcess wraps a spawned adapter process. Grounded on the
// teacher's internal/core/process.Manager/ManagedProcess, narrowed from
// a registry of named long-lived services down to the single adapter
// process a Session's Adapter owns.
type ManagedProcess struct {
	mu     sync.Mutex
	info   models.AdapterProcess
	cmd    *exec.Cmd
	ptmx   *os.File // non-nil only when Trace is enabled
	onLog  func(line string)
	exited chan struct{} // closed once cmd.Wait (called exactly once, in monitor) returns
}

// SpawnOptions configures how an adapter process is started.
type SpawnOptions struct {
	Command string
	Args    []string
	Env     []string
	Cwd     string
	// Trace runs the process behind a pty so its combined stdout/stderr
	// can be captured line-by-line for AIDB_ADAPTER_TRACE, in addition
	// to (not instead of) the process's own DAP TCP socket.
	Trace bool
	OnLog func(line string)
}

// Spawn starts the adapter process per opts, returning a ManagedProcess
// whose info.Status is Running on success.
func Spawn(ctx context.Context, language Language, opts SpawnOptions) (*ManagedProcess, error) {
	cmd := exec.CommandContext(ctx, opts.Command, opts.Args...)
	cmd.Dir = opts.Cwd
	cmd.Env = opts.Env

	mp := &ManagedProcess{
		cmd:    cmd,
		onLog:  opts.OnLog,
		exited: make(chan struct{}),
		info: models.AdapterProcess{
			Language:   string(language),
			Command:    opts.Command,
			Args:       opts.Args,
			WorkingDir: opts.Cwd,
			Status:     models.ProcessStatusSpawning,
		},
	}

	var err error
	if opts.Trace {
		err = mp.startWithTrace()
	} else {
		err = mp.startPlain()
	}
	if err != nil {
		mp.info.Status = models.ProcessStatusCrashed
		return nil, &aidberr.SpawnFailed{Cause: err}
	}

	now := time.Now()
	mp.info.Status = models.ProcessStatusRunning
	mp.info.StartedAt = &now
	mp.info.PID = cmd.Process.Pid

	go mp.monitor()

	return mp, nil
}

func (mp *ManagedProcess) startPlain() error {
	stdout, err := mp.cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := mp.cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := mp.cmd.Start(); err != nil {
		return err
	}
	go mp.drainLines(stdout)
	go mp.drainLines(stderr)
	return nil
}

// startWithTrace starts the process behind a PTY purely to capture a
// single combined, line-buffered trace stream — grounded on the
// teacher's process/pty.go startWithPTY/readPTYOutput. The adapter's own
// DAP socket is unaffected; this only observes the process's own
// stdout/stderr noise (debugpy/vscode-js-debug startup banners, etc.).
func (mp *ManagedProcess) startWithTrace() error {
	ptmx, err := pty.Start(mp.cmd)
	if err != nil {
		return fmt.Errorf("starting adapter under pty: %w", err)
	}
	mp.ptmx = ptmx
	go mp.drainLines(ptmx)
	return nil
}

func (mp *ManagedProcess) drainLines(r io.Reader) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" && mp.onLog != nil {
			mp.onLog(line)
		}
		if err != nil {
			return
		}
	}
}

func (mp *ManagedProcess) monitor() {
	err := mp.cmd.Wait()
	defer close(mp.exited)

	mp.mu.Lock()
	defer mp.mu.Unlock()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}
	mp.info.ExitCode = &exitCode

	if mp.info.Status == models.ProcessStatusStopping {
		mp.info.Status = models.ProcessStatusExited
		return
	}
	mp.info.Status = models.ProcessStatusCrashed
}

// Info returns a snapshot of the process's current state.
func (mp *ManagedProcess) Info() models.AdapterProcess {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.info
}

// Stop signals the process to terminate gracefully, then kills it if it
// has not exited within grace. Idempotent.
func (mp *ManagedProcess) Stop(grace time.Duration) error {
	mp.mu.Lock()
	if mp.info.Status != models.ProcessStatusRunning {
		mp.mu.Unlock()
		return nil
	}
	mp.info.Status = models.ProcessStatusStopping
	proc := mp.cmd.Process
	mp.mu.Unlock()

	if proc == nil {
		return nil
	}

	_ = proc.Signal(os.Interrupt)

	select {
	case <-mp.exited:
	case <-time.After(grace):
		_ = proc.Kill()
		<-mp.exited
	}

	if mp.ptmx != nil {
		_ = mp.ptmx.Close()
	}
	return nil
}
