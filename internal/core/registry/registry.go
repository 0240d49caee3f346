// Package registry implements the process-wide Session Registry
// (spec.md §4.7): the single directory every façade goes through to
// create, look up, list, and tear down Sessions, plus the
// cleanup_orphans sweep for adapter processes a crashed AIDB process
// left behind. Grounded on caboose-desktop's own session/process
// managers — a mutex-guarded map keyed by id, with a single optional
// "current" entry standing in for caboose-desktop's single active
// project session.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aidb-dev/aidb/internal/aidberr"
	"github.com/aidb-dev/aidb/internal/core/adapter"
	"github.com/aidb-dev/aidb/internal/core/config"
	"github.com/aidb-dev/aidb/internal/core/dapclient"
	"github.com/aidb-dev/aidb/internal/core/session"
	"github.com/aidb-dev/aidb/internal/core/workers"
	"github.com/aidb-dev/aidb/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// entry bundles a live Session with the pieces the Registry needs to
// tear it down or recognize its adapter process during cleanup_orphans,
// without forcing the Session itself to expose them.
type entry struct {
	sess *session.Session
	ad   *adapter.Adapter
}

// Registry is the process-wide SessionId → Session directory.
type Registry struct {
	log *slog.Logger

	cfg      *config.Config
	adapters *adapter.Registry
	ports    *adapter.PortAllocator

	mu        sync.RWMutex
	sessions  map[string]*entry
	defaultID string
}

// New returns an empty Registry bound to cfg's adapter discovery. When
// log is nil, one is built at cfg.LogLevel (AIDB_LOG_LEVEL's parsed
// form) rather than defaulting silently to Info.
func New(cfg *config.Config, adapters *adapter.Registry, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logging.ParseLevel(cfg.LogLevel),
		}))
	}
	return &Registry{
		log:      log,
		cfg:      cfg,
		adapters: adapters,
		ports:    adapter.NewPortAllocator(),
		sessions: make(map[string]*entry),
	}
}

// StartOptions is everything CreateAndStart needs to spawn (or attach
// to) an adapter, dial it, and run a Session through its handshake.
type StartOptions struct {
	Target             adapter.Target
	InitialBreakpoints map[string][]session.BreakpointSpec
	ExceptionFilters   []string
	MakeDefault        bool
	Trace              bool
}

// CreateAndStart resolves the Capability for target.Mode's language,
// spawns or connects to the adapter, dials a Client, and runs the new
// Session through Start, registering it under a fresh uuid only once
// the handshake succeeds — a failed handshake leaves nothing behind for
// cleanup_orphans to find except the (already-reaped) process itself.
func (r *Registry) CreateAndStart(ctx context.Context, language adapter.Language, opts StartOptions) (*session.Session, error) {
	capability, cfg, err := r.adapters.Get(language)
	if err != nil {
		return nil, err
	}

	ad := &adapter.Adapter{Capability: capability, Config: cfg, Target: opts.Target}

	host := "127.0.0.1"
	var port int
	if opts.Target.Mode == adapter.ModeAttach {
		host, port = opts.Target.AttachHost, opts.Target.AttachPort
	} else {
		port, err = r.ports.Allocate(cfg.DefaultPort, cfg.FallbackPortStart, cfg.FallbackPortEnd)
		if err != nil {
			return nil, err
		}
		plan, err := capability.BuildLaunchPlan(opts.Target, cfg, port)
		if err != nil {
			r.ports.Release(port)
			return nil, err
		}
		env := envSlice(capability.AdapterEnv(cfg))
		proc, err := adapter.Spawn(ctx, language, adapter.SpawnOptions{
			Command: plan.Command,
			Args:    plan.Args,
			Env:     append(plan.Env, env...),
			Cwd:     plan.Cwd,
			Trace:   opts.Trace,
		})
		if err != nil {
			r.ports.Release(port)
			return nil, err
		}
		ad.SetProcess(proc)
	}
	ad.Host, ad.Port = host, port

	client, err := dapclient.Dial(ctx, host, port, 0, r.log)
	if err != nil {
		r.teardownFailedSpawn(ad, port, opts.Target.Mode)
		return nil, err
	}
	ad.SetClient(client)

	if err := adapter.RunHooks(ctx, ad, adapter.PreLaunch); err != nil {
		r.teardownFailedSpawn(ad, port, opts.Target.Mode)
		return nil, err
	}

	id := uuid.NewString()
	sess := session.New(id, ad, client, r.log)

	if err := sess.Start(ctx, opts.InitialBreakpoints, opts.ExceptionFilters); err != nil {
		_ = client.Disconnect(context.Background(), 5*time.Second, opts.Target.Mode != adapter.ModeAttach)
		r.teardownFailedSpawn(ad, port, opts.Target.Mode)
		return nil, err
	}

	if err := adapter.RunHooks(ctx, ad, adapter.PostLaunch); err != nil {
		r.log.Warn("registry: post_launch hook failed", "session", id, "error", err)
	}

	r.mu.Lock()
	r.sessions[id] = &entry{sess: sess, ad: ad}
	if opts.MakeDefault || r.defaultID == "" {
		r.defaultID = id
	}
	r.mu.Unlock()

	return sess, nil
}

func (r *Registry) teardownFailedSpawn(ad *adapter.Adapter, port int, mode adapter.Mode) {
	if proc := ad.Process(); proc != nil {
		_ = proc.Stop(5 * time.Second)
	}
	if mode != adapter.ModeAttach {
		r.ports.Release(port)
	}
}

func envSlice(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}

// Get resolves id, or the default session when id is empty.
func (r *Registry) Get(id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == "" {
		id = r.defaultID
	}
	if id == "" {
		return nil, &aidberr.SessionNotFound{SessionID: "(no default session)"}
	}
	e, ok := r.sessions[id]
	if !ok {
		return nil, &aidberr.SessionNotFound{SessionID: id}
	}
	return e.sess, nil
}

// List returns every registered session id.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Default returns the current default session id, or "" if none.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}

// Remove drops id from the directory without stopping it — callers must
// Stop the session themselves first; Remove is the bookkeeping half.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if ok && e.ad.Target.Mode != adapter.ModeAttach {
		r.ports.Release(e.ad.Port)
	}
	delete(r.sessions, id)
	if r.defaultID == id {
		r.defaultID = ""
	}
}

// StopOne stops a single session by id (or the default session when id
// is empty), running pre/post_disconnect hooks around it and removing
// it from the directory regardless of whether Stop itself errors.
func (r *Registry) StopOne(ctx context.Context, id string, terminateDebuggee bool) error {
	r.mu.RLock()
	if id == "" {
		id = r.defaultID
	}
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return &aidberr.SessionNotFound{SessionID: id}
	}

	if err := adapter.RunHooks(ctx, e.ad, adapter.PreDisconnect); err != nil {
		r.log.Warn("registry: pre_disconnect hook failed", "session", id, "error", err)
	}
	err := e.sess.Stop(ctx, terminateDebuggee)
	if herr := adapter.RunHooks(ctx, e.ad, adapter.PostDisconnect); herr != nil {
		r.log.Warn("registry: post_disconnect hook failed", "session", id, "error", herr)
	}
	r.Remove(id)
	return err
}

// StopAll stops every registered session in parallel, best-effort
// (spec.md §4.7's "on process shutdown, invokes stop ... in parallel"),
// using errgroup since this is a barrier over a known, bounded set
// rather than an open-ended queue of tasks.
func (r *Registry) StopAll(ctx context.Context, terminateDebuggees bool) error {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var g errgroup.Group
	for _, e := range entries {
		e := e
		g.Go(func() error {
			if err := adapter.RunHooks(ctx, e.ad, adapter.PreDisconnect); err != nil {
				r.log.Warn("registry: pre_disconnect hook failed", "session", e.sess.ID, "error", err)
			}
			err := e.sess.Stop(ctx, terminateDebuggees)
			if herr := adapter.RunHooks(ctx, e.ad, adapter.PostDisconnect); herr != nil {
				r.log.Warn("registry: post_disconnect hook failed", "session", e.sess.ID, "error", herr)
			}
			r.Remove(e.sess.ID)
			return err
		})
	}
	return g.Wait()
}

// CleanupOrphans scans for OS processes matching any registered
// language's ProcessNamePattern and kills those whose PID is not owned
// by a live Session's ManagedProcess — adapter processes left behind by
// a crashed AIDB run. It shells out to `ps`, the same way the teacher
// shells out to `git`/`cat` rather than pulling in a process-inspection
// library no example in the pack actually demonstrates calling.
func (r *Registry) CleanupOrphans(ctx context.Context) ([]int, error) {
	owned := make(map[int]bool)
	r.mu.RLock()
	for _, e := range r.sessions {
		if proc := e.ad.Process(); proc != nil {
			owned[proc.Info().PID] = true
		}
	}
	r.mu.RUnlock()

	var patterns []string
	for _, lang := range r.adapters.Languages() {
		if capability, _, err := r.adapters.Get(lang); err == nil {
			patterns = append(patterns, capability.ProcessNamePattern())
		}
	}

	lines, err := listProcesses(ctx)
	if err != nil {
		return nil, err
	}

	pool := workers.NewPool(4, 10*time.Second)
	defer pool.Close()

	var killed []int
	for _, line := range lines {
		pid, command, ok := parsePSLine(line)
		if !ok || owned[pid] {
			continue
		}
		if !matchesAny(command, patterns) {
			continue
		}
		killed = append(killed, pid)
		task := workers.Task{
			ID:      strconv.Itoa(pid),
			Execute: func(ctx context.Context) (interface{}, error) { return nil, killPID(pid) },
			Result:  make(chan workers.TaskResult, 1),
		}
		if err := pool.Submit(task); err != nil {
			r.log.Warn("registry: cleanup_orphans submit failed", "pid", pid, "error", err)
			continue
		}
		<-task.Result
	}
	return killed, nil
}

func listProcesses(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "ps", "-eo", "pid,command").Output()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	return strings.Split(string(out), "\n"), nil
}

func parsePSLine(line string) (pid int, command string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, "", false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", false
	}
	return n, strings.Join(fields[1:], " "), true
}

func matchesAny(command string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(command, p) {
			return true
		}
	}
	return false
}

func killPID(pid int) error {
	return exec.Command("kill", strconv.Itoa(pid)).Run()
}
