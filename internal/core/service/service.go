// Package service implements the Debug Service (spec.md §4.6): the
// stable, adapter-independent operation façade an external caller
// drives. It is a thin layer over internal/core/registry and
// internal/core/session — resolving a session id (or the Registry's
// default) and delegating to the matching session.Session method,
// translating a missing session into aidberr.SessionNotFound up front
// rather than letting a nil-session panic reach the caller.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aidb-dev/aidb/internal/core/adapter"
	"github.com/aidb-dev/aidb/internal/core/diagnostics"
	"github.com/aidb-dev/aidb/internal/core/registry"
	"github.com/aidb-dev/aidb/internal/core/session"
)

// Service is the Debug Service façade bound to one process-wide
// Registry.
type Service struct {
	registry *registry.Registry
	log      *slog.Logger
}

// New returns a Service façade over reg.
func New(reg *registry.Registry, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{registry: reg, log: log}
}

func (svc *Service) resolve(sessionID string) (*session.Session, error) {
	sess, err := svc.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// CreateSession starts a new debug session over target and returns its
// id, delegating the spawn/dial/handshake flow to the Registry.
func (svc *Service) CreateSession(ctx context.Context, language adapter.Language, opts registry.StartOptions) (string, error) {
	sess, err := svc.registry.CreateAndStart(ctx, language, opts)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// SetBreakpoints implements set_breakpoints.
func (svc *Service) SetBreakpoints(ctx context.Context, sessionID, file string, specs []session.BreakpointSpec) ([]session.Breakpoint, error) {
	sess, err := svc.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.SetBreakpointsLive(ctx, file, specs)
}

// ClearBreakpoints implements clear_breakpoints.
func (svc *Service) ClearBreakpoints(ctx context.Context, sessionID string, filter session.BreakpointFilter) (map[string][]session.Breakpoint, error) {
	sess, err := svc.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.ClearBreakpoints(ctx, filter)
}

// Continue implements continue.
func (svc *Service) Continue(ctx context.Context, sessionID string, threadID int) (session.State, error) {
	sess, err := svc.resolve(sessionID)
	if err != nil {
		return session.State{}, err
	}
	return sess.Continue(ctx, threadID)
}

// Step implements step.
func (svc *Service) Step(ctx context.Context, sessionID string, granularity session.StepGranularity, threadID int) (session.State, error) {
	sess, err := svc.resolve(sessionID)
	if err != nil {
		return session.State{}, err
	}
	return sess.Step(ctx, granularity, threadID)
}

// Pause implements pause.
func (svc *Service) Pause(ctx context.Context, sessionID string, threadID int) error {
	sess, err := svc.resolve(sessionID)
	if err != nil {
		return err
	}
	return sess.Pause(ctx, threadID)
}

// Threads implements threads.
func (svc *Service) Threads(ctx context.Context, sessionID string) ([]session.Thread, error) {
	sess, err := svc.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.ThreadsLive(ctx)
}

// Stack implements stack.
func (svc *Service) Stack(ctx context.Context, sessionID string, threadID, startFrame, levels int) ([]session.StackFrame, int64, error) {
	sess, err := svc.resolve(sessionID)
	if err != nil {
		return nil, 0, err
	}
	return sess.Stack(ctx, threadID, startFrame, levels)
}

// Scopes implements scopes.
func (svc *Service) Scopes(ctx context.Context, sessionID string, frameID int, generation int64) ([]session.Scope, error) {
	sess, err := svc.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Scopes(ctx, frameID, generation)
}

// Variables implements variables.
func (svc *Service) Variables(ctx context.Context, sessionID string, variablesReference int, generation int64, filter session.VariablesFilter) ([]session.Variable, error) {
	sess, err := svc.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Variables(ctx, variablesReference, generation, filter)
}

// Evaluate implements evaluate.
func (svc *Service) Evaluate(ctx context.Context, sessionID, expression string, frameID int, generation int64, evalCtx session.EvaluateContext) (session.EvaluateResult, error) {
	sess, err := svc.resolve(sessionID)
	if err != nil {
		return session.EvaluateResult{}, err
	}
	return sess.Evaluate(ctx, expression, frameID, generation, evalCtx)
}

// SetVariable implements set_variable.
func (svc *Service) SetVariable(ctx context.Context, sessionID string, variablesReference int, generation int64, name, value string) (session.Variable, error) {
	sess, err := svc.resolve(sessionID)
	if err != nil {
		return session.Variable{}, err
	}
	return sess.SetVariable(ctx, variablesReference, generation, name, value)
}

// Stop implements stop (spec.md §5's teardown contract), via the
// Registry so the session is also removed from the directory and its
// port released.
func (svc *Service) Stop(ctx context.Context, sessionID string, terminateDebuggee bool) error {
	return svc.registry.StopOne(ctx, sessionID, terminateDebuggee)
}

// Restart implements restart: attempts the native Restart request when
// the adapter advertises supportsRestartRequest, otherwise emulates it
// with stop + start against the same Adapter target/config, re-applying
// the session's current breakpoint set iff keepBreakpoints (spec.md
// §4.6). The emulated path lives here rather than in session.Session
// because recreating the underlying Adapter/process is the Registry's
// job — a Session is bound to exactly one fixed Adapter for its whole
// lifetime.
func (svc *Service) Restart(ctx context.Context, sessionID string, keepBreakpoints bool) (string, error) {
	sess, err := svc.resolve(sessionID)
	if err != nil {
		return "", err
	}

	if sess.Capabilities().SupportsRestartRequest {
		return sessionID, sess.RestartNative(ctx, keepBreakpoints)
	}

	return svc.emulateRestart(ctx, sess, keepBreakpoints)
}

// emulateRestart captures the terminating session's breakpoint set and
// Adapter target/config, stops it, then asks the Registry to spawn a
// fresh session against the same target, re-seeding the preserved
// breakpoints as that new session's initial set when keepBreakpoints.
func (svc *Service) emulateRestart(ctx context.Context, sess *session.Session, keepBreakpoints bool) (string, error) {
	var initial map[string][]session.BreakpointSpec
	if keepBreakpoints {
		initial = make(map[string][]session.BreakpointSpec)
		for file, bps := range sess.Breakpoints.All() {
			specs := make([]session.BreakpointSpec, len(bps))
			for i, bp := range bps {
				specs[i] = bp.Spec
			}
			initial[file] = specs
		}
	}

	language := sess.Adapter.Capability.Language()
	target := sess.Adapter.Target
	wasDefault := svc.registry.Default() == sess.ID

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := svc.registry.StopOne(stopCtx, sess.ID, false); err != nil {
		svc.log.Warn("service: restart's stop phase returned an error, proceeding to relaunch anyway", "session", sess.ID, "error", err)
	}

	newID, err := svc.CreateSession(ctx, language, registry.StartOptions{
		Target:             target,
		InitialBreakpoints: initial,
		MakeDefault:        wasDefault,
	})
	if err != nil {
		return "", fmt.Errorf("emulated restart: relaunch failed: %w", err)
	}
	return newID, nil
}

// List returns every live session id.
func (svc *Service) List() []string { return svc.registry.List() }

// CleanupOrphans implements the Session Registry's cleanup_orphans
// operation, exposed through the Service façade for callers that only
// hold a *Service.
func (svc *Service) CleanupOrphans(ctx context.Context) ([]int, error) {
	return svc.registry.CleanupOrphans(ctx)
}

// Diagnostics returns sessionID's recurring AdapterError/ProtocolError
// occurrences, letting a caller driving many operations inspect what's
// been failing without combing through individual operation errors.
func (svc *Service) Diagnostics(sessionID string) ([]*diagnostics.Occurrence, error) {
	sess, err := svc.resolve(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Diagnostics(), nil
}
