package adapter

import (
	"context"
	"fmt"
	"sort"
)

// RunHooks executes every registered Hook tagged for phase, ordered by
// ascending Priority, aborting the remaining hooks in the phase the
// moment one returns an error (spec.md §4.4).
func RunHooks(ctx context.Context, a *Adapter, phase HookPhase) error {
	var matching []Hook
	for _, h := range a.Capability.LifecycleHooks() {
		if h.Phase == phase {
			matching = append(matching, h)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool { return matching[i].Priority < matching[j].Priority })

	for _, h := range matching {
		if err := h.Run(ctx, a); err != nil {
			return fmt.Errorf("hook %q (phase %s) failed: %w", h.Name, phase, err)
		}
	}
	return nil
}
