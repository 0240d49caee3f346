package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aidb-dev/aidb/internal/aidberr"
)

// HitCondition is a parsed breakpoint hit-condition expression (GLOSSARY:
// "an expression (exact count, > N, % N) controlling when a breakpoint
// fires"). AIDB itself never evaluates hit conditions against a live
// program — the adapter does — but the Session needs to parse the
// expression to validate it up front (spec.md §7 InvalidArgument) and to
// describe it back to a caller inspecting a Breakpoint record.
type HitCondition struct {
	Raw string
	Op  HitOp
	N   int
}

// HitOp is the comparison/modulus operator of a HitCondition.
type HitOp string

const (
	HitOpExact HitOp = "=="
	HitOpGT    HitOp = ">"
	HitOpGTE   HitOp = ">="
	HitOpMod   HitOp = "%"
)

// ParseHitCondition parses one of the three forms the GLOSSARY names:
// a bare integer ("5", exact count), a comparison ("> 5", ">= 5"), or a
// modulus ("% 3"). Whitespace around the operator is optional.
func ParseHitCondition(expr string) (*HitCondition, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, &aidberr.InvalidArgument{Field: "hitCondition", Reason: "empty expression"}
	}

	for _, op := range []HitOp{HitOpGTE, HitOpGT, HitOpMod} {
		if rest, ok := strings.CutPrefix(trimmed, string(op)); ok {
			n, err := strconv.Atoi(strings.TrimSpace(rest))
			if err != nil {
				return nil, &aidberr.InvalidArgument{Field: "hitCondition", Reason: fmt.Sprintf("invalid operand for %q: %v", op, err)}
			}
			return &HitCondition{Raw: trimmed, Op: op, N: n}, nil
		}
	}

	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, &aidberr.InvalidArgument{Field: "hitCondition", Reason: fmt.Sprintf("unrecognized hit condition %q", trimmed)}
	}
	return &HitCondition{Raw: trimmed, Op: HitOpExact, N: n}, nil
}

// Allows reports whether hitCount satisfies the condition. It exists so
// AIDB's own tests can exercise the parsed semantics without a live
// adapter; production hit-counting is always performed by the adapter.
func (h *HitCondition) Allows(hitCount int) bool {
	switch h.Op {
	case HitOpExact:
		return hitCount == h.N
	case HitOpGT:
		return hitCount > h.N
	case HitOpGTE:
		return hitCount >= h.N
	case HitOpMod:
		return h.N > 0 && hitCount%h.N == 0
	default:
		return false
	}
}
