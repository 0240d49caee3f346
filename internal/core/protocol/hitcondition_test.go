package protocol

import (
	"errors"
	"testing"

	"github.com/aidb-dev/aidb/internal/aidberr"
)

func TestParseHitConditionExactCount(t *testing.T) {
	hc, err := ParseHitCondition("5")
	if err != nil {
		t.Fatalf("ParseHitCondition: %v", err)
	}
	if hc.Op != HitOpExact || hc.N != 5 {
		t.Fatalf("unexpected parse result: %+v", hc)
	}
	if !hc.Allows(5) || hc.Allows(4) || hc.Allows(6) {
		t.Fatalf("exact condition misbehaves on hitCount around 5")
	}
}

func TestParseHitConditionGreaterThan(t *testing.T) {
	hc, err := ParseHitCondition("> 5")
	if err != nil {
		t.Fatalf("ParseHitCondition: %v", err)
	}
	if hc.Op != HitOpGT || hc.N != 5 {
		t.Fatalf("unexpected parse result: %+v", hc)
	}
	if hc.Allows(5) || !hc.Allows(6) {
		t.Fatalf("> condition misbehaves at boundary")
	}
}

func TestParseHitConditionGreaterThanOrEqualNoSpace(t *testing.T) {
	hc, err := ParseHitCondition(">=5")
	if err != nil {
		t.Fatalf("ParseHitCondition: %v", err)
	}
	if hc.Op != HitOpGTE || hc.N != 5 {
		t.Fatalf("unexpected parse result: %+v", hc)
	}
	if !hc.Allows(5) || hc.Allows(4) {
		t.Fatalf(">= condition misbehaves at boundary")
	}
}

func TestParseHitConditionModulus(t *testing.T) {
	hc, err := ParseHitCondition("% 3")
	if err != nil {
		t.Fatalf("ParseHitCondition: %v", err)
	}
	if hc.Op != HitOpMod || hc.N != 3 {
		t.Fatalf("unexpected parse result: %+v", hc)
	}
	for _, n := range []int{3, 6, 9} {
		if !hc.Allows(n) {
			t.Fatalf("expected %%3 condition to allow %d", n)
		}
	}
	for _, n := range []int{1, 2, 4} {
		if hc.Allows(n) {
			t.Fatalf("expected %%3 condition to reject %d", n)
		}
	}
}

func TestParseHitConditionRejectsEmpty(t *testing.T) {
	_, err := ParseHitCondition("   ")
	var invalid *aidberr.InvalidArgument
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidArgument for empty expression, got %v", err)
	}
}

func TestParseHitConditionRejectsMalformedOperand(t *testing.T) {
	_, err := ParseHitCondition("> abc")
	var invalid *aidberr.InvalidArgument
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidArgument for malformed operand, got %v", err)
	}
}

func TestParseHitConditionRejectsGarbage(t *testing.T) {
	_, err := ParseHitCondition("whenever")
	var invalid *aidberr.InvalidArgument
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidArgument for unrecognized expression, got %v", err)
	}
}

func TestHitConditionAllowsDefaultsFalseForUnknownOp(t *testing.T) {
	hc := &HitCondition{Raw: "bogus", Op: HitOp("?"), N: 1}
	if hc.Allows(1) {
		t.Fatalf("expected unknown op to never allow")
	}
}
