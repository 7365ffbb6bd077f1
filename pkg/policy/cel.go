// Package policy provides admission policies that screen receipts after
// structural validation. A policy returns nil to admit and an error to
// deny; evaluation failures deny (fail closed), so a broken policy can
// never wave receipts through.
//
// Two engines are available. CELPolicy evaluates a fixed CEL expression
// over the receipt's fields. WASMPolicy delegates the verdict to a
// sandboxed WebAssembly module with no filesystem, network, clock, or
// random access. Both are deterministic on purpose: the same receipt
// must get the same verdict on every node and on every replay.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

const (
	// celCostLimit bounds expression complexity so a pathological policy
	// cannot stall the admission path.
	celCostLimit = 10000

	celInterruptCheckFrequency = 100
)

// CELPolicy is an admission policy backed by one CEL expression. The
// expression sees a `receipt` map (see receiptActivation) and must
// evaluate to bool: true admits, false denies. Expressions are linted
// for determinism at construction; see lint.go for what is forbidden.
//
// A CELPolicy is immutable after construction and safe for concurrent
// use across supervisors.
type CELPolicy struct {
	name string
	expr string
	prg  cel.Program
}

// NewCELPolicy compiles and lints an expression. Construction is the
// only place a policy can be rejected; once built, evaluation cannot
// surprise the operator with a type error.
func NewCELPolicy(name, expr string) (*CELPolicy, error) {
	if name == "" {
		return nil, errors.New("policy: name must not be empty")
	}
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("policy: %s has an empty expression", name)
	}

	env, err := cel.NewEnv(
		cel.Variable("receipt", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: cel environment: %w", err)
	}

	parsed, issues := env.Parse(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy: parse %s: %w", name, issues.Err())
	}
	if problems := lintDeterminism(parsed); len(problems) > 0 {
		return nil, fmt.Errorf("policy: %s is not deterministic: %s", name, strings.Join(problems, "; "))
	}

	checked, issues := env.Check(parsed)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy: check %s: %w", name, issues.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("policy: %s must evaluate to bool, got %s", name, checked.OutputType())
	}

	prg, err := env.Program(checked,
		cel.InterruptCheckFrequency(celInterruptCheckFrequency),
		cel.CostLimit(celCostLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: program %s: %w", name, err)
	}
	return &CELPolicy{name: name, expr: expr, prg: prg}, nil
}

func (p *CELPolicy) Name() string { return p.name }

// Expression returns the source the policy was compiled from.
func (p *CELPolicy) Expression() string { return p.expr }

// Admit evaluates the expression against one receipt.
func (p *CELPolicy) Admit(ctx context.Context, r *contracts.Receipt) error {
	out, _, err := p.prg.ContextEval(ctx, receiptActivation(r))
	if err != nil {
		return fmt.Errorf("cel evaluation: %w", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return fmt.Errorf("cel result is %T, want bool", out.Value())
	}
	if !allowed {
		return errors.New("expression denied receipt")
	}
	return nil
}

// receiptActivation exposes a receipt to CEL. Every numeric field is an
// integer and timestamps are Unix seconds; no float ever enters the
// activation, keeping verdicts bit-identical across platforms.
func receiptActivation(r *contracts.Receipt) map[string]any {
	return map[string]any{
		"receipt": map[string]any{
			"schema_version": int64(r.SchemaVersion),
			"namespace":      r.Namespace,
			"subject_id":     r.SubjectID,
			"operation":      r.Operation,
			"timestamp":      r.Timestamp.UTC().Unix(),
			"usage": map[string]any{
				"cpu_time_millis":   r.Usage.CPUTimeMillis,
				"peak_memory_bytes": r.Usage.PeakMemoryBytes,
				"storage_bytes":     r.Usage.StorageBytes,
				"network_bytes":     r.Usage.NetworkBytes,
			},
			"content_hash": r.ContentHash.String(),
			"prev_hash":    r.PrevHash.String(),
		},
	}
}
