package policy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

func policyReceipt() *contracts.Receipt {
	var digest contracts.Digest
	digest[0] = 0xAB
	return &contracts.Receipt{
		SchemaVersion: contracts.SupportedSchemaVersion,
		Namespace:     "app1",
		SubjectID:     "wf-42",
		Operation:     "execute",
		Timestamp:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Usage: contracts.ResourceUsage{
			CPUTimeMillis:   250,
			PeakMemoryBytes: 64 << 20,
			NetworkBytes:    1024,
		},
		ContentHash: digest,
	}
}

func TestNewCELPolicyLint(t *testing.T) {
	tests := []struct {
		name        string
		expr        string
		wantErr     string // substring; empty means construction succeeds
	}{
		{
			name: "integer comparison",
			expr: "receipt.usage.cpu_time_millis < 1000",
		},
		{
			name: "string match",
			expr: `receipt.operation.startsWith("exec")`,
		},
		{
			name:    "float literal",
			expr:    "receipt.usage.cpu_time_millis < 1.5",
			wantErr: "floating point literals",
		},
		{
			name:    "float conversion",
			expr:    "double(receipt.usage.cpu_time_millis) < double(receipt.usage.network_bytes)",
			wantErr: "floating point conversion",
		},
		{
			name:    "wall clock",
			expr:    `now() > timestamp("2026-01-01T00:00:00Z")`,
			wantErr: "now() is forbidden",
		},
		{
			name:    "map keys",
			expr:    `{"a": 1}.keys().size() > 0`,
			wantErr: "map iteration",
		},
		{
			name:    "map values",
			expr:    `{"a": 1}.values().size() > 0`,
			wantErr: "map iteration",
		},
		{
			name:    "non-bool result",
			expr:    "receipt.usage.cpu_time_millis + 1",
			wantErr: "must evaluate to bool",
		},
		{
			name:    "empty expression",
			expr:    "   ",
			wantErr: "empty expression",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCELPolicy("lint-test", tt.expr)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("NewCELPolicy(%q) unexpected error: %v", tt.expr, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("NewCELPolicy(%q) expected error containing %q, got nil", tt.expr, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("NewCELPolicy(%q) error = %v, want substring %q", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestCELPolicyAdmit(t *testing.T) {
	tests := []struct {
		name      string
		expr      string
		wantAdmit bool
	}{
		{
			name:      "cpu under limit",
			expr:      "receipt.usage.cpu_time_millis < 1000",
			wantAdmit: true,
		},
		{
			name:      "cpu over limit",
			expr:      "receipt.usage.cpu_time_millis < 100",
			wantAdmit: false,
		},
		{
			name:      "operation allowlist",
			expr:      `receipt.operation in ["execute", "replay"]`,
			wantAdmit: true,
		},
		{
			name:      "subject prefix",
			expr:      `receipt.subject_id.startsWith("wf-")`,
			wantAdmit: true,
		},
		{
			name:      "timestamp bound",
			expr:      "receipt.timestamp > 1700000000",
			wantAdmit: true,
		},
		{
			name:      "combined",
			expr:      `receipt.namespace == "app1" && receipt.usage.network_bytes <= 2048`,
			wantAdmit: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewCELPolicy("admit-test", tt.expr)
			if err != nil {
				t.Fatalf("NewCELPolicy(%q): %v", tt.expr, err)
			}
			err = p.Admit(context.Background(), policyReceipt())
			if tt.wantAdmit && err != nil {
				t.Fatalf("Admit denied: %v", err)
			}
			if !tt.wantAdmit && err == nil {
				t.Fatal("Admit allowed, want denial")
			}
		})
	}
}

func TestCELPolicyEvaluationErrorDenies(t *testing.T) {
	// The field does not exist, so evaluation errors; that must deny.
	p, err := NewCELPolicy("missing-field", "receipt.no_such_field == 1")
	if err != nil {
		t.Fatalf("NewCELPolicy: %v", err)
	}
	if err := p.Admit(context.Background(), policyReceipt()); err == nil {
		t.Fatal("Admit allowed on evaluation error, want denial")
	}
}

func TestCELPolicyName(t *testing.T) {
	p, err := NewCELPolicy("cpu-cap", "receipt.usage.cpu_time_millis < 1000")
	if err != nil {
		t.Fatalf("NewCELPolicy: %v", err)
	}
	if p.Name() != "cpu-cap" {
		t.Fatalf("Name() = %q, want %q", p.Name(), "cpu-cap")
	}
	if p.Expression() == "" {
		t.Fatal("Expression() is empty")
	}
	if _, err := NewCELPolicy("", "true"); err == nil {
		t.Fatal("empty name accepted")
	}
}

func TestChainFirstDenialWins(t *testing.T) {
	allow, err := NewCELPolicy("allow-all", "receipt.schema_version >= 1")
	if err != nil {
		t.Fatalf("NewCELPolicy: %v", err)
	}
	deny, err := NewCELPolicy("deny-execute", `receipt.operation != "execute"`)
	if err != nil {
		t.Fatalf("NewCELPolicy: %v", err)
	}

	chain := NewChain(allow, deny)
	if got := chain.Name(); got != "chain(allow-all,deny-execute)" {
		t.Fatalf("Name() = %q", got)
	}

	err = chain.Admit(context.Background(), policyReceipt())
	if err == nil {
		t.Fatal("chain admitted, want denial from second member")
	}
	if !strings.Contains(err.Error(), "deny-execute") {
		t.Fatalf("denial does not name the member: %v", err)
	}

	if err := NewChain(allow).Admit(context.Background(), policyReceipt()); err != nil {
		t.Fatalf("single-member chain denied: %v", err)
	}
	if err := NewChain().Admit(context.Background(), policyReceipt()); err != nil {
		t.Fatalf("empty chain denied: %v", err)
	}
}
