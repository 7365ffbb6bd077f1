// Package validator screens receipts before admission. Validation is a
// pure function: no side effects, no internal error path. A receipt is
// either admitted or rejected with a typed reason; it is never
// partially admitted.
package validator

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/notary/pkg/contracts"
)

// Reason classifies why a receipt was rejected.
type Reason string

const (
	UnsupportedVersion Reason = "UNSUPPORTED_VERSION"
	InvalidNamespace   Reason = "INVALID_NAMESPACE"
	MalformedField     Reason = "MALFORMED_FIELD"
	// PolicyDenied is issued by the admission pipeline, not by Validate:
	// the receipt was structurally sound but a configured policy vetoed it.
	PolicyDenied Reason = "POLICY_DENIED"
)

// Rejection reports a dropped receipt back to the producer. It is
// receipt-local: pending state of other receipts is never affected.
type Rejection struct {
	Reason Reason `json:"reason"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (r *Rejection) Error() string {
	if r.Field == "" {
		return fmt.Sprintf("receipt rejected (%s): %s", r.Reason, r.Detail)
	}
	return fmt.Sprintf("receipt rejected (%s) field %s: %s", r.Reason, r.Field, r.Detail)
}

// Validator admits receipts for exactly one namespace. Namespace
// comparison happens on the NFC-normalized form; the supervisor's
// configured namespace is the canonical spelling.
type Validator struct {
	namespace string
}

// New builds a validator owning the given namespace.
func New(namespace string) (*Validator, error) {
	ns, err := NormalizeNamespace(namespace)
	if err != nil {
		return nil, fmt.Errorf("validator: %w", err)
	}
	return &Validator{namespace: ns}, nil
}

// Namespace returns the canonical (NFC) namespace this validator admits.
func (v *Validator) Namespace() string {
	return v.namespace
}

// Validate checks one receipt. A nil return means admitted. Checks run
// in a fixed order: version, namespace, timestamp, resource fields,
// digest fields; the first failure wins.
func (v *Validator) Validate(r *contracts.Receipt) *Rejection {
	if r.SchemaVersion != contracts.SupportedSchemaVersion {
		return &Rejection{
			Reason: UnsupportedVersion,
			Field:  "schema_version",
			Detail: fmt.Sprintf("version %d not supported, engine speaks %d", r.SchemaVersion, contracts.SupportedSchemaVersion),
		}
	}

	ns, err := NormalizeNamespace(r.Namespace)
	if err != nil {
		return &Rejection{Reason: InvalidNamespace, Field: "namespace", Detail: err.Error()}
	}
	if ns != v.namespace {
		return &Rejection{
			Reason: InvalidNamespace,
			Field:  "namespace",
			Detail: fmt.Sprintf("receipt namespace %q does not belong to %q", r.Namespace, v.namespace),
		}
	}

	if r.Timestamp.IsZero() {
		return &Rejection{Reason: MalformedField, Field: "timestamp", Detail: "timestamp must be set"}
	}

	if field, val := negativeUsage(r.Usage); field != "" {
		return &Rejection{
			Reason: MalformedField,
			Field:  "resource_usage." + field,
			Detail: fmt.Sprintf("must be non-negative, got %d", val),
		}
	}

	if r.ContentHash.IsZero() {
		return &Rejection{Reason: MalformedField, Field: "content_hash", Detail: "content hash must be set"}
	}

	return nil
}

func negativeUsage(u contracts.ResourceUsage) (string, int64) {
	switch {
	case u.CPUTimeMillis < 0:
		return "cpu_time_millis", u.CPUTimeMillis
	case u.PeakMemoryBytes < 0:
		return "peak_memory_bytes", u.PeakMemoryBytes
	case u.StorageBytes < 0:
		return "storage_bytes", u.StorageBytes
	case u.NetworkBytes < 0:
		return "network_bytes", u.NetworkBytes
	}
	return "", 0
}

// NormalizeNamespace rejects empty or non-UTF-8 namespaces and returns
// the NFC form, so visually identical spellings land in one namespace.
func NormalizeNamespace(namespace string) (string, error) {
	if namespace == "" {
		return "", fmt.Errorf("namespace must not be empty")
	}
	if !utf8.ValidString(namespace) {
		return "", fmt.Errorf("namespace is not valid UTF-8")
	}
	return norm.NFC.String(namespace), nil
}
