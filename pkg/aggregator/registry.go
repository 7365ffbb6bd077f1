package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Mindburn-Labs/notary/pkg/audit"
	"github.com/Mindburn-Labs/notary/pkg/contracts"
	"github.com/Mindburn-Labs/notary/pkg/crypto"
	"github.com/Mindburn-Labs/notary/pkg/observability"
	"github.com/Mindburn-Labs/notary/pkg/store"
	"github.com/Mindburn-Labs/notary/pkg/validator"
)

// Registry routes operations to per-namespace supervisors. It is built
// at startup from configuration: register every namespace, then Start.
// There is no shared mutable state between the supervisors it holds;
// the registry itself only owns the routing table.
type Registry struct {
	logger      *slog.Logger
	baseLogger  *slog.Logger
	checkpoints store.CheckpointStore
	policy      AdmissionPolicy
	metrics     *observability.Provider
	auditLog    audit.Logger
	clock       func() time.Time

	mu          sync.RWMutex
	supervisors map[string]*Supervisor
	running     bool
}

// NewRegistry creates an empty registry over one shared checkpoint
// store. Cross-cutting collaborators (audit, metrics, policy) set via
// the With methods apply to every namespace registered afterwards.
func NewRegistry(checkpoints store.CheckpointStore) *Registry {
	return &Registry{
		logger:      slog.Default().With("component", "registry"),
		checkpoints: checkpoints,
		supervisors: make(map[string]*Supervisor),
	}
}

// WithLogger overrides the structured logger for the registry and all
// supervisors registered afterwards.
func (reg *Registry) WithLogger(l *slog.Logger) *Registry {
	reg.logger = l.With("component", "registry")
	reg.baseLogger = l
	return reg
}

// WithPolicy installs an admission policy for all namespaces registered
// afterwards.
func (reg *Registry) WithPolicy(p AdmissionPolicy) *Registry {
	reg.policy = p
	return reg
}

// WithMetrics installs the telemetry provider for all namespaces
// registered afterwards.
func (reg *Registry) WithMetrics(p *observability.Provider) *Registry {
	reg.metrics = p
	return reg
}

// WithAudit installs the audit sink for all namespaces registered
// afterwards.
func (reg *Registry) WithAudit(l audit.Logger) *Registry {
	reg.auditLog = l
	return reg
}

// WithClock overrides the time source for all namespaces registered
// afterwards.
func (reg *Registry) WithClock(clock func() time.Time) *Registry {
	reg.clock = clock
	return reg
}

// Register creates the supervisor for one namespace. It reads the
// namespace's checkpoint; an unreadable checkpoint aborts registration
// so the process can fail startup instead of risking height reuse.
// Register is rejected after Start.
func (reg *Registry) Register(ctx context.Context, cfg Config, signer crypto.Signer) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.running {
		return ErrAlreadyRunning
	}

	sup, err := NewSupervisor(ctx, cfg, signer, reg.checkpoints)
	if err != nil {
		return err
	}
	ns := sup.Namespace()
	if _, exists := reg.supervisors[ns]; exists {
		return fmt.Errorf("aggregator: namespace %q registered twice", ns)
	}

	if reg.baseLogger != nil {
		sup.WithLogger(reg.baseLogger)
	}
	if reg.policy != nil {
		sup.WithPolicy(reg.policy)
	}
	if reg.metrics != nil {
		sup.WithMetrics(reg.metrics)
	}
	if reg.auditLog != nil {
		sup.WithAudit(reg.auditLog)
	}
	if reg.clock != nil {
		sup.WithClock(reg.clock)
	}

	reg.supervisors[ns] = sup
	reg.logger.Info("namespace registered",
		"namespace", ns,
		"max_receipts_per_batch", sup.cfg.MaxReceiptsPerBatch,
		"max_batch_window", sup.cfg.MaxBatchWindow,
		"recovered_height", sup.height,
	)
	return nil
}

// Start launches every registered supervisor.
func (reg *Registry) Start(ctx context.Context) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.running {
		return ErrAlreadyRunning
	}
	for ns, sup := range reg.supervisors {
		if err := sup.Start(ctx); err != nil {
			return fmt.Errorf("aggregator: start %q: %w", ns, err)
		}
	}
	reg.running = true
	reg.logger.Info("registry started", "namespaces", len(reg.supervisors))
	return nil
}

// Stop halts every supervisor and waits for their loops to finish.
func (reg *Registry) Stop() {
	reg.mu.Lock()
	if !reg.running {
		reg.mu.Unlock()
		return
	}
	reg.running = false
	sups := make([]*Supervisor, 0, len(reg.supervisors))
	for _, sup := range reg.supervisors {
		sups = append(sups, sup)
	}
	reg.mu.Unlock()

	var wg sync.WaitGroup
	for _, sup := range sups {
		wg.Add(1)
		go func(s *Supervisor) {
			defer wg.Done()
			s.Stop()
		}(sup)
	}
	wg.Wait()
	reg.logger.Info("registry stopped")
}

// Submit routes one receipt to its namespace's supervisor. A receipt
// for an unconfigured namespace is rejected, not errored: that verdict
// belongs to the producer.
func (reg *Registry) Submit(ctx context.Context, r *contracts.Receipt) (*validator.Rejection, error) {
	if r == nil {
		return nil, fmt.Errorf("aggregator: nil receipt")
	}
	ns, err := validator.NormalizeNamespace(r.Namespace)
	if err != nil {
		return &validator.Rejection{
			Reason: validator.InvalidNamespace,
			Field:  "namespace",
			Detail: err.Error(),
		}, nil
	}
	sup, ok := reg.lookup(ns)
	if !ok {
		return &validator.Rejection{
			Reason: validator.InvalidNamespace,
			Field:  "namespace",
			Detail: fmt.Sprintf("namespace %q is not configured", r.Namespace),
		}, nil
	}
	return sup.Submit(ctx, r)
}

// ForceSeal triggers a manual seal for one namespace.
func (reg *Registry) ForceSeal(ctx context.Context, namespace string) error {
	sup, err := reg.supervisorFor(namespace)
	if err != nil {
		return err
	}
	return sup.ForceSeal(ctx)
}

// StatsFor returns the stats snapshot for one namespace.
func (reg *Registry) StatsFor(namespace string) (Stats, error) {
	sup, err := reg.supervisorFor(namespace)
	if err != nil {
		return Stats{}, err
	}
	return sup.Stats(), nil
}

// StatsAll returns a snapshot per namespace, sorted by namespace.
func (reg *Registry) StatsAll() []Stats {
	reg.mu.RLock()
	all := make([]Stats, 0, len(reg.supervisors))
	for _, sup := range reg.supervisors {
		all = append(all, sup.Stats())
	}
	reg.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Namespace < all[j].Namespace })
	return all
}

// Namespaces lists the configured namespaces, sorted.
func (reg *Registry) Namespaces() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	names := make([]string, 0, len(reg.supervisors))
	for ns := range reg.supervisors {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}

// Supervisor exposes one namespace's supervisor, e.g. for wiring its
// emission channel to a consumer.
func (reg *Registry) Supervisor(namespace string) (*Supervisor, bool) {
	ns, err := validator.NormalizeNamespace(namespace)
	if err != nil {
		return nil, false
	}
	return reg.lookup(ns)
}

func (reg *Registry) lookup(ns string) (*Supervisor, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	sup, ok := reg.supervisors[ns]
	return sup, ok
}

func (reg *Registry) supervisorFor(namespace string) (*Supervisor, error) {
	ns, err := validator.NormalizeNamespace(namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownNamespace, err)
	}
	sup, ok := reg.lookup(ns)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNamespace, namespace)
	}
	return sup, nil
}
