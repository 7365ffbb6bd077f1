// Package aggregator drives the per-namespace seal pipeline: it admits
// receipts into a pending batch, fires seals on count, window, or
// manual triggers, persists the resulting LogBlock before handing it to
// the consumer, and keeps every namespace isolated from every other.
//
// One Supervisor owns one namespace. All mutable state lives inside a
// single goroutine; receipt submission, force-seal requests, and timer
// expiry are delivered to it as events and processed one at a time in
// arrival order. Stats snapshots are the only cross-goroutine reads and
// go through a mutex-guarded mirror.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mindburn-Labs/notary/pkg/audit"
	"github.com/Mindburn-Labs/notary/pkg/contracts"
	"github.com/Mindburn-Labs/notary/pkg/crypto"
	"github.com/Mindburn-Labs/notary/pkg/observability"
	"github.com/Mindburn-Labs/notary/pkg/sealer"
	"github.com/Mindburn-Labs/notary/pkg/store"
	"github.com/Mindburn-Labs/notary/pkg/validator"
)

// submitQueueDepth absorbs submission bursts while a seal is in flight.
// Producers block only when the backlog exceeds it, which is the
// documented backpressure cascade from a slow consumer.
const submitQueueDepth = 64

type submitRequest struct {
	receipt *contracts.Receipt
	reply   chan *validator.Rejection
}

type forceRequest struct {
	reply chan error
}

// Supervisor owns one namespace's pending batch, height counter, and
// trigger state machine.
type Supervisor struct {
	cfg         Config
	validator   *validator.Validator
	signer      crypto.Signer
	checkpoints store.CheckpointStore
	emission    *EmissionChannel
	policy      AdmissionPolicy
	metrics     *observability.Provider
	auditLog    audit.Logger
	logger      *slog.Logger
	clock       func() time.Time

	submitCh chan submitRequest
	forceCh  chan forceRequest
	stopCh   chan struct{}
	doneCh   chan struct{}

	// Loop-owned; touched only by the run goroutine.
	pending   *pendingBatch
	recovered *contracts.LogBlock
	timer     *time.Timer
	timerC    <-chan time.Time
	retrying  bool
	loopDone  bool

	// Mirror for Stats; the run goroutine is the only writer.
	mu           sync.RWMutex
	running      bool
	state        State
	height       uint64
	pendingCount int
	windowStart  time.Time
	lastSealTime time.Time
	lastSealErr  string
	accepted     uint64
	rejected     uint64
	sealed       uint64
	terminal     error
}

// NewSupervisor builds the supervisor for one namespace and reads its
// durable checkpoint. An unreadable checkpoint is fatal: the namespace
// must not start, or it could reuse a height. The supervisor does not
// process events until Start.
func NewSupervisor(ctx context.Context, cfg Config, signer crypto.Signer, checkpoints store.CheckpointStore) (*Supervisor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if signer == nil {
		return nil, fmt.Errorf("aggregator: signer must not be nil")
	}
	if checkpoints == nil {
		return nil, fmt.Errorf("aggregator: checkpoint store must not be nil")
	}

	v, err := validator.New(cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("aggregator: %w", err)
	}
	cfg.Namespace = v.Namespace()

	s := &Supervisor{
		cfg:         cfg,
		validator:   v,
		signer:      signer,
		checkpoints: checkpoints,
		emission:    newEmissionChannel(cfg.EmissionBuffer),
		logger:      slog.Default().With("component", "supervisor", "namespace", cfg.Namespace),
		clock:       time.Now,
		submitCh:    make(chan submitRequest, submitQueueDepth),
		forceCh:     make(chan forceRequest),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		pending:     &pendingBatch{},
		state:       StateIdle,
	}

	cp, err := checkpoints.Load(ctx, cfg.Namespace)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Fresh namespace; the first sealed block gets height 1.
	case err != nil:
		return nil, fmt.Errorf("aggregator: read checkpoint for %q: %w", cfg.Namespace, err)
	default:
		s.height = cp.LastSealedHeight
		s.recovered = cp.UnsentBlock
	}
	return s, nil
}

// WithClock overrides the time source. Must be called before Start.
func (s *Supervisor) WithClock(clock func() time.Time) *Supervisor {
	s.clock = clock
	return s
}

// WithPolicy installs an admission policy that runs after structural
// validation. Must be called before Start.
func (s *Supervisor) WithPolicy(p AdmissionPolicy) *Supervisor {
	s.policy = p
	return s
}

// WithAudit installs the audit sink. Must be called before Start.
func (s *Supervisor) WithAudit(l audit.Logger) *Supervisor {
	s.auditLog = l
	return s
}

// WithMetrics installs the telemetry provider. Must be called before Start.
func (s *Supervisor) WithMetrics(p *observability.Provider) *Supervisor {
	s.metrics = p
	return s
}

// WithLogger overrides the structured logger. Must be called before Start.
func (s *Supervisor) WithLogger(l *slog.Logger) *Supervisor {
	s.logger = l.With("component", "supervisor", "namespace", s.cfg.Namespace)
	return s
}

// Namespace returns the canonical (NFC) namespace this supervisor owns.
func (s *Supervisor) Namespace() string {
	return s.cfg.Namespace
}

// Blocks returns the consumer side of the emission channel. Blocks
// arrive in strictly increasing height order.
func (s *Supervisor) Blocks() <-chan *contracts.LogBlock {
	return s.emission.Blocks()
}

// CloseEmission is the consumer's declaration that it has shut down.
// The supervisor drains on its next emission attempt.
func (s *Supervisor) CloseEmission() {
	s.emission.Close()
}

// Start launches the event loop. If a sealed-but-unsent block was
// recovered from the checkpoint it is re-emitted before any new event
// is processed, so height order holds across restarts.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Stop halts the event loop and waits for it to finish. Receipts still
// pending are dropped; producers re-submit after a restart. The sealed
// state (heights, unsent block) is already durable.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
}

// Submit validates one receipt and, if it passes, admits it into the
// pending batch. A non-nil Rejection is the producer-facing verdict for
// a dropped receipt; a non-nil error means the namespace itself is
// unavailable (drained, failed, stopped) or the context ended while
// waiting.
func (s *Supervisor) Submit(ctx context.Context, r *contracts.Receipt) (*validator.Rejection, error) {
	if r == nil {
		return nil, fmt.Errorf("aggregator: nil receipt")
	}
	req := submitRequest{receipt: r, reply: make(chan *validator.Rejection, 1)}
	select {
	case s.submitCh <- req:
	case <-s.doneCh:
		return nil, s.terminalError()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case rej := <-req.reply:
		return rej, nil
	case <-s.doneCh:
		// The loop may have answered just before exiting.
		select {
		case rej := <-req.reply:
			return rej, nil
		default:
			return nil, s.terminalError()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ForceSeal requests an immediate seal of whatever is pending. It
// cancels only the timer portion of the current window; admitted
// receipts are never discarded. On an empty batch it is a no-op. The
// returned error is the seal outcome (nil on success or empty batch).
func (s *Supervisor) ForceSeal(ctx context.Context) error {
	req := forceRequest{reply: make(chan error, 1)}
	select {
	case s.forceCh <- req:
	case <-s.doneCh:
		return s.terminalError()
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-s.doneCh:
		select {
		case err := <-req.reply:
			return err
		default:
			return s.terminalError()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the supervisor. Safe to poll at any time.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Namespace:        s.cfg.Namespace,
		State:            s.state,
		PendingCount:     s.pendingCount,
		CurrentHeight:    s.height,
		LastSealTime:     s.lastSealTime,
		LastSealError:    s.lastSealErr,
		ReceiptsAccepted: s.accepted,
		ReceiptsRejected: s.rejected,
		BlocksSealed:     s.sealed,
	}
	if s.pendingCount > 0 && !s.windowStart.IsZero() {
		st.WindowAge = s.clock().Sub(s.windowStart)
	}
	return st
}

func (s *Supervisor) terminalError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.terminal != nil {
		return s.terminal
	}
	return ErrStopped
}

// run is the single owner of all batch state. It processes exactly one
// event at a time in arrival order; a timer firing while a receipt is
// being handled is deferred, never dropped.
func (s *Supervisor) run(ctx context.Context) {
	defer close(s.doneCh)
	defer s.disarmTimer()

	if s.recovered != nil {
		block := s.recovered
		s.recovered = nil
		s.logger.Info("redelivering unsent block", "height", block.Height)
		if err := s.deliver(ctx, block); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case req := <-s.submitCh:
			s.handleSubmit(ctx, req)
		case req := <-s.forceCh:
			s.handleForce(ctx, req)
		case <-s.timerC:
			s.handleTimer(ctx)
		}
		if s.loopDone {
			return
		}
	}
}

func (s *Supervisor) handleSubmit(ctx context.Context, req submitRequest) {
	rej := s.admit(ctx, req.receipt)
	req.reply <- rej
	if rej != nil {
		return
	}
	// A full batch seals immediately; this also re-attempts a batch left
	// over from a transient signing failure without waiting out the
	// retry backoff.
	for s.sealDue() && !s.loopDone {
		if err := s.seal(ctx, observability.TriggerCount); err != nil {
			return
		}
	}
}

func (s *Supervisor) handleForce(ctx context.Context, req forceRequest) {
	if s.pending.empty() {
		req.reply <- nil
		return
	}
	s.recordAudit(ctx, audit.EventForceSeal, map[string]any{"pending_count": s.pending.size()})
	req.reply <- s.seal(ctx, observability.TriggerManual)
}

func (s *Supervisor) handleTimer(ctx context.Context) {
	s.timerC = nil
	s.timer = nil
	if s.pending.empty() {
		return
	}
	trigger := observability.TriggerWindow
	if s.retrying {
		trigger = observability.TriggerRetry
	}
	s.seal(ctx, trigger)
}

// admit runs the validation ladder and, on success, appends the receipt
// to the pending batch. The first receipt of a batch starts the window
// timer.
func (s *Supervisor) admit(ctx context.Context, r *contracts.Receipt) *validator.Rejection {
	if rej := s.validator.Validate(r); rej != nil {
		s.noteRejection(ctx, rej)
		return rej
	}
	if s.policy != nil {
		if err := s.policy.Admit(ctx, r); err != nil {
			rej := &validator.Rejection{
				Reason: validator.PolicyDenied,
				Detail: fmt.Sprintf("policy %s: %v", s.policy.Name(), err),
			}
			s.noteRejection(ctx, rej)
			return rej
		}
	}

	now := s.clock()
	wasEmpty := s.pending.empty()
	s.pending.add(r, now)

	s.mu.Lock()
	s.accepted++
	s.pendingCount = s.pending.size()
	if wasEmpty {
		s.windowStart = now
		s.state = StateAccumulating
	}
	s.mu.Unlock()

	if wasEmpty {
		s.armTimer(s.cfg.MaxBatchWindow)
	}
	if s.metrics != nil {
		s.metrics.RecordAdmission(ctx, s.cfg.Namespace)
	}
	return nil
}

func (s *Supervisor) noteRejection(ctx context.Context, rej *validator.Rejection) {
	s.mu.Lock()
	s.rejected++
	s.mu.Unlock()

	s.logger.Debug("receipt rejected",
		"reason", string(rej.Reason), "field", rej.Field, "detail", rej.Detail)
	if s.metrics != nil {
		s.metrics.RecordRejection(ctx, s.cfg.Namespace, string(rej.Reason))
	}
	s.recordAudit(ctx, audit.EventReceiptRejected, map[string]any{
		"reason": string(rej.Reason),
		"field":  rej.Field,
	})
}

func (s *Supervisor) sealDue() bool {
	return s.pending.size() >= s.cfg.MaxReceiptsPerBatch
}

// seal drives one batch through sign, persist, and deliver. The batch
// is capped at MaxReceiptsPerBatch; receipts beyond the cap (admitted
// while a failed batch awaited retry) stay pending for the next block.
// Receipts leave the pending store only after the checkpoint write, so
// a transient signing failure retries the exact same prefix and yields
// the same commitment.
func (s *Supervisor) seal(ctx context.Context, trigger string) error {
	count := s.pending.size()
	if count == 0 {
		return nil
	}
	if count > s.cfg.MaxReceiptsPerBatch {
		count = s.cfg.MaxReceiptsPerBatch
	}
	receipts := s.pending.first(count)
	height := s.height + 1

	s.setState(StateSealing)
	start := s.clock()

	block, err := sealer.Seal(s.cfg.Namespace, receipts, height, s.signer)
	if err != nil {
		var unavailable *sealer.SigningUnavailableError
		if errors.As(err, &unavailable) {
			s.noteSealFailure(ctx, err)
			s.retrying = true
			s.armTimer(s.cfg.SealRetryBackoff)
			s.setState(StateAccumulating)
			return err
		}
		s.fail(ctx, fmt.Errorf("aggregator: seal %s at height %d: %w", s.cfg.Namespace, height, err))
		return err
	}

	// Persist before the hand-off: a crash after this write redelivers
	// the block on restart instead of reusing the height.
	cp := &store.Checkpoint{
		Namespace:        s.cfg.Namespace,
		LastSealedHeight: block.Height,
		UnsentBlock:      block,
		UpdatedAt:        s.clock(),
	}
	if err := s.checkpoints.Save(ctx, cp); err != nil {
		if ctx.Err() != nil {
			// Shutdown raced the write. Nothing was persisted and the
			// receipts are still pending; producers re-submit on restart.
			s.logger.Info("checkpoint write interrupted by shutdown", "height", block.Height)
			return err
		}
		s.fail(ctx, fmt.Errorf("aggregator: persist checkpoint %s/%d: %w", s.cfg.Namespace, block.Height, err))
		return err
	}

	s.pending.drop(count)
	s.retrying = false
	sealedAt := s.clock()

	s.mu.Lock()
	s.height = block.Height
	s.sealed++
	s.pendingCount = s.pending.size()
	s.windowStart = s.pending.windowStart()
	s.lastSealTime = sealedAt
	s.lastSealErr = ""
	s.mu.Unlock()

	s.logger.Info("batch sealed",
		"height", block.Height,
		"count", block.Count,
		"trigger", trigger,
		"commitment", block.Commitment.String(),
	)
	if s.metrics != nil {
		s.metrics.RecordSeal(ctx, s.cfg.Namespace, int(block.Count), trigger, sealedAt.Sub(start))
	}
	s.recordAudit(ctx, audit.EventBatchSealed, map[string]any{
		"height":     block.Height,
		"count":      block.Count,
		"commitment": block.Commitment.String(),
		"trigger":    trigger,
	})

	if err := s.deliver(ctx, block); err != nil {
		return err
	}

	s.reschedule()
	return nil
}

// deliver pushes a sealed block to the consumer and acknowledges the
// emission. A full channel blocks here, and only here, for this
// namespace alone.
func (s *Supervisor) deliver(ctx context.Context, block *contracts.LogBlock) error {
	start := s.clock()
	if err := s.emission.Emit(ctx, block); err != nil {
		if errors.Is(err, ErrChannelClosed) {
			s.drain(ctx)
			return err
		}
		// Shutdown mid-emission: the checkpoint still holds the block as
		// unsent, so the next start redelivers it.
		s.logger.Info("emission interrupted, block retained for redelivery",
			"height", block.Height, "error", err)
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordEmissionWait(ctx, s.cfg.Namespace, s.clock().Sub(start))
	}
	if err := s.checkpoints.MarkEmitted(ctx, s.cfg.Namespace, block.Height); err != nil {
		// At-least-once: a stale unsent marker only risks redelivery
		// after a restart, never loss or height reuse.
		s.logger.Warn("mark emitted failed", "height", block.Height, "error", err)
	}
	return nil
}

// reschedule restores the trigger state after a successful seal.
// Receipts that stayed behind (beyond the batch cap) keep their
// original admission times, so the window deadline for the remainder is
// already partly elapsed.
func (s *Supervisor) reschedule() {
	s.disarmTimer()
	if s.pending.empty() {
		s.setState(StateIdle)
		return
	}
	s.setState(StateAccumulating)
	deadline := s.pending.windowStart().Add(s.cfg.MaxBatchWindow)
	s.armTimer(deadline.Sub(s.clock()))
}

func (s *Supervisor) noteSealFailure(ctx context.Context, err error) {
	s.mu.Lock()
	s.lastSealErr = err.Error()
	s.mu.Unlock()

	s.logger.Warn("seal attempt failed, batch retained",
		"error", err, "retry_in", s.cfg.SealRetryBackoff)
	if s.metrics != nil {
		s.metrics.RecordError(ctx, err, observability.AttrNamespace.String(s.cfg.Namespace))
	}
	s.recordAudit(ctx, audit.EventSealRetry, map[string]any{"error": err.Error()})
}

// drain is the terminal transition for a permanently closed emission
// channel. Already-sealed-but-unsent blocks stay in the checkpoint;
// nothing is silently discarded.
func (s *Supervisor) drain(ctx context.Context) {
	s.loopDone = true
	s.mu.Lock()
	s.state = StateDrained
	s.terminal = ErrDrained
	s.mu.Unlock()

	s.logger.Warn("emission channel closed by consumer, namespace drained")
	s.recordAudit(ctx, audit.EventNamespaceDrained, nil)
}

// fail is the terminal transition for fatal errors: an unwritable
// persistence boundary or an internal invariant violation. The
// namespace halts; the operator restarts it after fixing the boundary.
func (s *Supervisor) fail(ctx context.Context, err error) {
	s.loopDone = true
	s.mu.Lock()
	s.state = StateFailed
	s.terminal = fmt.Errorf("%w: %w", ErrFailed, err)
	s.lastSealErr = err.Error()
	s.mu.Unlock()

	s.logger.Error("namespace halted", "error", err)
	if s.metrics != nil {
		s.metrics.RecordError(ctx, err, observability.AttrNamespace.String(s.cfg.Namespace))
	}
	s.recordAudit(ctx, audit.EventNamespaceFailed, map[string]any{"error": err.Error()})
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Supervisor) armTimer(d time.Duration) {
	s.disarmTimer()
	if d < 0 {
		d = 0
	}
	s.timer = time.NewTimer(d)
	s.timerC = s.timer.C
}

func (s *Supervisor) disarmTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerC = nil
}

func (s *Supervisor) recordAudit(ctx context.Context, event audit.EventType, metadata map[string]any) {
	if s.auditLog == nil {
		return
	}
	if err := s.auditLog.Record(ctx, event, s.cfg.Namespace, metadata); err != nil {
		s.logger.Warn("audit record failed", "event", string(event), "error", err)
	}
}
