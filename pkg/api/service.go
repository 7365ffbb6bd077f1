package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Mindburn-Labs/notary/pkg/aggregator"
	"github.com/Mindburn-Labs/notary/pkg/contracts"
	"github.com/Mindburn-Labs/notary/pkg/validator"
)

// maxReceiptBytes bounds one submission body.
const maxReceiptBytes = 1 << 20

// Service exposes the notary over HTTP: receipt submission, per-
// namespace stats and force-seal, and health.
type Service struct {
	registry *aggregator.Registry
	logger   *slog.Logger
}

// NewService wraps a registry.
func NewService(reg *aggregator.Registry) *Service {
	return &Service{
		registry: reg,
		logger:   slog.Default().With("component", "api"),
	}
}

// Routes builds the service mux. Auth and rate limiting are applied by
// the caller via Chain, not here, so tests can hit handlers directly.
func (s *Service) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/receipts", s.handleSubmit)
	mux.HandleFunc("/v1/stats", s.handleStatsAll)
	mux.HandleFunc("/v1/namespaces/", s.handleNamespace)
	return mux
}

// SubmitResponse is the producer-facing submission outcome. A rejection
// is a verdict, not a transport failure: the body says why, the status
// is 400.
type SubmitResponse struct {
	Status    string               `json:"status"` // "accepted" | "rejected"
	Namespace string               `json:"namespace,omitempty"`
	Rejection *validator.Rejection `json:"rejection,omitempty"`
}

func (s *Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxReceiptBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteBadRequest(w, "Cannot read request body")
		return
	}

	// Shape first, then decode: a malformed submission never reaches
	// the supervisor.
	if err := contracts.ValidateReceiptJSON(body); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	var receipt contracts.Receipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	if p := PrincipalFromContext(r.Context()); p != nil && !p.Allowed(receipt.Namespace) {
		WriteForbidden(w, "Token is not scoped to namespace "+receipt.Namespace)
		return
	}

	rejection, err := s.registry.Submit(r.Context(), &receipt)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	if rejection != nil {
		writeJSON(w, http.StatusBadRequest, SubmitResponse{Status: "rejected", Namespace: receipt.Namespace, Rejection: rejection})
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{Status: "accepted", Namespace: receipt.Namespace})
}

func (s *Service) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, aggregator.ErrDrained),
		errors.Is(err, aggregator.ErrFailed),
		errors.Is(err, aggregator.ErrStopped):
		WriteServiceUnavailable(w, err.Error())
	default:
		WriteInternal(w, err)
	}
}

// handleNamespace routes /v1/namespaces/{ns}/stats and
// /v1/namespaces/{ns}/seal.
func (s *Service) handleNamespace(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/namespaces/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		WriteNotFound(w, "Unknown resource")
		return
	}
	namespace, action := parts[0], parts[1]

	if p := PrincipalFromContext(r.Context()); p != nil && !p.Allowed(namespace) {
		WriteForbidden(w, "Token is not scoped to namespace "+namespace)
		return
	}

	switch action {
	case "stats":
		if r.Method != http.MethodGet {
			WriteMethodNotAllowed(w)
			return
		}
		s.writeStats(w, namespace)
	case "seal":
		if r.Method != http.MethodPost {
			WriteMethodNotAllowed(w)
			return
		}
		s.forceSeal(w, r, namespace)
	default:
		WriteNotFound(w, "Unknown resource")
	}
}

func (s *Service) writeStats(w http.ResponseWriter, namespace string) {
	stats, err := s.registry.StatsFor(namespace)
	if err != nil {
		if errors.Is(err, aggregator.ErrUnknownNamespace) {
			WriteNotFound(w, "Namespace "+namespace+" is not configured")
			return
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Service) forceSeal(w http.ResponseWriter, r *http.Request, namespace string) {
	err := s.registry.ForceSeal(r.Context(), namespace)
	if err != nil {
		switch {
		case errors.Is(err, aggregator.ErrUnknownNamespace):
			WriteNotFound(w, "Namespace "+namespace+" is not configured")
		case errors.Is(err, aggregator.ErrDrained),
			errors.Is(err, aggregator.ErrFailed),
			errors.Is(err, aggregator.ErrStopped):
			WriteServiceUnavailable(w, err.Error())
		default:
			// Transient seal failures surface here too; the batch is
			// preserved and the supervisor keeps retrying.
			WriteError(w, http.StatusConflict, "Seal Failed", err.Error())
		}
		return
	}
	stats, statsErr := s.registry.StatsFor(namespace)
	if statsErr != nil {
		WriteInternal(w, statsErr)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Service) handleStatsAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	p := PrincipalFromContext(r.Context())
	all := s.registry.StatsAll()
	if p != nil && len(p.Namespaces) > 0 {
		scoped := all[:0]
		for _, st := range all {
			if p.Allowed(st.Namespace) {
				scoped = append(scoped, st)
			}
		}
		all = scoped
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
