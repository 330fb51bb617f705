package keywords

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/frahmantamala/keyword-research-api/internal"
	"github.com/frahmantamala/keyword-research-api/internal/core/datamodel/keyword"
	"github.com/frahmantamala/keyword-research-api/internal/transport"
	"github.com/frahmantamala/keyword-research-api/internal/x402"
)

type ServiceAPI interface {
	Overview(ctx context.Context, req OverviewRequest) (*keyword.Research, error)
	Batch(ctx context.Context, req BatchRequest) ([]keyword.Research, error)
	Ideas(ctx context.Context, req IdeasRequest) ([]keyword.IdeaDetail, error)
	Serp(ctx context.Context, req SerpRequest) ([]keyword.SerpResult, error)
}

// PaymentGate authorizes requests to paid routes.
type PaymentGate interface {
	Authorize(r *http.Request) x402.Outcome
}

type Handler struct {
	transport.BaseHandler
	Service     ServiceAPI
	Gate        PaymentGate
	maxKeywords int
}

func NewHandler(service ServiceAPI, gate PaymentGate, maxKeywords int, base *transport.BaseHandler) *Handler {
	return &Handler{
		BaseHandler: *base,
		Service:     service,
		Gate:        gate,
		maxKeywords: maxKeywords,
	}
}

// Overview handles POST /api/v1/keywords/overview (paid, flat price).
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	outcome := h.Gate.Authorize(r)
	if !outcome.Authorized() {
		outcome.Write(w)
		return
	}

	var req OverviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("Overview: failed to parse request body", "error", err)
		h.HandleError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	research, err := h.Service.Overview(r.Context(), req)
	if err != nil {
		h.Logger.Error("Overview: service error", "error", err, "keyword", req.Keyword)
		h.HandleServiceError(w, err)
		return
	}

	writeSettleHeaders(w, outcome)
	h.WriteJSON(w, http.StatusOK, DataResponse{Data: research})
}

// Batch handles POST /api/v1/keywords/overview/batch (paid per keyword).
// Validation runs before payment so a malformed batch is never charged; the
// declared count header must match the payload because it drove the price.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("Batch: failed to parse request body", "error", err)
		h.HandleError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	declared, err := declaredCount(r)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	if declared != len(req.Keywords) {
		h.Logger.Warn("Batch: declared count does not match payload",
			"declared", declared,
			"actual", len(req.Keywords))
		h.HandleServiceError(w, internal.ErrKeywordCountMismatch)
		return
	}

	if err := req.Validate(h.maxKeywords); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	outcome := h.Gate.Authorize(r)
	if !outcome.Authorized() {
		outcome.Write(w)
		return
	}

	bundles, err := h.Service.Batch(r.Context(), req)
	if err != nil {
		h.Logger.Error("Batch: service error", "error", err, "keywords", len(req.Keywords))
		h.HandleServiceError(w, err)
		return
	}

	writeSettleHeaders(w, outcome)
	h.WriteJSON(w, http.StatusOK, DataResponse{Data: bundles})
}

// Ideas handles POST /api/v1/keywords/ideas (paid, flat price).
func (h *Handler) Ideas(w http.ResponseWriter, r *http.Request) {
	outcome := h.Gate.Authorize(r)
	if !outcome.Authorized() {
		outcome.Write(w)
		return
	}

	var req IdeasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("Ideas: failed to parse request body", "error", err)
		h.HandleError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	ideas, err := h.Service.Ideas(r.Context(), req)
	if err != nil {
		h.Logger.Error("Ideas: service error", "error", err, "keyword", req.Keyword)
		h.HandleServiceError(w, err)
		return
	}

	writeSettleHeaders(w, outcome)
	h.WriteJSON(w, http.StatusOK, DataResponse{Data: ideas})
}

// Serp handles POST /api/v1/serp (free, rate limited).
func (h *Handler) Serp(w http.ResponseWriter, r *http.Request) {
	var req SerpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("Serp: failed to parse request body", "error", err)
		h.HandleError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	results, err := h.Service.Serp(r.Context(), req)
	if err != nil {
		h.Logger.Error("Serp: service error", "error", err, "keyword", req.Keyword)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, DataResponse{Data: results})
}

func declaredCount(r *http.Request) (int, error) {
	raw := r.Header.Get(x402.MeterHeader)
	if raw == "" {
		return 0, internal.ErrKeywordCountMissing
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, internal.ErrKeywordCountMissing
	}
	return n, nil
}

func writeSettleHeaders(w http.ResponseWriter, outcome x402.Outcome) {
	for k, v := range outcome.Headers {
		w.Header().Set(k, v)
	}
}
