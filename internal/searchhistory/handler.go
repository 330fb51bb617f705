package searchhistory

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/frahmantamala/keyword-research-api/internal"
	"github.com/frahmantamala/keyword-research-api/internal/core/datamodel/searchhistory"
	"github.com/frahmantamala/keyword-research-api/internal/transport"
)

type ServiceAPI interface {
	Record(ctx context.Context, userID string, req RecordRequest) error
	Recent(ctx context.Context, userID string, limit int) ([]*searchhistory.Search, error)
}

// Handler serves a user's search history. Routes are mounted behind the
// RequireAuth middleware, which puts the authenticated user id in the
// request context.
type Handler struct {
	transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI, base *transport.BaseHandler) *Handler {
	return &Handler{
		BaseHandler: *base,
		Service:     service,
	}
}

// List handles GET /api/v1/search-history
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.contextUser(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	history, err := h.Service.Recent(r.Context(), userID, limit)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": history})
}

// Record handles POST /api/v1/search-history
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.contextUser(w, r)
	if !ok {
		return
	}

	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("Record: failed to parse request body", "error", err)
		h.HandleError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	if err := h.Service.Record(r.Context(), userID, req); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) contextUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := internal.UserIDFromContext(r.Context())
	if userID == "" {
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
		return "", false
	}
	return userID, true
}
