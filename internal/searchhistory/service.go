// Package searchhistory records and serves a user's recent searches.
// Recording is fire-and-forget from the client's perspective and never
// participates in the payment flow.
package searchhistory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/frahmantamala/keyword-research-api/internal"
	"github.com/frahmantamala/keyword-research-api/internal/core/datamodel/searchhistory"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type RepositoryAPI interface {
	Create(s *searchhistory.Search) error
	ListByUser(userID string, limit int) ([]*searchhistory.Search, error)
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) Record(ctx context.Context, userID string, req RecordRequest) error {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return internal.NewValidationError("query is required", internal.ErrCodeValidationFailed)
	}
	tool := req.Tool
	if tool == "" {
		tool = searchhistory.ToolOverview
	}

	entity := &searchhistory.Search{
		ID:           uuid.NewString(),
		UserID:       userID,
		Query:        query,
		Tool:         tool,
		LocationCode: req.LocationCode,
	}

	if err := s.repo.Create(entity); err != nil {
		s.logger.Error("failed to record search", "error", err, "user_id", userID)
		return fmt.Errorf("failed to record search: %w", err)
	}
	return nil
}

func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]*searchhistory.Search, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	history, err := s.repo.ListByUser(userID, limit)
	if err != nil {
		s.logger.Error("failed to fetch search history", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to fetch search history: %w", err)
	}
	return history, nil
}

// RecordRequest is the POST body for recording a search.
type RecordRequest struct {
	Query        string `json:"query"`
	Tool         string `json:"tool"`
	LocationCode *int   `json:"location_code"`
}
