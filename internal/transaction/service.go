// Package transaction persists the audit trail of settled payments. The
// trail is append-only: nothing in the payment path ever reads it back, it
// exists for reconciliation against on-chain state.
package transaction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/frahmantamala/keyword-research-api/internal/core/datamodel/transaction"
	"github.com/frahmantamala/keyword-research-api/internal/x402"
)

// RepositoryAPI for payment transaction persistence.
type RepositoryAPI interface {
	Create(t *transaction.PaymentTransaction) error
	ListByUser(userID string, limit, offset int) ([]*transaction.PaymentTransaction, error)
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

// Record appends one settlement to the audit trail. Satisfies the gate's
// AuditRecorder; callers treat failures as log-and-continue.
func (s *Service) Record(ctx context.Context, rec x402.SettlementRecord) error {
	metadata, err := json.Marshal(map[string]string{
		"recorded_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	entity := &transaction.PaymentTransaction{
		ID:              uuid.NewString(),
		UserID:          rec.UserID,
		PayerAddress:    rec.PayerAddress,
		TransactionHash: rec.TransactionHash,
		Network:         rec.Network,
		Endpoint:        rec.Endpoint,
		Amount:          rec.Amount,
		Asset:           rec.Asset,
		Status:          transaction.StatusSuccess,
		Metadata:        metadata,
	}

	if err := s.repo.Create(entity); err != nil {
		s.logger.Error("failed to persist payment transaction",
			"error", err,
			"transaction_hash", rec.TransactionHash,
			"endpoint", rec.Endpoint)
		return fmt.Errorf("failed to persist payment transaction: %w", err)
	}

	s.logger.Info("payment transaction recorded",
		"id", entity.ID,
		"payer", rec.PayerAddress,
		"endpoint", rec.Endpoint,
		"amount", rec.Amount)
	return nil
}

// ListForUser returns a user's payment history, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*transaction.PaymentTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	records, err := s.repo.ListByUser(userID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list payment transactions", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to list payment transactions: %w", err)
	}
	return records, nil
}
