package postgres

import (
	"github.com/frahmantamala/keyword-research-api/internal/core/datamodel/transaction"
	transactionpkg "github.com/frahmantamala/keyword-research-api/internal/transaction"
	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) transactionpkg.RepositoryAPI {
	return &TransactionRepository{
		db: db,
	}
}

func (r *TransactionRepository) Create(t *transaction.PaymentTransaction) error {
	return r.db.Create(t).Error
}

func (r *TransactionRepository) ListByUser(userID string, limit, offset int) ([]*transaction.PaymentTransaction, error) {
	var records []*transaction.PaymentTransaction
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	return records, err
}
