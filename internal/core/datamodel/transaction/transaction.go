package transaction

import (
	"encoding/json"
	"time"
)

// StatusSuccess is the only status the gate ever writes; the table is an
// append-only audit trail, rows are never updated.
const StatusSuccess = "success"

type PaymentTransaction struct {
	ID              string          `gorm:"primaryKey"`
	UserID          *string         `gorm:"column:user_id"`
	PayerAddress    string          `gorm:"column:payer_address;not null"`
	TransactionHash string          `gorm:"column:transaction_hash;not null"`
	Network         string          `gorm:"column:network;not null"`
	Endpoint        string          `gorm:"column:endpoint;not null"`
	Amount          string          `gorm:"column:amount;not null"`
	Asset           string          `gorm:"column:asset;not null"`
	Status          string          `gorm:"column:status;default:success"`
	Metadata        json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt       time.Time       `gorm:"column:created_at;default:now()"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}
