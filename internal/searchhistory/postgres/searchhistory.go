package postgres

import (
	"github.com/frahmantamala/keyword-research-api/internal/core/datamodel/searchhistory"
	searchhistorypkg "github.com/frahmantamala/keyword-research-api/internal/searchhistory"
	"gorm.io/gorm"
)

type SearchHistoryRepository struct {
	db *gorm.DB
}

func NewSearchHistoryRepository(db *gorm.DB) searchhistorypkg.RepositoryAPI {
	return &SearchHistoryRepository{
		db: db,
	}
}

func (r *SearchHistoryRepository) Create(s *searchhistory.Search) error {
	return r.db.Create(s).Error
}

func (r *SearchHistoryRepository) ListByUser(userID string, limit int) ([]*searchhistory.Search, error) {
	var history []*searchhistory.Search
	err := r.db.Where("user_id = ?", userID).
		Order("searched_at DESC").
		Limit(limit).
		Find(&history).Error
	return history, err
}
