package searchhistory

import "time"

const (
	ToolOverview = "overview"
	ToolFinder   = "finder"
)

type Search struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	UserID       string    `json:"userId" gorm:"column:user_id;index"`
	Query        string    `json:"query"`
	Tool         string    `json:"tool"`
	LocationCode *int      `json:"locationCode,omitempty" gorm:"column:location_code"`
	SearchedAt   time.Time `json:"searchedAt" gorm:"column:searched_at;autoCreateTime"`
}

func (Search) TableName() string {
	return "search_history"
}
