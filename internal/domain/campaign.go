package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Campaign Model
type Campaign struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	CampaignNumber  int             `gorm:"uniqueIndex;not null" json:"campaign_number"` // Short code used in camp_<N> links
	Title           string          `gorm:"size:255;not null" json:"title"`
	Description     string          `gorm:"size:1024" json:"description"`
	TaskURL         string          `gorm:"size:512" json:"task_url"`
	RewardAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"reward_amount"`
	IsActive        bool            `gorm:"not null;default:true" json:"is_active"`
	CompletionCount int64           `gorm:"not null;default:0" json:"completion_count"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CampaignCompletion records that a user was paid for a campaign. The composite
// unique index is what makes a completion count at most once.
type CampaignCompletion struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         int64           `gorm:"uniqueIndex:idx_completion_user_campaign;not null" json:"user_id"`
	CampaignID     uint            `gorm:"uniqueIndex:idx_completion_user_campaign;not null" json:"campaign_id"`
	RewardAmount   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"reward_amount"`
	TransactionRef string          `gorm:"size:36" json:"transaction_ref"`
	CreatedAt      time.Time       `json:"created_at"`
}
