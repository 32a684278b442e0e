package domain

import (
	"time" // Timestamps

	"github.com/shopspring/decimal" // Exact decimal amounts
)

// User Model
type User struct {
	ID                      uint            `gorm:"primaryKey" json:"-"`                                     // Internal primary key
	UserID                  int64           `gorm:"uniqueIndex;not null" json:"user_id"`                     // Platform identity, immutable
	Username                string          `gorm:"size:255" json:"username"`                                // Informational
	DisplayName             string          `gorm:"size:255" json:"display_name"`                            // Informational
	ReferrerID              *int64          `gorm:"index" json:"referrer_id,omitempty"`                      // Set once at creation
	WalletBalance           decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"wallet_balance"` // Written only by the ledger engine
	TotalEarned             decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_earned"`   // Sum of positive postings
	ReferralEarnings        decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"referral_earnings"`
	TotalReferrals          int64           `gorm:"not null;default:0" json:"total_referrals"`
	TotalCampaignsCompleted int64           `gorm:"not null;default:0" json:"total_campaigns_completed"`
	TotalWithdrawals        decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_withdrawals"`
	IsActive                bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// Wallet is the read model returned by wallet queries
type Wallet struct {
	UserID           int64           `json:"user_id"`
	Balance          decimal.Decimal `json:"balance"`
	TotalEarned      decimal.Decimal `json:"total_earned"`
	ReferralEarnings decimal.Decimal `json:"referral_earnings"`
	TotalReferrals   int64           `json:"total_referrals"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
}

// Wallet projects the balance fields of a user
func (u User) Wallet() Wallet {
	return Wallet{
		UserID:           u.UserID,
		Balance:          u.WalletBalance,
		TotalEarned:      u.TotalEarned,
		ReferralEarnings: u.ReferralEarnings,
		TotalReferrals:   u.TotalReferrals,
		TotalWithdrawals: u.TotalWithdrawals,
	}
}
