// Package campaign manages reward campaigns and pays out their completion.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cashback_bot/internal/db"
	"cashback_bot/internal/domain"
	"cashback_bot/internal/ledger"
	"cashback_bot/internal/metrics"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const numberAttempts = 3 // Allocation retries on a concurrent Create

// Registry stores campaigns
type Registry struct {
	gw     *db.Gateway
	engine *ledger.Engine
}

// NewRegistry builds a Registry
func NewRegistry(gw *db.Gateway, engine *ledger.Engine) *Registry {
	return &Registry{gw: gw, engine: engine}
}

// NewCampaign is the input of Create. A zero Number asks for the next free one.
type NewCampaign struct {
	Number       int             `json:"campaign_number"`          // 0 allocates max+1
	Title        string          `json:"title" binding:"required"` // Shown on the task card
	Description  string          `json:"description"`              // Optional instructions
	TaskURL      string          `json:"task_url"`                 // Optional link
	RewardAmount decimal.Decimal `json:"reward_amount"`            // Positive, whole cents
	Inactive     bool            `json:"inactive"`                 // Create hidden
}

// Update holds the fields an admin may change; nil leaves a field as is
type Update struct {
	Title        *string          `json:"title"`
	Description  *string          `json:"description"`
	TaskURL      *string          `json:"task_url"`
	RewardAmount *decimal.Decimal `json:"reward_amount"`
	IsActive     *bool            `json:"is_active"`
}

// Completion is the result of a paid campaign completion
type Completion struct {
	Campaign    domain.Campaign
	Transaction *domain.Transaction
}

// Create inserts a campaign. Number allocation is max+1 guarded by the unique
// index; a collision with a concurrent Create is retried.
func (r *Registry) Create(ctx context.Context, in NewCampaign) (domain.Campaign, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || in.Number < 0 {
		return domain.Campaign{}, domain.ErrInvalidInput
	}
	if !in.RewardAmount.IsPositive() || !domain.WholeCents(in.RewardAmount) {
		return domain.Campaign{}, domain.ErrInvalidAmount
	}
	tx, cancel, err := r.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return domain.Campaign{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= numberAttempts; attempt++ {
		number := in.Number
		if number == 0 {
			var highest int
			if err := tx.Model(&domain.Campaign{}).Select("COALESCE(MAX(campaign_number), 0)").Scan(&highest).Error; err != nil {
				return domain.Campaign{}, r.gw.Fail(err)
			}
			number = highest + 1
		}
		c := domain.Campaign{
			CampaignNumber: number,
			Title:          in.Title,
			Description:    in.Description,
			TaskURL:        in.TaskURL,
			RewardAmount:   in.RewardAmount,
			IsActive:       true,
		}
		err := tx.Create(&c).Error
		if err == nil {
			if in.Inactive {
				if err := tx.Model(&c).Update("is_active", false).Error; err != nil {
					return domain.Campaign{}, r.gw.Fail(err)
				}
				c.IsActive = false
			}
			logrus.WithFields(logrus.Fields{
				"campaign_id":     c.ID,
				"campaign_number": c.CampaignNumber,
				"reward":          c.RewardAmount.String(),
			}).Info("Campaign created")
			return c, nil
		}
		lastErr = err
		if taken, _ := r.numberTaken(tx, number); !taken {
			return domain.Campaign{}, r.gw.Fail(err)
		}
		if in.Number != 0 {
			return domain.Campaign{}, fmt.Errorf("%w: campaign number %d in use", domain.ErrConflict, number)
		}
		logrus.WithFields(logrus.Fields{"campaign_number": number, "attempt": attempt}).Debug("Campaign number collision, retrying")
	}
	return domain.Campaign{}, fmt.Errorf("%w: allocating campaign number: %v", domain.ErrConflict, lastErr)
}

func (r *Registry) numberTaken(tx *gorm.DB, number int) (bool, error) {
	var n int64
	err := tx.Model(&domain.Campaign{}).Where("campaign_number = ?", number).Count(&n).Error
	return n > 0, err
}

// Get returns a campaign by id
func (r *Registry) Get(ctx context.Context, id uint) (domain.Campaign, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByNumber returns a campaign by its short code
func (r *Registry) GetByNumber(ctx context.Context, number int) (domain.Campaign, error) {
	return r.first(ctx, "campaign_number = ?", number)
}

func (r *Registry) first(ctx context.Context, query string, arg any) (domain.Campaign, error) {
	tx, cancel, err := r.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return domain.Campaign{}, err
	}
	var c domain.Campaign
	err = tx.Where(query, arg).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Campaign{}, domain.ErrCampaignNotFound
	}
	if err != nil {
		return domain.Campaign{}, r.gw.Fail(err)
	}
	return c, nil
}

// ListActive returns the active campaigns ordered by short code
func (r *Registry) ListActive(ctx context.Context) ([]domain.Campaign, error) {
	return r.list(ctx, true)
}

// List returns every campaign for the admin API
func (r *Registry) List(ctx context.Context) ([]domain.Campaign, error) {
	return r.list(ctx, false)
}

func (r *Registry) list(ctx context.Context, activeOnly bool) ([]domain.Campaign, error) {
	tx, cancel, err := r.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return nil, err
	}
	q := tx.Order("campaign_number asc")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []domain.Campaign
	if err := q.Find(&out).Error; err != nil {
		return nil, r.gw.Fail(err)
	}
	return out, nil
}

// Update applies the non-nil fields of u
func (r *Registry) Update(ctx context.Context, id uint, u Update) (domain.Campaign, error) {
	updates := map[string]any{}
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if title == "" {
			return domain.Campaign{}, domain.ErrInvalidInput
		}
		updates["title"] = title
	}
	if u.Description != nil {
		updates["description"] = *u.Description
	}
	if u.TaskURL != nil {
		updates["task_url"] = *u.TaskURL
	}
	if u.RewardAmount != nil {
		if !u.RewardAmount.IsPositive() || !domain.WholeCents(*u.RewardAmount) {
			return domain.Campaign{}, domain.ErrInvalidAmount
		}
		updates["reward_amount"] = *u.RewardAmount
	}
	if u.IsActive != nil {
		updates["is_active"] = *u.IsActive
	}
	if len(updates) > 0 {
		tx, cancel, err := r.gw.Session(ctx)
		defer cancel()
		if err != nil {
			return domain.Campaign{}, err
		}
		res := tx.Model(&domain.Campaign{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return domain.Campaign{}, r.gw.Fail(res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.Campaign{}, domain.ErrCampaignNotFound
		}
		logrus.WithFields(logrus.Fields{"campaign_id": id, "fields": len(updates)}).Info("Campaign updated")
	}
	return r.Get(ctx, id)
}

// IncrementCompletions bumps completion_count by one
func (r *Registry) IncrementCompletions(ctx context.Context, id uint) error {
	tx, cancel, err := r.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return err
	}
	if err := incrementCompletions(tx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return r.gw.Fail(err)
	}
	return nil
}

func incrementCompletions(tx *gorm.DB, id uint) error {
	res := tx.Model(&domain.Campaign{}).Where("id = ?", id).
		UpdateColumn("completion_count", gorm.Expr("completion_count + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrCampaignNotFound
	}
	return nil
}

// Complete pays userID the reward of campaign number. The completion record,
// the counters and the credit commit together, so a repeated delivery gets
// ErrAlreadyCompleted and leaves the balance untouched.
func (r *Registry) Complete(ctx context.Context, userID int64, number int) (Completion, error) {
	c, err := r.GetByNumber(ctx, number)
	if err != nil {
		metrics.Completions.WithLabelValues("unknown").Inc()
		return Completion{}, err
	}
	if !c.IsActive {
		metrics.Completions.WithLabelValues("inactive").Inc()
		return Completion{Campaign: c}, domain.ErrCampaignInactive
	}

	txn, err := r.engine.Apply(ctx, ledger.Posting{
		UserID:      userID,
		Amount:      c.RewardAmount,
		Type:        domain.TypeTaskReward,
		Description: fmt.Sprintf("Campaign #%d: %s", c.CampaignNumber, c.Title),
	}, func(tx *gorm.DB, txn *domain.Transaction) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "campaign_id"}}, // idx_completion_user_campaign
			DoNothing: true,
		}).Create(&domain.CampaignCompletion{
			UserID:         userID,
			CampaignID:     c.ID,
			RewardAmount:   c.RewardAmount,
			TransactionRef: txn.Reference,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrAlreadyCompleted // Rolls back the credit
		}
		if err := incrementCompletions(tx, c.ID); err != nil {
			return err
		}
		return tx.Model(&domain.User{}).Where("user_id = ?", userID).
			UpdateColumn("total_campaigns_completed", gorm.Expr("total_campaigns_completed + ?", 1)).Error
	})
	if err != nil {
		metrics.Completions.WithLabelValues(completionOutcome(err)).Inc()
		return Completion{Campaign: c}, err
	}
	c.CompletionCount++
	metrics.Completions.WithLabelValues("ok").Inc()
	logrus.WithFields(logrus.Fields{
		"user_id":         userID,
		"campaign_number": c.CampaignNumber,
		"reward":          c.RewardAmount.String(),
	}).Info("Campaign completed")
	return Completion{Campaign: c, Transaction: txn}, nil
}

// Completed reports whether userID already completed campaign id
func (r *Registry) Completed(ctx context.Context, userID int64, id uint) (bool, error) {
	tx, cancel, err := r.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return false, err
	}
	var n int64
	if err := tx.Model(&domain.CampaignCompletion{}).Where("user_id = ? AND campaign_id = ?", userID, id).Count(&n).Error; err != nil {
		return false, r.gw.Fail(err)
	}
	return n > 0, nil
}

func completionOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyCompleted):
		return "duplicate"
	case errors.Is(err, domain.ErrUserInactive):
		return "user_inactive"
	case errors.Is(err, domain.ErrNotFound):
		return "unknown_user"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
