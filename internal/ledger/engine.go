// Package ledger is the only writer of users.wallet_balance. Every balance
// change is a single atomic increment plus an appended, immutable transaction
// row, committed together.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cashback_bot/internal/db"
	"cashback_bot/internal/domain"
	"cashback_bot/internal/metrics"
	"cashback_bot/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Posting is one requested balance change
type Posting struct {
	UserID      int64                  // Owner of the balance
	Amount      decimal.Decimal        // Signed, non-zero, whole cents
	Type        domain.TransactionType // One of the enumerated types
	Description string                 // Shown in history
}

// Hook runs inside the posting's DB transaction after the ledger row is
// appended. Returning an error rolls back the balance change and the row.
type Hook func(tx *gorm.DB, txn *domain.Transaction) error

// Engine applies postings
type Engine struct {
	gw    *db.Gateway
	cache *utils.Cache     // Wallet and history views; may be disabled
	now   func() time.Time // Overridden in tests
}

// NewEngine builds an Engine; cache may be nil
func NewEngine(gw *db.Gateway, cache *utils.Cache) *Engine {
	return &Engine{gw: gw, cache: cache, now: time.Now}
}

// CreditOrDebit applies a signed amount to a user's balance and returns the new balance
func (e *Engine) CreditOrDebit(ctx context.Context, userID int64, amount decimal.Decimal, typ domain.TransactionType, description string) (decimal.Decimal, error) {
	txn, err := e.Apply(ctx, Posting{UserID: userID, Amount: amount, Type: typ, Description: description})
	if err != nil {
		return decimal.Decimal{}, err
	}
	return txn.BalanceAfter, nil
}

// Apply posts p and runs hooks in the same DB transaction
func (e *Engine) Apply(ctx context.Context, p Posting, hooks ...Hook) (*domain.Transaction, error) {
	if err := validate(p); err != nil {
		metrics.LedgerPostings.WithLabelValues(string(p.Type), "rejected").Inc()
		return nil, err
	}
	session, cancel, err := e.gw.Session(ctx) // Bounded by the operation timeout
	defer cancel()
	if err != nil {
		metrics.LedgerPostings.WithLabelValues(string(p.Type), "unavailable").Inc()
		return nil, err
	}

	var txn *domain.Transaction
	err = session.Transaction(func(tx *gorm.DB) error {
		var inner error
		txn, inner = e.post(tx, p)
		if inner != nil {
			return inner
		}
		for _, hook := range hooks {
			if inner := hook(tx, txn); inner != nil {
				return inner
			}
		}
		return nil
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": p.UserID,
			"amount":  p.Amount.String(),
			"type":    p.Type,
			"error":   err.Error(),
		}).Warn("Ledger posting failed")
		metrics.LedgerPostings.WithLabelValues(string(p.Type), outcome(err)).Inc()
		if isDomainError(err) {
			return nil, err
		}
		return nil, e.gw.Fail(err)
	}

	e.invalidate(ctx, p.UserID) // Only after commit
	logrus.WithFields(logrus.Fields{
		"user_id":       p.UserID,
		"amount":        p.Amount.String(),
		"type":          p.Type,
		"balance_after": txn.BalanceAfter.String(),
		"reference":     txn.Reference,
	}).Info("Ledger posting applied")
	metrics.LedgerPostings.WithLabelValues(string(p.Type), "ok").Inc()
	return txn, nil
}

// post increments the balance with one UPDATE, reads it back and appends the
// ledger row. Zero rows affected means the user is gone or deactivated and
// nothing is appended.
func (e *Engine) post(tx *gorm.DB, p Posting) (*domain.Transaction, error) {
	updates := map[string]any{
		"wallet_balance": gorm.Expr("wallet_balance + ?", p.Amount),
	}
	if p.Amount.IsPositive() { // Credits count towards lifetime earnings
		updates["total_earned"] = gorm.Expr("total_earned + ?", p.Amount)
	}
	if p.Type == domain.TypeWithdrawal {
		updates["total_withdrawals"] = gorm.Expr("total_withdrawals + ?", p.Amount.Abs())
	}
	res := tx.Model(&domain.User{}).Where("user_id = ? AND is_active = ?", p.UserID, true).Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, missingUser(tx, p.UserID)
	}

	var after domain.User // Read back inside the same transaction
	if err := tx.Select("wallet_balance").Where("user_id = ?", p.UserID).Take(&after).Error; err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		Reference:    uuid.NewString(), // Handed back to callers and stored on completions
		UserID:       p.UserID,
		Amount:       p.Amount,
		Type:         p.Type,
		Description:  p.Description,
		BalanceAfter: after.WalletBalance,
		Status:       domain.StatusCompleted,
		CreatedAt:    e.now().UTC(),
	}
	if err := tx.Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

// missingUser tells a deactivated account apart from an unknown one
func missingUser(tx *gorm.DB, userID int64) error {
	var n int64
	if err := tx.Model(&domain.User{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrUserInactive
	}
	return domain.ErrUserNotFound
}

func validate(p Posting) error {
	if p.Amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	if !domain.WholeCents(p.Amount) { // decimal(20,2) would round amount and balance apart
		return fmt.Errorf("%w: %s has more than %d decimal places", domain.ErrInvalidAmount, p.Amount, domain.AmountPlaces)
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidType, p.Type)
	}
	return nil
}

func (e *Engine) invalidate(ctx context.Context, userID int64) {
	if err := e.cache.Delete(ctx, utils.WalletKey(userID)); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("Wallet cache invalidation failed")
	}
	if err := e.cache.DeletePrefix(ctx, utils.HistoryPrefix(userID)); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("History cache invalidation failed")
	}
}

// domain errors raised by post or hooks pass through untouched; anything else
// is an infrastructure failure
func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrUserInactive,
		domain.ErrAlreadyCompleted,
		domain.ErrCampaignInactive,
		domain.ErrSelfReferral,
		domain.ErrInvalidAmount,
		domain.ErrInvalidType,
		domain.ErrInsufficientFunds,
		domain.ErrUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAlreadyCompleted):
		return "duplicate"
	case errors.Is(err, domain.ErrUserInactive):
		return "user_inactive"
	case isDomainError(err):
		return "rejected"
	default:
		return "error"
	}
}
