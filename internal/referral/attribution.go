// Package referral credits referrers when an invited user joins.
package referral

import (
	"context"
	"errors"
	"fmt"

	"cashback_bot/internal/db"
	"cashback_bot/internal/domain"
	"cashback_bot/internal/ledger"
	"cashback_bot/internal/metrics"
	"cashback_bot/internal/settings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Result describes one attribution
type Result struct {
	ReferrerID  int64
	Bonus       decimal.Decimal
	Transaction *domain.Transaction // referrer credit, nil when the bonus is zero

	WelcomeBonus       decimal.Decimal
	WelcomeTransaction *domain.Transaction
	WelcomeErr         error // welcome credit failure; never undoes the referrer credit
}

// Attributor credits the referrer of a newly created user.
//
// It keeps no dedup state. Callers must invoke it only for the registration
// that actually inserted the user row, which the unique user_id index makes
// happen at most once per user.
type Attributor struct {
	gw       *db.Gateway
	engine   *ledger.Engine
	settings *settings.Store
}

// NewAttributor builds an Attributor
func NewAttributor(gw *db.Gateway, engine *ledger.Engine, store *settings.Store) *Attributor {
	return &Attributor{gw: gw, engine: engine, settings: store}
}

// Attribute credits referrerID for bringing in newUserID
func (a *Attributor) Attribute(ctx context.Context, newUserID, referrerID int64) (Result, error) {
	if newUserID == referrerID {
		metrics.Referrals.WithLabelValues("self").Inc()
		return Result{}, domain.ErrSelfReferral
	}

	res := Result{ReferrerID: referrerID, Bonus: a.settings.ReferralBonus(ctx)}
	if err := a.creditReferrer(ctx, newUserID, &res); err != nil {
		metrics.Referrals.WithLabelValues(referralOutcome(err)).Inc()
		logrus.WithFields(logrus.Fields{
			"user_id":     newUserID,
			"referrer_id": referrerID,
			"error":       err.Error(),
		}).Warn("Referral attribution failed")
		return res, err
	}
	metrics.Referrals.WithLabelValues("ok").Inc()
	logrus.WithFields(logrus.Fields{
		"user_id":     newUserID,
		"referrer_id": referrerID,
		"bonus":       res.Bonus.String(),
	}).Info("Referral attributed")

	res.WelcomeBonus = a.settings.WelcomeBonus(ctx)
	if res.WelcomeBonus.IsPositive() {
		txn, err := a.engine.Apply(ctx, ledger.Posting{
			UserID:      newUserID,
			Amount:      res.WelcomeBonus,
			Type:        domain.TypeReferral,
			Description: fmt.Sprintf("Welcome bonus for joining via %d", referrerID),
		})
		res.WelcomeTransaction, res.WelcomeErr = txn, err
		if err != nil {
			logrus.WithFields(logrus.Fields{"user_id": newUserID, "error": err.Error()}).Warn("Welcome bonus failed")
		}
	}
	return res, nil
}

func (a *Attributor) creditReferrer(ctx context.Context, newUserID int64, res *Result) error {
	if !res.Bonus.IsPositive() {
		// Nothing to post; the referral still counts
		res.Bonus = decimal.Zero // A negative setting is treated as zero
		tx, cancel, err := a.gw.Session(ctx)
		defer cancel()
		if err != nil {
			return err
		}
		if err := bumpCounters(tx, res.ReferrerID, decimal.Zero); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return err
			}
			return a.gw.Fail(err)
		}
		return nil
	}

	txn, err := a.engine.Apply(ctx, ledger.Posting{
		UserID:      res.ReferrerID,
		Amount:      res.Bonus,
		Type:        domain.TypeReferral,
		Description: fmt.Sprintf("Referral bonus for inviting %d", newUserID),
	}, func(tx *gorm.DB, _ *domain.Transaction) error {
		return bumpCounters(tx, res.ReferrerID, res.Bonus) // Commits with the credit or not at all
	})
	res.Transaction = txn
	return err
}

func bumpCounters(tx *gorm.DB, referrerID int64, bonus decimal.Decimal) error {
	q := tx.Model(&domain.User{}).Where("user_id = ?", referrerID).Updates(map[string]any{
		"total_referrals":   gorm.Expr("total_referrals + ?", 1),
		"referral_earnings": gorm.Expr("referral_earnings + ?", bonus),
	})
	if q.Error != nil {
		return q.Error
	}
	if q.RowsAffected == 0 {
		return domain.ErrUserNotFound // Referrer row vanished
	}
	return nil
}

func referralOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "dangling"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
