// Package users owns creation and lookup of User rows. Balance fields are
// never written here.
package users

import (
	"context"
	"errors"
	"time"

	"cashback_bot/internal/db"
	"cashback_bot/internal/domain"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Profile is the informational part of a user supplied by the gateway
type Profile struct {
	UserID      int64
	Username    string
	DisplayName string
	ReferrerID  *int64
}

// Registration reports the outcome of Register
type Registration struct {
	User    domain.User
	Created bool // true only for the call that inserted the row
}

// Directory reads and creates users
type Directory struct {
	gw *db.Gateway
}

// NewDirectory builds a Directory
func NewDirectory(gw *db.Gateway) *Directory {
	return &Directory{gw: gw}
}

// Register inserts the user if user_id is unseen. The insert relies on the
// unique index on user_id, so of two concurrent deliveries exactly one gets
// Created == true. An existing row keeps its referrer; only the informational
// fields are refreshed.
func (d *Directory) Register(ctx context.Context, p Profile) (Registration, error) {
	tx, cancel, err := d.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return Registration{}, err
	}
	if p.ReferrerID != nil && *p.ReferrerID == p.UserID {
		p.ReferrerID = nil
	}
	user := domain.User{
		UserID:      p.UserID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		ReferrerID:  p.ReferrerID,
		IsActive:    true,
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&user)
	if res.Error != nil {
		return Registration{}, d.gw.Fail(res.Error)
	}
	if res.RowsAffected == 1 {
		logrus.WithFields(logrus.Fields{
			"user_id":     p.UserID,
			"referrer_id": p.ReferrerID,
		}).Info("User created")
		return Registration{User: user, Created: true}, nil
	}

	var existing domain.User
	if err := tx.Where("user_id = ?", p.UserID).Take(&existing).Error; err != nil {
		return Registration{}, d.gw.Fail(err)
	}
	if existing.Username != p.Username || existing.DisplayName != p.DisplayName {
		if err := tx.Model(&domain.User{}).Where("user_id = ?", p.UserID).Updates(map[string]any{
			"username":     p.Username,
			"display_name": p.DisplayName,
		}).Error; err != nil {
			logrus.WithFields(logrus.Fields{"user_id": p.UserID, "error": err.Error()}).Warn("Profile refresh failed")
		} else {
			existing.Username = p.Username
			existing.DisplayName = p.DisplayName
		}
	}
	return Registration{User: existing, Created: false}, nil
}

// Get fetches a user by platform id
func (d *Directory) Get(ctx context.Context, userID int64) (domain.User, error) {
	tx, cancel, err := d.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return domain.User{}, err
	}
	var user domain.User
	err = tx.Where("user_id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, d.gw.Fail(err)
	}
	return user, nil
}

// SetActive toggles the is_active flag
func (d *Directory) SetActive(ctx context.Context, userID int64, active bool) error {
	tx, cancel, err := d.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return err
	}
	res := tx.Model(&domain.User{}).Where("user_id = ?", userID).Update("is_active", active)
	if res.Error != nil {
		return d.gw.Fail(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// List returns one page of users ordered by creation
func (d *Directory) List(ctx context.Context, page, size int) ([]domain.User, int64, error) {
	tx, cancel, err := d.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := tx.Model(&domain.User{}).Count(&total).Error; err != nil {
		return nil, 0, d.gw.Fail(err)
	}
	var users []domain.User
	if err := tx.Order("id asc").Offset((page - 1) * size).Limit(size).Find(&users).Error; err != nil {
		return nil, 0, d.gw.Fail(err)
	}
	return users, total, nil
}

// TopReferrers returns the users with the most referrals
func (d *Directory) TopReferrers(ctx context.Context, limit int) ([]domain.User, error) {
	tx, cancel, err := d.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return nil, err
	}
	var users []domain.User
	if err := tx.Where("total_referrals > 0").Order("total_referrals desc").Limit(limit).Find(&users).Error; err != nil {
		return nil, d.gw.Fail(err)
	}
	return users, nil
}

// Stats is the admin overview of the user base
type Stats struct {
	TotalUsers          int64 `json:"total_users"`
	ActiveUsers         int64 `json:"active_users"`
	ReferredUsers       int64 `json:"referred_users"`
	RecentRegistrations int64 `json:"recent_registrations_24h"`
}

// Stats counts users; now anchors the 24h window
func (d *Directory) Stats(ctx context.Context, now time.Time) (Stats, error) {
	tx, cancel, err := d.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	q := tx.Model(&domain.User{})
	if err := q.Count(&s.TotalUsers).Error; err != nil {
		return Stats{}, d.gw.Fail(err)
	}
	if err := tx.Model(&domain.User{}).Where("is_active = ?", true).Count(&s.ActiveUsers).Error; err != nil {
		return Stats{}, d.gw.Fail(err)
	}
	if err := tx.Model(&domain.User{}).Where("referrer_id IS NOT NULL").Count(&s.ReferredUsers).Error; err != nil {
		return Stats{}, d.gw.Fail(err)
	}
	if err := tx.Model(&domain.User{}).Where("created_at >= ?", now.Add(-24*time.Hour)).Count(&s.RecentRegistrations).Error; err != nil {
		return Stats{}, d.gw.Fail(err)
	}
	return s, nil
}
