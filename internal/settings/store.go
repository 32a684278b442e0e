// Package settings is the key/value configuration store with hard-coded
// fallbacks. Lookups never fail: a missing key, an unreachable database or a
// malformed value all resolve to the default table.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cashback_bot/internal/db"
	"cashback_bot/internal/domain"
	"cashback_bot/internal/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	KeyReferralBonus    = "referral_bonus"         // Credited to the referrer
	KeyWelcomeBonus     = "referral_welcome_bonus" // Credited to the invitee, 0 disables
	KeyMinWithdrawal    = "min_withdrawal"         // Smallest withdrawal accepted
	KeyWelcomeText      = "welcome_text"           // Reply to /start
	KeyRequiredChannels = "required_channels"      // JSON array of channels gating tasks
)

// Defaults is the fallback table consulted whenever a key cannot be read
var Defaults = map[string]string{
	KeyReferralBonus:    "10",
	KeyWelcomeBonus:     "0",
	KeyMinWithdrawal:    "6",
	KeyWelcomeText:      "Welcome! Complete tasks and invite friends to earn cashback.",
	KeyRequiredChannels: "[]",
}

// amountKeys hold money values and must parse as non-negative whole cents
var amountKeys = map[string]bool{
	KeyReferralBonus: true,
	KeyWelcomeBonus:  true,
	KeyMinWithdrawal: true,
}

const cacheTTL = 5 * time.Minute // Set invalidates the key immediately

// Store reads and writes the settings table
type Store struct {
	gw    *db.Gateway
	cache *utils.Cache
}

// NewStore builds a Store; cache may be nil
func NewStore(gw *db.Gateway, cache *utils.Cache) *Store {
	return &Store{gw: gw, cache: cache}
}

// Get returns the raw value of key, or its default
func (s *Store) Get(ctx context.Context, key string) string {
	if v, ok := s.lookup(ctx, key); ok {
		return v
	}
	return Defaults[key]
}

func (s *Store) lookup(ctx context.Context, key string) (string, bool) {
	var cached string
	if found, err := s.cache.Get(ctx, utils.SettingKey(key), &cached); err == nil && found {
		return cached, true
	}
	if !s.gw.Connected() {
		return "", false
	}
	tx, cancel, err := s.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return "", false
	}
	var row domain.Setting
	err = tx.Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("Setting lookup failed, using default")
		_ = s.gw.Fail(err)
		return "", false
	}
	_ = s.cache.Set(ctx, utils.SettingKey(key), row.Value, cacheTTL)
	return row.Value, true
}

// Validate checks value against the shape key expects
func Validate(key, value string) error {
	if !amountKeys[key] {
		return nil
	}
	d, err := parseDecimal(value)
	if err != nil || d.IsNegative() {
		return fmt.Errorf("%w: %s=%s", domain.ErrInvalidAmount, key, value)
	}
	return nil
}

// Set upserts key
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := Validate(key, value); err != nil {
		return err
	}
	tx, cancel, err := s.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return err
	}
	row := domain.Setting{Key: key, Value: value}
	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return s.gw.Fail(err)
	}
	_ = s.cache.Delete(ctx, utils.SettingKey(key))
	logrus.WithField("key", key).Info("Setting updated")
	return nil
}

// All returns the default table overlaid with every stored value
func (s *Store) All(ctx context.Context) map[string]string {
	out := make(map[string]string, len(Defaults))
	for k, v := range Defaults {
		out[k] = v
	}
	if !s.gw.Connected() {
		return out
	}
	tx, cancel, err := s.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return out
	}
	var rows []domain.Setting
	if err := tx.Find(&rows).Error; err != nil {
		_ = s.gw.Fail(err)
		return out
	}
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out
}

// String decodes a JSON string value, accepting bare text as well
func (s *Store) String(ctx context.Context, key string) string {
	raw := s.Get(ctx, key)
	var v string
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// Decimal parses a numeric value; a malformed stored value falls back to the default
func (s *Store) Decimal(ctx context.Context, key string) decimal.Decimal {
	if d, err := parseDecimal(s.Get(ctx, key)); err == nil {
		return d
	}
	d, _ := parseDecimal(Defaults[key])
	return d
}

// Strings decodes a JSON array of strings
func (s *Store) Strings(ctx context.Context, key string) []string {
	var v []string
	if err := json.Unmarshal([]byte(s.Get(ctx, key)), &v); err == nil {
		return v
	}
	_ = json.Unmarshal([]byte(Defaults[key]), &v)
	return v
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.Trim(strings.TrimSpace(raw), `"`))
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !domain.WholeCents(d) {
		return decimal.Decimal{}, domain.ErrInvalidAmount // Would be rounded by the ledger columns
	}
	return d, nil
}

// ReferralBonus is the amount credited to a referrer
func (s *Store) ReferralBonus(ctx context.Context) decimal.Decimal {
	return s.Decimal(ctx, KeyReferralBonus)
}

// WelcomeBonus is the amount credited to a referred user; zero disables it
func (s *Store) WelcomeBonus(ctx context.Context) decimal.Decimal {
	return s.Decimal(ctx, KeyWelcomeBonus)
}

// MinWithdrawal is the smallest accepted withdrawal
func (s *Store) MinWithdrawal(ctx context.Context) decimal.Decimal {
	return s.Decimal(ctx, KeyMinWithdrawal)
}

// WelcomeText is sent on first contact
func (s *Store) WelcomeText(ctx context.Context) string {
	return s.String(ctx, KeyWelcomeText)
}

// RequiredChannels lists the channels a user must join
func (s *Store) RequiredChannels(ctx context.Context) []string {
	return s.Strings(ctx, KeyRequiredChannels)
}
