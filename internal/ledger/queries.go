package ledger

import (
	"context"
	"errors"
	"time"

	"cashback_bot/internal/domain"
	"cashback_bot/internal/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const viewTTL = 60 * time.Second // Views are also invalidated on every posting

// HistoryPage is one page of a user's transactions, newest first
type HistoryPage struct {
	Transactions []domain.Transaction `json:"transactions"` // Newest first
	Page         int                  `json:"page"`         // Current page
	PageSize     int                  `json:"page_size"`    // Page size
	Total        int64                `json:"total"`        // Rows for the user
	TotalPages   int                  `json:"total_pages"`  // Total pages
}

// Wallet returns the balance view of a user, served from cache when possible
func (e *Engine) Wallet(ctx context.Context, userID int64) (domain.Wallet, error) {
	var wallet domain.Wallet
	if found, err := e.cache.Get(ctx, utils.WalletKey(userID), &wallet); err == nil && found {
		return wallet, nil
	}
	tx, cancel, err := e.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return domain.Wallet{}, err
	}
	var user domain.User
	err = tx.Where("user_id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Wallet{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.Wallet{}, e.gw.Fail(err)
	}
	wallet = user.Wallet()
	if err := e.cache.Set(ctx, utils.WalletKey(userID), wallet, viewTTL); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Debug("Wallet cache write failed")
	}
	return wallet, nil
}

// History returns one page of a user's transactions
func (e *Engine) History(ctx context.Context, userID int64, page, size int) (HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20 // Default page size
	}
	key := utils.HistoryKey(userID, page, size)
	var cached HistoryPage
	if found, err := e.cache.Get(ctx, key, &cached); err == nil && found {
		return cached, nil
	}
	tx, cancel, err := e.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return HistoryPage{}, err
	}
	var total int64
	if err := tx.Model(&domain.Transaction{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return HistoryPage{}, e.gw.Fail(err)
	}
	var txs []domain.Transaction
	if err := tx.Where("user_id = ?", userID).
		Order("created_at desc").Order("id desc"). // id breaks same-instant ties
		Offset((page - 1) * size).
		Limit(size).
		Find(&txs).Error; err != nil {
		return HistoryPage{}, e.gw.Fail(err)
	}
	out := HistoryPage{
		Transactions: txs,
		Page:         page,
		PageSize:     size,
		Total:        total,
		TotalPages:   (int(total) + size - 1) / size,
	}
	_ = e.cache.Set(ctx, key, out, viewTTL)
	return out, nil
}

// TransactionFilter narrows the admin transaction listing
type TransactionFilter struct {
	UserID *int64
	Type   domain.TransactionType
	From   *time.Time
	To     *time.Time
}

// Transactions lists transactions across users for the admin API
func (e *Engine) Transactions(ctx context.Context, f TransactionFilter, page, size int) (HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	tx, cancel, err := e.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return HistoryPage{}, err
	}
	query := tx.Model(&domain.Transaction{})
	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if f.From != nil {
		query = query.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("created_at <= ?", *f.To)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return HistoryPage{}, e.gw.Fail(err)
	}
	var txs []domain.Transaction
	if err := query.Order("created_at desc").Order("id desc").Offset((page - 1) * size).Limit(size).Find(&txs).Error; err != nil {
		return HistoryPage{}, e.gw.Fail(err)
	}
	return HistoryPage{
		Transactions: txs,
		Page:         page,
		PageSize:     size,
		Total:        total,
		TotalPages:   (int(total) + size - 1) / size,
	}, nil
}

// Totals summarizes the whole ledger for the admin dashboard
type Totals struct {
	Transactions int64                                      `json:"transactions"`
	Outstanding  decimal.Decimal                            `json:"outstanding_balance"`
	ByType       map[domain.TransactionType]decimal.Decimal `json:"amount_by_type"`
}

// Totals sums balances and transaction amounts per type
func (e *Engine) Totals(ctx context.Context) (Totals, error) {
	tx, cancel, err := e.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return Totals{}, err
	}
	out := Totals{ByType: map[domain.TransactionType]decimal.Decimal{}}
	if err := tx.Model(&domain.Transaction{}).Count(&out.Transactions).Error; err != nil {
		return Totals{}, e.gw.Fail(err)
	}
	var outstanding decimal.NullDecimal
	if err := tx.Model(&domain.User{}).Select("SUM(wallet_balance)").Row().Scan(&outstanding); err != nil {
		return Totals{}, e.gw.Fail(err)
	}
	out.Outstanding = outstanding.Decimal
	rows, err := tx.Model(&domain.Transaction{}).Select("type, SUM(amount)").Group("type").Rows()
	if err != nil {
		return Totals{}, e.gw.Fail(err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ domain.TransactionType
		var total decimal.NullDecimal
		if err := rows.Scan(&typ, &total); err != nil {
			return Totals{}, e.gw.Fail(err)
		}
		out.ByType[typ] = total.Decimal
	}
	if err := rows.Err(); err != nil {
		return Totals{}, e.gw.Fail(err)
	}
	return out, nil
}
