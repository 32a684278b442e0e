package campaign

import (
	"context"
	"testing"

	"cashback_bot/internal/db"
	"cashback_bot/internal/domain"
	"cashback_bot/internal/ledger"
	"cashback_bot/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRegistry(t *testing.T) (*Registry, *gorm.DB) {
	t.Helper()
	gdb := testutil.NewDB(t)
	gw := db.FromDB(gdb, db.Options{})
	return NewRegistry(gw, ledger.NewEngine(gw, nil)), gdb
}

func five() decimal.Decimal { return decimal.NewFromInt(5) }

func TestCreateAllocatesNumbers(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	first, err := reg.Create(ctx, NewCampaign{Title: "Follow us", RewardAmount: five()})
	require.NoError(t, err)
	assert.Equal(t, 1, first.CampaignNumber)
	assert.True(t, first.IsActive)

	explicit, err := reg.Create(ctx, NewCampaign{Number: 10, Title: "Share", RewardAmount: five(), Inactive: true})
	require.NoError(t, err)
	assert.Equal(t, 10, explicit.CampaignNumber)
	assert.False(t, explicit.IsActive)

	next, err := reg.Create(ctx, NewCampaign{Title: "Review", RewardAmount: five()})
	require.NoError(t, err)
	assert.Equal(t, 11, next.CampaignNumber)

	_, err = reg.Create(ctx, NewCampaign{Number: 10, Title: "Again", RewardAmount: five()})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = reg.Create(ctx, NewCampaign{Title: "Free", RewardAmount: decimal.Zero})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = reg.Create(ctx, NewCampaign{Title: "Odd", RewardAmount: decimal.RequireFromString("0.125")})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = reg.Create(ctx, NewCampaign{Title: "  ", RewardAmount: five()})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	active, err := reg.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	all, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLookupsAndUpdate(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()
	c, err := reg.Create(ctx, NewCampaign{Title: "Follow us", RewardAmount: five()})
	require.NoError(t, err)

	got, err := reg.GetByNumber(ctx, c.CampaignNumber)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = reg.Get(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)

	title := "Follow us on X"
	off := false
	reward := decimal.NewFromInt(8)
	updated, err := reg.Update(ctx, c.ID, Update{Title: &title, IsActive: &off, RewardAmount: &reward})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.False(t, updated.IsActive)
	assert.True(t, updated.RewardAmount.Equal(reward))

	odd := decimal.RequireFromString("8.005")
	_, err = reg.Update(ctx, c.ID, Update{RewardAmount: &odd})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = reg.Update(ctx, 999, Update{Title: &title})
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)

	require.NoError(t, reg.IncrementCompletions(ctx, c.ID))
	got, err = reg.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.CompletionCount)
}

func TestDuplicateCompletionPaysOnce(t *testing.T) {
	reg, gdb := newRegistry(t)
	ctx := context.Background()
	require.NoError(t, gdb.Create(&domain.User{UserID: 1, IsActive: true}).Error)
	c, err := reg.Create(ctx, NewCampaign{Title: "Follow us", RewardAmount: five()})
	require.NoError(t, err)

	done, err := reg.Complete(ctx, 1, c.CampaignNumber)
	require.NoError(t, err)
	require.NotNil(t, done.Transaction)
	assert.True(t, done.Transaction.BalanceAfter.Equal(five()))

	_, err = reg.Complete(ctx, 1, c.CampaignNumber)
	assert.ErrorIs(t, err, domain.ErrAlreadyCompleted)

	var user domain.User
	require.NoError(t, gdb.Where("user_id = ?", 1).Take(&user).Error)
	assert.True(t, user.WalletBalance.Equal(five()))
	assert.Equal(t, int64(1), user.TotalCampaignsCompleted)

	var txCount int64
	require.NoError(t, gdb.Model(&domain.Transaction{}).Where("user_id = ?", 1).Count(&txCount).Error)
	assert.Equal(t, int64(1), txCount)

	got, err := reg.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.CompletionCount)

	completed, err := reg.Completed(ctx, 1, c.ID)
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestCompleteRejectsUnknownAndInactive(t *testing.T) {
	reg, gdb := newRegistry(t)
	ctx := context.Background()
	require.NoError(t, gdb.Create(&domain.User{UserID: 1, IsActive: true}).Error)

	_, err := reg.Complete(ctx, 1, 42)
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)

	c, err := reg.Create(ctx, NewCampaign{Title: "Paused", RewardAmount: five(), Inactive: true})
	require.NoError(t, err)
	_, err = reg.Complete(ctx, 1, c.CampaignNumber)
	assert.ErrorIs(t, err, domain.ErrCampaignInactive)

	active, err := reg.Create(ctx, NewCampaign{Title: "Live", RewardAmount: five()})
	require.NoError(t, err)
	_, err = reg.Complete(ctx, 404, active.CampaignNumber)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	completed, err := reg.Completed(ctx, 404, active.ID)
	require.NoError(t, err)
	assert.False(t, completed)
}
