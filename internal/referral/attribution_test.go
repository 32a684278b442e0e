package referral

import (
	"context"
	"sync"
	"testing"

	"cashback_bot/internal/db"
	"cashback_bot/internal/domain"
	"cashback_bot/internal/ledger"
	"cashback_bot/internal/settings"
	"cashback_bot/internal/testutil"
	"cashback_bot/internal/users"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	gdb   *gorm.DB
	dir   *users.Directory
	store *settings.Store
	attr  *Attributor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gdb := testutil.NewDB(t)
	gw := db.FromDB(gdb, db.Options{})
	cache, _ := testutil.NewCache(t)
	store := settings.NewStore(gw, cache)
	return fixture{
		gdb:   gdb,
		dir:   users.NewDirectory(gw),
		store: store,
		attr:  NewAttributor(gw, ledger.NewEngine(gw, cache), store),
	}
}

func (f fixture) register(t *testing.T, userID int64, referrer *int64) users.Registration {
	t.Helper()
	reg, err := f.dir.Register(context.Background(), users.Profile{UserID: userID, ReferrerID: referrer})
	require.NoError(t, err)
	return reg
}

func (f fixture) user(t *testing.T, userID int64) domain.User {
	t.Helper()
	var u domain.User
	require.NoError(t, f.gdb.Where("user_id = ?", userID).Take(&u).Error)
	return u
}

func (f fixture) transactions(t *testing.T, userID int64) []domain.Transaction {
	t.Helper()
	var txs []domain.Transaction
	require.NoError(t, f.gdb.Where("user_id = ?", userID).Find(&txs).Error)
	return txs
}

func TestReferrerCreditedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	referrer := int64(200)
	f.register(t, referrer, nil)

	reg := f.register(t, 100, &referrer)
	require.True(t, reg.Created)
	res, err := f.attr.Attribute(ctx, 100, referrer)
	require.NoError(t, err)
	assert.True(t, res.Bonus.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, res.Transaction)

	b := f.user(t, referrer)
	assert.True(t, b.WalletBalance.Equal(decimal.NewFromInt(10)))
	assert.True(t, b.ReferralEarnings.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, int64(1), b.TotalReferrals)

	txs := f.transactions(t, referrer)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TypeReferral, txs[0].Type)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(10)))
	assert.True(t, txs[0].BalanceAfter.Equal(decimal.NewFromInt(10)))

	assert.Empty(t, f.transactions(t, 100), "welcome bonus is off by default")
}

func TestDuplicateCreationEventAttributesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	referrer := int64(200)
	f.register(t, referrer, nil)

	var wg sync.WaitGroup
	regs := make([]users.Registration, 2)
	errs := make([]error, 2)
	for i := range regs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			regs[i], errs[i] = f.dir.Register(ctx, users.Profile{UserID: 100, ReferrerID: &referrer})
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	created := 0
	for _, reg := range regs {
		if reg.Created && reg.User.ReferrerID != nil {
			created++
			_, err := f.attr.Attribute(ctx, reg.User.UserID, *reg.User.ReferrerID)
			require.NoError(t, err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Len(t, f.transactions(t, referrer), 1)
	assert.Equal(t, int64(1), f.user(t, referrer).TotalReferrals)
}

func TestSelfReferralWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.register(t, 100, nil)

	_, err := f.attr.Attribute(context.Background(), 100, 100)
	assert.ErrorIs(t, err, domain.ErrSelfReferral)
	u := f.user(t, 100)
	assert.True(t, u.WalletBalance.IsZero())
	assert.Zero(t, u.TotalReferrals)
	assert.Empty(t, f.transactions(t, 100))
}

func TestDanglingReferrer(t *testing.T) {
	f := newFixture(t)
	ghost := int64(999)
	f.register(t, 100, &ghost)

	_, err := f.attr.Attribute(context.Background(), 100, ghost)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.Empty(t, f.transactions(t, ghost))
}

func TestConfiguredBonuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, settings.KeyReferralBonus, "25"))
	require.NoError(t, f.store.Set(ctx, settings.KeyWelcomeBonus, "3"))
	referrer := int64(200)
	f.register(t, referrer, nil)
	f.register(t, 100, &referrer)

	res, err := f.attr.Attribute(ctx, 100, referrer)
	require.NoError(t, err)
	require.NoError(t, res.WelcomeErr)
	require.NotNil(t, res.WelcomeTransaction)

	assert.True(t, f.user(t, referrer).WalletBalance.Equal(decimal.NewFromInt(25)))
	invitee := f.user(t, 100)
	assert.True(t, invitee.WalletBalance.Equal(decimal.NewFromInt(3)))
	assert.Zero(t, invitee.TotalReferrals)
}

func TestZeroBonusStillCountsReferral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, settings.KeyReferralBonus, "0"))
	referrer := int64(200)
	f.register(t, referrer, nil)
	f.register(t, 100, &referrer)

	res, err := f.attr.Attribute(ctx, 100, referrer)
	require.NoError(t, err)
	assert.Nil(t, res.Transaction)
	assert.Equal(t, int64(1), f.user(t, referrer).TotalReferrals)
	assert.Empty(t, f.transactions(t, referrer))
}
