package users

import (
	"context"
	"testing"
	"time"

	"cashback_bot/internal/domain"
	"cashback_bot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestRegisterCreatesOnce(t *testing.T) {
	dir := NewDirectory(testutil.NewGateway(t))
	ctx := context.Background()

	first, err := dir.Register(ctx, Profile{UserID: 7, Username: "bob", ReferrerID: ptr(3)})
	require.NoError(t, err)
	assert.True(t, first.Created)
	require.NotNil(t, first.User.ReferrerID)
	assert.Equal(t, int64(3), *first.User.ReferrerID)
	assert.True(t, first.User.WalletBalance.IsZero())

	again, err := dir.Register(ctx, Profile{UserID: 7, Username: "bobby", ReferrerID: ptr(9)})
	require.NoError(t, err)
	assert.False(t, again.Created)
	require.NotNil(t, again.User.ReferrerID)
	assert.Equal(t, int64(3), *again.User.ReferrerID, "referrer is fixed at creation")
	assert.Equal(t, "bobby", again.User.Username)

	stored, err := dir.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "bobby", stored.Username)
}

func TestRegisterDropsSelfReferrer(t *testing.T) {
	dir := NewDirectory(testutil.NewGateway(t))

	reg, err := dir.Register(context.Background(), Profile{UserID: 5, ReferrerID: ptr(5)})
	require.NoError(t, err)
	assert.True(t, reg.Created)
	assert.Nil(t, reg.User.ReferrerID)
}

func TestGetUnknownUser(t *testing.T) {
	dir := NewDirectory(testutil.NewGateway(t))

	_, err := dir.Get(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.ErrorIs(t, dir.SetActive(context.Background(), 1, false), domain.ErrUserNotFound)
}

func TestListAndStats(t *testing.T) {
	dir := NewDirectory(testutil.NewGateway(t))
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		var ref *int64
		if i > 1 {
			ref = ptr(1)
		}
		_, err := dir.Register(ctx, Profile{UserID: i, ReferrerID: ref})
		require.NoError(t, err)
	}
	require.NoError(t, dir.SetActive(ctx, 3, false))

	list, total, err := dir.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].UserID)

	stats, err := dir.Stats(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalUsers: 3, ActiveUsers: 2, ReferredUsers: 2, RecentRegistrations: 3}, stats)
}
