package security

import (
	"context"
	"testing"
	"time"

	"cashback_bot/internal/db"
	"cashback_bot/internal/domain"
	"cashback_bot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRecordAndFilter(t *testing.T) {
	log := NewLog(testutil.NewGateway(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	log.now = func() time.Time { return clock }

	log.Record(ctx, 7, domain.EventSelfReferral, map[string]any{"token": "ref_7"})
	clock = base.Add(time.Hour)
	log.Record(ctx, 8, domain.EventDuplicateCompletion, map[string]any{"campaign_number": 3})
	clock = base.Add(2 * time.Hour)
	log.Record(ctx, 7, domain.EventOverdraftAttempt, nil)

	all, err := log.Recent(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, domain.EventOverdraftAttempt, all[0].EventType, "newest first")
	assert.Equal(t, "ref_7", all[2].Details["token"])

	mine, err := log.Recent(ctx, Filter{UserID: 7})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	typed, err := log.Recent(ctx, Filter{EventType: domain.EventDuplicateCompletion})
	require.NoError(t, err)
	require.Len(t, typed, 1)
	assert.Equal(t, int64(8), typed[0].UserID)

	limited, err := log.Recent(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := log.CountSince(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRecordNeverFails(t *testing.T) {
	down := NewLog(db.NewGateway(func() (*gorm.DB, error) { return nil, gorm.ErrInvalidDB }, db.Options{MaxRetries: 1}))
	assert.NotPanics(t, func() {
		down.Record(context.Background(), 1, domain.EventSelfReferral, nil)
	})
	_, err := down.Recent(context.Background(), Filter{})
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	var disabled *Log
	assert.NotPanics(t, func() {
		disabled.Record(context.Background(), 1, domain.EventSelfReferral, nil)
	})
	evs, err := disabled.Recent(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, evs)
}
