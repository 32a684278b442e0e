package db_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cashback_bot/internal/db"
	"cashback_bot/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSQLite() (*gorm.DB, error) {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

func TestSessionOnConnectedGateway(t *testing.T) {
	gdb, err := openSQLite()
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	gw := db.FromDB(gdb, db.Options{OpTimeout: time.Second})
	t.Cleanup(func() { _ = gw.Close() })

	assert.True(t, gw.Connected())
	tx, cancel, err := gw.Session(context.Background())
	defer cancel()
	require.NoError(t, err)
	var n int64
	require.NoError(t, tx.Model(&domain.User{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestConnectRetriesThenGivesUp(t *testing.T) {
	var calls atomic.Int32
	gw := db.NewGateway(func() (*gorm.DB, error) {
		calls.Add(1)
		return nil, errors.New("connection refused")
	}, db.Options{MaxRetries: 3, RetryDelay: time.Millisecond})

	err := gw.Connect(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load())
	assert.False(t, gw.EnsureAvailable(context.Background()))

	_, cancel, err := gw.Session(context.Background())
	cancel()
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestReconnectAfterFailure(t *testing.T) {
	var healthy atomic.Bool
	gw := db.NewGateway(func() (*gorm.DB, error) {
		if !healthy.Load() {
			return nil, errors.New("connection refused")
		}
		return openSQLite()
	}, db.Options{MaxRetries: 1})

	assert.False(t, gw.EnsureAvailable(context.Background()))
	healthy.Store(true)
	assert.True(t, gw.EnsureAvailable(context.Background()))
	t.Cleanup(func() { _ = gw.Close() })

	err := gw.Fail(fmt.Errorf("write: %w", driver.ErrBadConn))
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.False(t, gw.Connected(), "broken connection drops the flag")
	assert.True(t, gw.EnsureAvailable(context.Background()))

	err = gw.Fail(errors.New("syntax error"))
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.True(t, gw.Connected(), "query errors keep the connection")
}

func TestConcurrentCallersShareOneReconnect(t *testing.T) {
	var opens atomic.Int32
	release := make(chan struct{})
	gw := db.NewGateway(func() (*gorm.DB, error) {
		if opens.Add(1) == 1 {
			<-release // hold the first attempt until every caller is waiting
		}
		time.Sleep(10 * time.Millisecond)
		return nil, errors.New("connection refused")
	}, db.Options{MaxRetries: 3, RetryDelay: 5 * time.Millisecond})

	const callers = 5
	errs := make(chan error, callers)
	var started sync.WaitGroup
	for i := 0; i < callers; i++ {
		started.Add(1)
		go func() {
			started.Done()
			_, cancel, err := gw.Session(context.Background())
			cancel()
			errs <- err
		}()
	}
	started.Wait()
	time.Sleep(50 * time.Millisecond)
	begin := time.Now()
	close(release)

	for i := 0; i < callers; i++ {
		assert.ErrorIs(t, <-errs, domain.ErrUnavailable)
	}
	assert.Equal(t, int32(3), opens.Load(), "one retry cycle for all callers")
	assert.Less(t, time.Since(begin), time.Second)
}

func TestCallerStopsWaitingWhenContextEnds(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	gw := db.NewGateway(func() (*gorm.DB, error) {
		<-release
		return nil, errors.New("connection refused")
	}, db.Options{MaxRetries: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := gw.Connect(ctx)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOnConnectRunsAfterLateReconnect(t *testing.T) {
	var healthy atomic.Bool
	var migrated atomic.Int32
	gw := db.NewGateway(func() (*gorm.DB, error) {
		if !healthy.Load() {
			return nil, errors.New("connection refused")
		}
		return openSQLite()
	}, db.Options{MaxRetries: 1, OnConnect: func(gdb *gorm.DB) error {
		migrated.Add(1)
		return db.Migrate(gdb)
	}})

	assert.False(t, gw.EnsureAvailable(context.Background()), "server starts degraded")
	assert.Zero(t, migrated.Load())

	healthy.Store(true)
	require.True(t, gw.EnsureAvailable(context.Background()))
	t.Cleanup(func() { _ = gw.Close() })
	assert.Equal(t, int32(1), migrated.Load())

	tx, cancel, err := gw.Session(context.Background())
	defer cancel()
	require.NoError(t, err)
	var n int64
	require.NoError(t, tx.Model(&domain.User{}).Count(&n).Error, "schema exists after the late connect")
}

func TestOnConnectFailureKeepsGatewayDown(t *testing.T) {
	gw := db.NewGateway(openSQLite, db.Options{MaxRetries: 2, RetryDelay: time.Millisecond, OnConnect: func(*gorm.DB) error {
		return errors.New("migration failed")
	}})
	err := gw.Connect(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.False(t, gw.Connected())
}

func TestDialector(t *testing.T) {
	for _, name := range []string{"postgres", "postgresql", "mysql"} {
		d, err := db.Dialector(name, "dsn")
		require.NoError(t, err)
		assert.NotNil(t, d)
	}
	_, err := db.Dialector("oracle", "dsn")
	assert.Error(t, err)
}

func TestSeedSettingsKeepsExistingValues(t *testing.T) {
	gdb, err := openSQLite()
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	require.NoError(t, gdb.Create(&domain.Setting{Key: "referral_bonus", Value: "50"}).Error)

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
referral_bonus: 10
min_withdrawal: 6.5
welcome_text: Hello there
required_channels:
  - "@news"
`), 0o600))

	n, err := db.SeedSettings(gdb, path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var rows []domain.Setting
	require.NoError(t, gdb.Order("key").Find(&rows).Error)
	got := map[string]string{}
	for _, r := range rows {
		got[r.Key] = r.Value
	}
	assert.Equal(t, "50", got["referral_bonus"])
	assert.Equal(t, "6.5", got["min_withdrawal"])
	assert.Equal(t, "Hello there", got["welcome_text"])
	assert.Equal(t, `["@news"]`, got["required_channels"])

	_, err = db.SeedSettings(gdb, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
