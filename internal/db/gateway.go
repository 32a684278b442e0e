package db

import (
	"context"       // Deadlines for pings and operations
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"cashback_bot/internal/domain" // Error taxonomy

	"github.com/sirupsen/logrus"     // Structured logging
	"golang.org/x/sync/singleflight" // Collapses concurrent reconnects
	"gorm.io/driver/mysql"           // MySQL driver for GORM
	"gorm.io/driver/postgres"        // PostgreSQL driver for GORM
	"gorm.io/gorm"                   // GORM ORM library
)

// Opener produces a fresh gorm handle. It is called on every (re)connect attempt.
type Opener func() (*gorm.DB, error)

// Options tune the reconnect policy and operation deadlines
type Options struct {
	MaxRetries int                  // Connect attempts before giving up
	RetryDelay time.Duration        // Base delay, multiplied by the attempt number
	OpTimeout  time.Duration        // Deadline attached to every Session
	OnConnect  func(*gorm.DB) error // Runs after every successful dial, e.g. Migrate
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 5 * time.Second
	}
	return o
}

// Gateway owns the shared persistence handle. Every component receives the same
// Gateway and asks it for a Session instead of holding a *gorm.DB of its own.
type Gateway struct {
	open      Opener
	opts      Options
	dials     singleflight.Group // One reconnect cycle at a time, shared by all waiters
	db        atomic.Pointer[gorm.DB]
	connected atomic.Bool
}

// NewGateway returns a disconnected gateway. Call Connect or EnsureAvailable to dial.
func NewGateway(open Opener, opts Options) *Gateway {
	return &Gateway{open: open, opts: opts.withDefaults()}
}

// FromDB wraps an already opened handle and marks it connected
func FromDB(gdb *gorm.DB, opts Options) *Gateway {
	g := NewGateway(func() (*gorm.DB, error) { return gdb, nil }, opts)
	g.db.Store(gdb)
	g.connected.Store(true)
	return g
}

// Dialector picks the GORM dialector for a driver name
func Dialector(driverName, dsn string) (gorm.Dialector, error) {
	switch driverName {
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driverName)
	}
}

// Open builds a gateway for driverName/dsn and performs the initial connect.
// The gateway is returned even when the connect fails so callers can degrade.
func Open(ctx context.Context, driverName, dsn string, opts Options) (*Gateway, error) {
	dialector, err := Dialector(driverName, dsn)
	if err != nil {
		return nil, err
	}
	g := NewGateway(func() (*gorm.DB, error) {
		return gorm.Open(dialector, &gorm.Config{})
	}, opts)
	return g, g.Connect(ctx)
}

// Connect dials with bounded retries. Concurrent callers join the cycle that
// is already running instead of queueing their own; a caller whose ctx ends
// first stops waiting while the cycle carries on for the others.
func (g *Gateway) Connect(ctx context.Context) error {
	if g.connected.Load() {
		return nil
	}
	ch := g.dials.DoChan("connect", func() (any, error) {
		if g.connected.Load() {
			return nil, nil
		}
		return nil, g.dial(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, ctx.Err())
	}
}

func (g *Gateway) dial(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= g.opts.MaxRetries; attempt++ {
		gdb, err := g.open()
		if err == nil {
			err = ping(ctx, gdb, g.opts.OpTimeout)
		}
		if err == nil && g.opts.OnConnect != nil {
			err = g.opts.OnConnect(gdb.WithContext(ctx))
		}
		if err == nil {
			g.db.Store(gdb)
			g.connected.Store(true)
			logrus.WithField("attempt", attempt).Info("Database connected")
			return nil
		}
		lastErr = err
		if gdb != nil {
			closeQuietly(gdb) // Half-open handle from a failed ping or hook
		}
		logrus.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("Database connect failed")
		if attempt == g.opts.MaxRetries {
			break
		}
		time.Sleep(g.opts.RetryDelay * time.Duration(attempt))
	}
	return fmt.Errorf("%w: %v", domain.ErrUnavailable, lastErr)
}

func closeQuietly(gdb *gorm.DB) {
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func ping(ctx context.Context, gdb *gorm.DB, timeout time.Duration) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

// Connected reports the coarse connection flag without dialing
func (g *Gateway) Connected() bool {
	return g.connected.Load()
}

// EnsureAvailable returns true when a handle is usable, reconnecting if needed
func (g *Gateway) EnsureAvailable(ctx context.Context) bool {
	if g.connected.Load() {
		return true
	}
	return g.Connect(ctx) == nil
}

// MarkUnavailable drops the connected flag; the next EnsureAvailable redials
func (g *Gateway) MarkUnavailable() {
	if g.connected.Swap(false) {
		logrus.Warn("Database marked unavailable")
	}
}

// Session returns a handle bound to ctx with the operation timeout applied.
// The returned cancel func must always be called.
func (g *Gateway) Session(ctx context.Context) (*gorm.DB, context.CancelFunc, error) {
	if !g.EnsureAvailable(ctx) {
		return nil, func() {}, domain.ErrUnavailable
	}
	gdb := g.db.Load()
	if gdb == nil {
		return nil, func() {}, domain.ErrUnavailable
	}
	opCtx, cancel := context.WithTimeout(ctx, g.opts.OpTimeout)
	return gdb.WithContext(opCtx), cancel, nil
}

// Fail classifies an infrastructure error: broken connections flip the flag,
// and the error comes back wrapped in domain.ErrUnavailable.
func (g *Gateway) Fail(err error) error {
	if err == nil {
		return nil
	}
	if isConnectionError(err) {
		g.MarkUnavailable()
	}
	return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Close releases the underlying pool
func (g *Gateway) Close() error {
	gdb := g.db.Load()
	if gdb == nil {
		return nil
	}
	g.connected.Store(false)
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
