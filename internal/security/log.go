// Package security keeps an append-only log of suspicious and audited actions.
// Recording is best effort: a failed write is logged and never fails the
// action that triggered it.
package security

import (
	"context"
	"time"

	"cashback_bot/internal/db"
	"cashback_bot/internal/domain"
	"cashback_bot/internal/metrics"

	"github.com/sirupsen/logrus"
)

// routine events are audited but not suspicious
var routine = map[domain.SecurityEventType]bool{
	domain.EventUserCreated:       true,
	domain.EventUserStatusChanged: true,
}

// Log writes security events; a nil *Log discards them
type Log struct {
	gw  *db.Gateway
	now func() time.Time
}

// NewLog builds a Log
func NewLog(gw *db.Gateway) *Log {
	return &Log{gw: gw, now: time.Now}
}

// Record appends one event
func (l *Log) Record(ctx context.Context, userID int64, typ domain.SecurityEventType, details map[string]any) {
	if l == nil {
		return
	}
	fields := logrus.Fields{"user_id": userID, "event_type": typ}
	for k, v := range details {
		fields[k] = v
	}
	entry := logrus.WithFields(fields) // Still visible when the table is unreachable
	if routine[typ] {
		entry.Info("Security event")
	} else {
		entry.Warn("Security event")
	}
	metrics.SecurityEvents.WithLabelValues(string(typ)).Inc()

	tx, cancel, err := l.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return
	}
	ev := domain.SecurityEvent{UserID: userID, EventType: typ, Details: details, CreatedAt: l.now().UTC()}
	if err := tx.Create(&ev).Error; err != nil {
		logrus.WithFields(logrus.Fields{"event_type": typ, "error": err.Error()}).Error("Security event not stored")
		_ = l.gw.Fail(err)
	}
}

// Filter narrows Recent; zero fields match everything
type Filter struct {
	UserID    int64
	EventType domain.SecurityEventType
	Since     time.Time
	Limit     int
}

// Recent returns matching events newest first
func (l *Log) Recent(ctx context.Context, f Filter) ([]domain.SecurityEvent, error) {
	if l == nil {
		return []domain.SecurityEvent{}, nil
	}
	tx, cancel, err := l.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return nil, err
	}
	q := tx.Model(&domain.SecurityEvent{})
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since.UTC()) // Rows are stored in UTC
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	events := []domain.SecurityEvent{}
	if err := q.Order("id desc").Limit(f.Limit).Find(&events).Error; err != nil {
		return nil, l.gw.Fail(err)
	}
	return events, nil
}

// CountSince counts events created at or after since
func (l *Log) CountSince(ctx context.Context, since time.Time) (int64, error) {
	if l == nil {
		return 0, nil
	}
	tx, cancel, err := l.gw.Session(ctx)
	defer cancel()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.Model(&domain.SecurityEvent{}).Where("created_at >= ?", since.UTC()).Count(&n).Error; err != nil {
		return 0, l.gw.Fail(err)
	}
	return n, nil
}
