// Package bot adapts Telegram (via telego) to the event dispatcher.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"cashback_bot/internal/metrics"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Gateway wraps the Telegram API client
type Gateway struct {
	Instance *telego.Bot
	limiter  *rate.Limiter
	username atomic.Pointer[string]
}

// NewGateway creates the telego client. perSecond caps outbound messages.
func NewGateway(token string, perSecond float64, opts ...telego.BotOption) (*Gateway, error) {
	tgBot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	if perSecond <= 0 {
		perSecond = 25
	}
	return &Gateway{
		Instance: tgBot,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), int(perSecond)),
	}, nil
}

// Notify sends a plain text message, waiting for the rate limiter first
func (g *Gateway) Notify(ctx context.Context, userID int64, text string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		metrics.Notifications.WithLabelValues("throttled").Inc()
		return err
	}
	_, err := g.Instance.SendMessage(ctx, tu.Message(tu.ID(userID), text))
	metrics.Notifications.WithLabelValues(metrics.Outcome(err)).Inc()
	return err
}

// IsMember reports whether userID is in channel (an @username or numeric chat id)
func (g *Gateway) IsMember(ctx context.Context, channel string, userID int64) (bool, error) {
	member, err := g.Instance.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: chatID(channel),
		UserID: userID,
	})
	if err != nil {
		return false, err
	}
	switch member.MemberStatus() {
	case "creator", "administrator", "member", "restricted":
		return true, nil
	default:
		return false, nil
	}
}

// Username returns the bot's @username. Until a GetMe call succeeds each
// caller asks Telegram itself; no caller waits on another's request.
func (g *Gateway) Username(ctx context.Context) string {
	if name := g.username.Load(); name != nil {
		return *name
	}
	me, err := g.Instance.GetMe(ctx)
	if err != nil {
		logrus.WithError(err).Warn("GetMe failed")
		return ""
	}
	g.username.Store(&me.Username)
	return me.Username
}

// SetWebhook registers url with Telegram
func (g *Gateway) SetWebhook(ctx context.Context, url, secret string) error {
	err := g.Instance.SetWebhook(ctx, &telego.SetWebhookParams{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return err
	}
	logrus.WithField("url", url).Info("Webhook registered")
	return nil
}

// DeleteWebhook removes the webhook
func (g *Gateway) DeleteWebhook(ctx context.Context) error {
	return g.Instance.DeleteWebhook(ctx, &telego.DeleteWebhookParams{})
}

func chatID(channel string) telego.ChatID {
	channel = strings.TrimSpace(channel)
	if id, ok := parseChatID(channel); ok {
		return tu.ID(id)
	}
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	return tu.Username(channel)
}

func parseChatID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}
