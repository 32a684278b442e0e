// Package events maps inbound chat events onto the wallet core and renders
// the user-facing reply. Notifications are best effort and never fail the
// primary operation; their result is reported in the Outcome.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cashback_bot/internal/campaign"
	"cashback_bot/internal/domain"
	"cashback_bot/internal/ledger"
	"cashback_bot/internal/metrics"
	"cashback_bot/internal/referral"
	"cashback_bot/internal/security"
	"cashback_bot/internal/settings"
	"cashback_bot/internal/users"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Generic replies; no internal detail reaches the user
const (
	ReplyRetry         = "Something went wrong. Please try again in a moment or send /start."
	ReplyUnknownTask   = "This task does not exist."
	ReplyInactiveTask  = "This task is no longer available."
	ReplyAlreadyDone   = "You have already completed this task."
	ReplyNotRegistered = "Please send /start first."
	ReplyBadAmount     = "Please enter a valid amount."
	ReplySuspended     = "Your account is suspended. Contact support if you think this is a mistake."
)

// ErrJoinRequired is returned when force-join gating blocks an action
var ErrJoinRequired = errors.New("required channel membership missing")

// Notifier delivers a text message to a user
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// MembershipChecker reports whether a user belongs to a channel
type MembershipChecker interface {
	IsMember(ctx context.Context, channel string, userID int64) (bool, error)
}

// Outcome is the result of handling one event
type Outcome struct {
	Reply     string // text for the acting user
	Notified  bool   // a third party was notified successfully
	NotifyErr error  // notification failure, if one was attempted
	Err       error  // failure of the primary operation
}

// Conversation is a first-contact event
type Conversation struct {
	UserID      int64
	Username    string
	DisplayName string
	InviteToken string
}

// Dispatcher routes events to the core services
type Dispatcher struct {
	users      *users.Directory
	attributor *referral.Attributor
	campaigns  *campaign.Registry
	ledger     *ledger.Engine
	settings   *settings.Store
	notifier   Notifier          // may be nil
	membership MembershipChecker // may be nil, disables gating
	security   *security.Log     // may be nil

	NotifyTimeout time.Duration
}

// NewDispatcher wires a Dispatcher
func NewDispatcher(dir *users.Directory, attr *referral.Attributor, reg *campaign.Registry, engine *ledger.Engine, store *settings.Store, notifier Notifier, membership MembershipChecker, audit *security.Log) *Dispatcher {
	return &Dispatcher{
		users:         dir,
		attributor:    attr,
		campaigns:     reg,
		ledger:        engine,
		settings:      store,
		notifier:      notifier,
		membership:    membership,
		security:      audit,
		NotifyTimeout: 5 * time.Second, // Per notification, independent of the caller's deadline
	}
}

// NewConversation registers the user and, for a freshly created user with a
// referrer, attributes the referral and tells the referrer about it.
func (d *Dispatcher) NewConversation(ctx context.Context, c Conversation) Outcome {
	invite := ParseInviteToken(c.InviteToken)
	if invite.ReferrerID != nil && *invite.ReferrerID == c.UserID {
		d.security.Record(ctx, c.UserID, domain.EventSelfReferral, map[string]any{"token": c.InviteToken})
		invite.ReferrerID = nil
	}
	reg, err := d.users.Register(ctx, users.Profile{
		UserID:      c.UserID,
		Username:    c.Username,
		DisplayName: c.DisplayName,
		ReferrerID:  invite.ReferrerID,
	})
	if err != nil {
		return d.fail("new_conversation", c.UserID, err)
	}

	if reg.Created {
		d.security.Record(ctx, c.UserID, domain.EventUserCreated, map[string]any{"username": c.Username, "referrer_id": reg.User.ReferrerID})
	}
	if !reg.User.IsActive {
		d.security.Record(ctx, c.UserID, domain.EventSuspendedAction, map[string]any{"action": "start"})
		metrics.Events.WithLabelValues("new_conversation", "suspended").Inc()
		return Outcome{Reply: ReplySuspended, Err: domain.ErrUserInactive}
	}

	out := Outcome{Reply: d.settings.WelcomeText(ctx)}
	if reg.Created && reg.User.ReferrerID != nil {
		referrerID := *reg.User.ReferrerID
		res, err := d.attributor.Attribute(ctx, c.UserID, referrerID)
		switch {
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUserInactive):
			d.security.Record(ctx, c.UserID, domain.EventInvalidReferrer, map[string]any{"referrer_id": referrerID, "reason": err.Error()})
		case err != nil:
			// the new user is registered either way; attribution failures are logged by the attributor
		case res.Transaction != nil:
			out.Notified, out.NotifyErr = d.notify(ctx, referrerID, fmt.Sprintf(
				"🎉 %s joined with your link! You earned %s. New balance: %s",
				displayName(c), res.Bonus.StringFixed(2), res.Transaction.BalanceAfter.StringFixed(2)))
		}
		if res.WelcomeTransaction != nil {
			out.Reply += fmt.Sprintf("\n\nYou received a welcome bonus of %s.", res.WelcomeBonus.StringFixed(2))
		}
	}

	if invite.CampaignNumber > 0 {
		if camp, err := d.campaigns.GetByNumber(ctx, invite.CampaignNumber); err == nil && camp.IsActive {
			out.Reply += "\n\n" + CampaignCard(camp)
		}
	}
	metrics.Events.WithLabelValues("new_conversation", "ok").Inc()
	return out
}

// TaskCompletion pays the reward of the campaign identified by code
func (d *Dispatcher) TaskCompletion(ctx context.Context, userID int64, code string) Outcome {
	number, ok := ParseCampaignCode(code)
	if !ok {
		metrics.Events.WithLabelValues("task_completion", "rejected").Inc()
		return Outcome{Reply: ReplyUnknownTask, Err: domain.ErrCampaignNotFound}
	}
	if missing, err := d.MissingChannels(ctx, userID); err != nil {
		return d.fail("task_completion", userID, err)
	} else if len(missing) > 0 {
		metrics.Events.WithLabelValues("task_completion", "join_required").Inc()
		return Outcome{Reply: JoinPrompt(missing), Err: ErrJoinRequired}
	}

	done, err := d.campaigns.Complete(ctx, userID, number)
	switch {
	case err == nil:
		metrics.Events.WithLabelValues("task_completion", "ok").Inc()
		return Outcome{Reply: fmt.Sprintf("✅ Task completed! You earned %s. New balance: %s",
			done.Campaign.RewardAmount.StringFixed(2), done.Transaction.BalanceAfter.StringFixed(2))}
	case errors.Is(err, domain.ErrAlreadyCompleted):
		d.security.Record(ctx, userID, domain.EventDuplicateCompletion, map[string]any{"campaign_number": number})
		metrics.Events.WithLabelValues("task_completion", "duplicate").Inc()
		return Outcome{Reply: ReplyAlreadyDone, Err: err}
	case errors.Is(err, domain.ErrCampaignInactive):
		metrics.Events.WithLabelValues("task_completion", "rejected").Inc()
		return Outcome{Reply: ReplyInactiveTask, Err: err}
	case errors.Is(err, domain.ErrCampaignNotFound):
		metrics.Events.WithLabelValues("task_completion", "rejected").Inc()
		return Outcome{Reply: ReplyUnknownTask, Err: err}
	case errors.Is(err, domain.ErrUserNotFound):
		metrics.Events.WithLabelValues("task_completion", "rejected").Inc()
		return Outcome{Reply: ReplyNotRegistered, Err: err}
	case errors.Is(err, domain.ErrUserInactive):
		d.security.Record(ctx, userID, domain.EventSuspendedAction, map[string]any{"action": "task_completion", "campaign_number": number})
		metrics.Events.WithLabelValues("task_completion", "suspended").Inc()
		return Outcome{Reply: ReplySuspended, Err: err}
	default:
		return d.fail("task_completion", userID, err)
	}
}

// WithdrawalRequest debits amount after checking it against the minimum and
// the current balance. The debit itself refuses to leave the balance negative.
func (d *Dispatcher) WithdrawalRequest(ctx context.Context, userID int64, amount decimal.Decimal) Outcome {
	if !amount.IsPositive() || !domain.WholeCents(amount) {
		metrics.Events.WithLabelValues("withdrawal", "rejected").Inc()
		return Outcome{Reply: ReplyBadAmount, Err: domain.ErrInvalidAmount}
	}
	if minimum := d.settings.MinWithdrawal(ctx); amount.LessThan(minimum) {
		metrics.Events.WithLabelValues("withdrawal", "rejected").Inc()
		return Outcome{Reply: fmt.Sprintf("The minimum withdrawal is %s.", minimum.StringFixed(2)), Err: domain.ErrBelowMinimum}
	}
	wallet, err := d.ledger.Wallet(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return Outcome{Reply: ReplyNotRegistered, Err: err}
	}
	if err != nil {
		return d.fail("withdrawal", userID, err)
	}
	if amount.GreaterThan(wallet.Balance) { // Fast path; the hook below is authoritative
		d.overdraft(ctx, userID, amount, wallet.Balance)
		metrics.Events.WithLabelValues("withdrawal", "rejected").Inc()
		return Outcome{Reply: insufficient(wallet.Balance), Err: domain.ErrInsufficientFunds}
	}

	txn, err := d.ledger.Apply(ctx, ledger.Posting{
		UserID:      userID,
		Amount:      amount.Neg(),
		Type:        domain.TypeWithdrawal,
		Description: "Withdrawal request",
	}, func(_ *gorm.DB, txn *domain.Transaction) error {
		if txn.BalanceAfter.IsNegative() {
			return domain.ErrInsufficientFunds
		}
		return nil
	})
	switch {
	case err == nil:
		metrics.Events.WithLabelValues("withdrawal", "ok").Inc()
		return Outcome{Reply: fmt.Sprintf("💸 Withdrawal of %s requested. Remaining balance: %s",
			amount.StringFixed(2), txn.BalanceAfter.StringFixed(2))}
	case errors.Is(err, domain.ErrInsufficientFunds):
		d.overdraft(ctx, userID, amount, wallet.Balance)
		metrics.Events.WithLabelValues("withdrawal", "rejected").Inc()
		return Outcome{Reply: insufficient(wallet.Balance), Err: err}
	case errors.Is(err, domain.ErrUserNotFound):
		return Outcome{Reply: ReplyNotRegistered, Err: err}
	case errors.Is(err, domain.ErrUserInactive):
		d.security.Record(ctx, userID, domain.EventSuspendedAction, map[string]any{"action": "withdrawal", "amount": amount.String()})
		metrics.Events.WithLabelValues("withdrawal", "suspended").Inc()
		return Outcome{Reply: ReplySuspended, Err: err}
	default:
		return d.fail("withdrawal", userID, err)
	}
}

// MissingChannels returns the required channels userID has not joined
func (d *Dispatcher) MissingChannels(ctx context.Context, userID int64) ([]string, error) {
	if d.membership == nil {
		return nil, nil
	}
	var missing []string
	for _, ch := range d.settings.RequiredChannels(ctx) {
		ok, err := d.membership.IsMember(ctx, ch, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, ch)
		}
	}
	return missing, nil
}

// overdraft records a withdrawal larger than the balance; balance is the
// pre-check snapshot
func (d *Dispatcher) overdraft(ctx context.Context, userID int64, amount, balance decimal.Decimal) {
	d.security.Record(ctx, userID, domain.EventOverdraftAttempt, map[string]any{
		"amount":  amount.String(),
		"balance": balance.String(),
	})
}

func (d *Dispatcher) notify(ctx context.Context, userID int64, text string) (bool, error) {
	if d.notifier == nil {
		return false, nil
	}
	nctx, cancel := context.WithTimeout(ctx, d.NotifyTimeout)
	defer cancel()
	if err := d.notifier.Notify(nctx, userID, text); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("Notification failed")
		return false, err
	}
	return true, nil
}

func (d *Dispatcher) fail(kind string, userID int64, err error) Outcome {
	logrus.WithFields(logrus.Fields{
		"event":   kind,
		"user_id": userID,
		"error":   err.Error(),
	}).Error("Event handling failed")
	metrics.Events.WithLabelValues(kind, "error").Inc()
	return Outcome{Reply: ReplyRetry, Err: err}
}

// CampaignCard renders a campaign for chat
func CampaignCard(c domain.Campaign) string {
	card := fmt.Sprintf("📋 Task #%d: %s\nReward: %s", c.CampaignNumber, c.Title, c.RewardAmount.StringFixed(2))
	if c.Description != "" {
		card += "\n" + c.Description
	}
	if c.TaskURL != "" {
		card += "\n" + c.TaskURL
	}
	return card + fmt.Sprintf("\nWhen done, send /done %d", c.CampaignNumber)
}

// JoinPrompt lists the channels a user still has to join
func JoinPrompt(channels []string) string {
	text := "Please join these channels first:"
	for _, ch := range channels {
		text += "\n• " + ch
	}
	return text
}

func insufficient(balance decimal.Decimal) string {
	return "Insufficient balance. Your balance is " + balance.StringFixed(2) + "."
}

func displayName(c Conversation) string {
	switch {
	case c.DisplayName != "":
		return c.DisplayName
	case c.Username != "":
		return "@" + c.Username
	default:
		return "A new user"
	}
}
