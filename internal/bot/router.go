package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cashback_bot/internal/campaign"
	"cashback_bot/internal/domain"
	"cashback_bot/internal/events"
	"cashback_bot/internal/ledger"

	"github.com/mymmrac/telego"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const historyPageSize = 10

// Replier sends the reply to the acting user
type Replier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// Router turns Telegram updates into dispatcher calls and chat replies
type Router struct {
	dispatcher *events.Dispatcher
	ledger     *ledger.Engine
	campaigns  *campaign.Registry
	replier    Replier
	botName    func(ctx context.Context) string
}

// NewRouter builds a Router; botName resolves the bot @username for invite links
func NewRouter(d *events.Dispatcher, engine *ledger.Engine, reg *campaign.Registry, replier Replier, botName func(ctx context.Context) string) *Router {
	return &Router{dispatcher: d, ledger: engine, campaigns: reg, replier: replier, botName: botName}
}

// Handle processes one update. Only private text messages are handled.
func (r *Router) Handle(ctx context.Context, update telego.Update) error {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot || msg.Chat.Type != "private" {
		return nil
	}
	cmd, args := splitCommand(msg.Text)
	if cmd == "" {
		return nil
	}
	from := msg.From
	logrus.WithFields(logrus.Fields{
		"update_id": update.UpdateID,
		"user_id":   from.ID,
		"command":   cmd,
	}).Debug("Command received")

	var reply string
	switch cmd {
	case "start":
		out := r.dispatcher.NewConversation(ctx, events.Conversation{
			UserID:      from.ID,
			Username:    from.Username,
			DisplayName: strings.TrimSpace(from.FirstName + " " + from.LastName),
			InviteToken: first(args),
		})
		reply = out.Reply
	case "wallet", "balance":
		reply = r.walletText(ctx, from.ID)
	case "history":
		page, _ := strconv.Atoi(first(args))
		reply = r.historyText(ctx, from.ID, page)
	case "tasks":
		reply = r.tasksText(ctx)
	case "done":
		reply = r.dispatcher.TaskCompletion(ctx, from.ID, first(args)).Reply
	case "withdraw":
		amount, err := decimal.NewFromString(first(args))
		if err != nil {
			reply = events.ReplyBadAmount
			break
		}
		reply = r.dispatcher.WithdrawalRequest(ctx, from.ID, amount).Reply
	case "referral", "invite":
		reply = r.referralText(ctx, from.ID)
	default:
		return nil
	}
	return r.replier.Notify(ctx, msg.Chat.ID, reply)
}

func (r *Router) walletText(ctx context.Context, userID int64) string {
	w, err := r.ledger.Wallet(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return events.ReplyNotRegistered
	}
	if err != nil {
		return events.ReplyRetry
	}
	return fmt.Sprintf("💰 Balance: %s\nTotal earned: %s\nReferral earnings: %s (%d referrals)\nWithdrawn: %s",
		w.Balance.StringFixed(2), w.TotalEarned.StringFixed(2), w.ReferralEarnings.StringFixed(2),
		w.TotalReferrals, w.TotalWithdrawals.StringFixed(2))
}

func (r *Router) historyText(ctx context.Context, userID int64, page int) string {
	h, err := r.ledger.History(ctx, userID, page, historyPageSize)
	if err != nil {
		return events.ReplyRetry
	}
	if h.Total == 0 {
		return "No transactions yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📜 History (page %d/%d)", h.Page, h.TotalPages)
	for _, t := range h.Transactions {
		fmt.Fprintf(&b, "\n%s  %s  %s  → %s", t.CreatedAt.Format("2006-01-02"), t.Type, t.Amount.StringFixed(2), t.BalanceAfter.StringFixed(2))
	}
	if h.Page < h.TotalPages {
		fmt.Fprintf(&b, "\nMore: /history %d", h.Page+1)
	}
	return b.String()
}

func (r *Router) tasksText(ctx context.Context) string {
	list, err := r.campaigns.ListActive(ctx)
	if err != nil {
		return events.ReplyRetry
	}
	if len(list) == 0 {
		return "No tasks available right now."
	}
	cards := make([]string, 0, len(list))
	for _, c := range list {
		cards = append(cards, events.CampaignCard(c))
	}
	return strings.Join(cards, "\n\n")
}

func (r *Router) referralText(ctx context.Context, userID int64) string {
	w, err := r.ledger.Wallet(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return events.ReplyNotRegistered
	}
	if err != nil {
		return events.ReplyRetry
	}
	link := fmt.Sprintf("ref_%d", userID)
	if name := r.botName(ctx); name != "" {
		link = fmt.Sprintf("https://t.me/%s?start=ref_%d", name, userID)
	}
	return fmt.Sprintf("🤝 Invite friends and earn for every new user.\nYour link: %s\nReferrals: %d\nEarned: %s",
		link, w.TotalReferrals, w.ReferralEarnings.StringFixed(2))
}

// splitCommand parses "/cmd@bot arg1 arg2" into "cmd" and its args
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), fields[1:]
}

func first(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
