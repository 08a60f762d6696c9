// Package notify delivers approval requests and task progress to a human
// operator over Telegram, and feeds their replies back into the gate.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MEKXH/warden/internal/approval"
	"github.com/MEKXH/warden/internal/config"
	"github.com/MEKXH/warden/internal/task"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram connects the approval gate to a Telegram bot. It implements
// approval.Notifier and task.ProgressSink.
type Telegram struct {
	cfg   *config.TelegramConfig
	gate  *approval.Gate
	allow map[string]bool

	mu    sync.Mutex
	bot   *tgbotapi.BotAPI
	chats map[int64]struct{}
}

// NewTelegram creates a Telegram notifier. Numeric entries in allow_from
// double as private chat ids, so approvals reach the operator before they
// ever message the bot.
func NewTelegram(cfg *config.TelegramConfig, gate *approval.Gate) *Telegram {
	allow := make(map[string]bool)
	chats := make(map[int64]struct{})
	for _, id := range cfg.AllowFrom {
		allow[id] = true
		if chatID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64); err == nil {
			chats[chatID] = struct{}{}
		}
	}
	return &Telegram{
		cfg:   cfg,
		gate:  gate,
		allow: allow,
		chats: chats,
	}
}

// Start connects the bot and consumes updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram init failed: %w", err)
	}
	t.mu.Lock()
	t.bot = bot
	t.mu.Unlock()

	slog.Info("telegram bot connected", "username", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			t.handleMessage(update.Message)
		}
	}
}

// Stop halts the update loop.
func (t *Telegram) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	return nil
}

func (t *Telegram) handleMessage(msg *tgbotapi.Message) {
	senderID := fmt.Sprintf("%d", msg.From.ID)

	if len(t.allow) > 0 && !t.allow[senderID] {
		slog.Debug("unauthorized sender", "id", senderID)
		return
	}
	t.rememberChat(msg.Chat.ID)

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		t.handleCommand(msg, senderID)
		return
	}

	// Free-text yes/no responses resolve the most recent pending request.
	if req, ok := t.gate.HandleUtterance(senderID, text); ok {
		slog.Info("approval resolved via chat", "request_id", req.ID, "user", senderID)
		return
	}
}

func (t *Telegram) handleCommand(msg *tgbotapi.Message, senderID string) {
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "approve", "reject":
		if len(args) == 0 {
			t.sendTo(msg.Chat.ID, fmt.Sprintf("Usage: /%s <request-id>", msg.Command()))
			return
		}
		approve := msg.Command() == "approve"
		if err := t.gate.Resolve(args[0], approve, senderID); err != nil {
			t.sendTo(msg.Chat.ID, fmt.Sprintf("Cannot resolve %s: %v", args[0], err))
		}
	case "pending":
		t.sendTo(msg.Chat.ID, formatPending(t.gate.Pending()))
	default:
		slog.Debug("ignoring unknown command", "command", msg.Command())
	}
}

// NotifyRequest broadcasts a new approval request to every known chat.
func (t *Telegram) NotifyRequest(ctx context.Context, req approval.Request) {
	text := fmt.Sprintf(
		"Approval required (risk: %s)\n%s\n\nReply yes/no, or /approve %s",
		req.Risk, req.Description, req.ID,
	)
	t.broadcast(text)
}

// NotifyResolution broadcasts the outcome of a request.
func (t *Telegram) NotifyResolution(ctx context.Context, notice approval.Notice) {
	var text string
	switch {
	case notice.Expired:
		text = fmt.Sprintf("Request expired and was denied:\n%s", notice.Request.Description)
	case notice.Approved:
		text = fmt.Sprintf("Approved by %s:\n%s", notice.By, notice.Request.Description)
	default:
		text = fmt.Sprintf("Rejected by %s:\n%s", notice.By, notice.Request.Description)
	}
	t.broadcast(text)
}

// Progress broadcasts task step transitions.
func (t *Telegram) Progress(ctx context.Context, p task.Progress) {
	t.broadcast(fmt.Sprintf("Task %s: step %d/%d %s (%s)",
		shortID(p.TaskID), p.StepIndex+1, p.TotalSteps, p.Status, p.StepDescription))
}

// Announce broadcasts an operational notice to all known chats.
func (t *Telegram) Announce(text string) {
	t.broadcast(text)
}

func (t *Telegram) rememberChat(chatID int64) {
	t.mu.Lock()
	t.chats[chatID] = struct{}{}
	t.mu.Unlock()
}

func (t *Telegram) broadcast(text string) {
	t.mu.Lock()
	bot := t.bot
	chats := make([]int64, 0, len(t.chats))
	for id := range t.chats {
		chats = append(chats, id)
	}
	t.mu.Unlock()

	if bot == nil {
		slog.Warn("telegram notification dropped, bot not connected", "text", text)
		return
	}
	for _, chatID := range chats {
		t.sendTo(chatID, text)
	}
}

func (t *Telegram) sendTo(chatID int64, text string) {
	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()
	if bot == nil {
		return
	}
	if _, err := bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Warn("telegram send failed", "chat_id", chatID, "error", err)
	}
}

func formatPending(pending []approval.Request) string {
	if len(pending) == 0 {
		return "No pending approval requests."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d pending request(s):\n", len(pending))
	for _, req := range pending {
		fmt.Fprintf(&b, "- %s [%s] %s (waiting since %s)\n",
			req.ID, req.Risk, req.Description, req.CreatedAt.Format(time.Kitchen))
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
