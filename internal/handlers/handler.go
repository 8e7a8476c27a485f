package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"

	"babylog/internal/bindings"
	"babylog/internal/groups"
	"babylog/internal/maintenance"
	"babylog/internal/messages"
	"babylog/internal/models"
)

const (
	requestTimeout     = 15 * time.Second
	maintenanceTimeout = 10 * time.Minute
)

// Sender is the part of *tgbotapi.BotAPI the handler uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Maintainer runs the daily sweep; called on every interaction.
type Maintainer interface {
	RunDailyMaintenance(ctx context.Context) (maintenance.Result, bool, error)
}

type Handler struct {
	Bot      Sender
	Groups   *groups.Service
	Bindings *bindings.Tracker
	Sweeper  Maintainer
	Logger   *slog.Logger
	Clock    clockwork.Clock
}

func NewHandler(bot Sender, svc *groups.Service, tracker *bindings.Tracker, sweeper Maintainer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Bot:      bot,
		Groups:   svc,
		Bindings: tracker,
		Sweeper:  sweeper,
		Logger:   logger,
		Clock:    clockwork.NewRealClock(),
	}
}

// HandleUpdate dispatches one inbound update. Safe for concurrent use.
func (h *Handler) HandleUpdate(upd tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch {
	case upd.Message != nil:
		h.HandleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		h.HandleCallback(ctx, upd.CallbackQuery)
	}
}

// session is the per-interaction context shared by commands and callbacks.
type session struct {
	userID  int64
	chatID  int64
	groupID int64
}

// begin resolves (or creates) the user's group and nudges maintenance.
func (h *Handler) begin(ctx context.Context, userID, chatID int64) (session, error) {
	h.maintain()

	gid, found, err := h.Groups.ResolveGroupForUser(ctx, userID)
	if err != nil {
		return session{}, err
	}
	if !found {
		if gid, err = h.Groups.EnsurePersonalGroup(ctx, userID); err != nil {
			return session{}, err
		}
	}
	return session{userID: userID, chatID: chatID, groupID: gid}, nil
}

// maintain runs the daily sweep off the request path. The sweep no-ops on
// all but the first call of a day.
func (h *Handler) maintain() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
		defer cancel()
		if _, _, err := h.Sweeper.RunDailyMaintenance(ctx); err != nil {
			h.Logger.Warn("daily maintenance failed", "error", err)
		}
	}()
}

// refreshView edits the user's live view in place, or sends a new one.
func (h *Handler) refreshView(ctx context.Context, s session) {
	view, found, err := h.Groups.GetUserView(ctx, s.userID)
	if err != nil {
		h.Logger.Error("load view failed", "user_id", s.userID, "error", err)
		h.send(s.chatID, messages.TryAgainLater)
		return
	}
	if !found {
		h.send(s.chatID, messages.NoGroup)
		return
	}
	text := messages.View(view, h.Clock.Now())

	_, err = h.Bindings.Refresh(ctx, view.GroupID, s.userID,
		func(ctx context.Context, b models.MessageBinding) error {
			edit := tgbotapi.NewEditMessageTextAndMarkup(b.ChatID, b.MessageID, text, viewKeyboard)
			_, err := h.Bot.Request(edit)
			return classifyEditError(err)
		},
		func(ctx context.Context) (int, int64, error) {
			msg := tgbotapi.NewMessage(s.chatID, text)
			msg.ReplyMarkup = viewKeyboard
			sent, err := h.Bot.Send(msg)
			if err != nil {
				return 0, 0, err
			}
			chatID := s.chatID
			if sent.Chat != nil {
				chatID = sent.Chat.ID
			}
			return sent.MessageID, chatID, nil
		},
	)
	if err != nil {
		h.Logger.Error("refresh live view failed", "user_id", s.userID, "error", err)
	}
}

// classifyEditError maps Telegram edit failures: "not modified" is success,
// a missing or uneditable target becomes bindings.ErrMessageGone.
func classifyEditError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case strings.Contains(msg, "message is not modified"):
		return nil
	case strings.Contains(msg, "message to edit not found"),
		strings.Contains(msg, "message can't be edited"),
		strings.Contains(msg, "message_id_invalid"),
		strings.Contains(msg, "chat not found"):
		return errors.Join(bindings.ErrMessageGone, err)
	}
	return err
}

func (h *Handler) send(chatID int64, text string) {
	if _, err := h.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		h.Logger.Warn("send failed", "chat_id", chatID, "error", err)
	}
}

// replyError turns a core error into a user-facing text. No internal detail
// crosses this boundary.
func (h *Handler) replyError(s session, op string, err error, notFound string) {
	text := messages.TryAgainLater
	switch {
	case errors.Is(err, groups.ErrNotFound) && notFound != "":
		text = notFound
	case errors.Is(err, groups.ErrAlreadyExists):
		text = messages.NameTaken
	case errors.Is(err, groups.ErrInvalidInput):
		text = usage[op]
	default:
		h.Logger.Error("command failed", "op", op, "user_id", s.userID, "error", err)
	}
	if text == "" {
		text = messages.TryAgainLater
	}
	h.send(s.chatID, text)
}
