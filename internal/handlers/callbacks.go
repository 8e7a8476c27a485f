package handlers

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"babylog/internal/messages"
)

const (
	cbBottle  = "bottle"
	cbPoop    = "poop"
	cbUndo    = "undo"
	cbRefresh = "refresh"
)

// Inline keyboard attached to every live view.
var viewKeyboard = tgbotapi.NewInlineKeyboardMarkup(
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Bottle", cbBottle),
		tgbotapi.NewInlineKeyboardButtonData("Diaper", cbPoop),
	),
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Undo", cbUndo),
		tgbotapi.NewInlineKeyboardButtonData("Refresh", cbRefresh),
	),
)

func (h *Handler) HandleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	// always answer callback
	_, _ = h.Bot.Request(tgbotapi.NewCallback(cq.ID, ""))

	if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	s, err := h.begin(ctx, cq.From.ID, cq.Message.Chat.ID)
	if err != nil {
		h.Logger.Error("resolve group failed", "user_id", cq.From.ID, "error", err)
		h.send(cq.Message.Chat.ID, messages.TryAgainLater)
		return
	}

	switch cq.Data {
	case cbBottle:
		h.handleBottle(ctx, s, nil)
	case cbPoop:
		h.handlePoop(ctx, s, nil)
	case cbUndo:
		h.handleUndo(ctx, s)
	case cbRefresh:
		h.refreshView(ctx, s)
	}
}
