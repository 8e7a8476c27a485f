// Package bindings tracks the single live UI message each (group, user) pair
// edits in place. Bindings are read from and written to the store directly;
// a stale binding would send an edit to a dead message.
package bindings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"babylog/internal/models"
)

// ErrMessageGone is returned by an edit func when the bound message can no
// longer be edited (deleted, too old, chat gone).
var ErrMessageGone = errors.New("bindings: live message gone")

// Store is the binding subset of the durable store.
type Store interface {
	SetMessageBinding(ctx context.Context, groupID, userID int64, messageID int, chatID int64) error
	GetMessageBinding(ctx context.Context, groupID, userID int64) (models.MessageBinding, bool, error)
	ClearMessageBinding(ctx context.Context, groupID, userID int64) error
}

// EditFunc edits the message described by b.
type EditFunc func(ctx context.Context, b models.MessageBinding) error

// SendFunc sends a fresh message and returns its id and chat.
type SendFunc func(ctx context.Context) (messageID int, chatID int64, err error)

type Tracker struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, logger: logger}
}

// Bind makes messageID the live message for (groupID, userID), replacing
// any previous binding.
func (t *Tracker) Bind(ctx context.Context, groupID, userID int64, messageID int, chatID int64) error {
	if err := t.store.SetMessageBinding(ctx, groupID, userID, messageID, chatID); err != nil {
		return fmt.Errorf("bind live message: %w", err)
	}
	return nil
}

// Get returns the live message binding; found is false when none exists.
func (t *Tracker) Get(ctx context.Context, groupID, userID int64) (models.MessageBinding, bool, error) {
	b, found, err := t.store.GetMessageBinding(ctx, groupID, userID)
	if err != nil {
		return models.MessageBinding{}, false, fmt.Errorf("get live message: %w", err)
	}
	return b, found, nil
}

func (t *Tracker) Clear(ctx context.Context, groupID, userID int64) error {
	if err := t.store.ClearMessageBinding(ctx, groupID, userID); err != nil {
		return fmt.Errorf("clear live message: %w", err)
	}
	return nil
}

// Refresh edits the live message if one is bound. When there is none, or
// the edit reports ErrMessageGone, the binding is cleared, a new message is
// sent and bound. Other edit errors are returned and the binding is kept.
func (t *Tracker) Refresh(ctx context.Context, groupID, userID int64, edit EditFunc, send SendFunc) (models.MessageBinding, error) {
	b, found, err := t.Get(ctx, groupID, userID)
	if err != nil {
		return models.MessageBinding{}, err
	}

	if found {
		err := edit(ctx, b)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, ErrMessageGone) {
			return models.MessageBinding{}, fmt.Errorf("edit live message %d: %w", b.MessageID, err)
		}
		t.logger.Info("live message gone, clearing binding",
			"group_id", groupID, "user_id", userID, "message_id", b.MessageID)
		if err := t.Clear(ctx, groupID, userID); err != nil {
			return models.MessageBinding{}, err
		}
	}

	msgID, chatID, err := send(ctx)
	if err != nil {
		return models.MessageBinding{}, fmt.Errorf("send live message: %w", err)
	}
	if err := t.Bind(ctx, groupID, userID, msgID, chatID); err != nil {
		return models.MessageBinding{}, err
	}
	return models.MessageBinding{GroupID: groupID, UserID: userID, MessageID: msgID, ChatID: chatID}, nil
}
