package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"babylog/internal/models"
)

// ---------- message bindings ------------------------------------------------

func (d *DB) SetMessageBinding(ctx context.Context, groupID, userID int64, messageID int, chatID int64) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	_, err := d.ExecContext(ctx, `
        INSERT INTO message_bindings (group_id, user_id, message_id, chat_id, updated_at)
        VALUES (?,?,?,?,?)
        ON CONFLICT(group_id, user_id) DO UPDATE SET
            message_id=excluded.message_id,
            chat_id=excluded.chat_id,
            updated_at=excluded.updated_at`,
		groupID, userID, messageID, chatID, time.Now().Unix())
	return classify("set message binding", err)
}

// GetMessageBinding returns found=false when no binding exists.
func (d *DB) GetMessageBinding(ctx context.Context, groupID, userID int64) (models.MessageBinding, bool, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	b := models.MessageBinding{GroupID: groupID, UserID: userID}
	err := d.QueryRowContext(ctx, `
        SELECT message_id, chat_id, updated_at FROM message_bindings
        WHERE group_id=? AND user_id=?`, groupID, userID,
	).Scan(&b.MessageID, &b.ChatID, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MessageBinding{}, false, nil
	}
	if err != nil {
		return models.MessageBinding{}, false, classify("get message binding", err)
	}
	return b, true, nil
}

func (d *DB) ClearMessageBinding(ctx context.Context, groupID, userID int64) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	_, err := d.ExecContext(ctx,
		`DELETE FROM message_bindings WHERE group_id=? AND user_id=?`, groupID, userID)
	return classify("clear message binding", err)
}
