package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"babylog/internal/models"
)

// ---------- bottle entries --------------------------------------------------

func (d *DB) AppendEntry(ctx context.Context, groupID int64, amountML int, at time.Time) (models.Entry, error) {
	if amountML <= 0 {
		return models.Entry{}, classify("append entry", fmt.Errorf("amount %d: %w", amountML, ErrInvalidInput))
	}
	ctx, cancel := d.bound(ctx)
	defer cancel()

	res, err := d.ExecContext(ctx,
		`INSERT INTO entries (group_id, amount_ml, ts) VALUES (?,?,?)`,
		groupID, amountML, unix(at))
	if err != nil {
		return models.Entry{}, classify("append entry", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Entry{}, classify("append entry: last insert id", err)
	}
	return models.Entry{ID: id, GroupID: groupID, AmountML: amountML, At: fromUnix(unix(at))}, nil
}

// RemoveMostRecentEntry deletes and returns the newest entry of the group.
// Returns ErrNotFound when the group has no entries.
func (d *DB) RemoveMostRecentEntry(ctx context.Context, groupID int64) (models.Entry, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return models.Entry{}, classify("remove entry: begin", err)
	}
	defer tx.Rollback()

	var (
		e  models.Entry
		ts int64
	)
	err = tx.QueryRowContext(ctx, `
        SELECT id, group_id, amount_ml, ts FROM entries
        WHERE group_id=? ORDER BY ts DESC, id DESC LIMIT 1`, groupID,
	).Scan(&e.ID, &e.GroupID, &e.AmountML, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entry{}, classify("remove entry", fmt.Errorf("group %d: %w", groupID, ErrNotFound))
	}
	if err != nil {
		return models.Entry{}, classify("remove entry: select", err)
	}
	e.At = fromUnix(ts)

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id=?`, e.ID); err != nil {
		return models.Entry{}, classify("remove entry: delete", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Entry{}, classify("remove entry: commit", err)
	}
	return e, nil
}

// QueryEntries returns entries newest first. A zero since or limit disables
// that filter.
func (d *DB) QueryEntries(ctx context.Context, groupID int64, since time.Time, limit int) ([]models.Entry, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	query, args := windowQuery(`SELECT id, group_id, amount_ml, ts FROM entries`, groupID, since, limit)
	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query entries", err)
	}
	defer rows.Close()

	res := []models.Entry{}
	for rows.Next() {
		var (
			e  models.Entry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.GroupID, &e.AmountML, &ts); err != nil {
			return nil, classify("query entries: scan", err)
		}
		e.At = fromUnix(ts)
		res = append(res, e)
	}
	return res, classify("query entries: iterate", rows.Err())
}

// ---------- poop events -----------------------------------------------------

func (d *DB) AppendPoop(ctx context.Context, groupID int64, at time.Time, note string) (models.PoopEvent, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	res, err := d.ExecContext(ctx,
		`INSERT INTO poop_events (group_id, ts, note) VALUES (?,?,?)`,
		groupID, unix(at), note)
	if err != nil {
		return models.PoopEvent{}, classify("append poop", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.PoopEvent{}, classify("append poop: last insert id", err)
	}
	return models.PoopEvent{ID: id, GroupID: groupID, At: fromUnix(unix(at)), Note: note}, nil
}

// QueryPoops returns poop events newest first, filtered like QueryEntries.
func (d *DB) QueryPoops(ctx context.Context, groupID int64, since time.Time, limit int) ([]models.PoopEvent, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	query, args := windowQuery(`SELECT id, group_id, ts, note FROM poop_events`, groupID, since, limit)
	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query poops", err)
	}
	defer rows.Close()

	res := []models.PoopEvent{}
	for rows.Next() {
		var (
			p  models.PoopEvent
			ts int64
		)
		if err := rows.Scan(&p.ID, &p.GroupID, &ts, &p.Note); err != nil {
			return nil, classify("query poops: scan", err)
		}
		p.At = fromUnix(ts)
		res = append(res, p)
	}
	return res, classify("query poops: iterate", rows.Err())
}

func windowQuery(base string, groupID int64, since time.Time, limit int) (string, []any) {
	query := base + ` WHERE group_id=?`
	args := []any{groupID}
	if !since.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, unix(since))
	}
	query += ` ORDER BY ts DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return query, args
}

// ---------- retention -------------------------------------------------------

// PruneOlderThan deletes entries and poop events strictly older than cutoff.
func (d *DB) PruneOlderThan(ctx context.Context, cutoff time.Time) (entries, poops int64, err error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, classify("prune: begin", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE ts < ?`, unix(cutoff))
	if err != nil {
		return 0, 0, classify("prune entries", err)
	}
	entries, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM poop_events WHERE ts < ?`, unix(cutoff))
	if err != nil {
		return 0, 0, classify("prune poops", err)
	}
	poops, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, classify("prune: commit", err)
	}
	return entries, poops, nil
}
