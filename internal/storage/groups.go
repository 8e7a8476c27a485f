package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"babylog/internal/models"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const groupColumns = `id, name, hour_offset, bottles_to_show, poops_to_show, default_bottle_amount, created_at`

// ---------- groups ----------------------------------------------------------

// CreateGroup inserts a group named name with initialMember as its only
// member (0 for none). Returns ErrAlreadyExists if the name is taken.
func (d *DB) CreateGroup(ctx context.Context, name string, initialMember int64, hourOffset int) (int64, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("create group: begin", err)
	}
	defer tx.Rollback()

	prefs := models.DefaultDisplayPrefs()
	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx, `
        INSERT INTO groups (name, hour_offset, bottles_to_show, poops_to_show, default_bottle_amount, created_at)
        VALUES (?,?,?,?,?,?)`,
		name, hourOffset, prefs.BottlesToShow, prefs.PoopsToShow, prefs.DefaultBottleAmount, now)
	if err != nil {
		return 0, classify("create group", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, classify("create group: last insert id", err)
	}

	if initialMember != 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?,?,?)`,
			id, initialMember, now,
		); err != nil {
			return 0, classify("create group: add member", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classify("create group: commit", err)
	}
	return id, nil
}

func (d *DB) GetGroupByID(ctx context.Context, id int64) (*models.Group, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	g, err := getGroup(ctx, d.DB, `SELECT `+groupColumns+` FROM groups WHERE id=?`, id)
	return g, classify("get group by id", err)
}

func (d *DB) GetGroupByName(ctx context.Context, name string) (*models.Group, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	g, err := getGroup(ctx, d.DB, `SELECT `+groupColumns+` FROM groups WHERE name=?`, name)
	return g, classify("get group by name", err)
}

func getGroup(ctx context.Context, q querier, query string, arg any) (*models.Group, error) {
	var g models.Group
	err := q.QueryRowContext(ctx, query, arg).Scan(
		&g.ID, &g.Name, &g.HourOffset,
		&g.Prefs.BottlesToShow, &g.Prefs.PoopsToShow, &g.Prefs.DefaultBottleAmount,
		&g.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if g.Members, err = members(ctx, q, g.ID); err != nil {
		return nil, err
	}
	return &g, nil
}

func members(ctx context.Context, q querier, groupID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id=? ORDER BY joined_at, rowid`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []int64{}
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		res = append(res, uid)
	}
	return res, rows.Err()
}

// ListGroups returns every group with its members, ordered by id.
func (d *DB) ListGroups(ctx context.Context) ([]models.Group, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	rows, err := d.QueryContext(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY id`)
	if err != nil {
		return nil, classify("list groups", err)
	}
	var res []models.Group
	index := map[int64]int{}
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(
			&g.ID, &g.Name, &g.HourOffset,
			&g.Prefs.BottlesToShow, &g.Prefs.PoopsToShow, &g.Prefs.DefaultBottleAmount,
			&g.CreatedAt,
		); err != nil {
			rows.Close()
			return nil, classify("list groups: scan", err)
		}
		g.Members = []int64{}
		index[g.ID] = len(res)
		res = append(res, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify("list groups: iterate", err)
	}

	mrows, err := d.QueryContext(ctx,
		`SELECT group_id, user_id FROM group_members ORDER BY group_id, joined_at, rowid`)
	if err != nil {
		return nil, classify("list groups: members", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var gid, uid int64
		if err := mrows.Scan(&gid, &uid); err != nil {
			return nil, classify("list groups: scan member", err)
		}
		if i, ok := index[gid]; ok {
			res[i].Members = append(res[i].Members, uid)
		}
	}
	return res, classify("list groups: iterate members", mrows.Err())
}

// UpdateGroup replaces every mutable field of the group, members included.
// Callers pass the complete desired state.
func (d *DB) UpdateGroup(ctx context.Context, g *models.Group) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return classify("update group: begin", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
        UPDATE groups SET name=?, hour_offset=?, bottles_to_show=?, poops_to_show=?, default_bottle_amount=?
        WHERE id=?`,
		g.Name, g.HourOffset, g.Prefs.BottlesToShow, g.Prefs.PoopsToShow, g.Prefs.DefaultBottleAmount, g.ID)
	if err != nil {
		return classify("update group", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return classify("update group", fmt.Errorf("group %d: %w", g.ID, ErrNotFound))
	}

	current, err := members(ctx, tx, g.ID)
	if err != nil {
		return classify("update group: members", err)
	}
	want := make(map[int64]bool, len(g.Members))
	for _, m := range g.Members {
		want[m] = true
	}
	for _, m := range current {
		if !want[m] {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM group_members WHERE group_id=? AND user_id=?`, g.ID, m); err != nil {
				return classify("update group: remove member", err)
			}
		}
	}
	now := time.Now().Unix()
	for _, m := range g.Members {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO group_members (group_id, user_id, joined_at) VALUES (?,?,?)`,
			g.ID, m, now); err != nil {
			return classify("update group: add member", err)
		}
	}

	return classify("update group: commit", tx.Commit())
}

// UpdateGroupInfo writes name, hour offset and display prefs. Membership is
// left untouched, so a concurrent join or leave is never overwritten.
func (d *DB) UpdateGroupInfo(ctx context.Context, g *models.Group) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	res, err := d.ExecContext(ctx, `
        UPDATE groups SET name=?, hour_offset=?, bottles_to_show=?, poops_to_show=?, default_bottle_amount=?
        WHERE id=?`,
		g.Name, g.HourOffset, g.Prefs.BottlesToShow, g.Prefs.PoopsToShow, g.Prefs.DefaultBottleAmount, g.ID)
	if err != nil {
		return classify("update group info", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return classify("update group info", fmt.Errorf("group %d: %w", g.ID, ErrNotFound))
	}
	return nil
}

// ---------- membership ------------------------------------------------------

// GroupsForUser returns every group containing userID in ascending id order.
// More than one result means the membership invariant was broken.
func (d *DB) GroupsForUser(ctx context.Context, userID int64) ([]models.Group, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	rows, err := d.QueryContext(ctx, `
        SELECT g.id, g.name FROM groups g
        JOIN group_members m ON m.group_id = g.id
        WHERE m.user_id=? ORDER BY g.id`, userID)
	if err != nil {
		return nil, classify("groups for user", err)
	}
	defer rows.Close()

	var res []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, classify("groups for user: scan", err)
		}
		res = append(res, g)
	}
	return res, classify("groups for user: iterate", rows.Err())
}

// AddMember adds userID to the group; no-op if already a member.
func (d *DB) AddMember(ctx context.Context, groupID, userID int64) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	_, err := d.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (group_id, user_id, joined_at) VALUES (?,?,?)`,
		groupID, userID, time.Now().Unix())
	return classify("add member", err)
}

// MoveMember makes groupID the only group containing userID.
func (d *DB) MoveMember(ctx context.Context, userID, groupID int64) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return classify("move member: begin", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM groups WHERE id=?`, groupID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return classify("move member", fmt.Errorf("group %d: %w", groupID, ErrNotFound))
	}
	if err != nil {
		return classify("move member: lookup", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM group_members WHERE user_id=? AND group_id<>?`, userID, groupID); err != nil {
		return classify("move member: remove", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (group_id, user_id, joined_at) VALUES (?,?,?)`,
		groupID, userID, time.Now().Unix()); err != nil {
		return classify("move member: add", err)
	}
	return classify("move member: commit", tx.Commit())
}

// RemoveMember drops userID from the group. ErrNotFound if not a member.
func (d *DB) RemoveMember(ctx context.Context, groupID, userID int64) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	res, err := d.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id=? AND user_id=?`, groupID, userID)
	if err != nil {
		return classify("remove member", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return classify("remove member", fmt.Errorf("user %d in group %d: %w", userID, groupID, ErrNotFound))
	}
	return nil
}
