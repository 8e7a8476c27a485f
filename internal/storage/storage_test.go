package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"babylog/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGroups(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	t.Run("CreateGroup assigns id and default prefs", func(t *testing.T) {
		id, err := db.CreateGroup(ctx, "family", 1, 3)
		if err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		g, err := db.GetGroupByID(ctx, id)
		if err != nil {
			t.Fatalf("GetGroupByID failed: %v", err)
		}
		if g.Name != "family" || g.HourOffset != 3 {
			t.Errorf("got %+v", g)
		}
		if g.Prefs != models.DefaultDisplayPrefs() {
			t.Errorf("prefs: got %+v, want defaults", g.Prefs)
		}
		if len(g.Members) != 1 || g.Members[0] != 1 {
			t.Errorf("members: got %v, want [1]", g.Members)
		}
	})

	t.Run("CreateGroup rejects duplicate name", func(t *testing.T) {
		_, err := db.CreateGroup(ctx, "family", 2, 0)
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("GetGroupByName returns ErrNotFound", func(t *testing.T) {
		_, err := db.GetGroupByName(ctx, "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateGroup replaces the full record", func(t *testing.T) {
		g, err := db.GetGroupByName(ctx, "family")
		if err != nil {
			t.Fatalf("GetGroupByName failed: %v", err)
		}
		g.Name = "the family"
		g.HourOffset = -5
		g.Prefs.BottlesToShow = 8
		g.Members = []int64{2, 3}
		if err := db.UpdateGroup(ctx, g); err != nil {
			t.Fatalf("UpdateGroup failed: %v", err)
		}

		got, err := db.GetGroupByID(ctx, g.ID)
		if err != nil {
			t.Fatalf("GetGroupByID failed: %v", err)
		}
		if got.Name != "the family" || got.HourOffset != -5 || got.Prefs.BottlesToShow != 8 {
			t.Errorf("got %+v", got)
		}
		if len(got.Members) != 2 || got.HasMember(1) || !got.HasMember(2) || !got.HasMember(3) {
			t.Errorf("members: got %v, want [2 3]", got.Members)
		}
	})

	t.Run("UpdateGroupInfo leaves members alone", func(t *testing.T) {
		g, err := db.GetGroupByName(ctx, "the family")
		if err != nil {
			t.Fatalf("GetGroupByName failed: %v", err)
		}
		stale := *g
		stale.Members = nil
		stale.HourOffset = 4
		if err := db.UpdateGroupInfo(ctx, &stale); err != nil {
			t.Fatalf("UpdateGroupInfo failed: %v", err)
		}
		got, _ := db.GetGroupByID(ctx, g.ID)
		if got.HourOffset != 4 || len(got.Members) != 2 {
			t.Errorf("got offset %d members %v, want 4 and [2 3]", got.HourOffset, got.Members)
		}
		if err := db.UpdateGroupInfo(ctx, &models.Group{ID: 999, Name: "x"}); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing group: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateGroup on missing group", func(t *testing.T) {
		err := db.UpdateGroup(ctx, &models.Group{ID: 999, Name: "x", Prefs: models.DefaultDisplayPrefs()})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListGroups includes members", func(t *testing.T) {
		if _, err := db.CreateGroup(ctx, "second", 0, 0); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		all, err := db.ListGroups(ctx)
		if err != nil {
			t.Fatalf("ListGroups failed: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("expected 2 groups, got %d", len(all))
		}
		if all[0].ID > all[1].ID {
			t.Error("expected ascending id order")
		}
		if len(all[0].Members) != 2 || len(all[1].Members) != 0 {
			t.Errorf("members: got %v and %v", all[0].Members, all[1].Members)
		}
	})
}

func TestMembership(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a, _ := db.CreateGroup(ctx, "a-group", 10, 0)
	b, _ := db.CreateGroup(ctx, "b-group", 0, 0)

	if err := db.AddMember(ctx, b, 10); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := db.AddMember(ctx, b, 10); err != nil {
		t.Fatalf("AddMember should be idempotent: %v", err)
	}
	got, err := db.GroupsForUser(ctx, 10)
	if err != nil {
		t.Fatalf("GroupsForUser failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != a || got[1].ID != b {
		t.Fatalf("GroupsForUser: got %+v", got)
	}

	if err := db.MoveMember(ctx, 10, b); err != nil {
		t.Fatalf("MoveMember failed: %v", err)
	}
	got, _ = db.GroupsForUser(ctx, 10)
	if len(got) != 1 || got[0].ID != b {
		t.Fatalf("after move: got %+v", got)
	}

	if err := db.MoveMember(ctx, 10, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MoveMember to missing group: expected ErrNotFound, got %v", err)
	}

	if err := db.RemoveMember(ctx, b, 10); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	if err := db.RemoveMember(ctx, b, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second RemoveMember: expected ErrNotFound, got %v", err)
	}
}

func TestEntries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	gid, _ := db.CreateGroup(ctx, "g1", 1, 0)

	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)

	t.Run("RemoveMostRecentEntry on empty group", func(t *testing.T) {
		_, err := db.RemoveMostRecentEntry(ctx, gid)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("QueryEntries orders newest first", func(t *testing.T) {
		if _, err := db.AppendEntry(ctx, gid, 120, t1); err != nil {
			t.Fatalf("AppendEntry failed: %v", err)
		}
		if _, err := db.AppendEntry(ctx, gid, 90, t2); err != nil {
			t.Fatalf("AppendEntry failed: %v", err)
		}
		got, err := db.QueryEntries(ctx, gid, time.Time{}, 0)
		if err != nil {
			t.Fatalf("QueryEntries failed: %v", err)
		}
		if len(got) != 2 || got[0].AmountML != 90 || got[1].AmountML != 120 {
			t.Fatalf("got %+v", got)
		}
		if !got[0].At.Equal(t2) || got[0].At.Location() != time.UTC {
			t.Errorf("timestamp: got %v, want %v UTC", got[0].At, t2)
		}
	})

	t.Run("ties broken by insertion order", func(t *testing.T) {
		other, _ := db.CreateGroup(ctx, "ties", 0, 0)
		first, _ := db.AppendEntry(ctx, other, 10, t1)
		second, _ := db.AppendEntry(ctx, other, 20, t1)
		got, _ := db.QueryEntries(ctx, other, time.Time{}, 0)
		if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("since and limit filters", func(t *testing.T) {
		got, _ := db.QueryEntries(ctx, gid, t2, 0)
		if len(got) != 1 || got[0].AmountML != 90 {
			t.Errorf("since: got %+v", got)
		}
		got, _ = db.QueryEntries(ctx, gid, time.Time{}, 1)
		if len(got) != 1 || got[0].AmountML != 90 {
			t.Errorf("limit: got %+v", got)
		}
	})

	t.Run("RemoveMostRecentEntry removes the newest", func(t *testing.T) {
		e, err := db.RemoveMostRecentEntry(ctx, gid)
		if err != nil {
			t.Fatalf("RemoveMostRecentEntry failed: %v", err)
		}
		if e.AmountML != 90 {
			t.Errorf("removed %+v, want the 90ml entry", e)
		}
		got, _ := db.QueryEntries(ctx, gid, time.Time{}, 0)
		if len(got) != 1 || got[0].AmountML != 120 {
			t.Errorf("remaining: got %+v", got)
		}
	})

	t.Run("AppendEntry validates amount and group", func(t *testing.T) {
		if _, err := db.AppendEntry(ctx, gid, 0, t1); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("zero amount: expected ErrInvalidInput, got %v", err)
		}
		if _, err := db.AppendEntry(ctx, 999, 10, t1); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing group: expected ErrNotFound, got %v", err)
		}
	})
}

func TestPoops(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	gid, _ := db.CreateGroup(ctx, "g1", 1, 0)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := db.AppendPoop(ctx, gid, base.Add(time.Duration(i)*time.Hour), "n"); err != nil {
			t.Fatalf("AppendPoop failed: %v", err)
		}
	}
	got, err := db.QueryPoops(ctx, gid, time.Time{}, 2)
	if err != nil {
		t.Fatalf("QueryPoops failed: %v", err)
	}
	if len(got) != 2 || !got[0].At.Equal(base.Add(2*time.Hour)) || got[0].Note != "n" {
		t.Fatalf("got %+v", got)
	}
}

func TestPruneOlderThan(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	gid, _ := db.CreateGroup(ctx, "g1", 1, 0)

	cutoff := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	db.AppendEntry(ctx, gid, 10, cutoff.Add(-time.Second))
	db.AppendEntry(ctx, gid, 20, cutoff)
	db.AppendEntry(ctx, gid, 30, cutoff.Add(time.Hour))
	db.AppendPoop(ctx, gid, cutoff.Add(-time.Hour), "")
	db.AppendPoop(ctx, gid, cutoff, "")

	entries, poops, err := db.PruneOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("PruneOlderThan failed: %v", err)
	}
	if entries != 1 || poops != 1 {
		t.Errorf("deleted: got %d entries, %d poops, want 1 and 1", entries, poops)
	}
	left, _ := db.QueryEntries(ctx, gid, time.Time{}, 0)
	if len(left) != 2 || left[1].AmountML != 20 {
		t.Errorf("boundary entry must survive, got %+v", left)
	}
}

func TestMessageBindings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	gid, _ := db.CreateGroup(ctx, "g1", 1, 0)

	if _, found, err := db.GetMessageBinding(ctx, gid, 1); err != nil || found {
		t.Fatalf("expected no binding, got found=%v err=%v", found, err)
	}
	if err := db.SetMessageBinding(ctx, gid, 1, 100, 555); err != nil {
		t.Fatalf("SetMessageBinding failed: %v", err)
	}
	if err := db.SetMessageBinding(ctx, gid, 1, 101, 555); err != nil {
		t.Fatalf("SetMessageBinding overwrite failed: %v", err)
	}
	b, found, err := db.GetMessageBinding(ctx, gid, 1)
	if err != nil || !found {
		t.Fatalf("expected binding, got found=%v err=%v", found, err)
	}
	if b.MessageID != 101 || b.ChatID != 555 {
		t.Errorf("got %+v", b)
	}
	if err := db.ClearMessageBinding(ctx, gid, 1); err != nil {
		t.Fatalf("ClearMessageBinding failed: %v", err)
	}
	if _, found, _ := db.GetMessageBinding(ctx, gid, 1); found {
		t.Error("binding should be cleared")
	}
}

func TestBackup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	db.CreateGroup(ctx, "g1", 1, 0)
	dir := t.TempDir()

	base := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	var last string
	for i := 0; i < BackupsToKeep+2; i++ {
		path, err := db.Backup(ctx, dir, base.AddDate(0, 0, i))
		if err != nil {
			t.Fatalf("Backup %d failed: %v", i, err)
		}
		last = path
	}

	paths, err := ListBackups(dir)
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	if len(paths) != BackupsToKeep {
		t.Fatalf("expected %d backups, got %d", BackupsToKeep, len(paths))
	}
	if paths[0] != last {
		t.Errorf("newest first: got %s, want %s", paths[0], last)
	}
	if _, err := os.Stat(filepath.Join(dir, "backup-20240101T030000Z.db")); !os.IsNotExist(err) {
		t.Error("oldest backup should have been pruned")
	}

	restored, err := New(last)
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer restored.Close()
	if _, err := restored.GetGroupByName(ctx, "g1"); err != nil {
		t.Errorf("backup missing data: %v", err)
	}
}

func TestBackupIgnoresQueryTimeout(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "test.db"), WithQueryTimeout(time.Nanosecond))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer db.Close()

	if _, err := db.Backup(context.Background(), t.TempDir(), time.Now()); err != nil {
		t.Fatalf("backup should run under its own timeout: %v", err)
	}
}
