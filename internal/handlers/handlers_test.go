package handlers

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"babylog/internal/bindings"
	"babylog/internal/cache"
	"babylog/internal/groups"
	"babylog/internal/maintenance"
	"babylog/internal/messages"
	"babylog/internal/storage"
)

type fakeBot struct {
	nextID   int
	sent     []tgbotapi.MessageConfig
	edits    []tgbotapi.EditMessageTextConfig
	editErr  error
	callback int
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, fmt.Errorf("unexpected chattable %T", c)
	}
	b.sent = append(b.sent, msg)
	b.nextID++
	return tgbotapi.Message{MessageID: b.nextID, Chat: &tgbotapi.Chat{ID: msg.ChatID}}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	switch v := c.(type) {
	case tgbotapi.EditMessageTextConfig:
		b.edits = append(b.edits, v)
		return &tgbotapi.APIResponse{Ok: b.editErr == nil}, b.editErr
	case tgbotapi.CallbackConfig:
		b.callback++
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) lastText() string {
	if len(b.sent) == 0 {
		return ""
	}
	return b.sent[len(b.sent)-1].Text
}

type noopSweeper struct{}

func (noopSweeper) RunDailyMaintenance(context.Context) (maintenance.Result, bool, error) {
	return maintenance.Result{}, false, nil
}

func newTestHandler(t *testing.T) (*Handler, *fakeBot, *bindings.Tracker) {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "babylog.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bot := &fakeBot{}
	tracker := bindings.New(db, nil)
	svc := groups.NewService(db, cache.New())
	return NewHandler(bot, svc, tracker, noopSweeper{}, nil), bot, tracker
}

func command(userID, chatID int64, text string) *tgbotapi.Message {
	cmd := strings.SplitN(text, " ", 2)[0]
	return &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: userID},
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func TestLiveViewLifecycle(t *testing.T) {
	h, bot, tracker := newTestHandler(t)
	ctx := context.Background()

	h.HandleMessage(ctx, command(1, 100, "/start"))
	if len(bot.sent) != 1 || bot.sent[0].ReplyMarkup == nil {
		t.Fatalf("start should send one view with keyboard, got %+v", bot.sent)
	}
	gid, _, _ := h.Groups.ResolveGroupForUser(ctx, 1)
	b, found, _ := tracker.Get(ctx, gid, 1)
	if !found || b.MessageID != 1 || b.ChatID != 100 {
		t.Fatalf("binding: got %+v found=%v", b, found)
	}

	h.HandleMessage(ctx, command(1, 100, "/bottle 90"))
	if len(bot.sent) != 1 || len(bot.edits) != 1 {
		t.Fatalf("bottle should edit in place: sent=%d edits=%d", len(bot.sent), len(bot.edits))
	}
	if edit := bot.edits[0]; edit.MessageID != 1 || !strings.Contains(edit.Text, "90 ml") {
		t.Errorf("edit: got message %d text %q", edit.MessageID, edit.Text)
	}

	bot.editErr = &tgbotapi.Error{Code: 400, Message: "Bad Request: message to edit not found"}
	h.HandleMessage(ctx, command(1, 100, "/undo"))
	if len(bot.sent) != 2 {
		t.Fatalf("gone message should be replaced, sent=%d", len(bot.sent))
	}
	b, _, _ = tracker.Get(ctx, gid, 1)
	if b.MessageID != 2 {
		t.Errorf("binding should point at the new message, got %d", b.MessageID)
	}
	if strings.Contains(bot.lastText(), "90 ml") {
		t.Errorf("undone entry still rendered:\n%s", bot.lastText())
	}
}

func TestCommandReplies(t *testing.T) {
	h, bot, _ := newTestHandler(t)
	ctx := context.Background()
	h.HandleMessage(ctx, command(1, 100, "/start"))

	tests := []struct {
		text string
		want string
	}{
		{"/undo", messages.NothingToUndo},
		{"/bottle lots", usage["bottle"]},
		{"/bottle 5000", usage["bottle"]},
		{"/stats x", usage["stats"]},
		{"/stats 0", usage["stats"]},
		{"/join nowhere", messages.GroupNotFound},
		{"/leave", usage["leave"]},
		{"/show 3", usage["show"]},
		{"/offset 20", usage["offset"]},
		{"/stats", "Last 7 days"},
		{"/help", helpText},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			h.HandleMessage(ctx, command(1, 100, tt.text))
			if got := bot.lastText(); !strings.Contains(got, tt.want) {
				t.Errorf("reply: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSharedGroupCommands(t *testing.T) {
	h, bot, _ := newTestHandler(t)
	ctx := context.Background()

	h.HandleMessage(ctx, command(1, 100, "/create night shift"))
	h.HandleMessage(ctx, command(2, 200, "/join night shift"))
	h.HandleMessage(ctx, command(3, 300, "/create night shift"))
	if bot.lastText() != messages.NameTaken {
		t.Errorf("duplicate create: got %q", bot.lastText())
	}

	id1, _, _ := h.Groups.ResolveGroupForUser(ctx, 1)
	id2, _, _ := h.Groups.ResolveGroupForUser(ctx, 2)
	if id1 != id2 {
		t.Fatalf("users resolve to %d and %d, want the same group", id1, id2)
	}
	v, _, _ := h.Groups.GetUserView(ctx, 2)
	if v.Name != "night shift" || len(v.Members) != 2 {
		t.Errorf("view: got %+v", v)
	}
}

func TestHandleCallback(t *testing.T) {
	h, bot, _ := newTestHandler(t)
	ctx := context.Background()

	h.HandleCallback(ctx, &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 1},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		Data:    cbBottle,
	})
	if bot.callback != 1 {
		t.Errorf("callback answered %d times, want 1", bot.callback)
	}
	v, found, err := h.Groups.GetUserView(ctx, 1)
	if err != nil || !found {
		t.Fatalf("GetUserView: found=%v err=%v", found, err)
	}
	if len(v.RecentEntries) != 1 || v.RecentEntries[0].AmountML != v.Prefs.DefaultBottleAmount {
		t.Errorf("bottle button should log the default amount, got %+v", v.RecentEntries)
	}
}

func TestClassifyEditError(t *testing.T) {
	other := errors.New("timeout")
	tests := []struct {
		name     string
		err      error
		wantNil  bool
		wantGone bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "not modified", err: &tgbotapi.Error{Code: 400, Message: "Bad Request: message is not modified"}, wantNil: true},
		{name: "not found", err: &tgbotapi.Error{Code: 400, Message: "Bad Request: message to edit not found"}, wantGone: true},
		{name: "cannot edit", err: &tgbotapi.Error{Code: 400, Message: "Bad Request: message can't be edited"}, wantGone: true},
		{name: "rate limited", err: &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}},
		{name: "network", err: other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyEditError(tt.err)
			if (got == nil) != tt.wantNil {
				t.Fatalf("got %v, wantNil %v", got, tt.wantNil)
			}
			if errors.Is(got, bindings.ErrMessageGone) != tt.wantGone {
				t.Errorf("gone: got %v, want %v", errors.Is(got, bindings.ErrMessageGone), tt.wantGone)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) // 12:00 at +2

	tests := []struct {
		in     string
		offset int
		want   time.Time
		ok     bool
	}{
		{"11:30", 2, time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC), true},
		{"12:00", 2, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), true},
		{"13:00", 2, time.Date(2024, 5, 31, 11, 0, 0, 0, time.UTC), true},
		{"9:05", 0, time.Date(2024, 6, 1, 9, 5, 0, 0, time.UTC), true},
		{"25:00", 0, time.Time{}, false},
		{"12:60", 0, time.Time{}, false},
		{"120", 0, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseClock(tt.in, tt.offset, now)
			if ok != tt.ok || !got.Equal(tt.want) {
				t.Errorf("parseClock(%q, %d) = %v, %v; want %v, %v", tt.in, tt.offset, got, ok, tt.want, tt.ok)
			}
		})
	}
}

// blockingSweeper holds every sweep until release is closed.
type blockingSweeper struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSweeper) RunDailyMaintenance(context.Context) (maintenance.Result, bool, error) {
	b.started <- struct{}{}
	<-b.release
	return maintenance.Result{}, true, nil
}

func TestMaintenanceDoesNotBlockRequests(t *testing.T) {
	h, bot, _ := newTestHandler(t)
	sw := &blockingSweeper{started: make(chan struct{}, 1), release: make(chan struct{})}
	h.Sweeper = sw
	defer close(sw.release)

	h.HandleMessage(context.Background(), command(1, 100, "/start"))
	if len(bot.sent) != 1 {
		t.Fatalf("view not sent while maintenance was running, sent=%d", len(bot.sent))
	}
	select {
	case <-sw.started:
	case <-time.After(5 * time.Second):
		t.Fatal("maintenance was never triggered")
	}
}
