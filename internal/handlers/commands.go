package handlers

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"babylog/internal/groups"
	"babylog/internal/messages"
	"babylog/internal/models"
	"babylog/internal/utils"
)

var timeRx = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

const defaultStatsDays = 7

var usage = map[string]string{
	"bottle":  "Usage: /bottle [ml] [HH:MM], 1-1000 ml",
	"poop":    "Usage: /poop [note] or /poop HH:MM [note]",
	"stats":   "Usage: /stats [days], 1-365",
	"create":  "Usage: /create <name>, 2-50 characters",
	"join":    "Usage: /join <group name or id>",
	"leave":   "You can only leave a shared group.",
	"rename":  "Usage: /rename <name>, 2-50 characters",
	"offset":  "Usage: /offset <hours>, -12..14",
	"show":    "Usage: /show <bottles 1-10> <diapers 1-5>",
	"default": "Usage: /default <ml>, 1-1000",
}

const helpText = `/bottle [ml] [HH:MM] log a feeding
/poop [HH:MM] [note] log a diaper
/undo remove the last feeding
/stats [days] daily totals
/create <name> start a shared group
/join <name|id> join a shared group
/leave go back to your personal log
/rename <name> rename your group
/offset <hours> local time offset from UTC
/show <bottles> <diapers> how many to list
/default <ml> default bottle size`

func (h *Handler) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	s, err := h.begin(ctx, msg.From.ID, msg.Chat.ID)
	if err != nil {
		h.Logger.Error("resolve group failed", "user_id", msg.From.ID, "error", err)
		h.send(msg.Chat.ID, messages.TryAgainLater)
		return
	}
	h.handleCommand(ctx, s, msg.Command(), strings.Fields(msg.CommandArguments()))
}

func (h *Handler) handleCommand(ctx context.Context, s session, cmd string, args []string) {
	switch cmd {
	case "start":
		h.refreshView(ctx, s)
	case "help":
		h.send(s.chatID, helpText)
	case "bottle":
		h.handleBottle(ctx, s, args)
	case "poop":
		h.handlePoop(ctx, s, args)
	case "undo":
		h.handleUndo(ctx, s)
	case "stats":
		h.handleStats(ctx, s, args)
	case "create":
		h.handleCreate(ctx, s, args)
	case "join":
		h.handleJoin(ctx, s, args)
	case "leave":
		h.handleLeave(ctx, s)
	case "rename":
		h.handleRename(ctx, s, args)
	case "offset", "show", "default":
		h.handleSettings(ctx, s, cmd, args)
	default:
		h.send(s.chatID, helpText)
	}
}

func (h *Handler) group(ctx context.Context, s session) (models.UserView, bool) {
	view, found, err := h.Groups.GetUserView(ctx, s.userID)
	if err != nil {
		h.replyError(s, "view", err, "")
		return models.UserView{}, false
	}
	if !found {
		h.send(s.chatID, messages.NoGroup)
		return models.UserView{}, false
	}
	return view, true
}

func (h *Handler) handleBottle(ctx context.Context, s session, args []string) {
	view, ok := h.group(ctx, s)
	if !ok {
		return
	}
	amount := view.Prefs.DefaultBottleAmount
	at := h.Clock.Now().UTC()
	for _, a := range args {
		if t, ok := parseClock(a, view.HourOffset, h.Clock.Now()); ok {
			at = t
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(a), "ml"))
		if err != nil {
			h.send(s.chatID, usage["bottle"])
			return
		}
		amount = n
	}
	if _, err := h.Groups.AppendEntry(ctx, s.groupID, amount, at); err != nil {
		h.replyError(s, "bottle", err, messages.GroupNotFound)
		return
	}
	h.refreshView(ctx, s)
}

func (h *Handler) handlePoop(ctx context.Context, s session, args []string) {
	view, ok := h.group(ctx, s)
	if !ok {
		return
	}
	at := h.Clock.Now().UTC()
	if len(args) > 0 {
		if t, ok := parseClock(args[0], view.HourOffset, h.Clock.Now()); ok {
			at = t
			args = args[1:]
		}
	}
	if _, err := h.Groups.AppendPoop(ctx, s.groupID, at, strings.Join(args, " ")); err != nil {
		h.replyError(s, "poop", err, messages.GroupNotFound)
		return
	}
	h.refreshView(ctx, s)
}

func (h *Handler) handleUndo(ctx context.Context, s session) {
	if _, err := h.Groups.RemoveMostRecentEntry(ctx, s.groupID); err != nil {
		h.replyError(s, "undo", err, messages.NothingToUndo)
		return
	}
	h.refreshView(ctx, s)
}

func (h *Handler) handleStats(ctx context.Context, s session, args []string) {
	days := defaultStatsDays
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			h.send(s.chatID, usage["stats"])
			return
		}
		days = n
	}
	st, found, err := h.Groups.GetUserStats(ctx, s.userID, days)
	if err != nil {
		h.replyError(s, "stats", err, "")
		return
	}
	if !found {
		h.send(s.chatID, messages.NoGroup)
		return
	}
	h.send(s.chatID, messages.Stats(st))
}

func (h *Handler) handleCreate(ctx context.Context, s session, args []string) {
	id, err := h.Groups.CreateGroup(ctx, s.userID, strings.Join(args, " "))
	if err != nil {
		h.replyError(s, "create", err, "")
		return
	}
	s.groupID = id
	h.refreshView(ctx, s)
}

func (h *Handler) handleJoin(ctx context.Context, s session, args []string) {
	if len(args) == 0 {
		h.send(s.chatID, usage["join"])
		return
	}
	g, err := h.Groups.JoinGroup(ctx, s.userID, strings.Join(args, " "))
	if err != nil {
		h.replyError(s, "join", err, messages.GroupNotFound)
		return
	}
	s.groupID = g.ID
	h.refreshView(ctx, s)
}

func (h *Handler) handleLeave(ctx context.Context, s session) {
	id, err := h.Groups.LeaveGroup(ctx, s.userID, s.groupID)
	if err != nil {
		h.replyError(s, "leave", err, messages.GroupNotFound)
		return
	}
	s.groupID = id
	h.refreshView(ctx, s)
}

func (h *Handler) handleRename(ctx context.Context, s session, args []string) {
	if _, err := h.Groups.RenameGroup(ctx, s.groupID, strings.Join(args, " ")); err != nil {
		h.replyError(s, "rename", err, messages.GroupNotFound)
		return
	}
	h.refreshView(ctx, s)
}

func (h *Handler) handleSettings(ctx context.Context, s session, cmd string, args []string) {
	var (
		st   groups.Settings
		nums []int
	)
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			h.send(s.chatID, usage[cmd])
			return
		}
		nums = append(nums, n)
	}
	switch {
	case cmd == "offset" && len(nums) == 1:
		st.HourOffset = utils.Ptr(nums[0])
	case cmd == "show" && len(nums) == 2:
		st.BottlesToShow, st.PoopsToShow = utils.Ptr(nums[0]), utils.Ptr(nums[1])
	case cmd == "default" && len(nums) == 1:
		st.DefaultBottleAmount = utils.Ptr(nums[0])
	default:
		h.send(s.chatID, usage[cmd])
		return
	}
	if _, err := h.Groups.UpdateGroupSettings(ctx, s.groupID, st); err != nil {
		h.replyError(s, cmd, err, messages.GroupNotFound)
		return
	}
	h.refreshView(ctx, s)
}

// parseClock reads HH:MM in the group's local time and returns the most
// recent UTC instant at or before now with that wall clock.
func parseClock(s string, hourOffset int, now time.Time) (time.Time, bool) {
	m := timeRx.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if hh > 23 || mm > 59 {
		return time.Time{}, false
	}
	local := models.LocalTime(now, hourOffset)
	t := time.Date(local.Year(), local.Month(), local.Day(), hh, mm, 0, 0, time.UTC)
	if t.After(local) {
		t = t.AddDate(0, 0, -1)
	}
	return t.Add(-time.Duration(hourOffset) * time.Hour), true
}
