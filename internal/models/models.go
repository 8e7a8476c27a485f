package models

import "time"

// PersonalGroupPrefix marks groups auto-created for a single user.
const PersonalGroupPrefix = "personal-"

// DisplayPrefs are per-group presentation settings.
type DisplayPrefs struct {
	BottlesToShow       int `db:"bottles_to_show"       json:"bottles_to_show"`
	PoopsToShow         int `db:"poops_to_show"         json:"poops_to_show"`
	DefaultBottleAmount int `db:"default_bottle_amount" json:"default_bottle_amount"`
}

// DefaultDisplayPrefs are applied to newly created groups.
func DefaultDisplayPrefs() DisplayPrefs {
	return DisplayPrefs{
		BottlesToShow:       5,
		PoopsToShow:         3,
		DefaultBottleAmount: 120,
	}
}

// Group is a shared ownership unit for users and their logged events.
type Group struct {
	ID         int64        `db:"id"          json:"id"`
	Name       string       `db:"name"        json:"name"`
	Members    []int64      `db:"-"           json:"members"`
	HourOffset int          `db:"hour_offset" json:"hour_offset"` // UTC -> local, display only
	Prefs      DisplayPrefs `db:"-"           json:"prefs"`
	CreatedAt  int64        `db:"created_at"  json:"created_at"`
}

// IsPersonal reports whether the group follows the personal naming convention.
func (g *Group) IsPersonal() bool {
	return IsPersonalName(g.Name)
}

// HasMember reports whether userID is in the membership list.
func (g *Group) HasMember(userID int64) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Local converts a stored UTC timestamp to the group's local time.
func (g *Group) Local(t time.Time) time.Time {
	return LocalTime(t, g.HourOffset)
}

// LocalTime shifts a UTC timestamp by hourOffset for display. The result
// is still labelled UTC and must never be persisted.
func LocalTime(t time.Time, hourOffset int) time.Time {
	return t.UTC().Add(time.Duration(hourOffset) * time.Hour)
}

// Entry is one bottle feeding.
type Entry struct {
	ID       int64     `db:"id"        json:"id"`
	GroupID  int64     `db:"group_id"  json:"group_id"`
	AmountML int       `db:"amount_ml" json:"amount_ml"`
	At       time.Time `db:"ts"        json:"ts"` // UTC
}

// PoopEvent is one diaper change.
type PoopEvent struct {
	ID      int64     `db:"id"       json:"id"`
	GroupID int64     `db:"group_id" json:"group_id"`
	At      time.Time `db:"ts"       json:"ts"` // UTC
	Note    string    `db:"note"     json:"note"`
}

// MessageBinding points at the live UI message for a (group, user) pair.
type MessageBinding struct {
	GroupID   int64 `db:"group_id"   json:"group_id"`
	UserID    int64 `db:"user_id"    json:"user_id"`
	MessageID int   `db:"message_id" json:"message_id"`
	ChatID    int64 `db:"chat_id"    json:"chat_id"`
	UpdatedAt int64 `db:"updated_at" json:"updated_at"`
}

// UserView is what a user sees for their group.
type UserView struct {
	GroupID       int64
	Name          string
	Members       []int64
	HourOffset    int
	RecentEntries []Entry     // newest first, at most 10
	RecentPoops   []PoopEvent // newest first, at most 5
	Prefs         DisplayPrefs
}

// UserStats holds the events of the last Days days.
type UserStats struct {
	GroupID    int64
	HourOffset int
	Days       int
	Since      time.Time
	Entries    []Entry
	PoopEvents []PoopEvent
}
