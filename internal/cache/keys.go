package cache

import (
	"strconv"
	"strings"
)

// Scope names. User scopes embed the user id right after the scope name.
const (
	ScopeAllGroups   = "all-groups"
	ScopeUserView    = "user-view"
	ScopeUserStats   = "user-stats"
	ScopeUserGroupID = "user-group-id"
)

func AllGroupsKey() string { return ScopeAllGroups }

func UserViewKey(userID int64) string {
	return ScopeUserView + ":" + strconv.FormatInt(userID, 10)
}

func UserStatsKey(userID int64, days int) string {
	return ScopeUserStats + ":" + strconv.FormatInt(userID, 10) + ":" + strconv.Itoa(days)
}

func UserGroupIDKey(userID int64) string {
	return ScopeUserGroupID + ":" + strconv.FormatInt(userID, 10)
}

// scopeOf returns the scope name of key.
func scopeOf(key string) string {
	scope, _, _ := strings.Cut(key, ":")
	return scope
}

// belongsToUser reports whether key is a user-* scope embedding userID.
func belongsToUser(key, userID string) bool {
	scope, rest, ok := strings.Cut(key, ":")
	if !ok || !strings.HasPrefix(scope, "user-") {
		return false
	}
	id, _, _ := strings.Cut(rest, ":")
	return id == userID
}
