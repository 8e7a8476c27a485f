package models

import (
	"strconv"
	"strings"
)

// PersonalGroupName returns the personal group name for userID.
func PersonalGroupName(userID int64) string {
	return PersonalGroupPrefix + strconv.FormatInt(userID, 10)
}

// IsPersonalName reports whether name follows the personal naming convention.
func IsPersonalName(name string) bool {
	return strings.HasPrefix(name, PersonalGroupPrefix)
}
