package groups

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"babylog/internal/models"
)

const (
	MinNameLen   = 2
	MaxNameLen   = 50
	MaxAmountML  = 1000
	MaxNoteLen   = 500
	MinOffset    = -12
	MaxOffset    = 14
	MaxBottles   = ViewEntries
	MaxPoopsShow = ViewPoops
)

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < MinNameLen || n > MaxNameLen {
		return fmt.Errorf("group name must be %d-%d characters: %w", MinNameLen, MaxNameLen, ErrInvalidInput)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("group name has surrounding spaces: %w", ErrInvalidInput)
	}
	if models.IsPersonalName(name) {
		return fmt.Errorf("group name %q is reserved: %w", name, ErrInvalidInput)
	}
	return nil
}

func validateAmount(ml int) error {
	if ml < 1 || ml > MaxAmountML {
		return fmt.Errorf("amount %d ml out of range 1-%d: %w", ml, MaxAmountML, ErrInvalidInput)
	}
	return nil
}

func validateTime(at time.Time) error {
	if at.IsZero() {
		return fmt.Errorf("missing timestamp: %w", ErrInvalidInput)
	}
	return nil
}

func validateNote(note string) error {
	if utf8.RuneCountInString(note) > MaxNoteLen {
		return fmt.Errorf("note longer than %d characters: %w", MaxNoteLen, ErrInvalidInput)
	}
	return nil
}

func validateGroup(g *models.Group) error {
	if g.HourOffset < MinOffset || g.HourOffset > MaxOffset {
		return fmt.Errorf("hour offset %d out of range %d..%d: %w", g.HourOffset, MinOffset, MaxOffset, ErrInvalidInput)
	}
	if g.Prefs.BottlesToShow < 1 || g.Prefs.BottlesToShow > MaxBottles {
		return fmt.Errorf("bottles to show %d out of range 1..%d: %w", g.Prefs.BottlesToShow, MaxBottles, ErrInvalidInput)
	}
	if g.Prefs.PoopsToShow < 1 || g.Prefs.PoopsToShow > MaxPoopsShow {
		return fmt.Errorf("poops to show %d out of range 1..%d: %w", g.Prefs.PoopsToShow, MaxPoopsShow, ErrInvalidInput)
	}
	return validateAmount(g.Prefs.DefaultBottleAmount)
}
