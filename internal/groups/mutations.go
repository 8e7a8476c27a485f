package groups

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"babylog/internal/models"
)

// Settings is a set of optional changes applied by UpdateGroupSettings.
type Settings struct {
	HourOffset          *int
	BottlesToShow       *int
	PoopsToShow         *int
	DefaultBottleAmount *int
}

func (st Settings) apply(g *models.Group) {
	if st.HourOffset != nil {
		g.HourOffset = *st.HourOffset
	}
	if st.BottlesToShow != nil {
		g.Prefs.BottlesToShow = *st.BottlesToShow
	}
	if st.PoopsToShow != nil {
		g.Prefs.PoopsToShow = *st.PoopsToShow
	}
	if st.DefaultBottleAmount != nil {
		g.Prefs.DefaultBottleAmount = *st.DefaultBottleAmount
	}
}

// ---------- events ----------------------------------------------------------

func (s *Service) AppendEntry(ctx context.Context, groupID int64, amountML int, at time.Time) (models.Entry, error) {
	if err := validateAmount(amountML); err != nil {
		return models.Entry{}, err
	}
	if err := validateTime(at); err != nil {
		return models.Entry{}, err
	}
	e, err := retry(ctx, s, "append entry", func(ctx context.Context) (models.Entry, error) {
		return s.store.AppendEntry(ctx, groupID, amountML, at.UTC())
	})
	if err != nil {
		return models.Entry{}, fmt.Errorf("append entry to group %d: %w", groupID, err)
	}
	s.invalidateGroup(ctx, groupID)
	return e, nil
}

// RemoveMostRecentEntry undoes the newest entry. ErrNotFound when the group
// has none; state is left unchanged in that case.
func (s *Service) RemoveMostRecentEntry(ctx context.Context, groupID int64) (models.Entry, error) {
	e, err := retry(ctx, s, "remove entry", func(ctx context.Context) (models.Entry, error) {
		return s.store.RemoveMostRecentEntry(ctx, groupID)
	})
	if err != nil {
		return models.Entry{}, fmt.Errorf("remove entry from group %d: %w", groupID, err)
	}
	s.invalidateGroup(ctx, groupID)
	return e, nil
}

func (s *Service) AppendPoop(ctx context.Context, groupID int64, at time.Time, note string) (models.PoopEvent, error) {
	if err := validateTime(at); err != nil {
		return models.PoopEvent{}, err
	}
	if err := validateNote(note); err != nil {
		return models.PoopEvent{}, err
	}
	p, err := retry(ctx, s, "append poop", func(ctx context.Context) (models.PoopEvent, error) {
		return s.store.AppendPoop(ctx, groupID, at.UTC(), note)
	})
	if err != nil {
		return models.PoopEvent{}, fmt.Errorf("append poop to group %d: %w", groupID, err)
	}
	s.invalidateGroup(ctx, groupID)
	return p, nil
}

// invalidateGroup drops the user scopes of every member of groupID, or the
// whole cache if the member list cannot be read.
func (s *Service) invalidateGroup(ctx context.Context, groupID int64) {
	g, err := s.store.GetGroupByID(ctx, groupID)
	if err != nil {
		s.logger.Warn("member lookup failed, invalidating all", "group_id", groupID, "error", err)
		s.cache.InvalidateAll()
		return
	}
	for _, uid := range g.Members {
		s.cache.InvalidateUser(uid)
	}
}

// ---------- group settings --------------------------------------------------

// UpdateGroupSettings applies st and writes the group record back. Members
// are not part of the write.
func (s *Service) UpdateGroupSettings(ctx context.Context, groupID int64, st Settings) (*models.Group, error) {
	return s.modifyGroup(ctx, groupID, "update settings", func(g *models.Group) error {
		st.apply(g)
		return validateGroup(g)
	})
}

// RenameGroup renames the group. ErrAlreadyExists if the name is taken.
func (s *Service) RenameGroup(ctx context.Context, groupID int64, newName string) (*models.Group, error) {
	if err := validateName(newName); err != nil {
		return nil, err
	}
	return s.modifyGroup(ctx, groupID, "rename", func(g *models.Group) error {
		g.Name = newName
		return nil
	})
}

func (s *Service) modifyGroup(ctx context.Context, groupID int64, op string, change func(*models.Group) error) (*models.Group, error) {
	g, err := retry(ctx, s, op, func(ctx context.Context) (*models.Group, error) {
		return s.store.GetGroupByID(ctx, groupID)
	})
	if err != nil {
		return nil, fmt.Errorf("%s group %d: %w", op, groupID, err)
	}
	if err := change(g); err != nil {
		return nil, err
	}
	if err := retryErr(ctx, s, op, func(ctx context.Context) error {
		return s.store.UpdateGroupInfo(ctx, g)
	}); err != nil {
		return nil, fmt.Errorf("%s group %d: %w", op, groupID, err)
	}
	s.cache.InvalidateAll()
	s.logger.Info("group updated", "op", op, "group_id", groupID)
	return g, nil
}

// ---------- membership ------------------------------------------------------

// CreateGroup creates a shared group named name and moves userID into it.
func (s *Service) CreateGroup(ctx context.Context, userID int64, name string) (int64, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	id, err := retry(ctx, s, "create group", func(ctx context.Context) (int64, error) {
		return s.store.CreateGroup(ctx, name, 0, s.defaultHourOffset)
	})
	if err != nil {
		return 0, fmt.Errorf("create group %q: %w", name, err)
	}
	if err := s.moveMember(ctx, userID, id); err != nil {
		return 0, err
	}
	s.logger.Info("group created", "group_id", id, "user_id", userID)
	return id, nil
}

// JoinGroup moves userID into the shared group identified by name or
// numeric id. Personal groups cannot be joined.
func (s *Service) JoinGroup(ctx context.Context, userID int64, groupIDOrName string) (*models.Group, error) {
	g, err := s.lookupGroup(ctx, groupIDOrName)
	if err != nil {
		return nil, fmt.Errorf("join group %q: %w", groupIDOrName, err)
	}
	if g.IsPersonal() {
		return nil, fmt.Errorf("join personal group %d: %w", g.ID, ErrInvalidInput)
	}
	if err := s.moveMember(ctx, userID, g.ID); err != nil {
		return nil, err
	}
	if !g.HasMember(userID) {
		g.Members = append(g.Members, userID)
	}
	s.logger.Info("user joined group", "group_id", g.ID, "user_id", userID)
	return g, nil
}

func (s *Service) lookupGroup(ctx context.Context, groupIDOrName string) (*models.Group, error) {
	g, err := retry(ctx, s, "lookup group", func(ctx context.Context) (*models.Group, error) {
		return s.store.GetGroupByName(ctx, groupIDOrName)
	})
	if !errors.Is(err, ErrNotFound) {
		return g, err
	}
	id, perr := strconv.ParseInt(groupIDOrName, 10, 64)
	if perr != nil {
		return nil, err
	}
	return retry(ctx, s, "lookup group", func(ctx context.Context) (*models.Group, error) {
		return s.store.GetGroupByID(ctx, id)
	})
}

func (s *Service) moveMember(ctx context.Context, userID, groupID int64) error {
	if err := retryErr(ctx, s, "move member", func(ctx context.Context) error {
		return s.store.MoveMember(ctx, userID, groupID)
	}); err != nil {
		return fmt.Errorf("move user %d to group %d: %w", userID, groupID, err)
	}
	s.cache.InvalidateAll()
	return nil
}

// LeaveGroup removes userID from a shared group and returns them to their
// personal group, whose id is returned.
func (s *Service) LeaveGroup(ctx context.Context, userID, groupID int64) (int64, error) {
	g, err := retry(ctx, s, "leave group", func(ctx context.Context) (*models.Group, error) {
		return s.store.GetGroupByID(ctx, groupID)
	})
	if err != nil {
		return 0, fmt.Errorf("leave group %d: %w", groupID, err)
	}
	if g.IsPersonal() {
		return 0, fmt.Errorf("cannot leave a personal group: %w", ErrInvalidInput)
	}
	if !g.HasMember(userID) {
		return 0, fmt.Errorf("user %d not in group %d: %w", userID, groupID, ErrNotFound)
	}
	if err := retryErr(ctx, s, "leave group", func(ctx context.Context) error {
		return s.store.RemoveMember(ctx, groupID, userID)
	}); err != nil {
		return 0, fmt.Errorf("leave group %d: %w", groupID, err)
	}
	s.cache.InvalidateAll()
	s.logger.Info("user left group", "group_id", groupID, "user_id", userID)
	return s.EnsurePersonalGroup(ctx, userID)
}
