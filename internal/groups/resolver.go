package groups

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"babylog/internal/cache"
	"babylog/internal/models"
)

type resolution struct {
	id    int64
	found bool
}

// ResolveGroupForUser returns the group userID belongs to. Shared groups
// win over personal ones; within a class the lowest id wins. found is false
// when the user has no group. Resolution never creates anything.
func (s *Service) ResolveGroupForUser(ctx context.Context, userID int64) (id int64, found bool, err error) {
	key := cache.UserGroupIDKey(userID)
	if v, ok := s.cache.Get(key); ok {
		r := v.(resolution)
		return r.id, r.found, nil
	}

	gen := s.cache.Generation()
	candidates, err := retry(ctx, s, "resolve group", func(ctx context.Context) ([]models.Group, error) {
		return s.store.GroupsForUser(ctx, userID)
	})
	if err != nil {
		return 0, false, fmt.Errorf("resolve group for user %d: %w", userID, err)
	}

	g, found := pickGroup(candidates)
	if len(candidates) > 1 {
		s.logger.Warn("invariant violation: user in several groups",
			"user_id", userID, "groups", len(candidates), "chosen", g.ID)
	}
	s.cache.SetIfUnchanged(key, resolution{id: g.ID, found: found}, gen)
	return g.ID, found, nil
}

// pickGroup expects candidates in ascending id order.
func pickGroup(candidates []models.Group) (models.Group, bool) {
	for _, g := range candidates {
		if !g.IsPersonal() {
			return g, true
		}
	}
	if len(candidates) > 0 {
		return candidates[0], true
	}
	return models.Group{}, false
}

// EnsurePersonalGroup returns the personal group of userID, creating it if
// needed. The user is added to it only when they belong to no other group.
// Concurrent calls for one user create at most one group.
func (s *Service) EnsurePersonalGroup(ctx context.Context, userID int64) (int64, error) {
	v, err, _ := s.flight.Do("personal:"+strconv.FormatInt(userID, 10), func() (any, error) {
		// Shared with other callers; one caller going away must not fail them.
		return s.ensurePersonalGroup(context.WithoutCancel(ctx), userID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (s *Service) ensurePersonalGroup(ctx context.Context, userID int64) (int64, error) {
	name := models.PersonalGroupName(userID)

	memberships, err := retry(ctx, s, "ensure personal group", func(ctx context.Context) ([]models.Group, error) {
		return s.store.GroupsForUser(ctx, userID)
	})
	if err != nil {
		return 0, fmt.Errorf("ensure personal group for %d: %w", userID, err)
	}
	elsewhere := false
	for _, g := range memberships {
		if g.Name != name {
			elsewhere = true
		}
	}

	g, err := retry(ctx, s, "ensure personal group", func(ctx context.Context) (*models.Group, error) {
		return s.store.GetGroupByName(ctx, name)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		member := userID
		if elsewhere {
			member = 0
		}
		id, err := retry(ctx, s, "create personal group", func(ctx context.Context) (int64, error) {
			return s.store.CreateGroup(ctx, name, member, s.defaultHourOffset)
		})
		if err == nil {
			s.cache.InvalidateAll()
			s.logger.Info("personal group created", "user_id", userID, "group_id", id)
			return id, nil
		}
		if !errors.Is(err, ErrAlreadyExists) {
			return 0, fmt.Errorf("create personal group for %d: %w", userID, err)
		}
		// Lost the race against another process; re-resolve.
		if g, err = s.store.GetGroupByName(ctx, name); err != nil {
			return 0, fmt.Errorf("re-resolve personal group for %d: %w", userID, err)
		}
	default:
		return 0, fmt.Errorf("ensure personal group for %d: %w", userID, err)
	}

	if !g.HasMember(userID) && !elsewhere {
		if err := retryErr(ctx, s, "add personal member", func(ctx context.Context) error {
			return s.store.AddMember(ctx, g.ID, userID)
		}); err != nil {
			return 0, fmt.Errorf("add %d to personal group: %w", userID, err)
		}
		s.cache.InvalidateAll()
	}
	return g.ID, nil
}
