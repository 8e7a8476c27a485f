package groups

import (
	"context"
	"errors"
	"fmt"
	"time"

	"babylog/internal/cache"
	"babylog/internal/models"
)

// MaxStatsDays bounds the stats window.
const MaxStatsDays = 365

// GetUserView returns the group view for userID. found is false when the
// user has no group.
func (s *Service) GetUserView(ctx context.Context, userID int64) (view models.UserView, found bool, err error) {
	gid, found, err := s.ResolveGroupForUser(ctx, userID)
	if err != nil || !found {
		return models.UserView{}, false, err
	}

	key := cache.UserViewKey(userID)
	if v, ok := s.cache.Get(key); ok {
		return cloneView(v.(models.UserView)), true, nil
	}

	gen := s.cache.Generation()
	view, err = retry(ctx, s, "load view", func(ctx context.Context) (models.UserView, error) {
		return s.loadView(ctx, gid)
	})
	if errors.Is(err, ErrNotFound) {
		// Group vanished between resolution and load.
		s.cache.InvalidateUser(userID)
		return models.UserView{}, false, nil
	}
	if err != nil {
		return models.UserView{}, false, fmt.Errorf("user view %d: %w", userID, err)
	}
	s.cache.SetIfUnchanged(key, view, gen)
	return cloneView(view), true, nil
}

func (s *Service) loadView(ctx context.Context, groupID int64) (models.UserView, error) {
	g, err := s.store.GetGroupByID(ctx, groupID)
	if err != nil {
		return models.UserView{}, err
	}
	entries, err := s.store.QueryEntries(ctx, groupID, time.Time{}, ViewEntries)
	if err != nil {
		return models.UserView{}, err
	}
	poops, err := s.store.QueryPoops(ctx, groupID, time.Time{}, ViewPoops)
	if err != nil {
		return models.UserView{}, err
	}
	return models.UserView{
		GroupID:       g.ID,
		Name:          g.Name,
		Members:       g.Members,
		HourOffset:    g.HourOffset,
		RecentEntries: entries,
		RecentPoops:   poops,
		Prefs:         g.Prefs,
	}, nil
}

// GetUserStats returns the entries and poop events of the user's group over
// the last days days. found is false when the user has no group.
func (s *Service) GetUserStats(ctx context.Context, userID int64, days int) (stats models.UserStats, found bool, err error) {
	if days < 1 || days > MaxStatsDays {
		return models.UserStats{}, false, fmt.Errorf("stats window %d days: %w", days, ErrInvalidInput)
	}
	gid, found, err := s.ResolveGroupForUser(ctx, userID)
	if err != nil || !found {
		return models.UserStats{}, false, err
	}

	key := cache.UserStatsKey(userID, days)
	if v, ok := s.cache.Get(key); ok {
		return cloneStats(v.(models.UserStats)), true, nil
	}

	gen := s.cache.Generation()
	since := s.clock.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	stats, err = retry(ctx, s, "load stats", func(ctx context.Context) (models.UserStats, error) {
		g, err := s.store.GetGroupByID(ctx, gid)
		if err != nil {
			return models.UserStats{}, err
		}
		entries, err := s.store.QueryEntries(ctx, gid, since, 0)
		if err != nil {
			return models.UserStats{}, err
		}
		poops, err := s.store.QueryPoops(ctx, gid, since, 0)
		if err != nil {
			return models.UserStats{}, err
		}
		return models.UserStats{
			GroupID:    gid,
			HourOffset: g.HourOffset,
			Days:       days,
			Since:      since,
			Entries:    entries,
			PoopEvents: poops,
		}, nil
	})
	if errors.Is(err, ErrNotFound) {
		s.cache.InvalidateUser(userID)
		return models.UserStats{}, false, nil
	}
	if err != nil {
		return models.UserStats{}, false, fmt.Errorf("user stats %d: %w", userID, err)
	}
	s.cache.SetIfUnchanged(key, stats, gen)
	return cloneStats(stats), true, nil
}

// ListGroups returns the all-groups snapshot.
func (s *Service) ListGroups(ctx context.Context) ([]models.Group, error) {
	key := cache.AllGroupsKey()
	if v, ok := s.cache.Get(key); ok {
		return cloneGroups(v.([]models.Group)), nil
	}

	gen := s.cache.Generation()
	groups, err := retry(ctx, s, "list groups", s.store.ListGroups)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	s.cache.SetIfUnchanged(key, groups, gen)
	return cloneGroups(groups), nil
}

func cloneView(v models.UserView) models.UserView {
	v.Members = append([]int64(nil), v.Members...)
	v.RecentEntries = append([]models.Entry(nil), v.RecentEntries...)
	v.RecentPoops = append([]models.PoopEvent(nil), v.RecentPoops...)
	return v
}

func cloneStats(st models.UserStats) models.UserStats {
	st.Entries = append([]models.Entry(nil), st.Entries...)
	st.PoopEvents = append([]models.PoopEvent(nil), st.PoopEvents...)
	return st
}

func cloneGroups(groups []models.Group) []models.Group {
	res := make([]models.Group, len(groups))
	for i, g := range groups {
		g.Members = append([]int64(nil), g.Members...)
		res[i] = g
	}
	return res
}
