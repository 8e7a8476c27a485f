// Package groups resolves users to groups and serves cached per-user views
// over the durable store. Reads go through the cache; writes go to the store
// and then invalidate the affected scopes.
package groups

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"babylog/internal/cache"
	"babylog/internal/models"
	"babylog/internal/storage"
)

// Re-exported so callers can match outcomes without importing storage.
var (
	ErrNotFound      = storage.ErrNotFound
	ErrAlreadyExists = storage.ErrAlreadyExists
	ErrTransient     = storage.ErrTransient
	ErrInvalidInput  = storage.ErrInvalidInput
)

const (
	// ViewEntries and ViewPoops cap the recent lists of a user view.
	ViewEntries = 10
	ViewPoops   = 5
)

// Store is the subset of the durable store the service needs.
type Store interface {
	CreateGroup(ctx context.Context, name string, initialMember int64, hourOffset int) (int64, error)
	GetGroupByID(ctx context.Context, id int64) (*models.Group, error)
	GetGroupByName(ctx context.Context, name string) (*models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	UpdateGroupInfo(ctx context.Context, g *models.Group) error
	GroupsForUser(ctx context.Context, userID int64) ([]models.Group, error)
	AddMember(ctx context.Context, groupID, userID int64) error
	MoveMember(ctx context.Context, userID, groupID int64) error
	RemoveMember(ctx context.Context, groupID, userID int64) error

	AppendEntry(ctx context.Context, groupID int64, amountML int, at time.Time) (models.Entry, error)
	RemoveMostRecentEntry(ctx context.Context, groupID int64) (models.Entry, error)
	AppendPoop(ctx context.Context, groupID int64, at time.Time, note string) (models.PoopEvent, error)
	QueryEntries(ctx context.Context, groupID int64, since time.Time, limit int) ([]models.Entry, error)
	QueryPoops(ctx context.Context, groupID int64, since time.Time, limit int) ([]models.PoopEvent, error)
}

var _ Store = (*storage.DB)(nil)

// Service is the core surface used by the chat layer.
type Service struct {
	store  Store
	cache  *cache.Cache
	logger *slog.Logger
	clock  clockwork.Clock

	defaultHourOffset int
	flight            singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithDefaultHourOffset sets the hour offset given to newly created groups.
func WithDefaultHourOffset(hours int) Option {
	return func(s *Service) {
		s.defaultHourOffset = hours
	}
}

func NewService(store Store, c *cache.Cache, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cache:  c,
		logger: slog.Default(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// retry runs fn once more if it failed with a transient store error.
func retry[T any](ctx context.Context, s *Service, op string, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil || !storage.IsTransient(err) || ctx.Err() != nil {
		return v, err
	}
	s.logger.Warn("transient store failure, retrying", "op", op, "error", err)
	return fn(ctx)
}

func retryErr(ctx context.Context, s *Service, op string, fn func(context.Context) error) error {
	_, err := retry(ctx, s, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
