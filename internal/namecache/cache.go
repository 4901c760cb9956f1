// Package namecache resolves LINE user and group ids to display names.
//
// The persistent store is the single source of truth: every lookup reads the
// stored entry and judges its age at read time. Stale or missing entries are
// refreshed from the Messaging API; when the API fails the stale name, or a
// shortened id, is returned so callers never block on an unhealthy upstream.
package namecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultUserTTL  = 7 * 24 * time.Hour
	DefaultGroupTTL = 14 * 24 * time.Hour

	fallbackLength = 8
)

var errEmptyName = errors.New("empty display name")

// Kind separates user and group entries, each with its own TTL.
type Kind string

const (
	KindUser  Kind = "user"
	KindGroup Kind = "group"
)

// Identity is the thing being named. GroupID scopes user lookups, LINE only
// exposes member profiles inside a group.
type Identity struct {
	Kind    Kind
	ID      string
	GroupID string
}

// Entry is a stored NameCacheEntry.
type Entry struct {
	Name      string
	UpdatedAt time.Time
}

// Store persists entries keyed by (kind, id). UpsertCachedName overwrites.
type Store interface {
	CachedName(ctx context.Context, kind Kind, id string) (Entry, bool, error)
	UpsertCachedName(ctx context.Context, kind Kind, id, name string, updatedAt time.Time) error
}

// Fetcher reads names from the chat platform.
type Fetcher interface {
	GroupMemberName(ctx context.Context, groupID, userID string) (string, error)
	GroupName(ctx context.Context, groupID string) (string, error)
}

// Decision is what to do with a stored entry.
type Decision int

const (
	UseCached Decision = iota
	Refresh
)

func (d Decision) String() string {
	if d == UseCached {
		return "use_cached"
	}
	return "refresh"
}

// Decide returns UseCached only for an entry younger than ttl.
func Decide(entry Entry, found bool, now time.Time, ttl time.Duration) Decision {
	if !found || entry.Name == "" {
		return Refresh
	}
	if now.Sub(entry.UpdatedAt) >= ttl {
		return Refresh
	}
	return UseCached
}

// Fallback shortens an id for display when no name is known.
func Fallback(id string) string {
	if len(id) <= fallbackLength {
		return id
	}
	return id[:fallbackLength] + "…"
}

// Cache is the Name Cache. It holds no entries in memory.
type Cache struct {
	logger       *zap.SugaredLogger
	store        Store
	fetcher      Fetcher
	userTTL      time.Duration
	groupTTL     time.Duration
	storeTimeout time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	flight       singleflight.Group
}

// New returns a Cache with the default TTLs.
func New(logger *zap.SugaredLogger, store Store, fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		logger:       logger,
		store:        store,
		fetcher:      fetcher,
		userTTL:      DefaultUserTTL,
		groupTTL:     DefaultGroupTTL,
		storeTimeout: 3 * time.Second,
		fetchTimeout: 5 * time.Second,
		now:          time.Now,
	}
	for _, o := range opts {
		o.apply(c)
	}
	return c
}

// UserName resolves a group member's display name.
func (c *Cache) UserName(ctx context.Context, groupID, userID string) string {
	return c.Resolve(ctx, Identity{Kind: KindUser, ID: userID, GroupID: groupID})
}

// GroupName resolves a group's display name.
func (c *Cache) GroupName(ctx context.Context, groupID string) string {
	return c.Resolve(ctx, Identity{Kind: KindGroup, ID: groupID, GroupID: groupID})
}

// Resolve returns the display name of id. It always returns a non-empty name.
func (c *Cache) Resolve(ctx context.Context, id Identity) string {
	entry, found := c.lookup(ctx, id)
	if Decide(entry, found, c.now(), c.ttl(id.Kind)) == UseCached {
		return entry.Name
	}

	v, err, _ := c.flight.Do(string(id.Kind)+":"+id.ID, func() (interface{}, error) {
		return c.refresh(ctx, id)
	})
	if err != nil {
		if found && entry.Name != "" {
			c.logger.Warnw("Name refresh failed, serving stale name",
				"kind", id.Kind, "id", id.ID, "error", err)
			return entry.Name
		}
		c.logger.Warnw("Name refresh failed, serving fallback",
			"kind", id.Kind, "id", id.ID, "error", err)
		return Fallback(id.ID)
	}

	return v.(string)
}

func (c *Cache) lookup(ctx context.Context, id Identity) (Entry, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	entry, found, err := c.store.CachedName(ctx, id.Kind, id.ID)
	if err != nil {
		c.logger.Errorw("Cannot read cached name", "kind", id.Kind, "id", id.ID, "error", err)
		return Entry{}, false
	}
	return entry, found
}

func (c *Cache) refresh(ctx context.Context, id Identity) (string, error) {
	name, err := c.fetch(ctx, id)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", errEmptyName
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	if err := c.store.UpsertCachedName(storeCtx, id.Kind, id.ID, name, c.now()); err != nil {
		c.logger.Errorw("Cannot store cached name", "kind", id.Kind, "id", id.ID, "error", err)
	}

	return name, nil
}

func (c *Cache) fetch(ctx context.Context, id Identity) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	switch id.Kind {
	case KindUser:
		return c.fetcher.GroupMemberName(ctx, id.GroupID, id.ID)
	case KindGroup:
		return c.fetcher.GroupName(ctx, id.ID)
	default:
		return "", fmt.Errorf("unknown identity kind %q", id.Kind)
	}
}

func (c *Cache) ttl(k Kind) time.Duration {
	if k == KindGroup {
		return c.groupTTL
	}
	return c.userTTL
}
