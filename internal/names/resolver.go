package names

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/srvmarket/srvchat/internal/chat"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSize = 512
	DefaultTTL  = 30 * time.Minute

	fallbackIDLen = 8
)

// Lookup resolves a user's public profile from the remote side.
type Lookup interface {
	ResolveUser(ctx context.Context, userID string) (chat.Profile, error)
}

// Entry is a cached resolution result.
type Entry struct {
	Name      string
	AvatarURL string
	// Fallback is set when the lookup failed and Name was derived from the id.
	Fallback bool
}

// Resolver maps user ids to display names and avatars through a bounded TTL cache.
// Failed lookups are cached as their fallback, so a user id costs at most one remote
// call per TTL window. Safe for concurrent use.
type Resolver struct {
	lookup Lookup
	cache  *expirable.LRU[string, Entry]
	group  singleflight.Group
	logger *zap.Logger
}

// NewResolver creates a resolver holding at most size entries for ttl each.
func NewResolver(lookup Lookup, size int, ttl time.Duration, logger *zap.Logger) *Resolver {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		lookup: lookup,
		cache:  expirable.NewLRU[string, Entry](size, nil, ttl),
		logger: logger,
	}
}

// FallbackName is the placeholder shown when a user's profile cannot be fetched.
func FallbackName(userID string) string {
	if utf8.RuneCountInString(userID) > fallbackIDLen {
		userID = string([]rune(userID)[:fallbackIDLen])
	}
	return "User " + userID
}

// Resolve returns the display name for userID. It never fails.
func (r *Resolver) Resolve(ctx context.Context, userID string) string {
	return r.Lookup(ctx, userID).Name
}

// Avatar returns the avatar URL for userID, or "" when none is known.
func (r *Resolver) Avatar(ctx context.Context, userID string) string {
	return r.Lookup(ctx, userID).AvatarURL
}

// Lookup returns the cached entry for userID, resolving it on a miss.
func (r *Resolver) Lookup(ctx context.Context, userID string) Entry {
	if e, ok := r.cache.Get(userID); ok {
		return e
	}

	v, _, _ := r.group.Do(userID, func() (any, error) {
		if e, ok := r.cache.Get(userID); ok {
			return e, nil
		}
		e := r.fetch(ctx, userID)
		// A lookup cut short by the caller is not a verdict on the user.
		if ctx.Err() == nil {
			r.cache.Add(userID, e)
		}
		return e, nil
	})
	return v.(Entry)
}

func (r *Resolver) fetch(ctx context.Context, userID string) Entry {
	if r.lookup == nil {
		return Entry{Name: FallbackName(userID), Fallback: true}
	}
	p, err := r.lookup.ResolveUser(ctx, userID)
	if err != nil {
		r.logger.Warn("name resolution failed, using fallback", zap.String("user_id", userID), zap.Error(err))
		return Entry{Name: FallbackName(userID), Fallback: true}
	}
	if p.Name == "" {
		return Entry{Name: FallbackName(userID), AvatarURL: p.AvatarURL, Fallback: true}
	}
	return Entry{Name: p.Name, AvatarURL: p.AvatarURL}
}

// Reset drops every cached entry.
func (r *Resolver) Reset() {
	r.cache.Purge()
}
