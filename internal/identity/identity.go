// Package identity resolves which user the stars belong to.
//
// Resolution consults, in order: the page URL query, the main site's
// user slot (durable then session), the engine's own last-user cache,
// and finally the guest literal. The first defined value wins. The
// resolver never fails; a broken store degrades to the next source and
// ultimately to guest.
package identity

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/COMEONSOM/stargrid/internal/profile"
	"github.com/COMEONSOM/stargrid/internal/storage"
)

// Source says where a resolved identity came from.
type Source int

const (
	SourceGuest Source = iota
	SourceQuery
	SourceMainSite
	SourceSession
	SourceCache
)

func (s Source) String() string {
	switch s {
	case SourceQuery:
		return "query"
	case SourceMainSite:
		return "main-site"
	case SourceSession:
		return "session"
	case SourceCache:
		return "cache"
	default:
		return "guest"
	}
}

// Resolution is a resolved identity and its provenance.
type Resolution struct {
	User   string
	Source Source
}

// Resolver resolves identities against a durable and a session store.
type Resolver struct {
	durable storage.KV
	session storage.KV
	rules   profile.IdentityRules
	logger  *slog.Logger
}

// NewResolver builds a resolver. A nil logger means slog.Default().
func NewResolver(durable, session storage.KV, rules profile.IdentityRules, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{durable: durable, session: session, rules: rules, logger: logger}
}

// Resolve returns the current identity for pageURL. Never fails.
//
// Whenever the winner came from anywhere but the cache slot, it is
// written through to the cache so the next session on a bare URL keeps
// the same user. The write is best-effort.
func (r *Resolver) Resolve(ctx context.Context, pageURL string) Resolution {
	res := r.lookup(ctx, pageURL)
	if res.Source != SourceCache && res.Source != SourceGuest {
		r.refreshCache(ctx, res.User)
	}
	return res
}

func (r *Resolver) lookup(ctx context.Context, pageURL string) Resolution {
	if user, ok := r.fromQuery(pageURL); ok {
		return Resolution{User: user, Source: SourceQuery}
	}
	if user, ok := r.fromStore(ctx, r.durable, r.rules.MainSiteKey); ok {
		return Resolution{User: user, Source: SourceMainSite}
	}
	if user, ok := r.fromStore(ctx, r.session, r.rules.MainSiteKey); ok {
		return Resolution{User: user, Source: SourceSession}
	}
	if user, ok := r.fromStore(ctx, r.durable, r.rules.CacheKey); ok {
		return Resolution{User: user, Source: SourceCache}
	}
	return Resolution{User: r.rules.Guest, Source: SourceGuest}
}

// fromQuery tries the configured query parameters in order. Values
// arrive URL-decoded from the query parser.
func (r *Resolver) fromQuery(pageURL string) (string, bool) {
	if pageURL == "" {
		return "", false
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		r.logger.Debug("unparseable page URL, skipping query identity", "url", pageURL, "error", err)
		return "", false
	}
	q := u.Query()
	for _, param := range r.rules.QueryParams {
		if user := strings.TrimSpace(q.Get(param)); user != "" {
			return user, true
		}
	}
	return "", false
}

func (r *Resolver) fromStore(ctx context.Context, store storage.KV, key string) (string, bool) {
	value, ok, err := store.Get(ctx, key)
	if err != nil {
		r.logger.Warn("identity slot unreadable, trying next source", "key", key, "error", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	user := strings.TrimSpace(value)
	return user, user != ""
}

// refreshCache records user in the cache slot unless it already holds
// that exact value. Skipping the redundant write keeps the slot watcher
// quiet on steady state.
func (r *Resolver) refreshCache(ctx context.Context, user string) {
	current, ok, err := r.durable.Get(ctx, r.rules.CacheKey)
	if err == nil && ok && current == user {
		return
	}
	if err := r.durable.Set(ctx, r.rules.CacheKey, user); err != nil {
		r.logger.Warn("identity cache not updated", "key", r.rules.CacheKey, "error", err)
	}
}
