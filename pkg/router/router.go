// Package router resolves which monitored system and log source a raw
// ingest payload belongs to, by matching configured selectors (§4.2). A
// process-local cache avoids re-compiling selector regexes and
// re-querying the store on every event; Redis pub/sub invalidates every
// process's cache when routing rules change.
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/codeready-toolchain/sentinel/pkg/models"
	"github.com/codeready-toolchain/sentinel/pkg/store"
)

// InvalidationChannel is the Redis pub/sub channel routers publish to
// after any log_sources write, so every process refreshes its cache.
const InvalidationChannel = "sentinel:routing:invalidate"

type compiledSource struct {
	source models.LogSource
	regex  map[string]*regexp.Regexp
}

// Router matches raw events to a (system_id, log_source_id) pair.
type Router struct {
	store *store.Store
	redis *redis.Client

	mu      sync.RWMutex
	sources []compiledSource
	loaded  bool
}

// New builds a Router over store, subscribing to redis for cache
// invalidation if redis is non-nil.
func New(s *store.Store, rdb *redis.Client) *Router {
	r := &Router{store: s, redis: rdb}
	if rdb != nil {
		go r.listenForInvalidation(context.Background())
	}
	return r
}

// Match returns the first matching log source for raw in load order
// (system_id, then priority, then id), or ok=false if nothing matches
// (§4.2 "unmatched
// events are rejected, not routed to a default system").
func (r *Router) Match(ctx context.Context, raw models.RawEvent) (models.LogSource, bool, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return models.LogSource{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cs := range r.sources {
		if matches(cs, raw) {
			return cs.source, true, nil
		}
	}
	return models.LogSource{}, false, nil
}

func matches(cs compiledSource, raw models.RawEvent) bool {
	for field, re := range cs.regex {
		v, ok := raw[field]
		if !ok {
			return false
		}
		s, ok := v.(string)
		if !ok || !re.MatchString(s) {
			return false
		}
	}
	return len(cs.regex) > 0
}

func (r *Router) ensureLoaded(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}
	return r.Reload(ctx)
}

// Reload re-fetches and re-compiles every active log source. Called on
// the first Match and on every invalidation message.
func (r *Router) Reload(ctx context.Context) error {
	sources, err := r.store.Systems.ActiveLogSources(ctx)
	if err != nil {
		return err
	}

	compiled := make([]compiledSource, 0, len(sources))
	for _, src := range sources {
		regexes := make(map[string]*regexp.Regexp, len(src.Selector))
		ok := true
		for field, pattern := range src.Selector {
			re, err := regexp.Compile(pattern)
			if err != nil {
				slog.Error("router: invalid selector pattern, skipping source", "log_source_id", src.ID, "field", field, "error", err)
				ok = false
				break
			}
			regexes[field] = re
		}
		if ok {
			compiled = append(compiled, compiledSource{source: src, regex: regexes})
		}
	}

	r.mu.Lock()
	r.sources = compiled
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// Invalidate tells every router process (including this one) to reload,
// by publishing to the shared Redis channel.
func (r *Router) Invalidate(ctx context.Context) error {
	if r.redis == nil {
		return r.Reload(ctx)
	}
	payload, _ := json.Marshal(struct{}{})
	return r.redis.Publish(ctx, InvalidationChannel, payload).Err()
}

func (r *Router) listenForInvalidation(ctx context.Context) {
	sub := r.redis.Subscribe(ctx, InvalidationChannel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			if err := r.Reload(ctx); err != nil {
				slog.Error("router: reload on invalidation failed", "error", err)
			}
		}
	}
}
