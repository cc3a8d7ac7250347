// Package coordinator implements get-or-refresh semantics over the catalog
// store: freshness checks, at-most-one in-flight fetch per provider, and
// fallback to stale data when a provider is unreachable.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/everstacklabs/parley/internal/catalog"
	"github.com/everstacklabs/parley/internal/fetch"
	"github.com/everstacklabs/parley/internal/provider"
)

// Status communicates how a model list was obtained.
type Status int

const (
	// StatusFresh means the cached list was served within its window.
	StatusFresh Status = iota
	// StatusRefreshed means the list was just fetched from the provider.
	StatusRefreshed
	// StatusStaleFallback means the fetch failed and the previous list was returned.
	StatusStaleFallback
	// StatusUnavailable means the fetch failed and nothing was ever cached.
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh-from-cache"
	case StatusRefreshed:
		return "freshly-fetched"
	case StatusStaleFallback:
		return "stale-fallback-after-error"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Notifier receives human-readable status strings for user-visible display.
// Formatting and rendering belong to the consuming layer.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithFetchTimeout bounds each refresh attempt.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithNotifier sets the notification surface.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notify = n }
}

// Coordinator orchestrates cached model lists for all providers. It is safe
// for concurrent use; refreshes for different providers run concurrently,
// refreshes for the same provider are single-flighted.
type Coordinator struct {
	store    *catalog.Store
	fetchers *fetch.Registry
	fresh    catalog.Freshness
	enabled  map[provider.ID]bool

	mu  sync.RWMutex // guards doc
	doc *catalog.Document

	flight  singleflight.Group
	timeout time.Duration
	notify  Notifier
}

// New loads the cache document and builds a coordinator. Constructed once at
// process start and passed to consumers; there is no package-level instance.
func New(store *catalog.Store, fetchers *fetch.Registry, fresh catalog.Freshness, enabled map[provider.ID]bool, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		fetchers: fetchers,
		fresh:    fresh,
		enabled:  enabled,
		doc:      store.Load(),
		timeout:  30 * time.Second,
		notify:   nopNotifier{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result pairs a model list with how it was obtained.
type Result struct {
	Models []catalog.ModelDescriptor
	Status Status
}

// Enabled reports whether a provider is enabled.
func (c *Coordinator) Enabled(p provider.ID) bool { return c.enabled[p] }

// EnabledProviders returns the providers exposed to pickers and bulk
// refresh, i.e. registered fetchers minus disabled ones.
func (c *Coordinator) EnabledProviders() []provider.ID {
	var ids []provider.ID
	for _, p := range c.fetchers.Providers() {
		if c.enabled[p] {
			ids = append(ids, p)
		}
	}
	return ids
}

// GetModels returns the provider's model list and how it was obtained.
//
// Fresh cache entries are served directly. Stale or absent entries (or any
// call with force=true) trigger a refresh; concurrent callers for the same
// provider join the in-flight refresh and receive the same result, including
// forced callers. Fetch failures are never surfaced as errors: the previous
// list is returned with StatusStaleFallback, or an empty list with
// StatusUnavailable if no fetch ever succeeded.
func (c *Coordinator) GetModels(ctx context.Context, p provider.ID, force bool) ([]catalog.ModelDescriptor, Status) {
	maxAge := c.fresh.MaxAge(p)

	c.mu.RLock()
	entry := c.doc.Providers[p]
	var cached []catalog.ModelDescriptor
	if entry != nil {
		cached = entry.Models
	}
	stale := catalog.IsStale(entry, maxAge, time.Now())
	c.mu.RUnlock()

	// Disabling a provider stops new fetches; data cached before the
	// provider was disabled stays servable on direct requests.
	if !c.enabled[p] {
		if len(cached) > 0 {
			return cached, StatusFresh
		}
		return nil, StatusUnavailable
	}

	if !force && !stale {
		return cached, StatusFresh
	}

	v, _, _ := c.flight.Do(string(p), func() (any, error) {
		return c.refresh(ctx, p), nil
	})
	res := v.(Result)
	return res.Models, res.Status
}

// refresh performs one fetch and commits the outcome to the document.
// Success replaces the model set and both timestamps; failure records only
// the attempt and error, preserving the previous set.
func (c *Coordinator) refresh(ctx context.Context, p provider.ID) Result {
	var (
		models []catalog.ModelDescriptor
		err    error
	)
	f, ok := c.fetchers.Get(p)
	if !ok {
		err = &fetch.Error{Provider: p, Kind: fetch.KindUnavailable, Err: fmt.Errorf("no fetcher registered")}
	} else {
		fctx, cancel := context.WithTimeout(ctx, c.timeout)
		models, err = f.FetchModels(fctx)
		cancel()
	}

	now := time.Now().UTC()

	c.mu.Lock()
	entry := c.doc.Entry(p)
	entry.LastAttempt = &now
	var res Result
	var lastSuccess *time.Time
	var changes catalog.Changes
	if err != nil {
		entry.LastError = &catalog.FetchError{Kind: string(fetch.KindOf(err)), Message: err.Error()}
		lastSuccess = entry.LastSuccess
		if len(entry.Models) > 0 {
			res = Result{Models: entry.Models, Status: StatusStaleFallback}
		} else {
			res = Result{Status: StatusUnavailable}
		}
	} else {
		models = catalog.Normalize(models)
		changes = catalog.Diff(entry.Models, models)
		entry.Models = models
		entry.LastSuccess = &now
		entry.LastError = nil
		res = Result{Models: models, Status: StatusRefreshed}
	}
	c.mu.Unlock()

	switch {
	case err != nil && lastSuccess != nil:
		slog.Warn("provider refresh failed, serving cached models", "provider", p, "error", err)
		c.notify.Notify(fmt.Sprintf("%s unreachable, showing cached list from %s", p, lastSuccess.Format(time.RFC3339)))
	case err != nil:
		slog.Warn("provider refresh failed", "provider", p, "error", err)
		c.notify.Notify(fmt.Sprintf("%s unreachable, no cached models available", p))
	default:
		slog.Info("provider refreshed", "provider", p, "models", len(models),
			"added", len(changes.Added), "removed", len(changes.Removed))
		c.notify.Notify(fmt.Sprintf("refreshed %d models for %s", len(models), p))
	}

	// Persistence is best effort: the in-memory result is already committed,
	// a failed save just means it isn't durable until the next one succeeds.
	if saveErr := c.Flush(); saveErr != nil {
		slog.Warn("cache save failed, continuing in memory", "provider", p, "error", saveErr)
	}

	return res
}

// RefreshAll force-refreshes every enabled provider as an unordered fan-out
// of independent single-provider refreshes.
func (c *Coordinator) RefreshAll(ctx context.Context) map[provider.ID]Result {
	var mu sync.Mutex
	results := make(map[provider.ID]Result)

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range c.EnabledProviders() {
		p := p
		g.Go(func() error {
			models, status := c.GetModels(ctx, p, true)
			mu.Lock()
			results[p] = Result{Models: models, Status: status}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Info describes the cache state of one provider.
type Info struct {
	Provider    provider.ID
	ModelCount  int
	LastSuccess *time.Time
	LastAttempt *time.Time
	Age         time.Duration
	MaxAge      time.Duration
	Stale       bool
	Enabled     bool
	LastError   *catalog.FetchError
}

// CacheInfo returns the cache state of one provider without fetching.
func (c *Coordinator) CacheInfo(p provider.ID) Info {
	maxAge := c.fresh.MaxAge(p)

	c.mu.RLock()
	defer c.mu.RUnlock()

	info := Info{
		Provider: p,
		MaxAge:   maxAge,
		Enabled:  c.enabled[p],
	}
	entry := c.doc.Providers[p]
	info.Stale = catalog.IsStale(entry, maxAge, time.Now())
	if entry == nil {
		return info
	}
	info.ModelCount = len(entry.Models)
	info.LastSuccess = entry.LastSuccess
	info.LastAttempt = entry.LastAttempt
	info.LastError = entry.LastError
	if entry.LastSuccess != nil {
		info.Age = time.Since(*entry.LastSuccess)
	}
	return info
}

// Flush persists the current document. Called after each refresh and at
// shutdown.
func (c *Coordinator) Flush() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Save(c.doc)
}
