package coordinator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/everstacklabs/parley/internal/catalog"
	"github.com/everstacklabs/parley/internal/fetch"
	"github.com/everstacklabs/parley/internal/provider"
)

type fakeFetcher struct {
	id      provider.ID
	models  []catalog.ModelDescriptor
	err     error
	delay   time.Duration
	started chan struct{} // closed when the first fetch begins

	mu    sync.Mutex
	calls int
}

func (f *fakeFetcher) Provider() provider.ID { return f.id }

func (f *fakeFetcher) FetchModels(ctx context.Context) ([]catalog.ModelDescriptor, error) {
	f.mu.Lock()
	f.calls++
	if f.calls == 1 && f.started != nil {
		close(f.started)
	}
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.models, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func genModels(n int) []catalog.ModelDescriptor {
	models := make([]catalog.ModelDescriptor, n)
	for i := range models {
		models[i] = catalog.ModelDescriptor{Name: fmt.Sprintf("model-%d", i)}
	}
	return models
}

// seedStore writes a document with one entry whose last success is age ago.
func seedStore(t *testing.T, p provider.ID, models []catalog.ModelDescriptor, age time.Duration) *catalog.Store {
	t.Helper()
	s := catalog.NewStore(filepath.Join(t.TempDir(), "provider-models.json"))
	doc := catalog.NewDocument()
	e := doc.Entry(p)
	e.Models = models
	ts := time.Now().UTC().Add(-age)
	e.LastSuccess = &ts
	e.LastAttempt = &ts
	if err := s.Save(doc); err != nil {
		t.Fatal(err)
	}
	return s
}

func emptyStore(t *testing.T) *catalog.Store {
	t.Helper()
	return catalog.NewStore(filepath.Join(t.TempDir(), "provider-models.json"))
}

func enabled(ids ...provider.ID) map[provider.ID]bool {
	m := make(map[provider.ID]bool)
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func TestGetModelsFreshServesCache(t *testing.T) {
	f := &fakeFetcher{id: provider.Ollama, models: genModels(3)}
	store := seedStore(t, provider.Ollama, genModels(12), time.Hour)
	fresh := catalog.Freshness{Default: 168 * time.Hour}

	c := New(store, fetch.NewRegistry(f), fresh, enabled(provider.Ollama))
	models, status := c.GetModels(context.Background(), provider.Ollama, false)

	if status != StatusFresh {
		t.Errorf("status = %s, want %s", status, StatusFresh)
	}
	if len(models) != 12 {
		t.Errorf("models = %d, want 12", len(models))
	}
	if f.callCount() != 0 {
		t.Errorf("fetch calls = %d, want 0", f.callCount())
	}
}

func TestGetModelsStaleTriggersRefresh(t *testing.T) {
	f := &fakeFetcher{id: provider.OpenAI, models: genModels(8)}
	store := seedStore(t, provider.OpenAI, genModels(12), 30*time.Hour)
	fresh := catalog.Freshness{Default: 24 * time.Hour}

	c := New(store, fetch.NewRegistry(f), fresh, enabled(provider.OpenAI))
	models, status := c.GetModels(context.Background(), provider.OpenAI, false)

	if status != StatusRefreshed {
		t.Errorf("status = %s, want %s", status, StatusRefreshed)
	}
	if len(models) != 8 {
		t.Errorf("models = %d, want 8", len(models))
	}
	if f.callCount() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.callCount())
	}

	// The refreshed entry is persisted, not just held in memory.
	reloaded := store.Load()
	e := reloaded.Providers[provider.OpenAI]
	if e == nil || len(e.Models) != 8 {
		t.Error("refreshed models not persisted")
	}
	if e != nil && e.LastError != nil {
		t.Errorf("persisted error after successful refresh: %+v", e.LastError)
	}
}

func TestGetModelsFallsBackToStaleOnFailure(t *testing.T) {
	f := &fakeFetcher{
		id:  provider.OpenAI,
		err: &fetch.Error{Provider: provider.OpenAI, Kind: fetch.KindUnavailable, Err: fmt.Errorf("connection refused")},
	}
	store := seedStore(t, provider.OpenAI, genModels(12), 30*time.Hour)
	fresh := catalog.Freshness{Default: 24 * time.Hour}

	var notes []string
	c := New(store, fetch.NewRegistry(f), fresh, enabled(provider.OpenAI),
		WithNotifier(NotifierFunc(func(msg string) { notes = append(notes, msg) })))

	before := store.Load().Providers[provider.OpenAI].LastSuccess

	models, status := c.GetModels(context.Background(), provider.OpenAI, false)
	if status != StatusStaleFallback {
		t.Errorf("status = %s, want %s", status, StatusStaleFallback)
	}
	if len(models) != 12 {
		t.Errorf("models = %d, want 12", len(models))
	}

	e := store.Load().Providers[provider.OpenAI]
	if e.LastSuccess == nil || !e.LastSuccess.Equal(*before) {
		t.Error("failed refresh must not touch last success")
	}
	if e.LastAttempt == nil || !e.LastAttempt.After(*before) {
		t.Error("failed refresh must advance last attempt")
	}
	if e.LastError == nil || e.LastError.Kind != string(fetch.KindUnavailable) {
		t.Errorf("last error = %+v", e.LastError)
	}
	if len(notes) != 1 {
		t.Errorf("notifications = %d, want 1: %v", len(notes), notes)
	}
}

func TestGetModelsUnavailableWhenNeverFetched(t *testing.T) {
	f := &fakeFetcher{
		id:  provider.Anthropic,
		err: &fetch.Error{Provider: provider.Anthropic, Kind: fetch.KindAuth, Err: fmt.Errorf("no api key")},
	}
	fresh := catalog.Freshness{Default: 24 * time.Hour}

	c := New(emptyStore(t), fetch.NewRegistry(f), fresh, enabled(provider.Anthropic))
	models, status := c.GetModels(context.Background(), provider.Anthropic, false)

	if status != StatusUnavailable {
		t.Errorf("status = %s, want %s", status, StatusUnavailable)
	}
	if len(models) != 0 {
		t.Errorf("models = %d, want 0", len(models))
	}
}

func TestGetModelsSingleFlight(t *testing.T) {
	f := &fakeFetcher{id: provider.Ollama, models: genModels(5), delay: 50 * time.Millisecond}
	fresh := catalog.Freshness{Default: 24 * time.Hour}

	c := New(emptyStore(t), fetch.NewRegistry(f), fresh, enabled(provider.Ollama))

	const callers = 8
	var wg sync.WaitGroup
	counts := make([]int, callers)
	statuses := make([]Status, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			models, status := c.GetModels(context.Background(), provider.Ollama, false)
			counts[i] = len(models)
			statuses[i] = status
		}()
	}
	wg.Wait()

	if f.callCount() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.callCount())
	}
	for i := 0; i < callers; i++ {
		if counts[i] != 5 {
			t.Errorf("caller %d got %d models, want 5", i, counts[i])
		}
		if statuses[i] != StatusRefreshed {
			t.Errorf("caller %d status = %s, want %s", i, statuses[i], StatusRefreshed)
		}
	}
}

func TestGetModelsForceJoinsInFlightRefresh(t *testing.T) {
	f := &fakeFetcher{
		id:      provider.Ollama,
		models:  genModels(5),
		delay:   50 * time.Millisecond,
		started: make(chan struct{}),
	}
	fresh := catalog.Freshness{Default: 24 * time.Hour}

	c := New(emptyStore(t), fetch.NewRegistry(f), fresh, enabled(provider.Ollama))

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.GetModels(context.Background(), provider.Ollama, false)
	}()
	<-f.started

	// A forced caller arriving mid-refresh joins it rather than queueing a
	// second fetch; the in-flight result is moments old.
	models, status := c.GetModels(context.Background(), provider.Ollama, true)
	<-done

	if f.callCount() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.callCount())
	}
	if status != StatusRefreshed {
		t.Errorf("status = %s, want %s", status, StatusRefreshed)
	}
	if len(models) != 5 {
		t.Errorf("models = %d, want 5", len(models))
	}
}

func TestGetModelsForceBypassesFreshness(t *testing.T) {
	f := &fakeFetcher{id: provider.Ollama, models: genModels(4)}
	store := seedStore(t, provider.Ollama, genModels(12), time.Hour)
	fresh := catalog.Freshness{Default: 168 * time.Hour}

	c := New(store, fetch.NewRegistry(f), fresh, enabled(provider.Ollama))
	models, status := c.GetModels(context.Background(), provider.Ollama, true)

	if status != StatusRefreshed {
		t.Errorf("status = %s, want %s", status, StatusRefreshed)
	}
	if len(models) != 4 {
		t.Errorf("models = %d, want 4", len(models))
	}
	if f.callCount() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.callCount())
	}
}

func TestGetModelsDisabledProvider(t *testing.T) {
	f := &fakeFetcher{id: provider.GitHub, models: genModels(4)}
	store := seedStore(t, provider.GitHub, genModels(6), 500*time.Hour)
	fresh := catalog.Freshness{Default: 24 * time.Hour}

	c := New(store, fetch.NewRegistry(f), fresh, enabled())

	// Cached data stays servable, even stale and even when forced.
	models, status := c.GetModels(context.Background(), provider.GitHub, true)
	if status != StatusFresh {
		t.Errorf("status = %s, want %s", status, StatusFresh)
	}
	if len(models) != 6 {
		t.Errorf("models = %d, want 6", len(models))
	}
	if f.callCount() != 0 {
		t.Errorf("fetch calls = %d, want 0", f.callCount())
	}

	// No cache at all: unavailable, still no fetch.
	c2 := New(emptyStore(t), fetch.NewRegistry(f), fresh, enabled())
	_, status = c2.GetModels(context.Background(), provider.GitHub, false)
	if status != StatusUnavailable {
		t.Errorf("status = %s, want %s", status, StatusUnavailable)
	}
	if f.callCount() != 0 {
		t.Errorf("fetch calls = %d, want 0", f.callCount())
	}
}

func TestRefreshAllSkipsDisabled(t *testing.T) {
	ollama := &fakeFetcher{id: provider.Ollama, models: genModels(3)}
	github := &fakeFetcher{id: provider.GitHub, models: genModels(2)}
	fresh := catalog.Freshness{Default: 24 * time.Hour}

	c := New(emptyStore(t), fetch.NewRegistry(ollama, github), fresh, enabled(provider.Ollama))
	results := c.RefreshAll(context.Background())

	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if res, ok := results[provider.Ollama]; !ok || res.Status != StatusRefreshed {
		t.Errorf("ollama result = %+v", res)
	}
	if github.callCount() != 0 {
		t.Errorf("disabled provider fetched %d times", github.callCount())
	}
}

func TestCacheInfo(t *testing.T) {
	f := &fakeFetcher{id: provider.OpenAI}
	store := seedStore(t, provider.OpenAI, genModels(7), 30*time.Hour)
	fresh := catalog.Freshness{Default: 24 * time.Hour}

	c := New(store, fetch.NewRegistry(f), fresh, enabled(provider.OpenAI))

	info := c.CacheInfo(provider.OpenAI)
	if info.ModelCount != 7 {
		t.Errorf("model count = %d, want 7", info.ModelCount)
	}
	if !info.Stale {
		t.Error("entry past its window should report stale")
	}
	if !info.Enabled {
		t.Error("enabled flag lost")
	}
	if info.MaxAge != 24*time.Hour {
		t.Errorf("max age = %v", info.MaxAge)
	}

	// Unknown provider: zero values, stale, no panic.
	info = c.CacheInfo(provider.Google)
	if info.ModelCount != 0 || !info.Stale || info.Enabled {
		t.Errorf("unexpected info for unseen provider: %+v", info)
	}
}
