// Package fetch lists the models a provider currently offers. Fetchers
// perform network or local-runtime I/O only; updating the catalog store is
// the coordinator's job.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/everstacklabs/parley/internal/catalog"
	"github.com/everstacklabs/parley/internal/httpclient"
	"github.com/everstacklabs/parley/internal/provider"
)

// Kind classifies a fetch failure.
type Kind string

const (
	// KindUnavailable is a network or connection failure, retryable later.
	KindUnavailable Kind = "unavailable"
	// KindAuth is a bad or missing credential, not retryable without user action.
	KindAuth Kind = "auth"
	// KindProtocol is an unexpected response shape.
	KindProtocol Kind = "protocol"
)

// Error is a classified fetch failure for one provider.
type Error struct {
	Provider provider.ID
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind, defaulting to unavailable for errors
// that escaped classification.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnavailable
}

// Fetcher discovers the current model list for one provider.
type Fetcher interface {
	// Provider returns the provider this fetcher serves.
	Provider() provider.ID
	// FetchModels returns the provider's full model list. Failures are
	// *Error values carrying the taxonomy kind.
	FetchModels(ctx context.Context) ([]catalog.ModelDescriptor, error)
}

// Registry is the provider → fetcher lookup table built at startup.
type Registry struct {
	fetchers map[provider.ID]Fetcher
}

// NewRegistry builds a registry from the given fetchers.
func NewRegistry(fetchers ...Fetcher) *Registry {
	r := &Registry{fetchers: make(map[provider.ID]Fetcher, len(fetchers))}
	for _, f := range fetchers {
		r.fetchers[f.Provider()] = f
	}
	return r
}

// Get returns the fetcher for a provider.
func (r *Registry) Get(id provider.ID) (Fetcher, bool) {
	f, ok := r.fetchers[id]
	return f, ok
}

// Providers returns the registered provider ids, sorted.
func (r *Registry) Providers() []provider.ID {
	ids := make([]provider.ID, 0, len(r.fetchers))
	for id := range r.fetchers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// classify maps a transport error into the fetch taxonomy. 401/403 become
// auth failures; everything else from the wire is an availability failure.
func classify(p provider.ID, err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		if se.StatusCode == 401 || se.StatusCode == 403 {
			return &Error{Provider: p, Kind: KindAuth, Err: err}
		}
	}
	return &Error{Provider: p, Kind: KindUnavailable, Err: err}
}

// protocolErr wraps a malformed-response error, logging the raw payload for
// diagnosis.
func protocolErr(p provider.ID, err error, payload []byte) error {
	slog.Warn("malformed provider response", "provider", p, "error", err, "payload", truncate(payload, 512))
	return &Error{Provider: p, Kind: KindProtocol, Err: err}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

func authMissing(p provider.ID) error {
	return &Error{Provider: p, Kind: KindAuth, Err: errors.New("api key not configured")}
}
