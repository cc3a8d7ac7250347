// Package catalog holds the on-disk document of provider model lists and the
// freshness policy applied to it.
package catalog

import (
	"time"

	"github.com/everstacklabs/parley/internal/provider"
)

// DocumentVersion is the current format version of the cache document.
// The format is additive: loaders ignore unknown fields rather than reject.
const DocumentVersion = 1

// ModelDescriptor describes one selectable model offered by a provider.
// Descriptors are immutable once fetched; a refresh replaces the whole set.
type ModelDescriptor struct {
	Name          string         `json:"name" yaml:"name"`
	DisplayName   string         `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Family        string         `json:"family,omitempty" yaml:"family,omitempty"`
	ParameterSize string         `json:"parameter_size,omitempty" yaml:"parameter_size,omitempty"`
	Capabilities  []string       `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Raw           map[string]any `json:"raw,omitempty" yaml:"raw,omitempty"` // provider payload, preserved verbatim
}

// FetchError records the outcome of the last failed refresh attempt.
type FetchError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Entry is the cached catalog state for one provider.
//
// LastSuccess is nil only if no fetch has ever succeeded. A failed refresh
// updates LastAttempt and LastError but leaves Models and LastSuccess alone,
// so stale data remains servable.
type Entry struct {
	Models      []ModelDescriptor `json:"models"`
	LastSuccess *time.Time        `json:"last_success,omitempty"`
	LastAttempt *time.Time        `json:"last_attempt,omitempty"`
	LastError   *FetchError       `json:"last_error,omitempty"`
}

// Document is the full persisted cache structure.
type Document struct {
	Version   int                    `json:"version"`
	Providers map[provider.ID]*Entry `json:"providers"`
}

// NewDocument returns an empty document at the current format version.
func NewDocument() *Document {
	return &Document{
		Version:   DocumentVersion,
		Providers: make(map[provider.ID]*Entry),
	}
}

// Entry returns the catalog entry for a provider, creating it lazily.
func (d *Document) Entry(id provider.ID) *Entry {
	if d.Providers == nil {
		d.Providers = make(map[provider.ID]*Entry)
	}
	e, ok := d.Providers[id]
	if !ok {
		e = &Entry{}
		d.Providers[id] = e
	}
	return e
}
