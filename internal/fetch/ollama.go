package fetch

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/everstacklabs/parley/internal/catalog"
	"github.com/everstacklabs/parley/internal/httpclient"
	"github.com/everstacklabs/parley/internal/provider"
)

// Ollama fetches locally installed models from an Ollama runtime via its
// /api/tags endpoint.
type Ollama struct {
	host   string
	client *httpclient.Client
}

// NewOllama creates a fetcher for the Ollama runtime at host.
func NewOllama(host string, client *httpclient.Client) *Ollama {
	return &Ollama{host: host, client: client}
}

func (o *Ollama) Provider() provider.ID { return provider.Ollama }

// Ollama /api/tags response types.
type ollamaTags struct {
	Models []json.RawMessage `json:"models"`
}

type ollamaModel struct {
	Name    string `json:"name"`
	Details struct {
		Family        string   `json:"family"`
		Families      []string `json:"families"`
		ParameterSize string   `json:"parameter_size"`
	} `json:"details"`
}

func (o *Ollama) FetchModels(ctx context.Context) ([]catalog.ModelDescriptor, error) {
	resp, err := o.client.Get(ctx, o.host+"/api/tags", nil)
	if err != nil {
		return nil, classify(provider.Ollama, err)
	}

	var tags ollamaTags
	if err := json.Unmarshal(resp.Body, &tags); err != nil {
		return nil, protocolErr(provider.Ollama, err, resp.Body)
	}

	models := make([]catalog.ModelDescriptor, 0, len(tags.Models))
	for _, raw := range tags.Models {
		var m ollamaModel
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, protocolErr(provider.Ollama, err, raw)
		}
		var payload map[string]any
		_ = json.Unmarshal(raw, &payload)

		caps := []string{"chat"}
		if slices.Contains(m.Details.Families, "clip") || slices.Contains(m.Details.Families, "mllama") {
			caps = append(caps, "vision")
		}

		models = append(models, catalog.ModelDescriptor{
			Name:          m.Name,
			Family:        m.Details.Family,
			ParameterSize: m.Details.ParameterSize,
			Capabilities:  caps,
			Raw:           payload,
		})
	}

	slog.Info("ollama discovery complete", "host", o.host, "models", len(models))
	return models, nil
}
