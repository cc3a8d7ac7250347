package fetch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/everstacklabs/parley/internal/catalog"
	"github.com/everstacklabs/parley/internal/httpclient"
	"github.com/everstacklabs/parley/internal/provider"
)

// OpenAICompat fetches models from any OpenAI-compatible /v1/models listing
// (OpenAI, Groq, OpenRouter) using bearer auth.
type OpenAICompat struct {
	id      provider.ID
	baseURL string
	apiKey  string
	client  *httpclient.Client
}

// NewOpenAICompat creates a fetcher for an OpenAI-compatible provider.
func NewOpenAICompat(id provider.ID, baseURL, apiKey string, client *httpclient.Client) *OpenAICompat {
	return &OpenAICompat{id: id, baseURL: baseURL, apiKey: apiKey, client: client}
}

func (c *OpenAICompat) Provider() provider.ID { return c.id }

// OpenAI-compatible /v1/models response types.
type oaiModelsResponse struct {
	Data []json.RawMessage `json:"data"`
}

type oaiModel struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

func (c *OpenAICompat) FetchModels(ctx context.Context) ([]catalog.ModelDescriptor, error) {
	if c.apiKey == "" {
		return nil, authMissing(c.id)
	}

	headers := map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}
	resp, err := c.client.Get(ctx, c.baseURL+"/models", headers)
	if err != nil {
		return nil, classify(c.id, err)
	}

	var modelsResp oaiModelsResponse
	if err := json.Unmarshal(resp.Body, &modelsResp); err != nil {
		return nil, protocolErr(c.id, err, resp.Body)
	}

	type entry struct {
		model   oaiModel
		payload map[string]any
	}
	entries := make([]entry, 0, len(modelsResp.Data))
	for _, raw := range modelsResp.Data {
		var m oaiModel
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, protocolErr(c.id, err, raw)
		}
		var payload map[string]any
		_ = json.Unmarshal(raw, &payload)
		entries = append(entries, entry{model: m, payload: payload})
	}

	// Newest first, matching how pickers want to present cloud catalogs.
	sort.Slice(entries, func(i, j int) bool { return entries[i].model.Created > entries[j].model.Created })

	models := make([]catalog.ModelDescriptor, 0, len(entries))
	for _, e := range entries {
		models = append(models, catalog.ModelDescriptor{
			Name: e.model.ID,
			Raw:  e.payload,
		})
	}

	slog.Info("model discovery complete", "provider", c.id, "models", len(models))
	return models, nil
}
