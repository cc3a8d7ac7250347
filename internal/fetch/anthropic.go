package fetch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/everstacklabs/parley/internal/catalog"
	"github.com/everstacklabs/parley/internal/httpclient"
	"github.com/everstacklabs/parley/internal/provider"
)

const anthropicVersion = "2023-06-01"

// Anthropic fetches models from the Anthropic /v1/models endpoint, following
// after_id pagination.
type Anthropic struct {
	baseURL string
	apiKey  string
	client  *httpclient.Client
}

// NewAnthropic creates an Anthropic fetcher.
func NewAnthropic(baseURL, apiKey string, client *httpclient.Client) *Anthropic {
	return &Anthropic{baseURL: baseURL, apiKey: apiKey, client: client}
}

func (a *Anthropic) Provider() provider.ID { return provider.Anthropic }

// Anthropic /v1/models response types.
type anthropicModelsResponse struct {
	Data    []json.RawMessage `json:"data"`
	HasMore bool              `json:"has_more"`
	LastID  string            `json:"last_id"`
}

type anthropicModel struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

func (a *Anthropic) FetchModels(ctx context.Context) ([]catalog.ModelDescriptor, error) {
	if a.apiKey == "" {
		return nil, authMissing(provider.Anthropic)
	}

	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var models []catalog.ModelDescriptor
	afterID := ""

	for {
		url := a.baseURL + "/models?limit=100"
		if afterID != "" {
			url += "&after_id=" + afterID
		}

		resp, err := a.client.Get(ctx, url, headers)
		if err != nil {
			return nil, classify(provider.Anthropic, err)
		}

		var page anthropicModelsResponse
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, protocolErr(provider.Anthropic, err, resp.Body)
		}

		for _, raw := range page.Data {
			var m anthropicModel
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, protocolErr(provider.Anthropic, err, raw)
			}
			var payload map[string]any
			_ = json.Unmarshal(raw, &payload)
			models = append(models, catalog.ModelDescriptor{
				Name:         m.ID,
				DisplayName:  m.DisplayName,
				Capabilities: []string{"chat", "vision"},
				Raw:          payload,
			})
		}

		if !page.HasMore || page.LastID == "" {
			break
		}
		afterID = page.LastID
	}

	slog.Info("anthropic discovery complete", "models", len(models))
	return models, nil
}
