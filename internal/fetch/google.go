package fetch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/everstacklabs/parley/internal/catalog"
	"github.com/everstacklabs/parley/internal/httpclient"
	"github.com/everstacklabs/parley/internal/provider"
)

// Google fetches models from the Gemini /v1beta/models endpoint, following
// nextPageToken pagination. Model names come back as "models/<id>"; the
// prefix is stripped for display and selection. The API key is sent as the
// x-goog-api-key header, never in the URL, so it cannot end up in error
// messages or logs.
type Google struct {
	baseURL string
	apiKey  string
	client  *httpclient.Client
}

// NewGoogle creates a Gemini fetcher.
func NewGoogle(baseURL, apiKey string, client *httpclient.Client) *Google {
	return &Google{baseURL: baseURL, apiKey: apiKey, client: client}
}

func (g *Google) Provider() provider.ID { return provider.Google }

// Gemini /v1beta/models response types.
type googleModelsResponse struct {
	Models        []json.RawMessage `json:"models"`
	NextPageToken string            `json:"nextPageToken"`
}

type googleModel struct {
	Name                       string   `json:"name"`
	DisplayName                string   `json:"displayName"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

func (g *Google) FetchModels(ctx context.Context) ([]catalog.ModelDescriptor, error) {
	if g.apiKey == "" {
		return nil, authMissing(provider.Google)
	}

	headers := map[string]string{
		"x-goog-api-key": g.apiKey,
	}

	var models []catalog.ModelDescriptor
	pageToken := ""

	for {
		u := g.baseURL + "/models?pageSize=1000"
		if pageToken != "" {
			u += "&pageToken=" + url.QueryEscape(pageToken)
		}

		resp, err := g.client.Get(ctx, u, headers)
		if err != nil {
			return nil, classify(provider.Google, err)
		}

		var page googleModelsResponse
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, protocolErr(provider.Google, err, resp.Body)
		}

		for _, raw := range page.Models {
			var m googleModel
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, protocolErr(provider.Google, err, raw)
			}
			var payload map[string]any
			_ = json.Unmarshal(raw, &payload)
			models = append(models, catalog.ModelDescriptor{
				Name:         strings.TrimPrefix(m.Name, "models/"),
				DisplayName:  m.DisplayName,
				Capabilities: m.SupportedGenerationMethods,
				Raw:          payload,
			})
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	slog.Info("google discovery complete", "models", len(models))
	return models, nil
}
