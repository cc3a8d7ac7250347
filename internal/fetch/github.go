package fetch

import (
	"context"
	"encoding/json"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/everstacklabs/parley/internal/catalog"
	"github.com/everstacklabs/parley/internal/httpclient"
	"github.com/everstacklabs/parley/internal/provider"
)

// GitHub fetches the GitHub Models catalog. Authentication rides on an
// oauth2 token transport so the bearer token is attached per request.
type GitHub struct {
	baseURL string
	hasAuth bool
	client  *httpclient.Client
}

// NewGitHub creates a GitHub Models fetcher. Extra options (timeout, rate
// limit, retries) apply on top of the token transport.
func NewGitHub(baseURL, token string, opts ...httpclient.Option) *GitHub {
	g := &GitHub{baseURL: baseURL, hasAuth: token != ""}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		base := oauth2.NewClient(context.Background(), ts)
		opts = append([]httpclient.Option{httpclient.WithHTTPClient(base)}, opts...)
	}
	g.client = httpclient.New(opts...)
	return g
}

func (g *GitHub) Provider() provider.ID { return provider.GitHub }

// GitHub Models catalog entry (the endpoint returns a flat array).
type githubModel struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Publisher    string   `json:"publisher"`
	Capabilities []string `json:"capabilities"`
}

func (g *GitHub) FetchModels(ctx context.Context) ([]catalog.ModelDescriptor, error) {
	if !g.hasAuth {
		return nil, authMissing(provider.GitHub)
	}

	headers := map[string]string{
		"Accept": "application/vnd.github+json",
	}
	resp, err := g.client.Get(ctx, g.baseURL+"/catalog/models", headers)
	if err != nil {
		return nil, classify(provider.GitHub, err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(resp.Body, &raws); err != nil {
		return nil, protocolErr(provider.GitHub, err, resp.Body)
	}

	models := make([]catalog.ModelDescriptor, 0, len(raws))
	for _, raw := range raws {
		var m githubModel
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, protocolErr(provider.GitHub, err, raw)
		}
		var payload map[string]any
		_ = json.Unmarshal(raw, &payload)
		models = append(models, catalog.ModelDescriptor{
			Name:         m.ID,
			DisplayName:  m.Name,
			Family:       m.Publisher,
			Capabilities: m.Capabilities,
			Raw:          payload,
		})
	}

	slog.Info("github models discovery complete", "models", len(models))
	return models, nil
}
