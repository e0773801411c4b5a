package annotate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicDefaultModel   = "claude-3-5-haiku-latest"
	anthropicVersion        = "2023-06-01"
)

type anthropic struct {
	client *resty.Client
	model  string
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func newAnthropic(hc *http.Client, cfg ProviderConfig) *anthropic {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	return &anthropic{
		client: newRestClient(hc, baseURL).
			SetHeader("x-api-key", cfg.APIKey).
			SetHeader("anthropic-version", anthropicVersion),
		model: model,
	}
}

func (a *anthropic) Name() string {
	return ProviderAnthropic
}

func (a *anthropic) Suggest(ctx context.Context, prompt string) (string, error) {
	req := anthropicRequest{
		Model:     a.model,
		MaxTokens: 300,
		System:    systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	var out anthropicResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		ForceContentType("application/json").
		Post("/v1/messages")
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return "", statusError(resp)
	}

	var parts []string
	for _, c := range out.Content {
		if c.Type == "text" && strings.TrimSpace(c.Text) != "" {
			parts = append(parts, strings.TrimSpace(c.Text))
		}
	}
	if len(parts) == 0 {
		return "", errors.New("response contains no text")
	}
	return strings.Join(parts, "\n"), nil
}
