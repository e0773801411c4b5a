// Package annotate attaches natural-language fix suggestions to failing
// tests using an external text generation provider.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
)

// Provider names.
const (
	ProviderNone      = "none"
	ProviderAuto      = "auto"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrNoProvider is returned when no provider is configured.
var ErrNoProvider = errors.New("no suggestion provider configured")

// Suggester turns a prompt into a short text suggestion.
type Suggester interface {
	// Name identifies the provider in logs and reports.
	Name() string
	Suggest(ctx context.Context, prompt string) (string, error)
}

// ProviderConfig selects and configures a Suggester.
type ProviderConfig struct {
	// One of ProviderOpenAI or ProviderAnthropic
	Name    string
	APIKey  string
	Model   string
	BaseURL string
	// Defaults to a pooled cleanhttp client
	HTTPClient *http.Client
}

// NewSuggester builds the provider named in cfg. ErrNoProvider is returned
// for ProviderNone or an empty name.
func NewSuggester(cfg ProviderConfig) (Suggester, error) {
	client := cfg.HTTPClient
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}

	switch strings.ToLower(cfg.Name) {
	case "", ProviderNone:
		return nil, ErrNoProvider
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %s requires an API key", ProviderOpenAI)
		}
		return newOpenAI(client, cfg), nil
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %s requires an API key", ProviderAnthropic)
		}
		return newAnthropic(client, cfg), nil
	default:
		return nil, fmt.Errorf("unknown suggestion provider %q", cfg.Name)
	}
}
