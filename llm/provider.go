package llm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Model names may carry a provider prefix, e.g. "deepseek/deepseek-chat" or
// "ollama/llama3". The prefix selects the base URL and API key; the remainder
// is the model name sent to the API. All providers speak the OpenAI protocol.
var providerBaseURLs = map[string]string{
	"openai":         "https://api.openai.com/v1",
	"ollama":         "http://localhost:11434/v1",
	"deepseek":       "https://api.deepseek.com/v1",
	"anthropic":      "https://api.anthropic.com/v1",
	"github_copilot": "https://api.githubcopilot.com/v1",
	"google_gemini":  "https://generativelanguage.googleapis.com/v1",
}

// SplitModel returns the provider and the bare model name. An unprefixed
// model defaults to the openai provider.
func SplitModel(basemodel string) (provider, model string) {
	if prefix, rest, ok := strings.Cut(basemodel, "/"); ok {
		if _, known := providerBaseURLs[strings.ToLower(prefix)]; known {
			return strings.ToLower(prefix), rest
		}
	}
	return "openai", basemodel
}

// ResolveEndpoint picks the base URL and API key for a model. Priority:
// explicit config value, then <PROVIDER>_API_BASE / <PROVIDER>_API_KEY,
// then the generic OPENAI_* variables, then the provider default URL.
func ResolveEndpoint(basemodel, baseURL, apiKey string) (string, string, error) {
	provider, _ := SplitModel(basemodel)
	envPrefix := strings.ToUpper(provider)

	if baseURL == "" {
		baseURL = firstNonEmpty(os.Getenv(envPrefix+"_API_BASE"), os.Getenv("OPENAI_API_BASE"), providerBaseURLs[provider])
	}
	if baseURL == "" {
		return "", "", fmt.Errorf("no base URL configured for provider %s: set %s_API_BASE", provider, envPrefix)
	}
	if apiKey == "" {
		apiKey = firstNonEmpty(os.Getenv(envPrefix+"_API_KEY"), os.Getenv("OPENAI_API_KEY"))
	}
	if apiKey == "" && provider == "ollama" {
		apiKey = "ollama" // local models take any key
	}
	if apiKey == "" {
		return "", "", fmt.Errorf("no API key configured for provider %s: set %s_API_KEY", provider, envPrefix)
	}
	return baseURL, apiKey, nil
}

// NewClient builds an OpenAI-protocol client for the given model spec.
func NewClient(basemodel, baseURL, apiKey string, timeout time.Duration) (openai.Client, error) {
	resolvedURL, resolvedKey, err := ResolveEndpoint(basemodel, baseURL, apiKey)
	if err != nil {
		return openai.Client{}, err
	}
	return openai.NewClient(
		option.WithBaseURL(resolvedURL),
		option.WithAPIKey(resolvedKey),
		option.WithRequestTimeout(timeout),
	), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
