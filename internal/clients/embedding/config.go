package embedding

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Provider identifies the wire dialect of the embedding endpoint.
type Provider string

const (
	ProviderOpenAICompat Provider = "openai"
	ProviderHuggingFace  Provider = "huggingface"
	ProviderJina         Provider = "jina"
)

type Config struct {
	Provider Provider
	BaseURL  string
	APIKey   string
	Model    string
	// VectorDim is the fixed dimension the store expects (1024 or 1536
	// depending on provider/model).
	VectorDim int
}

type ConfigErrorCode string

const (
	ConfigErrorMissingProvider ConfigErrorCode = "missing_provider"
	ConfigErrorUnknownProvider ConfigErrorCode = "unknown_provider"
	ConfigErrorMissingURL      ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL      ConfigErrorCode = "invalid_url"
	ConfigErrorMissingModel    ConfigErrorCode = "missing_model"
	ConfigErrorInvalidDim      ConfigErrorCode = "invalid_vector_dim"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid embedding config"
	}
	switch e.Code {
	case ConfigErrorMissingProvider:
		return "EMBEDDING_PROVIDER is required (openai|huggingface|jina)"
	case ConfigErrorUnknownProvider:
		return fmt.Sprintf("unknown EMBEDDING_PROVIDER=%q; expected openai|huggingface|jina", e.Value)
	case ConfigErrorMissingURL:
		return "EMBEDDING_BASE_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid EMBEDDING_BASE_URL=%q; expected absolute URL", e.Value)
	case ConfigErrorMissingModel:
		return "EMBEDDING_MODEL is required"
	case ConfigErrorInvalidDim:
		return fmt.Sprintf("invalid EMBEDDING_VECTOR_DIM=%q; expected positive integer", e.Value)
	default:
		return "invalid embedding config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ResolveConfigFromEnv() (Config, error) {
	rawProvider := strings.ToLower(strings.TrimSpace(os.Getenv("EMBEDDING_PROVIDER")))
	if rawProvider == "" {
		return Config{}, &ConfigError{Code: ConfigErrorMissingProvider}
	}
	var provider Provider
	switch rawProvider {
	case "openai", "openai-compat", "openaicompat":
		provider = ProviderOpenAICompat
	case "huggingface", "hf", "tei":
		provider = ProviderHuggingFace
	case "jina":
		provider = ProviderJina
	default:
		return Config{}, &ConfigError{Code: ConfigErrorUnknownProvider, Value: rawProvider}
	}

	rawDim := strings.TrimSpace(os.Getenv("EMBEDDING_VECTOR_DIM"))
	dim := 1024
	if rawDim != "" {
		parsed, err := strconv.Atoi(rawDim)
		if err != nil || parsed <= 0 {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidDim, Value: rawDim, Cause: err}
		}
		dim = parsed
	}

	cfg := Config{
		Provider:  provider,
		BaseURL:   strings.TrimSpace(os.Getenv("EMBEDDING_BASE_URL")),
		APIKey:    strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY")),
		Model:     strings.TrimSpace(os.Getenv("EMBEDDING_MODEL")),
		VectorDim: dim,
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if cfg.BaseURL == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.BaseURL, Cause: err}
	}
	if cfg.Model == "" && cfg.Provider != ProviderHuggingFace {
		return &ConfigError{Code: ConfigErrorMissingModel}
	}
	if cfg.VectorDim <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidDim, Value: strconv.Itoa(cfg.VectorDim)}
	}
	return nil
}
