package embedding

import (
	"errors"
	"testing"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_BASE_URL", "https://embed.example.com/v1")
	t.Setenv("EMBEDDING_API_KEY", "sk-test")
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-small")
	t.Setenv("EMBEDDING_VECTOR_DIM", "")
}

func TestResolveConfigFromEnv(t *testing.T) {
	setBaseEnv(t)
	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider != ProviderOpenAICompat {
		t.Fatalf("provider: want=%v got=%v", ProviderOpenAICompat, cfg.Provider)
	}
	if cfg.VectorDim != 1024 {
		t.Fatalf("default dim: want=1024 got=%d", cfg.VectorDim)
	}
	if cfg.Model != "text-embedding-3-small" {
		t.Fatalf("model: got=%q", cfg.Model)
	}
}

func TestResolveConfigProviderAliases(t *testing.T) {
	cases := []struct {
		raw  string
		want Provider
	}{
		{"openai", ProviderOpenAICompat},
		{"openai-compat", ProviderOpenAICompat},
		{"HuggingFace", ProviderHuggingFace},
		{"hf", ProviderHuggingFace},
		{"tei", ProviderHuggingFace},
		{"jina", ProviderJina},
	}
	for _, c := range cases {
		t.Run(c.raw, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv("EMBEDDING_PROVIDER", c.raw)
			cfg, err := ResolveConfigFromEnv()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Provider != c.want {
				t.Fatalf("provider: want=%v got=%v", c.want, cfg.Provider)
			}
		})
	}
}

func TestResolveConfigErrors(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(t *testing.T)
		wantCode ConfigErrorCode
	}{
		{
			name:     "missing provider",
			mutate:   func(t *testing.T) { t.Setenv("EMBEDDING_PROVIDER", "") },
			wantCode: ConfigErrorMissingProvider,
		},
		{
			name:     "unknown provider",
			mutate:   func(t *testing.T) { t.Setenv("EMBEDDING_PROVIDER", "cohere") },
			wantCode: ConfigErrorUnknownProvider,
		},
		{
			name:     "missing url",
			mutate:   func(t *testing.T) { t.Setenv("EMBEDDING_BASE_URL", "") },
			wantCode: ConfigErrorMissingURL,
		},
		{
			name:     "relative url",
			mutate:   func(t *testing.T) { t.Setenv("EMBEDDING_BASE_URL", "/v1/embeddings") },
			wantCode: ConfigErrorInvalidURL,
		},
		{
			name:     "missing model",
			mutate:   func(t *testing.T) { t.Setenv("EMBEDDING_MODEL", "") },
			wantCode: ConfigErrorMissingModel,
		},
		{
			name:     "bad dim",
			mutate:   func(t *testing.T) { t.Setenv("EMBEDDING_VECTOR_DIM", "-5") },
			wantCode: ConfigErrorInvalidDim,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			setBaseEnv(t)
			c.mutate(t)
			_, err := ResolveConfigFromEnv()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("want *ConfigError, got %v", err)
			}
			if cfgErr.Code != c.wantCode {
				t.Fatalf("code: want=%v got=%v", c.wantCode, cfgErr.Code)
			}
		})
	}
}

func TestHuggingFaceModelOptional(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("EMBEDDING_PROVIDER", "tei")
	t.Setenv("EMBEDDING_MODEL", "")
	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider != ProviderHuggingFace {
		t.Fatalf("provider: got=%v", cfg.Provider)
	}
}
