package provider

import (
	"errors"
	"strings"
	"testing"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    Kind
		wantErr bool
	}{
		{name: "openai", key: "sk-proj-abc123", want: OpenAI},
		{name: "anthropic is not mistaken for openai", key: "sk-ant-api03-xyz", want: Anthropic},
		{name: "google", key: "AIzaSyD-example", want: Google},
		{name: "surrounding whitespace", key: "  sk-ant-abc  ", want: Anthropic},
		{name: "unknown prefix", key: "xai-123", wantErr: true},
		{name: "empty", key: "", wantErr: true},
		{name: "prefix is case sensitive", key: "aiza-lower", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectProvider(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownKey) {
					t.Fatalf("DetectProvider(%q) error = %v, want ErrUnknownKey", tt.key, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectProvider(%q) error = %v", tt.key, err)
			}
			if got != tt.want {
				t.Fatalf("DetectProvider(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestRegistryCatalog(t *testing.T) {
	kinds := SupportedProviders()
	want := []Kind{Anthropic, Google, OpenAI}
	if len(kinds) != len(want) {
		t.Fatalf("SupportedProviders() = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("SupportedProviders()[%d] = %q, want %q", i, kinds[i], want[i])
		}
	}

	for _, kind := range kinds {
		models := SupportedModelsForProvider(kind)
		if len(models) == 0 {
			t.Fatalf("SupportedModelsForProvider(%q) is empty", kind)
		}
		if DefaultModel(kind) != models[0] {
			t.Fatalf("DefaultModel(%q) = %q, want %q", kind, DefaultModel(kind), models[0])
		}
		if !IsCatalogModel(kind, models[0]) {
			t.Fatalf("IsCatalogModel(%q, %q) = false", kind, models[0])
		}
		a, err := NewAdapter(kind)
		if err != nil {
			t.Fatalf("NewAdapter(%q) error = %v", kind, err)
		}
		if a.Kind() != kind {
			t.Fatalf("NewAdapter(%q).Kind() = %q", kind, a.Kind())
		}
	}

	if IsCatalogModel(OpenAI, "claude-3-opus-20240229") {
		t.Fatal("IsCatalogModel() accepted a model from another vendor")
	}
	if _, err := NewAdapter("mistral"); err == nil {
		t.Fatal("NewAdapter(unknown) should fail")
	}
}

func TestParseKind(t *testing.T) {
	got, err := ParseKind(" Anthropic ")
	if err != nil || got != Anthropic {
		t.Fatalf("ParseKind() = %q, %v, want %q", got, err, Anthropic)
	}
	_, err = ParseKind("cohere")
	if err == nil || !strings.Contains(err.Error(), "supported: anthropic, google, openai") {
		t.Fatalf("ParseKind(cohere) error = %v, want list of supported providers", err)
	}
}

func TestGenerationConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     GenerationConfig
		wantErr bool
	}{
		{name: "defaults", cfg: GenerationConfig{MaxTokens: 2000, Temperature: 0.7}},
		{name: "zero temperature", cfg: GenerationConfig{MaxTokens: 1, Temperature: 0}},
		{name: "max temperature", cfg: GenerationConfig{MaxTokens: 1, Temperature: 2}},
		{name: "zero max tokens", cfg: GenerationConfig{MaxTokens: 0, Temperature: 1}, wantErr: true},
		{name: "negative temperature", cfg: GenerationConfig{MaxTokens: 10, Temperature: -0.1}, wantErr: true},
		{name: "temperature above range", cfg: GenerationConfig{MaxTokens: 10, Temperature: 2.5}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
