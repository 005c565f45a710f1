package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/linanwx/triptych/logger"
	"github.com/linanwx/triptych/provider"
	"github.com/linanwx/triptych/session"
)

// LoadEnv loads .env from the config dir and then the working directory.
// Variables already set in the environment win, and so does the first file.
func LoadEnv() {
	var files []string
	if dir, err := ConfigDir(); err == nil {
		files = append(files, filepath.Join(dir, ".env"))
	}
	files = append(files, ".env")

	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			logger.Warn("failed to load env file", "path", f, "err", err)
			continue
		}
		logger.Debug("env file loaded", "path", f)
	}
}

// Generation returns the panel's generation settings with defaults applied.
func (p PanelConfig) Generation() provider.GenerationConfig {
	g := provider.GenerationConfig{
		MaxTokens:    p.MaxTokens,
		Temperature:  defaultTemperature,
		SystemPrompt: p.SystemPrompt,
	}
	if g.MaxTokens <= 0 {
		g.MaxTokens = defaultMaxTokens
	}
	if p.Temperature != nil {
		g.Temperature = *p.Temperature
	}
	return g
}

// Resolve turns a panel entry into a session config. The vendor comes from
// the provider field or, when empty, from the key prefix. An empty key falls
// back to the vendor's env var; so does an empty base URL.
func (p PanelConfig) Resolve() (session.Config, error) {
	apiKey := strings.TrimSpace(p.APIKey)
	var (
		kind provider.Kind
		err  error
	)
	switch {
	case strings.TrimSpace(p.Provider) != "":
		kind, err = provider.ParseKind(p.Provider)
	case apiKey != "":
		kind, err = provider.DetectProvider(apiKey)
	default:
		err = errors.New("either provider or apiKey is required")
	}
	if err != nil {
		return session.Config{}, fmt.Errorf("%w: panel %d: %v", session.ErrInvalidConfig, p.Slot, err)
	}

	reg, _ := provider.Lookup(kind)
	if apiKey == "" && reg.EnvKey != "" {
		apiKey = strings.TrimSpace(os.Getenv(reg.EnvKey))
	}
	apiBase := strings.TrimSpace(p.APIBase)
	if apiBase == "" && reg.EnvBase != "" {
		apiBase = strings.TrimSpace(os.Getenv(reg.EnvBase))
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		model = provider.DefaultModel(kind)
	}

	cfg := session.Config{
		Provider:   kind,
		APIKey:     apiKey,
		APIBase:    apiBase,
		Model:      model,
		Generation: p.Generation(),
	}
	if err := cfg.Validate(); err != nil {
		return session.Config{}, fmt.Errorf("panel %d: %w", p.Slot, err)
	}
	if !provider.IsCatalogModel(kind, model) {
		logger.Warn("model not in catalog", "slot", p.Slot, "provider", kind, "model", model)
	}
	return cfg, nil
}

// ApplyPanels configures every panel entry on m. Invalid entries are skipped
// and reported together; valid ones are still installed.
func (c *Config) ApplyPanels(m *session.Manager) error {
	var errs []error
	for _, p := range c.Panels {
		sc, err := p.Resolve()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := m.Configure(p.Slot, sc); err != nil {
			errs = append(errs, fmt.Errorf("panel %d: %w", p.Slot, err))
		}
	}
	return errors.Join(errs...)
}
