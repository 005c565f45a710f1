package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/linanwx/triptych/config"
	"github.com/linanwx/triptych/provider"
	"github.com/linanwx/triptych/session"
)

var (
	panelKeyFlag         string
	panelProviderFlag    string
	panelModelFlag       string
	panelAPIBaseFlag     string
	panelMaxTokensFlag   int
	panelTemperatureFlag float64
	panelSystemFlag      string
)

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Configure the three model panels",
}

var panelSetCmd = &cobra.Command{
	Use:   "set <slot>",
	Short: "Configure a panel (interactive unless --key or --provider is given)",
	Long: `Configure panel 1, 2 or 3. Reconfiguring a panel starts it with an empty log.

The provider is detected from the key prefix when --provider is omitted:
  sk-ant-...  anthropic
  sk-...      openai
  AIza...     google

Examples:
  triptych panel set 1
  triptych panel set 2 --key sk-ant-xxx --model claude-3-5-sonnet-20241022
  triptych panel set 3 --provider google --temperature 1.2   # key from GEMINI_API_KEY`,
	Args: cobra.ExactArgs(1),
	RunE: runPanelSet,
}

var panelListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the configured panels",
	Args:  cobra.NoArgs,
	RunE:  runPanelList,
}

var panelClearCmd = &cobra.Command{
	Use:   "clear <slot>",
	Short: "Remove a panel",
	Args:  cobra.ExactArgs(1),
	RunE:  runPanelClear,
}

func init() {
	f := panelSetCmd.Flags()
	f.StringVar(&panelKeyFlag, "key", "", "API key")
	f.StringVar(&panelProviderFlag, "provider", "", "Provider (openai, anthropic, google)")
	f.StringVar(&panelModelFlag, "model", "", "Model id (default: first catalog model)")
	f.StringVar(&panelAPIBaseFlag, "api-base", "", "Override API base URL")
	f.IntVar(&panelMaxTokensFlag, "max-tokens", 0, "Maximum reply tokens (default 2000)")
	f.Float64Var(&panelTemperatureFlag, "temperature", 0, "Sampling temperature 0-2 (default 0.7)")
	f.StringVar(&panelSystemFlag, "system", "", "System prompt")

	panelCmd.AddCommand(panelSetCmd, panelListCmd, panelClearCmd)
	rootCmd.AddCommand(panelCmd)
}

func parseSlot(arg string) (int, error) {
	slot, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || slot < 1 || slot > session.MaxSessions {
		return 0, fmt.Errorf("%w: %q", session.ErrSlotOutOfRange, arg)
	}
	return slot, nil
}

func runPanelSet(cmd *cobra.Command, args []string) error {
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}

	var p config.PanelConfig
	if panelKeyFlag == "" && panelProviderFlag == "" {
		prev, _ := appConfig.Panel(slot)
		p, err = panelForm(slot, prev)
		if err != nil {
			return err
		}
	} else {
		p = config.PanelConfig{
			Slot:         slot,
			Provider:     panelProviderFlag,
			APIKey:       strings.TrimSpace(panelKeyFlag),
			APIBase:      panelAPIBaseFlag,
			Model:        panelModelFlag,
			MaxTokens:    panelMaxTokensFlag,
			SystemPrompt: panelSystemFlag,
		}
		if cmd.Flags().Changed("temperature") {
			t := panelTemperatureFlag
			p.Temperature = &t
		}
	}

	resolved, err := p.Resolve()
	if err != nil {
		return err
	}
	// Store the detected provider and default model so the file is explicit.
	p.Provider = string(resolved.Provider)
	p.Model = resolved.Model

	appConfig.SetPanel(p)
	if err := appConfig.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	path, _ := config.ConfigPath()
	fmt.Printf("Panel %d: %s / %s saved to %s\n", slot, resolved.Provider, resolved.Model, path)
	return nil
}

// panelForm asks for a key, detects the provider, then offers its models and
// the generation settings.
func panelForm(slot int, prev config.PanelConfig) (config.PanelConfig, error) {
	var apiKey string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("API key for panel %d", slot)).
				Description("The provider is detected from the key prefix (sk-ant-, sk-, AIza).").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					_, err := provider.DetectProvider(s)
					return err
				}).
				Value(&apiKey),
		),
	).Run()
	if err != nil {
		return config.PanelConfig{}, err
	}
	apiKey = strings.TrimSpace(apiKey)
	kind, _ := provider.DetectProvider(apiKey)

	model := prev.Model
	if !provider.IsCatalogModel(kind, model) {
		model = provider.DefaultModel(kind)
	}
	maxTokens := "2000"
	if prev.MaxTokens > 0 {
		maxTokens = strconv.Itoa(prev.MaxTokens)
	}
	temperature := "0.7"
	if prev.Temperature != nil {
		temperature = strconv.FormatFloat(*prev.Temperature, 'f', -1, 64)
	}
	systemPrompt := prev.SystemPrompt

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Model ("+string(kind)+")").
				Options(buildModelOptions(kind)...).
				Value(&model),
			huh.NewInput().
				Title("Max tokens").
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n <= 0 {
						return fmt.Errorf("enter a positive integer")
					}
					return nil
				}).
				Value(&maxTokens),
			huh.NewInput().
				Title("Temperature (0-2)").
				Validate(func(s string) error {
					t, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
					if err != nil || t < provider.MinTemperature || t > provider.MaxTemperature {
						return fmt.Errorf("enter a number between 0 and 2")
					}
					return nil
				}).
				Value(&temperature),
			huh.NewText().
				Title("System prompt (optional)").
				Value(&systemPrompt),
		),
	).Run()
	if err != nil {
		return config.PanelConfig{}, err
	}

	n, _ := strconv.Atoi(strings.TrimSpace(maxTokens))
	t, _ := strconv.ParseFloat(strings.TrimSpace(temperature), 64)
	return config.PanelConfig{
		Slot:         slot,
		Provider:     string(kind),
		APIKey:       apiKey,
		APIBase:      prev.APIBase,
		Model:        model,
		MaxTokens:    n,
		Temperature:  &t,
		SystemPrompt: strings.TrimSpace(systemPrompt),
	}, nil
}

func buildModelOptions(kind provider.Kind) []huh.Option[string] {
	models := provider.SupportedModelsForProvider(kind)
	options := make([]huh.Option[string], 0, len(models))
	for i, m := range models {
		label := m
		if i == 0 {
			label += " [default]"
		}
		options = append(options, huh.NewOption(label, m))
	}
	return options
}

func runPanelList(_ *cobra.Command, _ []string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SLOT", "PROVIDER", "MODEL", "KEY", "MAX TOKENS", "TEMP", "STATUS")

	for slot := 1; slot <= session.MaxSessions; slot++ {
		p, ok := appConfig.Panel(slot)
		if !ok {
			t.Row(strconv.Itoa(slot), "-", "-", "-", "-", "-", "not configured")
			continue
		}
		status := "ok"
		resolved, err := p.Resolve()
		if err != nil {
			status = err.Error()
		}
		g := p.Generation()
		t.Row(
			strconv.Itoa(slot),
			string(resolved.Provider),
			resolved.Model,
			maskKey(resolved.APIKey),
			strconv.Itoa(g.MaxTokens),
			strconv.FormatFloat(g.Temperature, 'f', -1, 64),
			status,
		)
	}
	fmt.Println(t.Render())
	return nil
}

func runPanelClear(_ *cobra.Command, args []string) error {
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}
	if !appConfig.RemovePanel(slot) {
		fmt.Printf("Panel %d is not configured.\n", slot)
		return nil
	}
	if err := appConfig.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("Panel %d cleared.\n", slot)
	return nil
}

// maskKey keeps the vendor prefix and the last four characters.
func maskKey(key string) string {
	if key == "" {
		return "(none)"
	}
	if len(key) <= 10 {
		return strings.Repeat("*", len(key))
	}
	return key[:6] + "..." + key[len(key)-4:]
}
