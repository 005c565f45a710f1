package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/linanwx/triptych/provider"
)

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List the model catalog per provider",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(_ *cobra.Command, args []string) error {
	kinds := provider.SupportedProviders()
	if len(args) == 1 {
		kind, err := provider.ParseKind(args[0])
		if err != nil {
			return err
		}
		kinds = []provider.Kind{kind}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PROVIDER", "KEY PREFIX", "MODELS (first is default)")
	for _, kind := range kinds {
		reg, _ := provider.Lookup(kind)
		t.Row(string(kind), reg.KeyPrefix+"...", strings.Join(reg.Models, ", "))
	}
	fmt.Println(t.Render())
	return nil
}
