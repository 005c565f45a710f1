package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/linanwx/triptych/config"
	"github.com/linanwx/triptych/internal/health"
	"github.com/linanwx/triptych/session"
)

var healthJSON bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show process and panel status",
	Long: `Print a health snapshot: runtime info plus one entry per configured panel.
No requests are sent to any provider.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Print JSON instead of YAML")
	rootCmd.AddCommand(healthCmd)
}

func runHealth(_ *cobra.Command, _ []string) error {
	sessions := session.NewManager()
	if err := appConfig.ApplyPanels(sessions); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	configDir, _ := config.ConfigDir()

	snapshot := health.Collect(health.Options{
		Panels:    sessions.Snapshots(),
		ConfigDir: configDir,
	})

	var (
		data []byte
		err  error
	)
	if healthJSON {
		data, err = json.MarshalIndent(snapshot, "", "  ")
	} else {
		data, err = yaml.Marshal(snapshot)
	}
	if err != nil {
		return fmt.Errorf("failed to serialize health snapshot: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
