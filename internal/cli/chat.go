package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrybe-cli/scrybe/internal/config"
	"github.com/scrybe-cli/scrybe/internal/session"
	"github.com/scrybe-cli/scrybe/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Launch the interactive chat TUI",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return tui.Run(session.New(cfg))
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
