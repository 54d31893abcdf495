package cli

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/scrybe-cli/scrybe/internal/buildinfo"
	"github.com/scrybe-cli/scrybe/internal/config"
	"github.com/scrybe-cli/scrybe/internal/debug"
	"github.com/scrybe-cli/scrybe/internal/session"
	"github.com/scrybe-cli/scrybe/internal/tui"
)

const (
	// ANSI color codes
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorDim   = "\033[2m"
	colorRed   = "\033[31m"

	// Combined styles
	styleBoldCyan   = "\033[1;36m"
	styleBoldGreen  = "\033[1;32m"
	styleBoldYellow = "\033[1;33m"
	styleBoldWhite  = "\033[1;37m"
)

var rootCmd = &cobra.Command{
	Use:   "scrybe",
	Short: "Terminal client for the multi-agent research backend",
	Long: colorBold + `
  ___  ___ _ __ _   _| |__   ___
 / __|/ __| '__| | | | '_ \ / _ \
 \__ \ (__| |  | |_| | |_) |  __/
 |___/\___|_|   \__, |_.__/ \___|
                |___/` + colorReset + `

  ` + styleBoldCyan + `scrybe` + colorReset + ` v` + buildinfo.Current().Version + `

  Ask research questions and watch a team of backend agents plan,
  investigate, and write the answer up, live in your terminal.

  Run ` + styleBoldWhite + `scrybe` + colorReset + ` for the interactive chat, or ` + styleBoldWhite + `scrybe ask "..."` + colorReset + ` for one-shot use.

` + colorBold + `Getting Started:` + colorReset + `
  scrybe                           Launch the interactive chat TUI
  scrybe ask "What is WASM?"       One-shot question, streamed to stdout
  scrybe config show               Inspect the current settings
  scrybe config set api-url URL    Point at a different backend

` + colorBold + `Environment:` + colorReset + `
  SCRYBE_API_URL                   Backend URL override
  SCRYBE_DEBUG_ENABLED=1           Verbose logging to ~/.scrybe/debug/`,

	RunE: func(cmd *cobra.Command, args []string) error {
		if !isatty.IsTerminal(os.Stdout.Fd()) {
			return cmd.Help()
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return tui.Run(session.New(cfg))
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().Bool("debug", false, "Enable verbose debug logging to ~/.scrybe/debug/")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		debugFlag, _ := cmd.Flags().GetBool("debug")
		if !debugFlag && !debug.ShouldEnableFromEnv() {
			return nil
		}
		logPath, err := debug.Init()
		if err != nil {
			return fmt.Errorf("initializing debug logger: %w", err)
		}
		fmt.Fprintf(os.Stderr, "%s[debug]%s logging to %s\n", colorDim, colorReset, logPath)
		bi := buildinfo.Current()
		debug.LogKV("cli", "scrybe starting",
			"version", bi.Version,
			"commit", bi.CommitHash,
			"build_date", bi.BuildDate,
			"pid", os.Getpid(),
			"command", cmd.Name(),
			"args", args,
		)
		return nil
	}
}

// Execute runs the root command.
func Execute() {
	defer debug.Close()
	if err := rootCmd.Execute(); err != nil {
		debug.Logf("cli", "exit with error: %v", err)
		fmt.Fprintf(os.Stderr, "%sError: %s%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
	debug.Log("cli", "exit success")
}
