package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/scrybe-cli/scrybe/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or change scrybe settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		printField("api-url", cfg.APIBaseURL)
		printField("auto-accept", strconv.FormatBool(cfg.AutoAcceptedPlan))
		printField("background-investigation", strconv.FormatBool(cfg.EnableBackgroundInvestigation))
		printField("max-plan-iterations", strconv.Itoa(cfg.MaxPlanIterations))
		printField("max-step-num", strconv.Itoa(cfg.MaxStepNum))
		printField("max-search-results", strconv.Itoa(cfg.MaxSearchResults))
		printField("paper-check-delay-ms", strconv.Itoa(cfg.PaperCheckDelayMS))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a setting and save it to ~/.scrybe/config.json",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		key, value := args[0], args[1]
		switch key {
		case "api-url":
			cfg.APIBaseURL = value
		case "auto-accept":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("auto-accept wants true/false: %w", err)
			}
			cfg.AutoAcceptedPlan = b
		case "background-investigation":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("background-investigation wants true/false: %w", err)
			}
			cfg.EnableBackgroundInvestigation = b
		case "max-plan-iterations", "max-step-num", "max-search-results", "paper-check-delay-ms":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return fmt.Errorf("%s wants a positive integer", key)
			}
			switch key {
			case "max-plan-iterations":
				cfg.MaxPlanIterations = n
			case "max-step-num":
				cfg.MaxStepNum = n
			case "max-search-results":
				cfg.MaxSearchResults = n
			case "paper-check-delay-ms":
				cfg.PaperCheckDelayMS = n
			}
		default:
			return fmt.Errorf("unknown key %q (see 'scrybe config show')", key)
		}
		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("  %s%s%s = %s\n", styleBoldWhite, key, colorReset, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func printField(label, value string) {
	fmt.Printf("  %s%-26s%s %s\n", styleBoldWhite, label, colorReset, value)
}
