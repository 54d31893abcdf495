package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/scrybe-cli/scrybe/internal/config"
	"github.com/scrybe-cli/scrybe/internal/debug"
	"github.com/scrybe-cli/scrybe/internal/session"
	"github.com/scrybe-cli/scrybe/internal/stream"
	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Run a single research question and exit",
	Long: `Run one research question without the interactive TUI: events stream to
stdout as they arrive and scrybe exits when the response ends.

The question can be provided as:
  - A positional argument: scrybe ask "Compare QUIC and TCP"
  - Via --prompt flag: scrybe ask --prompt "Compare QUIC and TCP"
  - Via stdin pipe: echo "Compare QUIC and TCP" | scrybe ask

When the planner pauses for plan feedback, --accept-plan answers it
automatically; otherwise the run stops at the interrupt.

Examples:
  scrybe ask "How does io_uring work?"
  scrybe ask --accept-plan "Survey Rust async runtimes"
  echo "Explain BGP hijacking" | scrybe ask`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().String("prompt", "", "Question (alternative to positional arg)")
	askCmd.Flags().Bool("accept-plan", false, "Automatically accept the proposed plan at interrupts")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	debug.Log("cli.ask", "runAsk() called")

	prompt, err := resolveAskPrompt(cmd, args)
	if err != nil {
		return err
	}
	if prompt == "" {
		return fmt.Errorf("no question provided (argument, --prompt, or stdin)")
	}
	acceptPlan, _ := cmd.Flags().GetBool("accept-plan")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	sess := session.New(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Printf("\n  %sReceived interrupt, cancelling...%s\n", styleBoldYellow, colorReset)
		sess.Cancel()
	}()

	display := stream.NewDisplay(os.Stdout, isatty.IsTerminal(os.Stdout.Fd()))
	defer display.Finish()

	var sawInterrupt bool
	onEvent := func(ev protocol.Event) {
		if ev.Kind == protocol.KindFinish && ev.FinishReason == protocol.FinishReasonInterrupt {
			sawInterrupt = true
		}
		display.Handle(ev)
	}

	if err := sess.Send(cmd.Context(), prompt, "", onEvent); err != nil {
		return err
	}

	// Answer plan interrupts until the backend stops pausing.
	for sawInterrupt && acceptPlan {
		sawInterrupt = false
		display.Finish()
		fmt.Printf("  %sPlan accepted, continuing...%s\n", styleBoldGreen, colorReset)
		if err := sess.Send(cmd.Context(), "[accepted] proceed with the plan", "accepted", onEvent); err != nil {
			return err
		}
	}
	if sawInterrupt {
		fmt.Printf("\n  %sThe planner paused for feedback. Re-run with --accept-plan or use the TUI.%s\n", styleBoldYellow, colorReset)
	}

	display.Finish()
	fmt.Printf("\n  %sDone.%s\n", styleBoldGreen, colorReset)
	return nil
}

// resolveAskPrompt extracts the question from positional args, --prompt, or stdin.
func resolveAskPrompt(cmd *cobra.Command, args []string) (string, error) {
	promptFlag, _ := cmd.Flags().GetString("prompt")
	promptFlag = strings.TrimSpace(promptFlag)

	// Positional argument takes precedence.
	if len(args) > 0 {
		joined := strings.TrimSpace(strings.Join(args, " "))
		if joined != "" {
			return joined, nil
		}
	}

	if promptFlag != "" {
		return promptFlag, nil
	}

	// Try stdin (only if not a terminal).
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading question from stdin: %w", err)
		}
		if s := strings.TrimSpace(string(data)); s != "" {
			return s, nil
		}
	}

	return "", nil
}
