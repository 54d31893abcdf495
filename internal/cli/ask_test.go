package cli

import (
	"testing"
)

func TestResolveAskPromptPositional(t *testing.T) {
	got, err := resolveAskPrompt(askCmd, []string{"compare", "QUIC", "and", "TCP"})
	if err != nil {
		t.Fatalf("resolveAskPrompt: %v", err)
	}
	if got != "compare QUIC and TCP" {
		t.Errorf("prompt = %q", got)
	}
}

func TestResolveAskPromptFlag(t *testing.T) {
	if err := askCmd.Flags().Set("prompt", "from flag"); err != nil {
		t.Fatal(err)
	}
	defer askCmd.Flags().Set("prompt", "")

	got, err := resolveAskPrompt(askCmd, nil)
	if err != nil {
		t.Fatalf("resolveAskPrompt: %v", err)
	}
	if got != "from flag" {
		t.Errorf("prompt = %q", got)
	}
}

func TestResolveAskPromptPositionalBeatsFlag(t *testing.T) {
	if err := askCmd.Flags().Set("prompt", "from flag"); err != nil {
		t.Fatal(err)
	}
	defer askCmd.Flags().Set("prompt", "")

	got, err := resolveAskPrompt(askCmd, []string{"positional wins"})
	if err != nil {
		t.Fatalf("resolveAskPrompt: %v", err)
	}
	if got != "positional wins" {
		t.Errorf("prompt = %q", got)
	}
}
