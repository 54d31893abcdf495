// Package config loads user-level scrybe settings from ~/.scrybe/config.json.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EnvAPIURL overrides the configured backend URL.
const EnvAPIURL = "SCRYBE_API_URL"

// Settings holds the backend endpoint and every request knob sent with a chat
// request. All fields have working defaults so a fresh install needs no
// config file at all.
type Settings struct {
	// APIBaseURL is the research backend. http(s):// selects the SSE
	// transport, ws(s):// the WebSocket transport.
	APIBaseURL string `json:"api_base_url,omitempty"`

	AutoAcceptedPlan              bool `json:"auto_accepted_plan"`
	EnableBackgroundInvestigation bool `json:"enable_background_investigation"`
	MaxPlanIterations             int  `json:"max_plan_iterations,omitempty"`
	MaxStepNum                    int  `json:"max_step_num,omitempty"`
	MaxSearchResults              int  `json:"max_search_results,omitempty"`

	// PaperCheckDelayMS is the debounce window before re-evaluating whether
	// the paper-writing pipeline has finished. Sibling agent messages can
	// commit within a short window of each other; evaluating immediately
	// risks firing before a trailing references_writer has started streaming.
	PaperCheckDelayMS int `json:"paper_check_delay_ms,omitempty"`

	MCPSettings map[string]any `json:"mcp_settings,omitempty"`
}

// Default values applied by Load when the file omits a field.
const (
	DefaultAPIBaseURL        = "http://localhost:8000"
	DefaultMaxPlanIterations = 1
	DefaultMaxStepNum        = 3
	DefaultMaxSearchResults  = 3
	DefaultPaperCheckDelayMS = 1500
)

// Dir returns the scrybe config directory (~/.scrybe), creating it if needed.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	dir := filepath.Join(home, ".scrybe")
	os.MkdirAll(dir, 0755)
	return dir
}

// configPath returns the full path to ~/.scrybe/config.json.
func configPath() string {
	return filepath.Join(Dir(), "config.json")
}

// Load reads ~/.scrybe/config.json, returning defaults if the file is absent.
// SCRYBE_API_URL, when set, overrides the configured backend URL.
func Load() (*Settings, error) {
	cfg := &Settings{}
	data, err := os.ReadFile(configPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if url := strings.TrimSpace(os.Getenv(EnvAPIURL)); url != "" {
		cfg.APIBaseURL = url
	}
	return cfg, nil
}

// Save writes the settings to ~/.scrybe/config.json.
func Save(cfg *Settings) error {
	if cfg == nil {
		cfg = &Settings{}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configPath(), data, 0644)
}

func (s *Settings) applyDefaults() {
	if strings.TrimSpace(s.APIBaseURL) == "" {
		s.APIBaseURL = DefaultAPIBaseURL
	}
	if s.MaxPlanIterations <= 0 {
		s.MaxPlanIterations = DefaultMaxPlanIterations
	}
	if s.MaxStepNum <= 0 {
		s.MaxStepNum = DefaultMaxStepNum
	}
	if s.MaxSearchResults <= 0 {
		s.MaxSearchResults = DefaultMaxSearchResults
	}
	if s.PaperCheckDelayMS <= 0 {
		s.PaperCheckDelayMS = DefaultPaperCheckDelayMS
	}
}

// PaperCheckDelay returns the debounce window as a duration.
func (s *Settings) PaperCheckDelay() time.Duration {
	return time.Duration(s.PaperCheckDelayMS) * time.Millisecond
}
