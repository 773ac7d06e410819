package internal

import (
	"testing"

	"github.com/starford/workboard/internal/model"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Tracker = TrackerConfig{
		BaseURL:  "https://tracker.example.com",
		Token:    "t",
		Projects: []string{"proj"},
	}
	cfg.Board = BoardConfig{
		Endpoint:  "https://board.example.com/jsonrpc.php",
		Token:     "t",
		ProjectID: 1,
	}
	return cfg
}

func TestConfigValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestConfigValidate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.App.HTTP.Port = 0 }},
		{"token auth without token", func(c *Config) { c.App.Auth.Mode = AuthModeToken }},
		{"no tracker url", func(c *Config) { c.Tracker.BaseURL = "" }},
		{"no projects", func(c *Config) { c.Tracker.Projects = nil }},
		{"no board project", func(c *Config) { c.Board.ProjectID = 0 }},
		{"unknown state key", func(c *Config) { c.Sync.StateColumns["reopened"] = "Backlog" }},
		{"empty column order", func(c *Config) { c.Sync.ColumnOrder = nil }},
		{"no review column", func(c *Config) { c.Rank.ReviewColumn = "" }},
		{"no audit path", func(c *Config) { c.Audit.Path = "" }},
		{"no cron", func(c *Config) { c.Schedule.Cron = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestStateColumnMap(t *testing.T) {
	cfg := validConfig()
	m := cfg.Sync.StateColumnMap()
	if m[model.StateOpen] != "In Progress" {
		t.Errorf("open -> %q", m[model.StateOpen])
	}
	if m[model.StateClosed] != "Done" || m[model.StateMerged] != "Done" {
		t.Errorf("terminal states = %q / %q", m[model.StateClosed], m[model.StateMerged])
	}
}

func TestAuthEnabled(t *testing.T) {
	auth := AuthConfig{Mode: AuthModeToken, Token: "x"}
	if !auth.AuthEnabled() {
		t.Error("token mode should enable auth")
	}
	auth = AuthConfig{}
	if err := auth.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if auth.AuthEnabled() {
		t.Error("disabled mode should not enable auth")
	}
}
