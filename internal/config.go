package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/workboard/internal/model"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Tracker  TrackerConfig     `yaml:"tracker"`
	Board    BoardConfig       `yaml:"board"`
	Sync     SyncConfig        `yaml:"sync"`
	Rank     RankConfig        `yaml:"rank"`
	Audit    AuditConfig       `yaml:"audit"`
	Schedule ScheduleConfig    `yaml:"schedule"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Tracker.Validate(); err != nil {
		return err
	}
	if err := c.Board.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Rank.Validate(); err != nil {
		return err
	}
	if err := c.Audit.Validate(); err != nil {
		return err
	}
	return c.Schedule.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	Auth     AuthConfig `yaml:"auth"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// AuthConfig holds API authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// TrackerConfig holds the tracker endpoint and the projects to reconcile.
type TrackerConfig struct {
	BaseURL  string   `yaml:"base_url"`
	Token    string   `yaml:"token"`
	Projects []string `yaml:"projects"`
}

// Validate validates the tracker configuration.
func (c *TrackerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Projects, validation.Required, validation.Length(1, 0)),
	)
}

// BoardConfig holds the Kanban board endpoint.
type BoardConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Token     string `yaml:"token"`
	ProjectID int    `yaml:"project_id"`
}

// Validate validates the board configuration.
func (c *BoardConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.ProjectID, validation.Required, validation.Min(1)),
	)
}

// SyncConfig holds the reconciliation policy.
type SyncConfig struct {
	// StateColumns maps record states (open, closed, merged) onto column
	// titles. Checked against the live board before each pass.
	StateColumns map[string]string `yaml:"state_columns"`

	// ColumnOrder is the forward ordering of managed columns.
	ColumnOrder []string `yaml:"column_order"`

	ManualTagPrefix string `yaml:"manual_tag_prefix"`
	Swimlane        string `yaml:"swimlane"`
	MaxDepth        int    `yaml:"max_depth"`
	Prune           bool   `yaml:"prune"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ColumnOrder, validation.Required, validation.Length(1, 0)),
		validation.Field(&c.MaxDepth, validation.Min(0)),
	); err != nil {
		return err
	}
	for state := range c.StateColumns {
		switch state {
		case "open", "closed", "merged":
		default:
			return fmt.Errorf("sync: state columns: unknown state %q", state)
		}
	}
	return nil
}

// StateColumnMap converts the YAML string keys into record states.
func (c *SyncConfig) StateColumnMap() map[model.RecordState]string {
	out := make(map[model.RecordState]string, len(c.StateColumns))
	for state, col := range c.StateColumns {
		out[model.ParseState(state)] = col
	}
	return out
}

// RankConfig holds the review ranking policy.
type RankConfig struct {
	ReviewColumn string `yaml:"review_column"`
	Swimlane     string `yaml:"swimlane"`

	// Offsets are additive per-unit latency corrections in days, keyed by
	// canonical ref. Reloaded live in serve mode.
	Offsets map[string]int `yaml:"offsets"`
}

// Validate validates the rank configuration.
func (c *RankConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ReviewColumn, validation.Required),
	)
}

// AuditConfig holds the audit database path.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the audit configuration.
func (c *AuditConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ScheduleConfig holds the serve-mode schedule.
type ScheduleConfig struct {
	Cron string `yaml:"cron"`
}

// Validate validates the schedule configuration.
func (c *ScheduleConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Cron, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			Auth: AuthConfig{
				Mode: AuthModeDisabled,
			},
		},
		Sync: SyncConfig{
			StateColumns: map[string]string{
				"open":   "In Progress",
				"closed": "Done",
				"merged": "Done",
			},
			ColumnOrder:     []string{"Backlog", "In Progress", "Review", "Done"},
			ManualTagPrefix: "manual-",
			MaxDepth:        5,
		},
		Rank: RankConfig{
			ReviewColumn: "Review",
		},
		Audit: AuditConfig{
			Path: "./workboard.db",
		},
		Schedule: ScheduleConfig{
			Cron: "*/15 * * * *",
		},
	}
}
