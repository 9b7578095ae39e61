package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/meowtion/sensor/internal/roster"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Oracle OracleConfig      `yaml:"oracle"`
	Roster RosterConfig      `yaml:"roster"`
	Match  MatchConfig       `yaml:"match"`
	Map    MapConfig         `yaml:"map"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Oracle.Validate(); err != nil {
		return err
	}
	if err := c.Roster.Validate(); err != nil {
		return err
	}
	if err := c.Match.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
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

// OracleConfig holds access to the external multimodal model. The API key
// is normally injected via environment expansion (${GEMINI_API_KEY}).
type OracleConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the overall deadline applied to one oracle invocation
// (and, via the match fan-out, to the whole gather).
func (c *OracleConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate validates the oracle configuration. A missing credential is a
// startup failure, never discovered lazily at request time.
func (c *OracleConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIKey, validation.Required),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.TimeoutSeconds, validation.Min(1)),
	)
}

// RosterConfig holds the known-cat registry: the directory of reference
// image assets and the cat entries resolved against it.
type RosterConfig struct {
	AssetsDir string         `yaml:"assets_dir"`
	Cats      []roster.Entry `yaml:"cats"`
}

// Validate validates the roster configuration. Full invariants (unique
// names, at least one image per cat) are enforced by roster.New at build
// time; this catches the empty cases early with a config-shaped error.
func (c *RosterConfig) Validate() error {
	if c.AssetsDir == "" {
		return fmt.Errorf("roster: assets_dir is required")
	}
	if len(c.Cats) == 0 {
		return fmt.Errorf("roster: at least one cat is required")
	}
	return nil
}

// MatchConfig holds the match decision policy. Both values are tunable
// policy parameters pending product-owner review, not derived constants.
type MatchConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxConflicts        int     `yaml:"max_conflicts"`
}

// Validate validates the match policy.
func (c *MatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SimilarityThreshold, validation.Required, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.MaxConflicts, validation.Min(0)),
	)
}

// MapLocation is one seeded campus map pin.
type MapLocation struct {
	Name        string  `yaml:"name"`
	Lat         float64 `yaml:"lat"`
	Lng         float64 `yaml:"lng"`
	Description string  `yaml:"description"`
}

// MapConfig holds the seeded campus locations of known cats.
type MapConfig struct {
	Locations []MapLocation `yaml:"locations"`
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
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
	// Normalise empty mode to "disabled" for backward compatibility.
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

// NewDefaultConfig returns a new Config with sensible default values,
// including the campus roster the app ships with.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Oracle: OracleConfig{
			APIKey:         "${GEMINI_API_KEY}",
			Model:          "gemini-2.5-flash",
			TimeoutSeconds: 120,
		},
		Roster: RosterConfig{
			AssetsDir: "./assets/known-cats",
			Cats: []roster.Entry{
				{Name: "Microwave", Images: []string{"microwave.webp", "microwave2.jpg", "microwave3.jpg"}},
				{Name: "Twix", Images: []string{"twix.jpg", "twix2.jpg", "twix3.jpg"}},
				{Name: "Oreo", Images: []string{"oreo.jpg", "oreo2.jpeg", "oreo3.png"}},
				{Name: "Eggs", Images: []string{"eggs1.png", "eggs2.png", "eggs3.png"}},
				{Name: "Snickers", Images: []string{"snickers1.png", "snickers2.png", "snickers3.png"}},
			},
		},
		Match: MatchConfig{
			SimilarityThreshold: 0.75,
			MaxConflicts:        1,
		},
		Map: MapConfig{
			Locations: []MapLocation{
				{Name: "Microwave", Lat: 32.73075943089946, Lng: -97.11194459433784, Description: "Courtyard prowler known for scavenging snacks."},
				{Name: "Snickers", Lat: 32.73136320465538, Lng: -97.11238129897278, Description: "Often spotted lounging near the library steps."},
				{Name: "Eggs", Lat: 32.7298388011233, Lng: -97.11042768317395, Description: "Campus celebrity that naps by the science building."},
				{Name: "Twix", Lat: 32.73109871375422, Lng: -97.11028512162308, Description: "Shy tabby that loves the shaded planters."},
			},
		},
		SQLite: SQLiteConfig{
			Path: "./meowtion.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
