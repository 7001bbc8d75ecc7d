package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/cardsync/internal/carddav"
	"github.com/starford/cardsync/internal/syncer"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	Sync   SyncConfig        `yaml:"sync"`
	ICloud ICloudConfig      `yaml:"icloud"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.ICloud.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// SyncerOptions maps the configuration onto the sync settings.
func (c *Config) SyncerOptions() syncer.Options {
	return syncer.Options{
		ICloudUserName:              c.ICloud.Username,
		ICloudPassword:              c.ICloud.Password,
		PeoplePath:                  c.Sync.PeoplePath,
		IncludeContactsWithoutNames: c.Sync.IncludeContactsWithoutNames,
		IncludeContactInfoTagging:   c.Sync.IncludeContactInfoTagging,
	}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level    `yaml:"log_level"`
	LogFile  LogFileConfig `yaml:"log_file"`
	HTTP     HTTPConfig    `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.LogFile.Validate(); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// LogFileConfig enables a rotating JSON log file. An empty Path logs to
// the console.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Validate validates the log file configuration.
func (c *LogFileConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
		validation.Field(&c.MaxAgeDays, validation.Min(0)),
	)
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

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SyncConfig holds the contact sync settings.
//
// PeoplePath is relative to the vault; an empty value means the vault root.
// A zero Interval disables scheduled passes in serve mode.
type SyncConfig struct {
	PeoplePath                  string        `yaml:"people_path"`
	IncludeContactsWithoutNames bool          `yaml:"include_contacts_without_names"`
	IncludeContactInfoTagging   bool          `yaml:"include_contact_info_tagging"`
	Interval                    time.Duration `yaml:"interval"`
	OnStart                     bool          `yaml:"on_start"`
	Watch                       bool          `yaml:"watch"`
	WatchDebounce               time.Duration `yaml:"watch_debounce"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.When(c.Interval != 0, validation.Min(time.Minute))),
		validation.Field(&c.WatchDebounce, validation.Min(time.Duration(0))),
	)
}

// ICloudConfig holds the CardDAV account.
//
// Credentials are not required here: a pass without them stops with a
// notice instead, so the server can start before they are configured.
type ICloudConfig struct {
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Endpoint    string        `yaml:"endpoint"`
	AddressBook string        `yaml:"address_book"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Validate validates the CardDAV configuration.
func (c *ICloudConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds the ledger database configuration.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			LogFile: LogFileConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		Sync: SyncConfig{
			PeoplePath:    "people",
			WatchDebounce: 2 * time.Second,
		},
		ICloud: ICloudConfig{
			Endpoint:    carddav.DefaultEndpoint,
			AddressBook: carddav.DefaultAddressBook,
			Timeout:     time.Minute,
		},
		SQLite: SQLiteConfig{
			Path: "./cardsync.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
