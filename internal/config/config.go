// Package config loads and validates the glautomata configuration file.
//
// The file is YAML, typically /etc/glautomata/config.yaml, and is parsed once
// per run into a fully-typed Config. All validation happens here: unknown log
// levels, missing required fields, and empty group definitions are rejected
// before any remote call or host mutation takes place.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/automata-ops/glautomata/internal/logger"
	"github.com/automata-ops/glautomata/internal/secrets"
	"github.com/automata-ops/glautomata/internal/sudoers"
)

// ErrInsecurePermissions is returned when the config file is readable by
// anyone besides its owner. The file carries API tokens; main exits with a
// dedicated status so operators notice.
var ErrInsecurePermissions = errors.New("config file permissions allow non-owner access")

const tokenEnvVar = "GL_API_TOKEN"

// GroupConfig ties one remote group to one managed Linux group.
type GroupConfig struct {
	Name             string   `mapstructure:"name"`
	LinuxGroup       string   `mapstructure:"linux_group"`
	SudoersLine      string   `mapstructure:"sudoers_line"`
	OtherGroups      []string `mapstructure:"other_groups"`
	MembersFromGroup bool     `mapstructure:"get_users_from_group"`
}

type GitLabConfig struct {
	Address           string `mapstructure:"api_address"`
	Token             string `mapstructure:"api_token"`
	SudoersFile       string `mapstructure:"sudoers_file"`
	HomeDirPath       string `mapstructure:"home_dir_path"`
	ProtectedUIDStart int    `mapstructure:"protected_uid_start"`
	ProtectedGIDStart int    `mapstructure:"protected_gid_start"`
	InstanceProject   string `mapstructure:"instance_list_project"`
	InstanceFile      string `mapstructure:"instance_file_list"`
}

type GitHubConfig struct {
	Address           string `mapstructure:"api_address"`
	Token             string `mapstructure:"api_token"`
	AppID             int64  `mapstructure:"app_id"`
	AppInstallationID int64  `mapstructure:"app_installation_id"`
	AppPrivateKeyPath string `mapstructure:"app_private_key_path"`
}

type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

type Config struct {
	GitLab  GitLabConfig  `mapstructure:"-"`
	GitHub  GitHubConfig  `mapstructure:"-"`
	Logging LoggingConfig `mapstructure:"logging"`
	// Groups preserves file order; cross-group dedupe depends on groups
	// being processed exactly in this order.
	Groups []GroupConfig `mapstructure:"groups"`
}

// Level maps the configured log level name to a logger level.
func (l LoggingConfig) Level() (logger.Level, error) {
	switch l.LogLevel {
	case "debug":
		return logger.LevelDebug, nil
	case "info":
		return logger.LevelInfo, nil
	case "warning":
		return logger.LevelWarn, nil
	}
	return 0, fmt.Errorf("unknown log level %q", l.LogLevel)
}

// Load reads, validates, and resolves the configuration at path.
func Load(path string) (*Config, error) {
	if err := checkPermissions(path); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("logging.log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := v.UnmarshalKey("gitlab.server", &cfg.GitLab); err != nil {
		return nil, fmt.Errorf("parsing gitlab config: %w", err)
	}
	if err := v.UnmarshalKey("github.server", &cfg.GitHub); err != nil {
		return nil, fmt.Errorf("parsing github config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := cfg.resolveTokens(); err != nil {
		return nil, err
	}

	for i := range cfg.Groups {
		cfg.Groups[i].SudoersLine = sudoers.SanitizeLine(cfg.Groups[i].SudoersLine)
	}
	return &cfg, nil
}

// applyDefaults fills the optional server settings. Viper's UnmarshalKey
// does not merge SetDefault values, so these live here.
func (c *Config) applyDefaults() {
	if c.GitLab.ProtectedUIDStart == 0 {
		c.GitLab.ProtectedUIDStart = 1000
	}
	if c.GitLab.ProtectedGIDStart == 0 {
		c.GitLab.ProtectedGIDStart = 1000
	}
	if c.GitLab.HomeDirPath == "" {
		c.GitLab.HomeDirPath = "/home"
	}
	if c.GitHub.Address == "" {
		c.GitHub.Address = "https://api.github.com"
	}
}

func (c *Config) validate() error {
	if _, err := c.Logging.Level(); err != nil {
		return err
	}
	if c.GitLab.Address == "" {
		return errors.New("gitlab.server.api_address must be set")
	}
	if c.GitLab.SudoersFile == "" {
		return errors.New("gitlab.server.sudoers_file must be set")
	}
	if len(c.Groups) == 0 {
		return errors.New("no groups configured")
	}
	for i, g := range c.Groups {
		if g.LinuxGroup == "" {
			return fmt.Errorf("groups[%d]: linux_group must be set", i)
		}
		if g.SudoersLine == "" {
			return fmt.Errorf("groups[%d] (%s): sudoers_line must be set", i, g.LinuxGroup)
		}
		if g.MembersFromGroup && g.Name == "" {
			return fmt.Errorf("groups[%d] (%s): name must be set for live group queries", i, g.LinuxGroup)
		}
		if !g.MembersFromGroup {
			if c.GitLab.InstanceProject == "" || c.GitLab.InstanceFile == "" {
				return fmt.Errorf("groups[%d] (%s): manifest resolution needs instance_list_project and instance_file_list", i, g.LinuxGroup)
			}
		}
	}
	if c.GitHub.AppID != 0 {
		if c.GitHub.AppInstallationID == 0 || c.GitHub.AppPrivateKeyPath == "" {
			return errors.New("github app auth needs app_installation_id and app_private_key_path")
		}
	}
	return nil
}

// resolveTokens applies SSM indirection and the env fallback to both API
// tokens. An absent GitLab token falls back to GL_API_TOKEN, matching how
// deployments inject it from the scheduler environment.
func (c *Config) resolveTokens() error {
	var err error
	if c.GitLab.Token == "" {
		c.GitLab.Token = os.Getenv(tokenEnvVar)
	}
	if c.GitLab.Token, err = secrets.ResolveToken(c.GitLab.Token); err != nil {
		return fmt.Errorf("resolving gitlab token: %w", err)
	}
	if c.GitHub.Token, err = secrets.ResolveToken(c.GitHub.Token); err != nil {
		return fmt.Errorf("resolving github token: %w", err)
	}
	return nil
}

func checkPermissions(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	if st.Mode().Perm()&0077 != 0 {
		return fmt.Errorf("%w: %s is mode %04o, want 0400 or stricter", ErrInsecurePermissions, path, st.Mode().Perm())
	}
	return nil
}
