package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `logging:
  log_level: info
  log_path: ""
gitlab:
  server:
    api_address: https://gitlab.example.com/api/v4
    api_token: literal-token
    sudoers_file: /etc/sudoers.d/glautomata
    instance_list_project: "42"
    instance_file_list: instances.yaml
github:
  server:
    api_token: gh-token
groups:
  - name: devs
    linux_group: devs
    sudoers_line: "%devs   ALL=(ALL)  ALL"
    other_groups: [docker]
    get_users_from_group: true
  - linux_group: ops
    sudoers_line: "%ops ALL=(ALL) NOPASSWD: ALL"
    get_users_from_group: false
`

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig, 0600))
	require.NoError(t, err)

	assert.Equal(t, "https://gitlab.example.com/api/v4", cfg.GitLab.Address)
	assert.Equal(t, "literal-token", cfg.GitLab.Token)
	assert.Equal(t, "gh-token", cfg.GitHub.Token)
	assert.Equal(t, "/etc/sudoers.d/glautomata", cfg.GitLab.SudoersFile)

	// Defaults.
	assert.Equal(t, 1000, cfg.GitLab.ProtectedUIDStart)
	assert.Equal(t, 1000, cfg.GitLab.ProtectedGIDStart)
	assert.Equal(t, "/home", cfg.GitLab.HomeDirPath)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.Address)

	// Group order follows the file; dedupe correctness depends on it.
	require.Len(t, cfg.Groups, 2)
	assert.Equal(t, "devs", cfg.Groups[0].LinuxGroup)
	assert.Equal(t, "ops", cfg.Groups[1].LinuxGroup)
	assert.True(t, cfg.Groups[0].MembersFromGroup)
	assert.False(t, cfg.Groups[1].MembersFromGroup)
	assert.Equal(t, []string{"docker"}, cfg.Groups[0].OtherGroups)
}

func TestLoadCollapsesSudoersWhitespace(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig, 0600))
	require.NoError(t, err)
	assert.Equal(t, "%devs ALL=(ALL) ALL", cfg.Groups[0].SudoersLine)
}

func TestLoadRejectsInsecurePermissions(t *testing.T) {
	_, err := Load(writeConfig(t, validConfig, 0644))
	assert.ErrorIs(t, err, ErrInsecurePermissions)
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	content := "logging:\n  log_level: loud\n" + validConfig[len("logging:\n  log_level: info\n"):]
	_, err := Load(writeConfig(t, content, 0600))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log level")
}

func TestLoadRequiresSudoersFile(t *testing.T) {
	content := `logging:
  log_level: info
gitlab:
  server:
    api_address: https://gitlab.example.com/api/v4
    api_token: tok
groups:
  - name: devs
    linux_group: devs
    sudoers_line: "%devs ALL=(ALL) ALL"
    get_users_from_group: true
`
	_, err := Load(writeConfig(t, content, 0600))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sudoers_file")
}

func TestLoadRequiresManifestSettingsForStaticGroups(t *testing.T) {
	content := `logging:
  log_level: info
gitlab:
  server:
    api_address: https://gitlab.example.com/api/v4
    api_token: tok
    sudoers_file: /etc/sudoers.d/glautomata
groups:
  - linux_group: ops
    sudoers_line: "%ops ALL=(ALL) ALL"
    get_users_from_group: false
`
	_, err := Load(writeConfig(t, content, 0600))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance_list_project")
}

func TestLoadRequiresGroups(t *testing.T) {
	content := `logging:
  log_level: info
gitlab:
  server:
    api_address: https://gitlab.example.com/api/v4
    api_token: tok
    sudoers_file: /etc/sudoers.d/glautomata
groups: []
`
	_, err := Load(writeConfig(t, content, 0600))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no groups")
}

func TestLoadTokenEnvFallback(t *testing.T) {
	content := `logging:
  log_level: info
gitlab:
  server:
    api_address: https://gitlab.example.com/api/v4
    sudoers_file: /etc/sudoers.d/glautomata
groups:
  - name: devs
    linux_group: devs
    sudoers_line: "%devs ALL=(ALL) ALL"
    get_users_from_group: true
`
	t.Setenv("GL_API_TOKEN", "from-env")
	cfg, err := Load(writeConfig(t, content, 0600))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.GitLab.Token)
}

func TestLoggingLevelMapping(t *testing.T) {
	for _, level := range []string{"debug", "info", "warning"} {
		_, err := LoggingConfig{LogLevel: level}.Level()
		assert.NoError(t, err, "level %s", level)
	}
	_, err := LoggingConfig{LogLevel: "trace"}.Level()
	assert.Error(t, err)
}
