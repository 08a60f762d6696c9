package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MEKXH/warden/internal/policy"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config root configuration
type Config struct {
	Agent     AgentConfig     `mapstructure:"agent"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Log       LogConfig       `mapstructure:"log"`
	Tools     ToolsConfig     `mapstructure:"tools"`
}

// AgentConfig planner and workspace settings
type AgentConfig struct {
	Workspace     string `mapstructure:"workspace"`
	WorkspaceMode string `mapstructure:"workspace_mode"`
	Model         string `mapstructure:"model"`
}

// PolicyConfig trust boundary settings
type PolicyConfig struct {
	AllowedDirectories       []string          `mapstructure:"allowed_directories"`
	BlockedCommands          []string          `mapstructure:"blocked_commands"`
	SafeCommands             []string          `mapstructure:"safe_commands"`
	ShellEnabled             bool              `mapstructure:"shell_enabled"`
	BrowserEnabled           bool              `mapstructure:"browser_enabled"`
	RequireApprovalForWrites bool              `mapstructure:"require_approval_for_writes"`
	RiskOverrides            map[string]string `mapstructure:"risk_overrides"`
}

// ApprovalConfig approval gate settings
type ApprovalConfig struct {
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
	AuthorizedUsers []string `mapstructure:"authorized_users"`
}

// ChannelsConfig channel settings
type ChannelsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig telegram bot settings
type TelegramConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Token     string   `mapstructure:"token"`
	AllowFrom []string `mapstructure:"allow_from"`
}

// ProvidersConfig LLM provider settings
type ProvidersConfig struct {
	OpenRouter ProviderConfig `mapstructure:"openrouter"`
	OpenAI     ProviderConfig `mapstructure:"openai"`
	DeepSeek   ProviderConfig `mapstructure:"deepseek"`
}

// ProviderConfig single provider settings
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// GatewayConfig control API settings
type GatewayConfig struct {
	Host  string `mapstructure:"host"`
	Port  int    `mapstructure:"port"`
	Token string `mapstructure:"token"`
}

// LogConfig application logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// ToolsConfig tool settings
type ToolsConfig struct {
	Web  WebToolsConfig `mapstructure:"web"`
	Exec ExecToolConfig `mapstructure:"exec"`
}

// WebToolsConfig web tool settings
type WebToolsConfig struct {
	Search WebSearchConfig `mapstructure:"search"`
}

// WebSearchConfig brave search settings
type WebSearchConfig struct {
	APIKey     string `mapstructure:"api_key"`
	MaxResults int    `mapstructure:"max_results"`
}

// ExecToolConfig shell exec settings
type ExecToolConfig struct {
	Timeout int `mapstructure:"timeout"`
}

// DefaultConfig returns config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Workspace:     filepath.Join(ConfigDir(), "workspace"),
			WorkspaceMode: "default",
			Model:         "anthropic/claude-sonnet-4-5",
		},
		Policy: PolicyConfig{
			AllowedDirectories:       []string{},
			BlockedCommands:          []string{},
			SafeCommands:             []string{},
			ShellEnabled:             true,
			BrowserEnabled:           true,
			RequireApprovalForWrites: true,
			RiskOverrides:            map[string]string{},
		},
		Approval: ApprovalConfig{
			TimeoutSeconds:  300,
			AuthorizedUsers: []string{},
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:   false,
				AllowFrom: []string{},
			},
		},
		Providers: ProvidersConfig{},
		Gateway: GatewayConfig{
			Host:  "127.0.0.1",
			Port:  18790,
			Token: "",
		},
		Log: LogConfig{
			Level: "info",
			File:  "",
		},
		Tools: ToolsConfig{
			Web: WebToolsConfig{
				Search: WebSearchConfig{
					MaxResults: 5,
				},
			},
			Exec: ExecToolConfig{
				Timeout: 60,
			},
		},
	}
}

// ConfigDir returns the warden config directory
func ConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("failed to resolve home directory, using current directory as fallback", "error", err)
		homeDir = "."
	}
	return filepath.Join(homeDir, ".warden")
}

// ConfigPath returns the config file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load loads config from file or returns defaults
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom loads config from an explicit path.
func LoadFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveTo(cfg, configPath); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("WARDEN")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Save saves config to the default path
func Save(cfg *Config) error {
	return SaveTo(cfg, ConfigPath())
}

// SaveTo saves config to an explicit path
func SaveTo(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks that the configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	mode := strings.TrimSpace(c.Agent.WorkspaceMode)
	if mode != "" {
		validModes := map[string]bool{"default": true, "cwd": true, "path": true}
		if !validModes[strings.ToLower(mode)] {
			return fmt.Errorf("agent.workspace_mode must be one of: default, cwd, path; got %q", mode)
		}
		if strings.EqualFold(mode, "path") && strings.TrimSpace(c.Agent.Workspace) == "" {
			return fmt.Errorf("agent.workspace must be non-empty when workspace_mode is \"path\"")
		}
	}

	if c.Approval.TimeoutSeconds < 0 {
		return fmt.Errorf("approval.timeout_seconds must not be negative, got %d", c.Approval.TimeoutSeconds)
	}
	if c.Approval.TimeoutSeconds == 0 {
		c.Approval.TimeoutSeconds = 300
	}

	for name, level := range c.Policy.RiskOverrides {
		if _, ok := policy.ParseRiskLevel(level); !ok {
			return fmt.Errorf("policy.risk_overrides[%s] has unknown level %q", name, level)
		}
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level == "" {
		c.Log.Level = "info"
	} else {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
		}
		c.Log.Level = level
	}

	if c.Tools.Exec.Timeout < 0 {
		return fmt.Errorf("tools.exec.timeout must not be negative, got %d", c.Tools.Exec.Timeout)
	}
	if c.Tools.Exec.Timeout == 0 {
		c.Tools.Exec.Timeout = 60
	}

	return nil
}

// PolicyEngineConfig converts the file representation into engine settings. The
// workspace is always part of the allowed directories.
func (c *Config) PolicyEngineConfig(workspace string) policy.Config {
	dirs := append([]string{}, c.Policy.AllowedDirectories...)
	if workspace != "" {
		found := false
		for _, d := range dirs {
			if d == workspace {
				found = true
				break
			}
		}
		if !found {
			dirs = append(dirs, workspace)
		}
	}

	overrides := make(map[string]policy.RiskLevel, len(c.Policy.RiskOverrides))
	for name, raw := range c.Policy.RiskOverrides {
		if level, ok := policy.ParseRiskLevel(raw); ok {
			overrides[name] = level
		}
	}

	return policy.Config{
		AllowedDirectories:       dirs,
		BlockedCommands:          c.Policy.BlockedCommands,
		SafeCommands:             c.Policy.SafeCommands,
		ShellEnabled:             c.Policy.ShellEnabled,
		BrowserEnabled:           c.Policy.BrowserEnabled,
		RequireApprovalForWrites: c.Policy.RequireApprovalForWrites,
		RiskOverrides:            overrides,
	}
}

// WorkspacePath returns the expanded workspace path
func (c *Config) WorkspacePath() string {
	path, err := c.WorkspacePathChecked()
	if err != nil {
		return filepath.Join(ConfigDir(), "workspace")
	}
	return path
}

// WorkspacePathChecked returns the expanded workspace path or an error if invalid.
func (c *Config) WorkspacePathChecked() (string, error) {
	mode := strings.TrimSpace(c.Agent.WorkspaceMode)
	if mode == "" || strings.EqualFold(mode, "default") {
		return filepath.Join(ConfigDir(), "workspace"), nil
	}
	if strings.EqualFold(mode, "cwd") {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to resolve cwd: %w", err)
		}
		return wd, nil
	}
	if !strings.EqualFold(mode, "path") {
		return "", fmt.Errorf("unknown workspace_mode: %s", mode)
	}
	if c.Agent.Workspace == "" {
		return "", fmt.Errorf("workspace is required when workspace_mode=path")
	}
	if c.Agent.Workspace[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory for workspace path: %w", err)
		}
		rest := strings.TrimPrefix(c.Agent.Workspace[1:], "/")
		return filepath.Join(homeDir, rest), nil
	}
	return c.Agent.Workspace, nil
}
