package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// AppConfig is the configuration shared by the weather binaries.
//
// Values are resolved in order: built-in defaults, then an optional YAML file,
// then environment variables.
type AppConfig struct {
	// LogDir holds every log file the binaries write. ENV: LOG_DIR
	LogDir string `yaml:"log_dir"`
	// LogLevel is one of debug, info, warn, error. ENV: LOG_LEVEL
	LogLevel string `yaml:"log_level"`

	Server  ServerConfig  `yaml:"server"`
	Agent   AgentConfig   `yaml:"agent"`
	Weather WeatherConfig `yaml:"weather"`
}

// ServerConfig describes how the agent launches the weather server.
type ServerConfig struct {
	// Command is the server argv. ENV: WEATHER_SERVER_COMMAND (space separated)
	Command []string `yaml:"command"`
	// Cwd is the server working directory. ENV: WEATHER_SERVER_CWD
	Cwd string `yaml:"cwd"`
	// RequestTimeout bounds each MCP request. ENV: MCP_REQUEST_TIMEOUT
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// AgentConfig configures the conversation loop.
type AgentConfig struct {
	// Model is the Anthropic model id. ENV: WEATHER_AGENT_MODEL
	Model string `yaml:"model"`
	// MaxTokens caps each model response. ENV: WEATHER_AGENT_MAX_TOKENS
	MaxTokens int64 `yaml:"max_tokens"`
}

// WeatherConfig configures the weather procedures.
type WeatherConfig struct {
	// NWSBaseURL is the National Weather Service API root. ENV: NWS_API_BASE
	NWSBaseURL string `yaml:"nws_base_url"`
	// GeocodingAPIKey is the Google Geocoding key. ENV: GOOGLE_GEOCODING_API_KEY
	GeocodingAPIKey string `yaml:"-"`
}

// envOverrides carries no defaults so that unset variables leave file values alone.
type envOverrides struct {
	LogDir          string        `env:"LOG_DIR"`
	LogLevel        string        `env:"LOG_LEVEL"`
	ServerCommand   string        `env:"WEATHER_SERVER_COMMAND"`
	ServerCwd       string        `env:"WEATHER_SERVER_CWD"`
	RequestTimeout  time.Duration `env:"MCP_REQUEST_TIMEOUT"`
	Model           string        `env:"WEATHER_AGENT_MODEL"`
	MaxTokens       int64         `env:"WEATHER_AGENT_MAX_TOKENS"`
	NWSBaseURL      string        `env:"NWS_API_BASE"`
	GeocodingAPIKey string        `env:"GOOGLE_GEOCODING_API_KEY"`
}

// DefaultAppConfig returns the built-in defaults.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		LogDir:   "logs",
		LogLevel: "info",
		Server: ServerConfig{
			Command:        []string{"weather-server"},
			Cwd:            ".",
			RequestTimeout: DefaultRequestTimeout,
		},
		Agent: AgentConfig{
			Model:     "claude-haiku-4-5-20251001",
			MaxTokens: 4096,
		},
		Weather: WeatherConfig{
			NWSBaseURL: "https://api.weather.gov",
		},
	}
}

// LoadAppConfig resolves the application configuration. An empty path skips
// the YAML file; a path that does not exist is an error.
func LoadAppConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	var env envOverrides
	if err := envdecode.Decode(&env); err != nil && !stderrors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	cfg.applyEnv(&env)

	if len(cfg.Server.Command) == 0 {
		return nil, fmt.Errorf("server command is empty")
	}

	return cfg, nil
}

func (c *AppConfig) applyEnv(env *envOverrides) {
	setString(&c.LogDir, env.LogDir)
	setString(&c.LogLevel, env.LogLevel)
	setString(&c.Server.Cwd, env.ServerCwd)
	setString(&c.Agent.Model, env.Model)
	setString(&c.Weather.NWSBaseURL, env.NWSBaseURL)
	setString(&c.Weather.GeocodingAPIKey, env.GeocodingAPIKey)

	if fields := strings.Fields(env.ServerCommand); len(fields) > 0 {
		c.Server.Command = fields
	}

	if env.RequestTimeout > 0 {
		c.Server.RequestTimeout = env.RequestTimeout
	}

	if env.MaxTokens > 0 {
		c.Agent.MaxTokens = env.MaxTokens
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
