package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Completion Completion `yaml:"completion"`
	Signals    Signals    `yaml:"signals"`
	Limits     Limits     `yaml:"limits"`
	Dedup      Dedup      `yaml:"dedup"`
	Quality    Quality    `yaml:"quality"`
	Publish    Publish    `yaml:"publish"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Completion struct {
	BaseURL            string  `yaml:"base_url"`
	Model              string  `yaml:"model"`
	APIKeyEnv          string  `yaml:"api_key_env"`
	MaxTokensIdeas     int     `yaml:"max_tokens_ideas"`
	MaxTokensBuild     int     `yaml:"max_tokens_build"`
	Temperature        float64 `yaml:"temperature"`
	Retries            int     `yaml:"retries"`
	BackoffSeconds     int     `yaml:"backoff_seconds"`
	StreamTimeoutMin   int     `yaml:"stream_timeout_min"`
	FallbackTimeoutMin int     `yaml:"fallback_timeout_min"`
}

type Signals struct {
	Channels        []string `yaml:"channels"`
	Keywords        []string `yaml:"keywords"`
	Feeds           []Feed   `yaml:"feeds"`
	ClientIDEnv     string   `yaml:"client_id_env"`
	ClientSecretEnv string   `yaml:"client_secret_env"`
	PageSize        int      `yaml:"page_size"`
	MinEngagement   int      `yaml:"min_engagement"`
	FetchTopPost    bool     `yaml:"fetch_top_post"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Limits struct {
	IdeasPerDay          int `yaml:"ideas_per_day"`
	BuildsPerDay         int `yaml:"builds_per_day"`
	MaxFailures          int `yaml:"max_failures"`
	DiscoveryIntervalMin int `yaml:"discovery_interval_min"`
	BuildIntervalMin     int `yaml:"build_interval_min"`
	HealthIntervalMin    int `yaml:"health_interval_min"`
}

// Dedup thresholds are empirically chosen and deliberately tunable.
type Dedup struct {
	TitleThreshold       float64 `yaml:"title_threshold"`
	LooseTitleThreshold  float64 `yaml:"loose_title_threshold"`
	DescriptionThreshold float64 `yaml:"description_threshold"`
}

type Quality struct {
	PassThreshold int `yaml:"pass_threshold"`
	MinFiles      int `yaml:"min_files"`
}

type Publish struct {
	GitHubTokenEnv string `yaml:"github_token_env"`
	GitHubOwner    string `yaml:"github_owner"`
	VercelTokenEnv string `yaml:"vercel_token_env"`
	ExpoTokenEnv   string `yaml:"expo_token_env"`
	NotifyURLEnv   string `yaml:"notify_url_env"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// ConfigDir returns the XDG config directory for mvpforge.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "mvpforge")
}

// DataDir returns the XDG data directory for mvpforge.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "mvpforge")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/mvpforge/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'mvpforge init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Completion: Completion{
			BaseURL:            "https://integrate.api.nvidia.com/v1",
			Model:              "moonshotai/kimi-k2.5",
			APIKeyEnv:          "NVIDIA_API_KEY",
			MaxTokensIdeas:     8192,
			MaxTokensBuild:     30000,
			Temperature:        0.7,
			Retries:            3,
			BackoffSeconds:     10,
			StreamTimeoutMin:   15,
			FallbackTimeoutMin: 20,
		},
		Signals: Signals{
			ClientIDEnv:     "REDDIT_CLIENT_ID",
			ClientSecretEnv: "REDDIT_CLIENT_SECRET",
			PageSize:        25,
			MinEngagement:   10,
		},
		Limits: Limits{
			IdeasPerDay:          10,
			BuildsPerDay:         12,
			MaxFailures:          3,
			DiscoveryIntervalMin: 60,
			BuildIntervalMin:     20,
			HealthIntervalMin:    30,
		},
		Dedup: Dedup{
			TitleThreshold:       0.6,
			LooseTitleThreshold:  0.3,
			DescriptionThreshold: 0.5,
		},
		Quality: Quality{
			PassThreshold: 60,
			MinFiles:      6,
		},
		Publish: Publish{
			GitHubTokenEnv: "GITHUB_TOKEN",
			VercelTokenEnv: "VERCEL_TOKEN",
			ExpoTokenEnv:   "EXPO_TOKEN",
			NotifyURLEnv:   "NOTIFY_WEBHOOK_URL",
		},
		Server:  Server{Port: 8700},
		Logging: Logging{File: "factory.log", MaxSizeMB: 10},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// APIKey reads the completion service key from the configured env var.
func (c *Completion) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// Backoff returns the base backoff duration between completion retries.
func (c *Completion) Backoff() time.Duration {
	if c.BackoffSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.BackoffSeconds) * time.Second
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
