package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root BDK configuration, read from a YAML file.
//
// The top-level scheme/host/port/context act as defaults for the pod,
// agent and key manager endpoints: any field left unset on an endpoint is
// inherited from them.
type Config struct {
	Scheme  string `yaml:"scheme"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Context string `yaml:"context"`

	Pod        EndpointConfig `yaml:"pod"`
	Agent      EndpointConfig `yaml:"agent"`
	KeyManager EndpointConfig `yaml:"keyManager"`

	Bot      BotConfig      `yaml:"bot"`
	App      AppConfig      `yaml:"app"`
	Datafeed DatafeedConfig `yaml:"datafeed"`
	Retry    RetryConfig    `yaml:"retry"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// EndpointConfig locates one of the platform's services.
type EndpointConfig struct {
	Scheme  string `yaml:"scheme"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Context string `yaml:"context"`
}

// URL renders the endpoint base URL.
func (e EndpointConfig) URL() string {
	host := e.Host
	if e.Port != 0 {
		host += ":" + strconv.Itoa(e.Port)
	}
	u := url.URL{Scheme: e.Scheme, Host: host}
	if ctx := strings.Trim(e.Context, "/"); ctx != "" {
		u.Path = "/" + ctx
	}
	return u.String()
}

type BotConfig struct {
	Username   string           `yaml:"username"`
	PrivateKey PrivateKeyConfig `yaml:"privateKey"`
}

type AppConfig struct {
	AppID      string           `yaml:"appId"`
	PrivateKey PrivateKeyConfig `yaml:"privateKey"`
}

type PrivateKeyConfig struct {
	Path string `yaml:"path"`
}

type DatafeedConfig struct {
	Version string      `yaml:"version"`
	Retry   RetryConfig `yaml:"retry"`
	// ListenerDelaySeconds is how long the demo listener pauses per message.
	ListenerDelaySeconds int `yaml:"listenerDelaySeconds"`
}

// RetryConfig is an exponential backoff policy.
type RetryConfig struct {
	MaxAttempts           int     `yaml:"maxAttempts"`
	InitialIntervalMillis int     `yaml:"initialIntervalMillis"`
	Multiplier            float64 `yaml:"multiplier"`
	MaxIntervalMillis     int     `yaml:"maxIntervalMillis"`
}

// AMQPConfig configures the broker the datafeed events are consumed from.
type AMQPConfig struct {
	URL          string `yaml:"url"`
	Exchange     string `yaml:"exchange"`
	Queue        string `yaml:"queue"` // default: datafeed.<datafeed id>
	RoutingKey   string `yaml:"routingKey"`
	Prefetch     int    `yaml:"prefetch"`
	DialAttempts int    `yaml:"dialAttempts"`
}

type StoreConfig struct {
	DBPath        string `yaml:"dbPath"`
	RetentionDays int    `yaml:"retentionDays"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// SlogLevel maps Level onto slog. Unknown values map to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// PodEndpoint returns the pod endpoint with unset fields inherited.
func (c *Config) PodEndpoint() EndpointConfig { return c.inherit(c.Pod) }

// AgentEndpoint returns the agent endpoint with unset fields inherited.
func (c *Config) AgentEndpoint() EndpointConfig { return c.inherit(c.Agent) }

// KeyManagerEndpoint returns the key manager endpoint with unset fields inherited.
func (c *Config) KeyManagerEndpoint() EndpointConfig { return c.inherit(c.KeyManager) }

func (c *Config) inherit(e EndpointConfig) EndpointConfig {
	if e.Scheme == "" {
		e.Scheme = c.Scheme
	}
	if e.Host == "" {
		e.Host = c.Host
	}
	if e.Port == 0 {
		e.Port = c.Port
	}
	if e.Context == "" {
		e.Context = c.Context
	}
	return e
}

// DefaultConfigDir returns the default config directory (~/.symphony).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".symphony"
	}
	return filepath.Join(home, ".symphony")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// LoadFromSymphonyDir loads a config file by name from ~/.symphony.
func LoadFromSymphonyDir(name string) (*Config, error) {
	return Load(filepath.Join(DefaultConfigDir(), name))
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.Bot.PrivateKey.Path = ExpandPath(cfg.Bot.PrivateKey.Path)
	cfg.App.PrivateKey.Path = ExpandPath(cfg.App.PrivateKey.Path)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty. A reference
// with no value and no default is kept verbatim.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		name := groups[1]
		fallback := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			fallback = groups[2]
		}

		val, exists := os.LookupEnv(name)
		if !exists || val == "" {
			if hasDefault {
				return fallback
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. All problems are
// reported at once.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.Scheme {
	case "http", "https":
	default:
		errs = append(errs, "scheme must be http or https")
	}
	ports := []struct {
		name string
		port int
	}{
		{"port", cfg.Port}, {"pod.port", cfg.Pod.Port}, {"agent.port", cfg.Agent.Port}, {"keyManager.port", cfg.KeyManager.Port},
	}
	for _, p := range ports {
		if p.port < 0 || p.port > 65535 {
			errs = append(errs, p.name+" must be between 0 and 65535")
		}
	}

	switch cfg.Datafeed.Version {
	case "v1", "v2":
	default:
		errs = append(errs, "datafeed.version must be one of: v1, v2")
	}
	errs = append(errs, validateRetry("datafeed.retry", cfg.Datafeed.Retry)...)
	errs = append(errs, validateRetry("retry", cfg.Retry)...)
	if cfg.Datafeed.ListenerDelaySeconds < 0 {
		errs = append(errs, "datafeed.listenerDelaySeconds must be >= 0")
	}

	if cfg.AMQP.URL != "" {
		if u, err := url.Parse(cfg.AMQP.URL); err != nil || (u.Scheme != "amqp" && u.Scheme != "amqps") {
			errs = append(errs, "amqp.url must be an amqp:// or amqps:// URL")
		}
	}
	if cfg.AMQP.Prefetch < 0 {
		errs = append(errs, "amqp.prefetch must be >= 0")
	}
	if cfg.AMQP.DialAttempts < 1 {
		errs = append(errs, "amqp.dialAttempts must be >= 1")
	}

	if cfg.Store.RetentionDays < 1 {
		errs = append(errs, "store.retentionDays must be >= 1")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateRetry(prefix string, r RetryConfig) []string {
	var errs []string
	if r.MaxAttempts < 1 {
		errs = append(errs, prefix+".maxAttempts must be >= 1")
	}
	if r.InitialIntervalMillis < 1 {
		errs = append(errs, prefix+".initialIntervalMillis must be >= 1")
	}
	if r.Multiplier < 1 {
		errs = append(errs, prefix+".multiplier must be >= 1")
	}
	if r.MaxIntervalMillis < r.InitialIntervalMillis {
		errs = append(errs, prefix+".maxIntervalMillis must be >= initialIntervalMillis")
	}
	return errs
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
