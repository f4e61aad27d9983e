package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultCheckInterval   = 30 * time.Second
	DefaultHistoryCapacity = 100
	DefaultCooldown        = 300 * time.Second
	DefaultHTTPPort        = 9180
	DefaultStreamInterval  = 5 * time.Second
	DefaultSinkKeyPrefix   = "backendmon:history"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
)

// Probe timeout bounds. Every backend timeout is clamped into this range.
const (
	MinProbeTimeout = 2 * time.Second
	MaxProbeTimeout = 30 * time.Second

	// CLITimeout is the hard bound for a CLI version check.
	CLITimeout = 5 * time.Second
)

// Backend kinds understood by the probe factory.
const (
	KindHTTP    = "http"
	KindJSONRPC = "jsonrpc"
	KindCLI     = "cli"
	KindProcess = "process"
	KindPeerNet = "peernet"
)

// defaultTimeouts holds the per-kind probe timeout used when a backend does
// not set one.
var defaultTimeouts = map[string]time.Duration{
	KindHTTP:    10 * time.Second,
	KindJSONRPC: 10 * time.Second,
	KindCLI:     CLITimeout,
	KindProcess: CLITimeout,
	KindPeerNet: 10 * time.Second,
}

// Config is the top-level configuration file.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent settings.
type AgentConfig struct {
	// CheckInterval controls how often every backend is probed.
	CheckInterval time.Duration `yaml:"check_interval"`

	// HistoryCapacity is the number of samples kept per backend.
	HistoryCapacity int `yaml:"history_capacity"`

	// DefaultCooldown is the minimum time between two remediation attempts
	// for one backend, unless the backend overrides it.
	DefaultCooldown time.Duration `yaml:"default_cooldown"`

	// MaxConcurrency caps how many probes run at once. 0 means one per backend.
	MaxConcurrency int `yaml:"max_concurrency"`

	// HTTPPort is the port of the status API, WebSocket stream and /metrics.
	HTTPPort int `yaml:"http_port"`

	// StreamInterval controls how often the WebSocket hub broadcasts state.
	StreamInterval time.Duration `yaml:"stream_interval"`

	Log    LogConfig    `yaml:"log"`
	Sink   SinkConfig   `yaml:"sink"`
	Alerts AlertsConfig `yaml:"alerts"`

	// Backends is the static registry of monitored services.
	Backends []Backend `yaml:"backends"`
}

// LogConfig controls the process-wide slog handler.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
	// Format is one of: json | text.
	Format string `yaml:"format"`
}

// SinkConfig configures the optional Redis mirror of history samples.
type SinkConfig struct {
	// RedisURL enables the sink when non-empty (redis://host:6379/0).
	RedisURL string `yaml:"redis_url"`
	// PasswordEnv names the environment variable holding the Redis password.
	PasswordEnv string `yaml:"password_env"`
	// KeyPrefix namespaces the per-backend list keys.
	KeyPrefix string `yaml:"key_prefix"`
}

// Password returns the Redis password resolved from the environment.
func (s SinkConfig) Password() string {
	if s.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(s.PasswordEnv)
}

// AlertsConfig holds alert rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule fires when Condition holds for a backend.
type AlertRule struct {
	Name string `yaml:"name"`

	// Condition is "field operator value", e.g. "health == stopped" or
	// "uptime_pct < 90".
	Condition string `yaml:"condition"`

	// Severity is one of: info | warning | critical. Defaults to warning.
	Severity string `yaml:"severity"`

	// Cooldown is the minimum time between two firings of the rule for one
	// backend. Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`

	// Backends restricts the rule to the named backends. Empty means all.
	Backends []string `yaml:"backends"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Backend describes one monitored service.
type Backend struct {
	// Name is the unique registry key.
	Name string `yaml:"name"`

	// Kind selects the probe: http | jsonrpc | cli | process | peernet.
	Kind string `yaml:"kind"`

	// Endpoint is the full URL probed by http, jsonrpc and peernet kinds.
	Endpoint string `yaml:"endpoint"`

	// Capabilities are free-form flags reported with the backend identity,
	// e.g. pin, retrieve, deal.
	Capabilities []string `yaml:"capabilities"`

	// Port is used to build http://127.0.0.1:<port> when Endpoint is empty.
	Port int `yaml:"port"`

	// Method is the HTTP method of an identity call (default GET).
	Method string `yaml:"method"`

	// Timeout bounds one probe. Zero selects the kind default.
	Timeout time.Duration `yaml:"timeout"`

	// Retries is the number of extra HTTP attempts inside one probe.
	Retries int `yaml:"retries"`

	// RPCMethod and RPCParams form the JSON-RPC payload.
	RPCMethod string `yaml:"rpc_method"`
	RPCParams []any  `yaml:"rpc_params"`

	// Binary and Args describe a CLI check; Binary also names the process
	// looked for by the process kind when Match is empty.
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args"`

	// Match and Exclude drive the process-table heuristic: a command line
	// matches when it contains Match and none of Exclude.
	Match   string   `yaml:"match"`
	Exclude []string `yaml:"exclude"`

	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`

	Remediation RemediationConfig `yaml:"remediation"`
}

// URL returns the probe endpoint, falling back to the loopback port.
func (b Backend) URL() string {
	if b.Endpoint != "" {
		return b.Endpoint
	}
	if b.Port > 0 {
		return fmt.Sprintf("http://127.0.0.1:%d", b.Port)
	}
	return ""
}

// EffectiveTimeout returns the configured timeout or the kind default,
// clamped to [MinProbeTimeout, MaxProbeTimeout].
func (b Backend) EffectiveTimeout() time.Duration {
	d := b.Timeout
	if d <= 0 {
		d = defaultTimeouts[b.Kind]
	}
	return ClampTimeout(d)
}

// ClampTimeout restricts d to [MinProbeTimeout, MaxProbeTimeout].
func ClampTimeout(d time.Duration) time.Duration {
	if d < MinProbeTimeout {
		return MinProbeTimeout
	}
	if d > MaxProbeTimeout {
		return MaxProbeTimeout
	}
	return d
}

// RemediationConfig describes the corrective action for a backend.
type RemediationConfig struct {
	// Command is the argv of a restart command, e.g. [systemctl, restart, ipfs].
	Command []string `yaml:"command"`

	// ReconnectURL is called (POST, any 2xx) to re-establish connectivity.
	ReconnectURL string `yaml:"reconnect_url"`

	// Restart lets the probe restart its own backend (process kind only)
	// when neither Command nor ReconnectURL is set.
	Restart bool `yaml:"restart"`

	// Cooldown overrides agent.default_cooldown for this backend.
	Cooldown time.Duration `yaml:"cooldown"`
}

// Enabled reports whether any action is configured.
func (r RemediationConfig) Enabled() bool {
	return len(r.Command) > 0 || r.ReconnectURL != "" || r.Restart
}

// AuthConfig specifies the authentication mode for a backend.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header name an API key is sent in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the environment variable holding a bearer token
	// (e.g. the storage node's JSON-RPC token).
	TokenEnv string `yaml:"token_env"`

	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds per-backend TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path. ${VAR} references are
// expanded from the environment before parsing. Missing optional fields are
// filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			CheckInterval:   DefaultCheckInterval,
			HistoryCapacity: DefaultHistoryCapacity,
			DefaultCooldown: DefaultCooldown,
			HTTPPort:        DefaultHTTPPort,
			StreamInterval:  DefaultStreamInterval,
			Log: LogConfig{
				Level:  DefaultLogLevel,
				Format: DefaultLogFormat,
			},
			Sink: SinkConfig{
				KeyPrefix: DefaultSinkKeyPrefix,
			},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.CheckInterval <= 0 {
		return fmt.Errorf("agent.check_interval must be positive")
	}
	if a.HistoryCapacity <= 0 {
		return fmt.Errorf("agent.history_capacity must be positive")
	}
	if a.DefaultCooldown < 0 {
		return fmt.Errorf("agent.default_cooldown must not be negative")
	}
	if a.MaxConcurrency < 0 {
		return fmt.Errorf("agent.max_concurrency must not be negative")
	}
	if a.HTTPPort <= 0 || a.HTTPPort > 65535 {
		return fmt.Errorf("agent.http_port %d is out of range [1, 65535]", a.HTTPPort)
	}
	switch a.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("agent.log.level %q unknown: want debug|info|warn|error", a.Log.Level)
	}
	switch a.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("agent.log.format %q unknown: want json|text", a.Log.Format)
	}

	for i, r := range a.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d]: name and condition are required", i)
		}
		switch r.Severity {
		case "", "info", "warning", "critical":
		default:
			return fmt.Errorf("alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
	}
	for i, w := range a.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q: want slack|teams|http", i, w.Type)
		}
	}

	seen := make(map[string]bool, len(a.Backends))
	for i, b := range a.Backends {
		if b.Name == "" {
			return fmt.Errorf("backends[%d]: name is required", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("backends[%d]: duplicate name %q", i, b.Name)
		}
		seen[b.Name] = true

		switch b.Kind {
		case KindHTTP, KindJSONRPC, KindPeerNet:
			if b.URL() == "" {
				return fmt.Errorf("backends[%d] %q: endpoint or port is required", i, b.Name)
			}
		case KindCLI:
			if b.Binary == "" {
				return fmt.Errorf("backends[%d] %q: binary is required", i, b.Name)
			}
		case KindProcess:
			if b.Match == "" && b.Binary == "" {
				return fmt.Errorf("backends[%d] %q: match or binary is required", i, b.Name)
			}
		default:
			return fmt.Errorf("backends[%d] %q: unknown kind %q", i, b.Name, b.Kind)
		}
		if b.Kind == KindJSONRPC && b.RPCMethod == "" {
			return fmt.Errorf("backends[%d] %q: rpc_method is required", i, b.Name)
		}
		if b.Retries < 0 {
			return fmt.Errorf("backends[%d] %q: retries must not be negative", i, b.Name)
		}
		if b.Remediation.Restart && b.Kind != KindProcess && len(b.Remediation.Command) == 0 && b.Remediation.ReconnectURL == "" {
			return fmt.Errorf("backends[%d] %q: remediation.restart requires kind process", i, b.Name)
		}
		if b.Remediation.Cooldown < 0 {
			return fmt.Errorf("backends[%d] %q: remediation.cooldown must not be negative", i, b.Name)
		}
		switch b.Auth.Mode {
		case "mtls", "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("backends[%d] %q: unknown auth mode %q", i, b.Name, b.Auth.Mode)
		}
	}
	return nil
}
