package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Raptor-X control plane.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site         SiteConfig         `yaml:"site"`
	Database     DatabaseConfig     `yaml:"database"`
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	Registry     RegistryConfig     `yaml:"registry"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Inference    InferenceConfig    `yaml:"inference"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Credentials  CredentialsConfig  `yaml:"credentials"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
	Security     SecurityConfig     `yaml:"security"`
}

// SiteConfig identifies this control plane instance.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket event hub settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// RegistryConfig contains device registry liveness settings.
type RegistryConfig struct {
	// HeartbeatInterval is the interval agents are expected to heartbeat at (seconds).
	HeartbeatInterval int `yaml:"heartbeat_interval"`

	// StaleAfter is how long without a heartbeat before a device is marked stale (seconds).
	StaleAfter int `yaml:"stale_after"`

	// OfflineAfter is the total grace period before a stale device is marked offline (seconds).
	OfflineAfter int `yaml:"offline_after"`

	// MonitorInterval is how often the liveness monitor sweeps (seconds).
	MonitorInterval int `yaml:"monitor_interval"`

	// PairedHeartbeatInterval is the shorter interval suggested to paired devices (seconds).
	PairedHeartbeatInterval int `yaml:"paired_heartbeat_interval"`
}

// GatewayConfig contains SUT proxy settings.
type GatewayConfig struct {
	// ShortTimeout bounds status-class calls: screenshot, input, process checks (seconds).
	ShortTimeout int `yaml:"short_timeout"`

	// LongTimeout bounds launch and display-mode calls (seconds).
	LongTimeout int `yaml:"long_timeout"`

	// AgentKey is the shared secret agents present on registration.
	AgentKey string `yaml:"agent_key"`
}

// InferenceConfig contains job queue and backend pool settings.
type InferenceConfig struct {
	Backends []BackendConfig `yaml:"backends"`

	// MaxDepth is the queue depth beyond which submissions are rejected.
	MaxDepth int `yaml:"max_depth"`

	// MaxAttempts is the retry budget across backends for one job.
	MaxAttempts int `yaml:"max_attempts"`

	// JobTimeout bounds a single backend call (seconds).
	JobTimeout int `yaml:"job_timeout"`

	// PerBackendConcurrency caps in-flight jobs per backend.
	PerBackendConcurrency int `yaml:"per_backend_concurrency"`

	// ProbeInterval is how often unhealthy backends are re-probed (seconds).
	ProbeInterval int `yaml:"probe_interval"`

	// UnhealthyThreshold is the consecutive-failure count that marks a backend unhealthy.
	UnhealthyThreshold int `yaml:"unhealthy_threshold"`

	// HistorySize is the number of completed jobs retained for inspection.
	HistorySize int `yaml:"history_size"`

	Defaults DetectDefaults `yaml:"defaults"`
}

// BackendConfig describes one vision-inference backend instance.
type BackendConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// DetectDefaults are the server-side detection defaults merged under
// per-workflow and per-step overrides.
type DetectDefaults struct {
	ConfThreshold    float64 `yaml:"conf_threshold"`
	OverlapThreshold float64 `yaml:"overlap_threshold"`
	OCREngine        string  `yaml:"ocr_engine"`
	OCRConfThreshold float64 `yaml:"ocr_conf_threshold"`
	PreScale         bool    `yaml:"pre_scale"`
	InputSize        int     `yaml:"input_size"`
}

// OrchestratorConfig contains run scheduler and policy settings.
type OrchestratorConfig struct {
	// Workers is the number of runs that may execute concurrently.
	Workers int `yaml:"workers"`

	// WorkflowDir is the directory workflow YAML documents are loaded from.
	WorkflowDir string `yaml:"workflow_dir"`

	// DisplaySettle is how long to wait after a display-mode switch (seconds).
	DisplaySettle int `yaml:"display_settle"`

	// RestoreDisplay controls when the original display mode is restored:
	// "per_run" after every run, "per_batch" only once a device's batch drains.
	RestoreDisplay string `yaml:"restore_display"`

	// LaunchWait is how long to wait for the target process after launch (seconds).
	LaunchWait int `yaml:"launch_wait"`
}

// CredentialsConfig declares the shared credential pool.
type CredentialsConfig struct {
	Pairs []CredentialPairConfig `yaml:"pairs"`
}

// CredentialPairConfig is one pool entry: credential sets bucketed by the
// partition-key ranges they serve.
type CredentialPairConfig struct {
	Name    string         `yaml:"name"`
	Buckets []BucketConfig `yaml:"buckets"`
}

// BucketConfig maps a partition-key range (inclusive first letters) to a credential.
type BucketConfig struct {
	Range  string `yaml:"range"` // e.g. "a-m"
	User   string `yaml:"user"`
	Secret string `yaml:"secret"`
}

// MQTTConfig contains MQTT event publishing settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains the optional time-series sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains operator token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RAPTORX_SECTION_KEY
// For example: RAPTORX_DATABASE_PATH, RAPTORX_API_PORT
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "lab-001",
			Name: "Raptor-X",
		},
		Database: DatabaseConfig{
			Path:        "./data/raptorx.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8085,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Registry: RegistryConfig{
			HeartbeatInterval:       10,
			StaleAfter:              30,
			OfflineAfter:            120,
			MonitorInterval:         5,
			PairedHeartbeatInterval: 3,
		},
		Gateway: GatewayConfig{
			ShortTimeout: 10,
			LongTimeout:  90,
		},
		Inference: InferenceConfig{
			MaxDepth:              64,
			MaxAttempts:           3,
			JobTimeout:            30,
			PerBackendConcurrency: 2,
			ProbeInterval:         15,
			UnhealthyThreshold:    3,
			HistorySize:           256,
			Defaults: DetectDefaults{
				ConfThreshold:    0.55,
				OverlapThreshold: 0.45,
				OCREngine:        "easyocr",
				OCRConfThreshold: 0.60,
				PreScale:         true,
				InputSize:        1280,
			},
		},
		Orchestrator: OrchestratorConfig{
			Workers:        4,
			WorkflowDir:    "./workflows",
			DisplaySettle:  5,
			RestoreDisplay: "per_batch",
			LaunchWait:     120,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "raptorx-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RAPTORX_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAPTORX_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RAPTORX_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("RAPTORX_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("RAPTORX_GATEWAY_AGENT_KEY"); v != "" {
		cfg.Gateway.AgentKey = v
	}
	if v := os.Getenv("RAPTORX_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RAPTORX_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RAPTORX_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("RAPTORX_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("RAPTORX_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Liveness intervals must be strictly ordered: a device can only go
	// stale before it goes offline.
	if c.Registry.StaleAfter <= 0 {
		errs = append(errs, "registry.stale_after must be positive")
	}
	if c.Registry.OfflineAfter <= c.Registry.StaleAfter {
		errs = append(errs, "registry.offline_after must be greater than registry.stale_after")
	}

	if c.Inference.MaxDepth < 1 {
		errs = append(errs, "inference.max_depth must be at least 1")
	}
	if c.Inference.MaxAttempts < 1 {
		errs = append(errs, "inference.max_attempts must be at least 1")
	}
	for i, b := range c.Inference.Backends {
		if b.URL == "" {
			errs = append(errs, fmt.Sprintf("inference.backends[%d].url is required", i))
		}
	}

	if c.Orchestrator.Workers < 1 {
		errs = append(errs, "orchestrator.workers must be at least 1")
	}
	switch c.Orchestrator.RestoreDisplay {
	case "per_run", "per_batch":
	default:
		errs = append(errs, "orchestrator.restore_display must be per_run or per_batch")
	}

	// Operator tokens are the only thing standing between the network and
	// machines that accept synthetic input. Weak secrets are not acceptable.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set RAPTORX_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
