package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
	"github.com/thoas/go-funk"
)

const (
	AuthNone  = "none"
	AuthLocal = "local"

	DBTypePostgres = "pgsql"
	DBTypeSqlite   = "sqlite"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Fleet    *fleetConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"sqlite"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"file::memory:?cache=shared"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string   `envconfig:"ORCHESTRATOR_ADDRESS" default:":8080"`
	MetricsAddress  string   `envconfig:"ORCHESTRATOR_METRICS_ADDRESS" default:":8090"`
	LogLevel        string   `envconfig:"ORCHESTRATOR_LOG_LEVEL" default:"info"`
	MigrationFolder string   `envconfig:"ORCHESTRATOR_MIGRATIONS_FOLDER" default:""`
	AllowedOrigins  []string `envconfig:"ORCHESTRATOR_ALLOWED_ORIGINS" default:"*"`
	Auth            Auth
	Events          Events
}

type Events struct {
	Enabled bool   `envconfig:"ORCHESTRATOR_EVENTS_ENABLED" default:"false"`
	Topic   string `envconfig:"ORCHESTRATOR_EVENTS_TOPIC" default:"distcalc.calculations"`
}

type Auth struct {
	AuthenticationType string        `envconfig:"ORCHESTRATOR_AUTH" default:"none"`
	SecretKey          string        `envconfig:"ORCHESTRATOR_SECRET_KEY" default:"secret_key"`
	TokenTTL           time.Duration `envconfig:"ORCHESTRATOR_TOKEN_TTL" default:"24h"`
}

type fleetConfig struct {
	Workers             []string      `envconfig:"ORCHESTRATOR_WORKERS" default:"http://localhost:8081,http://localhost:8082"`
	DefaultCapacity     int           `envconfig:"ORCHESTRATOR_WORKER_CAPACITY" default:"5"`
	ProbeTimeout        time.Duration `envconfig:"ORCHESTRATOR_PROBE_TIMEOUT" default:"2s"`
	HeartbeatInterval   time.Duration `envconfig:"ORCHESTRATOR_HEARTBEAT_INTERVAL" default:"5s"`
	InactivityThreshold time.Duration `envconfig:"ORCHESTRATOR_INACTIVITY_THRESHOLD" default:"60s"`
	FleetTimeout        time.Duration `envconfig:"ORCHESTRATOR_FLEET_TIMEOUT" default:"30s"`
	SubtaskTimeout      time.Duration `envconfig:"ORCHESTRATOR_SUBTASK_TIMEOUT" default:"10s"`
	RetryDelay          time.Duration `envconfig:"ORCHESTRATOR_RETRY_DELAY" default:"100ms"`
	RetryMaxDelay       time.Duration `envconfig:"ORCHESTRATOR_RETRY_MAX_DELAY" default:"2s"`
	MaxDispatchAttempts uint          `envconfig:"ORCHESTRATOR_MAX_DISPATCH_ATTEMPTS" default:"3"`
}

// New returns the process-wide configuration read from the environment.
func New() (*Config, error) {
	if singleConfig == nil {
		cfg, err := NewDefault()
		if err != nil {
			return nil, err
		}
		singleConfig = cfg
	}
	return singleConfig, nil
}

// NewDefault returns a fresh configuration built from the environment and the defaults.
func NewDefault() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var result *multierror.Error

	if !funk.ContainsString([]string{DBTypePostgres, DBTypeSqlite}, c.Database.Type) {
		result = multierror.Append(result, fmt.Errorf("unknown database type %q", c.Database.Type))
	}
	if !funk.ContainsString([]string{AuthNone, AuthLocal}, c.Service.Auth.AuthenticationType) {
		result = multierror.Append(result, fmt.Errorf("unknown authentication type %q", c.Service.Auth.AuthenticationType))
	}
	if c.Service.Auth.AuthenticationType == AuthLocal && c.Service.Auth.SecretKey == "" {
		result = multierror.Append(result, fmt.Errorf("local authentication requires a secret key"))
	}

	for _, w := range c.Fleet.Workers {
		if u, err := url.Parse(w); err != nil || u.Scheme == "" || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("invalid worker url %q", w))
		}
	}
	if c.Fleet.DefaultCapacity <= 0 {
		result = multierror.Append(result, fmt.Errorf("worker capacity must be positive"))
	}
	if c.Fleet.ProbeTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("probe timeout must be positive"))
	}
	if c.Fleet.InactivityThreshold < c.Fleet.HeartbeatInterval {
		result = multierror.Append(result, fmt.Errorf("inactivity threshold %s is shorter than the heartbeat interval %s", c.Fleet.InactivityThreshold, c.Fleet.HeartbeatInterval))
	}
	if c.Fleet.MaxDispatchAttempts == 0 {
		result = multierror.Append(result, fmt.Errorf("max dispatch attempts must be at least 1"))
	}

	return result.ErrorOrNil()
}
