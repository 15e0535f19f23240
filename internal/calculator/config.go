package calculator

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/distcalc/orchestrator/internal/util"
	"github.com/hashicorp/go-multierror"
	"sigs.k8s.io/yaml"
)

const (
	// DefaultAddress is the address the worker listens on
	DefaultAddress = ":8081"
	// DefaultMaxGoroutines is the number of tasks a worker runs at once
	DefaultMaxGoroutines = 5
	// DefaultRegisterAttempts bounds the self-registration retries
	DefaultRegisterAttempts = 10
	DefaultRegisterDelay    = time.Second
	// DefaultShutdownTimeout is how long in-flight tasks may drain on shutdown
	DefaultShutdownTimeout = 30 * time.Second
)

type Config struct {
	// Address is the listen address of the worker
	Address string `json:"address"`
	// PublicURL is the url the orchestrator uses to reach this worker
	PublicURL string `json:"public-url"`
	// MaxGoroutines is the capacity of the worker
	MaxGoroutines int `json:"max-goroutines"`
	// OrchestratorURL enables self-registration when set
	OrchestratorURL string `json:"orchestrator-url,omitempty"`

	RegisterAttempts uint          `json:"register-attempts,omitempty"`
	RegisterDelay    util.Duration `json:"register-delay,omitempty"`
	ShutdownTimeout  util.Duration `json:"shutdown-timeout,omitempty"`

	// LogLevel is one of zap's level names
	LogLevel string `json:"log-level,omitempty"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Address:          DefaultAddress,
		PublicURL:        "http://localhost" + DefaultAddress,
		MaxGoroutines:    DefaultMaxGoroutines,
		RegisterAttempts: DefaultRegisterAttempts,
		RegisterDelay:    util.Duration{Duration: DefaultRegisterDelay},
		ShutdownTimeout:  util.Duration{Duration: DefaultShutdownTimeout},
		LogLevel:         "info",
	}
}

// ParseConfigFile reads a YAML file over the current values.
func (cfg *Config) ParseConfigFile(cfgFile string) error {
	contents, err := os.ReadFile(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	return nil
}

func (cfg *Config) Validate() error {
	var result *multierror.Error

	if cfg.Address == "" {
		result = multierror.Append(result, fmt.Errorf("address is required"))
	}
	if cfg.MaxGoroutines <= 0 {
		result = multierror.Append(result, fmt.Errorf("max-goroutines must be positive"))
	}
	for name, value := range map[string]string{"public-url": cfg.PublicURL, "orchestrator-url": cfg.OrchestratorURL} {
		if value == "" && name == "orchestrator-url" {
			continue
		}
		if u, err := url.Parse(value); err != nil || u.Scheme == "" || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("%s: invalid url %q", name, value))
		}
	}

	return result.ErrorOrNil()
}

func (cfg *Config) String() string {
	contents, err := json.Marshal(cfg)
	if err != nil {
		return "<error>"
	}
	return string(contents)
}
