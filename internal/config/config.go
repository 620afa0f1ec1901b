// Package config holds portsniffer configuration: defaults, YAML file
// loading and validation.
package config

import (
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/portsniffer/internal/errors"
	"github.com/anstrom/portsniffer/internal/logging"
)

const (
	// Defaults
	DefaultThreads           = 10
	DefaultTimeoutSec        = 3
	DefaultResolveTimeoutSec = 5
)

// Config represents the complete portsniffer configuration
type Config struct {
	Scan     ScanConfig     `yaml:"scan" json:"scan" mapstructure:"scan"`
	Resolver ResolverConfig `yaml:"resolver" json:"resolver" mapstructure:"resolver"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging" mapstructure:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
	Output   OutputConfig   `yaml:"output" json:"output" mapstructure:"output"`
}

// ScanConfig holds scan engine settings
type ScanConfig struct {
	// Number of concurrent workers
	Threads int `yaml:"threads" json:"threads" mapstructure:"threads" validate:"min=1,max=65536"`

	// Per-probe timeout in seconds
	TimeoutSec int `yaml:"timeout" json:"timeout" mapstructure:"timeout" validate:"min=1,max=3600"`

	// Ports and ranges to scan; empty means every port
	Ports []string `yaml:"ports" json:"ports" mapstructure:"ports" validate:"dive,required"`
}

// ResolverConfig holds target resolution settings
type ResolverConfig struct {
	// DNS server used for host name targets; empty selects the system resolver
	Nameserver string `yaml:"nameserver" json:"nameserver" mapstructure:"nameserver" validate:"omitempty,nameserver"`

	// Lookup timeout in seconds
	TimeoutSec int `yaml:"timeout" json:"timeout" mapstructure:"timeout" validate:"min=1,max=60"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" mapstructure:"format" validate:"oneof=text json"`
	Output string `yaml:"output" json:"output" mapstructure:"output"`
}

// MetricsConfig holds Prometheus endpoint settings
type MetricsConfig struct {
	// Listen address of the metrics endpoint; empty disables it
	Addr string `yaml:"addr" json:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// OutputConfig holds report rendering settings
type OutputConfig struct {
	Progress bool `yaml:"progress" json:"progress" mapstructure:"progress"`
	Color    bool `yaml:"color" json:"color" mapstructure:"color"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			Threads:    DefaultThreads,
			TimeoutSec: DefaultTimeoutSec,
		},
		Resolver: ResolverConfig{
			TimeoutSec: DefaultResolveTimeoutSec,
		},
		Logging: LoggingConfig{
			Level:  string(logging.LevelInfo),
			Format: string(logging.FormatText),
			Output: "stderr",
		},
		Output: OutputConfig{
			Progress: true,
			Color:    true,
		},
	}
}

// Load loads configuration from a YAML file on top of the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, errors.WrapConfigError(errors.CodeInvalidConfiguration, "failed to read config file", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.WrapConfigError(errors.CodeInvalidConfiguration, "failed to parse YAML config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration. The first failing field is reported
// as an INVALID_CONFIGURATION error naming the field by its YAML key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.WrapConfigError(errors.CodeInvalidConfiguration, "configuration validation failed", err)
	}

	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	return errors.NewConfigFieldError(errors.CodeInvalidConfiguration,
		fmt.Sprintf("failed %q validation", fe.Tag()), field, fe.Value())
}

// Timeout returns the per-probe timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Scan.TimeoutSec) * time.Second
}

// ResolveTimeout returns the lookup timeout.
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Resolver.TimeoutSec) * time.Second
}

// LoggerConfig converts the logging section for the logging package.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(c.Logging.Level),
		Format: logging.LogFormat(c.Logging.Format),
		Output: c.Logging.Output,
	}
}

// IsMetricsEnabled returns true if the metrics endpoint should be served
func (c *Config) IsMetricsEnabled() bool {
	return c.Metrics.Addr != ""
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// A nameserver is an IP or host name with an optional port.
	_ = v.RegisterValidation("nameserver", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		host := value
		if h, _, err := net.SplitHostPort(value); err == nil {
			host = h
		}
		host = strings.Trim(host, "[]")
		if net.ParseIP(host) != nil {
			return true
		}
		return v.Var(host, "hostname_rfc1123") == nil
	})

	return v
}
