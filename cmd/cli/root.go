// Package cli provides the command-line interface for the portsniffer TCP port scanner.
// It implements the Cobra-based root command, binds flags, environment variables
// and the optional config file through Viper, and wires the scan engine.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anstrom/portsniffer/internal/config"
	"github.com/anstrom/portsniffer/internal/errors"
	"github.com/anstrom/portsniffer/internal/logging"
)

const envPrefix = "PORTSNIFFER"

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// options holds the raw flag values of one invocation.
type options struct {
	cfgFile     string
	threads     int
	timeout     int
	ports       []string
	logLevel    string
	logFormat   string
	nameserver  string
	metricsAddr string
	noProgress  bool
	noColor     bool
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"threads":      "scan.threads",
	"timeout":      "scan.timeout",
	"ports":        "scan.ports",
	"log_level":    "logging.level",
	"log-format":   "logging.format",
	"nameserver":   "resolver.nameserver",
	"metrics-addr": "metrics.addr",
}

// newRootCmd builds the portsniffer command.
func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "portsniffer <target>",
		Short: "Concurrent TCP connect port scanner",
		Long: `portsniffer probes the TCP ports of a single host with a fixed pool of
workers and reports which ports accepted a connection.

The target may be an IPv4 or IPv6 address or a host name. Without --ports
every port from 0 to 65535 is scanned. Interrupting the scan prints the
results gathered so far.`,
		Example: `  portsniffer 192.168.1.10
  portsniffer scanme.example.com -p 22,80,443 -p 8000-8100
  portsniffer 10.0.0.5 -t 200 --timeout 1 --log_level debug
  portsniffer example.com --nameserver 1.1.1.1 --metrics-addr 127.0.0.1:9100`,
		Version:       getVersion(),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.cfgFile, "config", "", "YAML config file")
	flags.IntVarP(&opts.threads, "threads", "t", config.DefaultThreads, "Number of concurrent workers")
	flags.IntVar(&opts.timeout, "timeout", config.DefaultTimeoutSec, "Per-port connect timeout in seconds")
	flags.StringSliceVarP(&opts.ports, "ports", "p", nil,
		"Ports or ranges to scan, repeatable or comma-separated (default all ports)")
	flags.StringVar(&opts.logLevel, "log_level", string(logging.LevelInfo), "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", string(logging.FormatText), "Log format: text, json")
	flags.StringVar(&opts.nameserver, "nameserver", "", "DNS server (host[:port]) used to resolve host names")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the scan")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return errors.ExitCode(err)
	}
	return errors.ExitOK
}

// loadConfig layers flags over environment variables over the config file over defaults.
func loadConfig(flags *pflag.FlagSet, opts *options) (*config.Config, error) {
	base, err := config.Load(opts.cfgFile)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setConfigDefaults(v, base)

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, errors.WrapConfigError(errors.CodeInvalidConfiguration,
				fmt.Sprintf("failed to bind flag %s", name), err)
		}
	}

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapConfigError(errors.CodeInvalidConfiguration, "failed to decode configuration", err)
	}

	if opts.noProgress {
		cfg.Output.Progress = false
	}
	if opts.noColor || os.Getenv("NO_COLOR") != "" {
		cfg.Output.Color = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setConfigDefaults seeds viper with the file-or-default configuration so
// environment variables and flags can override each key.
func setConfigDefaults(v *viper.Viper, base *config.Config) {
	v.SetDefault("scan.threads", base.Scan.Threads)
	v.SetDefault("scan.timeout", base.Scan.TimeoutSec)
	v.SetDefault("scan.ports", base.Scan.Ports)

	v.SetDefault("resolver.nameserver", base.Resolver.Nameserver)
	v.SetDefault("resolver.timeout", base.Resolver.TimeoutSec)

	v.SetDefault("logging.level", base.Logging.Level)
	v.SetDefault("logging.format", base.Logging.Format)
	v.SetDefault("logging.output", base.Logging.Output)

	v.SetDefault("metrics.addr", base.Metrics.Addr)

	v.SetDefault("output.progress", base.Output.Progress)
	v.SetDefault("output.color", base.Output.Color)
}

// initLogging creates the logger described by cfg and installs it as default.
func initLogging(cfg *config.Config) *logging.Logger {
	logConfig := cfg.LoggerConfig()
	logConfig.AddSource = cfg.Logging.Level == string(logging.LevelDebug)

	logger, err := logging.New(logConfig)
	if err != nil {
		logger = logging.NewDefault()
		logger.Warn("Failed to initialize logging, using defaults", "error", err)
	}

	logging.SetDefault(logger)
	return logger
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
}
