package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"overlaysearch/internal/logger"

	"gopkg.in/yaml.v3"
)

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

type FileLoggerConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

type LoggerConfig struct {
	Active   bool             `yaml:"active"`
	Level    string           `yaml:"level"`
	Encoding string           `yaml:"encoding"`
	Mode     string           `yaml:"mode"`
	File     FileLoggerConfig `yaml:"file"`
}

// RoutingConfig holds the Link-State Engine's timers and ports, named after
// the configured parameters of the wire protocol.
type RoutingConfig struct {
	LSPort      int           `yaml:"lsPort"`
	NdTimeout   time.Duration `yaml:"ndTimeout"`
	MaxTTL      int           `yaml:"maxTTL"`
	SingleHop   bool          `yaml:"singleHop"`
	Interfaces  []string      `yaml:"interfaces"`
}

// ChordConfig holds the Chord DHT Engine's timers, ports, and the Chord
// finger-table ID space width.
type ChordConfig struct {
	AppPort          int           `yaml:"appPort"`
	IDBits           int           `yaml:"idBits"`
	PingTimeout      time.Duration `yaml:"pingTimeout"`
	StabilizePeriod  time.Duration `yaml:"stabilizePeriod"`
	FixFingerPeriod  time.Duration `yaml:"fixFingerPeriod"`
}

type RegisterConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Type         string `yaml:"type"` // route53
	HostedZoneID string `yaml:"hostedZoneId"`
	DomainSuffix string `yaml:"domainSuffix"`
	TTL          int64  `yaml:"ttl"`
}

type BootstrapConfig struct {
	Mode     string         `yaml:"mode"` // static | dns | init
	DNSName  string         `yaml:"dnsName"`
	SRV      bool           `yaml:"srv"`
	Service  string         `yaml:"service"`  // SRV service name, e.g. "chord"
	Proto    string         `yaml:"proto"`    // SRV proto, e.g. "udp"
	Resolver string         `yaml:"resolver"` // DNS server to query, host:port
	Port     int            `yaml:"port"`
	Peers    []string       `yaml:"peers"`
	Register RegisterConfig `yaml:"register"`
}

// SearchConfig configures the Search Layer's startup ingestion corpus and
// its posting-list transfer socket.
type SearchConfig struct {
	CorpusPath string `yaml:"corpusPath"`
	SLPort     int    `yaml:"slPort"`
}

// MetricsConfig configures the process-wide counters HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type NodeConfig struct {
	Number int    `yaml:"number"` // operator-facing node number (address-directory key)
	Id     string `yaml:"id"`     // optional fixed ring ID override, hex
	Bind   string `yaml:"bind"`
	Host   string `yaml:"host"`
}

type Directory struct {
	// Static maps node-number -> main IPv4 address, the address directory
	// built once at startup and treated as immutable thereafter.
	Static map[int]string `yaml:"static"`
}

type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Routing   RoutingConfig   `yaml:"routing"`
	Chord     ChordConfig     `yaml:"chord"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Search    SearchConfig    `yaml:"search"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Node      NodeConfig      `yaml:"node"`
	Directory Directory       `yaml:"directory"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LoadConfig loads the configuration from a YAML file at the given path.
// It performs only syntactic parsing; call ValidateConfig afterward.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyEnvOverrides overrides selected deployment-specific fields from the
// environment, taking precedence over the YAML file.
func (cfg *Config) ApplyEnvOverrides() {
	if v := os.Getenv("NODE_NUMBER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Node.Number = n
		}
	}
	if v := os.Getenv("NODE_ID"); v != "" {
		cfg.Node.Id = v
	}
	if v := os.Getenv("NODE_BIND"); v != "" {
		cfg.Node.Bind = v
	} else if cfg.Node.Bind == "" {
		cfg.Node.Bind = "0.0.0.0"
	}
	if v := os.Getenv("NODE_HOST"); v != "" {
		cfg.Node.Host = v
	}
	if v := os.Getenv("LS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Routing.LSPort = port
		}
	}
	if v := os.Getenv("APP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Chord.AppPort = port
		}
	}

	if v := os.Getenv("BOOTSTRAP_MODE"); v != "" {
		cfg.Bootstrap.Mode = v
	}
	if v := os.Getenv("BOOTSTRAP_DNSNAME"); v != "" {
		cfg.Bootstrap.DNSName = v
	}
	if v := os.Getenv("BOOTSTRAP_SRV"); v != "" {
		v = strings.ToLower(v)
		cfg.Bootstrap.SRV = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("BOOTSTRAP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Bootstrap.Port = port
		}
	}
	if v := os.Getenv("BOOTSTRAP_PEERS"); v != "" {
		cfg.Bootstrap.Peers = strings.Split(v, ",")
	}
	if v := os.Getenv("REGISTER_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.Bootstrap.Register.Enabled = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("REGISTER_ZONE_ID"); v != "" {
		cfg.Bootstrap.Register.HostedZoneID = v
	}
	if v := os.Getenv("REGISTER_SUFFIX"); v != "" {
		cfg.Bootstrap.Register.DomainSuffix = v
	}
	if v := os.Getenv("REGISTER_TTL"); v != "" {
		if ttl, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Bootstrap.Register.TTL = ttl
		}
	}
	if v := os.Getenv("TRACE_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.Telemetry.Tracing.Enabled = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("TRACE_EXPORTER"); v != "" {
		cfg.Telemetry.Tracing.Exporter = v
	}
	if v := os.Getenv("TRACE_ENDPOINT"); v != "" {
		cfg.Telemetry.Tracing.Endpoint = v
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.Metrics.Enabled = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
	if v := os.Getenv("SEARCH_CORPUS"); v != "" {
		cfg.Search.CorpusPath = v
	}
	if v := os.Getenv("LOGGER_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.Logger.Active = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LOGGER_ENCODING"); v != "" {
		cfg.Logger.Encoding = v
	}
	if v := os.Getenv("LOGGER_MODE"); v != "" {
		cfg.Logger.Mode = v
	}
	if v := os.Getenv("LOGGER_FILE_PATH"); v != "" {
		cfg.Logger.File.Path = v
	}
}

// ApplyDefaults fills unset timer/port fields with the spec's defaults so a
// minimal YAML file (or none at all) still produces a runnable config.
func (cfg *Config) ApplyDefaults() {
	if cfg.Routing.LSPort == 0 {
		cfg.Routing.LSPort = 5000
	}
	if cfg.Routing.NdTimeout == 0 {
		cfg.Routing.NdTimeout = 2000 * time.Millisecond
	}
	if cfg.Routing.MaxTTL == 0 {
		cfg.Routing.MaxTTL = 16
	}
	if cfg.Chord.AppPort == 0 {
		cfg.Chord.AppPort = 10001
	}
	if cfg.Search.SLPort == 0 {
		cfg.Search.SLPort = 10002
	}
	if cfg.Chord.IDBits == 0 {
		cfg.Chord.IDBits = 160
	}
	if cfg.Chord.PingTimeout == 0 {
		cfg.Chord.PingTimeout = 2000 * time.Millisecond
	}
	if cfg.Chord.StabilizePeriod == 0 {
		cfg.Chord.StabilizePeriod = 5000 * time.Millisecond
	}
	if cfg.Chord.FixFingerPeriod == 0 {
		cfg.Chord.FixFingerPeriod = 8000 * time.Millisecond
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Encoding == "" {
		cfg.Logger.Encoding = "console"
	}
	if cfg.Logger.Mode == "" {
		cfg.Logger.Mode = "stdout"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
	if cfg.Bootstrap.Mode == "" {
		cfg.Bootstrap.Mode = "init"
	}
}

// ValidateConfig performs structural validation of the loaded configuration,
// accumulating every problem into a single returned error rather than
// failing on the first one.
func (cfg *Config) ValidateConfig() error {
	var errs []string

	switch cfg.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.level: %s", cfg.Logger.Level))
	}
	switch cfg.Logger.Encoding {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.encoding: %s", cfg.Logger.Encoding))
	}
	switch cfg.Logger.Mode {
	case "stdout":
	case "file":
		if cfg.Logger.File.Path == "" {
			errs = append(errs, "logger.file.path is required when mode=file")
		}
		if cfg.Logger.File.MaxSize < 0 || cfg.Logger.File.MaxBackups < 0 || cfg.Logger.File.MaxAge < 0 {
			errs = append(errs, "logger.file.* values must be non-negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.mode: %s", cfg.Logger.Mode))
	}

	if cfg.Routing.LSPort <= 0 || cfg.Routing.LSPort > 65535 {
		errs = append(errs, fmt.Sprintf("routing.lsPort must be in (0,65535], got %d", cfg.Routing.LSPort))
	}
	if cfg.Routing.NdTimeout <= 0 {
		errs = append(errs, "routing.ndTimeout must be > 0")
	}
	if cfg.Routing.MaxTTL <= 0 || cfg.Routing.MaxTTL > 255 {
		errs = append(errs, "routing.maxTTL must be in (0,255]")
	}

	if cfg.Chord.AppPort <= 0 || cfg.Chord.AppPort > 65535 {
		errs = append(errs, fmt.Sprintf("chord.appPort must be in (0,65535], got %d", cfg.Chord.AppPort))
	}
	if cfg.Search.SLPort <= 0 || cfg.Search.SLPort > 65535 {
		errs = append(errs, fmt.Sprintf("search.slPort must be in (0,65535], got %d", cfg.Search.SLPort))
	}
	if cfg.Chord.IDBits <= 0 {
		errs = append(errs, "chord.idBits must be > 0")
	}
	if cfg.Chord.PingTimeout <= 0 {
		errs = append(errs, "chord.pingTimeout must be > 0")
	}
	if cfg.Chord.StabilizePeriod <= 0 {
		errs = append(errs, "chord.stabilizePeriod must be > 0")
	}
	if cfg.Chord.FixFingerPeriod <= 0 {
		errs = append(errs, "chord.fixFingerPeriod must be > 0")
	}

	switch cfg.Bootstrap.Mode {
	case "dns":
		if cfg.Bootstrap.DNSName == "" {
			errs = append(errs, "bootstrap.dnsName is required in mode=dns")
		}
		if !cfg.Bootstrap.SRV && cfg.Bootstrap.Port <= 0 {
			errs = append(errs, "bootstrap.port must be > 0 when using A/AAAA (srv=false)")
		}
		if cfg.Bootstrap.Register.Enabled {
			if cfg.Bootstrap.Register.HostedZoneID == "" {
				errs = append(errs, "bootstrap.register.hostedZoneId is required when register.enabled=true")
			}
			if cfg.Bootstrap.Register.DomainSuffix == "" {
				errs = append(errs, "bootstrap.register.domainSuffix is required when register.enabled=true")
			}
			if cfg.Bootstrap.Register.TTL <= 0 {
				errs = append(errs, "bootstrap.register.ttl must be > 0 when register.enabled=true")
			}
		}
	case "static":
		for _, p := range cfg.Bootstrap.Peers {
			if _, _, err := net.SplitHostPort(p); err != nil {
				errs = append(errs, fmt.Sprintf("invalid peer address %q in bootstrap.peers: %v", p, err))
			}
		}
	case "init":
		// the landmark node: no further constraints
	default:
		errs = append(errs, fmt.Sprintf("invalid bootstrap.mode: %s (must be dns, static or init)", cfg.Bootstrap.Mode))
	}

	if cfg.Telemetry.Tracing.Enabled {
		switch cfg.Telemetry.Tracing.Exporter {
		case "stdout":
		default:
			errs = append(errs, fmt.Sprintf("invalid telemetry.tracing.exporter: %s (only stdout is supported)", cfg.Telemetry.Tracing.Exporter))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogConfig emits the loaded configuration at DEBUG level.
func (cfg *Config) LogConfig(lgr logger.Logger) {
	lgr.Debug("loaded configuration",
		logger.F("logger.level", cfg.Logger.Level),
		logger.F("logger.encoding", cfg.Logger.Encoding),
		logger.F("logger.mode", cfg.Logger.Mode),

		logger.F("routing.lsPort", cfg.Routing.LSPort),
		logger.F("routing.ndTimeoutMs", cfg.Routing.NdTimeout.Milliseconds()),
		logger.F("routing.maxTTL", cfg.Routing.MaxTTL),
		logger.F("routing.singleHop", cfg.Routing.SingleHop),

		logger.F("chord.appPort", cfg.Chord.AppPort),
		logger.F("chord.idBits", cfg.Chord.IDBits),
		logger.F("chord.pingTimeoutMs", cfg.Chord.PingTimeout.Milliseconds()),
		logger.F("chord.stabilizePeriodMs", cfg.Chord.StabilizePeriod.Milliseconds()),
		logger.F("chord.fixFingerPeriodMs", cfg.Chord.FixFingerPeriod.Milliseconds()),
		logger.F("search.slPort", cfg.Search.SLPort),

		logger.F("bootstrap.mode", cfg.Bootstrap.Mode),
		logger.F("bootstrap.dnsName", cfg.Bootstrap.DNSName),
		logger.F("bootstrap.peers", cfg.Bootstrap.Peers),
		logger.F("bootstrap.register.enabled", cfg.Bootstrap.Register.Enabled),

		logger.F("search.corpusPath", cfg.Search.CorpusPath),
		logger.F("metrics.enabled", cfg.Metrics.Enabled),
		logger.F("metrics.listen", cfg.Metrics.Listen),

		logger.F("node.number", cfg.Node.Number),
		logger.F("node.host", cfg.Node.Host),

		logger.F("telemetry.tracing.enabled", cfg.Telemetry.Tracing.Enabled),
		logger.F("telemetry.tracing.exporter", cfg.Telemetry.Tracing.Exporter),
	)
}
