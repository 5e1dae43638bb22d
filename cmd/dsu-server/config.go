package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	listenAddr      string
	clientTimeout   time.Duration
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	socketTune      bool
	mdnsEnable      bool
	mdnsName        string
	backend         string
	replayPath      string
	replayBaud      int
	replayReadTO    time.Duration
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listen := flag.String("listen", ":26760", "UDP listen address")
	clientTO := flag.Duration("client-timeout", 5*time.Second, "Client subscription timeout")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	socketTune := flag.Bool("socket-tune", true, "Apply SO_REUSEADDR/SO_RCVBUF tuning to the UDP socket (linux only)")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Bonjour advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default dsu-server-<hostname>)")
	backend := flag.String("backend", "none", "Controller backend: none|replay")
	replayPath := flag.String("replay-path", "", "Serial device or FIFO path for the replay backend")
	replayBaud := flag.Int("replay-baud", 115200, "Replay serial baud rate")
	replayReadTO := flag.Duration("replay-read-timeout", 50*time.Millisecond, "Replay serial read timeout")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.listenAddr = *listen
	cfg.clientTimeout = *clientTO
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.socketTune = *socketTune
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.backend = *backend
	cfg.replayPath = *replayPath
	cfg.replayBaud = *replayBaud
	cfg.replayReadTO = *replayReadTO

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not bind the socket or open the replay device, only checks
// values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "none", "replay":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	if c.backend == "replay" && c.replayPath == "" {
		return errors.New("replay-path is required when backend=replay")
	}
	if c.clientTimeout <= 0 {
		return errors.New("client-timeout must be > 0")
	}
	if c.replayBaud <= 0 {
		return fmt.Errorf("replay-baud must be > 0 (got %d)", c.replayBaud)
	}
	if c.replayReadTO <= 0 {
		return errors.New("replay-read-timeout must be > 0")
	}
	if c.logMetricsEvery < 0 {
		return errors.New("log-metrics-interval must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps DSU_SERVER_* environment variables to config
// fields unless a corresponding flag was explicitly set. Boolean/numeric
// parsing is lax: empty values are ignored. Durations use Go's
// time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["listen"]; !ok {
		if v, ok := get("DSU_SERVER_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["client-timeout"]; !ok {
		if v, ok := get("DSU_SERVER_CLIENT_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.clientTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DSU_SERVER_CLIENT_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("DSU_SERVER_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("DSU_SERVER_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("DSU_SERVER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("DSU_SERVER_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DSU_SERVER_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["socket-tune"]; !ok {
		if v, ok := get("DSU_SERVER_SOCKET_TUNE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.socketTune = true
			case "0", "false", "no", "off":
				c.socketTune = false
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("DSU_SERVER_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("DSU_SERVER_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["backend"]; !ok {
		if v, ok := get("DSU_SERVER_BACKEND"); ok && v != "" {
			c.backend = v
		}
	}
	if _, ok := set["replay-path"]; !ok {
		if v, ok := get("DSU_SERVER_REPLAY_PATH"); ok && v != "" {
			c.replayPath = v
		}
	}
	if _, ok := set["replay-baud"]; !ok {
		if v, ok := get("DSU_SERVER_REPLAY_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.replayBaud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DSU_SERVER_REPLAY_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["replay-read-timeout"]; !ok {
		if v, ok := get("DSU_SERVER_REPLAY_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.replayReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DSU_SERVER_REPLAY_READ_TIMEOUT: %w", err)
			}
		}
	}
	return firstErr
}
