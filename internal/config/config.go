// Package config loads the explicit configuration value passed into the
// measurement engine. YAML and JSON files share one strict decoder; unknown
// fields are rejected so typos fail loudly.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"netgauge/internal/engine"
	"netgauge/internal/transport"
	"netgauge/pkg/logx"
)

// Config is the on-disk schema.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Engine    EngineConfig    `json:"engine"`
	Transport TransportConfig `json:"transport"`
	History   HistoryConfig   `json:"history"`
	Schedule  ScheduleConfig  `json:"schedule"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"`
	File    struct {
		Enabled bool   `json:"enabled,omitempty"`
		Path    string `json:"path,omitempty"`
	} `json:"file,omitempty"`
}

// EngineConfig mirrors engine.Config. Zero fields fall back to the stock
// directory-service defaults.
type EngineConfig struct {
	ConfigURL             string `json:"config_url,omitempty"`
	ServerListURL         string `json:"server_list_url,omitempty"`
	ServerListFallbackURL string `json:"server_list_fallback_url,omitempty"`
	ServerLimit           int    `json:"server_limit,omitempty"`
	LatencyAttempts       int    `json:"latency_attempts,omitempty"`
	LatencyWorkers        int    `json:"latency_workers,omitempty"`
	DownloadSizes         []int  `json:"download_sizes,omitempty"`
	DownloadRepeats       int    `json:"download_repeats,omitempty"`
	DownloadWorkers       int    `json:"download_workers,omitempty"`
	DownloadDeadline      string `json:"download_deadline,omitempty"`
	UploadSizes           []int  `json:"upload_sizes,omitempty"`
	UploadSizeRatio       int    `json:"upload_size_ratio,omitempty"`
	UploadJobCap          int    `json:"upload_job_cap,omitempty"`
	UploadWorkers         int    `json:"upload_workers,omitempty"`
	UploadDeadline        string `json:"upload_deadline,omitempty"`
}

type TransportConfig struct {
	// Timeout bounds every individual request.
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	// DownloadRateMBps caps download streaming when > 0 (testing aid).
	DownloadRateMBps float64 `json:"download_rate_mbps,omitempty"`
}

type HistoryConfig struct {
	// Capacity of the in-memory result ring (default 100).
	Capacity int `json:"capacity,omitempty"`
}

type ScheduleConfig struct {
	// Cron runs the engine periodically when set (standard 5-field spec).
	// Empty means a single run.
	Cron string `json:"cron,omitempty"`
}

// Load reads, decodes, and validates the file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, _, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := parseDurationField("engine.download_deadline", c.Engine.DownloadDeadline); err != nil {
		return err
	}
	if _, err := parseDurationField("engine.upload_deadline", c.Engine.UploadDeadline); err != nil {
		return err
	}
	if _, err := parseDurationField("transport.timeout", c.Transport.Timeout); err != nil {
		return err
	}
	for _, s := range c.Engine.DownloadSizes {
		if s <= 0 {
			return fmt.Errorf("engine.download_sizes: sizes must be > 0")
		}
	}
	for _, s := range c.Engine.UploadSizes {
		if s <= 0 {
			return fmt.Errorf("engine.upload_sizes: sizes must be > 0")
		}
	}
	if c.History.Capacity < 0 {
		return fmt.Errorf("history.capacity: must be >= 0")
	}
	return nil
}

// EngineConfig converts the file schema into the engine's explicit value.
// Invalid durations were already rejected by Load.
func (c *Config) EngineConfig() engine.Config {
	dl, _ := parseDurationField("", c.Engine.DownloadDeadline)
	ul, _ := parseDurationField("", c.Engine.UploadDeadline)
	return engine.Config{
		ConfigURL:             c.Engine.ConfigURL,
		ServerListURL:         c.Engine.ServerListURL,
		ServerListFallbackURL: c.Engine.ServerListFallbackURL,
		ServerLimit:           c.Engine.ServerLimit,
		LatencyAttempts:       c.Engine.LatencyAttempts,
		LatencyWorkers:        c.Engine.LatencyWorkers,
		DownloadSizes:         c.Engine.DownloadSizes,
		DownloadRepeats:       c.Engine.DownloadRepeats,
		DownloadWorkers:       c.Engine.DownloadWorkers,
		DownloadDeadline:      dl,
		UploadSizes:           c.Engine.UploadSizes,
		UploadSizeRatio:       c.Engine.UploadSizeRatio,
		UploadJobCap:          c.Engine.UploadJobCap,
		UploadWorkers:         c.Engine.UploadWorkers,
		UploadDeadline:        ul,
	}
}

// TransportOptions converts the transport section.
func (c *Config) TransportOptions() transport.Options {
	timeout, _ := parseDurationField("", c.Transport.Timeout)
	return transport.Options{
		Timeout:          timeout,
		UserAgent:        c.Transport.UserAgent,
		DownloadRateMBps: c.Transport.DownloadRateMBps,
	}
}

// LogConfig converts the logging section. Console defaults to on.
func (c *Config) LogConfig() logx.Config {
	console := true
	if c.Logging.Console != nil {
		console = *c.Logging.Console
	}
	return logx.Config{
		Level:   c.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

func parseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
