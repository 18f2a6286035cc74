package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/studio/internal/common"
)

// DefaultPath is used when neither an explicit path nor STUDIO_CONFIG is given.
const DefaultPath = "studio.yaml"

// Config is the root configuration loaded from YAML.
type Config struct {
	API      APIConfig     `yaml:"api"`
	Polling  PollingConfig `yaml:"polling"`
	Storage  StorageConfig `yaml:"storage"`
	Batch    BatchConfig   `yaml:"batch"`
	Notify   NotifyConfig  `yaml:"notify"`
	Fake     FakeConfig    `yaml:"fake"`
	LogLevel string        `yaml:"logLevel"` // debug|info|warn|error
}

// APIConfig points the client at the studio backend.
type APIConfig struct {
	BaseURL    string        `yaml:"baseUrl"`    // e.g. http://localhost:8080
	Timeout    time.Duration `yaml:"timeout"`    // per request
	CookieFile string        `yaml:"cookieFile"` // optional, defaults to storage dir/cookies.json
}

// PollingConfig holds per job kind polling parameters.
type PollingConfig struct {
	Content PollSettings `yaml:"content"`
	Speech  PollSettings `yaml:"speech"`
	Video   PollSettings `yaml:"video"`
}

// PollSettings parameterizes one polling loop.
type PollSettings struct {
	Interval       time.Duration `yaml:"interval"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	InitialDelay   time.Duration `yaml:"initialDelay"`
	DiscoveryDelay time.Duration `yaml:"discoveryDelay"` // video only: wait before looking up the created job
	HistoryLimit   int           `yaml:"historyLimit"`   // speech only: history entries scanned per tick
}

// StorageConfig configures local state.
type StorageConfig struct {
	Dir             string   `yaml:"dir"`
	DatabasePath    string   `yaml:"databasePath"` // optional, overrides default dir/studio.db
	MaxDownloadSize ByteSize `yaml:"maxDownloadSize"`
}

// BatchConfig configures the batch worker pool.
type BatchConfig struct {
	WorkerCount   int           `yaml:"workerCount"`
	QueueCapacity int           `yaml:"queueCapacity"`
	ShutdownGrace time.Duration `yaml:"shutdownGrace"` // time to wait for workers before forced stop
}

// NotifyConfig configures the optional completion webhook.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhookUrl"`
	Retries    int           `yaml:"retries"` // number of callback attempts
	Backoff    time.Duration `yaml:"backoff"` // base backoff duration
}

// FakeConfig configures the in-memory fake backend.
type FakeConfig struct {
	Address       string `yaml:"address"`
	Steps         int    `yaml:"steps"` // status checks before a job completes
	AdminEmail    string `yaml:"adminEmail"`
	AdminPassword string `yaml:"adminPassword"`
	OmitVideoID   bool   `yaml:"omitVideoId"` // answer video creation without a videoId, like older backends
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		str := strings.TrimSpace(value.Value)
		parsed, err := ParseByteSize(str)
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Supports Kubernetes-style quantities for binary units: Ki, Mi, Gi (case-insensitive).
// Also accepts KiB/MiB/GiB and decimal KB/MB/GB, and bare bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	up := strings.ToUpper(s)

	type unit struct {
		suffix string
		value  uint64
	}
	units := []unit{
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Load reads YAML config from path, expands environment variables, and validates it.
// If path is empty, it will attempt to read from env var STUDIO_CONFIG, then default to "studio.yaml".
// A missing default file is not an error: the defaults are returned instead.
func Load(path string) (*Config, error) {
	explicit := true
	if path == "" {
		if env := os.Getenv("STUDIO_CONFIG"); env != "" {
			path = env
		} else {
			path = DefaultPath
			explicit = false
		}
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			data = nil
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return Parse(data)
}

// Parse decodes raw YAML (after env expansion), applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = filepath.Join(cfg.Storage.Dir, common.DatabaseFileName)
	}
	if cfg.API.CookieFile == "" {
		cfg.API.CookieFile = filepath.Join(cfg.Storage.Dir, common.CookieFileName)
	}
	return &cfg, nil
}

// EnsureStorageDir creates the storage directory if needed.
func (c *Config) EnsureStorageDir() error {
	if c.Storage.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.Storage.Dir, 0o750); err != nil {
		return fmt.Errorf("ensure storage dir: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	// API defaults
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = common.DefaultBaseURL
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = common.DefaultRequestTimeout
	}

	// Polling defaults
	applyPollDefaults(&cfg.Polling.Content, common.ContentPollInterval, common.ContentPollMaxAttempts)
	applyPollDefaults(&cfg.Polling.Speech, common.SpeechPollInterval, common.SpeechPollMaxAttempts)
	applyPollDefaults(&cfg.Polling.Video, common.VideoPollInterval, common.VideoPollMaxAttempts)
	if cfg.Polling.Video.DiscoveryDelay == 0 {
		cfg.Polling.Video.DiscoveryDelay = common.VideoDiscoveryDelay
	}
	if cfg.Polling.Speech.HistoryLimit <= 0 {
		cfg.Polling.Speech.HistoryLimit = common.SpeechHistoryLimit
	}

	// Storage defaults
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = defaultStorageDir()
	}
	if cfg.Storage.MaxDownloadSize == 0 {
		cfg.Storage.MaxDownloadSize = ByteSize(512 * 1024 * 1024) // 512 MiB default
	}

	// Batch defaults
	if cfg.Batch.WorkerCount <= 0 {
		cfg.Batch.WorkerCount = common.DefaultWorkerCount
	}
	if cfg.Batch.QueueCapacity <= 0 {
		cfg.Batch.QueueCapacity = common.DefaultQueueCapacity
	}
	if cfg.Batch.ShutdownGrace == 0 {
		cfg.Batch.ShutdownGrace = 15 * time.Second
	}

	// Notify defaults
	if cfg.Notify.Retries == 0 {
		cfg.Notify.Retries = 3
	}
	if cfg.Notify.Backoff == 0 {
		cfg.Notify.Backoff = 2 * time.Second
	}

	// Fake backend defaults
	if cfg.Fake.Address == "" {
		cfg.Fake.Address = ":8080"
	}
	if cfg.Fake.Steps <= 0 {
		cfg.Fake.Steps = 3
	}
	if cfg.Fake.AdminEmail == "" {
		cfg.Fake.AdminEmail = "admin@studio.local"
	}
	if cfg.Fake.AdminPassword == "" {
		cfg.Fake.AdminPassword = "admin"
	}

	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
}

func applyPollDefaults(p *PollSettings, interval time.Duration, maxAttempts int) {
	if p.Interval <= 0 {
		p.Interval = interval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = maxAttempts
	}
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.baseUrl is invalid: %q", cfg.API.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.baseUrl must use http or https, got %q", u.Scheme)
	}
	if cfg.Polling.Content.InitialDelay < 0 || cfg.Polling.Speech.InitialDelay < 0 || cfg.Polling.Video.InitialDelay < 0 {
		return errors.New("polling.initialDelay must not be negative")
	}
	if w := strings.TrimSpace(cfg.Notify.WebhookURL); w != "" {
		if _, err := url.ParseRequestURI(w); err != nil {
			return fmt.Errorf("notify.webhookUrl is invalid: %w", err)
		}
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logLevel %q is not one of debug|info|warn|error", cfg.LogLevel)
	}
	return nil
}

func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".studio"
	}
	return filepath.Join(home, ".studio")
}
