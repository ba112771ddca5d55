package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	DefaultWorkers     = 3
	MinWorkers         = 1
	MaxWorkers         = 10
	DefaultMaxAttempts = 3
	DefaultFormat      = "best"
)

type StoreConfig struct {
	Backend string `yaml:"backend"` // local or s3
	Bucket  string `yaml:"bucket,omitempty"`
	Prefix  string `yaml:"prefix,omitempty"`
	Profile string `yaml:"profile,omitempty"`
}

type HistoryConfig struct {
	Backend       string `yaml:"backend"` // file or redis
	Path          string `yaml:"path,omitempty"`
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
	RedisKey      string `yaml:"redis_key,omitempty"`
}

type Settings struct {
	Workers        int           `yaml:"workers"`
	DownloadDir    string        `yaml:"download_dir,omitempty"`
	TempDir        string        `yaml:"temp_dir,omitempty"`
	DefaultFormat  string        `yaml:"default_format"`
	MaxAttempts    int           `yaml:"max_attempts"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	NotifyInterval time.Duration `yaml:"notify_interval"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	Socket         string        `yaml:"socket,omitempty"`
	YtdlpPath      string        `yaml:"ytdlp_path,omitempty"`
	FFmpegPath     string        `yaml:"ffmpeg_path,omitempty"`
	Store          StoreConfig   `yaml:"store"`
	History        HistoryConfig `yaml:"history"`
}

func baseDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "vidown")
	}
	return filepath.Join(os.TempDir(), "vidown")
}

func Default() Settings {
	base := baseDir()
	return Settings{
		Workers:        DefaultWorkers,
		TempDir:        filepath.Join(base, "tmp"),
		DefaultFormat:  DefaultFormat,
		MaxAttempts:    DefaultMaxAttempts,
		PollInterval:   500 * time.Millisecond,
		NotifyInterval: time.Second,
		RetryBackoff:   2 * time.Second,
		Socket:         filepath.Join(base, "vidown.sock"),
		Store:          StoreConfig{Backend: "local"},
		History:        HistoryConfig{Backend: "file", Path: filepath.Join(base, "history.jsonl")},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/vidown/config.yaml or its platform equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "vidown.yaml"
	}
	return filepath.Join(dir, "vidown", "config.yaml")
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("op", "config/load").Str("path", path).Msg("no config file, using defaults")
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("error reading config file: %v", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("error parsing config file: %v", err)
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return s, err
	}
	log.Debug().Str("op", "config/load").Str("path", path).Int("workers", s.Workers).Msg("config loaded")
	return s, nil
}

func ClampWorkers(n int) int {
	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// Normalize fills zero values with defaults and clamps ranges.
func (s *Settings) Normalize() {
	d := Default()
	s.Workers = ClampWorkers(s.Workers)
	if s.MaxAttempts < 1 {
		s.MaxAttempts = d.MaxAttempts
	}
	if s.DefaultFormat == "" {
		s.DefaultFormat = d.DefaultFormat
	}
	if s.TempDir == "" {
		s.TempDir = d.TempDir
	}
	if s.Socket == "" {
		s.Socket = d.Socket
	}
	if s.PollInterval <= 0 {
		s.PollInterval = d.PollInterval
	}
	if s.PollInterval > 5*time.Second {
		s.PollInterval = 5 * time.Second
	}
	if s.NotifyInterval <= 0 {
		s.NotifyInterval = d.NotifyInterval
	}
	if s.RetryBackoff <= 0 {
		s.RetryBackoff = d.RetryBackoff
	}
	if s.Store.Backend == "" {
		s.Store.Backend = "local"
	}
	if s.History.Backend == "" {
		s.History.Backend = "file"
	}
	if s.History.Backend == "file" && s.History.Path == "" {
		s.History.Path = d.History.Path
	}
}

func (s Settings) Validate() error {
	switch s.Store.Backend {
	case "local":
	case "s3":
		if s.Store.Bucket == "" {
			return fmt.Errorf("store.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", s.Store.Backend)
	}
	switch s.History.Backend {
	case "file":
	case "redis":
		if s.History.RedisAddr == "" {
			return fmt.Errorf("history.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown history backend %q", s.History.Backend)
	}
	return nil
}

// Provider hands out read-only snapshots of the current settings.
type Provider struct {
	mu sync.RWMutex
	s  Settings
}

func NewProvider(s Settings) *Provider {
	s.Normalize()
	return &Provider{s: s}
}

func (p *Provider) Snapshot() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s
}

// Update applies fn to a copy and publishes it. Running jobs keep the snapshot
// they started with.
func (p *Provider) Update(fn func(*Settings)) Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.s
	fn(&next)
	next.Normalize()
	p.s = next
	return next
}
