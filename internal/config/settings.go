package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Veraticus/bankflow/internal/common"
	"github.com/spf13/viper"
)

// Defaults for every tunable setting.
const (
	DefaultAPIURL          = "http://localhost:3001"
	DefaultAPITimeout      = 30 * time.Second
	DefaultDatabasePath    = "$HOME/.local/share/bankflow/bankflow.db"
	DefaultPollInterval    = 700 * time.Millisecond
	DefaultWatchInterval   = 1200 * time.Millisecond
	DefaultAutoSyncEvery   = 5 * time.Minute
	DefaultCacheTTL        = 5 * time.Minute
	DefaultRefreshDelay    = 1500 * time.Millisecond
	DefaultMaxPollAttempts = 0
	DefaultPollDeadline    = 0

	minPollInterval = 100 * time.Millisecond
	maxPollInterval = 10 * time.Second
)

// Settings is the resolved runtime configuration.
type Settings struct {
	APIURL          string
	CAFile          string
	DatabasePath    string
	APITimeout      time.Duration
	PollInterval    time.Duration
	WatchInterval   time.Duration
	PollDeadline    time.Duration
	AutoSyncEvery   time.Duration
	CacheTTL        time.Duration
	RefreshDelay    time.Duration
	MaxPollAttempts int
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.url", DefaultAPIURL)
	v.SetDefault("api.timeout", DefaultAPITimeout)
	v.SetDefault("api.ca_file", "")
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("sync.poll_interval", DefaultPollInterval)
	v.SetDefault("sync.watch_interval", DefaultWatchInterval)
	v.SetDefault("sync.max_poll_attempts", DefaultMaxPollAttempts)
	v.SetDefault("sync.poll_deadline", time.Duration(DefaultPollDeadline))
	v.SetDefault("sync.auto_interval", DefaultAutoSyncEvery)
	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("ledger.refresh_delay", DefaultRefreshDelay)
}

// Load resolves settings from v. Values come from the config file or
// BANKFLOW_ environment variables through viper; BANKFLOW_API_URL is
// also honored directly so scripts can point at a sandbox without a file.
func Load(v *viper.Viper) (*Settings, error) {
	SetDefaults(v)

	s := &Settings{
		APIURL:          v.GetString("api.url"),
		APITimeout:      v.GetDuration("api.timeout"),
		CAFile:          ExpandPath(v.GetString("api.ca_file")),
		DatabasePath:    ExpandPath(v.GetString("database.path")),
		PollInterval:    v.GetDuration("sync.poll_interval"),
		WatchInterval:   v.GetDuration("sync.watch_interval"),
		MaxPollAttempts: v.GetInt("sync.max_poll_attempts"),
		PollDeadline:    v.GetDuration("sync.poll_deadline"),
		AutoSyncEvery:   v.GetDuration("sync.auto_interval"),
		CacheTTL:        v.GetDuration("cache.ttl"),
		RefreshDelay:    v.GetDuration("ledger.refresh_delay"),
	}

	if env := os.Getenv("BANKFLOW_API_URL"); env != "" {
		s.APIURL = env
	}
	s.APIURL = strings.TrimRight(s.APIURL, "/")

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks that settings are usable.
func (s *Settings) Validate() error {
	if s.APIURL == "" {
		return fmt.Errorf("%w: api.url", common.ErrMissingConfig)
	}
	u, err := url.Parse(s.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: api.url %q must be an http(s) URL", common.ErrInvalidConfig, s.APIURL)
	}
	if s.DatabasePath == "" {
		return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}
	if s.PollInterval < minPollInterval || s.PollInterval > maxPollInterval {
		return fmt.Errorf("%w: sync.poll_interval %v outside [%v, %v]",
			common.ErrInvalidConfig, s.PollInterval, minPollInterval, maxPollInterval)
	}
	if s.WatchInterval < minPollInterval || s.WatchInterval > maxPollInterval {
		return fmt.Errorf("%w: sync.watch_interval %v outside [%v, %v]",
			common.ErrInvalidConfig, s.WatchInterval, minPollInterval, maxPollInterval)
	}
	if s.MaxPollAttempts < 0 {
		return fmt.Errorf("%w: sync.max_poll_attempts must not be negative", common.ErrInvalidConfig)
	}
	if s.PollDeadline < 0 || s.APITimeout < 0 || s.RefreshDelay < 0 {
		return fmt.Errorf("%w: durations must not be negative", common.ErrInvalidConfig)
	}
	if s.CacheTTL <= 0 || s.AutoSyncEvery <= 0 {
		return fmt.Errorf("%w: cache.ttl and sync.auto_interval must be positive", common.ErrInvalidConfig)
	}
	return nil
}
