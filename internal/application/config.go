package application

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalherd/signalherd/internal/consensus"
	"github.com/signalherd/signalherd/internal/episode"
	"github.com/signalherd/signalherd/internal/scoring"
)

// Config is the full service configuration. Core formula tunables live
// beside plumbing settings; everything is validated once at load time so
// the hot paths never see an inverted threshold.
type Config struct {
	Episode   episode.Config         `yaml:"episode"`
	Scoring   scoring.Params         `yaml:"scoring"`
	Consensus consensus.Config       `yaml:"consensus"`
	Window    consensus.WindowConfig `yaml:"window"`

	TopN           int `yaml:"top_n"`
	VoteBufferSize int `yaml:"vote_buffer_size"`
	ScoringWorkers int `yaml:"scoring_workers"`

	ScoringInterval time.Duration `yaml:"scoring_interval"`

	DB       DBConfig       `yaml:"db"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`
	Feed     FeedConfig     `yaml:"feed"`
	Universe UniverseConfig `yaml:"universe"`
}

// UniverseConfig lists the tracked accounts and the instruments signals
// are evaluated for.
type UniverseConfig struct {
	Accounts []string `yaml:"accounts"`
	Assets   []string `yaml:"assets"`
}

// DBConfig configures the postgres persistence layer.
type DBConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	Enabled         bool          `yaml:"enabled"`
}

// RedisConfig configures the snapshot cache.
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	DB         int           `yaml:"db"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
	Enabled    bool          `yaml:"enabled"`
}

// HTTPConfig configures the monitoring server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// FeedConfig configures the fill-stream and stats collaborators.
type FeedConfig struct {
	WebsocketURL   string        `yaml:"websocket_url"`
	StatsURL       string        `yaml:"stats_url"`
	ReconnectBase  time.Duration `yaml:"reconnect_base"`
	ReconnectMax   time.Duration `yaml:"reconnect_max"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	RequestBurst   int           `yaml:"request_burst"`
}

// Default returns the shipped configuration.
func Default() Config {
	return Config{
		Episode:   episode.DefaultConfig(),
		Scoring:   scoring.DefaultParams(),
		Consensus: consensus.DefaultConfig(),
		Window:    consensus.DefaultWindowConfig(),

		TopN:           10,
		VoteBufferSize: 64,
		ScoringWorkers: 8,

		ScoringInterval: 15 * time.Minute,

		DB: DBConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DefaultTTL: 5 * time.Minute,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Feed: FeedConfig{
			ReconnectBase:  time.Second,
			ReconnectMax:   30 * time.Second,
			RequestsPerSec: 5,
			RequestBurst:   10,
		},
	}
}

// Load reads a yaml config over the defaults and validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate is the single configuration gate: errors here are fatal at
// startup, so the core never re-validates per call.
func (c Config) Validate() error {
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if err := c.Consensus.Validate(); err != nil {
		return err
	}
	if c.Episode.StopFraction <= 0 || c.Episode.StopFraction >= 1 {
		return fmt.Errorf("episode: stop_fraction %.4f outside (0,1)", c.Episode.StopFraction)
	}
	if c.Episode.RMin >= c.Episode.RMax {
		return fmt.Errorf("episode: r_min %.2f not below r_max %.2f", c.Episode.RMin, c.Episode.RMax)
	}
	if c.TopN < 1 {
		return fmt.Errorf("top_n must be ≥ 1, got %d", c.TopN)
	}
	if c.VoteBufferSize < c.Consensus.MinTraders {
		return fmt.Errorf("vote_buffer_size %d below min_traders %d",
			c.VoteBufferSize, c.Consensus.MinTraders)
	}
	if c.ScoringWorkers < 1 {
		return fmt.Errorf("scoring_workers must be ≥ 1, got %d", c.ScoringWorkers)
	}
	if c.Window.Base <= 0 {
		return fmt.Errorf("window: base must be positive")
	}
	if c.Window.CalmPercentile >= c.Window.WildPercentile {
		return fmt.Errorf("window: calm percentile %.2f not below wild percentile %.2f",
			c.Window.CalmPercentile, c.Window.WildPercentile)
	}
	return nil
}
