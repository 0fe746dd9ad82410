// Package config loads tarotd settings: a YAML file over Defaults, then the
// environment variables the deployment scripts already set.
package config

import (
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/tarotcache"
	"github.com/unkn0wn-root/tarotcache/codec"
	"github.com/unkn0wn-root/tarotcache/internal/storage"
)

const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Duration accepts Go durations plus day/week units ("7d", "1w2d").
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return str2duration.String(time.Duration(d)), nil
}

func parseDuration(s string) (Duration, error) {
	v, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", s)
	}
	return Duration(v), nil
}

type Config struct {
	Server   Server   `yaml:"server"`
	Cache    Cache    `yaml:"cache"`
	Redis    Redis    `yaml:"redis"`
	Memory   Memory   `yaml:"memory"`
	Database Database `yaml:"database"`
	Session  Session  `yaml:"session"`
	Poster   Poster   `yaml:"poster"`
	Log      Log      `yaml:"log"`
	Tracing  Tracing  `yaml:"tracing"`
}

type Server struct {
	Port            int      `yaml:"port"`
	AdminToken      string   `yaml:"admin_token"`
	ResponseTTL     Duration `yaml:"response_ttl"`
	RateLimit       float64  `yaml:"rate_limit"` // requests per second per client; 0 disables
	RateBurst       int      `yaml:"rate_burst"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type Cache struct {
	Driver    string   `yaml:"driver"`
	Prefix    string   `yaml:"prefix"`
	Codec     string   `yaml:"codec"`
	OpTimeout Duration `yaml:"op_timeout"`
	Disabled  bool     `yaml:"disabled"`
	Warm      bool     `yaml:"warm"`
}

type Redis struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (r Redis) Addr() string { return r.Host + ":" + strconv.Itoa(r.Port) }

type Memory struct {
	LifeWindow  Duration `yaml:"life_window"`
	HardMaxMB   int      `yaml:"hard_max_mb"`
	CleanWindow Duration `yaml:"clean_window"`
}

type Database struct {
	DSN string `yaml:"dsn"`
}

type Session struct {
	TTL          Duration `yaml:"ttl"`
	ComputeWait  Duration `yaml:"compute_wait"`
	PollInterval Duration `yaml:"poll_interval"`
}

type Poster struct {
	TTL       Duration `yaml:"ttl"`
	MaxBytes  int      `yaml:"max_bytes"`
	L1MaxCost int64    `yaml:"l1_max_cost"`
}

type Log struct {
	Backend string `yaml:"backend"` // zap | logrus | slog
	Level   string `yaml:"level"`
	Format  string `yaml:"format"` // json | console
}

type Tracing struct {
	Stdout      bool   `yaml:"stdout"`
	ServiceName string `yaml:"service_name"`
}

func Defaults() Config {
	return Config{
		Server: Server{
			Port:            3000,
			ResponseTTL:     Duration(300 * time.Second),
			RateLimit:       20,
			RateBurst:       40,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Cache: Cache{
			Driver:    DriverRedis,
			Prefix:    tarotcache.DefaultPrefix,
			Codec:     "json",
			OpTimeout: Duration(tarotcache.DefaultOpTimeout),
			Warm:      true,
		},
		Redis:    Redis{Host: "localhost", Port: 6379},
		Memory:   Memory{LifeWindow: Duration(30 * 24 * time.Hour)},
		Database: Database{DSN: storage.DefaultDSN},
		Session: Session{
			TTL:          Duration(600 * time.Second),
			ComputeWait:  Duration(2 * time.Second),
			PollInterval: Duration(100 * time.Millisecond),
		},
		Poster: Poster{
			TTL:      Duration(7 * 24 * time.Hour),
			MaxBytes: 5 << 20,
		},
		Log:     Log{Backend: "zap", Level: "info", Format: "json"},
		Tracing: Tracing{ServiceName: "tarotd"},
	}
}

// Load reads path (optional) over Defaults and applies env overrides. A
// missing file is not an error when path is empty.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "env %s", name)
		}
		*dst = n
		return nil
	}

	str("REDIS_URL", &c.Redis.URL)
	str("REDIS_HOST", &c.Redis.Host)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("REDIS_KEY_PREFIX", &c.Cache.Prefix)
	str("CACHE_DRIVER", &c.Cache.Driver)
	str("DATABASE_DSN", &c.Database.DSN)
	str("ADMIN_TOKEN", &c.Server.AdminToken)
	str("LOG_LEVEL", &c.Log.Level)
	for name, dst := range map[string]*int{
		"PORT":       &c.Server.Port,
		"REDIS_PORT": &c.Redis.Port,
		"REDIS_DB":   &c.Redis.DB,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Cache.Driver {
	case DriverRedis, DriverMemory:
	default:
		return errors.Newf("cache.driver: unknown driver %q", c.Cache.Driver)
	}
	if !slices.Contains(codec.Names(), c.Cache.Codec) {
		return errors.Newf("cache.codec: unknown codec %q (have %v)", c.Cache.Codec, codec.Names())
	}
	switch c.Log.Backend {
	case "zap", "logrus", "slog":
	default:
		return errors.Newf("log.backend: unknown backend %q", c.Log.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port: %d out of range", c.Server.Port)
	}
	if c.Session.TTL.D() <= 0 {
		return errors.New("session.ttl must be positive")
	}
	return nil
}
