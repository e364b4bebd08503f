// Package config reads service settings from the environment and optional
// .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting of the service. Flags are applied on top of it
// by the command.
type Config struct {
	HTTPAddr string

	OverpassURL   string
	NominatimURL  string
	UserAgent     string
	OverpassRPS   float64
	OverpassBurst int

	CacheTTL  time.Duration
	CacheSize int

	RedisAddr string
	RedisPass string
	RedisDB   int

	// PostgresDSN is empty when persistence is disabled.
	PostgresDSN     string
	PostgresMaxOpen int
	PostgresMaxIdle int

	RateLimitQPS     float64
	TallyConcurrency int
	Categories       []string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		HTTPAddr:         ":8080",
		CacheTTL:         time.Hour,
		CacheSize:        1000,
		PostgresMaxOpen:  10,
		PostgresMaxIdle:  5,
		TallyConcurrency: 1,
	}
}

// Load reads the given .env files, when present, and then the environment.
// Variables already set in the environment win over .env entries.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Malformed numbers and
// durations are reported together.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Default()
	p := parser{getenv: getenv}

	c.HTTPAddr = p.str("HTTP_ADDR", c.HTTPAddr)
	c.OverpassURL = p.str("OVERPASS_URL", "")
	c.NominatimURL = p.str("NOMINATIM_URL", "")
	c.UserAgent = p.str("USER_AGENT", "")
	c.OverpassRPS = p.float("OVERPASS_RPS", 0)
	c.OverpassBurst = p.integer("OVERPASS_BURST", 0)

	c.CacheTTL = p.duration("CACHE_TTL", c.CacheTTL)
	c.CacheSize = p.integer("CACHE_SIZE", c.CacheSize)

	c.RedisAddr = p.str("REDIS_ADDR", "")
	c.RedisPass = p.str("REDIS_PASS", "")
	c.RedisDB = p.integer("REDIS_DB", 0)

	c.PostgresDSN = p.str("PG_DSN", "")
	if c.PostgresDSN == "" && getenv("PG_HOST") != "" {
		c.PostgresDSN = postgresDSN(getenv)
	}
	c.PostgresMaxOpen = p.integer("PG_MAX_OPEN_CONNS", c.PostgresMaxOpen)
	c.PostgresMaxIdle = p.integer("PG_MAX_IDLE_CONNS", c.PostgresMaxIdle)

	c.RateLimitQPS = p.float("RATE_LIMIT_QPS", 0)
	c.TallyConcurrency = p.integer("TALLY_CONCURRENCY", c.TallyConcurrency)
	if raw := getenv("CATEGORIES"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.Categories = append(c.Categories, name)
			}
		}
	}

	if c.TallyConcurrency < 1 {
		p.errs = append(p.errs, fmt.Errorf("TALLY_CONCURRENCY must be at least 1, got %d", c.TallyConcurrency))
	}
	return c, errors.Join(p.errs...)
}

// postgresDSN assembles a URL from PG_HOST, PG_PORT, PG_USER, PG_PASSWORD,
// PG_DB and PG_SSLMODE.
func postgresDSN(getenv func(string) string) string {
	or := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}
	dsn := "postgres://" + or("PG_USER", "postgres")
	if pass := getenv("PG_PASSWORD"); pass != "" {
		dsn += ":" + pass
	}
	dsn += "@" + or("PG_HOST", "localhost") + ":" + or("PG_PORT", "5432") + "/" + or("PG_DB", "osmtally")
	return dsn + "?sslmode=" + or("PG_SSLMODE", "disable")
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
