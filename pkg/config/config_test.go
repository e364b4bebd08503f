package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	c, err := FromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if c.HTTPAddr != ":8080" || c.CacheTTL != time.Hour || c.TallyConcurrency != 1 {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if c.PostgresDSN != "" || c.RedisAddr != "" {
		t.Errorf("persistence should be off by default: %+v", c)
	}
}

func TestFromEnv(t *testing.T) {
	c, err := FromEnv(envMap(map[string]string{
		"HTTP_ADDR":         "127.0.0.1:9000",
		"OVERPASS_URL":      "http://overpass.local/api/interpreter",
		"OVERPASS_RPS":      "0.5",
		"OVERPASS_BURST":    "3",
		"CACHE_TTL":         "15m",
		"REDIS_ADDR":        "localhost:6379",
		"REDIS_DB":          "2",
		"PG_HOST":           "db",
		"PG_USER":           "tally",
		"PG_PASSWORD":       "secret",
		"RATE_LIMIT_QPS":    "20",
		"TALLY_CONCURRENCY": "4",
		"CATEGORIES":        "cafe, bar,,park",
	}))
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if c.HTTPAddr != "127.0.0.1:9000" || c.OverpassRPS != 0.5 || c.OverpassBurst != 3 {
		t.Errorf("http/overpass = %+v", c)
	}
	if c.CacheTTL != 15*time.Minute || c.RedisDB != 2 {
		t.Errorf("cache = %v / %d", c.CacheTTL, c.RedisDB)
	}
	if want := "postgres://tally:secret@db:5432/osmtally?sslmode=disable"; c.PostgresDSN != want {
		t.Errorf("PostgresDSN = %s, want %s", c.PostgresDSN, want)
	}
	if c.TallyConcurrency != 4 || c.RateLimitQPS != 20 {
		t.Errorf("limits = %+v", c)
	}
	if strings.Join(c.Categories, "|") != "cafe|bar|park" {
		t.Errorf("Categories = %v", c.Categories)
	}
}

func TestFromEnvErrors(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{
		"CACHE_SIZE":        "lots",
		"CACHE_TTL":         "soon",
		"TALLY_CONCURRENCY": "0",
	}))
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"CACHE_SIZE", "CACHE_TTL", "TALLY_CONCURRENCY"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("OSMTALLY_TEST_ONLY=1\nHTTP_ADDR=:7070\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HTTP_ADDR", ":6060")
	t.Cleanup(func() { os.Unsetenv("OSMTALLY_TEST_ONLY") })

	c, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.HTTPAddr != ":6060" {
		t.Errorf("environment must win over .env, got %s", c.HTTPAddr)
	}
	if os.Getenv("OSMTALLY_TEST_ONLY") != "1" {
		t.Error(".env entry not loaded")
	}
}
