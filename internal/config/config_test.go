package config

import (
	"reflect"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Environment:        "local",
		LogLevel:           "info",
		DatabaseURL:        "postgres://localhost:5432/narratives",
		DBMinConns:         1,
		DBMaxConns:         8,
		MatchThreshold:     0.6,
		CandidateWindow:    336 * time.Hour,
		ClusterThreshold:   0.3,
		VelocityWindowDays: 7,
		ExtractionWorkers:  4,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing database url", mutate: func(c *Config) { c.DatabaseURL = "  " }},
		{name: "negative min conns", mutate: func(c *Config) { c.DBMinConns = -1 }},
		{name: "zero max conns", mutate: func(c *Config) { c.DBMaxConns = 0 }},
		{name: "min exceeds max", mutate: func(c *Config) { c.DBMinConns = 9 }},
		{name: "match threshold zero", mutate: func(c *Config) { c.MatchThreshold = 0 }},
		{name: "match threshold over one", mutate: func(c *Config) { c.MatchThreshold = 1.2 }},
		{name: "cluster threshold zero", mutate: func(c *Config) { c.ClusterThreshold = 0 }},
		{name: "candidate window zero", mutate: func(c *Config) { c.CandidateWindow = 0 }},
		{name: "velocity window zero", mutate: func(c *Config) { c.VelocityWindowDays = 0 }},
		{name: "zero extraction workers", mutate: func(c *Config) { c.ExtractionWorkers = 0 }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestDenyListParsing(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.DenyListEntities = " Taboola, Outbrain ,,taboola , Sponsored Content"

	got := cfg.DenyList()
	want := []string{"Taboola", "Outbrain", "Sponsored Content"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("deny list: got %v, want %v", got, want)
	}
}

func TestDenyListEmpty(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if got := cfg.DenyList(); len(got) != 0 {
		t.Fatalf("empty deny list: got %v", got)
	}
}

func TestCORSAllowedOriginsList(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.CORSAllowedOrigins = "https://a.example.com, https://b.example.com ,https://a.example.com,"

	got := cfg.CORSAllowedOriginsList()
	want := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("cors origins: got %v, want %v", got, want)
	}
}
