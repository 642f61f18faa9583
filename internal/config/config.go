package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"NARR_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"NARR_DB_MAX_CONNS" default:"8"`

	// Matching and lifecycle tunables. Defaults mirror the documented
	// engine behavior; override only with evaluation data to back it up.
	MatchThreshold     float64       `envconfig:"NARR_MATCH_THRESHOLD" default:"0.6"`
	CandidateWindow    time.Duration `envconfig:"NARR_CANDIDATE_WINDOW" default:"336h"`
	ClusterThreshold   float64       `envconfig:"NARR_CLUSTER_THRESHOLD" default:"0.3"`
	VelocityWindowDays int           `envconfig:"NARR_VELOCITY_WINDOW_DAYS" default:"7"`

	// DenyListEntities is a comma-separated list of nucleus entities that
	// never form narratives (known noise subjects, ad aggregators).
	DenyListEntities string `envconfig:"NARR_DENYLIST_ENTITIES" default:""`

	AnthropicAPIKey   string        `envconfig:"ANTHROPIC_API_KEY" default:""`
	ExtractionModel   string        `envconfig:"NARR_EXTRACTION_MODEL" default:"claude-haiku-4-5"`
	ExtractionWorkers int           `envconfig:"NARR_EXTRACTION_WORKERS" default:"4"`
	ExtractionTimeout time.Duration `envconfig:"NARR_EXTRACTION_TIMEOUT" default:"60s"`
	ExtractionRetries int           `envconfig:"NARR_EXTRACTION_RETRIES" default:"3"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("NARR_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("NARR_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("NARR_DB_MIN_CONNS (%d) cannot exceed NARR_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("NARR_MATCH_THRESHOLD must be in (0, 1]")
	}
	if c.ClusterThreshold <= 0 || c.ClusterThreshold > 1 {
		return fmt.Errorf("NARR_CLUSTER_THRESHOLD must be in (0, 1]")
	}
	if c.CandidateWindow <= 0 {
		return fmt.Errorf("NARR_CANDIDATE_WINDOW must be > 0")
	}
	if c.VelocityWindowDays < 1 {
		return fmt.Errorf("NARR_VELOCITY_WINDOW_DAYS must be >= 1")
	}
	if c.ExtractionWorkers < 1 {
		return fmt.Errorf("NARR_EXTRACTION_WORKERS must be >= 1")
	}
	return nil
}

// DenyList splits the configured comma-separated entity list.
func (c *Config) DenyList() []string {
	if c == nil {
		return nil
	}
	parts := strings.Split(c.DenyListEntities, ",")
	entities := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		entity := strings.TrimSpace(part)
		if entity == "" {
			continue
		}
		key := strings.ToLower(entity)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		entities = append(entities, entity)
	}
	return entities
}

// CORSAllowedOriginsList splits the configured comma-separated origin list.
func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
