// Package config assembles the immutable engine configuration from
// defaults, an optional config file and COMPS_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/comps-engine/internal/dedupe"
	"github.com/comps-engine/internal/ranking"
	"github.com/comps-engine/internal/selector"
	"github.com/comps-engine/internal/target"
)

// ClientConfig configures one outbound HTTP client.
type ClientConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// ServerConfig configures the review HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Config is the full engine configuration. Weights and thresholds live here
// rather than as package globals so tests can vary them without cross-test
// interference.
type Config struct {
	Target   target.Options   `mapstructure:"target"`
	Dedupe   dedupe.Options   `mapstructure:"dedupe"`
	Selector selector.Options `mapstructure:"selector"`
	Ranking  ranking.Weights  `mapstructure:"ranking"`
	Geocoder ClientConfig     `mapstructure:"geocoder"`
	EPC      ClientConfig     `mapstructure:"epc"`
	Review   ServerConfig     `mapstructure:"review"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Target:   target.DefaultOptions(),
		Dedupe:   dedupe.DefaultOptions(),
		Selector: selector.DefaultOptions(),
		Ranking:  ranking.DefaultWeights(),
		Geocoder: ClientConfig{
			BaseURL:           "https://api.postcodes.io",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 5,
			CacheTTL:          24 * time.Hour,
		},
		EPC: ClientConfig{
			BaseURL:           "https://find-energy-certificate.service.gov.uk",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 1,
		},
		Review: ServerConfig{Host: "127.0.0.1", Port: 8787},
	}
}

// Load builds the configuration: defaults, overlaid by the config file (when
// given), overlaid by COMPS_* environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("COMPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engines cannot honor.
func (c *Config) Validate() error {
	sum := c.Ranking.FloorArea + c.Ranking.Proximity + c.Ranking.Bedrooms + c.Ranking.Recency
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("ranking weights must sum to 1, got %.3f", sum)
	}
	if c.Selector.MinStreetSimilarity < 0 || c.Selector.MinStreetSimilarity > 1 {
		return fmt.Errorf("selector min_street_similarity must be in [0,1], got %v", c.Selector.MinStreetSimilarity)
	}
	if c.Target.SimilarityThreshold < 0 || c.Target.SimilarityThreshold > 1 {
		return fmt.Errorf("target similarity_threshold must be in [0,1], got %v", c.Target.SimilarityThreshold)
	}
	if c.Dedupe.FloorAreaTolerance < 0 || c.Dedupe.FloorAreaTolerance > 0.5 {
		return fmt.Errorf("dedupe floor_area_tolerance must be in [0,0.5], got %v", c.Dedupe.FloorAreaTolerance)
	}
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("target.markers", d.Target.Markers)
	v.SetDefault("target.similarity_threshold", d.Target.SimilarityThreshold)
	v.SetDefault("dedupe.floor_area_tolerance", d.Dedupe.FloorAreaTolerance)
	v.SetDefault("selector.min_street_similarity", d.Selector.MinStreetSimilarity)
	v.SetDefault("ranking.floor_area", d.Ranking.FloorArea)
	v.SetDefault("ranking.proximity", d.Ranking.Proximity)
	v.SetDefault("ranking.bedrooms", d.Ranking.Bedrooms)
	v.SetDefault("ranking.recency", d.Ranking.Recency)
	v.SetDefault("geocoder.base_url", d.Geocoder.BaseURL)
	v.SetDefault("geocoder.timeout", d.Geocoder.Timeout)
	v.SetDefault("geocoder.requests_per_second", d.Geocoder.RequestsPerSecond)
	v.SetDefault("geocoder.cache_ttl", d.Geocoder.CacheTTL)
	v.SetDefault("epc.base_url", d.EPC.BaseURL)
	v.SetDefault("epc.timeout", d.EPC.Timeout)
	v.SetDefault("epc.requests_per_second", d.EPC.RequestsPerSecond)
	v.SetDefault("review.host", d.Review.Host)
	v.SetDefault("review.port", d.Review.Port)
}
