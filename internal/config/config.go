// Package config reads the MESH_* environment, optionally seeded from a .env
// file, and maps it onto modelmesh.Options.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/simcoestone/modelmesh"
	"github.com/simcoestone/modelmesh/logging"
	"github.com/simcoestone/modelmesh/registry"
)

// DefaultInferenceEndpoint is a local LM Studio server.
const DefaultInferenceEndpoint = "http://localhost:1234/v1"

// Providers accepted in MESH_PROVIDER.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all settings of a mesh process.
type Config struct {
	InferenceEndpoint string
	APIKey            string
	Provider          string

	MemoryBudgetMB   int
	MaxLoadedModels  int
	IdleTimeout      time.Duration
	SweepInterval    time.Duration
	DiscoveryTimeout time.Duration

	LinkThreshold     float64
	RelevanceFloor    float64
	CoherenceHalfLife time.Duration

	CapabilityTable string
	PreloadModels   []string

	LogLevel  logging.LogLevel
	LogFormat string
}

// Load reads the given .env files (".env" when none is given) and then the
// process environment. Missing .env files are ignored. Invalid values fall
// back to their defaults.
func Load(envFiles ...string) *Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already set in the environment.
		_ = godotenv.Load(f)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) *Config {
	e := env(getenv)
	return &Config{
		InferenceEndpoint: e.str("MESH_INFERENCE_ENDPOINT", DefaultInferenceEndpoint),
		APIKey:            e.str("MESH_API_KEY", ""),
		Provider:          e.oneOf("MESH_PROVIDER", ProviderOpenAI, ProviderOpenAI, ProviderAnthropic),
		MemoryBudgetMB:    e.positiveInt("MESH_MEMORY_BUDGET_MB", 8192),
		MaxLoadedModels:   e.positiveInt("MESH_MAX_LOADED_MODELS", 3),
		IdleTimeout:       e.duration("MESH_IDLE_TIMEOUT", 30*time.Minute),
		SweepInterval:     e.duration("MESH_SWEEP_INTERVAL", 60*time.Second),
		DiscoveryTimeout:  e.duration("MESH_DISCOVERY_TIMEOUT", 5*time.Second),
		LinkThreshold:     e.unitFloat("MESH_LINK_THRESHOLD", 0.8),
		RelevanceFloor:    e.unitFloat("MESH_RELEVANCE_FLOOR", 0.7),
		CoherenceHalfLife: e.duration("MESH_COHERENCE_HALF_LIFE", time.Hour),
		CapabilityTable:   e.str("MESH_CAPABILITY_TABLE", ""),
		PreloadModels:     e.list("MESH_PRELOAD_MODELS"),
		LogLevel:          logging.ParseLevel(e.str("MESH_LOG_LEVEL", "info")),
		LogFormat:         e.oneOf("MESH_LOG_FORMAT", "text", "text", "json"),
	}
}

// Logger builds the MeshLogger described by LogLevel and LogFormat.
func (c *Config) Logger() *logging.MeshLogger {
	return logging.NewSlogLogger(c.LogLevel, c.LogFormat, false)
}

// LoadCapabilityTable reads CapabilityTable. It returns nil without error
// when no path is configured, leaving the embedded table in use.
func (c *Config) LoadCapabilityTable() (*registry.CapabilityTable, error) {
	if c.CapabilityTable == "" {
		return nil, nil
	}
	return registry.LoadCapabilityTableFile(c.CapabilityTable)
}

// Apply copies the settings onto o.
func (c *Config) Apply(o *modelmesh.Options) {
	o.MemoryBudgetMB = c.MemoryBudgetMB
	o.MaxLoaded = c.MaxLoadedModels
	o.IdleTimeout = c.IdleTimeout
	o.SweepInterval = c.SweepInterval
	o.DiscoveryTimeout = c.DiscoveryTimeout
	o.LinkThreshold = c.LinkThreshold
	o.RelevanceFloor = c.RelevanceFloor
	o.HalfLife = c.CoherenceHalfLife
	o.Preload = append([]string(nil), c.PreloadModels...)
}

type env func(string) string

func (e env) str(key, def string) string {
	if v := strings.TrimSpace(e(key)); v != "" {
		return v
	}
	return def
}

func (e env) positiveInt(key string, def int) int {
	v, err := strconv.Atoi(e.str(key, ""))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func (e env) duration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(e.str(key, ""))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func (e env) unitFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(e.str(key, ""), 64)
	if err != nil || v < 0 || v > 1 {
		return def
	}
	return v
}

func (e env) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e env) oneOf(key, def string, allowed ...string) string {
	v := strings.ToLower(e.str(key, def))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return def
}
