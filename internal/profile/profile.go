// Package profile carries the process configuration, loaded from
// environment variables with sensible defaults.
package profile

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Profile is the configuration needed to start the engine.
type Profile struct {
	// Mode is one of demo, dev, prod.
	Mode string

	// MetricsAddr serves the Prometheus endpoint when non-empty.
	MetricsAddr string

	// VectorDSN is the Postgres connection string for the vector store.
	VectorDSN string

	// GraphDSN is the SQLite path for the entity graph store.
	GraphDSN string

	// Embedding provider (OpenAI-compatible).
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingModel      string
	EmbeddingDimensions int
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns the environment variable value as int or a
// default.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.MetricsAddr = getEnvOrDefault("RECALL_METRICS_ADDR", p.MetricsAddr)
	p.VectorDSN = getEnvOrDefault("RECALL_VECTOR_DSN", p.VectorDSN)
	p.GraphDSN = getEnvOrDefault("RECALL_GRAPH_DSN", p.GraphDSN)

	p.EmbeddingAPIKey = getEnvOrDefault("RECALL_EMBEDDING_API_KEY", "")
	p.EmbeddingBaseURL = getEnvOrDefault("RECALL_EMBEDDING_BASE_URL", "https://api.siliconflow.cn/v1")
	p.EmbeddingModel = getEnvOrDefault("RECALL_EMBEDDING_MODEL", "BAAI/bge-m3")
	p.EmbeddingDimensions = getEnvOrDefaultInt("RECALL_EMBEDDING_DIMENSIONS", 1024)
}

// Validate checks the profile is usable.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.VectorDSN == "" {
		return errors.New("vector dsn required")
	}
	if p.GraphDSN == "" {
		return errors.New("graph dsn required")
	}
	if p.EmbeddingAPIKey == "" {
		return errors.New("embedding api key required")
	}
	return nil
}
