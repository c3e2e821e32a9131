package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backends selectable with REFGUARD_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

type Config struct {
	Store         string // REFGUARD_STORE (memory|postgres|mongo, default "memory")
	DatabaseURL   string // REFGUARD_DATABASE_URL (required for postgres)
	MongoURI      string // REFGUARD_MONGO_URI (required for mongo)
	MongoDatabase string // REFGUARD_MONGO_DATABASE (default "refguard")
	SchemaFile    string // REFGUARD_SCHEMA_FILE (required)
	GRPCAddr      string // REFGUARD_GRPC_ADDR (default ":9090")
	HTTPAddr      string // REFGUARD_HTTP_ADDR (default ":8080")
	NATSURL       string // REFGUARD_NATS_URL (optional, empty = no events)
	AuthToken     string // REFGUARD_AUTH_TOKEN (optional, empty = auth disabled)

	// CheckConcurrency bounds reference lookups in flight per write.
	CheckConcurrency int // REFGUARD_CHECK_CONCURRENCY (default 16)

	// Sync settings
	SyncInterval   time.Duration // REFGUARD_SYNC_INTERVAL (default 0 = disabled)
	SyncS3Bucket   string        // REFGUARD_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // REFGUARD_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // REFGUARD_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // REFGUARD_SYNC_S3_KEY (default "refguard/export.jsonl")
	SyncGitRepo    string        // REFGUARD_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // REFGUARD_SYNC_GIT_FILE (default "refguard.jsonl")
	SyncGitBranch  string        // REFGUARD_SYNC_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		Store:          envOrDefault("REFGUARD_STORE", StoreMemory),
		DatabaseURL:    os.Getenv("REFGUARD_DATABASE_URL"),
		MongoURI:       os.Getenv("REFGUARD_MONGO_URI"),
		MongoDatabase:  envOrDefault("REFGUARD_MONGO_DATABASE", "refguard"),
		SchemaFile:     os.Getenv("REFGUARD_SCHEMA_FILE"),
		GRPCAddr:       envOrDefault("REFGUARD_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("REFGUARD_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("REFGUARD_NATS_URL"),
		AuthToken:      os.Getenv("REFGUARD_AUTH_TOKEN"),
		SyncS3Bucket:   os.Getenv("REFGUARD_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("REFGUARD_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("REFGUARD_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("REFGUARD_SYNC_S3_KEY", "refguard/export.jsonl"),
		SyncGitRepo:    os.Getenv("REFGUARD_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("REFGUARD_SYNC_GIT_FILE", "refguard.jsonl"),
		SyncGitBranch:  envOrDefault("REFGUARD_SYNC_GIT_BRANCH", "main"),
	}

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("REFGUARD_DATABASE_URL is required for the postgres store")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return nil, fmt.Errorf("REFGUARD_MONGO_URI is required for the mongo store")
		}
	default:
		return nil, fmt.Errorf("REFGUARD_STORE: unknown store %q", c.Store)
	}

	if c.SchemaFile == "" {
		return nil, fmt.Errorf("REFGUARD_SCHEMA_FILE is required")
	}

	n, err := strconv.Atoi(envOrDefault("REFGUARD_CHECK_CONCURRENCY", "16"))
	if err != nil {
		return nil, fmt.Errorf("REFGUARD_CHECK_CONCURRENCY: %w", err)
	}
	if n < 1 {
		return nil, fmt.Errorf("REFGUARD_CHECK_CONCURRENCY must be at least 1, got %d", n)
	}
	c.CheckConcurrency = n

	if intervalStr := os.Getenv("REFGUARD_SYNC_INTERVAL"); intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("REFGUARD_SYNC_INTERVAL: %w", err)
		}
		c.SyncInterval = d
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
