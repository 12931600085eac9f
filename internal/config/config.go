package config

import (
	"context"
	"os"

	"github.com/joho/godotenv"
)

// DefaultBackendURL is the fallback task-store endpoint when neither the store
// override nor the environment names one.
const DefaultBackendURL = "http://localhost:5000"

// Config carries the daemon's startup configuration.
type Config struct {
	BackendURL     string
	SurfaceURL     string
	ListenPort     string
	StatePath      string
	SyncInterval   string
	CORSOrigins    string
	JiraBaseURL    string
	JiraUsername   string
	JiraToken      string
	JiraAuthMode   string
	JiraProjectKey string
	JiraIssueType  string
}

// Load reads configuration from the environment, honoring an optional .env
// file in the working directory.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		BackendURL:     getEnv("BACKEND_URL", DefaultBackendURL),
		SurfaceURL:     getEnv("CAPTURE_SURFACE_URL", "http://localhost:8765"),
		ListenPort:     getEnv("LISTEN_PORT", "8080"),
		StatePath:      getEnv("STATE_PATH", "snipsync.db"),
		SyncInterval:   getEnv("SYNC_INTERVAL", "2m"),
		CORSOrigins:    getEnv("CORS_ALLOWED_ORIGINS", "*"),
		JiraBaseURL:    getEnv("JIRA_BASE_URL", ""),
		JiraUsername:   getEnv("JIRA_USERNAME", ""),
		JiraToken:      getEnv("JIRA_TOKEN", ""),
		JiraAuthMode:   getEnv("JIRA_AUTH_MODE", "basic"),
		JiraProjectKey: getEnv("JIRA_PROJECT_KEY", ""),
		JiraIssueType:  getEnv("JIRA_ISSUE_TYPE", "Task"),
	}
}

// BackendResolver is consulted once per operation for the task-store base URL.
type BackendResolver func(ctx context.Context) string

// urlStore is the slice of the state store the resolver needs.
type urlStore interface {
	BackendURL(ctx context.Context) (string, error)
}

// NewBackendResolver resolves the backend URL per operation: the store override
// wins over the environment value, which wins over the built-in default. The
// override can change at runtime without restarting the daemon.
func NewBackendResolver(store urlStore, envURL string) BackendResolver {
	return func(ctx context.Context) string {
		if store != nil {
			if override, err := store.BackendURL(ctx); err == nil && override != "" {
				return override
			}
		}
		if envURL != "" {
			return envURL
		}
		return DefaultBackendURL
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
