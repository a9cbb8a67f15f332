package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Backend string

const (
	BackendDrive Backend = "drive"
	BackendLocal Backend = "local"
)

type Config struct {
	Addr    string
	Backend Backend
	// DataDir of the local bucket. Empty keeps it in memory.
	DataDir string
	// PublicURL is the base of share links of the local bucket.
	PublicURL string

	CredentialsFile string
	// FolderID is the container every object lives in.
	FolderID  string
	ShareWith string

	QueryFile    string
	ResponseFile string
	MimeType     string

	ResponseWait time.Duration
	PollAttempts int
	PollInterval time.Duration

	AllowedOrigins []string

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
}

// FromEnv loads the configuration from environment variables
// with defaults for everything except the credentials.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Addr:            getEnv("RELAY_ADDR", ":5000"),
		Backend:         Backend(getEnv("RELAY_BACKEND", string(BackendDrive))),
		DataDir:         getEnv("RELAY_DATA_DIR", ""),
		PublicURL:       getEnv("RELAY_PUBLIC_URL", "http://localhost:5000"),
		CredentialsFile: getEnv("RELAY_DRIVE_CREDENTIALS", ""),
		FolderID:        getEnv("RELAY_FOLDER_ID", ""),
		ShareWith:       getEnv("RELAY_SHARE_WITH", ""),
		QueryFile:       getEnv("RELAY_QUERY_FILE", "queries.txt"),
		ResponseFile:    getEnv("RELAY_RESPONSE_FILE", "response.txt"),
		MimeType:        getEnv("RELAY_MIME_TYPE", "text/plain"),
		AllowedOrigins:  splitList(getEnv("RELAY_CORS_ORIGINS", "*")),
		OpenAIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://models.inference.ai.azure.com"),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o"),
	}
	var err error
	if cfg.ResponseWait, err = getDuration("RELAY_RESPONSE_WAIT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getDuration("RELAY_POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollAttempts, err = getInt("RELAY_POLL_ATTEMPTS", 1); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendDrive:
		if c.CredentialsFile == "" {
			errs = append(errs, errors.New("RELAY_DRIVE_CREDENTIALS is required for the drive backend"))
		}
		if c.FolderID == "" {
			errs = append(errs, errors.New("RELAY_FOLDER_ID is required for the drive backend"))
		}
	case BackendLocal:
		if c.FolderID == "" {
			c.FolderID = "local"
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.QueryFile == "" || c.ResponseFile == "" {
		errs = append(errs, errors.New("query and response file names must not be empty"))
	}
	if c.ResponseWait < 0 || c.PollInterval < 0 {
		errs = append(errs, errors.New("wait durations must not be negative"))
	}
	if c.PollAttempts < 1 {
		errs = append(errs, errors.New("RELAY_POLL_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
