package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable read by ApplyEnv.
const EnvPrefix = "FRAMECUE_"

// LoadEnv reads .env files into the process environment. Variables that are
// already set are not overwritten. With no paths, ".env" is used; a missing
// file is reported as an error the caller may ignore.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration parses a Go duration ("20s", "30ms"). Unset, empty or
// invalid values return fallback.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// GetEnvList splits a comma separated variable, dropping empty items.
func GetEnvList(key string, fallback []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ApplyEnv overrides cfg with FRAMECUE_* variables.
func ApplyEnv(cfg *Config) {
	cfg.Backend = GetEnv(EnvPrefix+"BACKEND", cfg.Backend)
	cfg.FFmpegPath = GetEnv(EnvPrefix+"FFMPEG_PATH", cfg.FFmpegPath)
	cfg.FFprobePath = GetEnv(EnvPrefix+"FFPROBE_PATH", cfg.FFprobePath)
	cfg.NetworkTimeout = GetEnvDuration(EnvPrefix+"NETWORK_TIMEOUT", cfg.NetworkTimeout)
	cfg.Debounce = GetEnvDuration(EnvPrefix+"DEBOUNCE", cfg.Debounce)
	cfg.MediaBaseURL = GetEnv(EnvPrefix+"MEDIA_BASE_URL", cfg.MediaBaseURL)
	cfg.LogLevel = GetEnv(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)

	cfg.Remote.URL = GetEnv(EnvPrefix+"REMOTE_URL", cfg.Remote.URL)
	cfg.Remote.ClientType = GetEnv(EnvPrefix+"REMOTE_CLIENT_TYPE", cfg.Remote.ClientType)
	cfg.Remote.ReconnectDelay = GetEnvDuration(EnvPrefix+"REMOTE_RECONNECT_DELAY", cfg.Remote.ReconnectDelay)
	cfg.Remote.DialTimeout = GetEnvDuration(EnvPrefix+"REMOTE_DIAL_TIMEOUT", cfg.Remote.DialTimeout)
	cfg.Remote.SeekDebounce = GetEnvDuration(EnvPrefix+"REMOTE_SEEK_DEBOUNCE", cfg.Remote.SeekDebounce)

	cfg.Preview.Addr = GetEnv(EnvPrefix+"PREVIEW_ADDR", cfg.Preview.Addr)
	cfg.Preview.MaxWidth = GetEnvInt(EnvPrefix+"PREVIEW_MAX_WIDTH", cfg.Preview.MaxWidth)
	cfg.Preview.JPEGQuality = GetEnvInt(EnvPrefix+"PREVIEW_JPEG_QUALITY", cfg.Preview.JPEGQuality)
	cfg.Preview.AllowedOrigins = GetEnvList(EnvPrefix+"PREVIEW_ALLOWED_ORIGINS", cfg.Preview.AllowedOrigins)
}
