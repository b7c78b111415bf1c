package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Engine defaults. The depth knobs are capped at 9 so a directory never
// exceeds 512 slots.
const (
	DefaultPoolSize          = 64
	DefaultReplacerK         = 2
	DefaultHeaderMaxDepth    = 2
	DefaultDirectoryMaxDepth = 9
	DefaultBucketMaxSize     = 64
	DefaultDataDir           = "marble_data"

	maxHashDepth = 9
)

// Config holds the engine tuning knobs.
type Config struct {
	PoolSize          int
	ReplacerK         int
	HeaderMaxDepth    uint32
	DirectoryMaxDepth uint32
	BucketMaxSize     uint32
	DataDir           string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		PoolSize:          DefaultPoolSize,
		ReplacerK:         DefaultReplacerK,
		HeaderMaxDepth:    DefaultHeaderMaxDepth,
		DirectoryMaxDepth: DefaultDirectoryMaxDepth,
		BucketMaxSize:     DefaultBucketMaxSize,
		DataDir:           DefaultDataDir,
	}
}

// Load reads the configuration from the environment, consulting a .env file
// if one is present. Unset or malformed variables fall back to the defaults.
func Load() Config {
	godotenv.Load(".env")
	cfg := Default()
	cfg.PoolSize = intFromEnv("MARBLE_POOL_SIZE", cfg.PoolSize)
	cfg.ReplacerK = intFromEnv("MARBLE_REPLACER_K", cfg.ReplacerK)
	cfg.HeaderMaxDepth = depthFromEnv("MARBLE_HEADER_MAX_DEPTH", cfg.HeaderMaxDepth)
	cfg.DirectoryMaxDepth = depthFromEnv("MARBLE_DIRECTORY_MAX_DEPTH", cfg.DirectoryMaxDepth)
	cfg.BucketMaxSize = uint32(intFromEnv("MARBLE_BUCKET_MAX_SIZE", int(cfg.BucketMaxSize)))
	if dir := os.Getenv("MARBLE_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	return cfg
}

func intFromEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func depthFromEnv(key string, fallback uint32) uint32 {
	v := intFromEnv(key, int(fallback))
	if v > maxHashDepth {
		return maxHashDepth
	}
	return uint32(v)
}
