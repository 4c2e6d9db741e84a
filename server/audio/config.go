package audio

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type SourceConfig struct {
	HTTPEnabled             bool
	HTTPSEnabled            bool
	PublicIPAddressEnabled  bool
	PrivateIPAddressEnabled bool

	// YouTubeCacheDir is where resolved media is downloaded to disk for
	// replay; YouTubeCacheEnabled gates whether NewYouTubeSource consults
	// it at all before falling back to a plain HTTP source.
	YouTubeCacheDir     string
	YouTubeCacheEnabled bool

	// PrefetchWindow is how far ahead of playback position the decoder's
	// prefetch worker keeps clusters loaded.
	PrefetchWindow time.Duration

	// HTTPCacheLimitBytes bounds how much of a remote track an HTTPSource
	// keeps buffered before trimming already-consumed bytes.
	HTTPCacheLimitBytes int
}

var config SourceConfig

func init() {
	config = SourceConfig{
		HTTPEnabled:             getEnvBool("LINKDAVE_SOURCE_HTTP_ENABLED", false),
		HTTPSEnabled:            getEnvBool("LINKDAVE_SOURCE_HTTPS_ENABLED", false),
		PublicIPAddressEnabled:  getEnvBool("LINKDAVE_SOURCE_IP_ADDRESS_PUBLIC_ENABLED", false),
		PrivateIPAddressEnabled: getEnvBool("LINKDAVE_SOURCE_IP_ADDRESS_PRIVATE_ENABLED", false),

		YouTubeCacheDir:     getEnvString("LINKDAVE_SOURCE_YOUTUBE_CACHE_DIR", filepath.Join(os.TempDir(), "linkdave-youtube-cache")),
		YouTubeCacheEnabled: getEnvBool("LINKDAVE_SOURCE_YOUTUBE_CACHE_ENABLED", true),
		PrefetchWindow:      getEnvDuration("LINKDAVE_SOURCE_PREFETCH_WINDOW", 10*time.Second),
		HTTPCacheLimitBytes: getEnvInt("LINKDAVE_SOURCE_HTTP_CACHE_LIMIT_BYTES", 10*1024*1024),
	}
}

func GetConfig() SourceConfig {
	return config
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvString(key, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}
	return d
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return n
}
