package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ListenAddr string
	FFmpegPath string
	UploadDir  string // uploaded audio lives here until its track is removed
	WatchDir   string // optional library folder, empty disables watching

	// 日志配置
	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool

	// 播放列表与分析
	RenameWorkers    int
	CoverSize        int
	CoverGradient    bool
	SortLocale       string
	SortRemapCurrent bool
	AudioOutput      string // speaker or null
	DefaultVolume    float64
	ShuffleSeed      int64 // 0 seeds from the clock
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}
	return fromEnv()
}

func fromEnv() *Config {
	cfg := &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),
		UploadDir:  getEnv("UPLOAD_DIR", filepath.Join(os.TempDir(), "bt1deck-uploads")),
		WatchDir:   getEnv("WATCH_DIR", ""),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 10),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 7),
		LogCompress:   getEnvBool("LOG_COMPRESS", false),

		RenameWorkers:    getEnvInt("RENAME_WORKERS", 1),
		CoverSize:        getEnvInt("COVER_SIZE", 200),
		CoverGradient:    getEnvBool("COVER_GRADIENT", false),
		SortLocale:       getEnv("SORT_LOCALE", "en"),
		SortRemapCurrent: getEnvBool("SORT_REMAP_CURRENT", false),
		AudioOutput:      getEnv("AUDIO_OUTPUT", "speaker"),
		DefaultVolume:    getEnvFloat("DEFAULT_VOLUME", 1.0),
		ShuffleSeed:      getEnvInt64("SHUFFLE_SEED", 0),
	}

	if cfg.RenameWorkers < 1 {
		cfg.RenameWorkers = 1
	}
	if cfg.CoverSize < 16 {
		cfg.CoverSize = 200
	}
	if cfg.DefaultVolume < 0 || cfg.DefaultVolume > 1 {
		cfg.DefaultVolume = 1.0
	}
	return cfg
}
