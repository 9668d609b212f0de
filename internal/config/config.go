package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// EnvConfigFilePath points to an optional YAML file loaded before env overrides.
const EnvConfigFilePath = "CONFIG_FILE_PATH"

type Config struct {
	App struct {
		ENV string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		Component string `yaml:"component"`
		Source    bool   `yaml:"source"`

		// File enables a rotating log file next to stdout.
		File struct {
			Path       string `yaml:"path"`
			MaxSizeMB  int    `yaml:"max_size_mb"`
			MaxAgeDays int    `yaml:"max_age_days"`
			MaxBackups int    `yaml:"max_backups"`
			Compress   bool   `yaml:"compress"`
		} `yaml:"file"`
	} `yaml:"log"`

	DB struct {
		Driver     string `yaml:"driver"`
		DSN        string `yaml:"dsn"`
		Host       string `yaml:"host"`
		Port       string `yaml:"port"`
		User       string `yaml:"user"`
		Password   string `yaml:"password"`
		Name       string `yaml:"name"`
		LogQueries bool   `yaml:"log_queries"`
	} `yaml:"db"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Disabled bool   `yaml:"disabled"`
	} `yaml:"redis"`

	GRPC struct {
		Host string `yaml:"host"`
		Port string `yaml:"port"`
	} `yaml:"grpc"`

	Matching struct {
		DailyLikeLimit   int           `yaml:"daily_like_limit"`
		LikeWindow       time.Duration `yaml:"like_window"`
		AllowedGenders   []string      `yaml:"allowed_genders"`
		ListCacheTTL     time.Duration `yaml:"list_cache_ttl"`
		AvatarURLPattern string        `yaml:"avatar_url_pattern"`
		MaxAvatarBytes   int           `yaml:"max_avatar_bytes"`
	} `yaml:"matching"`

	Geocoder struct {
		BaseURL   string        `yaml:"base_url"`
		UserAgent string        `yaml:"user_agent"`
		Timeout   time.Duration `yaml:"timeout"`
		CacheTTL  time.Duration `yaml:"cache_ttl"`
		Disabled  bool          `yaml:"disabled"`
	} `yaml:"geocoder"`

	Password struct {
		Algorithm         string `yaml:"algorithm"`
		Argon2Memory      uint32 `yaml:"argon2_memory"`
		Argon2Iterations  uint32 `yaml:"argon2_iterations"`
		Argon2Parallelism uint8  `yaml:"argon2_parallelism"`
		BcryptCost        int    `yaml:"bcrypt_cost"`
	} `yaml:"password"`

	Avatar struct {
		WatermarkPath string `yaml:"watermark_path"`
	} `yaml:"avatar"`
}

// New builds the config and panics if the optional config file is unreadable.
func New() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load resolves configuration in three layers: defaults, the YAML file named by
// CONFIG_FILE_PATH (if any), then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv(EnvConfigFilePath)); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.ENV = "production"

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.Component = "grpc_server"
	cfg.Log.File.MaxSizeMB = 100
	cfg.Log.File.MaxAgeDays = 28
	cfg.Log.File.MaxBackups = 3

	cfg.DB.Driver = "mysql"
	cfg.DB.Host = "localhost"
	cfg.DB.Port = "3306"
	cfg.DB.User = "root"
	cfg.DB.Password = "root"
	cfg.DB.Name = "matchmaker"

	cfg.Redis.Addr = "localhost:6379"

	cfg.GRPC.Host = "127.0.0.1"
	cfg.GRPC.Port = "50051"

	cfg.Matching.DailyLikeLimit = 10
	cfg.Matching.LikeWindow = 24 * time.Hour
	cfg.Matching.AllowedGenders = []string{"male", "female"}
	cfg.Matching.ListCacheTTL = 30 * time.Second
	cfg.Matching.AvatarURLPattern = "http://127.0.0.1:8000/api/clients/avatar/%d"
	cfg.Matching.MaxAvatarBytes = 3 << 20

	cfg.Geocoder.BaseURL = "https://nominatim.openstreetmap.org/search"
	cfg.Geocoder.UserAgent = "matchmaker/1.0"
	cfg.Geocoder.Timeout = 5 * time.Second
	cfg.Geocoder.CacheTTL = 24 * time.Hour

	cfg.Password.Algorithm = "argon2id"
	cfg.Password.Argon2Memory = 64 * 1024
	cfg.Password.Argon2Iterations = 3
	cfg.Password.Argon2Parallelism = 2
	cfg.Password.BcryptCost = 10
	return cfg
}

func applyEnv(cfg *Config) error {
	var err error

	cfg.App.ENV = getEnvDefault("APP_ENV", cfg.App.ENV)

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", cfg.Log.Component)
	cfg.Log.Source = getEnvBool("LOG_SOURCE", cfg.Log.Source)
	cfg.Log.File.Path = getEnvDefault("LOG_FILE", cfg.Log.File.Path)
	cfg.Log.File.Compress = getEnvBool("LOG_FILE_COMPRESS", cfg.Log.File.Compress)

	// Database
	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", cfg.DB.Driver))
	cfg.DB.Host = getEnvDefault("DB_HOST", cfg.DB.Host)
	cfg.DB.Port = getEnvDefault("DB_PORT", cfg.DB.Port)
	cfg.DB.User = getEnvDefault("DB_USER", cfg.DB.User)
	cfg.DB.Password = getEnvDefault("DB_PASSWORD", cfg.DB.Password)
	cfg.DB.Name = getEnvDefault("DB_NAME", cfg.DB.Name)
	cfg.DB.LogQueries = getEnvBool("DB_LOG_QUERIES", cfg.DB.LogQueries)
	cfg.DB.DSN = getEnvDefault("DATABASE_DSN", cfg.DB.DSN)
	if cfg.DB.DSN == "" {
		cfg.DB.DSN = buildDSN(cfg)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.Disabled = getEnvBool("REDIS_DISABLED", cfg.Redis.Disabled)
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return err
	}

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", cfg.GRPC.Host)
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", cfg.GRPC.Port)

	// Matching
	if cfg.Matching.DailyLikeLimit, err = getEnvInt("MAX_LIKES_PER_DAY", cfg.Matching.DailyLikeLimit); err != nil {
		return err
	}
	if cfg.Matching.LikeWindow, err = getEnvDuration("LIKE_WINDOW", cfg.Matching.LikeWindow); err != nil {
		return err
	}
	if cfg.Matching.DailyLikeLimit <= 0 {
		return fmt.Errorf("MAX_LIKES_PER_DAY must be positive, got %d", cfg.Matching.DailyLikeLimit)
	}
	if cfg.Matching.LikeWindow <= 0 {
		return fmt.Errorf("LIKE_WINDOW must be positive, got %s", cfg.Matching.LikeWindow)
	}
	if cfg.Matching.ListCacheTTL, err = getEnvDuration("LIST_CACHE_TTL", cfg.Matching.ListCacheTTL); err != nil {
		return err
	}
	if cfg.Matching.MaxAvatarBytes, err = getEnvInt("MAX_AVATAR_BYTES", cfg.Matching.MaxAvatarBytes); err != nil {
		return err
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_GENDERS")); v != "" {
		cfg.Matching.AllowedGenders = splitList(v)
	}
	cfg.Matching.AvatarURLPattern = getEnvDefault("AVATAR_URL_PATTERN", cfg.Matching.AvatarURLPattern)

	// Geocoder
	cfg.Geocoder.BaseURL = getEnvDefault("GEOCODER_URL", cfg.Geocoder.BaseURL)
	cfg.Geocoder.UserAgent = getEnvDefault("GEOCODER_USER_AGENT", cfg.Geocoder.UserAgent)
	cfg.Geocoder.Disabled = getEnvBool("GEOCODER_DISABLED", cfg.Geocoder.Disabled)
	if cfg.Geocoder.Timeout, err = getEnvDuration("GEOCODER_TIMEOUT", cfg.Geocoder.Timeout); err != nil {
		return err
	}
	if cfg.Geocoder.CacheTTL, err = getEnvDuration("GEOCODER_CACHE_TTL", cfg.Geocoder.CacheTTL); err != nil {
		return err
	}

	// Password hashing
	cfg.Password.Algorithm = strings.ToLower(getEnvDefault("PASSWORD_ALGORITHM", cfg.Password.Algorithm))
	if cfg.Password.BcryptCost, err = getEnvInt("BCRYPT_COST", cfg.Password.BcryptCost); err != nil {
		return err
	}

	cfg.Avatar.WatermarkPath = getEnvDefault("WATERMARK_PATH", cfg.Avatar.WatermarkPath)
	return nil
}

func buildDSN(cfg *Config) string {
	switch cfg.DB.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name,
		)
	case "sqlite":
		return cfg.DB.Name + ".db"
	default:
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvBool(k string, def bool) bool {
	v, ok := os.LookupEnv(k)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return isTruthy(v)
}

func getEnvInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %q", k, v)
	}
	return n, nil
}

func getEnvDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid time duration for %s '%s' : %s", k, v, err.Error())
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
