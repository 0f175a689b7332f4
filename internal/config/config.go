// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Upload backends accepted by UPLOAD_BACKEND.
const (
	UploadLocal      = "local"
	UploadCloudinary = "cloudinary"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env       string `mapstructure:"APP_ENV"`
	Port      string `mapstructure:"PORT"`
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer and JWTAudience are checked only when set.
	JWTIssuer   string `mapstructure:"JWT_ISSUER"`
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`

	StoreDriver   string `mapstructure:"STORE_DRIVER"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`
	DBHost        string `mapstructure:"DB_HOST"`
	DBPort        string `mapstructure:"DB_PORT"`
	DBUser        string `mapstructure:"DB_USER"`
	DBPassword    string `mapstructure:"DB_PASSWORD"`
	DBName        string `mapstructure:"DB_NAME"`
	DBSSLMode     string `mapstructure:"DB_SSLMODE"`
	SQLitePath    string `mapstructure:"SQLITE_PATH"`

	RedisURL string `mapstructure:"REDIS_URL"`

	AllowedOrigins      string `mapstructure:"ALLOWED_ORIGINS"`
	RateLimitPerMinute  int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	AuthRequiredForFeed bool   `mapstructure:"AUTH_REQUIRED_FOR_FEED"`

	UploadBackend        string `mapstructure:"UPLOAD_BACKEND"`
	UploadFolder         string `mapstructure:"UPLOAD_FOLDER"`
	UploadDir            string `mapstructure:"UPLOAD_DIR"`
	PublicBaseURL        string `mapstructure:"PUBLIC_BASE_URL"`
	UploadTimeoutSeconds int    `mapstructure:"UPLOAD_TIMEOUT_SECONDS"`
	UploadMaxSizeMB      int    `mapstructure:"UPLOAD_MAX_SIZE_MB"`
	CloudinaryURL        string `mapstructure:"CLOUDINARY_URL"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("PORT", "5000")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("JWT_ISSUER", "")
	viper.SetDefault("JWT_AUDIENCE", "")

	viper.SetDefault("STORE_DRIVER", StoreMongo)
	viper.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	viper.SetDefault("MONGO_DATABASE", "mini_social")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "mini_social")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("SQLITE_PATH", "mini_social.db")

	viper.SetDefault("REDIS_URL", "localhost:6379")

	viper.SetDefault("ALLOWED_ORIGINS", "*")
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 100)
	viper.SetDefault("AUTH_REQUIRED_FOR_FEED", false)

	viper.SetDefault("UPLOAD_BACKEND", UploadLocal)
	viper.SetDefault("UPLOAD_FOLDER", "mini-social")
	viper.SetDefault("UPLOAD_DIR", "./uploads")
	viper.SetDefault("PUBLIC_BASE_URL", "")
	viper.SetDefault("UPLOAD_TIMEOUT_SECONDS", 30)
	viper.SetDefault("UPLOAD_MAX_SIZE_MB", 10)
	viper.SetDefault("CLOUDINARY_URL", "")

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.UploadBackend = strings.ToLower(strings.TrimSpace(c.UploadBackend))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
}

// IsProduction reports whether the service runs with production safeguards.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// UploadTimeout is the upper bound on one blob upload.
func (c *Config) UploadTimeout() time.Duration {
	if c.UploadTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.UploadTimeoutSeconds) * time.Second
}

// UploadMaxBytes is the largest accepted image file.
func (c *Config) UploadMaxBytes() int {
	if c.UploadMaxSizeMB <= 0 {
		return 10 * 1024 * 1024
	}
	return c.UploadMaxSizeMB * 1024 * 1024
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	switch c.StoreDriver {
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required when STORE_DRIVER is mongo")
		}
		if c.MongoDatabase == "" {
			return errors.New("MONGO_DATABASE is required when STORE_DRIVER is mongo")
		}
	case StorePostgres:
		if c.DBHost == "" || c.DBName == "" {
			return errors.New("DB_HOST and DB_NAME are required when STORE_DRIVER is postgres")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when STORE_DRIVER is sqlite")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.UploadBackend {
	case UploadLocal:
		if c.UploadDir == "" {
			return errors.New("UPLOAD_DIR is required when UPLOAD_BACKEND is local")
		}
	case UploadCloudinary:
		if c.CloudinaryURL == "" {
			return errors.New("CLOUDINARY_URL is required when UPLOAD_BACKEND is cloudinary")
		}
	default:
		return fmt.Errorf("unknown UPLOAD_BACKEND %q", c.UploadBackend)
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.StoreDriver == StorePostgres && (c.DBPassword == "password" || c.DBPassword == "") {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.StoreDriver == StoreSQLite {
			log.Println("WARNING: STORE_DRIVER is sqlite in production. Use mongo or postgres for multi-instance deployments.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
