package infra

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	JWTSecret   string `env:"JWT_SECRET"`
	JWTIssuer   string `env:"JWT_ISSUER"`
	GeoIPDBPath string `env:"GEOIP_DB_PATH"`
	// DefaultLocale applies when neither headers nor GeoIP pick a language.
	DefaultLocale string `env:"DEFAULT_LOCALE" envDefault:"zh"`

	RedisURL    string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	SDConfigKey string        `env:"SD_CONFIG_KEY" envDefault:"SD_CONFIG"`
	SDConfigTTL time.Duration `env:"SD_CONFIG_TTL" envDefault:"30s"`

	SDRequestTimeout    time.Duration `env:"SD_REQUEST_TIMEOUT" envDefault:"180s"`
	RemoteFetchTimeout  time.Duration `env:"REMOTE_FETCH_TIMEOUT" envDefault:"15s"`
	QRDecodeAPIURL      string        `env:"QR_DECODE_API_URL"`
	QRDecodeAPIToken    string        `env:"QR_DECODE_API_TOKEN"`
	QRToolURL           string        `env:"QR_TOOL_URL"`
	GalleryListURL      string        `env:"GALLERY_LIST_URL"`
	GalleryDetailURL    string        `env:"GALLERY_DETAIL_URL"`
	GalleryMaxPage      int           `env:"GALLERY_MAX_PAGE" envDefault:"10"`
	GalleryCollectionID string        `env:"GALLERY_CID" envDefault:"1697521901173uvornxhs"`
	FontPath            string        `env:"FONT_PATH"`

	StorageBackend         string `env:"STORAGE_BACKEND" envDefault:"local"`
	StorageCategory        string `env:"STORAGE_CATEGORY" envDefault:"painting"`
	StorageTransientDir    string `env:"STORAGE_TRANSIENT_DIR" envDefault:"./media"`
	StorageDeleteTransient bool   `env:"STORAGE_DELETE_TRANSIENT" envDefault:"true"`
	StoragePath            string `env:"STORAGE_PATH" envDefault:"./storage"`
	StorageBaseURL         string `env:"STORAGE_BASE_URL"`
	S3Endpoint             string `env:"S3_ENDPOINT"`
	S3PublicEndpoint       string `env:"S3_PUBLIC_ENDPOINT"`
	S3Region               string `env:"S3_REGION" envDefault:"us-west-2"`
	S3Bucket               string `env:"S3_BUCKET"`
	S3AccessKeyID          string `env:"S3_ACCESS_KEY_ID"`
	S3SecretKey            string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle         bool   `env:"S3_USE_PATH_STYLE" envDefault:"true"`

	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	HTTPReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"300s"`
	HTTPIdleTimeout    time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	RateLimitPerMin    int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"10"`
	MaxUploadBytes     int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	DBTimeout          time.Duration `env:"DB_TIMEOUT" envDefault:"10s"`
	BuildTimeout       time.Duration `env:"BUILD_TIMEOUT" envDefault:"60s"`
	UploadTimeout      time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"60s"`
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	switch cfg.StorageBackend {
	case "local", "s3":
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	if cfg.StorageBaseURL == "" {
		cfg.StorageBaseURL = "http://localhost:" + cfg.Port + "/static"
	}
	if cfg.GalleryMaxPage <= 0 {
		cfg.GalleryMaxPage = 1
	}

	return cfg, nil
}
