package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
)

type HTTPConfig struct {
	Host         string
	Port         int `validate:"min=1,max=65535"`
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64 `validate:"gt=0"`
}

type PostgresConfig struct {
	DSN             string `validate:"required"`
	MaxOpen         int    `validate:"gt=0"`
	MaxIdle         int    `validate:"gte=0"`
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration `validate:"gt=0"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type StorageConfig struct {
	Driver        string `validate:"oneof=minio s3 gcs"`
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string `validate:"required"`
	UseSSL        bool
	Region        string
	ProjectID     string
	PublicBaseURL string
	CacheControl  string
	Timeout       time.Duration `validate:"gt=0"`
}

type UploadConfig struct {
	MinBytes          int64    `validate:"gt=0"`
	MaxBytes          int64    `validate:"gtfield=MinBytes"`
	MinDimension      int      `validate:"gt=0"`
	MaxDimension      int      `validate:"gtfield=MinDimension"`
	AllowedMIMETypes  []string `validate:"min=1"`
	AllowedExtensions []string `validate:"min=1"`
	JPEGQuality       int      `validate:"min=1,max=100"`
}

type ModerationConfig struct {
	Provider        string `validate:"oneof=vision none"`
	Endpoint        string
	APIKey          string
	Model           string
	Timeout         time.Duration `validate:"gt=0"`
	ThresholdBlock  float64       `validate:"gt=0,lte=1"`
	ThresholdReview float64       `validate:"gt=0,ltefield=ThresholdBlock"`
	FailurePolicy   string        `validate:"omitempty,oneof=open closed"`
	ZeroTolerance   []string
}

type SecurityConfig struct {
	JWTAccessSecret string
}

type JobsConfig struct {
	HealthSpec string
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string `validate:"required"`
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Upload           UploadConfig
	Moderation       ModerationConfig
	Security         SecurityConfig
	Jobs             JobsConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

// ProductionGrade reports whether the deployment must favour content safety
// over availability.
func (c *AppConfig) ProductionGrade() bool {
	switch strings.ToLower(c.Environment) {
	case EnvProduction, EnvStaging:
		return true
	}
	return false
}

// ConfigurationError is a fatal startup problem: missing credentials,
// invalid settings or unreachable dependencies.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func Load() (*AppConfig, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("MEDIAINGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, &ConfigurationError{Err: fmt.Errorf("load config file: %w", err)}
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("unmarshal config: %w", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and the cross-field rules that keep the
// moderation policy and credentials consistent with the environment.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ConfigurationError{Field: verrs[0].Namespace(), Err: fmt.Errorf("failed %q rule", verrs[0].Tag())}
		}
		return &ConfigurationError{Err: err}
	}

	if c.ProductionGrade() {
		if c.Moderation.FailurePolicy == "open" {
			return &ConfigurationError{Field: "moderation.failurepolicy", Err: errors.New("fail-open is not allowed in " + c.Environment)}
		}
		if c.Moderation.Provider == "none" {
			return &ConfigurationError{Field: "moderation.provider", Err: errors.New("moderation cannot be disabled in " + c.Environment)}
		}
		if c.Security.JWTAccessSecret == "" {
			return &ConfigurationError{Field: "security.jwtaccesssecret", Err: errors.New("required")}
		}
	}

	if c.Moderation.Provider == "vision" {
		if c.Moderation.Endpoint == "" {
			return &ConfigurationError{Field: "moderation.endpoint", Err: errors.New("required for vision provider")}
		}
		if c.Moderation.APIKey == "" {
			return &ConfigurationError{Field: "moderation.apikey", Err: errors.New("required for vision provider")}
		}
	}

	if c.Storage.Driver == "minio" && (c.Storage.Endpoint == "" || c.Storage.AccessKey == "" || c.Storage.SecretKey == "") {
		return &ConfigurationError{Field: "storage", Err: errors.New("minio driver requires endpoint and credentials")}
	}
	if c.Storage.Driver == "gcs" && c.Storage.ProjectID == "" {
		return &ConfigurationError{Field: "storage.projectid", Err: errors.New("required for gcs driver")}
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvDevelopment)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "30s")
	v.SetDefault("http.writetimeout", "60s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.maxbodybytes", 10<<20)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.querytimeout", "5s")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "media:ingest")

	v.SetDefault("storage.driver", "minio")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucket", "mediaingest-photos")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.projectid", "")
	v.SetDefault("storage.publicbaseurl", "")
	v.SetDefault("storage.cachecontrol", "public, max-age=31536000, immutable")
	v.SetDefault("storage.timeout", "20s")

	v.SetDefault("upload.minbytes", 100)
	v.SetDefault("upload.maxbytes", 5<<20)
	v.SetDefault("upload.mindimension", 10)
	v.SetDefault("upload.maxdimension", 8000)
	v.SetDefault("upload.allowedmimetypes", []string{"image/jpeg", "image/png", "image/gif", "image/webp"})
	v.SetDefault("upload.allowedextensions", []string{".jpg", ".jpeg", ".png", ".gif", ".webp"})
	v.SetDefault("upload.jpegquality", 85)

	v.SetDefault("moderation.provider", "none")
	v.SetDefault("moderation.endpoint", "")
	v.SetDefault("moderation.apikey", "")
	v.SetDefault("moderation.model", "gpt-4o-mini")
	v.SetDefault("moderation.timeout", "15s")
	v.SetDefault("moderation.thresholdblock", 0.92)
	v.SetDefault("moderation.thresholdreview", 0.75)
	v.SetDefault("moderation.failurepolicy", "")
	v.SetDefault("moderation.zerotolerance", []string{"csam"})

	v.SetDefault("security.jwtaccesssecret", "")

	v.SetDefault("jobs.healthspec", "@every 30s")

	v.SetDefault("logging.level", "")
	v.SetDefault("allowcorsorigins", []string{})
}
