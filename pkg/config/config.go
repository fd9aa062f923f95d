package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Document store backends.
const (
	DocumentStoreLocal = "local"
	DocumentStoreS3    = "s3"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	// ExternalTimeout bounds every call to the directory, messaging gateway and document store.
	ExternalTimeout time.Duration
	// DefaultCountryCode is prefixed to local phone numbers during normalisation.
	DefaultCountryCode string
	// SchoolName is printed on gate pass documents and delivery messages.
	SchoolName string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Admin     AdminConfig
	Calendar  CalendarConfig
	Directory DirectoryConfig
	Messaging MessagingConfig
	Documents DocumentsConfig
	Sync      SyncConfig
	Cache     CacheConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AdminConfig holds bcrypt hashes of the operator keys exchanged for admin tokens.
type AdminConfig struct {
	KeyHash        string
	AuditorKeyHash string
}

// CalendarConfig locates the term calendar.
type CalendarConfig struct {
	File     string
	Timezone string
}

// DirectoryConfig configures the student directory client.
type DirectoryConfig struct {
	BaseURL    string
	APIKey     string
	MaxRetries int
	RetryDelay time.Duration
}

// MessagingConfig configures the WhatsApp Cloud API gateway. An empty token selects the log gateway.
type MessagingConfig struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
}

// DocumentsConfig selects and configures the document store.
type DocumentsConfig struct {
	Store           string
	LocalDir        string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	PublicBaseURL   string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3Prefix        string
	VerifyBaseURL   string
}

// SyncConfig governs the profile sync scheduler.
type SyncConfig struct {
	Enabled      bool
	Interval     time.Duration
	PageSize     int
	TimeCeiling  time.Duration
	PageRetries  int
	RetryBackoff time.Duration
	Workers      int
	NATSURL      string
	NATSSubject  string
}

// CacheConfig tunes the profile read-through cache.
type CacheConfig struct {
	ProfileTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.ExternalTimeout = parseDuration(v.GetString("EXTERNAL_TIMEOUT"), 10*time.Second)
	cfg.DefaultCountryCode = v.GetString("DEFAULT_COUNTRY_CODE")
	cfg.SchoolName = v.GetString("SCHOOL_NAME")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Admin = AdminConfig{
		KeyHash:        v.GetString("ADMIN_KEY_HASH"),
		AuditorKeyHash: v.GetString("AUDITOR_KEY_HASH"),
	}

	cfg.Calendar = CalendarConfig{
		File:     v.GetString("CALENDAR_FILE"),
		Timezone: v.GetString("SCHOOL_TIMEZONE"),
	}

	cfg.Directory = DirectoryConfig{
		BaseURL:    v.GetString("DIRECTORY_BASE_URL"),
		APIKey:     v.GetString("DIRECTORY_API_KEY"),
		MaxRetries: v.GetInt("DIRECTORY_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("DIRECTORY_RETRY_DELAY"), 500*time.Millisecond),
	}

	cfg.Messaging = MessagingConfig{
		BaseURL:       v.GetString("WHATSAPP_BASE_URL"),
		Token:         v.GetString("WHATSAPP_TOKEN"),
		PhoneNumberID: v.GetString("WHATSAPP_PHONE_NUMBER_ID"),
	}

	cfg.Documents = DocumentsConfig{
		Store:           strings.ToLower(v.GetString("DOCUMENT_STORE")),
		LocalDir:        v.GetString("DOCUMENTS_LOCAL_DIR"),
		SignedURLSecret: v.GetString("DOCUMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("DOCUMENTS_SIGNED_URL_TTL"), time.Hour),
		PublicBaseURL:   strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		S3Bucket:        v.GetString("S3_BUCKET"),
		S3Region:        v.GetString("S3_REGION"),
		S3Endpoint:      v.GetString("S3_ENDPOINT"),
		S3Prefix:        v.GetString("S3_PREFIX"),
		VerifyBaseURL:   strings.TrimRight(v.GetString("VERIFY_BASE_URL"), "/"),
	}
	if cfg.Documents.VerifyBaseURL == "" {
		cfg.Documents.VerifyBaseURL = cfg.Documents.PublicBaseURL
	}

	cfg.Sync = SyncConfig{
		Enabled:      v.GetBool("SYNC_ENABLED"),
		Interval:     parseDuration(v.GetString("SYNC_INTERVAL"), 24*time.Hour),
		PageSize:     v.GetInt("SYNC_PAGE_SIZE"),
		TimeCeiling:  parseDuration(v.GetString("SYNC_TIME_CEILING"), 12*time.Minute),
		PageRetries:  v.GetInt("SYNC_PAGE_RETRIES"),
		RetryBackoff: parseDuration(v.GetString("SYNC_RETRY_BACKOFF"), time.Second),
		Workers:      v.GetInt("SYNC_WORKERS"),
		NATSURL:      v.GetString("NATS_URL"),
		NATSSubject:  v.GetString("NATS_SYNC_SUBJECT"),
	}

	cfg.Cache = CacheConfig{
		ProfileTTL: parseDuration(v.GetString("PROFILE_CACHE_TTL"), 15*time.Minute),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("EXTERNAL_TIMEOUT", "10s")
	v.SetDefault("DEFAULT_COUNTRY_CODE", "+263")
	v.SetDefault("SCHOOL_NAME", "Shining Smiles Group of Schools")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "gatepass")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "1h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ADMIN_KEY_HASH", "")
	v.SetDefault("AUDITOR_KEY_HASH", "")

	v.SetDefault("CALENDAR_FILE", "")
	v.SetDefault("SCHOOL_TIMEZONE", "Africa/Harare")

	v.SetDefault("DIRECTORY_BASE_URL", "http://localhost:9000/api/")
	v.SetDefault("DIRECTORY_API_KEY", "")
	v.SetDefault("DIRECTORY_MAX_RETRIES", 3)
	v.SetDefault("DIRECTORY_RETRY_DELAY", "500ms")

	v.SetDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com/v19.0")
	v.SetDefault("WHATSAPP_TOKEN", "")
	v.SetDefault("WHATSAPP_PHONE_NUMBER_ID", "")

	v.SetDefault("DOCUMENT_STORE", DocumentStoreLocal)
	v.SetDefault("DOCUMENTS_LOCAL_DIR", "./documents")
	v.SetDefault("DOCUMENTS_SIGNED_URL_SECRET", "dev_documents_secret")
	v.SetDefault("DOCUMENTS_SIGNED_URL_TTL", "1h")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_PREFIX", "gatepasses/")
	v.SetDefault("VERIFY_BASE_URL", "")

	v.SetDefault("SYNC_ENABLED", false)
	v.SetDefault("SYNC_INTERVAL", "24h")
	v.SetDefault("SYNC_PAGE_SIZE", 60)
	v.SetDefault("SYNC_TIME_CEILING", "12m")
	v.SetDefault("SYNC_PAGE_RETRIES", 3)
	v.SetDefault("SYNC_RETRY_BACKOFF", "1s")
	v.SetDefault("SYNC_WORKERS", 1)
	v.SetDefault("NATS_URL", "")
	v.SetDefault("NATS_SYNC_SUBJECT", "gatepass.sync.continue")

	v.SetDefault("PROFILE_CACHE_TTL", "15m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
