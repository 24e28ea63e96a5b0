package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	WhatsApp WhatsAppConfig
	Backend  BackendConfig
	AI       AIConfig
	GigaChat GigaChatConfig
	Gemini   GeminiConfig
	Session  SessionConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Audit    AuditConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	RateLimitPerSecond int
	RateLimitBurst     int
}

// WhatsAppConfig holds the Meta Cloud API credentials.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	AppSecret     string
	APIVersion    string
	BaseURL       string
}

type BackendConfig struct {
	BaseURL     string
	SecretToken string
	AuthMode    string // "static" or "jwt"
	TokenTTL    time.Duration
	Timeout     time.Duration
}

type AIConfig struct {
	Provider          string // "gemini" or "gigachat"
	AuthorizedNumbers []string
	EntitleAll        bool
	DefaultCurrency   string
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	InsecureSkipVerify bool
	Model              string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type SessionConfig struct {
	ProfileTTL           time.Duration
	InactivityTimeout    time.Duration
	MaxSelectionAttempts int
	MessageTimeout       time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// StorageConfig enables media archiving when MediaBucket is set.
type StorageConfig struct {
	MediaBucket string
}

// AuditConfig enables the extraction audit sink when ProjectID is set.
type AuditConfig struct {
	ProjectID string
	Dataset   string
	Table     string
}

func Load() (*Config, error) {
	// Try to load .env file from current directory or project root
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout := getEnvInt("SERVER_READ_TIMEOUT", 30)
	writeTimeout := getEnvInt("SERVER_WRITE_TIMEOUT", 30)
	backendTimeout := getEnvInt("API_TIMEOUT_SECONDS", 15)
	tokenTTL := getEnvInt("API_TOKEN_TTL_MINUTES", 5)
	profileTTL := getEnvInt("PROFILE_TTL_MINUTES", 5)
	inactivity := getEnvInt("SESSION_INACTIVITY_MINUTES", 60)
	messageTimeout := getEnvInt("MESSAGE_TIMEOUT_SECONDS", 90)

	return &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "3008"),
			ReadTimeout:        time.Duration(readTimeout) * time.Second,
			WriteTimeout:       time.Duration(writeTimeout) * time.Second,
			RateLimitPerSecond: getEnvInt("RATE_LIMIT_PER_SECOND", 10),
			RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 30),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   getEnv("META_ACCESS_TOKEN", ""),
			PhoneNumberID: getEnv("META_PHONE_NUMBER_ID", ""),
			VerifyToken:   getEnv("META_VERIFY_TOKEN", ""),
			AppSecret:     getEnv("META_APP_SECRET", ""),
			APIVersion:    getEnv("META_API_VERSION", "v22.0"),
			BaseURL:       getEnv("META_BASE_URL", "https://graph.facebook.com"),
		},
		Backend: BackendConfig{
			BaseURL:     strings.TrimRight(getEnv("API_URL", "http://localhost:4000/api"), "/"),
			SecretToken: getEnv("API_SECRET_TOKEN", ""),
			AuthMode:    getEnv("API_AUTH_MODE", "static"),
			TokenTTL:    time.Duration(tokenTTL) * time.Minute,
			Timeout:     time.Duration(backendTimeout) * time.Second,
		},
		AI: AIConfig{
			Provider:          getEnv("AI_PROVIDER", "gemini"),
			AuthorizedNumbers: splitList(getEnv("AUTHORIZED_NUMBERS", "")),
			EntitleAll:        getEnvBool("AI_ENTITLE_ALL", false),
			DefaultCurrency:   getEnv("DEFAULT_CURRENCY", "ARS"),
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			InsecureSkipVerify: getEnvBool("GIGACHAT_INSECURE_SKIP_VERIFY", true),
			Model:              getEnv("GIGACHAT_MODEL", "GigaChat"),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		Session: SessionConfig{
			ProfileTTL:           time.Duration(profileTTL) * time.Minute,
			InactivityTimeout:    time.Duration(inactivity) * time.Minute,
			MaxSelectionAttempts: getEnvInt("MAX_SELECTION_ATTEMPTS", 3),
			MessageTimeout:       time.Duration(messageTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			Enabled:  getEnvBool("DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "pagado"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Storage: StorageConfig{
			MediaBucket: getEnv("GCS_MEDIA_BUCKET", ""),
		},
		Audit: AuditConfig{
			ProjectID: getEnv("BQ_PROJECT_ID", ""),
			Dataset:   getEnv("BQ_DATASET", "pagado"),
			Table:     getEnv("BQ_AUDIT_TABLE", "extractions"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// splitList parses a comma separated list, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
