package config

import (
	"strings"
	"time"
)

// ClientConfig holds configuration for the orbitsafe client process
type ClientConfig struct {
	API      APIConfig
	Detector DetectorConfig
	Cache    CacheConfig
	Settings SettingsConfig
	Logging  LoggingConfig
	Auth     AuthConfig
	Email    EmailConfig
}

// APIConfig points at the record backend
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DetectorConfig selects the inference provider
type DetectorConfig struct {
	Kind       string // "http" or "rekognition"
	PredictURL string
	AWSRegion  string
	Timeout    time.Duration
}

// CacheConfig holds last-known-good snapshot cache configuration
type CacheConfig struct {
	Backend   string // "memory" or "redis"
	TTL       time.Duration
	RedisAddr string
}

// SettingsConfig locates the local settings copy
type SettingsConfig struct {
	DBPath string
}

// EmailConfig holds EmailJS credentials
type EmailConfig struct {
	Endpoint   string
	ServiceID  string
	TemplateID string
	PublicKey  string
}

// LoadClient builds client configuration from the environment. Command-line
// flags are applied on top by the CLI.
func LoadClient() *ClientConfig {
	return &ClientConfig{
		API: APIConfig{
			BaseURL: strings.TrimRight(getEnvOrDefault("ORBITSAFE_API_URL", "http://localhost:8080"), "/"),
			Timeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		},
		Detector: DetectorConfig{
			Kind:       strings.ToLower(getEnvOrDefault("DETECTOR", "http")),
			PredictURL: strings.TrimRight(getEnvOrDefault("ORBITSAFE_PREDICT_URL", "http://localhost:8000"), "/"),
			AWSRegion:  getEnvOrDefault("AWS_REGION", ""),
			Timeout:    getEnvDuration("PREDICT_TIMEOUT", 60*time.Second),
		},
		Cache: CacheConfig{
			Backend:   strings.ToLower(getEnvOrDefault("CACHE_BACKEND", "memory")),
			TTL:       getEnvDuration("CACHE_TTL", 24*time.Hour),
			RedisAddr: getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		},
		Settings: SettingsConfig{
			DBPath: getEnvOrDefault("SETTINGS_DB", "orbitsafe-settings.db"),
		},
		Logging: LoggingConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "warn"),
		},
		Auth: loadAuthConfig(),
		Email: EmailConfig{
			Endpoint:   getEnvOrDefault("EMAILJS_ENDPOINT", "https://api.emailjs.com"),
			ServiceID:  getEnvOrDefault("EMAILJS_SERVICE_ID", ""),
			TemplateID: getEnvOrDefault("EMAILJS_TEMPLATE_ID", ""),
			PublicKey:  getEnvOrDefault("EMAILJS_PUBLIC_KEY", ""),
		},
	}
}
