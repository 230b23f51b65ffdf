package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// NLU service
	NLUBaseURL          string
	NLUTimeout          time.Duration
	ConfidenceThreshold float64

	// Completion service (LLM fallback generator)
	CompletionBaseURL     string
	CompletionAPIKey      string
	CompletionModel       string
	CompletionTimeout     time.Duration
	CompletionMaxTokens   int
	CompletionTemperature float64
	FallbackProvider      string // "bedrock" or "gemini", secondary LLM provider
	BedrockModelID        string
	GeminiAPIKey          string
	GeminiModelID         string

	// Intent-action mapping
	IntentMappingPath string
	ActionBaseURL     string
	ActionTimeout     time.Duration

	// Conversation context
	ContextTTL        time.Duration
	ContextMaxHistory int
	DefaultLanguage   string

	// Turn logging
	UseMemoryQueue   bool
	TurnLogQueueURL  string
	TurnLogWorkers   int
	LogRetentionDays int

	// Training pipeline
	DefaultModelVersion string
	TrainingBaseURL     string
	TrainingTimeout     time.Duration
	TrainingCorpusS3    string
	TrainingJobsTable   string
	MinNewDataPoints    int
	AccuracyQualityGate float64
	ABInitialSplit      float64

	// Channels
	SMSGatewayAPIKey        string
	SMSGatewayWebhookSecret string
	SMSGatewayFromNumber    string
	BusinessChatAccessToken string
	BusinessChatVerifyToken string
	BusinessChatAppSecret   string
	BotPlatformToken        string
	BotPlatformWebhookKey   string

	// Admin surface
	AdminJWTSecret      string
	CORSAllowedOrigins  []string
	PublicRatePerSecond float64
	PublicRateBurst     int

	// Operator notifications
	OperatorEmail     string
	NotifyFromEmail   string
	NotifyFromName    string
	SendGridAPIKey    string
	SESConfigurationSet string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		NLUBaseURL:          getEnv("NLU_BASE_URL", "http://localhost:5005"),
		NLUTimeout:          getEnvAsDuration("NLU_TIMEOUT", 5*time.Second),
		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.7),

		CompletionBaseURL:     getEnv("COMPLETION_BASE_URL", ""),
		CompletionAPIKey:      getEnv("COMPLETION_API_KEY", ""),
		CompletionModel:       getEnv("COMPLETION_MODEL", "gpt-4o-mini"),
		CompletionTimeout:     getEnvAsDuration("COMPLETION_TIMEOUT", 15*time.Second),
		CompletionMaxTokens:   getEnvAsInt("COMPLETION_MAX_TOKENS", 300),
		CompletionTemperature: getEnvAsFloat("COMPLETION_TEMPERATURE", 0.7),
		FallbackProvider:      strings.ToLower(strings.TrimSpace(getEnv("FALLBACK_PROVIDER", ""))),
		BedrockModelID:        getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:         getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		IntentMappingPath: getEnv("INTENT_MAPPING_PATH", "config/intent_mappings.json"),
		ActionBaseURL:     getEnv("ACTION_BASE_URL", ""),
		ActionTimeout:     getEnvAsDuration("ACTION_TIMEOUT", 10*time.Second),

		ContextTTL:        getEnvAsDuration("CONTEXT_TTL", 30*time.Minute),
		ContextMaxHistory: getEnvAsInt("CONTEXT_MAX_HISTORY", 10),
		DefaultLanguage:   getEnv("DEFAULT_LANGUAGE", "es"),

		UseMemoryQueue:   getEnvAsBool("USE_MEMORY_QUEUE", false),
		TurnLogQueueURL:  getEnv("TURN_LOG_QUEUE_URL", ""),
		TurnLogWorkers:   getEnvAsInt("TURN_LOG_WORKERS", 2),
		LogRetentionDays: getEnvAsInt("LOG_RETENTION_DAYS", 180),

		DefaultModelVersion: getEnv("DEFAULT_MODEL_VERSION", "baseline"),
		TrainingBaseURL:     getEnv("TRAINING_BASE_URL", ""),
		TrainingTimeout:     getEnvAsDuration("TRAINING_TIMEOUT", 10*time.Minute),
		TrainingCorpusS3:    getEnv("TRAINING_CORPUS_BUCKET", ""),
		TrainingJobsTable:   getEnv("TRAINING_JOBS_TABLE", "retraining_jobs"),
		MinNewDataPoints:    getEnvAsInt("MIN_NEW_DATA_POINTS", 50),
		AccuracyQualityGate: getEnvAsFloat("ACCURACY_QUALITY_GATE", 0.8),
		ABInitialSplit:      getEnvAsFloat("AB_INITIAL_SPLIT", 0.1),

		SMSGatewayAPIKey:        getEnv("SMS_GATEWAY_API_KEY", ""),
		SMSGatewayWebhookSecret: getEnv("SMS_GATEWAY_WEBHOOK_SECRET", ""),
		SMSGatewayFromNumber:    getEnv("SMS_GATEWAY_FROM_NUMBER", ""),
		BusinessChatAccessToken: getEnv("BUSINESS_CHAT_ACCESS_TOKEN", ""),
		BusinessChatVerifyToken: getEnv("BUSINESS_CHAT_VERIFY_TOKEN", ""),
		BusinessChatAppSecret:   getEnv("BUSINESS_CHAT_APP_SECRET", ""),
		BotPlatformToken:        getEnv("BOT_PLATFORM_TOKEN", ""),
		BotPlatformWebhookKey:   getEnv("BOT_PLATFORM_WEBHOOK_KEY", ""),

		AdminJWTSecret:      getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", nil),
		PublicRatePerSecond: getEnvAsFloat("PUBLIC_RATE_PER_SECOND", 20),
		PublicRateBurst:     getEnvAsInt("PUBLIC_RATE_BURST", 40),

		OperatorEmail:       getEnv("OPERATOR_EMAIL", ""),
		NotifyFromEmail:     getEnv("NOTIFY_FROM_EMAIL", ""),
		NotifyFromName:      getEnv("NOTIFY_FROM_NAME", "Bookline AI"),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
