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
	LogLevel      string
	DatabaseURL   string
	VectorBackend string

	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingCacheTTL   time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	HFAPIToken string
	HFModel    string
	HFBaseURL  string
	HFTimeout  time.Duration

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	GeminiAPIKey   string
	GeminiModel    string
	BedrockModelID string

	LLMTimeout         time.Duration
	ContextTokenBudget int

	UserJWTSecret  string
	AdminJWTSecret string
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	EscalationQueueURL    string
	EscalationNotifyEmail string

	// Email delivery for escalation notifications
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string

	EvalReportsTable string
	IngestBucket     string
	IngestPrefix     string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		VectorBackend: strings.ToLower(strings.TrimSpace(getEnv("VECTOR_BACKEND", "pgvector"))),

		EmbeddingProvider:   strings.ToLower(strings.TrimSpace(getEnv("EMBEDDING_PROVIDER", "huggingface"))),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 384),
		EmbeddingCacheTTL:   getEnvAsDuration("EMBEDDING_CACHE_TTL", 24*time.Hour),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		HFAPIToken: getEnv("HF_API_TOKEN", ""),
		HFModel:    getEnv("HF_MODEL", "Qwen/Qwen2.5-7B-Instruct"),
		HFBaseURL:  getEnv("HF_BASE_URL", "https://router.huggingface.co/v1"),
		HFTimeout:  getEnvAsDuration("HF_TIMEOUT", 25*time.Second),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),

		LLMTimeout:         getEnvAsDuration("LLM_TIMEOUT", 25*time.Second),
		ContextTokenBudget: getEnvAsInt("CONTEXT_TOKEN_BUDGET", 1500),

		UserJWTSecret:  getEnv("USER_JWT_SECRET", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 10),
		CORSOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		EscalationQueueURL:    getEnv("ESCALATION_QUEUE_URL", ""),
		EscalationNotifyEmail: getEnv("ESCALATION_NOTIFY_EMAIL", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "AI Medibot"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "AI Medibot"),

		EvalReportsTable: getEnv("EVAL_REPORTS_TABLE", ""),
		IngestBucket:     getEnv("INGEST_BUCKET", ""),
		IngestPrefix:     getEnv("INGEST_PREFIX", ""),
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
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
