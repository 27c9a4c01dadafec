package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Auth        AuthConfig
	Zilliz      ZillizConfig
	SQLite      SQLiteConfig
	Redis       RedisConfig
	LLM         LLMConfig
	Translation TranslationConfig
	Pipeline    PipelineConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	Environment    string
	AllowedOrigins []string
}

// IsProduction reports whether internal error detail must be hidden from callers.
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

type AuthConfig struct {
	JWTSecret string
}

type ZillizConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	CacheTTLSec int
}

type LLMConfig struct {
	Model          string
	APIKey         string
	BaseURL        string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
}

type TranslationConfig struct {
	APIURL     string
	APIKey     string
	TimeoutSec int
}

type PipelineConfig struct {
	WorkingLanguage     string
	ConfidenceThreshold float64
	MinConfidence       float64
	MaxConfidence       float64
	TopK                int
	AdvisoryMessage     string
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/kbassist")

	viper.SetEnvPrefix("KBASSIST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Pipeline.MinConfidence > config.Pipeline.MaxConfidence {
		return nil, fmt.Errorf("invalid confidence band: min %.2f > max %.2f",
			config.Pipeline.MinConfidence, config.Pipeline.MaxConfidence)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 1048576)
	viper.SetDefault("server.environment", "development")
	viper.SetDefault("server.allowedOrigins", []string{"*"})

	viper.SetDefault("auth.jwtSecret", "")

	viper.SetDefault("zilliz.endpoint", "localhost:19530")
	viper.SetDefault("zilliz.collectionName", "knowledge_base")
	viper.SetDefault("zilliz.vectorDim", 1536)

	viper.SetDefault("sqlite.path", "./data/kbassist.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.cacheTTLSec", 3600)

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.maxTokens", 1000)
	viper.SetDefault("llm.timeoutSec", 30)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")

	viper.SetDefault("translation.timeoutSec", 10)

	viper.SetDefault("pipeline.workingLanguage", "en")
	viper.SetDefault("pipeline.confidenceThreshold", 0.70)
	viper.SetDefault("pipeline.minConfidence", 0.5)
	viper.SetDefault("pipeline.maxConfidence", 1.0)
	viper.SetDefault("pipeline.topK", 5)
	viper.SetDefault("pipeline.advisoryMessage", "I'm not confident in providing an answer. Please consult a human expert.")

	viper.SetDefault("ratelimit.requestsPerMinute", 60)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
