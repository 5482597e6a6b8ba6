package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	AI         AIConfig         `mapstructure:"ai"`
	Images     ImagesConfig     `mapstructure:"images"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Context    ContextConfig    `mapstructure:"context"`
	Media      MediaConfig      `mapstructure:"media"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type BotConfig struct {
	Token         string        `mapstructure:"token"`
	Webhook       WebhookConfig `mapstructure:"webhook"`
	UpdateTimeout int           `mapstructure:"update_timeout"`
	Workers       int           `mapstructure:"workers"`
}

type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Port    int    `mapstructure:"port"`
}

// AIConfig describes the OpenAI-compatible inference endpoint
type AIConfig struct {
	APIKey             string        `mapstructure:"api_key"`
	BaseURL            string        `mapstructure:"base_url"`
	ChatModel          string        `mapstructure:"chat_model"`
	VisionModel        string        `mapstructure:"vision_model"`
	TranscriptionModel string        `mapstructure:"transcription_model"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

type ImagesConfig struct {
	Flux         FluxConfig         `mapstructure:"flux"`
	Pollinations PollinationsConfig `mapstructure:"pollinations"`
}

type FluxConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	URL         string        `mapstructure:"url"`
	FallbackURL string        `mapstructure:"fallback_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type PollinationsConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Styles    []string      `mapstructure:"styles"`
}

type StorageConfig struct {
	Type  string      `mapstructure:"type"`
	File  FileStore   `mapstructure:"file"`
	Redis RedisConfig `mapstructure:"redis"`
}

type FileStore struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

type AnalyticsConfig struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type ContextConfig struct {
	SystemPrompt string `mapstructure:"system_prompt"`
}

type MediaConfig struct {
	TempDir string `mapstructure:"temp_dir"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
}

// Features are the capabilities enabled at startup from the configured credentials.
type Features struct {
	Transport  bool
	Inference  bool
	FluxImages bool
}

// Features reports which credentials are present.
func (c *Config) Features() Features {
	return Features{
		Transport:  strings.TrimSpace(c.Bot.Token) != "",
		Inference:  strings.TrimSpace(c.AI.APIKey) != "",
		FluxImages: strings.TrimSpace(c.Images.Flux.APIKey) != "",
	}
}

const DefaultSystemPrompt = `You are Artovix, an elite AI assistant in 2026.

PERSONALITY:
- Brilliant futurist AI
- Empathetic and supportive
- Creative problem solver
- Multimodal expert
- Ethical and responsible

GUIDELINES:
1. Be helpful, accurate, and concise
2. Use appropriate emojis
3. Admit when you don't know something
4. Consider context from previous messages
5. Think step-by-step for complex problems

RESPONSE FORMAT:
- Use Markdown for readability
- Structure complex answers with bullet points
- Keep responses clear and engaging

Remember: You're talking to a human in 2026!`

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.update_timeout", 30)
	v.SetDefault("bot.workers", 4)
	v.SetDefault("bot.webhook.port", 8443)

	v.SetDefault("ai.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("ai.chat_model", "llama-3.3-70b-versatile")
	v.SetDefault("ai.vision_model", "llama-3.2-11b-vision-preview")
	v.SetDefault("ai.transcription_model", "whisper-large-v3")
	v.SetDefault("ai.timeout", 60*time.Second)

	v.SetDefault("images.flux.url", "https://api-inference.huggingface.co/models/black-forest-labs/FLUX.1-schnell")
	v.SetDefault("images.flux.fallback_url", "https://router.huggingface.co/hf-inference/models/black-forest-labs/FLUX.1-schnell")
	v.SetDefault("images.flux.timeout", 60*time.Second)
	v.SetDefault("images.pollinations.base_url", "https://image.pollinations.ai")
	v.SetDefault("images.pollinations.user_agent", "Mozilla/5.0")
	v.SetDefault("images.pollinations.timeout", 15*time.Second)
	v.SetDefault("images.pollinations.styles", []string{"digital-art", "fantasy-art", "neon-punk", "isometric", "low-poly"})

	v.SetDefault("storage.type", "file")
	v.SetDefault("storage.file.path", "data/artovix_memory.json")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.key", "artovix:memory")

	v.SetDefault("analytics.type", "sqlite")
	v.SetDefault("analytics.path", "data/analytics.db")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.max_size", 1000)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 20)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("context.system_prompt", DefaultSystemPrompt)
	v.SetDefault("media.temp_dir", "temp")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file.path", "logs/artovix.log")
	v.SetDefault("logging.file.max_size", 50)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)

	v.SetDefault("monitoring.metrics.enabled", false)
	v.SetDefault("monitoring.metrics.port", 9090)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.languages", []string{"en"})
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.BindEnv("bot.token", "BOT_TOKEN")
	v.BindEnv("ai.api_key", "GROQ_API_KEY")
	v.BindEnv("images.flux.api_key", "HF_API_KEY")
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.redis.db", "REDIS_DB")
	v.BindEnv("logging.level", "LOG_LEVEL")
	return v
}

// LoadConfig loads configuration from file and environment variables.
// A missing config file is not an error; defaults and the environment apply.
func LoadConfig(configPath string) (*Config, error) {
	v := newViper(configPath)

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Handle Redis address special case
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		redisPort := os.Getenv("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Watch re-reads the config file whenever it changes on disk and hands the
// new configuration to onChange. It is a no-op when the file does not exist.
func Watch(configPath string, onChange func(*Config, error)) {
	if _, err := os.Stat(configPath); err != nil {
		return
	}

	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		onChange(nil, err)
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(unmarshal(v))
	})
	v.WatchConfig()
}

func validateConfig(cfg *Config) error {
	switch cfg.Storage.Type {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	switch cfg.Analytics.Type {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported analytics type: %s", cfg.Analytics.Type)
	}
	if cfg.AI.Timeout <= 0 || cfg.Images.Flux.Timeout <= 0 || cfg.Images.Pollinations.Timeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if cfg.Bot.Webhook.Enabled && cfg.Bot.Webhook.URL == "" {
		return fmt.Errorf("webhook url is required when webhook is enabled")
	}
	if cfg.Bot.Workers < 1 {
		cfg.Bot.Workers = 1
	}
	return nil
}
