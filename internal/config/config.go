package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"listenlab"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"listenlab"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`

	AudioDir string `env:"AUDIO_DIR" envDefault:"./audio"`
	WatchDir string `env:"WATCH_DIR"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" envSeparator:","`
	MaxUploadMB  int64         `env:"MAX_UPLOAD_MB" envDefault:"100"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// Speech-to-text
	STTProvider      string        `env:"STT_PROVIDER" envDefault:"whisper"`
	WhisperURL       string        `env:"WHISPER_URL" envDefault:"http://localhost:8000/v1/audio/transcriptions"`
	WhisperModel     string        `env:"WHISPER_MODEL" envDefault:"base"`
	WhisperTimeout   time.Duration `env:"WHISPER_TIMEOUT" envDefault:"5m"`
	ElevenLabsAPIKey string        `env:"ELEVENLABS_API_KEY"`
	ElevenLabsModel  string        `env:"ELEVENLABS_MODEL" envDefault:"scribe_v1"`
	DeepInfraAPIKey  string        `env:"DEEPINFRA_API_KEY"`
	DeepInfraModel   string        `env:"DEEPINFRA_MODEL" envDefault:"openai/whisper-large-v3-turbo"`
	DefaultLanguage  string        `env:"DEFAULT_LANGUAGE" envDefault:"en"`

	// Audio source
	FFmpegPath   string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	DefaultSpeed float64       `env:"DEFAULT_SPEED" envDefault:"0.85"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"10m"`

	// Lessons
	LessonWorkers   int           `env:"LESSON_WORKERS" envDefault:"2"`
	LessonQueueSize int           `env:"LESSON_QUEUE_SIZE" envDefault:"32"`
	LessonTTL       time.Duration `env:"LESSON_TTL" envDefault:"2h"`

	S3 S3Config `envPrefix:"S3_"`
}

// S3Config configures the optional S3 audio backend.
type S3Config struct {
	Bucket         string        `env:"BUCKET"`
	Endpoint       string        `env:"ENDPOINT"`
	Region         string        `env:"REGION" envDefault:"us-east-1"`
	AccessKey      string        `env:"ACCESS_KEY"`
	SecretKey      string        `env:"SECRET_KEY"`
	Prefix         string        `env:"PREFIX"`
	PresignExpiry  time.Duration `env:"PRESIGN_EXPIRY" envDefault:"1h"`
	LocalCache     bool          `env:"LOCAL_CACHE" envDefault:"true"`
	CacheRetention time.Duration `env:"CACHE_RETENTION" envDefault:"24h"`
}

// Enabled reports whether an S3 bucket is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	AudioDir    string
	WatchDir    string
	WhisperURL  string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.AudioDir != "" {
		cfg.AudioDir = overrides.AudioDir
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}
	if overrides.WhisperURL != "" {
		cfg.WhisperURL = overrides.WhisperURL
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
