package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the notification service.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	HTTP   HTTPConfig   `yaml:"http"`
	Engine EngineConfig `yaml:"engine"`
	Audio  AudioConfig  `yaml:"audio"`
	Kafka  KafkaConfig  `yaml:"kafka"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxBodySize    int64         `yaml:"max_body_size"`
}

type EngineConfig struct {
	WelcomeDelay     time.Duration `yaml:"welcome_delay"`
	HealthCheckDelay time.Duration `yaml:"health_check_delay"`
	PanelCount       int           `yaml:"panel_count"`
	// Cron schedule for re-running the last snapshot against the new hour
	ReevaluateCron string `yaml:"reevaluate_cron"`
	SnapshotBuffer int    `yaml:"snapshot_buffer"`
	// Push the sample feeds once at startup
	Demo bool `yaml:"demo"`
}

type AudioConfig struct {
	Enabled bool `yaml:"enabled"`
	// Send tone clips to dashboard websocket clients
	Browser bool `yaml:"browser"`
	// Render clips as WAV files here; empty disables
	WAVDir      string        `yaml:"wav_dir"`
	SampleRate  int           `yaml:"sample_rate"`
	QueueSize   int           `yaml:"queue_size"`
	PlayTimeout time.Duration `yaml:"play_timeout"`
}

type KafkaConfig struct {
	Enabled           bool           `yaml:"enabled"`
	Brokers           []string       `yaml:"brokers"`
	NotificationTopic string         `yaml:"notification_topic"`
	FeedTopic         string         `yaml:"feed_topic"`
	GroupID           string         `yaml:"group_id"`
	Encoding          string         `yaml:"encoding"`
	Producer          ProducerConfig `yaml:"producer"`
}

// ProducerConfig tunes the Kafka writer and the relay in front of it
type ProducerConfig struct {
	Workers      int           `yaml:"workers"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks"`
	Compression  string        `yaml:"compression"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	QueueSize    int           `yaml:"queue_size"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			IdleTimeout:    60 * time.Second,
			AllowedOrigins: []string{"*"},
			MaxBodySize:    1 << 20,
		},
		Engine: EngineConfig{
			WelcomeDelay:     time.Second,
			HealthCheckDelay: 3 * time.Second,
			PanelCount:       8,
			ReevaluateCron:   "@hourly",
			SnapshotBuffer:   64,
		},
		Audio: AudioConfig{
			Enabled:     true,
			Browser:     true,
			SampleRate:  44100,
			QueueSize:   16,
			PlayTimeout: 2 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:           []string{"localhost:9092"},
			NotificationTopic: "sunsense.notifications",
			FeedTopic:         "sunsense.feeds",
			GroupID:           "sunsense-notifier",
			Encoding:          "json",
			Producer: ProducerConfig{
				Workers:      2,
				BatchSize:    50,
				BatchTimeout: 100 * time.Millisecond,
				WriteTimeout: 5 * time.Second,
				RequiredAcks: 1,
				Compression:  "snappy",
				MaxRetries:   3,
				RetryBackoff: 100 * time.Millisecond,
				QueueSize:    256,
			},
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins). A .env file in
// the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("SUNSENSE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Pretty = getEnvAsBool("LOG_PRETTY", c.Log.Pretty)
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.Engine.Demo = getEnvAsBool("SUNSENSE_DEMO", c.Engine.Demo)
	c.Engine.PanelCount = getEnvAsInt("SUNSENSE_PANEL_COUNT", c.Engine.PanelCount)
	c.Audio.Enabled = getEnvAsBool("AUDIO_ENABLED", c.Audio.Enabled)
	c.Audio.WAVDir = getEnv("AUDIO_WAV_DIR", c.Audio.WAVDir)
	c.Kafka.Enabled = getEnvAsBool("KAFKA_ENABLED", c.Kafka.Enabled)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitCSV(brokers)
	}
	c.Kafka.NotificationTopic = getEnv("KAFKA_NOTIFICATION_TOPIC", c.Kafka.NotificationTopic)
	c.Kafka.FeedTopic = getEnv("KAFKA_FEED_TOPIC", c.Kafka.FeedTopic)
	c.Kafka.Encoding = getEnv("KAFKA_ENCODING", c.Kafka.Encoding)
}

// Validation errors
var (
	ErrNoHTTPAddr       = errors.New("http.addr is required")
	ErrBadSampleRate    = errors.New("audio.sample_rate must be positive")
	ErrUnknownEncoding  = errors.New("kafka.encoding must be json or msgpack")
	ErrNoKafkaBrokers   = errors.New("kafka.brokers is required when kafka is enabled")
	ErrNoKafkaTopic     = errors.New("kafka.notification_topic is required when kafka is enabled")
	ErrBadSnapshotQueue = errors.New("engine.snapshot_buffer must be positive")
)

// Validate checks settings that would otherwise fail late at runtime
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return ErrNoHTTPAddr
	}
	if c.Audio.Enabled && c.Audio.SampleRate <= 0 {
		return ErrBadSampleRate
	}
	if c.Engine.SnapshotBuffer <= 0 {
		return ErrBadSnapshotQueue
	}
	switch c.Kafka.Encoding {
	case "", "json", "msgpack":
	default:
		return ErrUnknownEncoding
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return ErrNoKafkaBrokers
		}
		if c.Kafka.NotificationTopic == "" {
			return ErrNoKafkaTopic
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
