package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Env                    string `mapstructure:"env"`
	Port                   int    `mapstructure:"port"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
	RateLimitPerMin        int    `mapstructure:"rate_limit_per_min"`
	TempDir                string `mapstructure:"temp_dir"`
}

func (a *AppConfig) PortString() string { return fmt.Sprintf("%d", a.Port) }

type MongoConfig struct {
	URI string `mapstructure:"uri"`
	DB  string `mapstructure:"db"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	TopicMessages string   `mapstructure:"topic_messages"`
}

type S3Config struct {
	Region            string `mapstructure:"region"`
	Bucket            string `mapstructure:"bucket"`
	Endpoint          string `mapstructure:"endpoint"`
	PublicRead        bool   `mapstructure:"public_read"`
	PresignTTLSeconds int    `mapstructure:"presign_ttl_seconds"`
}

type PushConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxFailures    uint32 `mapstructure:"breaker_max_failures"`
	IntervalSec    int    `mapstructure:"breaker_interval_seconds"`
	OpenSec        int    `mapstructure:"breaker_open_seconds"`
}

type RTCConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	APIKey          string `mapstructure:"api_key"`
	TokenTTLSeconds int    `mapstructure:"token_ttl_seconds"`
}

type CryptoConfig struct {
	// Key is the base64-encoded 32-byte AES key, loaded once at startup.
	Key string `mapstructure:"key"`
}

type WSConfig struct {
	PingIntervalSeconds  int   `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64 `mapstructure:"max_message_size_bytes"`
	SendBuffer           int   `mapstructure:"send_buffer"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	S3      S3Config      `mapstructure:"s3"`
	Push    PushConfig    `mapstructure:"push"`
	RTC     RTCConfig     `mapstructure:"rtc"`
	Crypto  CryptoConfig  `mapstructure:"crypto"`
	WS      WSConfig      `mapstructure:"ws"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// derived
	ShutdownTimeout time.Duration
	PingInterval    time.Duration
	WriteDeadline   time.Duration
	PushTimeout     time.Duration
	PresignTTL      time.Duration
	RTCTokenTTL     time.Duration
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	applyDefaults(&c)
	if err := validate(&c); err != nil {
		return nil, err
	}

	c.ShutdownTimeout = time.Duration(c.App.ShutdownTimeoutSeconds) * time.Second
	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	c.PushTimeout = time.Duration(c.Push.TimeoutSeconds) * time.Second
	c.PresignTTL = time.Duration(c.S3.PresignTTLSeconds) * time.Second
	c.RTCTokenTTL = time.Duration(c.RTC.TokenTTLSeconds) * time.Second
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.App.ShutdownTimeoutSeconds == 0 {
		c.App.ShutdownTimeoutSeconds = 10
	}
	if c.App.RateLimitPerMin == 0 {
		c.App.RateLimitPerMin = 300
	}
	if c.App.TempDir == "" {
		c.App.TempDir = "temp"
	}
	if c.WS.PingIntervalSeconds == 0 {
		c.WS.PingIntervalSeconds = 25
	}
	if c.WS.WriteDeadlineSeconds == 0 {
		c.WS.WriteDeadlineSeconds = 10
	}
	if c.WS.MaxMessageSizeBytes == 0 {
		// media frames arrive base64-encoded inline
		c.WS.MaxMessageSizeBytes = 32 << 20
	}
	if c.WS.SendBuffer == 0 {
		c.WS.SendBuffer = 256
	}
	if c.Push.TimeoutSeconds == 0 {
		c.Push.TimeoutSeconds = 10
	}
	if c.Push.MaxFailures == 0 {
		c.Push.MaxFailures = 5
	}
	if c.Push.IntervalSec == 0 {
		c.Push.IntervalSec = 60
	}
	if c.Push.OpenSec == 0 {
		c.Push.OpenSec = 30
	}
	if c.S3.PresignTTLSeconds == 0 {
		c.S3.PresignTTLSeconds = 3600
	}
	if c.RTC.TokenTTLSeconds == 0 {
		c.RTC.TokenTTLSeconds = 300
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "ws"
	}
}

func validate(c *Config) error {
	if c.App.Port == 0 {
		return errors.New("app.port missing or invalid")
	}
	if c.Mongo.URI == "" {
		return errors.New("mongo.uri missing")
	}
	if c.Mongo.DB == "" {
		return errors.New("mongo.db missing")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr missing")
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers missing")
	}
	if c.Kafka.TopicMessages == "" {
		return errors.New("kafka.topic_messages missing")
	}
	if c.Crypto.Key == "" {
		return errors.New("crypto.key missing")
	}
	if c.S3.Bucket == "" {
		return errors.New("s3.bucket missing")
	}
	return nil
}
