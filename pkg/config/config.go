package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port           string        `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`
	MinIO      MinIOConfig    `mapstructure:"minio"`

	Store    StoreConfig    `mapstructure:"store"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Presence PresenceConfig `mapstructure:"presence"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// StoreConfig picks the messages backend: "pg" (default) or "mongo"
type StoreConfig struct {
	Messages string `mapstructure:"messages"`
}

// RealtimeConfig picks the insert notification transport: "redis" (default) or "kafka"
type RealtimeConfig struct {
	Driver        string        `mapstructure:"driver"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// PresenceConfig definition presence channel setting
type PresenceConfig struct {
	Channel    string        `mapstructure:"channel"`
	Heartbeat  time.Duration `mapstructure:"heartbeat"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// AuthConfig definition token and session setting
type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	Issuer     string        `mapstructure:"issuer"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
}

// KafkaConfig definition kafka setting
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// MinIOConfig definition profile image bucket
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	URLExpiry     time.Duration `mapstructure:"url_expiry"`
	RetryInterval int           `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// WithDefaults fills the zero values the service cannot run without
func (c Chat) WithDefaults() Chat {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.Store.Messages == "" {
		c.Store.Messages = "pg"
	}
	if c.Realtime.Driver == "" {
		c.Realtime.Driver = "redis"
	}
	if c.Realtime.RetryInterval <= 0 {
		c.Realtime.RetryInterval = 2 * time.Second
	}
	if c.Presence.Channel == "" {
		c.Presence.Channel = "online-users"
	}
	if c.Presence.Heartbeat <= 0 {
		c.Presence.Heartbeat = 30 * time.Second
	}
	if c.Presence.StaleAfter <= 0 {
		c.Presence.StaleAfter = 90 * time.Second
	}
	if c.Auth.SessionTTL <= 0 {
		c.Auth.SessionTTL = 24 * time.Hour
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "direct_chat_service"
	}
	if c.MinIO.URLExpiry <= 0 {
		c.MinIO.URLExpiry = time.Hour
	}
	return c
}
