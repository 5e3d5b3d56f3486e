package config

import (
	"bytes"
	"crypto/rand"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is where serve and token look when --config is not given.
const DefaultPath = "./config/config.toml"

//go:embed config.toml.sample
var configTemplate string

// Backplane drivers.
const (
	BackplaneNone     = "none"
	BackplaneRabbitMQ = "rabbitmq"
	BackplaneRedis    = "redis"
)

type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	RabbitMQ    RabbitMQConfig    `toml:"rabbitmq"`
	Redis       RedisConfig       `toml:"redis"`
	Backplane   BackplaneConfig   `toml:"backplane"`
	JWT         JWTConfig         `toml:"jwt"`
	WebSocket   WebSocketConfig   `toml:"websocket"`
	Tracking    TrackingConfig    `toml:"tracking"`
	Chat        ChatConfig        `toml:"chat"`
	Retention   RetentionConfig   `toml:"retention"`
	Persistence PersistenceConfig `toml:"persistence"`
}

type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	MaxConcurrent   int      `toml:"max_concurrent"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	IdleTimeout     Duration `toml:"idle_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Enabled  bool   `toml:"enabled"`
	Required bool   `toml:"required"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
	MaxConns int32  `toml:"max_conns"`
}

type RabbitMQConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	VHost    string `toml:"vhost"`
	Exchange string `toml:"exchange"`
}

type RedisConfig struct {
	URL     string `toml:"url"`
	Channel string `toml:"channel"`
}

type BackplaneConfig struct {
	Driver         string `toml:"driver"`
	OutboundBuffer int    `toml:"outbound_buffer"`
}

type JWTConfig struct {
	SecretKey      string   `toml:"secret_key"`
	AccessTTL      Duration `toml:"access_ttl"`
	AllowDevTokens bool     `toml:"allow_dev_tokens"`
}

type WebSocketConfig struct {
	AuthTimeout     Duration `toml:"auth_timeout"`
	PongWait        Duration `toml:"pong_wait"`
	PingInterval    Duration `toml:"ping_interval"`
	WriteWait       Duration `toml:"write_wait"`
	MaxMessageBytes int64    `toml:"max_message_bytes"`
	SendBuffer      int      `toml:"send_buffer"`
	EventsPerSecond float64  `toml:"events_per_second"`
	EventBurst      int      `toml:"event_burst"`
	AllowedOrigins  []string `toml:"allowed_origins"`
}

// TrackingConfig is the single source of the GPS thresholds.
type TrackingConfig struct {
	SpeedLimitKmh      float64 `toml:"speed_limit_kmh"`
	AccuracyThresholdM float64 `toml:"accuracy_threshold_m"`
	HistoryCapacity    int     `toml:"history_capacity"`
	PersistHistory     bool    `toml:"persist_history"`
}

type ChatConfig struct {
	PreviewLength     int `toml:"preview_length"`
	PageSize          int `toml:"page_size"`
	MaxPageSize       int `toml:"max_page_size"`
	ConversationLimit int `toml:"conversation_limit"`
}

type RetentionConfig struct {
	Notifications   Duration `toml:"notifications"`
	LocationHistory Duration `toml:"location_history"`
	SweepInterval   Duration `toml:"sweep_interval"`
}

type PersistenceConfig struct {
	MaxInFlight  int64    `toml:"max_in_flight"`
	WriteTimeout Duration `toml:"write_timeout"`
}

// Duration decodes TOML strings such as "30s" or "720h".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// LoadFromFile loads config from a TOML file, applies defaults and env overrides, and validates.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML bytes. Unknown keys are rejected so typos surface early.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns a config with every default applied and no file.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg
}

// WriteTemplate writes the commented sample config to path.
func WriteTemplate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, []byte(configTemplate), 0o644)
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// applyDefaults sets safe defaults for zero-valued fields.
func applyDefaults(cfg *Config) {
	// Server
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxConcurrent == 0 {
		cfg.Server.MaxConcurrent = 256
	}
	defaultDuration(&cfg.Server.ReadTimeout, 15*time.Second)
	defaultDuration(&cfg.Server.WriteTimeout, 15*time.Second)
	defaultDuration(&cfg.Server.IdleTimeout, 60*time.Second)
	defaultDuration(&cfg.Server.ShutdownTimeout, 10*time.Second)

	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}
	if cfg.RabbitMQ.VHost == "" {
		cfg.RabbitMQ.VHost = "/"
	}
	if cfg.RabbitMQ.Exchange == "" {
		cfg.RabbitMQ.Exchange = "fleet.realtime.broadcast"
	}

	// Redis
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "fleet:realtime:broadcast"
	}

	// Backplane
	if cfg.Backplane.Driver == "" {
		cfg.Backplane.Driver = BackplaneNone
	}
	if cfg.Backplane.OutboundBuffer == 0 {
		cfg.Backplane.OutboundBuffer = 1024
	}

	// JWT
	defaultDuration(&cfg.JWT.AccessTTL, 24*time.Hour)

	// WebSocket
	defaultDuration(&cfg.WebSocket.AuthTimeout, 5*time.Second)
	defaultDuration(&cfg.WebSocket.PongWait, 60*time.Second)
	defaultDuration(&cfg.WebSocket.PingInterval, 30*time.Second)
	defaultDuration(&cfg.WebSocket.WriteWait, 10*time.Second)
	if cfg.WebSocket.MaxMessageBytes == 0 {
		cfg.WebSocket.MaxMessageBytes = 64 << 10
	}
	if cfg.WebSocket.SendBuffer == 0 {
		cfg.WebSocket.SendBuffer = 64
	}
	if cfg.WebSocket.EventsPerSecond == 0 {
		cfg.WebSocket.EventsPerSecond = 20
	}
	if cfg.WebSocket.EventBurst == 0 {
		cfg.WebSocket.EventBurst = 40
	}

	// Tracking
	if cfg.Tracking.SpeedLimitKmh == 0 {
		cfg.Tracking.SpeedLimitKmh = 120
	}
	if cfg.Tracking.AccuracyThresholdM == 0 {
		cfg.Tracking.AccuracyThresholdM = 50
	}
	if cfg.Tracking.HistoryCapacity == 0 {
		cfg.Tracking.HistoryCapacity = 100
	}

	// Chat
	if cfg.Chat.PreviewLength == 0 {
		cfg.Chat.PreviewLength = 100
	}
	if cfg.Chat.PageSize == 0 {
		cfg.Chat.PageSize = 50
	}
	if cfg.Chat.MaxPageSize == 0 {
		cfg.Chat.MaxPageSize = 200
	}
	if cfg.Chat.ConversationLimit == 0 {
		cfg.Chat.ConversationLimit = 50
	}

	// Retention
	defaultDuration(&cfg.Retention.Notifications, 30*24*time.Hour)
	defaultDuration(&cfg.Retention.LocationHistory, 30*24*time.Hour)
	defaultDuration(&cfg.Retention.SweepInterval, time.Hour)

	// Persistence
	if cfg.Persistence.MaxInFlight == 0 {
		cfg.Persistence.MaxInFlight = 128
	}
	defaultDuration(&cfg.Persistence.WriteTimeout, 5*time.Second)

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

// applyEnv lets deployments keep secrets out of the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("FLEET_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FLEET_JWT_SECRET"); v != "" {
		cfg.JWT.SecretKey = v
	}
	if v := os.Getenv("FLEET_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("FLEET_RABBITMQ_PASSWORD"); v != "" {
		cfg.RabbitMQ.Password = v
	}
	if v := os.Getenv("FLEET_BACKPLANE"); v != "" {
		cfg.Backplane.Driver = strings.ToLower(strings.TrimSpace(v))
	}
}

func defaultDuration(d *Duration, v time.Duration) {
	if d.Duration == 0 {
		d.Duration = v
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	if !validPort(c.Server.Port) {
		problems = append(problems, "server.port must be in 1..65535")
	}
	if c.Server.MaxConcurrent < 0 {
		problems = append(problems, "server.max_concurrent must be >= 0")
	}

	// DB is only checked when it will be used
	if c.Database.Enabled {
		if !validPort(c.Database.Port) {
			problems = append(problems, "database.port must be in 1..65535")
		}
		if c.Database.User == "" {
			problems = append(problems, "database.user is required")
		}
		if c.Database.Name == "" {
			problems = append(problems, "database.database is required")
		}
	}

	switch c.Backplane.Driver {
	case BackplaneNone:
	case BackplaneRabbitMQ:
		if !validPort(c.RabbitMQ.Port) {
			problems = append(problems, "rabbitmq.port must be in 1..65535")
		}
		if c.RabbitMQ.User == "" {
			problems = append(problems, "rabbitmq.user is required")
		}
		if c.RabbitMQ.Password == "" {
			problems = append(problems, "rabbitmq.password is required")
		}
	case BackplaneRedis:
		if c.Redis.Channel == "" {
			problems = append(problems, "redis.channel is required")
		}
	default:
		problems = append(problems, "backplane.driver must be one of none, rabbitmq, redis")
	}
	if c.Backplane.OutboundBuffer < 0 {
		problems = append(problems, "backplane.outbound_buffer must be >= 0")
	}

	if c.WebSocket.PingInterval.Duration >= c.WebSocket.PongWait.Duration {
		problems = append(problems, "websocket.ping_interval must be shorter than websocket.pong_wait")
	}
	if c.WebSocket.SendBuffer < 1 {
		problems = append(problems, "websocket.send_buffer must be >= 1")
	}
	if c.WebSocket.EventsPerSecond < 0 || c.WebSocket.EventBurst < 0 {
		problems = append(problems, "websocket rate limits must be >= 0")
	}

	if c.Tracking.SpeedLimitKmh < 0 {
		problems = append(problems, "tracking.speed_limit_kmh must be >= 0")
	}
	if c.Tracking.AccuracyThresholdM < 0 {
		problems = append(problems, "tracking.accuracy_threshold_m must be >= 0")
	}
	if c.Tracking.HistoryCapacity < 1 {
		problems = append(problems, "tracking.history_capacity must be >= 1")
	}

	if c.Chat.PageSize < 1 || c.Chat.MaxPageSize < c.Chat.PageSize {
		problems = append(problems, "chat.page_size must be >= 1 and <= chat.max_page_size")
	}
	if c.Chat.PreviewLength < 1 {
		problems = append(problems, "chat.preview_length must be >= 1")
	}

	if c.Persistence.MaxInFlight < 1 {
		problems = append(problems, "persistence.max_in_flight must be >= 1")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func validPort(p int) bool { return p > 0 && p <= 65535 }
