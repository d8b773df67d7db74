package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type DBConfig struct {
	Driver          string        `yaml:"driver"`
	Name            string        `yaml:"name"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DSN             string        `yaml:"dsn"`
	Replicas        []string      `yaml:"replicas"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type RabbitMQConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type ChatConfig struct {
	MaxMessageLength int     `yaml:"max_message_length"`
	RatePerSecond    float64 `yaml:"rate_per_second"`
	Burst            int     `yaml:"burst"`
	WSSendBuffer     int     `yaml:"ws_send_buffer"`
}

type ConfigSchema struct {
	Database DBConfig `yaml:"db"`
	Backend  struct {
		Host        string   `yaml:"host"`
		Port        int      `yaml:"port"`
		CorsOrigins []string `yaml:"cors_origins"`
	} `yaml:"backend"`
	Logs struct {
		Level string `yaml:"level"`
	} `yaml:"logs"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Chat     ChatConfig     `yaml:"chat"`
	Tasks    struct {
		ReconcileSchedule string `yaml:"reconcile_schedule"`
	} `yaml:"tasks"`
}

// LoadConfig читает yaml, затем .env и переменные окружения поверх него.
// Пустой путь означает конфигурацию только из окружения.
func LoadConfig(filePath string) (*ConfigSchema, error) {
	conf := &ConfigSchema{}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, conf); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filePath, err)
		}
	}

	// .env необязателен
	_ = godotenv.Load()
	applyEnv(conf)
	conf.applyDefaults()

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func applyEnv(conf *ConfigSchema) {
	if v := os.Getenv("TAPSPOT_DB_DRIVER"); v != "" {
		conf.Database.Driver = v
	}
	if v := os.Getenv("TAPSPOT_DB_DSN"); v != "" {
		conf.Database.DSN = v
	}
	if v := os.Getenv("TAPSPOT_JWT_SECRET"); v != "" {
		conf.Auth.JWTSecret = v
	}
	if v := os.Getenv("TAPSPOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			conf.Backend.Port = port
		}
	}
	if v := os.Getenv("TAPSPOT_LOG_LEVEL"); v != "" {
		conf.Logs.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port := splitHostPort(v)
		conf.Redis.Enabled = true
		conf.Redis.Host = host
		if port > 0 {
			conf.Redis.Port = port
		}
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		conf.RabbitMQ.Enabled = true
		conf.RabbitMQ.URL = v
	}
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func (c *ConfigSchema) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 50
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}
	if c.Backend.Port == 0 {
		c.Backend.Port = 8080
	}
	if c.Logs.Level == "" {
		c.Logs.Level = "info"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "chat_events"
	}
	if c.Chat.MaxMessageLength == 0 {
		c.Chat.MaxMessageLength = 1000
	}
	if c.Chat.RatePerSecond == 0 {
		c.Chat.RatePerSecond = 5
	}
	if c.Chat.Burst == 0 {
		c.Chat.Burst = 10
	}
	if c.Chat.WSSendBuffer == 0 {
		c.Chat.WSSendBuffer = 64
	}
	if c.Tasks.ReconcileSchedule == "" {
		c.Tasks.ReconcileSchedule = "@every 10m"
	}
}

func (c *ConfigSchema) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported db driver %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.RabbitMQ.Enabled && c.RabbitMQ.URL == "" {
		return fmt.Errorf("rabbitmq.url is required when rabbitmq is enabled")
	}
	return nil
}

// ListenAddr адрес для http.Server
func (c *ConfigSchema) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Backend.Host, c.Backend.Port)
}
