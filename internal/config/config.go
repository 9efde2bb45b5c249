package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Database struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Gizmo — доступ к API системы сессий клуба.
type Gizmo struct {
	BaseURL string
	Auth    string // "логин:пароль" для Basic-авторизации
	Timeout time.Duration
}

// WhatsApp — отправка шаблонных сообщений через Infobip.
type WhatsApp struct {
	BaseURL         string
	APIKey          string
	Sender          string
	TemplateTurn    string
	TemplateJoined  string
	TemplateRemoved string // Пустое значение отключает сообщения об удалении из очереди
	Language        string
	RateLimit       int // Сообщений в минуту
}

type Monitor struct {
	Interval     time.Duration
	CycleTimeout time.Duration
	StaleAfter   time.Duration // 0 — записи не истекают
}

type Dispatch struct {
	Attempts     int
	InitialDelay time.Duration
	Workers      int
}

type Retention struct {
	Keep time.Duration
	Cron string
}

type Config struct {
	HTTPAddr            string
	JWTAccessSecret     string
	SessionWebhookToken string
	LogLevel            string
	LogFormat           string

	Database  Database
	Redis     Redis
	Gizmo     Gizmo
	WhatsApp  WhatsApp
	Monitor   Monitor
	Dispatch  Dispatch
	Retention Retention
}

// LoadEnv подгружает .env, если окружение не подготовлено заранее (ENV_CHEK).
func LoadEnv(files ...string) error {
	if os.Getenv("ENV_CHEK") != "" {
		return nil
	}
	fmt.Println("Подключение к .env")
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("ошибка получения .env: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("GIZMO_TIMEOUT", 30*time.Second)

	v.SetDefault("INFOBIP_BASE_URL", "https://api.infobip.com")
	v.SetDefault("WHATSAPP_TEMPLATE_TURN", "your_turn_has_come")
	v.SetDefault("WHATSAPP_TEMPLATE_JOINED", "client_queue")
	v.SetDefault("WHATSAPP_LANGUAGE", "en")
	v.SetDefault("WHATSAPP_RATE_LIMIT", 10)

	v.SetDefault("MONITOR_INTERVAL", 10*time.Second)
	v.SetDefault("MONITOR_CYCLE_TIMEOUT", 2*time.Minute)
	v.SetDefault("MONITOR_STALE_AFTER", time.Duration(0))

	v.SetDefault("DISPATCH_ATTEMPTS", 3)
	v.SetDefault("DISPATCH_INITIAL_DELAY", 500*time.Millisecond)
	v.SetDefault("DISPATCH_WORKERS", 4)

	v.SetDefault("RETENTION", 30*24*time.Hour)
	v.SetDefault("RETENTION_CRON", "0 0 3 * * *")
}

// Load собирает конфигурацию из переменных окружения.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		HTTPAddr:            v.GetString("HTTP_ADDR"),
		JWTAccessSecret:     v.GetString("JWT_ACCESS_SECRET"),
		SessionWebhookToken: v.GetString("SESSION_WEBHOOK_TOKEN"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		LogFormat:           v.GetString("LOG_FORMAT"),
		Database: Database{
			Driver:   v.GetString("DB_DRIVER"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
		},
		Redis: Redis{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Gizmo: Gizmo{
			BaseURL: v.GetString("GIZMO_API_BASE_URL"),
			Auth:    v.GetString("GIZMO_API_AUTH"),
			Timeout: v.GetDuration("GIZMO_TIMEOUT"),
		},
		WhatsApp: WhatsApp{
			BaseURL:         v.GetString("INFOBIP_BASE_URL"),
			APIKey:          v.GetString("INFOBIP_API_KEY"),
			Sender:          v.GetString("INFOBIP_SENDER"),
			TemplateTurn:    v.GetString("WHATSAPP_TEMPLATE_TURN"),
			TemplateJoined:  v.GetString("WHATSAPP_TEMPLATE_JOINED"),
			TemplateRemoved: v.GetString("WHATSAPP_TEMPLATE_REMOVED"),
			Language:        v.GetString("WHATSAPP_LANGUAGE"),
			RateLimit:       v.GetInt("WHATSAPP_RATE_LIMIT"),
		},
		Monitor: Monitor{
			Interval:     v.GetDuration("MONITOR_INTERVAL"),
			CycleTimeout: v.GetDuration("MONITOR_CYCLE_TIMEOUT"),
			StaleAfter:   v.GetDuration("MONITOR_STALE_AFTER"),
		},
		Dispatch: Dispatch{
			Attempts:     v.GetInt("DISPATCH_ATTEMPTS"),
			InitialDelay: v.GetDuration("DISPATCH_INITIAL_DELAY"),
			Workers:      v.GetInt("DISPATCH_WORKERS"),
		},
		Retention: Retention{
			Keep: v.GetDuration("RETENTION"),
			Cron: v.GetString("RETENTION_CRON"),
		},
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL должен быть больше нуля")
	}
	if c.Dispatch.Attempts < 1 {
		return fmt.Errorf("DISPATCH_ATTEMPTS должен быть не меньше 1")
	}
	if c.Dispatch.Workers < 1 {
		return fmt.Errorf("DISPATCH_WORKERS должен быть не меньше 1")
	}
	if c.Monitor.StaleAfter < 0 {
		return fmt.Errorf("MONITOR_STALE_AFTER не может быть отрицательным")
	}
	return nil
}
