package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gaming_queue/internal/config"
	"gaming_queue/internal/logger"
	"gaming_queue/internal/monitor"
	"gaming_queue/internal/notify"
	"gaming_queue/internal/session"
	"gaming_queue/internal/storage"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Execute запускает командную строку и возвращает код выхода.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return 0
}

func NewRootCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:           "gaming-queue",
		Short:         "Очередь на компьютеры клуба с уведомлениями",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "путь к .env (не читается при заданном ENV_CHEK)")

	cmd.AddCommand(
		newServeCommand(&envFile),
		newMonitorCommand(&envFile),
		newPurgeCommand(&envFile),
		newMigrateCommand(&envFile),
	)
	return cmd
}

// app — общие зависимости всех команд.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	db    *gorm.DB
	redis *redis.Client

	entries  *storage.QueueStore
	settings *storage.SettingsStore
	users    *storage.UserStore
}

func newApp(envFile string) (*app, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("ошибка конфигурации: %w", err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	db, err := storage.ConnectDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Info("подключение к базе данных установлено", zap.String("driver", cfg.Database.Driver))

	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		entries:  storage.NewQueueStore(db),
		settings: storage.NewSettingsStore(db),
		users:    storage.NewUserStore(db),
	}, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.log.Sync()
}

// dispatcher собирает каналы уведомлений: WhatsApp и, если передан, хаб WebSocket.
func (a *app) dispatcher(extra ...notify.Transport) *notify.Dispatcher {
	if a.redis == nil {
		a.redis = storage.InitRedis(a.cfg.Redis)
	}
	limiter := notify.NewRedisLimiter(a.redis, "whatsapp:rate", a.cfg.WhatsApp.RateLimit, time.Minute)
	whatsapp := notify.NewWhatsAppTransport(a.cfg.WhatsApp, &http.Client{Timeout: 15 * time.Second}, limiter, a.log)

	transports := append([]notify.Transport{whatsapp}, extra...)
	return notify.NewDispatcher(a.log, notify.Options{
		Attempts:     a.cfg.Dispatch.Attempts,
		InitialDelay: a.cfg.Dispatch.InitialDelay,
		Workers:      a.cfg.Dispatch.Workers,
	}, transports...)
}

func (a *app) monitor(n monitor.Notifier) *monitor.Monitor {
	probe := session.NewGizmoProbe(a.cfg.Gizmo.BaseURL, a.cfg.Gizmo.Auth,
		&http.Client{Timeout: a.cfg.Gizmo.Timeout}, a.users)
	return monitor.New(a.entries, probe, n, a.settings, monitor.Options{
		CycleTimeout: a.cfg.Monitor.CycleTimeout,
		StaleAfter:   a.cfg.Monitor.StaleAfter,
	}, a.log)
}
