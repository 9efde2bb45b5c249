package tasks

import (
	"context"
	"fmt"
	"time"

	"gaming_queue/internal/config"
	"gaming_queue/internal/monitor"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cycler — то, что планировщик запускает по расписанию монитора.
type Cycler interface {
	RunCycle(ctx context.Context) (*monitor.Report, error)
}

// Purger удаляет закрытые записи старше срока хранения.
type Purger interface {
	PurgeTerminal(ctx context.Context, before time.Time) (int64, error)
}

// cronLogger передаёт сообщения cron в zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// RunMonitorCycle выполняет один цикл монитора и логирует ошибку.
func RunMonitorCycle(m Cycler, log *zap.Logger) {
	if _, err := m.RunCycle(context.Background()); err != nil {
		log.Error("ошибка цикла монитора", zap.Error(err))
	}
}

// PurgeTerminalEntries удаляет записи, закрытые раньше, чем keep назад.
func PurgeTerminalEntries(ctx context.Context, p Purger, keep time.Duration, log *zap.Logger) (int64, error) {
	before := time.Now().Add(-keep)
	n, err := p.PurgeTerminal(ctx, before)
	if err != nil {
		log.Error("ошибка при удалении закрытых записей", zap.Error(err))
		return 0, err
	}
	log.Info("закрытые записи удалены", zap.Int64("count", n), zap.Time("before", before))
	return n, nil
}

// InitScheduler регистрирует задачи и запускает планировщик.
// Монитор запускается каждые Monitor.Interval, очистка по расписанию Retention.Cron.
// p может быть nil, тогда очистка не регистрируется.
func InitScheduler(cfg *config.Config, m Cycler, p Purger, log *zap.Logger) (*cron.Cron, error) {
	log = log.Named("cron")
	cl := cronLogger{s: log.Sugar()}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.Monitor.Interval), func() {
		RunMonitorCycle(m, log)
	}); err != nil {
		return nil, fmt.Errorf("ошибка регистрации задачи монитора: %w", err)
	}

	if p != nil && cfg.Retention.Keep > 0 && cfg.Retention.Cron != "" {
		if _, err := c.AddFunc(cfg.Retention.Cron, func() {
			_, _ = PurgeTerminalEntries(context.Background(), p, cfg.Retention.Keep, log)
		}); err != nil {
			return nil, fmt.Errorf("ошибка регистрации задачи очистки: %w", err)
		}
	}

	c.Start()
	log.Info("планировщик запущен", zap.Duration("monitor_interval", cfg.Monitor.Interval))
	return c, nil
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func Stop(ctx context.Context, c *cron.Cron) error {
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
