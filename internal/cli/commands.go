package cli

import (
	"context"
	"fmt"
	"time"

	"gaming_queue/internal/storage"
	"gaming_queue/internal/tasks"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMonitorCommand(envFile *string) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Только монитор очереди, без HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*envFile)
			if err != nil {
				return err
			}
			defer a.close()

			mon := a.monitor(a.dispatcher())
			if once {
				report, err := mon.RunCycle(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "cycle %s: probe_ok=%t removed=%d notified=%d expired=%d\n",
					report.CycleID, report.ProbeOK, len(report.Removed), len(report.Notified), len(report.Expired))
				return err
			}

			scheduler, err := tasks.InitScheduler(a.cfg, mon, a.entries, a.log)
			if err != nil {
				return err
			}
			<-cmd.Context().Done()
			a.log.Info("получен сигнал остановки")

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tasks.Stop(ctx, scheduler); err != nil {
				a.log.Warn("планировщик не успел завершить задачи", zap.Error(err))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "выполнить один цикл и выйти")
	return cmd
}

func newPurgeCommand(envFile *string) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Удалить закрытые записи старше срока хранения",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*envFile)
			if err != nil {
				return err
			}
			defer a.close()

			keep := a.cfg.Retention.Keep
			if olderThan > 0 {
				keep = olderThan
			}
			n, err := tasks.PurgeTerminalEntries(cmd.Context(), a.entries, keep, a.log)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", n)
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "срок хранения вместо RETENTION")
	return cmd
}

func newMigrateCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Создать таблицы и служебные строки очереди",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*envFile)
			if err != nil {
				return err
			}
			defer a.close()

			if err := storage.Migrate(a.db); err != nil {
				return err
			}
			a.log.Info("миграция выполнена")
			return nil
		},
	}
}
