package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	_ "gaming_queue/docs"
	"gaming_queue/internal/auth"
	"gaming_queue/internal/handlers"
	"gaming_queue/internal/storage"
	"gaming_queue/internal/tasks"
	"gaming_queue/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "HTTP API очереди и монитор",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*envFile)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	if err := storage.Migrate(a.db); err != nil {
		return err
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := ws.NewHub(a.log)
	go hub.Run(hubCtx)

	dispatcher := a.dispatcher(hub)
	mon := a.monitor(dispatcher)
	scheduler, err := tasks.InitScheduler(a.cfg, mon, a.entries, a.log)
	if err != nil {
		return err
	}

	queueHandler := handlers.NewQueueHandler(a.entries, a.settings, a.users, dispatcher, mon, a.log)
	var sessions *handlers.SessionEventsHandler
	if a.cfg.SessionWebhookToken != "" {
		sessions = handlers.NewSessionEventsHandler(a.cfg.SessionWebhookToken, mon, a.log)
	}
	r := newRouter(routerDeps{
		secret:   []byte(a.cfg.JWTAccessSecret),
		queue:    queueHandler,
		sessions: sessions,
		hub:      hub,
		db:       a.db,
	})

	srv := &http.Server{Addr: a.cfg.HTTPAddr, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("HTTP-сервер запущен", zap.String("addr", a.cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.log.Info("получен сигнал остановки")
	case err := <-errCh:
		if err != nil {
			a.log.Error("ошибка запуска сервера", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("сервер остановлен с ошибкой", zap.Error(err))
	}
	if err := tasks.Stop(shutdownCtx, scheduler); err != nil {
		a.log.Warn("планировщик не успел завершить задачи", zap.Error(err))
	}
	mon.Wait()
	queueHandler.Wait()
	a.log.Info("сервис остановлен")
	return nil
}

type routerDeps struct {
	secret   []byte
	queue    *handlers.QueueHandler
	sessions *handlers.SessionEventsHandler // nil отключает вебхук
	hub      *ws.Hub
	db       *gorm.DB
}

func newRouter(d routerDeps) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := d.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if d.sessions != nil {
		r.POST("/api/sessions/events", d.sessions.Handle)
	}

	// WebSocket открыт без токена: в события попадают только позиции.
	if d.hub != nil {
		r.GET("/api/queue/classes/:class/ws", d.hub.QueueWebSocketHandler)
	}

	q := r.Group("/api/queue", auth.AuthMiddleware(d.secret))
	{
		q.POST("/enqueue", d.queue.EnqueueHandler)
		q.POST("/remove", d.queue.RemoveHandler)
		q.GET("/me", d.queue.MyEntryHandler)
		q.GET("/classes/:class", d.queue.ListClassHandler)
		q.GET("/pools/:pool", d.queue.ListPoolHandler)
	}

	staff := r.Group("/api/queue", auth.AuthMiddleware(d.secret), auth.RequireStaff())
	{
		staff.GET("/stats", d.queue.StatsHandler)
		staff.GET("/settings", d.queue.GetSettingsHandler)
		staff.PATCH("/settings", d.queue.UpdateSettingsHandler)
	}
	return r
}
