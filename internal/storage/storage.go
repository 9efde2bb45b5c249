package storage

import (
	"fmt"
	"time"

	"gaming_queue/internal/config"
	"gaming_queue/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDatabase открывает подключение к базе. Для разработки и тестов поддерживается SQLite,
// тогда DB_NAME задаёт путь к файлу базы.
func ConnectDatabase(cfg config.Database) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch cfg.Driver {
	case "postgres", "":
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)
		dial = postgres.Open(dsn)
	case "sqlite":
		dial = sqlite.Open(cfg.Name)
	default:
		return nil, fmt.Errorf("неизвестный драйвер базы данных: %s", cfg.Driver)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// SQLite допускает одного писателя, транзакции выстраиваются в очередь на соединении.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxIdleTime(time.Hour)
	}
	return db, nil
}

// Migrate создаёт таблицы, индексы и служебные строки очереди.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.QueueEntry{}, &models.QueuePartition{}, &models.QueueSettings{}); err != nil {
		return fmt.Errorf("ошибка при миграции: %w", err)
	}

	// Пользователь может занимать только одно активное место во всех разделах.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_entries_active_user
		ON queue_entries (user_id) WHERE status IN ('waiting', 'notified')`).Error; err != nil {
		return fmt.Errorf("ошибка создания индекса активных записей: %w", err)
	}

	for _, class := range models.ComputerClasses() {
		p := models.QueuePartition{ComputerClass: class}
		if err := db.Where(models.QueuePartition{ComputerClass: class}).FirstOrCreate(&p).Error; err != nil {
			return fmt.Errorf("ошибка создания раздела %s: %w", class, err)
		}
	}

	settings := models.QueueSettings{ID: 1, IsActive: true, AllowOnlineJoining: true}
	if err := db.Where(models.QueueSettings{ID: 1}).FirstOrCreate(&settings).Error; err != nil {
		return fmt.Errorf("ошибка создания настроек очереди: %w", err)
	}
	return nil
}

// InitRedis создаёт клиента Redis. Подключение проверяется при первом запросе.
func InitRedis(cfg config.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
