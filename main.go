package main

import (
	"os"

	"gaming_queue/internal/cli"
)

// @Title						Очередь на компьютеры игрового клуба
// @Version					1.0
// @Description				Запись в очередь по типу компьютера, автоматическое снятие с очереди при входе в сессию и уведомления в WhatsApp
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
func main() {
	os.Exit(cli.Execute())
}
