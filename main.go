package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v6"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Config — настройки бота, читаемые из env.
type Config struct {
	BotToken    string `env:"BOT_TOKEN,required"`
	ChannelID   string `env:"CHANNEL_ID"`                      // канал публикации по умолчанию
	DatabaseURL string `env:"DATABASE_URL"`                    // PostgreSQL DSN; пусто — SQLite
	DBPath      string `env:"DB_PATH" envDefault:"postbot.db"` // путь к SQLite-файлу
	WebhookURL  string `env:"TG_WEBHOOK_URL"`                  // базовый URL webhook; пусто — long polling
	WebhookPort string `env:"WEBHOOK_PORT" envDefault:"8443"`
	Debug       bool   `env:"DEBUG"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var repo Repository
	var err error
	if cfg.DatabaseURL != "" {
		repo, err = NewPostgresRepo(cfg.DatabaseURL)
		if err != nil {
			slog.Error("PostgreSQL error", "err", err)
			os.Exit(1)
		}
		slog.Info("БД: PostgreSQL")
	} else {
		repo, err = NewSQLiteRepo(cfg.DBPath)
		if err != nil {
			slog.Error("SQLite error", "err", err)
			os.Exit(1)
		}
		slog.Info("БД: SQLite", "path", cfg.DBPath)
	}
	defer repo.Close()

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		slog.Error("Telegram bot error", "err", err)
		os.Exit(1)
	}
	slog.Info("Telegram бот запущен", "username", api.Self.UserName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Завершение...")
		cancel()
	}()

	bot := NewBot(cfg, repo, api)
	bot.Run(ctx)
	slog.Info("Бот остановлен")
}
