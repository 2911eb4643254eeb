package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot — основная структура, объединяющая зависимости.
type Bot struct {
	cfg      Config
	repo     Repository
	api      *tgbotapi.BotAPI
	tg       Transport
	sessions *sessionStore
	selfID   int64
	whSecret string // random path segment for webhook URL
}

// NewBot создаёт экземпляр Bot.
func NewBot(cfg Config, repo Repository, api *tgbotapi.BotAPI) *Bot {
	// Секрет webhook-пути детерминирован от токена: переживает рестарты.
	h := sha256.Sum256([]byte(api.Token))
	return &Bot{
		cfg:      cfg,
		repo:     repo,
		api:      api,
		tg:       newTgTransport(api),
		sessions: newSessionStore(),
		selfID:   api.Self.ID,
		whSecret: hex.EncodeToString(h[:8]),
	}
}

func (b *Bot) webhookPath() string {
	return "/tg-webhook-" + b.whSecret
}

// registerCommands регистрирует команды бота в Telegram.
func (b *Bot) registerCommands() {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "newpost", Description: "Создать новый черновик"},
		tgbotapi.BotCommand{Command: "drafts", Description: "Список черновиков"},
		tgbotapi.BotCommand{Command: "editpost", Description: "Редактировать опубликованный пост"},
		tgbotapi.BotCommand{Command: "channels", Description: "Сохранённые каналы"},
		tgbotapi.BotCommand{Command: "addchannel", Description: "Добавить канал"},
		tgbotapi.BotCommand{Command: "cancel", Description: "Отменить текущую операцию"},
		tgbotapi.BotCommand{Command: "help", Description: "Инструкция"},
	)
	if _, err := b.api.Request(cmds); err != nil {
		slog.Error("setMyCommands failed", "err", err)
	}
}

// Run запускает приём апдейтов и периодическую очистку payload-хранилища.
// Блокируется до отмены контекста.
func (b *Bot) Run(ctx context.Context) {
	b.registerCommands()

	go func() {
		t := time.NewTicker(6 * time.Hour)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				b.repo.CleanOldPayloads()
			}
		}
	}()

	var updates tgbotapi.UpdatesChannel
	if b.cfg.WebhookURL != "" {
		whPath := b.webhookPath()
		whURL := strings.TrimRight(b.cfg.WebhookURL, "/") + whPath
		wh, err := tgbotapi.NewWebhook(whURL)
		if err != nil {
			slog.Error("webhook config error", "err", err)
			return
		}
		if _, err := b.api.Request(wh); err != nil {
			slog.Error("set webhook failed", "err", err)
			return
		}
		updates = b.api.ListenForWebhook(whPath)
		go func() {
			addr := ":" + b.cfg.WebhookPort
			srv := &http.Server{
				Addr:         addr,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
				IdleTimeout:  60 * time.Second,
			}
			slog.Info("webhook server starting", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("webhook server failed", "err", err)
			}
		}()
		slog.Info("webhook mode")
	} else {
		// Удаляем webhook если был, переключаемся на polling
		b.api.Request(tgbotapi.DeleteWebhookConfig{})
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates = b.api.GetUpdatesChan(u)
		slog.Info("polling mode")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				slog.Warn("updates channel closed")
				return
			}
			b.dispatch(update)
		}
	}
}

// dispatch разбирает один апдейт: callback'и, команды, фото, текст.
func (b *Bot) dispatch(update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(update.CallbackQuery)
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}

	userID := msg.From.ID
	chat := strconv.FormatInt(msg.Chat.ID, 10)
	slog.Debug("msg received", "from", userID, "chat", msg.Chat.ID)

	// Пересланный из канала пост: показываем chat_id для /addchannel.
	if msg.ForwardFromChat != nil {
		b.replyForwardedChannelInfo(chat, msg.ForwardFromChat)
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			b.cmdStart(chat)
		case "newpost":
			b.cmdNewPost(userID, chat)
		case "cancel":
			b.cmdCancel(userID, chat)
		case "drafts":
			b.cmdDrafts(userID, chat)
		case "channels":
			b.cmdChannels(chat)
		case "addchannel":
			b.cmdAddChannel(userID, chat)
		case "editpost":
			b.cmdEditPost(userID, chat, msg.CommandArguments())
		default:
			b.send(chat, "Неизвестная команда. /help — список команд.", nil)
		}
		return
	}

	if fileID := mediaFileID(msg); fileID != "" {
		if b.handleEditPhoto(userID, chat, fileID) {
			return
		}
		// Черновик принимает медиа только в виде фото.
		if len(msg.Photo) > 0 {
			b.handleDraftPhoto(userID, chat, fileID)
		}
		return
	}

	if msg.Text != "" {
		// Стейджинг-сессия имеет приоритет, но только когда ждёт ввода.
		if b.handleEditText(userID, chat, msg.Text) {
			return
		}
		b.handleDraftText(userID, chat, msg.Text)
	}
}

func (b *Bot) handleCallback(q *tgbotapi.CallbackQuery) {
	cb := cbRef{id: q.ID, userID: q.From.ID}
	if q.Message != nil {
		cb.chat = strconv.FormatInt(q.Message.Chat.ID, 10)
		cb.messageID = q.Message.MessageID
	}
	if b.handleEditCallback(cb, q.Data) {
		return
	}
	if b.handleDraftCallback(cb, q.Data) {
		return
	}
	// Неизвестный callback (например, btn:* с опубликованного поста).
	b.answer(cb, "")
}

// mediaFileID — file_id вложения, пригодного как медиа поста: фото,
// документ или анимация. Фото приоритетно.
func mediaFileID(msg *tgbotapi.Message) string {
	switch {
	case len(msg.Photo) > 0:
		return msg.Photo[len(msg.Photo)-1].FileID
	case msg.Document != nil:
		return msg.Document.FileID
	case msg.Animation != nil:
		return msg.Animation.FileID
	}
	return ""
}

func (b *Bot) replyForwardedChannelInfo(chat string, from *tgbotapi.Chat) {
	title := from.Title
	if title == "" {
		title = "(нет)"
	}
	username := from.UserName
	if username == "" {
		username = "(приватный канал без username)"
	}
	b.send(chat, fmt.Sprintf("Найден chat_id: %d\ntype: %s\ntitle: %s\nusername: %s\n\n"+
		"Скопируйте chat_id и используйте /addchannel чтобы сохранить канал.",
		from.ID, from.Type, title, username), nil)
}
