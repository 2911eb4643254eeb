package main

import (
	"fmt"
	"strings"
	"time"
)

// Статусы поста.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// zeroWidthSpace — плейсхолдер тела: Telegram отклоняет полностью пустое
// сообщение.
const zeroWidthSpace = "​"

// Пределы Telegram на длину тела (проверяются до отправки).
const (
	maxCaptionLen = 1024
	maxTextLen    = 4096
)

// Post — черновик или опубликованный пост.
type Post struct {
	ID                 int64
	AuthorID           int64
	Text               string
	PhotoFileID        string
	Keyboard           Keyboard
	Status             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	PublishedMessageID int
	PublishedLink      string
	PublishedChannel   string
}

// Channel — сохранённый канал для публикации.
type Channel struct {
	ID        int64
	ChatID    string
	Title     string
	AddedBy   int64
	CreatedAt time.Time
}

// snippet сокращает текст для списков черновиков.
func snippet(text string, max int) string {
	if text == "" {
		return "(пустой)"
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

// bodyForSend возвращает текст для отправки: полностью пустой пост (ни
// текста, ни фото) заменяется на zero-width плейсхолдер.
func (p *Post) bodyForSend() string {
	if p.Text == "" && p.PhotoFileID == "" {
		return zeroWidthSpace
	}
	return p.Text
}

// publishedLink строит каноническую ссылку на опубликованное сообщение.
// Публичный канал (@username) — t.me/username/<id>; числовой id — форма
// t.me/c/ со срезанным префиксом -100 (или минусом).
func publishedLink(channelID string, messageID int) string {
	if strings.HasPrefix(channelID, "@") {
		return fmt.Sprintf("https://t.me/%s/%d", strings.TrimPrefix(channelID, "@"), messageID)
	}
	short := channelID
	if strings.HasPrefix(short, "-100") {
		short = short[4:]
	} else {
		short = strings.TrimPrefix(short, "-")
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", short, messageID)
}
