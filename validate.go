package main

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var tgMessageURLRe = regexp.MustCompile(`(?i)^https?://t\.me/([^/]+)/(\d+)$`)

// validateButtonURL проверяет ссылку кнопки: либо ссылка на сообщение в
// Telegram (нормализуется к https://t.me/<username>/<id>), либо любой
// http(s)-URL с непустым хостом. Всё остальное некорректно. Никогда не
// паникует, пустая строка некорректна.
func validateButtonURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if m := tgMessageURLRe.FindStringSubmatch(raw); m != nil {
		return fmt.Sprintf("https://t.me/%s/%s", m[1], m[2]), true
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	if parsed.Host == "" {
		return "", false
	}
	return raw, true
}

var (
	rePublicPost  = regexp.MustCompile(`https?://t\.me/([^/]+)/(\d+)`)
	rePrivatePost = regexp.MustCompile(`https?://t\.me/c/(\d+)/(\d+)`)
)

// parsePostLink разбирает ссылку на опубликованный пост. Публичная форма
// t.me/username/123 даёт chatID "@username", приватная t.me/c/<id>/<msg> —
// числовой id с префиксом -100. Приватная форма проверяется первой, иначе
// "c" распознался бы как username.
func parsePostLink(link string) (chatID string, messageID int, ok bool) {
	if m := rePrivatePost.FindStringSubmatch(link); m != nil {
		id, err := strconv.Atoi(m[2])
		if err != nil {
			return "", 0, false
		}
		return "-100" + m[1], id, true
	}
	if m := rePublicPost.FindStringSubmatch(link); m != nil {
		id, err := strconv.Atoi(m[2])
		if err != nil {
			return "", 0, false
		}
		return "@" + m[1], id, true
	}
	return "", 0, false
}
