package main

import (
	"errors"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Transport — граница с Telegram Bot API: отправка и правка сообщений,
// проверка членства. Сессии работают только через этот интерфейс, чтобы
// тесты могли подставить фейк.
type Transport interface {
	SendMessage(chat string, text string, markup *tgbotapi.InlineKeyboardMarkup) (int, error)
	SendPhoto(chat string, fileID, caption string, markup *tgbotapi.InlineKeyboardMarkup) (int, error)
	EditText(chat string, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error
	EditCaption(chat string, messageID int, caption string, markup *tgbotapi.InlineKeyboardMarkup) error
	EditMedia(chat string, messageID int, fileID, caption string) error
	EditMarkup(chat string, messageID int, markup *tgbotapi.InlineKeyboardMarkup) error
	GetChatMemberStatus(chat string, userID int64) (string, error)
	AnswerCallback(callbackID, text string) error
}

type tgTransport struct {
	api *tgbotapi.BotAPI
}

func newTgTransport(api *tgbotapi.BotAPI) Transport {
	return &tgTransport{api: api}
}

// baseChat разбирает идентификатор чата: числовой id либо @username канала.
func (t *tgTransport) baseChat(chat string) tgbotapi.BaseChat {
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		return tgbotapi.BaseChat{ChatID: id}
	}
	return tgbotapi.BaseChat{ChannelUsername: chat}
}

func (t *tgTransport) baseEdit(chat string, messageID int) tgbotapi.BaseEdit {
	base := t.baseChat(chat)
	return tgbotapi.BaseEdit{
		ChatID:          base.ChatID,
		ChannelUsername: base.ChannelUsername,
		MessageID:       messageID,
	}
}

func (t *tgTransport) SendMessage(chat string, text string, markup *tgbotapi.InlineKeyboardMarkup) (int, error) {
	msg := tgbotapi.MessageConfig{
		BaseChat:  t.baseChat(chat),
		Text:      text,
		ParseMode: tgbotapi.ModeHTML,
	}
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (t *tgTransport) SendPhoto(chat string, fileID, caption string, markup *tgbotapi.InlineKeyboardMarkup) (int, error) {
	photo := tgbotapi.PhotoConfig{
		BaseFile: tgbotapi.BaseFile{
			BaseChat: t.baseChat(chat),
			File:     tgbotapi.FileID(fileID),
		},
		Caption:   caption,
		ParseMode: tgbotapi.ModeHTML,
	}
	if markup != nil {
		photo.ReplyMarkup = *markup
	}
	sent, err := t.api.Send(photo)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (t *tgTransport) EditText(chat string, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	base := t.baseEdit(chat, messageID)
	base.ReplyMarkup = markup
	cfg := tgbotapi.EditMessageTextConfig{
		BaseEdit:  base,
		Text:      text,
		ParseMode: tgbotapi.ModeHTML,
	}
	_, err := t.api.Request(cfg)
	return err
}

func (t *tgTransport) EditCaption(chat string, messageID int, caption string, markup *tgbotapi.InlineKeyboardMarkup) error {
	base := t.baseEdit(chat, messageID)
	base.ReplyMarkup = markup
	cfg := tgbotapi.EditMessageCaptionConfig{
		BaseEdit:  base,
		Caption:   caption,
		ParseMode: tgbotapi.ModeHTML,
	}
	_, err := t.api.Request(cfg)
	return err
}

func (t *tgTransport) EditMedia(chat string, messageID int, fileID, caption string) error {
	media := tgbotapi.NewInputMediaPhoto(tgbotapi.FileID(fileID))
	if caption != "" {
		media.Caption = caption
		media.ParseMode = tgbotapi.ModeHTML
	}
	cfg := tgbotapi.EditMessageMediaConfig{
		BaseEdit: t.baseEdit(chat, messageID),
		Media:    media,
	}
	_, err := t.api.Request(cfg)
	return err
}

func (t *tgTransport) EditMarkup(chat string, messageID int, markup *tgbotapi.InlineKeyboardMarkup) error {
	base := t.baseEdit(chat, messageID)
	base.ReplyMarkup = markup
	cfg := tgbotapi.EditMessageReplyMarkupConfig{BaseEdit: base}
	_, err := t.api.Request(cfg)
	return err
}

func (t *tgTransport) GetChatMemberStatus(chat string, userID int64) (string, error) {
	cfg := tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{UserID: userID},
	}
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		cfg.ChatID = id
	} else {
		cfg.SuperGroupUsername = chat
	}
	member, err := t.api.GetChatMember(cfg)
	if err != nil {
		return "", err
	}
	return member.Status, nil
}

func (t *tgTransport) AnswerCallback(callbackID, text string) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	_, err := t.api.Request(cb)
	return err
}

// isAdminStatus — статус участника, дающий право редактировать сообщения.
func isAdminStatus(status string) bool {
	return status == "creator" || status == "administrator"
}

// errIsForbidden — бот не может писать/редактировать (нет прав или не в чате).
func errIsForbidden(err error) bool {
	var tgErr *tgbotapi.Error
	return errors.As(err, &tgErr) && tgErr.Code == 403
}

// errIsBadRequest — Telegram отклонил сам запрос.
func errIsBadRequest(err error) bool {
	var tgErr *tgbotapi.Error
	return errors.As(err, &tgErr) && tgErr.Code == 400
}

// shortErr — краткий текст ошибки для оператора; полный идёт в лог.
func shortErr(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}
