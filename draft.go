package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// draftState — чего сессия черновика ждёт от оператора.
type draftState int

const (
	draftIdle draftState = iota
	draftAwaitText
	draftAwaitNewText
	draftAwaitNewPhoto
	draftAwaitNewChannel
	draftAwaitKbRowIndex
	draftAwaitButtonInput
	draftAwaitDeleteCoords
	draftAwaitEditCoords
	draftAwaitNewButtonInput
	draftAwaitMoveSource
	draftAwaitMoveTarget
	draftAwaitFormatCols
)

// draftSession — рабочая копия поста плюс состояние диалога.
// Координаты ниже валидны только в соответствующем state.
type draftSession struct {
	post    *Post
	state   draftState
	channel string // канал, выбранный для этой сессии; пусто — из конфига

	targetRow        int // строка для добавления кнопки, -1 — новая
	editRow, editCol int
	moveRow, moveCol int
}

func row(btns ...tgbotapi.InlineKeyboardButton) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(btns...)
}

func btn(text, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

func postMenu() *tgbotapi.InlineKeyboardMarkup {
	m := tgbotapi.NewInlineKeyboardMarkup(
		row(btn("✏️ Редактировать текст", "edit_text"), btn("🗑️ Удалить текст", "delete_text")),
		row(btn("🖼️ Редактировать фото", "edit_photo"), btn("🗑️ Удалить фото", "delete_photo")),
		row(btn("🔧 Редактировать клавиатуру", "edit_keyboard"), btn("👁️ Предпросмотр", "preview")),
		row(btn("📢 Выбрать канал", "choose_channel"), btn("💾 Сохранить черновик", "save_draft")),
		row(btn("🚀 Опубликовать", "publish")),
	)
	return &m
}

func postEditMenu() *tgbotapi.InlineKeyboardMarkup {
	m := tgbotapi.NewInlineKeyboardMarkup(
		row(btn("Редактировать текст", "edit_text")),
		row(btn("Редактировать фото", "edit_photo")),
		row(btn("Редактировать клавиатуру", "edit_keyboard")),
		row(btn("Назад", "kb_back")),
	)
	return &m
}

func keyboardEditorMenu() *tgbotapi.InlineKeyboardMarkup {
	m := tgbotapi.NewInlineKeyboardMarkup(
		row(btn("➕ Добавить строку", "kb_add_row")),
		row(btn("➕ Добавить кнопку", "kb_add_button")),
		row(btn("🗑️ Удалить кнопку", "kb_select_delete")),
		row(btn("✏️ Редактировать кнопку", "kb_select_edit")),
		row(btn("🔀 Переместить кнопку", "kb_select_move")),
		row(btn("▦ Форматировать в N колонок", "kb_format")),
		row(btn("👁️ Предпросмотр клавиатуры", "kb_preview")),
		row(btn("◀️ Назад", "kb_back")),
	)
	return &m
}

func previewOptionsMenu() *tgbotapi.InlineKeyboardMarkup {
	m := tgbotapi.NewInlineKeyboardMarkup(
		row(btn("🚀 Опубликовать", "publish")),
		row(btn("💾 Сохранить черновик", "save_draft")),
		row(btn("✏️ Редактировать", "edit_post")),
	)
	return &m
}

func draftOpenMenu(postID int64) *tgbotapi.InlineKeyboardMarkup {
	m := tgbotapi.NewInlineKeyboardMarkup(
		row(btn("Редактировать текст", "edit_text")),
		row(btn("Редактировать фото", "edit_photo")),
		row(btn("Удалить текст", "delete_text")),
		row(btn("Удалить фото", "delete_photo")),
		row(btn("Редактировать клавиатуру", "edit_keyboard")),
		row(btn("Предпросмотр", "preview")),
		row(btn("Опубликовать", "publish")),
		row(btn("Удалить черновик", "delete_draft:"+strconv.FormatInt(postID, 10))),
	)
	return &m
}

// cbRef — откуда пришёл callback: кто нажал и где живёт сообщение-меню.
type cbRef struct {
	id        string
	userID    int64
	chat      string
	messageID int
}

func (b *Bot) answer(cb cbRef, text string) {
	if err := b.tg.AnswerCallback(cb.id, text); err != nil {
		slog.Debug("ответ на callback не доставлен", "err", err)
	}
}

func (b *Bot) send(chat, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if _, err := b.tg.SendMessage(chat, text, markup); err != nil {
		slog.Error("не удалось отправить сообщение", "chat", chat, "err", err)
	}
}

// editMenu правит сообщение-меню. У сообщения с фото нет text, поэтому
// при bad request пробуем caption, а если и это не вышло — шлём новое.
func (b *Bot) editMenu(cb cbRef, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	err := b.tg.EditText(cb.chat, cb.messageID, text, markup)
	if err == nil {
		return
	}
	if errIsBadRequest(err) {
		if b.tg.EditCaption(cb.chat, cb.messageID, text, markup) == nil {
			return
		}
	} else {
		slog.Error("не удалось отредактировать меню", "err", err)
	}
	b.send(cb.chat, text, markup)
}

// buildValidatedMarkup валидирует клавиатуру и собирает разметку.
// Превышение лимита callback_data не ошибка: билдер вынесет токен
// в payload-хранилище. Остальные ошибки возвращаются оператору.
func (b *Bot) buildValidatedMarkup(kb Keyboard) (*tgbotapi.InlineKeyboardMarkup, error) {
	if len(kb) == 0 {
		return nil, nil
	}
	if err := kb.Validate(); err != nil {
		if !errors.Is(err, ErrCallbackTooLong) {
			return nil, err
		}
		slog.Warn("длинный callback_data уйдёт в payload-хранилище", "err", err)
	}
	return BuildMarkup(kb, b.repo), nil
}

// --- Команды ---

func (b *Bot) cmdStart(chat string) {
	b.send(chat, "Бот для подготовки и публикации постов с inline-клавиатурами.\n\n"+
		"/newpost — новый черновик\n"+
		"/drafts — список черновиков\n"+
		"/editpost <ссылка или id> — правка опубликованного поста\n"+
		"/channels — сохранённые каналы\n"+
		"/addchannel — добавить канал\n"+
		"/cancel — отменить текущую операцию", nil)
}

func (b *Bot) cmdNewPost(userID int64, chat string) {
	slog.Info("новый черновик", "user", userID)
	b.sessions.setDraft(userID, &draftSession{
		post:  &Post{AuthorID: userID, Status: StatusDraft},
		state: draftAwaitText,
	})
	b.send(chat, "Создаём новый черновик.\n\n"+
		"Отправьте текст поста (или /cancel).\n\n"+
		"Подсказки:\n"+
		"- Пост без текста: не отправляйте текст и нажмите «Предпросмотр» → «Опубликовать» или используйте кнопку «Удалить текст».\n"+
		"- Пост только с фото: отправьте фото и не добавляйте текст.\n"+
		"- Полностью пустой пост: нажмите «Предпросмотр» → «Опубликовать».\n"+
		"- Для добавления канала используйте /addchannel. Список — /channels.\n", nil)
}

func (b *Bot) cmdCancel(userID int64, chat string) {
	dropped := b.sessions.deleteDraft(userID)
	if b.sessions.deleteEdit(userID) {
		dropped = true
	}
	if dropped {
		b.send(chat, "Действие отменено.", nil)
	} else {
		b.send(chat, "У вас нет активных операций.", nil)
	}
}

func (b *Bot) cmdDrafts(userID int64, chat string) {
	items, err := b.repo.ListPosts(userID, "")
	if err != nil {
		slog.Error("не удалось получить черновики", "user", userID, "err", err)
		b.send(chat, "Не удалось загрузить список черновиков.", nil)
		return
	}
	if len(items) == 0 {
		b.send(chat, "У вас нет черновиков.", nil)
		return
	}
	var lines []string
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range items {
		lines = append(lines, fmt.Sprintf("#%d [%s] %s", p.ID, p.Status, snippet(p.Text, 40)))
		rows = append(rows, row(btn(fmt.Sprintf("Открыть #%d", p.ID), "open_draft:"+strconv.FormatInt(p.ID, 10))))
	}
	m := tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(chat, strings.Join(lines, "\n"), &m)
}

func (b *Bot) cmdChannels(chat string) {
	items, err := b.repo.ListChannels()
	if err != nil {
		slog.Error("не удалось получить каналы", "err", err)
		b.send(chat, "Не удалось загрузить список каналов.", nil)
		return
	}
	if len(items) == 0 {
		b.send(chat, "Список каналов пуст. Добавьте канал командой /addchannel.", nil)
		return
	}
	var lines []string
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, ch := range items {
		line := fmt.Sprintf("%d: %s", ch.ID, ch.ChatID)
		if ch.Title != "" {
			line += " (" + ch.Title + ")"
		}
		lines = append(lines, line)
		rows = append(rows, row(
			btn("Выбрать "+ch.ChatID, "select_channel:"+ch.ChatID),
			btn("Удалить "+ch.ChatID, "delete_channel:"+ch.ChatID),
		))
	}
	m := tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(chat, strings.Join(lines, "\n"), &m)
}

func (b *Bot) cmdAddChannel(userID int64, chat string) {
	sess := b.sessions.ensureDraft(userID)
	sess.state = draftAwaitNewChannel
	b.send(chat, "Отправьте идентификатор канала (например @channelusername или -1001234567890). "+
		"Можно также указать название на второй строке.\nФормат:\n@channelusername\nНазвание (опционально)", nil)
}

// --- Входящие сообщения ---

// handleDraftPhoto сохраняет фото в рабочей копии. Возвращает false,
// если активной сессии нет и апдейт должен пройти дальше.
func (b *Bot) handleDraftPhoto(userID int64, chat, fileID string) bool {
	sess, ok := b.sessions.draft(userID)
	if !ok {
		return false
	}
	sess.post.PhotoFileID = fileID
	if sess.state == draftAwaitNewPhoto {
		sess.state = draftIdle
		b.send(chat, "Фото обновлено.", postMenu())
		return true
	}
	sess.state = draftIdle
	b.send(chat, "Фото сохранено в черновике.", postMenu())
	return true
}

// handleDraftText — диспетчер текстового ввода по состоянию сессии.
func (b *Bot) handleDraftText(userID int64, chat, text string) bool {
	sess, ok := b.sessions.draft(userID)
	if !ok {
		return false
	}
	post := sess.post

	switch sess.state {
	case draftAwaitNewChannel:
		lines := strings.Split(text, "\n")
		chatID := strings.TrimSpace(lines[0])
		if chatID == "" {
			b.send(chat, "Пустой ввод. Попробуйте снова.", nil)
			return true
		}
		title := ""
		if len(lines) > 1 {
			title = strings.TrimSpace(lines[1])
		}
		if _, exists := b.repo.GetChannelByChatID(chatID); exists {
			b.send(chat, "Такой канал уже добавлен.", nil)
		} else if _, err := b.repo.CreateChannel(chatID, title, userID); err != nil {
			slog.Error("не удалось сохранить канал", "chat_id", chatID, "err", err)
			b.send(chat, "Не удалось сохранить канал.", nil)
		} else {
			b.send(chat, fmt.Sprintf("Канал %s сохранён.", chatID), nil)
		}
		sess.state = draftIdle

	case draftAwaitKbRowIndex:
		idx, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			b.send(chat, "Ожидался числовой индекс строки. Попробуйте снова.", nil)
			return true
		}
		sess.targetRow = idx
		sess.state = draftAwaitButtonInput
		b.send(chat, "Теперь отправьте кнопку в формате:\nТекст кнопки\nhttps://example.com или https://t.me/channel/123", nil)

	case draftAwaitButtonInput:
		button, err := parseButtonInput(text)
		if err != nil {
			b.send(chat, err.Error(), nil)
			return true
		}
		post.Keyboard = AddButton(post.Keyboard, sess.targetRow, button)
		sess.state = draftIdle
		b.send(chat, "Кнопка добавлена.", postMenu())

	case draftAwaitDeleteCoords:
		r, c, ok := parseCoords(text)
		if !ok {
			b.send(chat, "Неверный формат. Используйте: row col", nil)
			return true
		}
		post.Keyboard = DeleteButton(post.Keyboard, r, c)
		sess.state = draftIdle
		b.send(chat, "Кнопка удалена (если координаты корректны).", postMenu())

	case draftAwaitEditCoords:
		r, c, ok := parseCoords(text)
		if !ok {
			b.send(chat, "Неверный формат. row col", nil)
			return true
		}
		if !post.Keyboard.inRange(r, c) {
			sess.state = draftIdle
			b.send(chat, "Координаты вне диапазона.", nil)
			return true
		}
		sess.editRow, sess.editCol = r, c
		sess.state = draftAwaitNewButtonInput
		b.send(chat, "Отправьте новую кнопку в формате:\nТекст кнопки\nhttps://example.com", nil)

	case draftAwaitNewButtonInput:
		button, err := parseButtonInput(text)
		if err != nil {
			b.send(chat, err.Error(), nil)
			return true
		}
		post.Keyboard = EditButton(post.Keyboard, sess.editRow, sess.editCol, button)
		sess.state = draftIdle
		b.send(chat, "Кнопка обновлена.", postMenu())

	case draftAwaitMoveSource:
		r, c, ok := parseCoords(text)
		if !ok {
			b.send(chat, "Неверный формат. row col", nil)
			return true
		}
		sess.moveRow, sess.moveCol = r, c
		sess.state = draftAwaitMoveTarget
		b.send(chat, "Теперь отправьте координаты целевой позиции в формате: row col", nil)

	case draftAwaitMoveTarget:
		r, c, ok := parseCoords(text)
		if !ok {
			b.send(chat, "Неверный формат. row col", nil)
			return true
		}
		post.Keyboard = MoveButton(post.Keyboard, sess.moveRow, sess.moveCol, r, c)
		sess.state = draftIdle
		b.send(chat, "Кнопка перемещена.", postMenu())

	case draftAwaitFormatCols:
		cols, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			b.send(chat, "Неверный ввод. Введите число > 0.", nil)
			return true
		}
		if cols <= 0 {
			b.send(chat, "Количество колонок должно быть > 0.", nil)
			return true
		}
		post.Keyboard = ReformatColumns(post.Keyboard, cols)
		sess.state = draftIdle
		b.send(chat, fmt.Sprintf("Клавиатура отформатирована в %d колонок.", cols), postMenu())

	case draftAwaitText:
		post.Text = text
		sess.state = draftIdle
		b.send(chat, "Текст сохранён.", postMenu())

	case draftAwaitNewText:
		post.Text = text
		sess.state = draftIdle
		b.send(chat, "Текст обновлён.", postMenu())

	default:
		// idle: быстрый апдейт текста без смены состояния
		post.Text = text
		b.send(chat, "Текст обновлён.", postMenu())
	}
	return true
}

// --- Callback'и черновика ---

// handleDraftCallback обрабатывает нажатия меню черновика.
// Возвращает false для callback'ов чужих подсистем.
func (b *Bot) handleDraftCallback(cb cbRef, data string) bool {
	switch {
	case data == "edit_keyboard":
		b.answer(cb, "")
		sess := b.sessions.ensureDraft(cb.userID)
		text := "Редактор клавиатуры\n\n"
		if len(sess.post.Keyboard) == 0 {
			text += "(пустая)"
		} else {
			text += sess.post.Keyboard.renderSummary()
		}
		b.editMenu(cb, text, keyboardEditorMenu())

	case data == "kb_add_row":
		b.answer(cb, "Добавлена новая строка.")
		sess := b.sessions.ensureDraft(cb.userID)
		sess.post.Keyboard = AddRow(sess.post.Keyboard)
		b.editMenu(cb, "Новая строка добавлена.", postMenu())

	case data == "kb_add_button":
		b.answer(cb, "")
		sess := b.sessions.ensureDraft(cb.userID)
		sess.state = draftAwaitKbRowIndex
		b.send(cb.chat, "Укажите индекс строки для добавления кнопки (0..n-1). Отправьте -1 для новой строки.\n"+
			"Затем отправьте кнопку в формате:\nТекст\nURL", nil)

	case data == "kb_preview":
		sess, ok := b.sessions.draft(cb.userID)
		if !ok {
			b.answer(cb, "Сессия не найдена")
			return true
		}
		markup, err := b.buildValidatedMarkup(sess.post.Keyboard)
		if err != nil {
			b.answer(cb, err.Error())
			return true
		}
		b.answer(cb, "")
		b.send(cb.chat, "Предпросмотр клавиатуры:", markup)

	case data == "kb_select_delete":
		b.kbSelectCoords(cb, draftAwaitDeleteCoords, "Отправьте координаты кнопки для удаления: row col (например: 0 1)")

	case data == "kb_select_edit":
		b.kbSelectCoords(cb, draftAwaitEditCoords, "Отправьте координаты кнопки для редактирования: row col (например: 0 1)")

	case data == "kb_select_move":
		b.kbSelectCoords(cb, draftAwaitMoveSource, "Отправьте координаты источника: row col (например: 0 1)")

	case data == "kb_format":
		b.answer(cb, "")
		sess := b.sessions.ensureDraft(cb.userID)
		sess.state = draftAwaitFormatCols
		b.send(cb.chat, "Отправьте желаемое количество колонок (число > 0), например: 2", nil)

	case data == "kb_back":
		b.answer(cb, "")
		b.editMenu(cb, "Вернулись в меню поста.", postMenu())

	case data == "preview":
		b.previewDraft(cb)

	case data == "save_draft":
		b.saveDraft(cb)

	case data == "publish":
		b.publishDraft(cb)

	case data == "edit_post":
		b.answer(cb, "")
		if _, ok := b.sessions.draft(cb.userID); !ok {
			b.answer(cb, "Сессия не найдена")
			return true
		}
		b.editMenu(cb, "Меню редактирования поста:", postEditMenu())

	case data == "edit_text":
		b.answer(cb, "")
		sess, ok := b.sessions.draft(cb.userID)
		if !ok {
			b.answer(cb, "Сессия не найдена")
			return true
		}
		sess.state = draftAwaitNewText
		b.send(cb.chat, "Отправьте новый текст поста.", nil)

	case data == "edit_photo":
		b.answer(cb, "")
		sess, ok := b.sessions.draft(cb.userID)
		if !ok {
			b.answer(cb, "Сессия не найдена")
			return true
		}
		sess.state = draftAwaitNewPhoto
		b.send(cb.chat, "Отправьте новое фото или /cancel.", nil)

	case data == "delete_text":
		b.answer(cb, "")
		sess, ok := b.sessions.draft(cb.userID)
		if !ok {
			b.answer(cb, "Сессия не найдена")
			return true
		}
		sess.post.Text = ""
		b.editMenu(cb, "Текст удалён.", postMenu())

	case data == "delete_photo":
		b.answer(cb, "")
		sess, ok := b.sessions.draft(cb.userID)
		if !ok {
			b.answer(cb, "Сессия не найдена")
			return true
		}
		sess.post.PhotoFileID = ""
		b.editMenu(cb, "Фото удалено.", postMenu())

	case data == "choose_channel":
		items, err := b.repo.ListChannels()
		if err != nil || len(items) == 0 {
			b.answer(cb, "Нет сохранённых каналов. Добавьте через /addchannel")
			return true
		}
		b.answer(cb, "")
		var rows [][]tgbotapi.InlineKeyboardButton
		for _, ch := range items {
			rows = append(rows, row(btn(ch.ChatID, "select_channel:"+ch.ChatID)))
		}
		m := tgbotapi.NewInlineKeyboardMarkup(rows...)
		b.send(cb.chat, "Выберите канал для публикации:", &m)

	case strings.HasPrefix(data, "select_channel:"):
		b.answer(cb, "")
		chatID := strings.TrimPrefix(data, "select_channel:")
		sess := b.sessions.ensureDraft(cb.userID)
		sess.channel = chatID
		b.editMenu(cb, fmt.Sprintf("Канал %s выбран для публикации.", chatID), postMenu())

	case strings.HasPrefix(data, "delete_channel:"):
		b.answer(cb, "")
		chatID := strings.TrimPrefix(data, "delete_channel:")
		if err := b.repo.DeleteChannel(chatID); err != nil {
			slog.Error("не удалось удалить канал", "chat_id", chatID, "err", err)
		}
		b.send(cb.chat, fmt.Sprintf("Канал %s удалён.", chatID), nil)

	case strings.HasPrefix(data, "open_draft:"):
		b.openDraft(cb, strings.TrimPrefix(data, "open_draft:"))

	case strings.HasPrefix(data, "delete_draft:"):
		b.deleteDraft(cb, strings.TrimPrefix(data, "delete_draft:"))

	case strings.HasPrefix(data, "kb_payload:"):
		b.handlePayloadCallback(cb, strings.TrimPrefix(data, "kb_payload:"))

	default:
		return false
	}
	return true
}

// kbSelectCoords — общий вход в координатные состояния редактора.
func (b *Bot) kbSelectCoords(cb cbRef, next draftState, prompt string) {
	sess, ok := b.sessions.draft(cb.userID)
	if !ok {
		b.answer(cb, "Сессия не найдена")
		return
	}
	if len(sess.post.Keyboard) == 0 {
		b.answer(cb, "Клавиатура пустая")
		return
	}
	b.answer(cb, "")
	sess.state = next
	b.send(cb.chat, prompt, nil)
}

func (b *Bot) previewDraft(cb cbRef) {
	sess, ok := b.sessions.draft(cb.userID)
	if !ok {
		b.answer(cb, "Сессия не найдена")
		return
	}
	markup, err := b.buildValidatedMarkup(sess.post.Keyboard)
	if err != nil {
		b.answer(cb, err.Error())
		return
	}
	b.answer(cb, "")
	post := sess.post
	operator := strconv.FormatInt(cb.userID, 10)
	if post.PhotoFileID != "" {
		_, err = b.tg.SendPhoto(operator, post.PhotoFileID, post.Text, markup)
	} else {
		_, err = b.tg.SendMessage(operator, post.bodyForSend(), markup)
	}
	if err != nil {
		slog.Error("предпросмотр не отправлен", "user", cb.userID, "err", err)
		b.answer(cb, "Не удалось отправить предпросмотр (возможно, бот не может писать вам).")
		return
	}
	b.editMenu(cb, "Предпросмотр отправлен вам в ЛС.", previewOptionsMenu())
}

func (b *Bot) saveDraft(cb cbRef) {
	sess, ok := b.sessions.draft(cb.userID)
	if !ok {
		b.answer(cb, "Сессия не найдена")
		return
	}
	b.answer(cb, "")
	post := sess.post
	if post.ID != 0 {
		kbJSON := post.Keyboard.MarshalJSONString()
		upd := PostUpdate{
			Text:         &post.Text,
			PhotoFileID:  &post.PhotoFileID,
			KeyboardJSON: &kbJSON,
			Status:       &post.Status,
		}
		if err := b.repo.UpdatePost(post.ID, upd); err != nil {
			slog.Error("не удалось обновить черновик", "id", post.ID, "err", err)
			b.answer(cb, "Не удалось сохранить черновик.")
			return
		}
		// Перечитываем сохранённую запись, чтобы сессия держала каноничную копию.
		if saved, ok := b.repo.GetPost(post.ID); ok {
			sess.post = saved
		}
	} else {
		if err := b.repo.CreatePost(post); err != nil {
			slog.Error("не удалось создать черновик", "user", cb.userID, "err", err)
			b.answer(cb, "Не удалось сохранить черновик.")
			return
		}
	}
	b.editMenu(cb, fmt.Sprintf("Черновик сохранён (id=%d).", sess.post.ID), postMenu())
}

func (b *Bot) publishDraft(cb cbRef) {
	sess, ok := b.sessions.draft(cb.userID)
	if !ok {
		b.answer(cb, "Сессия не найдена")
		return
	}
	b.answer(cb, "")
	post := sess.post

	channel := sess.channel
	if channel == "" {
		channel = b.cfg.ChannelID
	}
	if channel == "" {
		b.answer(cb, "Канал для публикации не настроен. Выберите канал или задайте CHANNEL_ID.")
		return
	}

	markup, err := b.buildValidatedMarkup(post.Keyboard)
	if err != nil {
		b.answer(cb, err.Error())
		return
	}

	// Быстрые предикаты до похода в сеть.
	var messageID int
	if post.PhotoFileID != "" {
		if utf8.RuneCountInString(post.Text) > maxCaptionLen {
			b.answer(cb, "Ошибка: подпись к фото слишком длинная (максимум 1024 символа).")
			return
		}
		messageID, err = b.tg.SendPhoto(channel, post.PhotoFileID, post.Text, markup)
	} else {
		body := post.bodyForSend()
		if utf8.RuneCountInString(body) > maxTextLen {
			b.answer(cb, "Ошибка: текст сообщения слишком длинный (максимум 4096 символов).")
			return
		}
		messageID, err = b.tg.SendMessage(channel, body, markup)
	}
	// Сессия переживает любую ошибку отправки: оператор правит и повторяет.
	if err != nil {
		switch {
		case errIsForbidden(err):
			slog.Error("бот не может писать в канал", "channel", channel, "err", err)
			b.answer(cb, "Ошибка: бот не является участником канала или не имеет прав отправлять сообщения. "+
				"Добавьте бота в канал и выдайте права отправки сообщений.")
		case errIsBadRequest(err):
			slog.Error("telegram отклонил публикацию", "channel", channel, "err", err)
			b.answer(cb, "Ошибка при отправке: "+shortErr(err))
			b.editMenu(cb, fmt.Sprintf("Ошибка при публикации: %s\n\nПодробности в логах.", shortErr(err)), nil)
		default:
			slog.Error("неожиданная ошибка при публикации", "channel", channel, "err", err)
			b.answer(cb, "Неожиданная ошибка при публикации. Проверьте логи сервера.")
		}
		return
	}

	link := publishedLink(channel, messageID)
	post.Status = StatusPublished
	post.PublishedMessageID = messageID
	post.PublishedLink = link
	post.PublishedChannel = channel
	if post.ID != 0 {
		status := StatusPublished
		upd := PostUpdate{
			Status:             &status,
			PublishedMessageID: &messageID,
			PublishedLink:      &link,
			PublishedChannel:   &channel,
		}
		if err := b.repo.UpdatePost(post.ID, upd); err != nil {
			slog.Error("пост отправлен, но статус не сохранён", "id", post.ID, "err", err)
		}
	} else if err := b.repo.CreatePost(post); err != nil {
		slog.Error("пост отправлен, но запись не создана", "err", err)
	}
	b.editMenu(cb, "Пост опубликован.", nil)
}

func (b *Bot) openDraft(cb cbRef, rawID string) {
	b.answer(cb, "")
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		b.answer(cb, "Неверный id")
		return
	}
	post, ok := b.repo.GetPost(id)
	if !ok {
		b.answer(cb, "Черновик не найден")
		return
	}
	b.sessions.setDraft(cb.userID, &draftSession{post: post, state: draftIdle})
	menu := draftOpenMenu(post.ID)
	if post.PhotoFileID != "" {
		_, err = b.tg.SendPhoto(cb.chat, post.PhotoFileID, post.Text, menu)
	} else {
		body := post.Text
		if body == "" {
			body = "(пустой пост)"
		}
		_, err = b.tg.SendMessage(cb.chat, body, menu)
	}
	if err != nil {
		slog.Error("не удалось показать черновик", "id", id, "err", err)
		b.answer(cb, "Не удалось показать черновик (возможно, бот не может писать вам).")
	}
}

func (b *Bot) deleteDraft(cb cbRef, rawID string) {
	b.answer(cb, "")
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		b.answer(cb, "Неверный id")
		return
	}
	if err := b.repo.DeletePost(id); err != nil {
		slog.Error("не удалось удалить черновик", "id", id, "err", err)
		b.answer(cb, "Не удалось удалить черновик.")
		return
	}
	b.editMenu(cb, fmt.Sprintf("Черновик #%d удалён.", id), nil)
}

// handlePayloadCallback достаёт исходный callback из хранилища и
// перенаправляет известные префиксы обычному диспетчеру.
func (b *Bot) handlePayloadCallback(cb cbRef, payloadID string) {
	data, ok := b.repo.LoadPayload(payloadID)
	if !ok {
		b.answer(cb, "Данные устарели или не найдены.")
		return
	}
	original := data["callback"]
	if original == "" {
		original = data["data"]
	}
	if original == "" {
		b.answer(cb, "Неверные данные для кнопки.")
		return
	}
	for _, prefix := range []string{"open_draft:", "delete_draft:", "select_channel:", "delete_channel:"} {
		if strings.HasPrefix(original, prefix) {
			b.handleDraftCallback(cb, original)
			return
		}
	}
	b.answer(cb, "Нажата кнопка: "+original)
}
