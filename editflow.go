package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// editAwait — чего сессия правки опубликованного поста ждёт от оператора.
type editAwait int

const (
	editAwaitNone editAwait = iota
	editAwaitText
	editAwaitPhoto
	editAwaitKbRowIndex
	editAwaitButtonInput
	editAwaitDeleteCoords
	editAwaitEditCoords
	editAwaitNewButtonInput
	editAwaitMoveSource
	editAwaitMoveTarget
	editAwaitFormatCols
)

// editSession — стейджинг-правка живого сообщения. Держит оригинальные
// значения и рабочую копию; живое сообщение не трогается до apply_*.
// nil-указатели отличают «не задано» от пустой строки.
type editSession struct {
	postID    int64 // 0 — записи в БД нет
	chat      string
	messageID int

	origText  *string
	origPhoto *string
	origKb    Keyboard

	text     *string
	photo    *string
	kb       Keyboard
	kbStaged bool

	awaiting         editAwait
	targetRow        int
	editRow, editCol int
	moveRow, moveCol int
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// editRef — хвост callback_data меню: "<postID>|<chat>|<messageID>".
// Позволяет восстановить контекст, если сессия потерялась.
func (s *editSession) ref() string {
	pid := ""
	if s.postID != 0 {
		pid = strconv.FormatInt(s.postID, 10)
	}
	return fmt.Sprintf("%s|%s|%d", pid, s.chat, s.messageID)
}

func mainEditMenu(ref string) *tgbotapi.InlineKeyboardMarkup {
	m := tgbotapi.NewInlineKeyboardMarkup(
		row(btn("✏️ Редактировать текст", "editpost|text|"+ref)),
		row(btn("🖼️ Заменить фото", "editpost|photo|"+ref)),
		row(btn("🔧 Редактировать клавиатуру", "editpost|keyboard|"+ref)),
		row(btn("👁️ Предпросмотр (стейдж)", "editpost|preview|"+ref)),
		row(btn("✅ Применить текст", "editpost|apply_text|"+ref), btn("✅ Применить фото", "editpost|apply_photo|"+ref)),
		row(btn("✅ Применить клавиатуру", "editpost|apply_keyboard|"+ref)),
		row(btn("🚀 Применить все изменения", "editpost|apply_all|"+ref)),
		row(btn("◀️ Отмена", "editpost|cancel")),
	)
	return &m
}

func kbEditorMenu() *tgbotapi.InlineKeyboardMarkup {
	m := tgbotapi.NewInlineKeyboardMarkup(
		row(btn("➕ Добавить строку", "kbeditor|add_row")),
		row(btn("➕ Добавить кнопку", "kbeditor|add_button")),
		row(btn("🗑️ Удалить кнопку", "kbeditor|del_button")),
		row(btn("✏️ Редактировать кнопку", "kbeditor|edit_button")),
		row(btn("🔀 Переместить кнопку", "kbeditor|move_button")),
		row(btn("▦ Формат в N колонок", "kbeditor|format")),
		row(btn("👁️ Предпросмотр (стейдж)", "kbeditor|preview")),
		row(btn("💾 Сохранить в сессии (стейдж)", "kbeditor|stage")),
		row(btn("◀️ Назад", "kbeditor|back")),
	)
	return &m
}

// hasURLScheme — вторая строка ввода кнопки считается URL по схеме,
// иначе это callback-токен.
func hasURLScheme(s string) bool {
	for _, p := range []string{"http://", "https://", "tg://", "mailto:"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// parseStagedButton — ослабленный разбор для стейджинг-редактора:
// вторая строка опциональна, URL не нормализуется (проверит предпросмотр).
func parseStagedButton(input string) (Button, bool) {
	lines := strings.Split(input, "\n")
	text := strings.TrimSpace(lines[0])
	if text == "" {
		return Button{}, false
	}
	second := ""
	if len(lines) > 1 {
		second = strings.TrimSpace(lines[1])
	}
	switch {
	case second == "":
		return Button{Text: text}, true
	case hasURLScheme(second):
		return URLButton(text, second), true
	default:
		return ActionButton(text, second), true
	}
}

// --- /editpost ---

// cmdEditPost открывает стейджинг-сессию: по числовому id записи либо по
// ссылке t.me. Правки копятся в сессии и применяются только apply_*.
func (b *Bot) cmdEditPost(userID int64, chat, arg string) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		b.send(chat, "Использование: /editpost <post_id|t.me/username/123|t.me/c/...>", nil)
		return
	}

	var post *Post
	var target string
	var messageID int
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if p, ok := b.repo.GetPost(id); ok {
			post = p
			target = p.PublishedChannel
			messageID = p.PublishedMessageID
			if p.PublishedLink != "" && (target == "" || messageID == 0) {
				if ch, mid, ok := parsePostLink(p.PublishedLink); ok {
					target, messageID = ch, mid
				}
			}
		}
	} else if ch, mid, ok := parsePostLink(arg); ok {
		target, messageID = ch, mid
		if p, ok := b.repo.GetPostByMessage(ch, mid); ok {
			post = p
		}
	}
	if target == "" || messageID == 0 {
		b.send(chat, "Не удалось определить, где опубликован пост. Убедитесь, что заполнены published_channel "+
			"и published_message_id, либо передайте ссылку.", nil)
		return
	}

	status, err := b.tg.GetChatMemberStatus(target, b.selfID)
	if err != nil {
		b.send(chat, "Ошибка при проверке прав бота: "+shortErr(err), nil)
		return
	}
	if !isAdminStatus(status) {
		b.send(chat, "Бот не является администратором/создателем в этом чате — редактирование недоступно.", nil)
		return
	}

	sess := &editSession{chat: target, messageID: messageID, awaiting: editAwaitNone}
	if post != nil {
		sess.postID = post.ID
		t := post.Text
		sess.origText = &t
		if post.PhotoFileID != "" {
			p := post.PhotoFileID
			sess.origPhoto = &p
		}
		sess.origKb = post.Keyboard.Clone()
		sess.text = sess.origText
		sess.photo = sess.origPhoto
		sess.kb = post.Keyboard.Clone()
	}
	b.sessions.setEdit(userID, sess)

	summary := fmt.Sprintf("Текст: %s\n\nКлавиатура:\n%s\n\nФото: %s",
		snippet(strOrEmpty(sess.text), 200),
		sess.kb.renderSummary(),
		map[bool]string{true: "есть", false: "нет"}[sess.photo != nil])
	b.send(chat, "Открыт редактор опубликованного поста (изменения будут применены только после подтверждения).\n\n"+summary,
		mainEditMenu(sess.ref()))
}

// --- Входящие сообщения ---

func (b *Bot) handleEditPhoto(userID int64, chat, fileID string) bool {
	sess, ok := b.sessions.edit(userID)
	if !ok || sess.awaiting != editAwaitPhoto {
		return false
	}
	sess.photo = &fileID
	sess.awaiting = editAwaitNone
	b.send(chat, "Фото сохранено в сессии. Используйте 'Применить фото' или 'Применить все изменения' для публикации.", nil)
	return true
}

// handleEditText — текстовый ввод стейджинг-сессии. Возвращает false,
// когда сессия ничего не ждёт: ввод уйдёт диспетчеру черновика.
func (b *Bot) handleEditText(userID int64, chat, text string) bool {
	sess, ok := b.sessions.edit(userID)
	if !ok || sess.awaiting == editAwaitNone {
		return false
	}

	switch sess.awaiting {
	case editAwaitText:
		t := text
		sess.text = &t
		sess.awaiting = editAwaitNone
		b.send(chat, "Текст сохранён в сессии. Используйте 'Предпросмотр' -> 'Применить текст' или 'Применить все изменения' для публикации.", nil)

	case editAwaitPhoto:
		b.send(chat, "Ожидается фото. Пришлите изображение ещё раз.", nil)

	case editAwaitKbRowIndex:
		idx, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			b.send(chat, "Ожидался числовой индекс. Попробуйте снова.", nil)
			return true
		}
		sess.targetRow = idx
		sess.awaiting = editAwaitButtonInput
		b.send(chat, "Отправьте кнопку в формате (две строки):\nТекст кнопки\nURL или callback_data (оставьте пустым, если не нужно).", nil)

	case editAwaitButtonInput:
		button, ok := parseStagedButton(text)
		if !ok {
			b.send(chat, "Пустой ввод. Попробуйте снова.", nil)
			return true
		}
		sess.kb = AddButton(sess.kb, sess.targetRow, button)
		sess.awaiting = editAwaitNone
		b.send(chat, "Кнопка добавлена в сессию.\n\n"+sess.kb.renderSummary(), kbEditorMenu())

	case editAwaitDeleteCoords:
		r, c, ok := parseCoords(text)
		if !ok {
			b.send(chat, "Неверный формат. Используйте: row col", nil)
			return true
		}
		sess.kb = DeleteButton(sess.kb, r, c)
		sess.awaiting = editAwaitNone
		b.send(chat, "Кнопка удалена из сессии (если координаты корректны).\n\n"+sess.kb.renderSummary(), kbEditorMenu())

	case editAwaitEditCoords:
		r, c, ok := parseCoords(text)
		if !ok {
			b.send(chat, "Неверный формат. row col", nil)
			return true
		}
		if !sess.kb.inRange(r, c) {
			sess.awaiting = editAwaitNone
			b.send(chat, "Координаты вне диапазона.", nil)
			return true
		}
		sess.editRow, sess.editCol = r, c
		sess.awaiting = editAwaitNewButtonInput
		b.send(chat, "Отправьте новую кнопку в формате (две строки):\nТекст кнопки\nURL или callback_data (если нужно).", nil)

	case editAwaitNewButtonInput:
		button, ok := parseStagedButton(text)
		if !ok {
			b.send(chat, "Пустой ввод.", nil)
			return true
		}
		sess.kb = EditButton(sess.kb, sess.editRow, sess.editCol, button)
		sess.awaiting = editAwaitNone
		b.send(chat, "Кнопка обновлена в сессии.\n\n"+sess.kb.renderSummary(), kbEditorMenu())

	case editAwaitMoveSource:
		r, c, ok := parseCoords(text)
		if !ok {
			b.send(chat, "Неверный формат. row col", nil)
			return true
		}
		sess.moveRow, sess.moveCol = r, c
		sess.awaiting = editAwaitMoveTarget
		b.send(chat, "Теперь отправьте координаты целевой позиции в формате: row col", nil)

	case editAwaitMoveTarget:
		r, c, ok := parseCoords(text)
		if !ok {
			b.send(chat, "Неверный формат. row col", nil)
			return true
		}
		sess.kb = MoveButton(sess.kb, sess.moveRow, sess.moveCol, r, c)
		sess.awaiting = editAwaitNone
		b.send(chat, "Кнопка перемещена в сессии.\n\n"+sess.kb.renderSummary(), kbEditorMenu())

	case editAwaitFormatCols:
		cols, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			b.send(chat, "Неверный ввод. Введите число > 0.", nil)
			return true
		}
		if cols <= 0 {
			b.send(chat, "Количество колонок должно быть > 0.", nil)
			return true
		}
		sess.kb = ReformatColumns(sess.kb, cols)
		sess.awaiting = editAwaitNone
		b.send(chat, fmt.Sprintf("Клавиатура отформатирована в %d колонок (в сессии).\n\n%s", cols, sess.kb.renderSummary()), kbEditorMenu())
	}
	return true
}

// --- Callback'и ---

// handleEditCallback — маршрутизация editpost|... и kbeditor|... callback'ов.
func (b *Bot) handleEditCallback(cb cbRef, data string) bool {
	switch {
	case strings.HasPrefix(data, "editpost|"):
		b.editPostAction(cb, data)
	case strings.HasPrefix(data, "kbeditor|"):
		b.kbEditorAction(cb, strings.TrimPrefix(data, "kbeditor|"))
	default:
		return false
	}
	return true
}

func (b *Bot) editPostAction(cb cbRef, data string) {
	parts := strings.Split(data, "|")
	if len(parts) >= 2 && parts[1] == "cancel" {
		b.sessions.deleteEdit(cb.userID)
		b.answer(cb, "")
		b.editMenu(cb, "Редактирование отменено.", nil)
		return
	}
	if len(parts) < 5 {
		b.answer(cb, "Неверные данные.")
		return
	}
	action := parts[1]

	sess, ok := b.sessions.edit(cb.userID)
	if !ok {
		// Сессия потерялась (рестарт): восстанавливаем координаты из callback.
		messageID, err := strconv.Atoi(parts[4])
		if err != nil {
			b.answer(cb, "Неверные данные.")
			return
		}
		sess = &editSession{chat: parts[3], messageID: messageID, awaiting: editAwaitNone}
		if parts[2] != "" {
			sess.postID, _ = strconv.ParseInt(parts[2], 10, 64)
		}
		b.sessions.setEdit(cb.userID, sess)
	}

	switch action {
	case "text":
		b.answer(cb, "")
		sess.awaiting = editAwaitText
		b.send(cb.chat, "Отправьте новый текст для сообщения (HTML разрешён). Это изменение сохранится в сессии. "+
			"Используйте 'Предпросмотр' и затем 'Применить текст' или 'Применить все изменения' для публикации.", nil)

	case "photo":
		b.answer(cb, "")
		sess.awaiting = editAwaitPhoto
		b.send(cb.chat, "Пришлите новое фото. Это изменение сохранится в сессии. После сохранения используйте "+
			"'Применить фото' или 'Применить все изменения'.", nil)

	case "keyboard":
		b.answer(cb, "")
		b.editMenu(cb, "Редактор клавиатуры открыт (изменения сохраняются в сессии и не применяются до подтверждения).\n\n"+
			"Текущее состояние:\n"+sess.kb.renderSummary(), kbEditorMenu())

	case "preview":
		markup, err := b.buildValidatedMarkup(sess.kb)
		if err != nil {
			b.answer(cb, "Ошибка клавиатуры: "+err.Error())
			return
		}
		text := strOrEmpty(sess.text)
		var sendErr error
		if sess.photo != nil {
			_, sendErr = b.tg.SendPhoto(cb.chat, *sess.photo, text, markup)
		} else {
			if text == "" {
				text = "(пустой пост)"
			}
			_, sendErr = b.tg.SendMessage(cb.chat, text, markup)
		}
		if sendErr != nil {
			slog.Error("стейдж-предпросмотр не отправлен", "user", cb.userID, "err", sendErr)
			b.answer(cb, "Ошибка при предпросмотре: "+shortErr(sendErr))
			return
		}
		b.answer(cb, "Предпросмотр (стейдж) отправлен.")

	case "apply_text":
		b.applyText(cb, sess)

	case "apply_photo":
		b.applyPhoto(cb, sess)

	case "apply_keyboard":
		b.applyKeyboard(cb, sess)

	case "apply_all":
		b.applyAll(cb, sess)

	default:
		b.answer(cb, "Неверные данные.")
	}
}

func (b *Bot) kbEditorAction(cb cbRef, action string) {
	sess, ok := b.sessions.edit(cb.userID)
	if !ok {
		b.answer(cb, "Сессия редактора не найдена. Запустите /editpost.")
		return
	}

	switch action {
	case "add_row":
		b.answer(cb, "")
		sess.kb = AddRow(sess.kb)
		b.editMenu(cb, "Добавлена новая строка (сохранено в сессии).\n\n"+sess.kb.renderSummary(), kbEditorMenu())

	case "add_button":
		b.answer(cb, "")
		sess.awaiting = editAwaitKbRowIndex
		b.send(cb.chat, "Укажите индекс строки (0..n-1) для добавления кнопки, или -1 для новой строки.", nil)

	case "del_button":
		if len(sess.kb) == 0 {
			b.answer(cb, "Клавиатура пуста.")
			return
		}
		b.answer(cb, "")
		sess.awaiting = editAwaitDeleteCoords
		b.send(cb.chat, "Отправьте координаты кнопки для удаления в формате: row col (например: 0 1)", nil)

	case "edit_button":
		if len(sess.kb) == 0 {
			b.answer(cb, "Клавиатура пуста.")
			return
		}
		b.answer(cb, "")
		sess.awaiting = editAwaitEditCoords
		b.send(cb.chat, "Отправьте координаты кнопки для редактирования в формате: row col (например: 0 1)", nil)

	case "move_button":
		if len(sess.kb) == 0 {
			b.answer(cb, "Клавиатура пуста.")
			return
		}
		b.answer(cb, "")
		sess.awaiting = editAwaitMoveSource
		b.send(cb.chat, "Отправьте координаты источника в формате: row col (например: 0 1)", nil)

	case "format":
		b.answer(cb, "")
		sess.awaiting = editAwaitFormatCols
		b.send(cb.chat, "Введите число колонок (целое > 0), в которые нужно распределить кнопки.", nil)

	case "preview":
		markup, err := b.buildValidatedMarkup(sess.kb)
		if err != nil {
			b.answer(cb, "Ошибка структуры клавиатуры: "+err.Error())
			return
		}
		b.answer(cb, "")
		b.send(cb.chat, "Предпросмотр клавиатуры (стейдж):", markup)
		b.editMenu(cb, "Редактор клавиатуры (предпросмотр отправлен). Текущее состояние:\n\n"+sess.kb.renderSummary(), kbEditorMenu())

	case "stage":
		sess.kbStaged = true
		b.answer(cb, "Клавиатура сохранена в сессии. Она будет применена при 'Применить клавиатуру' или 'Применить все изменения'.")
		b.editMenu(cb, "Клавиатура сохранена в сессии (не применена к сообщению). Возврат в меню редактирования.",
			mainEditMenu(sess.ref()))

	case "back":
		b.answer(cb, "")
		b.editMenu(cb, "Возврат в главное меню редактирования.", mainEditMenu(sess.ref()))

	default:
		b.answer(cb, "Неверные данные.")
	}
}

// --- Применение стейджа к живому сообщению ---

func (b *Bot) applyText(cb cbRef, sess *editSession) {
	if sess.text == nil {
		b.answer(cb, "В сессии нет нового текста. Сначала отредактируйте текст.")
		return
	}
	text := *sess.text
	send := text
	if send == "" {
		send = zeroWidthSpace
	}
	// Для медиа-сообщения текст живёт в caption.
	if err := b.tg.EditText(sess.chat, sess.messageID, send, nil); err != nil {
		if !errIsBadRequest(err) || b.tg.EditCaption(sess.chat, sess.messageID, text, nil) != nil {
			b.answer(cb, "Ошибка при применении текста: "+shortErr(err))
			return
		}
	}
	if sess.postID != 0 {
		if err := b.repo.UpdatePost(sess.postID, PostUpdate{Text: &text}); err != nil {
			slog.Error("текст применён, но не сохранён в БД", "id", sess.postID, "err", err)
		}
	}
	sess.origText = sess.text
	b.answer(cb, "Текст применён.")
	b.editMenu(cb, "Текст применён к опубликованному посту.", mainEditMenu(sess.ref()))
}

func (b *Bot) applyPhoto(cb cbRef, sess *editSession) {
	if sess.photo == nil {
		b.answer(cb, "В сессии нет нового фото. Сначала пришлите фото.")
		return
	}
	caption := strOrEmpty(sess.text)
	if sess.text == nil {
		caption = strOrEmpty(sess.origText)
	}
	if err := b.tg.EditMedia(sess.chat, sess.messageID, *sess.photo, caption); err != nil {
		b.answer(cb, "Ошибка при применении фото: "+shortErr(err))
		return
	}
	if sess.postID != 0 {
		if err := b.repo.UpdatePost(sess.postID, PostUpdate{PhotoFileID: sess.photo}); err != nil {
			slog.Error("фото применено, но не сохранено в БД", "id", sess.postID, "err", err)
		}
	}
	sess.origPhoto = sess.photo
	b.answer(cb, "Фото применено.")
	b.editMenu(cb, "Фото применено к опубликованному посту.", mainEditMenu(sess.ref()))
}

func (b *Bot) applyKeyboard(cb cbRef, sess *editSession) {
	var markup *tgbotapi.InlineKeyboardMarkup
	if len(sess.kb) > 0 {
		markup = BuildMarkup(sess.kb, b.repo)
	}
	if err := b.tg.EditMarkup(sess.chat, sess.messageID, markup); err != nil {
		b.answer(cb, "Ошибка при применении клавиатуры: "+shortErr(err))
		return
	}
	if sess.postID != 0 {
		kbJSON := sess.kb.MarshalJSONString()
		if err := b.repo.UpdatePost(sess.postID, PostUpdate{KeyboardJSON: &kbJSON}); err != nil {
			slog.Error("клавиатура применена, но не сохранена в БД", "id", sess.postID, "err", err)
		}
	}
	sess.origKb = sess.kb.Clone()
	sess.kbStaged = false
	b.answer(cb, "Клавиатура применена.")
	b.editMenu(cb, "Клавиатура применена к опубликованному посту.", mainEditMenu(sess.ref()))
}

// applyAll применяет стейдж в фиксированном порядке: медиа, текст,
// клавиатура. Ошибка любого шага прерывает оставшиеся; уже применённые
// шаги не откатываются. Удаление медиа отклоняется до первой мутации.
func (b *Bot) applyAll(cb cbRef, sess *editSession) {
	photoChanged := !strPtrEq(sess.origPhoto, sess.photo)
	textChanged := !strPtrEq(sess.origText, sess.text)

	if photoChanged && sess.photo == nil {
		b.answer(cb, "Удаление медиа не поддерживается автоматически.")
		return
	}

	if photoChanged {
		caption := strOrEmpty(sess.text)
		if sess.text == nil {
			caption = strOrEmpty(sess.origText)
		}
		if err := b.tg.EditMedia(sess.chat, sess.messageID, *sess.photo, caption); err != nil {
			b.answer(cb, "Не удалось заменить медиа: "+shortErr(err))
			return
		}
	}

	if textChanged && sess.text != nil {
		text := *sess.text
		send := text
		if send == "" {
			send = zeroWidthSpace
		}
		if err := b.tg.EditText(sess.chat, sess.messageID, send, nil); err != nil {
			if !errIsBadRequest(err) || b.tg.EditCaption(sess.chat, sess.messageID, text, nil) != nil {
				b.answer(cb, "Не удалось обновить текст/подпись: "+shortErr(err))
				return
			}
		}
	}

	var markup *tgbotapi.InlineKeyboardMarkup
	if len(sess.kb) > 0 {
		markup = BuildMarkup(sess.kb, b.repo)
	}
	if err := b.tg.EditMarkup(sess.chat, sess.messageID, markup); err != nil {
		b.answer(cb, "Не удалось обновить клавиатуру: "+shortErr(err))
		return
	}

	if sess.postID != 0 {
		kbJSON := sess.kb.MarshalJSONString()
		upd := PostUpdate{KeyboardJSON: &kbJSON}
		if textChanged {
			upd.Text = sess.text
		}
		if photoChanged {
			upd.PhotoFileID = sess.photo
		}
		if err := b.repo.UpdatePost(sess.postID, upd); err != nil {
			slog.Error("изменения применены, но не сохранены в БД", "id", sess.postID, "err", err)
		}
	}

	b.sessions.deleteEdit(cb.userID)
	b.answer(cb, "Изменения применены.")
	b.editMenu(cb, "Все изменения применены к опубликованному посту.", nil)
}
