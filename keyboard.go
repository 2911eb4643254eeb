package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxCallbackBytes — жёсткий лимит Telegram на callback_data.
const maxCallbackBytes = 64

// Button — одна inline-кнопка. Заполняется ровно одно из полей URL /
// CallbackData (инвариант проверяется в Validate, конструкторы ниже не дают
// собрать кнопку с обоими полями сразу).
type Button struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

// URLButton создаёт url-кнопку.
func URLButton(text, url string) Button {
	return Button{Text: text, URL: url}
}

// ActionButton создаёт кнопку с callback-токеном.
func ActionButton(text, token string) Button {
	return Button{Text: text, CallbackData: token}
}

// Keyboard — упорядоченные строки inline-кнопок. Сериализуется в JSON ровно
// в том виде, в котором хранится в колонке keyboard_json.
type Keyboard [][]Button

// ParseKeyboard разбирает keyboard_json. Битый JSON трактуется как пустая
// клавиатура, а не как ошибка.
func ParseKeyboard(raw string) Keyboard {
	if raw == "" {
		return nil
	}
	var kb Keyboard
	if err := json.Unmarshal([]byte(raw), &kb); err != nil {
		return nil
	}
	return kb
}

// MarshalJSONString сериализует клавиатуру в строку для keyboard_json.
// nil-клавиатура кодируется как "[]".
func (kb Keyboard) MarshalJSONString() string {
	if kb == nil {
		kb = Keyboard{}
	}
	b, err := json.Marshal(kb)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Clone возвращает глубокую копию (для снапшотов original/staged в сессиях).
func (kb Keyboard) Clone() Keyboard {
	if kb == nil {
		return nil
	}
	out := make(Keyboard, len(kb))
	for i, row := range kb {
		out[i] = append([]Button(nil), row...)
	}
	return out
}

// ButtonCount — общее число кнопок во всех строках.
func (kb Keyboard) ButtonCount() int {
	n := 0
	for _, row := range kb {
		n += len(row)
	}
	return n
}

// inRange — единая точка политики координат: мутаторы молча игнорируют
// выход за границы, чтобы не ронять существующие черновики.
func (kb Keyboard) inRange(row, col int) bool {
	return row >= 0 && row < len(kb) && col >= 0 && col < len(kb[row])
}

// ErrCallbackTooLong — callback-токен длиннее 64 байт. Единственный
// восстановимый класс ошибок валидации: builder умеет выносить такие токены
// в payload-хранилище.
var ErrCallbackTooLong = errors.New("callback_data длиннее 64 байт")

// Validate проверяет структуру клавиатуры. Возвращает первую найденную
// ошибку. Корректные URL нормализуются на месте (side effect).
func (kb Keyboard) Validate() error {
	for r, row := range kb {
		for c := range row {
			btn := &row[c]
			if btn.Text == "" {
				return fmt.Errorf("кнопка %d:%d без текста", r, c)
			}
			if btn.URL == "" && btn.CallbackData == "" {
				return fmt.Errorf("кнопка %d:%d без url и callback_data", r, c)
			}
			if btn.URL != "" {
				norm, ok := validateButtonURL(btn.URL)
				if !ok {
					return fmt.Errorf("кнопка %d:%d с некорректным url", r, c)
				}
				btn.URL = norm
			}
			if btn.CallbackData != "" && len(btn.CallbackData) > maxCallbackBytes {
				return fmt.Errorf("кнопка %d:%d: %w", r, c, ErrCallbackTooLong)
			}
		}
	}
	return nil
}

// AddRow добавляет пустую строку в конец.
func AddRow(kb Keyboard) Keyboard {
	return append(kb, []Button{})
}

// AddButton добавляет кнопку в конец строки rowIndex. Отрицательный или
// выходящий за границы индекс означает новую строку с единственной кнопкой.
func AddButton(kb Keyboard, rowIndex int, btn Button) Keyboard {
	if rowIndex < 0 || rowIndex >= len(kb) {
		return append(kb, []Button{btn})
	}
	kb[rowIndex] = append(kb[rowIndex], btn)
	return kb
}

// DeleteButton удаляет кнопку по координатам. Опустевшая строка вырезается.
// Координаты вне диапазона — no-op.
func DeleteButton(kb Keyboard, row, col int) Keyboard {
	if !kb.inRange(row, col) {
		return kb
	}
	kb[row] = append(kb[row][:col], kb[row][col+1:]...)
	if len(kb[row]) == 0 {
		kb = append(kb[:row], kb[row+1:]...)
	}
	return kb
}

// EditButton заменяет кнопку целиком. Диапазон координат здесь не
// проверяется — вызывающий обязан проверить inRange сам и сообщить
// оператору про выход за границы.
func EditButton(kb Keyboard, row, col int, btn Button) Keyboard {
	kb[row][col] = btn
	return kb
}

// MoveButton переносит кнопку из (fromRow, fromCol) в (toRow, toCol).
// Если исходная строка опустела, она вырезается, и целевой индекс строки
// после неё сдвигается на единицу. Недостающие строки до toRow добавляются
// пустыми, toCol прижимается к границам целевой строки. Некорректный
// источник — no-op.
func MoveButton(kb Keyboard, fromRow, fromCol, toRow, toCol int) Keyboard {
	if !kb.inRange(fromRow, fromCol) {
		return kb
	}
	btn := kb[fromRow][fromCol]
	kb[fromRow] = append(kb[fromRow][:fromCol], kb[fromRow][fromCol+1:]...)
	if len(kb[fromRow]) == 0 {
		kb = append(kb[:fromRow], kb[fromRow+1:]...)
		if fromRow < toRow {
			toRow--
		}
	}
	if toRow < 0 {
		toRow = 0
	}
	for len(kb) <= toRow {
		kb = append(kb, []Button{})
	}
	target := kb[toRow]
	if toCol < 0 {
		toCol = 0
	}
	if toCol > len(target) {
		toCol = len(target)
	}
	target = append(target, Button{})
	copy(target[toCol+1:], target[toCol:])
	target[toCol] = btn
	kb[toRow] = target
	return kb
}

// ReformatColumns раскладывает все кнопки построчно в cols колонок.
// Последняя строка может быть короче. cols <= 0 трактуется как 1.
func ReformatColumns(kb Keyboard, cols int) Keyboard {
	if len(kb) == 0 {
		return kb
	}
	if cols <= 0 {
		cols = 1
	}
	var flat []Button
	for _, row := range kb {
		flat = append(flat, row...)
	}
	out := make(Keyboard, 0, (len(flat)+cols-1)/cols)
	for i := 0; i < len(flat); i += cols {
		end := i + cols
		if end > len(flat) {
			end = len(flat)
		}
		out = append(out, flat[i:end])
	}
	return out
}

// PayloadStore — минимальный контракт builder'а на хранилище длинных
// callback-токенов.
type PayloadStore interface {
	SavePayload(data map[string]string) (string, error)
}

// truncateUTF8 безопасно обрезает строку до max байт, не разрывая руны.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && s[max]&0xC0 == 0x80 {
		max--
	}
	return s[:max]
}

// BuildMarkup строит транспортную inline-разметку. URL-кнопки не подпадают
// под лимит callback_data. Токен длиннее 64 байт сохраняется в store, в
// кнопку подставляется короткая ссылка "kb_payload:<id>". Кнопка без url и
// токена (прошедшая мимо валидации) получает безвредный fallback-токен из
// усечённого текста — разметка не должна ломаться никогда. Строки без
// кнопок выбрасываются.
func BuildMarkup(kb Keyboard, store PayloadStore) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range kb {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, btn := range row {
			text := btn.Text
			if text == "" {
				text = "Button"
			}
			switch {
			case btn.URL != "":
				u := btn.URL
				if norm, ok := validateButtonURL(u); ok {
					u = norm
				}
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(text, u))
			case btn.CallbackData != "":
				cb := btn.CallbackData
				if len(cb) > maxCallbackBytes {
					id, err := store.SavePayload(map[string]string{"callback": cb})
					if err != nil {
						// Хранилище недоступно: обрезаем токен по байтам.
						cb = truncateUTF8(cb, maxCallbackBytes)
					} else {
						cb = "kb_payload:" + id
					}
				}
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(text, cb))
			default:
				fb := "btn:" + truncateUTF8(text, 20)
				fb = truncateUTF8(fb, maxCallbackBytes)
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(text, fb))
			}
		}
		if len(buttons) > 0 {
			rows = append(rows, buttons)
		}
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// renderSummary — текстовая сводка раскладки для меню редактора.
func (kb Keyboard) renderSummary() string {
	if len(kb) == 0 {
		return "(пустая клавиатура)"
	}
	var lines []string
	for r, row := range kb {
		var cells []string
		for c, btn := range row {
			cells = append(cells, fmt.Sprintf("[%d] %s", c, btn.Text))
		}
		lines = append(lines, fmt.Sprintf("Row %d: %s", r, strings.Join(cells, " | ")))
	}
	return strings.Join(lines, "\n")
}
