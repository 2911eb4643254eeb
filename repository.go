package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
)

// genPayloadID возвращает короткий случайный hex-идентификатор payload'а
// (6 байт энтропии, 12 hex-символов).
func genPayloadID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func marshalPayload(data map[string]string) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// unmarshalPayload: битая запись — промах, как будто её нет.
func unmarshalPayload(raw string) (map[string]string, bool) {
	var data map[string]string
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, false
	}
	return data, true
}

// PostUpdate — частичное обновление поста: заполненные поля попадают в SET,
// updated_at трогается всегда.
type PostUpdate struct {
	Text               *string
	PhotoFileID        *string
	KeyboardJSON       *string
	Status             *string
	PublishedMessageID *int
	PublishedLink      *string
	PublishedChannel   *string
}

// Repository — абстракция хранилища постов, каналов и callback-payload'ов.
type Repository interface {
	// CreatePost сохраняет новый пост и проставляет ID и таймстемпы.
	CreatePost(p *Post) error
	UpdatePost(id int64, upd PostUpdate) error
	GetPost(id int64) (*Post, bool)
	// GetPostByMessage ищет по координатам публикации; при промахе —
	// fallback по одному published_message_id (легаси-строки без канала).
	GetPostByMessage(channel string, messageID int) (*Post, bool)
	// ListPosts: authorID <= 0 — любой автор, status "" — любой статус.
	// Сортировка по updated_at, свежие первыми.
	ListPosts(authorID int64, status string) ([]*Post, error)
	DeletePost(id int64) error

	CreateChannel(chatID, title string, addedBy int64) (*Channel, error)
	ListChannels() ([]*Channel, error)
	GetChannelByChatID(chatID string) (*Channel, bool)
	DeleteChannel(chatID string) error

	// SavePayload сохраняет длинный callback и возвращает короткий id.
	SavePayload(data map[string]string) (string, error)
	// LoadPayload: отсутствующая или битая запись — промах, не ошибка.
	LoadPayload(id string) (map[string]string, bool)
	// DeletePayload идемпотентен.
	DeletePayload(id string)
	// CleanOldPayloads удаляет payload-записи старше 30 суток.
	CleanOldPayloads()

	Close() error
}
