package main

import (
	"errors"
	"strconv"
	"strings"
	"sync"
)

// sessionStore держит per-операторские сессии обоих видов. Мьютекс
// защищает только сами map'ы: один оператор действует последовательно,
// поэтому содержимое записи не нуждается в блокировке.
type sessionStore struct {
	mu     sync.Mutex
	drafts map[int64]*draftSession
	edits  map[int64]*editSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		drafts: make(map[int64]*draftSession),
		edits:  make(map[int64]*editSession),
	}
}

func (s *sessionStore) draft(userID int64) (*draftSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.drafts[userID]
	return sess, ok
}

// ensureDraft возвращает существующую сессию или создаёт новую в idle.
func (s *sessionStore) ensureDraft(userID int64) *draftSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.drafts[userID]; ok {
		return sess
	}
	sess := &draftSession{post: &Post{AuthorID: userID, Status: StatusDraft}, state: draftIdle}
	s.drafts[userID] = sess
	return sess
}

func (s *sessionStore) setDraft(userID int64, sess *draftSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[userID] = sess
}

func (s *sessionStore) deleteDraft(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.drafts[userID]
	delete(s.drafts, userID)
	return ok
}

func (s *sessionStore) edit(userID int64) (*editSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.edits[userID]
	return sess, ok
}

func (s *sessionStore) setEdit(userID int64, sess *editSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits[userID] = sess
}

func (s *sessionStore) deleteEdit(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.edits[userID]
	delete(s.edits, userID)
	return ok
}

// parseCoords разбирает "row col".
func parseCoords(input string) (row, col int, ok bool) {
	parts := strings.Fields(input)
	if len(parts) != 2 {
		return 0, 0, false
	}
	r, err1 := strconv.Atoi(parts[0])
	c, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return r, c, true
}

var (
	errButtonFormat = errors.New("Неверный формат. Требуется две строки:\nТекст кнопки\nURL или callback-токен")
	errButtonURL    = errors.New("Неверный URL кнопки.")
)

// parseButtonInput разбирает ввод кнопки: первая строка — текст, вторая —
// URL (узнаётся по схеме) либо callback-токен.
func parseButtonInput(input string) (Button, error) {
	lines := strings.Split(input, "\n")
	if len(lines) < 2 {
		return Button{}, errButtonFormat
	}
	text := strings.TrimSpace(lines[0])
	second := strings.TrimSpace(lines[1])
	if text == "" || second == "" {
		return Button{}, errButtonFormat
	}
	if strings.HasPrefix(second, "http://") || strings.HasPrefix(second, "https://") ||
		strings.HasPrefix(second, "tg://") {
		norm, ok := validateButtonURL(second)
		if !ok {
			return Button{}, errButtonURL
		}
		return URLButton(text, norm), nil
	}
	return ActionButton(text, second), nil
}
