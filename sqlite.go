package main

import (
	"database/sql"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type sqliteRepo struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteRepo(dbPath string) (Repository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if err := runMigrations(db, "sqlite3"); err != nil {
		return nil, err
	}

	return &sqliteRepo{db: db}, nil
}

// Таймстемпы хранятся как TEXT в RFC3339 (UTC), одинаково в обоих бэкендах.
func timeToDB(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func timeFromDB(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

type rowScanner interface {
	Scan(dest ...any) error
}

const postColumns = "id, author_id, text, photo_file_id, keyboard_json, status, created_at, updated_at, published_message_id, published_link, published_channel"

// scanPost читает строку posts в Post. Битый keyboard_json превращается в
// пустую клавиатуру внутри ParseKeyboard.
func scanPost(row rowScanner) (*Post, error) {
	var (
		p          Post
		text       sql.NullString
		photo      sql.NullString
		kbJSON     sql.NullString
		createdAt  string
		updatedAt  string
		pubMsgID   sql.NullInt64
		pubLink    sql.NullString
		pubChannel sql.NullString
	)
	err := row.Scan(&p.ID, &p.AuthorID, &text, &photo, &kbJSON, &p.Status,
		&createdAt, &updatedAt, &pubMsgID, &pubLink, &pubChannel)
	if err != nil {
		return nil, err
	}
	p.Text = text.String
	p.PhotoFileID = photo.String
	p.Keyboard = ParseKeyboard(kbJSON.String)
	p.CreatedAt = timeFromDB(createdAt)
	p.UpdatedAt = timeFromDB(updatedAt)
	p.PublishedMessageID = int(pubMsgID.Int64)
	p.PublishedLink = pubLink.String
	p.PublishedChannel = pubChannel.String
	return &p, nil
}

func scanChannel(row rowScanner) (*Channel, error) {
	var (
		ch        Channel
		title     sql.NullString
		addedBy   sql.NullInt64
		createdAt string
	)
	if err := row.Scan(&ch.ID, &ch.ChatID, &title, &addedBy, &createdAt); err != nil {
		return nil, err
	}
	ch.Title = title.String
	ch.AddedBy = addedBy.Int64
	ch.CreatedAt = timeFromDB(createdAt)
	return &ch, nil
}

// postUpdateSet собирает SET-часть запроса. Нумерованные плейсхолдеры для
// Postgres включаются флагом numbered.
func postUpdateSet(upd PostUpdate, numbered bool) (string, []any) {
	var (
		parts  []string
		params []any
	)
	add := func(col string, v any) {
		params = append(params, v)
		if numbered {
			parts = append(parts, col+" = $"+strconv.Itoa(len(params)))
		} else {
			parts = append(parts, col+" = ?")
		}
	}
	if upd.Text != nil {
		add("text", *upd.Text)
	}
	if upd.PhotoFileID != nil {
		add("photo_file_id", *upd.PhotoFileID)
	}
	if upd.KeyboardJSON != nil {
		add("keyboard_json", *upd.KeyboardJSON)
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.PublishedMessageID != nil {
		add("published_message_id", *upd.PublishedMessageID)
	}
	if upd.PublishedLink != nil {
		add("published_link", *upd.PublishedLink)
	}
	if upd.PublishedChannel != nil {
		add("published_channel", *upd.PublishedChannel)
	}
	add("updated_at", timeToDB(time.Now()))
	return strings.Join(parts, ", "), params
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func (r *sqliteRepo) CreatePost(p *Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = StatusDraft
	}
	res, err := r.db.Exec(
		`INSERT INTO posts (author_id, text, photo_file_id, keyboard_json, status, created_at, updated_at, published_message_id, published_link, published_channel)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.AuthorID, p.Text, nullStr(p.PhotoFileID), p.Keyboard.MarshalJSONString(), p.Status,
		timeToDB(p.CreatedAt), timeToDB(p.UpdatedAt), nullInt(p.PublishedMessageID),
		nullStr(p.PublishedLink), nullStr(p.PublishedChannel))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (r *sqliteRepo) UpdatePost(id int64, upd PostUpdate) error {
	set, params := postUpdateSet(upd, false)
	params = append(params, id)
	_, err := r.db.Exec("UPDATE posts SET "+set+" WHERE id = ?", params...)
	return err
}

func (r *sqliteRepo) GetPost(id int64) (*Post, bool) {
	p, err := scanPost(r.db.QueryRow("SELECT "+postColumns+" FROM posts WHERE id = ?", id))
	return p, err == nil
}

func (r *sqliteRepo) GetPostByMessage(channel string, messageID int) (*Post, bool) {
	p, err := scanPost(r.db.QueryRow(
		"SELECT "+postColumns+" FROM posts WHERE (published_channel = ? OR published_link = ?) AND published_message_id = ?",
		channel, channel, messageID))
	if err == nil {
		return p, true
	}
	// Легаси-строки без published_channel: ищем по одному message_id.
	p, err = scanPost(r.db.QueryRow(
		"SELECT "+postColumns+" FROM posts WHERE published_message_id = ?", messageID))
	return p, err == nil
}

func (r *sqliteRepo) ListPosts(authorID int64, status string) ([]*Post, error) {
	q := "SELECT " + postColumns + " FROM posts"
	var (
		conds  []string
		params []any
	)
	if authorID > 0 {
		conds = append(conds, "author_id = ?")
		params = append(params, authorID)
	}
	if status != "" {
		conds = append(conds, "status = ?")
		params = append(params, status)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY updated_at DESC"
	rows, err := r.db.Query(q, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) DeletePost(id int64) error {
	_, err := r.db.Exec("DELETE FROM posts WHERE id = ?", id)
	return err
}

func (r *sqliteRepo) CreateChannel(chatID, title string, addedBy int64) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	res, err := r.db.Exec(
		"INSERT INTO channels (chat_id, title, added_by, created_at) VALUES (?, ?, ?, ?)",
		chatID, nullStr(title), addedBy, timeToDB(now))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Channel{ID: id, ChatID: chatID, Title: title, AddedBy: addedBy, CreatedAt: now}, nil
}

func (r *sqliteRepo) ListChannels() ([]*Channel, error) {
	rows, err := r.db.Query("SELECT id, chat_id, title, added_by, created_at FROM channels ORDER BY id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) GetChannelByChatID(chatID string) (*Channel, bool) {
	ch, err := scanChannel(r.db.QueryRow(
		"SELECT id, chat_id, title, added_by, created_at FROM channels WHERE chat_id = ?", chatID))
	return ch, err == nil
}

func (r *sqliteRepo) DeleteChannel(chatID string) error {
	_, err := r.db.Exec("DELETE FROM channels WHERE chat_id = ?", chatID)
	return err
}

func (r *sqliteRepo) SavePayload(data map[string]string) (string, error) {
	id := genPayloadID()
	raw, err := marshalPayload(data)
	if err != nil {
		return "", err
	}
	_, err = r.db.Exec("INSERT INTO callback_payloads (id, data, created_at) VALUES (?, ?, ?)",
		id, raw, time.Now().Unix())
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *sqliteRepo) LoadPayload(id string) (map[string]string, bool) {
	var raw string
	err := r.db.QueryRow("SELECT data FROM callback_payloads WHERE id = ?", id).Scan(&raw)
	if err != nil {
		return nil, false
	}
	return unmarshalPayload(raw)
}

func (r *sqliteRepo) DeletePayload(id string) {
	r.db.Exec("DELETE FROM callback_payloads WHERE id = ?", id)
}

func (r *sqliteRepo) CleanOldPayloads() {
	r.db.Exec("DELETE FROM callback_payloads WHERE created_at < ?", time.Now().Unix()-30*24*3600)
}

func (r *sqliteRepo) Close() error {
	return r.db.Close()
}
