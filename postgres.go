package main

import (
	"database/sql"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

type pgRepo struct {
	db *sql.DB
	mu sync.Mutex
}

func NewPostgresRepo(dsn string) (Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := runMigrations(db, "postgres"); err != nil {
		return nil, err
	}

	return &pgRepo{db: db}, nil
}

func (r *pgRepo) CreatePost(p *Post) error {
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
	err := r.db.QueryRow(
		`INSERT INTO posts (author_id, text, photo_file_id, keyboard_json, status, created_at, updated_at, published_message_id, published_link, published_channel)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		p.AuthorID, p.Text, nullStr(p.PhotoFileID), p.Keyboard.MarshalJSONString(), p.Status,
		timeToDB(p.CreatedAt), timeToDB(p.UpdatedAt), nullInt(p.PublishedMessageID),
		nullStr(p.PublishedLink), nullStr(p.PublishedChannel)).Scan(&p.ID)
	return err
}

func (r *pgRepo) UpdatePost(id int64, upd PostUpdate) error {
	set, params := postUpdateSet(upd, true)
	params = append(params, id)
	_, err := r.db.Exec("UPDATE posts SET "+set+" WHERE id = $"+strconv.Itoa(len(params)), params...)
	return err
}

func (r *pgRepo) GetPost(id int64) (*Post, bool) {
	p, err := scanPost(r.db.QueryRow("SELECT "+postColumns+" FROM posts WHERE id = $1", id))
	return p, err == nil
}

func (r *pgRepo) GetPostByMessage(channel string, messageID int) (*Post, bool) {
	p, err := scanPost(r.db.QueryRow(
		"SELECT "+postColumns+" FROM posts WHERE (published_channel = $1 OR published_link = $2) AND published_message_id = $3",
		channel, channel, messageID))
	if err == nil {
		return p, true
	}
	p, err = scanPost(r.db.QueryRow(
		"SELECT "+postColumns+" FROM posts WHERE published_message_id = $1", messageID))
	return p, err == nil
}

func (r *pgRepo) ListPosts(authorID int64, status string) ([]*Post, error) {
	q := "SELECT " + postColumns + " FROM posts"
	var (
		conds  []string
		params []any
	)
	if authorID > 0 {
		params = append(params, authorID)
		conds = append(conds, "author_id = $"+strconv.Itoa(len(params)))
	}
	if status != "" {
		params = append(params, status)
		conds = append(conds, "status = $"+strconv.Itoa(len(params)))
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

func (r *pgRepo) DeletePost(id int64) error {
	_, err := r.db.Exec("DELETE FROM posts WHERE id = $1", id)
	return err
}

func (r *pgRepo) CreateChannel(chatID, title string, addedBy int64) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var id int64
	err := r.db.QueryRow(
		"INSERT INTO channels (chat_id, title, added_by, created_at) VALUES ($1, $2, $3, $4) RETURNING id",
		chatID, nullStr(title), addedBy, timeToDB(now)).Scan(&id)
	if err != nil {
		return nil, err
	}
	return &Channel{ID: id, ChatID: chatID, Title: title, AddedBy: addedBy, CreatedAt: now}, nil
}

func (r *pgRepo) ListChannels() ([]*Channel, error) {
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

func (r *pgRepo) GetChannelByChatID(chatID string) (*Channel, bool) {
	ch, err := scanChannel(r.db.QueryRow(
		"SELECT id, chat_id, title, added_by, created_at FROM channels WHERE chat_id = $1", chatID))
	return ch, err == nil
}

func (r *pgRepo) DeleteChannel(chatID string) error {
	_, err := r.db.Exec("DELETE FROM channels WHERE chat_id = $1", chatID)
	return err
}

func (r *pgRepo) SavePayload(data map[string]string) (string, error) {
	id := genPayloadID()
	raw, err := marshalPayload(data)
	if err != nil {
		return "", err
	}
	_, err = r.db.Exec("INSERT INTO callback_payloads (id, data, created_at) VALUES ($1, $2, $3)",
		id, raw, time.Now().Unix())
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *pgRepo) LoadPayload(id string) (map[string]string, bool) {
	var raw string
	err := r.db.QueryRow("SELECT data FROM callback_payloads WHERE id = $1", id).Scan(&raw)
	if err != nil {
		return nil, false
	}
	return unmarshalPayload(raw)
}

func (r *pgRepo) DeletePayload(id string) {
	r.db.Exec("DELETE FROM callback_payloads WHERE id = $1", id)
}

func (r *pgRepo) CleanOldPayloads() {
	r.db.Exec("DELETE FROM callback_payloads WHERE created_at < $1", time.Now().Unix()-30*24*3600)
}

func (r *pgRepo) Close() error {
	return r.db.Close()
}
