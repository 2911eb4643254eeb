package main

import (
	"path/filepath"
	"reflect"
	"testing"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLiteRepo(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCreateAndGetPost(t *testing.T) {
	repo := newTestRepo(t)

	p := &Post{
		AuthorID: 100,
		Text:     "Привет, канал",
		Keyboard: Keyboard{{URLButton("Сайт", "https://example.com")}},
	}
	if err := repo.CreatePost(p); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if p.ID == 0 {
		t.Fatal("CreatePost did not assign ID")
	}
	if p.Status != StatusDraft {
		t.Errorf("Status = %q, want draft default", p.Status)
	}
	if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	got, ok := repo.GetPost(p.ID)
	if !ok {
		t.Fatal("GetPost miss")
	}
	if got.Text != p.Text || got.AuthorID != p.AuthorID || got.Status != StatusDraft {
		t.Errorf("GetPost = %+v", got)
	}
	if !reflect.DeepEqual(got.Keyboard, p.Keyboard) {
		t.Errorf("Keyboard = %+v, want %+v", got.Keyboard, p.Keyboard)
	}

	if _, ok := repo.GetPost(9999); ok {
		t.Error("GetPost(9999) must miss")
	}
}

func TestUpdatePostPartial(t *testing.T) {
	repo := newTestRepo(t)

	p := &Post{AuthorID: 1, Text: "старый", PhotoFileID: "photo1"}
	if err := repo.CreatePost(p); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	newText := "новый"
	if err := repo.UpdatePost(p.ID, PostUpdate{Text: &newText}); err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}

	got, ok := repo.GetPost(p.ID)
	if !ok {
		t.Fatal("GetPost miss")
	}
	if got.Text != "новый" {
		t.Errorf("Text = %q, want новый", got.Text)
	}
	if got.PhotoFileID != "photo1" {
		t.Errorf("PhotoFileID = %q, want untouched photo1", got.PhotoFileID)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("UpdatedAt %v not after CreatedAt %v", got.UpdatedAt, got.CreatedAt)
	}
}

func TestUpdatePostPublish(t *testing.T) {
	repo := newTestRepo(t)

	p := &Post{AuthorID: 1, Text: "пост"}
	if err := repo.CreatePost(p); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	status := StatusPublished
	msgID := 555
	link := "https://t.me/chan/555"
	channel := "@chan"
	err := repo.UpdatePost(p.ID, PostUpdate{
		Status:             &status,
		PublishedMessageID: &msgID,
		PublishedLink:      &link,
		PublishedChannel:   &channel,
	})
	if err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}

	got, _ := repo.GetPost(p.ID)
	if got.Status != StatusPublished || got.PublishedMessageID != 555 ||
		got.PublishedLink != link || got.PublishedChannel != "@chan" {
		t.Errorf("published fields = %+v", got)
	}
}

func TestListPosts(t *testing.T) {
	repo := newTestRepo(t)

	p1 := &Post{AuthorID: 1, Text: "первый"}
	p2 := &Post{AuthorID: 1, Text: "второй"}
	p3 := &Post{AuthorID: 2, Text: "чужой"}
	for _, p := range []*Post{p1, p2, p3} {
		if err := repo.CreatePost(p); err != nil {
			t.Fatalf("CreatePost: %v", err)
		}
	}
	status := StatusPublished
	if err := repo.UpdatePost(p3.ID, PostUpdate{Status: &status}); err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}

	byAuthor, err := repo.ListPosts(1, "")
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(byAuthor) != 2 {
		t.Fatalf("ListPosts(1) = %d posts, want 2", len(byAuthor))
	}

	published, err := repo.ListPosts(0, StatusPublished)
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(published) != 1 || published[0].ID != p3.ID {
		t.Errorf("ListPosts(published) = %+v", published)
	}

	// Свежеобновлённый пост поднимается наверх.
	newText := "обновлён"
	if err := repo.UpdatePost(p1.ID, PostUpdate{Text: &newText}); err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}
	ordered, err := repo.ListPosts(1, "")
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if ordered[0].ID != p1.ID {
		t.Errorf("first post = #%d, want freshly updated #%d", ordered[0].ID, p1.ID)
	}
}

func TestGetPostByMessage(t *testing.T) {
	repo := newTestRepo(t)

	status := StatusPublished
	msgID := 42
	channel := "@chan"
	link := "https://t.me/chan/42"

	p := &Post{AuthorID: 1, Text: "опубликован"}
	if err := repo.CreatePost(p); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	err := repo.UpdatePost(p.ID, PostUpdate{
		Status: &status, PublishedMessageID: &msgID,
		PublishedLink: &link, PublishedChannel: &channel,
	})
	if err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}

	if got, ok := repo.GetPostByMessage("@chan", 42); !ok || got.ID != p.ID {
		t.Errorf("by channel = %+v, ok=%v", got, ok)
	}
	if _, ok := repo.GetPostByMessage("@chan", 43); ok {
		t.Error("wrong message id must miss")
	}

	// Легаси-запись: только message_id, без канала и ссылки.
	legacyMsg := 77
	legacy := &Post{AuthorID: 1, Text: "легаси"}
	if err := repo.CreatePost(legacy); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if err := repo.UpdatePost(legacy.ID, PostUpdate{PublishedMessageID: &legacyMsg}); err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}
	if got, ok := repo.GetPostByMessage("@other", 77); !ok || got.ID != legacy.ID {
		t.Errorf("legacy fallback = %+v, ok=%v", got, ok)
	}
}

func TestDeletePost(t *testing.T) {
	repo := newTestRepo(t)

	p := &Post{AuthorID: 1, Text: "на удаление"}
	if err := repo.CreatePost(p); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if err := repo.DeletePost(p.ID); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if _, ok := repo.GetPost(p.ID); ok {
		t.Error("post still present after delete")
	}
	// Повторное удаление безвредно.
	if err := repo.DeletePost(p.ID); err != nil {
		t.Errorf("second DeletePost: %v", err)
	}
}

func TestChannels(t *testing.T) {
	repo := newTestRepo(t)

	ch, err := repo.CreateChannel("@chan", "Канал", 100)
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	if ch.ID == 0 {
		t.Fatal("CreateChannel did not assign ID")
	}

	if _, err := repo.CreateChannel("@chan", "Дубль", 100); err == nil {
		t.Error("duplicate chat_id must fail")
	}

	got, ok := repo.GetChannelByChatID("@chan")
	if !ok || got.Title != "Канал" || got.AddedBy != 100 {
		t.Errorf("GetChannelByChatID = %+v, ok=%v", got, ok)
	}

	if _, err := repo.CreateChannel("-100123", "", 100); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	list, err := repo.ListChannels()
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("ListChannels = %d, want 2", len(list))
	}

	if err := repo.DeleteChannel("@chan"); err != nil {
		t.Fatalf("DeleteChannel: %v", err)
	}
	if _, ok := repo.GetChannelByChatID("@chan"); ok {
		t.Error("channel still present after delete")
	}
}

func TestPayloads(t *testing.T) {
	repo := newTestRepo(t)

	data := map[string]string{"callback": "open_draft:12345"}
	id, err := repo.SavePayload(data)
	if err != nil {
		t.Fatalf("SavePayload: %v", err)
	}
	if len(id) != 12 {
		t.Errorf("payload id length = %d, want 12 hex chars", len(id))
	}

	got, ok := repo.LoadPayload(id)
	if !ok || !reflect.DeepEqual(got, data) {
		t.Errorf("LoadPayload = %+v, ok=%v", got, ok)
	}

	if _, ok := repo.LoadPayload("missing"); ok {
		t.Error("missing payload must be a miss, not an error")
	}

	repo.DeletePayload(id)
	if _, ok := repo.LoadPayload(id); ok {
		t.Error("payload still present after delete")
	}
	repo.DeletePayload(id) // идемпотентно

	// Свежие записи переживают очистку.
	id2, _ := repo.SavePayload(data)
	repo.CleanOldPayloads()
	if _, ok := repo.LoadPayload(id2); !ok {
		t.Error("fresh payload removed by CleanOldPayloads")
	}
}
