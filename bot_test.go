package main

import (
	"strconv"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type sentMsg struct {
	chat   string
	text   string
	markup *tgbotapi.InlineKeyboardMarkup
}

type sentPhoto struct {
	chat    string
	fileID  string
	caption string
	markup  *tgbotapi.InlineKeyboardMarkup
}

// fakeTransport пишет все вызовы в журнал calls и позволяет подсунуть
// ошибку на каждую операцию отдельно.
type fakeTransport struct {
	calls   []string
	sent    []sentMsg
	photos  []sentPhoto
	answers []string

	nextID int

	sendErr    error
	textErr    error
	captionErr error
	mediaErr   error
	markupErr  error
	status     string
	statusErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{status: "administrator"}
}

func (f *fakeTransport) SendMessage(chat, text string, markup *tgbotapi.InlineKeyboardMarkup) (int, error) {
	f.calls = append(f.calls, "send_message")
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, sentMsg{chat, text, markup})
	return f.nextID, nil
}

func (f *fakeTransport) SendPhoto(chat, fileID, caption string, markup *tgbotapi.InlineKeyboardMarkup) (int, error) {
	f.calls = append(f.calls, "send_photo")
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextID++
	f.photos = append(f.photos, sentPhoto{chat, fileID, caption, markup})
	return f.nextID, nil
}

func (f *fakeTransport) EditText(chat string, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	f.calls = append(f.calls, "edit_text")
	return f.textErr
}

func (f *fakeTransport) EditCaption(chat string, messageID int, caption string, markup *tgbotapi.InlineKeyboardMarkup) error {
	f.calls = append(f.calls, "edit_caption")
	return f.captionErr
}

func (f *fakeTransport) EditMedia(chat string, messageID int, fileID, caption string) error {
	f.calls = append(f.calls, "edit_media")
	return f.mediaErr
}

func (f *fakeTransport) EditMarkup(chat string, messageID int, markup *tgbotapi.InlineKeyboardMarkup) error {
	f.calls = append(f.calls, "edit_markup")
	return f.markupErr
}

func (f *fakeTransport) GetChatMemberStatus(chat string, userID int64) (string, error) {
	f.calls = append(f.calls, "get_chat_member")
	return f.status, f.statusErr
}

func (f *fakeTransport) AnswerCallback(callbackID, text string) error {
	f.answers = append(f.answers, text)
	return nil
}

// count вызовов одной операции.
func (f *fakeTransport) count(op string) int {
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeTransport) lastAnswer() string {
	for i := len(f.answers) - 1; i >= 0; i-- {
		if f.answers[i] != "" {
			return f.answers[i]
		}
	}
	return ""
}

func newTestBot(t *testing.T) (*Bot, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	b := &Bot{
		cfg:      Config{ChannelID: "@chan"},
		repo:     newTestRepo(t),
		tg:       ft,
		sessions: newSessionStore(),
		selfID:   999,
	}
	return b, ft
}

func testCb(userID int64) cbRef {
	return cbRef{id: "cb1", userID: userID, chat: "777", messageID: 10}
}

func TestNewPostTextFlow(t *testing.T) {
	b, ft := newTestBot(t)

	b.cmdNewPost(7, "777")
	sess, ok := b.sessions.draft(7)
	if !ok || sess.state != draftAwaitText {
		t.Fatalf("session after /newpost: %+v, ok=%v", sess, ok)
	}

	if !b.handleDraftText(7, "777", "Текст поста") {
		t.Fatal("handleDraftText must consume input")
	}
	if sess.post.Text != "Текст поста" || sess.state != draftIdle {
		t.Errorf("session = %+v", sess)
	}
	if len(ft.sent) == 0 || ft.sent[len(ft.sent)-1].markup == nil {
		t.Error("post menu not sent after text")
	}
}

func TestHandleDraftTextNoSession(t *testing.T) {
	b, _ := newTestBot(t)
	if b.handleDraftText(7, "777", "мимо") {
		t.Error("input without session must pass through")
	}
}

func TestKeyboardBuildFlow(t *testing.T) {
	b, _ := newTestBot(t)
	b.cmdNewPost(7, "777")
	b.handleDraftText(7, "777", "Текст")

	cb := testCb(7)
	b.handleDraftCallback(cb, "kb_add_button")
	sess, _ := b.sessions.draft(7)
	if sess.state != draftAwaitKbRowIndex {
		t.Fatalf("state = %v, want awaiting row index", sess.state)
	}

	b.handleDraftText(7, "777", "-1")
	if sess.state != draftAwaitButtonInput {
		t.Fatalf("state = %v, want awaiting button input", sess.state)
	}

	b.handleDraftText(7, "777", "Сайт\nhttps://example.com")
	if sess.state != draftIdle {
		t.Fatalf("state = %v, want idle", sess.state)
	}
	kb := sess.post.Keyboard
	if len(kb) != 1 || len(kb[0]) != 1 || kb[0][0].URL != "https://example.com" {
		t.Errorf("keyboard = %+v", kb)
	}

	// Вторая строка без URL-схемы — callback-токен.
	b.handleDraftCallback(cb, "kb_add_button")
	b.handleDraftText(7, "777", "0")
	b.handleDraftText(7, "777", "Действие\nmy_token")
	kb = sess.post.Keyboard
	if len(kb[0]) != 2 || kb[0][1].CallbackData != "my_token" {
		t.Errorf("keyboard = %+v", kb)
	}
}

func TestSaveDraft(t *testing.T) {
	b, _ := newTestBot(t)
	b.cmdNewPost(7, "777")
	b.handleDraftText(7, "777", "Черновик")

	b.handleDraftCallback(testCb(7), "save_draft")
	sess, _ := b.sessions.draft(7)
	if sess.post.ID == 0 {
		t.Fatal("draft not persisted")
	}

	// Повторное сохранение обновляет ту же запись.
	sess.post.Text = "Черновик v2"
	b.handleDraftCallback(testCb(7), "save_draft")
	got, ok := b.repo.GetPost(sess.post.ID)
	if !ok || got.Text != "Черновик v2" {
		t.Errorf("saved draft = %+v, ok=%v", got, ok)
	}
	posts, _ := b.repo.ListPosts(7, "")
	if len(posts) != 1 {
		t.Errorf("posts = %d, want 1", len(posts))
	}
}

func TestPublishTextPost(t *testing.T) {
	b, ft := newTestBot(t)
	b.cmdNewPost(7, "777")
	b.handleDraftText(7, "777", "Публикуем")

	b.handleDraftCallback(testCb(7), "publish")

	if len(ft.sent) == 0 {
		t.Fatal("nothing sent to channel")
	}
	last := ft.sent[len(ft.sent)-1]
	if last.chat != "@chan" || last.text != "Публикуем" {
		t.Errorf("sent = %+v", last)
	}

	posts, _ := b.repo.ListPosts(7, StatusPublished)
	if len(posts) != 1 {
		t.Fatalf("published posts = %d, want 1", len(posts))
	}
	p := posts[0]
	if p.PublishedChannel != "@chan" || p.PublishedMessageID == 0 {
		t.Errorf("published post = %+v", p)
	}
	if want := publishedLink("@chan", p.PublishedMessageID); p.PublishedLink != want {
		t.Errorf("link = %q, want %q", p.PublishedLink, want)
	}
}

func TestPublishChannelOverride(t *testing.T) {
	b, ft := newTestBot(t)
	b.cmdNewPost(7, "777")
	b.handleDraftText(7, "777", "В другой канал")

	b.handleDraftCallback(testCb(7), "select_channel:-1009999")
	b.handleDraftCallback(testCb(7), "publish")

	last := ft.sent[len(ft.sent)-1]
	if last.chat != "-1009999" {
		t.Errorf("sent to %q, want session override -1009999", last.chat)
	}
}

func TestPublishCaptionTooLong(t *testing.T) {
	b, ft := newTestBot(t)
	b.cmdNewPost(7, "777")
	b.handleDraftPhoto(7, "777", "photo1")
	sess, _ := b.sessions.draft(7)
	sess.post.Text = strings.Repeat("ы", maxCaptionLen+1)

	before := ft.count("send_photo")
	b.handleDraftCallback(testCb(7), "publish")

	if ft.count("send_photo") != before {
		t.Error("oversized caption must be rejected before transport")
	}
	if !strings.Contains(ft.lastAnswer(), "подпись") {
		t.Errorf("answer = %q, want caption error", ft.lastAnswer())
	}
	if _, ok := b.sessions.draft(7); !ok {
		t.Error("session must survive rejection")
	}
}

func TestPublishTextTooLong(t *testing.T) {
	b, ft := newTestBot(t)
	b.cmdNewPost(7, "777")
	sess, _ := b.sessions.draft(7)
	sess.post.Text = strings.Repeat("ы", maxTextLen+1)
	sess.state = draftIdle

	before := ft.count("send_message")
	b.handleDraftCallback(testCb(7), "publish")
	if ft.count("send_message") != before {
		t.Error("oversized text must be rejected before transport")
	}
}

func TestPublishSurvivesTransportFailure(t *testing.T) {
	b, ft := newTestBot(t)
	b.cmdNewPost(7, "777")
	b.handleDraftText(7, "777", "Не уйдёт")
	ft.sendErr = &tgbotapi.Error{Code: 403, Message: "Forbidden: bot is not a member"}

	b.handleDraftCallback(testCb(7), "publish")

	if _, ok := b.sessions.draft(7); !ok {
		t.Error("session must survive send failure")
	}
	if posts, _ := b.repo.ListPosts(7, ""); len(posts) != 0 {
		t.Error("failed publish must not persist the post")
	}
	if !strings.Contains(ft.lastAnswer(), "прав") {
		t.Errorf("answer = %q, want membership hint", ft.lastAnswer())
	}
}

func TestCancel(t *testing.T) {
	b, ft := newTestBot(t)
	b.cmdNewPost(7, "777")
	b.cmdCancel(7, "777")
	if _, ok := b.sessions.draft(7); ok {
		t.Error("session survived /cancel")
	}
	b.cmdCancel(7, "777")
	last := ft.sent[len(ft.sent)-1]
	if !strings.Contains(last.text, "нет активных") {
		t.Errorf("second cancel reply = %q", last.text)
	}
}

func TestOpenAndDeleteDraft(t *testing.T) {
	b, ft := newTestBot(t)
	p := &Post{AuthorID: 7, Text: "Сохранённый"}
	if err := b.repo.CreatePost(p); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	b.handleDraftCallback(testCb(7), "open_draft:"+strconv.FormatInt(p.ID, 10))
	sess, ok := b.sessions.draft(7)
	if !ok || sess.post.ID != p.ID || sess.post.Text != "Сохранённый" {
		t.Fatalf("session after open_draft = %+v, ok=%v", sess, ok)
	}
	if len(ft.sent) == 0 {
		t.Fatal("draft preview not sent")
	}

	b.handleDraftCallback(testCb(7), "delete_draft:"+strconv.FormatInt(p.ID, 10))
	if _, ok := b.repo.GetPost(p.ID); ok {
		t.Error("draft still in repo after delete_draft")
	}
}

func TestChannelLifecycleViaCallbacks(t *testing.T) {
	b, _ := newTestBot(t)
	b.cmdAddChannel(7, "777")
	b.handleDraftText(7, "777", "@news\nНовости")

	ch, ok := b.repo.GetChannelByChatID("@news")
	if !ok || ch.Title != "Новости" {
		t.Fatalf("channel = %+v, ok=%v", ch, ok)
	}

	// Дубль не создаётся.
	b.cmdAddChannel(7, "777")
	b.handleDraftText(7, "777", "@news")
	list, _ := b.repo.ListChannels()
	if len(list) != 1 {
		t.Errorf("channels = %d, want 1", len(list))
	}

	b.handleDraftCallback(testCb(7), "delete_channel:@news")
	if _, ok := b.repo.GetChannelByChatID("@news"); ok {
		t.Error("channel still present after delete_channel")
	}
}

func TestPayloadCallbackDispatch(t *testing.T) {
	b, ft := newTestBot(t)
	if _, err := b.repo.CreateChannel("@gone", "", 7); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	id, err := b.repo.SavePayload(map[string]string{"callback": "delete_channel:@gone"})
	if err != nil {
		t.Fatalf("SavePayload: %v", err)
	}

	b.handleDraftCallback(testCb(7), "kb_payload:"+id)
	if _, ok := b.repo.GetChannelByChatID("@gone"); ok {
		t.Error("stored callback not re-dispatched")
	}

	b.handleDraftCallback(testCb(7), "kb_payload:missing")
	if !strings.Contains(ft.lastAnswer(), "устарели") {
		t.Errorf("answer = %q, want stale payload notice", ft.lastAnswer())
	}

	// Неизвестный исходный callback возвращается оператору как есть.
	id2, _ := b.repo.SavePayload(map[string]string{"callback": "custom_action_42"})
	b.handleDraftCallback(testCb(7), "kb_payload:"+id2)
	if !strings.Contains(ft.lastAnswer(), "custom_action_42") {
		t.Errorf("answer = %q, want original callback echoed", ft.lastAnswer())
	}
}

func TestDocumentNotTakenAsDraftPhoto(t *testing.T) {
	b, _ := newTestBot(t)
	b.cmdNewPost(7, "777")
	msg := &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 7},
		Chat:     &tgbotapi.Chat{ID: 777},
		Document: &tgbotapi.Document{FileID: "doc1"},
	}
	b.dispatch(tgbotapi.Update{Message: msg})
	sess, _ := b.sessions.draft(7)
	if sess.post.PhotoFileID != "" {
		t.Errorf("draft photo = %q, want empty", sess.post.PhotoFileID)
	}
}

func TestPublishStoresLongCallbackPayload(t *testing.T) {
	b, ft := newTestBot(t)
	b.cmdNewPost(7, "777")
	b.handleDraftText(7, "777", "С длинной кнопкой")
	sess, _ := b.sessions.draft(7)
	long := strings.Repeat("q", 90)
	sess.post.Keyboard = Keyboard{{ActionButton("Кнопка", long)}}

	b.handleDraftCallback(testCb(7), "publish")

	last := ft.sent[len(ft.sent)-1]
	if last.markup == nil {
		t.Fatal("published without markup")
	}
	data := *last.markup.InlineKeyboard[0][0].CallbackData
	if !strings.HasPrefix(data, "kb_payload:") {
		t.Fatalf("callback data = %q, want kb_payload: indirection", data)
	}
	stored, ok := b.repo.LoadPayload(strings.TrimPrefix(data, "kb_payload:"))
	if !ok || stored["callback"] != long {
		t.Errorf("stored payload = %+v, ok=%v", stored, ok)
	}
}
