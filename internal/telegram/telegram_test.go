package telegram

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestFromUpdate(t *testing.T) {
	chat := &tgbotapi.Chat{ID: 42}
	from := &tgbotapi.User{ID: 7, UserName: "ann", FirstName: "Ann"}

	in, ok := FromUpdate(tgbotapi.Update{UpdateID: 3, Message: &tgbotapi.Message{MessageID: 9, Chat: chat, From: from, Text: "  hi  "}})
	if !ok || in.UpdateID != 3 || in.MessageID != 9 || in.ChatID != 42 || in.UserID != 7 || in.Text != "hi" {
		t.Fatalf("in = %+v, %v", in, ok)
	}

	ignored := []tgbotapi.Update{
		{UpdateID: 1},
		{UpdateID: 2, Message: &tgbotapi.Message{Chat: chat, Text: "no sender"}},
		{UpdateID: 3, Message: &tgbotapi.Message{From: from, Text: "no chat"}},
		{UpdateID: 4, Message: &tgbotapi.Message{Chat: chat, From: from, Text: "   "}},
		{UpdateID: 5, EditedMessage: &tgbotapi.Message{Chat: chat, From: from, Text: "edit"}},
	}
	for _, u := range ignored {
		if _, ok := FromUpdate(u); ok {
			t.Errorf("update %d accepted", u.UpdateID)
		}
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		in   Inbound
		want string
	}{
		{Inbound{Username: "ann", FirstName: "Ann"}, "ann"},
		{Inbound{FirstName: "Ann"}, "Ann"},
		{Inbound{}, "there"},
	}
	for _, c := range cases {
		if got := c.in.DisplayName(); got != c.want {
			t.Errorf("DisplayName(%+v) = %q", c.in, got)
		}
	}
}

func TestEscapeAndBold(t *testing.T) {
	if got := Escape(`<a href="x">&'`); got != "&lt;a href=&#34;x&#34;&gt;&amp;&#39;" {
		t.Fatalf("Escape = %q", got)
	}
	if got := Bold("Zen & <me>"); got != "<b>Zen &amp; &lt;me&gt;</b>" {
		t.Fatalf("Bold = %q", got)
	}
}

const token = "123456:TEST-token"

func sign(authDate time.Time, user string) string {
	vals := map[string]string{
		"auth_date": strconv.FormatInt(authDate.Unix(), 10),
		"query_id":  "AAH-test",
	}
	if user != "" {
		vals["user"] = user
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+vals[k])
	}
	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(token))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))

	q := url.Values{}
	for k, v := range vals {
		q.Set(k, v)
	}
	q.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return q.Encode()
}

func TestVerifyInitData(t *testing.T) {
	now := time.Now()
	raw := sign(now, `{"id":77,"first_name":"Ann","last_name":"Lee","username":"ann"}`)

	u, err := VerifyInitData(raw, token, time.Hour)
	if err != nil {
		t.Fatalf("VerifyInitData: %v", err)
	}
	if u.ID != 77 || u.Username != "ann" || u.FirstName != "Ann" || u.LastName != "Lee" {
		t.Fatalf("user = %+v", u)
	}

	if _, err := VerifyInitData(" ", token, time.Hour); !errors.Is(err, ErrInitDataMissing) {
		t.Fatalf("blank = %v", err)
	}
	invalid := map[string]struct {
		raw    string
		token  string
		maxAge time.Duration
	}{
		"wrong token": {raw, "999:other", time.Hour},
		"tampered":    {strings.Replace(raw, "AAH-test", "AAH-evil", 1), token, time.Hour},
		"expired":     {sign(now.Add(-2*time.Hour), `{"id":77}`), token, time.Hour},
		"no user":     {sign(now, ""), token, time.Hour},
	}
	for name, c := range invalid {
		if _, err := VerifyInitData(c.raw, c.token, c.maxAge); !errors.Is(err, ErrInitDataInvalid) {
			t.Errorf("%s: err = %v", name, err)
		}
	}

	// a non-positive maxAge disables the expiry check
	old := sign(now.Add(-48*time.Hour), `{"id":5}`)
	if u, err := VerifyInitData(old, token, -time.Second); err != nil || u.ID != 5 {
		t.Fatalf("no expiry = %+v, %v", u, err)
	}
}

// fakeBotAPI answers the Bot API methods the transport uses and records the
// form of every call.
type fakeBotAPI struct {
	mu    sync.Mutex
	calls []url.Values
	paths []string
	fail  bool
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.calls = append(f.calls, r.PostForm)
	fail := f.fail
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	method := r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
	switch {
	case method == "getMe":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Bot","username":"test_bot"}}`))
	case fail:
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	case method == "sendMessage":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":11,"date":0,"chat":{"id":5,"type":"private"}}}`))
	case method == "sendChatAction":
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	default:
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
	}
}

func (f *fakeBotAPI) last() (string, url.Values) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paths[len(f.paths)-1], f.calls[len(f.calls)-1]
}

func newBotTransport(t *testing.T) (*BotTransport, *fakeBotAPI) {
	t.Helper()
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	bt, err := NewBotTransport(token, srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("NewBotTransport: %v", err)
	}
	return bt, api
}

func TestBotTransport(t *testing.T) {
	bt, api := newBotTransport(t)
	ctx := context.Background()

	bt.SendMessage(ctx, 5, Bold("Zen")+"\n\nhello")
	path, form := api.last()
	if path != "/bot"+token+"/sendMessage" {
		t.Fatalf("path = %s", path)
	}
	if form.Get("chat_id") != "5" || form.Get("parse_mode") != "HTML" || form.Get("text") != "<b>Zen</b>\n\nhello" {
		t.Fatalf("form = %v", form)
	}

	bt.SendChatAction(ctx, 5, ActionTyping)
	path, form = api.last()
	if !strings.HasSuffix(path, "/sendChatAction") || form.Get("action") != "typing" {
		t.Fatalf("chat action = %s %v", path, form)
	}

	// API failures are logged, not returned or panicked on
	api.mu.Lock()
	api.fail = true
	api.mu.Unlock()
	bt.SendMessage(ctx, 5, "lost")
	bt.SendChatAction(ctx, 5, ActionTyping)
}

func TestNewBotTransport_Errors(t *testing.T) {
	if _, err := NewBotTransport("", "", nil); err == nil {
		t.Fatal("empty token accepted")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	t.Cleanup(srv.Close)
	if _, err := NewBotTransport(token, srv.URL+"/bot%s/%s", srv.Client()); err == nil {
		t.Fatal("rejected token accepted")
	}
}

func TestLogTransport(t *testing.T) {
	var tr Transport = LogTransport{}
	tr.SendMessage(context.Background(), 1, "hello")
	tr.SendChatAction(context.Background(), 1, ActionTyping)
}
