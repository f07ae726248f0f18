package telegram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/intakebot/core/chat"
	"github.com/m3rciful/intakebot/core/telegram/commands"
)

func commandsFixture(desc string) commands.Command {
	return commands.Command{Description: desc}
}

// fakeBotAPI answers Bot API methods with canned JSON bodies.
type fakeBotAPI struct {
	mu      sync.Mutex
	replies map[string]string
	calls   []string
	bodies  map[string]string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.bodies[method] = string(body)
	reply, ok := f.replies[method]
	f.mu.Unlock()
	if !ok {
		reply = `{"ok":true,"result":true}`
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, reply)
}

func newTestClient(t *testing.T, replies map[string]string) (*Client, *fakeBotAPI) {
	t.Helper()
	api := &fakeBotAPI{replies: replies, bodies: make(map[string]string)}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	client, err := NewClient(ClientOptions{
		Token:      "123:abc",
		APIURL:     srv.URL,
		HTTPClient: srv.Client(),
		Offline:    true,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, api
}

func TestFetchConvertsUpdates(t *testing.T) {
	client, api := newTestClient(t, map[string]string{
		"getUpdates": `{"ok":true,"result":[
			{"update_id":7,"message":{"message_id":70,"date":0,"text":"/start","from":{"id":1,"first_name":"Ann","username":"ann","language_code":"en"},"chat":{"id":1,"type":"private"}}},
			{"update_id":8,"callback_query":{"id":"cb-1","data":"menu_order","from":{"id":1,"first_name":"Ann"}}},
			{"update_id":9,"message":{"message_id":71,"date":0,"from":{"id":1,"first_name":"Ann"},"chat":{"id":1,"type":"private"}}},
			{"update_id":10,"message":{"message_id":72,"date":0,"text":"hi all","from":{"id":2,"first_name":"Bob"},"chat":{"id":-5,"type":"group"}}}
		]}`,
	})

	events, err := client.Fetch(context.Background(), 7, time.Second)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	m, ok := events[0].(chat.Message)
	if !ok || m.Text != "/start" || m.MessageID != 70 || m.From.Language != "en" || m.From.Username != "ann" {
		t.Fatalf("unexpected message event %#v", events[0])
	}
	cb, ok := events[1].(chat.Callback)
	if !ok || cb.CallbackID != "cb-1" || cb.Data != "menu_order" || cb.From.ID != 1 {
		t.Fatalf("unexpected callback event %#v", events[1])
	}
	for _, i := range []int{2, 3} {
		if _, ok := events[i].(chat.Ignored); !ok {
			t.Fatalf("event %d should be ignored, got %#v", i, events[i])
		}
	}
	if body := api.bodies["getUpdates"]; !strings.Contains(body, `"offset":"7"`) {
		t.Fatalf("offset not sent: %s", body)
	}
}

func TestFetchReturnsOnCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client, err := NewClient(ClientOptions{Token: "1:x", APIURL: srv.URL, HTTPClient: srv.Client(), Offline: true})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.Fetch(ctx, 0, time.Second); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestSendAndUpload(t *testing.T) {
	client, api := newTestClient(t, map[string]string{
		"sendMessage": `{"ok":true,"result":{"message_id":11,"date":0,"chat":{"id":1,"type":"private"},"text":"hello"}}`,
		"sendPhoto":   `{"ok":true,"result":{"message_id":12,"date":0,"chat":{"id":-100,"type":"channel"},"photo":[{"file_id":"FILE","file_unique_id":"UNIQ","width":10,"height":10}]}}`,
	})
	ctx := context.Background()

	id, err := client.SendText(ctx, 1, "hello", chat.Keyboard{chat.Row(chat.Button{Text: "Go", Data: "menu_order"})})
	if err != nil || id != 11 {
		t.Fatalf("send text: id=%d err=%v", id, err)
	}
	if body := api.bodies["sendMessage"]; !strings.Contains(body, "menu_order") {
		t.Fatalf("keyboard missing from request: %s", body)
	}

	media, err := client.Upload(ctx, -100, []byte("png"), "[CACHE] order/task")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if media.MessageID != 12 || media.FileID != "FILE" || media.UniqueID != "UNIQ" {
		t.Fatalf("unexpected media %+v", media)
	}

	if err := client.Delete(ctx, 1, 11); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := client.AnswerCallback(ctx, "cb"); err != nil {
		t.Fatalf("answer: %v", err)
	}
}

func TestSendPhotoReportsStaleHandle(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"sendPhoto": `{"ok":false,"error_code":400,"description":"Bad Request: wrong file identifier/HTTP URL specified"}`,
	})
	_, err := client.SendPhoto(context.Background(), 1, chat.Media{FileID: "old"}, "caption", nil)
	if !errors.Is(err, chat.ErrStaleMedia) {
		t.Fatalf("expected stale media error, got %v", err)
	}
}

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCommand("/start", commandsFixture("Start")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterCommand("menu", commandsFixture("Menu")); err == nil {
		t.Fatal("expected error without slash")
	}
	if err := reg.RegisterCommand("/start", commandsFixture("Again")); err == nil {
		t.Fatal("expected duplicate error")
	}
	list := reg.ListCommands(true)
	if len(list) != 1 || list[0].Text != "start" {
		t.Fatalf("unexpected command menu %+v", list)
	}
	if name, _, ok := reg.LookupCommand("START"); !ok || name != "/start" {
		t.Fatalf("lookup failed: %q %v", name, ok)
	}
}
