package chat

import "testing"

func TestMessageCommand(t *testing.T) {
	cases := map[string]string{
		"/start":             "/start",
		"/Start":             "/start",
		"/menu@intake_bot":   "/menu",
		"  /language please": "/language",
		"hello":              "",
		"":                   "",
	}
	for in, want := range cases {
		got := Message{Text: in}.Command()
		if got != want {
			t.Fatalf("Command(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := (User{FirstName: "Ann", LastName: "Lee"}).DisplayName(); got != "Ann Lee" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := (User{Username: "ann"}).DisplayName(); got != "ann" {
		t.Fatalf("expected username fallback, got %q", got)
	}
	if got := (User{}).DisplayName(); got != "Unknown" {
		t.Fatalf("expected Unknown, got %q", got)
	}
}

func TestSender(t *testing.T) {
	u := User{ID: 7}
	for _, ev := range []Event{Message{From: u}, Callback{From: u}, Ignored{From: u}} {
		if Sender(ev).ID != 7 {
			t.Fatalf("sender not extracted from %s", ev.Kind())
		}
	}
}
