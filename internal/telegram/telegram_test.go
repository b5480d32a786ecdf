package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClientWithBaseURL("123:testtoken", srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	return client
}

func TestNewClientRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(""); err == nil {
		t.Error("NewClient(\"\") should fail")
	}
}

func TestSendDocument(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bot123:testtoken/sendDocument") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}

		if got, want := r.FormValue("chat_id"), "-100200300"; got != want {
			t.Errorf("chat_id = %q, want %q", got, want)
		}
		if got, want := r.FormValue("message_thread_id"), "77"; got != want {
			t.Errorf("message_thread_id = %q, want %q", got, want)
		}
		if got, want := r.FormValue("caption"), "alice@example.com: Invoice"; got != want {
			t.Errorf("caption = %q, want %q", got, want)
		}

		file, header, err := r.FormFile("document")
		if err != nil {
			t.Fatalf("document part missing: %v", err)
		}
		defer file.Close()

		if got, want := header.Filename, "email-1.pdf"; got != want {
			t.Errorf("filename = %q, want %q", got, want)
		}
		content, _ := io.ReadAll(file)
		if string(content) != "%PDF-1.4" {
			t.Errorf("file content = %q", content)
		}

		fmt.Fprint(w, `{"ok":true,"result":{"message_id":5}}`)
	})

	err := client.SendDocument(context.Background(), Document{
		ChatID:   -100200300,
		TopicID:  77,
		Filename: "email-1.pdf",
		Content:  []byte("%PDF-1.4"),
		Caption:  "alice@example.com: Invoice",
	})
	if err != nil {
		t.Fatalf("SendDocument() error = %v", err)
	}
}

func TestSendDocumentWithoutTopicOmitsThreadID(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}

		if _, ok := r.MultipartForm.Value["message_thread_id"]; ok {
			t.Error("message_thread_id must be absent when no topic is set")
		}

		fmt.Fprint(w, `{"ok":true,"result":{"message_id":6}}`)
	})

	err := client.SendDocument(context.Background(), Document{
		ChatID:   -1,
		Filename: "a.pdf",
		Content:  []byte("x"),
	})
	if err != nil {
		t.Fatalf("SendDocument() error = %v", err)
	}
}

func TestSendDocumentTopicNotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: message thread not found"}`)
	})

	err := client.SendDocument(context.Background(), Document{
		ChatID:   -1,
		TopicID:  99,
		Filename: "a.pdf",
		Content:  []byte("x"),
	})
	if !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("SendDocument() error = %v, want ErrTopicNotFound", err)
	}
}

func TestSendDocumentOtherAPIError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	})

	err := client.SendDocument(context.Background(), Document{
		ChatID:   -1,
		Filename: "a.pdf",
		Content:  []byte("x"),
	})
	if err == nil {
		t.Fatal("SendDocument() should fail")
	}
	if errors.Is(err, ErrTopicNotFound) {
		t.Error("chat-not-found must not map to ErrTopicNotFound")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("error %q should carry the API description", err)
	}
}

func TestGetChat(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getChat") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"ok":true,"result":{"id":-100,"type":"supergroup","title":"Paper Trail","is_forum":true}}`)
	})

	chat, err := client.GetChat(context.Background(), -100)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}

	if !chat.IsForum {
		t.Error("IsForum should be true")
	}
	if got, want := chat.Title, "Paper Trail"; got != want {
		t.Errorf("Title = %q, want %q", got, want)
	}
}

func TestGetUpdates(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got, want := r.FormValue("offset"), "42"; got != want {
			t.Errorf("offset = %q, want %q", got, want)
		}
		if got, want := r.FormValue("timeout"), "30"; got != want {
			t.Errorf("timeout = %q, want %q", got, want)
		}

		fmt.Fprint(w, `{"ok":true,"result":[{"update_id":43,"message":{"message_id":7,"from":{"id":9,"username":"ops"},"chat":{"id":-100},"text":"/status"}}]}`)
	})

	updates, err := client.GetUpdates(context.Background(), 42, 30*time.Second)
	if err != nil {
		t.Fatalf("GetUpdates() error = %v", err)
	}

	if len(updates) != 1 {
		t.Fatalf("len(updates) = %d, want 1", len(updates))
	}
	if got, want := updates[0].Message.Text, "/status"; got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
	if got, want := updates[0].Message.From.Username, "ops"; got != want {
		t.Errorf("Username = %q, want %q", got, want)
	}
}

func TestTruncateCaption(t *testing.T) {
	t.Parallel()

	short := "short caption"
	if got := TruncateCaption(short); got != short {
		t.Errorf("TruncateCaption(short) = %q", got)
	}

	long := strings.Repeat("a", CaptionLimit+50)
	got := TruncateCaption(long)
	if len([]rune(got)) != CaptionLimit {
		t.Errorf("truncated length = %d, want %d", len([]rune(got)), CaptionLimit)
	}
	if !strings.HasSuffix(got, "…") {
		t.Error("truncated caption should end with an ellipsis")
	}
}
