package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// CaptionLimit is the longest caption the Bot API accepts on a document.
const CaptionLimit = 1024

// ErrTopicNotFound reports a delivery aimed at a forum topic the chat
// does not have (anymore). Callers are expected to retry without one.
var ErrTopicNotFound = errors.New("telegram: message thread not found")

// Document is one file delivery to a chat, optionally into a topic.
type Document struct {
	ChatID   int64
	TopicID  int64
	Filename string
	Content  []byte
	Caption  string
}

type Chat struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	IsForum bool   `json:"is_forum"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Message struct {
	MessageID       int64  `json:"message_id"`
	From            *User  `json:"from"`
	Chat            Chat   `json:"chat"`
	Text            string `json:"text"`
	MessageThreadID int64  `json:"message_thread_id"`
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Client interface {
	SendDocument(ctx context.Context, doc Document) error
	SendMessage(ctx context.Context, chatID, topicID int64, text string) error
	GetChat(ctx context.Context, chatID int64) (Chat, error)
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

func NewClient(token string) (Client, error) {
	return NewClientWithBaseURL(token, defaultBaseURL)
}

// NewClientWithBaseURL exists for tests and self-hosted Bot API servers.
func NewClientWithBaseURL(token, baseURL string) (Client, error) {
	if token == "" {
		return nil, errors.New("telegram bot token cannot be empty")
	}

	return &clientImpl{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		// long polls run up to a minute, leave headroom on top
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}, nil
}

type clientImpl struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

func (c *clientImpl) SendDocument(ctx context.Context, doc Document) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	_ = w.WriteField("chat_id", strconv.FormatInt(doc.ChatID, 10))
	if doc.TopicID > 0 {
		_ = w.WriteField("message_thread_id", strconv.FormatInt(doc.TopicID, 10))
	}
	if doc.Caption != "" {
		_ = w.WriteField("caption", doc.Caption)
	}

	part, err := w.CreateFormFile("document", doc.Filename)
	if err != nil {
		return fmt.Errorf("build document upload: %w", err)
	}
	if _, err := part.Write(doc.Content); err != nil {
		return fmt.Errorf("build document upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("build document upload: %w", err)
	}

	return c.call(ctx, "sendDocument", w.FormDataContentType(), &buf, nil)
}

func (c *clientImpl) SendMessage(ctx context.Context, chatID, topicID int64, text string) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	if topicID > 0 {
		form.Set("message_thread_id", strconv.FormatInt(topicID, 10))
	}
	form.Set("text", text)

	return c.call(ctx, "sendMessage", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()), nil)
}

func (c *clientImpl) GetChat(ctx context.Context, chatID int64) (Chat, error) {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))

	var chat Chat
	err := c.call(ctx, "getChat", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()), &chat)

	return chat, err
}

func (c *clientImpl) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	form := url.Values{}
	if offset != 0 {
		form.Set("offset", strconv.FormatInt(offset, 10))
	}
	form.Set("timeout", strconv.Itoa(int(timeout/time.Second)))
	form.Set("allowed_updates", `["message"]`)

	var updates []Update
	err := c.call(ctx, "getUpdates", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()), &updates)

	return updates, err
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

func (c *clientImpl) call(ctx context.Context, method, contentType string, body io.Reader, result interface{}) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}

	if !parsed.OK {
		if strings.Contains(strings.ToLower(parsed.Description), "message thread not found") {
			return fmt.Errorf("%w: %s", ErrTopicNotFound, parsed.Description)
		}
		return fmt.Errorf("%s failed with code %d: %s", method, parsed.ErrorCode, parsed.Description)
	}

	if result != nil {
		if err := json.Unmarshal(parsed.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}

	return nil
}

// TruncateCaption shortens a caption to what the Bot API accepts,
// keeping it valid UTF-8.
func TruncateCaption(s string) string {
	if len(s) <= CaptionLimit {
		return s
	}

	runes := []rune(s)
	if len(runes) <= CaptionLimit {
		return s
	}

	return string(runes[:CaptionLimit-1]) + "…"
}
