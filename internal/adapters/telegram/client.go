/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package telegram

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/HamedShams/taskbridge/internal/config"
    "github.com/rs/zerolog"
)

const defaultAPI = "https://api.telegram.org"

type Client struct {
    token string
    api   string
    http  *http.Client
    log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{token: cfg.TelegramToken, api: defaultAPI, http: &http.Client{Timeout: 10 * time.Second}, log: log}
}

// WithAPI points the client at another Bot API host.
func (c *Client) WithAPI(base string) *Client { c.api = strings.TrimRight(base, "/"); return c }

func (c *Client) Enabled() bool { return c.token != "" }

// Update is the subset of a Bot API update the bridge reads.
type Update struct {
    UpdateID int64    `json:"update_id"`
    Message  *Message `json:"message"`
}

type Message struct {
    MessageID int64  `json:"message_id"`
    Text      string `json:"text"`
    Caption   string `json:"caption"`
    Chat      struct {
        ID    int64  `json:"id"`
        Title string `json:"title"`
    } `json:"chat"`
    From *struct {
        Username  string `json:"username"`
        FirstName string `json:"first_name"`
        LastName  string `json:"last_name"`
    } `json:"from"`
}

// Body is the message text, or the caption for media posts.
func (m *Message) Body() string {
    if strings.TrimSpace(m.Text) != "" { return m.Text }
    return m.Caption
}

func (c *Client) call(ctx context.Context, method string, body map[string]any) error {
    if c.token == "" { return fmt.Errorf("telegram: missing token") }
    u := fmt.Sprintf("%s/bot%s/%s", c.api, c.token, method)
    b, err := json.Marshal(body)
    if err != nil { return err }
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
    if err != nil { return err }
    req.Header.Set("Content-Type", "application/json")
    resp, err := c.http.Do(req)
    if err != nil { return err }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
        return fmt.Errorf("telegram %s status=%d body=%s", method, resp.StatusCode, strings.TrimSpace(string(rb)))
    }
    return nil
}

// SendMessagePlain sends without parse_mode; issue titles are arbitrary user text.
func (c *Client) SendMessagePlain(ctx context.Context, chatID int64, replyTo int64, text string) error {
    if chatID == 0 { return fmt.Errorf("telegram: missing chat id") }
    body := map[string]any{"chat_id": chatID, "text": text, "disable_web_page_preview": true}
    if replyTo != 0 { body["reply_to_message_id"] = replyTo }
    return c.call(ctx, "sendMessage", body)
}

// SetWebhook registers the webhook URL and secret with Telegram
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secretToken string) error {
    if webhookURL == "" || secretToken == "" { return fmt.Errorf("telegram: missing url or secret") }
    return c.call(ctx, "setWebhook", map[string]any{
        "url":                  webhookURL,
        "secret_token":         secretToken,
        "drop_pending_updates": true,
        "allowed_updates":      []string{"message"},
    })
}
