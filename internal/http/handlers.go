/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "io"
    "net/http"
    "strings"

    "github.com/gin-gonic/gin"
    "github.com/HamedShams/taskbridge/internal/adapters/bitbucket"
    "github.com/HamedShams/taskbridge/internal/adapters/telegram"
    "github.com/HamedShams/taskbridge/internal/config"
    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/HamedShams/taskbridge/internal/services"
    "github.com/HamedShams/taskbridge/internal/textnorm"
    "github.com/rs/zerolog"
)

const maxWebhookBody = 2 << 20

const helpText = "Send me a task in plain words, e.g.\n" +
    "Bug: Login fails on mobile\nassign to Minh, epic link DXAI, due tomorrow, priority high\n\n" +
    "Vietnamese works too: \"Sửa lỗi đăng nhập, gán cho Minh, hạn chót 20/01\"."

type intake interface {
    Handle(ctx context.Context, msg services.Message) services.Reply
    Preview(ctx context.Context, msg services.Message) (services.Plan, textnorm.Result)
}

type scmProcessor interface {
    Process(ctx context.Context, ev domain.SCMEvent) services.SCMResult
}

type backfiller interface {
    Backfill(ctx context.Context, ev *bitbucket.Event)
}

type messenger interface {
    SendMessagePlain(ctx context.Context, chatID int64, replyTo int64, text string) error
}

type runner interface {
    Go(name string, fn func(ctx context.Context)) string
}

// Deps are the services the webhooks drive. Background runs Telegram
// messages after the webhook has been acknowledged.
type Deps struct {
    Intake     intake
    SCM        scmProcessor
    Bitbucket  backfiller
    Telegram   messenger
    Background runner
}

type Handlers struct {
    cfg  config.Config
    log  zerolog.Logger
    deps Deps
}

func NewHandlers(cfg config.Config, log zerolog.Logger, deps Deps) *Handlers {
    return &Handlers{cfg: cfg, log: log, deps: deps}
}

func (h *Handlers) Root(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"service": "taskbridge", "ok": true})
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

type chatRequest struct {
    Text    string `json:"text"`
    Subject string `json:"subject"`
}

// TeamsWebhook answers an outgoing-webhook call synchronously; the reply is
// posted back into the conversation by Teams.
func (h *Handlers) TeamsWebhook(c *gin.Context) {
    var req chatRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"type": "message", "text": "❌ Invalid request body"})
        return
    }
    reply := h.deps.Intake.Handle(c.Request.Context(), services.Message{Text: req.Text, Subject: req.Subject, Source: "teams"})
    c.JSON(http.StatusOK, gin.H{"type": "message", "text": reply.Text})
}

func (h *Handlers) TelegramWebhook(c *gin.Context) {
    headerSecret := c.GetHeader("X-Telegram-Bot-Api-Secret-Token")
    pathSecret := c.Param("secret")
    // Accept either header secret (preferred) or path secret
    if h.cfg.TelegramWebhookSecret == "" || (headerSecret != h.cfg.TelegramWebhookSecret && pathSecret != h.cfg.TelegramWebhookSecret) {
        c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
        return
    }

    var upd telegram.Update
    if err := c.ShouldBindJSON(&upd); err != nil || upd.Message == nil {
        c.JSON(http.StatusOK, gin.H{"ok": true})
        return
    }
    msg := upd.Message
    if !h.chatAllowed(msg.Chat.ID) {
        h.log.Info().Int64("chat", msg.Chat.ID).Msg("telegram chat not allowed")
        c.JSON(http.StatusOK, gin.H{"ok": true})
        return
    }
    text := strings.TrimSpace(msg.Body())
    if text == "" {
        c.JSON(http.StatusOK, gin.H{"ok": true})
        return
    }
    chatID, replyTo := msg.Chat.ID, msg.MessageID
    // Telegram retries slow webhooks, so the message is handled after the ack.
    h.deps.Background.Go("telegram", func(ctx context.Context) {
        out := helpText
        if cmd, _, _ := strings.Cut(text, " "); cmd != "/start" && cmd != "/help" {
            out = h.deps.Intake.Handle(ctx, services.Message{Text: text, Source: "telegram"}).Text
        }
        if err := h.deps.Telegram.SendMessagePlain(ctx, chatID, replyTo, out); err != nil {
            h.log.Error().Err(err).Int64("chat", chatID).Msg("telegram reply failed")
        }
    })
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) chatAllowed(id int64) bool {
    if len(h.cfg.TelegramChatIDs) == 0 { return true }
    for _, allowed := range h.cfg.TelegramChatIDs {
        if allowed == id { return true }
    }
    return false
}

func (h *Handlers) BitbucketWebhook(c *gin.Context) {
    key := c.GetHeader("X-Event-Key")
    if key == "diagnostics:ping" {
        c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "pong"})
        return
    }
    body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
        return
    }
    ev, err := bitbucket.ParseEvent(key, body)
    if err != nil {
        status := "error"
        if errors.Is(err, bitbucket.ErrUnsupportedEvent) { status = "ignored" }
        h.log.Info().Err(err).Str("event", key).Msg("bitbucket event rejected")
        c.JSON(http.StatusBadRequest, gin.H{"status": status, "message": err.Error()})
        return
    }
    if h.deps.Bitbucket != nil { h.deps.Bitbucket.Backfill(c.Request.Context(), &ev) }
    res := h.deps.SCM.Process(c.Request.Context(), ev.SCMEvent)
    results := res.Results
    if results == nil { results = []services.IssueOutcome{} }
    c.JSON(http.StatusOK, gin.H{"status": "ok", "message": res.Message, "results": results})
}

// Extract previews what a message would become without creating anything.
func (h *Handlers) Extract(c *gin.Context) {
    var req chatRequest
    if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
        return
    }
    plan, nr := h.deps.Intake.Preview(c.Request.Context(), services.Message{Text: req.Text, Subject: req.Subject, Source: "admin"})
    deferred := make([]string, 0)
    for _, f := range plan.Deferred.Fields() { deferred = append(deferred, string(f)) }
    c.JSON(http.StatusOK, gin.H{
        "record":             plan.Record,
        "source":             plan.Source,
        "deferred":           deferred,
        "normalized":         nr.Text,
        "assignee_candidate": nr.AssigneeCandidate,
    })
}
