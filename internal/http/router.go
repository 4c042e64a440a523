/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "time"

    "github.com/gin-gonic/gin"
    "github.com/google/uuid"
    "github.com/HamedShams/taskbridge/internal/config"
    "github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

func NewRouter(cfg config.Config, log zerolog.Logger, deps Deps) *gin.Engine {
    if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(requestID())
    r.Use(func(c *gin.Context){
        start := time.Now()
        c.Next()
        log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).
            Str("rid", c.GetString("request_id")).Dur("took", time.Since(start)).Msg("http")
    })

    h := NewHandlers(cfg, log, deps)

    r.GET("/", h.Root)
    r.GET("/healthz", h.Healthz)
    r.POST("/webhook/teams", h.TeamsWebhook)
    // Support both header-authenticated and path-secret webhook endpoints
    r.POST("/telegram/webhook", h.TelegramWebhook)
    r.POST("/telegram/webhook/:secret", h.TelegramWebhook)
    r.POST("/webhook/bitbucket", h.BitbucketWebhook)
    r.POST("/admin/extract", h.Extract)

    return r
}

// requestID reuses an inbound X-Request-ID or mints one.
func requestID() gin.HandlerFunc {
    return func(c *gin.Context) {
        id := c.GetHeader(requestIDHeader)
        if id == "" || len(id) > 128 { id = uuid.NewString() }
        c.Set("request_id", id)
        c.Header(requestIDHeader, id)
        c.Next()
    }
}
