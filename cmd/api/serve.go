/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/HamedShams/taskbridge/internal/adapters/bitbucket"
    "github.com/HamedShams/taskbridge/internal/adapters/jira"
    "github.com/HamedShams/taskbridge/internal/adapters/telegram"
    "github.com/HamedShams/taskbridge/internal/config"
    apihttp "github.com/HamedShams/taskbridge/internal/http"
    "github.com/HamedShams/taskbridge/internal/jobs"
    "github.com/HamedShams/taskbridge/internal/logger"
    "github.com/HamedShams/taskbridge/internal/services"
    "github.com/rs/zerolog"
    "github.com/spf13/cobra"
)

func newServeCmd(lexiconFile *string) *cobra.Command {
    return &cobra.Command{
        Use:   "serve",
        Short: "Run the webhook server",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, args []string) error {
            return runServe(cmd.Context(), *lexiconFile)
        },
    }
}

func runServe(parent context.Context, lexiconFile string) error {
    if parent == nil { parent = context.Background() }
    cfg := loadConfig(lexiconFile)
    log := logger.New(cfg)
    if err := cfg.Validate(); err != nil {
        log.Error().Err(err).Msg("invalid configuration")
        return err
    }
    ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
    defer stop()

    p, err := newPipeline(ctx, cfg, log, true)
    if err != nil { return err }
    if cfg.LexiconWatch && cfg.LexiconFile != "" {
        go func(){
            if err := p.lex.Watch(ctx); err != nil { log.Error().Err(err).Msg("lexicon watch stopped") }
        }()
    }

    // Adapters
    jc := jira.NewClient(cfg, log)
    catalog := jira.NewFieldCatalog(jc, cfg.JiraFieldMap, log)
    jc.UseCatalog(catalog)
    tg := telegram.NewClient(cfg, log)
    bb := bitbucket.NewClient(cfg, log)

    // Services
    disp := services.NewDispatcher(cfg.MaxConcurrency, cfg.DeferredTimeout, log)
    resolver := services.NewResolver(cfg, jc, p.lex, log)
    intake := services.NewIntake(p.norm, p.ai, p.recon, jc, resolver, disp, cfg.WebhookTimeout, log)
    scm := services.NewSCM(jc, cfg.MaxConcurrency, log)

    router := apihttp.NewRouter(cfg, log, apihttp.Deps{Intake: intake, SCM: scm, Bitbucket: bb, Telegram: tg, Background: disp})

    registerTelegram(cfg, log, tg)

    cron, err := jobs.NewCron(cfg, log, catalog)
    if err != nil { return err }
    cron.Start()
    defer cron.Stop()

    srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
    errCh := make(chan error, 1)
    go func() { errCh <- srv.ListenAndServe() }()
    log.Info().Str("addr", cfg.HTTPAddr).Str("project", cfg.JiraProjectKey).Msg("taskbridge listening")

    select {
    case <-ctx.Done():
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Error().Err(err).Msg("http server error")
            return err
        }
    }

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil { log.Error().Err(err).Msg("http shutdown") }
    drainDeferred(disp, cfg.DeferredTimeout, log)
    return nil
}

// registerTelegram sets the webhook only when PUBLIC_BASE_URL is HTTPS.
func registerTelegram(cfg config.Config, log zerolog.Logger, tg *telegram.Client) {
    if !tg.Enabled() || cfg.TelegramWebhookSecret == "" || !strings.HasPrefix(strings.ToLower(cfg.PublicBaseURL), "https://") { return }
    go func(){
        ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second); defer cancel()
        base := strings.TrimRight(cfg.PublicBaseURL, "/")
        webhookURL := base + "/telegram/webhook/" + cfg.TelegramWebhookSecret
        if err := tg.SetWebhook(ctx, webhookURL, cfg.TelegramWebhookSecret); err != nil {
            log.Error().Err(err).Str("url", base+"/telegram/webhook/***").Msg("telegram setWebhook failed")
        } else {
            log.Info().Str("url", base+"/telegram/webhook/***").Msg("telegram setWebhook ok")
        }
    }()
}

// drainDeferred gives background field updates a bounded chance to finish.
func drainDeferred(disp *services.Dispatcher, limit time.Duration, log zerolog.Logger) {
    done := make(chan struct{})
    go func() { disp.Wait(); close(done) }()
    select {
    case <-done:
        log.Info().Msg("background updates drained")
    case <-time.After(limit):
        log.Warn().Dur("waited", limit).Msg("background updates still running at exit")
    }
}
