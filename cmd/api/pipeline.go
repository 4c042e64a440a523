/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "fmt"

    "github.com/HamedShams/taskbridge/internal/adapters/gemini"
    "github.com/HamedShams/taskbridge/internal/adapters/openai"
    "github.com/HamedShams/taskbridge/internal/config"
    "github.com/HamedShams/taskbridge/internal/directive"
    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/HamedShams/taskbridge/internal/extraction"
    "github.com/HamedShams/taskbridge/internal/lexicon"
    "github.com/HamedShams/taskbridge/internal/services"
    "github.com/HamedShams/taskbridge/internal/textnorm"
    "github.com/rs/zerolog"
)

func loadConfig(lexiconFlag string) config.Config {
    cfg := config.Load()
    if lexiconFlag != "" { cfg.LexiconFile = lexiconFlag }
    return cfg
}

// pipeline is the message-to-record half of the bridge; it needs no Jira.
type pipeline struct {
    lex   *lexicon.Store
    norm  *textnorm.Normalizer
    ai    *extraction.Extractor
    recon *services.Reconciler
}

func newPipeline(ctx context.Context, cfg config.Config, log zerolog.Logger, withAI bool) (*pipeline, error) {
    store, err := lexicon.NewStore(cfg.LexiconFile, log)
    if err != nil { return nil, err }
    opts := []directive.Option{directive.WithSummaryMax(cfg.SummaryMaxLen)}
    if p, ok := domain.ParsePriority(cfg.DefaultPriority); ok { opts = append(opts, directive.WithDefaultPriority(p)) }
    rules := directive.New(store, opts...)

    var gen extraction.Generator
    if withAI {
        gen, err = newGenerator(ctx, cfg, log)
        if err != nil { return nil, err }
    }
    if gen == nil {
        log.Warn().Str("provider", cfg.LLMProvider).Msg("no model configured; every message uses the directive fallback")
    } else {
        log.Info().Str("generator", gen.Name()).Dur("budget", cfg.AITimeout).Msg("ai extraction enabled")
    }
    return &pipeline{
        lex:   store,
        norm:  textnorm.New(store, cfg.BotMentionName),
        ai:    extraction.New(gen, rules, cfg.AITimeout, log),
        recon: services.NewReconciler(store, rules),
    }, nil
}

// newGenerator returns nil when the provider is off or has no key.
func newGenerator(ctx context.Context, cfg config.Config, log zerolog.Logger) (extraction.Generator, error) {
    switch cfg.LLMProvider {
    case "gemini":
        if cfg.GeminiAPIKey == "" { return nil, nil }
        g, err := gemini.NewClient(ctx, cfg, log, "")
        if err != nil { return nil, fmt.Errorf("gemini: %w", err) }
        return g, nil
    case "openai":
        if cfg.OpenAIKey == "" { return nil, nil }
        return openai.NewClient(cfg, log), nil
    }
    return nil, nil
}
