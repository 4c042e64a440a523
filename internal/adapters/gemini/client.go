/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package gemini is the default generation backend.
package gemini

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "strings"

    "github.com/HamedShams/taskbridge/internal/config"
    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/rs/zerolog"
    "google.golang.org/genai"
)

type Client struct {
    cli   *genai.Client
    model string
    log   zerolog.Logger
}

// NewClient builds a Gemini API client. baseURL is empty except in tests.
func NewClient(ctx context.Context, cfg config.Config, log zerolog.Logger, baseURL string) (*Client, error) {
    if strings.TrimSpace(cfg.GeminiAPIKey) == "" { return nil, errors.New("gemini: missing GEMINI_API_KEY") }
    model := cfg.GeminiModel
    if model == "" { model = "gemini-2.5-flash" }
    cc := &genai.ClientConfig{
        APIKey:     cfg.GeminiAPIKey,
        Backend:    genai.BackendGeminiAPI,
        HTTPClient: &http.Client{Timeout: cfg.LLMHTTPTimeout},
    }
    if baseURL != "" { cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL} }
    cli, err := genai.NewClient(ctx, cc)
    if err != nil { return nil, fmt.Errorf("gemini: create client: %w", err) }
    return &Client{cli: cli, model: model, log: log}, nil
}

func (c *Client) Name() string { return "gemini:" + c.model }

func (c *Client) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
    gc := &genai.GenerateContentConfig{Temperature: genai.Ptr(opts.Temperature)}
    if opts.JSON { gc.ResponseMIMEType = "application/json" }
    c.log.Debug().Str("model", c.model).Int("prompt_len", len(prompt)).Msg("gemini generate call")
    resp, err := c.cli.Models.GenerateContent(ctx, c.model, genai.Text(prompt), gc)
    if err != nil { return "", fmt.Errorf("gemini: %w", err) }
    text := resp.Text()
    if strings.TrimSpace(text) == "" { return "", errors.New("gemini: empty response") }
    return text, nil
}
