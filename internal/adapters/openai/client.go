/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package openai

import (
    "context"
    "errors"
    "fmt"
    "strings"

    "github.com/HamedShams/taskbridge/internal/config"
    "github.com/HamedShams/taskbridge/internal/domain"
    oai "github.com/openai/openai-go/v2"
    "github.com/openai/openai-go/v2/option"
    "github.com/openai/openai-go/v2/shared"
    "github.com/rs/zerolog"
)

const systemPrompt = "You turn chat messages into issue-tracker tasks. Answer with one JSON object and nothing else."

// Client generates task JSON through the Chat Completions API.
type Client struct {
    key   string
    model string
    cli   oai.Client
    log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger, opts ...option.RequestOption) *Client {
    model := cfg.OpenAIModel
    if strings.TrimSpace(model) == "" { model = "gpt-4o-mini" }
    base := []option.RequestOption{
        option.WithAPIKey(cfg.OpenAIKey),
        option.WithRequestTimeout(cfg.LLMHTTPTimeout),
        option.WithMaxRetries(0),
    }
    cli := oai.NewClient(append(base, opts...)...)
    return &Client{key: cfg.OpenAIKey, model: model, cli: cli, log: log}
}

func (c *Client) Name() string { return "openai:" + c.model }

func (c *Client) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
    if strings.TrimSpace(c.key) == "" { return "", errors.New("openai: missing key") }
    params := oai.ChatCompletionNewParams{
        Model: shared.ChatModel(c.model),
        Messages: []oai.ChatCompletionMessageParamUnion{
            oai.SystemMessage(systemPrompt),
            oai.UserMessage(prompt),
        },
        Temperature: oai.Float(float64(opts.Temperature)),
    }
    if opts.JSON {
        params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &shared.ResponseFormatJSONObjectParam{}}
    }
    if opts.MaxTokens > 0 { params.MaxCompletionTokens = oai.Int(int64(opts.MaxTokens)) }
    c.log.Debug().Str("model", c.model).Msg("openai generate call")
    resp, err := c.cli.Chat.Completions.New(ctx, params)
    if err != nil { return "", fmt.Errorf("openai: %w", err) }
    if len(resp.Choices) == 0 { return "", errors.New("openai: no choices") }
    return resp.Choices[0].Message.Content, nil
}
