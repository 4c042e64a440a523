/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package openai

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/HamedShams/taskbridge/internal/config"
    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/openai/openai-go/v2/option"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestGenerateSendsJSONModeAndReturnsContent(t *testing.T) {
    var got map[string]any
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, "/chat/completions", r.URL.Path)
        assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
        _ = json.NewDecoder(r.Body).Decode(&got)
        w.Header().Set("Content-Type", "application/json")
        _, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"summary\":\"Fix login\"}"}}]}`))
    }))
    defer srv.Close()

    cfg := config.Config{OpenAIKey: "sk-test", OpenAIModel: "gpt-4o-mini", LLMHTTPTimeout: 5 * time.Second}
    c := NewClient(cfg, zerolog.Nop(), option.WithBaseURL(srv.URL))
    out, err := c.Generate(context.Background(), "the prompt", domain.GenerateOptions{JSON: true, Temperature: 0.1})
    require.NoError(t, err)
    assert.Equal(t, `{"summary":"Fix login"}`, out)
    assert.Equal(t, "gpt-4o-mini", got["model"])
    rf, _ := got["response_format"].(map[string]any)
    assert.Equal(t, "json_object", rf["type"])
    assert.Equal(t, "openai:gpt-4o-mini", c.Name())
}

func TestGenerateWithoutKey(t *testing.T) {
    c := NewClient(config.Config{}, zerolog.Nop())
    _, err := c.Generate(context.Background(), "p", domain.GenerateOptions{})
    assert.Error(t, err)
}

func TestGenerateServerError(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
    }))
    defer srv.Close()
    c := NewClient(config.Config{OpenAIKey: "k", LLMHTTPTimeout: time.Second}, zerolog.Nop(), option.WithBaseURL(srv.URL))
    _, err := c.Generate(context.Background(), "p", domain.GenerateOptions{JSON: true})
    assert.Error(t, err)
}
