/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package config

import (
    "errors"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
    t.Setenv("JIRA_BASE_URL", "https://jira.example.com/")
    t.Setenv("JIRA_PROJECT_KEY", "DXAI")
    t.Setenv("JIRA_PAT", "pat")
    t.Setenv("APP_TZ", "UTC")
    t.Setenv("AI_TIMEOUT", "")
    t.Setenv("TELEGRAM_CHAT_IDS", "12, x, -34")
    cfg := Load()
    assert.Equal(t, "https://jira.example.com", cfg.JiraBaseURL)
    assert.Equal(t, 2800*time.Millisecond, cfg.AITimeout)
    assert.Equal(t, 4900*time.Millisecond, cfg.WebhookTimeout)
    assert.Equal(t, []int64{12, -34}, cfg.TelegramChatIDs)
    assert.Equal(t, "gemini", cfg.LLMProvider)
    require.NoError(t, cfg.Validate())
}

func TestValidateFailsFast(t *testing.T) {
    cfg := Config{AITimeout: time.Second, WebhookTimeout: 2 * time.Second, LLMProvider: "none"}
    err := cfg.Validate()
    require.Error(t, err)
    assert.True(t, errors.Is(err, domain.ErrMisconfigured))
    assert.Contains(t, err.Error(), "JIRA_BASE_URL")
    assert.Contains(t, err.Error(), "JIRA_PROJECT_KEY")

    cfg = Config{JiraBaseURL: "https://j", JiraProjectKey: "P", JiraPAT: "x", AITimeout: 5 * time.Second, WebhookTimeout: 4 * time.Second, LLMProvider: "none"}
    assert.ErrorIs(t, cfg.Validate(), domain.ErrMisconfigured)

    cfg.AITimeout = time.Second
    cfg.LLMProvider = "llama"
    assert.ErrorIs(t, cfg.Validate(), domain.ErrMisconfigured)
}

func TestLoadFieldMap(t *testing.T) {
    p := filepath.Join(t.TempDir(), "fields.json")
    require.NoError(t, os.WriteFile(p, []byte(`[{"id":"customfield_10014","name":"Epic Link"},{"id":"","name":"Broken"},{"id":"customfield_10015","name":" Start date "}]`), 0o600))
    m, err := LoadFieldMap(p)
    require.NoError(t, err)
    assert.Equal(t, map[string]string{"Epic Link": "customfield_10014", "Start date": "customfield_10015"}, m)
}
