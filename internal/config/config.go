/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package config

import (
    "encoding/json"
    "fmt"
    "log"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/HamedShams/taskbridge/internal/domain"
)

type Config struct {
    AppEnv   string
    TZ       string
    HTTPAddr string
    LogLevel string

    PublicBaseURL string

    JiraBaseURL       string
    JiraPAT           string
    JiraUsername      string
    JiraPassword      string
    JiraProjectKey    string
    JiraAPIVersion    string
    JiraFieldsFile    string
    JiraFieldMap      map[string]string // name -> id
    JiraEpicNameField string
    FieldRefreshCron  string

    LLMProvider   string // gemini | openai | none
    GeminiAPIKey  string
    GeminiModel   string
    OpenAIKey     string
    OpenAIModel   string
    LLMHTTPTimeout time.Duration

    AITimeout      time.Duration
    WebhookTimeout time.Duration
    BotMentionName string

    TelegramToken         string
    TelegramWebhookSecret string
    TelegramChatIDs       []int64

    BitbucketBaseURL string
    BitbucketUser    string
    BitbucketToken   string

    LexiconFile  string
    LexiconWatch bool

    MaxConcurrency     int
    HTTPTimeout        time.Duration
    MediaMaxBytes      int64
    MediaTimeout       time.Duration
    SummaryMaxLen      int
    DefaultPriority    string
    EpicLookupAttempts int
    EpicLookupDelay    time.Duration
    DeferredTimeout    time.Duration
}

func getenv(key, def string) string {
    v := os.Getenv(key)
    if v == "" { return def }
    return v
}

func atoi(key string, def int) int {
    v := os.Getenv(key)
    if v == "" { return def }
    i, err := strconv.Atoi(v)
    if err != nil { return def }
    return i
}

func dur(key string, def time.Duration) time.Duration {
    v := os.Getenv(key)
    if v == "" { return def }
    d, err := time.ParseDuration(v)
    if err != nil { return def }
    return d
}

func boolean(key string, def bool) bool {
    v := os.Getenv(key)
    if v == "" { return def }
    b, err := strconv.ParseBool(v)
    if err != nil { return def }
    return b
}

func parseInt64s(csv string) []int64 {
    if csv == "" { return nil }
    parts := strings.Split(csv, ",")
    out := make([]int64, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p == "" { continue }
        n, err := strconv.ParseInt(p, 10, 64)
        if err == nil { out = append(out, n) }
    }
    return out
}

func Load() Config {
    cfg := Config{
        AppEnv:   getenv("APP_ENV", "dev"),
        TZ:       getenv("APP_TZ", "Asia/Ho_Chi_Minh"),
        HTTPAddr: getenv("HTTP_ADDR", ":8080"),
        LogLevel: getenv("LOG_LEVEL", "info"),

        PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:8080"),

        JiraBaseURL:       strings.TrimRight(getenv("JIRA_BASE_URL", ""), "/"),
        JiraPAT:           getenv("JIRA_PAT", ""),
        JiraUsername:      getenv("JIRA_USERNAME", ""),
        JiraPassword:      getenv("JIRA_PASSWORD", ""),
        JiraProjectKey:    strings.TrimSpace(getenv("JIRA_PROJECT_KEY", "")),
        JiraAPIVersion:    getenv("JIRA_API_VERSION", "2"),
        JiraFieldsFile:    getenv("JIRA_FIELDS_FILE", "/config/jira_fields.json"),
        JiraEpicNameField: getenv("JIRA_EPIC_NAME_FIELD", "customfield_10104"),
        FieldRefreshCron:  getenv("FIELD_REFRESH_CRON", "0 */6 * * *"),

        LLMProvider:    strings.ToLower(getenv("LLM_PROVIDER", "gemini")),
        GeminiAPIKey:   getenv("GEMINI_API_KEY", ""),
        GeminiModel:    getenv("GEMINI_MODEL", "gemini-2.5-flash"),
        OpenAIKey:      getenv("OPENAI_API_KEY", ""),
        OpenAIModel:    getenv("OPENAI_MODEL", "gpt-4o-mini"),
        LLMHTTPTimeout: dur("LLM_HTTP_TIMEOUT", 15*time.Second),

        AITimeout:      dur("AI_TIMEOUT", 2800*time.Millisecond),
        WebhookTimeout: dur("WEBHOOK_TIMEOUT", 4900*time.Millisecond),
        BotMentionName: getenv("BOT_MENTION_NAME", "JiraBot"),

        TelegramToken:         getenv("TELEGRAM_BOT_TOKEN", ""),
        TelegramWebhookSecret: getenv("TELEGRAM_WEBHOOK_SECRET", ""),
        TelegramChatIDs:       parseInt64s(getenv("TELEGRAM_CHAT_IDS", "")),

        BitbucketBaseURL: strings.TrimRight(getenv("BITBUCKET_BASE_URL", ""), "/"),
        BitbucketUser:    getenv("BITBUCKET_USER", ""),
        BitbucketToken:   getenv("BITBUCKET_TOKEN", ""),

        LexiconFile:  getenv("LEXICON_FILE", ""),
        LexiconWatch: boolean("LEXICON_WATCH", true),

        MaxConcurrency:     atoi("MAX_CONCURRENCY", 8),
        HTTPTimeout:        dur("HTTP_TIMEOUT", 15*time.Second),
        MediaMaxBytes:      int64(atoi("MEDIA_MAX_BYTES", 10<<20)),
        MediaTimeout:       dur("MEDIA_TIMEOUT", 5*time.Second),
        SummaryMaxLen:      atoi("SUMMARY_MAX_LEN", 200),
        DefaultPriority:    getenv("DEFAULT_PRIORITY", ""),
        EpicLookupAttempts: atoi("EPIC_LOOKUP_ATTEMPTS", 3),
        EpicLookupDelay:    dur("EPIC_LOOKUP_DELAY", 500*time.Millisecond),
        DeferredTimeout:    dur("DEFERRED_TIMEOUT", 2*time.Minute),
    }

    if loc, err := time.LoadLocation(cfg.TZ); err == nil {
        time.Local = loc
    } else {
        log.Printf("warning: cannot load TZ %s: %v", cfg.TZ, err)
    }

    if m, err := LoadFieldMap(cfg.JiraFieldsFile); err == nil && len(m) > 0 {
        cfg.JiraFieldMap = m
    } else if m, err := LoadFieldMap("config/jira_fields.json"); err == nil && len(m) > 0 {
        cfg.JiraFieldMap = m
    }
    return cfg
}

// LoadFieldMap reads a Jira /field dump ([{id,name}]) into name -> id.
func LoadFieldMap(path string) (map[string]string, error) {
    data, err := os.ReadFile(path)
    if err != nil { return nil, err }
    type fieldDef struct { ID string `json:"id"`; Name string `json:"name"` }
    var arr []fieldDef
    if err := json.Unmarshal(data, &arr); err != nil { return nil, fmt.Errorf("field map %s: %w", path, err) }
    m := map[string]string{}
    for _, f := range arr {
        n := strings.TrimSpace(f.Name)
        if n != "" && f.ID != "" { m[n] = f.ID }
    }
    return m, nil
}

// Validate fails fast on settings without which no request can succeed.
func (c Config) Validate() error {
    var missing []string
    if c.JiraBaseURL == "" { missing = append(missing, "JIRA_BASE_URL") }
    if c.JiraProjectKey == "" { missing = append(missing, "JIRA_PROJECT_KEY") }
    if c.JiraPAT == "" && (c.JiraUsername == "" || c.JiraPassword == "") { missing = append(missing, "JIRA_PAT or JIRA_USERNAME/JIRA_PASSWORD") }
    if len(missing) > 0 {
        return fmt.Errorf("%w: missing %s", domain.ErrMisconfigured, strings.Join(missing, ", "))
    }
    if c.AITimeout <= 0 || c.WebhookTimeout <= 0 || c.AITimeout >= c.WebhookTimeout {
        return fmt.Errorf("%w: AI_TIMEOUT (%s) must be positive and shorter than WEBHOOK_TIMEOUT (%s)", domain.ErrMisconfigured, c.AITimeout, c.WebhookTimeout)
    }
    switch c.LLMProvider {
    case "gemini", "openai", "none":
    default:
        return fmt.Errorf("%w: unknown LLM_PROVIDER %q", domain.ErrMisconfigured, c.LLMProvider)
    }
    return nil
}
