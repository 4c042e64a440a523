/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
    "context"
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync/atomic"
    "testing"
    "time"

    "github.com/HamedShams/taskbridge/internal/config"
    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, mut ...func(*config.Config)) *Client {
    t.Helper()
    srv := httptest.NewServer(h)
    t.Cleanup(srv.Close)
    cfg := config.Config{
        JiraBaseURL:       srv.URL,
        JiraPAT:           "pat-123",
        JiraProjectKey:    "DX",
        JiraAPIVersion:    "2",
        JiraEpicNameField: "customfield_10104",
        HTTPTimeout:       5 * time.Second,
    }
    for _, m := range mut { m(&cfg) }
    c := NewClient(cfg, zerolog.Nop())
    c.backoff = func(int) time.Duration { return time.Millisecond }
    return c
}

func TestCreateIssueSendsDraftWithBearer(t *testing.T) {
    var body map[string]map[string]any
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, "/rest/api/2/issue", r.URL.Path)
        assert.Equal(t, "Bearer pat-123", r.Header.Get("Authorization"))
        require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
        w.WriteHeader(http.StatusCreated)
        _, _ = w.Write([]byte(`{"id":"10001","key":"DX-7","self":"x"}`))
    })
    got, err := c.CreateIssue(context.Background(), domain.IssueDraft{
        Summary: "Q1 upgrade", Description: "body", Kind: domain.KindEpic, Priority: domain.PriorityHigh, EpicName: "Q1 upgrade",
    })
    require.NoError(t, err)
    assert.Equal(t, "DX-7", got.Key)
    assert.Equal(t, c.baseURL+"/browse/DX-7", got.URL)

    f := body["fields"]
    assert.Equal(t, map[string]any{"key": "DX"}, f["project"])
    assert.Equal(t, map[string]any{"name": "Epic"}, f["issuetype"])
    assert.Equal(t, map[string]any{"name": "High"}, f["priority"])
    assert.Equal(t, "body", f["description"])
    assert.Equal(t, "Q1 upgrade", f["customfield_10104"])
}

func TestCreateIssueUsesDiscoveredEpicNameField(t *testing.T) {
    var body map[string]map[string]any
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path == "/rest/api/2/field" {
            _, _ = w.Write([]byte(`[{"id":"customfield_20000","name":"Epic Name","custom":true}]`))
            return
        }
        _ = json.NewDecoder(r.Body).Decode(&body)
        _, _ = w.Write([]byte(`{"id":"1","key":"DX-1"}`))
    })
    cat := NewFieldCatalog(c, nil, zerolog.Nop())
    require.NoError(t, cat.Refresh(context.Background()))
    c.UseCatalog(cat)

    _, err := c.CreateIssue(context.Background(), domain.IssueDraft{Summary: "E", Kind: domain.KindEpic, EpicName: "E"})
    require.NoError(t, err)
    assert.Equal(t, "E", body["fields"]["customfield_20000"])
    assert.NotContains(t, body["fields"], "customfield_10104")
}

func TestFieldRejectionIsClassified(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusBadRequest)
        _, _ = w.Write([]byte(`{"errors":{"priority":"Field 'priority' cannot be set. It is not on the appropriate screen, or unknown."}}`))
    })
    _, err := c.CreateIssue(context.Background(), domain.IssueDraft{Summary: "s", Kind: domain.KindTask, Priority: domain.PriorityHigh})
    require.Error(t, err)
    assert.True(t, errors.Is(err, domain.ErrFieldRejected))
    var apiErr *APIError
    require.ErrorAs(t, err, &apiErr)
    assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestRetriesOnRateLimitWithFreshBody(t *testing.T) {
    var calls atomic.Int32
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        b, _ := io.ReadAll(r.Body)
        assert.Contains(t, string(b), `"summary":"s"`)
        if calls.Add(1) < 3 {
            w.WriteHeader(http.StatusTooManyRequests)
            return
        }
        _, _ = w.Write([]byte(`{"id":"1","key":"DX-2"}`))
    })
    got, err := c.CreateIssue(context.Background(), domain.IssueDraft{Summary: "s", Kind: domain.KindTask})
    require.NoError(t, err)
    assert.Equal(t, "DX-2", got.Key)
    assert.EqualValues(t, 3, calls.Load())
}

func TestCreateIsNotReplayedOnServerError(t *testing.T) {
    var calls atomic.Int32
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        calls.Add(1)
        w.WriteHeader(http.StatusBadGateway)
    })
    _, err := c.CreateIssue(context.Background(), domain.IssueDraft{Summary: "s", Kind: domain.KindTask})
    var apiErr *APIError
    require.ErrorAs(t, err, &apiErr)
    assert.Equal(t, http.StatusBadGateway, apiErr.Status)
    assert.EqualValues(t, 1, calls.Load())
}

func TestIdempotentRequestsRetryOnServerError(t *testing.T) {
    var calls atomic.Int32
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, http.MethodPut, r.Method)
        if calls.Add(1) < 2 {
            w.WriteHeader(http.StatusServiceUnavailable)
            return
        }
        w.WriteHeader(http.StatusNoContent)
    })
    require.NoError(t, c.UpdateIssue(context.Background(), "DX-2", map[string]any{"summary": "s"}))
    assert.EqualValues(t, 2, calls.Load())
}

func TestReplayable(t *testing.T) {
    assert.True(t, replayable(http.MethodGet, "https://jira/rest/api/2/issue/DX-1"))
    assert.True(t, replayable(http.MethodPut, "https://jira/rest/api/2/issue/DX-1"))
    assert.True(t, replayable(http.MethodPost, "https://jira/rest/api/3/search"))
    assert.False(t, replayable(http.MethodPost, "https://jira/rest/api/2/issue"))
    assert.False(t, replayable(http.MethodPost, "https://jira/rest/api/2/issue/DX-1/comment"))
}

func TestClientErrorsAreNotRetried(t *testing.T) {
    var calls atomic.Int32
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        calls.Add(1)
        w.WriteHeader(http.StatusNotFound)
    })
    _, err := c.GetIssue(context.Background(), "DX-404")
    assert.ErrorIs(t, err, domain.ErrNotFound)
    assert.EqualValues(t, 1, calls.Load())
}

func TestUpdateIssueHandlesNoContent(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, http.MethodPut, r.Method)
        assert.Equal(t, "/rest/api/2/issue/DX-1", r.URL.Path)
        w.WriteHeader(http.StatusNoContent)
    })
    assert.NoError(t, c.UpdateIssue(context.Background(), "DX-1", map[string]any{"duedate": "2024-01-16"}))
}

func TestV3DescriptionIsADF(t *testing.T) {
    var body map[string]map[string]any
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, "/rest/api/3/issue/DX-1", r.URL.Path)
        _ = json.NewDecoder(r.Body).Decode(&body)
        w.WriteHeader(http.StatusNoContent)
    }, func(cfg *config.Config) { cfg.JiraAPIVersion = "3" })
    require.NoError(t, c.UpdateIssue(context.Background(), "DX-1", map[string]any{"description": "one\n\ntwo"}))
    doc, ok := body["fields"]["description"].(map[string]any)
    require.True(t, ok)
    assert.Equal(t, "doc", doc["type"])
    assert.Len(t, doc["content"], 2)
}

func TestSearchUsersByVersion(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, "/rest/api/2/user/search", r.URL.Path)
        assert.Equal(t, "nguyen van a", r.URL.Query().Get("username"))
        _, _ = w.Write([]byte(`[{"name":"anv","key":"anv","displayName":"Nguyễn Văn A","active":true},{"name":"old","displayName":"Old","active":false}]`))
    })
    users, err := c.SearchUsers(context.Background(), "nguyen van a")
    require.NoError(t, err)
    require.Len(t, users, 1)
    assert.Equal(t, "anv", users[0].Name)

    c3 := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, "bob", r.URL.Query().Get("query"))
        _, _ = w.Write([]byte(`[{"accountId":"abc","displayName":"Bob"}]`))
    }, func(cfg *config.Config) { cfg.JiraAPIVersion = "3" })
    users, err = c3.SearchUsers(context.Background(), "bob")
    require.NoError(t, err)
    assert.Equal(t, "abc", users[0].AccountID)
}

func TestSearchIssuesParsesRefs(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, `project = "DX" AND issuetype = Epic`, r.URL.Query().Get("jql"))
        _, _ = w.Write([]byte(`{"issues":[{"id":"5","key":"DX-5","fields":{"summary":"Payments","issuetype":{"name":"Epic"},"status":{"name":"Open"}}}]}`))
    })
    refs, err := c.SearchIssues(context.Background(), `project = "DX" AND issuetype = Epic`, 10)
    require.NoError(t, err)
    assert.Equal(t, []domain.IssueRef{{ID: "5", Key: "DX-5", Summary: "Payments", Kind: "Epic", Status: "Open"}}, refs)
}

func TestTransitionsAndComment(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        switch {
        case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/transitions"):
            _, _ = w.Write([]byte(`{"transitions":[{"id":"21","name":"Start","to":{"name":"In Progress"}}]}`))
        case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/transitions"):
            b, _ := io.ReadAll(r.Body)
            assert.JSONEq(t, `{"transition":{"id":"21"}}`, string(b))
            w.WriteHeader(http.StatusNoContent)
        case strings.HasSuffix(r.URL.Path, "/comment"):
            b, _ := io.ReadAll(r.Body)
            assert.JSONEq(t, `{"body":"hello"}`, string(b))
            w.WriteHeader(http.StatusCreated)
            _, _ = w.Write([]byte(`{"id":"1"}`))
        default:
            t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
        }
    })
    ts, err := c.Transitions(context.Background(), "DX-1")
    require.NoError(t, err)
    assert.Equal(t, []domain.Transition{{ID: "21", Name: "Start", To: "In Progress"}}, ts)
    require.NoError(t, c.DoTransition(context.Background(), "DX-1", "21"))
    require.NoError(t, c.AddComment(context.Background(), "DX-1", "hello"))
}

func TestAddAttachmentIsMultipart(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, "no-check", r.Header.Get("X-Atlassian-Token"))
        f, hdr, err := r.FormFile("file")
        require.NoError(t, err)
        defer f.Close()
        b, _ := io.ReadAll(f)
        assert.Equal(t, "shot.png", hdr.Filename)
        assert.Equal(t, "PNGDATA", string(b))
        _, _ = w.Write([]byte(`[{"id":"9"}]`))
    })
    assert.NoError(t, c.AddAttachment(context.Background(), "DX-1", "shot.png", []byte("PNGDATA")))
}

func TestBasicAuthWithoutPAT(t *testing.T) {
    c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
        u, p, ok := r.BasicAuth()
        assert.True(t, ok)
        assert.Equal(t, "bot", u)
        assert.Equal(t, "secret", p)
        _, _ = w.Write([]byte(`[]`))
    }, func(cfg *config.Config) { cfg.JiraPAT = ""; cfg.JiraUsername = "bot"; cfg.JiraPassword = "secret" })
    _, err := c.Fields(context.Background())
    assert.NoError(t, err)
}

func TestMissingBaseURL(t *testing.T) {
    c := NewClient(config.Config{JiraProjectKey: "DX"}, zerolog.Nop())
    _, err := c.GetIssue(context.Background(), "DX-1")
    assert.ErrorIs(t, err, domain.ErrMisconfigured)
}
