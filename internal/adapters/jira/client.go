/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "mime/multipart"
    "net/http"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/HamedShams/taskbridge/internal/config"
    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/rs/zerolog"
    "golang.org/x/oauth2"
)

type Client struct {
    baseURL       string
    project       string
    apiVer        string
    epicNameField string
    user          string
    pass          string
    bearer        bool
    http          *http.Client
    catalog       *FieldCatalog
    backoff       func(attempt int) time.Duration
    log           zerolog.Logger
}

// APIError is a non-2xx answer from Jira.
type APIError struct {
    Status int
    Body   string
}

func (e *APIError) Error() string {
    return fmt.Sprintf("jira api status=%d body=%s", e.Status, e.Body)
}

// Is lets callers match screen/field rejections and missing resources with errors.Is.
func (e *APIError) Is(target error) bool {
    switch target {
    case domain.ErrFieldRejected:
        if e.Status != http.StatusBadRequest { return false }
        b := strings.ToLower(e.Body)
        return strings.Contains(b, "cannot be set") || strings.Contains(b, "not on the appropriate screen") ||
            strings.Contains(b, "unknown field")
    case domain.ErrNotFound:
        return e.Status == http.StatusNotFound
    }
    return false
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    c := &Client{
        baseURL:       strings.TrimRight(cfg.JiraBaseURL, "/"),
        project:       cfg.JiraProjectKey,
        apiVer:        cfg.JiraAPIVersion,
        epicNameField: cfg.JiraEpicNameField,
        user:          cfg.JiraUsername,
        pass:          cfg.JiraPassword,
        log:           log,
        backoff:       func(attempt int) time.Duration { return time.Duration(300*(1<<attempt)) * time.Millisecond },
    }
    if c.apiVer != "3" { c.apiVer = "2" }
    c.http = &http.Client{Timeout: cfg.HTTPTimeout}
    if cfg.JiraPAT != "" {
        ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.JiraPAT, TokenType: "Bearer"})
        c.http.Transport = &oauth2.Transport{Source: ts, Base: http.DefaultTransport}
        c.bearer = true
    }
    return c
}

// UseCatalog makes field ids discovered at runtime available to CreateIssue.
func (c *Client) UseCatalog(f *FieldCatalog) { c.catalog = f }

func (c *Client) ProjectKey() string { return c.project }

func (c *Client) BrowseURL(key string) string { return c.baseURL + "/browse/" + key }

// FieldID returns the id of a field by display name, or "" when unknown.
func (c *Client) FieldID(name string) string {
    if c.catalog == nil { return "" }
    return c.catalog.ID(name)
}

func (c *Client) apiURL(path string, q url.Values) string {
    if !strings.HasPrefix(path, "/") { path = "/" + path }
    u := c.baseURL + "/rest/api/" + c.apiVer + path
    if len(q) > 0 { u += "?" + q.Encode() }
    return u
}

// doJSON sends body as JSON and decodes the answer into out (may be nil).
func (c *Client) doJSON(ctx context.Context, method, u string, body, out any) error {
    var payload []byte
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return err }
        payload = b
    }
    return c.send(ctx, method, u, "application/json", payload, nil, out)
}

// send retries with exponential backoff. A 429 is always retried; 5xx and
// transport errors only when replaying the request cannot duplicate a write.
func (c *Client) send(ctx context.Context, method, u, contentType string, payload []byte, hdr http.Header, out any) error {
    if c.baseURL == "" { return fmt.Errorf("%w: jira base url", domain.ErrMisconfigured) }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        var r io.Reader
        if payload != nil { r = bytes.NewReader(payload) }
        req, err := http.NewRequestWithContext(ctx, method, u, r)
        if err != nil { return err }
        req.Header.Set("Accept", "application/json")
        if payload != nil { req.Header.Set("Content-Type", contentType) }
        for k, vs := range hdr {
            for _, v := range vs { req.Header.Add(k, v) }
        }
        if !c.bearer && c.user != "" && c.pass != "" { req.SetBasicAuth(c.user, c.pass) }

        resp, err := c.http.Do(req)
        if err != nil {
            if !replayable(method, u) { return err }
            lastErr = err
        } else {
            done, err := c.finish(resp, out)
            if done { return err }
            if resp.StatusCode != http.StatusTooManyRequests && !replayable(method, u) { return err }
            lastErr = err
        }
        if attempt == 2 { break }
        c.log.Debug().Err(lastErr).Str("url", u).Int("attempt", attempt+1).Msg("jira retry")
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-time.After(c.backoff(attempt)):
        }
    }
    return lastErr
}

// replayable reports whether a request is safe to send twice. POST /search
// only reads.
func replayable(method, u string) bool {
    switch method {
    case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
        return true
    }
    path, _, _ := strings.Cut(u, "?")
    return method == http.MethodPost && strings.HasSuffix(path, "/search")
}

// finish reports done=false when the response is worth retrying.
func (c *Client) finish(resp *http.Response, out any) (bool, error) {
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
        apiErr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
        retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
        return !retry, apiErr
    }
    if out == nil || resp.StatusCode == http.StatusNoContent {
        _, _ = io.Copy(io.Discard, resp.Body)
        return true, nil
    }
    b, err := io.ReadAll(resp.Body)
    if err != nil { return true, err }
    if len(bytes.TrimSpace(b)) == 0 { return true, nil }
    return true, json.Unmarshal(b, out)
}

// text renders plain text the way the configured API version expects it.
func (c *Client) text(s string) any {
    if c.apiVer == "2" { return s }
    var content []any
    for _, para := range strings.Split(s, "\n\n") {
        if strings.TrimSpace(para) == "" { continue }
        content = append(content, map[string]any{
            "type":    "paragraph",
            "content": []any{map[string]any{"type": "text", "text": para}},
        })
    }
    return map[string]any{"type": "doc", "version": 1, "content": content}
}

type issueFields struct {
    Summary   string `json:"summary"`
    IssueType struct {
        Name string `json:"name"`
    } `json:"issuetype"`
    Status struct {
        Name string `json:"name"`
    } `json:"status"`
}

type issueJSON struct {
    ID     string      `json:"id"`
    Key    string      `json:"key"`
    Fields issueFields `json:"fields"`
}

func (i issueJSON) ref() domain.IssueRef {
    return domain.IssueRef{ID: i.ID, Key: i.Key, Summary: i.Fields.Summary, Kind: i.Fields.IssueType.Name, Status: i.Fields.Status.Name}
}

func (c *Client) CreateIssue(ctx context.Context, d domain.IssueDraft) (domain.CreatedIssue, error) {
    if c.project == "" { return domain.CreatedIssue{}, fmt.Errorf("%w: jira project key", domain.ErrMisconfigured) }
    fields := map[string]any{
        "project":   map[string]string{"key": c.project},
        "summary":   d.Summary,
        "issuetype": map[string]string{"name": string(d.Kind)},
    }
    if d.Description != "" { fields["description"] = c.text(d.Description) }
    if d.Priority != domain.PriorityNone { fields["priority"] = map[string]string{"name": string(d.Priority)} }
    if d.EpicName != "" {
        id := c.FieldID("Epic Name")
        if id == "" { id = c.epicNameField }
        if id != "" { fields[id] = d.EpicName }
    }
    var out struct {
        ID  string `json:"id"`
        Key string `json:"key"`
    }
    if err := c.doJSON(ctx, http.MethodPost, c.apiURL("/issue", nil), map[string]any{"fields": fields}, &out); err != nil {
        return domain.CreatedIssue{}, err
    }
    if out.Key == "" { return domain.CreatedIssue{}, errors.New("jira: create returned no key") }
    return domain.CreatedIssue{ID: out.ID, Key: out.Key, URL: c.BrowseURL(out.Key)}, nil
}

// UpdateIssue sets fields; a plain-string description is converted for v3.
func (c *Client) UpdateIssue(ctx context.Context, key string, fields map[string]any) error {
    if key == "" { return errors.New("jira: empty issue key") }
    if s, ok := fields["description"].(string); ok { fields["description"] = c.text(s) }
    return c.doJSON(ctx, http.MethodPut, c.apiURL("/issue/"+url.PathEscape(key), nil), map[string]any{"fields": fields}, nil)
}

func (c *Client) GetIssue(ctx context.Context, key string) (domain.IssueRef, error) {
    if key == "" { return domain.IssueRef{}, errors.New("jira: empty issue key") }
    q := url.Values{"fields": {"summary,issuetype,status"}}
    var out issueJSON
    if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/issue/"+url.PathEscape(key), q), nil, &out); err != nil {
        return domain.IssueRef{}, err
    }
    return out.ref(), nil
}

func (c *Client) SearchIssues(ctx context.Context, jql string, max int) ([]domain.IssueRef, error) {
    if jql == "" { return nil, errors.New("jira: empty jql") }
    if max <= 0 { max = 20 }
    var out struct {
        Issues []issueJSON `json:"issues"`
    }
    var err error
    if c.apiVer == "2" {
        q := url.Values{"jql": {jql}, "maxResults": {strconv.Itoa(max)}, "fields": {"summary,issuetype,status"}}
        err = c.doJSON(ctx, http.MethodGet, c.apiURL("/search", q), nil, &out)
    } else {
        body := map[string]any{"jql": jql, "maxResults": max, "fields": []string{"summary", "issuetype", "status"}}
        err = c.doJSON(ctx, http.MethodPost, c.apiURL("/search", nil), body, &out)
    }
    if err != nil { return nil, err }
    refs := make([]domain.IssueRef, 0, len(out.Issues))
    for _, i := range out.Issues { refs = append(refs, i.ref()) }
    return refs, nil
}

// SearchUsers queries the user picker. Server/DC (v2) searches by username, Cloud (v3) by query.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]domain.User, error) {
    query = strings.TrimSpace(query)
    if query == "" { return nil, nil }
    q := url.Values{"maxResults": {"20"}}
    if c.apiVer == "2" { q.Set("username", query) } else { q.Set("query", query) }
    var raw []struct {
        AccountID    string `json:"accountId"`
        Name         string `json:"name"`
        Key          string `json:"key"`
        DisplayName  string `json:"displayName"`
        EmailAddress string `json:"emailAddress"`
        Active       *bool  `json:"active"`
    }
    if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/user/search", q), nil, &raw); err != nil { return nil, err }
    users := make([]domain.User, 0, len(raw))
    for _, u := range raw {
        if u.Active != nil && !*u.Active { continue }
        users = append(users, domain.User{AccountID: u.AccountID, Name: u.Name, Key: u.Key, DisplayName: u.DisplayName, Email: u.EmailAddress})
    }
    return users, nil
}

func (c *Client) Transitions(ctx context.Context, key string) ([]domain.Transition, error) {
    var out struct {
        Transitions []struct {
            ID   string `json:"id"`
            Name string `json:"name"`
            To   struct {
                Name string `json:"name"`
            } `json:"to"`
        } `json:"transitions"`
    }
    if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/issue/"+url.PathEscape(key)+"/transitions", nil), nil, &out); err != nil {
        return nil, err
    }
    ts := make([]domain.Transition, 0, len(out.Transitions))
    for _, t := range out.Transitions { ts = append(ts, domain.Transition{ID: t.ID, Name: t.Name, To: t.To.Name}) }
    return ts, nil
}

func (c *Client) DoTransition(ctx context.Context, key, id string) error {
    body := map[string]any{"transition": map[string]string{"id": id}}
    return c.doJSON(ctx, http.MethodPost, c.apiURL("/issue/"+url.PathEscape(key)+"/transitions", nil), body, nil)
}

func (c *Client) AddComment(ctx context.Context, key, body string) error {
    return c.doJSON(ctx, http.MethodPost, c.apiURL("/issue/"+url.PathEscape(key)+"/comment", nil), map[string]any{"body": c.text(body)}, nil)
}

func (c *Client) AddAttachment(ctx context.Context, key, filename string, data []byte) error {
    var buf bytes.Buffer
    mw := multipart.NewWriter(&buf)
    fw, err := mw.CreateFormFile("file", filename)
    if err != nil { return err }
    if _, err := fw.Write(data); err != nil { return err }
    if err := mw.Close(); err != nil { return err }
    hdr := http.Header{"X-Atlassian-Token": {"no-check"}}
    return c.send(ctx, http.MethodPost, c.apiURL("/issue/"+url.PathEscape(key)+"/attachments", nil), mw.FormDataContentType(), buf.Bytes(), hdr, nil)
}

type FieldInfo struct {
    ID     string `json:"id"`
    Name   string `json:"name"`
    Custom bool   `json:"custom"`
}

// Fields lists all fields; the endpoint answers with an array.
func (c *Client) Fields(ctx context.Context) ([]FieldInfo, error) {
    var out []FieldInfo
    if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/field", nil), nil, &out); err != nil { return nil, err }
    return out, nil
}
