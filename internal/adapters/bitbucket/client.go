/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package bitbucket

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/HamedShams/taskbridge/internal/config"
    "github.com/rs/zerolog"
)

// Client fetches commit messages when a push payload carries none.
type Client struct {
    base  string
    user  string
    token string
    http  *http.Client
    log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        base:  strings.TrimRight(cfg.BitbucketBaseURL, "/"),
        user:  cfg.BitbucketUser,
        token: cfg.BitbucketToken,
        http:  &http.Client{Timeout: 5 * time.Second},
        log:   log,
    }
}

func (c *Client) Enabled() bool { return c.base != "" }

func (c *Client) commitURLs(r Repo, hash string) []string {
    var urls []string
    if r.ProjectKey != "" && r.Slug != "" {
        urls = append(urls, fmt.Sprintf("%s/rest/api/1.0/projects/%s/repos/%s/commits/%s", c.base, url.PathEscape(r.ProjectKey), url.PathEscape(r.Slug), url.PathEscape(hash)))
    }
    if strings.Contains(r.FullName, "/") {
        urls = append(urls, fmt.Sprintf("%s/2.0/repositories/%s/commit/%s", c.base, r.FullName, url.PathEscape(hash)))
    }
    return urls
}

// CommitMessage tries the Server API, then the Cloud API.
func (c *Client) CommitMessage(ctx context.Context, r Repo, hash string) (string, error) {
    if !c.Enabled() { return "", fmt.Errorf("bitbucket: no base url") }
    var lastErr error = fmt.Errorf("bitbucket: no api path for %s", hash)
    for _, u := range c.commitURLs(r, hash) {
        req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
        if err != nil { return "", err }
        if c.user != "" && c.token != "" { req.SetBasicAuth(c.user, c.token) }
        resp, err := c.http.Do(req)
        if err != nil { lastErr = err; continue }
        var out struct {
            Message string `json:"message"`
        }
        err = json.NewDecoder(resp.Body).Decode(&out)
        resp.Body.Close()
        if resp.StatusCode != http.StatusOK { lastErr = fmt.Errorf("bitbucket commit status=%d", resp.StatusCode); continue }
        if err != nil { lastErr = err; continue }
        if out.Message != "" { return out.Message, nil }
    }
    return "", lastErr
}

// Backfill looks up head commits of a push that named no issue keys.
func (c *Client) Backfill(ctx context.Context, ev *Event) {
    if !ev.IsPush || len(ev.IssueKeys) > 0 || !c.Enabled() { return }
    var msgs []string
    for _, h := range ev.Heads {
        msg, err := c.CommitMessage(ctx, ev.Repo, h)
        if err != nil {
            c.log.Debug().Err(err).Str("hash", h).Msg("bitbucket commit lookup failed")
            continue
        }
        msgs = append(msgs, msg)
    }
    ev.IssueKeys = IssueKeys(msgs...)
    if len(ev.IssueKeys) > 0 { c.log.Info().Strs("keys", ev.IssueKeys).Msg("bitbucket keys from fetched commits") }
}
