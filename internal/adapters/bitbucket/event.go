/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package bitbucket reads Bitbucket Server and Cloud webhook payloads.
package bitbucket

import (
    "encoding/json"
    "errors"
    "fmt"
    "regexp"
    "strings"

    "github.com/HamedShams/taskbridge/internal/domain"
)

var ErrUnsupportedEvent = errors.New("bitbucket: unsupported event")

var issueKeyRe = regexp.MustCompile(`\b([A-Za-z][A-Za-z0-9]*-\d+)\b`)

// IssueKeys returns the issue keys found in texts, upper-cased, in first-seen order.
func IssueKeys(texts ...string) []string {
    var out []string
    seen := map[string]bool{}
    for _, t := range texts {
        for _, m := range issueKeyRe.FindAllStringSubmatch(t, -1) {
            k := strings.ToUpper(m[1])
            if seen[k] { continue }
            seen[k] = true
            out = append(out, k)
        }
    }
    return out
}

type repository struct {
    Slug           string `json:"slug"`
    Name           string `json:"name"`
    FullName       string `json:"full_name"`
    FullNameServer string `json:"fullName"`
    Project        *struct {
        Key string `json:"key"`
    } `json:"project"`
}

type commit struct {
    Hash           string `json:"hash"`
    ID             string `json:"id"`
    Message        string `json:"message"`
    DisplayMessage string `json:"displayMessage"`
    LinesAdded     *int   `json:"linesAdded"`
    LinesAddedAlt  *int   `json:"lines_added"`
    Stats          *struct {
        Added *int `json:"added"`
    } `json:"stats"`
}

func (c commit) toDomain() domain.Commit {
    out := domain.Commit{Hash: c.Hash, Message: c.Message}
    if out.Hash == "" { out.Hash = c.ID }
    if out.Message == "" { out.Message = c.DisplayMessage }
    switch {
    case c.LinesAdded != nil:
        out.LinesAdded = c.LinesAdded
    case c.LinesAddedAlt != nil:
        out.LinesAdded = c.LinesAddedAlt
    case c.Stats != nil && c.Stats.Added != nil:
        out.LinesAdded = c.Stats.Added
    }
    return out
}

type change struct {
    Ref *struct {
        ID           string `json:"id"`
        DisplayID    string `json:"displayId"`
        LatestCommit string `json:"latestCommit"`
    } `json:"ref"`
    New *struct {
        Name   string `json:"name"`
        Target struct {
            Hash string `json:"hash"`
        } `json:"target"`
    } `json:"new"`
    ToHash  string   `json:"toHash"`
    Commits []commit `json:"commits"`
}

func (c change) branch() string {
    if c.Ref != nil {
        if c.Ref.DisplayID != "" { return c.Ref.DisplayID }
        return strings.TrimPrefix(c.Ref.ID, "refs/heads/")
    }
    if c.New != nil { return c.New.Name }
    return ""
}

func (c change) head() string {
    switch {
    case c.ToHash != "":
        return c.ToHash
    case c.New != nil && c.New.Target.Hash != "":
        return c.New.Target.Hash
    case c.Ref != nil:
        return c.Ref.LatestCommit
    }
    return ""
}

type pullRequest struct {
    Title       string `json:"title"`
    Description string `json:"description"`
    State       string `json:"state"`
    Source      *struct {
        Branch *struct {
            Name string `json:"name"`
        } `json:"branch"`
    } `json:"source"`
    FromRef *struct {
        DisplayID string `json:"displayId"`
    } `json:"fromRef"`
}

func (p *pullRequest) sourceBranch() string {
    if p.Source != nil && p.Source.Branch != nil { return p.Source.Branch.Name }
    if p.FromRef != nil { return p.FromRef.DisplayID }
    return ""
}

type payload struct {
    EventKey   string     `json:"eventKey"`
    Repository repository `json:"repository"`
    Actor      struct {
        Name        string `json:"name"`
        DisplayName string `json:"displayName"`
        DisplayAlt  string `json:"display_name"`
        Nickname    string `json:"nickname"`
    } `json:"actor"`
    Changes    []change `json:"changes"`
    RefChanges []change `json:"refChanges"`
    Push       *struct {
        Changes []change `json:"changes"`
    } `json:"push"`
    PullRequest    *pullRequest `json:"pullRequest"`
    PullRequestAlt *pullRequest `json:"pull_request"`
}

// Repo identifies the repository for API lookups.
type Repo struct {
    ProjectKey string
    Slug       string
    FullName   string
}

// Event is a parsed webhook with the commit heads needed for backfilling.
type Event struct {
    domain.SCMEvent
    Repo  Repo
    Heads []string
}

// ParseEvent decodes a webhook body. eventKey is the X-Event-Key header
// (Cloud); Server payloads carry it in the body.
func ParseEvent(eventKey string, body []byte) (Event, error) {
    var p payload
    if err := json.Unmarshal(body, &p); err != nil { return Event{}, fmt.Errorf("bitbucket: decode: %w", err) }
    kind := strings.ToLower(strings.TrimSpace(p.EventKey))
    if kind == "" { kind = strings.ToLower(strings.TrimSpace(eventKey)) }

    ev := Event{Repo: Repo{Slug: p.Repository.Slug, FullName: firstNonEmpty(p.Repository.FullName, p.Repository.FullNameServer)}}
    if ev.Repo.Slug == "" { ev.Repo.Slug = p.Repository.Name }
    if p.Repository.Project != nil { ev.Repo.ProjectKey = p.Repository.Project.Key }
    ev.Kind = kind
    ev.Repository = firstNonEmpty(ev.Repo.FullName, ev.Repo.Slug)
    ev.Actor = firstNonEmpty(p.Actor.DisplayName, p.Actor.DisplayAlt, p.Actor.Name, p.Actor.Nickname)

    switch {
    case strings.Contains(kind, "push") || strings.Contains(kind, "refs_changed"):
        changes := p.Changes
        if len(changes) == 0 && p.Push != nil { changes = p.Push.Changes }
        if len(changes) == 0 { changes = p.RefChanges }
        ev.IsPush = true
        var texts []string
        seen := map[string]bool{}
        for _, ch := range changes {
            if b := ch.branch(); b != "" && !seen[b] {
                seen[b] = true
                ev.Branches = append(ev.Branches, b)
                texts = append(texts, b)
            }
            if h := ch.head(); h != "" { ev.Heads = append(ev.Heads, h) }
            for _, c := range ch.Commits {
                dc := c.toDomain()
                ev.Commits = append(ev.Commits, dc)
                texts = append(texts, dc.Message)
            }
        }
        ev.IssueKeys = IssueKeys(texts...)
    case strings.Contains(kind, "pullrequest") || strings.HasPrefix(kind, "pr:"):
        pr := p.PullRequest
        if pr == nil { pr = p.PullRequestAlt }
        if pr == nil { pr = &pullRequest{} }
        ev.IsPullRequest = true
        ev.PRTitle = pr.Title
        state := strings.ToUpper(pr.State)
        ev.Merged = state == "MERGED" || strings.Contains(kind, "merged") || strings.Contains(kind, "fulfilled")
        if b := pr.sourceBranch(); b != "" { ev.Branches = []string{b} }
        ev.IssueKeys = IssueKeys(pr.Title, pr.Description, pr.sourceBranch())
    default:
        return Event{}, fmt.Errorf("%w: %q", ErrUnsupportedEvent, kind)
    }
    return ev, nil
}

func firstNonEmpty(vs ...string) string {
    for _, v := range vs {
        if strings.TrimSpace(v) != "" { return v }
    }
    return ""
}
