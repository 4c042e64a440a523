/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "regexp"
    "strings"

    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/rs/zerolog"
    "golang.org/x/sync/errgroup"
)

// statusRule maps an event-key fragment to a target status; "" means leave as is.
type statusRule struct {
    match  string
    target string
}

// First match wins, so the PR rules sit before the generic push rule.
var statusRules = []statusRule{
    {"pr:declined", ""},
    {"pr:deleted", ""},
    {"pullrequest:rejected", ""},
    {"pr:merged", "Deploy"},
    {"pullrequest:fulfilled", "Deploy"},
    {"pr:from_ref_updated", "In Progress"},
    {"pullrequest:updated", "In Progress"},
    {"pr:opened", "Resolve"},
    {"pullrequest:created", "Resolve"},
    {"push", "In Progress"},
    {"refs_changed", "In Progress"},
    {"branch_created", "In Progress"},
}

var transitionKeywords = map[string][]string{
    "in progress": {"in progress", "start", "begin", "doing"},
    "resolve":     {"resolve", "resolved", "done", "complete", "fixed"},
    "resolved":    {"resolved", "done", "complete", "fixed"},
    "deploy":      {"deploy", "deployed", "closed", "finished"},
    "closed":      {"closed", "deployed", "finished"},
    "to do":       {"to do", "open", "new"},
    "in review":   {"in review", "review", "testing"},
}

var terminalWords = []string{"done", "closed", "deploy", "finish"}

var timeTag = regexp.MustCompile(`(?i)#time\s+(?:\d+h(?:\s+\d+m)?|\d+m)`)

// TargetStatus returns the status an event kind should move issues to.
func TargetStatus(kind string) string {
    kind = strings.ToLower(kind)
    for _, r := range statusRules {
        if strings.Contains(kind, r.match) { return r.target }
    }
    return ""
}

type IssueOutcome struct {
    Key          string `json:"issue_key"`
    Target       string `json:"target_status,omitempty"`
    Transitioned bool   `json:"transitioned"`
    Commented    bool   `json:"commented"`
    Error        string `json:"error,omitempty"`
}

type SCMResult struct {
    Message string         `json:"message"`
    Results []IssueOutcome `json:"results"`
}

// SCM moves issues named in repository events through the workflow and
// leaves a comment describing the event. Duplicate deliveries are not
// detected.
type SCM struct {
    tracker Tracker
    limit   int
    log     zerolog.Logger
}

func NewSCM(tracker Tracker, limit int, log zerolog.Logger) *SCM {
    if limit <= 0 { limit = 4 }
    return &SCM{tracker: tracker, limit: limit, log: log}
}

func (s *SCM) Process(ctx context.Context, ev domain.SCMEvent) SCMResult {
    if len(ev.IssueKeys) == 0 {
        s.log.Info().Str("kind", ev.Kind).Str("repo", ev.Repository).Msg("scm event names no issues")
        return SCMResult{Message: "no issue keys found"}
    }
    target := TargetStatus(ev.Kind)
    comment := eventComment(ev)
    out := make([]IssueOutcome, len(ev.IssueKeys))

    var g errgroup.Group
    g.SetLimit(s.limit)
    for i, key := range ev.IssueKeys {
        g.Go(func() error {
            out[i] = s.processKey(ctx, key, target, comment)
            return nil
        })
    }
    _ = g.Wait()

    moved, commented := 0, 0
    for _, o := range out {
        if o.Transitioned { moved++ }
        if o.Commented { commented++ }
    }
    msg := fmt.Sprintf("processed %d issue(s): %d transitioned, %d commented", len(out), moved, commented)
    s.log.Info().Str("kind", ev.Kind).Strs("keys", ev.IssueKeys).Int("transitioned", moved).Msg(msg)
    return SCMResult{Message: msg, Results: out}
}

func (s *SCM) processKey(ctx context.Context, key, target, comment string) IssueOutcome {
    o := IssueOutcome{Key: key, Target: target}
    var errs []string
    if target != "" {
        ok, err := s.transition(ctx, key, target)
        o.Transitioned = ok
        if err != nil { errs = append(errs, err.Error()) }
    }
    if comment != "" {
        if err := s.tracker.AddComment(ctx, key, comment); err != nil {
            s.log.Warn().Err(err).Str("key", key).Msg("scm comment failed")
            errs = append(errs, err.Error())
        } else {
            o.Commented = true
        }
    }
    o.Error = strings.Join(errs, "; ")
    return o
}

// transition reports true when the issue already is, or now is, in target.
func (s *SCM) transition(ctx context.Context, key, target string) (bool, error) {
    iss, err := s.tracker.GetIssue(ctx, key)
    if err != nil { return false, err }
    if strings.EqualFold(iss.Status, target) { return true, nil }
    ts, err := s.tracker.Transitions(ctx, key)
    if err != nil { return false, err }
    t, ok := matchTransition(ts, target)
    if !ok {
        names := make([]string, 0, len(ts))
        for _, t := range ts { names = append(names, t.Name) }
        s.log.Warn().Str("key", key).Str("target", target).Strs("available", names).Msg("no matching transition")
        return false, nil
    }
    if err := s.tracker.DoTransition(ctx, key, t.ID); err != nil { return false, err }
    s.log.Info().Str("key", key).Str("from", iss.Status).Str("to", target).Str("transition", t.Name).Msg("issue transitioned")
    return true, nil
}

// matchTransition tries exact names, then keywords, then for "in progress"
// any transition that does not end the workflow.
func matchTransition(ts []domain.Transition, target string) (domain.Transition, bool) {
    want := strings.ToLower(target)
    for _, t := range ts {
        if strings.EqualFold(t.Name, target) || strings.EqualFold(t.To, target) { return t, true }
    }
    for _, kw := range transitionKeywords[want] {
        for _, t := range ts {
            if strings.Contains(strings.ToLower(t.Name), kw) || strings.Contains(strings.ToLower(t.To), kw) { return t, true }
        }
    }
    if strings.Contains(want, "in progress") {
        for _, t := range ts {
            if !terminal(t.Name) && !terminal(t.To) { return t, true }
        }
    }
    return domain.Transition{}, false
}

func terminal(name string) bool {
    n := strings.ToLower(name)
    for _, w := range terminalWords {
        if strings.Contains(n, w) { return true }
    }
    return false
}

func eventComment(ev domain.SCMEvent) string {
    switch {
    case ev.IsPush && len(ev.Commits) > 0:
        var b strings.Builder
        fmt.Fprintf(&b, "Bitbucket: %d commit(s)", len(ev.Commits))
        for i, c := range ev.Commits {
            if i == 5 { break }
            line, _, _ := strings.Cut(c.Message, "\n")
            line = strings.TrimSpace(timeTag.ReplaceAllString(line, ""))
            if line != "" { b.WriteString("\n" + line) }
        }
        if kloc, ok := estimateKLoC(ev.Commits); ok { fmt.Fprintf(&b, "\nEstimated KLoC: %.3f", kloc) }
        return b.String()
    case ev.IsPush:
        c := "Bitbucket: event=" + ev.Kind
        if len(ev.Branches) > 0 { c += " - branch(s): " + strings.Join(ev.Branches, ", ") }
        return c
    case ev.IsPullRequest && ev.Merged:
        title := ev.PRTitle
        if strings.TrimSpace(title) == "" { title = "N/A" }
        return "Bitbucket: PR merged - " + title
    }
    return ""
}

func estimateKLoC(commits []domain.Commit) (float64, bool) {
    total, found := 0, false
    for _, c := range commits {
        if c.LinesAdded == nil { continue }
        total += *c.LinesAdded
        found = true
    }
    return float64(total) / 1000, found
}
