/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/HamedShams/taskbridge/internal/extraction"
    "github.com/HamedShams/taskbridge/internal/textnorm"
    "github.com/rs/zerolog"
)

// Message is one inbound chat message. Subject is set when the message went
// through an automation layer that splits it off.
type Message struct {
    Text    string
    Subject string
    Source  string
}

type Reply struct {
    OK       bool
    Text     string
    Key      string
    URL      string
    TimedOut bool
}

const timeoutText = "⌛ Processing took too long. The issue may still have been created, please check Jira before sending again."

// Intake turns chat messages into tracker issues.
type Intake struct {
    norm     *textnorm.Normalizer
    ai       *extraction.Extractor
    recon    *Reconciler
    tracker  Tracker
    deferred *Resolver
    disp     *Dispatcher
    timeout  time.Duration
    now      func() time.Time
    log      zerolog.Logger
}

func NewIntake(norm *textnorm.Normalizer, ai *extraction.Extractor, recon *Reconciler, tracker Tracker, deferred *Resolver, disp *Dispatcher, timeout time.Duration, log zerolog.Logger) *Intake {
    return &Intake{norm: norm, ai: ai, recon: recon, tracker: tracker, deferred: deferred, disp: disp, timeout: timeout, now: time.Now, log: log}
}

// Preview runs the extraction pipeline without touching the tracker.
func (s *Intake) Preview(ctx context.Context, msg Message) (Plan, textnorm.Result) {
    nr := s.norm.Normalize(compose(msg))
    now := s.now()
    res := s.ai.Extract(ctx, nr.Text, now)
    return s.recon.Reconcile(res, nr, now), nr
}

// Handle answers within the outer deadline. On expiry the reply says so;
// work already under way is not rolled back.
func (s *Intake) Handle(ctx context.Context, msg Message) Reply {
    ctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    start := time.Now()
    ch := make(chan Reply, 1)
    go func() {
        defer func() {
            if r := recover(); r != nil {
                s.log.Error().Interface("panic", r).Msg("intake panicked")
                ch <- Reply{Text: errorText(fmt.Errorf("internal error: %v", r))}
            }
        }()
        ch <- s.process(ctx, msg)
    }()
    select {
    case r := <-ch:
        s.log.Info().Str("source", msg.Source).Bool("ok", r.OK).Str("key", r.Key).Dur("took", time.Since(start)).Msg("message handled")
        return r
    case <-ctx.Done():
        s.log.Error().Str("source", msg.Source).Dur("took", time.Since(start)).Msg("message handling timed out")
        return Reply{TimedOut: true, Text: timeoutText}
    }
}

func (s *Intake) process(ctx context.Context, msg Message) Reply {
    plan, nr := s.Preview(ctx, msg)
    if strings.TrimSpace(nr.Text) == "" { return Reply{Text: errorText(errors.New("empty message"))} }
    s.log.Info().Str("source", string(plan.Source)).Str("kind", string(plan.Record.Kind)).Strs("deferred", fieldNames(plan.Deferred.Fields())).Msg("task extracted")

    issue, deferred, err := s.create(ctx, plan)
    if err != nil {
        s.log.Error().Err(err).Msg("issue creation failed")
        return Reply{Text: errorText(err)}
    }
    background := !deferred.Empty()
    if background {
        key := issue.Key
        id := s.disp.Go("deferred:"+key, func(ctx context.Context) { s.deferred.Apply(ctx, key, deferred) })
        s.log.Info().Str("key", key).Str("task", id).Msg("deferred update scheduled")
    }
    return Reply{OK: true, Key: issue.Key, URL: issue.URL, Text: successText(plan.Record.Kind, issue, plan.Record.Summary, background)}
}

// create sends the full draft; when the create screen refuses a field it
// retries with the minimal draft and defers description and priority.
func (s *Intake) create(ctx context.Context, plan Plan) (domain.CreatedIssue, domain.DeferredFields, error) {
    deferred := plan.Deferred
    issue, err := s.tracker.CreateIssue(ctx, plan.Draft)
    if err == nil { return issue, deferred, nil }
    if !errors.Is(err, domain.ErrFieldRejected) { return domain.CreatedIssue{}, deferred, err }

    s.log.Warn().Err(err).Msg("create screen rejected fields; retrying with minimal fields")
    issue, err = s.tracker.CreateIssue(ctx, plan.Draft.Minimal())
    if err != nil { return domain.CreatedIssue{}, deferred, fmt.Errorf("create with minimal fields: %w", err) }
    deferred.Description = plan.Draft.Description
    deferred.Priority = plan.Draft.Priority
    return issue, deferred, nil
}

func compose(msg Message) string {
    subj := strings.TrimSpace(msg.Subject)
    if subj == "" || strings.Contains(msg.Text, subj) { return msg.Text }
    return subj + "\n" + msg.Text
}

func successText(kind domain.IssueKind, issue domain.CreatedIssue, summary string, background bool) string {
    var b strings.Builder
    fmt.Fprintf(&b, "✅ Created %s successfully!\n\n", kind)
    fmt.Fprintf(&b, "• **Key**: [%s](%s)\n\n", issue.Key, issue.URL)
    fmt.Fprintf(&b, "• **Title**: %s", summary)
    if background { b.WriteString("\n\n⏳ Updating epic link, assignee, dates and attachments in the background...") }
    return b.String()
}

// errorText keeps raw error text only as a trailing diagnostic.
func errorText(err error) string {
    var reason string
    switch {
    case errors.Is(err, domain.ErrMisconfigured):
        reason = "the bridge is missing its Jira settings"
    case errors.Is(err, domain.ErrFieldRejected):
        reason = "Jira refused the issue fields"
    case errors.Is(err, context.DeadlineExceeded):
        reason = "Jira did not answer in time"
    default:
        reason = "the issue could not be created"
    }
    detail := err.Error()
    if r := []rune(detail); len(r) > 200 { detail = string(r[:200]) + "…" }
    return fmt.Sprintf("❌ Something went wrong: %s (%s)", reason, detail)
}

func fieldNames(fs []domain.Field) []string {
    out := make([]string, 0, len(fs))
    for _, f := range fs { out = append(out, string(f)) }
    return out
}
