/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package extraction asks a generative model for a task record and falls
// back to the deterministic directive layer whenever the model is late,
// wrong, or broken.
package extraction

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "regexp"
    "strings"
    "time"

    "github.com/HamedShams/taskbridge/internal/directive"
    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/rs/zerolog"
)

var ErrDeadline = errors.New("model did not answer within budget")

// Generator is a text-generation backend.
type Generator interface {
    Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error)
    Name() string
}

type Source string

const (
    SourceAI       Source = "ai"
    SourceFallback Source = "fallback"
)

type Result struct {
    Record  domain.TaskRecord
    Source  Source
    Err     error // set when the fallback was used
    Elapsed time.Duration
}

type Extractor struct {
    gen    Generator
    rules  *directive.Extractor
    budget time.Duration
    log    zerolog.Logger
}

// New wires a generator (nil means always fall back) to the directive layer.
func New(gen Generator, rules *directive.Extractor, budget time.Duration, log zerolog.Logger) *Extractor {
    return &Extractor{gen: gen, rules: rules, budget: budget, log: log}
}

// Extract always returns a usable record.
func (e *Extractor) Extract(ctx context.Context, text string, now time.Time) Result {
    start := time.Now()
    rec, err := e.viaModel(ctx, text, now)
    if err == nil {
        return Result{Record: rec, Source: SourceAI, Elapsed: time.Since(start)}
    }
    e.log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("ai extraction unavailable; using directive fallback")
    return Result{Record: e.rules.Extract(text, now), Source: SourceFallback, Err: err, Elapsed: time.Since(start)}
}

// Fallback runs only the deterministic layer.
func (e *Extractor) Fallback(text string, now time.Time) domain.TaskRecord {
    return e.rules.Extract(text, now)
}

type reply struct {
    text string
    err  error
}

func (e *Extractor) viaModel(ctx context.Context, text string, now time.Time) (rec domain.TaskRecord, err error) {
    if e.gen == nil { return rec, fmt.Errorf("%w: no generator configured", domain.ErrExtractionFailed) }
    defer func() {
        if r := recover(); r != nil { err = fmt.Errorf("%w: panic: %v", domain.ErrExtractionFailed, r) }
    }()

    // The call is not cancelled at the deadline; a late answer lands in the
    // buffered channel and is dropped.
    ch := make(chan reply, 1)
    callCtx := context.WithoutCancel(ctx)
    prompt := BuildPrompt(text, now)
    go func() {
        defer func() {
            if r := recover(); r != nil { ch <- reply{err: fmt.Errorf("generator panic: %v", r)} }
        }()
        out, err := e.gen.Generate(callCtx, prompt, domain.GenerateOptions{JSON: true, Temperature: 0.1})
        ch <- reply{text: out, err: err}
    }()

    timer := time.NewTimer(e.budget)
    defer timer.Stop()
    select {
    case r := <-ch:
        if r.err != nil { return rec, fmt.Errorf("%w: %s: %w", domain.ErrExtractionFailed, e.gen.Name(), r.err) }
        p, err := parsePayload(r.text)
        if err != nil { return rec, fmt.Errorf("%w: %s: %w", domain.ErrExtractionFailed, e.gen.Name(), err) }
        return e.rules.Cleanup(p.record(), text), nil
    case <-timer.C:
        return rec, fmt.Errorf("%w: %w (%s)", domain.ErrExtractionFailed, ErrDeadline, e.budget)
    case <-ctx.Done():
        return rec, fmt.Errorf("%w: %w", domain.ErrExtractionFailed, ctx.Err())
    }
}

var (
    fenceOpen  = regexp.MustCompile("^```(?:json|JSON)?\\s*")
    fenceClose = regexp.MustCompile("\\s*```$")
)

// payload is the model's JSON. Pointers tell omitted keys from empty ones.
type payload struct {
    Summary     *string  `json:"summary"`
    IssueType   *string  `json:"issuetype"`
    Description *string  `json:"description"`
    Priority    *string  `json:"priority"`
    StartDate   *string  `json:"start_date"`
    DueDate     *string  `json:"due_date"`
    EpicLink    *string  `json:"epic_link"`
    Assignee    *string  `json:"assignee"`
    MediaURLs   []string `json:"media_urls"`
}

func (p payload) empty() bool {
    return p.Summary == nil && p.IssueType == nil && p.Description == nil && p.Priority == nil &&
        p.StartDate == nil && p.DueDate == nil && p.EpicLink == nil && p.Assignee == nil && len(p.MediaURLs) == 0
}

func parsePayload(raw string) (payload, error) {
    s := strings.TrimSpace(raw)
    s = fenceOpen.ReplaceAllString(s, "")
    s = strings.TrimSpace(fenceClose.ReplaceAllString(s, ""))
    var p payload
    if s == "" { return p, errors.New("empty response") }
    if err := json.Unmarshal([]byte(s), &p); err != nil { return p, fmt.Errorf("malformed json: %w", err) }
    if p.empty() { return p, errors.New("response has none of the expected fields") }
    return p, nil
}

func str(v *string) string {
    if v == nil { return "" }
    s := strings.TrimSpace(*v)
    switch strings.ToLower(s) {
    case "null", "none", "n/a", "nil":
        return ""
    }
    return s
}

// record maps the payload onto the typed record; unknown kinds become Task and
// unknown priorities become absent. Cleanup does the rest.
func (p payload) record() domain.TaskRecord {
    rec := domain.TaskRecord{
        Summary:     str(p.Summary),
        Description: str(p.Description),
        Kind:        domain.KindTask,
        StartDate:   str(p.StartDate),
        DueDate:     str(p.DueDate),
        EpicRef:     str(p.EpicLink),
        AssigneeRef: str(p.Assignee),
        MediaURLs:   p.MediaURLs,
    }
    if k, ok := domain.ParseIssueKind(str(p.IssueType)); ok { rec.Kind = k }
    if pr, ok := domain.ParsePriority(str(p.Priority)); ok { rec.Priority = pr }
    return rec
}
