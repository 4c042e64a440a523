/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package directive is the deterministic extraction layer: ordered,
// lexicon-driven patterns that pull a task record out of free text. It is
// the fallback when the model is slow or wrong, and it also cleans up what
// the model returns.
package directive

import (
    "regexp"
    "strings"
    "time"
    "unicode/utf8"

    "github.com/HamedShams/taskbridge/internal/dates"
    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/HamedShams/taskbridge/internal/lexicon"
)

const (
    NoSummary     = "No summary"
    NoDescription = "No description"
)

var (
    parenthetical  = regexp.MustCompile(`\s*[(（][^)）]*[)）]`)
    trailingJoiner = regexp.MustCompile(`(?i)[\s,;:\-]+(?:và|and)?[\s,;:\-]*$`)
)

type Extractor struct {
    lex             lexicon.Source
    dates           *dates.Resolver
    summaryMax      int
    defaultPriority domain.Priority
}

type Option func(*Extractor)

func WithSummaryMax(n int) Option { return func(e *Extractor) { if n > 0 { e.summaryMax = n } } }

// WithDefaultPriority sets the priority used when the text names none. Empty means absent.
func WithDefaultPriority(p domain.Priority) Option { return func(e *Extractor) { e.defaultPriority = p } }

func New(lex lexicon.Source, opts ...Option) *Extractor {
    e := &Extractor{lex: lex, dates: dates.New(lex), summaryMax: 200}
    for _, o := range opts { o(e) }
    return e
}

// Extract never fails: summary and description always come back non-empty.
func (e *Extractor) Extract(text string, now time.Time) domain.TaskRecord {
    lex := e.lex.Current()
    text = strings.TrimSpace(text)
    kind, createSpan := e.kind(lex, text)
    rec := domain.TaskRecord{
        Summary:     e.summary(lex, text),
        Kind:        kind,
        Priority:    e.priority(lex, text),
        EpicRef:     epicRef(lex, text, createSpan),
        AssigneeRef: assignee(lex, text),
        StartDate:   e.date(lex, lex.StartDate, text, now),
        DueDate:     e.date(lex, lex.DueDate, text, now),
        MediaURLs:   MediaURLs(lex, text),
    }
    rec.Description = description(lex, text, rec.Summary)
    rec.EnforceEpicInvariant()
    return rec
}

// kind: Bug words win, then an explicit create-epic directive, then
// Improvement words, else Task. The create directive's span is returned so
// its "Epic: name" is never read as a link to another epic.
func (e *Extractor) kind(lex *lexicon.Lexicon, text string) (domain.IssueKind, []int) {
    span := lex.EpicCreate.Find(text)
    if span == nil {
        low := strings.ToLower(text)
        for _, p := range lex.EpicCreatePrefixes {
            if strings.HasPrefix(low, p) { span = []int{0, len(p)}; break }
        }
    }
    switch {
    case lex.Bug.Contains(text):
        return domain.KindBug, span
    case span != nil:
        return domain.KindEpic, span
    case lex.Improvement.Contains(text):
        return domain.KindImprovement, span
    }
    return domain.KindTask, span
}

func (e *Extractor) priority(lex *lexicon.Lexicon, text string) domain.Priority {
    for _, re := range lex.PriorityLabel {
        if m := re.FindStringSubmatch(text); m != nil {
            v := strings.TrimSpace(m[1])
            if p, ok := domain.ParsePriority(v); ok { return p }
            if p := bucket(lex, v, true); p != domain.PriorityNone { return p }
        }
    }
    if p := bucket(lex, text, false); p != domain.PriorityNone { return p }
    return e.defaultPriority
}

// bucket maps priority words to a level. Outside a label, words such as
// "normal" are ordinary prose and are skipped.
func bucket(lex *lexicon.Lexicon, s string, labelled bool) domain.Priority {
    for _, r := range lex.Priorities {
        if r.LabelOnly && !labelled { continue }
        if r.Words.Contains(s) { return r.Level }
    }
    return domain.PriorityNone
}

func epicRef(lex *lexicon.Lexicon, text string, createSpan []int) string {
    for _, re := range lex.Epic {
        for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
            if createSpan != nil && m[0] < createSpan[1] && createSpan[0] < m[1] { continue }
            if v := lex.TrimValue(text[m[2]:m[3]]); v != "" { return v }
        }
    }
    return ""
}

func assignee(lex *lexicon.Lexicon, text string) string {
    for _, re := range lex.Assignee {
        if m := re.FindStringSubmatch(text); m != nil {
            if v := CleanPersonName(lex.TrimValue(m[1])); utf8.RuneCountInString(v) >= 2 { return v }
        }
    }
    return ""
}

// date resolves only the clause a trigger introduces, so "due tomorrow and
// start today" does not read "today" as the due date.
func (e *Extractor) date(lex *lexicon.Lexicon, rules []*regexp.Regexp, text string, now time.Time) string {
    for _, re := range rules {
        for _, m := range re.FindAllStringSubmatch(text, -1) {
            v := m[1][:lex.ClauseBoundary(m[1])]
            if d, ok := e.dates.Resolve(v, now); ok { return d }
        }
    }
    return ""
}

// summary is the first non-blank line, with any trailing directive clause cut off.
func (e *Extractor) summary(lex *lexicon.Lexicon, text string) string {
    line := ""
    for _, l := range strings.Split(text, "\n") {
        if l = strings.TrimSpace(l); l != "" { line = l; break }
    }
    if loc := lex.Directive.Find(line); loc != nil && loc[0] > 0 {
        if head := trailingJoiner.ReplaceAllString(line[:loc[0]], ""); utf8.RuneCountInString(head) >= 3 { line = head }
    }
    if line == "" { return NoSummary }
    return truncate(line, e.summaryMax)
}

// description is the text minus directive lines; when nothing is left it falls back to the summary.
func description(lex *lexicon.Lexicon, text, summary string) string {
    var keep []string
    for _, l := range strings.Split(text, "\n") {
        if lex.Directive.Contains(l) { continue }
        keep = append(keep, strings.TrimRight(l, " \t"))
    }
    d := strings.TrimSpace(strings.Join(keep, "\n"))
    if d == "" && summary != NoSummary { d = summary }
    if d == "" { d = NoDescription }
    return d
}

// CleanPersonName drops parenthetical annotations and collapses whitespace.
func CleanPersonName(s string) string {
    s = strings.ReplaceAll(s, "\u00a0", " ")
    s = parenthetical.ReplaceAllString(s, "")
    return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
    if max <= 0 || utf8.RuneCountInString(s) <= max { return s }
    r := []rune(s)
    return strings.TrimSpace(string(r[:max]))
}
