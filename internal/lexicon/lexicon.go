/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package lexicon holds the bilingual trigger vocabulary used by the
// normalizer and the directive extractor. The vocabulary is data: an
// embedded default plus an optional YAML override on disk.
package lexicon

import (
    _ "embed"
    "fmt"
    "os"
    "regexp"
    "sort"
    "strings"
    "sync"

    "github.com/HamedShams/taskbridge/internal/domain"
    "gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type PriorityBucket struct {
    Level string   `yaml:"level"`
    Words []string `yaml:"words"`
    // LabelOnly words count only after an explicit priority label.
    LabelOnly bool `yaml:"label_only"`
}

type RelativeDate struct {
    Days    int      `yaml:"days"`
    Phrases []string `yaml:"phrases"`
}

type MentionPolicy struct {
    MaxMentionLen      int    `yaml:"max_mention_len"`
    MaxNamePartLen     int    `yaml:"max_name_part_len"`
    MaxSynthMentionLen int    `yaml:"max_synth_mention_len"`
    MinNameLen         int    `yaml:"min_name_len"`
    MaxNameLen         int    `yaml:"max_name_len"`
    Decorative         string `yaml:"decorative"`
}

// Data is the raw YAML shape.
type Data struct {
    Connectors     []string `yaml:"connectors"`
    ClauseBreaks   []string `yaml:"clause_breaks"`
    ClauseKeywords []string `yaml:"clause_keywords"`
    DirectiveWords []string `yaml:"directive_words"`
    Kinds          struct {
        Bug              []string `yaml:"bug"`
        Improvement      []string `yaml:"improvement"`
        EpicCreate       []string `yaml:"epic_create"`
        EpicCreatePrefix []string `yaml:"epic_create_prefix"`
    } `yaml:"kinds"`
    PriorityPatterns  []string         `yaml:"priority_patterns"`
    Priorities        []PriorityBucket `yaml:"priorities"`
    RelativeDates     []RelativeDate   `yaml:"relative_dates"`
    AssignTriggers    []string         `yaml:"assign_triggers"`
    SyntheticAssign   string           `yaml:"synthetic_assign"`
    AssigneePatterns  []string         `yaml:"assignee_patterns"`
    EpicPatterns      []string         `yaml:"epic_patterns"`
    StartDatePatterns []string         `yaml:"start_date_patterns"`
    DueDatePatterns   []string         `yaml:"due_date_patterns"`
    Media             struct {
        ImageExt []string `yaml:"image_ext"`
        VideoExt []string `yaml:"video_ext"`
        Hosts    []string `yaml:"hosts"`
    } `yaml:"media"`
    Mention MentionPolicy `yaml:"mention_policy"`
}

type PriorityRule struct {
    Level     domain.Priority
    Words     *PhraseSet
    LabelOnly bool
}

type RelativeRule struct {
    Days    int
    Phrases *PhraseSet
}

// Lexicon is the compiled, immutable form of Data. Safe for concurrent use.
type Lexicon struct {
    Data Data

    Bug, Improvement, EpicCreate *PhraseSet
    EpicCreatePrefixes           []string
    Directive                    *PhraseSet
    AssignTriggers               *PhraseSet
    Priorities                   []PriorityRule
    Relative                     []RelativeRule

    Assignee, Epic, StartDate, DueDate, PriorityLabel []*regexp.Regexp

    clauseEnd *regexp.Regexp
    nearEnd   *regexp.Regexp
}

// Source yields the lexicon in effect right now.
type Source interface {
    Current() *Lexicon
}

func (l *Lexicon) Current() *Lexicon { return l }

// Default is the embedded vocabulary. It panics only if the embedded file is broken.
var Default = sync.OnceValue(func() *Lexicon {
    l, err := Parse(defaultYAML, nil)
    if err != nil { panic(fmt.Sprintf("lexicon: embedded default: %v", err)) }
    return l
})

// Load compiles the defaults overlaid with the file at path. Lists present in
// the file replace the default lists; absent keys keep their defaults.
func Load(path string) (*Lexicon, error) {
    if strings.TrimSpace(path) == "" { return Default(), nil }
    override, err := os.ReadFile(path)
    if err != nil { return nil, fmt.Errorf("lexicon: read %s: %w", path, err) }
    // a file caught mid-write reads as empty
    if len(strings.TrimSpace(string(override))) == 0 { return nil, fmt.Errorf("lexicon: %s is empty", path) }
    return Parse(defaultYAML, override)
}

func Parse(base, override []byte) (*Lexicon, error) {
    var d Data
    if err := yaml.Unmarshal(base, &d); err != nil { return nil, fmt.Errorf("lexicon: parse defaults: %w", err) }
    if len(override) > 0 {
        if err := yaml.Unmarshal(override, &d); err != nil { return nil, fmt.Errorf("lexicon: parse override: %w", err) }
    }
    return compile(d)
}

func compile(d Data) (*Lexicon, error) {
    l := &Lexicon{Data: d, EpicCreatePrefixes: lowerAll(d.Kinds.EpicCreatePrefix)}
    l.Bug = NewPhraseSet(d.Kinds.Bug)
    l.Improvement = NewPhraseSet(d.Kinds.Improvement)
    l.EpicCreate = NewPhraseSet(d.Kinds.EpicCreate)
    l.Directive = NewPhraseSet(d.DirectiveWords)
    l.AssignTriggers = NewPhraseSet(d.AssignTriggers)
    for _, b := range d.Priorities {
        p, ok := domain.ParsePriority(b.Level)
        if !ok { return nil, fmt.Errorf("lexicon: unknown priority level %q", b.Level) }
        l.Priorities = append(l.Priorities, PriorityRule{Level: p, Words: NewPhraseSet(b.Words), LabelOnly: b.LabelOnly})
    }
    for _, r := range d.RelativeDates {
        l.Relative = append(l.Relative, RelativeRule{Days: r.Days, Phrases: NewPhraseSet(r.Phrases)})
    }
    var err error
    if l.Assignee, err = compileAll("assignee", d.AssigneePatterns); err != nil { return nil, err }
    if l.Epic, err = compileAll("epic", d.EpicPatterns); err != nil { return nil, err }
    if l.StartDate, err = compileAll("start date", d.StartDatePatterns); err != nil { return nil, err }
    if l.DueDate, err = compileAll("due date", d.DueDatePatterns); err != nil { return nil, err }
    if l.PriorityLabel, err = compileAll("priority", d.PriorityPatterns); err != nil { return nil, err }

    words := append(append([]string{}, d.Connectors...), d.ClauseKeywords...)
    if len(words) > 0 {
        l.clauseEnd = regexp.MustCompile(`(?i)\s+(?:` + alternation(words) + `)(?:[\s:]|$)`)
    }
    breaks := append(append([]string{}, d.ClauseBreaks...), d.ClauseKeywords...)
    if len(breaks) > 0 {
        l.nearEnd = regexp.MustCompile(`(?i)(?:^|\s)(?:` + alternation(breaks) + `)(?:[\s:]|$)`)
    }
    if d.Mention.MaxMentionLen == 0 { return nil, fmt.Errorf("lexicon: mention_policy is missing") }
    return l, nil
}

func compileAll(name string, patterns []string) ([]*regexp.Regexp, error) {
    out := make([]*regexp.Regexp, 0, len(patterns))
    for i, p := range patterns {
        re, err := regexp.Compile(`(?im)` + p)
        if err != nil { return nil, fmt.Errorf("lexicon: %s pattern %d: %w", name, i, err) }
        if re.NumSubexp() < 1 { return nil, fmt.Errorf("lexicon: %s pattern %d has no capture group", name, i) }
        out = append(out, re)
    }
    return out, nil
}

// TrimValue cuts a captured value at the first connector or clause keyword
// and strips trailing punctuation.
func (l *Lexicon) TrimValue(s string) string {
    s = strings.TrimSpace(s)
    if l.clauseEnd != nil {
        if loc := l.clauseEnd.FindStringIndex(s); loc != nil { s = s[:loc[0]] }
    }
    s = strings.TrimRight(s, ".,;:!? \t")
    s = strings.Trim(s, `"'“”`)
    return strings.TrimSpace(s)
}

// ClauseBoundary returns the offset in s where the current clause ends: the
// first "and"-style connector or clause keyword, a newline, or len(s).
func (l *Lexicon) ClauseBoundary(s string) int {
    end := len(s)
    if i := strings.IndexByte(s, '\n'); i >= 0 { end = i }
    if l.nearEnd != nil {
        if loc := l.nearEnd.FindStringIndex(s[:end]); loc != nil { end = loc[0] }
    }
    return end
}

func (l *Lexicon) IsImageExt(ext string) bool { return containsFold(l.Data.Media.ImageExt, ext) }
func (l *Lexicon) IsVideoExt(ext string) bool { return containsFold(l.Data.Media.VideoExt, ext) }

// IsMediaHost matches the host itself or any subdomain of a listed host.
func (l *Lexicon) IsMediaHost(host string) bool {
    host = strings.TrimPrefix(strings.ToLower(host), "www.")
    for _, h := range l.Data.Media.Hosts {
        h = strings.ToLower(h)
        if host == h || strings.HasSuffix(host, "."+h) { return true }
    }
    return false
}

func containsFold(list []string, s string) bool {
    for _, v := range list {
        if strings.EqualFold(v, s) { return true }
    }
    return false
}

func lowerAll(in []string) []string {
    out := make([]string, 0, len(in))
    for _, s := range in { out = append(out, strings.ToLower(s)) }
    return out
}

// alternation quotes phrases longest first so the leftmost-first engine prefers the longer one.
func alternation(phrases []string) string {
    ps := append([]string(nil), phrases...)
    sort.SliceStable(ps, func(i, j int) bool { return len(ps[i]) > len(ps[j]) })
    parts := make([]string, 0, len(ps))
    for _, p := range ps {
        p = strings.TrimSpace(p)
        if p == "" { continue }
        fields := strings.Fields(p)
        for i := range fields { fields[i] = regexp.QuoteMeta(fields[i]) }
        parts = append(parts, strings.Join(fields, `\s+`))
    }
    return strings.Join(parts, "|")
}
