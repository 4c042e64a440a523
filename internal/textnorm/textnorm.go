/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package textnorm turns chat-platform markup into plain text and works out
// who a message is addressed to from its mention tokens.
package textnorm

import (
    "io"
    "regexp"
    "strings"
    "unicode/utf8"

    "github.com/HamedShams/taskbridge/internal/lexicon"
    "golang.org/x/net/html"
    "golang.org/x/text/unicode/norm"
)

type Result struct {
    Text              string
    AssigneeCandidate string
    Mentions          []string
}

// mention is a resolved <at> token with its byte span in the pre-cleanup text.
type mention struct {
    name       string
    start, end int
}

var (
    parenthetical = regexp.MustCompile(`\s*[(（][^)）]*[)）]`)
    hspace        = regexp.MustCompile(`[ \t\f\r\v]+`)
    blankRuns     = regexp.MustCompile(`\n{3,}`)
    spaceLike     = strings.NewReplacer("\u00a0", " ", "\u2007", " ", "\u202f", " ", "\u200b", "", "\ufeff", "")
    // decoded text that a second pass would read as a tag or an entity
    markupLike    = regexp.MustCompile(`<[A-Za-z/!?]|&[A-Za-z#]`)
)

var blockTags = map[string]bool{
    "p": true, "div": true, "li": true, "tr": true, "ul": true, "ol": true, "table": true,
    "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "blockquote": true, "pre": true,
}

type Normalizer struct {
    lex      lexicon.Source
    botNames []string
    botRe    *regexp.Regexp
}

func New(lex lexicon.Source, botNames ...string) *Normalizer {
    n := &Normalizer{lex: lex}
    var alts []string
    for _, b := range botNames {
        b = strings.TrimSpace(b)
        if b == "" { continue }
        n.botNames = append(n.botNames, b)
        alts = append(alts, regexp.QuoteMeta(b))
    }
    if len(alts) > 0 {
        n.botRe = regexp.MustCompile(`(?i)@?(?:^|\b)(?:` + strings.Join(alts, "|") + `)\b`)
    }
    return n
}

// Normalize is idempotent on its own output.
func (n *Normalizer) Normalize(raw string) Result {
    lex := n.lex.Current()
    pol := lex.Data.Mention
    text, mentions := n.flatten(norm.NFC.String(raw), pol)

    res := Result{}
    for _, m := range mentions { res.Mentions = append(res.Mentions, m.name) }

    triggers := lex.AssignTriggers.FindAll(text)
    for _, tr := range triggers {
        rest := text[tr[1]:]
        end := tr[1] + lex.ClauseBoundary(rest)
        var parts []string
        for _, m := range mentions {
            if m.start >= tr[1] && m.end <= end && namePart(m.name, pol) { parts = append(parts, m.name) }
        }
        if cand := cleanName(strings.Join(parts, " ")); plausibleName(cand, pol) {
            res.AssigneeCandidate = cand
            break
        }
    }

    synthetic := ""
    if len(triggers) == 0 && len(mentions) > 0 {
        if best := bestName(mentions, text, pol); best != "" {
            synthetic = lex.Data.SyntheticAssign + " " + best
            res.AssigneeCandidate = best
        }
    }

    if n.botRe != nil { text = n.botRe.ReplaceAllString(text, "") }
    text = tidy(text)
    if synthetic != "" { text = strings.TrimSpace(text + "\n" + synthetic) }

    if res.AssigneeCandidate == "" && len(triggers) > 0 {
        for _, re := range lex.Assignee {
            if m := re.FindStringSubmatch(text); m != nil {
                if cand := cleanName(lex.TrimValue(m[1])); plausibleName(cand, pol) {
                    res.AssigneeCandidate = cand
                    break
                }
            }
        }
    }
    res.Text = text
    return res
}

// flatten walks the markup once: text and entities are decoded, block ends
// become newlines, and <at> tokens become mentions. Bot self-mentions and
// implausible mentions are dropped from the text.
func (n *Normalizer) flatten(raw string, pol lexicon.MentionPolicy) (string, []mention) {
    var b strings.Builder
    var mentions []mention
    z := html.NewTokenizer(strings.NewReader(raw))
    inMention, skip := false, 0
    var buf strings.Builder
    for {
        tt := z.Next()
        switch tt {
        case html.ErrorToken:
            if z.Err() != io.EOF { b.Write(z.Raw()) }
            return b.String(), mentions
        case html.TextToken:
            if skip > 0 { continue }
            t := escapeMarkup(spaceLike.Replace(string(z.Text())))
            if inMention { buf.WriteString(t); continue }
            b.WriteString(t)
        case html.StartTagToken, html.SelfClosingTagToken:
            name, _ := z.TagName()
            switch tag := string(name); {
            case tag == "at":
                inMention = true
                buf.Reset()
            case tag == "br":
                b.WriteByte('\n')
            case tag == "script" || tag == "style":
                if tt == html.StartTagToken { skip++ }
            }
        case html.EndTagToken:
            name, _ := z.TagName()
            switch tag := string(name); {
            case tag == "at" && inMention:
                inMention = false
                name := strings.Join(strings.Fields(buf.String()), " ")
                if name == "" || n.isBot(name) || !plausibleMention(name, pol) { continue }
                m := mention{name: name, start: b.Len()}
                b.WriteString(name)
                m.end = b.Len()
                mentions = append(mentions, m)
            case tag == "script" || tag == "style":
                if skip > 0 { skip-- }
            case blockTags[tag]:
                b.WriteByte('\n')
            }
        }
    }
}

// escapeMarkup keeps escaped markup escaped so that Normalize stays a fixed
// point on its own output. A lone "&" or "<" is left alone.
func escapeMarkup(s string) string {
    return markupLike.ReplaceAllStringFunc(s, func(m string) string {
        if m[0] == '<' { return "&lt;" + m[1:] }
        return "&amp;" + m[1:]
    })
}

func (n *Normalizer) isBot(name string) bool {
    name = strings.TrimPrefix(name, "@")
    for _, b := range n.botNames {
        if strings.EqualFold(name, b) { return true }
    }
    return false
}

// bestName groups whitespace-adjacent short mentions into full names and
// prefers the first name with at least two words.
func bestName(mentions []mention, text string, pol lexicon.MentionPolicy) string {
    var names []string
    var group []string
    prevEnd := -1
    flush := func() {
        if len(group) > 0 { names = append(names, strings.Join(group, " ")) }
        group = nil
    }
    for _, m := range mentions {
        if runeLen(m.name) > pol.MaxSynthMentionLen || strings.HasPrefix(m.name, "[") {
            flush(); prevEnd = -1
            continue
        }
        if !namePart(m.name, pol) {
            flush()
            if !strings.ContainsAny(m.name, "()[]（）") { names = append(names, m.name) }
            prevEnd = -1
            continue
        }
        if prevEnd < 0 || strings.TrimSpace(text[prevEnd:m.start]) != "" { flush() }
        group = append(group, m.name)
        prevEnd = m.end
    }
    flush()

    var valid []string
    for _, nm := range names {
        if nm = cleanName(nm); plausibleName(nm, pol) { valid = append(valid, nm) }
    }
    if len(valid) == 0 { return "" }
    for _, nm := range valid {
        if len(strings.Fields(nm)) >= 2 { return nm }
    }
    return valid[0]
}

func plausibleMention(name string, pol lexicon.MentionPolicy) bool {
    return runeLen(name) <= pol.MaxMentionLen && !strings.ContainsAny(name, pol.Decorative)
}

// namePart: a short token that can be one piece of a split display name.
func namePart(name string, pol lexicon.MentionPolicy) bool {
    return name != "" && runeLen(name) <= pol.MaxNamePartLen && !strings.ContainsAny(name, "()[]（）"+pol.Decorative)
}

func plausibleName(name string, pol lexicon.MentionPolicy) bool {
    l := runeLen(name)
    return l >= pol.MinNameLen && l <= pol.MaxNameLen && !strings.ContainsAny(name, "[]"+pol.Decorative)
}

func cleanName(s string) string {
    s = parenthetical.ReplaceAllString(s, "")
    return strings.Join(strings.Fields(s), " ")
}

func tidy(s string) string {
    lines := strings.Split(s, "\n")
    for i, l := range lines { lines[i] = strings.TrimSpace(hspace.ReplaceAllString(l, " ")) }
    s = strings.Join(lines, "\n")
    s = blankRuns.ReplaceAllString(s, "\n\n")
    return strings.TrimSpace(s)
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
