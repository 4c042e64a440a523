/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package lexicon

import "regexp"

// letter, mark, digit or underscore: what a whole-word phrase may not touch.
const wordClass = `\p{L}\p{M}\p{N}_`

// PhraseSet matches any of its phrases as whole words, case-insensitively.
// Go's \b is ASCII-only, so word edges are spelled out with Unicode classes.
type PhraseSet struct {
    phrases []string
    re      *regexp.Regexp
}

func NewPhraseSet(phrases []string) *PhraseSet {
    ps := &PhraseSet{phrases: append([]string(nil), phrases...)}
    alt := alternation(phrases)
    if alt == "" { return ps }
    ps.re = regexp.MustCompile(`(?i)(?:^|[^` + wordClass + `])(` + alt + `)(?:$|[^` + wordClass + `])`)
    return ps
}

// Find returns the byte span of the leftmost phrase occurrence, or nil.
func (p *PhraseSet) Find(s string) []int {
    if p == nil || p.re == nil { return nil }
    m := p.re.FindStringSubmatchIndex(s)
    if m == nil { return nil }
    return []int{m[2], m[3]}
}

// FindAll returns the spans of every non-overlapping occurrence.
func (p *PhraseSet) FindAll(s string) [][]int {
    if p == nil || p.re == nil { return nil }
    var out [][]int
    for off := 0; off < len(s); {
        m := p.re.FindStringSubmatchIndex(s[off:])
        if m == nil { break }
        out = append(out, []int{off + m[2], off + m[3]})
        off += m[3]
    }
    return out
}

func (p *PhraseSet) Contains(s string) bool { return p.Find(s) != nil }

func (p *PhraseSet) Phrases() []string { return append([]string(nil), p.phrases...) }
