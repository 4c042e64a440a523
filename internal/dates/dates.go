/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package dates turns free-text date phrases into YYYY-MM-DD.
package dates

import (
    "fmt"
    "regexp"
    "strconv"
    "time"

    "github.com/HamedShams/taskbridge/internal/lexicon"
)

const Layout = "2006-01-02"

var (
    // day-first wins for ambiguous numeric dates
    dayFirst  = regexp.MustCompile(`(?:^|\D)(\d{1,2})[/-](\d{1,2})[/-](\d{4})(?:\D|$)`)
    yearFirst = regexp.MustCompile(`(?:^|\D)(\d{4})[/-](\d{1,2})[/-](\d{1,2})(?:\D|$)`)
)

type Resolver struct {
    lex lexicon.Source
}

func New(lex lexicon.Source) *Resolver { return &Resolver{lex: lex} }

// Resolve checks relative phrases first, then numeric notations. It reports
// false rather than guessing when nothing matches or the date does not exist.
func (r *Resolver) Resolve(phrase string, now time.Time) (string, bool) {
    if d, ok := r.Relative(phrase, now); ok { return d, true }
    return Absolute(phrase)
}

// Relative resolves the leftmost relative phrase in the text.
func (r *Resolver) Relative(phrase string, now time.Time) (string, bool) {
    days, at := 0, -1
    for _, rule := range r.lex.Current().Relative {
        if span := rule.Phrases.Find(phrase); span != nil && (at < 0 || span[0] < at) {
            days, at = rule.Days, span[0]
        }
    }
    if at < 0 { return "", false }
    y, m, d := now.Date()
    return time.Date(y, m, d+days, 0, 0, 0, 0, now.Location()).Format(Layout), true
}

// Absolute accepts D/M/YYYY, D-M-YYYY, YYYY/M/D and YYYY-M-D.
func Absolute(phrase string) (string, bool) {
    if m := dayFirst.FindStringSubmatch(phrase); m != nil {
        if s, ok := build(m[3], m[2], m[1]); ok { return s, true }
    }
    if m := yearFirst.FindStringSubmatch(phrase); m != nil {
        if s, ok := build(m[1], m[2], m[3]); ok { return s, true }
    }
    return "", false
}

// Canonical validates an already-structured value (for example from a model
// response) and normalizes it to YYYY-MM-DD.
func Canonical(s string) (string, bool) {
    if t, err := time.Parse(Layout, s); err == nil { return t.Format(Layout), true }
    return Absolute(s)
}

func build(year, month, day string) (string, bool) {
    y, _ := strconv.Atoi(year)
    m, _ := strconv.Atoi(month)
    d, _ := strconv.Atoi(day)
    s := fmt.Sprintf("%04d-%02d-%02d", y, m, d)
    if _, err := time.Parse(Layout, s); err != nil { return "", false }
    return s, true
}
