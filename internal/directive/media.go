/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package directive

import (
    "net/url"
    "path"
    "regexp"
    "strings"

    "github.com/HamedShams/taskbridge/internal/lexicon"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+|www\.[^\s<>"]+`)

type MediaKind int

const (
    NotMedia MediaKind = iota
    Image
    Video
    Hosted // a media platform page; linked, never downloaded
)

// MediaURLs returns media links in first-seen order without duplicates.
func MediaURLs(lex *lexicon.Lexicon, text string) []string {
    var out []string
    seen := map[string]bool{}
    for _, raw := range urlPattern.FindAllString(text, -1) {
        u := cleanURL(raw)
        if u == "" || seen[u] || Classify(lex, u) == NotMedia { continue }
        seen[u] = true
        out = append(out, u)
    }
    return out
}

// Classify looks at the path extension first, then the host.
func Classify(lex *lexicon.Lexicon, raw string) MediaKind {
    u, err := url.Parse(raw)
    if err != nil || u.Host == "" { return NotMedia }
    ext := strings.ToLower(path.Ext(u.Path))
    switch {
    case ext != "" && lex.IsImageExt(ext):
        return Image
    case ext != "" && lex.IsVideoExt(ext):
        return Video
    case lex.IsMediaHost(u.Hostname()):
        return Hosted
    }
    return NotMedia
}

func cleanURL(raw string) string {
    raw = strings.TrimRight(raw, `.,;:!?)]}'`)
    if strings.HasPrefix(strings.ToLower(raw), "www.") { raw = "https://" + raw }
    u, err := url.Parse(raw)
    if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") { return "" }
    return raw
}

// CleanURLs keeps well-formed http(s) links, deduplicated, in order.
func CleanURLs(in []string) []string {
    var out []string
    seen := map[string]bool{}
    for _, raw := range in {
        u := cleanURL(strings.TrimSpace(raw))
        if u == "" || seen[u] { continue }
        seen[u] = true
        out = append(out, u)
    }
    return out
}

// UnionURLs appends the links of extra not already in base.
func UnionURLs(base, extra []string) []string {
    out := append([]string(nil), base...)
    seen := map[string]bool{}
    for _, u := range out { seen[u] = true }
    for _, u := range extra {
        if !seen[u] { seen[u] = true; out = append(out, u) }
    }
    return out
}
