/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "strings"
    "unicode"

    "golang.org/x/text/runes"
    "golang.org/x/text/transform"
    "golang.org/x/text/unicode/norm"
)

// fold lower-cases and strips combining marks; đ has no decomposition and is mapped by hand.
func fold(s string) string {
    t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
    out, _, err := transform.String(t, s)
    if err != nil { out = s }
    out = strings.NewReplacer("đ", "d", "Đ", "D").Replace(out)
    return strings.ToLower(strings.Join(strings.Fields(out), " "))
}

// compact keeps only letters and digits of the folded string.
func compact(s string) string {
    var b strings.Builder
    for _, r := range fold(s) {
        if unicode.IsLetter(r) || unicode.IsDigit(r) { b.WriteRune(r) }
    }
    return b.String()
}

func dedupe(in []string) []string {
    var out []string
    seen := map[string]bool{}
    for _, s := range in {
        s = strings.TrimSpace(s)
        if s == "" || seen[s] { continue }
        seen[s] = true
        out = append(out, s)
    }
    return out
}
