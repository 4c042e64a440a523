/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package directive

import (
    "strings"

    "github.com/HamedShams/taskbridge/internal/dates"
    "github.com/HamedShams/taskbridge/internal/domain"
)

// Cleanup applies the same post-processing to a record produced elsewhere
// (the model) that Extract applies to its own output. text is the message
// the record was extracted from; it supplies defaults for missing fields.
func (e *Extractor) Cleanup(rec domain.TaskRecord, text string) domain.TaskRecord {
    lex := e.lex.Current()
    text = strings.TrimSpace(text)

    rec.Summary = strings.Join(strings.Fields(rec.Summary), " ")
    if rec.Summary == "" {
        rec.Summary = e.summary(lex, text)
    }
    rec.Summary = truncate(rec.Summary, e.summaryMax)

    if strings.TrimSpace(rec.Description) == "" { rec.Description = text }
    rec.Description = description(lex, rec.Description, rec.Summary)

    if rec.Kind == "" { rec.Kind = domain.KindTask }
    if rec.Priority == domain.PriorityNone { rec.Priority = e.defaultPriority }

    rec.EpicRef = lex.TrimValue(rec.EpicRef)
    rec.AssigneeRef = CleanPersonName(lex.TrimValue(rec.AssigneeRef))

    if d, ok := dates.Canonical(strings.TrimSpace(rec.StartDate)); ok { rec.StartDate = d } else { rec.StartDate = "" }
    if d, ok := dates.Canonical(strings.TrimSpace(rec.DueDate)); ok { rec.DueDate = d } else { rec.DueDate = "" }

    rec.MediaURLs = CleanURLs(rec.MediaURLs)
    rec.EnforceEpicInvariant()
    return rec
}
