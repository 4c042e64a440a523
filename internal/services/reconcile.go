/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "time"

    "github.com/HamedShams/taskbridge/internal/directive"
    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/HamedShams/taskbridge/internal/extraction"
    "github.com/HamedShams/taskbridge/internal/lexicon"
    "github.com/HamedShams/taskbridge/internal/textnorm"
)

// Plan is the final record split into what is sent at creation and what is
// applied afterwards.
type Plan struct {
    Record   domain.TaskRecord
    Draft    domain.IssueDraft
    Deferred domain.DeferredFields
    Source   extraction.Source
}

type Reconciler struct {
    lex   lexicon.Source
    rules *directive.Extractor
}

func NewReconciler(lex lexicon.Source, rules *directive.Extractor) *Reconciler {
    return &Reconciler{lex: lex, rules: rules}
}

// Reconcile merges the chosen extraction with the deterministic reading of
// the same text. Fields the chosen result left absent are filled from the
// regex layer, then from the normalizer's assignee candidate.
func (r *Reconciler) Reconcile(res extraction.Result, nr textnorm.Result, now time.Time) Plan {
    rec := res.Record
    if res.Source == extraction.SourceAI {
        det := r.rules.Extract(nr.Text, now)
        if rec.Priority == domain.PriorityNone { rec.Priority = det.Priority }
        if rec.EpicRef == "" && rec.Kind != domain.KindEpic { rec.EpicRef = det.EpicRef }
        if rec.AssigneeRef == "" { rec.AssigneeRef = det.AssigneeRef }
        if rec.StartDate == "" { rec.StartDate = det.StartDate }
        if rec.DueDate == "" { rec.DueDate = det.DueDate }
    }
    if rec.AssigneeRef == "" { rec.AssigneeRef = directive.CleanPersonName(nr.AssigneeCandidate) }
    rec.MediaURLs = directive.UnionURLs(rec.MediaURLs, directive.MediaURLs(r.lex.Current(), nr.Text))
    rec.EnforceEpicInvariant()

    p := Plan{Record: rec, Deferred: rec.Deferred(), Source: res.Source}
    p.Draft = domain.IssueDraft{Summary: rec.Summary, Description: rec.Description, Kind: rec.Kind, Priority: rec.Priority}
    if rec.Kind == domain.KindEpic { p.Draft.EpicName = rec.Summary }
    return p
}
