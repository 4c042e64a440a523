/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import (
    "errors"
    "strings"
)

var (
    ErrFieldRejected    = errors.New("tracker rejected fields")
    ErrNotFound         = errors.New("not found")
    ErrExtractionFailed = errors.New("extraction failed")
    ErrMisconfigured    = errors.New("misconfigured")
)

type IssueKind string

const (
    KindTask        IssueKind = "Task"
    KindBug         IssueKind = "Bug"
    KindEpic        IssueKind = "Epic"
    KindImprovement IssueKind = "Improvement"
)

var kinds = []IssueKind{KindTask, KindBug, KindEpic, KindImprovement}

// ParseIssueKind matches case-insensitively; ok is false for anything outside the closed set.
func ParseIssueKind(s string) (IssueKind, bool) {
    s = strings.TrimSpace(s)
    for _, k := range kinds {
        if strings.EqualFold(s, string(k)) { return k, true }
    }
    return "", false
}

type Priority string

const (
    PriorityNone    Priority = ""
    PriorityHighest Priority = "Highest"
    PriorityHigh    Priority = "High"
    PriorityMedium  Priority = "Medium"
    PriorityLow     Priority = "Low"
    PriorityLowest  Priority = "Lowest"
)

var priorities = []Priority{PriorityHighest, PriorityHigh, PriorityMedium, PriorityLow, PriorityLowest}

func ParsePriority(s string) (Priority, bool) {
    s = strings.TrimSpace(s)
    for _, p := range priorities {
        if strings.EqualFold(s, string(p)) { return p, true }
    }
    return PriorityNone, false
}

// TaskRecord is the canonical extraction result. Optional values are absent when zero.
// StartDate and DueDate are canonical YYYY-MM-DD strings.
type TaskRecord struct {
    Summary     string    `json:"summary"`
    Description string    `json:"description"`
    Kind        IssueKind `json:"issuetype"`
    Priority    Priority  `json:"priority,omitempty"`
    StartDate   string    `json:"start_date,omitempty"`
    DueDate     string    `json:"due_date,omitempty"`
    EpicRef     string    `json:"epic_link,omitempty"`
    AssigneeRef string    `json:"assignee,omitempty"`
    MediaURLs   []string  `json:"media_urls,omitempty"`
}

// EnforceEpicInvariant downgrades an Epic that links to another epic. Reports whether it changed.
func (r *TaskRecord) EnforceEpicInvariant() bool {
    if r.EpicRef != "" && r.Kind == KindEpic {
        r.Kind = KindTask
        return true
    }
    return false
}

// Deferred splits off the fields that need tracker-side resolution after creation.
func (r TaskRecord) Deferred() DeferredFields {
    return DeferredFields{
        EpicRef:     r.EpicRef,
        AssigneeRef: r.AssigneeRef,
        StartDate:   r.StartDate,
        DueDate:     r.DueDate,
        MediaURLs:   append([]string(nil), r.MediaURLs...),
    }
}

// IssueDraft is what goes into the synchronous create call.
type IssueDraft struct {
    Summary     string
    Description string
    Kind        IssueKind
    Priority    Priority
    EpicName    string // required by the tracker when Kind is Epic
}

// Minimal keeps only what the tracker always accepts on its create screen.
func (d IssueDraft) Minimal() IssueDraft {
    return IssueDraft{Summary: d.Summary, Kind: d.Kind, EpicName: d.EpicName}
}

type Field string

const (
    FieldDescription Field = "description"
    FieldPriority    Field = "priority"
    FieldEpic        Field = "epic"
    FieldAssignee    Field = "assignee"
    FieldStartDate   Field = "start_date"
    FieldDueDate     Field = "due_date"
    FieldMedia       Field = "media"
)

// DeferredFields are applied one by one after the record exists.
// Description and Priority are only set when the create screen refused them.
type DeferredFields struct {
    Description string
    Priority    Priority
    EpicRef     string
    AssigneeRef string
    StartDate   string
    DueDate     string
    MediaURLs   []string
}

func (d DeferredFields) Empty() bool {
    return d.Description == "" && d.Priority == PriorityNone && d.EpicRef == "" && d.AssigneeRef == "" &&
        d.StartDate == "" && d.DueDate == "" && len(d.MediaURLs) == 0
}

// Fields lists the populated fields in application order.
func (d DeferredFields) Fields() []Field {
    var out []Field
    if d.Description != "" { out = append(out, FieldDescription) }
    if d.Priority != PriorityNone { out = append(out, FieldPriority) }
    if d.EpicRef != "" { out = append(out, FieldEpic) }
    if d.AssigneeRef != "" { out = append(out, FieldAssignee) }
    if d.StartDate != "" { out = append(out, FieldStartDate) }
    if d.DueDate != "" { out = append(out, FieldDueDate) }
    if len(d.MediaURLs) > 0 { out = append(out, FieldMedia) }
    return out
}

type UpdateReport struct {
    Key     string
    Applied []Field
    Failed  map[Field]error
}

func (r *UpdateReport) fail(f Field, err error) {
    if r.Failed == nil { r.Failed = map[Field]error{} }
    r.Failed[f] = err
}

// Record stores the outcome of one field update.
func (r *UpdateReport) Record(f Field, err error) {
    if err != nil { r.fail(f, err); return }
    r.Applied = append(r.Applied, f)
}

func (r UpdateReport) FailedFields() []Field {
    var out []Field
    for _, f := range []Field{FieldDescription, FieldPriority, FieldEpic, FieldAssignee, FieldStartDate, FieldDueDate, FieldMedia} {
        if _, ok := r.Failed[f]; ok { out = append(out, f) }
    }
    return out
}

type CreatedIssue struct {
    ID  string
    Key string
    URL string
}

type IssueRef struct {
    ID      string
    Key     string
    Summary string
    Kind    string
    Status  string
}

type User struct {
    AccountID   string
    Name        string
    Key         string
    DisplayName string
    Email       string
}

type Transition struct {
    ID   string
    Name string
    To   string
}

// GenerateOptions steers a text-generation backend.
type GenerateOptions struct {
    JSON        bool
    Temperature float32
    MaxTokens   int
}
