/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "sync"

    "github.com/HamedShams/taskbridge/internal/domain"
)

type update struct {
    Key    string
    Fields map[string]any
}

// fakeTracker records calls. Hooks override the default behaviour.
type fakeTracker struct {
    mu          sync.Mutex
    next        int
    creates     []domain.IssueDraft
    updates     []update
    comments    map[string][]string
    attachments map[string][]string
    transitions []string
    searches    []string
    userQueries []string

    createFn   func(d domain.IssueDraft) (domain.CreatedIssue, error)
    updateFn   func(key string, fields map[string]any) error
    issues     map[string]domain.IssueRef
    epics      []domain.IssueRef
    users      map[string][]domain.User
    available  []domain.Transition
    fieldIDs   map[string]string
    commentErr error
}

func newFakeTracker() *fakeTracker {
    return &fakeTracker{comments: map[string][]string{}, attachments: map[string][]string{}, issues: map[string]domain.IssueRef{}, users: map[string][]domain.User{}, fieldIDs: map[string]string{}}
}

func (f *fakeTracker) CreateIssue(ctx context.Context, d domain.IssueDraft) (domain.CreatedIssue, error) {
    f.mu.Lock()
    f.creates = append(f.creates, d)
    fn := f.createFn
    f.next++
    n := f.next
    f.mu.Unlock()
    if fn != nil { return fn(d) }
    key := fmt.Sprintf("DX-%d", n)
    return domain.CreatedIssue{ID: fmt.Sprint(n), Key: key, URL: "https://jira.example/browse/" + key}, nil
}

func (f *fakeTracker) UpdateIssue(ctx context.Context, key string, fields map[string]any) error {
    f.mu.Lock()
    f.updates = append(f.updates, update{Key: key, Fields: fields})
    fn := f.updateFn
    f.mu.Unlock()
    if fn != nil { return fn(key, fields) }
    return nil
}

func (f *fakeTracker) GetIssue(ctx context.Context, key string) (domain.IssueRef, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if iss, ok := f.issues[key]; ok { return iss, nil }
    return domain.IssueRef{}, domain.ErrNotFound
}

func (f *fakeTracker) SearchIssues(ctx context.Context, jql string, max int) ([]domain.IssueRef, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.searches = append(f.searches, jql)
    return f.epics, nil
}

func (f *fakeTracker) SearchUsers(ctx context.Context, q string) ([]domain.User, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.userQueries = append(f.userQueries, q)
    return f.users[q], nil
}

func (f *fakeTracker) Transitions(ctx context.Context, key string) ([]domain.Transition, error) {
    return f.available, nil
}

func (f *fakeTracker) DoTransition(ctx context.Context, key, id string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.transitions = append(f.transitions, key+"->"+id)
    return nil
}

func (f *fakeTracker) AddComment(ctx context.Context, key, body string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.commentErr != nil { return f.commentErr }
    f.comments[key] = append(f.comments[key], body)
    return nil
}

func (f *fakeTracker) AddAttachment(ctx context.Context, key, filename string, data []byte) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.attachments[key] = append(f.attachments[key], filename)
    return nil
}

func (f *fakeTracker) FieldID(name string) string { return f.fieldIDs[name] }

func (f *fakeTracker) ProjectKey() string { return "DX" }

func (f *fakeTracker) updatesFor(field string) []any {
    f.mu.Lock()
    defer f.mu.Unlock()
    var out []any
    for _, u := range f.updates {
        if v, ok := u.Fields[field]; ok { out = append(out, v) }
    }
    return out
}
