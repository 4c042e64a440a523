/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"

    "github.com/HamedShams/taskbridge/internal/domain"
)

// Tracker is the issue-tracker surface the bridge consumes. The Jira
// adapter implements it; tests use in-memory fakes.
type Tracker interface {
    CreateIssue(ctx context.Context, d domain.IssueDraft) (domain.CreatedIssue, error)
    UpdateIssue(ctx context.Context, key string, fields map[string]any) error
    GetIssue(ctx context.Context, key string) (domain.IssueRef, error)
    SearchIssues(ctx context.Context, jql string, max int) ([]domain.IssueRef, error)
    SearchUsers(ctx context.Context, query string) ([]domain.User, error)
    Transitions(ctx context.Context, key string) ([]domain.Transition, error)
    DoTransition(ctx context.Context, key, id string) error
    AddComment(ctx context.Context, key, body string) error
    AddAttachment(ctx context.Context, key, filename string, data []byte) error
    FieldID(name string) string
    ProjectKey() string
}
