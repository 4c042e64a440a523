/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

// SCMEvent holds the facts the bridge needs from a repository webhook.
type SCMEvent struct {
    Kind          string
    Repository    string
    Actor         string
    IssueKeys     []string
    Commits       []Commit
    Branches      []string
    PRTitle       string
    Merged        bool
    IsPush        bool
    IsPullRequest bool
}

type Commit struct {
    Hash       string
    Message    string
    LinesAdded *int
}
