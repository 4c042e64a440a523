/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/HamedShams/taskbridge/internal/config"
    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/HamedShams/taskbridge/internal/lexicon"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func testResolver(tr *fakeTracker) *Resolver {
    cfg := config.Config{MediaTimeout: time.Second, MediaMaxBytes: 16, EpicLookupAttempts: 2, EpicLookupDelay: time.Millisecond}
    return NewResolver(cfg, tr, lexicon.Default(), zerolog.Nop())
}

func TestApplyPartialFailureKeepsGoing(t *testing.T) {
    tr := newFakeTracker()
    tr.issues["DX-100"] = domain.IssueRef{Key: "DX-100", Kind: "Epic", Summary: "Payments"}

    rep := testResolver(tr).Apply(context.Background(), "DX-7", domain.DeferredFields{
        EpicRef:     "DX-100",
        AssigneeRef: "Nobody Known",
        DueDate:     "2024-01-16",
    })

    assert.Equal(t, []domain.Field{domain.FieldAssignee}, rep.FailedFields())
    assert.ErrorIs(t, rep.Failed[domain.FieldAssignee], domain.ErrNotFound)
    assert.Equal(t, []domain.Field{domain.FieldEpic, domain.FieldDueDate}, rep.Applied)
    assert.Equal(t, []any{"DX-100"}, tr.updatesFor("customfield_10014"))
    assert.Equal(t, []any{"2024-01-16"}, tr.updatesFor("duedate"))
    assert.Empty(t, tr.updatesFor("assignee"))
}

func TestEpicFieldCascadeEndsWithParent(t *testing.T) {
    tr := newFakeTracker()
    tr.issues["DX-100"] = domain.IssueRef{Key: "DX-100", Kind: "Epic"}
    tr.fieldIDs["Epic Link"] = "customfield_30000"
    tr.updateFn = func(key string, fields map[string]any) error {
        if _, ok := fields["parent"]; ok { return nil }
        return domain.ErrFieldRejected
    }
    rep := testResolver(tr).Apply(context.Background(), "DX-7", domain.DeferredFields{EpicRef: "dx-100"})
    require.Empty(t, rep.Failed)

    var tried []string
    for _, u := range tr.updates {
        for k := range u.Fields { tried = append(tried, k) }
    }
    assert.Equal(t, "customfield_30000", tried[0])
    assert.Equal(t, "parent", tried[len(tried)-1])
    assert.Equal(t, []any{map[string]string{"key": "DX-100"}}, tr.updatesFor("parent"))
}

func TestEpicFuzzySearchPrefersNormalizedMatch(t *testing.T) {
    tr := newFakeTracker()
    tr.epics = []domain.IssueRef{{Key: "DX-1", Summary: "Other work"}, {Key: "DX-2", Summary: "Payments-V2 rollout"}}
    rep := testResolver(tr).Apply(context.Background(), "DX-7", domain.DeferredFields{EpicRef: "payments v2"})
    require.Empty(t, rep.Failed)
    assert.Equal(t, []any{"DX-2"}, tr.updatesFor("customfield_10014"))
    require.NotEmpty(t, tr.searches)
    assert.Contains(t, tr.searches[0], `project = "DX" AND issuetype = Epic`)
    assert.Contains(t, tr.searches[0], `summary ~ "payments v2"`)
}

func TestEpicFuzzySearchFallsBackToFirst(t *testing.T) {
    tr := newFakeTracker()
    tr.epics = []domain.IssueRef{{Key: "DX-1", Summary: "Platform"}, {Key: "DX-2", Summary: "Billing"}}
    rep := testResolver(tr).Apply(context.Background(), "DX-7", domain.DeferredFields{EpicRef: "Q1 upgrade"})
    require.Empty(t, rep.Failed)
    assert.Equal(t, []any{"DX-1"}, tr.updatesFor("customfield_10014"))
}

func TestEpicKeyThatIsNotAnEpicFallsThroughToSearch(t *testing.T) {
    tr := newFakeTracker()
    tr.issues["DX-5"] = domain.IssueRef{Key: "DX-5", Kind: "Task"}
    rep := testResolver(tr).Apply(context.Background(), "DX-7", domain.DeferredFields{EpicRef: "DX-5"})
    assert.ErrorIs(t, rep.Failed[domain.FieldEpic], domain.ErrNotFound)
    assert.NotEmpty(t, tr.searches)
}

func TestAssigneeQueryCascadeAndMatchPreference(t *testing.T) {
    tr := newFakeTracker()
    tr.users["nguyen van an"] = []domain.User{
        {Name: "annv", DisplayName: "Nguyen Van Anh"},
        {Name: "an", DisplayName: "Nguyễn Văn An"},
    }
    rep := testResolver(tr).Apply(context.Background(), "DX-7", domain.DeferredFields{AssigneeRef: "Nguyễn Văn An (DXAI)"})
    require.Empty(t, rep.Failed)
    assert.Equal(t, []string{"Nguyễn Văn An", "Nguyễn Văn An (DXAI)", "Nguyễn Văn", "An", "nguyen van an"}, tr.userQueries)
    assert.Equal(t, []any{map[string]string{"name": "an"}}, tr.updatesFor("assignee"))
}

func TestAssigneeFallsBackToNameFormat(t *testing.T) {
    tr := newFakeTracker()
    tr.users["bob"] = []domain.User{{AccountID: "acc-1", Name: "bob", DisplayName: "Bob"}}
    tr.updateFn = func(key string, fields map[string]any) error {
        if a, ok := fields["assignee"].(map[string]string); ok && a["accountId"] != "" { return domain.ErrFieldRejected }
        return nil
    }
    rep := testResolver(tr).Apply(context.Background(), "DX-7", domain.DeferredFields{AssigneeRef: "bob"})
    require.Empty(t, rep.Failed)
    assert.Equal(t, []any{map[string]string{"accountId": "acc-1"}, map[string]string{"name": "bob"}}, tr.updatesFor("assignee"))
}

func TestPickUserTiers(t *testing.T) {
    users := []domain.User{
        {Name: "first", DisplayName: "Someone Else"},
        {Name: "sub", DisplayName: "Thi Mai Anh"},
        {Name: "tokens", DisplayName: "Mai Tran"},
    }
    assert.Equal(t, "sub", pickUser(users, "Thi Mai").Name)
    assert.Equal(t, "tokens", pickUser(users, "Trần Mai").Name)
    assert.Equal(t, "first", pickUser(users, "Unrelated").Name)
}

func TestStartDateUsesCatalogFieldFirst(t *testing.T) {
    tr := newFakeTracker()
    tr.fieldIDs["Start date"] = "customfield_20000"
    rep := testResolver(tr).Apply(context.Background(), "DX-7", domain.DeferredFields{StartDate: "2024-01-15"})
    require.Empty(t, rep.Failed)
    assert.Equal(t, []any{"2024-01-15"}, tr.updatesFor("customfield_20000"))
    assert.Empty(t, tr.updatesFor("customfield_10015"))
}

func TestRejectedCreateFieldsAreReapplied(t *testing.T) {
    tr := newFakeTracker()
    rep := testResolver(tr).Apply(context.Background(), "DX-7", domain.DeferredFields{Description: "body", Priority: domain.PriorityHigh})
    assert.Equal(t, []domain.Field{domain.FieldDescription, domain.FieldPriority}, rep.Applied)
    assert.Equal(t, []any{"body"}, tr.updatesFor("description"))
    assert.Equal(t, []any{map[string]string{"name": "High"}}, tr.updatesFor("priority"))
}

func TestMediaAttachAndSummaryComment(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        switch r.URL.Path {
        case "/shot.png":
            _, _ = w.Write([]byte("PNG"))
        case "/big.jpg":
            _, _ = w.Write([]byte(strings.Repeat("x", 64)))
        default:
            http.NotFound(w, r)
        }
    }))
    defer srv.Close()

    tr := newFakeTracker()
    urls := []string{srv.URL + "/shot.png", srv.URL + "/big.jpg", "https://youtu.be/abc"}
    rep := testResolver(tr).Apply(context.Background(), "DX-7", domain.DeferredFields{MediaURLs: urls})

    assert.Equal(t, []domain.Field{domain.FieldMedia}, rep.FailedFields())
    assert.ErrorIs(t, rep.Failed[domain.FieldMedia], errTooLarge)
    assert.Equal(t, []string{"shot.png"}, tr.attachments["DX-7"])
    require.Len(t, tr.comments["DX-7"], 1)
    c := tr.comments["DX-7"][0]
    assert.Contains(t, c, "1. "+urls[0]+" (attached)")
    assert.Contains(t, c, "2. "+urls[1]+" (not attached)")
    assert.Contains(t, c, "3. https://youtu.be/abc (link)")
}

func TestMediaFilename(t *testing.T) {
    assert.Equal(t, "a.png", mediaFilename("https://x.example/img/a.png?w=1", 0))
    assert.Equal(t, "media_3.jpg", mediaFilename("https://x.example/", 2))
}
