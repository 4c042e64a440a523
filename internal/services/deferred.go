/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "path"
    "regexp"
    "strings"
    "time"

    "github.com/HamedShams/taskbridge/internal/config"
    "github.com/HamedShams/taskbridge/internal/directive"
    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/HamedShams/taskbridge/internal/lexicon"
    "github.com/rs/zerolog"
)

var (
    epicKeyRe   = regexp.MustCompile(`^[A-Z][A-Z0-9]*-\d+$`)
    jqlReserved = strings.NewReplacer(`"`, " ", `\`, " ", "+", " ", "-", " ", "&", " ", "|", " ", "!", " ", "(", " ", ")", " ",
        "{", " ", "}", " ", "[", " ", "]", " ", "^", " ", "~", " ", "*", " ", "?", " ", ":", " ", "/", " ")
    errTooLarge = errors.New("media exceeds size limit")
)

// Epic link storage differs between Jira setups; these are tried after the catalog id.
var epicLinkFields = []string{"customfield_10014", "customfield_10011", "customfield_10008", "customfield_10016", "customfield_10020"}

var startDateFields = []string{"customfield_10015", "customfield_10016", "startDate"}

// Resolver applies deferred fields to a created issue. Every field is
// attempted regardless of how the others went.
type Resolver struct {
    tracker  Tracker
    lex      lexicon.Source
    http     *http.Client
    maxBytes int64
    attempts int
    delay    time.Duration
    log      zerolog.Logger
}

func NewResolver(cfg config.Config, tracker Tracker, lex lexicon.Source, log zerolog.Logger) *Resolver {
    r := &Resolver{
        tracker:  tracker,
        lex:      lex,
        http:     &http.Client{Timeout: cfg.MediaTimeout},
        maxBytes: cfg.MediaMaxBytes,
        attempts: cfg.EpicLookupAttempts,
        delay:    cfg.EpicLookupDelay,
        log:      log,
    }
    if r.attempts <= 0 { r.attempts = 1 }
    if r.maxBytes <= 0 { r.maxBytes = 10 << 20 }
    return r
}

func (r *Resolver) Apply(ctx context.Context, key string, d domain.DeferredFields) domain.UpdateReport {
    rep := domain.UpdateReport{Key: key}
    for _, f := range d.Fields() {
        err := r.applyField(ctx, key, f, d)
        if err != nil {
            r.log.Warn().Err(err).Str("key", key).Str("field", string(f)).Msg("deferred field failed")
        }
        rep.Record(f, err)
    }
    r.log.Info().Str("key", key).Strs("applied", fieldNames(rep.Applied)).Strs("failed", fieldNames(rep.FailedFields())).Msg("deferred update finished")
    return rep
}

func (r *Resolver) applyField(ctx context.Context, key string, f domain.Field, d domain.DeferredFields) (err error) {
    defer func() {
        if p := recover(); p != nil { err = fmt.Errorf("panic: %v", p) }
    }()
    switch f {
    case domain.FieldDescription:
        return r.tracker.UpdateIssue(ctx, key, map[string]any{"description": d.Description})
    case domain.FieldPriority:
        return r.tracker.UpdateIssue(ctx, key, map[string]any{"priority": map[string]string{"name": string(d.Priority)}})
    case domain.FieldEpic:
        epic, err := r.findEpic(ctx, d.EpicRef)
        if err != nil { return err }
        return r.linkEpic(ctx, key, epic)
    case domain.FieldAssignee:
        u, err := r.findUser(ctx, d.AssigneeRef)
        if err != nil { return err }
        return r.assign(ctx, key, u)
    case domain.FieldStartDate:
        return r.firstAccepted(ctx, key, candidates(r.tracker.FieldID("Start date"), startDateFields), func(string) any { return d.StartDate })
    case domain.FieldDueDate:
        return r.tracker.UpdateIssue(ctx, key, map[string]any{"duedate": d.DueDate})
    case domain.FieldMedia:
        return r.attachMedia(ctx, key, d.MediaURLs)
    }
    return fmt.Errorf("unknown field %q", f)
}

func candidates(first string, rest []string) []string {
    return dedupe(append([]string{first}, rest...))
}

// firstAccepted sets one value under each field id in turn until Jira takes it.
func (r *Resolver) firstAccepted(ctx context.Context, key string, ids []string, value func(id string) any) error {
    var errs []error
    for _, id := range ids {
        err := r.tracker.UpdateIssue(ctx, key, map[string]any{id: value(id)})
        if err == nil {
            r.log.Debug().Str("key", key).Str("field_id", id).Msg("field accepted")
            return nil
        }
        if ctx.Err() != nil { return ctx.Err() }
        errs = append(errs, fmt.Errorf("%s: %w", id, err))
    }
    return errors.Join(errs...)
}

func (r *Resolver) findEpic(ctx context.Context, ref string) (domain.IssueRef, error) {
    ref = strings.TrimSpace(ref)
    if k := strings.ToUpper(ref); epicKeyRe.MatchString(k) {
        // A just-created epic may not be indexed yet.
        for attempt := 0; attempt < r.attempts; attempt++ {
            iss, err := r.tracker.GetIssue(ctx, k)
            if err == nil {
                if strings.EqualFold(iss.Kind, string(domain.KindEpic)) { return iss, nil }
                r.log.Debug().Str("key", k).Str("kind", iss.Kind).Msg("epic reference is not an epic")
                break
            }
            if attempt+1 < r.attempts {
                select {
                case <-ctx.Done():
                    return domain.IssueRef{}, ctx.Err()
                case <-time.After(r.delay):
                }
            }
        }
    }

    want := compact(ref)
    project := strings.ReplaceAll(r.tracker.ProjectKey(), `"`, "")
    queries := dedupe([]string{jqlReserved.Replace(ref), fold(jqlReserved.Replace(ref))})
    for _, q := range queries {
        q = strings.Join(strings.Fields(q), " ")
        if q == "" { continue }
        jql := fmt.Sprintf(`project = "%s" AND issuetype = Epic AND summary ~ "%s" ORDER BY updated DESC`, project, q)
        found, err := r.tracker.SearchIssues(ctx, jql, 10)
        if err != nil {
            r.log.Debug().Err(err).Str("jql", jql).Msg("epic search failed")
            continue
        }
        if len(found) == 0 { continue }
        for _, e := range found {
            if want != "" && (strings.Contains(compact(e.Summary), want) || strings.Contains(compact(e.Key), want)) { return e, nil }
        }
        return found[0], nil
    }
    return domain.IssueRef{}, fmt.Errorf("epic %q: %w", ref, domain.ErrNotFound)
}

func (r *Resolver) linkEpic(ctx context.Context, key string, epic domain.IssueRef) error {
    ids := append(candidates(r.tracker.FieldID("Epic Link"), epicLinkFields), "parent")
    return r.firstAccepted(ctx, key, ids, func(id string) any {
        if id == "parent" { return map[string]string{"key": epic.Key} }
        return epic.Key
    })
}

func (r *Resolver) findUser(ctx context.Context, ref string) (domain.User, error) {
    clean := directive.CleanPersonName(ref)
    parts := strings.Fields(clean)
    queries := []string{clean, strings.TrimSpace(ref)}
    if len(parts) > 1 {
        queries = append(queries, parts[0]+" "+parts[1], parts[len(parts)-1])
    }
    queries = append(queries, fold(clean))
    var users []domain.User
    var lastErr error
    for _, q := range dedupe(queries) {
        us, err := r.tracker.SearchUsers(ctx, q)
        if err != nil { lastErr = err; continue }
        if len(us) > 0 { users = us; break }
    }
    if len(users) == 0 {
        if lastErr != nil { return domain.User{}, fmt.Errorf("user %q: %w", ref, lastErr) }
        return domain.User{}, fmt.Errorf("user %q: %w", ref, domain.ErrNotFound)
    }
    return pickUser(users, clean), nil
}

// pickUser prefers an exact display-name match, then an accent-insensitive
// one, then substring, then all-tokens-present, else the first result.
func pickUser(users []domain.User, name string) domain.User {
    lower := strings.ToLower(name)
    folded := fold(name)
    display := func(u domain.User) string { return directive.CleanPersonName(u.DisplayName) }
    tiers := []func(u domain.User) bool{
        func(u domain.User) bool { return strings.ToLower(display(u)) == lower || strings.EqualFold(u.Email, name) },
        func(u domain.User) bool { return fold(display(u)) == folded },
        func(u domain.User) bool { return folded != "" && strings.Contains(fold(display(u)), folded) },
        func(u domain.User) bool { return tokenSubset(strings.Fields(folded), strings.Fields(fold(display(u)))) },
    }
    for _, match := range tiers {
        for _, u := range users {
            if match(u) { return u }
        }
    }
    return users[0]
}

func tokenSubset(want, have []string) bool {
    if len(want) == 0 { return false }
    set := map[string]bool{}
    for _, h := range have { set[h] = true }
    for _, w := range want {
        if !set[w] { return false }
    }
    return true
}

// assign tries Cloud (accountId) and then Server (name) identities.
func (r *Resolver) assign(ctx context.Context, key string, u domain.User) error {
    var formats []map[string]string
    if u.AccountID != "" { formats = append(formats, map[string]string{"accountId": u.AccountID}) }
    if u.Name != "" { formats = append(formats, map[string]string{"name": u.Name}) }
    if len(formats) == 0 { return fmt.Errorf("user %q has no usable identifier", u.DisplayName) }
    var errs []error
    for _, f := range formats {
        err := r.tracker.UpdateIssue(ctx, key, map[string]any{"assignee": f})
        if err == nil { return nil }
        errs = append(errs, err)
    }
    return errors.Join(errs...)
}

func (r *Resolver) attachMedia(ctx context.Context, key string, urls []string) error {
    lex := r.lex.Current()
    status := make([]string, len(urls))
    var errs []error
    for i, u := range urls {
        kind := directive.Classify(lex, u)
        if kind != directive.Image && kind != directive.Video {
            status[i] = "link"
            continue
        }
        data, name, err := r.download(ctx, u, i)
        if err == nil { err = r.tracker.AddAttachment(ctx, key, name, data) }
        if err != nil {
            status[i] = "not attached"
            errs = append(errs, fmt.Errorf("%s: %w", u, err))
            continue
        }
        status[i] = "attached"
    }
    var b strings.Builder
    b.WriteString("Media links:\n")
    for i, u := range urls { fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, u, status[i]) }
    if err := r.tracker.AddComment(ctx, key, strings.TrimSpace(b.String())); err != nil {
        errs = append(errs, fmt.Errorf("media comment: %w", err))
    }
    return errors.Join(errs...)
}

func (r *Resolver) download(ctx context.Context, raw string, idx int) ([]byte, string, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
    if err != nil { return nil, "", err }
    resp, err := r.http.Do(req)
    if err != nil { return nil, "", err }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK { return nil, "", fmt.Errorf("download status=%d", resp.StatusCode) }
    if resp.ContentLength > r.maxBytes { return nil, "", errTooLarge }
    data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
    if err != nil { return nil, "", err }
    if int64(len(data)) > r.maxBytes { return nil, "", errTooLarge }
    return data, mediaFilename(raw, idx), nil
}

func mediaFilename(raw string, idx int) string {
    u, err := url.Parse(raw)
    ext := ""
    if err == nil {
        base := path.Base(u.Path)
        ext = path.Ext(base)
        if base != "." && base != "/" && ext != "" && len(base) <= 100 { return base }
    }
    if ext == "" { ext = ".jpg" }
    return fmt.Sprintf("media_%d%s", idx+1, ext)
}
