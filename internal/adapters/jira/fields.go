/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
    "context"
    "strings"
    "sync"

    "github.com/rs/zerolog"
    "golang.org/x/sync/singleflight"
)

// Names of the custom fields the bridge looks up by display name.
var wantedFields = []string{"Epic Link", "Epic Name", "Start date", "Start Date"}

type fieldLister interface {
    Fields(ctx context.Context) ([]FieldInfo, error)
}

// FieldCatalog maps field display names to ids. Entries from the static map
// (JIRA_FIELDS_FILE) win over discovered ones.
type FieldCatalog struct {
    src    fieldLister
    static map[string]string
    log    zerolog.Logger

    mu  sync.RWMutex
    ids map[string]string
    sf  singleflight.Group
}

func NewFieldCatalog(src fieldLister, static map[string]string, log zerolog.Logger) *FieldCatalog {
    f := &FieldCatalog{src: src, static: map[string]string{}, ids: map[string]string{}, log: log}
    for k, v := range static { f.static[strings.ToLower(strings.TrimSpace(k))] = v }
    return f
}

func (f *FieldCatalog) ID(name string) string {
    k := strings.ToLower(strings.TrimSpace(name))
    if id := f.static[k]; id != "" { return id }
    f.mu.RLock()
    defer f.mu.RUnlock()
    return f.ids[k]
}

// Refresh reloads the discovered ids. Concurrent callers share one request.
func (f *FieldCatalog) Refresh(ctx context.Context) error {
    _, err, _ := f.sf.Do("fields", func() (any, error) {
        list, err := f.src.Fields(ctx)
        if err != nil { return nil, err }
        ids := map[string]string{}
        for _, fi := range list {
            k := strings.ToLower(strings.TrimSpace(fi.Name))
            if k == "" || fi.ID == "" { continue }
            if _, dup := ids[k]; !dup { ids[k] = fi.ID }
        }
        f.mu.Lock()
        f.ids = ids
        f.mu.Unlock()
        ev := f.log.Info().Int("fields", len(ids))
        for _, n := range wantedFields {
            if id := ids[strings.ToLower(n)]; id != "" { ev = ev.Str(n, id) }
        }
        ev.Msg("jira field catalog refreshed")
        return nil, nil
    })
    return err
}
