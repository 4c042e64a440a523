/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package lexicon

import (
    "context"
    "fmt"
    "path/filepath"
    "sync/atomic"

    "github.com/fsnotify/fsnotify"
    "github.com/rs/zerolog"
)

// Store serves the current lexicon and swaps it when the override file changes.
type Store struct {
    path string
    log  zerolog.Logger
    cur  atomic.Pointer[Lexicon]
}

func NewStore(path string, log zerolog.Logger) (*Store, error) {
    s := &Store{path: path, log: log}
    if err := s.Reload(); err != nil { return nil, err }
    return s, nil
}

func (s *Store) Current() *Lexicon { return s.cur.Load() }

// Reload recompiles from disk. On error the previous lexicon stays in effect.
func (s *Store) Reload() error {
    l, err := Load(s.path)
    if err != nil { return err }
    s.cur.Store(l)
    return nil
}

// Watch reloads on changes to the override file until ctx is done. The
// directory is watched so editors that replace the file by rename still count.
func (s *Store) Watch(ctx context.Context) error {
    if s.path == "" { return nil }
    w, err := fsnotify.NewWatcher()
    if err != nil { return fmt.Errorf("lexicon: watcher: %w", err) }
    defer w.Close()
    if err := w.Add(filepath.Dir(s.path)); err != nil { return fmt.Errorf("lexicon: watch %s: %w", s.path, err) }
    target := filepath.Clean(s.path)
    for {
        select {
        case <-ctx.Done():
            return nil
        case ev, ok := <-w.Events:
            if !ok { return nil }
            if filepath.Clean(ev.Name) != target { continue }
            if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) { continue }
            if err := s.Reload(); err != nil {
                s.log.Warn().Err(err).Str("path", s.path).Msg("lexicon reload failed; keeping previous")
                continue
            }
            s.log.Info().Str("path", s.path).Msg("lexicon reloaded")
        case err, ok := <-w.Errors:
            if !ok { return nil }
            s.log.Warn().Err(err).Msg("lexicon watcher error")
        }
    }
}
