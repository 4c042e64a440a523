/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "runtime/debug"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog"
    "golang.org/x/sync/semaphore"
)

// Dispatcher runs background work nobody waits for. Tasks still running
// when the process exits are lost; nothing is persisted or retried.
type Dispatcher struct {
    sem     *semaphore.Weighted
    timeout time.Duration
    wg      sync.WaitGroup
    log     zerolog.Logger
}

func NewDispatcher(max int, timeout time.Duration, log zerolog.Logger) *Dispatcher {
    if max <= 0 { max = 1 }
    if timeout <= 0 { timeout = 2 * time.Minute }
    return &Dispatcher{sem: semaphore.NewWeighted(int64(max)), timeout: timeout, log: log}
}

// Go schedules fn and returns the task id used in its log lines.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context)) string {
    id := uuid.NewString()
    d.wg.Add(1)
    go func() {
        defer d.wg.Done()
        ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
        defer cancel()
        if err := d.sem.Acquire(ctx, 1); err != nil {
            d.log.Warn().Err(err).Str("task", id).Str("name", name).Msg("background task dropped")
            return
        }
        defer d.sem.Release(1)
        defer func() {
            if r := recover(); r != nil {
                d.log.Error().Str("task", id).Str("name", name).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("background task panicked")
            }
        }()
        start := time.Now()
        fn(ctx)
        d.log.Debug().Str("task", id).Str("name", name).Dur("took", time.Since(start)).Msg("background task done")
    }()
    return id
}

// Wait blocks until every scheduled task has returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }
