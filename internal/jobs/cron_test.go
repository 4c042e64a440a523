/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jobs

import (
    "context"
    "errors"
    "sync/atomic"
    "testing"
    "time"

    "github.com/HamedShams/taskbridge/internal/config"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type countingRefresher struct {
    n   atomic.Int32
    err error
}

func (r *countingRefresher) Refresh(ctx context.Context) error { r.n.Add(1); return r.err }

func TestStartRefreshesImmediately(t *testing.T) {
    r := &countingRefresher{}
    cr, err := NewCron(config.Config{TZ: "UTC", FieldRefreshCron: "@every 1h"}, zerolog.Nop(), r)
    require.NoError(t, err)
    cr.Start()
    defer cr.Stop()
    assert.Eventually(t, func() bool { return r.n.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRefreshErrorIsLogged(t *testing.T) {
    r := &countingRefresher{err: errors.New("jira down")}
    cr, err := NewCron(config.Config{TZ: "UTC", FieldRefreshCron: "0 */6 * * *"}, zerolog.Nop(), r)
    require.NoError(t, err)
    cr.refresh()
    cr.refresh()
    assert.EqualValues(t, 2, r.n.Load())
}

func TestBadScheduleIsRejected(t *testing.T) {
    _, err := NewCron(config.Config{TZ: "UTC", FieldRefreshCron: "every tuesday"}, zerolog.Nop(), &countingRefresher{})
    assert.Error(t, err)
}
