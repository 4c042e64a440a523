/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "sync/atomic"
    "testing"
    "time"

    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "go.uber.org/goleak"
)

func TestDispatcherRunsRecoversAndDrains(t *testing.T) {
    defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
    d := NewDispatcher(2, time.Second, zerolog.Nop())
    var n atomic.Int32
    for i := 0; i < 5; i++ {
        d.Go("count", func(ctx context.Context) { n.Add(1) })
    }
    d.Go("boom", func(ctx context.Context) { panic("boom") })
    d.Wait()
    assert.EqualValues(t, 5, n.Load())
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
    defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
    d := NewDispatcher(2, time.Second, zerolog.Nop())
    var cur, peak atomic.Int32
    for i := 0; i < 6; i++ {
        d.Go("slow", func(ctx context.Context) {
            c := cur.Add(1)
            for {
                p := peak.Load()
                if c <= p || peak.CompareAndSwap(p, c) { break }
            }
            time.Sleep(20 * time.Millisecond)
            cur.Add(-1)
        })
    }
    d.Wait()
    assert.LessOrEqual(t, peak.Load(), int32(2))
    assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestDispatcherTaskIDsAreUnique(t *testing.T) {
    d := NewDispatcher(1, time.Second, zerolog.Nop())
    a := d.Go("a", func(context.Context) {})
    b := d.Go("b", func(context.Context) {})
    d.Wait()
    assert.NotEqual(t, a, b)
    assert.Len(t, a, 36)
}
