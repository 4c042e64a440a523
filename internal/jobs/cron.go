/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jobs

import (
    "context"
    "fmt"
    "sync/atomic"
    "time"

    "github.com/HamedShams/taskbridge/internal/config"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

type refresher interface { Refresh(ctx context.Context) error }

// Cron keeps the Jira field catalog fresh.
type Cron struct {
    log     zerolog.Logger
    fields  refresher
    c       *cron.Cron
    running atomic.Bool
}

func NewCron(cfg config.Config, log zerolog.Logger, fields refresher) (*Cron, error) {
    loc, err := time.LoadLocation(cfg.TZ)
    if err != nil { loc = time.Local }
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)))
    cr := &Cron{log: log, fields: fields, c: c}
    if _, err := c.AddFunc(cfg.FieldRefreshCron, cr.refresh); err != nil {
        return nil, fmt.Errorf("cron: FIELD_REFRESH_CRON %q: %w", cfg.FieldRefreshCron, err)
    }
    return cr, nil
}

// Start runs one refresh right away, then follows the schedule.
func (cr *Cron) Start(){
    go cr.refresh()
    cr.c.Start()
}

func (cr *Cron) Stop(){ <-cr.c.Stop().Done() }

func (cr *Cron) refresh(){
    if !cr.running.CompareAndSwap(false, true) { cr.log.Info().Msg("cron: field refresh already running"); return }
    defer cr.running.Store(false)
    ctx, cancel := context.WithTimeout(context.Background(), time.Minute); defer cancel()
    if err := cr.fields.Refresh(ctx); err != nil { cr.log.Error().Err(err).Msg("cron: field refresh failed"); return }
    cr.log.Info().Msg("cron: field catalog refreshed")
}
