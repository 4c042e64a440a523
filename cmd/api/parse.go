/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "encoding/json"
    "errors"
    "io"
    "strings"
    "time"

    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/HamedShams/taskbridge/internal/logger"
    "github.com/spf13/cobra"
)

type parseOutput struct {
    Record     domain.TaskRecord `json:"record"`
    Source     string            `json:"source"`
    Deferred   []domain.Field    `json:"deferred"`
    Normalized string            `json:"normalized"`
    Fallback   string            `json:"fallback_reason,omitempty"`
}

func newParseCmd(lexiconFile *string) *cobra.Command {
    var useAI bool
    cmd := &cobra.Command{
        Use:   "parse [message]",
        Short: "Print the task record a message would produce, without touching Jira",
        Long: `Reads the message from the arguments, or from stdin when none are given,
and prints the reconciled record as JSON. Only the directive rules run unless --ai is set.`,
        RunE: func(cmd *cobra.Command, args []string) error {
            text := strings.Join(args, " ")
            if text == "" {
                b, err := io.ReadAll(cmd.InOrStdin())
                if err != nil { return err }
                text = string(b)
            }
            if strings.TrimSpace(text) == "" { return errors.New("no message given") }
            ctx := cmd.Context()
            if ctx == nil { ctx = context.Background() }

            cfg := loadConfig(*lexiconFile)
            log := logger.NewTo(cfg, cmd.ErrOrStderr())
            p, err := newPipeline(ctx, cfg, log, useAI)
            if err != nil { return err }

            nr := p.norm.Normalize(text)
            now := time.Now()
            res := p.ai.Extract(ctx, nr.Text, now)
            plan := p.recon.Reconcile(res, nr, now)
            out := parseOutput{Record: plan.Record, Source: string(plan.Source), Deferred: plan.Deferred.Fields(), Normalized: nr.Text}
            if out.Deferred == nil { out.Deferred = []domain.Field{} }
            if useAI && res.Err != nil { out.Fallback = res.Err.Error() }

            enc := json.NewEncoder(cmd.OutOrStdout())
            enc.SetIndent("", "  ")
            enc.SetEscapeHTML(false)
            return enc.Encode(out)
        },
    }
    cmd.Flags().BoolVar(&useAI, "ai", false, "ask the configured model first")
    return cmd
}
