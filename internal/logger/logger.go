/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package logger

import (
    "io"
    "os"
    "time"

    "github.com/HamedShams/taskbridge/internal/config"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
)

func New(cfg config.Config) zerolog.Logger {
    return newWithWriter(cfg, os.Stdout)
}

// NewTo logs to w instead of stdout; CLI commands that print results use stderr.
func NewTo(cfg config.Config, w io.Writer) zerolog.Logger {
    return newWithWriter(cfg, w)
}

func newWithWriter(cfg config.Config, w io.Writer) zerolog.Logger {
    lvl, err := zerolog.ParseLevel(cfg.LogLevel)
    if err != nil || cfg.LogLevel == "" { lvl = zerolog.InfoLevel }
    zerolog.TimeFieldFormat = time.RFC3339
    var logger zerolog.Logger
    if cfg.AppEnv == "dev" {
        output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
        logger = zerolog.New(output).Level(lvl).With().Timestamp().Logger()
    } else {
        logger = zerolog.New(w).Level(lvl).With().Timestamp().Str("svc", "taskbridge").Logger()
    }
    log.Logger = logger
    return logger
}
