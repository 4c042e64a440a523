/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "bytes"
    "encoding/json"
    "io"
    "strings"
    "testing"

    "github.com/HamedShams/taskbridge/internal/domain"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
    t.Helper()
    t.Setenv("LEXICON_FILE", "")
    t.Setenv("APP_ENV", "prod")
    cmd := newRootCmd()
    var out bytes.Buffer
    cmd.SetOut(&out)
    cmd.SetErr(io.Discard)
    cmd.SetIn(strings.NewReader(stdin))
    cmd.SetArgs(args)
    err := cmd.Execute()
    return out.String(), err
}

func TestParseCommandPrintsRecord(t *testing.T) {
    raw, err := runCLI(t, "", "parse", "Bug: Login fails, assign to Minh")
    require.NoError(t, err)
    var got parseOutput
    require.NoError(t, json.Unmarshal([]byte(raw), &got))
    assert.Equal(t, domain.KindBug, got.Record.Kind)
    assert.Equal(t, "Minh", got.Record.AssigneeRef)
    assert.Equal(t, "fallback", got.Source)
    assert.Equal(t, []domain.Field{domain.FieldAssignee}, got.Deferred)
}

func TestParseCommandReadsStdin(t *testing.T) {
    raw, err := runCLI(t, "tạo Epic: Q1 upgrade\n", "parse")
    require.NoError(t, err)
    var got parseOutput
    require.NoError(t, json.Unmarshal([]byte(raw), &got))
    assert.Equal(t, domain.KindEpic, got.Record.Kind)
    assert.Empty(t, got.Deferred)
}

func TestParseCommandNeedsText(t *testing.T) {
    _, err := runCLI(t, "  ", "parse")
    assert.EqualError(t, err, "no message given")
}
