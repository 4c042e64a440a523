/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "os"

    "github.com/spf13/cobra"
)

func main() {
    if err := newRootCmd().Execute(); err != nil { os.Exit(1) }
}

func newRootCmd() *cobra.Command {
    var lexiconFile string
    root := &cobra.Command{
        Use:          "taskbridge",
        Short:        "Turn chat messages and Bitbucket events into Jira issue updates",
        SilenceUsage: true,
        RunE: func(cmd *cobra.Command, args []string) error {
            return runServe(cmd.Context(), lexiconFile)
        },
    }
    root.PersistentFlags().StringVar(&lexiconFile, "lexicon", "", "lexicon override file (overrides LEXICON_FILE)")
    root.AddCommand(newServeCmd(&lexiconFile), newParseCmd(&lexiconFile))
    return root
}
