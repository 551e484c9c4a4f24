// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianTasks/services/orchestrator"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/datatypes"
	"github.com/spf13/cobra"
)

func newChatCmd(c *cli) *cobra.Command {
	var contextJSON string
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Run one chat turn and print the response as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &datatypes.ChatToolRequest{Prompt: strings.Join(args, " ")}
			if contextJSON != "" {
				if !json.Valid([]byte(contextJSON)) {
					return fmt.Errorf("--context is not valid JSON")
				}
				req.Context = json.RawMessage(contextJSON)
			}

			cfg := c.config
			cfg.PlannerEnabled = false
			if cfg.GinMode == "" {
				// Debug mode prints route tables to stdout.
				cfg.GinMode = "release"
			}

			svc, err := orchestrator.New(cfg, c.serviceOpts...)
			if err != nil {
				return err
			}
			defer svc.Close()

			resp, err := svc.Chat(runContext(cmd), req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVar(&contextJSON, "context", "", "JSON array of tasks to ground the reply on")
	return cmd
}
