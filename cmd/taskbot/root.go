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
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianTasks/pkg/logging"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator"
	"github.com/spf13/cobra"
)

// cli holds state shared by every subcommand.
type cli struct {
	configPath string
	logDir     string
	logFormat  string
	inMemory   bool

	config orchestrator.Config
	logger *logging.Logger

	// serviceOpts are passed to orchestrator.New. Tests inject a mock
	// model client here.
	serviceOpts []orchestrator.Option
}

// newRootCmd builds the command tree.
func newRootCmd(opts ...orchestrator.Option) *cobra.Command {
	c := &cli{serviceOpts: opts}

	root := &cobra.Command{
		Use:          "taskbot",
		Short:        "A conversational task assistant",
		Long:         "taskbot stores tasks and lets a language model read and change them through tool calls.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.logger != nil {
				return c.logger.Close()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "YAML config file")
	flags.StringVar(&c.logDir, "log-dir", "", "also write JSON logs to this directory")
	flags.StringVar(&c.logFormat, "log-format", "", "console log format: text or json (default: text on a terminal)")
	flags.BoolVar(&c.inMemory, "in-memory", false, "keep tasks in memory only")

	root.AddCommand(newServeCmd(c), newChatCmd(c), newVersionCmd())
	return root
}

// setup loads configuration and installs the process logger.
func (c *cli) setup() error {
	cfg, err := orchestrator.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	if c.inMemory {
		cfg.InMemoryStore = true
	}
	c.config = cfg

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %w", orchestrator.ErrInvalidConfig, err)
	}
	format := logging.Format(c.logFormat)
	if format != logging.FormatAuto && format != logging.FormatText && format != logging.FormatJSON {
		return fmt.Errorf("unknown log format %q", c.logFormat)
	}

	logger, err := logging.New(logging.Config{
		Level:   level,
		Service: cfg.ServiceName,
		Format:  format,
		LogDir:  c.logDir,
	})
	c.logger = logger
	logger.Install()
	if err != nil {
		slog.Warn("File logging disabled", "error", err)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the taskbot version",
		Args:  cobra.NoArgs,
		// Skip config loading.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "taskbot", version)
		},
	}
}
