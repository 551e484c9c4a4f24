// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.String())
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, LevelInfo.toSlogLevel())
	assert.Equal(t, slog.LevelWarn, LevelWarn.toSlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, Level(99).toSlogLevel(), "unknown defaults to Info")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"", LevelInfo},
		{" warn ", LevelWarn},
		{"warning", LevelWarn},
		{"Error", LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := ParseLevel("verbose")
	assert.ErrorIs(t, err, ErrUnknownLevel)
	assert.Equal(t, LevelInfo, got)
}

// =============================================================================
// Logger Tests
// =============================================================================

// TestNew_JSONConsole verifies records carry the service attribute.
func TestNew_JSONConsole(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelInfo, Service: "taskbot", Format: FormatJSON, Output: &buf})
	require.NoError(t, err)
	defer logger.Close()

	// Act
	logger.Slog().Debug("hidden")
	logger.Slog().Info("task_created", "task_id", "T1")

	// Assert
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "task_created", rec["msg"])
	assert.Equal(t, "T1", rec["task_id"])
	assert.Equal(t, "taskbot", rec["service"])
}

// TestNew_TextConsole verifies the text encoding.
func TestNew_TextConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelDebug, Format: FormatText, Output: &buf})
	require.NoError(t, err)

	logger.Slog().Debug("planning", "step", 2)

	assert.Contains(t, buf.String(), "msg=planning")
	assert.Contains(t, buf.String(), "step=2")
}

// TestNew_AutoFormat verifies non-terminal writers get JSON.
func TestNew_AutoFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Output: &buf})
	require.NoError(t, err)

	logger.Slog().Info("hello")

	assert.True(t, strings.HasPrefix(buf.String(), "{"), "got %q", buf.String())
}

// TestNew_FileLogging verifies the daily file is written alongside the console.
func TestNew_FileLogging(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	var buf bytes.Buffer
	logger, err := New(Config{Service: "tasks", LogDir: dir, Format: FormatText, Output: &buf})
	require.NoError(t, err)

	// Act
	logger.Slog().Warn("degraded_reply", "model", "m")
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close(), "second Close is a no-op")

	// Assert
	path := filepath.Join(dir, "tasks_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"degraded_reply"`)
	assert.Contains(t, buf.String(), "degraded_reply")
}

// TestNew_QuietWithoutFile verifies quiet loggers discard records.
func TestNew_QuietWithoutFile(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Quiet: true, Output: &buf})
	require.NoError(t, err)

	logger.Slog().Error("dropped")

	assert.Empty(t, buf.String())
}

// TestNew_BadLogDir verifies console logging survives a file error.
func TestNew_BadLogDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	var buf bytes.Buffer

	logger, err := New(Config{LogDir: filepath.Join(blocker, "logs"), Format: FormatText, Output: &buf})

	assert.Error(t, err)
	require.NotNil(t, logger)
	logger.Slog().Info("still here")
	assert.Contains(t, buf.String(), "still here")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".taskbot/logs"), expandPath("~/.taskbot/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
	assert.Equal(t, "relative", expandPath("relative"))
}
