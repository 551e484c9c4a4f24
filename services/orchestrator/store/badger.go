// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianTasks/services/orchestrator/datatypes"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
)

// taskKeyPrefix namespaces task records inside the database.
var taskKeyPrefix = []byte("task/")

// User metadata written with each entry so that subscribers can tell an
// insert from an update, the way a table stream labels its records.
const (
	metaInsert byte = 0x01
	metaUpdate byte = 0x02
)

// =============================================================================
// Configuration
// =============================================================================

// BadgerConfig holds configuration for the BadgerDB-backed task store.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC. Ignored for in-memory databases.
	GCInterval time.Duration
}

// DefaultBadgerConfig returns production defaults for the given path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:       path,
		SyncWrites: true,
		GCInterval: 5 * time.Minute,
	}
}

// InMemoryBadgerConfig returns a configuration for tests and ephemeral runs.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// BadgerTaskStore
// =============================================================================

// BadgerTaskStore implements TaskStore and InsertWatcher on BadgerDB.
//
// Description:
//
//	Each task is stored as JSON under "task/<id>". Create runs in a single
//	read-write transaction that fails when the key already exists, which
//	gives the conditional-insert guarantee. Patch is read-modify-write in
//	one transaction followed by a fresh read.
//
// Thread Safety: Safe for concurrent use.
type BadgerTaskStore struct {
	db     *badger.DB
	now    func() time.Time
	stopGC chan struct{}
	gcDone chan struct{}
	once   sync.Once
}

// BadgerOption configures a BadgerTaskStore.
type BadgerOption func(*BadgerTaskStore)

// WithClock overrides the clock used for updatedAt on Patch.
func WithClock(now func() time.Time) BadgerOption {
	return func(s *BadgerTaskStore) {
		s.now = now
	}
}

// OpenBadgerTaskStore opens a BadgerDB and wraps it as a task store.
//
// Description:
//
//	Opens the database at cfg.Path (creating the directory) or in memory,
//	and starts periodic value log GC when configured.
//
// Inputs:
//
//	cfg - Database configuration. Path is required unless InMemory is true.
//	opts - Store options.
//
// Outputs:
//
//	*BadgerTaskStore - The store. Caller must call Close() when done.
//	error - Non-nil if the database cannot be opened.
func OpenBadgerTaskStore(cfg BadgerConfig, opts ...BadgerOption) (*BadgerTaskStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent task store")
	}

	var bopts badger.Options
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create task store directory %s: %w", cfg.Path, err)
		}
		bopts = badger.DefaultOptions(cfg.Path)
	}
	bopts = bopts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger database: %v", ErrUnavailable, err)
	}

	s := &BadgerTaskStore{
		db:     db,
		now:    time.Now,
		stopGC: make(chan struct{}),
		gcDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		go s.runGC(cfg.GCInterval, cfg.Logger)
	} else {
		close(s.gcDone)
	}
	return s, nil
}

// Close stops GC and closes the database. Safe to call multiple times.
func (s *BadgerTaskStore) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stopGC)
		<-s.gcDone
		err = s.db.Close()
	})
	return err
}

func (s *BadgerTaskStore) runGC(interval time.Duration, logger *slog.Logger) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite means no GC was needed.
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("badger value log GC error", "error", err)
			}
		}
	}
}

func taskKey(id string) []byte {
	return append(append([]byte{}, taskKeyPrefix...), id...)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// Create inserts the task unless its id is already taken.
func (s *BadgerTaskStore) Create(ctx context.Context, task datatypes.Task) (datatypes.Task, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Task{}, err
	}
	task = task.Normalize()

	encoded, err := json.Marshal(task)
	if err != nil {
		return datatypes.Task{}, fmt.Errorf("encode task: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		_, getErr := txn.Get(taskKey(task.ID))
		switch {
		case getErr == nil:
			return ErrDuplicateID
		case !errors.Is(getErr, badger.ErrKeyNotFound):
			return unavailable("create", getErr)
		}
		return txn.SetEntry(badger.NewEntry(taskKey(task.ID), encoded).WithMeta(metaInsert))
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateID) || errors.Is(err, ErrUnavailable) {
			return datatypes.Task{}, err
		}
		return datatypes.Task{}, unavailable("create", err)
	}
	return task, nil
}

// Get returns the task with the given id.
func (s *BadgerTaskStore) Get(ctx context.Context, id string) (datatypes.Task, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Task{}, err
	}

	var task datatypes.Task
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(taskKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &task)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return datatypes.Task{}, ErrNotFound
	}
	if err != nil {
		return datatypes.Task{}, unavailable("get", err)
	}
	return task.Normalize(), nil
}

// Patch overwrites fields of an existing task and returns the stored result.
// A missing id yields (nil, nil).
func (s *BadgerTaskStore) Patch(ctx context.Context, id string, fields map[string]any) (*datatypes.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	found := true
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(taskKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return unavailable("patch", err)
		}

		var current datatypes.Task
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &current)
		}); err != nil {
			return unavailable("patch", err)
		}

		patched, err := current.ApplyPatch(fields, datatypes.Timestamp(s.now()))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
		encoded, err := json.Marshal(patched)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
		return txn.SetEntry(badger.NewEntry(taskKey(id), encoded).WithMeta(metaUpdate))
	})
	if err != nil {
		if errors.Is(err, ErrInvalidPatch) || errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, unavailable("patch", err)
	}
	if !found {
		return nil, nil
	}

	task, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		// Deleted between the write and the read.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Scan returns at most limit tasks in key order.
func (s *BadgerTaskStore) Scan(ctx context.Context, limit int) ([]datatypes.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultScanLimit
	}

	tasks := make([]datatypes.Task, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = taskKeyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(taskKeyPrefix); it.ValidForPrefix(taskKeyPrefix) && len(tasks) < limit; it.Next() {
			var task datatypes.Task
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &task)
			}); err != nil {
				return err
			}
			tasks = append(tasks, task.Normalize())
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("scan", err)
	}
	return tasks, nil
}

// Delete removes the task with the given id.
func (s *BadgerTaskStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(taskKey(id)); err != nil {
			return err
		}
		return txn.Delete(taskKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// WatchInserts streams tasks written by Create until ctx is cancelled.
//
// Description:
//
//	Uses BadgerDB's key subscription on the task prefix and forwards only
//	entries carrying the insert marker. Undecodable entries are skipped.
func (s *BadgerTaskStore) WatchInserts(ctx context.Context, fn func(datatypes.Task)) error {
	matches := []pb.Match{{Prefix: taskKeyPrefix}}
	err := s.db.Subscribe(ctx, func(kvs *badger.KVList) error {
		for _, kv := range kvs.Kv {
			if len(kv.UserMeta) == 0 || kv.UserMeta[0] != metaInsert {
				continue
			}
			var task datatypes.Task
			if err := json.Unmarshal(kv.Value, &task); err != nil {
				slog.Warn("Skipping undecodable task insert", "key", string(kv.Key), "error", err)
				continue
			}
			fn(task.Normalize())
		}
		return nil
	}, matches)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return unavailable("watch", err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ TaskStore     = (*BadgerTaskStore)(nil)
	_ InsertWatcher = (*BadgerTaskStore)(nil)
)
