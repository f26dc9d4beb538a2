// Package store implements the Plan, Recovery, and Status stores: the
// file-backed, lock-protected, atomically-written JSON documents that hold
// all durable orchestration state.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// writeJSONAtomic marshals v and writes it to path via write-temp, fsync,
// rename: a failed write never leaves a partial file, a failed rename
// removes its temp, and the fsync before rename means a crash between the
// two can't leave path pointing at a temp file the kernel never flushed.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal %s: %w", path, err)
	}

	tempPath := path + ".tmp"
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open temp file %s: %w", tempPath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("cannot write temp file %s: %w", tempPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("cannot fsync temp file %s: %w", tempPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("cannot close temp file %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("cannot rename temp file %s: %w", tempPath, err)
	}
	return nil
}

// readJSON decodes the JSON document at path into v. A missing file is
// reported via the returned error so callers can distinguish "not yet
// created" from "corrupt" using os.IsNotExist.
func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("cannot decode %s: %w", path, err)
	}
	return nil
}

// fileLock wraps github.com/gofrs/flock for one store file. It is the
// serialization point required: concurrent shared readers, a single
// exclusive writer, safe across a background daemon and a concurrently
// invoked status/logs/stop command.
type fileLock struct {
	fl *flock.Flock
}

func newFileLock(path string) *fileLock {
	return &fileLock{fl: flock.New(path + ".lock")}
}

func (l *fileLock) withRLock(ctx context.Context, fn func() error) error {
	if err := l.fl.RLock(); err != nil {
		return fmt.Errorf("cannot acquire shared lock on %s: %w", l.fl.Path(), err)
	}
	defer l.fl.Unlock()
	return fn()
}

func (l *fileLock) withLock(ctx context.Context, fn func() error) error {
	if err := l.fl.Lock(); err != nil {
		return fmt.Errorf("cannot acquire exclusive lock on %s: %w", l.fl.Path(), err)
	}
	defer l.fl.Unlock()
	return fn()
}
