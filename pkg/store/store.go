// Package store persists the postprocessor rules and the grabber's bank
// registrations as flat JSON documents.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"
)

// ErrInvalidOrder is returned when a matcher is inserted outside [0, len].
var ErrInvalidOrder = errors.New("order out of range")

// NotFoundError reports a name missing from the store.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// ConflictError reports an add of a name that already exists.
type ConflictError struct {
	Kind string
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}

// document is a JSON file loaded into memory on open and rewritten on every
// mutation. T is the decoded shape of the whole file.
type document[T any] struct {
	mu   sync.Mutex
	path string
	data T
}

func openDocument[T any](path string) (*document[T], error) {
	d := &document[T]{path: path}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return d, nil
	case err != nil:
		return nil, pkgerrors.Wrapf(err, "reading %s", path)
	}

	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d.data); err != nil {
		return nil, pkgerrors.Wrapf(err, "decoding %s", path)
	}
	return d, nil
}

// read runs fn with the document locked.
func (d *document[T]) read(fn func(data *T)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.data)
}

// update runs fn on a copy of the document and, if it succeeds, replaces the
// in-memory state and flushes it to disk.
func (d *document[T]) update(clone func(T) T, fn func(data *T) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := clone(d.data)
	if err := fn(&next); err != nil {
		return err
	}
	if err := d.flush(next); err != nil {
		return err
	}
	d.data = next
	return nil
}

func (d *document[T]) flush(data T) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", d.path, err)
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("replacing %s: %w", d.path, err)
	}
	return nil
}
