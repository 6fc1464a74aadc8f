// Package store provides the atomic read/write primitives every other
// kingdom component builds on: tmp-file-then-rename for JSON and text
// documents, with a per-process-unique tmp suffix so two goroutines in
// the same process never collide on the same temp path.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jbohnslav/kingdom/internal/kderrors"
)

// tmpCounter disambiguates concurrent writers inside one process; it is
// combined with the pid and a uuid so the suffix is unique both across
// processes and across goroutines within one.
var tmpCounter atomic.Uint64

func tmpSuffix() string {
	n := tmpCounter.Add(1)
	return fmt.Sprintf("%d.%d.%s.tmp", os.Getpid(), n, uuid.NewString())
}

// ReadJSON decodes the JSON document at path into v. It returns
// kderrors.NotFound (wrapped) if the file does not exist, and
// kderrors.Parse if the content fails to decode.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path constructed by kingdom, not user input
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return kderrors.Wrap(kderrors.NotFound, err, "%s", path)
		}
		return kderrors.Wrap(kderrors.IO, err, "read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return kderrors.Wrap(kderrors.Parse, err, "decode json %s", path)
	}
	return nil
}

// WriteJSON serializes v and writes it to path atomically: encode to a
// sibling tmp file, fsync, then rename over the target.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return kderrors.Wrap(kderrors.IO, err, "encode json for %s", path)
	}
	data = append(data, '\n')
	return writeAtomic(path, data)
}

// ReadText reads the raw text document at path.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", kderrors.Wrap(kderrors.NotFound, err, "%s", path)
		}
		return "", kderrors.Wrap(kderrors.IO, err, "read %s", path)
	}
	return string(data), nil
}

// WriteText writes body to path atomically.
func WriteText(path, body string) error {
	return writeAtomic(path, []byte(body))
}

// Exists reports whether a regular file exists at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// DirExists reports whether a directory exists at path.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return kderrors.Wrap(kderrors.IO, err, "mkdir %s", dir)
	}

	tmpPath := path + "." + tmpSuffix()
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) // #nosec G304
	if err != nil {
		return kderrors.Wrap(kderrors.IO, err, "create tmp for %s", path)
	}

	cleanup := true
	defer func() {
		if cleanup {
			_ = f.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return kderrors.Wrap(kderrors.IO, err, "write tmp for %s", path)
	}
	if err := f.Sync(); err != nil {
		return kderrors.Wrap(kderrors.IO, err, "fsync tmp for %s", path)
	}
	if err := f.Close(); err != nil {
		return kderrors.Wrap(kderrors.IO, err, "close tmp for %s", path)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return kderrors.Wrap(kderrors.IO, err, "rename tmp onto %s", path)
	}
	cleanup = false
	return nil
}

// AppendJSONLine appends one JSON-encoded line to path, creating it if
// absent. Used for append-only logs (the audit log) where tmp+rename
// would be wrong: callers want durable incremental growth, not
// whole-file replacement. The caller is expected to hold any lock
// needed to serialize concurrent appenders.
func AppendJSONLine(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return kderrors.Wrap(kderrors.IO, err, "mkdir %s", filepath.Dir(path))
	}
	data, err := json.Marshal(v)
	if err != nil {
		return kderrors.Wrap(kderrors.IO, err, "encode line for %s", path)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640) // #nosec G304
	if err != nil {
		return kderrors.Wrap(kderrors.IO, err, "open %s", path)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return kderrors.Wrap(kderrors.IO, err, "append to %s", path)
	}
	return nil
}
