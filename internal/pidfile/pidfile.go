// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Package pidfile implements the on-disk pidfile record: the ground truth
// for "is this service running here." A pidfile's first line holds the
// owning pid (or is empty); subsequent lines hold sorted key=value extras.
// All writes are atomic via write-to-temp-then-rename so readers never
// observe a half-written pid line.
package pidfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
)

// Liveness reports whether pid is currently running. The default
// implementation signals 0 to the pid (kill(pid, 0)), which succeeds
// without side effects if the process exists and the caller may signal it.
type Liveness func(pid int) bool

// DefaultLiveness is the syscall.Kill(pid, 0)-based liveness probe.
func DefaultLiveness(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err != syscall.ESRCH
}

// Record is the parsed contents of a pidfile.
type Record struct {
	// Pid is the owning pid, present only if the first line parsed as an
	// integer and that pid is currently live. Absent (zero) means stale.
	Pid    int
	Extras map[string]string
}

// HasPid reports whether the record names a live owning pid.
func (r Record) HasPid() bool { return r.Pid > 0 }

// Store reads and writes pidfiles under a liveness probe, which defaults to
// DefaultLiveness but is overridable for tests.
type Store struct {
	Liveness Liveness
	Logger   *slog.Logger
}

// NewStore returns a Store using the real kill(pid, 0) liveness probe.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Liveness: DefaultLiveness, Logger: logger}
}

// Write writes pid and extras to path atomically. If path already holds a
// live pid that is not pid, it fails with ErrPidfileOwnedByOther.
// Newlines inside extra values are collapsed to spaces; extras are written
// in sorted key order for deterministic output.
func (s *Store) Write(path string, pid int, extras map[string]string) error {
	existing, err := s.Read(path)
	if err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "pidfile.write", "reading existing pidfile", err)
	}
	if existing.HasPid() && existing.Pid != pid {
		return ferrors.ErrPidfileOwnedByOther
	}

	var b strings.Builder
	if pid > 0 {
		fmt.Fprintf(&b, "%d\n", pid)
	} else {
		b.WriteString("\n")
	}

	keys := make([]string, 0, len(extras))
	for k := range extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := collapseNewlines(extras[k])
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}

	return atomicWrite(path, []byte(b.String()), pid)
}

func collapseNewlines(v string) string {
	v = strings.ReplaceAll(v, "\r\n", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	v = strings.ReplaceAll(v, "\r", " ")
	return v
}

func atomicWrite(path string, data []byte, tag int) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "pidfile.write", "creating parent directory", err)
	}
	tmp := fmt.Sprintf("%s.%d", path, tag)
	if tag == 0 {
		tmp = fmt.Sprintf("%s.%d", path, os.Getpid())
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "pidfile.write", "writing temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return ferrors.Wrap(ferrors.KindFilesystem, "pidfile.write", "renaming into place", err)
	}
	return nil
}

// Read parses path into a Record. A missing file is treated as a valid,
// entirely empty record rather than an error — "never existed" is just
// another flavor of stale. Malformed extras lines after the first are
// skipped with a logged warning. If opening or scanning the file fails, the
// read is retried once. A first line that does not parse as a pid is not
// retried; it reads as no pid (stale).
func (s *Store) Read(path string) (Record, error) {
	rec, err := s.readOnce(path)
	if err != nil {
		rec, err = s.readOnce(path)
		if err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

func (s *Store) readOnce(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{Extras: map[string]string{}}, nil
		}
		return Record{}, ferrors.Wrap(ferrors.KindFilesystem, "pidfile.read", "opening pidfile", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	rec := Record{Extras: map[string]string{}}

	if scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			if pid, perr := strconv.Atoi(line); perr == nil {
				liveness := s.Liveness
				if liveness == nil {
					liveness = DefaultLiveness
				}
				if liveness(pid) {
					rec.Pid = pid
				}
			}
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			s.warnf("pidfile %s: skipping malformed extras line %q", path, line)
			continue
		}
		key := line[:idx]
		val := line[idx+1:]
		if key == "" {
			s.warnf("pidfile %s: skipping malformed extras line %q", path, line)
			continue
		}
		rec.Extras[key] = val
	}
	if err := scanner.Err(); err != nil {
		return Record{}, ferrors.Wrap(ferrors.KindFilesystem, "pidfile.read", "scanning pidfile", err)
	}
	return rec, nil
}

func (s *Store) warnf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Warn(fmt.Sprintf(format, args...))
	}
}

// Release rewrites path with an empty pid line, preserving extras. If no
// extras remain it removes the file instead.
func (s *Store) Release(path string) error {
	rec, err := s.Read(path)
	if err != nil {
		return err
	}
	if len(rec.Extras) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return ferrors.Wrap(ferrors.KindFilesystem, "pidfile.release", "removing pidfile", err)
		}
		return nil
	}
	return s.Write(path, 0, rec.Extras)
}

// Update merges delta into the extras stored at path. A delta value of ""
// deletes the corresponding key. pid is the pid to (re-)record as owner;
// pass the existing record's Pid to leave ownership unchanged.
func (s *Store) Update(path string, pid int, delta map[string]string) error {
	rec, err := s.Read(path)
	if err != nil {
		return err
	}
	for k, v := range delta {
		if v == "" {
			delete(rec.Extras, k)
			continue
		}
		rec.Extras[k] = v
	}
	return s.Write(path, pid, rec.Extras)
}

// Int64 parses extras[key] as a base-10 int64, returning ok=false if the
// key is absent or unparsable.
func (r Record) Int64(key string) (int64, bool) {
	v, ok := r.Extras[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
