// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Package statuscache is a tiny persistent key/value store used by the
// status aggregator to remember when a threshold was first crossed, so a
// short spike doesn't immediately flip a check to WARN. It stores one file
// per key under a directory (typically tmpfs) rather than a single
// multiplexed database file, so that an expiring entry can be removed with
// a plain unlink and readers racing that unlink simply tolerate ENOENT —
// no ecosystem key/value store in the corpus models that race the same way.
package statuscache

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
)

// Cache is a file-per-key TTL store rooted at Dir.
type Cache struct {
	Dir string
}

// New returns a Cache rooted at dir, preferring /dev/shm, then $TMPDIR,
// then /tmp when dir is empty, mirroring the fallback order of the
// source's simple cache.
func New(dir string) *Cache {
	if dir == "" {
		dir = defaultDir()
	}
	return &Cache{Dir: dir}
}

func defaultDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	if d := os.Getenv("TMPDIR"); d != "" {
		if fi, err := os.Stat(d); err == nil && fi.IsDir() {
			return d
		}
	}
	return "/tmp"
}

func (c *Cache) filename(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, strings.ToLower(strings.ReplaceAll(key, "/", "-")))
	if len(safe) > 64 {
		safe = safe[:64]
	}
	return filepath.Join(c.Dir, fmt.Sprintf("fleetsupervisor-statuscache-1-%d-%s", os.Getuid(), safe))
}

// Set stores value for key, expiring after ttl (zero means no expiry).
// Passing an empty value clears any previously stored entry.
func (c *Cache) Set(key, value string, ttl time.Duration) error {
	path := c.filename(key)
	if value == "" {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return ferrors.Wrap(ferrors.KindFilesystem, "statuscache.set", "removing entry", err)
		}
		return nil
	}

	setTime := time.Now().Unix()
	var expiry float64
	if ttl > 0 {
		expiry = float64(time.Now().Add(ttl).UnixNano()) / 1e9
	}
	contents := fmt.Sprintf("%d\n%.6f\n%s", setTime, expiry, value)

	tmp := path + "-" + randomSuffix()
	if err := os.WriteFile(tmp, []byte(contents), 0o644); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "statuscache.set", "writing entry", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return ferrors.Wrap(ferrors.KindFilesystem, "statuscache.set", "renaming entry", err)
	}
	return nil
}

// Get reads key back. maxAge, when non-zero, additionally rejects entries
// whose set time is older than maxAge even if they haven't expired yet. A
// missing, expired, or unreadable entry returns ok=false without error —
// every failure mode here is an expected race, not a caller bug.
func (c *Cache) Get(key string, maxAge time.Duration) (value string, ok bool) {
	path := c.filename(key)

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}

	parts := strings.SplitN(string(raw), "\n", 3)
	if len(parts) != 3 {
		os.Remove(path) //nolint:errcheck
		return "", false
	}
	setTime, err1 := strconv.ParseInt(parts[0], 10, 64)
	expiry, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		os.Remove(path) //nolint:errcheck
		return "", false
	}

	if expiry != 0 && float64(time.Now().UnixNano())/1e9 > expiry {
		os.Remove(path) //nolint:errcheck
		return "", false
	}
	if maxAge > 0 && time.Since(time.Unix(setTime, 0)) > maxAge {
		return "", false
	}
	return parts[2], true
}

func randomSuffix() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b[:])
}
