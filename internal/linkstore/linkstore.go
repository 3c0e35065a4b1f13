// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Package linkstore implements the content-addressed hard-link store:
// files are named md5hex.size.mode, version trees hard-link into it, and
// garbage collection reclaims entries with a link count of exactly 1.
package linkstore

import (
	"crypto/md5" //nolint:gosec // content addressing, not a security boundary
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
	"github.com/tomtom215/fleetsupervisor/internal/metrics"
)

// SafetyCheckName is the file created on init whose link count of 2 (the
// file itself plus one extra hard link) makes it immune to GC.
const SafetyCheckName = ".dedup_safety_check"

const safetyCheckLinkName = ".dedup_safety_check.link"

// Store is a single directory of content-addressed, hard-linked files.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir. Call EnsureInit before first use.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

// NameFor returns the canonical filename for content with the given md5
// hex digest, size in bytes, and file mode bits.
func NameFor(md5hex string, size int64, mode os.FileMode) string {
	return fmt.Sprintf("%s.%d.%o", md5hex, size, mode.Perm())
}

// HashFile returns the md5 hex digest and size of the file at path.
func HashFile(path string) (md5hex string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, ferrors.Wrap(ferrors.KindFilesystem, "linkstore.hash", "opening source file", err)
	}
	defer f.Close()

	h := md5.New() //nolint:gosec
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, ferrors.Wrap(ferrors.KindFilesystem, "linkstore.hash", "reading source file", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), n, nil
}

// EnsureInit creates the store directory (private permissions) if absent,
// and a safety-check file with a second hard link so its link count is 2,
// making it safe from GC. Idempotent.
func (s *Store) EnsureInit() error {
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "linkstore.init", "creating store directory", err)
	}
	safety := filepath.Join(s.Dir, SafetyCheckName)
	if _, err := os.Stat(safety); os.IsNotExist(err) {
		if err := os.WriteFile(safety, []byte("fleetsupervisor link store safety check\n"), 0o600); err != nil {
			return ferrors.Wrap(ferrors.KindFilesystem, "linkstore.init", "creating safety check file", err)
		}
	}
	link := filepath.Join(s.Dir, safetyCheckLinkName)
	if _, err := os.Stat(link); os.IsNotExist(err) {
		if err := os.Link(safety, link); err != nil {
			return ferrors.Wrap(ferrors.KindFilesystem, "linkstore.init", "linking safety check file", err)
		}
	}
	return nil
}

// hasSafetyCheck reports whether the safety-check file is present.
func (s *Store) hasSafetyCheck() bool {
	_, err := os.Stat(filepath.Join(s.Dir, SafetyCheckName))
	return err == nil
}

// LinkInto ensures content from srcPath is present in the store (copying
// it in if this is the first time this canonical name is seen) and then
// hard-links it from the store into treePath. Fails fast if the store and
// tree directory are on different filesystems, since hard links cannot
// cross filesystem boundaries.
func (s *Store) LinkInto(treePath, srcPath string, md5hex string, size int64, mode os.FileMode) error {
	if err := s.sameFilesystem(filepath.Dir(treePath)); err != nil {
		return err
	}

	name := NameFor(md5hex, size, mode)
	storePath := filepath.Join(s.Dir, name)

	if _, err := os.Stat(storePath); os.IsNotExist(err) {
		if err := copyWithMetadata(srcPath, storePath, mode); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(treePath), 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "linkstore.link", "creating tree parent directory", err)
	}

	err := os.Link(storePath, treePath)
	if err != nil {
		// EEXIST on the canonical name is success: the content is known
		// equivalent by construction of the name, per spec.md §5's
		// concurrent-writer note.
		if os.IsExist(err) {
			return nil
		}
		return ferrors.Wrap(ferrors.KindFilesystem, "linkstore.link", "hard-linking into tree", err)
	}
	return nil
}

func copyWithMetadata(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "linkstore.copy", "opening source", err)
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "linkstore.copy", "creating store entry", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return ferrors.Wrap(ferrors.KindFilesystem, "linkstore.copy", "copying content", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return ferrors.Wrap(ferrors.KindFilesystem, "linkstore.copy", "closing store entry", err)
	}
	if err := os.Chmod(tmp, mode.Perm()); err != nil {
		os.Remove(tmp)
		return ferrors.Wrap(ferrors.KindFilesystem, "linkstore.copy", "setting mode", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		if os.IsExist(err) {
			return nil
		}
		return ferrors.Wrap(ferrors.KindFilesystem, "linkstore.copy", "renaming into store", err)
	}
	return nil
}

func (s *Store) sameFilesystem(dir string) error {
	var storeStat, dirStat syscall.Stat_t
	if err := syscall.Stat(s.Dir, &storeStat); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "linkstore.link", "statting store", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "linkstore.link", "creating tree directory", err)
	}
	if err := syscall.Stat(dir, &dirStat); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "linkstore.link", "statting tree directory", err)
	}
	if storeStat.Dev != dirStat.Dev {
		return ferrors.New(ferrors.KindFilesystem, "linkstore.link",
			"store and version tree are on different filesystems")
	}
	return nil
}

// GC removes every file in the store whose link count is exactly 1 and
// which is not the safety-check file. Refuses to run if the safety-check
// file is absent (a sign the store was never initialized or was tampered
// with). Returns the number of files removed and bytes reclaimed.
func (s *Store) GC() (removed int, bytesReclaimed int64, err error) {
	if !s.hasSafetyCheck() {
		return 0, 0, ferrors.New(ferrors.KindFilesystem, "linkstore.gc", "safety check file is absent, refusing to GC")
	}

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return 0, 0, ferrors.Wrap(ferrors.KindFilesystem, "linkstore.gc", "reading store directory", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == SafetyCheckName || name == safetyCheckLinkName {
			continue
		}
		path := filepath.Join(s.Dir, name)
		var st syscall.Stat_t
		if err := syscall.Stat(path, &st); err != nil {
			continue
		}
		if st.Nlink == 1 {
			size := st.Size
			if err := os.Remove(path); err == nil {
				removed++
				bytesReclaimed += size
			}
		}
	}
	metrics.LinkStoreGCReclaimed.Add(float64(removed))
	return removed, bytesReclaimed, nil
}

// Stats reports the file count and total bytes currently in the store, and
// the number of those files that are GC-eligible (link count 1), for the
// status aggregator's disk data points.
func (s *Store) Stats() (files int, totalBytes int64, garbage int, err error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return 0, 0, 0, ferrors.Wrap(ferrors.KindFilesystem, "linkstore.stats", "reading store directory", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.Dir, entry.Name())
		var st syscall.Stat_t
		if err := syscall.Stat(path, &st); err != nil {
			continue
		}
		files++
		totalBytes += st.Size
		if st.Nlink == 1 && entry.Name() != SafetyCheckName && entry.Name() != safetyCheckLinkName {
			garbage++
		}
	}
	metrics.LinkStoreFiles.Set(float64(files))
	metrics.LinkStoreBytes.Set(float64(totalBytes))
	return files, totalBytes, garbage, nil
}
