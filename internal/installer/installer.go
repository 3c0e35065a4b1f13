// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Package installer implements the versioned installer: materializing new
// versions as hard-link trees from the content-addressed store, activating
// a version via atomic symlink swaps, tracking a per-branch rollback
// pointer, pinning, in-use detection, and stale-version garbage collection.
package installer

import (
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
	"github.com/tomtom215/fleetsupervisor/internal/linkstore"
	"github.com/tomtom215/fleetsupervisor/internal/metrics"
)

const (
	stagingPrefix  = ".creating_"
	deletingPrefix = "_deleting_"
	metaDirName    = ".angel"
	dataDirName    = ".angel_version_data"
	pinFileName    = "version_pinned.lock"
	downgradesDir  = "downgrades"
)

// Installer materializes, activates, and garbage-collects version trees
// rooted at VersionsDir, hard-linking file bodies from Store.
type Installer struct {
	VersionsDir string
	Store       *linkstore.Store

	// InUseChecker reports whether any process has the given path open or
	// mapped. Defaults to procInUse (a /proc scan); overridable for tests.
	InUseChecker func(path string) (bool, error)
}

// New returns an Installer rooted at versionsDir, backed by a link store
// at versionsDir/.angel_version_data/dedup_hardlinks.
func New(versionsDir string) *Installer {
	store := linkstore.New(filepath.Join(versionsDir, dataDirName, "dedup_hardlinks"))
	return &Installer{VersionsDir: versionsDir, Store: store, InUseChecker: procInUse}
}

func (in *Installer) branchDir(branch string) string { return filepath.Join(in.VersionsDir, branch) }
func (in *Installer) versionDir(branch, version string) string {
	return filepath.Join(in.branchDir(branch), version)
}
func (in *Installer) stagingDir(branch, version string) string {
	return filepath.Join(in.branchDir(branch), stagingPrefix+version)
}
func (in *Installer) deletingDir(branch, version string) string {
	return filepath.Join(in.branchDir(branch), deletingPrefix+version)
}
func (in *Installer) globalDefaultLink() string { return filepath.Join(in.VersionsDir, "_default") }
func (in *Installer) branchDefaultLink(branch string) string {
	return filepath.Join(in.branchDir(branch), "_default")
}
func (in *Installer) pinFilePath() string {
	return filepath.Join(in.VersionsDir, dataDirName, pinFileName)
}
func (in *Installer) downgradePointerPath(branch, fromVersion string) string {
	return filepath.Join(in.VersionsDir, dataDirName, downgradesDir, branch, "downgrade-from-"+fromVersion)
}

func recordOp(op string, err error, start time.Time) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.InstallerOperations.WithLabelValues(op, result).Inc()
	metrics.InstallerOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Installed reports whether (branch, version) has a finished tree on disk.
func (in *Installer) Installed(branch, version string) bool {
	info, err := os.Stat(in.versionDir(branch, version))
	return err == nil && info.IsDir()
}

// Branches lists every branch with at least one installed version.
func (in *Installer) Branches() ([]string, error) {
	entries, err := os.ReadDir(in.VersionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferrors.Wrap(ferrors.KindFilesystem, "installer.branches", "reading versions dir", err)
	}
	var branches []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == dataDirName {
			continue
		}
		branches = append(branches, e.Name())
	}
	return branches, nil
}

// Versions lists installed versions of branch in ascending order.
func (in *Installer) Versions(branch string) ([]Version, error) {
	entries, err := os.ReadDir(in.branchDir(branch))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferrors.Wrap(ferrors.KindFilesystem, "installer.versions", "reading branch dir", err)
	}
	var versions []Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if name == "_default" {
			continue
		}
		v, err := ParseVersion(name)
		if err != nil {
			continue // staging/deleting dirs and other non-version entries
		}
		versions = append(versions, v)
	}
	SortVersions(versions)
	return versions, nil
}

// CheckVersion reports whether (branch, version) is installed.
func (in *Installer) CheckVersion(branch, version string) (bool, error) {
	if _, err := ParseVersion(version); err != nil {
		return false, err
	}
	return in.Installed(branch, version), nil
}

// AddVersion is a thin wrapper over Create matching the CLI's
// "add-version SRC BRANCH VERSION" shape, with no throttling.
func (in *Installer) AddVersion(source, branch, version string) error {
	return in.Create(branch, version, source, 0)
}

// Create materializes branch/version from source, hard-linking regular
// file bodies through the link store. sleepRatio throttles large trees by
// sleeping run_time*sleepRatio at each directory boundary; it is clamped
// to [0, 1).
func (in *Installer) Create(branch, version, source string, sleepRatio float64) (err error) {
	start := time.Now()
	defer func() { recordOp("create", err, start) }()

	if in.Installed(branch, version) {
		return ferrors.New(ferrors.KindVersion, "installer.create",
			fmt.Sprintf("%s/%s already installed", branch, version))
	}
	if _, verr := ParseVersion(version); verr != nil {
		return verr
	}
	if sleepRatio < 0 {
		sleepRatio = 0
	}
	if sleepRatio >= 1 {
		sleepRatio = 0.99
	}

	if err := in.Store.EnsureInit(); err != nil {
		return err
	}

	staging := in.stagingDir(branch, version)
	os.RemoveAll(staging)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.create", "creating staging dir", err)
	}

	if err := in.copyTree(source, staging, sleepRatio); err != nil {
		os.RemoveAll(staging)
		return err
	}

	meta := filepath.Join(staging, metaDirName)
	if err := os.MkdirAll(meta, 0o755); err != nil {
		os.RemoveAll(staging)
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.create", "creating metadata dir", err)
	}
	if err := os.WriteFile(filepath.Join(meta, "code_branch"), []byte(branch+"\n"), 0o644); err != nil {
		os.RemoveAll(staging)
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.create", "writing code_branch marker", err)
	}
	if err := os.WriteFile(filepath.Join(meta, "code_version"), []byte(version+"\n"), 0o644); err != nil {
		os.RemoveAll(staging)
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.create", "writing code_version marker", err)
	}
	if err := os.WriteFile(filepath.Join(meta, "versions_dir"), []byte(in.VersionsDir+"\n"), 0o644); err != nil {
		os.RemoveAll(staging)
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.create", "writing versions_dir marker", err)
	}

	final := in.versionDir(branch, version)
	if err := os.Rename(staging, final); err != nil {
		os.RemoveAll(staging)
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.create", "renaming staging to final", err)
	}

	if _, statErr := os.Lstat(in.globalDefaultLink()); os.IsNotExist(statErr) {
		if err := in.setSymlink(in.globalDefaultLink(), branch); err != nil {
			return err
		}
	}

	return nil
}

func (in *Installer) copyTree(source, dest string, sleepRatio float64) error {
	entries, err := os.ReadDir(source)
	if err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.create", "reading source tree", err)
	}
	for _, entry := range entries {
		start := time.Now()
		srcPath := filepath.Join(source, entry.Name())
		dstPath := filepath.Join(dest, entry.Name())

		info, err := os.Lstat(srcPath)
		if err != nil {
			return ferrors.Wrap(ferrors.KindFilesystem, "installer.create", "stat source entry", err)
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			if err := in.copySymlink(source, srcPath, dstPath); err != nil {
				return err
			}
		case info.IsDir():
			if err := os.MkdirAll(dstPath, info.Mode().Perm()); err != nil {
				return ferrors.Wrap(ferrors.KindFilesystem, "installer.create", "creating directory", err)
			}
			if err := in.copyTree(srcPath, dstPath, sleepRatio); err != nil {
				return err
			}
			os.Chtimes(dstPath, info.ModTime(), info.ModTime())
		default:
			if info.Mode()&os.ModeSetuid != 0 {
				return ferrors.New(ferrors.KindInvalidArgument, "installer.create",
					fmt.Sprintf("refusing to install setuid file %s", srcPath))
			}
			hash, size, err := linkstore.HashFile(srcPath)
			if err != nil {
				return err
			}
			if err := in.Store.LinkInto(dstPath, srcPath, hash, size, info.Mode()); err != nil {
				return err
			}
		}

		if sleepRatio > 0 && info.IsDir() {
			elapsed := time.Since(start)
			sleepFor := time.Duration(float64(elapsed) * sleepRatio)
			const maxThrottleSleep = 2 * time.Second
			if sleepFor > maxThrottleSleep {
				sleepFor = maxThrottleSleep
			}
			if sleepFor > 0 {
				time.Sleep(sleepFor)
			}
		}
	}
	return nil
}

func (in *Installer) copySymlink(sourceRoot, srcPath, dstPath string) error {
	target, err := os.Readlink(srcPath)
	if err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.create", "reading symlink", err)
	}
	if filepath.IsAbs(target) {
		rel, relErr := filepath.Rel(sourceRoot, target)
		if relErr != nil || len(rel) >= 2 && rel[:2] == ".." {
			// points outside the source tree: keep it absolute as-is.
		} else if relErr == nil {
			// re-absolutize against the destination root isn't known here;
			// keep relative links relative, matching the copy's directory shape.
			target = rel
		}
	}
	if err := os.Symlink(target, dstPath); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.create", "creating symlink", err)
	}
	return nil
}

func (in *Installer) setSymlink(linkPath, target string) error {
	tmp := linkPath + ".new"
	os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.symlink", "creating temp symlink", err)
	}
	if err := os.Rename(tmp, linkPath); err != nil {
		os.Remove(tmp)
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.symlink", "renaming symlink into place", err)
	}
	syncBestEffort(filepath.Dir(linkPath))
	return nil
}

func syncBestEffort(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	defer f.Close()
	f.Sync()
}

// IsPinned reports whether default changes are currently blocked.
func (in *Installer) IsPinned() bool {
	_, err := os.Stat(in.pinFilePath())
	return err == nil
}

// Pin enables pinning, recording reason for operator visibility.
func (in *Installer) Pin(reason string) error {
	if err := os.MkdirAll(filepath.Dir(in.pinFilePath()), 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.pin", "creating metadata dir", err)
	}
	if err := os.WriteFile(in.pinFilePath(), []byte(reason+"\n"), 0o644); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.pin", "writing pin file", err)
	}
	return nil
}

// Unpin disables pinning.
func (in *Installer) Unpin() error {
	if err := os.Remove(in.pinFilePath()); err != nil && !os.IsNotExist(err) {
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.unpin", "removing pin file", err)
	}
	return nil
}

// DefaultVersion returns the branch's current default version, or ok=false
// if the branch has no default set.
func (in *Installer) DefaultVersion(branch string) (Version, bool) {
	target, err := os.Readlink(in.branchDefaultLink(branch))
	if err != nil {
		return Version{}, false
	}
	v, err := ParseVersion(target)
	if err != nil {
		return Version{}, false
	}
	return v, true
}

// DefaultBranch returns the node's current default branch, or ok=false if unset.
func (in *Installer) DefaultBranch() (string, bool) {
	target, err := os.Readlink(in.globalDefaultLink())
	if err != nil {
		return "", false
	}
	return target, true
}

// Activate makes (branch, version) the default. Refuses if the version
// isn't installed, if it is already default (no-op, returns nil), if it's
// older than the current default on the same branch without
// downgradeAllowed, or if pinning blocks it without force. Records a
// rollback pointer only when stepping forward on the same branch.
func (in *Installer) Activate(branch, version string, downgradeAllowed, force bool, jitter time.Duration) (err error) {
	start := time.Now()
	defer func() { recordOp("activate", err, start) }()

	if !in.Installed(branch, version) {
		return ferrors.ErrVersionNotInstalled
	}
	newVer, verr := ParseVersion(version)
	if verr != nil {
		return verr
	}

	current, hasDefault := in.DefaultVersion(branch)
	if hasDefault && current.Equal(newVer) {
		return nil
	}

	if in.IsPinned() && !force {
		return ferrors.ErrVersionPinned
	}

	forwardStep := !hasDefault || current.LessThan(newVer)
	if hasDefault && !forwardStep && !downgradeAllowed {
		return ferrors.ErrDowngradeNotAllowed
	}

	if jitter > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(jitter))))
	}

	if err := in.runHook(branch, version, "pre_activate.sh"); err != nil {
		return err
	}

	if err := in.setSymlink(in.branchDefaultLink(branch), version); err != nil {
		return err
	}
	if err := in.setSymlink(in.globalDefaultLink(), branch); err != nil {
		return err
	}

	if hasDefault && forwardStep {
		if err := in.recordRollbackPointer(branch, version, current.String()); err != nil {
			return err
		}
	}

	if err := in.runHook(branch, version, "post_activate.sh"); err != nil {
		return err
	}

	return nil
}

func (in *Installer) runHook(branch, version, name string) error {
	path := filepath.Join(in.versionDir(branch, version), name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	cmd := exec.Command(path)
	cmd.Dir = in.versionDir(branch, version)
	cmd.Env = append(os.Environ(), "VERSIONS_DIR="+in.VersionsDir)
	if err := cmd.Run(); err != nil {
		return ferrors.Wrap(ferrors.KindVersion, "installer.activate",
			fmt.Sprintf("%s exited non-zero", name), err)
	}
	return nil
}

func (in *Installer) recordRollbackPointer(branch, fromVersion, toVersion string) error {
	path := in.downgradePointerPath(branch, fromVersion)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.activate", "creating rollback dir", err)
	}
	if err := os.WriteFile(path, []byte(toVersion+"\n"), 0o644); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.activate", "writing rollback pointer", err)
	}
	return nil
}

// Rollback reads the rollback pointer recorded for (branch, downgradeFrom)
// and activates the version it names, with downgrade allowed. Rollback is
// defined from a version, not to one, so a node that hasn't stepped
// forward to downgradeFrom cannot be made to jump further back than the
// operator intended.
func (in *Installer) Rollback(branch, downgradeFrom string) error {
	path := in.downgradePointerPath(branch, downgradeFrom)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ferrors.New(ferrors.KindVersion, "installer.rollback",
				fmt.Sprintf("no rollback pointer recorded for %s/%s", branch, downgradeFrom))
		}
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.rollback", "reading rollback pointer", err)
	}
	target := trimNewline(string(data))

	current, hasDefault := in.DefaultVersion(branch)
	if !hasDefault || current.String() != downgradeFrom {
		return ferrors.New(ferrors.KindVersion, "installer.rollback",
			fmt.Sprintf("%s is no longer the default for %s", downgradeFrom, branch))
	}

	if err := in.Activate(branch, target, true, false, 0); err != nil {
		return err
	}
	return os.Remove(path)
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// IsInUse reports whether (branch, version) is the branch default, or
// whether any process has an open file descriptor or memory mapping under
// its path. Double-checks a negative result by opening a read handle under
// the path itself and re-scanning, to close a race between the scan and a
// process that just started using the tree.
func (in *Installer) IsInUse(branch, version string) (bool, error) {
	if current, ok := in.DefaultVersion(branch); ok && current.String() == version {
		return true, nil
	}

	path := in.versionDir(branch, version)
	inUse, err := in.inUseChecker()(path)
	if err != nil {
		return false, err
	}
	if inUse {
		return true, nil
	}

	// Re-run with a guard handle open to close the scan race.
	guard, gerr := os.Open(path)
	if gerr == nil {
		defer guard.Close()
	}
	return in.inUseChecker()(path)
}

func (in *Installer) inUseChecker() func(string) (bool, error) {
	if in.InUseChecker != nil {
		return in.InUseChecker
	}
	return procInUse
}

// Delete removes (branch, version) after checking it isn't in use (unless
// evenIfInUse). Renames to a _deleting_ prefix first so racing readers
// never see a partially-removed tree, then recursively removes it, then
// runs store GC.
func (in *Installer) Delete(branch, version string, evenIfInUse bool) (err error) {
	start := time.Now()
	defer func() { recordOp("delete", err, start) }()

	if !in.Installed(branch, version) {
		return ferrors.ErrVersionNotInstalled
	}
	if !evenIfInUse {
		inUse, err := in.IsInUse(branch, version)
		if err != nil {
			return err
		}
		if inUse {
			return ferrors.ErrVersionInUse
		}
	}

	deleting := in.deletingDir(branch, version)
	if err := os.Rename(in.versionDir(branch, version), deleting); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.delete", "renaming to deleting marker", err)
	}
	if err := os.RemoveAll(deleting); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "installer.delete", "removing version tree", err)
	}

	if _, _, err := in.Store.GC(); err != nil {
		return err
	}
	return nil
}

// GCStale keeps the newest keepN installed versions of branch and deletes
// at most limit of the remaining older, not-in-use versions.
func (in *Installer) GCStale(branch string, keepN, limit int) (deleted int, err error) {
	versions, err := in.Versions(branch)
	if err != nil {
		return 0, err
	}
	if len(versions) <= keepN {
		return 0, nil
	}
	candidates := versions[:len(versions)-keepN]
	for _, v := range candidates {
		if deleted >= limit {
			break
		}
		inUse, err := in.IsInUse(branch, v.String())
		if err != nil {
			return deleted, err
		}
		if inUse {
			continue
		}
		if err := in.Delete(branch, v.String(), false); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
