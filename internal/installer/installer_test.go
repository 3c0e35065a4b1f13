// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package installer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
)

func neverInUse(string) (bool, error) { return false, nil }

func newTestInstaller(t *testing.T) *Installer {
	t.Helper()
	in := New(filepath.Join(t.TempDir(), "versions"))
	in.InUseChecker = neverInUse
	return in
}

func writeSourceTree(t *testing.T, root string) string {
	t.Helper()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "bin", "app"), []byte("#!/bin/sh\necho hi\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "README"), []byte("readme"), 0o644))
	return src
}

func TestCreateMaterializesTree(t *testing.T) {
	in := newTestInstaller(t)
	src := writeSourceTree(t, t.TempDir())

	require.NoError(t, in.Create("main", "1.0", src, 0))

	assert.True(t, in.Installed("main", "1.0"))
	contents, err := os.ReadFile(filepath.Join(in.versionDir("main", "1.0"), "README"))
	require.NoError(t, err)
	assert.Equal(t, "readme", string(contents))

	meta, err := os.ReadFile(filepath.Join(in.versionDir("main", "1.0"), metaDirName, "code_version"))
	require.NoError(t, err)
	assert.Equal(t, "1.0\n", string(meta))
}

func TestCreateSetsDefaultBranchIfNoneExists(t *testing.T) {
	in := newTestInstaller(t)
	src := writeSourceTree(t, t.TempDir())

	require.NoError(t, in.Create("main", "1.0", src, 0))

	branch, ok := in.DefaultBranch()
	require.True(t, ok)
	assert.Equal(t, "main", branch)
}

func TestCreateFailsIfAlreadyInstalled(t *testing.T) {
	in := newTestInstaller(t)
	src := writeSourceTree(t, t.TempDir())
	require.NoError(t, in.Create("main", "1.0", src, 0))

	err := in.Create("main", "1.0", src, 0)
	assert.Error(t, err)
}

func TestCreateEmptySourceYieldsEmptyTree(t *testing.T) {
	in := newTestInstaller(t)
	emptySrc := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.MkdirAll(emptySrc, 0o755))

	require.NoError(t, in.Create("main", "1.0", emptySrc, 0))
	assert.True(t, in.Installed("main", "1.0"))
}

func TestCreateRejectsSetuidFiles(t *testing.T) {
	in := newTestInstaller(t)
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	setuidFile := filepath.Join(src, "suid")
	require.NoError(t, os.WriteFile(setuidFile, []byte("x"), 0o755))
	require.NoError(t, os.Chmod(setuidFile, os.ModeSetuid|0o755))

	err := in.Create("main", "1.0", src, 0)
	assert.True(t, ferrors.Is(err, ferrors.KindInvalidArgument))
}

func TestActivateAndRollback(t *testing.T) {
	in := newTestInstaller(t)
	src := writeSourceTree(t, t.TempDir())

	require.NoError(t, in.Create("main", "100", src, 0))
	require.NoError(t, in.Activate("main", "100", false, false, 0))

	require.NoError(t, in.Create("main", "101", src, 0))
	require.NoError(t, in.Activate("main", "101", false, false, 0))

	current, ok := in.DefaultVersion("main")
	require.True(t, ok)
	assert.Equal(t, "101", current.String())

	require.NoError(t, in.Rollback("main", "101"))

	current, ok = in.DefaultVersion("main")
	require.True(t, ok)
	assert.Equal(t, "100", current.String())

	// A second rollback from 101 must fail: 101 is no longer the default.
	err := in.Rollback("main", "101")
	assert.Error(t, err)
}

func TestActivateRefusesDowngradeWithoutFlag(t *testing.T) {
	in := newTestInstaller(t)
	src := writeSourceTree(t, t.TempDir())

	require.NoError(t, in.Create("main", "100", src, 0))
	require.NoError(t, in.Activate("main", "100", false, false, 0))
	require.NoError(t, in.Create("main", "101", src, 0))
	require.NoError(t, in.Activate("main", "101", false, false, 0))

	err := in.Activate("main", "100", false, false, 0)
	assert.ErrorIs(t, err, ferrors.ErrDowngradeNotAllowed)

	require.NoError(t, in.Activate("main", "100", true, false, 0))
}

func TestActivateNoOpWhenAlreadyDefault(t *testing.T) {
	in := newTestInstaller(t)
	src := writeSourceTree(t, t.TempDir())
	require.NoError(t, in.Create("main", "100", src, 0))
	require.NoError(t, in.Activate("main", "100", false, false, 0))

	assert.NoError(t, in.Activate("main", "100", false, false, 0))
}

func TestActivateRefusesUninstalledVersion(t *testing.T) {
	in := newTestInstaller(t)
	err := in.Activate("main", "999", false, false, 0)
	assert.ErrorIs(t, err, ferrors.ErrVersionNotInstalled)
}

func TestActivateRefusesWhenPinnedWithoutForce(t *testing.T) {
	in := newTestInstaller(t)
	src := writeSourceTree(t, t.TempDir())
	require.NoError(t, in.Create("main", "100", src, 0))
	require.NoError(t, in.Pin("change freeze"))

	err := in.Activate("main", "100", false, false, 0)
	assert.ErrorIs(t, err, ferrors.ErrVersionPinned)

	require.NoError(t, in.Activate("main", "100", false, true, 0))
}

func TestDeleteThenRecreateYieldsInstalledTree(t *testing.T) {
	in := newTestInstaller(t)
	src := writeSourceTree(t, t.TempDir())
	require.NoError(t, in.Create("main", "100", src, 0))

	require.NoError(t, in.Delete("main", "100", false))
	assert.False(t, in.Installed("main", "100"))

	require.NoError(t, in.Create("main", "100", src, 0))
	assert.True(t, in.Installed("main", "100"))

	contents, err := os.ReadFile(filepath.Join(in.versionDir("main", "100"), "README"))
	require.NoError(t, err)
	assert.Equal(t, "readme", string(contents))
}

func TestDeleteRefusesInUseVersion(t *testing.T) {
	in := newTestInstaller(t)
	in.InUseChecker = func(string) (bool, error) { return true, nil }
	src := writeSourceTree(t, t.TempDir())
	require.NoError(t, in.Create("main", "100", src, 0))

	err := in.Delete("main", "100", false)
	assert.ErrorIs(t, err, ferrors.ErrVersionInUse)

	require.NoError(t, in.Delete("main", "100", true))
}

func TestIsInUseTrueForBranchDefault(t *testing.T) {
	in := newTestInstaller(t)
	src := writeSourceTree(t, t.TempDir())
	require.NoError(t, in.Create("main", "100", src, 0))
	require.NoError(t, in.Activate("main", "100", false, false, 0))

	inUse, err := in.IsInUse("main", "100")
	require.NoError(t, err)
	assert.True(t, inUse)
}

func TestGCStaleKeepsNewestN(t *testing.T) {
	in := newTestInstaller(t)
	src := writeSourceTree(t, t.TempDir())
	for _, v := range []string{"1.0", "1.1", "1.2", "1.3"} {
		require.NoError(t, in.Create("main", v, src, 0))
	}

	deleted, err := in.GCStale("main", 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	remaining, err := in.Versions("main")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
	assert.Equal(t, "1.2", remaining[0].String())
	assert.Equal(t, "1.3", remaining[1].String())
}

func TestGCStaleRespectsLimit(t *testing.T) {
	in := newTestInstaller(t)
	src := writeSourceTree(t, t.TempDir())
	for _, v := range []string{"1.0", "1.1", "1.2", "1.3"} {
		require.NoError(t, in.Create("main", v, src, 0))
	}

	deleted, err := in.GCStale("main", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestVersionsAndBranchesListing(t *testing.T) {
	in := newTestInstaller(t)
	src := writeSourceTree(t, t.TempDir())
	require.NoError(t, in.Create("main", "1.0", src, 0))
	require.NoError(t, in.Create("canary", "2.0", src, 0))

	branches, err := in.Branches()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main", "canary"}, branches)

	versions, err := in.Versions("main")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "1.0", versions[0].String())
}

func TestCheckVersion(t *testing.T) {
	in := newTestInstaller(t)
	src := writeSourceTree(t, t.TempDir())
	require.NoError(t, in.Create("main", "1.0", src, 0))

	ok, err := in.CheckVersion("main", "1.0")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = in.CheckVersion("main", "9.9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddVersionDelegatesToCreate(t *testing.T) {
	in := newTestInstaller(t)
	src := writeSourceTree(t, t.TempDir())

	require.NoError(t, in.AddVersion(src, "main", "1.0"))
	assert.True(t, in.Installed("main", "1.0"))
}
