// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package linkstore

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureInitCreatesSafetyCheckWithLinkCountTwo(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "store"))

	require.NoError(t, store.EnsureInit())

	var st syscall.Stat_t
	require.NoError(t, syscall.Stat(filepath.Join(store.Dir, SafetyCheckName), &st))
	assert.EqualValues(t, 2, st.Nlink)
}

func TestEnsureInitIsIdempotent(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, store.EnsureInit())
	require.NoError(t, store.EnsureInit())
}

func TestNameForIsCanonical(t *testing.T) {
	name := NameFor("abc123", 42, 0o644)
	assert.Equal(t, "abc123.42.644", name)
}

func TestLinkIntoCopiesThenHardLinks(t *testing.T) {
	root := t.TempDir()
	store := New(filepath.Join(root, "store"))
	require.NoError(t, store.EnsureInit())

	srcDir := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	srcFile := filepath.Join(srcDir, "hello.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte("hello world"), 0o644))

	hash, size, err := HashFile(srcFile)
	require.NoError(t, err)

	treePath := filepath.Join(root, "tree", "hello.txt")
	require.NoError(t, store.LinkInto(treePath, srcFile, hash, size, 0o644))

	contents, err := os.ReadFile(treePath)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(contents))

	storeEntry := filepath.Join(store.Dir, NameFor(hash, size, 0o644))
	var storeStat, treeStat syscall.Stat_t
	require.NoError(t, syscall.Stat(storeEntry, &storeStat))
	require.NoError(t, syscall.Stat(treePath, &treeStat))
	assert.Equal(t, storeStat.Ino, treeStat.Ino)
	assert.EqualValues(t, 2, storeStat.Nlink)
}

func TestLinkIntoSecondTreeSharesStoreEntry(t *testing.T) {
	root := t.TempDir()
	store := New(filepath.Join(root, "store"))
	require.NoError(t, store.EnsureInit())

	srcFile := filepath.Join(root, "hello.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte("shared content"), 0o644))
	hash, size, err := HashFile(srcFile)
	require.NoError(t, err)

	tree1 := filepath.Join(root, "tree1", "hello.txt")
	tree2 := filepath.Join(root, "tree2", "hello.txt")
	require.NoError(t, store.LinkInto(tree1, srcFile, hash, size, 0o644))
	require.NoError(t, store.LinkInto(tree2, srcFile, hash, size, 0o644))

	storeEntry := filepath.Join(store.Dir, NameFor(hash, size, 0o644))
	var st syscall.Stat_t
	require.NoError(t, syscall.Stat(storeEntry, &st))
	assert.EqualValues(t, 3, st.Nlink) // store + tree1 + tree2
}

func TestGCReclaimsLinkCountOneFiles(t *testing.T) {
	root := t.TempDir()
	store := New(filepath.Join(root, "store"))
	require.NoError(t, store.EnsureInit())

	srcFile := filepath.Join(root, "orphan.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte("orphaned"), 0o644))
	hash, size, err := HashFile(srcFile)
	require.NoError(t, err)

	treePath := filepath.Join(root, "tree", "orphan.txt")
	require.NoError(t, store.LinkInto(treePath, srcFile, hash, size, 0o644))
	require.NoError(t, os.Remove(treePath)) // now store entry has link count 1

	removed, bytesReclaimed, err := store.GC()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.EqualValues(t, 8, bytesReclaimed)

	_, statErr := os.Stat(filepath.Join(store.Dir, NameFor(hash, size, 0o644)))
	assert.True(t, os.IsNotExist(statErr))
}

func TestGCNeverRemovesSafetyFile(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, store.EnsureInit())

	_, _, err := store.GC()
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(store.Dir, SafetyCheckName))
	assert.NoError(t, statErr)
}

func TestGCIsIdempotent(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, store.EnsureInit())

	_, _, err := store.GC()
	require.NoError(t, err)
	_, _, err = store.GC()
	require.NoError(t, err)
}

func TestGCRefusesWithoutSafetyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	store := New(dir) // never EnsureInit'd

	_, _, err := store.GC()
	assert.Error(t, err)
}

func TestStatsCountsFilesAndGarbage(t *testing.T) {
	root := t.TempDir()
	store := New(filepath.Join(root, "store"))
	require.NoError(t, store.EnsureInit())

	srcFile := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte("12345"), 0o644))
	hash, size, err := HashFile(srcFile)
	require.NoError(t, err)

	treePath := filepath.Join(root, "tree", "a.txt")
	require.NoError(t, store.LinkInto(treePath, srcFile, hash, size, 0o644))
	require.NoError(t, os.Remove(treePath))

	files, totalBytes, garbage, err := store.Stats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, files, 2) // safety check + our entry
	assert.Greater(t, totalBytes, int64(0))
	assert.Equal(t, 1, garbage)
}
