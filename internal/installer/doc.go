// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

/*
Package installer implements the versioned installer: materializing new
version trees by hard-linking file bodies from a linkstore.Store,
activating a version as branch/node default via atomic symlink swaps,
recording a rollback pointer on forward steps, pinning, in-use detection
before deletion, and stale-version GC.

# State machine

Per version: absent -> staging (.creating_<version>) -> installed ->
default (possibly) -> deleting (_deleting_<version>) -> absent.

# Layout

	<versions_dir>/<branch>/<version>/.angel/{code_branch,code_version,versions_dir}
	<versions_dir>/_default                  -> branch
	<versions_dir>/<branch>/_default          -> version
	<versions_dir>/.angel_version_data/version_pinned.lock
	<versions_dir>/.angel_version_data/downgrades/<branch>/downgrade-from-<V>
	<versions_dir>/.angel_version_data/dedup_hardlinks/...

# See Also

  - internal/linkstore: backs Create's hard-link materialization
  - internal/nodelock: callers should serialize activate/delete with a named lock
*/
package installer
