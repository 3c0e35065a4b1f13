// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

/*
Package linkstore implements the content-addressed link store: a directory
of files named md5hex.size.mode, the source of truth for file bodies
shared across installed version trees via hard links.

Permission bits are part of a file's identity — two files with identical
bytes but different modes occupy two distinct store entries. Names are
opaque identifiers, not paths.

GC reclaims any entry whose link count is exactly 1 (meaning no version
tree references it any longer) and is not the safety-check file, and
refuses to run at all if the safety-check file is missing.

# See Also

  - internal/installer: calls LinkInto while materializing version trees
    and GC while reclaiming stale versions
  - internal/status: calls Stats for disk usage data points
*/
package linkstore
