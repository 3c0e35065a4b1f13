// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package installer

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
)

// procInUse reports whether any process on the node has an open file
// descriptor or memory mapping under path, by scanning /proc/<pid>/fd and
// /proc/<pid>/maps.
func procInUse(path string) (bool, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return false, ferrors.Wrap(ferrors.KindFilesystem, "installer.is_in_use", "reading /proc", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(entry.Name()); err != nil {
			continue
		}
		pidDir := filepath.Join("/proc", entry.Name())

		if fdInUse(filepath.Join(pidDir, "fd"), path) {
			return true, nil
		}
		if mapsInUse(filepath.Join(pidDir, "maps"), path) {
			return true, nil
		}
		if exeInUse(filepath.Join(pidDir, "exe"), path) {
			return true, nil
		}
	}
	return false, nil
}

func fdInUse(fdDir, path string) bool {
	fds, err := os.ReadDir(fdDir)
	if err != nil {
		return false
	}
	for _, fd := range fds {
		target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
		if err != nil {
			continue
		}
		if underPath(target, path) {
			return true
		}
	}
	return false
}

func mapsInUse(mapsPath, path string) bool {
	data, err := os.ReadFile(mapsPath)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if idx := strings.Index(line, "/"); idx >= 0 {
			if underPath(strings.TrimSpace(line[idx:]), path) {
				return true
			}
		}
	}
	return false
}

func exeInUse(exePath, path string) bool {
	target, err := os.Readlink(exePath)
	if err != nil {
		return false
	}
	return underPath(target, path)
}

func underPath(candidate, path string) bool {
	if candidate == path {
		return true
	}
	return strings.HasPrefix(candidate, path+string(filepath.Separator))
}
