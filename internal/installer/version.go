// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package installer

import (
	"strconv"
	"strings"

	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
)

// Version is a dot-separated, integer-segmented identifier (X.Y.Z…)
// compared segment-wise numerically, so "1.10" > "1.9" even though that's
// false lexicographically.
type Version struct {
	raw      string
	segments []int
}

// ParseVersion parses s into a Version, returning ferrors.ErrInvalidVersion
// if any dot-separated segment is not a non-negative integer.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return Version{}, ferrors.ErrInvalidVersion
	}
	parts := strings.Split(s, ".")
	segments := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, ferrors.ErrInvalidVersion
		}
		segments = append(segments, n)
	}
	return Version{raw: s, segments: segments}, nil
}

// MustParseVersion is ParseVersion, panicking on error. For use with
// compile-time-known version literals (tests, defaults).
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version's original textual form.
func (v Version) String() string { return v.raw }

// Compare returns -1, 0, or 1 as v is segment-wise numerically less than,
// equal to, or greater than other. Missing trailing segments compare as 0,
// so "1.0" == "1.0.0" and "1.0.5" > "1.0".
func (v Version) Compare(other Version) int {
	n := len(v.segments)
	if len(other.segments) > n {
		n = len(other.segments)
	}
	for i := 0; i < n; i++ {
		a, b := 0, 0
		if i < len(v.segments) {
			a = v.segments[i]
		}
		if i < len(other.segments) {
			b = other.segments[i]
		}
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	return 0
}

// LessThan reports whether v sorts before other.
func (v Version) LessThan(other Version) bool { return v.Compare(other) < 0 }

// Equal reports whether v and other compare equal segment-wise.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// SortVersions sorts versions in ascending segment-wise numeric order,
// newest last.
func SortVersions(versions []Version) {
	// insertion sort: version lists per branch are small (tens, not
	// thousands) and this keeps the comparator simple to audit.
	for i := 1; i < len(versions); i++ {
		for j := i; j > 0 && versions[j].LessThan(versions[j-1]); j-- {
			versions[j], versions[j-1] = versions[j-1], versions[j]
		}
	}
}
