// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package installer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
)

func TestVersionSegmentwiseCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.10", "1.9", 1},
		{"1.9", "1.10", -1},
		{"1.0.5", "1.0", 1},
		{"1.0", "1.0.0", 0},
		{"2.0", "1.99", 1},
		{"1.0", "1.0", 0},
	}
	for _, c := range cases {
		a, err := ParseVersion(c.a)
		assert.NoError(t, err)
		b, err := ParseVersion(c.b)
		assert.NoError(t, err)
		assert.Equal(t, c.want, a.Compare(b), "%s vs %s", c.a, c.b)
	}
}

func TestParseVersionRejectsNonNumericSegments(t *testing.T) {
	_, err := ParseVersion("1.a.2")
	assert.ErrorIs(t, err, ferrors.ErrInvalidVersion)

	_, err = ParseVersion("")
	assert.ErrorIs(t, err, ferrors.ErrInvalidVersion)
}

func TestSortVersionsAscending(t *testing.T) {
	versions := []Version{
		MustParseVersion("1.10"),
		MustParseVersion("1.2"),
		MustParseVersion("1.9"),
		MustParseVersion("2.0"),
	}
	SortVersions(versions)

	got := make([]string, len(versions))
	for i, v := range versions {
		got[i] = v.String()
	}
	assert.Equal(t, []string{"1.2", "1.9", "1.10", "2.0"}, got)
}
