// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package ferrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindInvalidArgument: "invalid_argument",
		KindConfiguration:   "configuration",
		KindLockContention:  "lock_contention",
		KindPrivilege:       "privilege",
		KindVersion:         "version",
		KindChildFailure:    "child_failure",
		KindTimeout:         "timeout",
		KindFilesystem:      "filesystem",
		Kind(99):            "unknown",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestNewAndWrap(t *testing.T) {
	e := New(KindTimeout, "orchestrator.status", "deadline exceeded")
	assert.Contains(t, e.Error(), "timeout")
	assert.Contains(t, e.Error(), "orchestrator.status")

	cause := errors.New("context deadline exceeded")
	wrapped := Wrap(KindTimeout, "orchestrator.status", "deadline exceeded", cause)
	assert.ErrorIs(t, wrapped, cause)
}

func TestIsAndKindOf(t *testing.T) {
	err := fmt.Errorf("calling service: %w", New(KindLockContention, "nodelock", "busy"))

	assert.True(t, Is(err, KindLockContention))
	assert.False(t, Is(err, KindVersion))

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindLockContention, kind)

	_, ok = KindOf(errors.New("plain error"))
	assert.False(t, ok)
}

func TestSentinelErrorsCarryExpectedKind(t *testing.T) {
	assert.True(t, Is(ErrPidfileOwnedByOther, KindLockContention))
	assert.True(t, Is(ErrInvalidVersion, KindVersion))
	assert.True(t, Is(ErrVersionNotInstalled, KindVersion))
	assert.True(t, Is(ErrVersionPinned, KindVersion))
	assert.True(t, Is(ErrDowngradeNotAllowed, KindVersion))
	assert.True(t, Is(ErrVersionInUse, KindVersion))
	assert.True(t, Is(ErrLockHeld, KindLockContention))
	assert.True(t, Is(ErrDecommissioned, KindInvalidArgument))
}

func TestWrappedErrorUnwraps(t *testing.T) {
	root := errors.New("disk full")
	fsErr := Wrap(KindFilesystem, "redirector.write", "cannot append to log", root)
	outer := fmt.Errorf("flush failed: %w", fsErr)

	assert.ErrorIs(t, outer, root)
	kind, ok := KindOf(outer)
	assert.True(t, ok)
	assert.Equal(t, KindFilesystem, kind)
}
