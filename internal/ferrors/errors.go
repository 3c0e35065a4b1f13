// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Package ferrors defines the typed error taxonomy shared across the daemon:
// invalid argument, configuration, lock contention, privilege, version,
// child failure, timeout and filesystem errors. Callers wrap a Kind with
// fmt.Errorf("%w") chains and test with errors.As/errors.Is.
package ferrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories in the taxonomy.
type Kind int

const (
	// KindInvalidArgument covers bad flags, unknown commands, malformed values.
	KindInvalidArgument Kind = iota
	// KindConfiguration covers missing settings, ambiguous conf dirs, bad settings files.
	KindConfiguration
	// KindLockContention covers failure to acquire a node or named lock within a deadline.
	KindLockContention
	// KindPrivilege covers uid/gid mismatches against a required operation.
	KindPrivilege
	// KindVersion covers missing/pinned/invalid branch-version operations.
	KindVersion
	// KindChildFailure covers a supervised child's non-zero or signalled exit.
	KindChildFailure
	// KindTimeout covers a per-verb deadline expiring before completion.
	KindTimeout
	// KindFilesystem covers out-of-space or read-only filesystem conditions.
	KindFilesystem
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindConfiguration:
		return "configuration"
	case KindLockContention:
		return "lock_contention"
	case KindPrivilege:
		return "privilege"
	case KindVersion:
		return "version"
	case KindChildFailure:
		return "child_failure"
	case KindTimeout:
		return "timeout"
	case KindFilesystem:
		return "filesystem"
	default:
		return "unknown"
	}
}

// Error is a typed, wrappable error carrying a Kind and an optional cause.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "pidfile.write"
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == kind {
			return true
		}
		err = fe.Err
	}
	return false
}

// KindOf extracts the Kind from err, returning ok=false if err is not (or
// does not wrap) a *Error.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// Sentinel errors for simple equality checks where a full *Error isn't needed.
var (
	// ErrPidfileOwnedByOther is returned by pidfile.Write when the recorded
	// pid is live and belongs to a different process.
	ErrPidfileOwnedByOther = New(KindLockContention, "pidfile.write", "pidfile owned by a different live process")
	// ErrInvalidVersion is returned when a version string has a non-numeric segment.
	ErrInvalidVersion = New(KindVersion, "version.parse", "version segment is not numeric")
	// ErrVersionNotInstalled is returned when an operation targets a branch/version pair not on disk.
	ErrVersionNotInstalled = New(KindVersion, "installer", "version not installed")
	// ErrVersionPinned is returned when activation is blocked by a pin file without force.
	ErrVersionPinned = New(KindVersion, "installer.activate", "version pinning is enabled")
	// ErrDowngradeNotAllowed is returned by activate when moving backward without the flag.
	ErrDowngradeNotAllowed = New(KindVersion, "installer.activate", "downgrade not allowed")
	// ErrVersionInUse is returned by delete when a version is in use and not forced.
	ErrVersionInUse = New(KindVersion, "installer.delete", "version is in use")
	// ErrLockHeld is returned when a named lock cannot be acquired before its deadline.
	ErrLockHeld = New(KindLockContention, "nodelock.acquire", "lock held by another live process")
	// ErrDecommissioned is returned when an operation is attempted against a decommissioned node.
	ErrDecommissioned = New(KindInvalidArgument, "orchestrator", "node is decommissioned")
)
