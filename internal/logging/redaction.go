// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// sensitiveNameFragments are substrings that mark a setting name as carrying
// a credential. Matching is case-insensitive and matches substrings, since
// settings are free-form KEY=value pairs (§6 settings file grammar) rather
// than a fixed schema.
var sensitiveNameFragments = []string{
	"key",
	"secret",
	"token",
	"password",
	"passwd",
	"credential",
}

// IsSensitiveSettingName reports whether a setting name looks like it holds
// a credential and should never be logged with its value.
func IsSensitiveSettingName(name string) bool {
	lower := strings.ToLower(name)
	for _, frag := range sensitiveNameFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// RedactSettingValue returns value unchanged unless name looks sensitive, in
// which case it returns a fixed placeholder. Used anywhere a setting or
// pidfile extra is about to be logged (§7: "sensitive settings ... are never
// logged with their values").
func RedactSettingValue(name, value string) string {
	if value == "" {
		return value
	}
	if IsSensitiveSettingName(name) {
		return "<redacted>"
	}
	return value
}

// deployUserEnvVar is the environment variable read once at startup (§6).
const deployUserEnvVar = "LC_DEPLOY_USER"

// ExtractDeployUser reads LC_DEPLOY_USER from environ (KEY=VALUE entries,
// as os.Environ returns them) and returns it alongside a copy of environ
// with that variable stripped, per §6: "LC_DEPLOY_USER, if
// present, is logged alongside every command and then removed from the
// environment."
func ExtractDeployUser(environ []string) (deployUser string, stripped []string) {
	stripped = make([]string, 0, len(environ))
	prefix := deployUserEnvVar + "="
	for _, kv := range environ {
		if strings.HasPrefix(kv, prefix) {
			deployUser = strings.TrimPrefix(kv, prefix)
			continue
		}
		stripped = append(stripped, kv)
	}
	return deployUser, stripped
}

// WithDeployUser returns a child of the global logger (by value, per
// zerolog's copy-on-write design) carrying the component field, plus the
// deploy_user field when deployUser is non-empty.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func WithDeployUser(component string, deployUser string) zerolog.Logger {
	ctx := With().Str("component", component)
	if deployUser != "" {
		ctx = ctx.Str("deploy_user", deployUser)
	}
	return ctx.Logger()
}
