// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSensitiveSettingName(t *testing.T) {
	assert.True(t, IsSensitiveSettingName("api_key"))
	assert.True(t, IsSensitiveSettingName("JWT_SECRET"))
	assert.True(t, IsSensitiveSettingName("AdminPassword"))
	assert.False(t, IsSensitiveSettingName("lock_dir"))
	assert.False(t, IsSensitiveSettingName("service_name"))
}

func TestRedactSettingValue(t *testing.T) {
	assert.Equal(t, "<redacted>", RedactSettingValue("db_password", "hunter2"))
	assert.Equal(t, "/var/run/locks", RedactSettingValue("lock_dir", "/var/run/locks"))
	assert.Equal(t, "", RedactSettingValue("api_key", ""))
}

func TestExtractDeployUser(t *testing.T) {
	environ := []string{"PATH=/bin", "LC_DEPLOY_USER=alice", "HOME=/root"}
	user, stripped := ExtractDeployUser(environ)
	assert.Equal(t, "alice", user)
	assert.ElementsMatch(t, []string{"PATH=/bin", "HOME=/root"}, stripped)
	for _, kv := range stripped {
		assert.NotContains(t, kv, "LC_DEPLOY_USER")
	}
}

func TestExtractDeployUserAbsent(t *testing.T) {
	environ := []string{"PATH=/bin"}
	user, stripped := ExtractDeployUser(environ)
	assert.Empty(t, user)
	assert.Equal(t, environ, stripped)
}
