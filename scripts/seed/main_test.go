package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemaFor(t *testing.T, table string) string {
	t.Helper()
	for _, stmt := range schemaStatements {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			return stmt
		}
	}
	t.Fatalf("no DDL for table %s", table)
	return ""
}

func TestFieldAccessSchemaMatchesRepositoryColumns(t *testing.T) {
	ddl := schemaFor(t, "field_access")

	for _, col := range []string{"table_access_id", "field_name", "can_view", "can_edit"} {
		assert.Contains(t, ddl, col)
	}
	assert.NotContains(t, ddl, "can_read", "field access grants are view/edit, not CRUD flags")
	assert.Contains(t, ddl, "UNIQUE (table_access_id, field_name)", "the field upsert relies on this constraint")
}

func TestTableAccessSchemaMatchesRepositoryColumns(t *testing.T) {
	ddl := schemaFor(t, "table_access")

	assert.Contains(t, ddl, "table_name")
	for _, col := range []string{"can_read", "can_create", "can_update", "can_delete", "can_view", "can_edit"} {
		assert.NotContains(t, ddl, col, "table access records table membership only")
	}
	assert.Contains(t, ddl, "UNIQUE (permission_set_id, table_name)", "the table get-or-create relies on this constraint")
}

func TestUserProfilesSchemaEnforcesSingleProfile(t *testing.T) {
	ddl := schemaFor(t, "user_profiles")
	require.Contains(t, ddl, "user_id UUID NOT NULL UNIQUE", "the latest-profile-wins upsert conflicts on user_id")
}
