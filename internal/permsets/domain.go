package permsets

import "time"

// PermissionSet is a named bundle of table/field access grants, assignable
// to one or more profiles. TableCount mirrors the number of table_access
// rows and is maintained in the same transaction as every insert/delete.
type PermissionSet struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	TableCount  int       `json:"table_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableAccess records that a permission set may touch a table.
type TableAccess struct {
	ID              int64  `json:"id"`
	PermissionSetID int64  `json:"permission_set_id"`
	TableName       string `json:"table_name"`
}

// FieldAccess records per-field view/edit capability within one table
// access row.
type FieldAccess struct {
	ID            int64  `json:"id"`
	TableAccessID int64  `json:"table_access_id"`
	FieldName     string `json:"field_name"`
	CanView       bool   `json:"can_view"`
	CanEdit       bool   `json:"can_edit"`
}

// FieldGrant is the flattened listing row: a field access together with the
// table it belongs to.
type FieldGrant struct {
	FieldAccess
	TableName string `json:"table_name"`
}

// ResetResult reports the outcome of a permission-set grant wipe.
type ResetResult struct {
	ProfilesRemoved int64 `json:"profiles_removed"`
	TablesRemoved   int64 `json:"tables_removed"`
	FieldsRemoved   int64 `json:"fields_removed"`
}

// TableCountCorrection records a repaired table_count drift.
type TableCountCorrection struct {
	PermissionSetID int64
	Stored          int
	Actual          int
}
