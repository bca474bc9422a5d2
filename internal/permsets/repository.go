package permsets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stewardhq/steward/internal/platform/db"
	"github.com/stewardhq/steward/internal/shared"
)

const setColumns = `id, name, description, table_count, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for permission sets.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a single transaction. Guarded deletes, grant wipes,
// and field upserts all use this so table_count can never drift from the
// table_access rows.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListPermissionSets returns all permission sets ordered by name.
func (r *Repository) ListPermissionSets(ctx context.Context) ([]PermissionSet, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+setColumns+` FROM permission_sets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sets []PermissionSet
	for rows.Next() {
		set, err := scanSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

// GetPermissionSet fetches a permission set by ID.
func (r *Repository) GetPermissionSet(ctx context.Context, id int64) (PermissionSet, error) {
	return scanSetRow(r.pool.QueryRow(ctx, `SELECT `+setColumns+` FROM permission_sets WHERE id = $1`, id), fmt.Sprintf("permission set %d", id))
}

// GetPermissionSetByName fetches a permission set by its unique name.
func (r *Repository) GetPermissionSetByName(ctx context.Context, name string) (PermissionSet, error) {
	return scanSetRow(r.pool.QueryRow(ctx, `SELECT `+setColumns+` FROM permission_sets WHERE name = $1`, name), fmt.Sprintf("permission set %q", name))
}

// CreatePermissionSetParams carries the insertable fields.
type CreatePermissionSetParams struct {
	Name        string
	Description string
}

// CreatePermissionSet inserts a new permission set with zero tables.
func (r *Repository) CreatePermissionSet(ctx context.Context, p CreatePermissionSetParams) (PermissionSet, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO permission_sets (name, description) VALUES ($1, $2) RETURNING `+setColumns,
		p.Name, p.Description)
	set, err := scanSet(row)
	if err != nil {
		if isUniqueViolation(err) {
			return PermissionSet{}, fmt.Errorf("%w: permission set %q already exists", shared.ErrConflict, p.Name)
		}
		return PermissionSet{}, err
	}
	return set, nil
}

// UpdatePermissionSetParams carries the replacement fields; Name is the
// lookup key.
type UpdatePermissionSetParams struct {
	Name        string
	Description string
}

// UpdatePermissionSet replaces the mutable fields of the set identified by
// name.
func (r *Repository) UpdatePermissionSet(ctx context.Context, p UpdatePermissionSetParams) (PermissionSet, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE permission_sets SET description = $2, updated_at = now() WHERE name = $1 RETURNING `+setColumns,
		p.Name, p.Description)
	return scanSetRow(row, fmt.Sprintf("permission set %q", p.Name))
}

// ListFieldGrants returns every field access for the permission set,
// flattened with its table name.
func (r *Repository) ListFieldGrants(ctx context.Context, setID int64) ([]FieldGrant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT fa.id, fa.table_access_id, fa.field_name, fa.can_view, fa.can_edit, ta.table_name
		FROM field_access fa
		JOIN table_access ta ON ta.id = fa.table_access_id
		WHERE ta.permission_set_id = $1
		ORDER BY ta.table_name, fa.field_name`, setID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []FieldGrant
	for rows.Next() {
		var g FieldGrant
		if err := rows.Scan(&g.ID, &g.TableAccessID, &g.FieldName, &g.CanView, &g.CanEdit, &g.TableName); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// UpdateFieldAccess overwrites can_view/can_edit on one field access row,
// scoped to the permission set so a row belonging to another set cannot be
// reached through a mismatched URL.
func (r *Repository) UpdateFieldAccess(ctx context.Context, setID, fieldAccessID int64, canView, canEdit bool) (FieldGrant, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE field_access fa SET can_view = $3, can_edit = $4
		FROM table_access ta
		WHERE fa.id = $2 AND ta.id = fa.table_access_id AND ta.permission_set_id = $1
		RETURNING fa.id, fa.table_access_id, fa.field_name, fa.can_view, fa.can_edit, ta.table_name`,
		setID, fieldAccessID, canView, canEdit)
	var g FieldGrant
	if err := row.Scan(&g.ID, &g.TableAccessID, &g.FieldName, &g.CanView, &g.CanEdit, &g.TableName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FieldGrant{}, fmt.Errorf("%w: field access %d in permission set %d", shared.ErrNotFound, fieldAccessID, setID)
		}
		return FieldGrant{}, err
	}
	return g, nil
}

// DeleteFieldAccess removes one field access row scoped to the permission
// set.
func (r *Repository) DeleteFieldAccess(ctx context.Context, setID, fieldAccessID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM field_access fa
		USING table_access ta
		WHERE fa.id = $2 AND ta.id = fa.table_access_id AND ta.permission_set_id = $1`,
		setID, fieldAccessID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: field access %d in permission set %d", shared.ErrNotFound, fieldAccessID, setID)
	}
	return nil
}

// ListTableCountDrift returns the sets whose stored table_count disagrees
// with the actual number of table_access rows.
func (r *Repository) ListTableCountDrift(ctx context.Context) ([]TableCountCorrection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ps.id, ps.table_count, COUNT(ta.id)
		FROM permission_sets ps
		LEFT JOIN table_access ta ON ta.permission_set_id = ps.id
		GROUP BY ps.id, ps.table_count
		HAVING ps.table_count <> COUNT(ta.id)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drifts []TableCountCorrection
	for rows.Next() {
		var d TableCountCorrection
		if err := rows.Scan(&d.PermissionSetID, &d.Stored, &d.Actual); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

// SetTableCount stores a recomputed table_count for the set.
func (r *Repository) SetTableCount(ctx context.Context, setID int64, count int) error {
	_, err := r.pool.Exec(ctx, `UPDATE permission_sets SET table_count = $2 WHERE id = $1`, setID, count)
	return err
}

// DeleteOrphanFieldAccess removes field_access rows whose parent
// table_access no longer exists and returns the number removed.
func (r *Repository) DeleteOrphanFieldAccess(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM field_access fa
		WHERE NOT EXISTS (SELECT 1 FROM table_access ta WHERE ta.id = fa.table_access_id)`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetPermissionSetForUpdate(ctx context.Context, id int64) (PermissionSet, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+setColumns+` FROM permission_sets WHERE id = $1 FOR UPDATE`, id)
	return scanSetRow(row, fmt.Sprintf("permission set %d", id))
}

func (r *txRepository) GetPermissionSetByNameForUpdate(ctx context.Context, name string) (PermissionSet, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+setColumns+` FROM permission_sets WHERE name = $1 FOR UPDATE`, name)
	return scanSetRow(row, fmt.Sprintf("permission set %q", name))
}

func (r *txRepository) CountAssignedProfiles(ctx context.Context, setID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM profile_permission_sets WHERE permission_set_id = $1`, setID).Scan(&count)
	return count, err
}

// GetOrCreateTableAccess returns the table access row for (set, table),
// inserting it when absent. The second return reports whether a row was
// created, so the caller can bump table_count in the same transaction.
func (r *txRepository) GetOrCreateTableAccess(ctx context.Context, setID int64, tableName string) (TableAccess, bool, error) {
	var ta TableAccess
	err := r.tx.QueryRow(ctx,
		`INSERT INTO table_access (permission_set_id, table_name) VALUES ($1, $2)
		 ON CONFLICT (permission_set_id, table_name) DO NOTHING
		 RETURNING id, permission_set_id, table_name`,
		setID, tableName).Scan(&ta.ID, &ta.PermissionSetID, &ta.TableName)
	if err == nil {
		return ta, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if isForeignKeyViolation(err) {
			return TableAccess{}, false, fmt.Errorf("%w: permission set %d", shared.ErrNotFound, setID)
		}
		return TableAccess{}, false, err
	}
	err = r.tx.QueryRow(ctx,
		`SELECT id, permission_set_id, table_name FROM table_access WHERE permission_set_id = $1 AND table_name = $2`,
		setID, tableName).Scan(&ta.ID, &ta.PermissionSetID, &ta.TableName)
	if err != nil {
		return TableAccess{}, false, err
	}
	return ta, false, nil
}

func (r *txRepository) AdjustTableCount(ctx context.Context, setID int64, delta int) error {
	_, err := r.tx.Exec(ctx, `UPDATE permission_sets SET table_count = table_count + $2, updated_at = now() WHERE id = $1`, setID, delta)
	return err
}

func (r *txRepository) UpsertFieldAccess(ctx context.Context, tableAccessID int64, fieldName string, canView, canEdit bool) (FieldAccess, error) {
	var fa FieldAccess
	err := r.tx.QueryRow(ctx,
		`INSERT INTO field_access (table_access_id, field_name, can_view, can_edit) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (table_access_id, field_name) DO UPDATE SET can_view = EXCLUDED.can_view, can_edit = EXCLUDED.can_edit
		 RETURNING id, table_access_id, field_name, can_view, can_edit`,
		tableAccessID, fieldName, canView, canEdit).Scan(&fa.ID, &fa.TableAccessID, &fa.FieldName, &fa.CanView, &fa.CanEdit)
	return fa, err
}

func (r *txRepository) RemoveProfileAssignments(ctx context.Context, setID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM profile_permission_sets WHERE permission_set_id = $1`, setID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepository) DeleteFieldAccessForSet(ctx context.Context, setID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `
		DELETE FROM field_access fa
		USING table_access ta
		WHERE ta.id = fa.table_access_id AND ta.permission_set_id = $1`, setID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepository) DeleteTableAccessForSet(ctx context.Context, setID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM table_access WHERE permission_set_id = $1`, setID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepository) ResetTableCount(ctx context.Context, setID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE permission_sets SET table_count = 0, updated_at = now() WHERE id = $1`, setID)
	return err
}

func (r *txRepository) DeletePermissionSet(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM permission_sets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: permission set %d", shared.ErrNotFound, id)
	}
	return nil
}

func scanSet(row pgx.Row) (PermissionSet, error) {
	var set PermissionSet
	err := row.Scan(&set.ID, &set.Name, &set.Description, &set.TableCount, &set.CreatedAt, &set.UpdatedAt)
	return set, err
}

func scanSetRow(row pgx.Row, desc string) (PermissionSet, error) {
	set, err := scanSet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PermissionSet{}, fmt.Errorf("%w: %s", shared.ErrNotFound, desc)
		}
		return PermissionSet{}, err
	}
	return set, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
