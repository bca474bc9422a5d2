package roles

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

const roleColumns = `id, name, description, level, parent_id, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for roles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a single transaction. Guarded deletes use this so
// the row lock taken by GetRoleByNameForUpdate covers the dependent count
// and the delete.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListRoles returns all roles ordered by level then name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY level, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRoleRow(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id), fmt.Sprintf("role %d", id))
}

// GetRoleByName fetches a role by its unique name.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return scanRoleRow(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name), fmt.Sprintf("role %q", name))
}

// CreateRoleParams carries the insertable role fields.
type CreateRoleParams struct {
	Name        string
	Description string
	Level       int
	ParentID    *int64
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, p CreateRoleParams) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, description, level, parent_id) VALUES ($1, $2, $3, $4) RETURNING `+roleColumns,
		p.Name, p.Description, p.Level, p.ParentID)
	role, err := scanRole(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("%w: role %q already exists", shared.ErrConflict, p.Name)
		}
		return Role{}, err
	}
	return role, nil
}

// UpdateRoleParams carries the replacement fields; Name is the lookup key.
type UpdateRoleParams struct {
	Name        string
	Description string
	Level       int
	ParentID    *int64
}

// UpdateRole replaces all mutable fields of the role identified by name.
func (r *Repository) UpdateRole(ctx context.Context, p UpdateRoleParams) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE roles SET description = $2, level = $3, parent_id = $4, updated_at = now() WHERE name = $1 RETURNING `+roleColumns,
		p.Name, p.Description, p.Level, p.ParentID)
	return scanRoleRow(row, fmt.Sprintf("role %q", p.Name))
}

// IsDescendant reports whether candidateID sits anywhere in the subtree
// rooted at roleID. Used to reject parent updates that would form a cycle.
func (r *Repository) IsDescendant(ctx context.Context, roleID, candidateID int64) (bool, error) {
	const query = `
		WITH RECURSIVE subtree AS (
			SELECT id FROM roles WHERE parent_id = $1
			UNION ALL
			SELECT r.id FROM roles r JOIN subtree s ON r.parent_id = s.id
		)
		SELECT EXISTS (SELECT 1 FROM subtree WHERE id = $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, roleID, candidateID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// AssignUser links an identity-provider subject to a role, ignoring
// duplicate assignments.
func (r *Repository) AssignUser(ctx context.Context, userID string, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT (user_id, role_id) DO NOTHING`,
		userID, roleID)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: role %d", shared.ErrNotFound, roleID)
	}
	return err
}

// AssignPermissionSet links a permission set to a role, ignoring duplicates.
func (r *Repository) AssignPermissionSet(ctx context.Context, roleID, permissionSetID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO role_permission_sets (role_id, permission_set_id) VALUES ($1, $2) ON CONFLICT (role_id, permission_set_id) DO NOTHING`,
		roleID, permissionSetID)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: role %d or permission set %d", shared.ErrNotFound, roleID, permissionSetID)
	}
	return err
}

// RemoveAllPermissionSets deletes every permission-set link for the role
// and returns the number of rows removed.
func (r *Repository) RemoveAllPermissionSets(ctx context.Context, roleID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_permission_sets WHERE role_id = $1`, roleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountPermissionSets returns the number of permission-set links remaining
// for the role.
func (r *Repository) CountPermissionSets(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM role_permission_sets WHERE role_id = $1`, roleID).Scan(&count)
	return count, err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetRoleByNameForUpdate(ctx context.Context, name string) (Role, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1 FOR UPDATE`, name)
	return scanRoleRow(row, fmt.Sprintf("role %q", name))
}

func (r *txRepository) CountAssignedUsers(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, roleID).Scan(&count)
	return count, err
}

func (r *txRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: role %d", shared.ErrNotFound, id)
	}
	return nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Level, &role.ParentID, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

func scanRoleRow(row pgx.Row, desc string) (Role, error) {
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("%w: %s", shared.ErrNotFound, desc)
		}
		return Role{}, err
	}
	return role, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
