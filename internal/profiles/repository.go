package profiles

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

const profileColumns = `id, name, description, type, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for profiles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a single transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListProfiles returns all profiles ordered by name.
func (r *Repository) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var profiles []Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// GetProfile fetches a profile by ID.
func (r *Repository) GetProfile(ctx context.Context, id int64) (Profile, error) {
	return scanProfileRow(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id), fmt.Sprintf("profile %d", id))
}

// GetProfileByName fetches a profile by its unique name.
func (r *Repository) GetProfileByName(ctx context.Context, name string) (Profile, error) {
	return scanProfileRow(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE name = $1`, name), fmt.Sprintf("profile %q", name))
}

// CreateProfileParams carries the insertable profile fields.
type CreateProfileParams struct {
	Name        string
	Description string
	Type        string
}

// CreateProfile inserts a new profile.
func (r *Repository) CreateProfile(ctx context.Context, p CreateProfileParams) (Profile, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO profiles (name, description, type) VALUES ($1, $2, $3) RETURNING `+profileColumns,
		p.Name, p.Description, p.Type)
	profile, err := scanProfile(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Profile{}, fmt.Errorf("%w: profile %q already exists", shared.ErrConflict, p.Name)
		}
		return Profile{}, err
	}
	return profile, nil
}

// UpdateProfileParams carries the replacement fields; Name is the lookup key.
type UpdateProfileParams struct {
	Name        string
	Description string
	Type        string
}

// UpdateProfile replaces all mutable fields of the profile identified by name.
func (r *Repository) UpdateProfile(ctx context.Context, p UpdateProfileParams) (Profile, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE profiles SET description = $2, type = $3, updated_at = now() WHERE name = $1 RETURNING `+profileColumns,
		p.Name, p.Description, p.Type)
	return scanProfileRow(row, fmt.Sprintf("profile %q", p.Name))
}

// AssignPermissionSet links a permission set to a profile, ignoring
// duplicate pairs.
func (r *Repository) AssignPermissionSet(ctx context.Context, profileID, permissionSetID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO profile_permission_sets (profile_id, permission_set_id) VALUES ($1, $2) ON CONFLICT (profile_id, permission_set_id) DO NOTHING`,
		profileID, permissionSetID)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: profile %d or permission set %d", shared.ErrNotFound, profileID, permissionSetID)
	}
	return err
}

// UnassignPermissionSet removes a single profile/permission-set pair.
func (r *Repository) UnassignPermissionSet(ctx context.Context, profileID, permissionSetID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM profile_permission_sets WHERE profile_id = $1 AND permission_set_id = $2`,
		profileID, permissionSetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: permission set %d is not assigned to profile %d", shared.ErrNotFound, permissionSetID, profileID)
	}
	return nil
}

// AssignUser upserts the single-profile assignment for a user; the latest
// profile wins.
func (r *Repository) AssignUser(ctx context.Context, userID string, profileID int64) (UserAssignment, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO user_profiles (user_id, profile_id) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET profile_id = EXCLUDED.profile_id
		 RETURNING id, user_id, profile_id`,
		userID, profileID)
	var assignment UserAssignment
	if err := row.Scan(&assignment.ID, &assignment.UserID, &assignment.ProfileID); err != nil {
		if isForeignKeyViolation(err) {
			return UserAssignment{}, fmt.Errorf("%w: profile %d", shared.ErrNotFound, profileID)
		}
		return UserAssignment{}, err
	}
	return assignment, nil
}

// RemoveAllUsers deletes every user assignment for the profile and returns
// the number of rows removed.
func (r *Repository) RemoveAllUsers(ctx context.Context, profileID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_profiles WHERE profile_id = $1`, profileID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountUsers returns the number of user assignments remaining for the
// profile.
func (r *Repository) CountUsers(ctx context.Context, profileID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_profiles WHERE profile_id = $1`, profileID).Scan(&count)
	return count, err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetProfileByNameForUpdate(ctx context.Context, name string) (Profile, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE name = $1 FOR UPDATE`, name)
	return scanProfileRow(row, fmt.Sprintf("profile %q", name))
}

func (r *txRepository) CountAssignedUsers(ctx context.Context, profileID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM user_profiles WHERE profile_id = $1`, profileID).Scan(&count)
	return count, err
}

func (r *txRepository) DeleteProfile(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: profile %d", shared.ErrNotFound, id)
	}
	return nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var profile Profile
	err := row.Scan(&profile.ID, &profile.Name, &profile.Description, &profile.Type, &profile.CreatedAt, &profile.UpdatedAt)
	return profile, err
}

func scanProfileRow(row pgx.Row, desc string) (Profile, error) {
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, fmt.Errorf("%w: %s", shared.ErrNotFound, desc)
		}
		return Profile{}, err
	}
	return profile, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
