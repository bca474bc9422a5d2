package roles

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stewardhq/steward/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, p CreateRoleParams) (Role, error)
	UpdateRole(ctx context.Context, p UpdateRoleParams) (Role, error)
	IsDescendant(ctx context.Context, roleID, candidateID int64) (bool, error)
	AssignUser(ctx context.Context, userID string, roleID int64) error
	AssignPermissionSet(ctx context.Context, roleID, permissionSetID int64) error
	RemoveAllPermissionSets(ctx context.Context, roleID int64) (int64, error)
	CountPermissionSets(ctx context.Context, roleID int64) (int64, error)
}

// TxRepository exposes the operations available inside a guarded delete.
type TxRepository interface {
	GetRoleByNameForUpdate(ctx context.Context, name string) (Role, error)
	CountAssignedUsers(ctx context.Context, roleID int64) (int64, error)
	DeleteRole(ctx context.Context, id int64) error
}

// Service handles role business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// Get fetches a role by ID.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// Create inserts a new role after normalizing its name.
func (s *Service) Create(ctx context.Context, p CreateRoleParams) (Role, error) {
	p.Name = shared.NormalizeName(p.Name)
	if p.Name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", shared.ErrValidation)
	}
	return s.repo.CreateRole(ctx, p)
}

// Update replaces all mutable fields of the role identified by name. A new
// parent is rejected when it would make the role an ancestor of itself.
func (s *Service) Update(ctx context.Context, p UpdateRoleParams) (Role, error) {
	p.Name = shared.NormalizeName(p.Name)
	if p.Name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", shared.ErrValidation)
	}
	if p.ParentID != nil {
		role, err := s.repo.GetRoleByName(ctx, p.Name)
		if err != nil {
			return Role{}, err
		}
		if *p.ParentID == role.ID {
			return Role{}, fmt.Errorf("%w: role %q cannot be its own parent", shared.ErrValidation, p.Name)
		}
		descendant, err := s.repo.IsDescendant(ctx, role.ID, *p.ParentID)
		if err != nil {
			return Role{}, fmt.Errorf("%w: check role hierarchy: %v", shared.ErrUpstream, err)
		}
		if descendant {
			return Role{}, fmt.Errorf("%w: parent %d is a descendant of role %q", shared.ErrValidation, *p.ParentID, p.Name)
		}
	}
	return s.repo.UpdateRole(ctx, p)
}

// Delete removes the role identified by name after the guard checks pass.
// The lookup, dependent count, and delete run in one transaction holding a
// row lock on the role, so the count cannot go stale. Returns the deleted id.
func (s *Service) Delete(ctx context.Context, name string) (int64, error) {
	name = shared.NormalizeName(name)
	if name == "" {
		return 0, fmt.Errorf("%w: role name is required", shared.ErrValidation)
	}
	var deletedID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.GetRoleByNameForUpdate(ctx, name)
		if err != nil {
			return err
		}
		if role.Name == ProtectedRoleName {
			return fmt.Errorf("%w: role %q is a protected system role", shared.ErrForbidden, role.Name)
		}
		count, err := tx.CountAssignedUsers(ctx, role.ID)
		if err != nil {
			return fmt.Errorf("%w: count assigned users: %v", shared.ErrUpstream, err)
		}
		if count > 0 {
			return fmt.Errorf("%w: cannot delete role %q: %d user(s) still assigned; remove the assignments first", shared.ErrConflict, role.Name, count)
		}
		if err := tx.DeleteRole(ctx, role.ID); err != nil {
			return err
		}
		deletedID = role.ID
		return nil
	})
	return deletedID, err
}

// AssignUser links an identity-provider subject to a role.
func (s *Service) AssignUser(ctx context.Context, userID string, roleID int64) error {
	if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("%w: user id must be a UUID", shared.ErrValidation)
	}
	return s.repo.AssignUser(ctx, userID, roleID)
}

// AssignPermissionSet links a permission set to a role.
func (s *Service) AssignPermissionSet(ctx context.Context, roleID, permissionSetID int64) error {
	return s.repo.AssignPermissionSet(ctx, roleID, permissionSetID)
}

// RemoveAllPermissionSets bulk-deletes the role's permission-set links and
// re-queries afterwards to confirm none remain before reporting success.
func (s *Service) RemoveAllPermissionSets(ctx context.Context, roleID int64) (int64, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return 0, err
	}
	removed, err := s.repo.RemoveAllPermissionSets(ctx, roleID)
	if err != nil {
		return 0, fmt.Errorf("%w: remove permission sets: %v", shared.ErrUpstream, err)
	}
	remaining, err := s.repo.CountPermissionSets(ctx, roleID)
	if err != nil {
		return 0, fmt.Errorf("%w: verify removal: %v", shared.ErrUpstream, err)
	}
	if remaining != 0 {
		return 0, fmt.Errorf("%w: bulk removal left %d assignment(s) behind", shared.ErrUpstream, remaining)
	}
	return removed, nil
}
