package profiles

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stewardhq/steward/internal/shared"
)

// RepositoryPort defines data access methods for profiles.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListProfiles(ctx context.Context) ([]Profile, error)
	GetProfile(ctx context.Context, id int64) (Profile, error)
	GetProfileByName(ctx context.Context, name string) (Profile, error)
	CreateProfile(ctx context.Context, p CreateProfileParams) (Profile, error)
	UpdateProfile(ctx context.Context, p UpdateProfileParams) (Profile, error)
	AssignPermissionSet(ctx context.Context, profileID, permissionSetID int64) error
	UnassignPermissionSet(ctx context.Context, profileID, permissionSetID int64) error
	AssignUser(ctx context.Context, userID string, profileID int64) (UserAssignment, error)
	RemoveAllUsers(ctx context.Context, profileID int64) (int64, error)
	CountUsers(ctx context.Context, profileID int64) (int64, error)
}

// TxRepository exposes the operations available inside a guarded delete.
type TxRepository interface {
	GetProfileByNameForUpdate(ctx context.Context, name string) (Profile, error)
	CountAssignedUsers(ctx context.Context, profileID int64) (int64, error)
	DeleteProfile(ctx context.Context, id int64) error
}

// Service handles profile business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns all profiles.
func (s *Service) List(ctx context.Context) ([]Profile, error) {
	return s.repo.ListProfiles(ctx)
}

// Get fetches a profile by ID.
func (s *Service) Get(ctx context.Context, id int64) (Profile, error) {
	return s.repo.GetProfile(ctx, id)
}

// Create inserts a new profile. The type defaults to Standard.
func (s *Service) Create(ctx context.Context, p CreateProfileParams) (Profile, error) {
	p.Name = shared.NormalizeName(p.Name)
	if p.Name == "" {
		return Profile{}, fmt.Errorf("%w: profile name is required", shared.ErrValidation)
	}
	if p.Type == "" {
		p.Type = TypeStandard
	}
	if p.Type != TypeSystem && p.Type != TypeStandard {
		return Profile{}, fmt.Errorf("%w: profile type must be %q or %q", shared.ErrValidation, TypeSystem, TypeStandard)
	}
	return s.repo.CreateProfile(ctx, p)
}

// Update replaces all mutable fields of the profile identified by name.
func (s *Service) Update(ctx context.Context, p UpdateProfileParams) (Profile, error) {
	p.Name = shared.NormalizeName(p.Name)
	if p.Name == "" {
		return Profile{}, fmt.Errorf("%w: profile name is required", shared.ErrValidation)
	}
	if p.Type != TypeSystem && p.Type != TypeStandard {
		return Profile{}, fmt.Errorf("%w: profile type must be %q or %q", shared.ErrValidation, TypeSystem, TypeStandard)
	}
	return s.repo.UpdateProfile(ctx, p)
}

// Delete removes the profile identified by name after the guard checks
// pass. System profiles are rejected regardless of dependent count. The
// lookup, count, and delete share a transaction with a row lock.
func (s *Service) Delete(ctx context.Context, name string) (int64, error) {
	name = shared.NormalizeName(name)
	if name == "" {
		return 0, fmt.Errorf("%w: profile name is required", shared.ErrValidation)
	}
	var deletedID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		profile, err := tx.GetProfileByNameForUpdate(ctx, name)
		if err != nil {
			return err
		}
		if profile.Type == TypeSystem {
			return fmt.Errorf("%w: profile %q is a system profile", shared.ErrForbidden, profile.Name)
		}
		count, err := tx.CountAssignedUsers(ctx, profile.ID)
		if err != nil {
			return fmt.Errorf("%w: count assigned users: %v", shared.ErrUpstream, err)
		}
		if count > 0 {
			return fmt.Errorf("%w: cannot delete profile %q: %d user(s) still assigned; remove the assignments first", shared.ErrConflict, profile.Name, count)
		}
		if err := tx.DeleteProfile(ctx, profile.ID); err != nil {
			return err
		}
		deletedID = profile.ID
		return nil
	})
	return deletedID, err
}

// AssignPermissionSet links a permission set to a profile; assigning the
// same pair twice is a no-op.
func (s *Service) AssignPermissionSet(ctx context.Context, profileID, permissionSetID int64) error {
	return s.repo.AssignPermissionSet(ctx, profileID, permissionSetID)
}

// UnassignPermissionSet removes a single profile/permission-set pair.
func (s *Service) UnassignPermissionSet(ctx context.Context, profileID, permissionSetID int64) error {
	return s.repo.UnassignPermissionSet(ctx, profileID, permissionSetID)
}

// AssignUser upserts a user's single profile assignment.
func (s *Service) AssignUser(ctx context.Context, userID string, profileID int64) (UserAssignment, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return UserAssignment{}, fmt.Errorf("%w: user id must be a UUID", shared.ErrValidation)
	}
	return s.repo.AssignUser(ctx, userID, profileID)
}

// RemoveAllUsers bulk-deletes the profile's user assignments, then
// re-queries to confirm zero remain. A bulk delete that silently leaves
// rows behind is reported as an upstream failure, not success.
func (s *Service) RemoveAllUsers(ctx context.Context, profileID int64) (int64, error) {
	if _, err := s.repo.GetProfile(ctx, profileID); err != nil {
		return 0, err
	}
	removed, err := s.repo.RemoveAllUsers(ctx, profileID)
	if err != nil {
		return 0, fmt.Errorf("%w: remove user assignments: %v", shared.ErrUpstream, err)
	}
	remaining, err := s.repo.CountUsers(ctx, profileID)
	if err != nil {
		return 0, fmt.Errorf("%w: verify removal: %v", shared.ErrUpstream, err)
	}
	if remaining != 0 {
		return 0, fmt.Errorf("%w: bulk removal left %d assignment(s) behind", shared.ErrUpstream, remaining)
	}
	return removed, nil
}
