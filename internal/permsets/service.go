package permsets

import (
	"context"
	"fmt"

	"github.com/stewardhq/steward/internal/shared"
)

// RepositoryPort defines data access methods for permission sets.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPermissionSets(ctx context.Context) ([]PermissionSet, error)
	GetPermissionSet(ctx context.Context, id int64) (PermissionSet, error)
	GetPermissionSetByName(ctx context.Context, name string) (PermissionSet, error)
	CreatePermissionSet(ctx context.Context, p CreatePermissionSetParams) (PermissionSet, error)
	UpdatePermissionSet(ctx context.Context, p UpdatePermissionSetParams) (PermissionSet, error)
	ListFieldGrants(ctx context.Context, setID int64) ([]FieldGrant, error)
	UpdateFieldAccess(ctx context.Context, setID, fieldAccessID int64, canView, canEdit bool) (FieldGrant, error)
	DeleteFieldAccess(ctx context.Context, setID, fieldAccessID int64) error
	ListTableCountDrift(ctx context.Context) ([]TableCountCorrection, error)
	SetTableCount(ctx context.Context, setID int64, count int) error
	DeleteOrphanFieldAccess(ctx context.Context) (int64, error)
}

// TxRepository exposes the operations available inside a transactional
// sequence (guarded delete, field upsert, grant wipe).
type TxRepository interface {
	GetPermissionSetForUpdate(ctx context.Context, id int64) (PermissionSet, error)
	GetPermissionSetByNameForUpdate(ctx context.Context, name string) (PermissionSet, error)
	CountAssignedProfiles(ctx context.Context, setID int64) (int64, error)
	GetOrCreateTableAccess(ctx context.Context, setID int64, tableName string) (TableAccess, bool, error)
	AdjustTableCount(ctx context.Context, setID int64, delta int) error
	UpsertFieldAccess(ctx context.Context, tableAccessID int64, fieldName string, canView, canEdit bool) (FieldAccess, error)
	RemoveProfileAssignments(ctx context.Context, setID int64) (int64, error)
	DeleteFieldAccessForSet(ctx context.Context, setID int64) (int64, error)
	DeleteTableAccessForSet(ctx context.Context, setID int64) (int64, error)
	ResetTableCount(ctx context.Context, setID int64) error
	DeletePermissionSet(ctx context.Context, id int64) error
}

// Service handles permission-set business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns all permission sets.
func (s *Service) List(ctx context.Context) ([]PermissionSet, error) {
	return s.repo.ListPermissionSets(ctx)
}

// Get fetches a permission set by ID.
func (s *Service) Get(ctx context.Context, id int64) (PermissionSet, error) {
	return s.repo.GetPermissionSet(ctx, id)
}

// Create inserts a new permission set.
func (s *Service) Create(ctx context.Context, p CreatePermissionSetParams) (PermissionSet, error) {
	p.Name = shared.NormalizeName(p.Name)
	if p.Name == "" {
		return PermissionSet{}, fmt.Errorf("%w: permission set name is required", shared.ErrValidation)
	}
	return s.repo.CreatePermissionSet(ctx, p)
}

// Update replaces the mutable fields of the set identified by name.
func (s *Service) Update(ctx context.Context, p UpdatePermissionSetParams) (PermissionSet, error) {
	p.Name = shared.NormalizeName(p.Name)
	if p.Name == "" {
		return PermissionSet{}, fmt.Errorf("%w: permission set name is required", shared.ErrValidation)
	}
	return s.repo.UpdatePermissionSet(ctx, p)
}

// Delete removes the permission set identified by name. The delete is
// blocked while any profile still references the set. Access rows are
// removed in the same transaction.
func (s *Service) Delete(ctx context.Context, name string) (int64, error) {
	name = shared.NormalizeName(name)
	if name == "" {
		return 0, fmt.Errorf("%w: permission set name is required", shared.ErrValidation)
	}
	var deletedID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		set, err := tx.GetPermissionSetByNameForUpdate(ctx, name)
		if err != nil {
			return err
		}
		count, err := tx.CountAssignedProfiles(ctx, set.ID)
		if err != nil {
			return fmt.Errorf("%w: count assigned profiles: %v", shared.ErrUpstream, err)
		}
		if count > 0 {
			return fmt.Errorf("%w: cannot delete permission set %q: assigned to %d profile(s); unassign them first", shared.ErrConflict, set.Name, count)
		}
		if _, err := tx.DeleteFieldAccessForSet(ctx, set.ID); err != nil {
			return err
		}
		if _, err := tx.DeleteTableAccessForSet(ctx, set.ID); err != nil {
			return err
		}
		if err := tx.DeletePermissionSet(ctx, set.ID); err != nil {
			return err
		}
		deletedID = set.ID
		return nil
	})
	return deletedID, err
}

// UpsertFieldInput carries one field grant.
type UpsertFieldInput struct {
	PermissionSetID int64
	TableName       string
	FieldName       string
	CanView         bool
	CanEdit         bool
}

// UpsertField grants field-level access within a permission set. The owning
// table access is created on demand and table_count is bumped in the same
// transaction. Repeated calls with the same input converge to one
// TableAccess row and one FieldAccess row holding the latest flags.
func (s *Service) UpsertField(ctx context.Context, in UpsertFieldInput) (FieldGrant, error) {
	in.TableName = shared.NormalizeName(in.TableName)
	in.FieldName = shared.NormalizeName(in.FieldName)
	if in.TableName == "" {
		return FieldGrant{}, fmt.Errorf("%w: table name is required", shared.ErrValidation)
	}
	if in.FieldName == "" {
		return FieldGrant{}, fmt.Errorf("%w: field name is required", shared.ErrValidation)
	}
	var grant FieldGrant
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ta, created, err := tx.GetOrCreateTableAccess(ctx, in.PermissionSetID, in.TableName)
		if err != nil {
			return err
		}
		if created {
			if err := tx.AdjustTableCount(ctx, in.PermissionSetID, 1); err != nil {
				return err
			}
		}
		fa, err := tx.UpsertFieldAccess(ctx, ta.ID, in.FieldName, in.CanView, in.CanEdit)
		if err != nil {
			return err
		}
		grant = FieldGrant{FieldAccess: fa, TableName: ta.TableName}
		return nil
	})
	return grant, err
}

// ListFields returns the flattened field grants of a permission set.
func (s *Service) ListFields(ctx context.Context, setID int64) ([]FieldGrant, error) {
	if _, err := s.repo.GetPermissionSet(ctx, setID); err != nil {
		return nil, err
	}
	return s.repo.ListFieldGrants(ctx, setID)
}

// UpdateField overwrites one field access's view/edit flags by its id.
func (s *Service) UpdateField(ctx context.Context, setID, fieldAccessID int64, canView, canEdit bool) (FieldGrant, error) {
	return s.repo.UpdateFieldAccess(ctx, setID, fieldAccessID, canView, canEdit)
}

// DeleteField removes one field access row.
func (s *Service) DeleteField(ctx context.Context, setID, fieldAccessID int64) error {
	return s.repo.DeleteFieldAccess(ctx, setID, fieldAccessID)
}

// ResetGrants wipes everything hanging off a permission set: all profile
// assignments, then every field and table access row, resetting
// table_count. The wipe is permission-set scoped, not per profile, because
// access rows hang off the set itself. Returns the prior profile count.
func (s *Service) ResetGrants(ctx context.Context, setID int64) (ResetResult, error) {
	var result ResetResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		set, err := tx.GetPermissionSetForUpdate(ctx, setID)
		if err != nil {
			return err
		}
		profiles, err := tx.RemoveProfileAssignments(ctx, set.ID)
		if err != nil {
			return fmt.Errorf("%w: remove profile assignments: %v", shared.ErrUpstream, err)
		}
		fields, err := tx.DeleteFieldAccessForSet(ctx, set.ID)
		if err != nil {
			return fmt.Errorf("%w: delete field access: %v", shared.ErrUpstream, err)
		}
		tables, err := tx.DeleteTableAccessForSet(ctx, set.ID)
		if err != nil {
			return fmt.Errorf("%w: delete table access: %v", shared.ErrUpstream, err)
		}
		if err := tx.ResetTableCount(ctx, set.ID); err != nil {
			return fmt.Errorf("%w: reset table count: %v", shared.ErrUpstream, err)
		}
		result = ResetResult{ProfilesRemoved: profiles, TablesRemoved: tables, FieldsRemoved: fields}
		return nil
	})
	return result, err
}

// ReconcileTableCounts recomputes table_count for every drifted set and
// returns the corrections applied. Run periodically by the worker.
func (s *Service) ReconcileTableCounts(ctx context.Context) ([]TableCountCorrection, error) {
	drifts, err := s.repo.ListTableCountDrift(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list table count drift: %v", shared.ErrUpstream, err)
	}
	for _, d := range drifts {
		if err := s.repo.SetTableCount(ctx, d.PermissionSetID, d.Actual); err != nil {
			return nil, fmt.Errorf("%w: fix table count for set %d: %v", shared.ErrUpstream, d.PermissionSetID, err)
		}
	}
	return drifts, nil
}

// SweepOrphanFieldAccess deletes field access rows that lost their parent
// table access. Returns the number removed.
func (s *Service) SweepOrphanFieldAccess(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteOrphanFieldAccess(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: sweep orphan field access: %v", shared.ErrUpstream, err)
	}
	return removed, nil
}
