package permsets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type tableKey struct {
	setID     int64
	tableName string
}

type fieldKey struct {
	tableAccessID int64
	fieldName     string
}

type mockRepository struct {
	sets       map[int64]*PermissionSet
	setsByName map[string]*PermissionSet
	nextSetID  int64

	tables      map[int64]*TableAccess
	tablesByKey map[tableKey]int64
	nextTableID int64

	fields      map[int64]*FieldAccess
	fieldsByKey map[fieldKey]int64
	nextFieldID int64

	// profile_permission_sets: setID -> set of profile IDs
	profileAssignments map[int64]map[int64]bool

	drift []TableCountCorrection

	txError            error
	adjustCountError   error
	setTableCountError error
	sweepError         error
	sweepRemoved       int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		sets:               make(map[int64]*PermissionSet),
		setsByName:         make(map[string]*PermissionSet),
		tables:             make(map[int64]*TableAccess),
		tablesByKey:        make(map[tableKey]int64),
		fields:             make(map[int64]*FieldAccess),
		fieldsByKey:        make(map[fieldKey]int64),
		profileAssignments: make(map[int64]map[int64]bool),
		nextSetID:          1,
		nextTableID:        1,
		nextFieldID:        1,
	}
}

func (m *mockRepository) addSet(name string) PermissionSet {
	s := PermissionSet{ID: m.nextSetID, Name: name}
	m.nextSetID++
	m.sets[s.ID] = &s
	m.setsByName[s.Name] = &s
	return s
}

func (m *mockRepository) tableCountOf(setID int64) int {
	n := 0
	for _, ta := range m.tables {
		if ta.PermissionSetID == setID {
			n++
		}
	}
	return n
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) ListPermissionSets(ctx context.Context) ([]PermissionSet, error) {
	out := make([]PermissionSet, 0, len(m.sets))
	for _, s := range m.sets {
		out = append(out, *s)
	}
	return out, nil
}

func (m *mockRepository) GetPermissionSet(ctx context.Context, id int64) (PermissionSet, error) {
	s, ok := m.sets[id]
	if !ok {
		return PermissionSet{}, shared.ErrNotFound
	}
	return *s, nil
}

func (m *mockRepository) GetPermissionSetByName(ctx context.Context, name string) (PermissionSet, error) {
	s, ok := m.setsByName[name]
	if !ok {
		return PermissionSet{}, shared.ErrNotFound
	}
	return *s, nil
}

func (m *mockRepository) CreatePermissionSet(ctx context.Context, p CreatePermissionSetParams) (PermissionSet, error) {
	if _, exists := m.setsByName[p.Name]; exists {
		return PermissionSet{}, shared.ErrConflict
	}
	s := m.addSet(p.Name)
	s.Description = p.Description
	m.sets[s.ID].Description = p.Description
	return s, nil
}

func (m *mockRepository) UpdatePermissionSet(ctx context.Context, p UpdatePermissionSetParams) (PermissionSet, error) {
	s, ok := m.setsByName[p.Name]
	if !ok {
		return PermissionSet{}, shared.ErrNotFound
	}
	s.Description = p.Description
	return *s, nil
}

func (m *mockRepository) ListFieldGrants(ctx context.Context, setID int64) ([]FieldGrant, error) {
	var out []FieldGrant
	for _, fa := range m.fields {
		ta, ok := m.tables[fa.TableAccessID]
		if !ok || ta.PermissionSetID != setID {
			continue
		}
		out = append(out, FieldGrant{FieldAccess: *fa, TableName: ta.TableName})
	}
	return out, nil
}

func (m *mockRepository) UpdateFieldAccess(ctx context.Context, setID, fieldAccessID int64, canView, canEdit bool) (FieldGrant, error) {
	fa, ok := m.fields[fieldAccessID]
	if !ok {
		return FieldGrant{}, shared.ErrNotFound
	}
	ta := m.tables[fa.TableAccessID]
	if ta == nil || ta.PermissionSetID != setID {
		return FieldGrant{}, shared.ErrNotFound
	}
	fa.CanView = canView
	fa.CanEdit = canEdit
	return FieldGrant{FieldAccess: *fa, TableName: ta.TableName}, nil
}

func (m *mockRepository) DeleteFieldAccess(ctx context.Context, setID, fieldAccessID int64) error {
	fa, ok := m.fields[fieldAccessID]
	if !ok {
		return shared.ErrNotFound
	}
	ta := m.tables[fa.TableAccessID]
	if ta == nil || ta.PermissionSetID != setID {
		return shared.ErrNotFound
	}
	delete(m.fieldsByKey, fieldKey{fa.TableAccessID, fa.FieldName})
	delete(m.fields, fieldAccessID)
	return nil
}

func (m *mockRepository) ListTableCountDrift(ctx context.Context) ([]TableCountCorrection, error) {
	return m.drift, nil
}

func (m *mockRepository) SetTableCount(ctx context.Context, setID int64, count int) error {
	if m.setTableCountError != nil {
		return m.setTableCountError
	}
	s, ok := m.sets[setID]
	if !ok {
		return shared.ErrNotFound
	}
	s.TableCount = count
	return nil
}

func (m *mockRepository) DeleteOrphanFieldAccess(ctx context.Context) (int64, error) {
	if m.sweepError != nil {
		return 0, m.sweepError
	}
	return m.sweepRemoved, nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) GetPermissionSetForUpdate(ctx context.Context, id int64) (PermissionSet, error) {
	return t.mock.GetPermissionSet(ctx, id)
}

func (t *mockTxRepo) GetPermissionSetByNameForUpdate(ctx context.Context, name string) (PermissionSet, error) {
	return t.mock.GetPermissionSetByName(ctx, name)
}

func (t *mockTxRepo) CountAssignedProfiles(ctx context.Context, setID int64) (int64, error) {
	return int64(len(t.mock.profileAssignments[setID])), nil
}

func (t *mockTxRepo) GetOrCreateTableAccess(ctx context.Context, setID int64, tableName string) (TableAccess, bool, error) {
	if _, ok := t.mock.sets[setID]; !ok {
		return TableAccess{}, false, shared.ErrNotFound
	}
	key := tableKey{setID, tableName}
	if id, ok := t.mock.tablesByKey[key]; ok {
		return *t.mock.tables[id], false, nil
	}
	ta := TableAccess{ID: t.mock.nextTableID, PermissionSetID: setID, TableName: tableName}
	t.mock.nextTableID++
	t.mock.tables[ta.ID] = &ta
	t.mock.tablesByKey[key] = ta.ID
	return ta, true, nil
}

func (t *mockTxRepo) AdjustTableCount(ctx context.Context, setID int64, delta int) error {
	if t.mock.adjustCountError != nil {
		return t.mock.adjustCountError
	}
	s, ok := t.mock.sets[setID]
	if !ok {
		return shared.ErrNotFound
	}
	s.TableCount += delta
	return nil
}

func (t *mockTxRepo) UpsertFieldAccess(ctx context.Context, tableAccessID int64, fieldName string, canView, canEdit bool) (FieldAccess, error) {
	key := fieldKey{tableAccessID, fieldName}
	if id, ok := t.mock.fieldsByKey[key]; ok {
		fa := t.mock.fields[id]
		fa.CanView = canView
		fa.CanEdit = canEdit
		return *fa, nil
	}
	fa := FieldAccess{ID: t.mock.nextFieldID, TableAccessID: tableAccessID, FieldName: fieldName, CanView: canView, CanEdit: canEdit}
	t.mock.nextFieldID++
	t.mock.fields[fa.ID] = &fa
	t.mock.fieldsByKey[key] = fa.ID
	return fa, nil
}

func (t *mockTxRepo) RemoveProfileAssignments(ctx context.Context, setID int64) (int64, error) {
	removed := int64(len(t.mock.profileAssignments[setID]))
	delete(t.mock.profileAssignments, setID)
	return removed, nil
}

func (t *mockTxRepo) DeleteFieldAccessForSet(ctx context.Context, setID int64) (int64, error) {
	var removed int64
	for id, fa := range t.mock.fields {
		ta := t.mock.tables[fa.TableAccessID]
		if ta != nil && ta.PermissionSetID == setID {
			delete(t.mock.fieldsByKey, fieldKey{fa.TableAccessID, fa.FieldName})
			delete(t.mock.fields, id)
			removed++
		}
	}
	return removed, nil
}

func (t *mockTxRepo) DeleteTableAccessForSet(ctx context.Context, setID int64) (int64, error) {
	var removed int64
	for id, ta := range t.mock.tables {
		if ta.PermissionSetID == setID {
			delete(t.mock.tablesByKey, tableKey{setID, ta.TableName})
			delete(t.mock.tables, id)
			removed++
		}
	}
	return removed, nil
}

func (t *mockTxRepo) ResetTableCount(ctx context.Context, setID int64) error {
	s, ok := t.mock.sets[setID]
	if !ok {
		return shared.ErrNotFound
	}
	s.TableCount = 0
	return nil
}

func (t *mockTxRepo) DeletePermissionSet(ctx context.Context, id int64) error {
	s, ok := t.mock.sets[id]
	if !ok {
		return shared.ErrNotFound
	}
	delete(t.mock.setsByName, s.Name)
	delete(t.mock.sets, id)
	return nil
}

// ============================================================================
// TESTS
// ============================================================================

func TestUpsertFieldCreatesTableAccessOnDemand(t *testing.T) {
	repo := newMockRepository()
	set := repo.addSet("reporting")
	svc := NewService(repo)

	grant, err := svc.UpsertField(context.Background(), UpsertFieldInput{
		PermissionSetID: set.ID,
		TableName:       "orders",
		FieldName:       "total",
		CanView:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, "orders", grant.TableName)
	assert.Equal(t, "total", grant.FieldName)
	assert.True(t, grant.CanView)
	assert.False(t, grant.CanEdit)
	assert.Equal(t, 1, repo.sets[set.ID].TableCount)
}

func TestUpsertFieldIsIdempotent(t *testing.T) {
	repo := newMockRepository()
	set := repo.addSet("reporting")
	svc := NewService(repo)
	in := UpsertFieldInput{PermissionSetID: set.ID, TableName: "orders", FieldName: "total", CanView: true}

	first, err := svc.UpsertField(context.Background(), in)
	require.NoError(t, err)

	in.CanEdit = true
	second, err := svc.UpsertField(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "repeated upsert converges to one row")
	assert.True(t, second.CanEdit, "latest flags win")
	assert.Len(t, repo.tables, 1)
	assert.Len(t, repo.fields, 1)
	assert.Equal(t, 1, repo.sets[set.ID].TableCount, "table_count bumps only on creation")
}

func TestUpsertFieldsShareTableAccess(t *testing.T) {
	repo := newMockRepository()
	set := repo.addSet("reporting")
	svc := NewService(repo)

	a, err := svc.UpsertField(context.Background(), UpsertFieldInput{PermissionSetID: set.ID, TableName: "orders", FieldName: "total", CanView: true})
	require.NoError(t, err)
	b, err := svc.UpsertField(context.Background(), UpsertFieldInput{PermissionSetID: set.ID, TableName: "orders", FieldName: "status", CanView: true, CanEdit: true})
	require.NoError(t, err)

	assert.Equal(t, a.TableAccessID, b.TableAccessID)
	assert.Len(t, repo.tables, 1)
	assert.Equal(t, 1, repo.sets[set.ID].TableCount)
}

func TestUpsertFieldUnknownSetNotFound(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.UpsertField(context.Background(), UpsertFieldInput{PermissionSetID: 99, TableName: "orders", FieldName: "total"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpsertFieldRequiresNames(t *testing.T) {
	repo := newMockRepository()
	set := repo.addSet("reporting")
	svc := NewService(repo)

	_, err := svc.UpsertField(context.Background(), UpsertFieldInput{PermissionSetID: set.ID, TableName: "  ", FieldName: "total"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.UpsertField(context.Background(), UpsertFieldInput{PermissionSetID: set.ID, TableName: "orders", FieldName: ""})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeleteSetBlockedByAssignedProfiles(t *testing.T) {
	repo := newMockRepository()
	set := repo.addSet("reporting")
	repo.profileAssignments[set.ID] = map[int64]bool{1: true, 2: true}
	svc := NewService(repo)

	_, err := svc.Delete(context.Background(), "reporting")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Contains(t, err.Error(), "assigned to 2 profile(s)")
	_, exists := repo.setsByName["reporting"]
	assert.True(t, exists)
}

func TestDeleteSetRemovesAccessRows(t *testing.T) {
	repo := newMockRepository()
	set := repo.addSet("reporting")
	svc := NewService(repo)
	_, err := svc.UpsertField(context.Background(), UpsertFieldInput{PermissionSetID: set.ID, TableName: "orders", FieldName: "total", CanView: true})
	require.NoError(t, err)

	deletedID, err := svc.Delete(context.Background(), "reporting")
	require.NoError(t, err)
	assert.Equal(t, set.ID, deletedID)
	assert.Empty(t, repo.tables)
	assert.Empty(t, repo.fields)
}

func TestDeleteUnknownSetNotFound(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.Delete(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestResetGrantsWipesEverything(t *testing.T) {
	repo := newMockRepository()
	set := repo.addSet("reporting")
	repo.profileAssignments[set.ID] = map[int64]bool{1: true, 2: true, 3: true}
	svc := NewService(repo)

	for _, in := range []UpsertFieldInput{
		{PermissionSetID: set.ID, TableName: "orders", FieldName: "total", CanView: true},
		{PermissionSetID: set.ID, TableName: "orders", FieldName: "status", CanView: true},
		{PermissionSetID: set.ID, TableName: "customers", FieldName: "email", CanView: true, CanEdit: true},
	} {
		_, err := svc.UpsertField(context.Background(), in)
		require.NoError(t, err)
	}
	require.Equal(t, 2, repo.sets[set.ID].TableCount)

	result, err := svc.ResetGrants(context.Background(), set.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.ProfilesRemoved)
	assert.Equal(t, int64(2), result.TablesRemoved)
	assert.Equal(t, int64(3), result.FieldsRemoved)
	assert.Zero(t, repo.sets[set.ID].TableCount)
	assert.Empty(t, repo.tables)
	assert.Empty(t, repo.fields)
	_, exists := repo.sets[set.ID]
	assert.True(t, exists, "the set itself survives the wipe")
}

func TestResetGrantsUnknownSetNotFound(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.ResetGrants(context.Background(), 99)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListFieldsUnknownSetNotFound(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.ListFields(context.Background(), 99)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReconcileTableCountsAppliesCorrections(t *testing.T) {
	repo := newMockRepository()
	set := repo.addSet("reporting")
	repo.sets[set.ID].TableCount = 5
	repo.drift = []TableCountCorrection{{PermissionSetID: set.ID, Stored: 5, Actual: 2}}
	svc := NewService(repo)

	corrections, err := svc.ReconcileTableCounts(context.Background())
	require.NoError(t, err)
	require.Len(t, corrections, 1)
	assert.Equal(t, 2, repo.sets[set.ID].TableCount)
}

func TestReconcileTableCountsNoDrift(t *testing.T) {
	svc := NewService(newMockRepository())

	corrections, err := svc.ReconcileTableCounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, corrections)
}

func TestReconcileTableCountsWriteFailureIsUpstream(t *testing.T) {
	repo := newMockRepository()
	set := repo.addSet("reporting")
	repo.drift = []TableCountCorrection{{PermissionSetID: set.ID, Stored: 5, Actual: 2}}
	repo.setTableCountError = errors.New("statement timeout")
	svc := NewService(repo)

	_, err := svc.ReconcileTableCounts(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrUpstream)
}

func TestSweepOrphanFieldAccess(t *testing.T) {
	repo := newMockRepository()
	repo.sweepRemoved = 4
	svc := NewService(repo)

	removed, err := svc.SweepOrphanFieldAccess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)
}

func TestSweepOrphanFieldAccessFailureIsUpstream(t *testing.T) {
	repo := newMockRepository()
	repo.sweepError = errors.New("connection reset")
	svc := NewService(repo)

	_, err := svc.SweepOrphanFieldAccess(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrUpstream)
}
