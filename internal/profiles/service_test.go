package profiles

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

type mockRepository struct {
	profiles       map[int64]*Profile
	profilesByName map[string]*Profile
	nextProfileID  int64

	// user_profiles: userID -> profileID (one profile per user)
	userProfiles     map[string]int64
	nextAssignmentID int64

	// profile_permission_sets: profileID -> set of permission-set IDs
	permSets map[int64]map[int64]bool

	txError          error
	countUsersError  error
	removeUsersError error

	removeLeavesBehind bool
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		profiles:         make(map[int64]*Profile),
		profilesByName:   make(map[string]*Profile),
		userProfiles:     make(map[string]int64),
		permSets:         make(map[int64]map[int64]bool),
		nextProfileID:    1,
		nextAssignmentID: 1,
	}
}

func (m *mockRepository) addProfile(name, typ string) Profile {
	p := Profile{ID: m.nextProfileID, Name: name, Type: typ}
	m.nextProfileID++
	m.profiles[p.ID] = &p
	m.profilesByName[p.Name] = &p
	return p
}

func (m *mockRepository) countUsersOf(profileID int64) int64 {
	var n int64
	for _, pid := range m.userProfiles {
		if pid == profileID {
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

func (m *mockRepository) ListProfiles(ctx context.Context) ([]Profile, error) {
	out := make([]Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockRepository) GetProfile(ctx context.Context, id int64) (Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return Profile{}, shared.ErrNotFound
	}
	return *p, nil
}

func (m *mockRepository) GetProfileByName(ctx context.Context, name string) (Profile, error) {
	p, ok := m.profilesByName[name]
	if !ok {
		return Profile{}, shared.ErrNotFound
	}
	return *p, nil
}

func (m *mockRepository) CreateProfile(ctx context.Context, p CreateProfileParams) (Profile, error) {
	if _, exists := m.profilesByName[p.Name]; exists {
		return Profile{}, shared.ErrConflict
	}
	created := m.addProfile(p.Name, p.Type)
	created.Description = p.Description
	m.profiles[created.ID].Description = p.Description
	return created, nil
}

func (m *mockRepository) UpdateProfile(ctx context.Context, p UpdateProfileParams) (Profile, error) {
	existing, ok := m.profilesByName[p.Name]
	if !ok {
		return Profile{}, shared.ErrNotFound
	}
	existing.Description = p.Description
	existing.Type = p.Type
	return *existing, nil
}

func (m *mockRepository) AssignPermissionSet(ctx context.Context, profileID, permissionSetID int64) error {
	if _, ok := m.profiles[profileID]; !ok {
		return shared.ErrNotFound
	}
	if m.permSets[profileID] == nil {
		m.permSets[profileID] = make(map[int64]bool)
	}
	m.permSets[profileID][permissionSetID] = true
	return nil
}

func (m *mockRepository) UnassignPermissionSet(ctx context.Context, profileID, permissionSetID int64) error {
	if !m.permSets[profileID][permissionSetID] {
		return shared.ErrNotFound
	}
	delete(m.permSets[profileID], permissionSetID)
	return nil
}

func (m *mockRepository) AssignUser(ctx context.Context, userID string, profileID int64) (UserAssignment, error) {
	if _, ok := m.profiles[profileID]; !ok {
		return UserAssignment{}, shared.ErrNotFound
	}
	m.userProfiles[userID] = profileID
	a := UserAssignment{ID: m.nextAssignmentID, UserID: userID, ProfileID: profileID}
	m.nextAssignmentID++
	return a, nil
}

func (m *mockRepository) RemoveAllUsers(ctx context.Context, profileID int64) (int64, error) {
	if m.removeUsersError != nil {
		return 0, m.removeUsersError
	}
	removed := m.countUsersOf(profileID)
	if !m.removeLeavesBehind {
		for uid, pid := range m.userProfiles {
			if pid == profileID {
				delete(m.userProfiles, uid)
			}
		}
	}
	return removed, nil
}

func (m *mockRepository) CountUsers(ctx context.Context, profileID int64) (int64, error) {
	return m.countUsersOf(profileID), nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) GetProfileByNameForUpdate(ctx context.Context, name string) (Profile, error) {
	return t.mock.GetProfileByName(ctx, name)
}

func (t *mockTxRepo) CountAssignedUsers(ctx context.Context, profileID int64) (int64, error) {
	if t.mock.countUsersError != nil {
		return 0, t.mock.countUsersError
	}
	return t.mock.countUsersOf(profileID), nil
}

func (t *mockTxRepo) DeleteProfile(ctx context.Context, id int64) error {
	p, ok := t.mock.profiles[id]
	if !ok {
		return shared.ErrNotFound
	}
	delete(t.mock.profilesByName, p.Name)
	delete(t.mock.profiles, id)
	return nil
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateProfileDefaultsToStandard(t *testing.T) {
	svc := NewService(newMockRepository())

	profile, err := svc.Create(context.Background(), CreateProfileParams{Name: "Support"})
	require.NoError(t, err)
	assert.Equal(t, TypeStandard, profile.Type)
}

func TestCreateProfileRejectsUnknownType(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.Create(context.Background(), CreateProfileParams{Name: "Support", Type: "Custom"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeleteSystemProfileForbidden(t *testing.T) {
	repo := newMockRepository()
	repo.addProfile("System", TypeSystem)
	svc := NewService(repo)

	_, err := svc.Delete(context.Background(), "System")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	_, exists := repo.profilesByName["System"]
	assert.True(t, exists)
}

func TestDeleteProfileBlockedByAssignedUsers(t *testing.T) {
	repo := newMockRepository()
	profile := repo.addProfile("Support", TypeStandard)
	repo.userProfiles["0b6f3a88-1111-4e15-9c60-000000000001"] = profile.ID
	repo.userProfiles["0b6f3a88-1111-4e15-9c60-000000000002"] = profile.ID
	svc := NewService(repo)

	_, err := svc.Delete(context.Background(), "Support")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Contains(t, err.Error(), "2 user(s) still assigned")
}

func TestDeleteProfileSucceedsWhenUnassigned(t *testing.T) {
	repo := newMockRepository()
	profile := repo.addProfile("Support", TypeStandard)
	svc := NewService(repo)

	deletedID, err := svc.Delete(context.Background(), "Support")
	require.NoError(t, err)
	assert.Equal(t, profile.ID, deletedID)
	_, exists := repo.profilesByName["Support"]
	assert.False(t, exists)
}

func TestDeleteUnknownProfileNotFound(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.Delete(context.Background(), "Ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAssignUserUpsertsLatestProfile(t *testing.T) {
	repo := newMockRepository()
	first := repo.addProfile("Support", TypeStandard)
	second := repo.addProfile("Sales", TypeStandard)
	svc := NewService(repo)
	userID := "0b6f3a88-1111-4e15-9c60-000000000001"

	a1, err := svc.AssignUser(context.Background(), userID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, a1.ProfileID)

	a2, err := svc.AssignUser(context.Background(), userID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, a2.ProfileID)
	assert.Equal(t, second.ID, repo.userProfiles[userID], "reassignment replaces the previous profile")
}

func TestAssignUserValidatesUUID(t *testing.T) {
	repo := newMockRepository()
	profile := repo.addProfile("Support", TypeStandard)
	svc := NewService(repo)

	_, err := svc.AssignUser(context.Background(), "not-a-uuid", profile.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestRemoveAllUsersReportsCount(t *testing.T) {
	repo := newMockRepository()
	profile := repo.addProfile("Support", TypeStandard)
	repo.userProfiles["0b6f3a88-1111-4e15-9c60-000000000001"] = profile.ID
	repo.userProfiles["0b6f3a88-1111-4e15-9c60-000000000002"] = profile.ID
	svc := NewService(repo)

	removed, err := svc.RemoveAllUsers(context.Background(), profile.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Zero(t, repo.countUsersOf(profile.ID))
}

func TestRemoveAllUsersVerifiesCompletion(t *testing.T) {
	repo := newMockRepository()
	profile := repo.addProfile("Support", TypeStandard)
	repo.userProfiles["0b6f3a88-1111-4e15-9c60-000000000001"] = profile.ID
	repo.removeLeavesBehind = true
	svc := NewService(repo)

	_, err := svc.RemoveAllUsers(context.Background(), profile.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrUpstream)
}

func TestRemoveAllUsersRepositoryFailureIsUpstream(t *testing.T) {
	repo := newMockRepository()
	profile := repo.addProfile("Support", TypeStandard)
	repo.removeUsersError = errors.New("connection reset")
	svc := NewService(repo)

	_, err := svc.RemoveAllUsers(context.Background(), profile.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrUpstream)
}

func TestUnassignPermissionSetUnknownPairNotFound(t *testing.T) {
	repo := newMockRepository()
	profile := repo.addProfile("Support", TypeStandard)
	svc := NewService(repo)

	err := svc.UnassignPermissionSet(context.Background(), profile.ID, 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAssignPermissionSetIdempotent(t *testing.T) {
	repo := newMockRepository()
	profile := repo.addProfile("Support", TypeStandard)
	svc := NewService(repo)

	require.NoError(t, svc.AssignPermissionSet(context.Background(), profile.ID, 42))
	require.NoError(t, svc.AssignPermissionSet(context.Background(), profile.ID, 42))
	assert.Len(t, repo.permSets[profile.ID], 1)
}
