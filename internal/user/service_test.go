package user

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAccounts struct {
	accounts map[string]Account

	ensureCalls   int
	setQuotaCalls int
	deleteErr     error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{accounts: make(map[string]Account)}
}

func (f *fakeAccounts) Ensure(ctx context.Context, userID string, quotaBytes int64) (Account, error) {
	f.ensureCalls++
	if acct, ok := f.accounts[userID]; ok {
		return acct, nil
	}
	acct := Account{ID: userID, StorageQuota: quotaBytes}
	f.accounts[userID] = acct
	return acct, nil
}

func (f *fakeAccounts) SetQuota(ctx context.Context, userID string, quotaBytes int64) (Account, error) {
	f.setQuotaCalls++
	acct := Account{ID: userID, StorageQuota: quotaBytes}
	f.accounts[userID] = acct
	return acct, nil
}

func (f *fakeAccounts) Get(ctx context.Context, userID string) (Account, error) {
	acct, ok := f.accounts[userID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}

func (f *fakeAccounts) Delete(ctx context.Context, userID string) (bool, error) {
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	_, ok := f.accounts[userID]
	delete(f.accounts, userID)
	return ok, nil
}

type fakeFileIndex struct {
	deleted int64
	err     error
}

func (f *fakeFileIndex) DeleteAllForOwner(ctx context.Context, ownerID string) (int64, error) {
	return f.deleted, f.err
}

type fakeBlobs struct {
	used      int64
	removeErr error
	removed   []string
}

func (f *fakeBlobs) RemoveUserFiles(userID string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, userID)
	return nil
}

func (f *fakeBlobs) UsedBytes(userID string) int64 { return f.used }

type fakeIdentity struct {
	deleted bool
	err     error
}

func (f *fakeIdentity) DeleteUser(ctx context.Context, userID string) (bool, error) {
	return f.deleted, f.err
}

type fixtures struct {
	accounts *fakeAccounts
	files    *fakeFileIndex
	blobs    *fakeBlobs
	identity *fakeIdentity
	service  *Service
}

func newFixtures() fixtures {
	f := fixtures{
		accounts: newFakeAccounts(),
		files:    &fakeFileIndex{},
		blobs:    &fakeBlobs{},
		identity: &fakeIdentity{deleted: true},
	}
	f.service = NewService(f.accounts, f.files, f.blobs, f.identity, 5<<30, zap.NewNop())
	return f
}

func TestEnsureUserCreatesWithDefaultQuota(t *testing.T) {
	f := newFixtures()

	acct, err := f.service.EnsureUser(context.Background(), "alice", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(5<<30), acct.StorageQuota)
	assert.Equal(t, 1, f.accounts.ensureCalls)
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	f := newFixtures()
	ctx := context.Background()

	first, err := f.service.EnsureUser(ctx, "alice", nil)
	require.NoError(t, err)
	second, err := f.service.EnsureUser(ctx, "alice", nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEnsureUserAppliesDesiredQuota(t *testing.T) {
	f := newFixtures()
	desired := int64(10 << 30)

	acct, err := f.service.EnsureUser(context.Background(), "alice", &desired)
	require.NoError(t, err)

	assert.Equal(t, desired, acct.StorageQuota)
	assert.Equal(t, 1, f.accounts.setQuotaCalls)
	assert.Zero(t, f.accounts.ensureCalls)
}

func TestEnsureUserRejectsEmptyID(t *testing.T) {
	f := newFixtures()

	_, err := f.service.EnsureUser(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestGetUserView(t *testing.T) {
	f := newFixtures()
	f.blobs.used = 1 << 30

	view, err := f.service.GetUserView(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, "alice", view.ID)
	assert.Equal(t, int64(5<<30), view.StorageQuota)
	assert.Equal(t, int64(1<<30), view.UsedStorage)
	assert.Equal(t, int64(4<<30), view.Available)
}

func TestDeleteUserAllStepsSucceed(t *testing.T) {
	f := newFixtures()
	_, err := f.service.EnsureUser(context.Background(), "alice", nil)
	require.NoError(t, err)

	res := f.service.DeleteUser(context.Background(), "alice")

	assert.Equal(t, DeleteResult{MetadataDeleted: true, BlobsDeleted: true, IdentityDeleted: true}, res)
	assert.Equal(t, []string{"alice"}, f.blobs.removed)
}

func TestDeleteUserIdentityFailureDoesNotAbort(t *testing.T) {
	f := newFixtures()
	_, err := f.service.EnsureUser(context.Background(), "alice", nil)
	require.NoError(t, err)
	f.identity.err = errors.New("keycloak unreachable")

	res := f.service.DeleteUser(context.Background(), "alice")

	assert.True(t, res.MetadataDeleted)
	assert.True(t, res.BlobsDeleted)
	assert.False(t, res.IdentityDeleted)
}

func TestDeleteUserBlobFailureStillClearsMetadata(t *testing.T) {
	f := newFixtures()
	_, err := f.service.EnsureUser(context.Background(), "alice", nil)
	require.NoError(t, err)
	f.blobs.removeErr = errors.New("disk error")

	res := f.service.DeleteUser(context.Background(), "alice")

	assert.False(t, res.BlobsDeleted)
	assert.True(t, res.MetadataDeleted)
	assert.True(t, res.IdentityDeleted)
}

func TestDeleteUserMetadataFailure(t *testing.T) {
	f := newFixtures()
	_, err := f.service.EnsureUser(context.Background(), "alice", nil)
	require.NoError(t, err)
	f.files.err = errors.New("db down")

	res := f.service.DeleteUser(context.Background(), "alice")

	assert.False(t, res.MetadataDeleted)
	assert.True(t, res.BlobsDeleted)
	assert.True(t, res.IdentityDeleted)
}

func TestDeleteUserWithoutAccountRow(t *testing.T) {
	f := newFixtures()

	res := f.service.DeleteUser(context.Background(), "ghost")

	// No metadata existed, so nothing was deleted there; the blob and
	// identity steps still ran.
	assert.False(t, res.MetadataDeleted)
	assert.True(t, res.BlobsDeleted)
	assert.True(t, res.IdentityDeleted)
}

func TestDeleteUserIdentityUnknown(t *testing.T) {
	f := newFixtures()
	_, err := f.service.EnsureUser(context.Background(), "alice", nil)
	require.NoError(t, err)
	f.identity.deleted = false

	res := f.service.DeleteUser(context.Background(), "alice")

	assert.True(t, res.MetadataDeleted)
	assert.False(t, res.IdentityDeleted)
}
