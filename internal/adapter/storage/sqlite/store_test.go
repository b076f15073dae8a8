package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smelt/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestJob(t *testing.T, name string) *domain.Job {
	t.Helper()
	profile := domain.Profile{Codec: domain.CodecJPEG}
	require.NoError(t, profile.Normalize())
	return domain.NewJob(name, "/data/uploads/"+name, 2048, domain.MediaKindImage, profile)
}

func TestStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	job := newTestJob(t, "photo.jpg")

	require.NoError(t, store.Create(job))

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "photo.jpg", got.OriginalName)
	assert.Equal(t, domain.JobStatusQueued, got.Status)
	assert.Equal(t, domain.MediaKindImage, got.Kind)
	assert.Equal(t, domain.CodecJPEG, got.Profile.Codec)
	assert.Equal(t, 75, got.Profile.Quality)
	assert.Nil(t, got.Artifact)
}

func TestStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("no-such-job")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ClaimFIFO(t *testing.T) {
	store := newTestStore(t)

	first := newTestJob(t, "first.jpg")
	second := newTestJob(t, "second.jpg")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	second.UpdatedAt = second.CreatedAt
	require.NoError(t, store.Create(first))
	require.NoError(t, store.Create(second))

	claimed, err := store.Claim()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, domain.JobStatusRunning, claimed.Status)
	assert.Equal(t, int64(1), claimed.Attempts)
	assert.True(t, claimed.StartedAt.Valid)

	claimed, err = store.Claim()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, second.ID, claimed.ID)

	// Backlog drained.
	claimed, err = store.Claim()
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestStore_CountBacklog(t *testing.T) {
	store := newTestStore(t)

	n, err := store.CountBacklog()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, store.Create(newTestJob(t, "a.jpg")))
	require.NoError(t, store.Create(newTestJob(t, "b.jpg")))

	n, err = store.CountBacklog()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.Claim()
	require.NoError(t, err)

	n, err = store.CountBacklog()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_MarkSucceeded(t *testing.T) {
	store := newTestStore(t)
	job := newTestJob(t, "photo.jpg")
	require.NoError(t, store.Create(job))

	_, err := store.Claim()
	require.NoError(t, err)

	artifact := domain.Artifact{
		Path:        "/data/artifacts/" + job.ID + ".jpg",
		ContentType: "image/jpeg",
		Size:        1024,
		Width:       800,
		Height:      600,
	}
	require.NoError(t, store.MarkSucceeded(job.ID, artifact))

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, got.Status)
	require.NotNil(t, got.Artifact)
	assert.Equal(t, artifact.Path, got.Artifact.Path)
	assert.Equal(t, int64(1024), got.Artifact.Size)
	assert.True(t, got.CompletedAt.Valid)
}

func TestStore_MarkSucceededRequiresRunning(t *testing.T) {
	store := newTestStore(t)
	job := newTestJob(t, "photo.jpg")
	require.NoError(t, store.Create(job))

	// Still queued: the guard refuses the transition.
	err := store.MarkSucceeded(job.ID, domain.Artifact{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_MarkFailed(t *testing.T) {
	store := newTestStore(t)
	job := newTestJob(t, "photo.jpg")
	require.NoError(t, store.Create(job))

	_, err := store.Claim()
	require.NoError(t, err)

	require.NoError(t, store.MarkFailed(job.ID, domain.FailureCorruptInput, "bad header"))

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, domain.FailureCorruptInput, got.FailureKind)
	assert.Equal(t, "bad header", got.ErrorMessage)

	// Terminal states never regress.
	err = store.MarkFailed(job.ID, domain.FailureEncodingError, "again")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	err = store.MarkSucceeded(job.ID, domain.Artifact{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_CancelQueued(t *testing.T) {
	store := newTestStore(t)
	job := newTestJob(t, "photo.jpg")
	require.NoError(t, store.Create(job))

	ok, err := store.CancelQueued(job.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, domain.FailureCancelled, got.FailureKind)

	// Already terminal: no-op.
	ok, err = store.CancelQueued(job.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_CancelQueuedSkipsRunning(t *testing.T) {
	store := newTestStore(t)
	job := newTestJob(t, "photo.jpg")
	require.NoError(t, store.Create(job))

	_, err := store.Claim()
	require.NoError(t, err)

	ok, err := store.CancelQueued(job.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ResetStalled(t *testing.T) {
	store := newTestStore(t)
	job := newTestJob(t, "photo.jpg")
	require.NoError(t, store.Create(job))

	_, err := store.Claim()
	require.NoError(t, err)

	require.NoError(t, store.ResetStalled())

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, got.Status)
	assert.False(t, got.StartedAt.Valid)

	// Reclaimable after reset, attempts keep counting.
	claimed, err := store.Claim()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, int64(2), claimed.Attempts)
}

func TestStore_ListExpiredAndDelete(t *testing.T) {
	store := newTestStore(t)
	job := newTestJob(t, "photo.jpg")
	require.NoError(t, store.Create(job))

	_, err := store.Claim()
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(job.ID, domain.FailureEncodingError, "boom"))

	// Zero TTL treats any completed job as expired.
	time.Sleep(10 * time.Millisecond)
	expired, err := store.ListExpired(0)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, job.ID, expired[0].ID)

	// Long TTL keeps it.
	expired, err = store.ListExpired(time.Hour)
	require.NoError(t, err)
	assert.Empty(t, expired)

	require.NoError(t, store.Delete(job.ID))
	_, err = store.Get(job.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Deleting a missing row is not an error.
	assert.NoError(t, store.Delete(job.ID))
}
