package process

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facematch/internal/models"
)

// fakePhotoStore mirrors the CAS semantics of the real store on an in-memory
// map, so the state machine can be exercised without Postgres.
type fakePhotoStore struct {
	photos map[uuid.UUID]*models.Photo
	faces  map[uuid.UUID][]models.Face
}

func newFakePhotoStore() *fakePhotoStore {
	return &fakePhotoStore{
		photos: make(map[uuid.UUID]*models.Photo),
		faces:  make(map[uuid.UUID][]models.Face),
	}
}

func (s *fakePhotoStore) add(status models.PhotoStatus) *models.Photo {
	return s.addForEvent(uuid.New(), status)
}

func (s *fakePhotoStore) addForEvent(eventID uuid.UUID, status models.PhotoStatus) *models.Photo {
	p := &models.Photo{
		ID:      uuid.New(),
		EventID: eventID,
		BlobKey: "photos/test/" + uuid.NewString(),
		Status:  status,
	}
	s.photos[p.ID] = p
	return p
}

// EventProgress mirrors the store's counting rules: totals over all rows,
// processed/failed by status, photosWithFaces only among processed rows.
func (s *fakePhotoStore) EventProgress(eventID uuid.UUID) models.EventProgress {
	var prog models.EventProgress
	for _, p := range s.photos {
		if p.EventID != eventID {
			continue
		}
		prog.TotalPhotos++
		switch p.Status {
		case models.PhotoStatusProcessed:
			prog.ProcessedPhotos++
			if p.FaceCount > 0 {
				prog.PhotosWithFaces++
			}
		case models.PhotoStatusFailed:
			prog.FailedPhotos++
		}
	}
	return prog
}

func (s *fakePhotoStore) GetPhoto(_ context.Context, id uuid.UUID) (*models.Photo, error) {
	p, ok := s.photos[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakePhotoStore) ClaimPhoto(_ context.Context, id uuid.UUID) (bool, error) {
	p, ok := s.photos[id]
	if !ok {
		return false, nil
	}
	if p.Status != models.PhotoStatusPending && p.Status != models.PhotoStatusProcessing {
		return false, nil
	}
	p.Status = models.PhotoStatusProcessing
	p.Attempt++
	return true, nil
}

func (s *fakePhotoStore) CompletePhoto(_ context.Context, id uuid.UUID, faces []models.Face) (bool, error) {
	p, ok := s.photos[id]
	if !ok || p.Status != models.PhotoStatusProcessing {
		return false, nil
	}
	p.Status = models.PhotoStatusProcessed
	p.FaceCount = len(faces)
	p.ProcessingError = ""
	s.faces[id] = faces
	return true, nil
}

func (s *fakePhotoStore) FailPhoto(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	p, ok := s.photos[id]
	if !ok || p.Status != models.PhotoStatusProcessing {
		return false, nil
	}
	p.Status = models.PhotoStatusFailed
	p.ProcessingError = reason
	return true, nil
}

func (s *fakePhotoStore) ResetFailedPhoto(_ context.Context, id uuid.UUID) (*models.Photo, error) {
	p, ok := s.photos[id]
	if !ok || p.Status != models.PhotoStatusFailed {
		return nil, nil
	}
	p.Status = models.PhotoStatusPending
	p.ProcessingError = ""
	cp := *p
	return &cp, nil
}

type fakeBlobs struct {
	data map[string][]byte
	err  error
}

func (b *fakeBlobs) GetObject(_ context.Context, key string) ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.data[key], nil
}

type fakeProvider struct {
	faces []models.Face
	err   error
}

func (p *fakeProvider) Detect(context.Context, []byte) ([]models.Face, error) {
	return p.faces, p.err
}

type fakePublisher struct {
	jobs    []models.PhotoJob
	updates []models.ProcessingUpdate
}

func (p *fakePublisher) PublishPhotoJob(_ context.Context, job models.PhotoJob) error {
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *fakePublisher) PublishProgress(_ context.Context, upd models.ProcessingUpdate) error {
	p.updates = append(p.updates, upd)
	return nil
}

func jobFor(p *models.Photo) models.PhotoJob {
	return models.PhotoJob{PhotoID: p.ID, EventID: p.EventID, BlobKey: p.BlobKey}
}

func TestHandleSuccess(t *testing.T) {
	store := newFakePhotoStore()
	photo := store.add(models.PhotoStatusPending)
	blobs := &fakeBlobs{data: map[string][]byte{photo.BlobKey: []byte("jpeg")}}
	provider := &fakeProvider{faces: []models.Face{
		{Index: 0, Embedding: []float32{1, 0}, Confidence: 0.95},
		{Index: 1, Embedding: []float32{0, 1}, Confidence: 0.8},
	}}
	pub := &fakePublisher{}

	p := NewProcessor(store, blobs, provider, pub)
	require.NoError(t, p.Handle(context.Background(), jobFor(photo)))

	got := store.photos[photo.ID]
	assert.Equal(t, models.PhotoStatusProcessed, got.Status)
	assert.Equal(t, 2, got.FaceCount)
	assert.Equal(t, 1, got.Attempt)
	assert.Len(t, store.faces[photo.ID], 2)

	require.Len(t, pub.updates, 1)
	assert.Equal(t, "photo_processed", pub.updates[0].Type)
	assert.Equal(t, photo.ID, pub.updates[0].PhotoID)
	assert.Equal(t, 2, pub.updates[0].FaceCount)
}

func TestHandleZeroFacesIsSuccess(t *testing.T) {
	store := newFakePhotoStore()
	photo := store.add(models.PhotoStatusPending)
	blobs := &fakeBlobs{data: map[string][]byte{photo.BlobKey: []byte("jpeg")}}
	pub := &fakePublisher{}

	p := NewProcessor(store, blobs, &fakeProvider{}, pub)
	require.NoError(t, p.Handle(context.Background(), jobFor(photo)))

	got := store.photos[photo.ID]
	assert.Equal(t, models.PhotoStatusProcessed, got.Status)
	assert.Zero(t, got.FaceCount)
	require.Len(t, pub.updates, 1)
	assert.Equal(t, "photo_processed", pub.updates[0].Type)
}

func TestHandleUnknownPhotoDropped(t *testing.T) {
	store := newFakePhotoStore()
	pub := &fakePublisher{}

	p := NewProcessor(store, &fakeBlobs{}, &fakeProvider{}, pub)
	job := models.PhotoJob{PhotoID: uuid.New(), EventID: uuid.New()}

	require.NoError(t, p.Handle(context.Background(), job))
	assert.Empty(t, pub.updates)
}

func TestHandleRedeliveryAfterCommitIsNoop(t *testing.T) {
	store := newFakePhotoStore()
	photo := store.add(models.PhotoStatusPending)
	blobs := &fakeBlobs{data: map[string][]byte{photo.BlobKey: []byte("jpeg")}}
	provider := &fakeProvider{faces: []models.Face{{Index: 0, Embedding: []float32{1, 0}}}}
	pub := &fakePublisher{}

	p := NewProcessor(store, blobs, provider, pub)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, jobFor(photo)))
	require.NoError(t, p.Handle(ctx, jobFor(photo)))

	got := store.photos[photo.ID]
	assert.Equal(t, models.PhotoStatusProcessed, got.Status)
	assert.Equal(t, 1, got.Attempt, "second delivery must not re-claim")
	assert.Len(t, store.faces[photo.ID], 1, "faces must not double")
	assert.Len(t, pub.updates, 1, "progress must be published once")
}

func TestHandleBlobErrorLeavesClaimForRedelivery(t *testing.T) {
	store := newFakePhotoStore()
	photo := store.add(models.PhotoStatusPending)
	blobs := &fakeBlobs{err: errors.New("connection refused")}
	pub := &fakePublisher{}

	p := NewProcessor(store, blobs, &fakeProvider{}, pub)
	err := p.Handle(context.Background(), jobFor(photo))
	require.Error(t, err)

	// Still claimable: the redelivered job can pick it up again.
	got := store.photos[photo.ID]
	assert.Equal(t, models.PhotoStatusProcessing, got.Status)
	assert.Empty(t, pub.updates)
}

func TestHandleProviderErrorMarksFailed(t *testing.T) {
	store := newFakePhotoStore()
	photo := store.add(models.PhotoStatusPending)
	blobs := &fakeBlobs{data: map[string][]byte{photo.BlobKey: []byte("jpeg")}}
	provider := &fakeProvider{err: errors.New("model inference failed")}
	pub := &fakePublisher{}

	p := NewProcessor(store, blobs, provider, pub)
	require.NoError(t, p.Handle(context.Background(), jobFor(photo)), "failure is committed, job must be acked")

	got := store.photos[photo.ID]
	assert.Equal(t, models.PhotoStatusFailed, got.Status)
	assert.Contains(t, got.ProcessingError, "model inference failed")

	require.Len(t, pub.updates, 1)
	assert.Equal(t, "photo_failed", pub.updates[0].Type)
}

func TestRetryThenSuccess(t *testing.T) {
	store := newFakePhotoStore()
	photo := store.add(models.PhotoStatusPending)
	blobs := &fakeBlobs{data: map[string][]byte{photo.BlobKey: []byte("jpeg")}}
	provider := &fakeProvider{err: errors.New("transient model failure")}
	pub := &fakePublisher{}

	p := NewProcessor(store, blobs, provider, pub)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, jobFor(photo)))
	require.Equal(t, models.PhotoStatusFailed, store.photos[photo.ID].Status)

	retrier := NewRetrier(store, pub)
	require.NoError(t, retrier.Retry(ctx, photo.ID))
	require.Len(t, pub.jobs, 1)
	assert.Equal(t, photo.ID, pub.jobs[0].PhotoID)
	assert.Equal(t, 1, pub.jobs[0].Attempt, "attempt counter survives the retry")

	// The model recovered; the re-enqueued job now succeeds.
	provider.err = nil
	provider.faces = []models.Face{{Index: 0, Embedding: []float32{1, 0}}}
	require.NoError(t, p.Handle(ctx, pub.jobs[0]))

	got := store.photos[photo.ID]
	assert.Equal(t, models.PhotoStatusProcessed, got.Status)
	assert.Equal(t, 2, got.Attempt)
	assert.Equal(t, 1, got.FaceCount)
}

func TestRetryUnknownPhoto(t *testing.T) {
	retrier := NewRetrier(newFakePhotoStore(), &fakePublisher{})
	err := retrier.Retry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrPhotoNotFound)
}

func TestRetryPendingPhotoReenqueues(t *testing.T) {
	store := newFakePhotoStore()
	photo := store.add(models.PhotoStatusPending)
	pub := &fakePublisher{}

	// The row is pending but its original enqueue was lost; retry is the
	// recovery path and must re-publish the job.
	retrier := NewRetrier(store, pub)
	require.NoError(t, retrier.Retry(context.Background(), photo.ID))

	require.Len(t, pub.jobs, 1)
	assert.Equal(t, photo.ID, pub.jobs[0].PhotoID)
	assert.Equal(t, photo.BlobKey, pub.jobs[0].BlobKey)
	assert.Equal(t, models.PhotoStatusPending, store.photos[photo.ID].Status)
	assert.Zero(t, store.photos[photo.ID].Attempt)
}

func TestRetryNotRetryableStatuses(t *testing.T) {
	store := newFakePhotoStore()
	pub := &fakePublisher{}
	retrier := NewRetrier(store, pub)
	ctx := context.Background()

	for _, status := range []models.PhotoStatus{
		models.PhotoStatusProcessing,
		models.PhotoStatusProcessed,
	} {
		photo := store.add(status)
		err := retrier.Retry(ctx, photo.ID)
		assert.ErrorIs(t, err, ErrNotRetryable, "status %s", status)
	}
	assert.Empty(t, pub.jobs)
}

func TestEventProgressCounts(t *testing.T) {
	store := newFakePhotoStore()
	eventID := uuid.New()
	good1 := store.addForEvent(eventID, models.PhotoStatusPending)
	good2 := store.addForEvent(eventID, models.PhotoStatusPending)
	bad := store.addForEvent(eventID, models.PhotoStatusPending)

	blobs := &fakeBlobs{data: map[string][]byte{
		good1.BlobKey: []byte("a"),
		good2.BlobKey: []byte("b"),
		bad.BlobKey:   []byte("c"),
	}}
	provider := &fakeProvider{faces: []models.Face{{Index: 0, Embedding: []float32{1, 0}}}}
	pub := &fakePublisher{}
	p := NewProcessor(store, blobs, provider, pub)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, jobFor(good1)))
	require.NoError(t, p.Handle(ctx, jobFor(good2)))

	provider.err = errors.New("model inference failed")
	require.NoError(t, p.Handle(ctx, jobFor(bad)))

	prog := store.EventProgress(eventID)
	assert.Equal(t, 3, prog.TotalPhotos)
	assert.Equal(t, 2, prog.ProcessedPhotos)
	assert.Equal(t, 1, prog.FailedPhotos)
	assert.Equal(t, 2, prog.PhotosWithFaces)
	assert.True(t, prog.Complete())

	// Retrying the failed photo reopens the event until it commits again.
	retrier := NewRetrier(store, pub)
	require.NoError(t, retrier.Retry(ctx, bad.ID))

	prog = store.EventProgress(eventID)
	assert.Equal(t, 3, prog.TotalPhotos)
	assert.Zero(t, prog.FailedPhotos)
	assert.False(t, prog.Complete())

	provider.err = nil
	require.NoError(t, p.Handle(ctx, jobFor(bad)))

	prog = store.EventProgress(eventID)
	assert.Equal(t, 3, prog.ProcessedPhotos)
	assert.Zero(t, prog.FailedPhotos)
	assert.True(t, prog.Complete())
}

func TestEventProgressExcludesFacelessPhotos(t *testing.T) {
	store := newFakePhotoStore()
	eventID := uuid.New()
	withFaces := store.addForEvent(eventID, models.PhotoStatusPending)
	faceless := store.addForEvent(eventID, models.PhotoStatusPending)

	blobs := &fakeBlobs{data: map[string][]byte{
		withFaces.BlobKey: []byte("a"),
		faceless.BlobKey:  []byte("b"),
	}}
	provider := &fakeProvider{faces: []models.Face{{Index: 0, Embedding: []float32{1, 0}}}}
	pub := &fakePublisher{}
	p := NewProcessor(store, blobs, provider, pub)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, jobFor(withFaces)))

	provider.faces = nil
	require.NoError(t, p.Handle(ctx, jobFor(faceless)))

	prog := store.EventProgress(eventID)
	assert.Equal(t, 2, prog.TotalPhotos)
	assert.Equal(t, 2, prog.ProcessedPhotos)
	assert.Equal(t, 1, prog.PhotosWithFaces, "a zero-face photo is processed but not counted as having faces")
	assert.True(t, prog.Complete())
}
