package match

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facematch/internal/models"
	"github.com/your-org/facematch/internal/storage"
)

type fakeStore struct {
	registrations map[uuid.UUID]*models.Registration
	photos        map[uuid.UUID][]storage.PhotoFaces
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		registrations: make(map[uuid.UUID]*models.Registration),
		photos:        make(map[uuid.UUID][]storage.PhotoFaces),
	}
}

func (s *fakeStore) GetRegistration(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	return s.registrations[id], nil
}

func (s *fakeStore) ProcessedPhotos(_ context.Context, eventID uuid.UUID) ([]storage.PhotoFaces, error) {
	return s.photos[eventID], nil
}

func (s *fakeStore) addRegistration(eventID uuid.UUID, embedding []float32) *models.Registration {
	reg := &models.Registration{
		ID:            uuid.New(),
		EventID:       eventID,
		Name:          "Guest",
		Embedding:     embedding,
		FaceProcessed: len(embedding) > 0,
	}
	s.registrations[reg.ID] = reg
	return reg
}

func (s *fakeStore) addPhoto(eventID uuid.UUID, uploadedAt time.Time, embeddings ...[]float32) models.Photo {
	photo := models.Photo{
		ID:         uuid.New(),
		EventID:    eventID,
		Status:     models.PhotoStatusProcessed,
		FaceCount:  len(embeddings),
		UploadedAt: uploadedAt,
	}
	pf := storage.PhotoFaces{Photo: photo}
	for i, emb := range embeddings {
		pf.Faces = append(pf.Faces, models.Face{Index: i, Embedding: emb, Confidence: 0.9})
	}
	s.photos[eventID] = append(s.photos[eventID], pf)
	return photo
}

func TestFindMatchesRegistrationNotFound(t *testing.T) {
	engine := NewEngine(newFakeStore(), 0.4)

	_, err := engine.FindMatches(context.Background(), uuid.New(), uuid.New(), 0)
	assert.ErrorIs(t, err, ErrRegistrationNotFound)
}

func TestFindMatchesNoEmbedding(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	reg := store.addRegistration(eventID, nil)

	engine := NewEngine(store, 0.4)
	_, err := engine.FindMatches(context.Background(), reg.ID, eventID, 0)
	assert.ErrorIs(t, err, ErrNoEmbedding)
}

func TestFindMatchesEmptyEvent(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	reg := store.addRegistration(eventID, []float32{1, 0, 0})

	engine := NewEngine(store, 0.4)
	result, err := engine.FindMatches(context.Background(), reg.ID, eventID, 0)
	require.NoError(t, err)

	assert.Empty(t, result.Photos)
	assert.Zero(t, result.TotalPhotosSearched)
	assert.Zero(t, result.TotalFacesSearched)
	assert.Zero(t, result.MatchesFound)
}

func TestFindMatchesIdenticalEmbedding(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	emb := []float32{0.6, 0.8, 0}
	reg := store.addRegistration(eventID, emb)
	photo := store.addPhoto(eventID, time.Now(), emb)

	engine := NewEngine(store, 0.4)
	result, err := engine.FindMatches(context.Background(), reg.ID, eventID, 0)
	require.NoError(t, err)

	require.Len(t, result.Photos, 1)
	assert.Equal(t, photo.ID, result.Photos[0].Photo.ID)
	require.Len(t, result.Photos[0].Matches, 1)
	assert.InDelta(t, 100.0, result.Photos[0].Matches[0].Confidence, 1e-9)
	assert.Equal(t, 1, result.MatchesFound)
}

func TestFindMatchesThresholdFilters(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	reg := store.addRegistration(eventID, []float32{1, 0})

	// similarity 1.0 and similarity 0.0 respectively
	store.addPhoto(eventID, time.Now(), []float32{1, 0})
	store.addPhoto(eventID, time.Now(), []float32{0, 1})

	engine := NewEngine(store, 0.4)
	result, err := engine.FindMatches(context.Background(), reg.ID, eventID, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalPhotosSearched)
	assert.Equal(t, 2, result.TotalFacesSearched)
	assert.Len(t, result.Photos, 1)
	assert.Equal(t, 1, result.MatchesFound)
}

func TestFindMatchesHigherThresholdNeverAddsMatches(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	reg := store.addRegistration(eventID, []float32{1, 0})

	store.addPhoto(eventID, time.Now(), []float32{1, 0})
	store.addPhoto(eventID, time.Now(), []float32{0.8, 0.6})
	store.addPhoto(eventID, time.Now(), []float32{0.5, 0.866})

	engine := NewEngine(store, 0.4)
	ctx := context.Background()

	prev := -1
	for _, th := range []float64{0.9, 0.7, 0.45, 0.2} {
		result, err := engine.FindMatches(ctx, reg.ID, eventID, th)
		require.NoError(t, err)
		if prev >= 0 {
			assert.GreaterOrEqual(t, result.MatchesFound, prev,
				"lowering threshold to %v must not lose matches", th)
		}
		prev = result.MatchesFound
	}
}

func TestFindMatchesOrdering(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	reg := store.addRegistration(eventID, []float32{1, 0})

	now := time.Now()
	// Best similarity 0.6, uploaded earliest.
	weak := store.addPhoto(eventID, now.Add(-2*time.Hour), []float32{0.6, 0.8})
	// Best similarity 1.0 with a second weaker face.
	strong := store.addPhoto(eventID, now.Add(-time.Hour), []float32{0.8, 0.6}, []float32{1, 0})
	// Same best similarity as weak but uploaded later; wins the tie.
	weakNewer := store.addPhoto(eventID, now, []float32{0.6, 0.8})

	engine := NewEngine(store, 0.4)
	result, err := engine.FindMatches(context.Background(), reg.ID, eventID, 0)
	require.NoError(t, err)

	require.Len(t, result.Photos, 3)
	assert.Equal(t, strong.ID, result.Photos[0].Photo.ID)
	assert.Equal(t, weakNewer.ID, result.Photos[1].Photo.ID)
	assert.Equal(t, weak.ID, result.Photos[2].Photo.ID)

	// Within a photo: best face first, tie broken by ascending index.
	faces := result.Photos[0].Matches
	require.Len(t, faces, 2)
	assert.Equal(t, 1, faces[0].FaceIndex)
	assert.Greater(t, faces[0].Confidence, faces[1].Confidence)
}

func TestFindMatchesDefaultThreshold(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	reg := store.addRegistration(eventID, []float32{1, 0})

	// similarity 0.5: below a 0.6 default, so no match when threshold is 0.
	store.addPhoto(eventID, time.Now(), []float32{0.5, 0.866})

	engine := NewEngine(store, 0.6)
	result, err := engine.FindMatches(context.Background(), reg.ID, eventID, 0)
	require.NoError(t, err)
	assert.Zero(t, result.MatchesFound)

	// An explicit lower threshold overrides the default.
	result, err = engine.FindMatches(context.Background(), reg.ID, eventID, 0.3)
	require.NoError(t, err)
	assert.Equal(t, 1, result.MatchesFound)
}
