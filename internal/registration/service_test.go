package registration

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facematch/internal/models"
)

type fakeStore struct {
	created []*models.Registration
	byID    map[uuid.UUID]*models.Registration
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[uuid.UUID]*models.Registration)}
}

func (s *fakeStore) CreateRegistration(_ context.Context, r *models.Registration) error {
	r.ID = uuid.New()
	s.created = append(s.created, r)
	s.byID[r.ID] = r
	return nil
}

func (s *fakeStore) GetRegistration(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	return s.byID[id], nil
}

func (s *fakeStore) ListRegistrationsByEvent(_ context.Context, eventID uuid.UUID) ([]models.Registration, error) {
	var regs []models.Registration
	for _, r := range s.created {
		if r.EventID == eventID {
			regs = append(regs, *r)
		}
	}
	return regs, nil
}

type fakeBlobs struct {
	objects map[string][]byte
}

func (b *fakeBlobs) PutObject(_ context.Context, key string, data []byte, _ string) error {
	if b.objects == nil {
		b.objects = make(map[string][]byte)
	}
	b.objects[key] = data
	return nil
}

type fakeProvider struct {
	faces  []models.Face
	err    error
	called int
}

func (p *fakeProvider) Detect(context.Context, []byte) ([]models.Face, error) {
	p.called++
	return p.faces, p.err
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeBlobs{}, &fakeProvider{})
	ctx := context.Background()

	_, err := svc.Register(ctx, Input{Name: "Guest"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Register(ctx, Input{EventID: uuid.New(), Name: "   "})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegisterWithoutSelfie(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	svc := NewService(store, &fakeBlobs{}, provider)

	reg, err := svc.Register(context.Background(), Input{EventID: uuid.New(), Name: "Guest"})
	require.NoError(t, err)

	assert.False(t, reg.FaceProcessed)
	assert.Empty(t, reg.Embedding)
	assert.Empty(t, reg.SelfieKey)
	assert.Zero(t, provider.called, "no selfie means no detection")
	assert.Len(t, store.created, 1)
}

func TestRegisterSelfieWithFace(t *testing.T) {
	store := newFakeStore()
	blobs := &fakeBlobs{}
	provider := &fakeProvider{faces: []models.Face{
		{Index: 0, Embedding: []float32{0.1, 0.2}, Confidence: 0.7},
		{Index: 1, Embedding: []float32{0.9, 0.1}, Confidence: 0.95},
	}}
	svc := NewService(store, blobs, provider)

	reg, err := svc.Register(context.Background(), Input{
		EventID:           uuid.New(),
		Name:              "Guest",
		Selfie:            []byte("jpeg bytes"),
		SelfieContentType: "image/jpeg",
	})
	require.NoError(t, err)

	assert.True(t, reg.FaceProcessed)
	assert.Equal(t, []float32{0.9, 0.1}, reg.Embedding, "highest-confidence face wins")
	assert.NotEmpty(t, reg.SelfieKey)
	assert.Contains(t, blobs.objects, reg.SelfieKey)
}

func TestRegisterSelfieWithoutFaceSoftFails(t *testing.T) {
	store := newFakeStore()
	blobs := &fakeBlobs{}
	svc := NewService(store, blobs, &fakeProvider{})

	reg, err := svc.Register(context.Background(), Input{
		EventID: uuid.New(),
		Name:    "Guest",
		Selfie:  []byte("a landscape"),
	})
	require.NoError(t, err, "no detectable face must not reject the registration")

	assert.False(t, reg.FaceProcessed)
	assert.Empty(t, reg.Embedding)
	assert.NotEmpty(t, reg.SelfieKey, "selfie is kept for a later re-register")
	assert.Len(t, store.created, 1)
}

func TestRegisterProviderFailure(t *testing.T) {
	store := newFakeStore()
	blobs := &fakeBlobs{}
	provider := &fakeProvider{err: errors.New("onnx session crashed")}
	svc := NewService(store, blobs, provider)

	_, err := svc.Register(context.Background(), Input{
		EventID: uuid.New(),
		Name:    "Guest",
		Selfie:  []byte("jpeg bytes"),
	})
	require.ErrorIs(t, err, ErrProviderUnavailable)

	assert.Empty(t, store.created, "nothing persisted on provider failure")
	assert.Empty(t, blobs.objects)
}

func TestRegisterNilProvider(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeBlobs{}, nil)

	// No selfie works even without models loaded.
	_, err := svc.Register(context.Background(), Input{EventID: uuid.New(), Name: "Guest"})
	require.NoError(t, err)

	// A selfie does not.
	_, err = svc.Register(context.Background(), Input{
		EventID: uuid.New(),
		Name:    "Guest",
		Selfie:  []byte("jpeg bytes"),
	})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestRegisterTrimsFields(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeBlobs{}, &fakeProvider{})

	reg, err := svc.Register(context.Background(), Input{
		EventID: uuid.New(),
		Name:    "  Guest  ",
		Email:   " guest@example.com ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Guest", reg.Name)
	assert.Equal(t, "guest@example.com", reg.Email)
}
