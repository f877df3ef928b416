package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facematch/internal/config"
	"github.com/your-org/facematch/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Registrations ---

// CreateRegistration inserts a registration. The embedding, if present, is
// written here once and never updated afterwards.
func (s *PostgresStore) CreateRegistration(ctx context.Context, r *models.Registration) error {
	r.ID = uuid.New()
	var vec *pgvector.Vector
	if len(r.Embedding) > 0 {
		v := pgvector.NewVector(r.Embedding)
		vec = &v
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO registrations (id, event_id, name, email, phone, selfie_key, embedding, face_processed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`,
		r.ID, r.EventID, r.Name, r.Email, r.Phone, r.SelfieKey, vec, r.FaceProcessed,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	r := &models.Registration{}
	var vec *pgvector.Vector
	err := s.pool.QueryRow(ctx,
		`SELECT id, event_id, name, email, phone, selfie_key, embedding, face_processed, created_at
		 FROM registrations WHERE id = $1`, id,
	).Scan(&r.ID, &r.EventID, &r.Name, &r.Email, &r.Phone, &r.SelfieKey, &vec, &r.FaceProcessed, &r.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	if vec != nil {
		r.Embedding = vec.Slice()
	}
	return r, nil
}

// ListRegistrationsByEvent returns an event's registrations without embeddings.
func (s *PostgresStore) ListRegistrationsByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, name, email, phone, selfie_key, face_processed, created_at
		 FROM registrations WHERE event_id = $1 ORDER BY created_at DESC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []models.Registration
	for rows.Next() {
		var r models.Registration
		if err := rows.Scan(&r.ID, &r.EventID, &r.Name, &r.Email, &r.Phone,
			&r.SelfieKey, &r.FaceProcessed, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, r)
	}
	return regs, nil
}

// --- Photos ---

func (s *PostgresStore) CreatePhoto(ctx context.Context, p *models.Photo) error {
	p.ID = uuid.New()
	p.Status = models.PhotoStatusPending
	err := s.pool.QueryRow(ctx,
		`INSERT INTO photos (id, event_id, blob_key, status) VALUES ($1, $2, $3, $4) RETURNING uploaded_at`,
		p.ID, p.EventID, p.BlobKey, p.Status,
	).Scan(&p.UploadedAt)
	if err != nil {
		return fmt.Errorf("create photo: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	p := &models.Photo{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, event_id, blob_key, status, COALESCE(processing_error, ''), attempt, face_count, uploaded_at, processed_at
		 FROM photos WHERE id = $1`, id,
	).Scan(&p.ID, &p.EventID, &p.BlobKey, &p.Status, &p.ProcessingError,
		&p.Attempt, &p.FaceCount, &p.UploadedAt, &p.ProcessedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return p, nil
}

// ClaimPhoto moves a photo into processing for the calling worker.
// Pending photos are claimed normally; a photo already in processing may be
// re-claimed, since that state means a previous delivery crashed mid-flight
// and the job came back after the visibility timeout. Terminal photos are
// never claimed, which makes redelivery of a committed job a no-op.
func (s *PostgresStore) ClaimPhoto(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE photos SET status = $1, attempt = attempt + 1
		 WHERE id = $2 AND status IN ($3, $1)`,
		models.PhotoStatusProcessing, id, models.PhotoStatusPending)
	if err != nil {
		return false, fmt.Errorf("claim photo: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompletePhoto commits a successful extraction: faces are rewritten and the
// photo moves processing -> processed in one transaction. The status guard
// makes the commit idempotent under at-least-once delivery; the delete+insert
// keeps duplicate deliveries from doubling faces.
func (s *PostgresStore) CompletePhoto(ctx context.Context, id uuid.UUID, faces []models.Face) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin complete photo: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE photos SET status = $1, processed_at = now(), processing_error = NULL, face_count = $2
		 WHERE id = $3 AND status = $4`,
		models.PhotoStatusProcessed, len(faces), id, models.PhotoStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("complete photo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM photo_faces WHERE photo_id = $1`, id); err != nil {
		return false, fmt.Errorf("clear photo faces: %w", err)
	}

	for _, f := range faces {
		vec := pgvector.NewVector(f.Embedding)
		_, err := tx.Exec(ctx,
			`INSERT INTO photo_faces (id, photo_id, face_index, x1, y1, x2, y2, embedding, confidence)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.New(), id, f.Index, f.BBox[0], f.BBox[1], f.BBox[2], f.BBox[3], vec, f.Confidence)
		if err != nil {
			return false, fmt.Errorf("insert photo face: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit complete photo: %w", err)
	}
	return true, nil
}

// FailPhoto records a per-photo extraction failure. The photo stays queryable
// and retryable; it is never re-enqueued automatically.
func (s *PostgresStore) FailPhoto(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE photos SET status = $1, processing_error = $2
		 WHERE id = $3 AND status = $4`,
		models.PhotoStatusFailed, reason, id, models.PhotoStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("fail photo: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ResetFailedPhoto moves failed -> pending for an explicit retry and returns
// the photo so the caller can re-enqueue it. The attempt counter is kept.
func (s *PostgresStore) ResetFailedPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	p := &models.Photo{}
	err := s.pool.QueryRow(ctx,
		`UPDATE photos SET status = $1, processing_error = NULL, processed_at = NULL
		 WHERE id = $2 AND status = $3
		 RETURNING id, event_id, blob_key, status, attempt, face_count, uploaded_at`,
		models.PhotoStatusPending, id, models.PhotoStatusFailed,
	).Scan(&p.ID, &p.EventID, &p.BlobKey, &p.Status, &p.Attempt, &p.FaceCount, &p.UploadedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reset failed photo: %w", err)
	}
	return p, nil
}

// EventProgress derives per-event counters from photo rows. There is no
// stored counter to drift; a rescan is the source of truth.
func (s *PostgresStore) EventProgress(ctx context.Context, eventID uuid.UUID) (models.EventProgress, error) {
	var prog models.EventProgress
	err := s.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE status = $2),
		        count(*) FILTER (WHERE status = $3),
		        count(*) FILTER (WHERE status = $2 AND face_count > 0)
		 FROM photos WHERE event_id = $1`,
		eventID, models.PhotoStatusProcessed, models.PhotoStatusFailed,
	).Scan(&prog.TotalPhotos, &prog.ProcessedPhotos, &prog.FailedPhotos, &prog.PhotosWithFaces)
	if err != nil {
		return prog, fmt.Errorf("event progress: %w", err)
	}
	return prog, nil
}

// PhotoFaces pairs a processed photo with its detected faces.
type PhotoFaces struct {
	Photo models.Photo
	Faces []models.Face
}

// ProcessedPhotos returns the committed photos of an event together with
// their faces, for the matching scan. Only processed rows are visible, so a
// photo mid-transition is either fully present or fully absent.
func (s *PostgresStore) ProcessedPhotos(ctx context.Context, eventID uuid.UUID) ([]PhotoFaces, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, blob_key, status, attempt, face_count, uploaded_at, processed_at
		 FROM photos WHERE event_id = $1 AND status = $2 ORDER BY uploaded_at DESC`,
		eventID, models.PhotoStatusProcessed)
	if err != nil {
		return nil, fmt.Errorf("list processed photos: %w", err)
	}
	defer rows.Close()

	var result []PhotoFaces
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.EventID, &p.BlobKey, &p.Status,
			&p.Attempt, &p.FaceCount, &p.UploadedAt, &p.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		index[p.ID] = len(result)
		result = append(result, PhotoFaces{Photo: p})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	if len(result) == 0 {
		return result, nil
	}

	faceRows, err := s.pool.Query(ctx,
		`SELECT f.photo_id, f.face_index, f.x1, f.y1, f.x2, f.y2, f.embedding, f.confidence
		 FROM photo_faces f
		 JOIN photos p ON p.id = f.photo_id
		 WHERE p.event_id = $1 AND p.status = $2
		 ORDER BY f.photo_id, f.face_index`,
		eventID, models.PhotoStatusProcessed)
	if err != nil {
		return nil, fmt.Errorf("list photo faces: %w", err)
	}
	defer faceRows.Close()

	for faceRows.Next() {
		var photoID uuid.UUID
		var f models.Face
		var vec pgvector.Vector
		if err := faceRows.Scan(&photoID, &f.Index, &f.BBox[0], &f.BBox[1], &f.BBox[2], &f.BBox[3],
			&vec, &f.Confidence); err != nil {
			return nil, fmt.Errorf("scan photo face: %w", err)
		}
		f.Embedding = vec.Slice()
		if i, ok := index[photoID]; ok {
			result[i].Faces = append(result[i].Faces, f)
		}
	}
	if err := faceRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photo faces: %w", err)
	}
	return result, nil
}

// PhotosByEvent returns all photo rows of an event, newest first.
func (s *PostgresStore) PhotosByEvent(ctx context.Context, eventID uuid.UUID, limit, offset int) ([]models.Photo, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM photos WHERE event_id = $1`, eventID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count photos: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, blob_key, status, COALESCE(processing_error, ''), attempt, face_count, uploaded_at, processed_at
		 FROM photos WHERE event_id = $1 ORDER BY uploaded_at DESC LIMIT $2 OFFSET $3`,
		eventID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.EventID, &p.BlobKey, &p.Status, &p.ProcessingError,
			&p.Attempt, &p.FaceCount, &p.UploadedAt, &p.ProcessedAt); err != nil {
			return nil, 0, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, total, nil
}
