package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ImageInsightServer/detection"
	"ImageInsightServer/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_MigratesAndPings(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Ping(context.Background()))
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(context.Background(), path)
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}

func TestOpen_FailsOnUnreachablePath(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	assert.Error(t, err)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))

	u := &model.User{
		ID:           "u-1",
		Email:        "a@b.com",
		PasswordHash: []byte("$argon2id$digest"),
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Insert(ctx, u))

	got, err := repo.GetByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)
	assert.True(t, u.CreatedAt.Equal(got.CreatedAt))

	byID, err := repo.GetByID(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "a@b.com", byID.Email)

	missing, err := repo.GetByEmail(ctx, "nobody@b.com")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))

	require.NoError(t, repo.Insert(ctx, &model.User{ID: "u-1", Email: "a@b.com", PasswordHash: []byte("x"), CreatedAt: time.Now()}))
	err := repo.Insert(ctx, &model.User{ID: "u-2", Email: "a@b.com", PasswordHash: []byte("y"), CreatedAt: time.Now()})
	assert.ErrorIs(t, err, model.ErrDuplicate)
}

func TestAnalysisRepository_ListInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewAnalysisRepository(openTestDB(t))
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Same timestamp for all rows: ordering must not depend on created_at.
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, repo.Insert(ctx, &model.Analysis{
			ID:          id,
			UserID:      "u-1",
			Description: "desc " + id,
			Detections: []detection.Detection{
				{Label: "pessoa", Confidence: 0.9, BoundingBox: detection.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4}},
			},
			ImagePayload: "aGVsbG8=",
			CreatedAt:    created,
		}))
	}
	require.NoError(t, repo.Insert(ctx, &model.Analysis{
		ID: "other", UserID: "u-2", Description: "x", Detections: []detection.Detection{}, CreatedAt: created,
	}))

	got, err := repo.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, "b", got[2].ID)
	assert.Equal(t, "desc c", got[0].Description)
	assert.Equal(t, "aGVsbG8=", got[0].ImagePayload)
	assert.Equal(t, []detection.Detection{
		{Label: "pessoa", Confidence: 0.9, BoundingBox: detection.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4}},
	}, got[0].Detections)

	count, err := repo.CountByUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestAnalysisRepository_EmptyHistory(t *testing.T) {
	repo := NewAnalysisRepository(openTestDB(t))

	got, err := repo.ListByUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAnalysisRepository_DuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := NewAnalysisRepository(openTestDB(t))
	a := &model.Analysis{ID: "a", UserID: "u", Detections: []detection.Detection{}, CreatedAt: time.Now()}

	require.NoError(t, repo.Insert(ctx, a))
	assert.ErrorIs(t, repo.Insert(ctx, a), model.ErrDuplicate)
}
